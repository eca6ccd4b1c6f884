package ingest

import (
	"net/http"

	"uas-ingest/internal/pipeline"
)

const DropReason = "non-uas-payload"

type ErrorBody struct {
	Error string `json:"error"`
}

type ForbiddenBody struct {
	Error  string `json:"error"`
	Source any    `json:"source"`
}

type InvalidBody struct {
	Error    string   `json:"error"`
	Required []string `json:"required"`
}

type DroppedBody struct {
	OK      bool   `json:"ok"`
	Dropped bool   `json:"dropped"`
	Reason  string `json:"reason"`
}

type AcceptedBody struct {
	OK       bool   `json:"ok"`
	ID       string `json:"id"`
	LastSeen int64  `json:"lastSeen"`
}

// Reply is the client-visible form of a Result, shared by every transport.
type Reply struct {
	Status int
	Body   any
}

var MethodNotAllowed = Reply{Status: http.StatusMethodNotAllowed, Body: ErrorBody{Error: "POST only"}}

// Classify maps an Ingest result to its reply. Store failure details are
// never exposed.
func Classify(res Result, err error) Reply {
	if err != nil {
		return Reply{Status: http.StatusInternalServerError, Body: ErrorBody{Error: "Internal error"}}
	}
	switch res.Outcome {
	case pipeline.OutcomeUnauthorized:
		return Reply{Status: http.StatusForbidden, Body: ForbiddenBody{Error: "Source not allowed", Source: res.Source}}
	case pipeline.OutcomeMalformed:
		return Reply{Status: http.StatusBadRequest, Body: InvalidBody{Error: "Invalid payload", Required: pipeline.RequiredFields}}
	case pipeline.OutcomeImplausible:
		return Reply{Status: http.StatusAccepted, Body: DroppedBody{OK: false, Dropped: true, Reason: DropReason}}
	}
	return Reply{Status: http.StatusOK, Body: AcceptedBody{OK: true, ID: res.DocID, LastSeen: res.LastSeen.UnixMilli()}}
}
