package pipeline

import (
	"strconv"

	"github.com/goccy/go-json"
)

// Report is an inbound position report as submitted by a feeder, before any
// gate has been applied. Numeric fields are nil when absent or not a number.
type Report struct {
	// RawSource is the source value exactly as submitted, echoed back on
	// authorization failures.
	RawSource any `json:"-"`

	Source   string   `validate:"required"`
	ObjectID string   `validate:"required"`
	Type     string   `validate:"-"`
	Lat      *float64 `validate:"required,finite"`
	Lon      *float64 `validate:"required,finite"`
	Altitude *float64 `validate:"-"`
	Speed    *float64 `validate:"-"`
	Heading  *float64 `validate:"-"`
	Model    *string  `validate:"-"`
}

// DecodeReport parses a JSON body. A body that is not a JSON object is
// treated as an empty report, which then fails authorization.
func DecodeReport(body []byte) Report {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return Report{}
	}
	return ParseReport(fields)
}

// ParseReport builds a Report from loosely typed fields, as produced by a
// JSON decoder or structpb.Struct.AsMap.
func ParseReport(fields map[string]any) Report {
	r := Report{RawSource: fields["source"]}
	if s, ok := fields["source"].(string); ok {
		r.Source = s
	}
	r.ObjectID = objectIDField(fields["objectId"])
	if s, ok := fields["type"].(string); ok {
		r.Type = s
	}
	if s, ok := fields["model"].(string); ok {
		r.Model = &s
	}
	r.Lat = numberField(fields["lat"])
	r.Lon = numberField(fields["lon"])
	r.Altitude = numberField(fields["altitude"])
	r.Speed = numberField(fields["speed"])
	r.Heading = numberField(fields["heading"])
	return r
}

// numberField keeps NaN and infinities so the gates can reject them.
func numberField(v any) *float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	return &f
}

// objectIDField accepts strings and non-zero numbers; feeders that number
// their objects get the decimal form as the id.
func objectIDField(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case nil:
		return ""
	}
	n := numberField(v)
	if n == nil || *n == 0 || !isFinite(*n) {
		return ""
	}
	return strconv.FormatFloat(*n, 'f', -1, 64)
}
