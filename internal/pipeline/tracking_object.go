package pipeline

import "time"

const (
	DefaultType  = "drone"
	StatusActive = "active"
)

// TrafficObject is the canonical record of one tracked object, keyed by
// DocID(Source, ObjectID).
type TrafficObject struct {
	Source   string  `json:"source"`
	ObjectID string  `json:"objectId"`
	Type     string  `json:"type"`
	Model    *string `json:"model"`

	Lat      float64  `json:"lat"`
	Lon      float64  `json:"lon"`
	Altitude *float64 `json:"altitude"`
	Speed    *float64 `json:"speed"`
	Heading  *float64 `json:"heading"`

	LastSeen  int64     `json:"lastSeen"` // epoch ms
	ExpiresAt time.Time `json:"expiresAt"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"` // assigned by the store
}

func (o TrafficObject) DocID() string {
	return DocID(o.Source, o.ObjectID)
}

// TrajectoryPoint is one immutable historical position of a TrafficObject.
type TrajectoryPoint struct {
	ID        string   `json:"id,omitempty"` // opaque append key
	Lat       float64  `json:"lat"`
	Lon       float64  `json:"lon"`
	Altitude  *float64 `json:"altitude"`
	Heading   *float64 `json:"heading"`
	Speed     *float64 `json:"speed"`
	Timestamp int64    `json:"timestamp"` // epoch ms
}

// Record is a report that passed both validation gates, with defaults applied.
type Record struct {
	Source   string
	ObjectID string
	Type     string
	Model    *string

	Lat      float64
	Lon      float64
	Altitude *float64
	Speed    *float64
	Heading  *float64
}

func (r Record) DocID() string {
	return DocID(r.Source, r.ObjectID)
}

// Point builds the trajectory point recorded for r at ts.
func (r Record) Point(ts time.Time) TrajectoryPoint {
	return TrajectoryPoint{
		Lat:       r.Lat,
		Lon:       r.Lon,
		Altitude:  r.Altitude,
		Heading:   r.Heading,
		Speed:     r.Speed,
		Timestamp: ts.UnixMilli(),
	}
}

func DocID(source, objectID string) string {
	return source + ":" + objectID
}
