// Package store persists traffic objects and their trajectory points.
//
// Every backend implements the same merge contract for UpsertObject: the
// identity fields, position, type, lastSeen, expiresAt, status and updatedAt
// are always written; Model, Altitude, Speed and Heading are written only when
// non-nil, so a report that omits them leaves the previous values in place.
// updatedAt is assigned by the store at write time.
package store

import (
	"context"
	"errors"
	"time"

	"uas-ingest/internal/pipeline"
)

var (
	ErrNotFound    = errors.New("store: not found")
	ErrUnavailable = errors.New("store: unavailable")
)

// ObjectUpdate is one merge write into the object state store.
type ObjectUpdate struct {
	DocID    string
	Source   string
	ObjectID string
	Type     string
	Model    *string

	Lat      float64
	Lon      float64
	Altitude *float64
	Speed    *float64
	Heading  *float64

	LastSeen  time.Time
	ExpiresAt time.Time
	Status    string
}

// UpdateFromRecord builds the merge write for an accepted record.
func UpdateFromRecord(r pipeline.Record, now time.Time, ttl time.Duration) ObjectUpdate {
	return ObjectUpdate{
		DocID:     r.DocID(),
		Source:    r.Source,
		ObjectID:  r.ObjectID,
		Type:      r.Type,
		Model:     r.Model,
		Lat:       r.Lat,
		Lon:       r.Lon,
		Altitude:  r.Altitude,
		Speed:     r.Speed,
		Heading:   r.Heading,
		LastSeen:  now,
		ExpiresAt: now.Add(ttl),
		Status:    pipeline.StatusActive,
	}
}

type ObjectStore interface {
	UpsertObject(ctx context.Context, u ObjectUpdate) error
	GetObject(ctx context.Context, docID string) (pipeline.TrafficObject, error)
}

type TrajectoryLog interface {
	// AppendPoint stores p under docID and returns its opaque append key.
	AppendPoint(ctx context.Context, docID string, p pipeline.TrajectoryPoint) (string, error)
	// ListPoints returns the points of docID in insertion order.
	ListPoints(ctx context.Context, docID string) ([]pipeline.TrajectoryPoint, error)
}

type Store interface {
	ObjectStore
	TrajectoryLog
	Ping(ctx context.Context) error
	Close() error
}

// merge applies u to cur following the package merge contract.
func merge(cur pipeline.TrafficObject, u ObjectUpdate, updatedAt time.Time) pipeline.TrafficObject {
	cur.Source = u.Source
	cur.ObjectID = u.ObjectID
	cur.Type = u.Type
	cur.Lat = u.Lat
	cur.Lon = u.Lon
	if u.Model != nil {
		cur.Model = copyString(u.Model)
	}
	if u.Altitude != nil {
		cur.Altitude = copyFloat(u.Altitude)
	}
	if u.Speed != nil {
		cur.Speed = copyFloat(u.Speed)
	}
	if u.Heading != nil {
		cur.Heading = copyFloat(u.Heading)
	}
	cur.LastSeen = u.LastSeen.UnixMilli()
	cur.ExpiresAt = u.ExpiresAt
	cur.Status = u.Status
	cur.UpdatedAt = updatedAt
	return cur
}

func copyFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
