package store

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"uas-ingest/internal/pipeline"
)

func f(v float64) *float64 { return &v }
func str(v string) *string  { return &v }

func openMemory(t *testing.T) Store {
	t.Helper()
	return NewMemory()
}

func openRedis(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "test:"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func openSQLite(t *testing.T) Store {
	t.Helper()
	// Unique in-memory DB per test to avoid cross-test contamination.
	dsn := "file:store_" + strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()) + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewSQL(db)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

var backends = map[string]func(t *testing.T) Store{
	"memory": openMemory,
	"redis":  openRedis,
	"sqlite": openSQLite,
}

func update(objectID string, lat, lon float64, now time.Time) ObjectUpdate {
	return ObjectUpdate{
		DocID:     pipeline.DocID("simulator", objectID),
		Source:    "simulator",
		ObjectID:  objectID,
		Type:      pipeline.DefaultType,
		Lat:       lat,
		Lon:       lon,
		LastSeen:  now,
		ExpiresAt: now.Add(24 * time.Hour),
		Status:    pipeline.StatusActive,
	}
}

func TestUpsertCreatesObject(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			now := time.Now().UTC()

			u := update("X1", 40, -74, now)
			u.Altitude = f(400)
			u.Heading = f(90)
			u.Model = str("Mavic 3")
			if err := s.UpsertObject(ctx, u); err != nil {
				t.Fatalf("upsert: %v", err)
			}

			obj, err := s.GetObject(ctx, "simulator:X1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if obj.Source != "simulator" || obj.ObjectID != "X1" || obj.Type != "drone" || obj.Status != "active" {
				t.Fatalf("unexpected identity: %+v", obj)
			}
			if obj.Lat != 40 || obj.Lon != -74 {
				t.Fatalf("unexpected position %v,%v", obj.Lat, obj.Lon)
			}
			if obj.Altitude == nil || *obj.Altitude != 400 || obj.Heading == nil || *obj.Heading != 90 {
				t.Fatalf("unexpected telemetry: %+v", obj)
			}
			if obj.Speed != nil {
				t.Fatalf("expected speed to stay absent")
			}
			if obj.Model == nil || *obj.Model != "Mavic 3" {
				t.Fatalf("unexpected model")
			}
			if obj.LastSeen != now.UnixMilli() {
				t.Fatalf("lastSeen = %d, want %d", obj.LastSeen, now.UnixMilli())
			}
			if obj.ExpiresAt.UnixMilli() != now.Add(24*time.Hour).UnixMilli() {
				t.Fatalf("expiresAt = %v, want lastSeen+24h", obj.ExpiresAt)
			}
			if obj.UpdatedAt.IsZero() {
				t.Fatalf("expected store-assigned updatedAt")
			}
		})
	}
}

// Omitted optional fields keep their previous values.
func TestUpsertMergeRetainsOmittedFields(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			now := time.Now().UTC()

			first := update("A", 1, 1, now)
			first.Altitude = f(100)
			first.Model = str("Skydio X10")
			if err := s.UpsertObject(ctx, first); err != nil {
				t.Fatalf("upsert 1: %v", err)
			}

			second := update("A", 2, 2, now.Add(time.Second))
			second.Speed = f(50)
			if err := s.UpsertObject(ctx, second); err != nil {
				t.Fatalf("upsert 2: %v", err)
			}

			obj, err := s.GetObject(ctx, "simulator:A")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if obj.Lat != 2 || obj.Lon != 2 {
				t.Fatalf("expected position 2,2, got %v,%v", obj.Lat, obj.Lon)
			}
			if obj.Speed == nil || *obj.Speed != 50 {
				t.Fatalf("expected speed 50")
			}
			if obj.Altitude == nil || *obj.Altitude != 100 {
				t.Fatalf("expected altitude 100 to be retained, got %v", obj.Altitude)
			}
			if obj.Model == nil || *obj.Model != "Skydio X10" {
				t.Fatalf("expected model to be retained")
			}
			if obj.LastSeen != second.LastSeen.UnixMilli() {
				t.Fatalf("expected lastSeen from the second write")
			}
		})
	}
}

func TestGetObjectNotFound(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			_, err := s.GetObject(context.Background(), "simulator:missing")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestAppendPointsInsertionOrder(t *testing.T) {
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

			ids := map[string]bool{}
			for i := 0; i < 3; i++ {
				p := pipeline.TrajectoryPoint{Lat: float64(i), Lon: 10, Timestamp: base.Add(time.Duration(i) * time.Second).UnixMilli()}
				if i == 1 {
					p.Altitude = f(120)
				}
				id, err := s.AppendPoint(ctx, "simulator:X1", p)
				if err != nil {
					t.Fatalf("append: %v", err)
				}
				if id == "" || ids[id] {
					t.Fatalf("expected a fresh append key, got %q", id)
				}
				ids[id] = true
			}
			// same timestamp twice is still two points
			dup := pipeline.TrajectoryPoint{Lat: 3, Lon: 10, Timestamp: base.Add(2 * time.Second).UnixMilli()}
			if _, err := s.AppendPoint(ctx, "simulator:X1", dup); err != nil {
				t.Fatalf("append dup: %v", err)
			}

			pts, err := s.ListPoints(ctx, "simulator:X1")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(pts) != 4 {
				t.Fatalf("expected 4 points, got %d", len(pts))
			}
			for i, p := range pts {
				if p.Lat != float64(i) {
					t.Fatalf("point %d out of order: lat=%v", i, p.Lat)
				}
			}
			if pts[1].Altitude == nil || *pts[1].Altitude != 120 {
				t.Fatalf("expected altitude on second point")
			}
			if pts[0].Altitude != nil || pts[0].Speed != nil || pts[0].Heading != nil {
				t.Fatalf("expected absent telemetry on first point")
			}

			other, err := s.ListPoints(ctx, "simulator:other")
			if err != nil {
				t.Fatalf("list other: %v", err)
			}
			if len(other) != 0 {
				t.Fatalf("expected no points for another object, got %d", len(other))
			}
		})
	}
}

func TestRedisObjectExpiresAtTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := NewRedis(context.Background(), RedisOptions{Addr: mr.Addr(), KeyPrefix: "uas:"})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer s.Close()

	now := time.Now()
	u := update("X1", 40, -74, now)
	u.ExpiresAt = now.Add(time.Hour)
	if err := s.UpsertObject(context.Background(), u); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !mr.Exists("uas:obj:simulator:X1") {
		t.Fatalf("expected object hash")
	}
	if ttl := mr.TTL("uas:obj:simulator:X1"); ttl <= 0 || ttl > time.Hour {
		t.Fatalf("expected ttl within an hour, got %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if _, err := s.GetObject(context.Background(), "simulator:X1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected object to be reaped after expiry, got %v", err)
	}
}

func TestNewRedisPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if _, err := NewRedis(context.Background(), RedisOptions{Addr: addr}); err == nil {
		t.Fatalf("expected ping failure")
	}
}
