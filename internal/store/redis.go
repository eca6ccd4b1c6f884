package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"uas-ingest/internal/pipeline"
)

// Objects live in a hash at <prefix>obj:<docID> that Redis expires at
// expiresAt; trajectory points are entries of the stream <prefix>pts:<docID>.
//
// upsertScript merges the given field/value pairs, stamps updatedAt from the
// server clock in ms and sets the key expiry, atomically.
// KEYS[1] = object hash, ARGV[1] = expiresAt ms, ARGV[2..] = field/value pairs.
var upsertScript = redis.NewScript(`
local t = redis.call('TIME')
local updated = t[1] .. string.format('%06d', tonumber(t[2])):sub(1, 3)
redis.call('HSET', KEYS[1], unpack(ARGV, 2))
redis.call('HSET', KEYS[1], 'updatedAt', updated)
redis.call('PEXPIREAT', KEYS[1], ARGV[1])
return updated
`)

type Redis struct {
	rdb    *redis.Client
	prefix string
}

type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Redis{rdb: rdb, prefix: opts.KeyPrefix}, nil
}

func (r *Redis) objectKey(docID string) string { return r.prefix + "obj:" + docID }
func (r *Redis) pointsKey(docID string) string { return r.prefix + "pts:" + docID }

func (r *Redis) UpsertObject(ctx context.Context, u ObjectUpdate) error {
	args := []any{
		u.ExpiresAt.UnixMilli(),
		"source", u.Source,
		"objectId", u.ObjectID,
		"type", u.Type,
		"lat", formatFloat(u.Lat),
		"lon", formatFloat(u.Lon),
		"lastSeen", u.LastSeen.UnixMilli(),
		"expiresAt", u.ExpiresAt.UnixMilli(),
		"status", u.Status,
	}
	if u.Model != nil {
		args = append(args, "model", *u.Model)
	}
	args = appendFloatField(args, "altitude", u.Altitude)
	args = appendFloatField(args, "speed", u.Speed)
	args = appendFloatField(args, "heading", u.Heading)

	if err := upsertScript.Run(ctx, r.rdb, []string{r.objectKey(u.DocID)}, args...).Err(); err != nil {
		return fmt.Errorf("redis upsert %s: %w", u.DocID, err)
	}
	return nil
}

func (r *Redis) GetObject(ctx context.Context, docID string) (pipeline.TrafficObject, error) {
	vals, err := r.rdb.HGetAll(ctx, r.objectKey(docID)).Result()
	if err != nil {
		return pipeline.TrafficObject{}, fmt.Errorf("redis get %s: %w", docID, err)
	}
	if len(vals) == 0 {
		return pipeline.TrafficObject{}, fmt.Errorf("object %s: %w", docID, ErrNotFound)
	}

	obj := pipeline.TrafficObject{
		Source:   vals["source"],
		ObjectID: vals["objectId"],
		Type:     vals["type"],
		Status:   vals["status"],
		Lat:      parseFloat(vals["lat"]),
		Lon:      parseFloat(vals["lon"]),
		Altitude: parseOptFloat(vals, "altitude"),
		Speed:    parseOptFloat(vals, "speed"),
		Heading:  parseOptFloat(vals, "heading"),
		LastSeen: parseInt(vals["lastSeen"]),
	}
	if m, ok := vals["model"]; ok {
		obj.Model = &m
	}
	obj.ExpiresAt = time.UnixMilli(parseInt(vals["expiresAt"])).UTC()
	obj.UpdatedAt = time.UnixMilli(parseInt(vals["updatedAt"])).UTC()
	return obj, nil
}

func (r *Redis) AppendPoint(ctx context.Context, docID string, p pipeline.TrajectoryPoint) (string, error) {
	values := []any{
		"lat", formatFloat(p.Lat),
		"lon", formatFloat(p.Lon),
		"timestamp", p.Timestamp,
	}
	values = appendFloatField(values, "altitude", p.Altitude)
	values = appendFloatField(values, "heading", p.Heading)
	values = appendFloatField(values, "speed", p.Speed)

	id, err := r.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: r.pointsKey(docID),
		Values: values,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis append %s: %w", docID, err)
	}
	return id, nil
}

func (r *Redis) ListPoints(ctx context.Context, docID string) ([]pipeline.TrajectoryPoint, error) {
	msgs, err := r.rdb.XRange(ctx, r.pointsKey(docID), "-", "+").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis list points %s: %w", docID, err)
	}
	out := make([]pipeline.TrajectoryPoint, 0, len(msgs))
	for _, m := range msgs {
		vals := make(map[string]string, len(m.Values))
		for k, v := range m.Values {
			if s, ok := v.(string); ok {
				vals[k] = s
			}
		}
		out = append(out, pipeline.TrajectoryPoint{
			ID:        m.ID,
			Lat:       parseFloat(vals["lat"]),
			Lon:       parseFloat(vals["lon"]),
			Altitude:  parseOptFloat(vals, "altitude"),
			Heading:   parseOptFloat(vals, "heading"),
			Speed:     parseOptFloat(vals, "speed"),
			Timestamp: parseInt(vals["timestamp"]),
		})
	}
	return out, nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}

func appendFloatField(args []any, name string, v *float64) []any {
	if v == nil {
		return args
	}
	return append(args, name, formatFloat(*v))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseOptFloat(vals map[string]string, key string) *float64 {
	s, ok := vals[key]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseInt(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}
