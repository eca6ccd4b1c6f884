package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"uas-ingest/internal/pipeline"
)

// Memory is a process-local Store. It backs the "memory" backend and tests.
type Memory struct {
	mu      sync.Mutex
	objects map[string]pipeline.TrafficObject
	points  map[string][]pipeline.TrajectoryPoint
	seq     uint64
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		objects: make(map[string]pipeline.TrafficObject),
		points:  make(map[string][]pipeline.TrajectoryPoint),
		now:     time.Now,
	}
}

func (m *Memory) UpsertObject(_ context.Context, u ObjectUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[u.DocID] = merge(m.objects[u.DocID], u, m.now().UTC())
	return nil
}

func (m *Memory) GetObject(_ context.Context, docID string) (pipeline.TrafficObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[docID]
	if !ok {
		return pipeline.TrafficObject{}, fmt.Errorf("object %s: %w", docID, ErrNotFound)
	}
	return obj, nil
}

func (m *Memory) AppendPoint(_ context.Context, docID string, p pipeline.TrajectoryPoint) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	p.ID = fmt.Sprintf("%020d", m.seq)
	m.points[docID] = append(m.points[docID], p)
	return p.ID, nil
}

func (m *Memory) ListPoints(_ context.Context, docID string) ([]pipeline.TrajectoryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]pipeline.TrajectoryPoint(nil), m.points[docID]...), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
