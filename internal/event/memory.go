package event

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nidhogg/hindsight/internal/embed"
)

// candidateCap bounds the in-process similarity scan.
const candidateCap = 500

// MemoryBackend is an in-process Backend used for tests and for running
// without a reachable persistence collaborator.
type MemoryBackend struct {
	mu     sync.RWMutex
	events []*Event
}

// NewMemoryBackend creates an empty in-memory event log.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{}
}

// Append adds an event to the log.
func (m *MemoryBackend) Append(ctx context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.events = append(m.events, &cp)
	return nil
}

// ListByType returns events of the given type since the cutoff, newest first.
func (m *MemoryBackend) ListByType(ctx context.Context, eventType string, since time.Time, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, e := range m.events {
		if e.Type == eventType && !e.Timestamp.Before(since) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListHistory returns events since the cutoff, optionally scoped to one
// entity reference, newest first.
func (m *MemoryBackend) ListHistory(ctx context.Context, entityType, entityID string, since time.Time, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, e := range m.events {
		if e.Timestamp.Before(since) {
			continue
		}
		if entityType != "" && entityID != "" && !refersTo(e, entityType, entityID) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SimilarByVector scores a bounded candidate set in-process by cosine
// similarity.
func (m *MemoryBackend) SimilarByVector(ctx context.Context, eventType string, vec []float32, since time.Time, limit int) ([]*Event, error) {
	candidates, err := m.ListByType(ctx, eventType, since, candidateCap)
	if err != nil {
		return nil, err
	}
	for _, e := range candidates {
		e.Similarity = embed.Cosine(vec, e.Embedding)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func refersTo(e *Event, entityType, entityID string) bool {
	for _, id := range e.EntityRefs[entityType] {
		if id == entityID {
			return true
		}
	}
	// Payload convention: "<entity_type>_id" also counts as a reference.
	if v, ok := e.Payload[entityType+"_id"].(string); ok && v == entityID {
		return true
	}
	return false
}

func sortNewestFirst(events []*Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
