package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/fault"
	"go.uber.org/zap"
)

// Query caps. SimilarityThreshold and the result caps are fixed policy, not
// tuning knobs.
const (
	SimilarityThreshold = 0.6
	maxSimilarResults   = 20
	maxHistoryResults   = 100
)

// Backend is the persistence collaborator behind the event store.
type Backend interface {
	Append(ctx context.Context, e *Event) error
	ListByType(ctx context.Context, eventType string, since time.Time, limit int) ([]*Event, error)
	ListHistory(ctx context.Context, entityType, entityID string, since time.Time, limit int) ([]*Event, error)
	// SimilarByVector returns events of the given type since the cutoff,
	// scored and ordered by descending cosine similarity to vec.
	SimilarByVector(ctx context.Context, eventType string, vec []float32, since time.Time, limit int) ([]*Event, error)
}

// Store is the append-only event log with embedding-based similarity search.
type Store struct {
	backend  Backend
	embedder embed.Provider
	announce func(*Event)
	logger   *zap.Logger
}

// NewStore creates an event store over the given backend.
func NewStore(backend Backend, embedder embed.Provider, logger *zap.Logger) *Store {
	return &Store{backend: backend, embedder: embedder, logger: logger}
}

// SetAnnouncer installs a best-effort hook invoked after every successful
// append. The hook must never block; event logging never fails because of a
// downstream notification consumer.
func (s *Store) SetAnnouncer(fn func(*Event)) {
	s.announce = fn
}

// LogEvent embeds, tags, and appends an occurrence. Store unavailability
// surfaces to the caller; this is the write path and data must not be
// dropped silently.
func (s *Store) LogEvent(ctx context.Context, eventType string, payload map[string]any, entityRefs map[string][]string, userID string) (string, error) {
	if eventType == "" {
		return "", fault.Validation("event_type", "must not be empty")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	e := &Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Payload:    payload,
		EntityRefs: entityRefs,
		Tags:       extractTags(eventType, payload),
		UserID:     userID,
		Timestamp:  time.Now().UTC(),
		SearchText: searchableText(eventType, payload),
	}
	e.Embedding = s.embedText(ctx, e.SearchText)

	if err := s.backend.Append(ctx, e); err != nil {
		return "", err
	}

	s.logger.Debug("event logged",
		zap.String("id", e.ID),
		zap.String("type", eventType),
		zap.Int("tags", len(e.Tags)))

	if s.announce != nil {
		s.announce(e)
	}
	return e.ID, nil
}

// QuerySimilar returns events of the same type within the lookback window,
// ranked by descending similarity to a query built from the reference data.
// Results below the similarity threshold are dropped; at most 20 are
// returned.
func (s *Store) QuerySimilar(ctx context.Context, eventType string, reference map[string]any, lookbackDays int) ([]*Event, error) {
	if eventType == "" {
		return nil, fault.Validation("event_type", "must not be empty")
	}
	if lookbackDays <= 0 {
		return nil, fault.Validation("lookback_days", "must be positive")
	}

	query := BuildSearchQuery(eventType, reference)
	vec := s.embedText(ctx, query)
	since := time.Now().UTC().AddDate(0, 0, -lookbackDays)

	scored, err := s.backend.SimilarByVector(ctx, eventType, vec, since, maxSimilarResults)
	if err != nil {
		return nil, err
	}

	results := make([]*Event, 0, len(scored))
	for _, e := range scored {
		if e.Similarity > SimilarityThreshold {
			results = append(results, e)
		}
	}
	if len(results) > maxSimilarResults {
		results = results[:maxSimilarResults]
	}

	s.logger.Debug("similar events query",
		zap.String("type", eventType),
		zap.Int("candidates", len(scored)),
		zap.Int("results", len(results)))
	return results, nil
}

// GetHistory returns events within the window, newest first, capped at 100.
// Empty entityType/entityID returns events for all entities.
func (s *Store) GetHistory(ctx context.Context, entityType, entityID string, days int) ([]*Event, error) {
	if days <= 0 {
		return nil, fault.Validation("days", "must be positive")
	}
	since := time.Now().UTC().AddDate(0, 0, -days)
	return s.backend.ListHistory(ctx, entityType, entityID, since, maxHistoryResults)
}

// embedText vectorizes text, substituting the zero vector on failure so
// storage and search proceed at reduced recall rather than halting.
func (s *Store) embedText(ctx context.Context, text string) []float32 {
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		s.logger.Warn("vectorization failed, using zero vector", zap.Error(fault.Vectorization(err)))
		return embed.Zero(s.embedder.Dimension())
	}
	if len(vecs) == 0 {
		s.logger.Warn("embedder returned no vectors, using zero vector")
		return embed.Zero(s.embedder.Dimension())
	}
	return vecs[0]
}
