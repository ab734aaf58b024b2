package event

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/fault"
	"github.com/nidhogg/hindsight/internal/vectorstore"
	"go.uber.org/zap"
)

// PGBackend persists events in PostgreSQL. When a vector store client is
// attached it serves similarity ordering; otherwise similarity is computed
// in-process over a bounded candidate set.
type PGBackend struct {
	db     *pgxpool.Pool
	vs     *vectorstore.Client
	logger *zap.Logger
}

// NewPGBackend creates a PostgreSQL event backend. vs may be nil.
func NewPGBackend(db *pgxpool.Pool, vs *vectorstore.Client, logger *zap.Logger) *PGBackend {
	return &PGBackend{db: db, vs: vs, logger: logger}
}

// Append inserts the event row and, best effort, its vector point.
func (b *PGBackend) Append(ctx context.Context, e *Event) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fault.Validation("payload", "not serializable")
	}
	refsJSON, _ := json.Marshal(e.EntityRefs)

	_, err = b.db.Exec(ctx, `
		INSERT INTO system_events (id, event_type, payload, entity_refs, tags, user_id, ts, embedding, search_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.Type, payloadJSON, refsJSON, e.Tags, e.UserID, e.Timestamp, e.Embedding, e.SearchText,
	)
	if err != nil {
		return fault.BackendUnavailable("append event", err)
	}

	if b.vs != nil {
		vsErr := b.vs.Upsert(ctx, vectorstore.CollEvents, e.ID, e.Embedding, map[string]string{
			"event_type": e.Type,
		})
		if vsErr != nil {
			// Vector index is advisory; the in-process fallback still works.
			b.logger.Warn("event vector upsert failed", zap.String("id", e.ID), zap.Error(vsErr))
		}
	}
	return nil
}

const eventColumns = `id, event_type, payload, entity_refs, tags, user_id, ts, embedding, search_text`

// ListByType returns events of the given type since the cutoff, newest first.
func (b *PGBackend) ListByType(ctx context.Context, eventType string, since time.Time, limit int) ([]*Event, error) {
	rows, err := b.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM system_events
		WHERE event_type = $1 AND ts >= $2
		ORDER BY ts DESC
		LIMIT $3`, eventType, since, limit)
	if err != nil {
		return nil, fault.BackendUnavailable("list events by type", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListHistory returns events since the cutoff, optionally entity-scoped via
// jsonb containment on entity_refs, newest first.
func (b *PGBackend) ListHistory(ctx context.Context, entityType, entityID string, since time.Time, limit int) ([]*Event, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if entityType != "" && entityID != "" {
		refFilter, _ := json.Marshal(map[string][]string{entityType: {entityID}})
		rows, err = b.db.Query(ctx, `
			SELECT `+eventColumns+`
			FROM system_events
			WHERE ts >= $1 AND (entity_refs @> $2::jsonb OR payload->>$3 = $4)
			ORDER BY ts DESC
			LIMIT $5`, since, refFilter, entityType+"_id", entityID, limit)
	} else {
		rows, err = b.db.Query(ctx, `
			SELECT `+eventColumns+`
			FROM system_events
			WHERE ts >= $1
			ORDER BY ts DESC
			LIMIT $2`, since, limit)
	}
	if err != nil {
		return nil, fault.BackendUnavailable("list event history", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SimilarByVector orders same-type events by similarity to vec. With a
// vector store attached the ordering comes from Qdrant and rows are hydrated
// by id; the time filter is applied during hydration.
func (b *PGBackend) SimilarByVector(ctx context.Context, eventType string, vec []float32, since time.Time, limit int) ([]*Event, error) {
	if b.vs == nil {
		return b.similarInProcess(ctx, eventType, vec, since, limit)
	}

	hits, err := b.vs.Search(ctx, vectorstore.CollEvents, vec, uint64(limit*3), map[string]string{
		"event_type": eventType,
	})
	if err != nil {
		b.logger.Warn("vector search failed, falling back to in-process scoring", zap.Error(err))
		return b.similarInProcess(ctx, eventType, vec, since, limit)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ID)
		scores[h.ID] = float64(h.Score)
	}

	rows, err := b.db.Query(ctx, `
		SELECT `+eventColumns+`
		FROM system_events
		WHERE id = ANY($1) AND ts >= $2`, ids, since)
	if err != nil {
		return nil, fault.BackendUnavailable("hydrate similar events", err)
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for _, e := range events {
		e.Similarity = scores[e.ID]
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Similarity > events[j].Similarity
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (b *PGBackend) similarInProcess(ctx context.Context, eventType string, vec []float32, since time.Time, limit int) ([]*Event, error) {
	candidates, err := b.ListByType(ctx, eventType, since, candidateCap)
	if err != nil {
		return nil, err
	}
	for _, e := range candidates {
		e.Similarity = embed.Cosine(vec, e.Embedding)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func scanEvents(rows pgx.Rows) ([]*Event, error) {
	var events []*Event
	for rows.Next() {
		var (
			e                     Event
			payloadJSON, refsJSON []byte
			userID                *string
		)
		if err := rows.Scan(&e.ID, &e.Type, &payloadJSON, &refsJSON, &e.Tags, &userID, &e.Timestamp, &e.Embedding, &e.SearchText); err != nil {
			return nil, fault.BackendUnavailable("scan event", err)
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &e.Payload)
		}
		if len(refsJSON) > 0 {
			_ = json.Unmarshal(refsJSON, &e.EntityRefs)
		}
		if userID != nil {
			e.UserID = *userID
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.BackendUnavailable("read events", err)
	}
	return events, nil
}
