package report

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

// candidateCap bounds the in-process similarity scan.
const candidateCap = 500

// PGBackend persists reports in PostgreSQL. When a vector store client is
// attached it serves semantic ordering; otherwise similarity is computed
// in-process over a bounded candidate set.
type PGBackend struct {
	db     *pgxpool.Pool
	vs     *vectorstore.Client
	logger *zap.Logger
}

// NewPGBackend creates a PostgreSQL report backend. vs may be nil.
func NewPGBackend(db *pgxpool.Pool, vs *vectorstore.Client, logger *zap.Logger) *PGBackend {
	return &PGBackend{db: db, vs: vs, logger: logger}
}

const reportColumns = `id, title, summary, content, report_type, tags, keywords, entity_refs, embedding, search_text, access_count, last_accessed, created_at, archived`

// Upsert stores or replaces a report row and, best effort, its vector point.
func (b *PGBackend) Upsert(ctx context.Context, r *Report) error {
	contentJSON, err := json.Marshal(r.Content)
	if err != nil {
		return fault.Validation("content", "not serializable")
	}
	refsJSON, _ := json.Marshal(r.EntityRefs)

	_, err = b.db.Exec(ctx, `
		INSERT INTO reports (id, title, summary, content, report_type, tags, keywords, entity_refs, embedding, search_text, access_count, last_accessed, created_at, archived)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			content = EXCLUDED.content,
			report_type = EXCLUDED.report_type,
			tags = EXCLUDED.tags,
			keywords = EXCLUDED.keywords,
			entity_refs = EXCLUDED.entity_refs,
			embedding = EXCLUDED.embedding,
			search_text = EXCLUDED.search_text,
			archived = EXCLUDED.archived`,
		r.ID, r.Title, r.Summary, contentJSON, r.ReportType, r.Tags, r.Keywords, refsJSON,
		r.Embedding, r.SearchText, r.AccessCount, r.LastAccessed, r.CreatedAt, r.Archived,
	)
	if err != nil {
		return fault.BackendUnavailable("upsert report", err)
	}

	if b.vs != nil {
		vsErr := b.vs.Upsert(ctx, vectorstore.CollReports, r.ID, r.Embedding, map[string]string{
			"report_type": r.ReportType,
		})
		if vsErr != nil {
			b.logger.Warn("report vector upsert failed", zap.String("id", r.ID), zap.Error(vsErr))
		}
	}
	return nil
}

// GetByID returns a report by id, archived or not.
func (b *PGBackend) GetByID(ctx context.Context, id string) (*Report, error) {
	rows, err := b.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE id = $1`, id)
	if err != nil {
		return nil, fault.BackendUnavailable("get report", err)
	}
	defer rows.Close()

	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, fault.ErrNotFound
	}
	return reports[0], nil
}

// ListByEntity returns non-archived reports referencing the entity, newest
// first.
func (b *PGBackend) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Report, error) {
	refFilter, _ := json.Marshal(map[string][]string{entityType: {entityID}})
	rows, err := b.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE NOT archived AND entity_refs @> $1::jsonb
		ORDER BY created_at DESC
		LIMIT $2`, refFilter, limit)
	if err != nil {
		return nil, fault.BackendUnavailable("list reports by entity", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

// ListSince returns non-archived reports created at or after the cutoff,
// newest first.
func (b *PGBackend) ListSince(ctx context.Context, since time.Time, limit int) ([]*Report, error) {
	rows, err := b.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE NOT archived AND created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fault.BackendUnavailable("list reports since", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

// Candidates recalls non-archived reports whose text contains a query term
// or whose tag/keyword sets overlap the terms exactly, newest first. Precise
// scoring happens in the caller.
func (b *PGBackend) Candidates(ctx context.Context, terms []string, limit int) ([]*Report, error) {
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + t + "%"
	}

	rows, err := b.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE NOT archived AND (
			search_text ILIKE ANY($1)
			OR tags && $2
			OR keywords && $2
		)
		ORDER BY created_at DESC
		LIMIT $3`, patterns, terms, limit)
	if err != nil {
		return nil, fault.BackendUnavailable("recall report candidates", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

// SimilarByVector orders non-archived reports by similarity to vec. With a
// vector store attached the ordering comes from Qdrant; archived reports are
// dropped during hydration.
func (b *PGBackend) SimilarByVector(ctx context.Context, vec []float32, limit int) ([]*Report, error) {
	if b.vs == nil {
		return b.similarInProcess(ctx, vec, limit)
	}

	hits, err := b.vs.Search(ctx, vectorstore.CollReports, vec, uint64(limit*3), nil)
	if err != nil {
		b.logger.Warn("vector search failed, falling back to in-process scoring", zap.Error(err))
		return b.similarInProcess(ctx, vec, limit)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	rank := make(map[string]int, len(hits))
	for i, h := range hits {
		ids = append(ids, h.ID)
		rank[h.ID] = i
	}

	rows, err := b.db.Query(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE id = ANY($1) AND NOT archived`, ids)
	if err != nil {
		return nil, fault.BackendUnavailable("hydrate similar reports", err)
	}
	defer rows.Close()

	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reports, func(i, j int) bool {
		return rank[reports[i].ID] < rank[reports[j].ID]
	})
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (b *PGBackend) similarInProcess(ctx context.Context, vec []float32, limit int) ([]*Report, error) {
	candidates, err := b.ListSince(ctx, time.Time{}, candidateCap)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return embed.Cosine(vec, candidates[i].Embedding) > embed.Cosine(vec, candidates[j].Embedding)
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// RecordAccess bumps access counts and timestamps for the given ids.
func (b *PGBackend) RecordAccess(ctx context.Context, ids []string) error {
	_, err := b.db.Exec(ctx, `
		UPDATE reports
		SET access_count = access_count + 1, last_accessed = NOW()
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return fault.BackendUnavailable("record report access", err)
	}
	return nil
}

// Archive marks the report archived and appends the archive entry with the
// next version number, in one transaction. The vector point is removed best
// effort so archived reports drop out of semantic search immediately.
func (b *PGBackend) Archive(ctx context.Context, id string, entry *ArchiveEntry) error {
	tx, err := b.db.Begin(ctx)
	if err != nil {
		return fault.BackendUnavailable("archive report", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE reports SET archived = TRUE WHERE id = $1`, id)
	if err != nil {
		return fault.BackendUnavailable("archive report", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.ErrNotFound
	}

	var version int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) + 1 FROM report_archive WHERE report_id = $1`, id).Scan(&version); err != nil {
		return fault.BackendUnavailable("archive report", err)
	}
	entry.Version = version

	_, err = tx.Exec(ctx, `
		INSERT INTO report_archive (id, report_id, version, reason, archived_by, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.ReportID, entry.Version, entry.Reason, entry.ArchivedBy, entry.ArchivedAt,
	)
	if err != nil {
		return fault.BackendUnavailable("archive report", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fault.BackendUnavailable("archive report", err)
	}

	if b.vs != nil {
		if vsErr := b.vs.Delete(ctx, vectorstore.CollReports, id); vsErr != nil {
			b.logger.Warn("report vector delete failed", zap.String("id", id), zap.Error(vsErr))
		}
	}
	return nil
}

func scanReports(rows pgx.Rows) ([]*Report, error) {
	var reports []*Report
	for rows.Next() {
		var (
			r                     Report
			contentJSON, refsJSON []byte
		)
		if err := rows.Scan(&r.ID, &r.Title, &r.Summary, &contentJSON, &r.ReportType, &r.Tags,
			&r.Keywords, &refsJSON, &r.Embedding, &r.SearchText, &r.AccessCount,
			&r.LastAccessed, &r.CreatedAt, &r.Archived); err != nil {
			return nil, fault.BackendUnavailable("scan report", err)
		}
		if len(contentJSON) > 0 {
			_ = json.Unmarshal(contentJSON, &r.Content)
		}
		if len(refsJSON) > 0 {
			_ = json.Unmarshal(refsJSON, &r.EntityRefs)
		}
		reports = append(reports, &r)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.BackendUnavailable("read reports", err)
	}
	return reports, nil
}
