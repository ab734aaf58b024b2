package report

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/fault"
	"go.uber.org/zap"
)

const (
	defaultSearchLimit = 10
	candidateFactor    = 2
)

// SearchContext narrows a search to an equipment entity and a creation date
// window. Zero values mean no constraint.
type SearchContext struct {
	EquipmentID string
	DateFrom    time.Time
	DateTo      time.Time
}

// Ranked pairs a report with its relevance score for one query.
type Ranked struct {
	Report    *Report `json:"report"`
	Relevance float64 `json:"relevance_score"`
}

// SearchResult is a ranked result set. Degraded marks results produced while
// the persistence collaborator was unreachable; the set is empty rather than
// failing the caller.
type SearchResult struct {
	Reports  []Ranked `json:"reports"`
	Degraded bool     `json:"degraded,omitempty"`
}

// Index is the report store with ranked retrieval.
type Index struct {
	backend  Backend
	embedder embed.Provider
	logger   *zap.Logger
}

// NewIndex creates a report index over the given backend.
func NewIndex(backend Backend, embedder embed.Provider, logger *zap.Logger) *Index {
	return &Index{backend: backend, embedder: embedder, logger: logger}
}

// StoreReport derives retrieval metadata, embeds the report, and persists
// it. A report arriving with an existing id replaces that report. Write
// failures surface to the caller.
func (x *Index) StoreReport(ctx context.Context, r *Report) (string, error) {
	if r.Title == "" {
		return "", fault.Validation("title", "must not be empty")
	}
	if r.ReportType == "" {
		return "", fault.Validation("report_type", "must not be empty")
	}
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.Content == nil {
		r.Content = map[string]any{}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	r.SearchText = searchableText(r)
	r.Tags = deriveTags(r)
	r.Keywords = deriveKeywords(r)
	r.Embedding = x.embedText(ctx, r.SearchText)

	if err := x.backend.Upsert(ctx, r); err != nil {
		return "", err
	}

	x.logger.Debug("report stored",
		zap.String("id", r.ID),
		zap.String("type", r.ReportType),
		zap.Int("tags", len(r.Tags)),
		zap.Int("keywords", len(r.Keywords)))
	return r.ID, nil
}

// RetrieveSimilar ranks reports against a free-text query in four stages:
// candidate recall over terms, context filtering, multi-signal scoring, and
// top-N selection. An unreachable backend degrades to an empty result set.
func (x *Index) RetrieveSimilar(ctx context.Context, query string, sc *SearchContext, limit int) (*SearchResult, error) {
	if limit < 0 {
		return nil, fault.Validation("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}

	terms := queryTerms(query)
	if len(terms) == 0 {
		return &SearchResult{Reports: []Ranked{}}, nil
	}

	candidates, err := x.backend.Candidates(ctx, terms, limit*candidateFactor)
	if err != nil {
		if fault.IsBackendUnavailable(err) {
			x.logger.Warn("report search degraded", zap.Error(err))
			return &SearchResult{Reports: []Ranked{}, Degraded: true}, nil
		}
		return nil, err
	}

	if sc != nil {
		candidates = filterByContext(candidates, sc)
	}

	now := time.Now().UTC()
	ranked := make([]Ranked, 0, len(candidates))
	for _, r := range candidates {
		ranked = append(ranked, Ranked{Report: r, Relevance: relevanceScore(r, terms, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Relevance != ranked[j].Relevance {
			return ranked[i].Relevance > ranked[j].Relevance
		}
		return ranked[i].Report.CreatedAt.After(ranked[j].Report.CreatedAt)
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	x.recordAccess(ctx, ranked)
	return &SearchResult{Reports: ranked}, nil
}

// SemanticSearch ranks non-archived reports by embedding similarity to the
// query instead of term scoring.
func (x *Index) SemanticSearch(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if limit < 0 {
		return nil, fault.Validation("limit", "must not be negative")
	}
	if limit == 0 {
		limit = defaultSearchLimit
	}
	if len(queryTerms(query)) == 0 {
		return &SearchResult{Reports: []Ranked{}}, nil
	}

	vec := x.embedText(ctx, query)
	reports, err := x.backend.SimilarByVector(ctx, vec, limit)
	if err != nil {
		if fault.IsBackendUnavailable(err) {
			x.logger.Warn("semantic search degraded", zap.Error(err))
			return &SearchResult{Reports: []Ranked{}, Degraded: true}, nil
		}
		return nil, err
	}

	ranked := make([]Ranked, 0, len(reports))
	for _, r := range reports {
		ranked = append(ranked, Ranked{Report: r, Relevance: embed.Cosine(vec, r.Embedding)})
	}
	x.recordAccess(ctx, ranked)
	return &SearchResult{Reports: ranked}, nil
}

// GetByID returns a report by id, archived or not, and records the access.
func (x *Index) GetByID(ctx context.Context, id string) (*Report, error) {
	if id == "" {
		return nil, fault.Validation("id", "must not be empty")
	}
	r, err := x.backend.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := x.backend.RecordAccess(ctx, []string{r.ID}); err != nil {
		x.logger.Warn("record access failed", zap.String("id", r.ID), zap.Error(err))
		return r, nil
	}
	// The returned report reflects the access this retrieval just recorded.
	now := time.Now().UTC()
	r.AccessCount++
	r.LastAccessed = &now
	return r, nil
}

// HistoryForEntity returns non-archived reports referencing the entity,
// newest first.
func (x *Index) HistoryForEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Report, error) {
	if entityType == "" || entityID == "" {
		return nil, fault.Validation("entity", "type and id must not be empty")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return x.backend.ListByEntity(ctx, entityType, entityID, limit)
}

// ListSince returns non-archived reports created at or after the cutoff,
// newest first.
func (x *Index) ListSince(ctx context.Context, since time.Time, limit int) ([]*Report, error) {
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	return x.backend.ListSince(ctx, since, limit)
}

// Archive marks a report archived and appends an archive log entry. The
// report remains retrievable by id but drops out of all searches.
func (x *Index) Archive(ctx context.Context, id, reason, archivedBy string) error {
	if id == "" {
		return fault.Validation("id", "must not be empty")
	}
	if _, err := x.backend.GetByID(ctx, id); err != nil {
		return err
	}
	entry := &ArchiveEntry{
		ID:         uuid.New().String(),
		ReportID:   id,
		Reason:     reason,
		ArchivedBy: archivedBy,
		ArchivedAt: time.Now().UTC(),
	}
	if err := x.backend.Archive(ctx, id, entry); err != nil {
		return err
	}
	x.logger.Info("report archived", zap.String("id", id), zap.String("by", archivedBy))
	return nil
}

func filterByContext(reports []*Report, sc *SearchContext) []*Report {
	out := reports[:0]
	for _, r := range reports {
		if sc.EquipmentID != "" && !refersToEquipment(r, sc.EquipmentID) {
			continue
		}
		if !sc.DateFrom.IsZero() && r.CreatedAt.Before(sc.DateFrom) {
			continue
		}
		if !sc.DateTo.IsZero() && r.CreatedAt.After(sc.DateTo) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func refersToEquipment(r *Report, equipmentID string) bool {
	for _, id := range r.EntityRefs["equipment"] {
		if id == equipmentID {
			return true
		}
	}
	return false
}

// recordAccess bumps access stats for returned reports, best effort.
func (x *Index) recordAccess(ctx context.Context, ranked []Ranked) {
	if len(ranked) == 0 {
		return
	}
	ids := make([]string, len(ranked))
	for i, rr := range ranked {
		ids[i] = rr.Report.ID
	}
	if err := x.backend.RecordAccess(ctx, ids); err != nil {
		x.logger.Warn("record access failed", zap.Int("reports", len(ids)), zap.Error(err))
	}
}

// embedText vectorizes text, substituting the zero vector on failure.
func (x *Index) embedText(ctx context.Context, text string) []float32 {
	vecs, err := x.embedder.Embed(ctx, []string{text})
	if err != nil {
		x.logger.Warn("vectorization failed, using zero vector", zap.Error(fault.Vectorization(err)))
		return embed.Zero(x.embedder.Dimension())
	}
	if len(vecs) == 0 {
		x.logger.Warn("embedder returned no vectors, using zero vector")
		return embed.Zero(x.embedder.Dimension())
	}
	return vecs[0]
}
