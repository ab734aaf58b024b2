package report

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/hindsight/internal/embed"
	"github.com/nidhogg/hindsight/internal/fault"
)

// MemoryBackend is an in-process Backend used for tests and for running
// without a reachable persistence collaborator.
type MemoryBackend struct {
	mu      sync.RWMutex
	reports map[string]*Report
	archive []*ArchiveEntry
}

// NewMemoryBackend creates an empty in-memory report store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{reports: map[string]*Report{}}
}

// Upsert stores or replaces a report.
func (m *MemoryBackend) Upsert(ctx context.Context, r *Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.reports[r.ID] = &cp
	return nil
}

// GetByID returns the report or fault.ErrNotFound.
func (m *MemoryBackend) GetByID(ctx context.Context, id string) (*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	if !ok {
		return nil, fault.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// ListByEntity returns non-archived reports referencing the entity, newest
// first.
func (m *MemoryBackend) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Report
	for _, r := range m.reports {
		if r.Archived {
			continue
		}
		for _, id := range r.EntityRefs[entityType] {
			if id == entityID {
				cp := *r
				out = append(out, &cp)
				break
			}
		}
	}
	sortReportsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListSince returns non-archived reports created at or after the cutoff,
// newest first.
func (m *MemoryBackend) ListSince(ctx context.Context, since time.Time, limit int) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Report
	for _, r := range m.reports {
		if r.Archived || r.CreatedAt.Before(since) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortReportsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Candidates returns non-archived reports whose text, tags, or keywords
// touch any query term, newest first.
func (m *MemoryBackend) Candidates(ctx context.Context, terms []string, limit int) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Report
	for _, r := range m.reports {
		if r.Archived || !matchesAnyTerm(r, terms) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortReportsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SimilarByVector scores non-archived reports in-process by cosine
// similarity.
func (m *MemoryBackend) SimilarByVector(ctx context.Context, vec []float32, limit int) ([]*Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		r   *Report
		sim float64
	}
	var all []scored
	for _, r := range m.reports {
		if r.Archived {
			continue
		}
		cp := *r
		all = append(all, scored{&cp, embed.Cosine(vec, r.Embedding)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].sim > all[j].sim })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*Report, len(all))
	for i, s := range all {
		out[i] = s.r
	}
	return out, nil
}

// RecordAccess bumps access counts for each id.
func (m *MemoryBackend) RecordAccess(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for _, id := range ids {
		if r, ok := m.reports[id]; ok {
			r.AccessCount++
			ts := now
			r.LastAccessed = &ts
		}
	}
	return nil
}

// Archive marks the report archived and appends the entry, assigning the
// next version number for that report.
func (m *MemoryBackend) Archive(ctx context.Context, id string, entry *ArchiveEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return fault.ErrNotFound
	}
	r.Archived = true

	version := 1
	for _, e := range m.archive {
		if e.ReportID == id {
			version++
		}
	}
	cp := *entry
	cp.Version = version
	m.archive = append(m.archive, &cp)
	entry.Version = version
	return nil
}

// ArchiveEntries returns the archive log for a report, oldest first.
func (m *MemoryBackend) ArchiveEntries(reportID string) []*ArchiveEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ArchiveEntry
	for _, e := range m.archive {
		if e.ReportID == reportID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}

// matchesAnyTerm recalls on text containment plus exact tag and keyword set
// membership, mirroring the scoring contract.
func matchesAnyTerm(r *Report, terms []string) bool {
	text := strings.ToLower(r.SearchText)
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
		for _, tag := range r.Tags {
			if tag == term {
				return true
			}
		}
		for _, kw := range r.Keywords {
			if kw == term {
				return true
			}
		}
	}
	return false
}

func sortReportsNewestFirst(reports []*Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		return reports[i].CreatedAt.After(reports[j].CreatedAt)
	})
}
