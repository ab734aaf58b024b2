package report

import (
	"context"
	"time"
)

// ArchiveEntry records one archival of a report.
type ArchiveEntry struct {
	ID         string    `json:"id"`
	ReportID   string    `json:"report_id"`
	Version    int       `json:"version"`
	Reason     string    `json:"reason,omitempty"`
	ArchivedBy string    `json:"archived_by,omitempty"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Backend is the persistence collaborator behind the report index.
type Backend interface {
	Upsert(ctx context.Context, r *Report) error
	// GetByID returns fault.ErrNotFound when no such report exists.
	GetByID(ctx context.Context, id string) (*Report, error)
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*Report, error)
	ListSince(ctx context.Context, since time.Time, limit int) ([]*Report, error)
	// Candidates returns non-archived reports whose text, tags, or keywords
	// touch any of the query terms, newest first.
	Candidates(ctx context.Context, terms []string, limit int) ([]*Report, error)
	// SimilarByVector returns non-archived reports ordered by descending
	// cosine similarity to vec.
	SimilarByVector(ctx context.Context, vec []float32, limit int) ([]*Report, error)
	// RecordAccess bumps access counts and timestamps, best effort.
	RecordAccess(ctx context.Context, ids []string) error
	// Archive marks the report archived and appends the archive entry.
	Archive(ctx context.Context, id string, entry *ArchiveEntry) error
}
