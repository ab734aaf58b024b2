// Package history assembles the full historical context for a new
// occurrence: similar past events, related reports, outcome statistics,
// recurring patterns, and advisory recommendations.
package history

import (
	"context"

	"github.com/nidhogg/hindsight/internal/event"
	"github.com/nidhogg/hindsight/internal/fault"
	"github.com/nidhogg/hindsight/internal/report"
	"go.uber.org/zap"
)

const (
	defaultLookbackDays = 365
	maxContextEvents    = 10
	maxContextReports   = 5
	maxRecommendations  = 5
)

// Context is the aggregated historical view for one occurrence. Degraded
// marks a context assembled while a persistence collaborator was
// unreachable; such contexts are advisory and possibly incomplete.
type Context struct {
	Query              string              `json:"query"`
	SimilarEvents      []*event.Event      `json:"similar_events"`
	TotalSimilarEvents int                 `json:"total_similar_events"`
	RelatedReports     []report.Ranked     `json:"related_reports"`
	Outcomes           *OutcomeSummary     `json:"outcomes"`
	Patterns           *HistoricalPatterns `json:"patterns"`
	Recommendations    []string            `json:"recommendations"`
	LookbackDays       int                 `json:"lookback_days"`
	Degraded           bool                `json:"degraded,omitempty"`
}

// Aggregator assembles contexts from the event store and the report index.
type Aggregator struct {
	events   *event.Store
	reports  *report.Index
	narrator Narrator
	logger   *zap.Logger
}

// NewAggregator creates a historical context aggregator.
func NewAggregator(events *event.Store, reports *report.Index, logger *zap.Logger) *Aggregator {
	return &Aggregator{events: events, reports: reports, logger: logger}
}

// GetHistoricalContext builds the aggregated context for an occurrence
// described by its event type and reference data. Non-positive lookback
// defaults to one year. Unreachable backends degrade the context to its
// reachable parts instead of failing the caller.
func (a *Aggregator) GetHistoricalContext(ctx context.Context, eventType string, data map[string]any, lookbackDays int) (*Context, error) {
	if eventType == "" {
		return nil, fault.Validation("event_type", "must not be empty")
	}
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}

	c := &Context{
		Query:        event.BuildSearchQuery(eventType, data),
		LookbackDays: lookbackDays,
	}

	similar, err := a.events.QuerySimilar(ctx, eventType, data, lookbackDays)
	if err != nil {
		if !fault.IsBackendUnavailable(err) {
			return nil, err
		}
		a.logger.Warn("historical context degraded, event store unreachable", zap.Error(err))
		c.Degraded = true
		similar = nil
	}

	c.TotalSimilarEvents = len(similar)
	c.SimilarEvents = similar
	if len(c.SimilarEvents) > maxContextEvents {
		c.SimilarEvents = c.SimilarEvents[:maxContextEvents]
	}

	sc := searchContextFor(data)
	result, err := a.reports.RetrieveSimilar(ctx, c.Query, sc, maxContextReports)
	if err != nil {
		if !fault.IsBackendUnavailable(err) {
			return nil, err
		}
		a.logger.Warn("historical context degraded, report index unreachable", zap.Error(err))
		c.Degraded = true
		result = &report.SearchResult{}
	}
	if result.Degraded {
		c.Degraded = true
	}
	c.RelatedReports = result.Reports
	if c.RelatedReports == nil {
		c.RelatedReports = []report.Ranked{}
	}

	c.Outcomes = summarizeOutcomes(similar)
	c.Patterns = extractPatterns(similar)
	c.Recommendations = buildRecommendations(c.Outcomes, c.Patterns, c.RelatedReports)

	a.logger.Debug("historical context assembled",
		zap.String("type", eventType),
		zap.Int("similar_events", c.TotalSimilarEvents),
		zap.Int("reports", len(c.RelatedReports)),
		zap.Bool("degraded", c.Degraded))
	return c, nil
}

// searchContextFor narrows report retrieval to the referenced equipment
// when the occurrence names one.
func searchContextFor(data map[string]any) *report.SearchContext {
	if id, ok := data["equipment_id"].(string); ok && id != "" {
		return &report.SearchContext{EquipmentID: id}
	}
	return nil
}
