package pattern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/hindsight/internal/fault"
	"github.com/nidhogg/hindsight/internal/report"
	"go.uber.org/zap"
)

const (
	topN        = 5
	analysisCap = 500

	defaultAnalysisDays = 365
)

// Counted is a named occurrence count.
type Counted struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// SystemPatterns summarizes system-wide report history over a window.
type SystemPatterns struct {
	WindowDays     int            `json:"window_days"`
	TotalReports   int            `json:"total_reports"`
	FailureTypes   []Counted      `json:"failure_types,omitempty"`
	CommonTags     []Counted      `json:"common_tags,omitempty"`
	ReportsByMonth map[string]int `json:"reports_by_month,omitempty"`
	AvgPerMonth    float64        `json:"avg_per_month"`
	Trend          Trend          `json:"trend"`
	Insights       []string       `json:"insights,omitempty"`
}

// EntityPatterns summarizes failure history for one equipment entity.
type EntityPatterns struct {
	EntityID     string    `json:"entity_id"`
	HasData      bool      `json:"has_data"`
	TotalReports int       `json:"total_reports"`
	FailureTypes []Counted `json:"failure_types,omitempty"`
	AvgCost      float64   `json:"avg_cost,omitempty"`
	Frequency    float64   `json:"frequency_per_day"`
	Risk         Risk      `json:"risk,omitempty"`
}

// Recognizer computes patterns over the report index.
type Recognizer struct {
	reports *report.Index
	logger  *zap.Logger
}

// NewRecognizer creates a pattern recognizer.
func NewRecognizer(reports *report.Index, logger *zap.Logger) *Recognizer {
	return &Recognizer{reports: reports, logger: logger}
}

// Analyze summarizes report history over the last days. Non-positive days
// default to a one-year window.
func (r *Recognizer) Analyze(ctx context.Context, days int) (*SystemPatterns, error) {
	if days <= 0 {
		days = defaultAnalysisDays
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	reports, err := r.reports.ListSince(ctx, since, analysisCap)
	if err != nil {
		if fault.IsBackendUnavailable(err) {
			r.logger.Warn("pattern analysis degraded", zap.Error(err))
			return &SystemPatterns{WindowDays: days, Trend: TrendInsufficientData}, nil
		}
		return nil, err
	}

	p := &SystemPatterns{
		WindowDays:     days,
		TotalReports:   len(reports),
		ReportsByMonth: map[string]int{},
		Trend:          TrendInsufficientData,
	}
	if len(reports) == 0 {
		return p, nil
	}

	failures := map[string]int{}
	tags := map[string]int{}
	for _, rep := range reports {
		if ft, ok := rep.Content["failure_type"].(string); ok && ft != "" {
			failures[ft]++
		}
		for _, tag := range rep.Tags {
			tags[tag]++
		}
		p.ReportsByMonth[rep.CreatedAt.Format("2006-01")]++
	}
	p.FailureTypes = topCounted(failures, topN)
	p.CommonTags = topCounted(tags, topN)
	p.AvgPerMonth = float64(len(reports)) / float64(len(p.ReportsByMonth))

	// Month counts in chronological order drive the trend.
	months := make([]string, 0, len(p.ReportsByMonth))
	for m := range p.ReportsByMonth {
		months = append(months, m)
	}
	sort.Strings(months)
	series := make([]float64, len(months))
	for i, m := range months {
		series[i] = float64(p.ReportsByMonth[m])
	}
	p.Trend = TrendOf(series)

	p.Insights = buildInsights(p)
	return p, nil
}

// PatternsForEntity summarizes failure history for one equipment entity
// based on the reports referencing it.
func (r *Recognizer) PatternsForEntity(ctx context.Context, entityID string) (*EntityPatterns, error) {
	if entityID == "" {
		return nil, fault.Validation("entity_id", "must not be empty")
	}

	reports, err := r.reports.HistoryForEntity(ctx, "equipment", entityID, analysisCap)
	if err != nil {
		if fault.IsBackendUnavailable(err) {
			r.logger.Warn("entity pattern analysis degraded", zap.Error(err))
			return &EntityPatterns{EntityID: entityID}, nil
		}
		return nil, err
	}
	if len(reports) == 0 {
		return &EntityPatterns{EntityID: entityID}, nil
	}

	p := &EntityPatterns{
		EntityID:     entityID,
		HasData:      true,
		TotalReports: len(reports),
	}

	failures := map[string]int{}
	var costSum float64
	var costCount int
	oldest, newest := reports[0].CreatedAt, reports[0].CreatedAt
	for _, rep := range reports {
		if ft, ok := rep.Content["failure_type"].(string); ok && ft != "" {
			failures[ft]++
		}
		if cost, ok := asFloat(rep.Content["estimated_cost"]); ok {
			costSum += cost
			costCount++
		}
		if rep.CreatedAt.Before(oldest) {
			oldest = rep.CreatedAt
		}
		if rep.CreatedAt.After(newest) {
			newest = rep.CreatedAt
		}
	}
	p.FailureTypes = topCounted(failures, topN)
	if costCount > 0 {
		p.AvgCost = costSum / float64(costCount)
	}

	spanDays := newest.Sub(oldest).Hours() / 24
	if spanDays < 1 {
		spanDays = 1
	}
	p.Frequency = float64(len(reports)) / spanDays
	p.Risk = RiskFor(p.Frequency)
	return p, nil
}

func buildInsights(p *SystemPatterns) []string {
	var insights []string
	if len(p.FailureTypes) > 0 {
		top := p.FailureTypes[0]
		insights = append(insights, fmt.Sprintf("most common failure type: %s (%d reports)", top.Name, top.Count))
	}
	switch p.Trend {
	case TrendIncreasing:
		insights = append(insights, "report volume is trending up; recent months exceed the earliest by more than 20%")
	case TrendDecreasing:
		insights = append(insights, "report volume is trending down compared with the earliest months")
	}
	insights = append(insights, fmt.Sprintf("averaging %.1f reports per month across %d months", p.AvgPerMonth, len(p.ReportsByMonth)))
	return insights
}

// topCounted returns the n largest counts, ties broken by name, so results
// are stable across runs.
func topCounted(counts map[string]int, n int) []Counted {
	out := make([]Counted, 0, len(counts))
	for name, count := range counts {
		out = append(out, Counted{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
