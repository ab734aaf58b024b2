package history

import (
	"fmt"
	"sort"
	"time"

	"github.com/nidhogg/hindsight/internal/event"
	"github.com/nidhogg/hindsight/internal/pattern"
	"github.com/nidhogg/hindsight/internal/report"
)

// OutcomeSummary tallies how similar past occurrences ended.
type OutcomeSummary struct {
	Total              int     `json:"total"`
	Succeeded          int     `json:"succeeded"`
	Failed             int     `json:"failed"`
	Pending            int     `json:"pending"`
	SuccessRate        float64 `json:"success_rate"`
	AvgResolutionHours float64 `json:"avg_resolution_hours,omitempty"`
}

// Resolution describes how one past occurrence was resolved.
type Resolution struct {
	Method      string `json:"method"`
	FailureType string `json:"failure_type,omitempty"`
	EntityID    string `json:"entity_id,omitempty"`
}

// HistoricalPatterns summarizes recurring elements across similar events.
type HistoricalPatterns struct {
	FrequentFailures []pattern.Counted `json:"frequent_failures,omitempty"`
	FrequentEntities []pattern.Counted `json:"frequent_entities,omitempty"`
	Resolutions      []Resolution      `json:"resolutions,omitempty"`
}

const patternTopN = 5

// summarizeOutcomes tallies event outcomes by payload status. Statuses
// completed, resolved, and success count as successes; failed and error as
// failures; anything else is pending.
func summarizeOutcomes(events []*event.Event) *OutcomeSummary {
	s := &OutcomeSummary{Total: len(events)}
	var resolutionHours float64
	var resolved int

	for _, e := range events {
		switch status(e) {
		case "completed", "resolved", "success":
			s.Succeeded++
			if h, ok := resolutionTime(e); ok {
				resolutionHours += h
				resolved++
			}
		case "failed", "error":
			s.Failed++
		default:
			s.Pending++
		}
	}

	if s.Total > 0 {
		s.SuccessRate = 100 * float64(s.Succeeded) / float64(s.Total)
	}
	if resolved > 0 {
		s.AvgResolutionHours = resolutionHours / float64(resolved)
	}
	return s
}

// extractPatterns collects recurring failure types, entities, and resolution
// methods from similar events.
func extractPatterns(events []*event.Event) *HistoricalPatterns {
	failures := map[string]int{}
	entities := map[string]int{}
	var resolutions []Resolution

	for _, e := range events {
		ft, _ := e.Payload["failure_type"].(string)
		eid, _ := e.Payload["equipment_id"].(string)
		if ft != "" {
			failures[ft]++
		}
		if eid != "" {
			entities[eid]++
		}
		if method, ok := e.Payload["resolution_method"].(string); ok && method != "" {
			resolutions = append(resolutions, Resolution{Method: method, FailureType: ft, EntityID: eid})
		}
	}

	return &HistoricalPatterns{
		FrequentFailures: topCounted(failures, patternTopN),
		FrequentEntities: topCounted(entities, patternTopN),
		Resolutions:      resolutions,
	}
}

// buildRecommendations derives up to five advisory strings from outcomes,
// resolutions, and highly relevant reports.
func buildRecommendations(outcomes *OutcomeSummary, patterns *HistoricalPatterns, reports []report.Ranked) []string {
	var recs []string

	if outcomes.Total > 0 {
		switch {
		case outcomes.SuccessRate > 70:
			recs = append(recs, fmt.Sprintf("similar occurrences resolved successfully %.0f%% of the time; established procedures apply", outcomes.SuccessRate))
		case outcomes.SuccessRate < 40:
			recs = append(recs, fmt.Sprintf("similar occurrences resolved successfully only %.0f%% of the time; escalate early", outcomes.SuccessRate))
		}
	}

	if method := mostCommonMethod(patterns.Resolutions); method != "" {
		recs = append(recs, fmt.Sprintf("most common successful resolution: %s", method))
	}
	if outcomes.AvgResolutionHours > 0 {
		recs = append(recs, fmt.Sprintf("past occurrences took %.1f hours on average to resolve", outcomes.AvgResolutionHours))
	}

	relevant := 0
	for _, rr := range reports {
		if rr.Relevance > 5 {
			relevant++
		}
	}
	if relevant > 0 {
		recs = append(recs, fmt.Sprintf("%d highly relevant report(s) available; review before acting", relevant))
	}

	if len(recs) > maxRecommendations {
		recs = recs[:maxRecommendations]
	}
	return recs
}

func mostCommonMethod(resolutions []Resolution) string {
	counts := map[string]int{}
	for _, r := range resolutions {
		counts[r.Method]++
	}
	top := topCounted(counts, 1)
	if len(top) == 0 {
		return ""
	}
	return top[0].Name
}

func status(e *event.Event) string {
	s, _ := e.Payload["status"].(string)
	return s
}

// resolutionTime returns hours between the event and its resolved_at payload
// timestamp, when present and parseable.
func resolutionTime(e *event.Event) (float64, bool) {
	raw, ok := e.Payload["resolved_at"].(string)
	if !ok || raw == "" {
		return 0, false
	}
	resolved, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, false
	}
	h := resolved.Sub(e.Timestamp).Hours()
	if h < 0 {
		return 0, false
	}
	return h, true
}

func topCounted(counts map[string]int, n int) []pattern.Counted {
	out := make([]pattern.Counted, 0, len(counts))
	for name, count := range counts {
		out = append(out, pattern.Counted{Name: name, Count: count})
	}
	// Count descending, name ascending for stable output.
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
