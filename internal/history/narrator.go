package history

import (
	"context"
	"fmt"
	"strings"
)

// Narrator turns an assembled context into a prose summary. Implementations
// typically call a language model; the aggregator works without one.
type Narrator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// SetNarrator installs an optional prose summarizer.
func (a *Aggregator) SetNarrator(n Narrator) {
	a.narrator = n
}

// Summarize renders a context to prose through the configured narrator.
// Without a narrator it returns the empty string and no error.
func (a *Aggregator) Summarize(ctx context.Context, c *Context) (string, error) {
	if a.narrator == nil {
		return "", nil
	}
	return a.narrator.Generate(ctx, BuildPrompt(c))
}

// BuildPrompt flattens a context into a narration prompt.
func BuildPrompt(c *Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the historical context for: %s\n\n", c.Query)
	fmt.Fprintf(&b, "Similar past occurrences: %d (showing %d)\n", c.TotalSimilarEvents, len(c.SimilarEvents))

	if c.Outcomes != nil && c.Outcomes.Total > 0 {
		fmt.Fprintf(&b, "Outcomes: %d succeeded, %d failed, %d pending (%.0f%% success rate)\n",
			c.Outcomes.Succeeded, c.Outcomes.Failed, c.Outcomes.Pending, c.Outcomes.SuccessRate)
		if c.Outcomes.AvgResolutionHours > 0 {
			fmt.Fprintf(&b, "Average resolution time: %.1f hours\n", c.Outcomes.AvgResolutionHours)
		}
	}

	if c.Patterns != nil {
		for _, f := range c.Patterns.FrequentFailures {
			fmt.Fprintf(&b, "Recurring failure: %s (%d times)\n", f.Name, f.Count)
		}
	}

	if len(c.RelatedReports) > 0 {
		b.WriteString("\nRelated reports:\n")
		for _, rr := range c.RelatedReports {
			fmt.Fprintf(&b, "- %s (relevance %.1f)\n", rr.Report.Title, rr.Relevance)
		}
	}

	if len(c.Recommendations) > 0 {
		b.WriteString("\nRecommendations:\n")
		for _, r := range c.Recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}

	if c.Degraded {
		b.WriteString("\nNote: parts of the history were unreachable; this context may be incomplete.\n")
	}
	return b.String()
}
