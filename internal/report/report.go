// Package report implements the embedding-indexed report store with
// multi-signal relevance ranking. Reports carry automatically derived tags
// and keywords so retrieval works without manual curation.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nidhogg/hindsight/internal/embed"
)

// Report is an analytical document: a typed core, free-form content, and
// derived retrieval metadata. Archived reports stay queryable by id but are
// excluded from search.
type Report struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Summary      string              `json:"summary,omitempty"`
	Content      map[string]any      `json:"content"`
	ReportType   string              `json:"report_type"`
	Tags         []string            `json:"tags,omitempty"`
	Keywords     []string            `json:"keywords,omitempty"`
	EntityRefs   map[string][]string `json:"entity_refs,omitempty"`
	Embedding    []float32           `json:"-"`
	SearchText   string              `json:"-"`
	AccessCount  int64               `json:"access_count"`
	LastAccessed *time.Time          `json:"last_accessed,omitempty"`
	CreatedAt    time.Time           `json:"created_at"`
	Archived     bool                `json:"archived,omitempty"`
}

const maxKeywords = 10

// failureVocab maps substrings in report text to failure-mode tags.
var failureVocab = []struct{ needle, tag string }{
	{"bearing", "bearing_failure"},
	{"motor", "motor_issue"},
	{"pump", "pump_failure"},
	{"overheat", "overheating"},
	{"cavitation", "cavitation"},
}

// keywordVocab is the fixed domain vocabulary scanned for keyword matches.
var keywordVocab = []string{
	"failure", "maintenance", "repair", "urgent", "critical",
	"bearing", "motor", "pump", "sensor", "temperature",
	"pressure", "vibration", "wear", "leak", "damage",
	"preventive", "corrective", "emergency", "scheduled",
}

// searchableText builds the embedded text projection: title, summary, and
// the action-oriented content fields.
func searchableText(r *Report) string {
	parts := []string{r.Title}
	if r.Summary != "" {
		parts = append(parts, r.Summary)
	}
	for _, key := range []string{"recommended_actions", "recommendations", "safety_instructions"} {
		parts = append(parts, contentLines(r.Content, key)...)
	}
	return strings.Join(parts, " ")
}

// contentLines extracts a content field as text lines, accepting either a
// string or a list of strings.
func contentLines(content map[string]any, key string) []string {
	switch v := content[key].(type) {
	case string:
		if v != "" {
			return []string{v}
		}
	case []string:
		return v
	case []any:
		var lines []string
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				lines = append(lines, s)
			}
		}
		return lines
	}
	return nil
}

// deriveTags builds the retrieval tag set: equipment references, failure
// modes found in the text, priority and status from content, and the
// creation year and month. Tags are deduplicated and sorted.
func deriveTags(r *Report) []string {
	seen := map[string]bool{}

	for _, id := range r.EntityRefs["equipment"] {
		seen["equipment_"+strings.ToLower(id)] = true
	}

	text := strings.ToLower(r.SearchText)
	for _, fv := range failureVocab {
		if strings.Contains(text, fv.needle) {
			seen[fv.tag] = true
		}
	}

	if p, ok := r.Content["priority"].(string); ok && p != "" {
		seen["priority_"+strings.ToLower(p)] = true
	}
	if s, ok := r.Content["status"].(string); ok && s != "" {
		seen["status_"+strings.ToLower(s)] = true
	}

	seen[fmt.Sprintf("year_%d", r.CreatedAt.Year())] = true
	seen[fmt.Sprintf("month_%02d", int(r.CreatedAt.Month()))] = true

	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// deriveKeywords scans the search text tokens against the fixed vocabulary,
// preserving vocabulary order, capped at 10.
func deriveKeywords(r *Report) []string {
	present := map[string]bool{}
	for _, tok := range embed.Tokenize(r.SearchText) {
		present[tok] = true
	}

	var keywords []string
	for _, kw := range keywordVocab {
		if present[kw] {
			keywords = append(keywords, kw)
			if len(keywords) == maxKeywords {
				break
			}
		}
	}
	return keywords
}
