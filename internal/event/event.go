// Package event implements the append-only log of system occurrences. Each
// event carries a typed core plus an opaque payload map; only the
// search-relevant payload fields are ever interpreted.
package event

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Event is an immutable record of something that happened in the system.
// Events are never updated, only superseded by later events.
type Event struct {
	ID         string              `json:"id"`
	Type       string              `json:"event_type"`
	Payload    map[string]any      `json:"payload"`
	EntityRefs map[string][]string `json:"entity_refs,omitempty"`
	Tags       []string            `json:"tags,omitempty"`
	UserID     string              `json:"user_id,omitempty"`
	Timestamp  time.Time           `json:"timestamp"`
	Embedding  []float32           `json:"-"`
	SearchText string              `json:"-"`

	// Similarity is set on results returned by similarity queries.
	Similarity float64 `json:"similarity_score,omitempty"`
}

const maxTags = 10

// searchableText builds the text projection that gets embedded: the event
// type plus every scalar payload value. Keys are sorted so the projection is
// stable across runs; only values enter the projection to keep it compact.
func searchableText(eventType string, payload map[string]any) string {
	parts := []string{strings.ReplaceAll(eventType, "_", " ")}

	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := payload[k].(type) {
		case string:
			parts = append(parts, v)
		case int, int64, float64, bool:
			parts = append(parts, fmt.Sprintf("%v", v))
		}
	}
	return strings.Join(parts, " ")
}

// extractTags derives up to 10 tags from the event: its type, the entity
// type if present, and severity if present.
func extractTags(eventType string, payload map[string]any) []string {
	tags := []string{eventType}

	if et, ok := payload["entity_type"].(string); ok && et != "" {
		tags = append(tags, et)
	}
	if sev, ok := payload["severity"].(string); ok && sev != "" {
		tags = append(tags, "severity_"+sev)
	}

	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	return tags
}

// BuildSearchQuery turns reference data into a search query string: the
// event type plus failure, equipment, and description fields when present.
// Free-text descriptions are truncated to 100 characters.
func BuildSearchQuery(eventType string, data map[string]any) string {
	parts := []string{strings.ReplaceAll(eventType, "_", " ")}

	for _, key := range []string{"failure_type", "failure_mode", "predicted_failure", "equipment_id", "equipment_type", "equipment_name"} {
		if v, ok := data[key].(string); ok && v != "" {
			parts = append(parts, v)
		}
	}
	if desc, ok := data["description"].(string); ok && desc != "" {
		if len(desc) > 100 {
			desc = desc[:100]
		}
		parts = append(parts, desc)
	}

	return strings.Join(parts, " ")
}
