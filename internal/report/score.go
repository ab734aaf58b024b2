package report

import (
	"strings"
	"time"

	"github.com/nidhogg/hindsight/internal/embed"
)

// Scoring weights. Tag matches dominate raw term occurrences so that a
// report explicitly tagged for a failure mode outranks one that merely
// mentions the words.
const (
	termWeight    = 2.0
	tagWeight     = 5.0
	keywordWeight = 3.0

	recencyCeiling = 10.0
	recencyDecay   = 30.0
)

// relevanceScore ranks a report against query terms:
// 2 per term occurrence in the search text, 5 per exact tag match, 3 per
// exact keyword match, plus a recency bonus that starts at 10 and loses one
// point per 30 days of age. Tag and keyword matching is set membership, not
// substring: the term "bearing" does not score against the tag
// "bearing_failure".
func relevanceScore(r *Report, terms []string, now time.Time) float64 {
	text := strings.ToLower(r.SearchText)

	var score float64
	for _, term := range terms {
		score += termWeight * float64(strings.Count(text, term))
		for _, tag := range r.Tags {
			if tag == term {
				score += tagWeight
			}
		}
		for _, kw := range r.Keywords {
			if kw == term {
				score += keywordWeight
			}
		}
	}

	daysOld := now.Sub(r.CreatedAt).Hours() / 24
	if recency := recencyCeiling - daysOld/recencyDecay; recency > 0 {
		score += recency
	}
	return score
}

// queryTerms tokenizes a free-text query into scoring terms.
func queryTerms(query string) []string {
	return embed.Tokenize(query)
}
