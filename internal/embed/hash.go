package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

// HashProvider implements Provider with a deterministic hashed bag-of-words
// embedding. Each token maps to a fixed pseudo-random direction; the text
// vector is the term-frequency-weighted sum, unit-normalized. Identical
// input text (after lower-casing and trimming) yields bit-identical vectors
// on every call and across restarts, so previously stored embeddings stay
// comparable without re-embedding.
type HashProvider struct {
	dimension int
	target    int
}

// NewHashProvider creates a HashProvider with the given native dimension.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashProvider{dimension: dimension, target: dimension}
}

// NewPaddedHashProvider creates a HashProvider that zero-pads its vectors
// from the native dimension up to target, for schemas and collections sized
// for a wider external model. Padding does not change cosine similarities.
func NewPaddedHashProvider(dimension, target int) *HashProvider {
	p := NewHashProvider(dimension)
	if target > p.dimension {
		p.target = target
	}
	return p
}

// Embed returns one unit-length vector per input text. It never fails; empty
// or whitespace-only input yields the zero vector.
func (p *HashProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = Pad(p.embedOne(text), p.target)
	}
	return out, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	vec := make([]float64, p.dimension)

	tokens := Tokenize(strings.ToLower(strings.TrimSpace(text)))
	if len(tokens) == 0 {
		return make([]float32, p.dimension)
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	for tok, count := range counts {
		weight := float64(count)
		for i := range vec {
			vec[i] += weight * tokenComponent(tok, i)
		}
	}

	// Normalize to unit length.
	var mag float64
	for _, v := range vec {
		mag += v * v
	}
	mag = math.Sqrt(mag)

	out := make([]float32, p.dimension)
	if mag > 0 {
		for i, v := range vec {
			out[i] = float32(v / mag)
		}
	}
	return out
}

// tokenComponent maps a token to the i-th component of its fixed direction:
// one hash per dimension, seeded by the dimension index, mapped into [-1, 1).
func tokenComponent(token string, i int) float64 {
	sum := sha256.Sum256([]byte(token + "_" + strconv.Itoa(i)))
	u := binary.BigEndian.Uint32(sum[:4])
	return float64(u)/float64(1<<32)*2 - 1
}

// Dimension returns the emitted vector dimension, padding included.
func (p *HashProvider) Dimension() int {
	return p.target
}
