package embed

import "context"

// Provider generates vector embeddings from text.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Default dimensions. The native dimension drives all similarity math; the
// target dimension only matters when a backing store schema expects wider
// vectors.
const (
	DefaultDimension       = 384
	DefaultTargetDimension = 1536
)
