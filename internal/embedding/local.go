package embedding

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// LocalProvider is a deterministic, offline embedder. Each token hashes to a
// handful of vector positions, weighted by term frequency. The vectors carry
// no semantics beyond lexical overlap, which is enough for corpus-example
// similarity when no embeddings API is configured, and keeps tests hermetic.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates a deterministic local embedder.
func NewLocalProvider(cfg Config) *LocalProvider {
	dim := cfg.Dimension
	if dim <= 0 {
		dim = 256
	}
	return &LocalProvider{dimension: dim}
}

// Embed produces one L2-normalized vector per input text. Never fails.
func (p *LocalProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		out = append(out, p.embedOne(t))
	}
	return out, nil
}

func (p *LocalProvider) embedOne(text string) []float32 {
	vec := make([]float32, p.dimension)
	tokens := strings.Fields(strings.ToLower(text))
	for _, tok := range tokens {
		tok = strings.Trim(tok, ".,;:!?'\"()?")
		if len(tok) < 2 {
			continue
		}
		// Spread each token over three positions to soften hash collisions.
		for salt := 0; salt < 3; salt++ {
			h := fnv.New32a()
			h.Write([]byte(tok))
			h.Write([]byte{byte(salt)})
			idx := int(h.Sum32()) % p.dimension
			if idx < 0 {
				idx += p.dimension
			}
			vec[idx] += 1
		}
	}

	var mag float64
	for _, v := range vec {
		mag += float64(v) * float64(v)
	}
	if mag > 0 {
		norm := float32(1 / math.Sqrt(mag))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec
}

// Dimension returns the configured vector dimension.
func (p *LocalProvider) Dimension() int { return p.dimension }
