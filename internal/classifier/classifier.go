package classifier

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/terrava/agrocore/internal/embedding"
	"github.com/terrava/agrocore/internal/provider"
	"github.com/terrava/agrocore/internal/route"
	"github.com/terrava/agrocore/internal/vectorstore"
	"go.uber.org/zap"
)

// Method names used in score breakdowns.
const (
	MethodKeyword   = "keyword"
	MethodPattern   = "pattern"
	MethodEmbedding = "embedding"
	MethodModel     = "model"
)

// Weights controls how much each scoring method contributes. They must sum to 1.
type Weights struct {
	Keyword   float64 `json:"keyword"`
	Pattern   float64 `json:"pattern"`
	Embedding float64 `json:"embedding"`
	Model     float64 `json:"model"`
}

// DefaultWeights returns the production weighting.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.2, Pattern: 0.25, Embedding: 0.3, Model: 0.25}
}

// Validate checks the weights sum to 1 within floating-point tolerance.
func (w Weights) Validate() error {
	sum := w.Keyword + w.Pattern + w.Embedding + w.Model
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("classifier weights sum to %f, want 1", sum)
	}
	return nil
}

// Candidate is one scored destination.
type Candidate struct {
	Destination route.Destination  `json:"destination"`
	Score       float64            `json:"score"`
	Breakdown   map[string]float64 `json:"breakdown"`
}

// Result is the combined classification outcome.
type Result struct {
	Primary    route.Destination `json:"primary"`
	Confidence float64           `json:"confidence"`
	Secondary  []Candidate       `json:"secondary"`
	Breakdown  map[string]float64 `json:"breakdown"`
}

// Index is an optional vector index holding corpus-example embeddings.
// *vectorstore.Client satisfies it.
type Index interface {
	EnsureCollection(ctx context.Context, name string, dimension uint64) error
	Upsert(ctx context.Context, collection, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, collection string, vector []float32, topK uint64) ([]*vectorstore.SearchResult, error)
}

// Options tunes a Classifier beyond its required collaborators.
type Options struct {
	Weights     Weights
	CacheSize   int
	CallTimeout time.Duration
	Index       Index
	Collection  string
}

// Classifier combines four scoring methods over the destination registry.
// One instance is shared across all runs; the memo cache and corpus vectors
// are guarded for concurrent access.
type Classifier struct {
	registry  *Registry
	embedder  embedding.Provider
	completer provider.Completer

	index      Index
	collection string

	weights     Weights
	memo        *memoCache
	callTimeout time.Duration

	corpus map[route.Destination][][]float32
	logger *zap.Logger
}

// New creates a Classifier. embedder may be nil to disable the embedding
// scorer; completer may be nil to disable the external-model scorer.
func New(reg *Registry, embedder embedding.Provider, completer provider.Completer, opts Options, logger *zap.Logger) (*Classifier, error) {
	if opts.Weights == (Weights{}) {
		opts.Weights = DefaultWeights()
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.Collection == "" {
		opts.Collection = "corpus_examples"
	}
	return &Classifier{
		registry:    reg,
		embedder:    embedder,
		completer:   completer,
		index:       opts.Index,
		collection:  opts.Collection,
		weights:     opts.Weights,
		memo:        newMemoCache(opts.CacheSize),
		callTimeout: opts.CallTimeout,
		corpus:      make(map[route.Destination][][]float32),
		logger:      logger,
	}, nil
}

// Warm pre-computes corpus-example embeddings. With an index configured the
// vectors are also upserted so later searches run server-side. Warm is called
// once at startup, before any Classify.
func (c *Classifier) Warm(ctx context.Context) error {
	if c.embedder == nil {
		return nil
	}

	if c.index != nil {
		if err := c.index.EnsureCollection(ctx, c.collection, uint64(c.embedder.Dimension())); err != nil {
			return fmt.Errorf("ensure corpus collection: %w", err)
		}
	}

	for dest, profile := range c.registry.Profiles() {
		vecs, err := c.embedder.Embed(ctx, profile.Examples)
		if err != nil {
			return fmt.Errorf("embed corpus for %s: %w", dest, err)
		}
		c.corpus[dest] = vecs

		if c.index != nil {
			for i, vec := range vecs {
				payload := map[string]string{
					"destination": string(dest),
					"example":     profile.Examples[i],
				}
				if err := c.index.Upsert(ctx, c.collection, uuid.New().String(), vec, payload); err != nil {
					return fmt.Errorf("upsert corpus point: %w", err)
				}
			}
		}
	}
	c.logger.Info("classifier corpus warmed",
		zap.Int("destinations", len(c.corpus)),
		zap.Bool("indexed", c.index != nil))
	return nil
}

// Classify scores the query against every destination and returns the ranked
// result. It never fails: methods that error contribute an empty score map,
// and a fully empty combination falls back to the general destination.
func (c *Classifier) Classify(ctx context.Context, query string, qctx map[string]string) *Result {
	key := memoKey(query, qctx)
	if cached, ok := c.memo.get(key); ok {
		return cached
	}

	lower := strings.ToLower(query)
	ctxText := contextText(qctx)

	maps := map[string]map[route.Destination]float64{
		MethodKeyword:   c.scoreKeywords(lower),
		MethodPattern:   c.scorePatterns(query),
		MethodEmbedding: c.scoreEmbedding(ctx, query, ctxText),
		MethodModel:     c.scoreModel(ctx, query, ctxText),
	}

	result := c.combine(maps)
	c.memo.put(key, result)
	return result
}

// scoreKeywords implements match-ratio plus per-match boost.
func (c *Classifier) scoreKeywords(lower string) map[route.Destination]float64 {
	scores := make(map[route.Destination]float64)
	for dest, profile := range c.registry.Profiles() {
		var matches int
		for _, kw := range profile.Keywords {
			if strings.Contains(lower, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		scores[dest] = float64(matches)/float64(len(profile.Keywords)) + profile.Boost*float64(matches)
	}
	return scores
}

// scorePatterns implements match-ratio plus a single boost on any match.
func (c *Classifier) scorePatterns(query string) map[route.Destination]float64 {
	scores := make(map[route.Destination]float64)
	for dest, profile := range c.registry.Profiles() {
		if len(profile.Patterns) == 0 {
			continue
		}
		var matches int
		for _, p := range profile.Patterns {
			if p.MatchString(query) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		scores[dest] = float64(matches)/float64(len(profile.Patterns)) + profile.Boost
	}
	return scores
}

// scoreEmbedding compares the query vector against corpus examples, taking
// the max similarity per destination and min-max normalizing across them.
func (c *Classifier) scoreEmbedding(ctx context.Context, query, ctxText string) map[route.Destination]float64 {
	if c.embedder == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	text := query
	if ctxText != "" {
		text = query + "\n" + ctxText
	}
	vecs, err := c.embedder.Embed(callCtx, []string{text})
	if err != nil || len(vecs) == 0 {
		c.logger.Warn("embedding scorer unavailable", zap.Error(err))
		return nil
	}
	qvec := vecs[0]

	// Every destination participates in normalization; unmatched ones stay 0.
	raw := make(map[route.Destination]float64)
	for dest := range c.registry.Profiles() {
		raw[dest] = 0
	}
	if c.index != nil {
		hits, err := c.index.Search(callCtx, c.collection, qvec, 8)
		if err != nil {
			c.logger.Warn("corpus index search failed, falling back to in-memory", zap.Error(err))
		} else {
			for _, h := range hits {
				dest := route.Destination(h.Payload["destination"])
				if !dest.Valid() {
					continue
				}
				if s := float64(h.Score); s > raw[dest] {
					raw[dest] = s
				}
			}
			return normalize(raw)
		}
	}

	for dest, vecs := range c.corpus {
		var best float64
		for _, v := range vecs {
			if s := embedding.Cosine(qvec, v); s > best {
				best = s
			}
		}
		if best > 0 {
			raw[dest] = best
		}
	}
	return normalize(raw)
}

// scoreModel delegates to the completion service's classification contract.
// Any failure, including unparsable output, yields an empty map.
func (c *Classifier) scoreModel(ctx context.Context, query, ctxText string) map[route.Destination]float64 {
	if c.completer == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	cls, err := provider.Classify(callCtx, c.completer, c.registry.Labels(), query, ctxText)
	if err != nil {
		c.logger.Warn("model scorer unavailable", zap.Error(err))
		return nil
	}

	scores := make(map[route.Destination]float64)
	primary := route.Destination(cls.Primary)
	if primary.Valid() {
		scores[primary] = cls.Confidence
	}
	for _, s := range cls.Secondary {
		dest := route.Destination(s)
		if dest.Valid() && dest != primary {
			scores[dest] = cls.Confidence * 0.5
		}
	}
	return scores
}

// combine folds the four score maps into a ranked result.
func (c *Classifier) combine(maps map[string]map[route.Destination]float64) *Result {
	combined := make(map[route.Destination]float64)
	breakdowns := make(map[route.Destination]map[string]float64)
	weights := map[string]float64{
		MethodKeyword:   c.weights.Keyword,
		MethodPattern:   c.weights.Pattern,
		MethodEmbedding: c.weights.Embedding,
		MethodModel:     c.weights.Model,
	}

	for method, scores := range maps {
		for dest, s := range scores {
			combined[dest] += weights[method] * s
			if breakdowns[dest] == nil {
				breakdowns[dest] = make(map[string]float64)
			}
			breakdowns[dest][method] = s
		}
	}

	if len(combined) == 0 {
		return &Result{
			Primary:    route.GeneralAgent,
			Confidence: 0.5,
			Breakdown:  map[string]float64{},
		}
	}

	ranked := make([]Candidate, 0, len(combined))
	for dest, s := range combined {
		ranked = append(ranked, Candidate{Destination: dest, Score: s, Breakdown: breakdowns[dest]})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Destination < ranked[j].Destination
	})

	primary := ranked[0]
	confidence := primary.Score
	if confidence > 1 {
		confidence = 1
	}

	var secondary []Candidate
	for _, cand := range ranked[1:] {
		if cand.Score > 0.3*primary.Score {
			secondary = append(secondary, cand)
		}
		if len(secondary) == 3 {
			break
		}
	}

	return &Result{
		Primary:    primary.Destination,
		Confidence: confidence,
		Secondary:  secondary,
		Breakdown:  primary.Breakdown,
	}
}

// normalize min-max scales scores across destinations. A flat spread carries
// no ranking information and contributes nothing.
func normalize(raw map[route.Destination]float64) map[route.Destination]float64 {
	if len(raw) == 0 {
		return raw
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range raw {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	if max-min < 1e-9 {
		return nil
	}
	out := make(map[route.Destination]float64, len(raw))
	for d, v := range raw {
		if scaled := (v - min) / (max - min); scaled > 0 {
			out[d] = scaled
		}
	}
	return out
}

func contextText(qctx map[string]string) string {
	if len(qctx) == 0 {
		return ""
	}
	keys := make([]string, 0, len(qctx))
	for k := range qctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+qctx[k])
	}
	return strings.Join(parts, " ")
}
