// Package similarity ranks catalog images by cosine similarity of their embeddings.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vector"
)

const (
	// MaxBatchSize caps the candidate pool before embeddings are fetched. It equals the
	// embedding store's batch-get limit, so a ranking costs exactly one batch round trip.
	// Candidates past the cap (in catalog order) are never scored, even when they would
	// rank higher; prompts with more than MaxBatchSize images lose recall.
	MaxBatchSize = storage.MaxBatchGetKeys
	// TopK is the maximum number of results returned.
	TopK = 10

	// below this many candidates scoring runs on the calling goroutine
	parallelThreshold = 32
)

// EmbeddingStore is the read side of the embedding store used by the ranker.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, id string) ([]float32, error)
	BatchGetEmbeddings(ctx context.Context, ids []string) (map[string][]float32, error)
}

// ImageCatalog resolves the images sharing a prompt.
type ImageCatalog interface {
	QueryByPrompt(ctx context.Context, prompt string) ([]models.CatalogEntry, error)
}

// Stats describes how the candidate pool of one ranking was consumed.
type Stats struct {
	Candidates int // catalog matches after self-exclusion
	Capped     int // candidates left after the batch cap
	Missing    int // candidates without a stored embedding
	Degenerate int // candidates skipped because they could not be scored
	Scored     int
	Returned   int
}

// Observer receives Stats after every successful ranking.
type Observer interface {
	ObserveRanking(Stats)
}

// Ranker scores candidates against a query embedding. It holds no mutable state and is
// safe for concurrent use.
type Ranker struct {
	store       EmbeddingStore
	catalog     ImageCatalog
	batchSize   int
	topK        int
	parallelism int
	logger      *zap.Logger
	observer    Observer
}

// Option configures a Ranker.
type Option func(*Ranker)

// WithLogger sets the logger. Degenerate and missing candidates are logged at debug level.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Ranker) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBatchSize lowers the candidate cap. Values outside 1..MaxBatchSize are ignored.
func WithBatchSize(n int) Option {
	return func(r *Ranker) {
		if n > 0 && n <= MaxBatchSize {
			r.batchSize = n
		}
	}
}

// WithTopK sets the result limit.
func WithTopK(k int) Option {
	return func(r *Ranker) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithParallelism bounds the number of goroutines used for scoring. 1 disables parallel scoring.
func WithParallelism(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.parallelism = n
		}
	}
}

// WithObserver registers an observer for ranking stats.
func WithObserver(o Observer) Option {
	return func(r *Ranker) {
		r.observer = o
	}
}

// NewRanker creates a ranker over the given store and catalog.
func NewRanker(store EmbeddingStore, catalog ImageCatalog, opts ...Option) *Ranker {
	r := &Ranker{
		store:       store,
		catalog:     catalog,
		batchSize:   MaxBatchSize,
		topK:        TopK,
		parallelism: runtime.GOMAXPROCS(0),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank returns the images sharing prompt that are most similar to queryID, best first.
// The query image itself is never part of the result.
func (r *Ranker) Rank(ctx context.Context, queryID, prompt string) ([]models.SimilarityResult, error) {
	if queryID == "" || prompt == "" {
		return nil, ErrInvalidRequest
	}
	if err := ctx.Err(); err != nil {
		return nil, dependencyError("get query embedding", err)
	}

	query, err := r.store.GetEmbedding(ctx, queryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrQueryEmbeddingNotFound, queryID)
		}
		return nil, dependencyError("get query embedding", err)
	}

	return r.rank(ctx, query, prompt, queryID)
}

// RankVector ranks the images sharing prompt against a caller-supplied query vector, such as
// a text embedding. When excludeID is not empty that image is left out of the candidates.
func (r *Ranker) RankVector(ctx context.Context, query []float32, prompt, excludeID string) ([]models.SimilarityResult, error) {
	if len(query) == 0 || prompt == "" {
		return nil, ErrInvalidRequest
	}
	return r.rank(ctx, query, prompt, excludeID)
}

type candidate struct {
	imageID string
	vec     []float32
}

type scored struct {
	imageID string
	score   float64
	err     error
}

func (r *Ranker) rank(ctx context.Context, query []float32, prompt, excludeID string) ([]models.SimilarityResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, dependencyError("query catalog", err)
	}
	entries, err := r.catalog.QueryByPrompt(ctx, prompt)
	if err != nil {
		return nil, dependencyError("query catalog", err)
	}

	pool := make([]models.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if excludeID != "" && e.ImageID == excludeID {
			continue
		}
		pool = append(pool, e)
	}
	if len(pool) == 0 {
		return nil, ErrNoCandidates
	}

	var stats Stats
	stats.Candidates = len(pool)
	if len(pool) > r.batchSize {
		r.logger.Debug("Candidate pool truncated",
			zap.String("prompt", prompt),
			zap.Int("candidates", len(pool)),
			zap.Int("cap", r.batchSize))
		pool = pool[:r.batchSize]
	}
	stats.Capped = len(pool)

	if err := ctx.Err(); err != nil {
		return nil, dependencyError("batch get embeddings", err)
	}
	vectors, err := r.store.BatchGetEmbeddings(ctx, embeddingIDs(pool))
	if err != nil {
		return nil, dependencyError("batch get embeddings", err)
	}

	resolved := make([]candidate, 0, len(pool))
	for _, e := range pool {
		vec, ok := vectors[e.EmbeddingID]
		if !ok {
			stats.Missing++
			r.logger.Debug("Candidate has no embedding",
				zap.String("image_id", e.ImageID),
				zap.String("embedding_id", e.EmbeddingID))
			continue
		}
		resolved = append(resolved, candidate{imageID: e.ImageID, vec: vec})
	}

	scores, err := r.score(ctx, query, resolved)
	if err != nil {
		return nil, dependencyError("score candidates", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, dependencyError("score candidates", err)
	}

	results := make([]models.SimilarityResult, 0, len(scores))
	for _, s := range scores {
		if s.err != nil {
			stats.Degenerate++
			r.logger.Debug("Skipping candidate", zap.String("image_id", s.imageID), zap.Error(s.err))
			continue
		}
		results = append(results, models.SimilarityResult{ImageID: s.imageID, Similarity: s.score})
	}
	stats.Scored = len(results)

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > r.topK {
		results = results[:r.topK]
	}
	stats.Returned = len(results)

	if r.observer != nil {
		r.observer.ObserveRanking(stats)
	}
	return results, nil
}

// score computes one slot per candidate so the output keeps resolution order.
func (r *Ranker) score(ctx context.Context, query []float32, candidates []candidate) ([]scored, error) {
	out := make([]scored, len(candidates))
	scoreOne := func(i int) {
		c := candidates[i]
		s, err := vector.CosineSimilarity(query, c.vec)
		if err != nil {
			out[i] = scored{imageID: c.imageID, err: fmt.Errorf("%w: %v", ErrDegenerateVector, err)}
			return
		}
		out[i] = scored{imageID: c.imageID, score: s}
	}

	if r.parallelism <= 1 || len(candidates) < parallelThreshold {
		for i := range candidates {
			scoreOne(i)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallelism)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scoreOne(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// embeddingIDs returns the distinct embedding ids of entries in first-seen order.
func embeddingIDs(entries []models.CatalogEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.EmbeddingID]; ok {
			continue
		}
		seen[e.EmbeddingID] = struct{}{}
		ids = append(ids, e.EmbeddingID)
	}
	return ids
}
