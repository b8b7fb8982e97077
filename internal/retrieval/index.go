// Package retrieval ranks knowledge articles against a query by embedding
// similarity, falling back to keyword search when the embedder or the
// cached article set is unavailable.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/deskside/internal/embedding"
	"github.com/linnemanlabs/deskside/internal/knowledge"
)

const (
	DefaultLimit   = 3
	DefaultTimeout = 10 * time.Second
)

// Fallback kinds reported through Hooks.OnFallback and the log.
const (
	FallbackEmbed = "embed_fallback"
	FallbackCache = "cache_fallback"
)

// Store is the subset of knowledge.Store the index reads and writes.
type Store interface {
	ArticlesWithEmbeddings(ctx context.Context) ([]knowledge.Article, error)
	ArticlesWithoutEmbeddings(ctx context.Context) ([]knowledge.Article, error)
	SearchByKeyword(ctx context.Context, query string, limit int) ([]knowledge.Article, error)
	SetEmbedding(ctx context.Context, id int64, embedding []float32) error
}

// Match is one search hit. Score is the cosine similarity and is only set
// when Semantic is true; keyword fallback hits carry no score.
type Match struct {
	Article  knowledge.Article `json:"article"`
	Score    float64           `json:"score,omitempty"`
	Semantic bool              `json:"semantic"`
}

// Hooks are optional callbacks for instrumentation.
type Hooks struct {
	OnFallback func(kind string)
	OnReload   func(articles int, duration float64)
	OnEmbed    func(duration float64, err error)
}

type snapshot struct {
	gen      uint64
	articles []knowledge.Article
}

// Index answers similarity queries over a lazily loaded, explicitly
// refreshed snapshot of embedded articles. Readers always see one whole
// snapshot.
type Index struct {
	store    Store
	embedder embedding.Embedder
	timeout  time.Duration
	logger   log.Logger
	hooks    Hooks

	snap  atomic.Pointer[snapshot]
	gen   atomic.Uint64
	loads singleflight.Group
}

// Config holds optional Index settings.
type Config struct {
	Timeout time.Duration
	Logger  log.Logger
	Hooks   Hooks
}

// New returns an Index over store. A nil embedder is allowed and makes
// every search use keyword matching.
func New(store Store, embedder embedding.Embedder, cfg Config) *Index {
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Index{
		store:    store,
		embedder: embedder,
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		hooks:    cfg.Hooks,
	}
}

// Generation returns the current cache generation. It increases on every
// Refresh.
func (ix *Index) Generation() uint64 { return ix.gen.Load() }

// Refresh drops the cached snapshot. The next access reloads it.
func (ix *Index) Refresh() {
	ix.gen.Add(1)
	ix.snap.Store(nil)
}

// Reload refreshes the cache and loads it immediately, returning the number
// of embedded articles now cached.
func (ix *Index) Reload(ctx context.Context) (int, error) {
	ix.Refresh()
	s, err := ix.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(s.articles), nil
}

func (ix *Index) load(ctx context.Context) (*snapshot, error) {
	if s := ix.snap.Load(); s != nil {
		return s, nil
	}

	gen := ix.gen.Load()
	v, err, _ := ix.loads.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		if s := ix.snap.Load(); s != nil {
			return s, nil
		}
		start := time.Now()
		articles, err := ix.store.ArticlesWithEmbeddings(context.WithoutCancel(ctx))
		if err != nil {
			return nil, fmt.Errorf("load embedded articles: %w", err)
		}
		s := &snapshot{gen: gen, articles: articles}
		if ix.snap.CompareAndSwap(nil, s) && ix.gen.Load() != gen {
			// a Refresh raced with this load; do not leave a stale snapshot behind
			ix.snap.CompareAndSwap(s, nil)
		}
		d := time.Since(start).Seconds()
		ix.logger.Info(ctx, "knowledge cache loaded",
			"generation", gen,
			"articles", len(articles),
			"duration_s", d,
		)
		if ix.hooks.OnReload != nil {
			ix.hooks.OnReload(len(articles), d)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*snapshot), nil
}

// Search returns up to limit articles most similar to query. Errors are only
// returned when the keyword fallback itself fails.
func (ix *Index) Search(ctx context.Context, query string, limit int) ([]Match, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	if ix.embedder == nil {
		return ix.fallback(ctx, FallbackEmbed, "no embedder configured", query, limit)
	}

	snap, err := ix.load(ctx)
	if err != nil {
		return ix.fallback(ctx, FallbackCache, err.Error(), query, limit)
	}
	if len(snap.articles) == 0 {
		return ix.fallback(ctx, FallbackCache, "no embedded articles cached", query, limit)
	}

	qvec, err := ix.embed(ctx, query)
	if err != nil {
		return ix.fallback(ctx, FallbackEmbed, err.Error(), query, limit)
	}

	return rank(qvec, snap.articles, limit), nil
}

func (ix *Index) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, ix.timeout)
	defer cancel()

	start := time.Now()
	vec, err := ix.embedder.Embed(ctx, text)
	if ix.hooks.OnEmbed != nil {
		ix.hooks.OnEmbed(time.Since(start).Seconds(), err)
	}
	if err == nil && len(vec) == 0 {
		err = errors.New("empty query embedding")
	}
	return vec, err
}

// rank scores every article against qvec and keeps the best limit.
// Articles whose embedding dimension differs from the query are skipped.
func rank(qvec []float32, articles []knowledge.Article, limit int) []Match {
	matches := make([]Match, 0, len(articles))
	for _, a := range articles {
		score, err := embedding.CosineSimilarity(qvec, a.Embedding)
		if err != nil {
			continue
		}
		matches = append(matches, Match{Article: a, Score: score, Semantic: true})
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

func (ix *Index) fallback(ctx context.Context, kind, reason, query string, limit int) ([]Match, error) {
	ix.logger.Warn(ctx, "knowledge search using keyword fallback",
		"fallback", kind,
		"reason", reason,
	)
	if ix.hooks.OnFallback != nil {
		ix.hooks.OnFallback(kind)
	}

	articles, err := ix.store.SearchByKeyword(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	matches := make([]Match, len(articles))
	for i, a := range articles {
		matches[i] = Match{Article: a}
	}
	return matches, nil
}
