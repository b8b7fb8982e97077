// Package memstore provides an in-memory implementation of knowledge.Store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linnemanlabs/deskside/internal/knowledge"
)

// Store holds articles in memory. Suitable for dev/testing.
type Store struct {
	mu       sync.RWMutex
	articles map[int64]*knowledge.Article
	nextID   int64
	now      func() time.Time
}

// New initializes an empty Store.
func New() *Store {
	return &Store{
		articles: make(map[int64]*knowledge.Article),
		nextID:   1,
		now:      time.Now,
	}
}

func clone(a *knowledge.Article) knowledge.Article {
	cp := *a
	cp.Keywords = slices.Clone(a.Keywords)
	cp.Embedding = slices.Clone(a.Embedding)
	return cp
}

// Get returns a copy of the article.
func (s *Store) Get(_ context.Context, id int64) (*knowledge.Article, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.articles[id]
	if !ok {
		return nil, false, nil
	}
	cp := clone(a)
	return &cp, true, nil
}

// Put stores a copy of a, allocating an id when a.ID is zero.
func (s *Store) Put(_ context.Context, a *knowledge.Article) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := clone(a)
	if cp.ID == 0 {
		cp.ID = s.nextID
	}
	if cp.ID >= s.nextID {
		s.nextID = cp.ID + 1
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.now()
	}
	s.articles[cp.ID] = &cp
	return cp.ID, nil
}

func (s *Store) filter(keep func(*knowledge.Article) bool) []knowledge.Article {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []knowledge.Article
	for _, a := range s.articles {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ArticlesWithEmbeddings returns copies of all embedded articles by id.
func (s *Store) ArticlesWithEmbeddings(_ context.Context) ([]knowledge.Article, error) {
	return s.filter(func(a *knowledge.Article) bool { return len(a.Embedding) > 0 }), nil
}

// ArticlesWithoutEmbeddings returns copies of all articles lacking one.
func (s *Store) ArticlesWithoutEmbeddings(_ context.Context) ([]knowledge.Article, error) {
	return s.filter(func(a *knowledge.Article) bool { return len(a.Embedding) == 0 }), nil
}

// SearchByKeyword does a case-insensitive substring match on title and
// content, or an exact match on a keyword tag.
func (s *Store) SearchByKeyword(_ context.Context, query string, limit int) ([]knowledge.Article, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil, nil
	}
	out := s.filter(func(a *knowledge.Article) bool {
		if strings.Contains(strings.ToLower(a.Title), q) || strings.Contains(strings.ToLower(a.Content), q) {
			return true
		}
		for _, kw := range a.Keywords {
			if strings.ToLower(kw) == q {
				return true
			}
		}
		return false
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].HelpfulCount != out[j].HelpfulCount {
			return out[i].HelpfulCount > out[j].HelpfulCount
		}
		return out[i].Views > out[j].Views
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// IncrementViews bumps an article's view counter.
func (s *Store) IncrementViews(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("article %d: %w", id, knowledge.ErrNotFound)
	}
	a.Views++
	return nil
}

// SetEmbedding stores a copy of embedding on the article.
func (s *Store) SetEmbedding(_ context.Context, id int64, embedding []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("article %d: %w", id, knowledge.ErrNotFound)
	}
	a.Embedding = slices.Clone(embedding)
	return nil
}
