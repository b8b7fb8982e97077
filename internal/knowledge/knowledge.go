// Package knowledge defines knowledge-base articles and the store that
// holds them.
package knowledge

import (
	"context"
	"errors"
	"time"

	"github.com/linnemanlabs/deskside/internal/support"
)

// ErrNotFound is returned when an article id does not exist.
var ErrNotFound = errors.New("article not found")

// Article is a knowledge-base entry. Embedding is nil until the article
// has been embedded; such articles are only reachable by keyword search.
type Article struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Content      string           `json:"content"`
	Category     support.Category `json:"category"`
	Keywords     []string         `json:"keywords,omitempty"`
	Embedding    []float32        `json:"-"`
	Views        int              `json:"views"`
	HelpfulCount int              `json:"helpful_count"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Store is the persistence interface for knowledge articles.
type Store interface {
	// Get returns an article by id.
	Get(ctx context.Context, id int64) (*Article, bool, error)
	// Put inserts or replaces an article; a zero ID allocates a new one.
	Put(ctx context.Context, a *Article) (int64, error)
	// ArticlesWithEmbeddings returns every article with a stored embedding.
	ArticlesWithEmbeddings(ctx context.Context) ([]Article, error)
	// ArticlesWithoutEmbeddings returns every article lacking an embedding.
	ArticlesWithoutEmbeddings(ctx context.Context) ([]Article, error)
	// SearchByKeyword matches query against title, content and keyword tags,
	// ordered by helpful count then views, both descending.
	SearchByKeyword(ctx context.Context, query string, limit int) ([]Article, error)
	// IncrementViews bumps the view counter of an article.
	IncrementViews(ctx context.Context, id int64) error
	// SetEmbedding stores the embedding of an article.
	SetEmbedding(ctx context.Context, id int64, embedding []float32) error
}
