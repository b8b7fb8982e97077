// Package pgstore provides a PostgreSQL implementation of knowledge.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/deskside/internal/knowledge"
	"github.com/linnemanlabs/deskside/internal/support"
)

var tracer = otel.Tracer("github.com/linnemanlabs/deskside/internal/knowledge/pgstore")

//go:embed schema.sql
var schema string

// Store persists knowledge articles in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply knowledge schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const articleColumns = `id, title, content, category, keywords, embedding, views, helpful_count, created_at`

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Get retrieves an article by id.
func (s *Store) Get(ctx context.Context, id int64) (*knowledge.Article, bool, error) {
	ctx, span := startSpan(ctx, "knowledge.pgstore.Get", "SELECT")
	defer span.End()

	a, err := scanArticle(s.pool.QueryRow(ctx, `SELECT `+articleColumns+` FROM knowledge_base WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fail(span, err)
	}
	return a, true, nil
}

// Put inserts a new article, or replaces the one with the same id.
func (s *Store) Put(ctx context.Context, a *knowledge.Article) (int64, error) {
	ctx, span := startSpan(ctx, "knowledge.pgstore.Put", "UPSERT")
	defer span.End()

	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	category := a.Category
	if category == "" {
		category = support.CategoryOther
	}

	var id int64
	var err error
	if a.ID == 0 {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO knowledge_base (title, content, category, keywords, embedding, views, helpful_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id`,
			a.Title, a.Content, string(category), keywords, a.Embedding, a.Views, a.HelpfulCount,
		).Scan(&id)
	} else {
		err = s.pool.QueryRow(ctx,
			`INSERT INTO knowledge_base (id, title, content, category, keywords, embedding, views, helpful_count)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (id) DO UPDATE SET
				title         = EXCLUDED.title,
				content       = EXCLUDED.content,
				category      = EXCLUDED.category,
				keywords      = EXCLUDED.keywords,
				embedding     = EXCLUDED.embedding,
				views         = EXCLUDED.views,
				helpful_count = EXCLUDED.helpful_count
			 RETURNING id`,
			a.ID, a.Title, a.Content, string(category), keywords, a.Embedding, a.Views, a.HelpfulCount,
		).Scan(&id)
	}
	if err != nil {
		return 0, fail(span, fmt.Errorf("upsert article: %w", err))
	}
	return id, nil
}

// ArticlesWithEmbeddings returns every article with a stored embedding.
func (s *Store) ArticlesWithEmbeddings(ctx context.Context) ([]knowledge.Article, error) {
	ctx, span := startSpan(ctx, "knowledge.pgstore.ArticlesWithEmbeddings", "SELECT")
	defer span.End()

	out, err := s.queryArticles(ctx, `SELECT `+articleColumns+` FROM knowledge_base WHERE embedding IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// ArticlesWithoutEmbeddings returns every article lacking an embedding.
func (s *Store) ArticlesWithoutEmbeddings(ctx context.Context) ([]knowledge.Article, error) {
	ctx, span := startSpan(ctx, "knowledge.pgstore.ArticlesWithoutEmbeddings", "SELECT")
	defer span.End()

	out, err := s.queryArticles(ctx, `SELECT `+articleColumns+` FROM knowledge_base WHERE embedding IS NULL ORDER BY id`)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// SearchByKeyword matches title or content case-insensitively, or a keyword
// tag exactly.
func (s *Store) SearchByKeyword(ctx context.Context, query string, limit int) ([]knowledge.Article, error) {
	ctx, span := startSpan(ctx, "knowledge.pgstore.SearchByKeyword", "SELECT")
	defer span.End()

	if limit <= 0 {
		limit = 10
	}
	out, err := s.queryArticles(ctx,
		`SELECT `+articleColumns+` FROM knowledge_base
		 WHERE title ILIKE '%' || $1 || '%'
		    OR content ILIKE '%' || $1 || '%'
		    OR lower($1) = ANY(SELECT lower(k) FROM unnest(keywords) AS k)
		 ORDER BY helpful_count DESC, views DESC
		 LIMIT $2`,
		query, limit,
	)
	if err != nil {
		return nil, fail(span, err)
	}
	return out, nil
}

// IncrementViews bumps an article's view counter.
func (s *Store) IncrementViews(ctx context.Context, id int64) error {
	ctx, span := startSpan(ctx, "knowledge.pgstore.IncrementViews", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE knowledge_base SET views = views + 1 WHERE id = $1`, id)
	if err != nil {
		return fail(span, fmt.Errorf("increment views: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, knowledge.ErrNotFound)
	}
	return nil
}

// SetEmbedding stores the embedding of an article.
func (s *Store) SetEmbedding(ctx context.Context, id int64, embedding []float32) error {
	ctx, span := startSpan(ctx, "knowledge.pgstore.SetEmbedding", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE knowledge_base SET embedding = $2 WHERE id = $1`, id, embedding)
	if err != nil {
		return fail(span, fmt.Errorf("set embedding: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("article %d: %w", id, knowledge.ErrNotFound)
	}
	return nil
}

func (s *Store) queryArticles(ctx context.Context, sql string, args ...any) ([]knowledge.Article, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	var out []knowledge.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}

func scanArticle(row pgx.Row) (*knowledge.Article, error) {
	var (
		a        knowledge.Article
		category string
	)
	err := row.Scan(&a.ID, &a.Title, &a.Content, &category, &a.Keywords, &a.Embedding,
		&a.Views, &a.HelpfulCount, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan article: %w", err)
	}
	a.Category = support.Category(category)
	return &a, nil
}
