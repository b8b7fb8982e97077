package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/linnemanlabs/deskside/internal/embedding"
)

// Backfill embeds every article that has no embedding yet and refreshes the
// cache. Per-article failures are logged and returned joined; the articles
// that did embed are kept.
func (ix *Index) Backfill(ctx context.Context) (int, error) {
	if ix.embedder == nil {
		return 0, errors.New("backfill: no embedder configured")
	}

	pending, err := ix.store.ArticlesWithoutEmbeddings(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill: list articles: %w", err)
	}

	var (
		done int
		errs []error
	)
	for _, a := range pending {
		vec, err := ix.embed(ctx, embedding.ArticleText(a.Title, a.Content))
		if err == nil {
			err = ix.store.SetEmbedding(ctx, a.ID, vec)
		}
		if err != nil {
			ix.logger.Error(ctx, err, "article embedding failed", "article_id", a.ID)
			errs = append(errs, fmt.Errorf("article %d: %w", a.ID, err))
			continue
		}
		done++
	}

	ix.logger.Info(ctx, "embedding backfill complete",
		"embedded", done,
		"failed", len(errs),
		"embedder", ix.embedder.Name(),
	)
	if done > 0 {
		ix.Refresh()
	}
	return done, errors.Join(errs...)
}
