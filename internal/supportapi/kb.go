package supportapi

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/deskside/internal/retrieval"
)

const maxSearchLimit = 10

func (a *API) handleSearchKB(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	limit := retrieval.DefaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxSearchLimit {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 10")
			return
		}
		limit = n
	}

	semantic := true
	if v := q.Get("semantic"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "semantic must be a boolean")
			return
		}
		semantic = b
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Bool("deskside.kb.semantic", semantic))

	var (
		matches []retrieval.Match
		err     error
	)
	if semantic {
		matches, err = a.index.Search(r.Context(), query, limit)
	} else {
		articles, kerr := a.articles.SearchByKeyword(r.Context(), query, limit)
		err = kerr
		for _, art := range articles {
			matches = append(matches, retrieval.Match{Article: art})
		}
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "knowledge search failed", "query", query)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if matches == nil {
		matches = []retrieval.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *API) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid article id")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.Int64("deskside.kb.article_id", id))

	art, ok, err := a.articles.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get article", "id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err := a.articles.IncrementViews(r.Context(), id); err != nil {
		a.logger.Warn(r.Context(), "failed to increment article views", "id", id, "err", err)
	}
	writeJSON(w, http.StatusOK, art)
}

func (a *API) handleRefreshKB(w http.ResponseWriter, r *http.Request) {
	n, err := a.index.Reload(r.Context())
	if err != nil {
		a.logger.Error(r.Context(), err, "knowledge cache reload failed")
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	a.logger.Info(r.Context(), "knowledge cache reloaded", "articles", n)
	writeJSON(w, http.StatusOK, map[string]int{"articles": n})
}
