// Package supportapi exposes the chat, classification, knowledge base and
// ticket operations over HTTP.
package supportapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/deskside/internal/knowledge"
	"github.com/linnemanlabs/deskside/internal/retrieval"
	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
	"github.com/linnemanlabs/deskside/internal/triage"
)

// ChatService defines the triage operations the API needs.
type ChatService interface {
	Chat(ctx context.Context, msg support.Message) (*triage.ChatResult, error)
	Classify(ctx context.Context, text string) (triage.Classification, error)
}

// Index is the semantic search side of the knowledge base.
type Index interface {
	Search(ctx context.Context, query string, limit int) ([]retrieval.Match, error)
	Reload(ctx context.Context) (int, error)
}

// Articles is the direct store side of the knowledge base.
type Articles interface {
	Get(ctx context.Context, id int64) (*knowledge.Article, bool, error)
	SearchByKeyword(ctx context.Context, query string, limit int) ([]knowledge.Article, error)
	IncrementViews(ctx context.Context, id int64) error
}

// TicketService defines the ticket operations the API needs.
type TicketService interface {
	Create(ctx context.Context, in ticket.NewTicket) (*ticket.Ticket, error)
	Get(ctx context.Context, id string) (*ticket.Ticket, bool, error)
	List(ctx context.Context, f ticket.Filter) ([]ticket.Ticket, error)
	UpdateStatus(ctx context.Context, id string, status ticket.Status) (*ticket.Ticket, error)
}

// Deps are the services behind the handlers. All are required.
type Deps struct {
	Chat     ChatService
	Index    Index
	Articles Articles
	Tickets  TicketService
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger   log.Logger
	chat     ChatService
	index    Index
	articles Articles
	tickets  TicketService
}

// New creates a new API handler.
func New(logger log.Logger, d Deps) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if d.Chat == nil || d.Index == nil || d.Articles == nil || d.Tickets == nil {
		panic(xerrors.New("supportapi: chat, index, articles and tickets are required"))
	}
	return &API{
		logger:   logger,
		chat:     d.Chat,
		index:    d.Index,
		articles: d.Articles,
		tickets:  d.Tickets,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat", a.handleChat)
		r.Post("/classify", a.handleClassify)

		r.Route("/kb", func(r chi.Router) {
			r.Get("/search", a.handleSearchKB)
			r.Post("/refresh", a.handleRefreshKB)
			r.Get("/{id}", a.handleGetArticle)
		})

		r.Route("/tickets", func(r chi.Router) {
			r.Post("/", a.handleCreateTicket)
			r.Get("/", a.handleListTickets)
			r.Get("/{id}", a.handleGetTicket)
			r.Patch("/{id}/status", a.handleUpdateStatus)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nothing to do with errors here
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
