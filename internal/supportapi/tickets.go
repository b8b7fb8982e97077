package supportapi

import (
	"errors"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/ticket"
)

type statusUpdate struct {
	Status ticket.Status `json:"status"`
}

func (a *API) ticketError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, ticket.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ticket.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		a.logger.Error(r.Context(), err, msg)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var in ticket.NewTicket
	if err := decode(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	t, err := a.tickets.Create(r.Context(), in)
	if err != nil {
		a.ticketError(w, r, err, "failed to create ticket")
		return
	}

	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("deskside.ticket.id", t.ID))
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleListTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := ticket.Filter{
		Sender:   q.Get("employee"),
		Status:   ticket.Status(q.Get("status")),
		Category: support.Category(q.Get("category")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	list, err := a.tickets.List(r.Context(), f)
	if err != nil {
		a.ticketError(w, r, err, "failed to list tickets")
		return
	}
	if list == nil {
		list = []ticket.Ticket{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *API) handleGetTicket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("deskside.ticket.id", id))

	t, ok, err := a.tickets.Get(r.Context(), id)
	if err != nil {
		a.ticketError(w, r, err, "failed to get ticket")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("deskside.ticket.id", id))

	var req statusUpdate
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	t, err := a.tickets.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		a.ticketError(w, r, err, "failed to update ticket")
		return
	}

	span.SetAttributes(attribute.String("deskside.ticket.status", string(t.Status)))
	writeJSON(w, http.StatusOK, t)
}
