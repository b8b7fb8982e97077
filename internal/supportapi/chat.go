package supportapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/deskside/internal/support"
	"github.com/linnemanlabs/deskside/internal/triage"
)

type chatRequest struct {
	Message  string `json:"message"`
	Employee string `json:"employee"`
}

type classifyRequest struct {
	Text string `json:"text"`
}

func (a *API) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if strings.TrimSpace(req.Employee) == "" {
		writeError(w, http.StatusBadRequest, "employee is required")
		return
	}

	res, err := a.chat.Chat(r.Context(), support.NewMessage(req.Employee, req.Message, time.Now()))
	if errors.Is(err, triage.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "chat failed", "employee", req.Employee)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.String("deskside.triage.kind", string(res.Kind)),
		attribute.Bool("deskside.ticket.created", res.TicketCreated),
	)
	if res.TicketID != "" {
		span.SetAttributes(attribute.String("deskside.ticket.id", res.TicketID))
	}

	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleClassify(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	c, err := a.chat.Classify(r.Context(), req.Text)
	if errors.Is(err, triage.ErrEmptyMessage) {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if err != nil {
		a.logger.Error(r.Context(), err, "classify failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
