package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
	"github.com/chatterdesk/presence-engine/internal/httputil"
	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/util"
)

// SessionReader is the slice of the attendance repository the read API needs.
type SessionReader interface {
	List(ctx context.Context, filter model.SessionFilter, limit, offset int) ([]model.AttendanceSession, error)
	Count(ctx context.Context, filter model.SessionFilter) (int, error)
}

type SessionsHandler struct {
	sessions SessionReader
}

func NewSessionsHandler(sessions SessionReader) *SessionsHandler {
	return &SessionsHandler{sessions: sessions}
}

func (h *SessionsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)

	return r
}

func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	source := q.Get("source")
	if !util.IsValidEnum(source, []string{
		string(model.SourceSchedule),
		string(model.SourceTelemetry),
	}) {
		httputil.WriteError(w, apperrors.Validation("Invalid source filter"))
		return
	}

	filter := model.SessionFilter{
		AgentEmail: q.Get("agent"),
		CreatorID:  q.Get("creator"),
		Source:     source,
		LiveOnly:   q.Get("live") == "true",
	}
	pagination := ParsePagination(r)

	sessions, err := h.sessions.List(r.Context(), filter, pagination.Limit, pagination.Offset)
	if err != nil {
		log.Error().Err(err).Msg("failed to list sessions")
		httputil.WriteError(w, err)
		return
	}

	total, err := h.sessions.Count(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count sessions")
		httputil.WriteError(w, err)
		return
	}

	items := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, formatSession(s))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": items,
		"pagination": map[string]any{
			"total":  total,
			"limit":  pagination.Limit,
			"offset": pagination.Offset,
		},
	})
}
