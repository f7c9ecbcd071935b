package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chatterdesk/presence-engine/internal/httputil"
	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/service"
)

// SyncRunner is a reconciliation driver the trigger endpoints can invoke.
type SyncRunner interface {
	Run(ctx context.Context) (*service.RunSummary, error)
}

// AutoMatchRunner creates provider-to-agent mappings on demand.
type AutoMatchRunner interface {
	Run(ctx context.Context) (*service.AutoMatchSummary, error)
}

// RunReader serves the cached last-run summaries for the status endpoint.
type RunReader interface {
	LastRuns(ctx context.Context, sources ...string) map[string]*service.RecordedRun
}

// JobsHandler exposes the scheduler-facing trigger endpoints. Auth and rate
// limiting are applied by the router, not here.
type JobsHandler struct {
	scheduleSync  SyncRunner
	telemetrySync SyncRunner
	autoMatch     AutoMatchRunner
	runs          RunReader
}

func NewJobsHandler(scheduleSync, telemetrySync SyncRunner, autoMatch AutoMatchRunner, runs RunReader) *JobsHandler {
	return &JobsHandler{
		scheduleSync:  scheduleSync,
		telemetrySync: telemetrySync,
		autoMatch:     autoMatch,
		runs:          runs,
	}
}

func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/schedule-sync", h.ScheduleSync)
	r.Get("/telemetry-sync", h.TelemetrySync)
	r.Get("/auto-match", h.AutoMatch)
	r.Get("/status", h.Status)

	return r
}

func (h *JobsHandler) ScheduleSync(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.scheduleSync)
}

func (h *JobsHandler) TelemetrySync(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.telemetrySync)
}

func (h *JobsHandler) runSync(w http.ResponseWriter, r *http.Request, runner SyncRunner) {
	summary, err := runner.Run(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *JobsHandler) AutoMatch(w http.ResponseWriter, r *http.Request) {
	summary, err := h.autoMatch.Run(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *JobsHandler) Status(w http.ResponseWriter, r *http.Request) {
	runs := h.runs.LastRuns(r.Context(),
		string(model.SourceSchedule),
		string(model.SourceTelemetry),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"schedule":  runs[string(model.SourceSchedule)],
		"telemetry": runs[string(model.SourceTelemetry)],
	})
}
