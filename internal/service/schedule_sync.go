package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/audit"
	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/repository"
	"github.com/chatterdesk/presence-engine/internal/schedule"
)

// RunRecorder persists the latest run summary per source for the status
// endpoint. Recording is best-effort; a miss never fails a run.
type RunRecorder interface {
	RecordRun(ctx context.Context, source string, summary RunSummary)
}

// ScheduleSyncService opens and closes schedule-sourced sessions based on
// which declared shifts cover the current hour. Every operation is an
// idempotent upsert or no-op, so overlapping invocations are safe.
type ScheduleSyncService struct {
	shiftRepo      repository.ShiftRepository
	attendanceRepo repository.AttendanceRepository
	recorder       RunRecorder
	budget         time.Duration
	now            func() time.Time
}

func NewScheduleSyncService(
	shiftRepo repository.ShiftRepository,
	attendanceRepo repository.AttendanceRepository,
	recorder RunRecorder,
	budget time.Duration,
) *ScheduleSyncService {
	return &ScheduleSyncService{
		shiftRepo:      shiftRepo,
		attendanceRepo: attendanceRepo,
		recorder:       recorder,
		budget:         budget,
		now:            time.Now,
	}
}

func (s *ScheduleSyncService) Run(ctx context.Context) (*RunSummary, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	// Closes use the run's own clock, not the scheduler's trigger time, so
	// a slow run does not under-report session duration.
	now := s.now()

	audit.Log(runCtx, audit.Event{Type: audit.EventRunStarted, Source: string(model.SourceSchedule)})

	assignments, err := s.shiftRepo.ListAll(runCtx)
	if err != nil {
		return nil, apperrors.Database("list shift assignments", err)
	}
	if len(assignments) == 0 {
		summary := &RunSummary{Status: StatusNotConfigured}
		s.record(ctx, summary)
		return summary, nil
	}

	hour := now.Hour()
	var desired []model.Pair
	for _, a := range assignments {
		if schedule.IsShiftActive(a.ShiftTime, hour) {
			desired = append(desired, model.Pair{AgentEmail: a.AgentEmail, CreatorID: a.CreatorID})
		}
	}

	live, err := s.attendanceRepo.LiveBySource(runCtx, model.SourceSchedule)
	if err != nil {
		return nil, apperrors.Database("load live schedule sessions", err)
	}

	plan := Reconcile(desired, live)

	opened, err := s.attendanceRepo.BulkOpen(runCtx, plan.ToOpen, model.SourceSchedule, now)
	if err != nil {
		return nil, apperrors.Database("open schedule sessions", err)
	}

	closed := 0
	partial := false
	for _, session := range plan.ToClose {
		if runCtx.Err() != nil {
			// Budget spent: stop here, the next invocation finishes the rest.
			partial = true
			break
		}
		if err := s.attendanceRepo.Close(runCtx, session.ID, now); err != nil {
			log.Error().Err(err).
				Str("sessionId", session.ID).
				Str("agentEmail", session.AgentEmail).
				Msg("failed to close schedule session, skipping")
			continue
		}
		closed++
	}

	summary := &RunSummary{
		Status:          StatusOK,
		ClockedIn:       int(opened),
		ClockedOut:      closed,
		ActiveCount:     uniquePairs(desired),
		TotalCandidates: len(assignments),
		Partial:         partial,
	}

	eventType := audit.EventRunCompleted
	if partial {
		eventType = audit.EventRunPartial
	}
	audit.Log(ctx, audit.Event{
		Type:   eventType,
		Source: string(model.SourceSchedule),
		Details: map[string]interface{}{
			"clockedIn":  summary.ClockedIn,
			"clockedOut": summary.ClockedOut,
			"candidates": summary.TotalCandidates,
		},
	})

	s.record(ctx, summary)
	return summary, nil
}

func (s *ScheduleSyncService) record(ctx context.Context, summary *RunSummary) {
	if s.recorder != nil {
		s.recorder.RecordRun(ctx, string(model.SourceSchedule), *summary)
	}
}

func uniquePairs(pairs []model.Pair) int {
	seen := make(map[model.Pair]bool, len(pairs))
	for _, p := range pairs {
		seen[p] = true
	}
	return len(seen)
}
