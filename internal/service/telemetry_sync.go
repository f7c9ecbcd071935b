package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/audit"
	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/repository"
	"github.com/chatterdesk/presence-engine/internal/telemetry"
)

// TelemetryAPI is the slice of the provider client the driver needs.
type TelemetryAPI interface {
	ActiveUserIDs(ctx context.Context, windowStart, windowEnd time.Time) (map[string]bool, error)
	OnlineUserIDs(ctx context.Context) (map[string]bool, error)
	AggregateActivity(ctx context.Context, windowStart, windowEnd time.Time) (map[string]telemetry.Activity, error)
}

// TelemetrySyncService opens and closes telemetry-sourced sessions from
// provider activity, and keeps activity percentages current on sessions
// that stay live.
type TelemetrySyncService struct {
	api            TelemetryAPI
	credRepo       repository.TelemetryCredentialRepository
	memberRepo     repository.TelemetryMemberRepository
	shiftRepo      repository.ShiftRepository
	attendanceRepo repository.AttendanceRepository
	recorder       RunRecorder

	orgID     string
	window    time.Duration
	budget    time.Duration
	batchSize int

	// Realtime switches the "active" definition from any tracked time in
	// the window to the provider's online flag.
	Realtime bool

	now func() time.Time
}

func NewTelemetrySyncService(
	api TelemetryAPI,
	credRepo repository.TelemetryCredentialRepository,
	memberRepo repository.TelemetryMemberRepository,
	shiftRepo repository.ShiftRepository,
	attendanceRepo repository.AttendanceRepository,
	recorder RunRecorder,
	orgID string,
	window, budget time.Duration,
	batchSize int,
) *TelemetrySyncService {
	return &TelemetrySyncService{
		api:            api,
		credRepo:       credRepo,
		memberRepo:     memberRepo,
		shiftRepo:      shiftRepo,
		attendanceRepo: attendanceRepo,
		recorder:       recorder,
		orgID:          orgID,
		window:         window,
		budget:         budget,
		batchSize:      batchSize,
		now:            time.Now,
	}
}

func (s *TelemetrySyncService) Run(ctx context.Context) (*RunSummary, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()

	now := s.now()

	cred, err := s.credRepo.FindByOrg(runCtx, s.orgID)
	if err != nil {
		return nil, apperrors.Database("load telemetry credential", err)
	}
	if cred == nil || !cred.SyncEnabled {
		summary := &RunSummary{Status: StatusNotConfigured}
		s.record(ctx, summary)
		return summary, nil
	}

	audit.Log(runCtx, audit.Event{Type: audit.EventRunStarted, Source: string(model.SourceTelemetry), OrgID: s.orgID})

	windowStart := now.Add(-s.window)

	var active map[string]bool
	if s.Realtime {
		active, err = s.api.OnlineUserIDs(runCtx)
	} else {
		active, err = s.api.ActiveUserIDs(runCtx, windowStart, now)
	}
	if err != nil {
		return nil, err
	}

	// Activity percentages are an enrichment; losing them does not abort
	// the presence reconciliation itself.
	activity, err := s.api.AggregateActivity(runCtx, windowStart, now)
	if err != nil {
		log.Warn().Err(err).Msg("activity aggregation failed, continuing without percentages")
		activity = nil
	}

	members, err := s.memberRepo.ListAll(runCtx)
	if err != nil {
		return nil, apperrors.Database("list telemetry members", err)
	}
	byProviderID := make(map[string]model.TelemetryMember, len(members))
	for _, m := range members {
		byProviderID[m.ProviderUserID] = m
	}

	desired, pairActivity, skipped, partial := s.desiredSet(runCtx, active, byProviderID, activity)

	live, err := s.attendanceRepo.LiveBySource(runCtx, model.SourceTelemetry)
	if err != nil {
		return nil, apperrors.Database("load live telemetry sessions", err)
	}

	plan := Reconcile(desired, live)

	closed := 0
	for _, session := range plan.ToClose {
		if runCtx.Err() != nil {
			partial = true
			break
		}
		if err := s.attendanceRepo.Close(runCtx, session.ID, now); err != nil {
			log.Error().Err(err).Str("sessionId", session.ID).Msg("failed to close telemetry session, skipping")
			continue
		}
		closed++
	}

	opened := 0
	for _, pair := range plan.ToOpen {
		if runCtx.Err() != nil {
			partial = true
			break
		}
		session, err := s.attendanceRepo.Open(runCtx, pair.AgentEmail, pair.CreatorID, model.SourceTelemetry, now)
		if err != nil {
			log.Error().Err(err).
				Str("agentEmail", pair.AgentEmail).
				Str("creatorId", pair.CreatorID).
				Msg("failed to open telemetry session, skipping")
			continue
		}
		opened++
		if pct := pairActivity[pair]; pct != nil && session != nil {
			if err := s.attendanceRepo.UpdateActivity(runCtx, session.ID, pct); err != nil {
				log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to set initial activity")
			}
		}
	}

	// Sessions that stay live get their percentage refreshed in place
	// instead of being closed and reopened.
	s.refreshActivity(runCtx, plan, live, pairActivity)

	if err := s.credRepo.MarkSynced(ctx, cred.ID, now); err != nil {
		log.Warn().Err(err).Msg("failed to record last sync time")
	}

	summary := &RunSummary{
		Status:          StatusOK,
		ClockedIn:       opened,
		ClockedOut:      closed,
		ActiveCount:     uniquePairs(desired),
		TotalCandidates: len(active),
		Partial:         partial,
		Skipped:         skipped,
	}

	eventType := audit.EventRunCompleted
	if partial {
		eventType = audit.EventRunPartial
	}
	audit.Log(ctx, audit.Event{
		Type:   eventType,
		Source: string(model.SourceTelemetry),
		OrgID:  s.orgID,
		Details: map[string]interface{}{
			"clockedIn":  summary.ClockedIn,
			"clockedOut": summary.ClockedOut,
			"candidates": summary.TotalCandidates,
			"skipped":    summary.Skipped,
		},
	})

	s.record(ctx, summary)
	return summary, nil
}

// desiredSet maps active provider users to (agent, creator) pairs. Users
// without a mapping are skipped; mapped users without a direct creator fall
// back to every creator they have ever been scheduled against. Fallback
// lookups run in bounded batches so many agents do not serialize the run.
func (s *TelemetrySyncService) desiredSet(
	ctx context.Context,
	active map[string]bool,
	byProviderID map[string]model.TelemetryMember,
	activity map[string]telemetry.Activity,
) (desired []model.Pair, pairActivity map[model.Pair]*float64, skipped int, partial bool) {
	pairActivity = make(map[model.Pair]*float64)

	type fallbackAgent struct {
		email string
		pct   *float64
	}
	var fallbacks []fallbackAgent

	for userID := range active {
		member, ok := byProviderID[userID]
		if !ok {
			skipped++
			log.Debug().Str("providerUserId", userID).Msg("active telemetry user has no mapping, skipping")
			continue
		}

		var pct *float64
		if a, ok := activity[userID]; ok {
			pct = a.OverallPct
		}

		if member.CreatorID != nil && *member.CreatorID != "" {
			pair := model.Pair{AgentEmail: member.AgentEmail, CreatorID: *member.CreatorID}
			desired = append(desired, pair)
			pairActivity[pair] = pct
			continue
		}
		fallbacks = append(fallbacks, fallbackAgent{email: member.AgentEmail, pct: pct})
	}

	type lookupResult struct {
		agent    fallbackAgent
		creators []string
		err      error
	}

	for start := 0; start < len(fallbacks); start += s.batchSize {
		if ctx.Err() != nil {
			partial = true
			break
		}

		end := start + s.batchSize
		if end > len(fallbacks) {
			end = len(fallbacks)
		}
		batch := fallbacks[start:end]

		results := make([]lookupResult, len(batch))
		var wg sync.WaitGroup
		for i, agent := range batch {
			wg.Add(1)
			go func(i int, agent fallbackAgent) {
				defer wg.Done()
				creators, err := s.shiftRepo.CreatorsForAgent(ctx, agent.email)
				results[i] = lookupResult{agent: agent, creators: creators, err: err}
			}(i, agent)
		}
		wg.Wait()

		for _, res := range results {
			if res.err != nil {
				skipped++
				log.Error().Err(res.err).
					Str("agentEmail", res.agent.email).
					Msg("creator fallback lookup failed, skipping agent")
				continue
			}
			if len(res.creators) == 0 {
				// No creator associations: contributes nothing.
				skipped++
				continue
			}
			for _, creator := range res.creators {
				pair := model.Pair{AgentEmail: res.agent.email, CreatorID: creator}
				desired = append(desired, pair)
				pairActivity[pair] = res.agent.pct
			}
		}
	}

	return desired, pairActivity, skipped, partial
}

func (s *TelemetrySyncService) refreshActivity(ctx context.Context, plan Plan, live []model.AttendanceSession, pairActivity map[model.Pair]*float64) {
	closing := make(map[string]bool, len(plan.ToClose))
	for _, session := range plan.ToClose {
		closing[session.ID] = true
	}

	for _, session := range live {
		if ctx.Err() != nil {
			return
		}
		if closing[session.ID] {
			continue
		}
		pct, ok := pairActivity[session.Pair()]
		if !ok {
			continue
		}
		if err := s.attendanceRepo.UpdateActivity(ctx, session.ID, pct); err != nil {
			log.Warn().Err(err).Str("sessionId", session.ID).Msg("failed to refresh activity percentage")
		}
	}
}

func (s *TelemetrySyncService) record(ctx context.Context, summary *RunSummary) {
	if s.recorder != nil {
		s.recorder.RecordRun(ctx, string(model.SourceTelemetry), *summary)
	}
}
