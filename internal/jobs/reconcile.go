package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/service"
)

// Runner matches the sync services the job drives on each tick.
type Runner interface {
	Run(ctx context.Context) (*service.RunSummary, error)
}

// ReconcileJob is the in-process fallback scheduler used when no external
// cron hits the trigger endpoints.
type ReconcileJob struct {
	scheduleSync  Runner
	telemetrySync Runner
	interval      time.Duration
	budget        time.Duration
	done          chan struct{}
}

func NewReconcileJob(scheduleSync, telemetrySync Runner, interval, budget time.Duration) *ReconcileJob {
	return &ReconcileJob{
		scheduleSync:  scheduleSync,
		telemetrySync: telemetrySync,
		interval:      interval,
		budget:        budget,
		done:          make(chan struct{}),
	}
}

func (j *ReconcileJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("reconcile job started")
}

func (j *ReconcileJob) Stop() {
	close(j.done)
	log.Info().Msg("reconcile job stopped")
}

func (j *ReconcileJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.reconcile()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.reconcile()
		}
	}
}

func (j *ReconcileJob) reconcile() {
	// Each run carries its own budget so one stuck provider call cannot
	// wedge the ticker loop.
	ctx, cancel := context.WithTimeout(context.Background(), j.budget+5*time.Second)
	defer cancel()

	j.runSync(ctx, "schedule", j.scheduleSync)
	j.runSync(ctx, "telemetry", j.telemetrySync)
}

func (j *ReconcileJob) runSync(ctx context.Context, name string, runner Runner) {
	summary, err := runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to run %s sync", name)
		return
	}
	if summary.Status == service.StatusNotConfigured {
		return
	}
	log.Info().
		Int("clockedIn", summary.ClockedIn).
		Int("clockedOut", summary.ClockedOut).
		Bool("partial", summary.Partial).
		Msgf("%s sync completed", name)
}
