package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/chatterdesk/presence-engine/internal/service"
)

type countingRunner struct {
	mu    sync.Mutex
	calls int
}

func (r *countingRunner) Run(ctx context.Context) (*service.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return &service.RunSummary{Status: service.StatusOK}, nil
}

func (r *countingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestReconcileJob(t *testing.T) {
	t.Run("runs both syncs immediately on start", func(t *testing.T) {
		schedule := &countingRunner{}
		telemetry := &countingRunner{}
		job := NewReconcileJob(schedule, telemetry, time.Hour, time.Second)

		job.Start()
		defer job.Stop()

		assert.Eventually(t, func() bool {
			return schedule.count() >= 1 && telemetry.count() >= 1
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("stop terminates the loop", func(t *testing.T) {
		schedule := &countingRunner{}
		telemetry := &countingRunner{}
		job := NewReconcileJob(schedule, telemetry, 20*time.Millisecond, time.Second)

		job.Start()
		assert.Eventually(t, func() bool { return schedule.count() >= 2 }, time.Second, 5*time.Millisecond)
		job.Stop()

		settled := schedule.count()
		time.Sleep(60 * time.Millisecond)
		assert.LessOrEqual(t, schedule.count(), settled+1)
	})
}
