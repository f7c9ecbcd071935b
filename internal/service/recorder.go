package service

import (
	"context"
	"encoding/json"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/config"
	redisclient "github.com/chatterdesk/presence-engine/internal/redis"
)

// RecordedRun is a run summary with the time it was recorded, as cached in
// redis and served by the status endpoint.
type RecordedRun struct {
	RunSummary
	RecordedAt time.Time `json:"recordedAt"`
}

// RedisRunRecorder keeps the latest summary per source in redis.
type RedisRunRecorder struct {
	redis *redisclient.Client
}

func NewRedisRunRecorder(redis *redisclient.Client) *RedisRunRecorder {
	return &RedisRunRecorder{redis: redis}
}

func (r *RedisRunRecorder) RecordRun(ctx context.Context, source string, summary RunSummary) {
	payload, err := json.Marshal(RecordedRun{RunSummary: summary, RecordedAt: time.Now()})
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, redisclient.LastRunKey(source), payload, config.LastRunTTL).Err(); err != nil {
		// Best-effort: the run itself already succeeded.
		log.Warn().Err(err).Str("source", source).Msg("failed to record run summary")
	}
}

// LastRuns returns the cached summary per source, nil where none exists.
func (r *RedisRunRecorder) LastRuns(ctx context.Context, sources ...string) map[string]*RecordedRun {
	runs := make(map[string]*RecordedRun, len(sources))
	for _, source := range sources {
		runs[source] = nil
		payload, err := r.redis.Get(ctx, redisclient.LastRunKey(source)).Bytes()
		if err != nil {
			if err != goredis.Nil {
				log.Warn().Err(err).Str("source", source).Msg("failed to read run summary")
			}
			continue
		}
		var run RecordedRun
		if err := json.Unmarshal(payload, &run); err != nil {
			continue
		}
		runs[source] = &run
	}
	return runs
}
