package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventRunStarted          EventType = "run_started"
	EventRunCompleted        EventType = "run_completed"
	EventRunPartial          EventType = "run_partial"
	EventCredentialBootstrap EventType = "credential_bootstrap"
	EventCredentialRefresh   EventType = "credential_refresh"
	EventAutoMatchCreate     EventType = "automatch_create"
	EventAuthFailure         EventType = "auth_failure"
	EventRateLimitExceed     EventType = "rate_limit_exceeded"
)

type Event struct {
	Type       EventType
	Source     string
	AgentEmail string
	OrgID      string
	IP         string
	Details    map[string]interface{}
}

func Log(ctx context.Context, event Event) {
	logger := log.With().
		Str("audit", "reconciliation").
		Str("event_type", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.Source != "" {
		logger = logger.With().Str("source", event.Source).Logger()
	}
	if event.AgentEmail != "" {
		logger = logger.With().Str("agent_email", event.AgentEmail).Logger()
	}
	if event.OrgID != "" {
		logger = logger.With().Str("org_id", event.OrgID).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("reconciliation audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	if event.IP == "" {
		event.IP = r.RemoteAddr
	}
	Log(r.Context(), event)
}
