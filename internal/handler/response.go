package handler

import (
	"net/http"
	"time"

	"github.com/chatterdesk/presence-engine/internal/httputil"
	"github.com/chatterdesk/presence-engine/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func formatSession(s model.AttendanceSession) map[string]any {
	return map[string]any{
		"id":              s.ID,
		"agentEmail":      s.AgentEmail,
		"creatorId":       s.CreatorID,
		"source":          s.Source,
		"clockIn":         s.ClockIn.Format(time.RFC3339),
		"clockOut":        formatTime(s.ClockOut),
		"isLive":          s.IsLive,
		"activityPercent": s.ActivityPercent,
	}
}
