package model

import (
	"time"
)

type AttendanceSession struct {
	ID              string        `db:"id" json:"id"`
	AgentEmail      string        `db:"agent_email" json:"agentEmail"`
	CreatorID       string        `db:"creator_id" json:"creatorId"`
	Source          SessionSource `db:"source" json:"source"`
	ClockIn         time.Time     `db:"clock_in" json:"clockIn"`
	ClockOut        *time.Time    `db:"clock_out" json:"clockOut,omitempty"`
	IsLive          bool          `db:"is_live" json:"isLive"`
	ActivityPercent *float64      `db:"activity_percent" json:"activityPercent,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updatedAt"`
}

// Pair identifies the (agent, creator) combination a session tracks.
type Pair struct {
	AgentEmail string `json:"agentEmail"`
	CreatorID  string `json:"creatorId"`
}

func (s *AttendanceSession) Pair() Pair {
	return Pair{AgentEmail: s.AgentEmail, CreatorID: s.CreatorID}
}

type SessionFilter struct {
	AgentEmail string
	CreatorID  string
	Source     string
	LiveOnly   bool
}
