package model

import "time"

// ShiftAssignment is owned by scheduling/HR configuration and read-only here.
type ShiftAssignment struct {
	ID         string    `db:"id" json:"id"`
	AgentEmail string    `db:"agent_email" json:"agentEmail"`
	CreatorID  string    `db:"creator_id" json:"creatorId"`
	ShiftTime  string    `db:"shift_time" json:"shiftTime"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}
