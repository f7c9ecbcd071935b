package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/chatterdesk/presence-engine/internal/model"
)

// ShiftRepository reads shift assignments. The table is owned by
// scheduling/HR configuration; this service never writes it.
type ShiftRepository interface {
	ListAll(ctx context.Context) ([]model.ShiftAssignment, error)
	ListByAgent(ctx context.Context, agentEmail string) ([]model.ShiftAssignment, error)
	// CreatorsForAgent returns every creator the agent has ever been
	// scheduled against, used as the fallback when a telemetry mapping has
	// no direct creator.
	CreatorsForAgent(ctx context.Context, agentEmail string) ([]string, error)
	AgentEmails(ctx context.Context) ([]string, error)
}

type shiftRepo struct {
	db *sqlx.DB
}

func NewShiftRepository(db *sqlx.DB) ShiftRepository {
	return &shiftRepo{db: db}
}

func (r *shiftRepo) ListAll(ctx context.Context) ([]model.ShiftAssignment, error) {
	var assignments []model.ShiftAssignment
	err := r.db.SelectContext(ctx, &assignments, `
		SELECT * FROM shift_assignments
		ORDER BY agent_email ASC, creator_id ASC
	`)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *shiftRepo) ListByAgent(ctx context.Context, agentEmail string) ([]model.ShiftAssignment, error) {
	var assignments []model.ShiftAssignment
	err := r.db.SelectContext(ctx, &assignments, `
		SELECT * FROM shift_assignments
		WHERE agent_email = $1
		ORDER BY creator_id ASC
	`, agentEmail)
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

func (r *shiftRepo) CreatorsForAgent(ctx context.Context, agentEmail string) ([]string, error) {
	var creators []string
	err := r.db.SelectContext(ctx, &creators, `
		SELECT DISTINCT creator_id FROM shift_assignments
		WHERE agent_email = $1
		ORDER BY creator_id ASC
	`, agentEmail)
	if err != nil {
		return nil, err
	}
	return creators, nil
}

func (r *shiftRepo) AgentEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.db.SelectContext(ctx, &emails, `
		SELECT DISTINCT agent_email FROM shift_assignments
		ORDER BY agent_email ASC
	`)
	if err != nil {
		return nil, err
	}
	return emails, nil
}
