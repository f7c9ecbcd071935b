package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/chatterdesk/presence-engine/internal/model"
)

type TelemetryMemberRepository interface {
	FindByProviderUserID(ctx context.Context, providerUserID string) (*model.TelemetryMember, error)
	ListAll(ctx context.Context) ([]model.TelemetryMember, error)
	// Create inserts a mapping unless one already exists for the provider
	// user id. Existing mappings are authoritative and never overwritten.
	Create(ctx context.Context, params model.CreateTelemetryMemberParams) (*model.TelemetryMember, error)
}

type telemetryMemberRepo struct {
	db *sqlx.DB
}

func NewTelemetryMemberRepository(db *sqlx.DB) TelemetryMemberRepository {
	return &telemetryMemberRepo{db: db}
}

func (r *telemetryMemberRepo) FindByProviderUserID(ctx context.Context, providerUserID string) (*model.TelemetryMember, error) {
	var member model.TelemetryMember
	err := r.db.GetContext(ctx, &member, `
		SELECT * FROM telemetry_members WHERE provider_user_id = $1
	`, providerUserID)
	return HandleNotFound(&member, err)
}

func (r *telemetryMemberRepo) ListAll(ctx context.Context) ([]model.TelemetryMember, error) {
	var members []model.TelemetryMember
	err := r.db.SelectContext(ctx, &members, `
		SELECT * FROM telemetry_members
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *telemetryMemberRepo) Create(ctx context.Context, params model.CreateTelemetryMemberParams) (*model.TelemetryMember, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO telemetry_members (provider_user_id, agent_email, display_name, creator_id, match_kind)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (provider_user_id) DO NOTHING
	`, params.ProviderUserID, params.AgentEmail, params.DisplayName, params.CreatorID, params.MatchKind)
	if err != nil {
		return nil, err
	}
	return r.FindByProviderUserID(ctx, params.ProviderUserID)
}
