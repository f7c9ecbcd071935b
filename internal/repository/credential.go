package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/chatterdesk/presence-engine/internal/model"
)

type TelemetryCredentialRepository interface {
	FindByOrg(ctx context.Context, orgID string) (*model.TelemetryCredential, error)
	Create(ctx context.Context, params model.CreateTelemetryCredentialParams) (*model.TelemetryCredential, error)
	// UpdateTokens applies a token refresh with compare-and-swap on
	// updated_at. It returns false when another run refreshed first; the
	// caller should re-read the row and use the winner's tokens.
	UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time, prevUpdatedAt time.Time) (bool, error)
	MarkSynced(ctx context.Context, id string, at time.Time) error
}

type telemetryCredentialRepo struct {
	db *sqlx.DB
}

func NewTelemetryCredentialRepository(db *sqlx.DB) TelemetryCredentialRepository {
	return &telemetryCredentialRepo{db: db}
}

func (r *telemetryCredentialRepo) FindByOrg(ctx context.Context, orgID string) (*model.TelemetryCredential, error) {
	var cred model.TelemetryCredential
	err := r.db.GetContext(ctx, &cred, `
		SELECT * FROM telemetry_credentials WHERE org_id = $1
	`, orgID)
	return HandleNotFound(&cred, err)
}

func (r *telemetryCredentialRepo) Create(ctx context.Context, params model.CreateTelemetryCredentialParams) (*model.TelemetryCredential, error) {
	var cred model.TelemetryCredential
	err := r.db.GetContext(ctx, &cred, `
		INSERT INTO telemetry_credentials (org_id, access_token, refresh_token, expires_at, private_key_pem, public_key_jwk, sync_enabled)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE)
		ON CONFLICT (org_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = NOW()
		RETURNING *
	`, params.OrgID, params.AccessToken, params.RefreshToken, params.ExpiresAt, params.PrivateKeyPEM, params.PublicKeyJWK)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *telemetryCredentialRepo) UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time, prevUpdatedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE telemetry_credentials SET
			access_token = $2,
			refresh_token = $3,
			expires_at = $4,
			updated_at = NOW()
		WHERE id = $1 AND updated_at = $5
	`, id, accessToken, refreshToken, expiresAt, prevUpdatedAt)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *telemetryCredentialRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE telemetry_credentials SET last_synced_at = $2 WHERE id = $1
	`, id, at)
	return err
}
