package model

import "time"

// TelemetryMember binds a telemetry-provider user id to an agent email and,
// optionally, a specific creator. Once created it is authoritative and is
// never auto-overwritten.
type TelemetryMember struct {
	ID             string    `db:"id" json:"id"`
	ProviderUserID string    `db:"provider_user_id" json:"providerUserId"`
	AgentEmail     string    `db:"agent_email" json:"agentEmail"`
	DisplayName    string    `db:"display_name" json:"displayName"`
	CreatorID      *string   `db:"creator_id" json:"creatorId,omitempty"`
	MatchKind      MatchKind `db:"match_kind" json:"matchKind"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type CreateTelemetryMemberParams struct {
	ProviderUserID string
	AgentEmail     string
	DisplayName    string
	CreatorID      *string
	MatchKind      MatchKind
}

// TelemetryCredential is the one telemetry OAuth session per organization.
// The key pair is generated at bootstrap and must survive restarts because
// the provider may bind future tokens to it.
type TelemetryCredential struct {
	ID            string     `db:"id" json:"id"`
	OrgID         string     `db:"org_id" json:"orgId"`
	AccessToken   string     `db:"access_token" json:"-"`
	RefreshToken  string     `db:"refresh_token" json:"-"`
	ExpiresAt     time.Time  `db:"expires_at" json:"-"`
	PrivateKeyPEM string     `db:"private_key_pem" json:"-"`
	PublicKeyJWK  string     `db:"public_key_jwk" json:"-"`
	SyncEnabled   bool       `db:"sync_enabled" json:"syncEnabled"`
	LastSyncedAt  *time.Time `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updatedAt"`
}

type CreateTelemetryCredentialParams struct {
	OrgID         string
	AccessToken   string
	RefreshToken  string
	ExpiresAt     time.Time
	PrivateKeyPEM string
	PublicKeyJWK  string
}
