package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
	"github.com/chatterdesk/presence-engine/internal/model"
)

type fakeCredentialRepo struct {
	mu           sync.Mutex
	cred         *model.TelemetryCredential
	createCalls  int
	updateCalls  int
	loseSwapOnce bool
}

func (r *fakeCredentialRepo) FindByOrg(ctx context.Context, orgID string) (*model.TelemetryCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cred == nil {
		return nil, nil
	}
	copied := *r.cred
	return &copied, nil
}

func (r *fakeCredentialRepo) Create(ctx context.Context, params model.CreateTelemetryCredentialParams) (*model.TelemetryCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	r.cred = &model.TelemetryCredential{
		ID:            "cred-1",
		OrgID:         params.OrgID,
		AccessToken:   params.AccessToken,
		RefreshToken:  params.RefreshToken,
		ExpiresAt:     params.ExpiresAt,
		PrivateKeyPEM: params.PrivateKeyPEM,
		PublicKeyJWK:  params.PublicKeyJWK,
		SyncEnabled:   true,
		UpdatedAt:     time.Now(),
	}
	copied := *r.cred
	return &copied, nil
}

func (r *fakeCredentialRepo) UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time, prevUpdatedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.loseSwapOnce {
		// Simulate a concurrent run winning the refresh race.
		r.loseSwapOnce = false
		r.cred.AccessToken = "winner-token"
		r.cred.ExpiresAt = time.Now().Add(time.Hour)
		r.cred.UpdatedAt = time.Now()
		return false, nil
	}
	r.cred.AccessToken = accessToken
	r.cred.RefreshToken = refreshToken
	r.cred.ExpiresAt = expiresAt
	r.cred.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeCredentialRepo) MarkSynced(ctx context.Context, id string, at time.Time) error {
	return nil
}

func seededCredentialRepo(t *testing.T, accessToken string, expiresAt time.Time) *fakeCredentialRepo {
	t.Helper()
	privatePEM, publicJWK, err := generateKeyPair()
	require.NoError(t, err)
	return &fakeCredentialRepo{
		cred: &model.TelemetryCredential{
			ID:            "cred-1",
			OrgID:         "org-1",
			AccessToken:   accessToken,
			RefreshToken:  "refresh-1",
			ExpiresAt:     expiresAt,
			PrivateKeyPEM: privatePEM,
			PublicKeyJWK:  publicJWK,
			SyncEnabled:   true,
			UpdatedAt:     time.Now(),
		},
	}
}

func tokenEndpoint(t *testing.T, accessToken string, calls *int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.NotEmpty(t, r.FormValue("refresh_token"))
		if calls != nil {
			*calls++
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  accessToken,
			"refresh_token": "refresh-next",
			"expires_in":    3600,
		})
	}))
}

func TestNextAuthState(t *testing.T) {
	t.Run("success terminates the ladder in place", func(t *testing.T) {
		assert.Equal(t, authBearer, nextAuthState(authBearer, false))
		assert.Equal(t, authProof, nextAuthState(authProof, false))
	})

	t.Run("unauthorized escalates bearer to proof to refresh to failure", func(t *testing.T) {
		assert.Equal(t, authProof, nextAuthState(authBearer, true))
		assert.Equal(t, authRefreshed, nextAuthState(authProof, true))
		assert.Equal(t, authFailed, nextAuthState(authRefreshed, true))
		assert.Equal(t, authFailed, nextAuthState(authFailed, true))
	})
}

func TestClient_Get_BearerSucceeds(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get(PoPHeader))
		w.Write([]byte(`{}`))
	}))
	defer api.Close()

	repo := seededCredentialRepo(t, "token-1", time.Now().Add(time.Hour))
	client := NewClient(Settings{OrgID: "org-1"}, repo)

	resp, err := client.Get(context.Background(), api.URL+"/v1/test")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Zero(t, repo.updateCalls)
}

func TestClient_Get_ProofRetryWithoutRefresh(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(PoPHeader) == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer api.Close()

	repo := seededCredentialRepo(t, "token-1", time.Now().Add(time.Hour))
	client := NewClient(Settings{OrgID: "org-1"}, repo)

	resp, err := client.Get(context.Background(), api.URL+"/v1/test")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The proof retry succeeded, so no refresh ran and the stored access
	// token is untouched.
	assert.Zero(t, repo.updateCalls)
	assert.Equal(t, "token-1", repo.cred.AccessToken)
}

func TestClient_Get_RefreshAfterProofRejected(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer api.Close()

	var tokenCalls int
	tokens := tokenEndpoint(t, "token-2", &tokenCalls)
	defer tokens.Close()

	repo := seededCredentialRepo(t, "token-1", time.Now().Add(time.Hour))
	client := NewClient(Settings{OrgID: "org-1", TokenURL: tokens.URL}, repo)

	resp, err := client.Get(context.Background(), api.URL+"/v1/test")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, tokenCalls)
	assert.Equal(t, "token-2", repo.cred.AccessToken)
}

func TestClient_Get_HardErrorAfterLadderExhausted(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer api.Close()

	tokens := tokenEndpoint(t, "token-2", nil)
	defer tokens.Close()

	repo := seededCredentialRepo(t, "token-1", time.Now().Add(time.Hour))
	client := NewClient(Settings{OrgID: "org-1", TokenURL: tokens.URL}, repo)

	_, err := client.Get(context.Background(), api.URL+"/v1/test")
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeUpstreamAuth, appErr.Code)
}

func TestClient_AccessToken_RefreshesNearExpiry(t *testing.T) {
	var tokenCalls int
	tokens := tokenEndpoint(t, "token-2", &tokenCalls)
	defer tokens.Close()

	// 30s left is inside the 60s slack.
	repo := seededCredentialRepo(t, "token-1", time.Now().Add(30*time.Second))
	client := NewClient(Settings{OrgID: "org-1", TokenURL: tokens.URL}, repo)

	token, err := client.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.Equal(t, 1, tokenCalls)
}

func TestClient_AccessToken_ReusesFreshToken(t *testing.T) {
	repo := seededCredentialRepo(t, "token-1", time.Now().Add(time.Hour))
	client := NewClient(Settings{OrgID: "org-1"}, repo)

	token, err := client.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Zero(t, repo.updateCalls)
}

func TestClient_AccessToken_ConcurrentRefreshLoserUsesWinner(t *testing.T) {
	tokens := tokenEndpoint(t, "loser-token", nil)
	defer tokens.Close()

	repo := seededCredentialRepo(t, "token-1", time.Now().Add(-time.Minute))
	repo.loseSwapOnce = true
	client := NewClient(Settings{OrgID: "org-1", TokenURL: tokens.URL}, repo)

	token, err := client.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "winner-token", token)
}

func TestClient_Bootstrap(t *testing.T) {
	tokens := tokenEndpoint(t, "first-token", nil)
	defer tokens.Close()

	repo := &fakeCredentialRepo{}
	client := NewClient(Settings{
		OrgID:                 "org-1",
		TokenURL:              tokens.URL,
		BootstrapRefreshToken: "bootstrap-refresh",
	}, repo)

	cred, err := client.Credential(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, repo.createCalls)
	assert.Equal(t, "first-token", cred.AccessToken)

	// Key pair is generated at bootstrap and persisted alongside the
	// tokens.
	assert.NotEmpty(t, cred.PrivateKeyPEM)
	assert.NotEmpty(t, cred.PublicKeyJWK)
	_, err = parsePrivateKey(cred.PrivateKeyPEM)
	assert.NoError(t, err)
}

func TestClient_Bootstrap_NotConfigured(t *testing.T) {
	repo := &fakeCredentialRepo{}
	client := NewClient(Settings{OrgID: "org-1"}, repo)

	_, err := client.Credential(context.Background())
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeNotConfigured, appErr.Code)
}
