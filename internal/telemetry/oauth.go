package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatterdesk/presence-engine/internal/audit"
	"github.com/chatterdesk/presence-engine/internal/config"
	apperrors "github.com/chatterdesk/presence-engine/internal/errors"
	"github.com/chatterdesk/presence-engine/internal/model"
	"github.com/chatterdesk/presence-engine/internal/repository"
)

type Settings struct {
	BaseURL               string
	TokenURL              string
	OrgID                 string
	BootstrapRefreshToken string
}

// Client maintains the OAuth session against the telemetry provider.
// The credential row is the one piece of shared state across runs;
// concurrent refreshes resolve through compare-and-swap, latest winner's
// tokens are used by everyone.
type Client struct {
	settings Settings
	http     *http.Client
	creds    repository.TelemetryCredentialRepository
}

func NewClient(settings Settings, creds repository.TelemetryCredentialRepository) *Client {
	return &Client{
		settings: settings,
		http:     &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
	}
}

// authState models the retry-then-escalate ladder for provider requests:
// plain bearer first, a signed proof-of-possession retry on unauthorized,
// then one forced refresh, then a hard error. Each transition is pure so
// the ladder can be tested without a network.
type authState int

const (
	authBearer authState = iota
	authProof
	authRefreshed
	authFailed
)

// nextAuthState advances the ladder after a response. Any non-unauthorized
// outcome terminates it; the caller returns that response as-is.
func nextAuthState(state authState, unauthorized bool) authState {
	if !unauthorized {
		return state
	}
	switch state {
	case authBearer:
		return authProof
	case authProof:
		return authRefreshed
	default:
		return authFailed
	}
}

// Credential returns the current credential row, bootstrapping one from the
// configured refresh token when none exists yet.
func (c *Client) Credential(ctx context.Context) (*model.TelemetryCredential, error) {
	cred, err := c.creds.FindByOrg(ctx, c.settings.OrgID)
	if err != nil {
		return nil, apperrors.Database("load telemetry credential", err)
	}
	if cred != nil {
		return cred, nil
	}
	return c.bootstrap(ctx)
}

// AccessToken returns a token valid for at least the expiry slack,
// refreshing first when necessary.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	cred, err := c.Credential(ctx)
	if err != nil {
		return "", err
	}
	if time.Until(cred.ExpiresAt) > config.TokenExpirySlack {
		return cred.AccessToken, nil
	}
	cred, err = c.refresh(ctx, cred)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Get performs an authorized GET against the provider, walking the auth
// ladder on unauthorized responses. The caller owns the response body.
func (c *Client) Get(ctx context.Context, requestURL string) (*http.Response, error) {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	state := authBearer
	for {
		var resp *http.Response
		switch state {
		case authBearer, authRefreshed:
			resp, err = c.send(ctx, requestURL, token, "")
		case authProof:
			proof, signErr := c.proofFor(ctx, http.MethodGet, requestURL, token)
			if signErr != nil {
				return nil, signErr
			}
			resp, err = c.send(ctx, requestURL, token, proof)
		case authFailed:
			return nil, apperrors.UpstreamAuth("telemetry provider rejected all authorization attempts", nil)
		}
		if err != nil {
			return nil, apperrors.External("telemetry request failed", err)
		}

		unauthorized := resp.StatusCode == http.StatusUnauthorized
		if !unauthorized {
			return resp, nil
		}
		resp.Body.Close()

		next := nextAuthState(state, true)
		log.Debug().
			Int("from", int(state)).
			Int("to", int(next)).
			Str("url", requestURL).
			Msg("telemetry auth ladder advanced")

		if next == authRefreshed {
			cred, refreshErr := c.Credential(ctx)
			if refreshErr != nil {
				return nil, refreshErr
			}
			cred, refreshErr = c.refresh(ctx, cred)
			if refreshErr != nil {
				return nil, refreshErr
			}
			token = cred.AccessToken
		}
		state = next
	}
}

func (c *Client) send(ctx context.Context, requestURL, token, proof string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if proof != "" {
		req.Header.Set(PoPHeader, proof)
	}
	return c.http.Do(req)
}

func (c *Client) proofFor(ctx context.Context, method, requestURL, token string) (string, error) {
	cred, err := c.Credential(ctx)
	if err != nil {
		return "", err
	}
	key, err := parsePrivateKey(cred.PrivateKeyPEM)
	if err != nil {
		return "", apperrors.Internal("stored telemetry key is unreadable").WithCause(err)
	}
	return signProof(key, cred.PublicKeyJWK, method, requestURL, token, time.Now())
}

// bootstrap exchanges the out-of-band refresh token for a first access
// token and persists it together with a freshly generated key pair.
func (c *Client) bootstrap(ctx context.Context) (*model.TelemetryCredential, error) {
	if c.settings.BootstrapRefreshToken == "" {
		return nil, apperrors.NotConfigured("no telemetry credential and no bootstrap refresh token")
	}

	tokens, err := c.exchange(ctx, c.settings.BootstrapRefreshToken)
	if err != nil {
		return nil, err
	}

	privateKeyPEM, publicKeyJWK, err := generateKeyPair()
	if err != nil {
		return nil, apperrors.Internal("generate telemetry key pair").WithCause(err)
	}

	cred, err := c.creds.Create(ctx, model.CreateTelemetryCredentialParams{
		OrgID:         c.settings.OrgID,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		ExpiresAt:     tokens.ExpiresAt,
		PrivateKeyPEM: privateKeyPEM,
		PublicKeyJWK:  publicKeyJWK,
	})
	if err != nil {
		return nil, apperrors.Database("persist telemetry credential", err)
	}

	audit.Log(ctx, audit.Event{
		Type:  audit.EventCredentialBootstrap,
		OrgID: c.settings.OrgID,
	})
	return cred, nil
}

// refresh runs the refresh-token grant and applies the result with
// compare-and-swap. Losing the swap means a concurrent run refreshed
// first; its tokens win and are used instead.
func (c *Client) refresh(ctx context.Context, cred *model.TelemetryCredential) (*model.TelemetryCredential, error) {
	tokens, err := c.exchange(ctx, cred.RefreshToken)
	if err != nil {
		return nil, err
	}

	swapped, err := c.creds.UpdateTokens(ctx, cred.ID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt, cred.UpdatedAt)
	if err != nil {
		return nil, apperrors.Database("store refreshed tokens", err)
	}
	if !swapped {
		log.Info().Str("orgId", cred.OrgID).Msg("concurrent token refresh won, using its tokens")
	}

	updated, err := c.creds.FindByOrg(ctx, c.settings.OrgID)
	if err != nil {
		return nil, apperrors.Database("reload telemetry credential", err)
	}
	if updated == nil {
		return nil, apperrors.NotConfigured("telemetry credential disappeared during refresh")
	}

	audit.Log(ctx, audit.Event{
		Type:    audit.EventCredentialRefresh,
		OrgID:   cred.OrgID,
		Details: map[string]interface{}{"swapped": swapped},
	})
	return updated, nil
}

type tokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// exchange performs the plain OAuth2 refresh grant. The token endpoint
// never requires proof-of-possession.
func (c *Client) exchange(ctx context.Context, refreshToken string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.External("telemetry token endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, apperrors.UpstreamAuth(
			fmt.Sprintf("token refresh rejected with status %d", resp.StatusCode), nil,
		).WithDetails(strings.TrimSpace(string(body)))
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.External("decode token response", err)
	}
	if payload.AccessToken == "" {
		return nil, apperrors.UpstreamAuth("token response missing access_token", nil)
	}

	newRefresh := payload.RefreshToken
	if newRefresh == "" {
		// Providers that do not rotate keep the old refresh token valid.
		newRefresh = refreshToken
	}

	return &tokenResponse{
		AccessToken:  payload.AccessToken,
		RefreshToken: newRefresh,
		ExpiresAt:    time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second),
	}, nil
}
