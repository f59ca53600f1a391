// Package onboardsdk is a typed HTTP client for the CampusKeep onboarding
// service. It is consumed by other CampusKeep services and by the black-box
// e2e suite.
package onboardsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is the typed form of an ErrorResponse, returned whenever the
// server answers with a non-success status.
type APIError struct {
	Status      int
	Code        string
	Description string
	RetryAfter  *time.Time
}

func (e *APIError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("onboard api: %s (%s)", e.Description, e.Code)
	}
	return fmt.Sprintf("onboard api: %s [%d]", e.Code, e.Status)
}

// SDKClient talks to one onboarding service instance.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client with a sane default timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Livez probes service liveness.
func (c *SDKClient) Livez(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/livez", "", nil, &out, http.StatusOK)
	return out, err
}

// Readyz probes readiness, including the store connection.
func (c *SDKClient) Readyz(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/readyz", "", nil, &out, http.StatusOK)
	return out, err
}

// SignIn authenticates an existing account and returns a session token.
func (c *SDKClient) SignIn(ctx context.Context, req SignInRequest) (SignInResponse, error) {
	var out SignInResponse
	err := c.do(ctx, http.MethodPost, "/v1/sessions", "", req, &out, http.StatusOK)
	return out, err
}

// CreateSetupToken mints a setup token (operator-guarded).
func (c *SDKClient) CreateSetupToken(ctx context.Context, req CreateSetupTokenRequest) (SetupTokenResponse, error) {
	var out SetupTokenResponse
	err := c.do(ctx, http.MethodPost, "/v1/setup/tokens", "", req, &out, http.StatusCreated)
	return out, err
}

// ValidateSetupToken checks a setup token without consuming it.
func (c *SDKClient) ValidateSetupToken(ctx context.Context, req ValidateTokenRequest) (ValidateTokenResponse, error) {
	var out ValidateTokenResponse
	err := c.do(ctx, http.MethodPost, "/v1/setup/validate", "", req, &out, http.StatusOK)
	return out, err
}

// CompleteSetup redeems a setup token and bootstraps a tenant.
func (c *SDKClient) CompleteSetup(ctx context.Context, req CompleteSetupRequest) (CompleteSetupResponse, error) {
	var out CompleteSetupResponse
	err := c.do(ctx, http.MethodPost, "/v1/setup/complete", "", req, &out, http.StatusCreated)
	return out, err
}

// CreateInvitation mints an invitation token. Requires a session token from
// a tenant admin.
func (c *SDKClient) CreateInvitation(ctx context.Context, sessionToken string, req CreateInvitationRequest) (InvitationResponse, error) {
	var out InvitationResponse
	err := c.do(ctx, http.MethodPost, "/v1/invitations", sessionToken, req, &out, http.StatusCreated)
	return out, err
}

// ValidateInvitation checks an invitation token without consuming it.
func (c *SDKClient) ValidateInvitation(ctx context.Context, req ValidateTokenRequest) (ValidateTokenResponse, error) {
	var out ValidateTokenResponse
	err := c.do(ctx, http.MethodPost, "/v1/invitations/validate", "", req, &out, http.StatusOK)
	return out, err
}

// AcceptInvitation consumes an invitation token and registers the member.
func (c *SDKClient) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (AcceptInvitationResponse, error) {
	var out AcceptInvitationResponse
	err := c.do(ctx, http.MethodPost, "/v1/invitations/accept", "", req, &out, http.StatusCreated)
	return out, err
}

// CancelInvitation revokes a still-open invitation. Admin session required.
func (c *SDKClient) CancelInvitation(ctx context.Context, sessionToken string, req CancelInvitationRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/invitations/cancel", sessionToken, req, nil, http.StatusNoContent)
}

// ResendInvitation rotates an invitation's token. Admin session required.
func (c *SDKClient) ResendInvitation(ctx context.Context, sessionToken string, req ResendInvitationRequest) (InvitationResponse, error) {
	var out InvitationResponse
	err := c.do(ctx, http.MethodPost, "/v1/invitations/resend", sessionToken, req, &out, http.StatusCreated)
	return out, err
}

// SuspiciousActivity fetches the trailing-24h report for the session's
// tenant.
func (c *SDKClient) SuspiciousActivity(ctx context.Context, sessionToken, tenantID string) (SuspiciousActivityResponse, error) {
	var out SuspiciousActivityResponse
	err := c.do(ctx, http.MethodGet, "/v1/audit/suspicious?tenant_id="+tenantID, sessionToken, nil, &out, http.StatusOK)
	return out, err
}

// Stats fetches the audit rollup.
func (c *SDKClient) Stats(ctx context.Context, sessionToken, tenantID string, days int) (StatsResponse, error) {
	var out StatsResponse
	path := fmt.Sprintf("/v1/audit/stats?tenant_id=%s&days=%d", tenantID, days)
	err := c.do(ctx, http.MethodGet, path, sessionToken, nil, &out, http.StatusOK)
	return out, err
}

// QueueStatus returns the email delivery queue snapshot.
func (c *SDKClient) QueueStatus(ctx context.Context, sessionToken string) (QueueStatusResponse, error) {
	var out QueueStatusResponse
	err := c.do(ctx, http.MethodGet, "/v1/queue/status", sessionToken, nil, &out, http.StatusOK)
	return out, err
}

// do executes one request/response round trip. A nil out with
// expectedStatus 204 skips body decoding.
func (c *SDKClient) do(
	ctx context.Context,
	method, path, sessionToken string,
	in, out any,
	expectedStatus int,
) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+sessionToken)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != expectedStatus {
		var er ErrorResponse
		if json.Unmarshal(raw, &er) == nil && er.Error != "" {
			return &APIError{
				Status:      resp.StatusCode,
				Code:        er.Error,
				Description: er.ErrorDescription,
				RetryAfter:  er.RetryAfter,
			}
		}
		return &APIError{Status: resp.StatusCode, Code: "unexpected_status"}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
