package onboardsdk

import "time"

// ErrorResponse is the wire shape of every error returned by the onboarding
// API.
type ErrorResponse struct {
	// Error is a short machine-readable code (e.g. "invalid_request",
	// "rate_limited").
	Error string `json:"error"`

	// ErrorDescription is a human-readable description of the error.
	ErrorDescription string `json:"error_description"`

	// RetryAfter is the window reset time for rate-limited requests.
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

// HealthResponse is returned by the /livez and /readyz probes.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

// QueueStatusResponse is a point-in-time snapshot of the email delivery
// queue.
type QueueStatusResponse struct {
	Pending int `json:"pending"`
	Sending int `json:"sending"`
	Total   int `json:"total"`
}

// SignInRequest authenticates an existing account.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignInResponse carries the minted session token.
type SignInResponse struct {
	SessionToken string `json:"session_token"`
}

// CreateInvitationRequest mints an invitation token. The issuer is taken
// from the session, the client identifier from the connection.
type CreateInvitationRequest struct {
	TenantID string `json:"tenant_id"`
	Email    string `json:"email"`
	Role     string `json:"role"`
}

// InvitationResponse is returned from invitation minting and resending.
// InvitationToken is the plaintext token and appears exactly once.
type InvitationResponse struct {
	TokenID         string    `json:"token_id"`
	InvitationToken string    `json:"invitation_token"`
	TenantID        string    `json:"tenant_id"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	ExpiresAt       time.Time `json:"expires_at"`
}

// ValidateTokenRequest checks a presented token without consuming it.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// ValidateTokenResponse reports whether the token is acceptable and, when it
// is, its claims.
type ValidateTokenResponse struct {
	Valid     bool      `json:"valid"`
	Email     string    `json:"email,omitempty"`
	Role      string    `json:"role,omitempty"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// AcceptInvitationRequest consumes an invitation token and registers the
// new member.
type AcceptInvitationRequest struct {
	Token    string `json:"token"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// AcceptInvitationResponse describes the created account. SessionToken is
// empty when the automatic sign-in failed; the account still exists.
type AcceptInvitationResponse struct {
	AccountID    string `json:"account_id"`
	TenantID     string `json:"tenant_id"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	SessionToken string `json:"session_token,omitempty"`
}

// CancelInvitationRequest revokes a still-open invitation.
type CancelInvitationRequest struct {
	TenantID string `json:"tenant_id"`
	TokenID  string `json:"token_id"`
}

// ResendInvitationRequest rotates the token of a still-open invitation and
// queues a fresh email.
type ResendInvitationRequest struct {
	TenantID string `json:"tenant_id"`
	TokenID  string `json:"token_id"`
}

// CreateSetupTokenRequest mints a setup token. Guarded by the operator
// token configured on the service.
type CreateSetupTokenRequest struct {
	OperatorToken string `json:"operator_token"`
	Email         string `json:"email"`
	TTLHours      int    `json:"ttl_hours,omitempty"`
}

// SetupTokenResponse carries the plaintext setup token exactly once.
type SetupTokenResponse struct {
	TokenID    string    `json:"token_id"`
	SetupToken string    `json:"setup_token"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CompleteSetupRequest redeems a setup token and bootstraps the tenant.
type CompleteSetupRequest struct {
	Token      string `json:"token"`
	TenantName string `json:"tenant_name"`
	Subdomain  string `json:"subdomain"`
	AdminName  string `json:"admin_name"`
	Password   string `json:"password"`
}

// CompleteSetupResponse describes the bootstrapped tenant and its first
// administrator.
type CompleteSetupResponse struct {
	TenantID     string `json:"tenant_id"`
	Subdomain    string `json:"subdomain"`
	AccountID    string `json:"account_id"`
	Email        string `json:"email"`
	SessionToken string `json:"session_token,omitempty"`
}

// SuspiciousSubject is one row of the suspicious-activity report.
type SuspiciousSubject struct {
	Subject       string    `json:"subject"`
	EventCount    int       `json:"event_count"`
	DistinctKinds int       `json:"distinct_kinds"`
	RiskLevel     string    `json:"risk_level"`
	LastEvent     time.Time `json:"last_event"`
}

// SuspiciousActivityResponse wraps the trailing-24h report.
type SuspiciousActivityResponse struct {
	Subjects []SuspiciousSubject `json:"subjects"`
}

// SecurityEventSummary is the wire shape of one audit record in a stats
// rollup. The detail payload is deliberately omitted.
type SecurityEventSummary struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Severity  string    `json:"severity"`
	ClientID  string    `json:"client_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// StatsResponse is the audit rollup for operator dashboards.
type StatsResponse struct {
	TotalEvents        int                    `json:"total_events"`
	CriticalEvents     int                    `json:"critical_events"`
	HighSeverityEvents int                    `json:"high_severity_events"`
	UniqueClients      int                    `json:"unique_clients"`
	MostCommonKind     string                 `json:"most_common_kind,omitempty"`
	RecentEvents       []SecurityEventSummary `json:"recent_events"`
}
