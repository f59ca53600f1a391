package domain

import "time"

// TokenKind distinguishes the two onboarding credentials.
type TokenKind string

const (
	// TokenKindSetup bootstraps a brand-new tenant and its first admin.
	TokenKindSetup TokenKind = "setup"
	// TokenKindInvitation lets a named email join an existing tenant.
	TokenKindInvitation TokenKind = "invitation"
)

// OnboardingToken is the durable record of a setup or invitation token.
// Only the salted hash is ever persisted; the plaintext token exists in
// memory and in the one-time delivery email.
type OnboardingToken struct {
	ID   string
	Kind TokenKind
	// TenantID is empty for setup tokens (the tenant does not exist yet).
	TenantID string
	// Role granted on acceptance.
	Role string
	// Email the token was issued for.
	Email string
	// TokenHash is "<salt-hex>:<sha256-hex>" per cryptox.HashToken.
	TokenHash string
	// IssuedBy is the issuing account ID, or "operator" for out-of-band
	// setup tokens.
	IssuedBy  string
	ExpiresAt time.Time
	// AcceptedAt transitions from nil to non-nil exactly once.
	AcceptedAt *time.Time
	// AcceptedBy is the account created by the acceptance.
	AcceptedBy string
	// CancelledAt is set when an issuer explicitly revokes the token.
	CancelledAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsExpired reports whether the token has passed its expiry.
func (t OnboardingToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsUsable reports whether the token can still be accepted: not consumed,
// not cancelled, not expired.
func (t OnboardingToken) IsUsable(now time.Time) bool {
	return t.AcceptedAt == nil && t.CancelledAt == nil && !t.IsExpired(now)
}
