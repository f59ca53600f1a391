package store

import (
	"context"
	"errors"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement this. It exposes sub-repositories to keep concerns
// tidy and testable.
type Store interface {
	Tokens() Tokens
	Tenants() Tenants
	Accounts() Accounts
	Identities() Identities
	SecurityEvents() SecurityEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. This is the
	// recommended way to handle multi-step atomic operations (account
	// creation plus token consumption).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds
// Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Tokens interface {
	// CreateToken inserts a new onboarding token record (hash only, never
	// the plaintext).
	CreateToken(ctx context.Context, t domain.OnboardingToken) error

	// GetTokenByID returns a token by id.
	GetTokenByID(ctx context.Context, id string) (domain.OnboardingToken, error)

	// ListOpenTokens returns every token of the given kind that has not
	// been accepted or cancelled, including expired ones. Verification is a
	// hash-equality scan over this set because the salt is unknown until a
	// match is found, and expired tokens must still match so that expiry
	// can be reported (and audited) distinctly from "no such token".
	ListOpenTokens(ctx context.Context, kind domain.TokenKind) ([]domain.OnboardingToken, error)

	// GetOpenInvitationByEmail returns an unaccepted, uncancelled,
	// unexpired invitation for the email within the tenant, if one exists.
	GetOpenInvitationByEmail(ctx context.Context, tenantID, email string, now time.Time) (domain.OnboardingToken, error)

	// ConsumeToken marks the token accepted iff it is still open: a single
	// conditional UPDATE ... WHERE accepted_at IS NULL AND cancelled_at IS
	// NULL. Returns ErrNotFound when the token was already consumed or
	// cancelled, which is what closes the concurrent-acceptance race.
	ConsumeToken(ctx context.Context, id, acceptedBy string, at time.Time) error

	// CancelToken marks the token cancelled under the same conditional
	// discipline as ConsumeToken.
	CancelToken(ctx context.Context, id string, at time.Time) error

	// ResetTokenCredentials replaces the hash and expiry of a still-open
	// token (resend) while preserving the record's identity.
	ResetTokenCredentials(ctx context.Context, id, tokenHash string, expiresAt time.Time) error

	// DeleteTokensExpiredBefore is housekeeping: expired tokens are kept
	// for forensics and only reclaimed well after expiry.
	DeleteTokensExpiredBefore(ctx context.Context, cutoff time.Time) error
}

type Tenants interface {
	// CreateTenant inserts a new tenant (id is provided by app via ULID).
	CreateTenant(ctx context.Context, t domain.Tenant) error

	// GetTenantByID returns a tenant by id.
	GetTenantByID(ctx context.Context, id string) (domain.Tenant, error)

	// GetTenantBySubdomain is used for the subdomain-uniqueness check
	// during initial setup.
	GetTenantBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error)
}

type Accounts interface {
	// CreateAccount inserts a new account. The id must equal the external
	// identity's id.
	CreateAccount(ctx context.Context, a domain.Account) error

	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// GetAccountByEmail returns the account for email within tenant, used
	// for the duplicate-member check.
	GetAccountByEmail(ctx context.Context, tenantID, email string) (domain.Account, error)
}

type Identities interface {
	// CreateIdentity inserts a credential record for the local identity
	// provider. Email is unique across all tenants.
	CreateIdentity(ctx context.Context, i domain.Identity) error

	// GetIdentityByID returns an identity by id.
	GetIdentityByID(ctx context.Context, id string) (domain.Identity, error)

	// GetIdentityByEmail returns an identity by email.
	GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error)
}

type SecurityEvents interface {
	// InsertEvent appends one audit record. There is deliberately no
	// update or single-delete operation.
	InsertEvent(ctx context.Context, ev domain.SecurityEvent) error

	// ListEventsSince returns events created at or after since, newest
	// first. tenantID "" means all tenants (operator queries). Tenant
	// queries also include events with no tenant attribution.
	ListEventsSince(ctx context.Context, tenantID string, since time.Time) ([]domain.SecurityEvent, error)
}
