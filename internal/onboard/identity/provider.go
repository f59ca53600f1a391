// Package identity abstracts the external identity provider the onboarding
// flows depend on: create an identity first, then (and only then) create the
// application account under the same ID.
package identity

import (
	"context"
	"errors"
)

var (
	ErrIdentityExists     = errors.New("identity: email already registered")
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	ErrInvalidSession     = errors.New("identity: invalid or expired session")
)

// Identity is the provider's view of a principal.
type Identity struct {
	ID    string
	Email string
}

// Provider is the external identity collaborator. Implementations may not
// expose a delete operation, which is why acceptance flows never attempt to
// roll an identity back after a downstream failure.
type Provider interface {
	// CreateIdentity registers email with the given password and returns
	// the new identity. Fails with ErrIdentityExists on duplicates.
	CreateIdentity(ctx context.Context, email, password string) (Identity, error)

	// SignIn verifies credentials and returns an opaque session token.
	SignIn(ctx context.Context, email, password string) (string, error)

	// CurrentIdentity resolves a session token back to its identity.
	CurrentIdentity(ctx context.Context, sessionToken string) (Identity, error)
}
