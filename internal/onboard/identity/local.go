package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/cryptox"
	"github.com/campuskeep/campuskeep/pkg/idx"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultSessionTTL bounds how long a sign-in session token stays valid.
const DefaultSessionTTL = 12 * time.Hour

// LocalProvider is a Provider backed by the service's own database:
// Argon2id credentials plus HS256 session tokens. Deployments with a real
// external IdP swap this out behind the Provider interface.
type LocalProvider struct {
	Store  store.Store
	Secret []byte
	Issuer string
	TTL    time.Duration
}

func (p *LocalProvider) CreateIdentity(ctx context.Context, email, password string) (Identity, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return Identity{}, fmt.Errorf("hash password: %w", err)
	}

	id := idx.New().String()
	err = p.Store.Identities().CreateIdentity(ctx, domain.Identity{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return Identity{}, ErrIdentityExists
		}
		return Identity{}, err
	}

	return Identity{ID: id, Email: email}, nil
}

func (p *LocalProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	ident, err := p.Store.Identities().GetIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := cryptox.VerifyPassword(password, ident.PasswordHash); err != nil {
		return "", ErrInvalidCredentials
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    p.Issuer,
		Subject:   ident.ID,
		Audience:  jwt.ClaimStrings{ident.Email},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.Secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

func (p *LocalProvider) CurrentIdentity(ctx context.Context, sessionToken string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(
		sessionToken,
		&jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
			}
			return p.Secret, nil
		},
		jwt.WithIssuer(p.Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return Identity{}, ErrInvalidSession
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return Identity{}, ErrInvalidSession
	}

	ident, err := p.Store.Identities().GetIdentityByID(ctx, claims.Subject)
	if err != nil {
		return Identity{}, ErrInvalidSession
	}

	return Identity{ID: ident.ID, Email: ident.Email}, nil
}

// Authenticate adapts the provider to the httpx.Authenticator interface.
func (p *LocalProvider) Authenticate(ctx context.Context, token string) (string, string, error) {
	ident, err := p.CurrentIdentity(ctx, token)
	if err != nil {
		return "", "", err
	}
	return ident.ID, ident.Email, nil
}
