package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

func TestCreateSetupTokenRequiresOperatorToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		token string
	}{
		{name: "wrong token", token: "guessed"},
		{name: "empty token", token: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := env.setup.CreateSetupToken(ctx, tc.token, "founder@school.edu", 0, "client-1")
			require.ErrorIs(t, err, ErrInvalidOperatorToken)
		})
	}

	require.Len(t, env.eventsOfKind(t, domain.EventAuthFailure), 2)
}

func TestCreateSetupTokenMintingDisabledWithoutConfig(t *testing.T) {
	env := newTestEnv(t)
	env.setup.OperatorToken = ""

	// An empty configured token must not mean "anything matches".
	_, _, err := env.setup.CreateSetupToken(context.Background(), "", "founder@school.edu", 0, "client-1")
	require.ErrorIs(t, err, ErrInvalidOperatorToken)
}

func TestCreateSetupTokenDefaults(t *testing.T) {
	env := newTestEnv(t)

	token, record, err := env.setup.CreateSetupToken(context.Background(), "operator-secret", "founder@school.edu", 0, "client-1")
	require.NoError(t, err)
	require.Regexp(t, hexToken, token)
	require.Equal(t, domain.TokenKindSetup, record.Kind)
	require.Empty(t, record.TenantID, "no tenant exists yet")
	require.Equal(t, domain.RoleAdmin, record.Role)
	require.Equal(t, "operator", record.IssuedBy)
	require.Equal(t, env.clock.Add(DefaultSetupTTL), record.ExpiresAt)
}

func TestCompleteSetupHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, record, err := env.setup.CreateSetupToken(ctx, "operator-secret", "founder@school.edu", 48*time.Hour, "client-1")
	require.NoError(t, err)
	require.Equal(t, env.clock.Add(48*time.Hour), record.ExpiresAt)

	req := SetupRequest{
		TenantName: "Northside High",
		Subdomain:  "northside",
		AdminName:  "Pat Founder",
		Password:   "s3cret-pass",
	}
	tenant, account, session, err := env.setup.CompleteSetup(ctx, token, req, "client-2")
	require.NoError(t, err)

	require.Equal(t, "Northside High", tenant.Name)
	require.Equal(t, "northside", tenant.Subdomain)
	require.Equal(t, tenant.ID, account.TenantID)
	require.Equal(t, domain.RoleAdmin, account.Role)
	require.Equal(t, "founder@school.edu", account.Email)
	require.Equal(t, "session-founder@school.edu", session)

	// Everything is durable.
	storedTenant, err := env.store.Tenants().GetTenantBySubdomain(ctx, "northside")
	require.NoError(t, err)
	require.Equal(t, tenant.ID, storedTenant.ID)

	storedToken, err := env.store.Tokens().GetTokenByID(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, storedToken.AcceptedAt)
	require.Equal(t, account.ID, storedToken.AcceptedBy)

	used := env.eventsOfKind(t, domain.EventSetupTokenUsed)
	require.Len(t, used, 1)
	require.Equal(t, domain.SeverityLow, used[0].Severity)

	require.Equal(t, 1, env.queue.Status().Pending, "confirmation email queued")
}

func TestCompleteSetupValidatesInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, _, err := env.setup.CreateSetupToken(ctx, "operator-secret", "founder@school.edu", 0, "client-1")
	require.NoError(t, err)

	base := SetupRequest{
		TenantName: "Northside High",
		Subdomain:  "northside",
		Password:   "s3cret-pass",
	}

	t.Run("missing tenant name", func(t *testing.T) {
		req := base
		req.TenantName = ""
		_, _, _, err := env.setup.CompleteSetup(ctx, token, req, "client-1")
		require.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("missing password", func(t *testing.T) {
		req := base
		req.Password = ""
		_, _, _, err := env.setup.CompleteSetup(ctx, token, req, "client-1")
		require.ErrorIs(t, err, ErrMissingField)
	})

	t.Run("invalid subdomain", func(t *testing.T) {
		for _, sub := range []string{"", "Has_Upper", "spaced out", "-leading", "trailing-"} {
			req := base
			req.Subdomain = sub
			_, _, _, err := env.setup.CompleteSetup(ctx, token, req, "client-1")
			require.ErrorIs(t, err, ErrInvalidSubdomain, "subdomain %q", sub)
		}
	})
}

func TestCompleteSetupSubdomainTaken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedTenant(t, "northside")

	token, _, err := env.setup.CreateSetupToken(ctx, "operator-secret", "founder@school.edu", 0, "client-1")
	require.NoError(t, err)

	req := SetupRequest{
		TenantName: "Impostor High",
		Subdomain:  "northside",
		Password:   "s3cret-pass",
	}
	_, _, _, err = env.setup.CompleteSetup(ctx, token, req, "client-2")
	require.ErrorIs(t, err, ErrSubdomainTaken)

	require.Len(t, env.eventsOfKind(t, domain.EventSetupTokenFailed), 1)
}

func TestCompleteSetupExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, _, err := env.setup.CreateSetupToken(ctx, "operator-secret", "founder@school.edu", time.Hour, "client-1")
	require.NoError(t, err)

	env.clock = env.clock.Add(2 * time.Hour)

	req := SetupRequest{
		TenantName: "Northside High",
		Subdomain:  "northside",
		Password:   "s3cret-pass",
	}
	_, _, _, err = env.setup.CompleteSetup(ctx, token, req, "client-1")
	require.ErrorIs(t, err, ErrTokenExpired)

	require.Len(t, env.eventsOfKind(t, domain.EventSetupTokenFailed), 1)
}

func TestCompleteSetupSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	token, _, err := env.setup.CreateSetupToken(ctx, "operator-secret", "founder@school.edu", 0, "client-1")
	require.NoError(t, err)

	req := SetupRequest{
		TenantName: "Northside High",
		Subdomain:  "northside",
		Password:   "s3cret-pass",
	}
	_, _, _, err = env.setup.CompleteSetup(ctx, token, req, "client-1")
	require.NoError(t, err)

	req.Subdomain = "northside-two"
	_, _, _, err = env.setup.CompleteSetup(ctx, token, req, "client-1")
	require.ErrorIs(t, err, ErrInvalidToken, "consumed token no longer matches")
}
