package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

var hexToken = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestCreateInvitationHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleCounselor)
	require.NoError(t, err)
	require.Regexp(t, hexToken, token)

	require.Equal(t, domain.TokenKindInvitation, record.Kind)
	require.Equal(t, tenant.ID, record.TenantID)
	require.Equal(t, "new@school.edu", record.Email)
	require.Equal(t, domain.RoleCounselor, record.Role)
	require.Equal(t, admin.ID, record.IssuedBy)
	require.Equal(t, env.clock.Add(DefaultInvitationTTL), record.ExpiresAt)
	require.NotContains(t, record.TokenHash, token, "plaintext must never be persisted")

	require.Equal(t, 1, env.queue.Status().Pending, "invitation email queued")

	created := env.eventsOfKind(t, domain.EventInvitationCreated)
	require.Len(t, created, 1)
	require.Equal(t, domain.SeverityLow, created[0].Severity)
	require.Equal(t, "new@school.edu", created[0].Email)
}

func TestCreateInvitationRejectsInvalidRole(t *testing.T) {
	env := newTestEnv(t)
	tenant, admin := env.seedTenant(t, "northside")

	_, _, err := env.inv.CreateInvitation(context.Background(), tenant.ID, admin.ID, "client-1", "new@school.edu", "SUPERUSER")
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestCreateInvitationRequiresAdminIssuer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, _ := env.seedTenant(t, "northside")

	staff := domain.Account{
		ID:        "staff-1",
		TenantID:  tenant.ID,
		Email:     "staff@school.edu",
		Name:      "Sam Staff",
		Role:      domain.RoleStaff,
		CreatedAt: env.clock,
		UpdatedAt: env.clock,
	}
	require.NoError(t, env.store.Accounts().CreateAccount(ctx, staff))

	_, _, err := env.inv.CreateInvitation(ctx, tenant.ID, staff.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.ErrorIs(t, err, ErrNotAuthorized)
	require.Len(t, env.eventsOfKind(t, domain.EventAuthFailure), 1)
}

func TestCreateInvitationDuplicateAccountEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	_, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", admin.Email, domain.RoleStaff)
	require.ErrorIs(t, err, ErrDuplicateEmail)

	events := env.eventsOfKind(t, domain.EventDuplicateEmail)
	require.Len(t, events, 1)
	require.Equal(t, domain.SeverityLow, events[0].Severity)
}

func TestCreateInvitationOpenInvitationExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	_, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	_, _, err = env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.ErrorIs(t, err, ErrInvitationOpen)
}

func TestCreateInvitationRateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	for i := 0; i < 10; i++ {
		email := fmt.Sprintf("member%d@school.edu", i)
		_, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", email, domain.RoleStaff)
		require.NoError(t, err, "creation %d within the client window", i+1)
	}

	_, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "overflow@school.edu", domain.RoleStaff)
	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	require.False(t, rle.ResetAt.IsZero())

	require.Len(t, env.eventsOfKind(t, domain.EventRateLimitExceeded), 1)
}

func TestValidateTokenMalformed(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.inv.ValidateToken(context.Background(), domain.TokenKindInvitation, "zzzz", "client-1")
	require.ErrorIs(t, err, ErrInvalidTokenFormat)

	events := env.eventsOfKind(t, domain.EventTokenManipulation)
	require.Len(t, events, 1)
	require.Equal(t, domain.SeverityHigh, events[0].Severity)
}

func TestValidateTokenUnknown(t *testing.T) {
	env := newTestEnv(t)

	unknown := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	_, err := env.inv.ValidateToken(context.Background(), domain.TokenKindInvitation, unknown, "client-1")
	require.ErrorIs(t, err, ErrInvalidToken)

	events := env.eventsOfKind(t, domain.EventInvalidTokenAccess)
	require.Len(t, events, 1)
	require.Equal(t, domain.SeverityMedium, events[0].Severity)
}

func TestValidateTokenClaims(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleCounselor)
	require.NoError(t, err)

	claims, err := env.inv.ValidateToken(ctx, domain.TokenKindInvitation, token, "client-2")
	require.NoError(t, err)
	require.Equal(t, record.ID, claims.TokenID)
	require.Equal(t, tenant.ID, claims.TenantID)
	require.Equal(t, "new@school.edu", claims.Email)
	require.Equal(t, domain.RoleCounselor, claims.Role)
	require.Equal(t, record.ExpiresAt, claims.ExpiresAt)
}

func TestValidateTokenExpired(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	env.clock = env.clock.Add(8 * 24 * time.Hour)

	for i := 0; i < 2; i++ {
		_, err = env.inv.ValidateToken(ctx, domain.TokenKindInvitation, token, "client-1")
		require.ErrorIs(t, err, ErrTokenExpired)
	}

	// Audited once per distinct access, token untouched in storage.
	require.Len(t, env.eventsOfKind(t, domain.EventInvitationExpired), 2)

	stored, err := env.store.Tokens().GetTokenByID(ctx, record.ID)
	require.NoError(t, err)
	require.Nil(t, stored.AcceptedAt)
	require.Nil(t, stored.CancelledAt)
}

func TestAcceptInvitationHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleCounselor)
	require.NoError(t, err)

	account, session, err := env.inv.AcceptInvitation(ctx, token, Registration{Name: "Nat New", Password: "s3cret-pass"}, "client-2")
	require.NoError(t, err)
	require.Equal(t, tenant.ID, account.TenantID)
	require.Equal(t, "new@school.edu", account.Email)
	require.Equal(t, domain.RoleCounselor, account.Role)
	require.Equal(t, "session-new@school.edu", session)

	// Account ID matches the identity the provider minted.
	require.Equal(t, env.ident.byEmail["new@school.edu"].ID, account.ID)

	stored, err := env.store.Tokens().GetTokenByID(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AcceptedAt)
	require.Equal(t, account.ID, stored.AcceptedBy)

	accepted := env.eventsOfKind(t, domain.EventInvitationAccepted)
	require.Len(t, accepted, 1)
	require.Equal(t, account.ID, accepted[0].AccountID)
}

func TestAcceptInvitationSignInFailureIsNonFatal(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	env.ident.failSignIn = errors.New("idp outage")

	account, session, err := env.inv.AcceptInvitation(ctx, token, Registration{Password: "s3cret-pass"}, "client-2")
	require.NoError(t, err)
	require.NotEmpty(t, account.ID)
	require.Empty(t, session)
}

func TestAcceptInvitationIdentityFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	env.ident.failCreate = errors.New("idp rejected")

	_, _, err = env.inv.AcceptInvitation(ctx, token, Registration{Password: "s3cret-pass"}, "client-2")
	require.ErrorIs(t, err, ErrIdentityCreation)

	// Nothing else happened: the token is still open.
	stored, err := env.store.Tokens().GetTokenByID(ctx, record.ID)
	require.NoError(t, err)
	require.Nil(t, stored.AcceptedAt)

	require.Len(t, env.eventsOfKind(t, domain.EventAuthFailure), 1)
}

func TestAcceptInvitationPartialFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	// Force the account insert to collide after identity creation succeeds.
	require.NoError(t, env.store.Accounts().CreateAccount(ctx, domain.Account{
		ID:        "squatter",
		TenantID:  tenant.ID,
		Email:     "new@school.edu",
		Name:      "Occupied",
		Role:      domain.RoleStaff,
		CreatedAt: env.clock,
		UpdatedAt: env.clock,
	}))

	_, _, err = env.inv.AcceptInvitation(ctx, token, Registration{Password: "s3cret-pass"}, "client-2")
	require.ErrorIs(t, err, ErrPartialFailure)

	// The orphaned identity exists and the failure is logged high.
	require.Contains(t, env.ident.byEmail, "new@school.edu")
	failed := env.eventsOfKind(t, domain.EventInvitationFailed)
	require.Len(t, failed, 1)
	require.Equal(t, domain.SeverityHigh, failed[0].Severity)
}

func TestAcceptInvitationSingleUse(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, _, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = env.inv.AcceptInvitation(ctx, token, Registration{Password: "s3cret-pass"}, "client-2")
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrTokenAlreadyUsed), errors.Is(err, ErrInvalidToken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, successes, "exactly one acceptance may win")
	require.Equal(t, 1, conflicts)
}

func TestCancelInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	token, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	require.NoError(t, env.inv.CancelInvitation(ctx, tenant.ID, admin.ID, "client-1", record.ID))

	stored, err := env.store.Tokens().GetTokenByID(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.CancelledAt)

	// A cancelled token no longer matches anything.
	_, err = env.inv.ValidateToken(ctx, domain.TokenKindInvitation, token, "client-1")
	require.ErrorIs(t, err, ErrInvalidToken)

	require.Len(t, env.eventsOfKind(t, domain.EventInvitationCancelled), 1)

	// Cancelling twice fails cleanly.
	err = env.inv.CancelInvitation(ctx, tenant.ID, admin.ID, "client-1", record.ID)
	require.ErrorIs(t, err, ErrTokenAlreadyUsed)
}

func TestCancelInvitationWrongTenant(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")
	other, otherAdmin := env.seedTenant(t, "southside")

	_, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "client-1", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	err = env.inv.CancelInvitation(ctx, other.ID, otherAdmin.ID, "client-9", record.ID)
	require.ErrorIs(t, err, ErrNotAuthorized)
}

func TestResendInvitationRotatesToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	oldToken, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "creator-client", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	env.clock = env.clock.Add(time.Hour)

	newToken, err := env.inv.ResendInvitation(ctx, tenant.ID, admin.ID, "resend-client", record.ID)
	require.NoError(t, err)
	require.NotEqual(t, oldToken, newToken)

	// Old token is dead, new one carries the same invitation.
	_, err = env.inv.ValidateToken(ctx, domain.TokenKindInvitation, oldToken, "client-1")
	require.ErrorIs(t, err, ErrInvalidToken)

	claims, err := env.inv.ValidateToken(ctx, domain.TokenKindInvitation, newToken, "client-1")
	require.NoError(t, err)
	require.Equal(t, record.ID, claims.TokenID)
	require.Equal(t, env.clock.Add(DefaultInvitationTTL), claims.ExpiresAt)

	require.Len(t, env.eventsOfKind(t, domain.EventInvitationResent), 1)
	require.Equal(t, 2, env.queue.Status().Pending, "resend queues another email")
}

func TestResendInvitationTightensLimits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	tenant, admin := env.seedTenant(t, "northside")

	_, record, err := env.inv.CreateInvitation(ctx, tenant.ID, admin.ID, "creator-client", "new@school.edu", domain.RoleStaff)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := env.inv.ResendInvitation(ctx, tenant.ID, admin.ID, "resend-client", record.ID)
		require.NoError(t, err, "resend %d within the stricter window", i+1)
	}

	// The 6th resend trips the 5/15min override even though the general
	// creation limit would still allow it.
	_, err = env.inv.ResendInvitation(ctx, tenant.ID, admin.ID, "resend-client", record.ID)
	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
}
