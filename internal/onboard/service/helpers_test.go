package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/internal/onboard/store/drivers/sqlite"
	"github.com/campuskeep/campuskeep/pkg/idx"
	"github.com/campuskeep/campuskeep/pkg/ratelimit"
)

// epoch is far enough back to capture every event in a test run.
var epoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeIdentityProvider struct {
	mu      sync.Mutex
	byEmail map[string]identity.Identity

	failCreate error
	failSignIn error
}

func newFakeIdentityProvider() *fakeIdentityProvider {
	return &fakeIdentityProvider{byEmail: make(map[string]identity.Identity)}
}

func (f *fakeIdentityProvider) CreateIdentity(_ context.Context, email, password string) (identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failCreate != nil {
		return identity.Identity{}, f.failCreate
	}
	if password == "" {
		return identity.Identity{}, errors.New("empty password")
	}

	ident := identity.Identity{ID: idx.New().String(), Email: email}
	f.byEmail[email] = ident
	return ident, nil
}

func (f *fakeIdentityProvider) SignIn(_ context.Context, email, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failSignIn != nil {
		return "", f.failSignIn
	}
	if _, ok := f.byEmail[email]; !ok {
		return "", identity.ErrInvalidCredentials
	}
	return "session-" + email, nil
}

func (f *fakeIdentityProvider) CurrentIdentity(_ context.Context, sessionToken string) (identity.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for email, ident := range f.byEmail {
		if sessionToken == "session-"+email {
			return ident, nil
		}
	}
	return identity.Identity{}, identity.ErrInvalidSession
}

type capturingTransport struct {
	mu   sync.Mutex
	sent []string
}

func (c *capturingTransport) Send(_ context.Context, to, _, _, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, to)
	return nil
}

// testEnv wires a full service stack over an in-memory sqlite store. Each
// test constructs its own so nothing is shared between tests.
type testEnv struct {
	store   store.Store
	limiter *ratelimit.Limiter
	audit   *AuditService
	queue   *mail.Queue
	ident   *fakeIdentityProvider
	inv     *InvitationService
	setup   *SetupService

	// clock backs every service's Now; tests advance it directly.
	clock time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	env := &testEnv{
		store:   st,
		limiter: ratelimit.New(),
		ident:   newFakeIdentityProvider(),
		clock:   time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return env.clock }

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env.queue = mail.NewQueue(&capturingTransport{}, logger, mail.Config{})
	env.audit = &AuditService{Store: st, Now: now}

	env.inv = &InvitationService{
		Store:    st,
		Limiter:  env.limiter,
		Audit:    env.audit,
		Queue:    env.queue,
		Identity: env.ident,
		BaseURL:  "https://app.campuskeep.test",
		AppName:  "CampusKeep",
		Now:      now,
	}
	env.setup = &SetupService{
		Store:         st,
		Audit:         env.audit,
		Queue:         env.queue,
		Identity:      env.ident,
		OperatorToken: "operator-secret",
		BaseURL:       "https://app.campuskeep.test",
		AppName:       "CampusKeep",
		Now:           now,
	}

	return env
}

// seedTenant inserts a tenant with one admin account and returns both.
func (e *testEnv) seedTenant(t *testing.T, subdomain string) (domain.Tenant, domain.Account) {
	t.Helper()
	ctx := context.Background()

	tenant := domain.Tenant{
		ID:        idx.New().String(),
		Name:      "Northside High",
		Subdomain: subdomain,
		CreatedAt: e.clock,
		UpdatedAt: e.clock,
	}
	require.NoError(t, e.store.Tenants().CreateTenant(ctx, tenant))

	admin := domain.Account{
		ID:        idx.New().String(),
		TenantID:  tenant.ID,
		Email:     fmt.Sprintf("admin@%s.edu", subdomain),
		Name:      "Pat Admin",
		Role:      domain.RoleAdmin,
		CreatedAt: e.clock,
		UpdatedAt: e.clock,
	}
	require.NoError(t, e.store.Accounts().CreateAccount(ctx, admin))

	return tenant, admin
}

// eventsOfKind returns all recorded events of one kind, any tenant.
func (e *testEnv) eventsOfKind(t *testing.T, kind domain.EventKind) []domain.SecurityEvent {
	t.Helper()

	events, err := e.store.SecurityEvents().ListEventsSince(context.Background(), "", epoch)
	require.NoError(t, err)

	var out []domain.SecurityEvent
	for _, ev := range events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
