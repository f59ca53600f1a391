package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/cryptox"
	"github.com/campuskeep/campuskeep/pkg/idx"
	"github.com/campuskeep/campuskeep/pkg/slogx"
)

var (
	ErrInvalidOperatorToken = errors.New("invalid operator token")
	ErrInvalidSubdomain     = errors.New("invalid subdomain")
	ErrSubdomainTaken       = errors.New("subdomain already taken")
)

// DefaultSetupTTL applies when the operator does not specify an expiry.
const DefaultSetupTTL = 24 * time.Hour

var subdomainPattern = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// SetupRequest is the operator-supplied data for bootstrapping a tenant.
type SetupRequest struct {
	TenantName string
	Subdomain  string
	AdminName  string
	Password   string
}

// SetupService handles the bootstrap path for brand-new tenants: an
// out-of-band operator mints a setup token, the first administrator redeems
// it, and redemption creates the tenant, the admin identity, and the admin
// account in one pass.
type SetupService struct {
	Store    store.Store
	Audit    *AuditService
	Queue    *mail.Queue
	Identity identity.Provider

	// OperatorToken guards setup-token minting. Empty disables minting.
	OperatorToken string
	// BaseURL is the public application origin.
	BaseURL string
	// AppName appears in outgoing email.
	AppName string

	// Now is the clock source, swappable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *SetupService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateSetupToken mints a single-use setup token for the given admin email.
// The caller must present the configured operator token. The plaintext token
// is returned exactly once and delivered out-of-band.
func (s *SetupService) CreateSetupToken(
	ctx context.Context,
	operatorToken string,
	email string,
	ttl time.Duration,
	clientID string,
) (string, domain.OnboardingToken, error) {
	log := slogx.FromContext(ctx)

	if s.OperatorToken == "" ||
		subtle.ConstantTimeCompare([]byte(operatorToken), []byte(s.OperatorToken)) != 1 {
		s.Audit.Record(ctx, domain.SecurityEvent{
			Kind:     domain.EventAuthFailure,
			ClientID: clientID,
			Detail:   map[string]any{"stage": "operator_token"},
		})
		return "", domain.OnboardingToken{}, ErrInvalidOperatorToken
	}

	if email == "" {
		return "", domain.OnboardingToken{}, fmt.Errorf("%w: email", ErrMissingField)
	}
	if ttl <= 0 {
		ttl = DefaultSetupTTL
	}

	token, _, err := cryptox.GenerateToken()
	if err != nil {
		log.Error("failed to generate setup token", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}
	hash, err := cryptox.HashToken(token)
	if err != nil {
		log.Error("failed to hash setup token", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}

	now := s.now()
	record := domain.OnboardingToken{
		ID:        idx.New().String(),
		Kind:      domain.TokenKindSetup,
		Role:      domain.RoleAdmin,
		Email:     email,
		TokenHash: hash,
		IssuedBy:  "operator",
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Tokens().CreateToken(ctx, record); err != nil {
		log.Error("failed to persist setup token", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}

	log.Info("setup token created",
		slog.String("token_id", record.ID),
		slog.Time("expires_at", record.ExpiresAt),
	)

	return token, record, nil
}

// ValidateSetupToken checks a presented setup token and returns its claims.
func (s *SetupService) ValidateSetupToken(ctx context.Context, token, clientID string) (TokenClaims, error) {
	return validateToken(ctx, s.Store, s.Audit, s.now, domain.TokenKindSetup, token, clientID)
}

// CompleteSetup redeems a setup token: it creates the admin identity first,
// then the tenant, the admin account, and the token consumption in one
// transaction. On success it attempts an automatic sign-in.
func (s *SetupService) CompleteSetup(
	ctx context.Context,
	token string,
	req SetupRequest,
	clientID string,
) (domain.Tenant, domain.Account, string, error) {
	log := slogx.FromContext(ctx)

	// 1. Input before anything irreversible.
	if req.TenantName == "" {
		return domain.Tenant{}, domain.Account{}, "", fmt.Errorf("%w: tenant name", ErrMissingField)
	}
	if req.Password == "" {
		return domain.Tenant{}, domain.Account{}, "", fmt.Errorf("%w: password", ErrMissingField)
	}
	if !subdomainPattern.MatchString(req.Subdomain) {
		return domain.Tenant{}, domain.Account{}, "", ErrInvalidSubdomain
	}

	// 2. Full token validation.
	claims, err := s.ValidateSetupToken(ctx, token, clientID)
	if err != nil {
		return domain.Tenant{}, domain.Account{}, "", err
	}

	// 3. Subdomain uniqueness pre-check. The unique index still backstops
	// this inside the transaction.
	_, err = s.Store.Tenants().GetTenantBySubdomain(ctx, req.Subdomain)
	if err == nil {
		s.Audit.Record(ctx, domain.SecurityEvent{
			Kind:     domain.EventSetupTokenFailed,
			Email:    claims.Email,
			ClientID: clientID,
			Detail: map[string]any{
				"token_id": claims.TokenID,
				"reason":   "subdomain taken",
			},
		})
		return domain.Tenant{}, domain.Account{}, "", ErrSubdomainTaken
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to check subdomain availability", slog.Any("error", err))
		return domain.Tenant{}, domain.Account{}, "", err
	}

	// 4. Identity first, same ordering as invitation acceptance.
	ident, err := s.Identity.CreateIdentity(ctx, claims.Email, req.Password)
	if err != nil {
		s.Audit.Record(ctx, domain.SecurityEvent{
			Kind:     domain.EventAuthFailure,
			Email:    claims.Email,
			ClientID: clientID,
			Detail: map[string]any{
				"token_id": claims.TokenID,
				"stage":    "create_identity",
			},
		})
		return domain.Tenant{}, domain.Account{}, "", fmt.Errorf("%w: %w", ErrIdentityCreation, err)
	}

	now := s.now()
	tenant := domain.Tenant{
		ID:        idx.New().String(),
		Name:      req.TenantName,
		Subdomain: req.Subdomain,
		CreatedAt: now,
		UpdatedAt: now,
	}
	account := domain.Account{
		ID:        ident.ID,
		TenantID:  tenant.ID,
		Email:     claims.Email,
		Name:      req.AdminName,
		Role:      domain.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 5. Tenant, account, and consumption commit together.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tokens().ConsumeToken(ctx, claims.TokenID, account.ID, now); err != nil {
			return fmt.Errorf("consume token: %w", err)
		}
		if err := tx.Tenants().CreateTenant(ctx, tenant); err != nil {
			return fmt.Errorf("create tenant: %w", err)
		}
		if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
	if err != nil {
		// The identity exists without tenant or account. Same recovery
		// posture as invitation acceptance: logged high, no rollback.
		s.Audit.Record(ctx, domain.SecurityEvent{
			Kind:     domain.EventSetupTokenFailed,
			Severity: domain.SeverityHigh,
			Email:    claims.Email,
			ClientID: clientID,
			Detail: map[string]any{
				"token_id":    claims.TokenID,
				"identity_id": ident.ID,
				"stage":       "tenant_creation",
				"error":       err.Error(),
			},
		})
		log.Error("setup completion left orphaned identity",
			slog.String("token_id", claims.TokenID),
			slog.String("identity_id", ident.ID),
			slog.Any("error", err),
		)
		switch {
		case errors.Is(err, store.ErrNotFound):
			return domain.Tenant{}, domain.Account{}, "", ErrTokenAlreadyUsed
		case errors.Is(err, store.ErrAlreadyExists):
			return domain.Tenant{}, domain.Account{}, "", ErrSubdomainTaken
		default:
			return domain.Tenant{}, domain.Account{}, "", ErrPartialFailure
		}
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		TenantID:  tenant.ID,
		Kind:      domain.EventSetupTokenUsed,
		AccountID: account.ID,
		Email:     claims.Email,
		ClientID:  clientID,
		Detail: map[string]any{
			"token_id":  claims.TokenID,
			"subdomain": tenant.Subdomain,
		},
	})

	s.enqueueSetupConfirmation(ctx, tenant, account)

	log.Info("tenant bootstrapped",
		slog.String("tenant_id", tenant.ID),
		slog.String("subdomain", tenant.Subdomain),
		slog.String("account_id", account.ID),
	)

	// 6. Best-effort automatic sign-in.
	session, err := s.Identity.SignIn(ctx, claims.Email, req.Password)
	if err != nil {
		log.Warn("automatic sign-in after setup failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
		return tenant, account, "", nil
	}

	return tenant, account, session, nil
}

func (s *SetupService) enqueueSetupConfirmation(ctx context.Context, tenant domain.Tenant, admin domain.Account) {
	log := slogx.FromContext(ctx)

	adminName := admin.Name
	if adminName == "" {
		adminName = admin.Email
	}

	msgID := s.Queue.Enqueue(mail.SetupConfirmationTemplate, admin.Email, map[string]string{
		"tenantName":   tenant.Name,
		"adminName":    adminName,
		"dashboardUrl": fmt.Sprintf("%s/dashboard?tenant=%s", s.BaseURL, tenant.Subdomain),
		"appName":      s.AppName,
		"adminEmail":   admin.Email,
		"currentYear":  strconv.Itoa(s.now().Year()),
	})

	log.Debug("setup confirmation queued",
		slog.String("message_id", msgID),
		slog.String("tenant_id", tenant.ID),
	)
}
