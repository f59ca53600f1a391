package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/cryptox"
	"github.com/campuskeep/campuskeep/pkg/idx"
	"github.com/campuskeep/campuskeep/pkg/ratelimit"
	"github.com/campuskeep/campuskeep/pkg/slogx"
)

var (
	ErrMissingField       = errors.New("missing required field")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidTokenFormat = errors.New("invalid token format")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenAlreadyUsed   = errors.New("token already used or cancelled")
	ErrNotAuthorized      = errors.New("not authorized to manage invitations for this tenant")
	ErrDuplicateEmail     = errors.New("an account already exists for this email")
	ErrInvitationOpen     = errors.New("an open invitation already exists for this email")
	ErrIdentityCreation   = errors.New("failed to create identity")
	ErrPartialFailure     = errors.New("account setup incomplete, contact support")
)

// RateLimitedError carries the window reset time so callers can surface a
// Retry-After.
type RateLimitedError struct {
	ResetAt time.Time
}

func (e *RateLimitedError) Error() string { return "rate limit exceeded" }

// DefaultInvitationTTL is how long an invitation token stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// TokenClaims are the non-secret attributes of a validated token.
type TokenClaims struct {
	TokenID   string           `json:"-"`
	Kind      domain.TokenKind `json:"kind"`
	TenantID  string           `json:"tenant_id,omitempty"`
	Email     string           `json:"email"`
	Role      string           `json:"role"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Registration is the acceptor-supplied data for creating an account.
type Registration struct {
	Name     string
	Password string
}

// InvitationService orchestrates the invitation token lifecycle: create,
// validate, accept, cancel, resend. Every security-relevant transition is
// audited; audit failures never fail the primary operation.
type InvitationService struct {
	Store    store.Store
	Limiter  *ratelimit.Limiter
	Audit    *AuditService
	Queue    *mail.Queue
	Identity identity.Provider

	// BaseURL is the public application origin used to build accept links.
	BaseURL string
	// AppName appears in outgoing email.
	AppName string
	// TTL for new invitation tokens. Defaults to DefaultInvitationTTL.
	TTL time.Duration

	// Now is the clock source, swappable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *InvitationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *InvitationService) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultInvitationTTL
}

// CreateInvitation mints a single-use invitation token for email to join
// tenantID with the given role. It returns the plaintext token exactly once;
// only the salted hash is persisted.
func (s *InvitationService) CreateInvitation(
	ctx context.Context,
	tenantID string,
	issuerID string,
	clientID string,
	email string,
	role string,
) (string, domain.OnboardingToken, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate input.
	if email == "" {
		return "", domain.OnboardingToken{}, fmt.Errorf("%w: email", ErrMissingField)
	}
	if !domain.ValidRole(role) {
		log.Warn("invitation requested with invalid role",
			slog.String("tenant_id", tenantID),
			slog.String("role", role),
		)
		return "", domain.OnboardingToken{}, ErrInvalidRole
	}

	// 2. Combined rate limit: client first, then issuing account.
	res := s.Limiter.CheckCombined(clientID, issuerID, ratelimit.DefaultClientLimit, ratelimit.DefaultAccountLimit)
	if !res.Allowed {
		s.Audit.Record(ctx, domain.SecurityEvent{
			TenantID:  tenantID,
			Kind:      domain.EventRateLimitExceeded,
			AccountID: issuerID,
			ClientID:  clientID,
			Detail: map[string]any{
				"operation": "create_invitation",
				"reset_at":  res.ResetAt,
			},
		})
		return "", domain.OnboardingToken{}, &RateLimitedError{ResetAt: res.ResetAt}
	}

	// 3. Issuer must be an admin of the target tenant.
	issuer, err := s.authorizeIssuer(ctx, tenantID, issuerID, clientID)
	if err != nil {
		return "", domain.OnboardingToken{}, err
	}

	now := s.now()

	// 4. Soft-reject when the email already belongs to a tenant member.
	_, err = s.Store.Accounts().GetAccountByEmail(ctx, tenantID, email)
	if err == nil {
		s.Audit.Record(ctx, domain.SecurityEvent{
			TenantID:  tenantID,
			Kind:      domain.EventDuplicateEmail,
			AccountID: issuerID,
			Email:     email,
			ClientID:  clientID,
		})
		return "", domain.OnboardingToken{}, ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to check for existing account", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}

	// 5. Reject when an open invitation already exists for the email.
	_, err = s.Store.Tokens().GetOpenInvitationByEmail(ctx, tenantID, email, now)
	if err == nil {
		return "", domain.OnboardingToken{}, ErrInvitationOpen
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to check for open invitation", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}

	// 6. Mint and persist. Only the salted hash is stored.
	token, _, err := cryptox.GenerateToken()
	if err != nil {
		log.Error("failed to generate invitation token", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}
	hash, err := cryptox.HashToken(token)
	if err != nil {
		log.Error("failed to hash invitation token", slog.Any("error", err))
		return "", domain.OnboardingToken{}, err
	}

	record := domain.OnboardingToken{
		ID:        idx.New().String(),
		Kind:      domain.TokenKindInvitation,
		TenantID:  tenantID,
		Role:      role,
		Email:     email,
		TokenHash: hash,
		IssuedBy:  issuerID,
		ExpiresAt: now.Add(s.ttl()),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Store.Tokens().CreateToken(ctx, record); err != nil {
		log.Error("failed to persist invitation",
			slog.String("tenant_id", tenantID),
			slog.Any("error", err),
		)
		return "", domain.OnboardingToken{}, err
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		TenantID:  tenantID,
		Kind:      domain.EventInvitationCreated,
		AccountID: issuerID,
		Email:     email,
		ClientID:  clientID,
		Detail: map[string]any{
			"token_id":   record.ID,
			"role":       role,
			"expires_at": record.ExpiresAt,
		},
	})

	// 7. Queue the invitation email. Delivery failures retry in the
	// background and never roll back the invitation; it can be resent.
	s.enqueueInvitationEmail(ctx, issuer, record, token)

	log.Info("invitation created",
		slog.String("token_id", record.ID),
		slog.String("tenant_id", tenantID),
		slog.String("role", role),
	)

	return token, record, nil
}

// ValidateToken checks a presented token of the given kind and returns its
// claims. Failures are deliberately vague to the caller while the specific
// cause lands in the audit log.
func (s *InvitationService) ValidateToken(
	ctx context.Context,
	kind domain.TokenKind,
	token string,
	clientID string,
) (TokenClaims, error) {
	return validateToken(ctx, s.Store, s.Audit, s.now, kind, token, clientID)
}

// validateToken is the shared verification path for both token kinds.
func validateToken(
	ctx context.Context,
	st store.Store,
	audit *AuditService,
	now func() time.Time,
	kind domain.TokenKind,
	token string,
	clientID string,
) (TokenClaims, error) {
	log := slogx.FromContext(ctx)

	// 1. Malformed tokens are rejected before touching storage. A
	// well-behaved client never submits one, so the attempt itself is
	// recorded as manipulation.
	strength := cryptox.ValidateTokenStrength(token)
	if !strength.Valid {
		audit.Record(ctx, domain.SecurityEvent{
			Kind:     domain.EventTokenManipulation,
			ClientID: clientID,
			Detail: map[string]any{
				"kind":   string(kind),
				"reason": strength.Reason,
			},
		})
		return TokenClaims{}, ErrInvalidTokenFormat
	}
	if !strength.Secure {
		log.Warn("low-entropy token presented",
			slog.String("kind", string(kind)),
			slog.String("entropy", strconv.FormatFloat(strength.Entropy, 'f', 2, 64)),
		)
	}

	// 2. Hash-equality scan over outstanding tokens. The salt is unknown
	// until a match, so this cannot be a single indexed lookup.
	match, err := findOpenToken(ctx, st, kind, token)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			audit.Record(ctx, domain.SecurityEvent{
				Kind:     domain.EventInvalidTokenAccess,
				ClientID: clientID,
				Detail:   map[string]any{"kind": string(kind)},
			})
			return TokenClaims{}, ErrInvalidToken
		}
		log.Error("failed to scan outstanding tokens", slog.Any("error", err))
		return TokenClaims{}, err
	}

	// 3. Expired tokens stay in storage for forensics; report distinctly.
	if match.IsExpired(now()) {
		kindEvent := domain.EventInvitationExpired
		if kind == domain.TokenKindSetup {
			kindEvent = domain.EventSetupTokenFailed
		}
		audit.Record(ctx, domain.SecurityEvent{
			TenantID: match.TenantID,
			Kind:     kindEvent,
			Email:    match.Email,
			ClientID: clientID,
			Detail: map[string]any{
				"token_id":   match.ID,
				"reason":     "expired",
				"expired_at": match.ExpiresAt,
			},
		})
		return TokenClaims{}, ErrTokenExpired
	}

	return TokenClaims{
		TokenID:   match.ID,
		Kind:      match.Kind,
		TenantID:  match.TenantID,
		Email:     match.Email,
		Role:      match.Role,
		ExpiresAt: match.ExpiresAt,
	}, nil
}

// AcceptInvitation consumes a valid invitation token, creating the external
// identity first and then, atomically, the application account plus the
// token consumption. On full success it attempts an automatic sign-in and
// returns the session token; sign-in failure is non-fatal.
func (s *InvitationService) AcceptInvitation(
	ctx context.Context,
	token string,
	reg Registration,
	clientID string,
) (domain.Account, string, error) {
	log := slogx.FromContext(ctx)

	if reg.Password == "" {
		return domain.Account{}, "", fmt.Errorf("%w: password", ErrMissingField)
	}

	// 1. Re-run full validation.
	claims, err := s.ValidateToken(ctx, domain.TokenKindInvitation, token, clientID)
	if err != nil {
		return domain.Account{}, "", err
	}

	// 2. Identity first. If this fails nothing else has happened and the
	// operation cleanly stops.
	ident, err := s.Identity.CreateIdentity(ctx, claims.Email, reg.Password)
	if err != nil {
		s.Audit.Record(ctx, domain.SecurityEvent{
			TenantID: claims.TenantID,
			Kind:     domain.EventAuthFailure,
			Email:    claims.Email,
			ClientID: clientID,
			Detail: map[string]any{
				"token_id": claims.TokenID,
				"stage":    "create_identity",
			},
		})
		return domain.Account{}, "", fmt.Errorf("%w: %w", ErrIdentityCreation, err)
	}

	now := s.now()
	account := domain.Account{
		ID:        ident.ID,
		TenantID:  claims.TenantID,
		Email:     claims.Email,
		Name:      reg.Name,
		Role:      claims.Role,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// 3. Account creation and token consumption commit together. The
	// conditional consume closes the concurrent-acceptance race: at most
	// one transaction ever sees the token still open.
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Tokens().ConsumeToken(ctx, claims.TokenID, account.ID, now); err != nil {
			return fmt.Errorf("consume token: %w", err)
		}
		if err := tx.Accounts().CreateAccount(ctx, account); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	})
	if err != nil {
		// 4. The identity exists but the application account does not. No
		// compensating rollback: the provider may not expose deletion.
		// Logged high and surfaced as "contact support".
		s.Audit.Record(ctx, domain.SecurityEvent{
			TenantID: claims.TenantID,
			Kind:     domain.EventInvitationFailed,
			Severity: domain.SeverityHigh,
			Email:    claims.Email,
			ClientID: clientID,
			Detail: map[string]any{
				"token_id":    claims.TokenID,
				"identity_id": ident.ID,
				"stage":       "account_creation",
				"error":       err.Error(),
			},
		})
		log.Error("invitation acceptance left orphaned identity",
			slog.String("token_id", claims.TokenID),
			slog.String("identity_id", ident.ID),
			slog.Any("error", err),
		)
		if errors.Is(err, store.ErrNotFound) {
			return domain.Account{}, "", ErrTokenAlreadyUsed
		}
		return domain.Account{}, "", ErrPartialFailure
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		TenantID:  claims.TenantID,
		Kind:      domain.EventInvitationAccepted,
		AccountID: account.ID,
		Email:     claims.Email,
		ClientID:  clientID,
		Detail:    map[string]any{"token_id": claims.TokenID},
	})

	log.Info("invitation accepted",
		slog.String("token_id", claims.TokenID),
		slog.String("account_id", account.ID),
		slog.String("tenant_id", claims.TenantID),
	)

	// 5. Best-effort automatic sign-in. The account exists either way.
	session, err := s.Identity.SignIn(ctx, claims.Email, reg.Password)
	if err != nil {
		log.Warn("automatic sign-in after acceptance failed",
			slog.String("account_id", account.ID),
			slog.Any("error", err),
		)
		return account, "", nil
	}

	return account, session, nil
}

// CancelInvitation revokes a still-open invitation. Only an admin of the
// issuing tenant may cancel.
func (s *InvitationService) CancelInvitation(
	ctx context.Context,
	tenantID string,
	issuerID string,
	clientID string,
	tokenID string,
) error {
	log := slogx.FromContext(ctx)

	if _, err := s.authorizeIssuer(ctx, tenantID, issuerID, clientID); err != nil {
		return err
	}

	record, err := s.ownedInvitation(ctx, tenantID, tokenID)
	if err != nil {
		return err
	}

	if err := s.Store.Tokens().CancelToken(ctx, tokenID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrTokenAlreadyUsed
		}
		log.Error("failed to cancel invitation",
			slog.String("token_id", tokenID),
			slog.Any("error", err),
		)
		return err
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		TenantID:  tenantID,
		Kind:      domain.EventInvitationCancelled,
		AccountID: issuerID,
		Email:     record.Email,
		ClientID:  clientID,
		Detail:    map[string]any{"token_id": tokenID},
	})

	log.Info("invitation cancelled",
		slog.String("token_id", tokenID),
		slog.String("tenant_id", tenantID),
	)
	return nil
}

// ResendInvitation replaces the token value and expiry of an unaccepted
// invitation while preserving its identity, role, and tenant. Resends run
// under the stricter rate-limit overrides.
func (s *InvitationService) ResendInvitation(
	ctx context.Context,
	tenantID string,
	issuerID string,
	clientID string,
	tokenID string,
) (string, error) {
	log := slogx.FromContext(ctx)

	// 1. Stricter limits than creation.
	res := s.Limiter.CheckCombined(clientID, issuerID, ratelimit.ResendClientLimit, ratelimit.ResendAccountLimit)
	if !res.Allowed {
		s.Audit.Record(ctx, domain.SecurityEvent{
			TenantID:  tenantID,
			Kind:      domain.EventRateLimitExceeded,
			AccountID: issuerID,
			ClientID:  clientID,
			Detail: map[string]any{
				"operation": "resend_invitation",
				"reset_at":  res.ResetAt,
			},
		})
		return "", &RateLimitedError{ResetAt: res.ResetAt}
	}

	// 2. Same authorization discipline as creation.
	issuer, err := s.authorizeIssuer(ctx, tenantID, issuerID, clientID)
	if err != nil {
		return "", err
	}

	record, err := s.ownedInvitation(ctx, tenantID, tokenID)
	if err != nil {
		return "", err
	}

	// 3. Fresh token, fresh expiry, same invitation record.
	token, _, err := cryptox.GenerateToken()
	if err != nil {
		log.Error("failed to generate replacement token", slog.Any("error", err))
		return "", err
	}
	hash, err := cryptox.HashToken(token)
	if err != nil {
		log.Error("failed to hash replacement token", slog.Any("error", err))
		return "", err
	}

	now := s.now()
	record.TokenHash = hash
	record.ExpiresAt = now.Add(s.ttl())

	if err := s.Store.Tokens().ResetTokenCredentials(ctx, tokenID, hash, record.ExpiresAt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrTokenAlreadyUsed
		}
		log.Error("failed to reset invitation credentials",
			slog.String("token_id", tokenID),
			slog.Any("error", err),
		)
		return "", err
	}

	s.Audit.Record(ctx, domain.SecurityEvent{
		TenantID:  tenantID,
		Kind:      domain.EventInvitationResent,
		AccountID: issuerID,
		Email:     record.Email,
		ClientID:  clientID,
		Detail: map[string]any{
			"token_id":   tokenID,
			"expires_at": record.ExpiresAt,
		},
	})

	s.enqueueInvitationEmail(ctx, issuer, record, token)

	log.Info("invitation resent",
		slog.String("token_id", tokenID),
		slog.String("tenant_id", tenantID),
	)

	return token, nil
}

// authorizeIssuer loads the issuing account and requires it to be an admin
// of the tenant. Failures are audited as auth failures.
func (s *InvitationService) authorizeIssuer(
	ctx context.Context,
	tenantID string,
	issuerID string,
	clientID string,
) (domain.Account, error) {
	log := slogx.FromContext(ctx)

	issuer, err := s.Store.Accounts().GetAccountByID(ctx, issuerID)
	if err == nil && (issuer.TenantID != tenantID || !issuer.IsAdmin()) {
		err = store.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.Audit.Record(ctx, domain.SecurityEvent{
				TenantID:  tenantID,
				Kind:      domain.EventAuthFailure,
				AccountID: issuerID,
				ClientID:  clientID,
				Detail:    map[string]any{"stage": "issuer_authorization"},
			})
			return domain.Account{}, ErrNotAuthorized
		}
		log.Error("failed to load issuing account", slog.Any("error", err))
		return domain.Account{}, err
	}
	return issuer, nil
}

// ownedInvitation loads an invitation and checks tenant ownership and that
// it has not been consumed or cancelled.
func (s *InvitationService) ownedInvitation(ctx context.Context, tenantID, tokenID string) (domain.OnboardingToken, error) {
	record, err := s.Store.Tokens().GetTokenByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.OnboardingToken{}, ErrInvalidToken
		}
		return domain.OnboardingToken{}, err
	}
	if record.Kind != domain.TokenKindInvitation || record.TenantID != tenantID {
		return domain.OnboardingToken{}, ErrNotAuthorized
	}
	if record.AcceptedAt != nil || record.CancelledAt != nil {
		return domain.OnboardingToken{}, ErrTokenAlreadyUsed
	}
	return record, nil
}

// findOpenToken verifies the presented token against every outstanding hash
// of the kind. Returns store.ErrNotFound when nothing matches.
func findOpenToken(ctx context.Context, st store.Store, kind domain.TokenKind, token string) (domain.OnboardingToken, error) {
	open, err := st.Tokens().ListOpenTokens(ctx, kind)
	if err != nil {
		return domain.OnboardingToken{}, err
	}
	for _, t := range open {
		if cryptox.VerifyToken(token, t.TokenHash) {
			return t, nil
		}
	}
	return domain.OnboardingToken{}, store.ErrNotFound
}

// enqueueInvitationEmail renders and queues the invitation message. It is
// fire-and-forget from the caller's point of view.
func (s *InvitationService) enqueueInvitationEmail(
	ctx context.Context,
	issuer domain.Account,
	record domain.OnboardingToken,
	token string,
) {
	log := slogx.FromContext(ctx)

	tenantName := record.TenantID
	if tenant, err := s.Store.Tenants().GetTenantByID(ctx, record.TenantID); err == nil {
		tenantName = tenant.Name
	} else {
		log.Warn("failed to load tenant for invitation email",
			slog.String("tenant_id", record.TenantID),
			slog.Any("error", err),
		)
	}

	inviterName := issuer.Name
	if inviterName == "" {
		inviterName = issuer.Email
	}

	msgID := s.Queue.Enqueue(mail.InvitationTemplate, record.Email, map[string]string{
		"tenantName":     tenantName,
		"inviterName":    inviterName,
		"role":           record.Role,
		"invitationUrl":  fmt.Sprintf("%s/onboard/invitations/accept?token=%s", s.BaseURL, token),
		"expirationDate": record.ExpiresAt.Format("2 January 2006"),
		"adminEmail":     issuer.Email,
		"recipientEmail": record.Email,
		"appName":        s.AppName,
		"currentYear":    strconv.Itoa(s.now().Year()),
	})

	log.Debug("invitation email queued",
		slog.String("message_id", msgID),
		slog.String("token_id", record.ID),
	)
}
