package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/service"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
)

type InvitationsHandler struct {
	InvitationService *service.InvitationService
}

// HandleCreate mints an invitation token. The issuer comes from the
// session, the client identifier from the connection.
func (h *InvitationsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.CreateInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.TenantID == "" || req.Email == "" || req.Role == "" {
		writeBadRequest(w, "tenant_id, email, and role are required")
		return
	}

	issuerID := httpx.IdentityFromCtx(ctx)
	token, record, err := h.InvitationService.CreateInvitation(
		ctx, req.TenantID, issuerID, httpx.ClientIP(r), req.Email, req.Role,
	)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, onboardsdk.InvitationResponse{
		TokenID:         record.ID,
		InvitationToken: token,
		TenantID:        record.TenantID,
		Email:           record.Email,
		Role:            record.Role,
		ExpiresAt:       record.ExpiresAt,
	})
}

// HandleValidate checks a presented invitation token without consuming it.
// Unacceptable tokens yield 200 with valid=false so the endpoint leaks
// nothing; only malformed requests get an error status.
func (h *InvitationsHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.ValidateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	claims, err := h.InvitationService.ValidateToken(ctx, domain.TokenKindInvitation, req.Token, httpx.ClientIP(r))
	if err != nil {
		if errors.Is(err, service.ErrInvalidTokenFormat) ||
			errors.Is(err, service.ErrInvalidToken) ||
			errors.Is(err, service.ErrTokenExpired) {
			httpx.WriteJSON(w, http.StatusOK, onboardsdk.ValidateTokenResponse{Valid: false})
			return
		}
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, onboardsdk.ValidateTokenResponse{
		Valid:     true,
		Email:     claims.Email,
		Role:      claims.Role,
		TenantID:  claims.TenantID,
		ExpiresAt: claims.ExpiresAt,
	})
}

// HandleAccept consumes an invitation token and registers the new member.
func (h *InvitationsHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.AcceptInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Token == "" || req.Password == "" {
		writeBadRequest(w, "token and password are required")
		return
	}

	account, session, err := h.InvitationService.AcceptInvitation(
		ctx, req.Token,
		service.Registration{Name: req.Name, Password: req.Password},
		httpx.ClientIP(r),
	)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, onboardsdk.AcceptInvitationResponse{
		AccountID:    account.ID,
		TenantID:     account.TenantID,
		Email:        account.Email,
		Role:         account.Role,
		SessionToken: session,
	})
}

// HandleCancel revokes a still-open invitation.
func (h *InvitationsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.CancelInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.TenantID == "" || req.TokenID == "" {
		writeBadRequest(w, "tenant_id and token_id are required")
		return
	}

	issuerID := httpx.IdentityFromCtx(ctx)
	if err := h.InvitationService.CancelInvitation(ctx, req.TenantID, issuerID, httpx.ClientIP(r), req.TokenID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleResend rotates the token and expiry of a still-open invitation.
func (h *InvitationsHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.ResendInvitationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.TenantID == "" || req.TokenID == "" {
		writeBadRequest(w, "tenant_id and token_id are required")
		return
	}

	issuerID := httpx.IdentityFromCtx(ctx)
	token, err := h.InvitationService.ResendInvitation(ctx, req.TenantID, issuerID, httpx.ClientIP(r), req.TokenID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	record, err := h.InvitationService.Store.Tokens().GetTokenByID(ctx, req.TokenID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, onboardsdk.InvitationResponse{
		TokenID:         record.ID,
		InvitationToken: token,
		TenantID:        record.TenantID,
		Email:           record.Email,
		Role:            record.Role,
		ExpiresAt:       record.ExpiresAt,
	})
}
