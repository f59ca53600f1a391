package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/service"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
)

type SetupHandler struct {
	SetupService *service.SetupService
}

// HandleMint creates a setup token for bootstrapping a new tenant. Guarded
// by the operator token, not by a session: no tenant exists yet.
func (h *SetupHandler) HandleMint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.CreateSetupTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Email == "" {
		writeBadRequest(w, "email is required")
		return
	}

	ttl := time.Duration(req.TTLHours) * time.Hour
	token, record, err := h.SetupService.CreateSetupToken(ctx, req.OperatorToken, req.Email, ttl, httpx.ClientIP(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, onboardsdk.SetupTokenResponse{
		TokenID:    record.ID,
		SetupToken: token,
		Email:      record.Email,
		ExpiresAt:  record.ExpiresAt,
	})
}

// HandleValidate checks a setup token without consuming it. Same leak-free
// shape as invitation validation.
func (h *SetupHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.ValidateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}

	claims, err := h.SetupService.ValidateSetupToken(ctx, req.Token, httpx.ClientIP(r))
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
		ExpiresAt: claims.ExpiresAt,
	})
}

// HandleComplete redeems a setup token and bootstraps the tenant with its
// first administrator.
func (h *SetupHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.CompleteSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	tenant, account, session, err := h.SetupService.CompleteSetup(
		ctx, req.Token,
		service.SetupRequest{
			TenantName: req.TenantName,
			Subdomain:  req.Subdomain,
			AdminName:  req.AdminName,
			Password:   req.Password,
		},
		httpx.ClientIP(r),
	)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, onboardsdk.CompleteSetupResponse{
		TenantID:     tenant.ID,
		Subdomain:    tenant.Subdomain,
		AccountID:    account.ID,
		Email:        account.Email,
		SessionToken: session,
	})
}
