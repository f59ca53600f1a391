package http

import (
	"errors"
	"net/http"

	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/internal/onboard/service"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
	"github.com/campuskeep/campuskeep/pkg/slogx"
)

// writeServiceError translates service-layer errors into wire responses.
// Token failures share one vague message so an unauthenticated caller learns
// nothing about which tokens, emails, or tenants exist.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *service.RateLimitedError
	if errors.As(err, &rle) {
		resetAt := rle.ResetAt
		httpx.WriteJSON(w, http.StatusTooManyRequests, onboardsdk.ErrorResponse{
			Error:            "rate_limited",
			ErrorDescription: "Too many requests, try again later",
			RetryAfter:       &resetAt,
		})
		return
	}

	switch {
	case errors.Is(err, service.ErrMissingField),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrInvalidSubdomain):
		httpx.WriteJSON(w, http.StatusBadRequest, onboardsdk.ErrorResponse{
			Error:            "invalid_request",
			ErrorDescription: err.Error(),
		})

	case errors.Is(err, service.ErrInvalidTokenFormat),
		errors.Is(err, service.ErrInvalidToken),
		errors.Is(err, service.ErrTokenExpired):
		httpx.WriteJSON(w, http.StatusBadRequest, onboardsdk.ErrorResponse{
			Error:            "invalid_token",
			ErrorDescription: "Token is invalid or expired",
		})

	case errors.Is(err, service.ErrNotAuthorized),
		errors.Is(err, service.ErrInvalidOperatorToken):
		httpx.WriteJSON(w, http.StatusForbidden, onboardsdk.ErrorResponse{
			Error:            "access_denied",
			ErrorDescription: "Not authorized for this operation",
		})

	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrInvalidSession):
		httpx.WriteJSON(w, http.StatusUnauthorized, onboardsdk.ErrorResponse{
			Error:            "unauthorized",
			ErrorDescription: "Authentication failed",
		})

	case errors.Is(err, service.ErrDuplicateEmail),
		errors.Is(err, service.ErrInvitationOpen),
		errors.Is(err, service.ErrSubdomainTaken),
		errors.Is(err, service.ErrTokenAlreadyUsed):
		httpx.WriteJSON(w, http.StatusConflict, onboardsdk.ErrorResponse{
			Error:            "conflict",
			ErrorDescription: err.Error(),
		})

	case errors.Is(err, service.ErrIdentityCreation):
		httpx.WriteJSON(w, http.StatusBadGateway, onboardsdk.ErrorResponse{
			Error:            "auth_error",
			ErrorDescription: "Could not create the account, try again later",
		})

	case errors.Is(err, service.ErrPartialFailure):
		httpx.WriteJSON(w, http.StatusInternalServerError, onboardsdk.ErrorResponse{
			Error:            "contact_support",
			ErrorDescription: "Account setup incomplete, contact support",
		})

	default:
		slogx.FromContext(r.Context()).Error("unhandled service error", "err", err)
		httpx.WriteJSON(w, http.StatusInternalServerError, onboardsdk.ErrorResponse{
			Error:            "server_error",
			ErrorDescription: "Internal error",
		})
	}
}

func writeBadRequest(w http.ResponseWriter, description string) {
	httpx.WriteJSON(w, http.StatusBadRequest, onboardsdk.ErrorResponse{
		Error:            "invalid_request",
		ErrorDescription: description,
	})
}
