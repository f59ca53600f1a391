package http

import (
	"encoding/json"
	"net/http"

	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
)

type SessionsHandler struct {
	Identity identity.Provider
}

// HandleSignIn authenticates an existing account and mints a session token.
func (h *SessionsHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req onboardsdk.SignInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "Invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeBadRequest(w, "email and password are required")
		return
	}

	session, err := h.Identity.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, onboardsdk.SignInResponse{SessionToken: session})
}
