package httpx

import "context"

type ctxKey string

const (
	// CtxKeyIdentityID is the authenticated identity's ID.
	CtxKeyIdentityID ctxKey = "identity_id"
	// CtxKeyEmail is the authenticated identity's email address.
	CtxKeyEmail ctxKey = "email"
)

// IdentityFromCtx returns the authenticated identity ID, or "" when the
// request is unauthenticated.
func IdentityFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyIdentityID).(string); ok {
		return v
	}
	return ""
}

// EmailFromCtx returns the authenticated email, or "".
func EmailFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyEmail).(string); ok {
		return v
	}
	return ""
}
