package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/identity"
	"github.com/campuskeep/campuskeep/internal/onboard/mail"
	"github.com/campuskeep/campuskeep/internal/onboard/service"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store store.Store
	auth  httpx.Authenticator

	Identity          identity.Provider
	InvitationService *service.InvitationService
	SetupService      *service.SetupService
	AuditService      *service.AuditService
	Queue             *mail.Queue
}

func NewRouter(
	buildVersion string,
	st store.Store,
	auth httpx.Authenticator,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		auth:         auth,
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSessions()
	r.registerSetup()
	r.registerInvitations()
	r.registerAudit()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Identity: r.Identity}

	// POST /sessions - strict rate limit by IP (credential guessing)
	r.Mux.Handle("POST /v1/sessions",
		httpx.Chain(http.HandlerFunc(h.HandleSignIn),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSetup() {
	h := &SetupHandler{SetupService: r.SetupService}

	// POST /setup/tokens - operator-guarded bootstrap minting, strict limit
	r.Mux.Handle("POST /v1/setup/tokens",
		httpx.Chain(http.HandlerFunc(h.HandleMint),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /setup/validate - unauthenticated probe, strict limit
	r.Mux.Handle("POST /v1/setup/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /setup/complete - one-shot tenant bootstrap, strict limit
	r.Mux.Handle("POST /v1/setup/complete",
		httpx.Chain(http.HandlerFunc(h.HandleComplete),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerInvitations() {
	h := &InvitationsHandler{InvitationService: r.InvitationService}

	// POST /invitations - admin operation behind a session
	r.Mux.Handle("POST /v1/invitations",
		httpx.Chain(http.HandlerFunc(h.HandleCreate),
			httpx.RequireAuth(r.auth),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// POST /invitations/validate - public endpoint hit by accept pages
	r.Mux.Handle("POST /v1/invitations/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /invitations/accept - public signup endpoint, strict limit
	r.Mux.Handle("POST /v1/invitations/accept",
		httpx.Chain(http.HandlerFunc(h.HandleAccept),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /invitations/cancel and /resend - admin operations
	r.Mux.Handle("POST /v1/invitations/cancel",
		httpx.Chain(http.HandlerFunc(h.HandleCancel),
			httpx.RequireAuth(r.auth),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("POST /v1/invitations/resend",
		httpx.Chain(http.HandlerFunc(h.HandleResend),
			httpx.RequireAuth(r.auth),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerAudit() {
	h := &AuditHandler{
		AuditService: r.AuditService,
		Store:        r.store,
	}

	r.Mux.Handle("GET /v1/audit/suspicious",
		httpx.Chain(http.HandlerFunc(h.HandleSuspicious),
			httpx.RequireAuth(r.auth),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
	r.Mux.Handle("GET /v1/audit/stats",
		httpx.Chain(http.HandlerFunc(h.HandleStats),
			httpx.RequireAuth(r.auth),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))

	// Queue visibility is an operator concern, session required.
	r.Mux.Handle("GET /v1/queue/status",
		httpx.Chain(QueueStatusHandler(r.Queue),
			httpx.RequireAuth(r.auth),
		),
	)
}
