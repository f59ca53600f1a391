package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/campuskeep/campuskeep/internal/onboard/service"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/httpx"
	"github.com/campuskeep/campuskeep/pkg/onboardsdk"
)

type AuditHandler struct {
	AuditService *service.AuditService
	Store        store.Store
}

// requireTenantAdmin resolves the session's account and requires it to be
// an admin of the queried tenant. Returns "" after writing the response
// when the check fails.
func (h *AuditHandler) requireTenantAdmin(w http.ResponseWriter, r *http.Request) string {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		writeBadRequest(w, "tenant_id is required")
		return ""
	}

	account, err := h.Store.Accounts().GetAccountByID(r.Context(), httpx.IdentityFromCtx(r.Context()))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeServiceError(w, r, service.ErrNotAuthorized)
			return ""
		}
		writeServiceError(w, r, err)
		return ""
	}
	if account.TenantID != tenantID || !account.IsAdmin() {
		writeServiceError(w, r, service.ErrNotAuthorized)
		return ""
	}

	return tenantID
}

// HandleSuspicious returns the trailing-24h suspicious-activity report for
// the tenant.
func (h *AuditHandler) HandleSuspicious(w http.ResponseWriter, r *http.Request) {
	tenantID := h.requireTenantAdmin(w, r)
	if tenantID == "" {
		return
	}

	report, err := h.AuditService.SuspiciousActivity(r.Context(), tenantID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := onboardsdk.SuspiciousActivityResponse{
		Subjects: make([]onboardsdk.SuspiciousSubject, 0, len(report)),
	}
	for _, s := range report {
		out.Subjects = append(out.Subjects, onboardsdk.SuspiciousSubject{
			Subject:       s.Subject,
			EventCount:    s.EventCount,
			DistinctKinds: s.DistinctKinds,
			RiskLevel:     string(s.RiskLevel),
			LastEvent:     s.LastEvent,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleStats returns the audit rollup over the requested number of days
// (default 7).
func (h *AuditHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	tenantID := h.requireTenantAdmin(w, r)
	if tenantID == "" {
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeBadRequest(w, "days must be a positive integer")
			return
		}
		days = parsed
	}

	stats, err := h.AuditService.Stats(r.Context(), tenantID, days)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := onboardsdk.StatsResponse{
		TotalEvents:        stats.TotalEvents,
		CriticalEvents:     stats.CriticalEvents,
		HighSeverityEvents: stats.HighSeverityEvents,
		UniqueClients:      stats.UniqueClients,
		MostCommonKind:     string(stats.MostCommonKind),
		RecentEvents:       make([]onboardsdk.SecurityEventSummary, 0, len(stats.RecentEvents)),
	}
	for _, ev := range stats.RecentEvents {
		out.RecentEvents = append(out.RecentEvents, onboardsdk.SecurityEventSummary{
			ID:        ev.ID,
			Kind:      string(ev.Kind),
			Severity:  string(ev.Severity),
			ClientID:  ev.ClientID,
			CreatedAt: ev.CreatedAt,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}
