package service

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
	"github.com/campuskeep/campuskeep/pkg/idx"
	"github.com/campuskeep/campuskeep/pkg/slogx"
)

// RiskLevel grades a subject's recent activity for the suspicious-activity
// report.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// suspiciousWindow is the trailing period the activity report covers.
const suspiciousWindow = 24 * time.Hour

// recentEventsLimit caps the events embedded in a stats rollup.
const recentEventsLimit = 10

// SuspiciousSubject is one row of the suspicious-activity report: a client
// or email grouped with its recent event profile.
type SuspiciousSubject struct {
	Subject       string    `json:"subject"`
	EventCount    int       `json:"event_count"`
	DistinctKinds int       `json:"distinct_kinds"`
	RiskLevel     RiskLevel `json:"risk_level"`
	LastEvent     time.Time `json:"last_event"`
}

// AuditStats is a derived rollup for operator dashboards.
type AuditStats struct {
	TotalEvents        int                    `json:"total_events"`
	CriticalEvents     int                    `json:"critical_events"`
	HighSeverityEvents int                    `json:"high_severity_events"`
	UniqueClients      int                    `json:"unique_clients"`
	MostCommonKind     domain.EventKind       `json:"most_common_kind"`
	RecentEvents       []domain.SecurityEvent `json:"recent_events"`
}

// AuditService is the append-only security event sink. Recording never
// fails the caller's primary operation; insert errors go to the operational
// log only.
type AuditService struct {
	Store store.Store

	// Now is the clock source, swappable in tests. Defaults to time.Now.
	Now func() time.Time
}

func (s *AuditService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Record appends a security event, filling in the ID, timestamp, and the
// default severity for its kind when the caller left them empty. Callers
// raise severity explicitly for cases the kind alone does not capture.
func (s *AuditService) Record(ctx context.Context, ev domain.SecurityEvent) {
	log := slogx.FromContext(ctx)

	if ev.ID == "" {
		ev.ID = idx.New().String()
	}
	if ev.Severity == "" {
		ev.Severity = domain.DefaultSeverity(ev.Kind)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}

	if err := s.Store.SecurityEvents().InsertEvent(ctx, ev); err != nil {
		// Never propagate: the triggering operation must not fail because
		// audit storage is down.
		log.Error("failed to record security event",
			slog.String("kind", string(ev.Kind)),
			slog.String("tenant_id", ev.TenantID),
			slog.Any("error", err),
		)
		return
	}

	log.Debug("security event recorded",
		slog.String("event_id", ev.ID),
		slog.String("kind", string(ev.Kind)),
		slog.String("severity", string(ev.Severity)),
	)
}

// SuspiciousActivity groups the tenant's trailing-24h events by subject
// (client identifier, falling back to email) and grades each group. It is a
// read-side report, not a blocking control.
func (s *AuditService) SuspiciousActivity(ctx context.Context, tenantID string) ([]SuspiciousSubject, error) {
	events, err := s.Store.SecurityEvents().ListEventsSince(ctx, tenantID, s.now().Add(-suspiciousWindow))
	if err != nil {
		return nil, err
	}

	type group struct {
		count int
		kinds map[domain.EventKind]struct{}
		last  time.Time
	}

	groups := make(map[string]*group)
	for _, ev := range events {
		subject := ev.ClientID
		if subject == "" {
			subject = ev.Email
		}
		if subject == "" {
			continue
		}

		g, ok := groups[subject]
		if !ok {
			g = &group{kinds: make(map[domain.EventKind]struct{})}
			groups[subject] = g
		}
		g.count++
		g.kinds[ev.Kind] = struct{}{}
		if ev.CreatedAt.After(g.last) {
			g.last = ev.CreatedAt
		}
	}

	report := make([]SuspiciousSubject, 0, len(groups))
	for subject, g := range groups {
		report = append(report, SuspiciousSubject{
			Subject:       subject,
			EventCount:    g.count,
			DistinctKinds: len(g.kinds),
			RiskLevel:     riskLevel(g.count, len(g.kinds)),
			LastEvent:     g.last,
		})
	}

	sort.Slice(report, func(i, j int) bool {
		if report[i].EventCount != report[j].EventCount {
			return report[i].EventCount > report[j].EventCount
		}
		return report[i].Subject < report[j].Subject
	})

	return report, nil
}

// riskLevel escalates with event volume and kind diversity. A subject
// probing many distinct failure paths is riskier than one repeating a
// single benign action.
func riskLevel(count, distinctKinds int) RiskLevel {
	switch {
	case count >= 10 || distinctKinds >= 4:
		return RiskHigh
	case count >= 5 || distinctKinds >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// Stats rolls up the tenant's events over the trailing number of days.
func (s *AuditService) Stats(ctx context.Context, tenantID string, days int) (AuditStats, error) {
	if days <= 0 {
		days = 7
	}

	events, err := s.Store.SecurityEvents().ListEventsSince(ctx, tenantID, s.now().AddDate(0, 0, -days))
	if err != nil {
		return AuditStats{}, err
	}

	stats := AuditStats{TotalEvents: len(events)}

	clients := make(map[string]struct{})
	kindCounts := make(map[domain.EventKind]int)
	for _, ev := range events {
		switch ev.Severity {
		case domain.SeverityCritical:
			stats.CriticalEvents++
		case domain.SeverityHigh:
			stats.HighSeverityEvents++
		}
		if ev.ClientID != "" {
			clients[ev.ClientID] = struct{}{}
		}
		kindCounts[ev.Kind]++
	}
	stats.UniqueClients = len(clients)

	best := 0
	for kind, n := range kindCounts {
		if n > best || (n == best && kind < stats.MostCommonKind) {
			best = n
			stats.MostCommonKind = kind
		}
	}

	// ListEventsSince returns newest first.
	if len(events) > recentEventsLimit {
		events = events[:recentEventsLimit]
	}
	stats.RecentEvents = events

	return stats, nil
}
