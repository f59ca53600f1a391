package domain

import "time"

// EventKind is the closed enumeration of security-relevant onboarding
// events. Do not add values without updating DefaultSeverity.
type EventKind string

const (
	EventInvitationCreated   EventKind = "INVITATION_CREATED"
	EventInvitationAccepted  EventKind = "INVITATION_ACCEPTED"
	EventInvitationFailed    EventKind = "INVITATION_FAILED"
	EventInvitationExpired   EventKind = "INVITATION_EXPIRED"
	EventInvitationCancelled EventKind = "INVITATION_CANCELLED"
	EventInvitationResent    EventKind = "INVITATION_RESENT"
	EventSetupTokenUsed      EventKind = "SETUP_TOKEN_USED"
	EventSetupTokenFailed    EventKind = "SETUP_TOKEN_FAILED"
	EventRateLimitExceeded   EventKind = "RATE_LIMIT_EXCEEDED"
	EventSuspiciousActivity  EventKind = "SUSPICIOUS_ACTIVITY"
	EventAuthFailure         EventKind = "AUTH_FAILURE"
	EventTokenManipulation   EventKind = "TOKEN_MANIPULATION"
	EventDuplicateEmail      EventKind = "DUPLICATE_EMAIL_ATTEMPT"
	EventInvalidTokenAccess  EventKind = "INVALID_TOKEN_ACCESS"
)

// Severity classifies a security event for triage.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity maps an event kind to its baseline severity. Individual
// events may be recorded with a higher severity (an acceptance
// partial-failure is an INVITATION_FAILED recorded at high).
func DefaultSeverity(kind EventKind) Severity {
	switch kind {
	case EventInvitationCreated, EventInvitationAccepted, EventInvitationExpired,
		EventInvitationCancelled, EventInvitationResent, EventSetupTokenUsed,
		EventDuplicateEmail:
		return SeverityLow
	case EventRateLimitExceeded, EventAuthFailure, EventInvalidTokenAccess,
		EventInvitationFailed, EventSetupTokenFailed:
		return SeverityMedium
	case EventTokenManipulation, EventSuspiciousActivity:
		return SeverityHigh
	}
	return SeverityMedium
}

// SecurityEvent is one append-only audit record. Events are never mutated or
// deleted by the application; retention is an external concern.
type SecurityEvent struct {
	ID string
	// TenantID is empty for events outside any tenant (setup attempts,
	// malformed token probes).
	TenantID string
	Kind     EventKind
	Severity Severity
	// AccountID is the acting account, when known.
	AccountID string
	// Email is the subject email, when the event concerns one.
	Email string
	// ClientID identifies the calling client (IP or device identifier).
	ClientID string
	// Detail is a free-form structured payload, stored as JSON.
	Detail    map[string]any
	CreatedAt time.Time
}
