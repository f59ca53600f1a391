package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

type securityEventsRepo struct {
	q dbtx
}

func (r *securityEventsRepo) InsertEvent(ctx context.Context, ev domain.SecurityEvent) error {
	detail := []byte("{}")
	if len(ev.Detail) > 0 {
		var err error
		detail, err = json.Marshal(ev.Detail)
		if err != nil {
			return err
		}
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO security_events (
			id, tenant_id, kind, severity, account_id, email, client_id,
			detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, mapStringNull(ev.TenantID), string(ev.Kind), string(ev.Severity),
		mapStringNull(ev.AccountID), mapStringNull(ev.Email),
		mapStringNull(ev.ClientID), string(detail), ev.CreatedAt.UTC(),
	)
	return mapConstraint(err)
}

func (r *securityEventsRepo) ListEventsSince(
	ctx context.Context,
	tenantID string,
	since time.Time,
) ([]domain.SecurityEvent, error) {
	query := `
		SELECT id, tenant_id, kind, severity, account_id, email, client_id,
		       detail, created_at
		FROM security_events
		WHERE created_at >= ?`
	args := []any{since.UTC()}

	if tenantID != "" {
		// Unattributed events (e.g. probes with unknown tokens) have no
		// tenant and are visible to every tenant's report.
		query += ` AND (tenant_id = ? OR tenant_id IS NULL)`
		args = append(args, tenantID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.SecurityEvent
	for rows.Next() {
		var (
			ev        domain.SecurityEvent
			kind      string
			severity  string
			tenant    sql.NullString
			accountID sql.NullString
			email     sql.NullString
			clientID  sql.NullString
			detail    string
		)
		err := rows.Scan(&ev.ID, &tenant, &kind, &severity, &accountID,
			&email, &clientID, &detail, &ev.CreatedAt)
		if err != nil {
			return nil, err
		}

		ev.TenantID = mapNullString(tenant)
		ev.Kind = domain.EventKind(kind)
		ev.Severity = domain.Severity(severity)
		ev.AccountID = mapNullString(accountID)
		ev.Email = mapNullString(email)
		ev.ClientID = mapNullString(clientID)
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &ev.Detail); err != nil {
				return nil, err
			}
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
