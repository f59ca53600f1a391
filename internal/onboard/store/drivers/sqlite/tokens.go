package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
	"github.com/campuskeep/campuskeep/internal/onboard/store"
)

type tokensRepo struct {
	q dbtx
}

const tokenColumns = `id, kind, tenant_id, role, email, token_hash, issued_by,
	expires_at, accepted_at, accepted_by, cancelled_at, created_at, updated_at`

func (r *tokensRepo) CreateToken(ctx context.Context, t domain.OnboardingToken) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO onboarding_tokens (
			id, kind, tenant_id, role, email, token_hash, issued_by,
			expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, string(t.Kind), mapStringNull(t.TenantID), t.Role, t.Email,
		t.TokenHash, t.IssuedBy, t.ExpiresAt.UTC(), now, now,
	)
	return mapConstraint(err)
}

func (r *tokensRepo) GetTokenByID(ctx context.Context, id string) (domain.OnboardingToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM onboarding_tokens
		WHERE id = ?`, id)
	return scanToken(row)
}

func (r *tokensRepo) ListOpenTokens(ctx context.Context, kind domain.TokenKind) ([]domain.OnboardingToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+tokenColumns+`
		FROM onboarding_tokens
		WHERE kind = ? AND accepted_at IS NULL AND cancelled_at IS NULL
		ORDER BY created_at DESC`, string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []domain.OnboardingToken
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

func (r *tokensRepo) GetOpenInvitationByEmail(
	ctx context.Context,
	tenantID, email string,
	now time.Time,
) (domain.OnboardingToken, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+tokenColumns+`
		FROM onboarding_tokens
		WHERE kind = 'invitation'
		  AND tenant_id = ?
		  AND email = ?
		  AND accepted_at IS NULL
		  AND cancelled_at IS NULL
		  AND expires_at > ?
		LIMIT 1`, tenantID, email, now.UTC())
	return scanToken(row)
}

// ConsumeToken is the single atomic state transition that guarantees a
// token is accepted at most once: the WHERE clause only matches a
// still-open row, so of two concurrent acceptances exactly one sees
// RowsAffected == 1.
func (r *tokensRepo) ConsumeToken(ctx context.Context, id, acceptedBy string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE onboarding_tokens
		SET accepted_at = ?, accepted_by = ?, updated_at = ?
		WHERE id = ? AND accepted_at IS NULL AND cancelled_at IS NULL`,
		at.UTC(), mapStringNull(acceptedBy), at.UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *tokensRepo) CancelToken(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE onboarding_tokens
		SET cancelled_at = ?, updated_at = ?
		WHERE id = ? AND accepted_at IS NULL AND cancelled_at IS NULL`,
		at.UTC(), at.UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *tokensRepo) ResetTokenCredentials(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE onboarding_tokens
		SET token_hash = ?, expires_at = ?, updated_at = ?
		WHERE id = ? AND accepted_at IS NULL AND cancelled_at IS NULL`,
		tokenHash, expiresAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRowAffected(res)
}

func (r *tokensRepo) DeleteTokensExpiredBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		DELETE FROM onboarding_tokens
		WHERE expires_at < ?`, cutoff.UTC())
	return err
}

func requireRowAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (domain.OnboardingToken, error) {
	var (
		t           domain.OnboardingToken
		kind        string
		tenantID    sql.NullString
		acceptedAt  sql.NullTime
		acceptedBy  sql.NullString
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&t.ID, &kind, &tenantID, &t.Role, &t.Email, &t.TokenHash, &t.IssuedBy,
		&t.ExpiresAt, &acceptedAt, &acceptedBy, &cancelledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return domain.OnboardingToken{}, mapNotFound(err)
	}

	t.Kind = domain.TokenKind(kind)
	t.TenantID = mapNullString(tenantID)
	t.AcceptedAt = mapNullTimePtr(acceptedAt)
	t.AcceptedBy = mapNullString(acceptedBy)
	t.CancelledAt = mapNullTimePtr(cancelledAt)
	return t, nil
}
