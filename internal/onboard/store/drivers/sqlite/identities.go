package sqlite

import (
	"context"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

type identitiesRepo struct {
	q dbtx
}

func (r *identitiesRepo) CreateIdentity(ctx context.Context, i domain.Identity) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO identities (id, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		i.ID, i.Email, i.PasswordHash, now, now,
	)
	return mapConstraint(err)
}

func (r *identitiesRepo) GetIdentityByID(ctx context.Context, id string) (domain.Identity, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM identities
		WHERE id = ?`, id)
	return scanIdentity(row)
}

func (r *identitiesRepo) GetIdentityByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM identities
		WHERE email = ?`, email)
	return scanIdentity(row)
}

func scanIdentity(row rowScanner) (domain.Identity, error) {
	var i domain.Identity
	err := row.Scan(&i.ID, &i.Email, &i.PasswordHash, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return i, nil
}
