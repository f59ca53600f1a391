package sqlite

import (
	"context"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

type accountsRepo struct {
	q dbtx
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (id, tenant_id, email, name, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.TenantID, a.Email, a.Name, a.Role, now, now,
	)
	return mapConstraint(err)
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, name, role, created_at, updated_at
		FROM accounts
		WHERE id = ?`, id)
	return scanAccount(row)
}

func (r *accountsRepo) GetAccountByEmail(ctx context.Context, tenantID, email string) (domain.Account, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, email, name, role, created_at, updated_at
		FROM accounts
		WHERE tenant_id = ? AND email = ?`, tenantID, email)
	return scanAccount(row)
}

func scanAccount(row rowScanner) (domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Email, &a.Name, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	return a, nil
}
