package sqlite

import (
	"context"
	"time"

	"github.com/campuskeep/campuskeep/internal/onboard/domain"
)

type tenantsRepo struct {
	q dbtx
}

func (r *tenantsRepo) CreateTenant(ctx context.Context, t domain.Tenant) error {
	now := time.Now().UTC()
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, subdomain, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Subdomain, now, now,
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) GetTenantByID(ctx context.Context, id string) (domain.Tenant, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, subdomain, created_at, updated_at
		FROM tenants
		WHERE id = ?`, id)

	var t domain.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}
	return t, nil
}

func (r *tenantsRepo) GetTenantBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT id, name, subdomain, created_at, updated_at
		FROM tenants
		WHERE subdomain = ?`, subdomain)

	var t domain.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.Subdomain, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}
	return t, nil
}
