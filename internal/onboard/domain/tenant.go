package domain

import "time"

// Tenant is an isolated customer organisation. Tenant data isolation is
// enforced by the storage layer; this subsystem's duty is to pass the right
// tenant identifier everywhere.
type Tenant struct {
	ID        string
	Name      string
	Subdomain string
	CreatedAt time.Time
	UpdatedAt time.Time
}
