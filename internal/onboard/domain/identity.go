package domain

import "time"

// Identity is a credential record held by the local identity provider.
// When an external provider is configured this table is unused.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
