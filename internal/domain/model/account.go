package model

import "time"

// Account is an external-platform identity whose credential drives sync runs.
// Token is plaintext at the domain boundary; stores encrypt it at rest.
type Account struct {
	ID        int64
	Login     string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
