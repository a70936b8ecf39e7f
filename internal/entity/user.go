package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// User is an account owned by the account-management service. This module only
// reads it and flips EmailVerified.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string     `bun:"id,pk"`
	FullName      string     `bun:"full_name"`
	Email         string     `bun:"email,notnull"`
	EmailVerified bool       `bun:"email_verified,notnull"`
	Status        string     `bun:"status"`
	RegisteredAt  time.Time  `bun:"registered_at,notnull"`
	UpdatedAt     time.Time  `bun:"updated_at,notnull"`
	LastLoginAt   *time.Time `bun:"last_login_at"`
}
