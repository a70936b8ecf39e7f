package entity

import "time"

// VerificationCode is the active registration code for one email address.
// Only the hash of the code is kept.
type VerificationCode struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"codeHash"`
	UserName  string    `json:"userName,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Attempts  int       `json:"attempts"`
	Consumed  bool      `json:"consumed"`
}

// Expired reports whether the code is past its expiry at now.
func (c *VerificationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
