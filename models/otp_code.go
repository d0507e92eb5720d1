package models

import (
	"time"
)

// OTPCode is a one-time numeric code bound to an account reference.
// Multiple live codes per account are allowed; each expires independently.
// Stored in Redis with a key TTL, so records are not GORM-managed.
type OTPCode struct {
	AccountRef string    `json:"account_ref"`
	Code       string    `json:"-"` // Never serialize the code itself
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsExpired reports whether the code is past its TTL at the given instant.
func (o *OTPCode) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}
