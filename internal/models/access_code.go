package models

import (
	"regexp"
	"strings"
	"time"
)

// MaxCodeLength is the longest accepted access code
const MaxCodeLength = 20

var codePattern = regexp.MustCompile(`^[A-Z0-9]{1,20}$`)

// AccessCode is a bearer code granting a bounded number of quiz entries
type AccessCode struct {
	Code        string     `db:"code" json:"code"`
	MaxUses     int        `db:"max_uses" json:"maxUses"`
	CurrentUses int        `db:"current_uses" json:"currentUses"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	ExpiresAt   *time.Time `db:"expires_at" json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time `db:"last_used_at" json:"lastUsedAt,omitempty"`
}

// NormalizeCode trims surrounding whitespace and uppercases the code
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsValidCodeFormat reports whether an already normalized code is 1-20 uppercase alphanumerics
func IsValidCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}

// IsExhausted reports whether every use has been consumed
func (c *AccessCode) IsExhausted() bool {
	return c.CurrentUses >= c.MaxUses
}

// IsExpired reports whether the code has an expiry at or before now
func (c *AccessCode) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(*c.ExpiresAt)
}

// IsValid reports whether the code can be consumed at now
func (c *AccessCode) IsValid(now time.Time) bool {
	return !c.IsExhausted() && !c.IsExpired(now)
}

// RemainingUses returns how many more successful consumptions are allowed
func (c *AccessCode) RemainingUses() int {
	if c.CurrentUses >= c.MaxUses {
		return 0
	}
	return c.MaxUses - c.CurrentUses
}

// Clone returns a deep copy so callers never share pointers with a store
func (c *AccessCode) Clone() *AccessCode {
	cp := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		cp.ExpiresAt = &t
	}
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		cp.LastUsedAt = &t
	}
	return &cp
}

// RejectionReason classifies why a known code could not be consumed at now.
// It returns ErrCodeNotFound for a nil code.
func RejectionReason(c *AccessCode, now time.Time) error {
	switch {
	case c == nil:
		return ErrCodeNotFound
	case c.IsExhausted():
		return ErrCodeExhausted
	case c.IsExpired(now):
		return ErrCodeExpired
	default:
		// Valid now but lost a race for its last use
		return ErrCodeExhausted
	}
}
