package domain

import "time"

// User is the owning principal as exposed by the user directory. Credential
// verification and account management live outside this service; only the
// fields token issuance needs are carried here.
type User struct {
	ID            string
	Username      string
	Email         string
	EmailVerified bool
	IsAdmin       bool
	LockoutEndsAt *time.Time // nil when the account has never been locked
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// LockedOut reports whether the account is currently locked.
func (u User) LockedOut(now time.Time) bool {
	return u.LockoutEndsAt != nil && u.LockoutEndsAt.After(now)
}
