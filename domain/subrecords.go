package domain

import "time"

// LockoutInfo is the lockout sub-record stored as a user-defined type on
// the user row.
type LockoutInfo struct {
	// EndDate is the UTC time at which the lockout ends. A nil or past
	// value means the user is not locked out.
	EndDate *time.Time `cql:"end_date"`

	// Enabled indicates whether the user can be locked out at all.
	Enabled bool `cql:"enabled"`

	// AccessFailedCount is the number of consecutive failed access
	// attempts.
	AccessFailedCount int `cql:"access_failed_count"`
}

// IsDefault reports whether every field is at its zero value. Such a
// record is equivalent to no record and is pruned before persistence.
func (l *LockoutInfo) IsDefault() bool {
	return l.EndDate == nil && !l.Enabled && l.AccessFailedCount == 0
}

// PhoneInfo is the phone sub-record stored as a user-defined type on the
// user row.
type PhoneInfo struct {
	Number           string     `cql:"number"`
	ConfirmationTime *time.Time `cql:"confirmation_time"`
}

// Confirmed reports whether the number has been confirmed.
func (p *PhoneInfo) Confirmed() bool {
	return p.ConfirmationTime != nil
}

// IsDefault reports whether every field is at its zero value.
func (p *PhoneInfo) IsDefault() bool {
	return p.Number == "" && p.ConfirmationTime == nil
}

// LoginInfo is an external login bound to a user. The (LoginProvider,
// ProviderKey) pair identifies a login; the display name is informational.
type LoginInfo struct {
	LoginProvider       string `cql:"login_provider"`
	ProviderKey         string `cql:"provider_key"`
	ProviderDisplayName string `cql:"provider_display_name"`
}

// TokenInfo is a named token bound to a user, identified by the
// (LoginProvider, Name) pair.
type TokenInfo struct {
	LoginProvider string `cql:"login_provider"`
	Name          string `cql:"name"`
	Value         string `cql:"value"`
}
