package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State-dependent precondition violations raised by in-memory mutators.
var (
	ErrDuplicateLogin = errors.New("login already exists")
	ErrNoPhoneNumber  = errors.New("user has no phone number")
)

// User is the identity entity persisted in the users table. Collection
// fields (logins, tokens, roles) and the phone/lockout sub-records are
// mutated in memory only; nothing is written until the store's UpdateUser
// is called.
type User struct {
	ID                    uuid.UUID    `cql:"id"`
	Username              string       `cql:"username"`
	NormalizedUsername    string       `cql:"normalized_username"`
	Email                 string       `cql:"email"`
	NormalizedEmail       string       `cql:"normalized_email"`
	EmailConfirmationTime *time.Time   `cql:"email_confirmation_time"`
	PasswordHash          string       `cql:"password_hash"`
	SecurityStamp         string       `cql:"security_stamp"`
	Phone                 *PhoneInfo   `cql:"phone"`
	TwoFactorEnabled      bool         `cql:"two_factor_enabled"`
	Lockout               *LockoutInfo `cql:"lockout"`
	Logins                []LoginInfo  `cql:"logins"`
	Tokens                []TokenInfo  `cql:"tokens"`
	Roles                 []string     `cql:"roles"`
}

// NewUser creates a user with a fresh identifier.
func NewUser(username, email string) *User {
	return &User{
		ID:       uuid.New(),
		Username: username,
		Email:    email,
	}
}

// EmailConfirmed reports whether the email address has been confirmed.
// Confirmation is represented by the presence of a confirmation timestamp.
func (u *User) EmailConfirmed() bool {
	return u.EmailConfirmationTime != nil
}

// SetEmailConfirmed records or clears the email confirmation timestamp.
func (u *User) SetEmailConfirmed(confirmed bool) {
	if confirmed {
		now := time.Now().UTC()
		u.EmailConfirmationTime = &now
		return
	}
	u.EmailConfirmationTime = nil
}

// PhoneNumber returns the user's phone number, or "" when no phone
// record exists.
func (u *User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return u.Phone.Number
}

// SetPhoneNumber replaces the phone sub-record with an unconfirmed number.
func (u *User) SetPhoneNumber(number string) {
	u.Phone = &PhoneInfo{Number: number}
}

// SetPhoneConfirmed records or clears the phone confirmation timestamp.
// Confirming is a state-dependent operation: it fails when the user has
// no phone number to confirm.
func (u *User) SetPhoneConfirmed(confirmed bool) error {
	if u.Phone == nil {
		return fmt.Errorf("cannot set the confirmation status of the phone number: %w", ErrNoPhoneNumber)
	}
	if confirmed {
		now := time.Now().UTC()
		u.Phone.ConfirmationTime = &now
	} else {
		u.Phone.ConfirmationTime = nil
	}
	return nil
}

// LockoutEnd returns the time at which the lockout ends, or nil when the
// user has no lockout record or no end date. A past value means the user
// is not locked out.
func (u *User) LockoutEnd() *time.Time {
	if u.Lockout == nil {
		return nil
	}
	return u.Lockout.EndDate
}

// SetLockoutEnd records the lockout end date, allocating the lockout
// record when absent.
func (u *User) SetLockoutEnd(end *time.Time) {
	if u.Lockout == nil {
		u.Lockout = &LockoutInfo{}
	}
	u.Lockout.EndDate = end
}

// LockoutEnabled reports whether the user can be locked out. An absent
// lockout record means lockout is not enabled.
func (u *User) LockoutEnabled() bool {
	return u.Lockout != nil && u.Lockout.Enabled
}

// SetLockoutEnabled flips the lockout flag, allocating the lockout record
// when absent.
func (u *User) SetLockoutEnabled(enabled bool) {
	if u.Lockout == nil {
		u.Lockout = &LockoutInfo{}
	}
	u.Lockout.Enabled = enabled
}

// AccessFailedCount returns the number of consecutive failed access
// attempts, or 0 when the user has no lockout record.
func (u *User) AccessFailedCount() int {
	if u.Lockout == nil {
		return 0
	}
	return u.Lockout.AccessFailedCount
}

// IncrementAccessFailed bumps the failed-attempt counter and returns the
// new count, allocating the lockout record when absent.
func (u *User) IncrementAccessFailed() int {
	if u.Lockout == nil {
		u.Lockout = &LockoutInfo{}
	}
	u.Lockout.AccessFailedCount++
	return u.Lockout.AccessFailedCount
}

// ResetAccessFailed zeroes the failed-attempt counter. An absent lockout
// record already counts as zero, so nothing is allocated.
func (u *User) ResetAccessFailed() {
	if u.Lockout != nil {
		u.Lockout.AccessFailedCount = 0
	}
}

// AddLogin appends an external login. A (provider, key) pair is unique per
// user; adding a duplicate is a conflict, not a silent overwrite.
func (u *User) AddLogin(login LoginInfo) error {
	for _, l := range u.Logins {
		if l.LoginProvider == login.LoginProvider && l.ProviderKey == login.ProviderKey {
			return fmt.Errorf("provider %q key %q: %w", login.LoginProvider, login.ProviderKey, ErrDuplicateLogin)
		}
	}
	u.Logins = append(u.Logins, login)
	return nil
}

// RemoveLogin removes the (provider, key) login if present. Removing an
// absent login is a no-op.
func (u *User) RemoveLogin(loginProvider, providerKey string) {
	for i, l := range u.Logins {
		if l.LoginProvider == loginProvider && l.ProviderKey == providerKey {
			u.Logins = append(u.Logins[:i], u.Logins[i+1:]...)
			return
		}
	}
}

// Token returns the token for (provider, name), or nil when absent.
func (u *User) Token(loginProvider, name string) *TokenInfo {
	for i := range u.Tokens {
		if u.Tokens[i].LoginProvider == loginProvider && u.Tokens[i].Name == name {
			return &u.Tokens[i]
		}
	}
	return nil
}

// SetToken stores a token value under (provider, name). Any existing entry
// for the pair is replaced; last write wins.
func (u *User) SetToken(loginProvider, name, value string) {
	u.RemoveToken(loginProvider, name)
	u.Tokens = append(u.Tokens, TokenInfo{LoginProvider: loginProvider, Name: name, Value: value})
}

// RemoveToken removes the (provider, name) token if present.
func (u *User) RemoveToken(loginProvider, name string) {
	for i, t := range u.Tokens {
		if t.LoginProvider == loginProvider && t.Name == name {
			u.Tokens = append(u.Tokens[:i], u.Tokens[i+1:]...)
			return
		}
	}
}

// AddRole adds a role name to the user's membership set. Duplicates are
// silently ignored.
func (u *User) AddRole(roleName string) {
	if u.HasRole(roleName) {
		return
	}
	u.Roles = append(u.Roles, roleName)
}

// RemoveRole removes a role name from the membership set. Absence is
// silently ignored.
func (u *User) RemoveRole(roleName string) {
	for i, r := range u.Roles {
		if r == roleName {
			u.Roles = append(u.Roles[:i], u.Roles[i+1:]...)
			return
		}
	}
}

// HasRole reports whether the user's membership set contains roleName.
func (u *User) HasRole(roleName string) bool {
	for _, r := range u.Roles {
		if r == roleName {
			return true
		}
	}
	return false
}

// CleanUp prunes sub-records whose fields are all at their zero values so
// they are persisted as absent instead of materialized empty structures.
// Called by the store before every update.
func (u *User) CleanUp() {
	if u.Lockout != nil && u.Lockout.IsDefault() {
		u.Lockout = nil
	}
	if u.Phone != nil && u.Phone.IsDefault() {
		u.Phone = nil
	}
}
