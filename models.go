package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleUser is a regular customer account
	RoleUser UserRole = "user"
	// RoleEmployee is a staff account (i.e. order handling)
	RoleEmployee UserRole = "employee"
	// RoleAdmin is an administrative account
	RoleAdmin UserRole = "admin"
)

// AccountState is the lifecycle state of an account
type AccountState = string

const (
	// StatePendingVerification is the initial state of every signup
	StatePendingVerification AccountState = "pending-verification"
	// StateActive means the email was proven or a trusted upstream vouched for it
	StateActive AccountState = "active"
	// StateBanned excludes the record from every login/session read path
	StateBanned AccountState = "banned"
)

// User is the credential store record. Secret-bearing columns are never
// serialized outward; the password hash is replaced wholesale on change.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID     uuid.UUID    `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role   UserRole     `bun:"user_role,notnull" json:"user_role,omitempty"`
	State  AccountState `bun:"account_state,notnull" json:"account_state,omitempty"`
	Name   string       `bun:"name,notnull" json:"name,omitempty"`
	Email  string       `bun:"email,notnull,unique" json:"email,omitempty"`
	Avatar string       `bun:"avatar" json:"avatar,omitempty"`
	Phone  string       `bun:"phone_number" json:"phone_number,omitempty"`

	PasswordHash      string     `bun:"password_hash" json:"-"`
	PasswordChangedAt *time.Time `bun:"password_changed_at,nullzero" json:"-"`

	VerificationTokenHash string     `bun:"verification_token_hash,nullzero" json:"-"`
	VerificationExpiresAt *time.Time `bun:"verification_expires_at,nullzero" json:"-"`
	VerifyAttempts        int        `bun:"verify_attempts" json:"-"`

	ResetTokenHash string     `bun:"reset_token_hash,nullzero" json:"-"`
	ResetExpiresAt *time.Time `bun:"reset_expires_at,nullzero" json:"-"`

	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureState backfills records created before the state column existed.
func (u *User) EnsureState() {
	if u.State == "" {
		u.State = StatePendingVerification
	}
}

func (u *User) IsActive() bool {
	return u.State == StateActive
}

func (u *User) IsBanned() bool {
	return u.State == StateBanned
}

func (u *User) IsPendingVerification() bool {
	u.EnsureState()
	return u.State == StatePendingVerification
}

// HasOutstandingVerification reports whether an unexpired verification
// code is on the record.
func (u *User) HasOutstandingVerification(now time.Time) bool {
	return u.VerificationTokenHash != "" &&
		u.VerificationExpiresAt != nil &&
		now.Before(*u.VerificationExpiresAt)
}

// HasOutstandingReset reports whether an unexpired reset token is on the record.
func (u *User) HasOutstandingReset(now time.Time) bool {
	return u.ResetTokenHash != "" &&
		u.ResetExpiresAt != nil &&
		now.Before(*u.ResetExpiresAt)
}

// NormalizeEmail lower-cases and trims the lookup key so that lookups and
// the unique constraint agree on one canonical form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone renders a phone number in E.164 when it parses, and
// returns the trimmed input otherwise. Profile data, not an auth input.
func NormalizePhone(phone, region string) string {
	trimmed := strings.TrimSpace(phone)
	if trimmed == "" {
		return ""
	}

	if region == "" {
		region = "US"
	}

	parsed, err := phonenumbers.Parse(trimmed, region)
	if err != nil || !phonenumbers.IsValidNumber(parsed) {
		return trimmed
	}

	return phonenumbers.Format(parsed, phonenumbers.E164)
}
