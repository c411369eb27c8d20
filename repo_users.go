package auth

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var activateVerifiedSQL = `UPDATE "users" AS "usr"
SET
	"account_state" = 'active',
	"verification_token_hash" = NULL,
	"verification_expires_at" = NULL,
	"verify_attempts" = 0,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."account_state" = 'pending-verification'
AND "usr"."verification_token_hash" = ?
RETURNING *;`

var setVerificationTokenSQL = `UPDATE "users" AS "usr"
SET
	"verification_token_hash" = ?,
	"verification_expires_at" = ?,
	"verify_attempts" = 0,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

var clearVerificationTokenSQL = `UPDATE "users" AS "usr"
SET
	"verification_token_hash" = NULL,
	"verification_expires_at" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."verification_token_hash" = ?
RETURNING *;`

var setResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"reset_token_hash" = ?,
	"reset_expires_at" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

var clearResetTokenSQL = `UPDATE "users" AS "usr"
SET
	"reset_token_hash" = NULL,
	"reset_expires_at" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."reset_token_hash" = ?
RETURNING *;`

var replacePasswordSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"password_changed_at" = ?,
	"reset_token_hash" = NULL,
	"reset_expires_at" = NULL,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

// recordFailedVerificationSQL increments the attempt counter and bans the
// account in the same statement once the threshold is crossed, so lockout
// can never be bypassed by the caller.
var recordFailedVerificationSQL = `UPDATE "users" AS "usr"
SET
	"verify_attempts" = "verify_attempts" + 1,
	"account_state" = CASE
		WHEN "verify_attempts" + 1 >= ? THEN 'banned'
		ELSE "account_state"
	END,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
RETURNING *;`

var updateStateIfSQL = `UPDATE "users" AS "usr"
SET
	"account_state" = ?,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"usr"."deleted_at" IS NULL
AND "usr"."id" = ?
AND "usr"."account_state" = ?
RETURNING *;`

// Accounts is the credential store adapter. Every lifecycle transition is
// expressed as a single conditional write so concurrent operations on the
// same record cannot both succeed.
type Accounts interface {
	repository.Repository[*User]

	CreateAccount(ctx context.Context, user *User) (*User, error)
	CreateAccountTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByVerificationHash(ctx context.Context, hash string, now time.Time) (*User, error)
	GetByResetHash(ctx context.Context, hash string, now time.Time) (*User, error)

	FindVerificationCandidate(ctx context.Context, hash string) (*User, error)

	SetVerificationToken(ctx context.Context, id string, hash string, expiresAt time.Time) error
	SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id string, hash string, expiresAt time.Time) error
	ClearVerificationToken(ctx context.Context, id string, hash string) error
	ActivateVerified(ctx context.Context, id string, hash string) (*User, error)
	RecordFailedVerification(ctx context.Context, id string, maxAttempts int) (*User, error)

	SetResetToken(ctx context.Context, id string, hash string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, id string, hash string) error
	ReplacePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) (*User, error)

	UpdateStateIf(ctx context.Context, id string, from, to AccountState) (*User, error)
}

type accounts struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Accounts                     = (*accounts)(nil)
	_ repository.Repository[*User] = (*accounts)(nil)
	_ StateWriter                  = (*accounts)(nil)
)

func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) CreateAccount(ctx context.Context, user *User) (*User, error) {
	return a.CreateAccountTx(ctx, a.db, user)
}

// CreateAccountTx persists a new record. Duplicate detection is delegated
// to the store's unique constraint on email rather than check-then-insert,
// which closes the race between concurrent signups for the same address.
func (a *accounts) CreateAccountTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareAccountDefaults(user)

	created, err := a.Repository.CreateTx(ctx, tx, user)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}

	return created, nil
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

// GetByEmailTx is the login/reset read path. Banned records are invisible
// to it, so callers cannot tell a banned account from a missing one.
func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Where("?TableAlias.account_state != ?", StateBanned).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

// GetByVerificationHash resolves a record solely by its outstanding,
// unexpired verification hash; no externally supplied identity is involved.
func (a *accounts) GetByVerificationHash(ctx context.Context, hash string, now time.Time) (*User, error) {
	return a.getByTokenHash(ctx, "verification_token_hash", "verification_expires_at", hash, now)
}

func (a *accounts) GetByResetHash(ctx context.Context, hash string, now time.Time) (*User, error) {
	return a.getByTokenHash(ctx, "reset_token_hash", "reset_expires_at", hash, now)
}

// FindVerificationCandidate matches a hash regardless of expiry. It only
// serves failed-attempt accounting: an expired-code retry still counts
// against the record that issued it.
func (a *accounts) FindVerificationCandidate(ctx context.Context, hash string) (*User, error) {
	if hash == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias.verification_token_hash = ?", hash).
		Where("?TableAlias.account_state != ?", StateBanned).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) getByTokenHash(ctx context.Context, hashColumn, expiryColumn, hash string, now time.Time) (*User, error) {
	if hash == "" {
		return nil, repository.NewRecordNotFound()
	}

	record := &User{}
	err := a.db.NewSelect().Model(record).
		Where("?TableAlias."+hashColumn+" = ?", hash).
		Where("?TableAlias."+expiryColumn+" > ?", now).
		Where("?TableAlias.account_state != ?", StateBanned).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) SetVerificationToken(ctx context.Context, id string, hash string, expiresAt time.Time) error {
	return a.SetVerificationTokenTx(ctx, a.db, id, hash, expiresAt)
}

func (a *accounts) SetVerificationTokenTx(ctx context.Context, tx bun.IDB, id string, hash string, expiresAt time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, setVerificationTokenSQL, hash, expiresAt, id)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return nil
}

// ClearVerificationToken rolls back an outstanding code. The clear is
// conditional on the hash it was issued with, so a rollback can never
// wipe a newer code issued by a concurrent operation.
func (a *accounts) ClearVerificationToken(ctx context.Context, id string, hash string) error {
	_, err := a.Repository.Raw(ctx, clearVerificationTokenSQL, id, hash)
	return err
}

// ActivateVerified flips the record to active and clears the token fields
// in one conditional write. Only one of two concurrent verify calls can
// observe a row here.
func (a *accounts) ActivateVerified(ctx context.Context, id string, hash string) (*User, error) {
	res, err := a.Repository.Raw(ctx, activateVerifiedSQL, id, hash)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return res[0], nil
}

func (a *accounts) RecordFailedVerification(ctx context.Context, id string, maxAttempts int) (*User, error) {
	res, err := a.Repository.Raw(ctx, recordFailedVerificationSQL, maxAttempts, id)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return res[0], nil
}

func (a *accounts) SetResetToken(ctx context.Context, id string, hash string, expiresAt time.Time) error {
	res, err := a.Repository.Raw(ctx, setResetTokenSQL, hash, expiresAt, id)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return nil
}

func (a *accounts) ClearResetToken(ctx context.Context, id string, hash string) error {
	_, err := a.Repository.Raw(ctx, clearResetTokenSQL, id, hash)
	return err
}

// ReplacePassword swaps the hash wholesale, stamps password_changed_at and
// clears any outstanding reset token in the same write.
func (a *accounts) ReplacePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) (*User, error) {
	res, err := a.Repository.Raw(ctx, replacePasswordSQL, passwordHash, changedAt, id)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id})
	}

	return res[0], nil
}

func (a *accounts) UpdateStateIf(ctx context.Context, id string, from, to AccountState) (*User, error) {
	res, err := a.Repository.Raw(ctx, updateStateIfSQL, to, id, from)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, goerrors.New("account state changed concurrently", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict).
			WithMetadata(map[string]any{"id": id, "from": from, "to": to})
	}

	return res[0], nil
}

func prepareAccountDefaults(record *User) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleUser
	}

	record.EnsureState()
	record.Email = NormalizeEmail(record.Email)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "Duplicate entry")
}
