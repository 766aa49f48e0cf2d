package repo

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
)

const accountColumns = `id, username, email, first_name, last_name, phone_number, password_hash, password_algo,
	roles, enabled, overdue_fine, active, last_login_at, created_at, updated_at`

// AccountRepo provides data access for the accounts table using sqlx.
type AccountRepo struct {
	db sqlx.ExtContext
}

func NewAccountRepo(db sqlx.ExtContext) *AccountRepo { return &AccountRepo{db: db} }

// EnsureTable creates the accounts table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *AccountRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS accounts (
  id BIGINT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  email CITEXT NOT NULL UNIQUE,
  first_name TEXT NOT NULL,
  last_name TEXT NOT NULL,
  phone_number TEXT NOT NULL DEFAULT '',
  password_hash TEXT NOT NULL,
  password_algo TEXT NOT NULL DEFAULT '',
  roles TEXT[] NOT NULL DEFAULT '{ROLE_PATRON}',
  enabled BOOLEAN NOT NULL DEFAULT true,
  overdue_fine NUMERIC(12,2) NOT NULL DEFAULT 0,
  active BOOLEAN NOT NULL DEFAULT true,
  last_login_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_accounts_email ON accounts(email);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new account row. The caller assigns the id.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO accounts (` + accountColumns + `)
		VALUES (:id,:username,:email,:first_name,:last_name,:phone_number,:password_hash,:password_algo,
			:roles,:enabled,:overdue_fine,:active,:last_login_at,:created_at,:updated_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, a)
	return err
}

// Save overwrites the mutable columns; sql.ErrNoRows when the id does not exist.
func (r *AccountRepo) Save(ctx context.Context, a *entity.Account) error {
	const q = `UPDATE accounts SET username=:username, email=:email, first_name=:first_name, last_name=:last_name,
		phone_number=:phone_number, password_hash=:password_hash, password_algo=:password_algo, roles=:roles,
		enabled=:enabled, overdue_fine=:overdue_fine, active=:active, last_login_at=:last_login_at,
		updated_at=:updated_at WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, a)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SaveProfile writes the columns owned by account management. The penalty
// columns (enabled, overdue_fine) and last_login_at are left as stored.
func (r *AccountRepo) SaveProfile(ctx context.Context, a *entity.Account) error {
	const q = `UPDATE accounts SET username=:username, email=:email, first_name=:first_name, last_name=:last_name,
		phone_number=:phone_number, password_hash=:password_hash, password_algo=:password_algo, roles=:roles,
		active=:active, updated_at=:updated_at WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, a)
	if err != nil {
		return err
	}
	return oneRow(res)
}

// RecordLogin stamps last_login_at. An empty hash keeps the stored password.
func (r *AccountRepo) RecordLogin(ctx context.Context, id int64, at time.Time, hash, algo string) error {
	const q = `UPDATE accounts SET last_login_at=$2,
		password_hash=COALESCE(NULLIF($3, ''), password_hash),
		password_algo=CASE WHEN $3 = '' THEN password_algo ELSE $4 END
		WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, at, hash, algo)
	if err != nil {
		return err
	}
	return oneRow(res)
}

func oneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByID returns the account or sql.ErrNoRows.
func (r *AccountRepo) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
}

// LockByID reads the account holding a row lock for the rest of the transaction.
func (r *AccountRepo) LockByID(ctx context.Context, id int64) (*entity.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id)
}

// FindByUsername fetches by username.
func (r *AccountRepo) FindByUsername(ctx context.Context, username string) (*entity.Account, error) {
	return r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username=$1`, username)
}

func (r *AccountRepo) getOne(ctx context.Context, q string, arg any) (*entity.Account, error) {
	var a entity.Account
	if err := sqlx.GetContext(ctx, r.db, &a, q, arg); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AccountRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE username=$1)`, username)
}

// ExistsByEmail is case-insensitive due to citext.
func (r *AccountRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email=$1)`, email)
}

func (r *AccountRepo) exists(ctx context.Context, q string, arg any) (bool, error) {
	var ok bool
	if err := sqlx.GetContext(ctx, r.db, &ok, q, arg); err != nil {
		return false, err
	}
	return ok, nil
}

// ListActive returns accounts that were not deactivated.
func (r *AccountRepo) ListActive(ctx context.Context) ([]entity.Account, error) {
	var out []entity.Account
	if err := sqlx.SelectContext(ctx, r.db, &out, `SELECT `+accountColumns+` FROM accounts WHERE active ORDER BY id`); err != nil {
		return nil, err
	}
	return out, nil
}
