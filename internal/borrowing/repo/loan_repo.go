package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing/entity"
)

const loanColumns = `id, account_id, book_id, status, borrowed_at, due_at, returned_at, fine, created_at, updated_at`

const recordSelect = `SELECT l.id, l.account_id, l.book_id, l.status, l.borrowed_at, l.due_at, l.returned_at, l.fine,
	l.created_at, l.updated_at, a.username, b.title AS book_title
	FROM loans l
	JOIN accounts a ON a.id = l.account_id
	JOIN books b ON b.id = l.book_id`

// LoanRepo provides data access for the loans table using sqlx.
type LoanRepo struct {
	db sqlx.ExtContext
}

func NewLoanRepo(db sqlx.ExtContext) *LoanRepo { return &LoanRepo{db: db} }

// EnsureTable creates the loans table if not exists (idempotent). It must run
// after the books and accounts tables exist.
func (r *LoanRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS loans (
  id BIGINT PRIMARY KEY,
  account_id BIGINT NOT NULL REFERENCES accounts(id),
  book_id BIGINT NOT NULL REFERENCES books(id),
  status TEXT NOT NULL,
  borrowed_at TIMESTAMPTZ NOT NULL,
  due_at TIMESTAMPTZ NOT NULL,
  returned_at TIMESTAMPTZ,
  fine NUMERIC(12,2) NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_loans_account ON loans(account_id);
CREATE INDEX IF NOT EXISTS idx_loans_late ON loans(account_id) WHERE returned_at > due_at;
CREATE UNIQUE INDEX IF NOT EXISTS uq_loans_open_book ON loans(book_id) WHERE returned_at IS NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *LoanRepo) Create(ctx context.Context, l *entity.Loan) error {
	const q = `INSERT INTO loans (` + loanColumns + `)
		VALUES (:id,:account_id,:book_id,:status,:borrowed_at,:due_at,:returned_at,:fine,:created_at,:updated_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, l)
	return err
}

// Save writes the return-time columns; sql.ErrNoRows when the id does not exist.
func (r *LoanRepo) Save(ctx context.Context, l *entity.Loan) error {
	const q = `UPDATE loans SET status=:status, returned_at=:returned_at, fine=:fine, updated_at=:updated_at WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, l)
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

// LockByID reads the loan holding a row lock for the rest of the transaction.
func (r *LoanRepo) LockByID(ctx context.Context, id int64) (*entity.Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans WHERE id=$1 FOR UPDATE`
	var l entity.Loan
	if err := sqlx.GetContext(ctx, r.db, &l, q, id); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LoanRepo) ListByAccount(ctx context.Context, accountID int64) ([]entity.LoanRecord, error) {
	var out []entity.LoanRecord
	if err := sqlx.SelectContext(ctx, r.db, &out, recordSelect+` WHERE l.account_id=$1 ORDER BY l.id`, accountID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoanRepo) ListAll(ctx context.Context) ([]entity.LoanRecord, error) {
	var out []entity.LoanRecord
	if err := sqlx.SelectContext(ctx, r.db, &out, recordSelect+` ORDER BY l.id`); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *LoanRepo) CountOverdueReturns(ctx context.Context, accountID int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM loans WHERE account_id=$1 AND returned_at > due_at`
	var n int64
	if err := sqlx.GetContext(ctx, r.db, &n, q, accountID); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *LoanRepo) ListHistoricalOverdue(ctx context.Context) ([]entity.OverdueRecord, error) {
	const q = `SELECT l.id, l.account_id, l.book_id, l.status, l.borrowed_at, l.due_at, l.returned_at, l.fine,
		l.created_at, l.updated_at, a.first_name, a.last_name, a.email
		FROM loans l
		JOIN accounts a ON a.id = l.account_id
		WHERE l.returned_at > l.due_at
		ORDER BY l.account_id, l.id`
	var out []entity.OverdueRecord
	if err := sqlx.SelectContext(ctx, r.db, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}
