package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusBorrowed Status = "BORROWED"
	StatusReturned Status = "RETURNED"
	StatusOverdue  Status = "OVERDUE"
)

// Loan is a row of the `loans` table. AccountID and BookID never change after
// creation; ReturnedAt is set exactly once.
type Loan struct {
	ID         int64           `db:"id" json:"id"`
	AccountID  int64           `db:"account_id" json:"account_id"`
	BookID     int64           `db:"book_id" json:"book_id"`
	Status     Status          `db:"status" json:"status"`
	BorrowedAt time.Time       `db:"borrowed_at" json:"borrowed_at"`
	DueAt      time.Time       `db:"due_at" json:"due_at"`
	ReturnedAt *time.Time      `db:"returned_at" json:"returned_at,omitempty"`
	Fine       decimal.Decimal `db:"fine" json:"fine"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

func (l Loan) IsReturned() bool { return l.ReturnedAt != nil }

// ReturnedLate reports whether the loan was returned after its due time.
func (l Loan) ReturnedLate() bool {
	return l.ReturnedAt != nil && l.ReturnedAt.After(l.DueAt)
}

// LoanRecord is a loan joined with the borrower's username and the book title.
type LoanRecord struct {
	Loan
	Username  string `db:"username" json:"username"`
	BookTitle string `db:"book_title" json:"book_title"`
}

// OverdueRecord is a late-returned loan joined with the borrower's name and email.
type OverdueRecord struct {
	Loan
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`
	Email     string `db:"email"`
}

func (r OverdueRecord) FullName() string { return r.FirstName + " " + r.LastName }
