// Package borrowing implements the loan lifecycle: borrowing and returning
// books, fines for late returns, suspension of repeat offenders and the
// overdue report.
package borrowing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// LoanView is a loan as shown to its borrower or a librarian.
type LoanView struct {
	ID         int64           `json:"id"`
	Username   string          `json:"username"`
	BookID     int64           `json:"book_id"`
	BookTitle  string          `json:"book_title"`
	BorrowedAt time.Time       `json:"borrowed_at"`
	DueAt      time.Time       `json:"due_at"`
	ReturnedAt *time.Time      `json:"returned_at,omitempty"`
	Status     entity.Status   `json:"status"`
	Fine       decimal.Decimal `json:"fine"`
}

func viewOf(l *entity.Loan, username, title string) LoanView {
	return LoanView{
		ID:         l.ID,
		Username:   username,
		BookID:     l.BookID,
		BookTitle:  title,
		BorrowedAt: l.BorrowedAt,
		DueAt:      l.DueAt,
		ReturnedAt: l.ReturnedAt,
		Status:     l.Status,
		Fine:       l.Fine,
	}
}

// ReturnSummary is the outcome of a return.
type ReturnSummary struct {
	Loan      LoanView        `json:"loan"`
	Overdue   bool            `json:"overdue"`
	Fine      decimal.Decimal `json:"fine"`
	Suspended bool            `json:"account_suspended"`
}

// Service orchestrates borrow and return, one transaction per operation.
type Service struct {
	repo   Transactor
	policy PolicySource
	logger *zap.SugaredLogger
	now    func() time.Time
	nextID func() int64
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithPolicySource(p PolicySource) Option { return func(s *Service) { s.policy = p } }

func WithIDs(next func() int64) Option { return func(s *Service) { s.nextID = next } }

func NewService(repo Transactor, logger *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		policy: StaticPolicy(DefaultPolicy()),
		logger: logger,
		now:    time.Now,
		nextID: utilities.NextID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop().Sugar()
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func missing(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

// Borrow lends bookID to the account named by identity.
func (s *Service) Borrow(ctx context.Context, identity string, bookID int64) (*LoanView, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrAuthenticationMissing
	}
	policy, err := s.policy.LendingPolicy(ctx)
	if err != nil {
		return nil, fail("borrow", err)
	}

	var view LoanView
	err = s.repo.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		acc, err := st.Accounts.FindByUsername(ctx, identity)
		if err != nil {
			return missing(err, "account")
		}
		if !acc.Active {
			return fmt.Errorf("%w: account", ErrNotFound)
		}
		if !acc.Enabled {
			return ErrAccountSuspended
		}

		book, err := st.Books.LockByID(ctx, bookID)
		if err != nil {
			return missing(err, "book")
		}
		if !book.Active {
			return fmt.Errorf("%w: book", ErrNotFound)
		}
		if !book.Available {
			return ErrUnavailable
		}

		now := s.now().UTC()
		book.Available = false
		book.UpdatedAt = now
		if err := st.Books.Save(ctx, book); err != nil {
			return err
		}
		loan := &entity.Loan{
			ID:         s.nextID(),
			AccountID:  acc.ID,
			BookID:     book.ID,
			Status:     entity.StatusBorrowed,
			BorrowedAt: now,
			DueAt:      now.Add(policy.LoanPeriod),
			Fine:       decimal.Zero,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := st.Loans.Create(ctx, loan); err != nil {
			return err
		}
		view = viewOf(loan, acc.Username, book.Title)
		return nil
	})
	if err != nil {
		s.logger.Warnw("borrow rejected", "username", identity, "book_id", bookID, "err", err)
		return nil, fail("borrow", err)
	}
	s.logger.Infow("book borrowed", "username", identity, "book_id", bookID, "loan_id", view.ID, "due_at", view.DueAt)
	return &view, nil
}

// Return closes loanID for the account named by identity, charging a fine and
// possibly suspending the account when the book comes back late.
func (s *Service) Return(ctx context.Context, identity string, loanID int64) (*ReturnSummary, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrAuthenticationMissing
	}
	policy, err := s.policy.LendingPolicy(ctx)
	if err != nil {
		return nil, fail("return", err)
	}

	var out ReturnSummary
	err = s.repo.WithinTx(ctx, func(ctx context.Context, st Stores) error {
		acc, err := st.Accounts.FindByUsername(ctx, identity)
		if err != nil {
			return missing(err, "account")
		}
		loan, err := st.Loans.LockByID(ctx, loanID)
		if err != nil {
			return missing(err, "loan")
		}
		// ownership first: a foreign loan must look absent whatever its state
		if loan.AccountID != acc.ID {
			return ErrOwnershipMismatch
		}
		if loan.IsReturned() {
			return ErrAlreadyReturned
		}

		now := s.now().UTC()
		loan.ReturnedAt = &now
		loan.UpdatedAt = now
		overdue := now.After(loan.DueAt)
		if overdue {
			loan.Fine = policy.OverdueFine(loan.DueAt, now)
			loan.Status = entity.StatusOverdue
		} else {
			loan.Fine = decimal.Zero
			loan.Status = entity.StatusReturned
		}
		if err := st.Loans.Save(ctx, loan); err != nil {
			return err
		}

		if overdue {
			locked, err := st.Accounts.LockByID(ctx, acc.ID)
			if err != nil {
				return missing(err, "account")
			}
			count, err := st.Loans.CountOverdueReturns(ctx, acc.ID)
			if err != nil {
				return err
			}
			out.Suspended = policy.ApplyPenalty(locked, loan.Fine, count)
			locked.UpdatedAt = now
			if err := st.Accounts.Save(ctx, locked); err != nil {
				return err
			}
		}

		book, err := st.Books.LockByID(ctx, loan.BookID)
		if err != nil {
			return missing(err, "book")
		}
		book.Available = true
		book.UpdatedAt = now
		if err := st.Books.Save(ctx, book); err != nil {
			return err
		}

		out.Loan = viewOf(loan, acc.Username, book.Title)
		out.Overdue = overdue
		out.Fine = loan.Fine
		return nil
	})
	if err != nil {
		s.logger.Warnw("return rejected", "username", identity, "loan_id", loanID, "err", err)
		return nil, fail("return", err)
	}
	s.logger.Infow("book returned",
		"username", identity,
		"loan_id", loanID,
		"overdue", out.Overdue,
		"fine", out.Fine.StringFixed(2),
	)
	if out.Suspended {
		s.logger.Warnw("account suspended for repeated overdue returns", "username", identity)
	}
	return &out, nil
}

// History lists the loans of the account named by identity.
func (s *Service) History(ctx context.Context, identity string) ([]LoanView, error) {
	if strings.TrimSpace(identity) == "" {
		return nil, ErrAuthenticationMissing
	}
	st := s.repo.Stores()
	acc, err := st.Accounts.FindByUsername(ctx, identity)
	if err != nil {
		return nil, fail("history", missing(err, "account"))
	}
	records, err := st.Loans.ListByAccount(ctx, acc.ID)
	if err != nil {
		return nil, fail("history", err)
	}
	return views(records), nil
}

// AllHistory lists every loan.
func (s *Service) AllHistory(ctx context.Context) ([]LoanView, error) {
	records, err := s.repo.Stores().Loans.ListAll(ctx)
	if err != nil {
		return nil, fail("all history", err)
	}
	return views(records), nil
}

func views(records []entity.LoanRecord) []LoanView {
	out := make([]LoanView, 0, len(records))
	for i := range records {
		out = append(out, viewOf(&records[i].Loan, records[i].Username, records[i].BookTitle))
	}
	return out
}
