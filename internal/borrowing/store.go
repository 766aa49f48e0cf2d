package borrowing

import (
	"context"

	accountentity "github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing/entity"
)

// Lookups return sql.ErrNoRows for a missing row. LockByID holds the row for
// the rest of the surrounding transaction.

type BookStore interface {
	LockByID(ctx context.Context, id int64) (*bookentity.Book, error)
	Save(ctx context.Context, b *bookentity.Book) error
}

type AccountStore interface {
	FindByID(ctx context.Context, id int64) (*accountentity.Account, error)
	FindByUsername(ctx context.Context, username string) (*accountentity.Account, error)
	LockByID(ctx context.Context, id int64) (*accountentity.Account, error)
	Save(ctx context.Context, a *accountentity.Account) error
}

type LoanStore interface {
	Create(ctx context.Context, l *entity.Loan) error
	Save(ctx context.Context, l *entity.Loan) error
	LockByID(ctx context.Context, id int64) (*entity.Loan, error)
	ListByAccount(ctx context.Context, accountID int64) ([]entity.LoanRecord, error)
	ListAll(ctx context.Context) ([]entity.LoanRecord, error)
	// CountOverdueReturns counts the account's loans returned after their due time.
	CountOverdueReturns(ctx context.Context, accountID int64) (int64, error)
	// ListHistoricalOverdue lists every loan returned after its due time with
	// the borrower's contact details, ordered by account id.
	ListHistoricalOverdue(ctx context.Context) ([]entity.OverdueRecord, error)
}

// Stores groups the three stores over one connection or transaction.
type Stores struct {
	Books    BookStore
	Accounts AccountStore
	Loans    LoanStore
}

// Transactor runs fn with stores bound to one transaction, committing when fn
// returns nil and rolling back otherwise. Stores returns non-transactional
// stores for reads.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
	Stores() Stores
}
