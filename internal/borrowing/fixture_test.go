package borrowing_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	accountentity "github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/memory"
)

var t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

// clock is a settable time source.
type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

func (c *clock) Set(t time.Time) { c.now = t }

func (c *clock) AdvanceDays(days int) { c.now = c.now.Add(time.Duration(days) * 24 * time.Hour) }

type fixture struct {
	db    *memory.DB
	clock *clock
	svc   *borrowing.Service
	ctx   context.Context
}

func newFixture(t *testing.T, opts ...borrowing.Option) *fixture {
	t.Helper()
	f := &fixture{db: memory.New(), clock: &clock{now: t0}, ctx: context.Background()}
	var seq int64 = 1000
	base := []borrowing.Option{
		borrowing.WithClock(f.clock.Now),
		borrowing.WithIDs(func() int64 { seq++; return seq }),
	}
	f.svc = borrowing.NewService(f.db, nil, append(base, opts...)...)
	return f
}

func (f *fixture) addPatron(t *testing.T, id int64, username, first, last string) {
	t.Helper()
	require.NoError(t, f.db.Accounts().Create(f.ctx, &accountentity.Account{
		ID:          id,
		Username:    username,
		Email:       username + "@example.com",
		FirstName:   first,
		LastName:    last,
		Roles:       []string{accountentity.RolePatron},
		Enabled:     true,
		Active:      true,
		OverdueFine: decimal.Zero,
		CreatedAt:   t0,
		UpdatedAt:   t0,
	}))
}

func (f *fixture) addBook(t *testing.T, id int64, title, isbn string) {
	t.Helper()
	require.NoError(t, f.db.Books().Create(f.ctx, &bookentity.Book{
		ID:        id,
		Title:     title,
		Author:    "Author",
		ISBN:      isbn,
		Genre:     bookentity.GenreFiction,
		Price:     decimal.NewFromInt(20),
		Available: true,
		Active:    true,
		CreatedAt: t0,
		UpdatedAt: t0,
	}))
}

func (f *fixture) book(t *testing.T, id int64) *bookentity.Book {
	t.Helper()
	b, err := f.db.Books().FindByID(f.ctx, id)
	require.NoError(t, err)
	return b
}

func (f *fixture) account(t *testing.T, id int64) *accountentity.Account {
	t.Helper()
	a, err := f.db.Accounts().FindByID(f.ctx, id)
	require.NoError(t, err)
	return a
}

// borrowAndReturnLate borrows bookID as username and returns it late by the given duration.
func (f *fixture) borrowAndReturnLate(t *testing.T, username string, bookID int64, late time.Duration) *borrowing.ReturnSummary {
	t.Helper()
	loan, err := f.svc.Borrow(f.ctx, username, bookID)
	require.NoError(t, err)
	f.clock.Set(loan.DueAt.Add(late))
	res, err := f.svc.Return(f.ctx, username, loan.ID)
	require.NoError(t, err)
	return res
}
