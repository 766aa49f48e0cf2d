// Package memory implements the library stores in memory for development and
// testing. Lookups of missing rows return sql.ErrNoRows like the Postgres repos.
package memory

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	accountentity "github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	loanentity "github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/search"
	settingentity "github.com/ovaphlow/pitchfork/service-library-go/internal/setting/entity"
)

var ErrDuplicate = errors.New("duplicate key")

type dataset struct {
	books    map[int64]bookentity.Book
	accounts map[int64]accountentity.Account
	loans    map[int64]loanentity.Loan
	settings map[string]settingentity.Setting
}

func newDataset() *dataset {
	return &dataset{
		books:    make(map[int64]bookentity.Book),
		accounts: make(map[int64]accountentity.Account),
		loans:    make(map[int64]loanentity.Loan),
		settings: make(map[string]settingentity.Setting),
	}
}

func (d *dataset) clone() *dataset {
	return &dataset{
		books:    maps.Clone(d.books),
		accounts: maps.Clone(d.accounts),
		loans:    maps.Clone(d.loans),
		settings: maps.Clone(d.settings),
	}
}

// DB implements an in-memory database storage. A transaction holds the mutex
// and works on a copy of the data that replaces the original on commit.
type DB struct {
	mu   sync.Mutex
	data *dataset
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{data: newDataset()}
}

// Ensure interfaces are met.
var (
	_ borrowing.Transactor   = (*DB)(nil)
	_ borrowing.BookStore    = (*BookRepo)(nil)
	_ borrowing.AccountStore = (*AccountRepo)(nil)
	_ borrowing.LoanStore    = (*LoanRepo)(nil)
)

// run calls fn on the transaction's data, or on the committed data under the lock.
func (db *DB) run(tx *dataset, fn func(d *dataset) error) error {
	if tx != nil {
		return fn(tx)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.data)
}

func (db *DB) Books() *BookRepo       { return &BookRepo{db: db} }
func (db *DB) Accounts() *AccountRepo { return &AccountRepo{db: db} }
func (db *DB) Loans() *LoanRepo       { return &LoanRepo{db: db} }
func (db *DB) Settings() *SettingRepo { return &SettingRepo{db: db} }

func (db *DB) Stores() borrowing.Stores {
	return borrowing.Stores{Books: db.Books(), Accounts: db.Accounts(), Loans: db.Loans()}
}

// WithinTx runs fn against a private copy of the data. The copy is kept only
// when fn returns nil, so a failed operation leaves no partial writes.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context, s borrowing.Stores) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	tx := db.data.clone()
	st := borrowing.Stores{
		Books:    &BookRepo{db: db, tx: tx},
		Accounts: &AccountRepo{db: db, tx: tx},
		Loans:    &LoanRepo{db: db, tx: tx},
	}
	if err := fn(ctx, st); err != nil {
		return err
	}
	db.data = tx
	return nil
}

func sortedByID[V any](m map[int64]V, keep func(V) bool) []V {
	out := make([]V, 0, len(m))
	for _, id := range slices.Sorted(maps.Keys(m)) {
		if keep == nil || keep(m[id]) {
			out = append(out, m[id])
		}
	}
	return out
}

// --- books ---

type BookRepo struct {
	db *DB
	tx *dataset
}

func (r *BookRepo) Create(_ context.Context, b *bookentity.Book) error {
	return r.db.run(r.tx, func(d *dataset) error {
		if _, ok := d.books[b.ID]; ok {
			return ErrDuplicate
		}
		for _, other := range d.books {
			if other.ISBN == b.ISBN {
				return ErrDuplicate
			}
		}
		d.books[b.ID] = *b
		return nil
	})
}

func (r *BookRepo) Save(_ context.Context, b *bookentity.Book) error {
	return r.db.run(r.tx, func(d *dataset) error {
		if _, ok := d.books[b.ID]; !ok {
			return sql.ErrNoRows
		}
		d.books[b.ID] = *b
		return nil
	})
}

// SaveDetails keeps the stored availability.
func (r *BookRepo) SaveDetails(_ context.Context, b *bookentity.Book) error {
	return r.db.run(r.tx, func(d *dataset) error {
		cur, ok := d.books[b.ID]
		if !ok {
			return sql.ErrNoRows
		}
		for id, other := range d.books {
			if id != b.ID && other.ISBN == b.ISBN {
				return ErrDuplicate
			}
		}
		next := *b
		next.Available = cur.Available
		next.CreatedAt = cur.CreatedAt
		d.books[b.ID] = next
		return nil
	})
}

func (r *BookRepo) FindByID(_ context.Context, id int64) (*bookentity.Book, error) {
	var out bookentity.Book
	err := r.db.run(r.tx, func(d *dataset) error {
		b, ok := d.books[id]
		if !ok {
			return sql.ErrNoRows
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockByID is FindByID; the transaction already holds the database lock.
func (r *BookRepo) LockByID(ctx context.Context, id int64) (*bookentity.Book, error) {
	return r.FindByID(ctx, id)
}

func (r *BookRepo) ListActive(_ context.Context) ([]bookentity.Book, error) {
	var out []bookentity.Book
	err := r.db.run(r.tx, func(d *dataset) error {
		out = sortedByID(d.books, func(b bookentity.Book) bool { return b.Active })
		return nil
	})
	return out, err
}

func (r *BookRepo) ListAvailable(_ context.Context) ([]bookentity.Book, error) {
	var out []bookentity.Book
	err := r.db.run(r.tx, func(d *dataset) error {
		out = sortedByID(d.books, func(b bookentity.Book) bool { return b.Active && b.Available })
		return nil
	})
	return out, err
}

func (r *BookRepo) Search(_ context.Context, pred search.Predicate, page, size int) ([]bookentity.Book, int64, error) {
	var matched []bookentity.Book
	err := r.db.run(r.tx, func(d *dataset) error {
		matched = sortedByID(d.books, func(b bookentity.Book) bool { return pred.Match(b.Column) })
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	_, size, offset := search.Window(page, size)
	total := int64(len(matched))
	if offset >= len(matched) {
		return []bookentity.Book{}, total, nil
	}
	end := min(offset+size, len(matched))
	return matched[offset:end], total, nil
}

// --- accounts ---

type AccountRepo struct {
	db *DB
	tx *dataset
}

func storedAccount(a *accountentity.Account) accountentity.Account {
	out := *a
	out.Roles = slices.Clone(a.Roles)
	return out
}

func (r *AccountRepo) Create(_ context.Context, a *accountentity.Account) error {
	return r.db.run(r.tx, func(d *dataset) error {
		if _, ok := d.accounts[a.ID]; ok {
			return ErrDuplicate
		}
		for _, other := range d.accounts {
			if other.Username == a.Username || strings.EqualFold(other.Email, a.Email) {
				return ErrDuplicate
			}
		}
		d.accounts[a.ID] = storedAccount(a)
		return nil
	})
}

func (r *AccountRepo) Save(_ context.Context, a *accountentity.Account) error {
	return r.db.run(r.tx, func(d *dataset) error {
		if _, ok := d.accounts[a.ID]; !ok {
			return sql.ErrNoRows
		}
		d.accounts[a.ID] = storedAccount(a)
		return nil
	})
}

// SaveProfile keeps the stored penalty state and last login.
func (r *AccountRepo) SaveProfile(_ context.Context, a *accountentity.Account) error {
	return r.db.run(r.tx, func(d *dataset) error {
		cur, ok := d.accounts[a.ID]
		if !ok {
			return sql.ErrNoRows
		}
		for id, other := range d.accounts {
			if id != a.ID && (other.Username == a.Username || strings.EqualFold(other.Email, a.Email)) {
				return ErrDuplicate
			}
		}
		next := storedAccount(a)
		next.Enabled = cur.Enabled
		next.OverdueFine = cur.OverdueFine
		next.LastLoginAt = cur.LastLoginAt
		next.CreatedAt = cur.CreatedAt
		d.accounts[a.ID] = next
		return nil
	})
}

func (r *AccountRepo) RecordLogin(_ context.Context, id int64, at time.Time, hash, algo string) error {
	return r.db.run(r.tx, func(d *dataset) error {
		cur, ok := d.accounts[id]
		if !ok {
			return sql.ErrNoRows
		}
		cur.LastLoginAt = &at
		if hash != "" {
			cur.PasswordHash, cur.PasswordAlgo = hash, algo
		}
		d.accounts[id] = cur
		return nil
	})
}

func (r *AccountRepo) find(match func(accountentity.Account) bool) (*accountentity.Account, error) {
	var out *accountentity.Account
	err := r.db.run(r.tx, func(d *dataset) error {
		for _, a := range d.accounts {
			if match(a) {
				c := storedAccount(&a)
				out = &c
				return nil
			}
		}
		return sql.ErrNoRows
	})
	return out, err
}

func (r *AccountRepo) FindByID(_ context.Context, id int64) (*accountentity.Account, error) {
	return r.find(func(a accountentity.Account) bool { return a.ID == id })
}

func (r *AccountRepo) LockByID(ctx context.Context, id int64) (*accountentity.Account, error) {
	return r.FindByID(ctx, id)
}

func (r *AccountRepo) FindByUsername(_ context.Context, username string) (*accountentity.Account, error) {
	return r.find(func(a accountentity.Account) bool { return a.Username == username })
}

func (r *AccountRepo) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	return exists(r.FindByUsername(ctx, username))
}

func (r *AccountRepo) ExistsByEmail(_ context.Context, email string) (bool, error) {
	return exists(r.find(func(a accountentity.Account) bool { return strings.EqualFold(a.Email, email) }))
}

func exists(_ *accountentity.Account, err error) (bool, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *AccountRepo) ListActive(_ context.Context) ([]accountentity.Account, error) {
	var out []accountentity.Account
	err := r.db.run(r.tx, func(d *dataset) error {
		out = sortedByID(d.accounts, func(a accountentity.Account) bool { return a.Active })
		return nil
	})
	return out, err
}

// --- loans ---

type LoanRepo struct {
	db *DB
	tx *dataset
}

func (r *LoanRepo) Create(_ context.Context, l *loanentity.Loan) error {
	return r.db.run(r.tx, func(d *dataset) error {
		if _, ok := d.loans[l.ID]; ok {
			return ErrDuplicate
		}
		d.loans[l.ID] = *l
		return nil
	})
}

func (r *LoanRepo) Save(_ context.Context, l *loanentity.Loan) error {
	return r.db.run(r.tx, func(d *dataset) error {
		if _, ok := d.loans[l.ID]; !ok {
			return sql.ErrNoRows
		}
		d.loans[l.ID] = *l
		return nil
	})
}

func (r *LoanRepo) LockByID(_ context.Context, id int64) (*loanentity.Loan, error) {
	var out loanentity.Loan
	err := r.db.run(r.tx, func(d *dataset) error {
		l, ok := d.loans[id]
		if !ok {
			return sql.ErrNoRows
		}
		out = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *LoanRepo) records(keep func(loanentity.Loan) bool) ([]loanentity.LoanRecord, error) {
	var out []loanentity.LoanRecord
	err := r.db.run(r.tx, func(d *dataset) error {
		for _, l := range sortedByID(d.loans, keep) {
			out = append(out, loanentity.LoanRecord{
				Loan:      l,
				Username:  d.accounts[l.AccountID].Username,
				BookTitle: d.books[l.BookID].Title,
			})
		}
		return nil
	})
	return out, err
}

func (r *LoanRepo) ListByAccount(_ context.Context, accountID int64) ([]loanentity.LoanRecord, error) {
	return r.records(func(l loanentity.Loan) bool { return l.AccountID == accountID })
}

func (r *LoanRepo) ListAll(_ context.Context) ([]loanentity.LoanRecord, error) {
	return r.records(nil)
}

func (r *LoanRepo) CountOverdueReturns(_ context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.db.run(r.tx, func(d *dataset) error {
		for _, l := range d.loans {
			if l.AccountID == accountID && l.ReturnedLate() {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *LoanRepo) ListHistoricalOverdue(_ context.Context) ([]loanentity.OverdueRecord, error) {
	var out []loanentity.OverdueRecord
	err := r.db.run(r.tx, func(d *dataset) error {
		for _, l := range sortedByID(d.loans, loanentity.Loan.ReturnedLate) {
			a, ok := d.accounts[l.AccountID]
			if !ok {
				continue
			}
			out = append(out, loanentity.OverdueRecord{Loan: l, FirstName: a.FirstName, LastName: a.LastName, Email: a.Email})
		}
		return nil
	})
	slices.SortStableFunc(out, func(a, b loanentity.OverdueRecord) int { return cmp.Compare(a.AccountID, b.AccountID) })
	return out, err
}

// --- settings ---

type SettingRepo struct {
	db *DB
}

func (r *SettingRepo) GetByID(_ context.Context, id string) (*settingentity.Setting, error) {
	var out settingentity.Setting
	err := r.db.run(nil, func(d *dataset) error {
		s, ok := d.settings[id]
		if !ok {
			return sql.ErrNoRows
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SettingRepo) Create(_ context.Context, s *settingentity.Setting) (int64, error) {
	var n int64
	err := r.db.run(nil, func(d *dataset) error {
		if _, ok := d.settings[s.ID]; ok {
			return nil
		}
		d.settings[s.ID] = *s
		n = 1
		return nil
	})
	return n, err
}

func (r *SettingRepo) Update(_ context.Context, s *settingentity.Setting, expected int64) (int64, error) {
	var n int64
	err := r.db.run(nil, func(d *dataset) error {
		cur, ok := d.settings[s.ID]
		if !ok || cur.Version != expected {
			return nil
		}
		d.settings[s.ID] = *s
		n = 1
		return nil
	})
	return n, err
}
