package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/search"
)

const (
	dialectPostgres = "postgres"
	tableBooks      = "books"
	bookColumns     = `id, title, author, isbn, genre, price, description, published_date, available, active, created_at, updated_at`
)

var bookSelectColumns = []any{
	"id", "title", "author", "isbn", "genre", "price", "description",
	"published_date", "available", "active", "created_at", "updated_at",
}

// BookRepo provides data access for the books table. db is either the pool or
// a transaction, so the same repo serves catalogue reads and loan transactions.
type BookRepo struct {
	db sqlx.ExtContext
}

func NewBookRepo(db sqlx.ExtContext) *BookRepo { return &BookRepo{db: db} }

// EnsureTable creates the books table if not exists (idempotent).
func (r *BookRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS books (
  id BIGINT PRIMARY KEY,
  title TEXT NOT NULL,
  author TEXT NOT NULL,
  isbn TEXT NOT NULL UNIQUE,
  genre TEXT NOT NULL,
  price NUMERIC(12,2) NOT NULL DEFAULT 0,
  description TEXT NOT NULL DEFAULT '',
  published_date DATE,
  available BOOLEAN NOT NULL DEFAULT true,
  active BOOLEAN NOT NULL DEFAULT true,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_books_genre ON books(genre);
CREATE INDEX IF NOT EXISTS idx_books_available ON books(available) WHERE active;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new book row. The caller assigns the id.
func (r *BookRepo) Create(ctx context.Context, b *entity.Book) error {
	const q = `INSERT INTO books (` + bookColumns + `)
		VALUES (:id,:title,:author,:isbn,:genre,:price,:description,:published_date,:available,:active,:created_at,:updated_at)`
	_, err := sqlx.NamedExecContext(ctx, r.db, q, b)
	return err
}

// Save overwrites a book row; sql.ErrNoRows when the id does not exist.
func (r *BookRepo) Save(ctx context.Context, b *entity.Book) error {
	const q = `UPDATE books SET title=:title, author=:author, isbn=:isbn, genre=:genre, price=:price,
		description=:description, published_date=:published_date, available=:available, active=:active,
		updated_at=:updated_at WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, b)
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

// SaveDetails writes the catalogue columns and the active flag. Availability
// belongs to the lending flow and is left as stored.
func (r *BookRepo) SaveDetails(ctx context.Context, b *entity.Book) error {
	const q = `UPDATE books SET title=:title, author=:author, isbn=:isbn, genre=:genre, price=:price,
		description=:description, published_date=:published_date, active=:active, updated_at=:updated_at
		WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, b)
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

// FindByID returns the book or sql.ErrNoRows.
func (r *BookRepo) FindByID(ctx context.Context, id int64) (*entity.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE id=$1`
	var b entity.Book
	if err := sqlx.GetContext(ctx, r.db, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// LockByID is FindByID holding a row lock until the surrounding transaction
// ends, so a concurrent borrow of the same book waits for the first to commit.
func (r *BookRepo) LockByID(ctx context.Context, id int64) (*entity.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE id=$1 FOR UPDATE`
	var b entity.Book
	if err := sqlx.GetContext(ctx, r.db, &b, q, id); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListActive returns all books not soft-deleted.
func (r *BookRepo) ListActive(ctx context.Context) ([]entity.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE active ORDER BY id`
	var out []entity.Book
	if err := sqlx.SelectContext(ctx, r.db, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// ListAvailable returns active books that can be borrowed right now.
func (r *BookRepo) ListAvailable(ctx context.Context) ([]entity.Book, error) {
	const q = `SELECT ` + bookColumns + ` FROM books WHERE active AND available ORDER BY id`
	var out []entity.Book
	if err := sqlx.SelectContext(ctx, r.db, &out, q); err != nil {
		return nil, err
	}
	return out, nil
}

// Search returns one page of books matching pred and the total match count.
func (r *BookRepo) Search(ctx context.Context, pred search.Predicate, page, size int) ([]entity.Book, int64, error) {
	q, err := buildSearchQueries(pred, page, size)
	if err != nil {
		return nil, 0, err
	}
	var total int64
	if err := sqlx.GetContext(ctx, r.db, &total, q.countSQL, q.countArgs...); err != nil {
		return nil, 0, err
	}
	var out []entity.Book
	if err := sqlx.SelectContext(ctx, r.db, &out, q.listSQL, q.listArgs...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type searchQueries struct {
	listSQL   string
	listArgs  []any
	countSQL  string
	countArgs []any
}

func buildSearchQueries(pred search.Predicate, page, size int) (searchQueries, error) {
	_, size, offset := search.Window(page, size)
	base := goqu.Dialect(dialectPostgres).From(tableBooks).Prepared(true).Where(pred.Expression())

	var q searchQueries
	var err error
	q.countSQL, q.countArgs, err = base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return q, fmt.Errorf("build count query: %w", err)
	}
	q.listSQL, q.listArgs, err = base.
		Select(bookSelectColumns...).
		Order(goqu.I("id").Asc()).
		Limit(uint(size)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return q, fmt.Errorf("build search query: %w", err)
	}
	return q, nil
}
