package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	accountrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/account/repo"
	bookrepo "github.com/ovaphlow/pitchfork/service-library-go/internal/book/repo"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/database"
)

// Postgres binds the borrowing stores to a database, one transaction per WithinTx.
type Postgres struct {
	db *sqlx.DB
}

func NewPostgres(db *sqlx.DB) *Postgres { return &Postgres{db: db} }

func storesOn(db sqlx.ExtContext) borrowing.Stores {
	return borrowing.Stores{
		Books:    bookrepo.NewBookRepo(db),
		Accounts: accountrepo.NewAccountRepo(db),
		Loans:    NewLoanRepo(db),
	}
}

func (p *Postgres) Stores() borrowing.Stores { return storesOn(p.db) }

func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context, s borrowing.Stores) error) error {
	return database.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		return fn(ctx, storesOn(tx))
	})
}

var _ borrowing.Transactor = (*Postgres)(nil)
