package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/setting/entity"
)

// Repo is the repository implementation for settings backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable ensures the settings table and its index exist.
func (r *Repo) EnsureTable(ctx context.Context) error {
	// to_regclass is NULL when the relation does not exist
	var tblName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.settings')").Scan(&tblName); err != nil {
		return err
	}
	if !tblName.Valid {
		createTable := `CREATE TABLE settings (
			id varchar(32) PRIMARY KEY,
			category varchar(32) NOT NULL DEFAULT '',
			value jsonb NOT NULL DEFAULT '{}'::jsonb,
			version bigint NOT NULL DEFAULT 1,
			updated_at timestamptz NOT NULL DEFAULT NOW()
		)`
		if _, err := r.db.ExecContext(ctx, createTable); err != nil {
			return err
		}
	}

	var idxName sql.NullString
	if err := r.db.QueryRowContext(ctx, "SELECT to_regclass('public.idx_settings_category')").Scan(&idxName); err != nil {
		return err
	}
	if !idxName.Valid {
		if _, err := r.db.ExecContext(ctx, `CREATE INDEX idx_settings_category ON settings (category)`); err != nil {
			return err
		}
	}
	return nil
}

// GetByID returns the setting or sql.ErrNoRows.
func (r *Repo) GetByID(ctx context.Context, id string) (*entity.Setting, error) {
	const q = `SELECT id, category, value, version, updated_at FROM settings WHERE id=$1`
	var s entity.Setting
	if err := r.db.GetContext(ctx, &s, q, id); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts s unless a row with its id exists and returns the number of
// rows inserted.
func (r *Repo) Create(ctx context.Context, s *entity.Setting) (int64, error) {
	const q = `INSERT INTO settings (id, category, value, version, updated_at)
		VALUES (:id, :category, :value, :version, :updated_at)
		ON CONFLICT (id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, q, s)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Update writes s only when the stored version equals expected and returns
// the number of rows changed.
func (r *Repo) Update(ctx context.Context, s *entity.Setting, expected int64) (int64, error) {
	const q = `UPDATE settings SET category=$2, value=$3, version=$4, updated_at=$5 WHERE id=$1 AND version=$6`
	res, err := r.db.ExecContext(ctx, q, s.ID, s.Category, []byte(s.Value), s.Version, s.UpdatedAt, expected)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
