package entity

import (
	"slices"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	RolePatron    = "ROLE_PATRON"
	RoleLibrarian = "ROLE_LIBRARIAN"
)

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool {
	return r == RolePatron || r == RoleLibrarian
}

// Account is a row of the `accounts` table.
// Enabled and OverdueFine change only when an overdue return is processed.
type Account struct {
	ID           int64           `db:"id" json:"id"`
	Username     string          `db:"username" json:"username"`
	Email        string          `db:"email" json:"email"`
	FirstName    string          `db:"first_name" json:"first_name"`
	LastName     string          `db:"last_name" json:"last_name"`
	PhoneNumber  string          `db:"phone_number" json:"phone_number,omitempty"`
	PasswordHash string          `db:"password_hash" json:"-"`
	PasswordAlgo string          `db:"password_algo" json:"-"`
	Roles        pq.StringArray  `db:"roles" json:"roles"`
	Enabled      bool            `db:"enabled" json:"enabled"`
	OverdueFine  decimal.Decimal `db:"overdue_fine" json:"overdue_fine"`
	Active       bool            `db:"active" json:"-"`
	LastLoginAt  *time.Time      `db:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (a Account) FullName() string { return a.FirstName + " " + a.LastName }

func (a Account) HasRole(role string) bool { return slices.Contains(a.Roles, role) }

// MinimalAuthView is the projection placed into access token claims.
type MinimalAuthView struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func (a Account) AuthView() MinimalAuthView {
	return MinimalAuthView{ID: a.ID, Username: a.Username, Email: a.Email, Roles: slices.Clone([]string(a.Roles))}
}
