package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	bookentity "github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/memory"
)

func newService(db *memory.DB) *account.Service {
	return account.NewService(db.Accounts(), account.BcryptHasher{Cost: bcrypt.MinCost}, nil)
}

func registration(username, email string) account.RegisterInput {
	return account.RegisterInput{
		Profile: account.Profile{
			FirstName:   "Ada",
			LastName:    "Lovelace",
			Email:       email,
			PhoneNumber: "+4915112345678",
		},
		Username: username,
		Password: "secret-pw",
	}
}

func Test_RegisterInput_Validate(t *testing.T) {
	require.NoError(t, registration("ada", "ada@example.com").Validate())

	tests := []struct {
		name   string
		mutate func(in *account.RegisterInput)
	}{
		{name: "short_first_name", mutate: func(in *account.RegisterInput) { in.FirstName = "A" }},
		{name: "short_last_name", mutate: func(in *account.RegisterInput) { in.LastName = "" }},
		{name: "short_username", mutate: func(in *account.RegisterInput) { in.Username = "ad" }},
		{name: "long_username", mutate: func(in *account.RegisterInput) { in.Username = "a-very-long-username-indeed" }},
		{name: "bad_email", mutate: func(in *account.RegisterInput) { in.Email = "ada.example.com" }},
		{name: "bad_phone", mutate: func(in *account.RegisterInput) { in.PhoneNumber = "12-34" }},
		{name: "short_password", mutate: func(in *account.RegisterInput) { in.Password = "abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := registration("ada", "ada@example.com")
			tt.mutate(&in)
			assert.ErrorIs(t, in.Validate(), account.ErrInvalid)
		})
	}
}

func Test_Register(t *testing.T) {
	db := memory.New()
	svc := newService(db)
	ctx := context.Background()

	a, err := svc.Register(ctx, registration("ada", "Ada@Example.com"))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", a.Email)
	assert.Equal(t, []string{entity.RolePatron}, []string(a.Roles))
	assert.True(t, a.Enabled)
	assert.True(t, a.OverdueFine.IsZero())
	assert.NotEqual(t, "secret-pw", a.PasswordHash)

	_, err = svc.Register(ctx, registration("ada", "other@example.com"))
	assert.ErrorIs(t, err, account.ErrDuplicate)
	_, err = svc.Register(ctx, registration("ada2", "ADA@example.com"))
	assert.ErrorIs(t, err, account.ErrDuplicate)
}

func Test_Authenticate(t *testing.T) {
	db := memory.New()
	svc := newService(db)
	ctx := context.Background()

	created, err := svc.Register(ctx, registration("ada", "ada@example.com"))
	require.NoError(t, err)

	a, err := svc.Authenticate(ctx, "ada", "secret-pw")
	require.NoError(t, err)
	assert.Equal(t, created.ID, a.ID)
	assert.NotNil(t, a.LastLoginAt)

	_, err = svc.Authenticate(ctx, "ada", "wrong")
	assert.ErrorIs(t, err, account.ErrBadCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "secret-pw")
	assert.ErrorIs(t, err, account.ErrBadCredentials)
	_, err = svc.Authenticate(ctx, "", "")
	assert.ErrorIs(t, err, account.ErrBadCredentials)

	// a suspended account is refused
	stored, err := db.Accounts().FindByID(ctx, created.ID)
	require.NoError(t, err)
	stored.Enabled = false
	require.NoError(t, db.Accounts().Save(ctx, stored))
	_, err = svc.Authenticate(ctx, "ada", "secret-pw")
	assert.ErrorIs(t, err, account.ErrDisabled)

	// a deactivated account looks unknown
	require.NoError(t, svc.Deactivate(ctx, created.ID))
	_, err = svc.Authenticate(ctx, "ada", "secret-pw")
	assert.ErrorIs(t, err, account.ErrBadCredentials)
}

// interleaved runs a hook once, right after the next lookup returns, to place
// a lending write between an account read and the write that follows it.
type interleaved struct {
	*memory.AccountRepo
	afterUsername func()
	afterID       func()
}

func once(h *func()) {
	if f := *h; f != nil {
		*h = nil
		f()
	}
}

func (s *interleaved) FindByUsername(ctx context.Context, username string) (*entity.Account, error) {
	a, err := s.AccountRepo.FindByUsername(ctx, username)
	once(&s.afterUsername)
	return a, err
}

func (s *interleaved) FindByID(ctx context.Context, id int64) (*entity.Account, error) {
	a, err := s.AccountRepo.FindByID(ctx, id)
	once(&s.afterID)
	return a, err
}

func Test_Authenticate_KeepsFineFromConcurrentReturn(t *testing.T) {
	db := memory.New()
	ctx := context.Background()
	store := &interleaved{AccountRepo: db.Accounts()}
	svc := account.NewService(store, account.BcryptHasher{Cost: bcrypt.MinCost}, nil)

	created, err := svc.Register(ctx, registration("ada", "ada@example.com"))
	require.NoError(t, err)
	require.NoError(t, db.Books().Create(ctx, &bookentity.Book{
		ID: 10, Title: "Dune", Author: "Frank Herbert", ISBN: "9780441172719", Available: true, Active: true,
	}))

	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	loans := borrowing.NewService(db, nil, borrowing.WithClock(func() time.Time { return now }))
	loan, err := loans.Borrow(ctx, "ada", 10)
	require.NoError(t, err)
	now = loan.DueAt.Add(5 * 24 * time.Hour)

	store.afterUsername = func() {
		res, err := loans.Return(ctx, "ada", loan.ID)
		require.NoError(t, err)
		require.Equal(t, "10.00", res.Fine.StringFixed(2))
	}
	_, err = svc.Authenticate(ctx, "ada", "secret-pw")
	require.NoError(t, err)

	stored, err := db.Accounts().FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", stored.OverdueFine.StringFixed(2))
	assert.NotNil(t, stored.LastLoginAt)
}

func Test_ProfileWrites_KeepPenaltyState(t *testing.T) {
	tests := []struct {
		name string
		run  func(svc *account.Service, id int64) error
	}{
		{name: "update", run: func(svc *account.Service, id int64) error {
			_, err := svc.Update(context.Background(), id, account.UpdateInput{
				Profile: account.Profile{FirstName: "Augusta", LastName: "King", Email: "ada@example.com"},
			})
			return err
		}},
		{name: "update_role", run: func(svc *account.Service, id int64) error {
			_, err := svc.UpdateRole(context.Background(), id, entity.RoleLibrarian)
			return err
		}},
		{name: "deactivate", run: func(svc *account.Service, id int64) error {
			return svc.Deactivate(context.Background(), id)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memory.New()
			ctx := context.Background()
			store := &interleaved{AccountRepo: db.Accounts()}
			svc := account.NewService(store, account.BcryptHasher{Cost: bcrypt.MinCost}, nil)

			created, err := svc.Register(ctx, registration("ada", "ada@example.com"))
			require.NoError(t, err)

			// the account is suspended with a fine while the write is in flight
			store.afterID = func() {
				a, err := db.Accounts().FindByID(ctx, created.ID)
				require.NoError(t, err)
				a.Enabled = false
				a.OverdueFine = decimal.NewFromInt(4)
				require.NoError(t, db.Accounts().Save(ctx, a))
			}
			require.NoError(t, tt.run(svc, created.ID))

			stored, err := db.Accounts().FindByID(ctx, created.ID)
			require.NoError(t, err)
			assert.False(t, stored.Enabled)
			assert.Equal(t, "4.00", stored.OverdueFine.StringFixed(2))
		})
	}
}

func Test_Update(t *testing.T) {
	db := memory.New()
	svc := newService(db)
	ctx := context.Background()

	a, err := svc.Register(ctx, registration("ada", "ada@example.com"))
	require.NoError(t, err)
	_, err = svc.Register(ctx, registration("grace", "grace@example.com"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, a.ID, account.UpdateInput{
		Profile:  account.Profile{FirstName: "Augusta", LastName: "King", Email: "augusta@example.com"},
		Password: "new-secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "Augusta King", updated.FullName())

	_, err = svc.Authenticate(ctx, "ada", "new-secret")
	assert.NoError(t, err)

	_, err = svc.Update(ctx, a.ID, account.UpdateInput{
		Profile: account.Profile{FirstName: "Augusta", LastName: "King", Email: "grace@example.com"},
	})
	assert.ErrorIs(t, err, account.ErrDuplicate)

	_, err = svc.Update(ctx, 999, account.UpdateInput{
		Profile: account.Profile{FirstName: "No", LastName: "Body", Email: "nobody@example.com"},
	})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func Test_UpdateRole(t *testing.T) {
	db := memory.New()
	svc := newService(db)
	ctx := context.Background()

	a, err := svc.Register(ctx, registration("ada", "ada@example.com"))
	require.NoError(t, err)

	updated, err := svc.UpdateRole(ctx, a.ID, entity.RoleLibrarian)
	require.NoError(t, err)
	assert.True(t, updated.HasRole(entity.RoleLibrarian))
	assert.False(t, updated.HasRole(entity.RolePatron))

	_, err = svc.UpdateRole(ctx, a.ID, "ROLE_ADMIN")
	assert.ErrorIs(t, err, account.ErrInvalid)
}

func Test_Deactivate(t *testing.T) {
	db := memory.New()
	svc := newService(db)
	ctx := context.Background()

	a, err := svc.Register(ctx, registration("ada", "ada@example.com"))
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, a.ID))

	_, err = svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	list, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func Test_EnsureLibrarian(t *testing.T) {
	db := memory.New()
	svc := newService(db)
	ctx := context.Background()

	require.NoError(t, svc.EnsureLibrarian(ctx, account.LibrarianConfig{Username: "librarian"}))
	exists, err := db.Accounts().ExistsByUsername(ctx, "librarian")
	require.NoError(t, err)
	assert.False(t, exists, "no password configured")

	cfg := account.LibrarianConfig{Username: "librarian", Password: "shelf-keeper", Email: "desk@library.test"}
	require.NoError(t, svc.EnsureLibrarian(ctx, cfg))
	require.NoError(t, svc.EnsureLibrarian(ctx, cfg))

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].HasRole(entity.RoleLibrarian))

	a, err := svc.Authenticate(ctx, "librarian", "shelf-keeper")
	require.NoError(t, err)
	assert.Equal(t, "desk@library.test", a.Email)
}

func Test_BcryptHasher_NeedsRehash(t *testing.T) {
	low := account.BcryptHasher{Cost: bcrypt.MinCost}
	hash, algo, err := low.Hash("pw")
	require.NoError(t, err)
	assert.Equal(t, "bcrypt:4", algo)
	assert.True(t, low.Verify(hash, "pw"))
	assert.False(t, low.NeedsRehash(hash))
	assert.True(t, account.BcryptHasher{Cost: bcrypt.MinCost + 1}.NeedsRehash(hash))
}

func Test_LibrarianConfigFromEnv(t *testing.T) {
	t.Setenv("LIBRARIAN_USERNAME", "")
	t.Setenv("LIBRARIAN_PASSWORD", "pw123456")
	t.Setenv("LIBRARIAN_EMAIL", "")
	cfg := account.LibrarianConfigFromEnv()
	assert.Equal(t, "librarian", cfg.Username)
	assert.Equal(t, "pw123456", cfg.Password)
	assert.Equal(t, "librarian@library.local", cfg.Email)
}
