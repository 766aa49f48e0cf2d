package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (hash string, algo string, err error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) cost() int {
	if b.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return b.Cost
}

func (b BcryptHasher) Hash(pw string) (string, string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), b.cost())
	if err != nil {
		return "", "", err
	}
	return string(h), fmt.Sprintf("bcrypt:%d", b.cost()), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was produced with a cost other than the configured one.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	c, err := bcrypt.Cost([]byte(hash))
	return err == nil && c != b.cost()
}

var (
	ErrNotFound       = errors.New("account not found")
	ErrDisabled       = errors.New("account disabled")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrDuplicate      = errors.New("username or email already in use")
	ErrInvalid        = errors.New("invalid account")
)

// Store is the account persistence the service needs. Neither write touches
// the enabled flag or the accumulated fine; those belong to the lending flow.
type Store interface {
	Create(ctx context.Context, a *entity.Account) error
	SaveProfile(ctx context.Context, a *entity.Account) error
	RecordLogin(ctx context.Context, id int64, at time.Time, hash, algo string) error
	FindByID(ctx context.Context, id int64) (*entity.Account, error)
	FindByUsername(ctx context.Context, username string) (*entity.Account, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	ListActive(ctx context.Context) ([]entity.Account, error)
}

var (
	emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
)

// Profile carries the editable personal fields.
type Profile struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
}

// RegisterInput is the payload of a new account.
type RegisterInput struct {
	Profile
	Username string `json:"username"`
	Password string `json:"password"`
}

func lengthBetween(s string, lo, hi int) bool {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	return n >= lo && n <= hi
}

func (p Profile) problems() []string {
	var out []string
	if !lengthBetween(p.FirstName, 2, 30) {
		out = append(out, "first name must be 2-30 characters")
	}
	if !lengthBetween(p.LastName, 2, 30) {
		out = append(out, "last name must be 2-30 characters")
	}
	if !emailPattern.MatchString(p.Email) {
		out = append(out, "email is not valid")
	}
	if p.PhoneNumber != "" && !phonePattern.MatchString(p.PhoneNumber) {
		out = append(out, "phone number must be 10-15 digits")
	}
	return out
}

func invalid(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}

func passwordProblem(pw string) []string {
	if !lengthBetween(pw, 6, 30) {
		return []string{"password must be 6-30 characters"}
	}
	return nil
}

// Validate checks a registration payload.
func (in RegisterInput) Validate() error {
	p := in.Profile.problems()
	if !lengthBetween(in.Username, 3, 20) {
		p = append(p, "username must be 3-20 characters")
	}
	return invalid(append(p, passwordProblem(in.Password)...))
}

// Service orchestrates authentication and account lifecycle flows.
type Service struct {
	store  Store
	hasher PasswordHasher
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(store Store, hasher PasswordHasher, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, hasher: hasher, logger: logger, now: time.Now}
}

// Register creates a patron account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return s.create(ctx, in, entity.RolePatron)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role string) (*entity.Account, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if taken, err := s.store.ExistsByUsername(ctx, username); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicate
	}
	if taken, err := s.store.ExistsByEmail(ctx, email); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrDuplicate
	}
	hash, algo, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	a := &entity.Account{
		ID:           utilities.NextID(),
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PhoneNumber:  in.PhoneNumber,
		PasswordHash: hash,
		PasswordAlgo: algo,
		Roles:        []string{role},
		Enabled:      true,
		OverdueFine:  decimal.Zero,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Infow("account created", "account_id", a.ID, "username", a.Username, "role", role)
	return a, nil
}

// Authenticate checks a username/password pair. Suspended accounts are refused
// with ErrDisabled; every other failure is ErrBadCredentials to avoid enumeration.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*entity.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrBadCredentials
	}
	a, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, err
	}
	if !a.Active || !s.hasher.Verify(a.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	if !a.Enabled {
		return nil, ErrDisabled
	}

	now := s.now().UTC()
	a.LastLoginAt = &now
	var hash, algo string
	if s.hasher.NeedsRehash(a.PasswordHash) {
		if h, al, hErr := s.hasher.Hash(password); hErr == nil {
			hash, algo = h, al
			a.PasswordHash, a.PasswordAlgo = h, al
		}
	}
	if err := s.store.RecordLogin(ctx, a.ID, now, hash, algo); err != nil {
		s.logger.Warnw("record login failed", "account_id", a.ID, "err", err)
	}
	return a, nil
}

// List returns all active accounts.
func (s *Service) List(ctx context.Context) ([]entity.Account, error) {
	return s.store.ListActive(ctx)
}

// Get returns an active account.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Account, error) {
	a, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !a.Active {
		return nil, ErrNotFound
	}
	return a, nil
}

// UpdateInput edits the profile and optionally the password.
type UpdateInput struct {
	Profile
	Password string `json:"password,omitempty"`
}

func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*entity.Account, error) {
	p := in.Profile.problems()
	if in.Password != "" {
		p = append(p, passwordProblem(in.Password)...)
	}
	if err := invalid(p); err != nil {
		return nil, err
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != a.Email {
		if taken, err := s.store.ExistsByEmail(ctx, email); err != nil {
			return nil, err
		} else if taken {
			return nil, ErrDuplicate
		}
	}
	a.FirstName = strings.TrimSpace(in.FirstName)
	a.LastName = strings.TrimSpace(in.LastName)
	a.Email = email
	a.PhoneNumber = in.PhoneNumber
	if in.Password != "" {
		if a.PasswordHash, a.PasswordAlgo, err = s.hasher.Hash(in.Password); err != nil {
			return nil, err
		}
	}
	a.UpdatedAt = s.now().UTC()
	if err := s.store.SaveProfile(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateRole replaces the account's role set with the single given role.
func (s *Service) UpdateRole(ctx context.Context, id int64, role string) (*entity.Account, error) {
	if !entity.ValidRole(role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Roles = []string{role}
	a.UpdatedAt = s.now().UTC()
	if err := s.store.SaveProfile(ctx, a); err != nil {
		return nil, err
	}
	s.logger.Infow("account role changed", "account_id", id, "role", role)
	return a, nil
}

// Deactivate soft-deletes an account. Its loan history is kept.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	a.Active = false
	a.UpdatedAt = s.now().UTC()
	if err := s.store.SaveProfile(ctx, a); err != nil {
		return err
	}
	s.logger.Infow("account deactivated", "account_id", id)
	return nil
}

// LibrarianConfig is the bootstrap librarian account.
type LibrarianConfig struct {
	Username string
	Password string
	Email    string
}

// LibrarianConfigFromEnv reads LIBRARIAN_USERNAME, LIBRARIAN_PASSWORD and LIBRARIAN_EMAIL.
func LibrarianConfigFromEnv() LibrarianConfig {
	cfg := LibrarianConfig{
		Username: os.Getenv("LIBRARIAN_USERNAME"),
		Password: os.Getenv("LIBRARIAN_PASSWORD"),
		Email:    os.Getenv("LIBRARIAN_EMAIL"),
	}
	if cfg.Username == "" {
		cfg.Username = "librarian"
	}
	if cfg.Email == "" {
		cfg.Email = "librarian@library.local"
	}
	return cfg
}

// EnsureLibrarian creates the bootstrap librarian unless the username exists.
// With no password configured it does nothing.
func (s *Service) EnsureLibrarian(ctx context.Context, cfg LibrarianConfig) error {
	if cfg.Password == "" {
		s.logger.Warnw("librarian bootstrap skipped, LIBRARIAN_PASSWORD not set")
		return nil
	}
	exists, err := s.store.ExistsByUsername(ctx, cfg.Username)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	in := RegisterInput{
		Profile:  Profile{FirstName: "Head", LastName: "Librarian", Email: cfg.Email},
		Username: cfg.Username,
		Password: cfg.Password,
	}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("librarian bootstrap: %w", err)
	}
	_, err = s.create(ctx, in, entity.RoleLibrarian)
	return err
}
