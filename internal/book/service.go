package book

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/book/entity"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/search"
	"github.com/ovaphlow/pitchfork/service-library-go/pkg/utilities"
)

var (
	ErrNotFound   = errors.New("book not found")
	ErrInvalid    = errors.New("invalid book")
	ErrSaveFailed = errors.New("book save failed")
)

const maxDescription = 500

// Store is the catalogue persistence the service needs. BookRepo and the
// in-memory store both satisfy it. SaveDetails never writes availability.
type Store interface {
	Create(ctx context.Context, b *entity.Book) error
	SaveDetails(ctx context.Context, b *entity.Book) error
	FindByID(ctx context.Context, id int64) (*entity.Book, error)
	ListActive(ctx context.Context) ([]entity.Book, error)
	ListAvailable(ctx context.Context) ([]entity.Book, error)
	Search(ctx context.Context, pred search.Predicate, page, size int) ([]entity.Book, int64, error)
}

// Input carries the caller-editable book fields. Availability is not one of them.
type Input struct {
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	ISBN          string          `json:"isbn"`
	Genre         entity.Genre    `json:"genre"`
	Price         decimal.Decimal `json:"price"`
	Description   string          `json:"description"`
	PublishedDate *time.Time      `json:"published_date,omitempty"`
}

// Validate checks the input and returns an error wrapping ErrInvalid.
func (in Input) Validate() error {
	var problems []string
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if strings.TrimSpace(in.Author) == "" {
		problems = append(problems, "author is required")
	}
	if !validISBN(in.ISBN) {
		problems = append(problems, "isbn must be 10 or 13 digits")
	}
	if !in.Price.IsPositive() {
		problems = append(problems, "price must be positive")
	}
	if !in.Genre.Valid() {
		problems = append(problems, "genre is not recognised")
	}
	if utf8.RuneCountInString(in.Description) > maxDescription {
		problems = append(problems, "description must be at most 500 characters")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

func validISBN(s string) bool {
	if len(s) != 10 && len(s) != 13 {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// Service manages the catalogue.
type Service struct {
	store  Store
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(store Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger, now: time.Now}
}

// Create adds a book. New books are active and available.
func (s *Service) Create(ctx context.Context, in Input) (*entity.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	b := &entity.Book{
		ID:            utilities.NextID(),
		Title:         strings.TrimSpace(in.Title),
		Author:        strings.TrimSpace(in.Author),
		ISBN:          in.ISBN,
		Genre:         in.Genre,
		Price:         in.Price,
		Description:   in.Description,
		PublishedDate: in.PublishedDate,
		Available:     true,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, b); err != nil {
		s.logger.Warnw("book create failed", "isbn", b.ISBN, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	s.logger.Infow("book created", "book_id", b.ID, "isbn", b.ISBN)
	return b, nil
}

// Update overwrites the editable fields of an active book.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*entity.Book, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	b.Title = strings.TrimSpace(in.Title)
	b.Author = strings.TrimSpace(in.Author)
	b.ISBN = in.ISBN
	b.Genre = in.Genre
	b.Price = in.Price
	b.Description = in.Description
	b.PublishedDate = in.PublishedDate
	b.UpdatedAt = s.now().UTC()
	if err := s.store.SaveDetails(ctx, b); err != nil {
		s.logger.Warnw("book update failed", "book_id", id, "err", err)
		return nil, fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	// availability may have moved since the read
	return s.Get(ctx, id)
}

// Delete soft-deletes a book. Loans keep referencing the row.
func (s *Service) Delete(ctx context.Context, id int64) error {
	b, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	b.Active = false
	b.UpdatedAt = s.now().UTC()
	if err := s.store.SaveDetails(ctx, b); err != nil {
		return fmt.Errorf("%w: %v", ErrSaveFailed, err)
	}
	s.logger.Infow("book deleted", "book_id", id)
	return nil
}

// Get returns an active book.
func (s *Service) Get(ctx context.Context, id int64) (*entity.Book, error) {
	b, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !b.Active {
		return nil, ErrNotFound
	}
	return b, nil
}

func (s *Service) ListActive(ctx context.Context) ([]entity.Book, error) {
	return s.store.ListActive(ctx)
}

func (s *Service) ListAvailable(ctx context.Context) ([]entity.Book, error) {
	return s.store.ListAvailable(ctx)
}

// Search returns one page of active books matching c.
func (s *Service) Search(ctx context.Context, c Criteria, page, size int) (search.Page[entity.Book], error) {
	page, size, _ = search.Window(page, size)
	items, total, err := s.store.Search(ctx, search.Build(activeOnly{c}), page, size)
	if err != nil {
		return search.Page[entity.Book]{}, err
	}
	if items == nil {
		items = []entity.Book{}
	}
	return search.Page[entity.Book]{Items: items, Page: page, Size: size, Total: total}, nil
}

// activeOnly narrows any catalogue search to books not soft-deleted.
type activeOnly struct{ Criteria }

func (a activeOnly) SearchFields() []search.Field {
	return append(a.Criteria.SearchFields(), search.Field{Column: "active", Mode: search.Equal, Value: true})
}
