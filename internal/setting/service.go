package setting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-library-go/internal/borrowing"
	"github.com/ovaphlow/pitchfork/service-library-go/internal/setting/entity"
)

const (
	LendingPolicyID = "lending_policy"
	categoryLending = "lending"
)

// sentinel errors for common failure modes
var (
	ErrInvalid         = errors.New("invalid setting")
	ErrVersionConflict = errors.New("version conflict")
)

// Store is the settings persistence the service needs.
type Store interface {
	GetByID(ctx context.Context, id string) (*entity.Setting, error)
	// Create inserts s unless the id exists and reports the rows inserted.
	Create(ctx context.Context, s *entity.Setting) (int64, error)
	Update(ctx context.Context, s *entity.Setting, expected int64) (int64, error)
}

// LendingPolicy is the stored form of borrowing.Policy. Version 0 means the
// policy was never saved and the configured defaults apply.
type LendingPolicy struct {
	LoanPeriodDays      int             `json:"loan_period_days"`
	FinePerDay          decimal.Decimal `json:"fine_per_day"`
	SuspensionThreshold int64           `json:"suspension_threshold"`
	Version             int64           `json:"version"`
}

func (p LendingPolicy) validate() error {
	switch {
	case p.LoanPeriodDays <= 0:
		return fmt.Errorf("%w: loan_period_days must be positive", ErrInvalid)
	case p.FinePerDay.IsNegative():
		return fmt.Errorf("%w: fine_per_day must not be negative", ErrInvalid)
	case p.SuspensionThreshold <= 0:
		return fmt.Errorf("%w: suspension_threshold must be positive", ErrInvalid)
	}
	return nil
}

// Policy converts to the form the loan lifecycle uses.
func (p LendingPolicy) Policy() borrowing.Policy {
	return borrowing.Policy{
		LoanPeriod:          time.Duration(p.LoanPeriodDays) * 24 * time.Hour,
		DailyRate:           p.FinePerDay,
		SuspensionThreshold: p.SuspensionThreshold,
	}
}

func fromPolicy(p borrowing.Policy) LendingPolicy {
	return LendingPolicy{
		LoanPeriodDays:      int(p.LoanPeriod / (24 * time.Hour)),
		FinePerDay:          p.DailyRate,
		SuspensionThreshold: p.SuspensionThreshold,
	}
}

// Service manages stored settings. It is the borrowing.PolicySource.
type Service struct {
	store    Store
	fallback borrowing.Policy
	logger   *zap.SugaredLogger
	now      func() time.Time
}

func NewService(store Store, fallback borrowing.Policy, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, fallback: fallback, logger: logger, now: time.Now}
}

// GetLendingPolicy returns the stored policy, or the fallback at version 0.
func (s *Service) GetLendingPolicy(ctx context.Context) (LendingPolicy, error) {
	st, err := s.store.GetByID(ctx, LendingPolicyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fromPolicy(s.fallback), nil
		}
		return LendingPolicy{}, err
	}
	var p LendingPolicy
	if err := json.Unmarshal(st.Value, &p); err != nil {
		return LendingPolicy{}, fmt.Errorf("decode lending policy: %w", err)
	}
	p.Version = st.Version
	return p, nil
}

func (s *Service) LendingPolicy(ctx context.Context) (borrowing.Policy, error) {
	p, err := s.GetLendingPolicy(ctx)
	if err != nil {
		return borrowing.Policy{}, err
	}
	return p.Policy(), nil
}

// UpdateLendingPolicy stores in using optimistic locking: in.Version must be
// the version last read.
func (s *Service) UpdateLendingPolicy(ctx context.Context, in LendingPolicy) (LendingPolicy, error) {
	if err := in.validate(); err != nil {
		return LendingPolicy{}, err
	}
	expected := in.Version
	in.Version = 0
	raw, err := json.Marshal(in)
	if err != nil {
		return LendingPolicy{}, err
	}
	st := &entity.Setting{
		ID:        LendingPolicyID,
		Category:  categoryLending,
		Value:     raw,
		Version:   expected + 1,
		UpdatedAt: s.now().UTC(),
	}

	// version 0 means no stored policy yet; only the first insert succeeds
	var rows int64
	if expected == 0 {
		rows, err = s.store.Create(ctx, st)
	} else {
		rows, err = s.store.Update(ctx, st, expected)
	}
	if err != nil {
		return LendingPolicy{}, err
	}
	if rows == 0 {
		return LendingPolicy{}, ErrVersionConflict
	}
	in.Version = st.Version
	s.logger.Infow("lending policy updated",
		"version", in.Version,
		"loan_period_days", in.LoanPeriodDays,
		"fine_per_day", in.FinePerDay.StringFixed(2),
		"suspension_threshold", in.SuspensionThreshold,
	)
	return in, nil
}

var _ borrowing.PolicySource = (*Service)(nil)
