package borrowing

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	accountentity "github.com/ovaphlow/pitchfork/service-library-go/internal/account/entity"
)

const day = 24 * time.Hour

// Policy holds the lending rules: loan length, fine rate and the number of
// overdue returns that suspends an account.
type Policy struct {
	LoanPeriod          time.Duration
	DailyRate           decimal.Decimal
	SuspensionThreshold int64
}

// DefaultPolicy is two weeks, 2.00 per late day, suspension at the second overdue return.
func DefaultPolicy() Policy {
	return Policy{
		LoanPeriod:          14 * day,
		DailyRate:           decimal.RequireFromString("2.00"),
		SuspensionThreshold: 2,
	}
}

// PolicyFromEnv reads LOAN_PERIOD_DAYS, FINE_PER_DAY and SUSPENSION_THRESHOLD,
// keeping the default for anything unset or invalid.
func PolicyFromEnv() Policy {
	p := DefaultPolicy()
	if v, err := strconv.Atoi(os.Getenv("LOAN_PERIOD_DAYS")); err == nil && v > 0 {
		p.LoanPeriod = time.Duration(v) * day
	}
	if v, err := decimal.NewFromString(os.Getenv("FINE_PER_DAY")); err == nil && !v.IsNegative() {
		p.DailyRate = v
	}
	if v, err := strconv.ParseInt(os.Getenv("SUSPENSION_THRESHOLD"), 10, 64); err == nil && v > 0 {
		p.SuspensionThreshold = v
	}
	return p
}

// DaysOverdue is the number of whole 24h periods between due and returned,
// never negative.
func DaysOverdue(due, returned time.Time) int64 {
	if !returned.After(due) {
		return 0
	}
	return int64(returned.Sub(due) / day)
}

// OverdueFine is DailyRate times the whole days late. Less than a day late costs nothing.
func (p Policy) OverdueFine(due, returned time.Time) decimal.Decimal {
	return p.DailyRate.Mul(decimal.NewFromInt(DaysOverdue(due, returned))).Round(2)
}

// ApplyPenalty adds fine to the account total and disables the account once
// overdueCount reaches the threshold. It reports whether this call disabled
// the account. The caller persists acc.
func (p Policy) ApplyPenalty(acc *accountentity.Account, fine decimal.Decimal, overdueCount int64) bool {
	acc.OverdueFine = acc.OverdueFine.Add(fine)
	if overdueCount >= p.SuspensionThreshold && acc.Enabled {
		acc.Enabled = false
		return true
	}
	return false
}

// PolicySource supplies the policy in force for an operation.
type PolicySource interface {
	LendingPolicy(ctx context.Context) (Policy, error)
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy Policy

func (s StaticPolicy) LendingPolicy(context.Context) (Policy, error) { return Policy(s), nil }
