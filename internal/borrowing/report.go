package borrowing

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OverdueLine aggregates one borrower's late returns.
type OverdueLine struct {
	AccountID int64           `json:"account_id"`
	FullName  string          `json:"full_name"`
	Email     string          `json:"email"`
	Count     int64           `json:"count"`
	TotalFine decimal.Decimal `json:"total_fine"`
}

// OverdueSummary groups every loan returned after its due time by borrower,
// ordered by account id. Loans still out past their due time are not counted.
func (s *Service) OverdueSummary(ctx context.Context) ([]OverdueLine, int, error) {
	records, err := s.repo.Stores().Loans.ListHistoricalOverdue(ctx)
	if err != nil {
		return nil, 0, fail("overdue report", err)
	}

	var lines []OverdueLine
	byAccount := make(map[int64]int)
	for _, r := range records {
		i, ok := byAccount[r.AccountID]
		if !ok {
			i = len(lines)
			byAccount[r.AccountID] = i
			lines = append(lines, OverdueLine{
				AccountID: r.AccountID,
				FullName:  r.FullName(),
				Email:     r.Email,
				TotalFine: decimal.Zero,
			})
		}
		lines[i].Count++
		lines[i].TotalFine = lines[i].TotalFine.Add(r.Fine)
	}
	slices.SortFunc(lines, func(a, b OverdueLine) int { return cmp.Compare(a.AccountID, b.AccountID) })
	return lines, len(records), nil
}

// OverdueReport renders OverdueSummary as text.
func (s *Service) OverdueReport(ctx context.Context) (string, error) {
	lines, total, err := s.OverdueSummary(ctx)
	if err != nil {
		return "", err
	}
	return RenderOverdueReport(lines, total, s.now()), nil
}

const reportTimeLayout = "2006-01-02T15:04:05"

// RenderOverdueReport formats the overdue report.
func RenderOverdueReport(lines []OverdueLine, totalBooks int, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString("OVERDUE BOOK REPORT\n")
	b.WriteString("----------------------\n")
	fmt.Fprintf(&b, "Total Overdue Books: %d\n", totalBooks)
	fmt.Fprintf(&b, "Total Users with Overdues: %d\n\n", len(lines))
	for _, l := range lines {
		fmt.Fprintf(&b, " - %s (%s): %d book(s) overdue | Total fine: %s\n",
			l.FullName, l.Email, l.Count, l.TotalFine.StringFixed(2))
	}
	fmt.Fprintf(&b, "\nGenerated at: %s", generatedAt.Format(reportTimeLayout))
	return b.String()
}
