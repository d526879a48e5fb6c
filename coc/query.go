/*
query.go - Read-side views

PURPOSE:
  Aggregated views for the front office. Every view here is built from a
  bounded number of indexed store queries - the employee ledger view uses
  exactly two (batches by employee, logs by employee) regardless of how
  much history the employee has, and joins in memory.
*/
package coc

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// EMPLOYEE LEDGER VIEW
// =============================================================================

// LedgerRow is one line of the employee ledger view: a credit batch, or
// the aggregate of a period's still-uncertified logs.
type LedgerRow struct {
	Date        Date // issuance date, or last date worked for uncertified
	Month       string
	Year        int
	Earned      Hours
	Used        Hours
	Remaining   Hours
	Status      string // batch status, or "Uncertified"
	ValidUntil  *Date
	Historical  bool
	Certificate CertificateID
}

// EmployeeLedger builds the full history view. Two store queries, newest
// first.
func (e *Engine) EmployeeLedger(ctx context.Context, id EmployeeID) ([]LedgerRow, error) {
	batches, err := e.batches.ByEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := e.logs.ByEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	rows := make([]LedgerRow, 0, len(batches)+4)
	for _, b := range batches {
		validUntil := b.ValidUntil
		rows = append(rows, LedgerRow{
			Date:        b.DateOfIssuance,
			Month:       b.EarnedMonth,
			Year:        b.EarnedYear,
			Earned:      b.OriginalHours,
			Used:        b.UsedHours,
			Remaining:   b.RemainingHours,
			Status:      string(b.Status),
			ValidUntil:  &validUntil,
			Historical:  b.SourceType == SourceHistoricalImport,
			Certificate: b.SourceCertificateID,
		})
	}

	// Uncertified logs group into one pending row per period.
	type periodKey struct {
		month string
		year  int
	}
	pending := map[periodKey]*LedgerRow{}
	for _, l := range logs {
		if l.Status != LogUncertified {
			continue
		}
		key := periodKey{month: l.Month, year: l.Year}
		row, ok := pending[key]
		if !ok {
			row = &LedgerRow{Month: l.Month, Year: l.Year, Status: string(LogUncertified)}
			pending[key] = row
		}
		row.Earned = row.Earned.Add(l.COCEarned)
		row.Remaining = row.Remaining.Add(l.COCEarned)
		if l.DateWorked.After(row.Date) {
			row.Date = l.DateWorked
		}
	}
	for _, row := range pending {
		rows = append(rows, *row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[j].Date.Before(rows[i].Date) })
	return rows, nil
}

// =============================================================================
// UNCERTIFIED OVERVIEWS
// =============================================================================

// UncertifiedPeriod is one (employee, month, year) awaiting certification.
type UncertifiedPeriod struct {
	EmployeeID   EmployeeID
	EmployeeName string
	Month        string
	Year         int
	Entries      int
	TotalHours   Hours
	OldestLogged time.Time
}

// UncertifiedStats summarizes everything awaiting certification.
type UncertifiedStats struct {
	Employees  int
	Periods    int
	TotalHours Hours
}

// Uncertified lists all pending periods with employee names attached.
// Two store queries (uncertified logs, employee roster) joined in memory.
func (e *Engine) Uncertified(ctx context.Context) ([]UncertifiedPeriod, UncertifiedStats, error) {
	logs, err := e.logs.ByStatus(ctx, LogUncertified)
	if err != nil {
		return nil, UncertifiedStats{}, err
	}
	employees, err := e.employees.List(ctx, "")
	if err != nil {
		return nil, UncertifiedStats{}, err
	}
	names := make(map[EmployeeID]string, len(employees))
	for _, emp := range employees {
		names[emp.ID] = emp.FullName()
	}

	type key struct {
		id    EmployeeID
		month string
		year  int
	}
	periods := map[key]*UncertifiedPeriod{}
	for _, l := range logs {
		k := key{id: l.EmployeeID, month: l.Month, year: l.Year}
		p, ok := periods[k]
		if !ok {
			p = &UncertifiedPeriod{
				EmployeeID:   l.EmployeeID,
				EmployeeName: names[l.EmployeeID],
				Month:        l.Month,
				Year:         l.Year,
				OldestLogged: l.LoggedAt,
			}
			periods[k] = p
		}
		p.Entries++
		p.TotalHours = p.TotalHours.Add(l.COCEarned)
		if l.LoggedAt.Before(p.OldestLogged) {
			p.OldestLogged = l.LoggedAt
		}
	}

	out := make([]UncertifiedPeriod, 0, len(periods))
	seen := map[EmployeeID]bool{}
	stats := UncertifiedStats{Periods: len(periods)}
	for _, p := range periods {
		out = append(out, *p)
		stats.TotalHours = stats.TotalHours.Add(p.TotalHours)
		if !seen[p.EmployeeID] {
			seen[p.EmployeeID] = true
			stats.Employees++
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			mi, _ := MonthByName(out[i].Month)
			mj, _ := MonthByName(out[j].Month)
			return mi < mj
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, stats, nil
}

// =============================================================================
// PER-EMPLOYEE LOOKUPS
// =============================================================================

// CertifiedMonths lists the month names certified for an employee in a
// year, in calendar order.
func (e *Engine) CertifiedMonths(ctx context.Context, id EmployeeID, year int) ([]string, error) {
	certs, err := e.certificates.ByEmployeeYear(ctx, id, year)
	if err != nil {
		return nil, err
	}
	months := make([]string, 0, len(certs))
	for _, c := range certs {
		months = append(months, c.Month)
	}
	sort.Slice(months, func(i, j int) bool {
		mi, _ := MonthByName(months[i])
		mj, _ := MonthByName(months[j])
		return mi < mj
	})
	return months, nil
}

// Progress reports how far a period is toward the monthly cap.
type Progress struct {
	Month      string
	Year       int
	Entries    int
	Logged     Hours
	Cap        Hours
	Headroom   Hours
	Certified  bool
	Historical bool
}

// PeriodProgress reports a period's logged hours against the monthly cap.
func (e *Engine) PeriodProgress(ctx context.Context, id EmployeeID, month string, year int) (Progress, error) {
	if _, ok := MonthByName(month); !ok {
		return Progress{}, &FieldError{Subkind: BadDate, Field: "month",
			Message: fmt.Sprintf("not an English month name: %q", month)}
	}
	settings, err := e.config.Load(ctx)
	if err != nil {
		return Progress{}, err
	}

	logs, err := e.logs.ByPeriod(ctx, id, month, year)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{Month: month, Year: year, Cap: settings.MonthlyCap}
	for _, l := range logs {
		if l.Status == LogUncertified || l.Status == LogActive {
			p.Entries++
			p.Logged = p.Logged.Add(l.COCEarned)
		}
	}
	p.Headroom = settings.MonthlyCap.Sub(p.Logged)
	if p.Headroom.IsNegative() {
		p.Headroom = Hours{}
	}

	cert, err := e.certificates.For(ctx, id, month, year)
	if err != nil {
		return Progress{}, err
	}
	p.Certified = cert != nil

	historical, err := e.batches.HistoricalFor(ctx, id, month, year)
	if err != nil {
		return Progress{}, err
	}
	p.Historical = historical != nil

	return p, nil
}

// Logs returns an employee's raw log rows, newest date first.
func (e *Engine) Logs(ctx context.Context, id EmployeeID) ([]OvertimeLog, error) {
	logs, err := e.logs.ByEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.Slice(logs, func(i, j int) bool { return logs[j].DateWorked.Before(logs[i].DateWorked) })
	return logs, nil
}

// LedgerEntries returns an employee's raw ledger rows, oldest first.
func (e *Engine) LedgerEntries(ctx context.Context, id EmployeeID) ([]LedgerEntry, error) {
	entries, err := e.ledger.ByEmployee(ctx, id)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].TransactionDate.Before(entries[j].TransactionDate)
	})
	return entries, nil
}
