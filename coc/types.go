/*
Package coc implements the Compensatory Overtime Credit accrual and
certification engine.

PURPOSE:
  Employees log overtime on specific dates; the engine computes how many
  credit-hours those entries yield under day-type rules, enforces monthly
  and total caps, and converts uncertified accruals into credit batches
  with expiration dates on certification. Credits are consumed FIFO from
  batches; every movement is a row in an append-only ledger, and the
  active balance must always be reconstructible from that ledger.

KEY CONCEPTS IN THIS FILE (types.go):
  - Hours: a credit-hour quantity backed by decimal.Decimal
  - Date:  a civil calendar date in the configured zone (no instant)
  - The closed entity records: Employee, OvertimeLog, CreditBatch,
    LedgerEntry, Certificate, Holiday

DESIGN PRINCIPLES:
  1. Precision: decimal arithmetic, one final half-away-from-zero rounding
  2. Type safety: distinct id types for employees, logs, batches, entries
  3. Civil dates: a date is (year, month, day), never a UTC instant
  4. Closed records: every field present, nulls explicit via pointers

SEE ALSO:
  - accrual.go:  day-type rules turning punches into Hours
  - calendar.go: Weekday/Weekend/Holiday classification
  - credits.go:  credit batches, ledger, balance reconstruction
*/
package coc

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - Credit-hour quantity
// =============================================================================

// Hours is a signed credit-hour amount. The zero value is 0.0 hours.
type Hours struct {
	Value decimal.Decimal
}

func HoursOf(v float64) Hours          { return Hours{Value: decimal.NewFromFloat(v)} }
func HoursFromInt(v int) Hours         { return Hours{Value: decimal.NewFromInt(int64(v))} }
func hoursFromDecimal(d decimal.Decimal) Hours { return Hours{Value: d} }

func (h Hours) Add(o Hours) Hours        { return Hours{Value: h.Value.Add(o.Value)} }
func (h Hours) Sub(o Hours) Hours        { return Hours{Value: h.Value.Sub(o.Value)} }
func (h Hours) Neg() Hours               { return Hours{Value: h.Value.Neg()} }
func (h Hours) Min(o Hours) Hours        { if h.LessThan(o) { return h }; return o }
func (h Hours) IsZero() bool             { return h.Value.IsZero() }
func (h Hours) IsPositive() bool         { return h.Value.IsPositive() }
func (h Hours) IsNegative() bool         { return h.Value.IsNegative() }
func (h Hours) Equal(o Hours) bool       { return h.Value.Equal(o.Value) }
func (h Hours) GreaterThan(o Hours) bool { return h.Value.GreaterThan(o.Value) }
func (h Hours) LessThan(o Hours) bool    { return h.Value.LessThan(o.Value) }

// Round1 rounds to one decimal place, half away from zero.
func (h Hours) Round1() Hours { return Hours{Value: h.Value.Round(1)} }

func (h Hours) Float64() float64 { f, _ := h.Value.Float64(); return f }
func (h Hours) String() string   { return h.Value.StringFixed(1) }

// =============================================================================
// DATE - Civil calendar date in the configured zone
// =============================================================================

// Date is a calendar date with no time-of-day and no zone attached.
// All date comparisons in the engine are civil-date comparisons; the
// configured time zone only matters when converting an instant to a Date
// ("what day is it now?") or a Date back to an instant for storage.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// ParseDate parses an ISO-8601 date ("2006-01-02").
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// DateOf returns the civil date of an instant in the given zone.
func DateOf(t time.Time, loc *time.Location) Date {
	t = t.In(loc)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) IsZero() bool { return d == Date{} }

// Time returns midnight of the date in the given zone.
func (d Date) Time(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

func (d Date) AddDays(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) AddMonths(n int) Date {
	t := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

func (d Date) After(o Date) bool  { return o.Before(d) }
func (d Date) Equal(o Date) bool  { return d == o }
func (d Date) ISO() string        { return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day) }
func (d Date) String() string     { return d.ISO() }
func (d Date) MonthName() string  { return d.Month.String() }

// MonthByName resolves an English full month name ("January".."December").
func MonthByName(name string) (time.Month, bool) {
	for m := time.January; m <= time.December; m++ {
		if m.String() == name {
			return m, true
		}
	}
	return 0, false
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type LogID string
type BatchID string
type CertificateID string
type TransactionID string
type HolidayID string

// FormatLogID renders a monotonic integer log id as its document id.
func FormatLogID(n int64) LogID { return LogID(strconv.FormatInt(n, 10)) }

// FormatTransactionID renders a monotonic integer ledger id.
func FormatTransactionID(n int64) TransactionID {
	return TransactionID(strconv.FormatInt(n, 10))
}

// =============================================================================
// ENUMERATIONS
// =============================================================================

// DayType classifies a date for accrual purposes.
type DayType string

const (
	Weekday DayType = "Weekday"
	Weekend DayType = "Weekend"
	Holiday DayType = "Holiday"
)

// EmployeeStatus - soft delete sets Inactive; records are never removed.
type EmployeeStatus string

const (
	EmployeeActive   EmployeeStatus = "Active"
	EmployeeInactive EmployeeStatus = "Inactive"
)

// LogStatus is the lifecycle of an overtime log.
type LogStatus string

const (
	LogUncertified LogStatus = "Uncertified"
	LogActive      LogStatus = "Active"
	LogUsed        LogStatus = "Used"
	LogExpired     LogStatus = "Expired"
)

// BatchStatus is the lifecycle of a credit batch.
type BatchStatus string

const (
	BatchActive  BatchStatus = "Active"
	BatchUsed    BatchStatus = "Used"
	BatchExpired BatchStatus = "Expired"
)

// BatchSource tells where a batch came from.
type BatchSource string

const (
	SourceMonthlyCertificate BatchSource = "MonthlyCertificate"
	SourceHistoricalImport   BatchSource = "HistoricalImport"
)

// TxType is the ledger entry type. Hours are signed: positive for Credit
// and upward Adjustment, negative for Debit, Expiration, and downward
// Adjustment.
type TxType string

const (
	TxCredit     TxType = "Credit"
	TxDebit      TxType = "Debit"
	TxAdjustment TxType = "Adjustment"
	TxExpiration TxType = "Expiration"
)

// HolidayType distinguishes regular from special non-working holidays.
type HolidayType string

const (
	HolidayRegular HolidayType = "Regular"
	HolidaySpecial HolidayType = "Special"
)

// =============================================================================
// ENTITIES - Closed records, all fields present, nulls explicit
// =============================================================================

type Employee struct {
	ID         EmployeeID
	FirstName  string
	MiddleName string
	LastName   string
	Status     EmployeeStatus
	Position   string
	Office     string
	Email      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (e Employee) FullName() string {
	if e.MiddleName == "" {
		return e.FirstName + " " + e.LastName
	}
	return e.FirstName + " " + e.MiddleName + " " + e.LastName
}

// OvertimeLog is one day of logged overtime.
//
// INVARIANTS:
//   - (EmployeeID, DateWorked) unique across non-terminal states
//   - Month/Year match DateWorked
//   - COCEarned equals the accrual rule output for DayType and punches
//   - ValidUntil is nil iff Status == LogUncertified
type OvertimeLog struct {
	ID            LogID
	EmployeeID    EmployeeID
	Month         string // English full month name
	Year          int
	DateWorked    Date
	DayType       DayType
	AMIn          string
	AMOut         string
	PMIn          string
	PMOut         string
	COCEarned     Hours
	Status        LogStatus
	LoggedBy      string
	LoggedAt      time.Time
	ValidUntil    *Date
	CorrelationID string // originating batch write, for recovery
}

// CreditBatch is an immutable record of certified credits.
//
// INVARIANTS:
//   - OriginalHours = RemainingHours + UsedHours
//   - RemainingHours >= 0
//   - Status == BatchUsed iff RemainingHours == 0
//   - Expired batches keep RemainingHours on the record for audit but
//     never contribute to active balance
type CreditBatch struct {
	ID                  BatchID
	EmployeeID          EmployeeID
	EarnedMonth         string
	EarnedYear          int
	OriginalHours       Hours
	RemainingHours      Hours
	UsedHours           Hours
	Status              BatchStatus
	DateOfIssuance      Date
	ValidUntil          Date
	SourceType          BatchSource
	SourceCertificateID CertificateID // empty for historical imports
	Notes               string
}

// LedgerEntry is one append-only row of the signed-hours journal.
type LedgerEntry struct {
	ID              TransactionID
	EmployeeID      EmployeeID
	Type            TxType
	Hours           Hours // signed
	BatchID         BatchID
	ReferenceID     string
	Notes           string
	TransactionDate time.Time
	PerformedBy     string
}

// Certificate records a completed monthly certification; its existence
// locks the (employee, month, year) period against further writes.
type Certificate struct {
	ID             CertificateID
	EmployeeID     EmployeeID
	Month          string
	Year           int
	TotalHours     Hours
	DateOfIssuance Date
	ValidUntil     Date
	CertifiedBy    string
	CreatedAt      time.Time
}

type HolidayEntry struct {
	ID   HolidayID
	Name string
	Date Date
	Year int
	Type HolidayType
}
