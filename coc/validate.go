/*
validate.go - Overtime logging and its validation cascade

PURPOSE:
  LogOvertime accepts a batch of punch entries for one (employee, month,
  year) period and either persists all accepted entries atomically or
  persists nothing. Checks run in a fixed order so callers always see the
  most fundamental failure first:

    1. schema          - fields present, dates and times well-formed
    2. employee        - referenced employee exists (any status)
    3. historical lock - period closed by a historical import
    4. certified lock  - period closed by a certificate
    5. per-entry       - month match, duplicate skip, classify, accrue
    6. monthly cap     - existing non-terminal month total + new total
    7. total cap       - active remaining + all uncertified + new total

  Duplicates (a date already logged in the period, or repeated within the
  request) are skipped and reported, never fatal - resubmitting the same
  batch is idempotent. A request whose entries ALL skip is a validation
  error: there is nothing to write.

ATOMICITY:
  All accepted logs are written in one store batch under a correlation
  id, bracketed by a write intent. After the write the batch is read back
  and counted; only then is the intent cleared. The recovery scan deletes
  any partial remainder of an intent that never completed.
*/
package coc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govhr/coc-engine/docstore"
)

const maxIDRetries = 5

// LogEntryInput is one day of punches in a logging request.
type LogEntryInput struct {
	Date  string // ISO-8601
	AMIn  string
	AMOut string
	PMIn  string
	PMOut string
}

// LogOvertimeRequest is a batch of entries for one period.
type LogOvertimeRequest struct {
	EmployeeID EmployeeID
	Month      string // English full month name
	Year       int
	LoggedBy   string
	Entries    []LogEntryInput
}

// LogOvertimeResult reports what was written.
type LogOvertimeResult struct {
	EntriesLogged     int
	TotalCreditHours  Hours
	SkippedDuplicates []Date
	LogIDs            []LogID
	CorrelationID     string
}

// LogOvertime runs the validation cascade and persists accepted entries
// atomically. See the file header for the check order.
func (e *Engine) LogOvertime(ctx context.Context, req LogOvertimeRequest) (LogOvertimeResult, error) {
	var zero LogOvertimeResult

	// 1. Schema.
	month, entries, err := validateLogSchema(req)
	if err != nil {
		return zero, err
	}

	lease, err := e.locks.Acquire(ctx, EmployeeScope(req.EmployeeID), req.LoggedBy)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return zero, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return zero, err
	}
	defer e.locks.Release(ctx, lease)

	// 2. Employee exists, any status.
	ok, err := e.employees.Exists(ctx, req.EmployeeID)
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, fmt.Errorf("employee %s: %w", req.EmployeeID, ErrNotFound)
	}

	// 3+4. Period locks. Historical import outranks certificate.
	if err := e.checkPeriodOpen(ctx, req.EmployeeID, req.Month, req.Year); err != nil {
		return zero, err
	}

	// 5. Per-entry: pre-fetch once, then pure work.
	settings, err := e.config.Load(ctx)
	if err != nil {
		return zero, err
	}
	calendar, err := e.calendar.Snapshot(ctx, settings, req.Year)
	if err != nil {
		return zero, err
	}
	existing, err := e.logs.ExistingDates(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil {
		return zero, err
	}

	now := e.now()
	correlationID := uuid.NewString()
	var accepted []OvertimeLog
	var skipped []Date
	newTotal := Hours{}

	for _, in := range entries {
		if in.date.Month != month || in.date.Year != req.Year {
			return zero, &FieldError{Subkind: MonthMismatch, Field: "date",
				Message: fmt.Sprintf("%s is not in %s %d", in.date, req.Month, req.Year)}
		}
		if existing[in.date] {
			skipped = append(skipped, in.date)
			continue
		}
		existing[in.date] = true

		dayType := calendar.DayType(in.date)
		earned := Accrue(dayType, in.punches)
		accepted = append(accepted, OvertimeLog{
			EmployeeID:    req.EmployeeID,
			Month:         req.Month,
			Year:          req.Year,
			DateWorked:    in.date,
			DayType:       dayType,
			AMIn:          in.punches.AMIn,
			AMOut:         in.punches.AMOut,
			PMIn:          in.punches.PMIn,
			PMOut:         in.punches.PMOut,
			COCEarned:     earned,
			Status:        LogUncertified,
			LoggedBy:      req.LoggedBy,
			LoggedAt:      now,
			CorrelationID: correlationID,
		})
		newTotal = newTotal.Add(earned)
	}

	if len(accepted) == 0 {
		return zero, &FieldError{Subkind: MissingField, Field: "entries",
			Message: "no loggable entries (all duplicates)"}
	}

	// 6. Monthly cap.
	monthTotal, err := e.logs.MonthTotal(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil {
		return zero, err
	}
	if monthTotal.Add(newTotal).GreaterThan(settings.MonthlyCap) {
		return zero, &CapExceededError{Scope: CapMonthly,
			Current: monthTotal, Delta: newTotal, Limit: settings.MonthlyCap}
	}

	// 7. Total cap: active remaining + uncertified everywhere + new.
	outstanding, err := e.outstandingHours(ctx, req.EmployeeID)
	if err != nil {
		return zero, err
	}
	if outstanding.Add(newTotal).GreaterThan(settings.TotalCap) {
		return zero, &CapExceededError{Scope: CapTotal,
			Current: outstanding, Delta: newTotal, Limit: settings.TotalCap}
	}

	// Persist under an intent, then verify the read-back count.
	if err := e.intents.Put(ctx, correlationID, len(accepted)); err != nil {
		return zero, err
	}
	ids, err := e.writeLogs(ctx, accepted)
	if err != nil {
		return zero, err
	}
	written, err := e.logs.ByCorrelation(ctx, correlationID)
	if err != nil {
		return zero, err
	}
	if len(written) != len(accepted) {
		return zero, fmt.Errorf("%w: wrote %d of %d logs under %s",
			ErrInternal, len(written), len(accepted), correlationID)
	}
	if err := e.intents.Clear(ctx, correlationID); err != nil {
		return zero, err
	}

	e.log.Info().
		Str("employeeId", string(req.EmployeeID)).
		Str("period", fmt.Sprintf("%s %d", req.Month, req.Year)).
		Int("entries", len(accepted)).
		Int("skipped", len(skipped)).
		Str("hours", newTotal.String()).
		Str("correlationId", correlationID).
		Msg("overtime logged")

	return LogOvertimeResult{
		EntriesLogged:     len(accepted),
		TotalCreditHours:  newTotal.Round1(),
		SkippedDuplicates: skipped,
		LogIDs:            ids,
		CorrelationID:     correlationID,
	}, nil
}

// parsedEntry is a schema-validated entry.
type parsedEntry struct {
	date    Date
	punches Punches
}

func validateLogSchema(req LogOvertimeRequest) (month time.Month, entries []parsedEntry, err error) {
	if req.EmployeeID == "" {
		return 0, nil, &FieldError{Subkind: MissingField, Field: "employeeId", Message: "required"}
	}
	m, ok := MonthByName(req.Month)
	if !ok {
		return 0, nil, &FieldError{Subkind: BadDate, Field: "month",
			Message: fmt.Sprintf("not an English month name: %q", req.Month)}
	}
	if req.Year < 1900 || req.Year > 9999 {
		return 0, nil, &FieldError{Subkind: BadDate, Field: "year",
			Message: fmt.Sprintf("implausible year %d", req.Year)}
	}
	if len(req.Entries) == 0 {
		return 0, nil, &FieldError{Subkind: MissingField, Field: "entries", Message: "required"}
	}

	entries = make([]parsedEntry, 0, len(req.Entries))
	for i, in := range req.Entries {
		d, perr := ParseDate(in.Date)
		if perr != nil {
			return 0, nil, &FieldError{Subkind: BadDate,
				Field: fmt.Sprintf("entries[%d].date", i), Message: perr.Error()}
		}
		for _, punch := range []struct{ name, v string }{
			{"amIn", in.AMIn}, {"amOut", in.AMOut}, {"pmIn", in.PMIn}, {"pmOut", in.PMOut},
		} {
			if punch.v == "" {
				continue
			}
			if _, ok := ParseClock(punch.v); !ok {
				return 0, nil, &FieldError{Subkind: BadTime,
					Field: fmt.Sprintf("entries[%d].%s", i, punch.name),
					Message: fmt.Sprintf("not HH:MM AM/PM: %q", punch.v)}
			}
		}
		entries = append(entries, parsedEntry{
			date:    d,
			punches: Punches{AMIn: in.AMIn, AMOut: in.AMOut, PMIn: in.PMIn, PMOut: in.PMOut},
		})
	}
	return m, entries, nil
}

// checkPeriodOpen rejects writes to a period closed by a historical
// import or a certificate.
func (e *Engine) checkPeriodOpen(ctx context.Context, id EmployeeID, month string, year int) error {
	historical, err := e.batches.HistoricalFor(ctx, id, month, year)
	if err != nil {
		return err
	}
	if historical != nil {
		return &PeriodLockedError{Flavor: LockHistorical, EmployeeID: id, Month: month, Year: year}
	}
	cert, err := e.certificates.For(ctx, id, month, year)
	if err != nil {
		return err
	}
	if cert != nil {
		return &PeriodLockedError{Flavor: LockCertified, EmployeeID: id, Month: month, Year: year}
	}
	return nil
}

// outstandingHours is the total-cap base: remaining hours of Active
// batches plus Uncertified accruals across all periods.
func (e *Engine) outstandingHours(ctx context.Context, id EmployeeID) (Hours, error) {
	active, err := e.batches.ActiveByEmployee(ctx, id)
	if err != nil {
		return Hours{}, err
	}
	total := Hours{}
	for _, b := range active {
		total = total.Add(b.RemainingHours)
	}
	logs, err := e.logs.ByEmployee(ctx, id)
	if err != nil {
		return Hours{}, err
	}
	for _, l := range logs {
		if l.Status == LogUncertified {
			total = total.Add(l.COCEarned)
		}
	}
	return total, nil
}

// writeLogs persists the accepted logs in one atomic batch, allocating
// monotonic ids. An id collision with a concurrent writer (distinct
// employee, so outside our lock) retries with fresh ids.
func (e *Engine) writeLogs(ctx context.Context, logs []OvertimeLog) ([]LogID, error) {
	for attempt := 0; attempt < maxIDRetries; attempt++ {
		next, err := e.logs.NextID(ctx)
		if err != nil {
			return nil, err
		}
		writes := make([]docstore.Write, len(logs))
		ids := make([]LogID, len(logs))
		for i := range logs {
			seq := next + int64(i)
			ids[i] = FormatLogID(seq)
			writes[i] = docstore.Write{
				Kind:       docstore.WriteCreate,
				Collection: colOvertimeLogs,
				ID:         string(ids[i]),
				Fields:     logFields(logs[i], seq),
			}
		}
		err = e.store.BatchWrite(ctx, writes)
		if errors.Is(err, docstore.ErrExists) {
			continue
		}
		if err != nil {
			return nil, storeErr(err)
		}
		return ids, nil
	}
	return nil, fmt.Errorf("%w: log id allocation kept colliding", ErrStoreUnavailable)
}

// =============================================================================
// LOG MAINTENANCE - Uncertified only
// =============================================================================

// UpdateLog replaces the punches of an Uncertified log, reclassifies the
// day, and recomputes its credit. Both caps are re-checked with the
// delta.
func (e *Engine) UpdateLog(ctx context.Context, id LogID, p Punches, actor string) (OvertimeLog, error) {
	for _, punch := range []struct{ name, v string }{
		{"amIn", p.AMIn}, {"amOut", p.AMOut}, {"pmIn", p.PMIn}, {"pmOut", p.PMOut},
	} {
		if punch.v == "" {
			continue
		}
		if _, ok := ParseClock(punch.v); !ok {
			return OvertimeLog{}, &FieldError{Subkind: BadTime, Field: punch.name,
				Message: fmt.Sprintf("not HH:MM AM/PM: %q", punch.v)}
		}
	}

	l, err := e.logs.Get(ctx, id)
	if err != nil {
		return OvertimeLog{}, err
	}
	if l.Status != LogUncertified {
		return OvertimeLog{}, fmt.Errorf("log %s is %s: %w", id, l.Status, ErrPreconditionFailed)
	}

	lease, err := e.locks.Acquire(ctx, EmployeeScope(l.EmployeeID), actor)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return OvertimeLog{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return OvertimeLog{}, err
	}
	defer e.locks.Release(ctx, lease)

	settings, err := e.config.Load(ctx)
	if err != nil {
		return OvertimeLog{}, err
	}
	calendar, err := e.calendar.Snapshot(ctx, settings, l.Year)
	if err != nil {
		return OvertimeLog{}, err
	}
	dayType := calendar.DayType(l.DateWorked)
	earned := Accrue(dayType, p)

	monthTotal, err := e.logs.MonthTotal(ctx, l.EmployeeID, l.Month, l.Year)
	if err != nil {
		return OvertimeLog{}, err
	}
	delta := earned.Sub(l.COCEarned)
	if monthTotal.Add(delta).GreaterThan(settings.MonthlyCap) {
		return OvertimeLog{}, &CapExceededError{Scope: CapMonthly,
			Current: monthTotal.Sub(l.COCEarned), Delta: earned, Limit: settings.MonthlyCap}
	}

	// The total cap moves by the same delta; outstanding already counts
	// this log at its current value.
	outstanding, err := e.outstandingHours(ctx, l.EmployeeID)
	if err != nil {
		return OvertimeLog{}, err
	}
	if outstanding.Add(delta).GreaterThan(settings.TotalCap) {
		return OvertimeLog{}, &CapExceededError{Scope: CapTotal,
			Current: outstanding.Sub(l.COCEarned), Delta: earned, Limit: settings.TotalCap}
	}

	l.AMIn, l.AMOut, l.PMIn, l.PMOut = p.AMIn, p.AMOut, p.PMIn, p.PMOut
	l.DayType = dayType
	l.COCEarned = earned
	err = e.store.Update(ctx, colOvertimeLogs, string(l.ID), docstore.Fields{
		fAMIn:      l.AMIn,
		fAMOut:     l.AMOut,
		fPMIn:      l.PMIn,
		fPMOut:     l.PMOut,
		fDayType:   string(l.DayType),
		fCOCEarned: l.COCEarned.Float64(),
	})
	if err != nil {
		return OvertimeLog{}, storeErr(err)
	}
	return l, nil
}

// DeleteLog removes an Uncertified log.
func (e *Engine) DeleteLog(ctx context.Context, id LogID, actor string) error {
	l, err := e.logs.Get(ctx, id)
	if err != nil {
		return err
	}
	lease, err := e.locks.Acquire(ctx, EmployeeScope(l.EmployeeID), actor)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return err
	}
	defer e.locks.Release(ctx, lease)
	return e.logs.Delete(ctx, id)
}
