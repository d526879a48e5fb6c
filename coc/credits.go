/*
credits.go - Credit batches, FIFO debit, expiration, balance

PURPOSE:
  Everything that moves certified hours. Batches are never overwritten;
  usage is consumed FIFO by soonest expiry; expiration forfeits what is
  left without erasing it; every movement appends a signed ledger row.

FIFO ORDER:
  validUntil ascending, then dateOfIssuance ascending, then batch id.
  The batch that dies first is spent first.

EXPIRATION:
  The sweep moves Active batches whose validUntil has passed to Expired,
  appending a negative Expiration row per batch. RemainingHours stays on
  the record - the audit trail keeps what was forfeited. Balance treats
  an Active batch past its validity as already expired, so a late sweep
  never inflates anyone's balance.
*/
package coc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/govhr/coc-engine/docstore"
)

// =============================================================================
// LEDGER ID ALLOCATION
// =============================================================================

// writeLedgerBatch commits a batch whose ledger rows carry freshly
// allocated transaction ids. NextSeq reserves nothing, so a concurrent
// writer for another employee (outside our per-employee lock) can claim
// the same ids first; the Create collision retries with fresh ones, the
// same way writeLogs allocates log ids.
func (e *Engine) writeLedgerBatch(ctx context.Context, build func(seq int64) []docstore.Write) error {
	for attempt := 0; attempt < maxIDRetries; attempt++ {
		seq, err := e.ledger.NextSeq(ctx)
		if err != nil {
			return err
		}
		err = e.store.BatchWrite(ctx, build(seq))
		if errors.Is(err, docstore.ErrExists) {
			continue
		}
		if err != nil {
			return storeErr(err)
		}
		return nil
	}
	return fmt.Errorf("%w: transaction id allocation kept colliding", ErrStoreUnavailable)
}

// =============================================================================
// HISTORICAL IMPORT
// =============================================================================

type HistoricalImportRequest struct {
	EmployeeID     EmployeeID
	Month          string
	Year           int
	Hours          Hours
	DateOfIssuance string // ISO-8601
	Notes          string
	PerformedBy    string
}

// ImportHistorical creates a pre-system credit batch for a period. At
// most one historical batch may exist per (employee, month, year), and
// the import locks that period against day-level logging.
func (e *Engine) ImportHistorical(ctx context.Context, req HistoricalImportRequest) (CreditBatch, error) {
	var zero CreditBatch

	if req.EmployeeID == "" {
		return zero, &FieldError{Subkind: MissingField, Field: "employeeId", Message: "required"}
	}
	if _, ok := MonthByName(req.Month); !ok {
		return zero, &FieldError{Subkind: BadDate, Field: "month",
			Message: fmt.Sprintf("not an English month name: %q", req.Month)}
	}
	if !req.Hours.IsPositive() {
		return zero, &FieldError{Subkind: MissingField, Field: "hours",
			Message: "must be positive"}
	}
	issuance, err := ParseDate(req.DateOfIssuance)
	if err != nil {
		return zero, &FieldError{Subkind: BadDate, Field: "dateOfIssuance", Message: err.Error()}
	}

	lease, err := e.locks.Acquire(ctx, EmployeeScope(req.EmployeeID), req.PerformedBy)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return zero, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return zero, err
	}
	defer e.locks.Release(ctx, lease)

	if _, err := e.employees.Get(ctx, req.EmployeeID); err != nil {
		return zero, err
	}

	existing, err := e.batches.HistoricalFor(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil {
		return zero, err
	}
	if existing != nil {
		return zero, fmt.Errorf("historical batch for %s %d: %w", req.Month, req.Year, ErrAlreadyExists)
	}
	cert, err := e.certificates.For(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil {
		return zero, err
	}
	if cert != nil {
		return zero, &PeriodLockedError{Flavor: LockCertified,
			EmployeeID: req.EmployeeID, Month: req.Month, Year: req.Year}
	}

	settings, err := e.config.Load(ctx)
	if err != nil {
		return zero, err
	}
	now := e.now()
	hours := req.Hours.Round1()
	batch := CreditBatch{
		ID:             BatchID(uuid.NewString()),
		EmployeeID:     req.EmployeeID,
		EarnedMonth:    req.Month,
		EarnedYear:     req.Year,
		OriginalHours:  hours,
		RemainingHours: hours,
		UsedHours:      Hours{},
		Status:         BatchActive,
		DateOfIssuance: issuance,
		ValidUntil:     issuance.AddMonths(settings.CertificateValidityMonths).AddDays(-1),
		SourceType:     SourceHistoricalImport,
		Notes:          req.Notes,
	}

	err = e.writeLedgerBatch(ctx, func(seq int64) []docstore.Write {
		entry := LedgerEntry{
			ID:              FormatTransactionID(seq),
			EmployeeID:      req.EmployeeID,
			Type:            TxCredit,
			Hours:           hours,
			BatchID:         batch.ID,
			Notes:           fmt.Sprintf("Historical import %s %d", req.Month, req.Year),
			TransactionDate: now,
			PerformedBy:     req.PerformedBy,
		}
		return []docstore.Write{
			{Kind: docstore.WriteCreate, Collection: colCreditBatches,
				ID: string(batch.ID), Fields: batchFields(batch)},
			{Kind: docstore.WriteCreate, Collection: colLedger,
				ID: string(entry.ID), Fields: ledgerFields(entry, seq)},
		}
	})
	if err != nil {
		return zero, err
	}
	return batch, nil
}

// =============================================================================
// DEBIT - FIFO consumption
// =============================================================================

type DebitRequest struct {
	EmployeeID  EmployeeID
	Hours       Hours
	ReferenceID string // leave request, order number, free-form
	Notes       string
	PerformedBy string
}

type DebitResult struct {
	Debited Hours
	Entries []LedgerEntry
}

// Debit consumes hours FIFO from the employee's usable batches. One
// ledger row is appended per batch touched. Over-draw fails whole with
// InsufficientCreditsError; nothing is written.
func (e *Engine) Debit(ctx context.Context, req DebitRequest) (DebitResult, error) {
	var zero DebitResult

	if req.EmployeeID == "" {
		return zero, &FieldError{Subkind: MissingField, Field: "employeeId", Message: "required"}
	}
	if !req.Hours.IsPositive() {
		return zero, &FieldError{Subkind: MissingField, Field: "hours", Message: "must be positive"}
	}

	lease, err := e.locks.Acquire(ctx, EmployeeScope(req.EmployeeID), req.PerformedBy)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return zero, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return zero, err
	}
	defer e.locks.Release(ctx, lease)

	settings, err := e.config.Load(ctx)
	if err != nil {
		return zero, err
	}
	today := DateOf(e.now(), settings.Location)

	batches, err := e.batches.ActiveByEmployee(ctx, req.EmployeeID)
	if err != nil {
		return zero, err
	}
	usable := batches[:0]
	available := Hours{}
	for _, b := range batches {
		if b.ValidUntil.Before(today) {
			continue // expired but not yet swept
		}
		usable = append(usable, b)
		available = available.Add(b.RemainingHours)
	}
	if req.Hours.GreaterThan(available) {
		return zero, &InsufficientCreditsError{
			EmployeeID: req.EmployeeID, Available: available, Requested: req.Hours}
	}

	sortFIFO(usable)

	// Plan the consumption before allocating ids; the plan is stable
	// across id-collision retries.
	type draw struct {
		batch     CreditBatch
		take      Hours
		remaining Hours
		used      Hours
		status    BatchStatus
	}
	var plan []draw
	left := req.Hours
	for _, b := range usable {
		if !left.IsPositive() {
			break
		}
		take := left.Min(b.RemainingHours)
		left = left.Sub(take)

		remaining := b.RemainingHours.Sub(take)
		status := b.Status
		if remaining.IsZero() {
			status = BatchUsed
		}
		plan = append(plan, draw{
			batch: b, take: take, remaining: remaining,
			used: b.UsedHours.Add(take), status: status,
		})
	}

	// A fully spent batch pulls its logs to Used.
	var logWrites []docstore.Write
	for _, d := range plan {
		if d.status != BatchUsed {
			continue
		}
		w, err := e.logStatusWrites(ctx, d.batch, LogUsed)
		if err != nil {
			return zero, err
		}
		logWrites = append(logWrites, w...)
	}

	now := e.now()
	var entries []LedgerEntry
	err = e.writeLedgerBatch(ctx, func(seq int64) []docstore.Write {
		entries = entries[:0]
		var writes []docstore.Write
		for _, d := range plan {
			writes = append(writes, docstore.Write{
				Kind: docstore.WriteUpdate, Collection: colCreditBatches, ID: string(d.batch.ID),
				Fields: docstore.Fields{
					fRemainingHours: d.remaining.Float64(),
					fUsedHours:      d.used.Float64(),
					fStatus:         string(d.status),
				},
			})
			entry := LedgerEntry{
				ID:              FormatTransactionID(seq),
				EmployeeID:      req.EmployeeID,
				Type:            TxDebit,
				Hours:           d.take.Neg(),
				BatchID:         d.batch.ID,
				ReferenceID:     req.ReferenceID,
				Notes:           req.Notes,
				TransactionDate: now,
				PerformedBy:     req.PerformedBy,
			}
			writes = append(writes, docstore.Write{
				Kind: docstore.WriteCreate, Collection: colLedger,
				ID: string(entry.ID), Fields: ledgerFields(entry, seq)})
			entries = append(entries, entry)
			seq++
		}
		return append(writes, logWrites...)
	})
	if err != nil {
		return zero, err
	}

	e.log.Info().
		Str("employeeId", string(req.EmployeeID)).
		Str("hours", req.Hours.String()).
		Int("batches", len(entries)).
		Msg("credits debited")

	return DebitResult{Debited: req.Hours, Entries: entries}, nil
}

func sortFIFO(batches []CreditBatch) {
	sort.Slice(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ValidUntil.Equal(b.ValidUntil) {
			return a.ValidUntil.Before(b.ValidUntil)
		}
		if !a.DateOfIssuance.Equal(b.DateOfIssuance) {
			return a.DateOfIssuance.Before(b.DateOfIssuance)
		}
		return a.ID < b.ID
	})
}

// logStatusWrites produces the status flips for the Active logs behind a
// batch. Historical batches have no logs.
func (e *Engine) logStatusWrites(ctx context.Context, b CreditBatch, to LogStatus) ([]docstore.Write, error) {
	if b.SourceType != SourceMonthlyCertificate {
		return nil, nil
	}
	logs, err := e.logs.ByPeriod(ctx, b.EmployeeID, b.EarnedMonth, b.EarnedYear)
	if err != nil {
		return nil, err
	}
	var writes []docstore.Write
	for _, l := range logs {
		if l.Status != LogActive {
			continue
		}
		writes = append(writes, docstore.Write{
			Kind: docstore.WriteUpdate, Collection: colOvertimeLogs, ID: string(l.ID),
			Fields: docstore.Fields{fStatus: string(to)},
		})
	}
	return writes, nil
}

// =============================================================================
// EXPIRATION SWEEP
// =============================================================================

type SweepResult struct {
	BatchesExpired int
	HoursForfeited Hours
}

// ExpireSweep expires every Active batch whose validUntil is before the
// given date. Each expiry appends a negative Expiration row and flips
// the batch's remaining Active logs to Expired. RemainingHours is kept
// on the batch record.
func (e *Engine) ExpireSweep(ctx context.Context, asOf Date, performedBy string) (SweepResult, error) {
	var zero SweepResult

	active, err := e.batches.AllActive(ctx)
	if err != nil {
		return zero, err
	}

	now := e.now()
	result := SweepResult{}
	for _, b := range active {
		if !b.ValidUntil.Before(asOf) {
			continue
		}

		lease, err := e.locks.Acquire(ctx, EmployeeScope(b.EmployeeID), performedBy)
		if err != nil {
			if errors.Is(err, ErrLockHeld) {
				continue // next sweep gets it
			}
			return zero, err
		}

		logWrites, err := e.logStatusWrites(ctx, b, LogExpired)
		if err != nil {
			e.locks.Release(ctx, lease)
			return zero, err
		}

		err = e.writeLedgerBatch(ctx, func(seq int64) []docstore.Write {
			entry := LedgerEntry{
				ID:              FormatTransactionID(seq),
				EmployeeID:      b.EmployeeID,
				Type:            TxExpiration,
				Hours:           b.RemainingHours.Neg(),
				BatchID:         b.ID,
				Notes:           fmt.Sprintf("Expired %s", b.ValidUntil),
				TransactionDate: now,
				PerformedBy:     performedBy,
			}
			writes := []docstore.Write{
				{Kind: docstore.WriteUpdate, Collection: colCreditBatches, ID: string(b.ID),
					Fields: docstore.Fields{fStatus: string(BatchExpired)}},
				{Kind: docstore.WriteCreate, Collection: colLedger,
					ID: string(entry.ID), Fields: ledgerFields(entry, seq)},
			}
			return append(writes, logWrites...)
		})
		e.locks.Release(ctx, lease)
		if err != nil {
			return zero, err
		}

		result.BatchesExpired++
		result.HoursForfeited = result.HoursForfeited.Add(b.RemainingHours)
	}

	if result.BatchesExpired > 0 {
		e.log.Info().
			Int("batches", result.BatchesExpired).
			Str("forfeited", result.HoursForfeited.String()).
			Str("asOf", asOf.ISO()).
			Msg("expiration sweep")
	}
	return result, nil
}

// =============================================================================
// ADJUSTMENT
// =============================================================================

type AdjustRequest struct {
	EmployeeID  EmployeeID
	BatchID     BatchID
	Hours       Hours // signed
	Notes       string
	PerformedBy string
}

// Adjust moves a batch's remaining hours up or down with an audit row.
// The batch must be Active and the result non-negative.
func (e *Engine) Adjust(ctx context.Context, req AdjustRequest) (CreditBatch, error) {
	var zero CreditBatch

	if req.Hours.IsZero() {
		return zero, &FieldError{Subkind: MissingField, Field: "hours", Message: "must be non-zero"}
	}

	lease, err := e.locks.Acquire(ctx, EmployeeScope(req.EmployeeID), req.PerformedBy)
	if err != nil {
		if errors.Is(err, ErrLockHeld) {
			return zero, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return zero, err
	}
	defer e.locks.Release(ctx, lease)

	b, err := e.batches.Get(ctx, req.BatchID)
	if err != nil {
		return zero, err
	}
	if b.EmployeeID != req.EmployeeID {
		return zero, fmt.Errorf("batch %s does not belong to %s: %w",
			req.BatchID, req.EmployeeID, ErrPreconditionFailed)
	}
	if b.Status != BatchActive {
		return zero, fmt.Errorf("batch %s is %s: %w", b.ID, b.Status, ErrPreconditionFailed)
	}

	remaining := b.RemainingHours.Add(req.Hours).Round1()
	if remaining.IsNegative() {
		return zero, &InsufficientCreditsError{
			EmployeeID: req.EmployeeID, Available: b.RemainingHours, Requested: req.Hours.Neg()}
	}
	status := BatchActive
	if remaining.IsZero() {
		status = BatchUsed
	}

	var logWrites []docstore.Write
	if status == BatchUsed {
		logWrites, err = e.logStatusWrites(ctx, b, LogUsed)
		if err != nil {
			return zero, err
		}
	}

	adjustedAt := e.now()
	err = e.writeLedgerBatch(ctx, func(seq int64) []docstore.Write {
		entry := LedgerEntry{
			ID:              FormatTransactionID(seq),
			EmployeeID:      req.EmployeeID,
			Type:            TxAdjustment,
			Hours:           req.Hours,
			BatchID:         b.ID,
			Notes:           req.Notes,
			TransactionDate: adjustedAt,
			PerformedBy:     req.PerformedBy,
		}
		writes := []docstore.Write{
			{Kind: docstore.WriteUpdate, Collection: colCreditBatches, ID: string(b.ID),
				Fields: docstore.Fields{
					fRemainingHours: remaining.Float64(),
					fStatus:         string(status),
				}},
			{Kind: docstore.WriteCreate, Collection: colLedger,
				ID: string(entry.ID), Fields: ledgerFields(entry, seq)},
		}
		return append(writes, logWrites...)
	})
	if err != nil {
		return zero, err
	}

	b.RemainingHours = remaining
	b.Status = status
	return b, nil
}

// =============================================================================
// BALANCE
// =============================================================================

// Balance is the five-way split of an employee's hours as of a date.
type Balance struct {
	Active      Hours // spendable now
	Uncertified Hours // logged, not yet certified
	TotalEarned Hours // sum of all batch originals
	Used        Hours // consumed, all time
	Expired     Hours // forfeited (including Active batches past validity)
}

// BalanceOf computes the balance from batches and logs. An Active batch
// whose validUntil is before asOf counts as expired even if the sweep
// has not run yet.
func (e *Engine) BalanceOf(ctx context.Context, id EmployeeID, asOf Date) (Balance, error) {
	var out Balance

	batches, err := e.batches.ByEmployee(ctx, id)
	if err != nil {
		return out, err
	}
	for _, b := range batches {
		out.TotalEarned = out.TotalEarned.Add(b.OriginalHours)
		out.Used = out.Used.Add(b.UsedHours)
		switch {
		case b.Status == BatchExpired:
			out.Expired = out.Expired.Add(b.RemainingHours)
		case b.Status == BatchActive && b.ValidUntil.Before(asOf):
			out.Expired = out.Expired.Add(b.RemainingHours)
		case b.Status == BatchActive:
			out.Active = out.Active.Add(b.RemainingHours)
		}
	}

	logs, err := e.logs.ByEmployee(ctx, id)
	if err != nil {
		return out, err
	}
	for _, l := range logs {
		if l.Status == LogUncertified {
			out.Uncertified = out.Uncertified.Add(l.COCEarned)
		}
	}
	return out, nil
}

// ReconcileBalance checks the ledger against the batch records. The sum
// of all signed ledger rows must equal the remaining hours of batches
// the ledger still considers live (Active batches, swept or not). Drift
// is an internal invariant violation.
func (e *Engine) ReconcileBalance(ctx context.Context, id EmployeeID) (Hours, error) {
	entries, err := e.ledger.ByEmployee(ctx, id)
	if err != nil {
		return Hours{}, err
	}
	ledgerNet := Hours{}
	for _, entry := range entries {
		ledgerNet = ledgerNet.Add(entry.Hours)
	}

	batches, err := e.batches.ByEmployee(ctx, id)
	if err != nil {
		return Hours{}, err
	}
	batchNet := Hours{}
	for _, b := range batches {
		if b.Status == BatchActive {
			batchNet = batchNet.Add(b.RemainingHours)
		}
	}

	if !ledgerNet.Equal(batchNet) {
		return Hours{}, fmt.Errorf("%w: ledger net %s != batch net %s for %s",
			ErrInternal, ledgerNet, batchNet, id)
	}
	return ledgerNet, nil
}
