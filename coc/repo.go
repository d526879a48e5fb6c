/*
repo.go - Typed repositories over the document store

PURPOSE:
  One repository per collection, translating between entities and stored
  documents. Every multi-record query here pushes its predicates into the
  store (Where/Match) - no load-then-filter. Composite atomic writes
  (certification, debit, batch log writes) are assembled by the services
  and executed via BatchWrite; repositories provide the reads and the
  simple single-document writes.

SEE ALSO:
  - fields.go:   the field mapping these repositories rely on
  - docstore:    the store contract
*/
package coc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/govhr/coc-engine/docstore"
)

// storeErr normalizes store-level failures into engine error kinds.
// Deadline and transport failures become the retriable StoreUnavailable.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, docstore.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	default:
		return err
	}
}

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeStore struct {
	store docstore.Store
}

func NewEmployeeStore(store docstore.Store) *EmployeeStore {
	return &EmployeeStore{store: store}
}

func (s *EmployeeStore) Get(ctx context.Context, id EmployeeID) (Employee, error) {
	doc, err := s.store.Get(ctx, colEmployees, string(id))
	if err != nil {
		return Employee{}, storeErr(err)
	}
	return decodeEmployee(doc)
}

// Exists reports whether the employee id is known, any status.
func (s *EmployeeStore) Exists(ctx context.Context, id EmployeeID) (bool, error) {
	_, err := s.store.Get(ctx, colEmployees, string(id))
	if errors.Is(err, docstore.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(err)
	}
	return true, nil
}

// Create stores a new employee. Fails with Conflict/AlreadyExists when the
// id is taken or another employee already uses the email.
func (s *EmployeeStore) Create(ctx context.Context, e Employee) error {
	if e.Email != "" {
		dups, err := s.store.Where(ctx, colEmployees, fEmail, docstore.OpEq, e.Email)
		if err != nil {
			return storeErr(err)
		}
		if len(dups) > 0 {
			return fmt.Errorf("employee email %q: %w", e.Email, ErrAlreadyExists)
		}
	}
	err := s.store.Create(ctx, colEmployees, string(e.ID), employeeFields(e))
	if errors.Is(err, docstore.ErrExists) {
		return fmt.Errorf("employee %s: %w", e.ID, ErrAlreadyExists)
	}
	return storeErr(err)
}

func (s *EmployeeStore) Update(ctx context.Context, e Employee) error {
	return storeErr(s.store.Update(ctx, colEmployees, string(e.ID), employeeFields(e)))
}

// SoftDelete marks the employee Inactive. The record is never removed;
// batches and logs keep referencing it.
func (s *EmployeeStore) SoftDelete(ctx context.Context, id EmployeeID, at time.Time) error {
	return storeErr(s.store.Update(ctx, colEmployees, string(id), docstore.Fields{
		fStatus:    string(EmployeeInactive),
		fUpdatedAt: at,
	}))
}

func (s *EmployeeStore) List(ctx context.Context, status EmployeeStatus) ([]Employee, error) {
	var docs []docstore.Doc
	var err error
	if status != "" {
		docs, err = s.store.Where(ctx, colEmployees, fStatus, docstore.OpEq, string(status))
	} else {
		docs, err = s.store.GetAll(ctx, colEmployees, 10000)
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeEmployees(docs)
}

func decodeEmployees(docs []docstore.Doc) ([]Employee, error) {
	out := make([]Employee, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeEmployee(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// OVERTIME LOGS
// =============================================================================

type LogStore struct {
	store docstore.Store
}

func NewLogStore(store docstore.Store) *LogStore {
	return &LogStore{store: store}
}

func (s *LogStore) Get(ctx context.Context, id LogID) (OvertimeLog, error) {
	doc, err := s.store.Get(ctx, colOvertimeLogs, string(id))
	if err != nil {
		return OvertimeLog{}, storeErr(err)
	}
	return decodeLog(doc)
}

// NextID returns a fresh id strictly greater than any existing log id.
// Safe under concurrent writers only together with WriteCreate: callers
// claim the id inside a batch write and retry on collision.
func (s *LogStore) NextID(ctx context.Context) (int64, error) {
	max, err := s.store.MaxID(ctx, colOvertimeLogs, fLogID)
	if err != nil {
		return 0, storeErr(err)
	}
	return max + 1, nil
}

func (s *LogStore) ByEmployee(ctx context.Context, id EmployeeID) ([]OvertimeLog, error) {
	docs, err := s.store.Where(ctx, colOvertimeLogs, fEmployeeID, docstore.OpEq, string(id))
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLogs(docs)
}

// ByPeriod is an equality query on the three indexed period fields.
func (s *LogStore) ByPeriod(ctx context.Context, id EmployeeID, month string, year int) ([]OvertimeLog, error) {
	docs, err := s.store.Match(ctx, colOvertimeLogs, docstore.Fields{
		fEmployeeID: string(id),
		fMonth:      month,
		fYear:       int64(year),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLogs(docs)
}

func (s *LogStore) ByStatus(ctx context.Context, status LogStatus) ([]OvertimeLog, error) {
	docs, err := s.store.Where(ctx, colOvertimeLogs, fStatus, docstore.OpEq, string(status))
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLogs(docs)
}

// UncertifiedByPeriod returns the Uncertified logs of one period.
func (s *LogStore) UncertifiedByPeriod(ctx context.Context, id EmployeeID, month string, year int) ([]OvertimeLog, error) {
	docs, err := s.store.Match(ctx, colOvertimeLogs, docstore.Fields{
		fEmployeeID: string(id),
		fMonth:      month,
		fYear:       int64(year),
		fStatus:     string(LogUncertified),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLogs(docs)
}

// MonthTotal sums coc-earned across all non-terminal logs of a period.
// Uncertified and Active both count against the monthly cap.
func (s *LogStore) MonthTotal(ctx context.Context, id EmployeeID, month string, year int) (Hours, error) {
	logs, err := s.ByPeriod(ctx, id, month, year)
	if err != nil {
		return Hours{}, err
	}
	total := Hours{}
	for _, l := range logs {
		if l.Status == LogUncertified || l.Status == LogActive {
			total = total.Add(l.COCEarned)
		}
	}
	return total, nil
}

// ExistingDates returns the set of dates already logged in a period,
// excluding terminal logs (a Used/Expired day can be re-logged only via
// backfill of a different period, never the same one - terminal logs of
// the same period still mark their date as taken).
func (s *LogStore) ExistingDates(ctx context.Context, id EmployeeID, month string, year int) (map[Date]bool, error) {
	logs, err := s.ByPeriod(ctx, id, month, year)
	if err != nil {
		return nil, err
	}
	dates := make(map[Date]bool, len(logs))
	for _, l := range logs {
		dates[l.DateWorked] = true
	}
	return dates, nil
}

// ByCorrelation returns the logs written under one batch correlation id.
func (s *LogStore) ByCorrelation(ctx context.Context, correlationID string) ([]OvertimeLog, error) {
	docs, err := s.store.Where(ctx, colOvertimeLogs, fCorrelationID, docstore.OpEq, correlationID)
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLogs(docs)
}

// Delete removes a log. Only Uncertified logs may be deleted.
func (s *LogStore) Delete(ctx context.Context, id LogID) error {
	l, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if l.Status != LogUncertified {
		return fmt.Errorf("log %s is %s: %w", id, l.Status, ErrPreconditionFailed)
	}
	return storeErr(s.store.Delete(ctx, colOvertimeLogs, string(id)))
}

func decodeLogs(docs []docstore.Doc) ([]OvertimeLog, error) {
	out := make([]OvertimeLog, 0, len(docs))
	for _, doc := range docs {
		l, err := decodeLog(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// =============================================================================
// CREDIT BATCHES
// =============================================================================

type BatchStore struct {
	store docstore.Store
}

func NewBatchStore(store docstore.Store) *BatchStore {
	return &BatchStore{store: store}
}

func (s *BatchStore) Get(ctx context.Context, id BatchID) (CreditBatch, error) {
	doc, err := s.store.Get(ctx, colCreditBatches, string(id))
	if err != nil {
		return CreditBatch{}, storeErr(err)
	}
	return decodeBatch(doc)
}

// Create never overwrites.
func (s *BatchStore) Create(ctx context.Context, b CreditBatch) error {
	err := s.store.Create(ctx, colCreditBatches, string(b.ID), batchFields(b))
	if errors.Is(err, docstore.ErrExists) {
		return fmt.Errorf("batch %s: %w", b.ID, ErrAlreadyExists)
	}
	return storeErr(err)
}

func (s *BatchStore) ByEmployee(ctx context.Context, id EmployeeID) ([]CreditBatch, error) {
	docs, err := s.store.Where(ctx, colCreditBatches, fEmployeeID, docstore.OpEq, string(id))
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeBatches(docs)
}

func (s *BatchStore) ActiveByEmployee(ctx context.Context, id EmployeeID) ([]CreditBatch, error) {
	docs, err := s.store.Match(ctx, colCreditBatches, docstore.Fields{
		fEmployeeID: string(id),
		fStatus:     string(BatchActive),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeBatches(docs)
}

// AllActive returns every Active batch (input to the expiration sweep).
func (s *BatchStore) AllActive(ctx context.Context) ([]CreditBatch, error) {
	docs, err := s.store.Where(ctx, colCreditBatches, fStatus, docstore.OpEq, string(BatchActive))
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeBatches(docs)
}

// HistoricalFor returns the historical-import batch of a period, if any.
// At most one exists per (employee, month, year).
func (s *BatchStore) HistoricalFor(ctx context.Context, id EmployeeID, month string, year int) (*CreditBatch, error) {
	docs, err := s.store.Match(ctx, colCreditBatches, docstore.Fields{
		fEmployeeID:  string(id),
		fEarnedMonth: month,
		fEarnedYear:  int64(year),
		fSourceType:  string(SourceHistoricalImport),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	b, err := decodeBatch(docs[0])
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func decodeBatches(docs []docstore.Doc) ([]CreditBatch, error) {
	out := make([]CreditBatch, 0, len(docs))
	for _, doc := range docs {
		b, err := decodeBatch(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

type LedgerStore struct {
	store docstore.Store
}

func NewLedgerStore(store docstore.Store) *LedgerStore {
	return &LedgerStore{store: store}
}

// NextSeq returns one past the highest transaction id on record. Nothing
// is reserved; writers claim ids with Create inside the atomic batch and
// retry the allocation on collision (writeLedgerBatch).
func (s *LedgerStore) NextSeq(ctx context.Context) (int64, error) {
	max, err := s.store.MaxID(ctx, colLedger, fTransactionID)
	if err != nil {
		return 0, storeErr(err)
	}
	return max + 1, nil
}

func (s *LedgerStore) ByEmployee(ctx context.Context, id EmployeeID) ([]LedgerEntry, error) {
	docs, err := s.store.Where(ctx, colLedger, fEmployeeID, docstore.OpEq, string(id))
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLedgerEntries(docs)
}

func (s *LedgerStore) ByBatch(ctx context.Context, employee EmployeeID, batch BatchID) ([]LedgerEntry, error) {
	docs, err := s.store.Match(ctx, colLedger, docstore.Fields{
		fEmployeeID: string(employee),
		fBatchID:    string(batch),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return decodeLedgerEntries(docs)
}

// Append writes a single ledger row (manual adjustments). Certification,
// debit, and expiration append through their atomic batch writes instead.
func (s *LedgerStore) Append(ctx context.Context, e LedgerEntry, seq int64) error {
	err := s.store.Create(ctx, colLedger, string(FormatTransactionID(seq)), ledgerFields(e, seq))
	if errors.Is(err, docstore.ErrExists) {
		return fmt.Errorf("ledger entry %d: %w", seq, ErrAlreadyExists)
	}
	return storeErr(err)
}

func decodeLedgerEntries(docs []docstore.Doc) ([]LedgerEntry, error) {
	out := make([]LedgerEntry, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeLedgerEntry(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// CERTIFICATES
// =============================================================================

type CertificateStore struct {
	store docstore.Store
}

func NewCertificateStore(store docstore.Store) *CertificateStore {
	return &CertificateStore{store: store}
}

func (s *CertificateStore) Get(ctx context.Context, id CertificateID) (Certificate, error) {
	doc, err := s.store.Get(ctx, colCertificates, string(id))
	if err != nil {
		return Certificate{}, storeErr(err)
	}
	return decodeCertificate(doc)
}

// For returns the certificate of a period, if one exists.
func (s *CertificateStore) For(ctx context.Context, id EmployeeID, month string, year int) (*Certificate, error) {
	docs, err := s.store.Match(ctx, colCertificates, docstore.Fields{
		fEmployeeID: string(id),
		fMonth:      month,
		fYear:       int64(year),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	c, err := decodeCertificate(docs[0])
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ByEmployeeYear is the compound equality query behind certified-month
// lookups.
func (s *CertificateStore) ByEmployeeYear(ctx context.Context, id EmployeeID, year int) ([]Certificate, error) {
	docs, err := s.store.Match(ctx, colCertificates, docstore.Fields{
		fEmployeeID: string(id),
		fYear:       int64(year),
	})
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]Certificate, 0, len(docs))
	for _, doc := range docs {
		c, err := decodeCertificate(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

type HolidayStore struct {
	store docstore.Store
}

func NewHolidayStore(store docstore.Store) *HolidayStore {
	return &HolidayStore{store: store}
}

// Put stores a holiday, enforcing uniqueness by date.
func (s *HolidayStore) Put(ctx context.Context, h HolidayEntry) error {
	existing, err := s.store.Where(ctx, colHolidays, fDate, docstore.OpEq, h.Date.ISO())
	if err != nil {
		return storeErr(err)
	}
	for _, doc := range existing {
		if doc.ID != string(h.ID) {
			return fmt.Errorf("holiday on %s: %w", h.Date, ErrAlreadyExists)
		}
	}
	return storeErr(s.store.Upsert(ctx, colHolidays, string(h.ID), holidayFields(h)))
}

func (s *HolidayStore) Delete(ctx context.Context, id HolidayID) error {
	return storeErr(s.store.Delete(ctx, colHolidays, string(id)))
}

// ByYear returns all holidays of a year (indexed equality query).
func (s *HolidayStore) ByYear(ctx context.Context, year int) ([]HolidayEntry, error) {
	docs, err := s.store.Where(ctx, colHolidays, fYear, docstore.OpEq, int64(year))
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]HolidayEntry, 0, len(docs))
	for _, doc := range docs {
		h, err := decodeHoliday(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

// =============================================================================
// LIBRARIES - category -> ordered value list (UI lookups, unconstrained)
// =============================================================================

type LibraryStore struct {
	store docstore.Store
}

func NewLibraryStore(store docstore.Store) *LibraryStore {
	return &LibraryStore{store: store}
}

func (s *LibraryStore) Get(ctx context.Context, category string) ([]string, error) {
	doc, err := s.store.Get(ctx, colLibraries, category)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr(err)
	}
	raw, _ := doc.Fields[fLibraryItems].([]any)
	items := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			items = append(items, s)
		}
	}
	return items, nil
}

func (s *LibraryStore) Put(ctx context.Context, category string, items []string) error {
	values := make([]any, len(items))
	for i, v := range items {
		values[i] = v
	}
	return storeErr(s.store.Upsert(ctx, colLibraries, category, docstore.Fields{
		fLibraryItems: values,
	}))
}
