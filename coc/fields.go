/*
fields.go - Document field mapping

PURPOSE:
  The single place where logical entity fields map to stored document
  fields. Collection names and camelCase field names live here, together
  with the marshal/unmarshal helpers the repositories use. Nothing else
  in the engine spells a stored field name.

STORAGE CONVENTIONS:
  - civil dates:  ISO-8601 strings ("2025-03-10"); lexicographic order
                  matches date order, so range predicates push down
  - timestamps:   time.Time instants (the adapter returns them zone-aware)
  - hours:        float64 (values carry at most one fractional digit)
  - integers:     int64

  A stored document always carries every field of its record; absent
  required fields surface as SchemaDriftError (Internal) on read.
*/
package coc

import (
	"time"

	"github.com/govhr/coc-engine/docstore"
)

// =============================================================================
// COLLECTIONS
// =============================================================================

const (
	colEmployees     = "employees"
	colOvertimeLogs  = "overtimeLogs"
	colCertificates  = "certificates"
	colCreditBatches = "creditBatches"
	colLedger        = "ledger"
	colHolidays      = "holidays"
	colConfiguration = "configuration"
	colLibraries     = "libraries"

	// Infra collections (advisory locks and batch-write intents).
	colLocks   = "locks"
	colIntents = "intents"
)

// Collections lists every collection the engine writes, infra included.
// Admin tooling uses it for full resets.
func Collections() []string {
	return []string{
		colEmployees, colOvertimeLogs, colCertificates, colCreditBatches,
		colLedger, colHolidays, colConfiguration, colLibraries,
		colLocks, colIntents,
	}
}

// =============================================================================
// FIELD NAMES
// =============================================================================

const (
	fEmployeeID = "employeeId"
	fStatus     = "status"
	fMonth      = "month"
	fYear       = "year"

	fFirstName  = "firstName"
	fMiddleName = "middleName"
	fLastName   = "lastName"
	fPosition   = "position"
	fOffice     = "office"
	fEmail      = "email"
	fCreatedAt  = "createdAt"
	fUpdatedAt  = "updatedAt"

	fLogID         = "logId"
	fDateWorked    = "dateWorked"
	fDayType       = "dayType"
	fAMIn          = "amIn"
	fAMOut         = "amOut"
	fPMIn          = "pmIn"
	fPMOut         = "pmOut"
	fCOCEarned     = "cocEarned"
	fLoggedBy      = "loggedBy"
	fLoggedAt      = "loggedAt"
	fValidUntil    = "validUntil"
	fCorrelationID = "correlationId"

	fBatchID             = "batchId"
	fEarnedMonth         = "earnedMonth"
	fEarnedYear          = "earnedYear"
	fOriginalHours       = "originalHours"
	fRemainingHours      = "remainingHours"
	fUsedHours           = "usedHours"
	fDateOfIssuance      = "dateOfIssuance"
	fSourceType          = "sourceType"
	fSourceCertificateID = "sourceCertificateId"
	fNotes               = "notes"

	fTransactionID   = "transactionId"
	fTransactionType = "transactionType"
	fHours           = "hours"
	fReferenceID     = "referenceId"
	fTransactionDate = "transactionDate"
	fPerformedBy     = "performedBy"

	fCertificateID = "certificateId"
	fTotalHours    = "totalHours"
	fCertifiedBy   = "certifiedBy"

	fHolidayID   = "holidayId"
	fName        = "name"
	fDate        = "date"
	fHolidayType = "type"

	fConfigValue = "value"
	fConfigHint  = "hint"

	fLibraryItems = "items"

	fLockOwner   = "owner"
	fLockToken   = "token"
	fLockExpires = "expiresAt"

	fIntentCount = "expectedCount"
)

// =============================================================================
// DECODE HELPERS
// =============================================================================

// decoder pulls typed values out of a document, recording the first
// missing required field as schema drift.
type decoder struct {
	collection string
	doc        docstore.Doc
	err        error
}

func newDecoder(collection string, doc docstore.Doc) *decoder {
	return &decoder{collection: collection, doc: doc}
}

func (d *decoder) drift(field string) {
	if d.err == nil {
		d.err = &SchemaDriftError{Collection: d.collection, DocID: d.doc.ID, Field: field}
	}
}

func (d *decoder) str(field string) string {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		d.drift(field)
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.drift(field)
		return ""
	}
	return s
}

// optStr tolerates absent or null values (for genuinely optional fields).
func (d *decoder) optStr(field string) string {
	if v, ok := d.doc.Fields[field]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func (d *decoder) integer(field string) int {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		d.drift(field)
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	d.drift(field)
	return 0
}

func (d *decoder) hours(field string) Hours {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		d.drift(field)
		return Hours{}
	}
	switch n := v.(type) {
	case float64:
		return HoursOf(n)
	case int64:
		return HoursFromInt(int(n))
	case int:
		return HoursFromInt(n)
	}
	d.drift(field)
	return Hours{}
}

func (d *decoder) date(field string) Date {
	s := d.str(field)
	if d.err != nil {
		return Date{}
	}
	date, err := ParseDate(s)
	if err != nil {
		d.drift(field)
		return Date{}
	}
	return date
}

// optDate decodes a nullable date field.
func (d *decoder) optDate(field string) *Date {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return nil
	}
	date, err := ParseDate(s)
	if err != nil {
		d.drift(field)
		return nil
	}
	return &date
}

func (d *decoder) instant(field string) time.Time {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		d.drift(field)
		return time.Time{}
	}
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		// SQLite documents store instants as RFC 3339 strings.
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			d.drift(field)
			return time.Time{}
		}
		return parsed
	}
	d.drift(field)
	return time.Time{}
}

func (d *decoder) int64Field(field string) int64 {
	v, ok := d.doc.Fields[field]
	if !ok || v == nil {
		d.drift(field)
		return 0
	}
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	d.drift(field)
	return 0
}

// =============================================================================
// ENCODE - entity -> Fields
// =============================================================================

func employeeFields(e Employee) docstore.Fields {
	return docstore.Fields{
		fFirstName:  e.FirstName,
		fMiddleName: e.MiddleName,
		fLastName:   e.LastName,
		fStatus:     string(e.Status),
		fPosition:   e.Position,
		fOffice:     e.Office,
		fEmail:      e.Email,
		fCreatedAt:  e.CreatedAt,
		fUpdatedAt:  e.UpdatedAt,
	}
}

func logFields(l OvertimeLog, logID int64) docstore.Fields {
	var validUntil any
	if l.ValidUntil != nil {
		validUntil = l.ValidUntil.ISO()
	}
	return docstore.Fields{
		fLogID:         logID,
		fEmployeeID:    string(l.EmployeeID),
		fMonth:         l.Month,
		fYear:          int64(l.Year),
		fDateWorked:    l.DateWorked.ISO(),
		fDayType:       string(l.DayType),
		fAMIn:          l.AMIn,
		fAMOut:         l.AMOut,
		fPMIn:          l.PMIn,
		fPMOut:         l.PMOut,
		fCOCEarned:     l.COCEarned.Float64(),
		fStatus:        string(l.Status),
		fLoggedBy:      l.LoggedBy,
		fLoggedAt:      l.LoggedAt,
		fValidUntil:    validUntil,
		fCorrelationID: l.CorrelationID,
	}
}

func batchFields(b CreditBatch) docstore.Fields {
	return docstore.Fields{
		fBatchID:             string(b.ID),
		fEmployeeID:          string(b.EmployeeID),
		fEarnedMonth:         b.EarnedMonth,
		fEarnedYear:          int64(b.EarnedYear),
		fOriginalHours:       b.OriginalHours.Float64(),
		fRemainingHours:      b.RemainingHours.Float64(),
		fUsedHours:           b.UsedHours.Float64(),
		fStatus:              string(b.Status),
		fDateOfIssuance:      b.DateOfIssuance.ISO(),
		fValidUntil:          b.ValidUntil.ISO(),
		fSourceType:          string(b.SourceType),
		fSourceCertificateID: string(b.SourceCertificateID),
		fNotes:               b.Notes,
	}
}

func ledgerFields(e LedgerEntry, seq int64) docstore.Fields {
	return docstore.Fields{
		fTransactionID:   seq,
		fEmployeeID:      string(e.EmployeeID),
		fTransactionType: string(e.Type),
		fHours:           e.Hours.Float64(),
		fBatchID:         string(e.BatchID),
		fReferenceID:     e.ReferenceID,
		fNotes:           e.Notes,
		fTransactionDate: e.TransactionDate,
		fPerformedBy:     e.PerformedBy,
	}
}

func certificateFields(c Certificate) docstore.Fields {
	return docstore.Fields{
		fCertificateID:  string(c.ID),
		fEmployeeID:     string(c.EmployeeID),
		fMonth:          c.Month,
		fYear:           int64(c.Year),
		fTotalHours:     c.TotalHours.Float64(),
		fDateOfIssuance: c.DateOfIssuance.ISO(),
		fValidUntil:     c.ValidUntil.ISO(),
		fCertifiedBy:    c.CertifiedBy,
		fCreatedAt:      c.CreatedAt,
	}
}

func holidayFields(h HolidayEntry) docstore.Fields {
	return docstore.Fields{
		fHolidayID:   string(h.ID),
		fName:        h.Name,
		fDate:        h.Date.ISO(),
		fYear:        int64(h.Year),
		fHolidayType: string(h.Type),
	}
}

// =============================================================================
// DECODE - Doc -> entity
// =============================================================================

func decodeEmployee(doc docstore.Doc) (Employee, error) {
	d := newDecoder(colEmployees, doc)
	e := Employee{
		ID:         EmployeeID(doc.ID),
		FirstName:  d.str(fFirstName),
		MiddleName: d.optStr(fMiddleName),
		LastName:   d.str(fLastName),
		Status:     EmployeeStatus(d.str(fStatus)),
		Position:   d.optStr(fPosition),
		Office:     d.optStr(fOffice),
		Email:      d.optStr(fEmail),
		CreatedAt:  d.instant(fCreatedAt),
		UpdatedAt:  d.instant(fUpdatedAt),
	}
	return e, d.err
}

func decodeLog(doc docstore.Doc) (OvertimeLog, error) {
	d := newDecoder(colOvertimeLogs, doc)
	l := OvertimeLog{
		ID:            LogID(doc.ID),
		EmployeeID:    EmployeeID(d.str(fEmployeeID)),
		Month:         d.str(fMonth),
		Year:          d.integer(fYear),
		DateWorked:    d.date(fDateWorked),
		DayType:       DayType(d.str(fDayType)),
		AMIn:          d.optStr(fAMIn),
		AMOut:         d.optStr(fAMOut),
		PMIn:          d.optStr(fPMIn),
		PMOut:         d.optStr(fPMOut),
		COCEarned:     d.hours(fCOCEarned),
		Status:        LogStatus(d.str(fStatus)),
		LoggedBy:      d.optStr(fLoggedBy),
		LoggedAt:      d.instant(fLoggedAt),
		ValidUntil:    d.optDate(fValidUntil),
		CorrelationID: d.optStr(fCorrelationID),
	}
	return l, d.err
}

func decodeBatch(doc docstore.Doc) (CreditBatch, error) {
	d := newDecoder(colCreditBatches, doc)
	b := CreditBatch{
		ID:                  BatchID(doc.ID),
		EmployeeID:          EmployeeID(d.str(fEmployeeID)),
		EarnedMonth:         d.str(fEarnedMonth),
		EarnedYear:          d.integer(fEarnedYear),
		OriginalHours:       d.hours(fOriginalHours),
		RemainingHours:      d.hours(fRemainingHours),
		UsedHours:           d.hours(fUsedHours),
		Status:              BatchStatus(d.str(fStatus)),
		DateOfIssuance:      d.date(fDateOfIssuance),
		ValidUntil:          d.date(fValidUntil),
		SourceType:          BatchSource(d.str(fSourceType)),
		SourceCertificateID: CertificateID(d.optStr(fSourceCertificateID)),
		Notes:               d.optStr(fNotes),
	}
	return b, d.err
}

func decodeLedgerEntry(doc docstore.Doc) (LedgerEntry, error) {
	d := newDecoder(colLedger, doc)
	e := LedgerEntry{
		ID:              TransactionID(doc.ID),
		EmployeeID:      EmployeeID(d.str(fEmployeeID)),
		Type:            TxType(d.str(fTransactionType)),
		Hours:           d.hours(fHours),
		BatchID:         BatchID(d.optStr(fBatchID)),
		ReferenceID:     d.optStr(fReferenceID),
		Notes:           d.optStr(fNotes),
		TransactionDate: d.instant(fTransactionDate),
		PerformedBy:     d.optStr(fPerformedBy),
	}
	return e, d.err
}

func decodeCertificate(doc docstore.Doc) (Certificate, error) {
	d := newDecoder(colCertificates, doc)
	c := Certificate{
		ID:             CertificateID(doc.ID),
		EmployeeID:     EmployeeID(d.str(fEmployeeID)),
		Month:          d.str(fMonth),
		Year:           d.integer(fYear),
		TotalHours:     d.hours(fTotalHours),
		DateOfIssuance: d.date(fDateOfIssuance),
		ValidUntil:     d.date(fValidUntil),
		CertifiedBy:    d.optStr(fCertifiedBy),
		CreatedAt:      d.instant(fCreatedAt),
	}
	return c, d.err
}

func decodeHoliday(doc docstore.Doc) (HolidayEntry, error) {
	d := newDecoder(colHolidays, doc)
	h := HolidayEntry{
		ID:   HolidayID(doc.ID),
		Name: d.str(fName),
		Date: d.date(fDate),
		Year: d.integer(fYear),
		Type: HolidayType(d.str(fHolidayType)),
	}
	return h, d.err
}
