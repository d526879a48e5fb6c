/*
certify.go - Monthly certification

PURPOSE:
  Certification converts a period's Uncertified logs into an expiring
  credit batch, appends the Credit ledger row, and issues the certificate
  that locks the period. The four writes land in one atomic store batch,
  ordered logs -> batch -> ledger -> certificate, so a torn write can
  never leave a certificate without its batch.

REPLAY:
  Certifying an already-certified period writes nothing and fails with
  the AlreadyExists conflict, naming the existing certificate.

VALIDITY:
  validUntil = dateOfIssuance plus the configured validity months, minus
  one day. Issuing January 15 with 12 months yields January 14 next year.
*/
package coc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/govhr/coc-engine/docstore"
)

type CertifyRequest struct {
	EmployeeID     EmployeeID
	Month          string
	Year           int
	DateOfIssuance string // ISO-8601; must not be in the future
	CertifiedBy    string
}

type CertifyResult struct {
	Certificate Certificate
	Batch       CreditBatch
}

// Certify runs the monthly certification for one period.
func (e *Engine) Certify(ctx context.Context, req CertifyRequest) (CertifyResult, error) {
	var zero CertifyResult

	if req.EmployeeID == "" {
		return zero, &FieldError{Subkind: MissingField, Field: "employeeId", Message: "required"}
	}
	if _, ok := MonthByName(req.Month); !ok {
		return zero, &FieldError{Subkind: BadDate, Field: "month",
			Message: fmt.Sprintf("not an English month name: %q", req.Month)}
	}
	issuance, err := ParseDate(req.DateOfIssuance)
	if err != nil {
		return zero, &FieldError{Subkind: BadDate, Field: "dateOfIssuance", Message: err.Error()}
	}

	settings, err := e.config.Load(ctx)
	if err != nil {
		return zero, err
	}
	today := DateOf(e.now(), settings.Location)
	if issuance.After(today) {
		return zero, fmt.Errorf("issuance date %s is in the future: %w", issuance, ErrPreconditionFailed)
	}

	lease, err := e.locks.Acquire(ctx, EmployeeScope(req.EmployeeID), req.CertifiedBy)
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

	existing, err := e.certificates.For(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil {
		return zero, err
	}
	if existing != nil {
		return zero, fmt.Errorf("%s %d already certified for %s (certificate %s): %w",
			req.Month, req.Year, req.EmployeeID, existing.ID, ErrAlreadyExists)
	}

	logs, err := e.logs.UncertifiedByPeriod(ctx, req.EmployeeID, req.Month, req.Year)
	if err != nil {
		return zero, err
	}
	if len(logs) == 0 {
		return zero, fmt.Errorf("no uncertified logs for %s %s %d: %w",
			req.EmployeeID, req.Month, req.Year, ErrPreconditionFailed)
	}

	total := Hours{}
	for _, l := range logs {
		total = total.Add(l.COCEarned)
	}
	if !total.IsPositive() {
		return zero, fmt.Errorf("period %s %d has no credit hours: %w",
			req.Month, req.Year, ErrPreconditionFailed)
	}

	validUntil := issuance.AddMonths(settings.CertificateValidityMonths).AddDays(-1)
	now := e.now()

	batch := CreditBatch{
		ID:             BatchID(uuid.NewString()),
		EmployeeID:     req.EmployeeID,
		EarnedMonth:    req.Month,
		EarnedYear:     req.Year,
		OriginalHours:  total,
		RemainingHours: total,
		UsedHours:      Hours{},
		Status:         BatchActive,
		DateOfIssuance: issuance,
		ValidUntil:     validUntil,
		SourceType:     SourceMonthlyCertificate,
	}
	cert := Certificate{
		ID:             CertificateID(uuid.NewString()),
		EmployeeID:     req.EmployeeID,
		Month:          req.Month,
		Year:           req.Year,
		TotalHours:     total,
		DateOfIssuance: issuance,
		ValidUntil:     validUntil,
		CertifiedBy:    req.CertifiedBy,
		CreatedAt:      now,
	}
	batch.SourceCertificateID = cert.ID

	err = e.writeLedgerBatch(ctx, func(seq int64) []docstore.Write {
		entry := LedgerEntry{
			ID:              FormatTransactionID(seq),
			EmployeeID:      req.EmployeeID,
			Type:            TxCredit,
			Hours:           total,
			BatchID:         batch.ID,
			ReferenceID:     string(cert.ID),
			Notes:           fmt.Sprintf("Certified %s %d", req.Month, req.Year),
			TransactionDate: now,
			PerformedBy:     req.CertifiedBy,
		}
		writes := make([]docstore.Write, 0, len(logs)+3)
		for _, l := range logs {
			writes = append(writes, docstore.Write{
				Kind:       docstore.WriteUpdate,
				Collection: colOvertimeLogs,
				ID:         string(l.ID),
				Fields: docstore.Fields{
					fStatus:     string(LogActive),
					fValidUntil: validUntil.ISO(),
				},
			})
		}
		return append(writes,
			docstore.Write{Kind: docstore.WriteCreate, Collection: colCreditBatches,
				ID: string(batch.ID), Fields: batchFields(batch)},
			docstore.Write{Kind: docstore.WriteCreate, Collection: colLedger,
				ID: string(entry.ID), Fields: ledgerFields(entry, seq)},
			docstore.Write{Kind: docstore.WriteCreate, Collection: colCertificates,
				ID: string(cert.ID), Fields: certificateFields(cert)},
		)
	})
	if err != nil {
		return zero, err
	}

	e.log.Info().
		Str("employeeId", string(req.EmployeeID)).
		Str("period", fmt.Sprintf("%s %d", req.Month, req.Year)).
		Str("hours", total.String()).
		Str("validUntil", validUntil.ISO()).
		Str("certificateId", string(cert.ID)).
		Msg("period certified")

	return CertifyResult{Certificate: cert, Batch: batch}, nil
}
