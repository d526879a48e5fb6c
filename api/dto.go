/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for API communication, decoupled from the domain
  records so field names can evolve without breaking clients. Hours
  cross the wire as numbers with one decimal place; dates as ISO-8601
  strings; months as English full names.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation happens in the engine's cascade, not here. DTOs
  are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"github.com/govhr/coc-engine/coc"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

type EmployeeDTO struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName,omitempty"`
	LastName   string `json:"lastName"`
	FullName   string `json:"fullName"`
	Status     string `json:"status"`
	Position   string `json:"position,omitempty"`
	Office     string `json:"office,omitempty"`
	Email      string `json:"email,omitempty"`
}

type CreateEmployeeRequest struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
	Position   string `json:"position"`
	Office     string `json:"office"`
	Email      string `json:"email"`
}

type UpdateEmployeeRequest struct {
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
	Position   string `json:"position"`
	Office     string `json:"office"`
	Email      string `json:"email"`
	Status     string `json:"status"`
}

func employeeDTO(e coc.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:         string(e.ID),
		FirstName:  e.FirstName,
		MiddleName: e.MiddleName,
		LastName:   e.LastName,
		FullName:   e.FullName(),
		Status:     string(e.Status),
		Position:   e.Position,
		Office:     e.Office,
		Email:      e.Email,
	}
}

// =============================================================================
// OVERTIME LOGGING
// =============================================================================

type LogEntryRequest struct {
	Date  string `json:"date"`
	AMIn  string `json:"amIn"`
	AMOut string `json:"amOut"`
	PMIn  string `json:"pmIn"`
	PMOut string `json:"pmOut"`
}

type LogOvertimeRequest struct {
	EmployeeID string            `json:"employeeId"`
	Month      string            `json:"month"`
	Year       int               `json:"year"`
	LoggedBy   string            `json:"loggedBy"`
	Entries    []LogEntryRequest `json:"entries"`
}

type LogOvertimeResponse struct {
	EntriesLogged     int      `json:"entriesLogged"`
	TotalCreditHours  float64  `json:"totalCreditHours"`
	SkippedDuplicates []string `json:"skippedDuplicates"`
	LogIDs            []string `json:"logIds"`
	CorrelationID     string   `json:"correlationId"`
}

type OvertimeLogDTO struct {
	ID         string  `json:"id"`
	EmployeeID string  `json:"employeeId"`
	Month      string  `json:"month"`
	Year       int     `json:"year"`
	DateWorked string  `json:"dateWorked"`
	DayType    string  `json:"dayType"`
	AMIn       string  `json:"amIn,omitempty"`
	AMOut      string  `json:"amOut,omitempty"`
	PMIn       string  `json:"pmIn,omitempty"`
	PMOut      string  `json:"pmOut,omitempty"`
	COCEarned  float64 `json:"cocEarned"`
	Status     string  `json:"status"`
	ValidUntil string  `json:"validUntil,omitempty"`
}

type UpdateLogRequest struct {
	AMIn      string `json:"amIn"`
	AMOut     string `json:"amOut"`
	PMIn      string `json:"pmIn"`
	PMOut     string `json:"pmOut"`
	UpdatedBy string `json:"updatedBy"`
}

func logDTO(l coc.OvertimeLog) OvertimeLogDTO {
	dto := OvertimeLogDTO{
		ID:         string(l.ID),
		EmployeeID: string(l.EmployeeID),
		Month:      l.Month,
		Year:       l.Year,
		DateWorked: l.DateWorked.ISO(),
		DayType:    string(l.DayType),
		AMIn:       l.AMIn,
		AMOut:      l.AMOut,
		PMIn:       l.PMIn,
		PMOut:      l.PMOut,
		COCEarned:  l.COCEarned.Float64(),
		Status:     string(l.Status),
	}
	if l.ValidUntil != nil {
		dto.ValidUntil = l.ValidUntil.ISO()
	}
	return dto
}

// =============================================================================
// CERTIFICATION
// =============================================================================

type CertifyRequest struct {
	EmployeeID     string `json:"employeeId"`
	Month          string `json:"month"`
	Year           int    `json:"year"`
	DateOfIssuance string `json:"dateOfIssuance"`
	CertifiedBy    string `json:"certifiedBy"`
}

type CertificateDTO struct {
	ID             string  `json:"id"`
	EmployeeID     string  `json:"employeeId"`
	Month          string  `json:"month"`
	Year           int     `json:"year"`
	TotalHours     float64 `json:"totalHours"`
	DateOfIssuance string  `json:"dateOfIssuance"`
	ValidUntil     string  `json:"validUntil"`
	CertifiedBy    string  `json:"certifiedBy,omitempty"`
}

type CertifyResponse struct {
	Certificate CertificateDTO `json:"certificate"`
	Batch       BatchDTO       `json:"batch"`
}

func certificateDTO(c coc.Certificate) CertificateDTO {
	return CertificateDTO{
		ID:             string(c.ID),
		EmployeeID:     string(c.EmployeeID),
		Month:          c.Month,
		Year:           c.Year,
		TotalHours:     c.TotalHours.Float64(),
		DateOfIssuance: c.DateOfIssuance.ISO(),
		ValidUntil:     c.ValidUntil.ISO(),
		CertifiedBy:    c.CertifiedBy,
	}
}

// =============================================================================
// CREDITS
// =============================================================================

type BatchDTO struct {
	ID             string  `json:"id"`
	EmployeeID     string  `json:"employeeId"`
	EarnedMonth    string  `json:"earnedMonth"`
	EarnedYear     int     `json:"earnedYear"`
	OriginalHours  float64 `json:"originalHours"`
	RemainingHours float64 `json:"remainingHours"`
	UsedHours      float64 `json:"usedHours"`
	Status         string  `json:"status"`
	DateOfIssuance string  `json:"dateOfIssuance"`
	ValidUntil     string  `json:"validUntil"`
	SourceType     string  `json:"sourceType"`
	Notes          string  `json:"notes,omitempty"`
}

func batchDTO(b coc.CreditBatch) BatchDTO {
	return BatchDTO{
		ID:             string(b.ID),
		EmployeeID:     string(b.EmployeeID),
		EarnedMonth:    b.EarnedMonth,
		EarnedYear:     b.EarnedYear,
		OriginalHours:  b.OriginalHours.Float64(),
		RemainingHours: b.RemainingHours.Float64(),
		UsedHours:      b.UsedHours.Float64(),
		Status:         string(b.Status),
		DateOfIssuance: b.DateOfIssuance.ISO(),
		ValidUntil:     b.ValidUntil.ISO(),
		SourceType:     string(b.SourceType),
		Notes:          b.Notes,
	}
}

type DebitRequest struct {
	EmployeeID  string  `json:"employeeId"`
	Hours       float64 `json:"hours"`
	ReferenceID string  `json:"referenceId"`
	Notes       string  `json:"notes"`
	PerformedBy string  `json:"performedBy"`
}

type DebitResponse struct {
	Debited float64          `json:"debited"`
	Entries []LedgerEntryDTO `json:"entries"`
}

type HistoricalImportRequest struct {
	EmployeeID     string  `json:"employeeId"`
	Month          string  `json:"month"`
	Year           int     `json:"year"`
	Hours          float64 `json:"hours"`
	DateOfIssuance string  `json:"dateOfIssuance"`
	Notes          string  `json:"notes"`
	PerformedBy    string  `json:"performedBy"`
}

type AdjustRequest struct {
	EmployeeID  string  `json:"employeeId"`
	BatchID     string  `json:"batchId"`
	Hours       float64 `json:"hours"`
	Notes       string  `json:"notes"`
	PerformedBy string  `json:"performedBy"`
}

type LedgerEntryDTO struct {
	ID              string  `json:"id"`
	EmployeeID      string  `json:"employeeId"`
	Type            string  `json:"type"`
	Hours           float64 `json:"hours"`
	BatchID         string  `json:"batchId,omitempty"`
	ReferenceID     string  `json:"referenceId,omitempty"`
	Notes           string  `json:"notes,omitempty"`
	TransactionDate string  `json:"transactionDate"`
	PerformedBy     string  `json:"performedBy,omitempty"`
}

func ledgerEntryDTO(e coc.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:              string(e.ID),
		EmployeeID:      string(e.EmployeeID),
		Type:            string(e.Type),
		Hours:           e.Hours.Float64(),
		BatchID:         string(e.BatchID),
		ReferenceID:     e.ReferenceID,
		Notes:           e.Notes,
		TransactionDate: e.TransactionDate.Format("2006-01-02T15:04:05Z07:00"),
		PerformedBy:     e.PerformedBy,
	}
}

// =============================================================================
// VIEWS
// =============================================================================

type BalanceDTO struct {
	Active      float64 `json:"active"`
	Uncertified float64 `json:"uncertified"`
	TotalEarned float64 `json:"totalEarned"`
	Used        float64 `json:"used"`
	Expired     float64 `json:"expired"`
}

type LedgerRowDTO struct {
	Date       string  `json:"date"`
	Month      string  `json:"month"`
	Year       int     `json:"year"`
	Earned     float64 `json:"earned"`
	Used       float64 `json:"used"`
	Remaining  float64 `json:"remaining"`
	Status     string  `json:"status"`
	ValidUntil string  `json:"validUntil,omitempty"`
	Historical bool    `json:"historical"`
}

func ledgerRowDTO(r coc.LedgerRow) LedgerRowDTO {
	dto := LedgerRowDTO{
		Date:       r.Date.ISO(),
		Month:      r.Month,
		Year:       r.Year,
		Earned:     r.Earned.Float64(),
		Used:       r.Used.Float64(),
		Remaining:  r.Remaining.Float64(),
		Status:     r.Status,
		Historical: r.Historical,
	}
	if r.ValidUntil != nil {
		dto.ValidUntil = r.ValidUntil.ISO()
	}
	return dto
}

type ProgressDTO struct {
	Month      string  `json:"month"`
	Year       int     `json:"year"`
	Entries    int     `json:"entries"`
	Logged     float64 `json:"logged"`
	Cap        float64 `json:"cap"`
	Headroom   float64 `json:"headroom"`
	Certified  bool    `json:"certified"`
	Historical bool    `json:"historical"`
}

type UncertifiedPeriodDTO struct {
	EmployeeID   string  `json:"employeeId"`
	EmployeeName string  `json:"employeeName"`
	Month        string  `json:"month"`
	Year         int     `json:"year"`
	Entries      int     `json:"entries"`
	TotalHours   float64 `json:"totalHours"`
}

type UncertifiedResponse struct {
	Periods    []UncertifiedPeriodDTO `json:"periods"`
	Employees  int                    `json:"employees"`
	TotalHours float64                `json:"totalHours"`
}

// =============================================================================
// HOLIDAYS / CONFIG / ADMIN
// =============================================================================

type HolidayDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Date string `json:"date"`
	Year int    `json:"year"`
	Type string `json:"type"`
}

type CreateHolidayRequest struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Type string `json:"type"`
}

type SetConfigRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Hint  string `json:"hint"`
}

type SetLibraryRequest struct {
	Items []string `json:"items"`
}

type SweepRequest struct {
	AsOf        string `json:"asOf"`
	PerformedBy string `json:"performedBy"`
}

type SweepResponse struct {
	BatchesExpired int     `json:"batchesExpired"`
	HoursForfeited float64 `json:"hoursForfeited"`
}

type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}
