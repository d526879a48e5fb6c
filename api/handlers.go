/*
handlers.go - HTTP API handlers for the COC engine

PURPOSE:
  Exposes the accrual and certification engine via REST. Handlers parse
  the request, delegate to the engine, and serialize the response; no
  business rules live here.

ENDPOINTS:
  Overtime:
    POST   /api/overtime                         Log a batch of entries
    PUT    /api/overtime/{id}                    Edit an uncertified log
    DELETE /api/overtime/{id}                    Delete an uncertified log

  Employees:
    GET    /api/employees                        List
    POST   /api/employees                        Create
    GET    /api/employees/{id}                   Details
    PUT    /api/employees/{id}                   Update
    DELETE /api/employees/{id}                   Soft delete
    GET    /api/employees/{id}/logs              Raw overtime logs
    GET    /api/employees/{id}/ledger            Batch/period history view
    GET    /api/employees/{id}/entries           Raw ledger rows
    GET    /api/employees/{id}/balance           Five-way balance
    GET    /api/employees/{id}/progress          Monthly cap progress
    GET    /api/employees/{id}/certified-months  Certified months of a year

  Certification and credits:
    POST   /api/certifications                   Certify a period
    POST   /api/credits/debit                    FIFO debit
    POST   /api/credits/import                   Historical import
    POST   /api/credits/adjust                   Manual adjustment

  Admin:
    GET    /api/uncertified                      Pending periods overview
    POST   /api/admin/expire-sweep               Run the expiration sweep
    GET    /api/admin/reconcile/{id}             Ledger-vs-batch check
    POST   /api/admin/recover                    Startup recovery scan

  Reference data:
    /api/holidays, /api/config, /api/libraries

ERROR HANDLING:
  Engine error kinds map onto HTTP statuses:
    ValidationError          400
    NotFound                 404
    Conflict/*               409
    CapExceeded/*            422
    PreconditionFailed       422
    StoreUnavailable         503
    Internal                 500

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/govhr/coc-engine/coc"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *coc.Engine
	Log    zerolog.Logger

	scenarioMu      sync.Mutex
	currentScenario string
}

func NewHandler(engine *coc.Engine, log zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Log: log}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	kind := coc.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case coc.KindValidation:
		status = http.StatusBadRequest
	case coc.KindNotFound:
		status = http.StatusNotFound
	case coc.KindAlreadyExists, coc.KindPeriodLocked:
		status = http.StatusConflict
	case coc.KindCapExceededMonthly, coc.KindCapExceededTotal, coc.KindPreconditionFailed:
		status = http.StatusUnprocessableEntity
	case coc.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	if status >= 500 {
		h.Log.Error().Err(err).Str("kind", string(kind)).Msg("request failed")
	}
	h.respond(w, status, ErrorResponse{Kind: string(kind), Message: err.Error()})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

// =============================================================================
// OVERTIME
// =============================================================================

func (h *Handler) LogOvertime(w http.ResponseWriter, r *http.Request) {
	var req LogOvertimeRequest
	if !h.decode(w, r, &req) {
		return
	}

	entries := make([]coc.LogEntryInput, len(req.Entries))
	for i, in := range req.Entries {
		entries[i] = coc.LogEntryInput{
			Date: in.Date, AMIn: in.AMIn, AMOut: in.AMOut, PMIn: in.PMIn, PMOut: in.PMOut}
	}
	result, err := h.Engine.LogOvertime(r.Context(), coc.LogOvertimeRequest{
		EmployeeID: coc.EmployeeID(req.EmployeeID),
		Month:      req.Month,
		Year:       req.Year,
		LoggedBy:   req.LoggedBy,
		Entries:    entries,
	})
	if err != nil {
		h.fail(w, err)
		return
	}

	skipped := make([]string, len(result.SkippedDuplicates))
	for i, d := range result.SkippedDuplicates {
		skipped[i] = d.ISO()
	}
	ids := make([]string, len(result.LogIDs))
	for i, id := range result.LogIDs {
		ids[i] = string(id)
	}
	h.respond(w, http.StatusCreated, LogOvertimeResponse{
		EntriesLogged:     result.EntriesLogged,
		TotalCreditHours:  result.TotalCreditHours.Float64(),
		SkippedDuplicates: skipped,
		LogIDs:            ids,
		CorrelationID:     result.CorrelationID,
	})
}

func (h *Handler) UpdateLog(w http.ResponseWriter, r *http.Request) {
	var req UpdateLogRequest
	if !h.decode(w, r, &req) {
		return
	}
	l, err := h.Engine.UpdateLog(r.Context(), coc.LogID(chi.URLParam(r, "id")), coc.Punches{
		AMIn: req.AMIn, AMOut: req.AMOut, PMIn: req.PMIn, PMOut: req.PMOut,
	}, req.UpdatedBy)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, logDTO(l))
}

func (h *Handler) DeleteLog(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.DeleteLog(r.Context(), coc.LogID(chi.URLParam(r, "id")), r.Header.Get("X-Actor")); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Engine.Employees().List(r.Context(), coc.EmployeeStatus(r.URL.Query().Get("status")))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		out[i] = employeeDTO(e)
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.FirstName == "" || req.LastName == "" {
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: "firstName and lastName are required"})
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now()
	e := coc.Employee{
		ID:         coc.EmployeeID(req.ID),
		FirstName:  req.FirstName,
		MiddleName: req.MiddleName,
		LastName:   req.LastName,
		Status:     coc.EmployeeActive,
		Position:   req.Position,
		Office:     req.Office,
		Email:      req.Email,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := h.Engine.Employees().Create(r.Context(), e); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, employeeDTO(e))
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.Engine.Employees().Get(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, employeeDTO(e))
}

func (h *Handler) UpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req UpdateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := coc.EmployeeID(chi.URLParam(r, "id"))
	e, err := h.Engine.Employees().Get(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	if req.FirstName != "" {
		e.FirstName = req.FirstName
	}
	if req.MiddleName != "" {
		e.MiddleName = req.MiddleName
	}
	if req.LastName != "" {
		e.LastName = req.LastName
	}
	if req.Position != "" {
		e.Position = req.Position
	}
	if req.Office != "" {
		e.Office = req.Office
	}
	if req.Email != "" {
		e.Email = req.Email
	}
	if req.Status != "" {
		e.Status = coc.EmployeeStatus(req.Status)
	}
	e.UpdatedAt = time.Now()
	if err := h.Engine.Employees().Update(r.Context(), e); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, employeeDTO(e))
}

func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := coc.EmployeeID(chi.URLParam(r, "id"))
	if _, err := h.Engine.Employees().Get(r.Context(), id); err != nil {
		h.fail(w, err)
		return
	}
	if err := h.Engine.Employees().SoftDelete(r.Context(), id, time.Now()); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.Engine.Logs(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]OvertimeLogDTO, len(logs))
	for i, l := range logs {
		out[i] = logDTO(l)
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) GetLedger(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Engine.EmployeeLedger(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]LedgerRowDTO, len(rows))
	for i, row := range rows {
		out[i] = ledgerRowDTO(row)
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) GetLedgerEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.LedgerEntries(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		out[i] = ledgerEntryDTO(e)
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	asOf, ok := h.asOfDate(w, r)
	if !ok {
		return
	}
	b, err := h.Engine.BalanceOf(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")), asOf)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, BalanceDTO{
		Active:      b.Active.Float64(),
		Uncertified: b.Uncertified.Float64(),
		TotalEarned: b.TotalEarned.Float64(),
		Used:        b.Used.Float64(),
		Expired:     b.Expired.Float64(),
	})
}

func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	month := r.URL.Query().Get("month")
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	p, err := h.Engine.PeriodProgress(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")), month, year)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, ProgressDTO{
		Month:      p.Month,
		Year:       p.Year,
		Entries:    p.Entries,
		Logged:     p.Logged.Float64(),
		Cap:        p.Cap.Float64(),
		Headroom:   p.Headroom.Float64(),
		Certified:  p.Certified,
		Historical: p.Historical,
	})
}

func (h *Handler) GetCertifiedMonths(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	months, err := h.Engine.CertifiedMonths(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")), year)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"year": year, "months": months})
}

// yearParam parses ?year=YYYY; absent is 0, garbage is a 400.
func (h *Handler) yearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return 0, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: fmt.Sprintf("year: not a number: %q", raw)})
		return 0, false
	}
	return year, true
}

// asOfDate parses ?asOf=YYYY-MM-DD, defaulting to today in the
// configured zone.
func (h *Handler) asOfDate(w http.ResponseWriter, r *http.Request) (coc.Date, bool) {
	raw := r.URL.Query().Get("asOf")
	if raw == "" {
		settings, err := h.Engine.Config().Load(r.Context())
		if err != nil {
			h.fail(w, err)
			return coc.Date{}, false
		}
		return coc.DateOf(time.Now(), settings.Location), true
	}
	d, err := coc.ParseDate(raw)
	if err != nil {
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: err.Error()})
		return coc.Date{}, false
	}
	return d, true
}

// =============================================================================
// CERTIFICATION AND CREDITS
// =============================================================================

func (h *Handler) Certify(w http.ResponseWriter, r *http.Request) {
	var req CertifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Engine.Certify(r.Context(), coc.CertifyRequest{
		EmployeeID:     coc.EmployeeID(req.EmployeeID),
		Month:          req.Month,
		Year:           req.Year,
		DateOfIssuance: req.DateOfIssuance,
		CertifiedBy:    req.CertifiedBy,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, CertifyResponse{
		Certificate: certificateDTO(result.Certificate),
		Batch:       batchDTO(result.Batch),
	})
}

func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req DebitRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.Engine.Debit(r.Context(), coc.DebitRequest{
		EmployeeID:  coc.EmployeeID(req.EmployeeID),
		Hours:       coc.HoursOf(req.Hours),
		ReferenceID: req.ReferenceID,
		Notes:       req.Notes,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	entries := make([]LedgerEntryDTO, len(result.Entries))
	for i, e := range result.Entries {
		entries[i] = ledgerEntryDTO(e)
	}
	h.respond(w, http.StatusOK, DebitResponse{
		Debited: result.Debited.Float64(),
		Entries: entries,
	})
}

func (h *Handler) ImportHistorical(w http.ResponseWriter, r *http.Request) {
	var req HistoricalImportRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, err := h.Engine.ImportHistorical(r.Context(), coc.HistoricalImportRequest{
		EmployeeID:     coc.EmployeeID(req.EmployeeID),
		Month:          req.Month,
		Year:           req.Year,
		Hours:          coc.HoursOf(req.Hours),
		DateOfIssuance: req.DateOfIssuance,
		Notes:          req.Notes,
		PerformedBy:    req.PerformedBy,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, batchDTO(batch))
}

func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	batch, err := h.Engine.Adjust(r.Context(), coc.AdjustRequest{
		EmployeeID:  coc.EmployeeID(req.EmployeeID),
		BatchID:     coc.BatchID(req.BatchID),
		Hours:       coc.HoursOf(req.Hours),
		Notes:       req.Notes,
		PerformedBy: req.PerformedBy,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, batchDTO(batch))
}

// =============================================================================
// ADMIN
// =============================================================================

func (h *Handler) GetUncertified(w http.ResponseWriter, r *http.Request) {
	periods, stats, err := h.Engine.Uncertified(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]UncertifiedPeriodDTO, len(periods))
	for i, p := range periods {
		out[i] = UncertifiedPeriodDTO{
			EmployeeID:   string(p.EmployeeID),
			EmployeeName: p.EmployeeName,
			Month:        p.Month,
			Year:         p.Year,
			Entries:      p.Entries,
			TotalHours:   p.TotalHours.Float64(),
		}
	}
	h.respond(w, http.StatusOK, UncertifiedResponse{
		Periods:    out,
		Employees:  stats.Employees,
		TotalHours: stats.TotalHours.Float64(),
	})
}

func (h *Handler) ExpireSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if !h.decode(w, r, &req) {
		return
	}
	var asOf coc.Date
	if req.AsOf == "" {
		settings, err := h.Engine.Config().Load(r.Context())
		if err != nil {
			h.fail(w, err)
			return
		}
		asOf = coc.DateOf(time.Now(), settings.Location)
	} else {
		var err error
		asOf, err = coc.ParseDate(req.AsOf)
		if err != nil {
			h.respond(w, http.StatusBadRequest, ErrorResponse{
				Kind: string(coc.KindValidation), Message: err.Error()})
			return
		}
	}
	result, err := h.Engine.ExpireSweep(r.Context(), asOf, req.PerformedBy)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, SweepResponse{
		BatchesExpired: result.BatchesExpired,
		HoursForfeited: result.HoursForfeited.Float64(),
	})
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	net, err := h.Engine.ReconcileBalance(r.Context(), coc.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"consistent": true, "activeHours": net.Float64()})
}

func (h *Handler) Recover(w http.ResponseWriter, r *http.Request) {
	report, err := h.Engine.Recover(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, report)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year, ok := h.yearParam(w, r)
	if !ok {
		return
	}
	if year == 0 {
		year = time.Now().Year()
	}
	holidays, err := h.Engine.Holidays().ByYear(r.Context(), year)
	if err != nil {
		h.fail(w, err)
		return
	}
	out := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		out[i] = HolidayDTO{
			ID: string(hd.ID), Name: hd.Name, Date: hd.Date.ISO(), Year: hd.Year, Type: string(hd.Type)}
	}
	h.respond(w, http.StatusOK, out)
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if !h.decode(w, r, &req) {
		return
	}
	date, err := coc.ParseDate(req.Date)
	if err != nil {
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: err.Error()})
		return
	}
	hType := coc.HolidayType(req.Type)
	if hType == "" {
		hType = coc.HolidayRegular
	}
	entry := coc.HolidayEntry{
		ID:   coc.HolidayID(uuid.NewString()),
		Name: req.Name,
		Date: date,
		Year: date.Year,
		Type: hType,
	}
	if err := h.Engine.Holidays().Put(r.Context(), entry); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusCreated, HolidayDTO{
		ID: string(entry.ID), Name: entry.Name, Date: entry.Date.ISO(), Year: entry.Year, Type: string(entry.Type)})
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Holidays().Delete(r.Context(), coc.HolidayID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusNoContent, nil)
}

// =============================================================================
// CONFIG AND LIBRARIES
// =============================================================================

func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Engine.Config().Load(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"weekendDays":               settings.WeekendCSV(),
		"monthlyCapHours":           settings.MonthlyCap.Float64(),
		"totalCapHours":             settings.TotalCap.Float64(),
		"certificateValidityMonths": settings.CertificateValidityMonths,
		"timeZone":                  settings.Location.String(),
	})
}

func (h *Handler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var req SetConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		h.respond(w, http.StatusBadRequest, ErrorResponse{
			Kind: string(coc.KindValidation), Message: "key is required"})
		return
	}
	if err := h.Engine.Config().Set(r.Context(), req.Key, req.Value, req.Hint); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{"key": req.Key, "value": req.Value})
}

func (h *Handler) GetLibrary(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.Libraries().Get(r.Context(), chi.URLParam(r, "category"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) SetLibrary(w http.ResponseWriter, r *http.Request) {
	var req SetLibraryRequest
	if !h.decode(w, r, &req) {
		return
	}
	category := chi.URLParam(r, "category")
	if err := h.Engine.Libraries().Put(r.Context(), category, req.Items); err != nil {
		h.fail(w, err)
		return
	}
	h.respond(w, http.StatusOK, map[string]any{"category": category, "items": req.Items})
}
