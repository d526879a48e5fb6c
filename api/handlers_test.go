/*
handlers_test.go - HTTP surface tests

PURPOSE:
  Drives the full router over an in-memory store: status mapping, JSON
  shapes, and the main logging -> certification -> debit flow.
*/
package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/coc-engine/coc"
	"github.com/govhr/coc-engine/docstore/memory"
)

var apiClock = time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	engine := coc.New(memory.New(), coc.WithClock(func() time.Time { return apiClock }))
	return NewRouter(NewHandler(engine, zerolog.Nop()))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), "body: %s", rec.Body.String())
	return out
}

func createEmployee(t *testing.T, router http.Handler, id string) {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/employees", CreateEmployeeRequest{
		ID: id, FirstName: "Maria", LastName: "Reyes", Email: id + "@office.gov.ph",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// logMarch posts a single full Saturday (12.0 credit hours).
func logMarch(t *testing.T, router http.Handler, id string) LogOvertimeResponse {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/overtime", LogOvertimeRequest{
		EmployeeID: id, Month: "March", Year: 2025, LoggedBy: "clerk",
		Entries: []LogEntryRequest{
			{Date: "2025-03-15", AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[LogOvertimeResponse](t, rec)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestEmployeeCRUD(t *testing.T) {
	// GIVEN: A created employee
	router := newTestRouter(t)
	createEmployee(t, router, "E1")

	// WHEN/THEN: Get returns the full name and Active status
	rec := doJSON(t, router, http.MethodGet, "/api/employees/E1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emp := decodeBody[EmployeeDTO](t, rec)
	assert.Equal(t, "Maria Reyes", emp.FullName)
	assert.Equal(t, "Active", emp.Status)

	// WHEN/THEN: A partial update touches only the provided fields
	rec = doJSON(t, router, http.MethodPut, "/api/employees/E1", UpdateEmployeeRequest{
		Position: "Administrative Officer III",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	emp = decodeBody[EmployeeDTO](t, rec)
	assert.Equal(t, "Administrative Officer III", emp.Position)
	assert.Equal(t, "Maria", emp.FirstName, "unset fields keep their values")

	// WHEN/THEN: Delete is a soft delete
	rec = doJSON(t, router, http.MethodDelete, "/api/employees/E1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/employees/E1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	emp = decodeBody[EmployeeDTO](t, rec)
	assert.Equal(t, "Inactive", emp.Status)
}

func TestGetEmployee_NotFound(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/api/employees/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "NotFound", body.Kind)
}

func TestCreateEmployee_MissingNameIs400(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/employees", CreateEmployeeRequest{ID: "E1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "ValidationError", body.Kind)
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestLogOvertime_EndToEnd(t *testing.T) {
	// GIVEN: An employee
	router := newTestRouter(t)
	createEmployee(t, router, "E1")

	// WHEN: Logging a full Saturday
	result := logMarch(t, router, "E1")

	// THEN: 8 worked hours at the off-day rate
	assert.Equal(t, 1, result.EntriesLogged)
	assert.Equal(t, 12.0, result.TotalCreditHours)
	assert.NotEmpty(t, result.CorrelationID)
	assert.Empty(t, result.SkippedDuplicates)

	// AND: The log is visible and uncertified
	rec := doJSON(t, router, http.MethodGet, "/api/employees/E1/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]OvertimeLogDTO](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "Weekend", logs[0].DayType)
	assert.Equal(t, "Uncertified", logs[0].Status)
	assert.Empty(t, logs[0].ValidUntil)
}

func TestLogOvertime_ValidationIs400(t *testing.T) {
	router := newTestRouter(t)
	createEmployee(t, router, "E1")

	rec := doJSON(t, router, http.MethodPost, "/api/overtime", LogOvertimeRequest{
		EmployeeID: "E1", Month: "Smarch", Year: 2025, LoggedBy: "clerk",
		Entries: []LogEntryRequest{{Date: "2025-03-15"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "ValidationError", body.Kind)
}

func TestBadYearQueryIs400(t *testing.T) {
	// GIVEN: An employee with a logged month
	router := newTestRouter(t)
	createEmployee(t, router, "E1")
	logMarch(t, router, "E1")

	// WHEN/THEN: a non-numeric year is rejected on both year-scoped reads
	for _, path := range []string{
		"/api/employees/E1/progress?month=March&year=abc",
		"/api/employees/E1/certified-months?year=abc",
		"/api/holidays?year=abc",
	} {
		rec := doJSON(t, router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
		body := decodeBody[ErrorResponse](t, rec)
		assert.Equal(t, "ValidationError", body.Kind, path)
	}

	// AND: a well-formed year still works
	rec := doJSON(t, router, http.MethodGet,
		"/api/employees/E1/certified-months?year=2025", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogOvertime_MalformedJSONIs400(t *testing.T) {
	router := newTestRouter(t)
	req := httptest.NewRequest(http.MethodPost, "/api/overtime", bytes.NewBufferString("{nope"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogOvertime_CapExceededIs422(t *testing.T) {
	// GIVEN: Four full weekends in one request (48.0 hours against a 40-hour cap)
	router := newTestRouter(t)
	createEmployee(t, router, "E1")

	entries := []LogEntryRequest{}
	for _, d := range []string{"2025-03-01", "2025-03-02", "2025-03-08", "2025-03-09"} {
		entries = append(entries, LogEntryRequest{
			Date: d, AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM",
		})
	}
	rec := doJSON(t, router, http.MethodPost, "/api/overtime", LogOvertimeRequest{
		EmployeeID: "E1", Month: "March", Year: 2025, LoggedBy: "clerk", Entries: entries,
	})

	// THEN: The whole batch is rejected with the cap kind
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "CapExceeded/Monthly", body.Kind)
}

// =============================================================================
// CERTIFICATION AND CREDITS
// =============================================================================

func TestCertifyDebitBalanceFlow(t *testing.T) {
	// GIVEN: A logged March
	router := newTestRouter(t)
	createEmployee(t, router, "E1")
	logMarch(t, router, "E1")

	// WHEN: Certifying the period
	rec := doJSON(t, router, http.MethodPost, "/api/certifications", CertifyRequest{
		EmployeeID: "E1", Month: "March", Year: 2025,
		DateOfIssuance: "2025-04-01", CertifiedBy: "chief",
	})

	// THEN: 201 with the certificate and one-year validity
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	cert := decodeBody[CertifyResponse](t, rec)
	assert.Equal(t, 12.0, cert.Certificate.TotalHours)
	assert.Equal(t, "2026-03-31", cert.Certificate.ValidUntil)
	assert.Equal(t, "Active", cert.Batch.Status)

	// AND: A replay is a 409, not a second certification
	rec = doJSON(t, router, http.MethodPost, "/api/certifications", CertifyRequest{
		EmployeeID: "E1", Month: "March", Year: 2025,
		DateOfIssuance: "2025-04-01", CertifiedBy: "chief",
	})
	require.Equal(t, http.StatusConflict, rec.Code)
	conflict := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Conflict/AlreadyExists", conflict.Kind)

	// WHEN: Debiting part of the batch
	rec = doJSON(t, router, http.MethodPost, "/api/credits/debit", DebitRequest{
		EmployeeID: "E1", Hours: 5.0, ReferenceID: "LEAVE-1", PerformedBy: "hr",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	debit := decodeBody[DebitResponse](t, rec)
	assert.Equal(t, 5.0, debit.Debited)
	require.Len(t, debit.Entries, 1)

	// THEN: The balance reflects the usage
	rec = doJSON(t, router, http.MethodGet, "/api/employees/E1/balance?asOf=2025-04-01", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[BalanceDTO](t, rec)
	assert.Equal(t, 7.0, balance.Active)
	assert.Equal(t, 5.0, balance.Used)
	assert.Equal(t, 12.0, balance.TotalEarned)
}

func TestDebit_InsufficientIs422(t *testing.T) {
	router := newTestRouter(t)
	createEmployee(t, router, "E1")

	rec := doJSON(t, router, http.MethodPost, "/api/credits/debit", DebitRequest{
		EmployeeID: "E1", Hours: 1.0, PerformedBy: "hr",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "PreconditionFailed", body.Kind)
}

func TestLogIntoCertifiedPeriodIs409(t *testing.T) {
	// GIVEN: A certified March
	router := newTestRouter(t)
	createEmployee(t, router, "E1")
	logMarch(t, router, "E1")
	rec := doJSON(t, router, http.MethodPost, "/api/certifications", CertifyRequest{
		EmployeeID: "E1", Month: "March", Year: 2025,
		DateOfIssuance: "2025-04-01", CertifiedBy: "chief",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: Logging more overtime into it
	rec = doJSON(t, router, http.MethodPost, "/api/overtime", LogOvertimeRequest{
		EmployeeID: "E1", Month: "March", Year: 2025, LoggedBy: "clerk",
		Entries: []LogEntryRequest{
			{Date: "2025-03-16", AMIn: "8:00 AM", AMOut: "12:00 PM"},
		},
	})

	// THEN: The period is locked
	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "Conflict/PeriodLocked", body.Kind)
}

func TestImportHistorical_Is201(t *testing.T) {
	router := newTestRouter(t)
	createEmployee(t, router, "E1")

	rec := doJSON(t, router, http.MethodPost, "/api/credits/import", HistoricalImportRequest{
		EmployeeID: "E1", Month: "December", Year: 2024, Hours: 16.0,
		DateOfIssuance: "2025-01-06", PerformedBy: "hr",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	batch := decodeBody[BatchDTO](t, rec)
	assert.Equal(t, "Historical", batch.SourceType)
	assert.Equal(t, 16.0, batch.RemainingHours)
	assert.Equal(t, "2026-01-05", batch.ValidUntil)
}

// =============================================================================
// OVERVIEWS AND ADMIN
// =============================================================================

func TestUncertifiedOverview(t *testing.T) {
	router := newTestRouter(t)
	createEmployee(t, router, "E1")
	logMarch(t, router, "E1")

	rec := doJSON(t, router, http.MethodGet, "/api/uncertified", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[UncertifiedResponse](t, rec)
	require.Len(t, body.Periods, 1)
	assert.Equal(t, "March", body.Periods[0].Month)
	assert.Equal(t, 12.0, body.Periods[0].TotalHours)
	assert.Equal(t, 1, body.Employees)
}

func TestReconcileEndpoint(t *testing.T) {
	router := newTestRouter(t)
	createEmployee(t, router, "E1")
	rec := doJSON(t, router, http.MethodGet, "/api/admin/reconcile/E1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, body["consistent"])
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestHolidayRoundTrip(t *testing.T) {
	router := newTestRouter(t)
	rec := doJSON(t, router, http.MethodPost, "/api/holidays", CreateHolidayRequest{
		Name: "Independence Day", Date: "2025-06-12", Type: "Regular",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[HolidayDTO](t, rec)
	assert.Equal(t, 2025, created.Year)

	rec = doJSON(t, router, http.MethodGet, "/api/holidays?year=2025", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	holidays := decodeBody[[]HolidayDTO](t, rec)
	require.Len(t, holidays, 1)
	assert.Equal(t, "Independence Day", holidays[0].Name)

	rec = doJSON(t, router, http.MethodDelete, "/api/holidays/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
