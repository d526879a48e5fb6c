package coc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/govhr/coc-engine/coc"
	"github.com/govhr/coc-engine/docstore/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// testClock is a fixed instant all engine tests run at: April 1st 2025,
// 10:00 UTC (evening in Manila, still April 1st).
var testClock = time.Date(2025, time.April, 1, 10, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T) (*coc.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	engine := coc.New(store, coc.WithClock(func() time.Time { return testClock }))
	return engine, store
}

func seedEmployee(t *testing.T, engine *coc.Engine, id string) coc.Employee {
	t.Helper()
	e := coc.Employee{
		ID:        coc.EmployeeID(id),
		FirstName: "Maria",
		LastName:  "Reyes",
		Status:    coc.EmployeeActive,
		Email:     id + "@office.gov.ph",
		CreatedAt: testClock,
		UpdatedAt: testClock,
	}
	require.NoError(t, engine.Employees().Create(context.Background(), e))
	return e
}

func seedHoliday(t *testing.T, engine *coc.Engine, name, date string) {
	t.Helper()
	d, err := coc.ParseDate(date)
	require.NoError(t, err)
	require.NoError(t, engine.Holidays().Put(context.Background(), coc.HolidayEntry{
		ID:   coc.HolidayID("hol-" + date),
		Name: name,
		Date: d,
		Year: d.Year,
		Type: coc.HolidayRegular,
	}))
}

// entry builds one punch entry for a logging request.
func entry(date, amIn, amOut, pmIn, pmOut string) coc.LogEntryInput {
	return coc.LogEntryInput{Date: date, AMIn: amIn, AMOut: amOut, PMIn: pmIn, PMOut: pmOut}
}

// fullOffDay is a complete weekend/holiday shift: 08:00-12:00 + 13:00-17:00.
func fullOffDay(date string) coc.LogEntryInput {
	return entry(date, "8:00 AM", "12:00 PM", "1:00 PM", "5:00 PM")
}

func logFor(employee, month string, year int, entries ...coc.LogEntryInput) coc.LogOvertimeRequest {
	return coc.LogOvertimeRequest{
		EmployeeID: coc.EmployeeID(employee),
		Month:      month,
		Year:       year,
		LoggedBy:   "test-clerk",
		Entries:    entries,
	}
}

func hours(v float64) coc.Hours { return coc.HoursOf(v) }
