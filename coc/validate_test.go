package coc_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/coc-engine/coc"
)

// =============================================================================
// LOGGING - happy paths (accrual through the full stack)
// =============================================================================

func TestLogOvertime_WeekdaySingleSession(t *testing.T) {
	// GIVEN: employee E1 and a Monday shift 8:00-12:00 / 13:00-18:30
	// WHEN: logging March 10 2025
	// THEN: one Uncertified log with 1.5 credit hours

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		entry("2025-03-10", "8:00 AM", "12:00 PM", "1:00 PM", "6:30 PM")))
	require.NoError(t, err)

	assert.Equal(t, 1, result.EntriesLogged)
	assert.True(t, result.TotalCreditHours.Equal(hours(1.5)), "got %s", result.TotalCreditHours)
	assert.Empty(t, result.SkippedDuplicates)
	assert.NotEmpty(t, result.CorrelationID)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, coc.Weekday, logs[0].DayType)
	assert.Equal(t, coc.LogUncertified, logs[0].Status)
	assert.Nil(t, logs[0].ValidUntil)
	assert.Equal(t, "March", logs[0].Month)
}

func TestLogOvertime_WeekendFullDay(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)
	assert.True(t, result.TotalCreditHours.Equal(hours(12.0)), "got %s", result.TotalCreditHours)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, coc.Weekend, logs[0].DayType)
}

func TestLogOvertime_HolidayOverridesWeekend(t *testing.T) {
	// GIVEN: March 15 2025 (Saturday) configured as a holiday
	// WHEN: logging the same punches as the weekend case
	// THEN: day type is Holiday, credit unchanged at 12.0

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")
	seedHoliday(t, engine, "Foundation Day", "2025-03-15")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)
	assert.True(t, result.TotalCreditHours.Equal(hours(12.0)))

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Equal(t, coc.Holiday, logs[0].DayType)
}

// =============================================================================
// VALIDATION CASCADE
// =============================================================================

func TestLogOvertime_SchemaErrorsComeFirst(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	// Missing employee id beats everything else.
	_, err := engine.LogOvertime(ctx, logFor("", "March", 2025, fullOffDay("2025-03-15")))
	var fieldErr *coc.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, coc.MissingField, fieldErr.Subkind)

	// Bad month name.
	_, err = engine.LogOvertime(ctx, logFor("E1", "Mar", 2025, fullOffDay("2025-03-15")))
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, coc.BadDate, fieldErr.Subkind)

	// Bad time format.
	_, err = engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		entry("2025-03-15", "25:00 AM", "12:00 PM", "", "")))
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, coc.BadTime, fieldErr.Subkind)
	assert.Equal(t, coc.KindValidation, coc.KindOf(err))
}

func TestLogOvertime_UnknownEmployee(t *testing.T) {
	engine, _ := newTestEngine(t)
	_, err := engine.LogOvertime(context.Background(),
		logFor("ghost", "March", 2025, fullOffDay("2025-03-15")))
	assert.ErrorIs(t, err, coc.ErrNotFound)
}

func TestLogOvertime_MonthMismatchRejected(t *testing.T) {
	// An April date in a March request fails the whole batch.
	engine, _ := newTestEngine(t)
	seedEmployee(t, engine, "E1")

	_, err := engine.LogOvertime(context.Background(), logFor("E1", "March", 2025,
		entry("2025-04-05", "8:00 AM", "12:00 PM", "", "")))
	var fieldErr *coc.FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, coc.MonthMismatch, fieldErr.Subkind)
}

func TestLogOvertime_DuplicateDatesSkippedNotFatal(t *testing.T) {
	// GIVEN: March 15 already logged
	// WHEN: resubmitting March 15 together with a new March 16
	// THEN: the duplicate is reported and skipped; March 16 is logged

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		fullOffDay("2025-03-15"), fullOffDay("2025-03-16")))
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntriesLogged)
	require.Len(t, result.SkippedDuplicates, 1)
	assert.Equal(t, "2025-03-15", result.SkippedDuplicates[0].ISO())

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestLogOvertime_AllDuplicatesIsValidationError(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)

	_, err = engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	assert.ErrorIs(t, err, coc.ErrValidation)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, logs, 1, "replay must not create anything")
}

func TestLogOvertime_DuplicateWithinRequestSkipped(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		fullOffDay("2025-03-15"), fullOffDay("2025-03-15")))
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntriesLogged)
	assert.Len(t, result.SkippedDuplicates, 1)
}

// =============================================================================
// PERIOD LOCKS
// =============================================================================

func TestLogOvertime_CertifiedPeriodLocked(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)
	_, err = engine.Certify(ctx, coc.CertifyRequest{
		EmployeeID: "E1", Month: "March", Year: 2025,
		DateOfIssuance: "2025-04-01", CertifiedBy: "chief",
	})
	require.NoError(t, err)

	_, err = engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-16")))
	var lockErr *coc.PeriodLockedError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, coc.LockCertified, lockErr.Flavor)
	assert.ErrorIs(t, err, coc.ErrPeriodLocked)
}

func TestLogOvertime_HistoricalImportLocksPeriod(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.ImportHistorical(ctx, coc.HistoricalImportRequest{
		EmployeeID: "E1", Month: "February", Year: 2025,
		Hours: hours(10), DateOfIssuance: "2025-03-01", PerformedBy: "admin",
	})
	require.NoError(t, err)

	_, err = engine.LogOvertime(ctx, logFor("E1", "February", 2025,
		entry("2025-02-10", "8:00 AM", "12:00 PM", "1:00 PM", "7:00 PM")))
	var lockErr *coc.PeriodLockedError
	require.ErrorAs(t, err, &lockErr)
	assert.Equal(t, coc.LockHistorical, lockErr.Flavor)
}

// =============================================================================
// CAPS
// =============================================================================

func TestLogOvertime_MonthlyCapRejectsWholeBatch(t *testing.T) {
	// GIVEN: 38.0 hours already logged in March (three full weekends +
	//        one clamped weekday)
	// WHEN: a new batch computing 3.0 arrives
	// THEN: CapExceeded/Monthly with current=38, delta=3, limit=40 and
	//       zero new logs persisted

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		fullOffDay("2025-03-01"), fullOffDay("2025-03-02"), fullOffDay("2025-03-08"), // 36.0
		entry("2025-03-10", "", "", "1:00 PM", "7:00 PM"), // 2.0 clamped window
	))
	require.NoError(t, err)

	_, err = engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		entry("2025-03-11", "", "", "1:00 PM", "6:30 PM"), // 1.5
		entry("2025-03-12", "", "", "1:00 PM", "6:30 PM"), // 1.5
	))
	var capErr *coc.CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, coc.CapMonthly, capErr.Scope)
	assert.True(t, capErr.Current.Equal(hours(38.0)), "current %s", capErr.Current)
	assert.True(t, capErr.Delta.Equal(hours(3.0)), "delta %s", capErr.Delta)
	assert.True(t, capErr.Limit.Equal(hours(40.0)))
	assert.Equal(t, coc.KindCapExceededMonthly, coc.KindOf(err))

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, logs, 4, "rejected batch must persist nothing")
}

func TestLogOvertime_TotalCapCountsActiveAndUncertified(t *testing.T) {
	// GIVEN: a 118-hour historical batch still active
	// WHEN: logging 3.0 more
	// THEN: CapExceeded/Total (118 + 3 > 120)

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.ImportHistorical(ctx, coc.HistoricalImportRequest{
		EmployeeID: "E1", Month: "January", Year: 2025,
		Hours: hours(118), DateOfIssuance: "2025-02-01", PerformedBy: "admin",
	})
	require.NoError(t, err)

	_, err = engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		entry("2025-03-11", "", "", "1:00 PM", "6:30 PM"),
		entry("2025-03-12", "", "", "1:00 PM", "6:30 PM"),
	))
	var capErr *coc.CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, coc.CapTotal, capErr.Scope)
	assert.Equal(t, coc.KindCapExceededTotal, coc.KindOf(err))
}

// =============================================================================
// LOG MAINTENANCE
// =============================================================================

func TestUpdateLog_RecomputesCredit(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		entry("2025-03-10", "", "", "1:00 PM", "6:30 PM")))
	require.NoError(t, err)

	updated, err := engine.UpdateLog(ctx, result.LogIDs[0],
		coc.Punches{PMIn: "1:00 PM", PMOut: "7:00 PM"}, "clerk")
	require.NoError(t, err)
	assert.True(t, updated.COCEarned.Equal(hours(2.0)), "got %s", updated.COCEarned)
}

func TestUpdateLog_RevalidatesTotalCap(t *testing.T) {
	// GIVEN: 110.0 active historical hours plus a 6.0 Saturday-morning log
	// WHEN: editing the log up to a full 12.0 day (monthly cap untouched)
	// THEN: the total cap rejects the edit and the log keeps its punches

	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	_, err := engine.ImportHistorical(ctx, coc.HistoricalImportRequest{
		EmployeeID: "E1", Month: "December", Year: 2024,
		Hours: hours(110), DateOfIssuance: "2025-01-06", PerformedBy: "admin",
	})
	require.NoError(t, err)

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		entry("2025-03-15", "8:00 AM", "12:00 PM", "", "")))
	require.NoError(t, err)
	require.Len(t, result.LogIDs, 1)

	_, err = engine.UpdateLog(ctx, result.LogIDs[0], coc.Punches{
		AMIn: "8:00 AM", AMOut: "12:00 PM", PMIn: "1:00 PM", PMOut: "5:00 PM",
	}, "clerk")
	var capErr *coc.CapExceededError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, coc.CapTotal, capErr.Scope)
	assert.True(t, capErr.Current.Equal(hours(110)), "got %s", capErr.Current)
	assert.True(t, capErr.Delta.Equal(hours(12.0)), "got %s", capErr.Delta)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.True(t, logs[0].COCEarned.Equal(hours(6.0)), "edit must not persist")
}

func TestDeleteLog_OnlyUncertified(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)
	_, err = engine.Certify(ctx, coc.CertifyRequest{
		EmployeeID: "E1", Month: "March", Year: 2025,
		DateOfIssuance: "2025-04-01", CertifiedBy: "chief",
	})
	require.NoError(t, err)

	err = engine.DeleteLog(ctx, result.LogIDs[0], "clerk")
	assert.ErrorIs(t, err, coc.ErrPreconditionFailed)
}

func TestDeleteLog_RemovesUncertified(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)
	require.NoError(t, engine.DeleteLog(ctx, result.LogIDs[0], "clerk"))

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, logs)
}

// =============================================================================
// INACTIVE EMPLOYEES
// =============================================================================

func TestLogOvertime_InactiveEmployeeStillLoggable(t *testing.T) {
	// Soft-deleted employees keep their history and can still have
	// backfill logged (any-status existence check).
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")
	require.NoError(t, engine.Employees().SoftDelete(ctx, "E1", testClock))

	_, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	assert.NoError(t, err)
}
