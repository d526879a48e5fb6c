package coc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govhr/coc-engine/coc"
	"github.com/govhr/coc-engine/docstore"
)

func TestRecover_RollsForwardCompletedIntent(t *testing.T) {
	// GIVEN: a fully written log batch whose intent was never cleared
	//        (crash between write and clear)
	// WHEN: recovery runs
	// THEN: the intent is cleared and the logs survive

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		fullOffDay("2025-03-15"), fullOffDay("2025-03-16")))
	require.NoError(t, err)

	// Re-plant the intent the writer would have cleared.
	require.NoError(t, store.Create(ctx, "intents", result.CorrelationID,
		docstore.Fields{"expectedCount": int64(2)}))

	report, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IntentsCompleted)
	assert.Equal(t, 0, report.IntentsRolledBack)
	assert.Equal(t, 0, report.LogsDeleted)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestRecover_RollsBackPartialBatch(t *testing.T) {
	// GIVEN: an intent expecting 3 logs but only 2 landed
	// WHEN: recovery runs
	// THEN: the partial remainder is deleted and the intent cleared

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		fullOffDay("2025-03-15"), fullOffDay("2025-03-16")))
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, "intents", result.CorrelationID,
		docstore.Fields{"expectedCount": int64(3)}))

	report, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.IntentsRolledBack)
	assert.Equal(t, 2, report.LogsDeleted)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	assert.Empty(t, logs, "partial batch must be gone")

	// The client retry now goes through cleanly, no duplicate skips.
	retry, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025,
		fullOffDay("2025-03-15"), fullOffDay("2025-03-16"), fullOffDay("2025-03-22")))
	require.NoError(t, err)
	assert.Equal(t, 3, retry.EntriesLogged)
	assert.Empty(t, retry.SkippedDuplicates)
}

func TestRecover_RevertsOrphanedActiveLogs(t *testing.T) {
	// An Active log whose period has no certificate is a torn write;
	// recovery reverts it so the period can be certified again.

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	result, err := engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, "overtimeLogs", string(result.LogIDs[0]),
		docstore.Fields{"status": string(coc.LogActive), "validUntil": "2026-03-31"}))

	report, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LogsReverted)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, coc.LogUncertified, logs[0].Status)
	assert.Nil(t, logs[0].ValidUntil)
}

func TestRecover_KeepsActiveLogsWithCertificate(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")
	seedMarchLogs(t, engine)
	_, err := engine.Certify(ctx, coc.CertifyRequest{
		EmployeeID: "E1", Month: "March", Year: 2025,
		DateOfIssuance: "2025-04-01", CertifiedBy: "chief",
	})
	require.NoError(t, err)

	report, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.LogsReverted)

	logs, err := engine.Logs(ctx, "E1")
	require.NoError(t, err)
	for _, l := range logs {
		assert.Equal(t, coc.LogActive, l.Status)
	}
}

func TestRecover_DropsExpiredLocks(t *testing.T) {
	// GIVEN: a lock left behind by a dead writer, past its TTL
	// WHEN: recovery runs
	// THEN: the lock is dropped and the employee is writable again

	engine, store := newTestEngine(t)
	ctx := context.Background()
	seedEmployee(t, engine, "E1")

	stale := testClock.Add(-time.Minute)
	require.NoError(t, store.Create(ctx, "locks", "employee/E1", docstore.Fields{
		"owner":     "dead-writer",
		"token":     "t-0",
		"expiresAt": stale,
	}))

	report, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.LocksDropped)

	_, err = engine.LogOvertime(ctx, logFor("E1", "March", 2025, fullOffDay("2025-03-15")))
	assert.NoError(t, err)
}

func TestRecover_LiveLockSurvives(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()

	live := testClock.Add(time.Minute)
	require.NoError(t, store.Create(ctx, "locks", "employee/E1", docstore.Fields{
		"owner":     "live-writer",
		"token":     "t-1",
		"expiresAt": live,
	}))

	report, err := engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.LocksDropped)
}

func TestRecover_CleanStoreIsNoop(t *testing.T) {
	engine, _ := newTestEngine(t)
	report, err := engine.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, coc.RecoveryReport{}, report)
}
