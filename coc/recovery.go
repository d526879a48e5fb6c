/*
recovery.go - Startup recovery scan

PURPOSE:
  Puts the store back into a clean state after a crash. Two sweeps:

  1. Intents. A logging batch writes its intent, then its logs, then
     clears the intent. An intent still present at startup means the
     writer died somewhere in between. If every expected log landed the
     write is complete - keep the logs, clear the intent. Otherwise the
     partial remainder is deleted and the intent cleared; the client
     retries the whole batch.

  2. Orphaned Active logs. An Active log whose period has no certificate
     cannot exist after a completed certification (the writes share one
     atomic batch). Any found are reverted to Uncertified so the period
     can be certified again.

  Also drops advisory locks that outlived their TTL.
*/
package coc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/govhr/coc-engine/docstore"
)

type RecoveryReport struct {
	IntentsCompleted  int
	IntentsRolledBack int
	LogsDeleted       int
	LogsReverted      int
	LocksDropped      int
}

// Recover runs the startup recovery scan. Safe to run repeatedly and
// while serving traffic.
func (e *Engine) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport

	intents, err := e.intents.All(ctx)
	if err != nil {
		return report, err
	}
	for correlationID, expected := range intents {
		logs, err := e.logs.ByCorrelation(ctx, correlationID)
		if err != nil {
			return report, err
		}
		if len(logs) == expected {
			// Write completed; the crash hit between write and clear.
			if err := e.intents.Clear(ctx, correlationID); err != nil {
				return report, err
			}
			report.IntentsCompleted++
			continue
		}

		ids := make([]string, len(logs))
		for i, l := range logs {
			ids[i] = string(l.ID)
		}
		if len(ids) > 0 {
			if err := e.store.DeleteMany(ctx, colOvertimeLogs, ids); err != nil {
				return report, storeErr(err)
			}
		}
		if err := e.intents.Clear(ctx, correlationID); err != nil {
			return report, err
		}
		report.IntentsRolledBack++
		report.LogsDeleted += len(ids)
		e.log.Warn().
			Str("correlationId", correlationID).
			Int("expected", expected).
			Int("found", len(logs)).
			Msg("rolled back partial log batch")
	}

	reverted, err := e.revertOrphanedActive(ctx)
	if err != nil {
		return report, err
	}
	report.LogsReverted = reverted

	dropped, err := e.dropStaleLocks(ctx)
	if err != nil {
		return report, err
	}
	report.LocksDropped = dropped

	return report, nil
}

// revertOrphanedActive finds Active logs whose period never got its
// certificate and reverts them to Uncertified.
func (e *Engine) revertOrphanedActive(ctx context.Context) (int, error) {
	active, err := e.logs.ByStatus(ctx, LogActive)
	if err != nil {
		return 0, err
	}

	type key struct {
		id    EmployeeID
		month string
		year  int
	}
	certified := map[key]bool{}
	reverted := 0
	for _, l := range active {
		k := key{id: l.EmployeeID, month: l.Month, year: l.Year}
		if _, checked := certified[k]; !checked {
			cert, err := e.certificates.For(ctx, l.EmployeeID, l.Month, l.Year)
			if err != nil {
				return reverted, err
			}
			certified[k] = cert != nil
		}
		if certified[k] {
			continue
		}
		err := e.store.Update(ctx, colOvertimeLogs, string(l.ID), docstore.Fields{
			fStatus:     string(LogUncertified),
			fValidUntil: nil,
		})
		if err != nil {
			return reverted, storeErr(err)
		}
		reverted++
		e.log.Warn().
			Str("logId", string(l.ID)).
			Str("period", fmt.Sprintf("%s %d", l.Month, l.Year)).
			Msg("reverted orphaned active log")
	}
	return reverted, nil
}

func (e *Engine) dropStaleLocks(ctx context.Context) (int, error) {
	docs, err := e.store.GetAll(ctx, colLocks, 10000)
	if err != nil {
		return 0, storeErr(err)
	}
	now := e.now()
	dropped := 0
	for _, doc := range docs {
		var expires time.Time
		switch v := doc.Fields[fLockExpires].(type) {
		case time.Time:
			expires = v
		case string:
			expires, _ = time.Parse(time.RFC3339Nano, v)
		}
		if expires.IsZero() || now.After(expires) {
			err := e.store.Delete(ctx, colLocks, doc.ID)
			if err != nil && !errors.Is(err, docstore.ErrNotFound) {
				return dropped, storeErr(err)
			}
			dropped++
		}
	}
	return dropped, nil
}
