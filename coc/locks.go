/*
locks.go - Advisory per-employee locks and write intents

PURPOSE:
  Mutations that read-check-write an employee's records (logging,
  certification, debit) serialize on an advisory lock document in the
  locks collection. Acquisition is a Create (atomic: first writer wins);
  a stale lock left by a crashed writer is stolen with a compare-and-set
  on its token. Release is a compare-and-set delete guard: a holder that
  lost its lock to a steal must not release the thief's.

  Write intents record "n documents are about to be written under
  correlation id X" before a multi-document batch write, and are removed
  after read-back verification. The recovery scan compensates any intent
  whose writes did not all land.

SEE ALSO:
  - recovery.go: consumes stale intents
*/
package coc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/govhr/coc-engine/docstore"
)

// ErrLockHeld is returned when the scope is locked by another writer and
// the lock is not stale. Callers surface it as StoreUnavailable so
// clients retry.
var ErrLockHeld = errors.New("lock held")

const defaultLockTTL = 30 * time.Second

// Lease is a held advisory lock. The token fences the release: only the
// acquisition that created the lock document may remove it.
type Lease struct {
	Scope string
	Token string
}

type LockManager struct {
	store docstore.Store
	now   func() time.Time
	ttl   time.Duration
}

func NewLockManager(store docstore.Store, now func() time.Time) *LockManager {
	return &LockManager{store: store, now: now, ttl: defaultLockTTL}
}

// EmployeeScope is the lock scope serializing all mutations of one
// employee's logs, batches, and ledger.
func EmployeeScope(id EmployeeID) string { return "employee/" + string(id) }

// Acquire takes the lock or fails fast with ErrLockHeld. A lock past its
// TTL is stolen via compare-and-set on the previous token.
func (m *LockManager) Acquire(ctx context.Context, scope, owner string) (Lease, error) {
	token := uuid.NewString()
	fields := docstore.Fields{
		fLockOwner:   owner,
		fLockToken:   token,
		fLockExpires: m.now().Add(m.ttl),
	}

	err := m.store.Create(ctx, colLocks, scope, fields)
	if err == nil {
		return Lease{Scope: scope, Token: token}, nil
	}
	if !errors.Is(err, docstore.ErrExists) {
		return Lease{}, storeErr(err)
	}

	// Held. Steal only if expired, fencing on the holder's token.
	doc, err := m.store.Get(ctx, colLocks, scope)
	if errors.Is(err, docstore.ErrNotFound) {
		// Released between Create and Get; one retry.
		if err := m.store.Create(ctx, colLocks, scope, fields); err != nil {
			if errors.Is(err, docstore.ErrExists) {
				return Lease{}, fmt.Errorf("scope %s: %w", scope, ErrLockHeld)
			}
			return Lease{}, storeErr(err)
		}
		return Lease{Scope: scope, Token: token}, nil
	}
	if err != nil {
		return Lease{}, storeErr(err)
	}

	expires, _ := doc.Fields[fLockExpires].(time.Time)
	if s, ok := doc.Fields[fLockExpires].(string); ok {
		if t, perr := time.Parse(time.RFC3339Nano, s); perr == nil {
			expires = t
		}
	}
	if !m.now().After(expires) {
		return Lease{}, fmt.Errorf("scope %s: %w", scope, ErrLockHeld)
	}

	prevToken, _ := doc.Fields[fLockToken].(string)
	err = m.store.UpdateIf(ctx, colLocks, scope, fields, docstore.Fields{fLockToken: prevToken})
	if errors.Is(err, docstore.ErrCASMismatch) || errors.Is(err, docstore.ErrNotFound) {
		return Lease{}, fmt.Errorf("scope %s: %w", scope, ErrLockHeld)
	}
	if err != nil {
		return Lease{}, storeErr(err)
	}
	return Lease{Scope: scope, Token: token}, nil
}

// Release removes the lock if the lease still owns it. A lease that was
// stolen releases nothing; that is not an error.
func (m *LockManager) Release(ctx context.Context, lease Lease) error {
	doc, err := m.store.Get(ctx, colLocks, lease.Scope)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}
	if token, _ := doc.Fields[fLockToken].(string); token != lease.Token {
		return nil
	}
	err = m.store.Delete(ctx, colLocks, lease.Scope)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return storeErr(err)
}

// =============================================================================
// WRITE INTENTS
// =============================================================================

// IntentStore persists batch-write intents keyed by correlation id.
type IntentStore struct {
	store docstore.Store
}

func NewIntentStore(store docstore.Store) *IntentStore {
	return &IntentStore{store: store}
}

func (s *IntentStore) Put(ctx context.Context, correlationID string, expectedCount int) error {
	return storeErr(s.store.Upsert(ctx, colIntents, correlationID, docstore.Fields{
		fIntentCount: int64(expectedCount),
	}))
}

func (s *IntentStore) Clear(ctx context.Context, correlationID string) error {
	err := s.store.Delete(ctx, colIntents, correlationID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	return storeErr(err)
}

// All returns every outstanding intent (correlation id -> expected count).
func (s *IntentStore) All(ctx context.Context) (map[string]int, error) {
	docs, err := s.store.GetAll(ctx, colIntents, 10000)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make(map[string]int, len(docs))
	for _, doc := range docs {
		d := newDecoder(colIntents, doc)
		out[doc.ID] = int(d.int64Field(fIntentCount))
		if d.err != nil {
			return nil, d.err
		}
	}
	return out, nil
}
