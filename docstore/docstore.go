/*
Package docstore defines the keyed document store abstraction.

PURPOSE:
  The engine persists everything as documents in named collections:
  employees, overtimeLogs, certificates, creditBatches, ledger, holidays,
  configuration, libraries (plus the infra collections locks and intents).
  This package is the single seam between domain logic and storage. The
  core never sees SQL or a driver type — only collections, document ids,
  and field maps.

KEY TYPES:
  Fields:  map of camelCase field name -> value (string, int64, float64,
           bool, time.Time, []any, nested Fields, nil)
  Doc:     id + fields, as returned by reads
  Filter:  single-field predicate for Where (==, !=, <, <=, >, >=)
  Write:   one operation inside an atomic BatchWrite

ATOMICITY:
  BatchWrite is all-or-nothing. Certification relies on this: the log
  updates, the credit batch, the ledger entry, and the certificate record
  must land together or not at all.

COMPARE-AND-SET:
  Create fails when the id already exists (atomic acquire). UpdateIf
  applies a patch only when the expected fields still match (atomic
  steal/release). Advisory locks are built from exactly these two calls.

IMPLEMENTATIONS:
  - docstore/memory: in-memory, for tests and dev
  - store/sqlite:    production, JSON documents over SQLite

SEE ALSO:
  - coc/repo.go: typed repositories translating entities to Fields
*/
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrNotFound is returned when a document id does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrExists is returned by Create when the id is already taken.
	ErrExists = errors.New("document already exists")

	// ErrCASMismatch is returned by UpdateIf when the expected fields
	// no longer match the stored document.
	ErrCASMismatch = errors.New("compare-and-set mismatch")

	// ErrUnavailable wraps transport failures and deadline expiry.
	// Callers treat it as retriable; no partial state is committed.
	ErrUnavailable = errors.New("store unavailable")
)

// UnavailableError carries the underlying transport failure.
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return ErrUnavailable }

// =============================================================================
// DOCUMENTS
// =============================================================================

// Fields is a document body keyed by field name.
type Fields map[string]any

// Clone returns a shallow copy one level deep — enough for the engine,
// which never mutates nested values in place.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Doc is a stored document.
type Doc struct {
	ID     string
	Fields Fields
}

// =============================================================================
// PREDICATES
// =============================================================================

// Op is a comparison operator for Where queries.
type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Filter is a single-field predicate.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// =============================================================================
// BATCH WRITES
// =============================================================================

// WriteKind discriminates operations inside a BatchWrite.
type WriteKind string

const (
	WriteCreate WriteKind = "create" // fails if id exists
	WriteUpdate WriteKind = "update" // partial patch, fails if id missing
	WriteUpsert WriteKind = "upsert" // full replace, creates if missing
	WriteDelete WriteKind = "delete" // removes, no-op if missing
)

// Write is one operation inside an atomic batch.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Fields     Fields // nil for WriteDelete
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the keyed document store the engine runs on.
//
// All reads return copies; mutating a returned Doc never changes stored
// state. All calls honor ctx deadlines and surface ErrUnavailable on
// transport failure without committing partial state.
type Store interface {
	// Get returns the document with the given id. ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (Doc, error)

	// GetAll returns up to limit documents from a collection. A limit is
	// required: unbounded collection scans are not part of the contract.
	GetAll(ctx context.Context, collection string, limit int) ([]Doc, error)

	// Where returns documents matching a single-field predicate.
	Where(ctx context.Context, collection, field string, op Op, value any) ([]Doc, error)

	// Match returns documents matching all equality criteria (AND).
	Match(ctx context.Context, collection string, criteria Fields) ([]Doc, error)

	// Create stores a new document. ErrExists if the id is taken.
	Create(ctx context.Context, collection, id string, fields Fields) error

	// Update applies a partial patch. ErrNotFound if absent.
	Update(ctx context.Context, collection, id string, patch Fields) error

	// UpdateIf applies a patch only when every expected field still holds
	// its expected value. ErrCASMismatch otherwise, ErrNotFound if absent.
	UpdateIf(ctx context.Context, collection, id string, patch, expect Fields) error

	// Upsert stores a document, replacing any existing one.
	Upsert(ctx context.Context, collection, id string, fields Fields) error

	// Delete removes a document. Missing ids are not an error.
	Delete(ctx context.Context, collection, id string) error

	// DeleteMany removes several documents.
	DeleteMany(ctx context.Context, collection string, ids []string) error

	// MaxID returns the largest integer value of idField across the
	// collection, or 0 when the collection is empty.
	MaxID(ctx context.Context, collection, idField string) (int64, error)

	// BatchWrite applies all writes atomically.
	BatchWrite(ctx context.Context, writes []Write) error
}
