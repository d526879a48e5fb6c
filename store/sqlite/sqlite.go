/*
Package sqlite provides a SQLite-backed implementation of docstore.Store.

PURPOSE:
  One table holds every collection: documents(collection, id, fields)
  with the fields column as a JSON object. Predicate queries use the
  JSON1 json_extract function so Where/Match filter inside the database,
  not in Go. In production the same patterns apply to PostgreSQL jsonb -
  only minor SQL dialect differences.

ENCODING:
  - strings, bools:   native JSON
  - integers:         JSON numbers (decoded as int64 by the caller)
  - floats:           JSON numbers
  - time.Time:        RFC 3339 strings in UTC (lexicographic order
                      matches instant order, so range predicates work)
  - civil dates:      already ISO strings when they arrive here

ATOMICITY:
  BatchWrite wraps all writes in one database transaction. A failed
  create inside the batch rolls everything back and surfaces
  docstore.ErrExists, which callers use for id-allocation retries.

CONCURRENCY:
  WAL mode plus a sync.RWMutex. SQLite allows one writer at a time; the
  mutex keeps the Go side honest about it.

USAGE:
  store, err := sqlite.New("./data/coc.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - docstore:        interface definition
  - docstore/memory: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/govhr/coc-engine/docstore"
)

// Store implements docstore.Store on SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection sidesteps SQLITE_BUSY under the write mutex.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id         TEXT NOT NULL,
		fields     TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	-- Hot predicates: employeeId equality and per-collection status scans.
	CREATE INDEX IF NOT EXISTS idx_documents_employee
		ON documents(collection, json_extract(fields, '$.employeeId'));
	CREATE INDEX IF NOT EXISTS idx_documents_status
		ON documents(collection, json_extract(fields, '$.status'));
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// FIELD ENCODING
// =============================================================================

// encodeFields renders a Fields map to the stored JSON object. Instants
// become RFC 3339 strings in UTC.
func encodeFields(fields docstore.Fields) (string, error) {
	plain := make(map[string]any, len(fields))
	for k, v := range fields {
		if t, ok := v.(time.Time); ok {
			plain[k] = t.UTC().Format(time.RFC3339Nano)
			continue
		}
		plain[k] = v
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encode fields: %w", err)
	}
	return string(raw), nil
}

// decodeFields parses the stored JSON. Whole numbers come back as int64
// so callers see the integer they wrote.
func decodeFields(raw string) (docstore.Fields, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var plain map[string]any
	if err := dec.Decode(&plain); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	fields := make(docstore.Fields, len(plain))
	for k, v := range plain {
		fields[k] = fromJSONValue(v)
	}
	return fields, nil
}

func fromJSONValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, _ := n.Float64()
		return f
	case []any:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = fromJSONValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = fromJSONValue(item)
		}
		return out
	default:
		return v
	}
}

// encodeFilterValue renders a predicate value the way encodeFields would
// store it, so comparisons hit.
func encodeFilterValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func opSQL(op docstore.Op) (string, error) {
	switch op {
	case docstore.OpEq:
		return "=", nil
	case docstore.OpNeq:
		return "!=", nil
	case docstore.OpLt:
		return "<", nil
	case docstore.OpLte:
		return "<=", nil
	case docstore.OpGt:
		return ">", nil
	case docstore.OpGte:
		return ">=", nil
	default:
		return "", fmt.Errorf("unknown operator %q", op)
	}
}

// =============================================================================
// READS
// =============================================================================

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT fields FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.Doc{}, docstore.ErrNotFound
	}
	if err != nil {
		return docstore.Doc{}, &docstore.UnavailableError{Op: "get", Cause: err}
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return docstore.Doc{}, err
	}
	return docstore.Doc{ID: id, Fields: fields}, nil
}

func (s *Store) GetAll(ctx context.Context, collection string, limit int) ([]docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryDocs(ctx,
		"SELECT id, fields FROM documents WHERE collection = ? ORDER BY id LIMIT ?",
		collection, limit)
}

func (s *Store) Where(ctx context.Context, collection, field string, op docstore.Op, value any) ([]docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cmp, err := opSQL(op)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		"SELECT id, fields FROM documents WHERE collection = ? AND json_extract(fields, '$.%s') %s ? ORDER BY id",
		field, cmp)
	return s.queryDocs(ctx, query, collection, encodeFilterValue(value))
}

func (s *Store) Match(ctx context.Context, collection string, criteria docstore.Fields) ([]docstore.Doc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sb strings.Builder
	sb.WriteString("SELECT id, fields FROM documents WHERE collection = ?")
	args := []any{collection}
	for field, value := range criteria {
		fmt.Fprintf(&sb, " AND json_extract(fields, '$.%s') = ?", field)
		args = append(args, encodeFilterValue(value))
	}
	sb.WriteString(" ORDER BY id")
	return s.queryDocs(ctx, sb.String(), args...)
}

func (s *Store) MaxID(ctx context.Context, collection, idField string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(
		"SELECT COALESCE(MAX(CAST(json_extract(fields, '$.%s') AS INTEGER)), 0) FROM documents WHERE collection = ?",
		idField)
	var max int64
	if err := s.db.QueryRowContext(ctx, query, collection).Scan(&max); err != nil {
		return 0, &docstore.UnavailableError{Op: "maxID", Cause: err}
	}
	return max, nil
}

func (s *Store) queryDocs(ctx context.Context, query string, args ...any) ([]docstore.Doc, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &docstore.UnavailableError{Op: "query", Cause: err}
	}
	defer rows.Close()

	var docs []docstore.Doc
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, &docstore.UnavailableError{Op: "scan", Cause: err}
		}
		fields, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, docstore.Doc{ID: id, Fields: fields})
	}
	return docs, rows.Err()
}

// =============================================================================
// WRITES
// =============================================================================

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) Create(ctx context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createDoc(ctx, s.db, collection, id, fields)
}

func createDoc(ctx context.Context, db execer, collection, id string, fields docstore.Fields) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		"INSERT INTO documents (collection, id, fields) VALUES (?, ?, ?)",
		collection, id, raw)
	if err != nil {
		if isUniqueConstraintError(err) {
			return docstore.ErrExists
		}
		return &docstore.UnavailableError{Op: "create", Cause: err}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, collection, id string, patch docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateDoc(ctx, s.db, collection, id, patch)
}

func updateDoc(ctx context.Context, db execer, collection, id string, patch docstore.Fields) error {
	var raw string
	err := db.QueryRowContext(ctx,
		"SELECT fields FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.ErrNotFound
	}
	if err != nil {
		return &docstore.UnavailableError{Op: "update", Cause: err}
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return err
	}
	for k, v := range patch {
		fields[k] = v
	}
	merged, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		"UPDATE documents SET fields = ? WHERE collection = ? AND id = ?",
		merged, collection, id)
	if err != nil {
		return &docstore.UnavailableError{Op: "update", Cause: err}
	}
	return nil
}

// UpdateIf applies the patch only when every expect field matches the
// stored value. Runs in one transaction so the check and the write are
// a single step.
func (s *Store) UpdateIf(ctx context.Context, collection, id string, patch, expect docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &docstore.UnavailableError{Op: "updateIf", Cause: err}
	}
	defer tx.Rollback()

	var raw string
	err = tx.QueryRowContext(ctx,
		"SELECT fields FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return docstore.ErrNotFound
	}
	if err != nil {
		return &docstore.UnavailableError{Op: "updateIf", Cause: err}
	}

	fields, err := decodeFields(raw)
	if err != nil {
		return err
	}
	for k, want := range expect {
		if !valuesEqual(fields[k], encodeFilterValue(want)) && !valuesEqual(fields[k], want) {
			return docstore.ErrCASMismatch
		}
	}
	for k, v := range patch {
		fields[k] = v
	}
	merged, err := encodeFields(fields)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET fields = ? WHERE collection = ? AND id = ?",
		merged, collection, id); err != nil {
		return &docstore.UnavailableError{Op: "updateIf", Cause: err}
	}
	return tx.Commit()
}

func (s *Store) Upsert(ctx context.Context, collection, id string, fields docstore.Fields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, fields) VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET fields = excluded.fields`,
		collection, id, raw)
	if err != nil {
		return &docstore.UnavailableError{Op: "upsert", Cause: err}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteDoc(ctx, s.db, collection, id)
}

func deleteDoc(ctx context.Context, db execer, collection, id string) error {
	// Missing ids are not an error, matching the memory store.
	_, err := db.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND id = ?",
		collection, id)
	if err != nil {
		return &docstore.UnavailableError{Op: "delete", Cause: err}
	}
	return nil
}

func (s *Store) DeleteMany(ctx context.Context, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &docstore.UnavailableError{Op: "deleteMany", Cause: err}
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?",
			collection, id); err != nil {
			return &docstore.UnavailableError{Op: "deleteMany", Cause: err}
		}
	}
	return tx.Commit()
}

// BatchWrite applies all writes in one database transaction.
func (s *Store) BatchWrite(ctx context.Context, writes []docstore.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &docstore.UnavailableError{Op: "batchWrite", Cause: err}
	}
	defer tx.Rollback()

	for _, w := range writes {
		switch w.Kind {
		case docstore.WriteCreate:
			err = createDoc(ctx, tx, w.Collection, w.ID, w.Fields)
		case docstore.WriteUpdate:
			err = updateDoc(ctx, tx, w.Collection, w.ID, w.Fields)
		case docstore.WriteUpsert:
			err = upsertDoc(ctx, tx, w.Collection, w.ID, w.Fields)
		case docstore.WriteDelete:
			err = deleteDoc(ctx, tx, w.Collection, w.ID)
		default:
			err = fmt.Errorf("unknown write kind %q", w.Kind)
		}
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func upsertDoc(ctx context.Context, db execer, collection, id string, fields docstore.Fields) error {
	raw, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, fields) VALUES (?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET fields = excluded.fields`,
		collection, id, raw)
	if err != nil {
		return &docstore.UnavailableError{Op: "upsert", Cause: err}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func valuesEqual(stored, want any) bool {
	if stored == want {
		return true
	}
	sf, sok := asFloat(stored)
	wf, wok := asFloat(want)
	return sok && wok && sf == wf
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
