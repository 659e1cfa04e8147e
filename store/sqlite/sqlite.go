/*
Package sqlite provides a SQLite-backed implementation of generic.DocumentStore.

PURPOSE:
  Stores every collection in one documents table with a JSON body, which
  gives the engine the same surface as a managed document store: equality
  filters and one range on arbitrary body fields. Timestamps are written
  into the body as epoch milliseconds so range comparisons are numeric.

INTERFACES IMPLEMENTED:
  generic.DocumentStore:    Query, Put, Get, Delete
  generic.IndexProvisioner: Composite expression indexes

KEY TABLES:
  documents: (collection, id) primary key, owner_id column, JSON body

INDEXES:
  - idx_documents_owner: (collection, owner_id). Serves the owner-only
    fallback scan and single-record lookups.
  - Composite indexes are created by EnsureIndex as expression indexes:
    (collection, owner_id, json_extract(body,'$.eq')..., json_extract(body,'$.range'), id)
    The trailing id serves the (range, id) sort without a temporary B-tree.

STRICT INDEX MODE:
  With RequireIndexes set, every sorted query names the composite index
  that serves its shape with INDEXED BY. SQLite refuses to prepare a
  statement naming an index that does not exist; the refusal is returned
  as a *generic.MissingIndexError (code NO_SUCH_INDEX), the same way a
  managed document store refuses unindexed compound queries.
  Plan reports whether a query would sort in a temporary B-tree.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. ":memory:" databases are pinned to
  a single connection so every caller sees the same database.

USAGE:
  store, err := sqlite.New("./data/tracker.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/tracker/generic"
)

// Store implements generic.DocumentStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// RequireIndexes refuses sorted queries that no index serves.
	RequireIndexes bool
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);

	CREATE INDEX IF NOT EXISTS idx_documents_owner
		ON documents(collection, owner_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INDEXES (generic.IndexProvisioner interface)
// =============================================================================

// EnsureIndex creates a composite expression index.
func (s *Store) EnsureIndex(ctx context.Context, spec generic.IndexSpec) error {
	cols := []string{"collection", "owner_id"}
	for _, f := range append(append([]string{}, spec.Fields...), spec.RangeField) {
		expr, err := jsonPath(f)
		if err != nil {
			return err
		}
		cols = append(cols, expr)
	}
	cols = append(cols, "id")
	if !validField.MatchString(spec.Collection) {
		return fmt.Errorf("invalid collection name %q", spec.Collection)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON documents(%s)", spec.Name(), strings.Join(cols, ", "))
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// =============================================================================
// DOCUMENT STORE (generic.DocumentStore interface)
// =============================================================================

// Put inserts or replaces a document.
func (s *Store) Put(ctx context.Context, m generic.Mapping, doc generic.Document) error {
	owner, ok := doc.Fields[m.OwnerField].(string)
	if !ok || owner == "" {
		return fmt.Errorf("document %s: missing owner field %q", doc.ID, m.OwnerField)
	}
	body, err := encodeBody(doc.Fields)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", doc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, owner_id, body, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(collection, id) DO UPDATE SET
			owner_id = excluded.owner_id,
			body = excluded.body,
			updated_at = excluded.updated_at
	`, m.Collection, doc.ID, owner, body, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// Get returns one owner's document.
func (s *Store) Get(ctx context.Context, m generic.Mapping, owner generic.OwnerID, id string) (generic.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND owner_id = ? AND id = ?`,
		m.Collection, string(owner), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Document{}, generic.ErrNotFound
	}
	if err != nil {
		return generic.Document{}, err
	}
	return decodeBody(id, body)
}

// Delete removes one owner's document.
func (s *Store) Delete(ctx context.Context, m generic.Mapping, owner generic.OwnerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND owner_id = ? AND id = ?`,
		m.Collection, string(owner), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return generic.ErrNotFound
	}
	return nil
}

// Query executes one pushed-down query.
func (s *Store) Query(ctx context.Context, q generic.StoreQuery) ([]generic.Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	stmt, args, err := buildQuery(q, s.RequireIndexes)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		if strings.Contains(err.Error(), "no such index") {
			return nil, &generic.MissingIndexError{
				Collection: q.Collection,
				Fields:     q.IndexFields(),
				Code:       "NO_SUCH_INDEX",
				Cause:      err,
			}
		}
		return nil, fmt.Errorf("failed to query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []generic.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		doc, err := decodeBody(id, body)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Plan returns the EXPLAIN QUERY PLAN details for q without running it.
func (s *Store) Plan(ctx context.Context, q generic.StoreQuery) ([]string, error) {
	stmt, args, err := buildQuery(q, false)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "EXPLAIN QUERY PLAN "+stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to explain query: %w", err)
	}
	defer rows.Close()

	var details []string
	for rows.Next() {
		var id, parent, notused int
		var detail string
		if err := rows.Scan(&id, &parent, &notused, &detail); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, rows.Err()
}

// SortsInTempBTree reports whether a plan sorts outside any index.
func SortsInTempBTree(plan []string) bool {
	for _, d := range plan {
		if strings.Contains(d, "USE TEMP B-TREE") {
			return true
		}
	}
	return false
}

// Reset clears all documents (for testing/demo). Indexes are kept.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM documents")
	return err
}

// =============================================================================
// SQL BUILDING
// =============================================================================

var validField = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// jsonPath returns the body expression for a field. Field names are
// interpolated (index expressions cannot use parameters), so they are
// restricted to identifiers. Query and index must produce identical text
// for SQLite to match them.
func jsonPath(field string) (string, error) {
	if !validField.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return "json_extract(body, '$." + field + "')", nil
}

func buildQuery(q generic.StoreQuery, indexed bool) (string, []any, error) {
	var sb strings.Builder
	sb.WriteString("SELECT id, body FROM documents")
	if indexed && q.Sort != nil {
		name := q.IndexSpec().Name()
		if !validField.MatchString(name) {
			return "", nil, fmt.Errorf("invalid index name %q", name)
		}
		sb.WriteString(" INDEXED BY " + name)
	}
	sb.WriteString(" WHERE collection = ? AND owner_id = ?")
	args := []any{q.Collection, string(q.OwnerID)}

	for _, eq := range q.Equals {
		expr, err := jsonPath(eq.Field)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND " + expr + " = ?")
		args = append(args, bindValue(eq.Value))
	}

	if q.Range != nil {
		expr, err := jsonPath(q.Range.Field)
		if err != nil {
			return "", nil, err
		}
		sb.WriteString(" AND " + expr + " " + string(q.Range.Op) + " ?")
		args = append(args, q.Range.Value)
	}

	if q.Sort != nil {
		expr, err := jsonPath(q.Sort.Field)
		if err != nil {
			return "", nil, err
		}
		dir := "ASC"
		if q.Sort.Direction == generic.Descending {
			dir = "DESC"
		}
		sb.WriteString(" ORDER BY " + expr + " " + dir + ", id " + dir)
	}

	if q.Limit > 0 {
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	}
	return sb.String(), args, nil
}

// bindValue maps filter values onto what json_extract returns.
func bindValue(v any) any {
	switch b := v.(type) {
	case bool:
		if b {
			return 1
		}
		return 0
	case time.Time:
		return generic.EpochMillis(b)
	}
	return v
}

// =============================================================================
// BODY ENCODING
// =============================================================================

func encodeBody(fields map[string]any) (string, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch t := v.(type) {
		case time.Time:
			out[k] = generic.EpochMillis(t)
		case *time.Time:
			if t == nil {
				out[k] = nil
			} else {
				out[k] = generic.EpochMillis(*t)
			}
		default:
			out[k] = v
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func decodeBody(id, body string) (generic.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()
	fields := map[string]any{}
	if err := dec.Decode(&fields); err != nil {
		return generic.Document{}, fmt.Errorf("decode document %s: %w", id, err)
	}
	return generic.Document{ID: id, Fields: fields}, nil
}
