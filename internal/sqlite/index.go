// Package sqlite keeps an in-memory SQLite copy of the record collection for
// filtered and sorted listings. The JSON data file stays the source of
// truth; the index is rebuilt from a store snapshot whenever the store has
// changed since the last load.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/taskpad/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

// Index is a queryable copy of the records.
type Index struct {
	mu     sync.Mutex
	db     *sql.DB
	gen    uint64
	loaded bool
}

// Open creates an empty in-memory index.
func Open() (*Index, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("opening index: %w", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating index schema: %w", err)
	}
	return &Index{db: db}, nil
}

// Close releases the database.
func (x *Index) Close() error {
	return x.db.Close()
}

// Sync reloads the index when gen differs from the generation last loaded.
// load is called only when a reload is needed; it returns the records and
// the generation they belong to.
func (x *Index) Sync(ctx context.Context, gen uint64, load func() ([]types.Record, uint64)) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.loaded && x.gen == gen {
		return nil
	}
	records, g := load()
	if err := x.replace(ctx, records); err != nil {
		x.loaded = false
		return err
	}
	x.gen = g
	x.loaded = true
	return nil
}

func (x *Index) replace(ctx context.Context, records []types.Record) error {
	tx, err := x.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning index load: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM record_tags"); err != nil {
		return fmt.Errorf("clearing tags: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM records"); err != nil {
		return fmt.Errorf("clearing records: %w", err)
	}

	recStmt, err := tx.PrepareContext(ctx, `INSERT INTO records
		(id, position, text, completed, created_at, due_key, priority, category, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing record insert: %w", err)
	}
	defer recStmt.Close()

	tagStmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO record_tags (record_id, tag) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing tag insert: %w", err)
	}
	defer tagStmt.Close()

	for _, r := range records {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding record %s: %w", r.ID, err)
		}
		var due any
		if r.DueDate != nil {
			due = dueKey(*r.DueDate)
		}
		if _, err := recStmt.ExecContext(ctx, r.ID, r.Position, r.Text, r.Completed, r.CreatedAt,
			due, nullString(r.Priority), nullString(r.Category), string(body)); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
		for _, tag := range r.Tags {
			if _, err := tagStmt.ExecContext(ctx, r.ID, tag); err != nil {
				return fmt.Errorf("inserting tag for %s: %w", r.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing index load: %w", err)
	}
	return nil
}

var orderClauses = map[types.SortMode]string{
	types.SortManual:      "position",
	types.SortDueAsc:      "due_key IS NULL, due_key ASC, position",
	types.SortDueDesc:     "due_key IS NULL, due_key DESC, position",
	types.SortCreatedAsc:  "created_at ASC, position",
	types.SortCreatedDesc: "created_at DESC, position",
}

// Query returns the records matching q in the requested order.
// Returns a *types.ValidationError for an unknown sort mode or a malformed
// due date bound.
func (x *Index) Query(ctx context.Context, q types.Query) ([]types.Record, error) {
	sort := q.Sort
	if sort == "" {
		sort = types.SortManual
	}
	order, ok := orderClauses[sort]
	if !ok {
		return nil, &types.ValidationError{Field: "sort", Value: string(sort), Reason: "unknown sort mode"}
	}

	var where []string
	var args []any
	if q.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, *q.Completed)
	}
	if q.Category != nil {
		where = append(where, "category = ?")
		args = append(args, *q.Category)
	}
	if q.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, *q.Priority)
	}
	if q.Tag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM record_tags t WHERE t.record_id = records.id AND t.tag = ?)")
		args = append(args, q.Tag)
	}
	if q.Text != "" {
		where = append(where, "instr(lower(text), lower(?)) > 0")
		args = append(args, q.Text)
	}
	for _, bound := range []struct {
		value string
		field string
		op    string
	}{
		{q.DueAfter, "due_after", ">="},
		{q.DueBefore, "due_before", "<="},
	} {
		if bound.value == "" {
			continue
		}
		if err := types.ValidateDueDate(bound.value); err != nil {
			return nil, &types.ValidationError{Field: bound.field, Value: bound.value, Reason: "not an ISO-8601 date"}
		}
		where = append(where, "due_key IS NOT NULL AND due_key "+bound.op+" ?")
		args = append(args, dueKey(bound.value))
	}

	stmt := "SELECT body FROM records"
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}
	stmt += " ORDER BY " + order
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	rows, err := x.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying index: %w", err)
	}
	defer rows.Close()

	var out []types.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		var r types.Record
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("decoding record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// dueKey maps a due date to a sortable YYYY-MM-DD key. Basic-form dates
// (20251231) are expanded; anything else keeps its first ten characters.
func dueKey(s string) string {
	if len(s) >= 8 && !strings.Contains(s[:8], "-") {
		return s[:4] + "-" + s[4:6] + "-" + s[6:8]
	}
	if len(s) > 10 {
		return s[:10]
	}
	return s
}

func nullString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
