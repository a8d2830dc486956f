// Package sqlite implements the sink contract for SQLite using database/sql.
// It is intended for local development and tests: SQLite has no bulk-load
// primitive like Postgres COPY, so a bulk load replays the staged CSV block
// as prepared upserts inside a single transaction, which keeps performance
// acceptable for moderate volumes.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/siilats/target-postgres/internal/config"
	"github.com/siilats/target-postgres/internal/precision"
	"github.com/siilats/target-postgres/internal/sink"
)

func init() {
	sink.Register("sqlite", New)
}

// Sink loads one stream into a SQLite table.
type Sink struct {
	db    *sql.DB
	decl  sink.Decl
	pc    *precision.Context
	table string
	cols  []sink.Column
}

// New opens a Sink for the given stream declaration. cfg.DSN is passed to
// database/sql directly, e.g. "warehouse.db" or "file:warehouse.db?_fk=1".
func New(ctx context.Context, cfg config.Config, decl sink.Decl, pc *precision.Context) (sink.Sink, error) {
	cols, err := sink.Columns(decl.Schema)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", decl.Stream, err)
	}
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Sink{
		db:    db,
		decl:  decl,
		pc:    pc,
		table: sink.TableName(decl.Stream),
		cols:  cols,
	}, nil
}

// EnsureSchema creates the table if missing and adds columns the table does
// not have yet.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	existing, err := s.existingColumns(ctx)
	if err != nil {
		return err
	}
	for _, col := range s.cols {
		if _, ok := existing[col.Name]; ok {
			continue
		}
		alter := fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN %s %s",
			quoteIdent(s.table), quoteIdent(col.Name), columnType(col),
		)
		if _, err := s.db.ExecContext(ctx, alter); err != nil {
			return fmt.Errorf("add column %q: %w", col.Name, err)
		}
	}
	return nil
}

// PrimaryKeyString implements sink.Sink.
func (s *Sink) PrimaryKeyString(record map[string]any) (string, error) {
	return sink.KeyString(record, s.decl.KeyProperties, s.pc)
}

// SerializeRecord implements sink.Sink.
func (s *Sink) SerializeRecord(record map[string]any) ([]byte, error) {
	return sink.CSVLine(record, s.cols, s.pc)
}

// BulkLoad parses the staged CSV block back into rows and upserts them inside
// one transaction. Unquoted empty fields load as NULL-ish empty text; the
// NULL/empty-string distinction of the Postgres backend is not preserved,
// which is acceptable for a dev sink.
func (s *Sink) BulkLoad(ctx context.Context, r io.Reader, rowCount int) error {
	start := time.Now()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(s.cols)
	cr.ReuseRecord = true

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.upsertSQL())
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	loaded := 0
	args := make([]any, len(s.cols))
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read staged row: %w", err)
		}
		for i, f := range fields {
			if f == "" {
				args[i] = nil
			} else {
				args[i] = f
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("upsert row: %w", err)
		}
		loaded++
	}
	if loaded != rowCount {
		return fmt.Errorf("staged %d rows but loaded %d", rowCount, loaded)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	log.Printf(
		"sqlite: loaded stream=%s table=%s rows=%d elapsed=%s",
		s.decl.Stream, s.table, rowCount, time.Since(start).Truncate(time.Millisecond),
	)
	return nil
}

// Close implements sink.Sink.
func (s *Sink) Close() error {
	return s.db.Close()
}

// existingColumns reads the current column set via PRAGMA table_info.
func (s *Sink) existingColumns(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(s.table)))
	if err != nil {
		return nil, fmt.Errorf("table_info: %w", err)
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("table_info scan: %w", err)
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}

func (s *Sink) createTableSQL() string {
	defs := make([]string, 0, len(s.cols)+1)
	for _, col := range s.cols {
		defs = append(defs, quoteIdent(col.Name)+" "+columnType(col))
	}
	if len(s.decl.KeyProperties) > 0 {
		keys := make([]string, len(s.decl.KeyProperties))
		for i, k := range s.decl.KeyProperties {
			keys[i] = quoteIdent(k)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ",")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(s.table), strings.Join(defs, ", "))
}

func (s *Sink) upsertSQL() string {
	names := make([]string, len(s.cols))
	marks := make([]string, len(s.cols))
	for i, col := range s.cols {
		names[i] = quoteIdent(col.Name)
		marks[i] = "?"
	}
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(s.table), strings.Join(names, ","), strings.Join(marks, ","),
	)
	if len(s.decl.KeyProperties) == 0 {
		return insert
	}

	keySet := make(map[string]struct{}, len(s.decl.KeyProperties))
	keys := make([]string, len(s.decl.KeyProperties))
	for i, k := range s.decl.KeyProperties {
		keySet[k] = struct{}{}
		keys[i] = quoteIdent(k)
	}
	var updates []string
	for _, col := range s.cols {
		if _, isKey := keySet[col.Name]; isKey {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", quoteIdent(col.Name), quoteIdent(col.Name)))
	}
	conflict := strings.Join(keys, ",")
	if len(updates) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", insert, conflict)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", insert, conflict, strings.Join(updates, ", "))
}

// columnType maps a schema column to its SQLite type affinity.
func columnType(col sink.Column) string {
	switch col.Type {
	case "integer":
		return "INTEGER"
	case "number":
		return "NUMERIC"
	case "boolean":
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// quoteIdent quotes an identifier for SQLite.
func quoteIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
