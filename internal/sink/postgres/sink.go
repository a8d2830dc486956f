// Package postgres implements the sink contract for Postgres using pgx v5.
// Staged CSV lines are streamed with COPY into a session-local temp table and
// then merged into the target table with INSERT ... ON CONFLICT, so a bulk
// load upserts on the stream's primary key instead of failing on replays.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/siilats/target-postgres/internal/config"
	"github.com/siilats/target-postgres/internal/precision"
	"github.com/siilats/target-postgres/internal/sink"
)

func init() {
	sink.Register("postgres", New)
}

// Sink loads one stream into a Postgres table.
type Sink struct {
	pool   *pgxpool.Pool
	decl   sink.Decl
	pc     *precision.Context
	schema string
	table  string
	cols   []sink.Column
}

// New opens a Sink for the given stream declaration. The declaration's
// schema determines the destination columns; see sink.Columns.
func New(ctx context.Context, cfg config.Config, decl sink.Decl, pc *precision.Context) (sink.Sink, error) {
	cols, err := sink.Columns(decl.Schema)
	if err != nil {
		return nil, fmt.Errorf("stream %q: %w", decl.Stream, err)
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	return &Sink{
		pool:   pool,
		decl:   decl,
		pc:     pc,
		schema: cfg.Schema,
		table:  sink.TableName(decl.Stream),
		cols:   cols,
	}, nil
}

// EnsureSchema creates the destination namespace and table if missing and
// adds any columns the table does not have yet. Existing columns are never
// altered or dropped.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	if s.schema != "" {
		if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgIdent(s.schema)); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if _, err := s.pool.Exec(ctx, s.createTableSQL()); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	// Additive evolution for tables created by an earlier declaration.
	for _, col := range s.cols {
		alter := fmt.Sprintf(
			"ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s",
			s.fqTable(), pgIdent(col.Name), columnType(col),
		)
		if _, err := s.pool.Exec(ctx, alter); err != nil {
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

// BulkLoad copies the staged CSV block into a temp table and merges it into
// the target. The merge upserts on the key columns when the stream has key
// properties; otherwise rows are appended.
func (s *Sink) BulkLoad(ctx context.Context, r io.Reader, rowCount int) error {
	start := time.Now()

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	tmp := "tmp_" + s.table
	create := fmt.Sprintf(
		"CREATE TEMP TABLE %s AS SELECT %s FROM %s WHERE false",
		pgIdent(tmp), strings.Join(mapIdent(sink.ColumnNames(s.cols)), ","), s.fqTable(),
	)
	if _, err := conn.Exec(ctx, create); err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _, _ = conn.Exec(ctx, "DROP TABLE IF EXISTS "+pgIdent(tmp)) }()

	copySQL := fmt.Sprintf(
		"COPY %s (%s) FROM STDIN WITH (FORMAT csv, NULL '')",
		pgIdent(tmp), strings.Join(mapIdent(sink.ColumnNames(s.cols)), ","),
	)
	tag, err := conn.Conn().PgConn().CopyFrom(ctx, r, copySQL)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return fmt.Errorf("copy into temp: %s (%s)", pgErr.Detail, pgErr.SQLState())
		}
		return fmt.Errorf("copy into temp: %w", err)
	}
	if got := tag.RowsAffected(); got != int64(rowCount) {
		return fmt.Errorf("copy into temp: staged %d rows but COPY reported %d", rowCount, got)
	}

	if _, err := conn.Exec(ctx, s.mergeSQL(tmp)); err != nil {
		return fmt.Errorf("merge into target: %w", err)
	}

	log.Printf(
		"postgres: loaded stream=%s table=%s rows=%d elapsed=%s",
		s.decl.Stream, s.fqTable(), rowCount, time.Since(start).Truncate(time.Millisecond),
	)
	return nil
}

// Close implements sink.Sink.
func (s *Sink) Close() error {
	s.pool.Close()
	return nil
}

// fqTable is the quoted, schema-qualified target table name.
func (s *Sink) fqTable() string {
	if s.schema == "" {
		return pgIdent(s.table)
	}
	return pgIdent(s.schema) + "." + pgIdent(s.table)
}

// createTableSQL builds the CREATE TABLE IF NOT EXISTS statement, including a
// primary key clause when the stream declares key properties.
func (s *Sink) createTableSQL() string {
	defs := make([]string, 0, len(s.cols)+1)
	for _, col := range s.cols {
		defs = append(defs, pgIdent(col.Name)+" "+columnType(col))
	}
	if len(s.decl.KeyProperties) > 0 {
		defs = append(defs, fmt.Sprintf(
			"PRIMARY KEY (%s)", strings.Join(mapIdent(s.decl.KeyProperties), ","),
		))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", s.fqTable(), strings.Join(defs, ", "))
}

// mergeSQL builds the temp-to-target merge statement. With key properties it
// upserts; key-only tables fall back to DO NOTHING since there is nothing to
// update.
func (s *Sink) mergeSQL(tmp string) string {
	names := strings.Join(mapIdent(sink.ColumnNames(s.cols)), ",")
	insert := fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s",
		s.fqTable(), names, names, pgIdent(tmp),
	)
	if len(s.decl.KeyProperties) == 0 {
		return insert
	}

	keySet := make(map[string]struct{}, len(s.decl.KeyProperties))
	for _, k := range s.decl.KeyProperties {
		keySet[k] = struct{}{}
	}
	var updates []string
	for _, col := range s.cols {
		if _, isKey := keySet[col.Name]; isKey {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", pgIdent(col.Name), pgIdent(col.Name)))
	}

	conflict := strings.Join(mapIdent(s.decl.KeyProperties), ",")
	if len(updates) == 0 {
		return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING", insert, conflict)
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) DO UPDATE SET %s", insert, conflict, strings.Join(updates, ", "))
}

// columnType maps a schema column to its Postgres type.
func columnType(col sink.Column) string {
	switch col.Type {
	case "integer":
		return "bigint"
	case "number":
		return "numeric"
	case "boolean":
		return "boolean"
	case "object", "array":
		return "jsonb"
	case "string":
		switch col.Format {
		case "date-time":
			return "timestamptz"
		case "date":
			return "date"
		}
	}
	return "text"
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
