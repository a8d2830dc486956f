package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siilats/target-postgres/internal/config"
	"github.com/siilats/target-postgres/internal/precision"
	"github.com/siilats/target-postgres/internal/sink"
)

const userSchema = `{
	"type": "object",
	"properties": {
		"id":      {"type": "integer"},
		"name":    {"type": ["string", "null"]},
		"balance": {"type": "number"}
	}
}`

func openSink(t *testing.T) (*Sink, string) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "warehouse.db")
	decl := sink.Decl{
		Stream:        "Users",
		Schema:        json.RawMessage(userSchema),
		KeyProperties: []string{"id"},
	}
	snk, err := New(context.Background(), config.Config{DSN: dsn}, decl, precision.NewContext())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { snk.Close() })
	return snk.(*Sink), dsn
}

func TestEnsureSchemaCreatesAndEvolves(t *testing.T) {
	t.Parallel()

	snk, dsn := openSink(t)
	ctx := context.Background()
	if err := snk.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	cols, err := snk.existingColumns(ctx)
	if err != nil {
		t.Fatalf("existingColumns: %v", err)
	}
	for _, want := range []string{"balance", "id", "name"} {
		if _, ok := cols[want]; !ok {
			t.Fatalf("column %q missing after EnsureSchema, have %v", want, cols)
		}
	}

	// A widened declaration adds columns without touching existing ones.
	wider := sink.Decl{
		Stream:        "Users",
		Schema:        json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"},"name":{"type":"string"},"balance":{"type":"number"},"email":{"type":"string"}}}`),
		KeyProperties: []string{"id"},
	}
	snk2, err := New(ctx, config.Config{DSN: dsn}, wider, precision.NewContext())
	if err != nil {
		t.Fatalf("New wider: %v", err)
	}
	defer snk2.Close()
	if err := snk2.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema wider: %v", err)
	}
	cols, err = snk2.(*Sink).existingColumns(ctx)
	if err != nil {
		t.Fatalf("existingColumns: %v", err)
	}
	if _, ok := cols["email"]; !ok {
		t.Fatalf("evolved column missing, have %v", cols)
	}
}

func TestBulkLoadUpserts(t *testing.T) {
	t.Parallel()

	snk, dsn := openSink(t)
	ctx := context.Background()
	if err := snk.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}

	block := `10.5,1,"ada"` + "\n" + `,2,` + "\n"
	if err := snk.BulkLoad(ctx, strings.NewReader(block), 2); err != nil {
		t.Fatalf("BulkLoad: %v", err)
	}

	// Replay with an updated value for key 1.
	updated := `99,1,"lovelace"` + "\n"
	if err := snk.BulkLoad(ctx, strings.NewReader(updated), 1); err != nil {
		t.Fatalf("BulkLoad replay: %v", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT count(*) FROM "users"`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("table holds %d rows, want 2", n)
	}
	var name string
	if err := db.QueryRow(`SELECT name FROM "users" WHERE id = 1`).Scan(&name); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "lovelace" {
		t.Fatalf("replay did not update, name = %q", name)
	}
	var nulls int
	if err := db.QueryRow(`SELECT count(*) FROM "users" WHERE name IS NULL`).Scan(&nulls); err != nil {
		t.Fatalf("null count: %v", err)
	}
	if nulls != 1 {
		t.Fatalf("empty field should load as NULL, got %d NULL rows", nulls)
	}
}

func TestBulkLoadRowCountMismatch(t *testing.T) {
	t.Parallel()

	snk, _ := openSink(t)
	ctx := context.Background()
	if err := snk.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	err := snk.BulkLoad(ctx, strings.NewReader(`1,1,"a"`+"\n"), 2)
	if err == nil {
		t.Fatal("expected row-count mismatch error")
	}
}

func TestUpsertSQL(t *testing.T) {
	t.Parallel()

	snk, _ := openSink(t)
	got := snk.upsertSQL()
	want := `INSERT INTO "users" ("balance","id","name") VALUES (?,?,?) ` +
		`ON CONFLICT ("id") DO UPDATE SET "balance" = excluded."balance", "name" = excluded."name"`
	if got != want {
		t.Fatalf("upsertSQL:\n got %s\nwant %s", got, want)
	}
}

func TestColumnType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		col  sink.Column
		want string
	}{
		{sink.Column{Type: "integer"}, "INTEGER"},
		{sink.Column{Type: "number"}, "NUMERIC"},
		{sink.Column{Type: "boolean"}, "INTEGER"},
		{sink.Column{Type: "string"}, "TEXT"},
		{sink.Column{Type: "object"}, "TEXT"},
	}
	for _, tt := range tests {
		if got := columnType(tt.col); got != tt.want {
			t.Errorf("columnType(%+v) = %q, want %q", tt.col, got, tt.want)
		}
	}
}
