package sink

import (
	"encoding/json"
	"testing"
)

func TestColumnsSortedAndTyped(t *testing.T) {
	t.Parallel()

	doc := json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": ["null", "string"]},
			"id": {"type": "integer"},
			"created_at": {"type": "string", "format": "date-time"},
			"balance": {"type": "number"}
		}
	}`)
	cols, err := Columns(doc)
	if err != nil {
		t.Fatalf("Columns error: %v", err)
	}

	wantOrder := []string{"balance", "created_at", "id", "name"}
	if len(cols) != len(wantOrder) {
		t.Fatalf("got %d columns, want %d", len(cols), len(wantOrder))
	}
	for i, name := range wantOrder {
		if cols[i].Name != name {
			t.Fatalf("column %d = %q, want %q", i, cols[i].Name, name)
		}
	}

	if cols[2].Type != "integer" || cols[2].Nullable {
		t.Fatalf("id column %+v, want non-nullable integer", cols[2])
	}
	if cols[3].Type != "string" || !cols[3].Nullable {
		t.Fatalf("name column %+v, want nullable string", cols[3])
	}
	if cols[1].Format != "date-time" {
		t.Fatalf("created_at format %q, want date-time", cols[1].Format)
	}
}

func TestColumnsRejectsEmptySchema(t *testing.T) {
	t.Parallel()

	if _, err := Columns(json.RawMessage(`{"type":"object"}`)); err == nil {
		t.Fatal("expected error for schema without properties")
	}
}

func TestTableName(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"users":             "users",
		"Users":             "users",
		"tap-shopify.order": "tap_shopify_order",
		"a  b":              "a_b",
		"trailing!":         "trailing",
	}
	for in, want := range cases {
		if got := TableName(in); got != want {
			t.Fatalf("TableName(%q) = %q, want %q", in, got, want)
		}
	}
}
