package ontology

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEntityJSONIsFlat(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 500, time.UTC)
	entity := Entity{
		Slug:       "slug-1",
		Version:    3,
		CreatedAt:  at,
		UpdatedAt:  at,
		Attributes: map[string]any{"name": "Plan", "slug": "ignored"},
	}
	encoded, err := json.Marshal(entity)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var flat map[string]any
	if err := json.Unmarshal(encoded, &flat); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{
		"slug":      "slug-1",
		"version":   float64(3),
		"createdAt": "2026-03-01T12:00:00.0000005Z",
		"updatedAt": "2026-03-01T12:00:00.0000005Z",
		"name":      "Plan",
	}
	if diff := cmp.Diff(want, flat); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}

	var decoded Entity
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	entity.Attributes = map[string]any{"name": "Plan"}
	if diff := cmp.Diff(entity, decoded); diff != "" {
		t.Fatalf("entity mismatch (-want +got):\n%s", diff)
	}
}

func TestEntityRejectsBadTimestamp(t *testing.T) {
	var entity Entity
	if err := json.Unmarshal([]byte(`{"slug":"a","createdAt":"yesterday"}`), &entity); err == nil {
		t.Fatal("expected error")
	}
}

func TestMergeDoesNotAliasUpdates(t *testing.T) {
	updates := map[string]any{"tags": []any{"a"}}
	merged := Entity{Slug: "a"}.merge(updates)
	updates["tags"].([]any)[0] = "changed"
	if diff := cmp.Diff([]any{"a"}, merged.Attributes["tags"]); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

func TestPendingOpRollback(t *testing.T) {
	a := Entity{Slug: "a", Attributes: map[string]any{"n": 1.0}}
	b := Entity{Slug: "b"}
	c := Entity{Slug: "c"}

	del := pendingOp{slug: "b", kind: opDelete, index: 1, next: "c", before: b}
	if diff := cmp.Diff([]Entity{a, b, c}, del.rollback([]Entity{a, c})); diff != "" {
		t.Fatalf("delete rollback mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Entity{b, c}, del.rollback([]Entity{c})); diff != "" {
		t.Fatalf("anchored rollback mismatch (-want +got):\n%s", diff)
	}
	gone := pendingOp{slug: "b", kind: opDelete, index: 1, next: "x", before: b}
	if diff := cmp.Diff([]Entity{a, b, c}, gone.rollback([]Entity{a, c})); diff != "" {
		t.Fatalf("fallback rollback mismatch (-want +got):\n%s", diff)
	}
	last := pendingOp{slug: "c", kind: opDelete, index: 2, before: c}
	if diff := cmp.Diff([]Entity{b, c}, last.rollback([]Entity{b})); diff != "" {
		t.Fatalf("last rollback mismatch (-want +got):\n%s", diff)
	}

	upd := pendingOp{slug: "a", kind: opUpdate, index: 0, before: a}
	changed := Entity{Slug: "a", Attributes: map[string]any{"n": 2.0}}
	if diff := cmp.Diff([]Entity{a, c}, upd.rollback([]Entity{changed, c})); diff != "" {
		t.Fatalf("update rollback mismatch (-want +got):\n%s", diff)
	}

	none := pendingOp{slug: "z", kind: opDelete, index: -1}
	if diff := cmp.Diff([]Entity{a}, none.rollback([]Entity{a})); diff != "" {
		t.Fatalf("unapplied rollback mismatch (-want +got):\n%s", diff)
	}
}
