package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name   string
		filter string
		want   Condition
	}{
		{
			name:   "empty",
			filter: "  ",
			want:   Condition{},
		},
		{
			name:   "owner equals",
			filter: `owner_id = "user-1"`,
			want:   Condition{Clause: "owner_id = ?", Params: []any{"user-1"}},
		},
		{
			name:   "payload attribute",
			filter: `package = "core"`,
			want:   Condition{Clause: "json_extract(payload_json, '$.package') = ?", Params: []any{"core"}},
		},
		{
			name:   "and",
			filter: `owner_id = "user-1" AND name != "Draft"`,
			want: Condition{
				Clause: "(owner_id = ? AND json_extract(payload_json, '$.name') != ?)",
				Params: []any{"user-1", "Draft"},
			},
		},
		{
			name:   "or with version",
			filter: `key = "a" OR version >= 2`,
			want: Condition{
				Clause: "(item_key = ? OR version >= ?)",
				Params: []any{"a", int64(2)},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.filter)
			if err != nil {
				t.Fatalf("Parse(%q): %v", tc.filter, err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("condition mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRejectsUnknownField(t *testing.T) {
	if _, err := Parse(`payload_json = "x"`); err == nil {
		t.Fatal("expected error for undeclared field")
	}
}

func TestParseRejectsTypeMismatch(t *testing.T) {
	if _, err := Parse(`version = "two"`); err == nil {
		t.Fatal("expected error for string compared to int field")
	}
}

func TestConditionEmpty(t *testing.T) {
	if !(Condition{}).Empty() {
		t.Fatal("zero condition should be empty")
	}
	if (Condition{Clause: "owner_id = ?"}).Empty() {
		t.Fatal("condition with clause should not be empty")
	}
}
