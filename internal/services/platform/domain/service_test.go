package domain

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/platform/storage/sqlite"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "platform.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	ids := 0
	return NewService(store, Config{
		NewID: func() (string, error) {
			ids++
			return "generated" + string(rune('0'+ids)) + "xxxxxxx", nil
		},
	})
}

func run(t *testing.T, svc *Service, req apiclient.Request) apiclient.Response {
	t.Helper()
	resp, err := svc.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run(%s): %v", req, err)
	}
	return resp
}

func decode(t *testing.T, resp apiclient.Response, out any) {
	t.Helper()
	if !resp.Success {
		t.Fatalf("response rejected: %s (%s)", resp.Error, resp.Code)
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		t.Fatalf("decode %s: %v", resp.Data, err)
	}
}

func putApp(t *testing.T, svc *Service, id, name string, order int) {
	t.Helper()
	run(t, svc, apiclient.Request{
		Service:   ServiceDynamo,
		Operation: OpPut,
		Table:     "applications",
		Data:      map[string]any{"item": map[string]any{"id": id, "name": name, "order": order}},
	})
}

func TestRunRequiresStore(t *testing.T) {
	var svc *Service
	if _, err := svc.Run(context.Background(), apiclient.Request{Service: "dynamo", Operation: "scan"}); !errors.Is(err, ErrServiceNotConfigured) {
		t.Fatalf("err = %v, want %v", err, ErrServiceNotConfigured)
	}
}

func TestRunRejectsMalformedRequest(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Run(context.Background(), apiclient.Request{Operation: "scan"})
	if got := apperrors.CodeOf(err); got != apperrors.CodeInvalidArgument {
		t.Fatalf("code = %q, want %q", got, apperrors.CodeInvalidArgument)
	}
	if !errors.Is(err, apiclient.ErrServiceRequired) {
		t.Fatalf("err = %v, want wrapped %v", err, apiclient.ErrServiceRequired)
	}
}

func TestRunUnsupportedTargetsAreErrors(t *testing.T) {
	svc := newTestService(t)
	tests := []struct {
		name string
		req  apiclient.Request
		want apperrors.Code
	}{
		{
			name: "service",
			req:  apiclient.Request{Service: "s3", Operation: "get"},
			want: apperrors.CodeUnsupportedService,
		},
		{
			name: "dynamo operation",
			req:  apiclient.Request{Service: ServiceDynamo, Operation: "batchWrite", Table: "users"},
			want: apperrors.CodeUnsupportedOperation,
		},
		{
			name: "dynamo table",
			req:  apiclient.Request{Service: ServiceDynamo, Operation: OpScan},
			want: apperrors.CodeUnsupportedTable,
		},
		{
			name: "ontology table",
			req:  apiclient.Request{Service: ServiceOntology, Operation: OpList, Table: "widgets"},
			want: apperrors.CodeUnsupportedTable,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Run(context.Background(), tc.req)
			if got := apperrors.CodeOf(err); got != tc.want {
				t.Fatalf("code = %q, want %q (err %v)", got, tc.want, err)
			}
		})
	}
}

func TestDynamoPutGetDelete(t *testing.T) {
	svc := newTestService(t)
	putApp(t, svc, "a", "Alpha", 1)

	var got struct {
		Item map[string]any `json:"Item"`
	}
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpGet, Table: "applications",
		Data: map[string]any{"key": "a"},
	}), &got)
	want := map[string]any{"id": "a", "name": "Alpha", "order": float64(1)}
	if diff := cmp.Diff(want, got.Item); diff != "" {
		t.Fatalf("item mismatch (-want +got):\n%s", diff)
	}

	var deleted struct {
		Deleted bool `json:"Deleted"`
	}
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpDelete, Table: "applications",
		Data: map[string]any{"key": "a"},
	}), &deleted)
	if !deleted.Deleted {
		t.Fatal("expected item deleted")
	}

	resp := run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpGet, Table: "applications",
		Data: map[string]any{"key": "a"},
	})
	if resp.Success {
		t.Fatal("expected missing item rejection")
	}
	if resp.Code != string(apperrors.CodeNotFound) {
		t.Fatalf("code = %q, want %q", resp.Code, apperrors.CodeNotFound)
	}
}

func TestDynamoPutRequiresID(t *testing.T) {
	svc := newTestService(t)
	resp := run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpPut, Table: "users",
		Data: map[string]any{"item": map[string]any{"name": "Nobody"}},
	})
	if resp.Success || resp.Code != string(apperrors.CodeInvalidArgument) {
		t.Fatalf("response = %+v, want invalid argument rejection", resp)
	}
}

func TestDynamoScanHonorsLimitAndOrder(t *testing.T) {
	svc := newTestService(t)
	putApp(t, svc, "c", "Gamma", 3)
	putApp(t, svc, "a", "Alpha", 1)
	putApp(t, svc, "b", "Beta", 2)

	var page struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"Items"`
		Count int `json:"Count"`
	}
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpScan, Table: "applications",
		Data: map[string]any{"limit": float64(2)},
	}), &page)
	if page.Count != 2 || page.Items[0].ID != "c" || page.Items[1].ID != "a" {
		t.Fatalf("page = %+v, want c then a", page)
	}

	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpScan, Table: "applications",
		Data: map[string]any{"orderBy": "key desc"},
	}), &page)
	if page.Count != 3 || page.Items[0].ID != "c" || page.Items[2].ID != "a" {
		t.Fatalf("page = %+v, want c b a", page)
	}

	resp := run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpScan, Table: "applications",
		Data: map[string]any{"limit": "many"},
	})
	if resp.Success || resp.Code != string(apperrors.CodeInvalidArgument) {
		t.Fatalf("response = %+v, want invalid argument rejection", resp)
	}
}

func TestDynamoQueryFiltersByOwner(t *testing.T) {
	svc := newTestService(t)
	for _, put := range []struct{ id, owner string }{
		{"s1", "user-1"},
		{"s2", "user-2"},
		{"s3", "user-1"},
	} {
		run(t, svc, apiclient.Request{
			Service: ServiceDynamo, Operation: OpPut, Table: "user-state",
			Data: map[string]any{"userId": put.owner, "item": map[string]any{"id": put.id, "name": put.id}},
		})
	}

	var page struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"Items"`
	}
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpQuery, Table: "user-state",
		Data: map[string]any{"filter": `owner_id = "user-1"`},
	}), &page)
	var ids []string
	for _, item := range page.Items {
		ids = append(ids, item.ID)
	}
	if diff := cmp.Diff([]string{"s1", "s3"}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}

	resp := run(t, svc, apiclient.Request{
		Service: ServiceDynamo, Operation: OpQuery, Table: "user-state",
		Data: map[string]any{"filter": `colour = "red"`},
	})
	if resp.Success || resp.Code != string(apperrors.CodeInvalidFilter) {
		t.Fatalf("response = %+v, want invalid filter rejection", resp)
	}
}

type entityEnvelopeJSON struct {
	Item map[string]any `json:"Item"`
}

func createObject(t *testing.T, svc *Service, item map[string]any) map[string]any {
	t.Helper()
	var out entityEnvelopeJSON
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceOntology, Operation: OpCreate, Table: TableObjects,
		Data: map[string]any{"item": item},
	}), &out)
	return out.Item
}

func TestOntologyCreateAssignsSlug(t *testing.T) {
	svc := newTestService(t)

	named := createObject(t, svc, map[string]any{"name": "Flight Plan", "version": float64(9)})
	if named["slug"] != "flight-plan" {
		t.Fatalf("slug = %v, want %q", named["slug"], "flight-plan")
	}
	if named["version"] != float64(1) {
		t.Fatalf("version = %v, want 1", named["version"])
	}
	if named["createdAt"] == "" || named["createdAt"] != named["updatedAt"] {
		t.Fatalf("timestamps = %v/%v, want equal and set", named["createdAt"], named["updatedAt"])
	}

	again := createObject(t, svc, map[string]any{"name": "Flight Plan"})
	if again["slug"] != "flight-plan-generate" {
		t.Fatalf("slug = %v, want suffixed slug", again["slug"])
	}

	unnamed := createObject(t, svc, map[string]any{"kind": "note"})
	if unnamed["slug"] != "generated2xxxxxxx" {
		t.Fatalf("slug = %v, want generated id", unnamed["slug"])
	}
}

func TestOntologyCreateSuffixesWithShortGeneratedID(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "platform.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	svc := NewService(store, Config{NewID: func() (string, error) { return "ab", nil }})

	createObject(t, svc, map[string]any{"name": "Flight Plan"})
	again := createObject(t, svc, map[string]any{"name": "Flight Plan"})
	if again["slug"] != "flight-plan-ab" {
		t.Fatalf("slug = %v, want %q", again["slug"], "flight-plan-ab")
	}
}

func TestOntologyCreateRejectsTakenSlug(t *testing.T) {
	svc := newTestService(t)
	createObject(t, svc, map[string]any{"slug": "slug-1", "name": "Old"})

	resp := run(t, svc, apiclient.Request{
		Service: ServiceOntology, Operation: OpCreate, Table: TableObjects,
		Data: map[string]any{"item": map[string]any{"slug": "slug-1"}},
	})
	if resp.Success || resp.Code != string(apperrors.CodeAlreadyExists) {
		t.Fatalf("response = %+v, want already exists rejection", resp)
	}
}

func TestOntologyUpdateMergesAndBumpsVersion(t *testing.T) {
	svc := newTestService(t)
	createObject(t, svc, map[string]any{"slug": "slug-1", "name": "Old", "kind": "plan"})

	var out entityEnvelopeJSON
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceOntology, Operation: OpUpdate, Table: TableObjects,
		Data: map[string]any{"slug": "slug-1", "updates": map[string]any{"name": "New Name", "slug": "hijack"}},
	}), &out)
	if out.Item["slug"] != "slug-1" || out.Item["name"] != "New Name" || out.Item["kind"] != "plan" {
		t.Fatalf("item = %v, want merged attributes under slug-1", out.Item)
	}
	if out.Item["version"] != float64(2) {
		t.Fatalf("version = %v, want 2", out.Item["version"])
	}

	resp := run(t, svc, apiclient.Request{
		Service: ServiceOntology, Operation: OpUpdate, Table: TableObjects,
		Data: map[string]any{"slug": "missing", "updates": map[string]any{"name": "x"}},
	})
	if resp.Success || resp.Code != string(apperrors.CodeNotFound) {
		t.Fatalf("response = %+v, want not found rejection", resp)
	}
}

func TestOntologyListAndDelete(t *testing.T) {
	svc := newTestService(t)
	createObject(t, svc, map[string]any{"slug": "b"})
	createObject(t, svc, map[string]any{"slug": "a"})

	var list struct {
		Items []map[string]any `json:"Items"`
	}
	decode(t, run(t, svc, apiclient.Request{Service: ServiceOntology, Operation: OpList, Table: TableObjects}), &list)
	if len(list.Items) != 2 || list.Items[0]["slug"] != "b" || list.Items[1]["slug"] != "a" {
		t.Fatalf("items = %v, want creation order", list.Items)
	}

	decode(t, run(t, svc, apiclient.Request{Service: ServiceOntology, Operation: OpList, Table: TableLinks}), &list)
	if len(list.Items) != 0 {
		t.Fatalf("links = %v, want empty", list.Items)
	}

	var deleted struct {
		Slug string `json:"slug"`
	}
	decode(t, run(t, svc, apiclient.Request{
		Service: ServiceOntology, Operation: OpDelete, Table: TableObjects,
		Data: map[string]any{"slug": "b"},
	}), &deleted)
	if deleted.Slug != "b" {
		t.Fatalf("slug = %q, want %q", deleted.Slug, "b")
	}

	resp := run(t, svc, apiclient.Request{
		Service: ServiceOntology, Operation: OpDelete, Table: TableObjects,
		Data: map[string]any{"slug": "b"},
	})
	if resp.Success || resp.Code != string(apperrors.CodeNotFound) {
		t.Fatalf("response = %+v, want not found rejection", resp)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Flight Plan":     "flight-plan",
		"  --Mission 42!": "mission-42",
		"already-slugged": "already-slugged",
		"Ünïcode Naïve":   "unicode-naive",
		"Crème Brûlée":    "creme-brulee",
		"Полёт 7":         "полет-7",
		"***":             "",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Fatalf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}
