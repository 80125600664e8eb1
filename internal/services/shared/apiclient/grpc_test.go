package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	apperrors "github.com/captify/captify/internal/platform/errors"
)

func newBufconnClient(t *testing.T, runner Runner) *GRPCClient {
	t.Helper()

	listener := bufconn.Listen(1 << 20)
	server := grpc.NewServer()
	RegisterServer(server, runner)
	go func() {
		_ = server.Serve(listener)
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewGRPCClient(conn)
}

func TestGRPCRoundTrip(t *testing.T) {
	var got Request
	client := newBufconnClient(t, RunnerFunc(func(_ context.Context, req Request) (Response, error) {
		got = req
		return Succeed(map[string]any{"Items": []map[string]any{{"id": "a", "name": "Alpha", "order": 1}}})
	}))

	resp, err := client.Run(context.Background(), Request{
		Service:   "dynamo",
		Operation: "query",
		Table:     "user-state",
		Data:      map[string]any{"filter": `owner_id = "user-1"`, "limit": 10},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantReq := Request{
		Service:   "dynamo",
		Operation: "query",
		Table:     "user-state",
		Data:      map[string]any{"filter": `owner_id = "user-1"`, "limit": float64(10)},
	}
	if diff := cmp.Diff(wantReq, got); diff != "" {
		t.Fatalf("server request mismatch (-want +got):\n%s", diff)
	}
	if !resp.Success {
		t.Fatalf("response not successful: %+v", resp)
	}

	items := DecodeItems[entry](resp)
	if diff := cmp.Diff([]entry{{ID: "a", Name: "Alpha"}}, items.Value()); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestGRPCCarriesRejections(t *testing.T) {
	client := newBufconnClient(t, RunnerFunc(func(context.Context, Request) (Response, error) {
		return Reject("VERSION_CONFLICT", "stale version"), nil
	}))

	resp, err := client.Run(context.Background(), Request{Service: "ontology", Operation: "update", Table: "objects"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := Response{Success: false, Error: "stale version", Code: "VERSION_CONFLICT"}
	if diff := cmp.Diff(want, resp); diff != "" {
		t.Fatalf("response mismatch (-want +got):\n%s", diff)
	}
}

func TestGRPCRebuildsDomainErrors(t *testing.T) {
	client := newBufconnClient(t, RunnerFunc(func(context.Context, Request) (Response, error) {
		return Response{}, apperrors.New(apperrors.CodeUnsupportedOperation, "unsupported operation dynamo.truncate")
	}))

	_, err := client.Run(context.Background(), Request{Service: "dynamo", Operation: "truncate"})
	var domainErr *apperrors.Error
	if !errors.As(err, &domainErr) {
		t.Fatalf("err = %T %v, want *apperrors.Error", err, err)
	}
	if domainErr.Code != apperrors.CodeUnsupportedOperation {
		t.Fatalf("code = %q, want %q", domainErr.Code, apperrors.CodeUnsupportedOperation)
	}
	if domainErr.Message != "unsupported operation dynamo.truncate" {
		t.Fatalf("message = %q", domainErr.Message)
	}
}

func TestGRPCPlainErrorsBecomeInternal(t *testing.T) {
	client := newBufconnClient(t, RunnerFunc(func(context.Context, Request) (Response, error) {
		return Response{}, errors.New("disk failure")
	}))

	_, err := client.Run(context.Background(), Request{Service: "dynamo", Operation: "scan"})
	if status.Code(err) != codes.Internal {
		t.Fatalf("code = %v, want Internal", status.Code(err))
	}
}

func TestGRPCClientValidatesBeforeSending(t *testing.T) {
	client := newBufconnClient(t, RunnerFunc(func(context.Context, Request) (Response, error) {
		t.Fatal("server should not be called")
		return Response{}, nil
	}))
	if _, err := client.Run(context.Background(), Request{Operation: "scan"}); !errors.Is(err, ErrServiceRequired) {
		t.Fatalf("err = %v, want ErrServiceRequired", err)
	}
}

func TestStructEnvelopePreservesRawData(t *testing.T) {
	in := Response{Success: true, Data: json.RawMessage(`[{"id":"a"}]`)}
	encoded, err := toStruct(in)
	if err != nil {
		t.Fatalf("toStruct: %v", err)
	}
	var out Response
	if err := fromStruct(encoded, &out); err != nil {
		t.Fatalf("fromStruct: %v", err)
	}
	if !out.Success {
		t.Fatalf("out = %+v", out)
	}
	var data []map[string]any
	if err := json.Unmarshal(out.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if diff := cmp.Diff([]map[string]any{{"id": "a"}}, data); diff != "" {
		t.Fatalf("data mismatch (-want +got):\n%s", diff)
	}
}
