package discovery

import "testing"

func TestDefaultAddrs(t *testing.T) {
	if got := DefaultGRPCAddr(ServicePlatform); got != "platform:8090" {
		t.Fatalf("DefaultGRPCAddr(platform) = %q, want %q", got, "platform:8090")
	}
	if got := DefaultHTTPAddr(ServiceWeb); got != "web:8080" {
		t.Fatalf("DefaultHTTPAddr(web) = %q, want %q", got, "web:8080")
	}
	if got := DefaultGRPCAddr("unknown"); got != "" {
		t.Fatalf("DefaultGRPCAddr(unknown) = %q, want empty", got)
	}
	if got := DefaultGRPCPort(" platform "); got != 8090 {
		t.Fatalf("DefaultGRPCPort(platform) = %d, want 8090", got)
	}
}

func TestOrDefaultAddrs(t *testing.T) {
	if got := OrDefaultGRPCAddr(" custom:9000 ", ServicePlatform); got != "custom:9000" {
		t.Fatalf("expected explicit grpc addr to win, got %q", got)
	}
	if got := OrDefaultGRPCAddr("", ServicePlatform); got != "platform:8090" {
		t.Fatalf("expected default grpc addr, got %q", got)
	}
	if got := OrDefaultHTTPAddr("", ServiceWeb); got != "web:8080" {
		t.Fatalf("expected default http addr, got %q", got)
	}
	if got := OrDefaultHTTPAddr(":9999", ServiceWeb); got != ":9999" {
		t.Fatalf("expected explicit http addr to win, got %q", got)
	}
}
