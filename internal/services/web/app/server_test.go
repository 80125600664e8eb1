package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	platformapp "github.com/captify/captify/internal/services/platform/app"
	"github.com/captify/captify/internal/services/platform/domain"
	platformsqlite "github.com/captify/captify/internal/services/platform/storage/sqlite"
	"github.com/captify/captify/internal/services/web/identity"
)

const testSecret = "web-app-secret"

func signedToken(t *testing.T, subject string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: subject, ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestNewServerValidation(t *testing.T) {
	store, err := platformsqlite.Open(filepath.Join(t.TempDir(), "platform.db"))
	if err != nil {
		t.Fatalf("open platform store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	runner := domain.NewService(store, domain.Config{})

	tests := []struct {
		name string
		cfg  Config
		want error
	}{
		{name: "missing http addr", cfg: Config{JWTSecret: testSecret, Runner: runner}},
		{name: "missing secret", cfg: Config{HTTPAddr: "127.0.0.1:0", Runner: runner}, want: identity.ErrSecretRequired},
		{name: "unreachable default api addr", cfg: Config{HTTPAddr: "127.0.0.1:0", JWTSecret: testSecret, DialTimeout: 100 * time.Millisecond}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, err := NewServer(context.Background(), tc.cfg)
			if err == nil {
				server.Close()
				t.Fatal("expected error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestServerServesSessionsOverPlatformAPI(t *testing.T) {
	dir := t.TempDir()
	seedPath := filepath.Join(dir, "seed.yaml")
	fixture := "tables:\n  applications:\n    - id: app-1\n      name: Console\n      order: 1\n"
	if err := os.WriteFile(seedPath, []byte(fixture), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	apiListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen api: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	apiDone := make(chan error, 1)
	go func() {
		apiDone <- platformapp.Run(ctx, platformapp.RuntimeConfig{
			DBPath:   filepath.Join(dir, "platform.db"),
			SeedPath: seedPath,
			Listener: apiListener,
		})
	}()

	webListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen web: %v", err)
	}
	server, err := NewServer(ctx, Config{
		APIAddr:     apiListener.Addr().String(),
		CacheDBPath: filepath.Join(dir, "web", "cache.db"),
		JWTSecret:   testSecret,
		DialTimeout: 5 * time.Second,
		Listener:    webListener,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer server.Close()
	webDone := make(chan error, 1)
	go func() { webDone <- server.ListenAndServe(ctx) }()

	base := "http://" + webListener.Addr().String()
	up, err := http.Get(base + "/up")
	if err != nil {
		t.Fatalf("get up: %v", err)
	}
	_ = up.Body.Close()
	if up.StatusCode != http.StatusOK {
		t.Fatalf("up status = %d", up.StatusCode)
	}

	req, err := http.NewRequest(http.MethodPost, base+"/api/session", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "user-1"))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusCreated || len(resp.Cookies()) == 0 {
		t.Fatalf("login status = %d, cookies %v", resp.StatusCode, resp.Cookies())
	}

	list, err := http.NewRequest(http.MethodGet, base+"/api/cache/applications", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	list.AddCookie(resp.Cookies()[0])
	listResp, err := http.DefaultClient.Do(list)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	body, _ := io.ReadAll(listResp.Body)
	_ = listResp.Body.Close()
	if listResp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", listResp.StatusCode)
	}
	if want := `{"items":[{"id":"app-1","name":"Console","order":1}]}` + "\n"; string(body) != want {
		t.Fatalf("list body = %s, want %s", body, want)
	}

	cancel()
	for name, done := range map[string]chan error{"web": webDone, "api": apiDone} {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("%s returned %v, want nil", name, err)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("%s did not stop after cancel", name)
		}
	}
}
