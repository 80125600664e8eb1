// Package app wires the web session HTTP runtime.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/captify/captify/internal/platform/discovery"
	"github.com/captify/captify/internal/platform/timeouts"
	"github.com/captify/captify/internal/services/shared/apiclient"
	"github.com/captify/captify/internal/services/shared/grpcdial"
	"github.com/captify/captify/internal/services/web/identity"
	"github.com/captify/captify/internal/services/web/platform/httpx"
	"github.com/captify/captify/internal/services/web/platform/observability"
	"github.com/captify/captify/internal/services/web/platform/requestmeta"
	"github.com/captify/captify/internal/services/web/session"
	webstorage "github.com/captify/captify/internal/services/web/storage"
	websqlite "github.com/captify/captify/internal/services/web/storage/sqlite"
	"github.com/captify/captify/internal/services/web/transport/httpapi"
)

// Server hosts the web session HTTP server.
type Server struct {
	httpAddr      string
	httpServer    *http.Server
	listener      net.Listener
	apiConn       *grpc.ClientConn
	storage       webstorage.Store
	sessions      *session.Registry
	logger        *zap.Logger
	sweepInterval time.Duration
}

// NewServer builds a configured web server. It dials the platform API and
// waits for it to report healthy unless cfg.Runner is set.
func NewServer(ctx context.Context, cfg Config) (*Server, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	httpAddr := strings.TrimSpace(cfg.HTTPAddr)
	if httpAddr == "" && cfg.Listener == nil {
		return nil, errors.New("http address is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = timeouts.GRPCDial
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	verifier, err := identity.NewVerifier(identity.Config{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		httpAddr:      httpAddr,
		listener:      cfg.Listener,
		logger:        logger,
		sweepInterval: cfg.SweepInterval,
	}
	runner := cfg.Runner
	if runner == nil {
		apiAddr := discovery.OrDefaultGRPCAddr(cfg.APIAddr, discovery.ServicePlatform)
		conn, err := grpcdial.DialAPI(ctx, apiAddr, cfg.DialTimeout, logger)
		if err != nil {
			return nil, err
		}
		s.apiConn = conn
		runner = apiclient.NewGRPCClient(conn)
	}

	if path := strings.TrimSpace(cfg.CacheDBPath); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			s.Close()
			return nil, fmt.Errorf("create cache db dir: %w", err)
		}
		store, err := websqlite.Open(path)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open cache store: %w", err)
		}
		s.storage = store
	} else {
		logger.Info("cache db path not set, sessions are kept in memory")
	}

	s.sessions, err = session.NewRegistry(session.Config{
		Runner:   runner,
		Storage:  s.storage,
		TTL:      cfg.SessionTTL,
		FreshTTL: cfg.CacheFreshTTL,
		Logger:   logger.Named("session"),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	api, err := httpapi.New(httpapi.Config{
		Sessions:     s.sessions,
		Verifier:     verifier,
		SchemePolicy: requestmeta.SchemePolicy{TrustForwardedProto: cfg.TrustForwardedProto},
		Logger:       logger.Named("http"),
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("build handler: %w", err)
	}
	handler := httpx.Chain(api,
		httpx.RecoverPanic(logger),
		httpx.RequestID(),
		observability.RequestLogger(logger.Named("access")),
	)
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           handler,
		ReadHeaderTimeout: timeouts.ReadHeader,
	}
	s.httpServer.RegisterOnShutdown(api.CloseStreams)
	return s, nil
}

// ListenAndServe runs the HTTP server until the context ends.
//
// On cancellation, it performs a bounded shutdown so in-flight requests
// are drained before hard close. Live sessions are released afterwards.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return errors.New("web server is nil")
	}
	if ctx == nil {
		return errors.New("context is required")
	}

	stopSweep, sweepDone := s.startSweeper()
	defer func() {
		stopSweep()
		<-sweepDone
	}()

	serveErr := make(chan error, 1)
	go func() {
		if s.listener != nil {
			s.logger.Info("web listening", zap.String("addr", s.listener.Addr().String()))
			serveErr <- s.httpServer.Serve(s.listener)
			return
		}
		s.logger.Info("web listening", zap.String("addr", s.httpAddr))
		serveErr <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
		err := s.httpServer.Shutdown(shutdownCtx)
		if closeErr := s.sessions.CloseAll(shutdownCtx); closeErr != nil {
			s.logger.Warn("release sessions", zap.Error(closeErr))
		}
		cancel()
		if err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	}
}

// startSweeper closes expired sessions and drops expired cache rows on an
// interval until stopped.
func (s *Server) startSweeper() (func(), <-chan struct{}) {
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }, done
}

func (s *Server) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.APIRequest)
	defer cancel()
	closed, err := s.sessions.Sweep(ctx)
	if err != nil {
		s.logger.Warn("sweep sessions", zap.Error(err))
	}
	var purged int64
	if s.storage != nil {
		purged, err = s.storage.DeleteExpiredEntries(ctx, time.Now().UTC())
		if err != nil {
			s.logger.Warn("purge expired cache entries", zap.Error(err))
		}
	}
	if closed > 0 || purged > 0 {
		s.logger.Debug("expiry sweep", zap.Int("sessions", closed), zap.Int64("entries", purged))
	}
}

// Close releases the platform connection and the cache store.
func (s *Server) Close() {
	if s == nil {
		return
	}
	if s.apiConn != nil {
		if err := s.apiConn.Close(); err != nil {
			s.logger.Warn("close platform api connection", zap.Error(err))
		}
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			s.logger.Warn("close cache store", zap.Error(err))
		}
	}
}
