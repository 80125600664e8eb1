// Package web parses web command flags and starts the session service.
package web

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/captify/captify/internal/platform/cmd"
	"github.com/captify/captify/internal/platform/logging"
	"github.com/captify/captify/internal/services/web/app"
)

// Config holds the web command configuration.
type Config struct {
	HTTPAddr            string        `env:"CAPTIFY_WEB_HTTP_ADDR" envDefault:"localhost:8080"`
	APIAddr             string        `env:"CAPTIFY_WEB_API_ADDR" envDefault:"localhost:8090"`
	CacheDBPath         string        `env:"CAPTIFY_WEB_CACHE_DB_PATH" envDefault:"data/web-cache.db"`
	CacheFreshTTL       time.Duration `env:"CAPTIFY_WEB_CACHE_FRESH_TTL" envDefault:"5m"`
	SessionTTL          time.Duration `env:"CAPTIFY_WEB_SESSION_TTL" envDefault:"12h"`
	JWTSecret           string        `env:"CAPTIFY_WEB_JWT_SECRET"`
	JWTIssuer           string        `env:"CAPTIFY_WEB_JWT_ISSUER"`
	JWTAudience         string        `env:"CAPTIFY_WEB_JWT_AUDIENCE"`
	TrustForwardedProto bool          `env:"CAPTIFY_WEB_TRUST_FORWARDED_PROTO"`
	DialTimeout         time.Duration `env:"CAPTIFY_WEB_DIAL_TIMEOUT" envDefault:"2s"`
	LogLevel            string        `env:"CAPTIFY_WEB_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "Platform API gRPC address")
	fs.StringVar(&cfg.CacheDBPath, "cache-db-path", cfg.CacheDBPath, "Session cache SQLite path (empty keeps sessions in memory)")
	fs.DurationVar(&cfg.CacheFreshTTL, "cache-fresh-ttl", cfg.CacheFreshTTL, "Age after which a persisted cache snapshot is refetched")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", cfg.SessionTTL, "Maximum session lifetime")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the web session server.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceWeb, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWeb, logger, func(ctx context.Context) error {
		server, err := app.NewServer(ctx, app.Config{
			HTTPAddr:            cfg.HTTPAddr,
			APIAddr:             cfg.APIAddr,
			CacheDBPath:         cfg.CacheDBPath,
			CacheFreshTTL:       cfg.CacheFreshTTL,
			SessionTTL:          cfg.SessionTTL,
			JWTSecret:           cfg.JWTSecret,
			JWTIssuer:           cfg.JWTIssuer,
			JWTAudience:         cfg.JWTAudience,
			TrustForwardedProto: cfg.TrustForwardedProto,
			DialTimeout:         cfg.DialTimeout,
			Logger:              logger,
		})
		if err != nil {
			return fmt.Errorf("init web server: %w", err)
		}
		defer server.Close()

		if err := server.ListenAndServe(ctx); err != nil {
			return fmt.Errorf("serve web: %w", err)
		}
		return nil
	})
}
