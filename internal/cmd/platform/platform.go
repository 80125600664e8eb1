// Package platform parses platform command flags and starts the API runtime.
package platform

import (
	"context"
	"flag"

	entrypoint "github.com/captify/captify/internal/platform/cmd"
	"github.com/captify/captify/internal/platform/logging"
	server "github.com/captify/captify/internal/services/platform/app"
)

// Config holds platform command configuration.
type Config struct {
	Port     int    `env:"CAPTIFY_PLATFORM_PORT" envDefault:"8090"`
	DBPath   string `env:"CAPTIFY_PLATFORM_DB_PATH" envDefault:"data/platform.db"`
	SeedPath string `env:"CAPTIFY_PLATFORM_SEED_PATH"`
	LogLevel string `env:"CAPTIFY_PLATFORM_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The platform API port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "Platform SQLite path")
	fs.StringVar(&cfg.SeedPath, "seed", cfg.SeedPath, "YAML fixture applied at startup")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the platform API service.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServicePlatform, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePlatform, logger, func(ctx context.Context) error {
		return server.Run(ctx, server.RuntimeConfig{
			Port:     cfg.Port,
			DBPath:   cfg.DBPath,
			SeedPath: cfg.SeedPath,
			Logger:   logger,
		})
	})
}
