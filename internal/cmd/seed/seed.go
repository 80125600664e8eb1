// Package seed applies YAML fixtures to a running platform API.
package seed

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	entrypoint "github.com/captify/captify/internal/platform/cmd"
	"github.com/captify/captify/internal/platform/logging"
	fixtures "github.com/captify/captify/internal/services/platform/seed"
	"github.com/captify/captify/internal/services/shared/apiclient"
	"github.com/captify/captify/internal/services/shared/grpcdial"
)

// Config holds seed command configuration.
type Config struct {
	APIAddr     string        `env:"CAPTIFY_SEED_API_ADDR" envDefault:"localhost:8090"`
	File        string        `env:"CAPTIFY_SEED_FILE"`
	DialTimeout time.Duration `env:"CAPTIFY_SEED_DIAL_TIMEOUT" envDefault:"5s"`
	Verbose     bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "Platform API gRPC address")
	fs.StringVar(&cfg.File, "file", cfg.File, "YAML fixture to apply")
	fs.BoolVar(&cfg.Verbose, "v", false, "verbose output")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run applies the fixture and writes a summary to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if strings.TrimSpace(cfg.File) == "" {
		return errors.New("fixture file is required")
	}
	fixture, err := fixtures.Load(cfg.File)
	if err != nil {
		return err
	}
	level := "warn"
	if cfg.Verbose {
		level = "debug"
	}
	logger, err := logging.New(entrypoint.ServiceSeed, level)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSeed, logger, func(ctx context.Context) error {
		conn, err := grpcdial.DialAPI(ctx, cfg.APIAddr, cfg.DialTimeout, logger)
		if err != nil {
			return err
		}
		defer func() { _ = conn.Close() }()

		summary, err := fixtures.Apply(ctx, apiclient.NewGRPCClient(conn), fixture, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "seeded %d items and %d entities (%d skipped)\n", summary.Items, summary.Entities, summary.Skipped)
		return nil
	})
}
