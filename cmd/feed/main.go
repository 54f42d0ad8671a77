// ====================================
// File: cmd/feed/main.go
// ====================================
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/hyperfeed/internal/config"
	"github.com/rovshanmuradov/hyperfeed/internal/export"
	"github.com/rovshanmuradov/hyperfeed/internal/feed"
	"github.com/rovshanmuradov/hyperfeed/internal/logger"
)

type cliArgs struct {
	configPath string
	envFile    string
	options    feed.Options
}

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet("hyperfeed", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Hyperliquid daily positions feed: top perp positions per token, published as a thread.")
		fmt.Fprintln(stderr)
		fmt.Fprintln(stderr, "Usage: hyperfeed [flags]")
		flags.PrintDefaults()
	}

	flags.Bool("dry-run", false, "format and preview the thread without posting")
	flags.Int("schedule", 0, "schedule the draft this many minutes from now")
	flags.Bool("use-images", false, "attach a rendered table image to each token post")
	flags.Bool("health-check", false, "probe the APIs and print a JSON status")
	flags.String("config", "", "path to a config file (yaml, json or toml)")
	flags.String("env-file", "", "path to a .env file (default: ./.env if present)")
	flags.String("export", "", "also export fetched positions as csv or json")
	flags.String("input", "", "replay positions from a JSON export instead of fetching")

	// Bound onto configuration keys.
	flags.StringSlice("tokens", nil, "tokens to cover, e.g. BTC,ETH")
	flags.Bool("debug", false, "enable debug logging")
	flags.String("output-dir", "", "directory for images and exports")
	flags.Int("concurrency", 0, "number of tokens fetched in parallel")
	flags.String("metrics", "", "write Prometheus metrics to this textfile")
	return flags
}

func parseArgs(flags *pflag.FlagSet, args []string) (cliArgs, error) {
	if err := flags.Parse(args); err != nil {
		return cliArgs{}, err
	}
	if flags.NArg() > 0 {
		return cliArgs{}, fmt.Errorf("unexpected arguments: %v", flags.Args())
	}

	var (
		parsed cliArgs
		err    error
		format string
	)
	parsed.configPath, _ = flags.GetString("config")
	parsed.envFile, _ = flags.GetString("env-file")
	parsed.options.DryRun, _ = flags.GetBool("dry-run")
	parsed.options.UseImages, _ = flags.GetBool("use-images")
	parsed.options.HealthCheck, _ = flags.GetBool("health-check")
	parsed.options.InputFile, _ = flags.GetString("input")
	parsed.options.ScheduleMinutes, _ = flags.GetInt("schedule")
	if parsed.options.ScheduleMinutes < 0 {
		return cliArgs{}, errors.New("--schedule must not be negative")
	}

	format, _ = flags.GetString("export")
	if format != "" {
		if parsed.options.Export, err = export.ParseFormat(format); err != nil {
			return cliArgs{}, err
		}
	}
	return parsed, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := newFlagSet(stderr)
	parsed, err := parseArgs(flags, args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	if err := config.LoadDotEnv(parsed.envFile); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	cfg, err := config.LoadConfig(parsed.configPath, flags)
	if err != nil {
		fmt.Fprintln(stderr, "Error: failed to load config:", err)
		return 1
	}

	log := logger.New(cfg.DebugLogging)
	defer func() { _ = log.Sync() }()

	if err := feed.NewRunner(cfg, parsed.options, stdout, log).Run(ctx); err != nil {
		if !errors.Is(err, feed.ErrUnhealthy) {
			log.Error("Feed run failed", zap.Error(err))
		}
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
