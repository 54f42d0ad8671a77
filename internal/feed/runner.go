// internal/feed/runner.go
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/hyperfeed/internal/config"
	"github.com/rovshanmuradov/hyperfeed/internal/export"
	"github.com/rovshanmuradov/hyperfeed/internal/health"
	"github.com/rovshanmuradov/hyperfeed/internal/metrics"
	"github.com/rovshanmuradov/hyperfeed/internal/positions"
	"github.com/rovshanmuradov/hyperfeed/internal/render"
	"github.com/rovshanmuradov/hyperfeed/internal/thread"
	"github.com/rovshanmuradov/hyperfeed/internal/typefully"
	"github.com/rovshanmuradov/hyperfeed/internal/ui/preview"
)

// ErrUnhealthy is returned by a health-check run when a probed service failed.
var ErrUnhealthy = errors.New("health check failed")

// Options are the per-run switches from the command line.
type Options struct {
	DryRun          bool
	ScheduleMinutes int
	UseImages       bool
	HealthCheck     bool
	// Export writes the fetched data to the output dir when set.
	Export export.ExportFormat
	// InputFile replays a JSON export instead of calling the position API.
	InputFile string
}

// Runner wires the fetch, format and publish stages of one feed run.
type Runner struct {
	cfg     *config.Config
	opts    Options
	out     io.Writer
	logger  *zap.Logger
	metrics *metrics.Collector

	nansen    *positions.Client
	typefully *typefully.Client
	formatter *thread.Formatter
	renderer  *render.TableRenderer
	exporter  *export.PositionExporter
}

// NewRunner builds the API clients from cfg. Results and previews are
// written to out; diagnostics go to logger.
func NewRunner(cfg *config.Config, opts Options, out io.Writer, logger *zap.Logger) *Runner {
	collector := metrics.NewCollector()
	now := time.Now

	return &Runner{
		cfg:     cfg,
		opts:    opts,
		out:     out,
		logger:  logger,
		metrics: collector,
		nansen: positions.NewClient(positions.Options{
			URL:            cfg.Nansen.URL,
			APIKey:         cfg.Nansen.APIKey,
			PerPage:        cfg.Nansen.PerPage,
			Timeout:        cfg.Nansen.Timeout,
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			Recorder:       collector,
		}, logger),
		typefully: typefully.NewClient(typefully.Options{
			BaseURL:           cfg.Typefully.URL,
			APIKey:            cfg.Typefully.APIKey,
			Platforms:         cfg.Typefully.Platforms,
			Timeout:           cfg.Typefully.Timeout,
			MediaPollAttempts: cfg.Typefully.MediaPollAttempts,
			MediaPollInterval: cfg.Typefully.MediaPollInterval,
			Now:               now,
		}, logger),
		formatter: &thread.Formatter{Now: now, MaxPostChars: cfg.Thread.MaxPostChars},
		renderer:  render.NewTableRenderer(logger),
		exporter:  export.NewPositionExporter(logger),
	}
}

// Metrics exposes the run's collector.
func (r *Runner) Metrics() *metrics.Collector {
	return r.metrics
}

// Run executes one feed run. Partial fetch failures are not errors; missing
// credentials, discovery and publish failures are.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Hyperliquid Daily Feed",
		zap.Bool("dry_run", r.opts.DryRun),
		zap.Bool("images", r.opts.UseImages),
		zap.Strings("tokens", r.cfg.Tokens))

	if r.cfg.MetricsFile != "" {
		defer func() {
			if werr := r.metrics.WriteTextfile(r.cfg.MetricsFile); werr != nil {
				r.logger.Warn("Failed to write metrics", zap.Error(werr))
			}
		}()
	}

	if err := r.validateCredentials(); err != nil {
		return err
	}

	if r.opts.HealthCheck {
		return r.healthCheck(ctx)
	}

	setID, err := r.socialSetID(ctx)
	if err != nil {
		return err
	}

	agg, err := r.loadPositions(ctx)
	if err != nil {
		return err
	}
	if len(agg.Succeeded()) == 0 {
		r.logger.Warn("No token data available, thread will only contain the footer")
	}

	if r.opts.Export != "" {
		if _, err := r.exporter.Export(agg, export.ExportOptions{Format: r.opts.Export, OutputDir: r.cfg.OutputDir}); err != nil {
			r.logger.Warn("Export failed", zap.Error(err))
		}
	}

	posts, images := r.buildThread(ctx, agg, setID)
	r.logger.Info("Formatted thread", zap.Int("posts", len(posts)))

	if r.opts.DryRun {
		if _, err := r.typefully.Publish(ctx, setID, posts, typefully.PublishOptions{DryRun: true, ScheduleMinutes: r.opts.ScheduleMinutes}); err != nil {
			return err
		}
		if err := preview.Print(r.out, posts, images); err != nil {
			return fmt.Errorf("print preview: %w", err)
		}
		r.logger.Info("Dry run complete, no posts created")
		return nil
	}

	draft, err := r.typefully.Publish(ctx, setID, posts, typefully.PublishOptions{ScheduleMinutes: r.opts.ScheduleMinutes})
	if err != nil {
		return fmt.Errorf("publish thread: %w", err)
	}
	r.metrics.ObservePublished(len(posts))
	r.logger.Info("Success", zap.String("draft_id", string(draft.ID)))

	return r.printJSON(draft)
}

func (r *Runner) validateCredentials() error {
	// Replaying a saved export needs no position API access.
	requireNansen := r.opts.InputFile == "" || r.opts.HealthCheck
	requireTypefully := !r.opts.DryRun && !r.opts.HealthCheck

	if err := r.cfg.ValidateCredentials(requireNansen, requireTypefully); err != nil {
		r.logger.Error("Set missing environment variables or use --dry-run mode", zap.Error(err))
		return err
	}
	return nil
}

func (r *Runner) healthCheck(ctx context.Context) error {
	r.logger.Info("Running health check")

	var tf health.Prober
	if r.cfg.Typefully.APIKey != "" {
		tf = r.typefully
	}
	status := health.NewChecker(r.nansen, tf, r.logger).Check(ctx)

	if err := r.printJSON(status); err != nil {
		return err
	}
	if !status.Healthy() {
		return ErrUnhealthy
	}
	return nil
}

func (r *Runner) socialSetID(ctx context.Context) (string, error) {
	if id := r.cfg.Typefully.SocialSetID; id != "" || r.opts.DryRun {
		return id, nil
	}

	r.logger.Info("Auto-discovering social set")
	set, err := r.typefully.DiscoverSocialSet(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to discover social sets: %w", err)
	}
	return typefully.FormatSetID(set.ID), nil
}

func (r *Runner) loadPositions(ctx context.Context) (positions.Aggregate, error) {
	if r.opts.InputFile != "" {
		r.logger.Info("Loading positions from file", zap.String("file", r.opts.InputFile))
		return export.Load(r.opts.InputFile)
	}

	r.logger.Info("Fetching positions from Nansen API")
	agg := positions.NewAggregator(r.nansen, r.cfg.FetchConcurrency, r.metrics, r.logger).FetchAll(ctx, r.cfg.Tokens)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetch interrupted: %w", err)
	}
	return agg, nil
}

// buildThread formats the posts, rendering and uploading table images when
// requested. Any image failure falls back to the text thread.
func (r *Runner) buildThread(ctx context.Context, agg positions.Aggregate, setID string) ([]thread.Post, []string) {
	if !r.opts.UseImages {
		return r.formatter.Build(agg), nil
	}

	r.logger.Info("Generating table images")
	images, err := r.renderer.RenderAll(agg, r.cfg.OutputDir)
	if err != nil {
		r.logger.Error("Failed to generate images, falling back to text-only mode", zap.Error(err))
		return r.formatter.Build(agg), nil
	}

	paths := make([]string, len(images))
	media := make(map[string]string, len(images))
	for i, img := range images {
		paths[i] = img.Path
		if r.opts.DryRun {
			media[img.Token] = fmt.Sprintf("img_%d", i)
			continue
		}
		id, err := r.typefully.UploadMedia(ctx, setID, img.Path)
		r.metrics.ObserveUpload(err == nil)
		if err != nil {
			r.logger.Warn("Failed to upload image", zap.String("token", img.Token), zap.Error(err))
			continue
		}
		media[img.Token] = id
	}

	return r.formatter.BuildWithImages(agg, media), paths
}

func (r *Runner) printJSON(v any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}
