// Package main implements the quillstream binary.
// One invocation either runs a single ingest pass over the configured event
// source (mode "ingest") or prints the canned analytics reports (mode
// "report").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/quillstream/quillstream/internal/archive"
	"github.com/quillstream/quillstream/internal/checkpoint"
	"github.com/quillstream/quillstream/internal/config"
	"github.com/quillstream/quillstream/internal/pipeline"
	"github.com/quillstream/quillstream/internal/report"
	"github.com/quillstream/quillstream/internal/source"
	"github.com/quillstream/quillstream/internal/warehouse"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "path to YAML or JSON config file")
		mode        = flag.String("mode", "", "override mode: ingest or report")
		eventsDir   = flag.String("events-dir", "", "override local events directory")
		dbPath      = flag.String("db", "", "override analytics database path")
		dataDir     = flag.String("data-dir", "", "override data directory")
		failOnError = flag.Bool("fail-on-error", false, "exit nonzero when any file failed to ingest")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}

	applyOverrides(cfg, cliOverrides{
		mode:        *mode,
		eventsDir:   *eventsDir,
		dbPath:      *dbPath,
		dataDir:     *dataDir,
		failOnError: *failOnError,
	})

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: invalid configuration: %v\n", err)
		return 1
	}

	log := newLogger(cfg.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case config.ModeIngest:
		return runIngest(ctx, cfg, log)
	case config.ModeReport:
		return runReport(ctx, cfg)
	default:
		fmt.Fprintf(os.Stderr, "quillstream: unknown mode %q\n", cfg.Mode)
		return 1
	}
}

// cliOverrides holds the flag values that take precedence over both the
// config file and the environment.
type cliOverrides struct {
	mode        string
	eventsDir   string
	dbPath      string
	dataDir     string
	failOnError bool
}

// applyOverrides applies non-empty flag values onto cfg. Paths the config
// left empty are derived from DataDir later by Resolve, so overriding the
// data directory never discards an explicitly configured path.
func applyOverrides(cfg *config.Config, o cliOverrides) {
	if o.mode != "" {
		cfg.Mode = config.Mode(o.mode)
	}
	if o.eventsDir != "" {
		cfg.Source.Type = "local"
		cfg.Source.EventsDir = o.eventsDir
	}
	if o.dbPath != "" {
		cfg.Warehouse.Path = o.dbPath
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.failOnError {
		cfg.Run.FailOnError = true
	}
}

func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

func newLogger(lc config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}

	var out = os.Stderr
	logger := zerolog.New(out)
	if lc.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func runIngest(ctx context.Context, cfg *config.Config, log zerolog.Logger) int {
	if err := cfg.EnsureDirectories(); err != nil {
		log.Error().Err(err).Msg("failed to create directories")
		return 1
	}

	src, err := newSource(ctx, cfg)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize event source")
		return 1
	}

	wh, err := warehouse.Open(cfg.Warehouse.Path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open warehouse")
		return 1
	}
	defer wh.Close()

	cp, err := checkpoint.Open(cfg.Checkpoint.Path)
	if err != nil {
		log.Error().Err(err).Msg("failed to open checkpoint store")
		return 1
	}
	defer cp.Close()

	var archiver *archive.Archiver
	if cfg.Archive.Enabled {
		archiver = archive.New(cfg.Archive.Dir)
	}

	driver := pipeline.New(src, wh, cp, archiver, log)
	summary, err := driver.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ingest run aborted")
		return 1
	}

	for _, f := range summary.Failed {
		log.Warn().Str("file", f.FileID).Str("reason", f.Reason).Msg("file failed")
	}

	if cfg.Run.FailOnError && summary.FailedCount() > 0 {
		return 1
	}
	return 0
}

func newSource(ctx context.Context, cfg *config.Config) (source.Source, error) {
	switch cfg.Source.Type {
	case "local":
		return source.NewLocalSource(cfg.Source.EventsDir), nil
	case "s3":
		return source.NewS3Source(ctx, cfg.Source.S3.Bucket, source.S3Config{
			Region:       cfg.Source.S3.Region,
			Endpoint:     cfg.Source.S3.Endpoint,
			UsePathStyle: cfg.Source.S3.UsePathStyle,
			Prefix:       cfg.Source.S3.Prefix,
		})
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Source.Type)
	}
}

func runReport(ctx context.Context, cfg *config.Config) int {
	r, err := report.Open(cfg.Warehouse.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}
	defer r.Close()

	counts, err := r.TableCounts(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}
	fmt.Println("== Table counts ==")
	fmt.Printf("raw_events: %d\nusers: %d\ndocuments: %d\nevents: %d\n\n",
		counts.RawEvents, counts.Users, counts.Documents, counts.Events)

	byType, err := r.EventsByType(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}
	fmt.Println("== Events by type ==")
	for _, tc := range byType {
		fmt.Printf("%-20s %d\n", tc.EventType, tc.Count)
	}
	fmt.Println()

	byDay, err := r.ActivityByDay(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}
	fmt.Println("== Activity by day of week ==")
	for _, dc := range byDay {
		fmt.Printf("%-10s %d\n", dc.Day, dc.Count)
	}
	fmt.Println()

	topUsers, err := r.TopUsers(ctx, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}
	fmt.Println("== Top users ==")
	for _, u := range topUsers {
		fmt.Printf("%-20s events=%-6d first_seen=%s last_seen=%s\n",
			u.UserID, u.EventCount, orDash(u.FirstSeen), orDash(u.LastSeen))
	}
	fmt.Println()

	docs, err := r.DocumentEngagementReport(ctx, 10)
	if err != nil {
		fmt.Fprintf(os.Stderr, "quillstream: %v\n", err)
		return 1
	}
	fmt.Println("== Document engagement ==")
	for _, d := range docs {
		fmt.Printf("%-20s events=%-6d title=%s owner=%s\n",
			d.DocumentID, d.EventCount, orDash(d.Title), orDash(d.OwnerUserID))
	}

	return 0
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
