package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/zsiec/vrx/internal/analyzer"
	"github.com/zsiec/vrx/internal/capture"
	"github.com/zsiec/vrx/internal/config"
	apperrors "github.com/zsiec/vrx/internal/errors"
	"github.com/zsiec/vrx/internal/health"
	"github.com/zsiec/vrx/internal/logger"
	"github.com/zsiec/vrx/internal/metrics"
	"github.com/zsiec/vrx/internal/report"
	"github.com/zsiec/vrx/internal/trace"
	"github.com/zsiec/vrx/pkg/version"
)

type command struct {
	stdout io.Writer
	stderr io.Writer

	// set once logging is configured
	log *logrus.Logger
}

// loadConfig reads the config file and environment and applies command
// line overrides. Callers validate the sections they use.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, apperrors.WrapConfigError(err, "failed to load configuration")
	}
	applyFlags(c, cfg)
	return cfg, nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("cap") {
		cfg.Capture.File = c.String("cap")
	}
	if c.IsSet("group") {
		cfg.Capture.Group = c.String("group")
	}
	if c.IsSet("port") {
		cfg.Capture.Port = c.Int("port")
	}
	if c.IsSet("leap-seconds") {
		cfg.Analysis.LeapSeconds = c.Int64("leap-seconds")
	}
	if c.IsSet("active-ratio") {
		cfg.Analysis.ActiveRatio = c.String("active-ratio")
	}
	if c.IsSet("read-offset-ratio") {
		cfg.Analysis.ReadOffsetRatio = c.String("read-offset-ratio")
	}
	if c.IsSet("output") {
		cfg.Output.TracePath = c.String("output")
	}
	if c.IsSet("csv") {
		cfg.Output.CSVPath = c.String("csv")
	}
	if c.IsSet("summary") {
		cfg.Output.Summary = c.String("summary")
	}
	if c.Bool("no-color") {
		cfg.Output.Color = false
	}
	if c.IsSet("metrics-file") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = c.String("metrics-file")
	}
	if c.IsSet("store") {
		cfg.Store.Enabled = c.Bool("store")
	}
	if c.IsSet("redis-addr") {
		cfg.Store.RedisAddr = c.String("redis-addr")
	}
	if c.IsSet("log-level") {
		cfg.Logging.Level = c.String("log-level")
	}
	if c.IsSet("log-format") {
		cfg.Logging.Format = c.String("log-format")
	}
}

func (cmd *command) newLogger(cfg *config.Config) error {
	base, err := logger.New(&cfg.Logging)
	if err != nil {
		return apperrors.WrapConfigError(err, "failed to initialize logger")
	}
	if cfg.Logging.Output == "stderr" {
		base.SetOutput(cmd.stderr)
	}
	cmd.log = base
	return nil
}

// captureConfig loads and validates the full configuration for commands
// that read a capture. The capture file may also be given as the first
// argument.
func (cmd *command) captureConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if cfg.Capture.File == "" && c.Args().Present() {
		cfg.Capture.File = c.Args().First()
	}
	if err := cfg.Validate(); err != nil {
		return nil, apperrors.WrapConfigError(err, "invalid configuration")
	}
	if err := cmd.newLogger(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func captureSource(cfg *config.Config, log logger.Logger) *capture.PcapSource {
	filter := capture.Filter{
		Group: cfg.Capture.GroupIP(),
		Port:  uint16(cfg.Capture.Port),
	}
	return capture.NewPcapSource(cfg.Capture.File, filter, logger.WithComponent(log, "capture"))
}

func (cmd *command) analyze(c *cli.Context) error {
	cfg, err := cmd.captureConfig(c)
	if err != nil {
		return err
	}

	runID := logger.NewRunID()
	log := logger.ForRun(cmd.log, runID)
	ctx := logger.WithRunID(logger.WithLogger(c.Context, log), runID)

	active, offset, err := cfg.Analysis.Ratios()
	if err != nil {
		return apperrors.WrapConfigError(err, "invalid ratios")
	}

	src := captureSource(cfg, log)
	log.WithFields(map[string]interface{}{
		"capture": cfg.Capture.File,
		"stream":  src.Filter().String(),
	}).Info("Starting analysis")

	sink, err := openSinks(cfg)
	if err != nil {
		return err
	}

	var m *metrics.RunMetrics
	if cfg.Metrics.Enabled {
		m = metrics.NewRunMetrics(cfg.Metrics.Namespace, prometheus.Labels{
			"capture": filepath.Base(cfg.Capture.File),
			"stream":  src.Filter().String(),
		})
		m.SetBuildInfo(version.GetInfo().Labels())
	}

	a := analyzer.New(src,
		analyzer.WithRatios(active, offset),
		analyzer.WithLeapSeconds(cfg.Analysis.LeapSeconds),
		analyzer.WithSink(sink),
		analyzer.WithMetrics(m),
		analyzer.WithLogger(log),
		analyzer.WithUnderrunLogRate(cfg.Analysis.UnderrunLogRate, cfg.Analysis.UnderrunLogBurst),
		analyzer.WithRunID(runID),
	)

	out, err := a.Run(ctx)
	closeErr := sink.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return apperrors.WrapOutputError(closeErr, "failed to finish trace")
	}

	rep := out.Report
	rep.TracePath = cfg.TracePath()
	rep.CSVPath = cfg.Output.CSVPath

	if m != nil {
		if err := m.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			return apperrors.WrapOutputError(err, "failed to write metrics")
		}
		log.WithField("path", cfg.Metrics.TextfilePath).Debug("Metrics written")
	}

	if cfg.Store.Enabled {
		archiveReport(ctx, cfg.Store, rep)
	}

	return writeSummary(cmd.stdout, cfg.Output, rep)
}

// check runs the preflight checks for an analysis without running it.
func (cmd *command) check(c *cli.Context) error {
	cfg, err := cmd.captureConfig(c)
	if err != nil {
		return err
	}
	log := logger.NewLogrusAdapter(logrus.NewEntry(cmd.log))

	manager := health.NewManager(logger.WithComponent(log, "health"))
	manager.Register(health.NewCaptureChecker(captureSource(cfg, log)))
	manager.Register(health.NewOutputChecker("trace", cfg.TracePath()))
	if cfg.Output.CSVPath != "" {
		manager.Register(health.NewOutputChecker("csv", cfg.Output.CSVPath))
	}
	if cfg.Metrics.Enabled {
		manager.Register(health.NewOutputChecker("metrics", cfg.Metrics.TextfilePath))
	}
	if cfg.Store.Enabled {
		client := newRedisClient(cfg.Store)
		defer client.Close()
		manager.Register(health.NewRedisChecker(client))
	}

	results := manager.RunChecks(c.Context)
	if err := writeChecks(cmd.stdout, cfg.Output.Summary, results); err != nil {
		return apperrors.WrapOutputError(err, "failed to write check results")
	}

	if manager.GetOverallStatus() != health.StatusDown {
		return nil
	}
	for _, check := range results {
		if check.Status != health.StatusDown {
			continue
		}
		cause := errors.New(check.Message)
		if check.Name == "capture" {
			return apperrors.WrapCaptureError(cause, "capture check failed")
		}
		return apperrors.WrapOutputError(cause, check.Name+" check failed")
	}
	return nil
}

func writeChecks(w io.Writer, format string, results []*health.Check) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "none":
		return nil
	}

	for _, check := range results {
		_, err := fmt.Fprintf(w, "%-8s %-8s %6s  %s\n",
			check.Name, check.Status, check.Duration.Round(time.Millisecond), check.Message)
		if err != nil {
			return err
		}
	}
	return nil
}

// openSinks creates the newline trace and, when configured, the CSV trace.
func openSinks(cfg *config.Config) (trace.Sink, error) {
	newline, err := trace.CreateNewline(cfg.TracePath())
	if err != nil {
		return nil, apperrors.WrapOutputError(err, "failed to create trace")
	}
	if cfg.Output.CSVPath == "" {
		return newline, nil
	}

	csv, err := trace.CreateCSV(cfg.Output.CSVPath)
	if err != nil {
		_ = newline.Close()
		return nil, apperrors.WrapOutputError(err, "failed to create CSV trace")
	}
	return trace.MultiSink{newline, csv}, nil
}

// archiveReport saves rep to Redis. The store is optional, so failures are
// logged and do not fail the run.
func archiveReport(ctx context.Context, cfg config.StoreConfig, rep *report.Report) {
	log := logger.WithComponent(logger.FromContext(ctx), "store")

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Warn("Report store unavailable, report not archived")
		return
	}
	defer store.Close()

	if err := store.Save(ctx, rep); err != nil {
		log.WithError(err).Warn("Failed to archive report")
	}
}

func newRedisClient(cfg config.StoreConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
}

func openStore(ctx context.Context, cfg config.StoreConfig, log logger.Logger) (*report.RedisStore, error) {
	client := newRedisClient(cfg)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.RedisAddr, err)
	}

	return report.NewRedisStore(client, log, cfg.KeyPrefix, cfg.TTL), nil
}

func writeSummary(w io.Writer, cfg config.OutputConfig, rep *report.Report) error {
	var err error
	switch cfg.Summary {
	case "text":
		err = report.NewRenderer(w, cfg.Color).Write(w, rep)
	case "json":
		err = rep.WriteJSON(w)
	}
	if err != nil {
		return apperrors.WrapOutputError(err, "failed to write summary")
	}
	return nil
}

// reportStore opens the Redis store for the report commands.
func (cmd *command) reportStore(c *cli.Context) (*report.RedisStore, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, apperrors.WrapConfigError(err, "invalid logging configuration")
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, apperrors.WrapConfigError(err, "invalid store configuration")
	}
	if err := cmd.newLogger(cfg); err != nil {
		return nil, err
	}

	log := logger.WithComponent(logger.NewLogrusAdapter(logrus.NewEntry(cmd.log)), "store")
	store, err := openStore(c.Context, cfg.Store, log)
	if err != nil {
		return nil, apperrors.WrapOutputError(err, "report store unavailable")
	}
	return store, nil
}

func (cmd *command) listReports(c *cli.Context) error {
	store, err := cmd.reportStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.List(c.Context, c.Int64("limit"))
	if err != nil {
		return apperrors.WrapOutputError(err, "failed to list reports")
	}

	for _, rep := range reports {
		verdict := "ok"
		if !rep.Compliant() {
			verdict = humanize.Comma(int64(rep.Underruns)) + " underruns"
		}
		_, err := fmt.Fprintf(cmd.stdout, "%s  %-16s  %-32s  max %-6s  %s\n",
			rep.ID,
			humanize.Time(rep.FinishedAt),
			filepath.Base(rep.CaptureFile),
			humanize.Comma(int64(rep.MaxOccupancy)),
			verdict,
		)
		if err != nil {
			return apperrors.WrapOutputError(err, "failed to write report list")
		}
	}
	return nil
}

func (cmd *command) showReport(c *cli.Context) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	store, err := cmd.reportStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	rep, err := store.Get(c.Context, id)
	if err != nil {
		return apperrors.WrapOutputError(err, "failed to get report")
	}
	if err := rep.WriteJSON(cmd.stdout); err != nil {
		return apperrors.WrapOutputError(err, "failed to write report")
	}
	return nil
}

func (cmd *command) deleteReport(c *cli.Context) error {
	id, err := reportID(c)
	if err != nil {
		return err
	}
	store, err := cmd.reportStore(c)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Delete(c.Context, id); err != nil {
		return apperrors.WrapOutputError(err, "failed to delete report")
	}
	return nil
}

func reportID(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", apperrors.NewConfigError("expected exactly one report ID")
	}
	return c.Args().First(), nil
}
