package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/go-scrape-prices/config"
	"github.com/aluiziolira/go-scrape-prices/pipeline"
	"github.com/aluiziolira/go-scrape-prices/report"
	"github.com/aluiziolira/go-scrape-prices/scraper"
	"github.com/aluiziolira/go-scrape-prices/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment: %v\n", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.SitesFile, "sites", cfg.SitesFile, "Path to the JSON or YAML site list")
	flag.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "Number of sites processed at once")
	flag.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per request timeout")
	flag.StringVar(&cfg.NumberFormat, "number-format", cfg.NumberFormat, "Default price format: us or eu")
	flag.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	flag.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Write a snapshot of each run to this file")
	flag.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Snapshot format: csv, json, or dual")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	flag.StringVar(&cfg.PushgatewayURL, "pushgateway", cfg.PushgatewayURL, "Push run metrics to this Prometheus pushgateway")
	flag.StringVar(&cfg.Schedule, "schedule", cfg.Schedule, "Cron expression; run repeatedly instead of once")
	flag.StringVar(&cfg.TemplatePath, "template", cfg.TemplatePath, "Handlebars template for the report email")
	flag.BoolVar(&cfg.DryRun, "dry-run", cfg.DryRun, "Keep prices in memory and print the report instead of mailing it")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")

	flag.Parse()
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	cfg.NumberFormat = strings.ToLower(cfg.NumberFormat)

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("scraper failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	priceStore, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := closeStore(shutdownCtx); err != nil {
			slog.Error("close store", slog.Any("error", err))
		}
	}()

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}

	metrics := scraper.NewMetrics()
	s, err := scraper.NewScraper(cfg, priceStore, report.NewEmitter(sender), metrics)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	if cfg.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	if cfg.Schedule == "" {
		return runOnce(ctx, cfg, s)
	}

	schedLogger := newCronLogger(slog.Default())
	c := cron.New(
		cron.WithLogger(schedLogger),
		cron.WithChain(
			cron.Recover(schedLogger),
			cron.SkipIfStillRunning(schedLogger),
		),
	)
	if _, err := c.AddFunc(cfg.Schedule, func() {
		if err := runOnce(ctx, cfg, s); err != nil {
			slog.Error("scheduled run failed", slog.Any("error", err))
		}
	}); err != nil {
		return fmt.Errorf("schedule runs: %w", err)
	}

	slog.Info("scheduler started", slog.String("schedule", cfg.Schedule))
	c.Start()
	<-ctx.Done()
	slog.Info("shutdown signal received, waiting for the current run to finish")
	<-c.Stop().Done()
	return nil
}

// runOnce loads the site list and drains it through the runner.
func runOnce(ctx context.Context, cfg *config.Config, s *scraper.Scraper) error {
	sites, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		return err
	}

	slog.Info("starting scrape",
		slog.String("sites_file", cfg.SitesFile),
		slog.Int("sites", len(sites)),
		slog.Int("concurrency", cfg.Concurrency),
		slog.Bool("dry_run", cfg.DryRun),
	)

	result := s.Runner.Run(ctx, sites)
	s.Metrics.ObserveRun(result.EndTime, len(result.Failed))

	if cfg.PushgatewayURL != "" {
		if err := push.New(cfg.PushgatewayURL, "price_scraper").Gatherer(s.Metrics.Registry).Push(); err != nil {
			slog.Error("push metrics", slog.Any("error", err))
		}
	}

	if cfg.OutputFormat != "" {
		writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
		if err != nil {
			return fmt.Errorf("creating writer: %w", err)
		}
		if err := pipeline.WriteResult(writer, result); err != nil {
			return err
		}
		slog.Info("snapshot written", slog.String("file", cfg.OutputFile))
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (scraper.PriceStore, func(context.Context) error, error) {
	if cfg.DryRun {
		slog.Info("dry run: prices are kept in memory")
		return store.NewMemoryStore(), func(context.Context) error { return nil }, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	mongoStore, disconnect, err := store.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongo: %w", err)
	}
	return mongoStore, disconnect, nil
}

func newSender(cfg *config.Config) (report.Sender, error) {
	if cfg.DryRun || cfg.SMTPHost == "" {
		return report.NewLogSender(os.Stdout), nil
	}
	sender, err := report.NewMailSender(report.MailConfig{
		Host:         cfg.SMTPHost,
		Port:         cfg.SMTPPort,
		Username:     cfg.SMTPUser,
		Password:     cfg.SMTPPass,
		From:         cfg.MailFrom,
		To:           cfg.MailTo,
		TemplatePath: cfg.TemplatePath,
	})
	if err != nil {
		return nil, fmt.Errorf("creating mail sender: %w", err)
	}
	return sender, nil
}

func applyEnv(cfg *config.Config) error {
	stringVars := map[string]*string{
		"SCRAPER_SITES":          &cfg.SitesFile,
		"SCRAPER_USER_AGENT":     &cfg.UserAgent,
		"SCRAPER_NUMBER_FORMAT":  &cfg.NumberFormat,
		"SCRAPER_OUTPUT":         &cfg.OutputFile,
		"SCRAPER_FORMAT":         &cfg.OutputFormat,
		"SCRAPER_METRICS_ADDR":   &cfg.MetricsAddr,
		"SCRAPER_PUSHGATEWAY":    &cfg.PushgatewayURL,
		"SCRAPER_SCHEDULE":       &cfg.Schedule,
		"SCRAPER_EMAIL_TEMPLATE": &cfg.TemplatePath,
		"MONGO_URI":              &cfg.MongoURI,
		"MONGO_DATABASE":         &cfg.MongoDatabase,
		"MONGO_COLLECTION":       &cfg.MongoCollection,
		"SMTP_HOST":              &cfg.SMTPHost,
		"SMTP_USER":              &cfg.SMTPUser,
		"SMTP_PASS":              &cfg.SMTPPass,
		"MAIL_FROM":              &cfg.MailFrom,
	}
	for key, dst := range stringVars {
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}

	intVars := map[string]*int{
		"SCRAPER_CONCURRENCY": &cfg.Concurrency,
		"SMTP_PORT":           &cfg.SMTPPort,
	}
	for key, dst := range intVars {
		value, ok, err := config.EnvInt(key)
		if err != nil {
			return err
		}
		if ok {
			*dst = value
		}
	}

	if value, ok := config.EnvString("SCRAPER_TIMEOUT"); ok {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("SCRAPER_TIMEOUT: %w", err)
		}
		cfg.Timeout = d
	}
	if value, ok, err := config.EnvBool("SCRAPER_DRY_RUN"); err != nil {
		return err
	} else if ok {
		cfg.DryRun = value
	}
	if value, ok := config.EnvString("MAIL_TO"); ok {
		cfg.MailTo = config.SplitList(value)
	}
	return nil
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
