package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"img-scraper/pkg/config"
	"img-scraper/pkg/crawler"
	applog "img-scraper/pkg/log"
	"img-scraper/pkg/metrics"
	"img-scraper/pkg/models"
	"img-scraper/pkg/queue"
	"img-scraper/pkg/storage"
)

const (
	version           = "0.4.0"
	defaultConfigPath = "config.yaml"
	gcInterval        = 10 * time.Minute
	shutdownTimeout   = 10 * time.Second
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "crawl":
		os.Exit(runCrawl(os.Args[2:]))
	case "worker":
		os.Exit(runWorker(os.Args[2:]))
	case "enqueue":
		os.Exit(runEnqueue(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "clear":
		os.Exit(runClear(os.Args[2:]))
	case "validate":
		os.Exit(runValidate(os.Args[2:]))
	case "version":
		fmt.Printf("img-scraper %s\n", version)
	case "-h", "--help", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	printUsageTo(os.Stdout)
}

// printUsageTo writes usage information to the provided writer.
func printUsageTo(w io.Writer) {
	fmt.Fprintln(w, `img-scraper - Image crawler for web pages and forum threads

Usage:
  img-scraper <command> [options]

Commands:
  crawl       Crawl one page and download its images
  worker      Consume the task queue until interrupted
  enqueue     Add page URLs to the task queue
  status      Show queue length and result count
  clear       Delete all pending tasks
  validate    Validate configuration file
  version     Show version info

Run 'img-scraper <command> -h' for command-specific help.`)
}

// commonOptions are the flags shared by every command that loads config
type commonOptions struct {
	configFile *string
	logLevel   *string
	logFormat  *string
}

func addCommonFlags(fs *flag.FlagSet) commonOptions {
	return commonOptions{
		configFile: fs.String("config", defaultConfigPath, "Path to YAML config file"),
		logLevel:   fs.String("loglevel", "info", "Log level (debug, info, warn, error, fatal)"),
		logFormat:  fs.String("logformat", "text", "Log format (text, json)"),
	}
}

// setup builds the logger and the effective config: YAML, then .env, then environment, then defaults
func setup(opts commonOptions) (*config.AppConfig, *logrus.Logger, error) {
	log, err := applog.NewLogger(*opts.logLevel, *opts.logFormat)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := loadConfig(*opts.configFile, log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// loadConfig loads, overrides and validates the config, logging warnings
func loadConfig(path string, log *logrus.Logger) (*config.AppConfig, error) {
	if err := config.LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, path == defaultConfigPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(nil); err != nil {
		return nil, err
	}
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		log.Warn(w)
	}
	return cfg, nil
}

// backends holds the queue and history selected by queue.backend
type backends struct {
	queue   queue.Queue
	history storage.History
	badger  *storage.BadgerHistory // Set for the memory backend, for GC
	close   func()
}

func openBackends(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) (*backends, error) {
	entry := log.WithField("component", "queue")

	switch cfg.Queue.Backend {
	case "memory":
		hist, err := storage.NewBadgerHistory(cfg.StateDir, cfg.Queue.HistoryLimit, log.WithField("component", "history"))
		if err != nil {
			return nil, err
		}
		q := queue.NewMemoryQueue(entry)
		return &backends{
			queue:   q,
			history: hist,
			badger:  hist,
			close: func() {
				q.Close()
				hist.Close()
			},
		}, nil

	default:
		redis.SetLogger(applog.NewRedisLogrusAdapter(log.WithField("component", "redis")))
		client, err := queue.NewRedisClient(ctx, cfg.Queue)
		if err != nil {
			return nil, err
		}
		log.Infof("Connected to redis at %s (db %d)", cfg.Queue.RedisAddr(), cfg.Queue.RedisDB)
		return &backends{
			queue:   queue.NewRedisQueue(client, cfg.Queue.QueueKey, entry),
			history: storage.NewRedisHistory(client, cfg.Queue.HistoryKey, cfg.Queue.HistoryLimit, log.WithField("component", "history")),
			close:   func() { client.Close() },
		}, nil
	}
}

// signalContext cancels on SIGINT/SIGTERM; a second signal forces exit
func signalContext(log *logrus.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warnf("Received signal: %v. Finishing current task before shutdown...", sig)
			cancel()
		case <-ctx.Done():
			return
		}
		sig := <-sigChan
		log.Warnf("Received second signal: %v. Forcing exit.", sig)
		os.Exit(1)
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}

// --- crawl ---

func runCrawl(args []string) int {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	opts := addCommonFlags(fs)
	source := fs.String("source", "cli", "Source label recorded with the crawl")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: img-scraper crawl [options] <url>\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil || fs.NArg() != 1 {
		fs.Usage()
		return 1
	}

	cfg, log, err := setup(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext(log)
	defer cancel()

	return doCrawl(ctx, cfg, log, fs.Arg(0), *source, os.Stdout)
}

// doCrawl runs one crawl and prints the outcome as JSON. Returns 0 on success, 1 otherwise.
func doCrawl(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger, rawURL, source string, stdout io.Writer) int {
	engine, err := crawler.NewEngine(cfg, logrus.NewEntry(log), nil)
	if err != nil {
		log.Errorf("Failed to initialize crawler: %v", err)
		return 1
	}

	outcome := engine.Crawl(ctx, crawler.NewTarget(rawURL, source, time.Now()))

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(outcome); err != nil {
		log.Errorf("Failed to write outcome: %v", err)
		return 1
	}
	if !outcome.Success {
		return 1
	}
	return 0
}

// --- worker ---

func runWorker(args []string) int {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	opts := addCommonFlags(fs)
	metricsAddr := fs.String("metrics-addr", "", "Prometheus listen address (overrides metrics_addr)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: img-scraper worker [options]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, log, err := setup(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	ctx, cancel := signalContext(log)
	defer cancel()

	if err := doWorker(ctx, cfg, log); err != nil {
		log.Errorf("Worker stopped with error: %v", err)
		return 1
	}
	log.Info("Worker stopped")
	return 0
}

// doWorker runs the queue processor, the metrics listener and badger GC until ctx is done
func doWorker(ctx context.Context, cfg *config.AppConfig, log *logrus.Logger) error {
	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	engine, err := crawler.NewEngine(cfg, log.WithField("component", "engine"), &crawler.Options{Recorder: m})
	if err != nil {
		return err
	}
	proc := queue.NewProcessor(b.queue, b.history, engine, cfg, m, log.WithField("component", "processor"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return proc.Run(gctx) })

	if b.badger != nil {
		g.Go(func() error {
			b.badger.RunGC(gctx, gcInterval)
			return nil
		})
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(reg))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Infof("Serving metrics on http://%s/metrics", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// --- enqueue / status / clear ---

func runEnqueue(args []string) int {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	opts := addCommonFlags(fs)
	source := fs.String("source", "cli", "Source label stored in the task")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: img-scraper enqueue [options] <url> [url...]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil || fs.NArg() == 0 {
		fs.Usage()
		return 1
	}
	return withBackends(opts, func(ctx context.Context, cfg *config.AppConfig, b *backends) int {
		if cfg.Queue.Backend == "memory" {
			fmt.Fprintln(os.Stderr, "Warning: memory queue does not outlive this process")
		}
		return doEnqueue(ctx, b.queue, fs.Args(), *source, os.Stdout, os.Stderr)
	})
}

// doEnqueue pushes each valid URL. Returns 1 if any URL was rejected.
func doEnqueue(ctx context.Context, q queue.Queue, urls []string, source string, stdout, stderr io.Writer) int {
	exitCode := 0
	for _, u := range urls {
		p, err := queue.Enqueue(ctx, q, u, source, time.Now())
		if err != nil {
			fmt.Fprintf(stderr, "REJECTED: %s: %v\n", u, err)
			exitCode = 1
			continue
		}
		fmt.Fprintf(stdout, "QUEUED: %s\n", p.URL)
	}
	return exitCode
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	opts := addCommonFlags(fs)
	recent := fs.Int("recent", 0, "Also print the N most recent results")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return withBackends(opts, func(ctx context.Context, _ *config.AppConfig, b *backends) int {
		return doStatus(ctx, b.queue, b.history, *recent, os.Stdout, os.Stderr)
	})
}

// doStatus prints the queue status snapshot, plus recent history records when asked
func doStatus(ctx context.Context, q queue.Queue, history storage.History, recent int, stdout, stderr io.Writer) int {
	status, err := queue.Status(ctx, q, history, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	out := struct {
		models.QueueStatus
		Recent []models.HistoryRecord `json:"recent,omitempty"`
	}{QueueStatus: status}
	if recent > 0 {
		recs, err := history.Recent(ctx, recent)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		out.Recent = recs
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func runClear(args []string) int {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	opts := addCommonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return withBackends(opts, func(ctx context.Context, _ *config.AppConfig, b *backends) int {
		return doClear(ctx, b.queue, os.Stdout, os.Stderr)
	})
}

// doClear deletes the pending queue
func doClear(ctx context.Context, q queue.Queue, stdout, stderr io.Writer) int {
	n, err := q.Clear(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "Queue cleared (%d removed)\n", n)
	return 0
}

// withBackends loads config, opens the backends and runs fn
func withBackends(opts commonOptions, fn func(context.Context, *config.AppConfig, *backends) int) int {
	cfg, log, err := setup(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	ctx, cancel := signalContext(log)
	defer cancel()

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer b.close()
	return fn(ctx, cfg, b)
}

// --- validate ---

func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	configFile := fs.String("config", defaultConfigPath, "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	return doValidate(*configFile, os.Stdout, os.Stderr)
}

// doValidate checks a config file without applying environment overrides
func doValidate(path string, stdout, stderr io.Writer) int {
	cfg, err := config.Load(path, false)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	warnings, err := cfg.Validate()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, w := range warnings {
		fmt.Fprintf(stdout, "WARN: %s\n", w)
	}
	fmt.Fprintf(stdout, "Configuration valid (queue backend: %s, output: %s)\n", cfg.Queue.Backend, cfg.OutputDir)
	return 0
}
