package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/joshdurbin/shortlink/internal/config"
	"github.com/joshdurbin/shortlink/internal/logging"
	"github.com/joshdurbin/shortlink/internal/repository/sqlstore"
	"github.com/joshdurbin/shortlink/internal/service"
	"github.com/joshdurbin/shortlink/internal/shortener"
	"github.com/joshdurbin/shortlink/internal/telemetry"
	"github.com/joshdurbin/shortlink/internal/transport/client"
	httpTransport "github.com/joshdurbin/shortlink/internal/transport/http"
)

const (
	shutdownTimeout   = 30 * time.Second
	searchReadyPoll   = 5 * time.Second
	clientCallTimeout = 10 * time.Second
)

var v = viper.New()

var rootCmd = &cobra.Command{
	Use:           "url-shortener",
	Short:         "A URL shortening service written in Go",
	Long:          "A URL shortening service backed by SQLite, MySQL or PostgreSQL that logs every request to a rotating file and an Elasticsearch index",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the URL shortening server",
	RunE:  runServer,
}

var setupIndexCmd = &cobra.Command{
	Use:   "setup-index",
	Short: "Wait for Elasticsearch and create the request log index",
	RunE:  runSetupIndex,
}

var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "Client commands for interacting with the server",
}

var shortenCmd = &cobra.Command{
	Use:   "shorten [URL]",
	Short: "Shorten a URL",
	Args:  cobra.ExactArgs(1),
	RunE:  runShorten,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [SHORT_CODE]",
	Short: "Show where a short code redirects",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

// flag name -> configuration key, per command
var (
	serverFlagKeys = map[string]string{
		"port":                 "server.port",
		"server-url":           "server.url",
		"db-driver":            "database.driver",
		"db-dsn":               "database.dsn",
		"search-enabled":       "search.enabled",
		"code-length":          "shortener.length",
		"max-attempts":         "shortener.max_attempts",
		"telemetry-queue":      "telemetry.queue_size",
		"telemetry-workers":    "telemetry.workers",
		"telemetry-timeout":    "telemetry.sink_timeout",
		"request-log":          "telemetry.log_file",
		"request-log-max-size": "telemetry.log_max_size_mb",
		"request-log-backups":  "telemetry.log_max_backups",
	}
	searchFlagKeys = map[string]string{
		"search-url":      "search.url",
		"search-username": "search.username",
		"search-password": "search.password",
		"search-index":    "search.index",
	}
	rootFlagKeys = map[string]string{
		"config":     "config",
		"log-level":  "logging.level",
		"log-format": "logging.format",
	}
)

func init() {
	config.SetDefaults(v)

	rootCmd.PersistentFlags().String("config", "", "Optional YAML configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text or json)")

	// Server command flags
	serverCmd.Flags().StringP("port", "p", "8080", "Server port")
	serverCmd.Flags().String("server-url", "", "Origin used in short URLs (derived from the request when empty)")
	serverCmd.Flags().String("db-driver", sqlstore.DriverSQLite, "Database driver (sqlite3, mysql, pgx)")
	serverCmd.Flags().String("db-dsn", "urls.db", "Database DSN or SQLite file path")
	serverCmd.Flags().Bool("search-enabled", false, "Index request logs into Elasticsearch")
	serverCmd.Flags().Bool("search-ensure-index", false, "Create the Elasticsearch index at start-up if it is missing")
	serverCmd.Flags().Int("code-length", shortener.DefaultConfig().Length, "Short code length")
	serverCmd.Flags().Int("max-attempts", shortener.DefaultConfig().MaxAttempts, "Short code draws before giving up")
	serverCmd.Flags().Int("telemetry-queue", telemetry.DefaultConfig().QueueSize, "Request log queue size")
	serverCmd.Flags().Int("telemetry-workers", telemetry.DefaultConfig().Workers, "Request log delivery workers")
	serverCmd.Flags().Duration("telemetry-timeout", telemetry.DefaultConfig().SinkTimeout, "Per-sink write timeout")
	serverCmd.Flags().String("request-log", "logs/url_shortener.log", "Request log file (empty disables)")
	serverCmd.Flags().Int("request-log-max-size", 1, "Request log size in megabytes before rotation")
	serverCmd.Flags().Int("request-log-backups", 10, "Rotated request log files to keep")
	addSearchFlags(serverCmd.Flags())

	setupIndexCmd.Flags().Duration("wait", 30*time.Second, "How long to wait for Elasticsearch to answer")
	addSearchFlags(setupIndexCmd.Flags())

	// Client command flags
	clientCmd.PersistentFlags().StringP("server-url", "u", "http://localhost:8080", "Server URL")

	clientCmd.AddCommand(shortenCmd, resolveCmd)
	rootCmd.AddCommand(serverCmd, setupIndexCmd, clientCmd)
}

func addSearchFlags(fs *pflag.FlagSet) {
	fs.String("search-url", "http://localhost:9200", "Elasticsearch URL")
	fs.String("search-username", "elastic", "Elasticsearch username")
	fs.String("search-password", "", "Elasticsearch password")
	fs.String("search-index", telemetry.DefaultIndex, "Elasticsearch index for request logs")
}

// loadConfig binds the executing command's flags and loads the configuration
func loadConfig(cmd *cobra.Command, flagKeys ...map[string]string) (*config.Config, error) {
	for _, keys := range append(flagKeys, rootFlagKeys) {
		for name, key := range keys {
			if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}
	return config.Load(v)
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, serverFlagKeys, searchFlagKeys)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("starting URL shortener server",
		"port", cfg.Server.Port,
		"driver", cfg.Database.Driver,
		"search_enabled", cfg.Search.Enabled,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlstore.New(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}()

	generator, err := shortener.NewGenerator(cfg.Shortener, store)
	if err != nil {
		return fmt.Errorf("failed to create shortener generator: %w", err)
	}
	logger.Info("using shortener generator", "type", generator.Type(), "length", generator.Length())

	svc := service.NewURLService(store, generator, cfg.Shortener.MaxAttempts, logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	ensureIndex, _ := cmd.Flags().GetBool("search-ensure-index")
	sinks, err := buildSinks(ctx, cfg, ensureIndex, logger)
	if err != nil {
		return err
	}

	pipeline := telemetry.NewPipeline(cfg.Telemetry.Config, store, sinks, metrics, logger)
	pipeline.Start()

	server := httpTransport.NewServer(svc, httpTransport.Config{
		Port:      cfg.Server.Port,
		ServerURL: cfg.Server.URL,
		Recorder:  pipeline,
		Metrics:   metrics,
		Gatherer:  reg,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)
		if closeErr := pipeline.Close(shutdownCtx); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildSinks creates the request log file sink and, when enabled, the
// Elasticsearch sink
func buildSinks(ctx context.Context, cfg *config.Config, ensureIndex bool, logger *slog.Logger) ([]telemetry.Sink, error) {
	var sinks []telemetry.Sink

	if cfg.Telemetry.File.Path != "" {
		sinks = append(sinks, telemetry.NewFileSink(cfg.Telemetry.File))
		logger.Info("request log file enabled", "path", cfg.Telemetry.File.Path)
	}

	if !cfg.Search.Enabled {
		return sinks, nil
	}

	es, err := telemetry.NewElasticsearchSink(cfg.Search)
	if err != nil {
		return nil, err
	}
	if ensureIndex {
		if err := setupIndex(ctx, es, 30*time.Second, logger); err != nil {
			return nil, err
		}
	}
	logger.Info("request log indexing enabled", "url", cfg.Search.URL, "index", es.Index())

	return append(sinks, es), nil
}

func setupIndex(ctx context.Context, es *telemetry.ElasticsearchSink, wait time.Duration, logger *slog.Logger) error {
	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	logger.Info("waiting for elasticsearch", "timeout", wait)
	if err := es.WaitReady(waitCtx, searchReadyPoll); err != nil {
		return fmt.Errorf("could not connect to elasticsearch: %w", err)
	}

	created, err := es.EnsureIndex(ctx)
	if err != nil {
		return err
	}
	if created {
		logger.Info("created index", "index", es.Index())
	} else {
		logger.Info("index already exists", "index", es.Index())
	}
	return nil
}

func runSetupIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, searchFlagKeys)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	es, err := telemetry.NewElasticsearchSink(cfg.Search)
	if err != nil {
		return err
	}

	wait, _ := cmd.Flags().GetDuration("wait")
	return setupIndex(cmd.Context(), es, wait, logger)
}

func newCommands(cmd *cobra.Command) *client.Commands {
	serverURL, _ := cmd.Flags().GetString("server-url")
	return client.NewCommands(client.NewClient(serverURL))
}

func runShorten(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientCallTimeout)
	defer cancel()

	return newCommands(cmd).Shorten(ctx, args[0])
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), clientCallTimeout)
	defer cancel()

	return newCommands(cmd).Resolve(ctx, args[0])
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
