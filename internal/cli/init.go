// Package cli provides the initialization shared by the ikpa commands:
// environment loading, logging, configuration and service wiring.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ikpa/internal/amqp"
	"ikpa/internal/auth"
	"ikpa/internal/cache"
	"ikpa/internal/commitment"
	"ikpa/internal/config"
	"ikpa/internal/debrief"
	"ikpa/internal/finance"
	"ikpa/internal/goal"
	"ikpa/internal/gps"
	apphttp "ikpa/internal/http"
	"ikpa/internal/llm"
	ilog "ikpa/internal/log"
	"ikpa/internal/merchant"
	"ikpa/internal/shark"
	"ikpa/internal/sheets"
	gsheet "ikpa/internal/sheets/google"
	"ikpa/internal/simulation"
	"ikpa/internal/storage"
	"ikpa/internal/storycard"
	"ikpa/internal/worker"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as the slog default.
func SetupLogger(cfg *config.Config) *ilog.Logger {
	c := ilog.DefaultConfig()
	c.Format = cfg.LogFormat
	if level, err := ilog.ParseLevel(cfg.LogLevel); err == nil {
		c.Level = level
	}
	logger := ilog.New(c)
	ilog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// OpenStore connects to the configured database and applies migrations.
func OpenStore(ctx context.Context, cfg *config.Config) (*storage.Store, error) {
	dialect, err := storage.ParseDialect(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	return storage.Open(ctx, dialect, cfg.DSN())
}

// App holds the wired services of one process.
type App struct {
	Config *config.Config
	Logger *ilog.Logger
	Store  *storage.Store
	Caches *cache.Manager

	Tokens      *auth.Tokens
	Auth        *auth.Service
	Snapshots   *finance.SnapshotService
	Goals       *goal.Service
	GPS         *gps.Service
	Shark       *shark.Service
	Commitments *commitment.Service
	Debriefs    *debrief.Service
	StoryCards  *storycard.Service
	Simulation  *simulation.Engine
	Merchants   *merchant.Matcher

	// Broker is nil when AMQP_URL is unset; jobs then run inline.
	Broker *amqp.Client
	Worker *worker.Worker
	Jobs   *worker.Dispatcher

	exportEnabled bool
	closers       []func() error
}

// Bootstrap opens storage and wires every service from cfg. Optional
// integrations (broker, LLM, sheets) are skipped when not configured.
func Bootstrap(ctx context.Context, cfg *config.Config, logger *ilog.Logger) (*App, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Logger: logger, Store: store}
	a.closers = append(a.closers, store.Close)

	matcher := merchant.Default()
	if cfg.MerchantRulesFile != "" {
		matcher, err = merchant.Load(cfg.MerchantRulesFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("load merchant rules: %w", err)
		}
		logger.Info("Loaded merchant rules", "path", cfg.MerchantRulesFile, "rules", len(matcher.Rules()))
	}
	a.Merchants = matcher

	snapshotCache := cache.NewLRUCache[finance.Snapshot](cfg.CacheMaxEntries, cfg.CacheTTL)
	auditCache := cache.NewLRUCache[shark.Report](cfg.CacheMaxEntries, cfg.CacheTTL)
	a.Caches = cache.NewManager(logger.WithComponent(ilog.ComponentCache).Logger)
	a.Caches.Register(snapshotCache)
	a.Caches.Register(auditCache)

	a.Tokens = auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	a.Auth = auth.NewService(store, a.Tokens)
	a.Snapshots = finance.NewSnapshotService(store, snapshotCache)
	a.StoryCards = storycard.NewService(store, store)
	a.Goals = goal.NewService(store, a.StoryCards.OnMilestone)
	a.Simulation = simulation.NewEngine(0)
	a.GPS = gps.NewService(store, a.Snapshots, a.Simulation, cfg.SimulationIterations)
	a.Shark = shark.NewService(shark.NewAuditor(matcher), store, auditCache)
	a.Commitments = commitment.NewService(store)

	var messenger llm.Messenger
	if cfg.LLMEnabled() {
		messenger = llm.NewClient(llm.Config{
			APIKey:     cfg.AnthropicAPIKey,
			Model:      cfg.AnthropicModel,
			BaseURL:    cfg.AnthropicBaseURL,
			MaxRetries: cfg.LLMMaxRetries,
			Timeout:    cfg.LLMTimeout,
		})
		logger.Info("LLM debriefs enabled", "model", cfg.AnthropicModel)
	} else {
		logger.Info("LLM disabled - debriefs use the fallback summary")
	}
	a.Debriefs = debrief.NewService(debrief.NewAgent(messenger, a.Commitments, a.Goals, store), store)

	var exporter worker.MonthExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, gsheet.Credentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init google sheets: %w", err)
		}
		exporter = sheets.NewExporter(client, store)
		a.exportEnabled = true
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}
	a.Worker = worker.New(a.Debriefs, a.Shark, exporter)

	var publisher amqp.Publisher
	if cfg.AMQPURL != "" {
		broker, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("init amqp: %w", err)
		}
		a.Broker = broker
		a.closers = append(a.closers, broker.Close)
		publisher = broker
		logger.Info("AMQP broker connected", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled - background jobs run inline")
	}
	a.Jobs = worker.NewDispatcher(publisher, a.Worker)

	return a, nil
}

// HTTPDeps is the API's view of the app.
func (a *App) HTTPDeps() apphttp.Deps {
	return apphttp.Deps{
		Logger:        a.Logger,
		Store:         a.Store,
		Tokens:        a.Tokens,
		Auth:          a.Auth,
		Snapshots:     a.Snapshots,
		Goals:         a.Goals,
		GPS:           a.GPS,
		Shark:         a.Shark,
		Commitments:   a.Commitments,
		Debriefs:      a.Debriefs,
		StoryCards:    a.StoryCards,
		Simulation:    a.Simulation,
		Merchants:     a.Merchants,
		Jobs:          a.Jobs,
		ExportEnabled: a.exportEnabled,
		Ready:         a.Store.Ping,
	}
}

// Close releases everything Bootstrap opened, newest first.
func (a *App) Close() {
	if a.Caches != nil {
		a.Caches.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("Close failed", "error", err)
		}
	}
	a.closers = nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup
// runs once the signal arrives and gets timeout to finish.
func GracefulShutdown(logger *ilog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// Fatal logs err and exits. Used by commands once logging is up.
func Fatal(logger *ilog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

// DefaultLogger is used before configuration is loaded.
func DefaultLogger() *ilog.Logger {
	l := ilog.New(ilog.DefaultConfig())
	ilog.SetDefault(l)
	return l
}
