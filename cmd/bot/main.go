// Package main contains the entrypoint for the labsage Telegram bot.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/labsage/internal/analysis"
	"github.com/edgard/labsage/internal/bot"
	"github.com/edgard/labsage/internal/bot/handlers"
	"github.com/edgard/labsage/internal/bot/tasks"
	"github.com/edgard/labsage/internal/config"
	"github.com/edgard/labsage/internal/database"
	"github.com/edgard/labsage/internal/logger"
	"github.com/edgard/labsage/internal/messages"
	"github.com/edgard/labsage/internal/ops"
	"github.com/edgard/labsage/internal/pipeline"
	"github.com/edgard/labsage/internal/storage"
	"github.com/edgard/labsage/internal/telegram"
	"github.com/edgard/labsage/internal/validation"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components, handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	catalog, err := messages.NewCatalog(cfg.Messages.DefaultLocale)
	if err != nil {
		log.Error("Failed to load message catalog", "error", err)
		return 1
	}

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		log.Error("Failed to connect to database", "driver", cfg.Database.Driver, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	objectStore, err := storage.NewSupabaseStore(cfg.Storage)
	if err != nil {
		log.Error("Failed to create storage client", "error", err)
		return 1
	}
	uploader := storage.NewGateway(objectStore, cfg.Storage, log)
	if !uploader.EnsureContainerReady(ctx) {
		log.Warn("Storage container not ready, will retry on first upload", "bucket", cfg.Storage.Bucket)
	}

	provider, err := analysis.NewProvider(ctx, cfg.Analysis, log)
	if err != nil && !errors.Is(err, analysis.ErrNotConfigured) {
		log.Error("Failed to initialize analysis provider", "provider", cfg.Analysis.Provider, "error", err)
		return 1
	}
	defaults := catalog.Default()
	analyzer := analysis.NewGateway(provider, cfg.Analysis, analysis.Fallbacks{
		NotConfigured: defaults.Text(messages.AnalysisNotConfigured),
		TextApology:   defaults.Text(messages.AnalysisTextApology),
		ImageApology:  defaults.Text(messages.AnalysisImageApology),
	}, log)

	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(ignoreUpdate(log)),
		tgbot.WithWorkers(cfg.Telegram.Workers),
		tgbot.WithHTTPClient(cfg.Telegram.PollTimeout, &http.Client{Timeout: cfg.Telegram.PollTimeout + cfg.Telegram.SendTimeout}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}
	if cfg.Telegram.DropPendingUpdates {
		if err := telegram.DropPendingUpdates(ctx, tg); err != nil {
			log.Warn("Failed to drop pending updates", "error", err)
		}
	}

	transport := telegram.NewTransport(tg, cfg.Telegram, cfg.Limits.MaxFileBytes, &http.Client{}, log)

	pipe, err := pipeline.New(store, uploader, analyzer, transport, transport, pipeline.Options{
		Limits:       validation.NewLimits(cfg.Limits.MaxFileBytes, cfg.Limits.MaxTextChars),
		Catalog:      catalog,
		StoreTimeout: cfg.Database.OperationTimeout,
		Logger:       log,
	})
	if err != nil {
		log.Error("Failed to create request pipeline", "error", err)
		return 1
	}

	hDeps := handlers.HandlerDeps{
		Logger:    log,
		Config:    cfg,
		Store:     store,
		Pipeline:  pipe,
		Catalog:   catalog,
		Responder: transport,
	}
	if err := telegram.RegisterHandlers(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}
	if err := telegram.SetCommands(ctx, tg, catalog, log); err != nil {
		log.Warn("Failed to register command menu", "error", err)
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Config: cfg,
	}
	sched, err := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	var opsServer bot.OpsServer
	if cfg.Ops.Enabled {
		opsServer = ops.NewServer(cfg.Ops.Addr, ops.NewRouter(store, log), log)
	}

	app := bot.NewBot(log, tg, sched, opsServer)

	log.Info("Starting bot...")
	runErr := app.Run(ctx)
	log.Info("Bot run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	return 0
}

// ignoreUpdate handles updates no registered handler matched, such as
// stickers, voice notes and unknown commands.
func ignoreUpdate(log *slog.Logger) tgbot.HandlerFunc {
	return func(ctx context.Context, _ *tgbot.Bot, update *models.Update) {
		log.DebugContext(ctx, "Ignoring unhandled update", "update_id", update.ID, "update_type", logger.UpdateKind(update))
	}
}
