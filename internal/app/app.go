package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"streak-alerts/internal/alerting"
	"streak-alerts/internal/config"
	"streak-alerts/internal/resolver"
	"streak-alerts/internal/scheduler"
	"streak-alerts/internal/service"
	"streak-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output (tables, dry-run messages); logs go elsewhere.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newNotifier() *alerting.TelegramNotifier {
	cfg := a.Config.Alerting.Telegram
	return alerting.NewTelegramNotifier(alerting.TelegramOptions{
		BotToken:  cfg.BotToken,
		ChatID:    cfg.ChatID,
		BaseURL:   cfg.APIBase,
		ParseMode: cfg.ParseMode,
		Timeout:   a.Config.Alerting.Timeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) serviceOptions() (service.Options, error) {
	unit, err := a.Config.Unit()
	if err != nil {
		return service.Options{}, err
	}
	return service.Options{
		Symbol:       a.Config.Monitor.Symbol,
		Title:        a.Config.Monitor.Title,
		Rule:         a.Config.Rule(),
		LookbackDays: a.Config.Monitor.LookbackDays,
		Unit:         unit,
		LockKey:      a.Config.Scheduler.AdvisoryLockKey,
		RunRetention: a.Config.Scheduler.RunRetention,
	}, nil
}

// newService wires a service over the given sources. A nil store disables auditing.
func (a *App) newService(sources []resolver.Source, store *storage.Store, notifier alerting.Notifier) (*service.Service, error) {
	opts, err := a.serviceOptions()
	if err != nil {
		return nil, err
	}

	deps := service.Deps{
		Resolver: resolver.New(sources, a.Logger),
		Notifier: notifier,
	}
	if store != nil {
		deps.Observations = store
		deps.Runs = store
		deps.Locker = store
	}
	return service.New(opts, deps, a.Logger), nil
}

// CheckOptions configure the check command.
type CheckOptions struct {
	DryRun bool
}

// Check performs one run against the configured sources.
func (a *App) Check(ctx context.Context, opts CheckOptions) (service.Report, error) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		// storage is audit-only; a broken database must not block alerting
		a.Logger.Error().Err(err).Msg("database unavailable; continuing without persistence")
		store, closeStore = nil, nil
	}
	if closeStore != nil {
		defer closeStore()
	}

	sources, err := a.buildSources()
	if err != nil {
		return service.Report{}, err
	}
	svc, err := a.newService(sources, store, a.newNotifier())
	if err != nil {
		return service.Report{}, err
	}
	return svc.Check(ctx, service.CheckOptions{DryRun: opts.DryRun, Preview: a.Out})
}

// Watch runs checks on the configured cron schedule until interrupted.
func (a *App) Watch(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	loc, err := time.LoadLocation(a.Config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("load scheduler timezone: %w", err)
	}
	sched, err := scheduler.New(scheduler.Options{
		Cron:       a.Config.Scheduler.Cron,
		Location:   loc,
		RunOnStart: a.Config.Scheduler.RunOnStart,
	}, a.Logger)
	if err != nil {
		return err
	}

	notifier := a.newNotifier()
	if !notifier.Configured() {
		a.Logger.Warn().Msg("telegram credentials missing; alerts will fail until configured")
	}

	sources, err := a.buildSources()
	if err != nil {
		return err
	}
	svc, err := a.newService(sources, store, notifier)
	if err != nil {
		return err
	}

	a.Logger.Info().Strs("sources", resolver.New(sources, a.Logger).Sources()).Msg("starting watch mode")
	err = svc.Run(ctx, sched)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("watch terminated with error")
		return err
	}

	a.Logger.Info().Msg("watch mode stopped")
	return nil
}

// Migrate applies the SQL files under database.migrations_path.
func (a *App) Migrate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to migrate")
	}
	defer closeStore()

	applied, err := store.Migrate(ctx, a.Config.Database.MigrationsPath)
	if err != nil {
		return err
	}
	a.Logger.Info().Strs("applied", applied).Msg("migrations applied")
	return nil
}

// ExportOptions hold parameters for exporting stored observations.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
	Runs  bool
}
