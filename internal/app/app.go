package app

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/highlight/internal/common"
	"github.com/ternarybob/highlight/internal/handlers"
	"github.com/ternarybob/highlight/internal/hub"
	"github.com/ternarybob/highlight/internal/interfaces"
	"github.com/ternarybob/highlight/internal/rooms"
	"github.com/ternarybob/highlight/internal/storage/badger"
	"github.com/ternarybob/highlight/internal/templates"
)

// App holds the development hub components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage interfaces.TaskStorage

	// Task processing
	Hub       *rooms.Hub
	Service   *hub.Service
	Scheduler *hub.Scheduler
	Lists     map[string]templates.PredefinedList

	// HTTP handlers
	APIHandler  *handlers.APIHandler
	TaskHandler *handlers.TaskHandler
	PageHandler *handlers.PageHandler
}

// New initializes the hub: storage, rooms, analysis workers, purge schedule and handlers
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := common.ValidatePurgeSchedule(cfg.Rooms.PurgeSchedule); err != nil {
		return nil, err
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.Storage.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Int("workers", cfg.Rooms.Workers).
		Str("purge_schedule", cfg.Rooms.PurgeSchedule).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens the Badger task store
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.Storage = badger.NewTaskStorage(db, a.Logger)
	return nil
}

// initServices creates the room hub, the analysis service and the purge scheduler
func (a *App) initServices() error {
	rc := a.Config.Rooms

	lists, err := templates.LoadPredefinedLists(rc.ListsDir)
	if err != nil {
		return err
	}
	a.Lists = lists

	a.Hub = rooms.NewHub(a.Storage, a.Logger, rooms.Config{
		ProgressThrottle: common.ParseDuration(rc.ProgressThrottle, 0),
		WriteTimeout:     common.ParseDuration(a.Config.Channel.WriteTimeout, 0),
	})

	analyzer := hub.SimulatedAnalyzer{
		Steps:     rc.Steps,
		StepDelay: common.ParseDuration(rc.StepDelay, 200*time.Millisecond),
	}
	a.Service = hub.NewService(a.Storage, a.Hub, analyzer, a.Logger, hub.Config{
		Workers:   rc.Workers,
		QueueSize: rc.QueueSize,
		TaskTTL:   common.ParseDuration(rc.TaskTTL, time.Hour),
	})
	a.Service.Start()

	a.Scheduler = hub.NewScheduler(a.Service, a.Logger)
	if err := a.Scheduler.Start(rc.PurgeSchedule); err != nil {
		a.Service.Stop()
		return fmt.Errorf("failed to start purge scheduler: %w", err)
	}

	return nil
}

func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger, a.Hub.InstanceID())
	a.TaskHandler = handlers.NewTaskHandler(a.Service, a.Lists, a.Logger)
	a.PageHandler = handlers.NewPageHandler(a.Service, a.Lists, a.Logger)
}

// Close stops background work and closes the store
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	if a.Service != nil {
		a.Service.Stop()
	}

	if a.Hub != nil {
		a.Hub.Close()
	}

	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close task storage")
			return err
		}
	}

	a.Logger.Info().Msg("Application closed")
	return nil
}
