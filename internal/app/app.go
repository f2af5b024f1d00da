package app

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/cesilk/comfy-nodes/internal/config"
	"github.com/cesilk/comfy-nodes/internal/db"
	"github.com/cesilk/comfy-nodes/internal/db/drivers"
	"github.com/cesilk/comfy-nodes/internal/db/migrations"
	"github.com/cesilk/comfy-nodes/internal/db/repository"
	"github.com/cesilk/comfy-nodes/internal/mq"
	"github.com/cesilk/comfy-nodes/internal/services/filestorage"
	"github.com/cesilk/comfy-nodes/internal/services/gdrive"
	"github.com/cesilk/comfy-nodes/internal/utils/placeholder"
	"github.com/cesilk/comfy-nodes/internal/worker"
	"github.com/cesilk/comfy-nodes/internal/workflow/executor"
	"github.com/cesilk/comfy-nodes/internal/workflow/nodes"
	"github.com/cesilk/comfy-nodes/pkg/logger"
)

type App struct {
	mq         mq.MQ
	db         *bun.DB
	dbDriver   drivers.Driver
	config     *config.Config
	ctx        context.Context
	cancelFunc context.CancelFunc

	storage  *filestorage.LocalFileStorage
	s3       filestorage.ObjectUploader
	drive    *gdrive.Uploader
	resolver *placeholder.Resolver
	registry *nodes.Registry
	executor *executor.WorkflowExecutor
	queue    *worker.PromptQueue

	Logger           *zap.Logger
	PromptRepository repository.IPromptRepository
}

// Option funcs used to initialize the App struct
type OptionFunc func(app *App) error

func WithLogger(logger *zap.Logger) OptionFunc {
	return func(app *App) error {
		app.Logger = logger
		return nil
	}
}

func WithDB(driver drivers.Driver) OptionFunc {
	return func(app *App) error {
		app.dbDriver = driver
		app.db = driver.GetDB()
		app.PromptRepository = repository.NewPromptRepository(app.db)
		return nil
	}
}

// WithDBInitialization connects to the configured database and applies
// pending migrations.
func WithDBInitialization() OptionFunc {
	return func(app *App) error {
		driver, err := db.NewConnection(app.ctx, app.config)
		if err != nil {
			return err
		}

		group, err := migrations.Migrate(app.ctx, driver.GetDB())
		if err != nil {
			driver.Close()
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		if !group.IsZero() {
			app.Logger.Info("database migrated", zap.String("group", group.String()))
		}

		return WithDB(driver)(app)
	}
}

func WithMQ() OptionFunc {
	return func(app *App) error {
		queue, err := mq.NewMQ(app.config)
		if err != nil {
			return err
		}
		app.mq = queue
		return nil
	}
}

// WithS3 sets up the S3 uploader. Without usable AWS credentials the S3 node
// still saves locally and fails only when asked to upload.
func WithS3() OptionFunc {
	return func(app *App) error {
		uploader, err := filestorage.NewS3FileStorage(app.ctx, app.config.S3)
		if err != nil {
			return err
		}
		app.s3 = uploader
		return nil
	}
}

// WithDrive sets up Google Drive uploads. Authentication happens on the first
// upload, so a missing credentials file surfaces as a node error.
func WithDrive() OptionFunc {
	return func(app *App) error {
		cfg := app.config.GDrive
		if cfg == nil {
			return fmt.Errorf("gdrive is not configured")
		}

		auth := gdrive.NewAuthenticator(cfg.CredentialsFile, cfg.TokenFile, app.Logger)
		auth.OnAuthURL = func(url string) {
			app.Logger.Warn("authorize google drive access by visiting this URL", zap.String("url", url))
		}

		app.drive = gdrive.NewUploader(gdrive.NewDriveConnector(auth), app.Logger)
		return nil
	}
}

func NewApp(cfg *config.Config, options ...OptionFunc) (*App, error) {
	logger, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	storage, err := filestorage.NewLocalFileStorage(cfg.OutputDir)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		ctx:        ctx,
		config:     cfg,
		Logger:     logger,
		cancelFunc: cancel,
		storage:    storage,
		resolver:   placeholder.NewResolver(config.JST),
	}

	for _, opt := range options {
		if err := opt(app); err != nil {
			// Optional services stay disabled; the nodes needing them report it.
			app.Logger.Warn("failed to apply option", zap.Error(err))
		}
	}

	app.registry = NewRegistry(app)
	app.executor = executor.NewWorkflowExecutor(app.registry, executor.WithLogger(app.Logger))

	if app.mq != nil && app.PromptRepository != nil {
		app.queue = worker.NewPromptQueue(app.mq, config.DefaultPromptTopic, app.PromptRepository, app.executor, app.Logger)
	}

	return app, nil
}

func (app *App) Close() {
	app.cancelFunc()

	if app.queue != nil {
		app.queue.Stop()
	}
	if app.mq != nil {
		app.mq.Close()
	}
	if app.dbDriver != nil {
		app.dbDriver.Close()
	}

	app.Logger.Sync()
}

func (app *App) Config() *config.Config {
	return app.config
}

func (app *App) Context() context.Context {
	return app.ctx
}

func (app *App) MQ() mq.MQ {
	return app.mq
}

func (app *App) DB() *bun.DB {
	return app.db
}

func (app *App) Storage() *filestorage.LocalFileStorage {
	return app.storage
}

func (app *App) Registry() *nodes.Registry {
	return app.registry
}

func (app *App) Executor() *executor.WorkflowExecutor {
	return app.executor
}

// Queue is nil unless both the queue and the database are set up.
func (app *App) Queue() *worker.PromptQueue {
	return app.queue
}
