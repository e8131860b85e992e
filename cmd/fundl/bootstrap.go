package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/internal/infrastructure"
	"github.com/yourusername/fundl-go/pkg/logger"
)

// application wires the services shared by the commands
type application struct {
	config    *domain.Config
	log       *zap.Logger
	multiLog  *logger.MultiLogger
	historyDB *infrastructure.SQLiteHistoryRepository
	history   domain.HistoryRepository
	provider  domain.Provider
	downloads *app.DownloadManager
	queue     *app.QueueManager
	catalog   *app.CatalogService
	directory *app.DirectoryManager
}

// newApplication builds the services from config. interactive commands log
// warnings only unless --verbose is set, so status output stays readable.
func newApplication(config *domain.Config, interactive bool) (*application, error) {
	logConfig := logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
		MaxSizeMB:  config.Logging.MaxSizeMB,
		MaxBackups: config.Logging.MaxBackups,
	}
	if interactive && !verbose {
		logConfig.Level = "warn"
	}
	log, err := logger.New(logConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &application{config: config, log: log}

	a.multiLog, err = logger.NewMultiLogger(logger.MultiLoggerConfig{
		Level:   config.Logging.Level,
		LogsDir: config.Download.LogsDir,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize log files: %w", err)
	}

	if config.Queue.RecordHistory {
		a.historyDB, err = openHistory(config)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.history = a.historyDB
	}

	var notifier domain.Notifier
	if config.Notification.Enabled {
		notifier = infrastructure.NewNotificationService(&config.Notification, log)
	}

	executor := infrastructure.NewYTDLPExecutor(&config.YTDLP, config.Download.LogsDir, a.multiLog)
	a.provider, err = infrastructure.NewProvider(config, executor, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.downloads = app.NewDownloadManager(a.provider, a.history, notifier, a.provider.Name(), log, a.multiLog)
	a.queue = app.NewQueueManager(a.downloads, &config.Download, &config.Queue, a.multiLog)
	a.catalog = app.NewCatalogService(a.provider, &config.Catalog, a.queue, log)
	a.directory = app.NewDirectoryManager(log)

	if config.Download.StartDirectory != "" {
		if _, err := a.directory.ChangeDirectory(config.Download.StartDirectory); err != nil {
			a.Close()
			return nil, err
		}
	}

	log.Debug("Application initialized",
		zap.String("provider", a.provider.Name()),
		zap.String("directory", a.directory.CurrentDirectory()),
		zap.Bool("history", a.history != nil))

	return a, nil
}

// openHistory opens the history database, creating its directory
func openHistory(config *domain.Config) (*infrastructure.SQLiteHistoryRepository, error) {
	if err := os.MkdirAll(filepath.Dir(config.Queue.DatabasePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	repo, err := infrastructure.NewSQLiteHistoryRepository(config.Queue.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history: %w", err)
	}
	return repo, nil
}

// Close stops the queue and releases files. It is safe on a partially
// built application.
func (a *application) Close() {
	if a.queue != nil {
		a.queue.Close()
	}
	if a.historyDB != nil {
		if err := a.historyDB.Close(); err != nil {
			a.log.Warn("Failed to close history database", zap.Error(err))
		}
	}
	if a.multiLog != nil {
		_ = a.multiLog.Close()
	}
	_ = a.log.Sync()
}

// setup loads the configuration and builds the application for a command
func setup(cmd *cobra.Command, interactive bool) (*application, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newApplication(config, interactive)
}
