package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/internal/metrics"
	"github.com/yourusername/fundl-go/pkg/logger"
	"go.uber.org/zap"
)

// DownloadManager runs single transfers and records their outcome. The
// history repository and notifier are optional.
type DownloadManager struct {
	downloader   domain.Downloader
	history      domain.HistoryRepository
	notifier     domain.Notifier
	providerName string
	logger       *zap.Logger
	multiLogger  *logger.MultiLogger
}

// NewDownloadManager creates a new download manager
func NewDownloadManager(
	downloader domain.Downloader,
	history domain.HistoryRepository,
	notifier domain.Notifier,
	providerName string,
	log *zap.Logger,
	multiLogger *logger.MultiLogger,
) *DownloadManager {
	if log == nil {
		log = zap.NewNop()
	}
	return &DownloadManager{
		downloader:   downloader,
		history:      history,
		notifier:     notifier,
		providerName: providerName,
		logger:       log,
		multiLogger:  multiLogger,
	}
}

// ProcessDownload transfers one episode. It blocks until the downloader
// returns and passes the downloader's error through unchanged.
func (dm *DownloadManager) ProcessDownload(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
	dm.logger.Info("Processing download",
		zap.String("episode_id", episode.ID),
		zap.String("title", episode.Title),
		zap.String("directory", episode.DownloadDirectory()))

	record := dm.startRecord(episode)
	if dm.notifier != nil {
		dm.notifier.NotifyDownloadStarted(episode.Title)
	}
	dm.multiLogger.LogTransferEvent("transfer_started",
		zap.String("episode_id", episode.ID),
		zap.String("title", episode.Title),
		zap.String("locator", episode.Locator))

	metrics.ActiveTransfers.Inc()
	start := time.Now()
	err := dm.download(ctx, episode, onProgress)
	metrics.ActiveTransfers.Dec()
	metrics.TransferDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.TransfersCompleted.Inc()
		dm.finishRecord(record, func(r *domain.DownloadRecord) { r.MarkCompleted() })

		dm.logger.Info("Download completed",
			zap.String("episode_id", episode.ID),
			zap.String("title", episode.Title),
			zap.Duration("elapsed", time.Since(start)))
		dm.multiLogger.LogTransferEvent("transfer_completed",
			zap.String("episode_id", episode.ID),
			zap.Duration("elapsed", time.Since(start)))

		if dm.notifier != nil {
			dm.notifier.NotifyDownloadCompleted(episode.Title)
		}
		return nil
	}

	reason := domain.SummarizeError(err)
	metrics.TransfersFailed.Inc()

	if errors.Is(err, context.Canceled) {
		dm.finishRecord(record, func(r *domain.DownloadRecord) { r.MarkCancelled() })
		dm.logger.Info("Download cancelled", zap.String("episode_id", episode.ID))
		dm.multiLogger.LogTransferEvent("transfer_cancelled", zap.String("episode_id", episode.ID))
		return err
	}

	dm.finishRecord(record, func(r *domain.DownloadRecord) { r.MarkFailed(reason) })

	dm.logger.Error("Download failed",
		zap.String("episode_id", episode.ID),
		zap.String("title", episode.Title),
		zap.String("reason", reason))
	dm.multiLogger.LogTransferEvent("transfer_failed",
		zap.String("episode_id", episode.ID),
		zap.String("reason", reason))
	dm.multiLogger.LogAppError("Transfer failed",
		zap.String("episode_id", episode.ID),
		zap.Error(err))

	if dm.notifier != nil {
		dm.notifier.NotifyDownloadFailed(episode.Title, reason)
	}
	return err
}

// download runs the downloader, turning a panic into an error so the
// history record and metrics are still settled
func (dm *DownloadManager) download(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("downloader panicked: %v", r)
		}
	}()
	return dm.downloader.Download(ctx, episode, onProgress)
}

// QueueDrained reports that the last queued episode left the queue
func (dm *DownloadManager) QueueDrained() {
	dm.multiLogger.LogQueueEvent("queue_empty")
	if dm.notifier != nil {
		dm.notifier.NotifyQueueEmpty()
	}
}

func (dm *DownloadManager) startRecord(episode *domain.Episode) *domain.DownloadRecord {
	if dm.history == nil {
		return nil
	}

	record := domain.NewDownloadRecord(episode, dm.providerName)
	record.MarkProcessing()
	if err := dm.history.Create(record); err != nil {
		dm.logger.Error("Failed to record download", zap.String("episode_id", episode.ID), zap.Error(err))
		return nil
	}
	return record
}

func (dm *DownloadManager) finishRecord(record *domain.DownloadRecord, mark func(*domain.DownloadRecord)) {
	if record == nil {
		return
	}

	mark(record)
	if err := dm.history.Update(record); err != nil {
		dm.logger.Error("Failed to update download status", zap.String("id", record.ID), zap.Error(err))
	}
}
