package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/internal/metrics"
	"github.com/yourusername/fundl-go/pkg/logger"
)

type entryState int

const (
	entryPending entryState = iota
	entryActive
	entryCompleted
	entryFailed
)

func (s entryState) String() string {
	switch s {
	case entryPending:
		return "pending"
	case entryActive:
		return "active"
	case entryCompleted:
		return "completed"
	case entryFailed:
		return "failed"
	}
	return "unknown"
}

// queueEntry is one episode in the queue. gen changes every time the entry
// is (re)queued so stale callbacks and timers can be told apart.
type queueEntry struct {
	episode *domain.Episode
	state   entryState
	gen     uint64
	removal *time.Timer
	cancel  context.CancelFunc
}

type activeTransfer struct {
	entry      *queueEntry
	inProgress bool
}

// QueueManager owns the download queue. It runs at most one transfer at a
// time, in the order episodes were enqueued, and publishes a status snapshot
// to its listeners after every change.
type QueueManager struct {
	downloadMgr *DownloadManager
	downloadCfg *domain.DownloadConfig
	config      *domain.QueueConfig
	multiLogger *logger.MultiLogger

	mu         sync.Mutex
	entries    []*queueEntry
	active     *activeTransfer
	listeners  []domain.StatusListener
	nextGen    uint64
	seq        uint64
	effects    []func()
	idle       chan struct{}
	idleClosed bool
	closed     bool

	// publishMu serializes listener calls; lastPublished drops snapshots
	// that were overtaken by a newer one.
	publishMu     sync.Mutex
	lastPublished uint64

	ctx     context.Context
	cancel  context.CancelFunc
	workers conc.WaitGroup

	getwd    func() (string, error)
	mkdirAll func(path string, perm os.FileMode) error
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	downloadMgr *DownloadManager,
	downloadCfg *domain.DownloadConfig,
	config *domain.QueueConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &QueueManager{
		downloadMgr: downloadMgr,
		downloadCfg: downloadCfg,
		config:      config,
		multiLogger: multiLogger,
		idle:        idle,
		idleClosed:  true,
		ctx:         ctx,
		cancel:      cancel,
		getwd:       os.Getwd,
		mkdirAll:    os.MkdirAll,
	}
}

// AddListener registers a listener for status and directory updates
func (qm *QueueManager) AddListener(listener domain.StatusListener) {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	qm.listeners = append(qm.listeners, listener)
}

// Enqueue adds an episode to the tail of the queue and starts a transfer if
// none is running. Enqueueing an episode that is already queued does
// nothing; enqueueing one that failed queues it again in its old position.
// The only error returned is a failure to create a download directory.
func (qm *QueueManager) Enqueue(episode *domain.Episode) error {
	if episode == nil || episode.ID == "" {
		return nil
	}
	cwd := qm.workingDir()

	qm.mu.Lock()
	defer qm.unlock()
	if qm.closed {
		return domain.ErrQueueClosed
	}

	episode.AssignDownloadMetadata(qm.downloadCfg.UseSeasonFolders, cwd)
	if entry := qm.findLocked(episode.ID); entry != nil {
		if entry.state != entryFailed {
			return qm.drive()
		}
		qm.retryLocked(entry, episode)
	} else {
		qm.appendLocked(episode)
	}

	qm.publishLocked()
	return qm.drive()
}

// EnqueueAll adds several episodes in order with a single status update.
// Episodes already queued, or repeated within episodes, are skipped.
func (qm *QueueManager) EnqueueAll(episodes []*domain.Episode) error {
	cwd := qm.workingDir()

	qm.mu.Lock()
	defer qm.unlock()
	if qm.closed {
		return domain.ErrQueueClosed
	}

	seen := make(map[string]bool, len(episodes))
	for _, episode := range episodes {
		if episode == nil || episode.ID == "" || seen[episode.ID] {
			continue
		}
		seen[episode.ID] = true

		episode.AssignDownloadMetadata(qm.downloadCfg.UseSeasonFolders, cwd)
		if entry := qm.findLocked(episode.ID); entry != nil {
			if entry.state == entryFailed {
				qm.retryLocked(entry, episode)
			}
			continue
		}
		qm.appendLocked(episode)
	}

	qm.publishLocked()
	return qm.drive()
}

// Cancel stops the transfer of an active episode or drops a waiting one.
// A cancelled transfer is reported as failed and the next episode starts.
func (qm *QueueManager) Cancel(id string) error {
	qm.mu.Lock()
	defer qm.unlock()

	entry := qm.findLocked(id)
	if entry == nil {
		return fmt.Errorf("%w: %s", domain.ErrEpisodeNotQueued, id)
	}

	qm.multiLogger.LogQueueEvent("episode_cancelled",
		zap.String("episode_id", id),
		zap.String("state", entry.state.String()))

	if entry.state == entryActive {
		if entry.cancel != nil {
			entry.cancel()
		}
		return nil
	}

	qm.removeLocked(entry)
	return nil
}

// Status returns the current status lines
func (qm *QueueManager) Status() []string {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.statusLocked()
}

// Episodes returns copies of the queued episodes in queue order
func (qm *QueueManager) Episodes() []domain.Episode {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	episodes := make([]domain.Episode, 0, len(qm.entries))
	for _, entry := range qm.entries {
		episodes = append(episodes, cloneEpisode(entry.episode))
	}
	return episodes
}

// Active returns a copy of the episode being transferred, if any
func (qm *QueueManager) Active() (domain.Episode, bool) {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	if qm.active == nil || !qm.active.inProgress {
		return domain.Episode{}, false
	}
	return cloneEpisode(qm.active.entry.episode), true
}

// IsQueued reports whether an episode is waiting or being transferred
func (qm *QueueManager) IsQueued(id string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	entry := qm.findLocked(id)
	return entry != nil && (entry.state == entryPending || entry.state == entryActive)
}

// HasFailed reports whether an episode failed and is still shown in the queue
func (qm *QueueManager) HasFailed(id string) bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()

	entry := qm.findLocked(id)
	return entry != nil && entry.state == entryFailed
}

// IsClosed reports whether Close has been called
func (qm *QueueManager) IsClosed() bool {
	qm.mu.Lock()
	defer qm.mu.Unlock()
	return qm.closed
}

// WaitIdle blocks until no episode is waiting or being transferred
func (qm *QueueManager) WaitIdle(ctx context.Context) error {
	qm.mu.Lock()
	idle := qm.idle
	qm.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the running transfer and waits for it to return. Episodes
// still waiting are dropped.
func (qm *QueueManager) Close() {
	qm.mu.Lock()
	if qm.closed {
		qm.mu.Unlock()
		return
	}
	qm.closed = true
	kept := qm.entries[:0]
	for _, entry := range qm.entries {
		if entry.removal != nil {
			entry.removal.Stop()
		}
		if entry.state != entryPending {
			kept = append(kept, entry)
		}
	}
	qm.entries = kept
	qm.publishLocked()
	qm.unlock()

	qm.multiLogger.LogQueueEvent("queue_closed")
	qm.cancel()
	qm.workers.Wait()
}

// drive starts the next pending episode unless a transfer is running.
// Must be called with mu held.
func (qm *QueueManager) drive() error {
	if qm.closed {
		return nil
	}
	if qm.active != nil && qm.active.inProgress {
		return nil
	}

	var firstErr error
	for {
		entry := qm.nextPendingLocked()
		if entry == nil {
			qm.active = nil
			return firstErr
		}

		entry.state = entryActive
		qm.active = &activeTransfer{entry: entry, inProgress: true}

		dir := entry.episode.DownloadDirectory()
		if err := qm.mkdirAll(dir, 0755); err != nil {
			err = fmt.Errorf("%w %s: %v", domain.ErrDirectoryCreation, dir, err)
			qm.multiLogger.LogAppError("Failed to create download directory",
				zap.String("episode_id", entry.episode.ID),
				zap.String("directory", dir),
				zap.Error(err))
			qm.failLocked(entry, err)
			qm.active = nil
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		qm.startTransferLocked(entry)
		return firstErr
	}
}

func (qm *QueueManager) startTransferLocked(entry *queueEntry) {
	ctx, cancel := context.WithCancel(qm.ctx)
	entry.cancel = cancel
	gen := entry.gen
	episode := cloneEpisode(entry.episode)

	qm.multiLogger.LogQueueEvent("transfer_started",
		zap.String("episode_id", episode.ID),
		zap.String("title", episode.Title),
		zap.String("directory", episode.DownloadDirectory()))

	onProgress := func(p domain.Progress) {
		qm.mu.Lock()
		defer qm.unlock()
		if entry.gen != gen || entry.state != entryActive {
			return
		}
		progress := p
		entry.episode.Progress = &progress
		qm.publishLocked()
	}

	qm.workers.Go(func() {
		var err error
		// a panicking transfer fails its episode and frees the worker
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("transfer panicked: %v", r)
				qm.multiLogger.LogAppError("Transfer panicked",
					zap.String("episode_id", episode.ID),
					zap.Any("panic", r))
			}
			cancel()
			qm.finishTransfer(entry, gen, err)
		}()
		err = qm.downloadMgr.ProcessDownload(ctx, &episode, onProgress)
	})
}

func (qm *QueueManager) finishTransfer(entry *queueEntry, gen uint64, err error) {
	qm.mu.Lock()
	defer qm.unlock()

	if entry.gen == gen && entry.state == entryActive {
		entry.cancel = nil
		if err == nil {
			entry.state = entryCompleted
			qm.multiLogger.LogQueueEvent("transfer_completed",
				zap.String("episode_id", entry.episode.ID))
			qm.scheduleRemovalLocked(entry)
		} else {
			qm.failLocked(entry, err)
		}
	}

	if qm.active != nil && qm.active.entry == entry {
		qm.active.inProgress = false
	}
	if err := qm.drive(); err != nil {
		qm.multiLogger.LogAppError("Failed to start next transfer", zap.Error(err))
	}
}

// failLocked records err on the entry and schedules its removal
func (qm *QueueManager) failLocked(entry *queueEntry, err error) {
	reason := domain.SummarizeError(err)
	entry.state = entryFailed
	entry.cancel = nil
	entry.episode.Error = reason
	entry.episode.Progress = nil
	entry.episode.Downloading = false

	qm.multiLogger.LogQueueEvent("transfer_failed",
		zap.String("episode_id", entry.episode.ID),
		zap.String("reason", reason),
		zap.Bool("cancelled", errors.Is(err, context.Canceled)))

	qm.publishLocked()
	qm.scheduleRemovalLocked(entry)
}

// scheduleRemovalLocked drops the entry once the grace delay has passed so
// its final status stays visible for a while
func (qm *QueueManager) scheduleRemovalLocked(entry *queueEntry) {
	if qm.closed {
		return
	}
	if entry.removal != nil {
		entry.removal.Stop()
	}

	gen := entry.gen
	entry.removal = time.AfterFunc(qm.config.GraceDelay, func() {
		qm.mu.Lock()
		defer qm.unlock()
		if qm.closed || entry.gen != gen {
			return
		}
		qm.removeLocked(entry)
	})
}

func (qm *QueueManager) removeLocked(entry *queueEntry) {
	idx := qm.indexLocked(entry)
	if idx < 0 {
		return
	}
	if entry.removal != nil {
		entry.removal.Stop()
		entry.removal = nil
	}
	entry.episode.Progress = nil
	qm.entries = append(qm.entries[:idx], qm.entries[idx+1:]...)

	qm.multiLogger.LogQueueEvent("episode_removed",
		zap.String("episode_id", entry.episode.ID),
		zap.String("state", entry.state.String()))

	qm.publishLocked()
	if len(qm.entries) == 0 {
		qm.effects = append(qm.effects, qm.downloadMgr.QueueDrained)
	}
}

func (qm *QueueManager) appendLocked(episode *domain.Episode) {
	qm.nextGen++
	episode.Downloading = true
	qm.entries = append(qm.entries, &queueEntry{
		episode: episode,
		state:   entryPending,
		gen:     qm.nextGen,
	})

	metrics.EpisodesEnqueued.Inc()
	qm.multiLogger.LogQueueEvent("episode_enqueued",
		zap.String("episode_id", episode.ID),
		zap.String("title", episode.Title),
		zap.String("series", episode.SeriesTitle))
}

func (qm *QueueManager) retryLocked(entry *queueEntry, episode *domain.Episode) {
	if entry.removal != nil {
		entry.removal.Stop()
		entry.removal = nil
	}
	qm.nextGen++
	entry.gen = qm.nextGen
	entry.state = entryPending
	entry.episode = episode
	episode.Error = ""
	episode.Progress = nil
	episode.Downloading = true

	metrics.EpisodesRetried.Inc()
	qm.multiLogger.LogQueueEvent("episode_retried",
		zap.String("episode_id", episode.ID),
		zap.String("title", episode.Title))
}

// publishLocked queues a status snapshot for delivery once mu is released
func (qm *QueueManager) publishLocked() {
	qm.seq++
	seq := qm.seq
	lines := qm.statusLocked()
	listeners := append([]domain.StatusListener(nil), qm.listeners...)
	metrics.QueueLength.Set(float64(len(qm.entries)))

	qm.effects = append(qm.effects, func() {
		if seq <= qm.lastPublished {
			return
		}
		qm.lastPublished = seq
		for _, l := range listeners {
			l.OnStatus(lines)
		}
	})
}

// unlock releases mu and then runs the effects collected while it was held.
// Listeners must not call back into the queue manager synchronously.
func (qm *QueueManager) unlock() {
	qm.updateIdleLocked()
	effects := qm.effects
	qm.effects = nil
	qm.mu.Unlock()

	if len(effects) == 0 {
		return
	}
	qm.publishMu.Lock()
	defer qm.publishMu.Unlock()
	for _, fn := range effects {
		fn()
	}
}

func (qm *QueueManager) updateIdleLocked() {
	busy := false
	for _, entry := range qm.entries {
		if entry.state == entryPending || entry.state == entryActive {
			busy = true
			break
		}
	}

	switch {
	case busy && qm.idleClosed:
		qm.idle = make(chan struct{})
		qm.idleClosed = false
	case !busy && !qm.idleClosed:
		close(qm.idle)
		qm.idleClosed = true
	}
}

func (qm *QueueManager) statusLocked() []string {
	episodes := make([]*domain.Episode, 0, len(qm.entries))
	for _, entry := range qm.entries {
		episodes = append(episodes, entry.episode)
	}
	return BuildStatus(episodes)
}

func (qm *QueueManager) nextPendingLocked() *queueEntry {
	for _, entry := range qm.entries {
		if entry.state == entryPending {
			return entry
		}
	}
	return nil
}

func (qm *QueueManager) findLocked(id string) *queueEntry {
	for _, entry := range qm.entries {
		if entry.episode.ID == id {
			return entry
		}
	}
	return nil
}

func (qm *QueueManager) indexLocked(target *queueEntry) int {
	for i, entry := range qm.entries {
		if entry == target {
			return i
		}
	}
	return -1
}

func (qm *QueueManager) workingDir() string {
	cwd, err := qm.getwd()
	if err != nil {
		return "."
	}
	return cwd
}

func cloneEpisode(ep *domain.Episode) domain.Episode {
	c := *ep
	if ep.Progress != nil {
		p := *ep.Progress
		c.Progress = &p
	}
	return c
}
