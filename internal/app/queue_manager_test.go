package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/fundl-go/internal/domain"
)

type fakeStep struct {
	progress *domain.Progress
	err      error
}

// fakeDownloader blocks every transfer until the test finishes it
type fakeDownloader struct {
	mu        sync.Mutex
	gates     map[string]chan fakeStep
	calls     []string
	started   chan string
	active    int32
	maxActive int32
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		gates:   make(map[string]chan fakeStep),
		started: make(chan string, 32),
	}
}

func (f *fakeDownloader) gate(id string) chan fakeStep {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.gates[id]
	if !ok {
		ch = make(chan fakeStep)
		f.gates[id] = ch
	}
	return ch
}

func (f *fakeDownloader) Download(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		peak := atomic.LoadInt32(&f.maxActive)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxActive, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, episode.ID)
	f.mu.Unlock()
	f.started <- episode.ID

	gate := f.gate(episode.ID)
	for {
		select {
		case step := <-gate:
			if step.progress != nil {
				onProgress(*step.progress)
				continue
			}
			return step.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (f *fakeDownloader) progress(id string, p domain.Progress) {
	f.gate(id) <- fakeStep{progress: &p}
}

func (f *fakeDownloader) finish(id string, err error) {
	f.gate(id) <- fakeStep{err: err}
}

func (f *fakeDownloader) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeDownloader) waitStarted(t *testing.T, id string) {
	t.Helper()
	select {
	case got := <-f.started:
		require.Equal(t, id, got)
	case <-time.After(2 * time.Second):
		t.Fatalf("transfer of %s did not start", id)
	}
}

func (f *fakeDownloader) assertNothingStarted(t *testing.T) {
	t.Helper()
	select {
	case got := <-f.started:
		t.Fatalf("unexpected transfer of %s", got)
	case <-time.After(50 * time.Millisecond):
	}
}

// statusRecorder keeps every snapshot it receives
type statusRecorder struct {
	mu        sync.Mutex
	snapshots [][]string
}

func (r *statusRecorder) OnStatus(lines []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, lines)
}

func (r *statusRecorder) OnDirectoryChange(string) {}

func (r *statusRecorder) last() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snapshots) == 0 {
		return nil
	}
	return r.snapshots[len(r.snapshots)-1]
}

type queueHarness struct {
	qm         *QueueManager
	downloader *fakeDownloader
	recorder   *statusRecorder
	dir        string
}

func newQueueHarness(t *testing.T, grace time.Duration) *queueHarness {
	t.Helper()
	dir := t.TempDir()
	downloader := newFakeDownloader()
	dm := NewDownloadManager(downloader, nil, nil, "test", nil, nil)
	qm := NewQueueManager(dm,
		&domain.DownloadConfig{UseSeasonFolders: true},
		&domain.QueueConfig{GraceDelay: grace},
		nil)
	qm.getwd = func() (string, error) { return dir, nil }

	recorder := &statusRecorder{}
	qm.AddListener(recorder)
	t.Cleanup(qm.Close)

	return &queueHarness{qm: qm, downloader: downloader, recorder: recorder, dir: dir}
}

func queueEpisode(id, title string) *domain.Episode {
	return &domain.Episode{ID: id, Title: title, SeriesTitle: "Show", SeasonNumber: 1}
}

func TestQueueManager_StatusFollowsTransfer(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1")))
	h.downloader.waitStarted(t, "1")
	assert.Equal(t, []string{"Downloading 1 episode(s)", "E1: pending"}, h.qm.Status())

	h.downloader.progress("1", domain.Progress{Percent: 50, TotalSize: "100MB"})
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Downloading 1 episode(s)", "E1: 50% of 100MB"}, h.recorder.last())
	}, time.Second, 5*time.Millisecond)

	h.downloader.finish("1", errors.New("disk full"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Downloading 1 episode(s)", "E1: disk full"}, h.recorder.last())
	}, time.Second, 5*time.Millisecond)

	assert.True(t, h.qm.HasFailed("1"))
	assert.False(t, h.qm.IsQueued("1"))
	episodes := h.qm.Episodes()
	require.Len(t, episodes, 1)
	assert.False(t, episodes[0].Downloading)
	assert.Nil(t, episodes[0].Progress)
}

func TestQueueManager_RunsOneTransferAtATimeInOrder(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1")))
	require.NoError(t, h.qm.Enqueue(queueEpisode("2", "E2")))
	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{queueEpisode("3", "E3")}))

	h.downloader.waitStarted(t, "1")
	h.downloader.assertNothingStarted(t)

	active, ok := h.qm.Active()
	require.True(t, ok)
	assert.Equal(t, "1", active.ID)

	h.downloader.finish("1", nil)
	h.downloader.waitStarted(t, "2")
	h.downloader.finish("2", nil)
	h.downloader.waitStarted(t, "3")
	h.downloader.finish("3", nil)

	require.NoError(t, h.qm.WaitIdle(context.Background()))
	assert.Equal(t, []string{"1", "2", "3"}, h.downloader.Calls())
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.downloader.maxActive))
}

func TestQueueManager_EnqueueIsIdempotent(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	e1 := queueEpisode("1", "E1")
	require.NoError(t, h.qm.Enqueue(e1))
	require.NoError(t, h.qm.Enqueue(e1))
	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1 again")))
	h.downloader.waitStarted(t, "1")

	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{
		queueEpisode("1", "E1"),
		queueEpisode("2", "E2"),
		queueEpisode("2", "E2"),
	}))

	episodes := h.qm.Episodes()
	require.Len(t, episodes, 2)
	assert.Equal(t, "E1", episodes[0].Title)
	assert.Equal(t, "2", episodes[1].ID)
	assert.Equal(t, []string{"Downloading 2 episode(s)", "E1: pending", "E2: pending"}, h.qm.Status())
}

func TestQueueManager_EnqueueAssignsDownloadMetadata(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	ep := &domain.Episode{ID: "1", Title: "Pilot", SeriesTitle: `Attack: On "Titan"?`, SeasonNumber: 2, EpisodeNumber: 3}
	require.NoError(t, h.qm.Enqueue(ep))
	h.downloader.waitStarted(t, "1")

	assert.Equal(t, "S02E03", ep.SeasonEpisodeID)
	assert.Equal(t, "./Attack On Titan/Season 2", ep.PreferredDownloadPath)
	assert.Equal(t, h.dir, ep.BaseDirectory)
	assert.True(t, ep.Downloading)
	assert.DirExists(t, filepath.Join(h.dir, "Attack On Titan", "Season 2"))
}

func TestQueueManager_FailureDoesNotBlockQueue(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{queueEpisode("1", "E1"), queueEpisode("2", "E2")}))
	h.downloader.waitStarted(t, "1")
	h.downloader.finish("1", &domain.ProcessError{Binary: "yt-dlp", ExitCode: 1, Stderr: "ERROR: 403"})
	h.downloader.waitStarted(t, "2")

	status := h.qm.Status()
	require.Len(t, status, 3)
	assert.Equal(t, "E1: yt-dlp exited with code 1      Stderr:   ERROR: 403", status[1])
	assert.Equal(t, "E2: pending", status[2])
}

func TestQueueManager_RetryFailedEpisode(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1")))
	h.downloader.waitStarted(t, "1")
	h.downloader.finish("1", errors.New("network down"))
	require.Eventually(t, func() bool { return h.qm.HasFailed("1") }, time.Second, 5*time.Millisecond)

	retry := queueEpisode("1", "E1")
	require.NoError(t, h.qm.Enqueue(retry))
	h.downloader.waitStarted(t, "1")

	assert.Empty(t, retry.Error)
	assert.True(t, retry.Downloading)
	assert.True(t, h.qm.IsQueued("1"))
	assert.Len(t, h.qm.Episodes(), 1)

	h.downloader.finish("1", nil)
	require.NoError(t, h.qm.WaitIdle(context.Background()))
	assert.Equal(t, []string{"1", "1"}, h.downloader.Calls())
}

func TestQueueManager_RemovesEpisodesAfterGraceDelay(t *testing.T) {
	h := newQueueHarness(t, 20*time.Millisecond)

	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1")))
	h.downloader.waitStarted(t, "1")
	h.downloader.finish("1", nil)

	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{IdleStatus}, h.qm.Status())
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{IdleStatus}, h.recorder.last())
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.qm.Episodes())

	// a completed episode can be queued again once it is gone
	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1")))
	h.downloader.waitStarted(t, "1")
}

func TestQueueManager_NextTransferDoesNotWaitForGraceDelay(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{queueEpisode("1", "E1"), queueEpisode("2", "E2")}))
	h.downloader.waitStarted(t, "1")
	h.downloader.progress("1", domain.Progress{Percent: 100, TotalSize: "10MB"})
	h.downloader.finish("1", nil)
	h.downloader.waitStarted(t, "2")

	assert.Equal(t, []string{"Downloading 2 episode(s)", "E1: 100% of 10MB", "E2: pending"}, h.qm.Status())
}

func TestQueueManager_DirectoryCreationFailure(t *testing.T) {
	h := newQueueHarness(t, time.Hour)
	h.qm.mkdirAll = func(path string, perm os.FileMode) error {
		if strings.Contains(path, "Broken") {
			return errors.New("read-only file system")
		}
		return os.MkdirAll(path, perm)
	}

	broken := &domain.Episode{ID: "1", Title: "E1", SeriesTitle: "Broken", SeasonNumber: 1}
	err := h.qm.Enqueue(broken)

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDirectoryCreation))
	assert.True(t, h.qm.HasFailed("1"))
	h.downloader.assertNothingStarted(t)

	require.NoError(t, h.qm.Enqueue(queueEpisode("2", "E2")))
	h.downloader.waitStarted(t, "2")
}

func TestQueueManager_CancelActiveStartsNext(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{queueEpisode("1", "E1"), queueEpisode("2", "E2")}))
	h.downloader.waitStarted(t, "1")

	require.NoError(t, h.qm.Cancel("1"))
	h.downloader.waitStarted(t, "2")

	assert.True(t, h.qm.HasFailed("1"))
	assert.Equal(t, "E1: cancelled", h.qm.Status()[1])
}

func TestQueueManager_CancelPending(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{queueEpisode("1", "E1"), queueEpisode("2", "E2")}))
	h.downloader.waitStarted(t, "1")

	require.NoError(t, h.qm.Cancel("2"))
	assert.False(t, h.qm.IsQueued("2"))

	h.downloader.finish("1", nil)
	require.NoError(t, h.qm.WaitIdle(context.Background()))
	assert.Equal(t, []string{"1"}, h.downloader.Calls())

	err := h.qm.Cancel("missing")
	assert.True(t, errors.Is(err, domain.ErrEpisodeNotQueued))
}

func TestQueueManager_WaitIdleHonoursContext(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.Enqueue(queueEpisode("1", "E1")))
	h.downloader.waitStarted(t, "1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, h.qm.WaitIdle(ctx), context.DeadlineExceeded)
}

func TestQueueManager_CloseCancelsTransfer(t *testing.T) {
	h := newQueueHarness(t, time.Hour)

	require.NoError(t, h.qm.EnqueueAll([]*domain.Episode{queueEpisode("1", "E1"), queueEpisode("2", "E2")}))
	h.downloader.waitStarted(t, "1")

	h.qm.Close()

	require.NoError(t, h.qm.WaitIdle(context.Background()))
	assert.Equal(t, []string{"1"}, h.downloader.Calls())
	assert.ErrorIs(t, h.qm.Enqueue(queueEpisode("3", "E3")), domain.ErrQueueClosed)
}

func TestQueueManager_ConcurrentEnqueueRunsOneTransferAtATime(t *testing.T) {
	const episodes = 10
	var active, maxActive int32
	var mu sync.Mutex
	calls := make(map[string]int)

	downloader := downloaderFunc(func(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			peak := atomic.LoadInt32(&maxActive)
			if n <= peak || atomic.CompareAndSwapInt32(&maxActive, peak, n) {
				break
			}
		}
		mu.Lock()
		calls[episode.ID]++
		mu.Unlock()
		time.Sleep(time.Millisecond)
		return nil
	})

	dir := t.TempDir()
	dm := NewDownloadManager(downloader, nil, nil, "test", nil, nil)
	qm := NewQueueManager(dm,
		&domain.DownloadConfig{UseSeasonFolders: true},
		&domain.QueueConfig{GraceDelay: time.Hour},
		nil)
	qm.getwd = func() (string, error) { return dir, nil }
	t.Cleanup(qm.Close)

	episode := func(n int) *domain.Episode {
		id := fmt.Sprint(n % episodes)
		return queueEpisode(id, "E"+id)
	}

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < episodes; i++ {
				if i%2 == 0 {
					assert.NoError(t, qm.Enqueue(episode(g+i)))
				} else {
					assert.NoError(t, qm.EnqueueAll([]*domain.Episode{episode(g + i), episode(g + i + 1)}))
				}
			}
		}(g)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, qm.WaitIdle(ctx))

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, calls, episodes)
	for id, n := range calls {
		assert.Equal(t, 1, n, "episode %s downloaded more than once", id)
	}
	assert.Len(t, qm.Episodes(), episodes)
}

func TestQueueManager_DownloaderPanicFailsEpisode(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	downloader := downloaderFunc(func(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
		mu.Lock()
		calls = append(calls, episode.ID)
		mu.Unlock()
		if episode.ID == "1" {
			panic("boom")
		}
		return nil
	})

	history := newMockHistoryRepo()
	dir := t.TempDir()
	dm := NewDownloadManager(downloader, history, nil, "test", nil, nil)
	qm := NewQueueManager(dm,
		&domain.DownloadConfig{UseSeasonFolders: true},
		&domain.QueueConfig{GraceDelay: time.Hour},
		nil)
	qm.getwd = func() (string, error) { return dir, nil }

	first, second := queueEpisode("1", "E1"), queueEpisode("2", "E2")
	require.NoError(t, qm.EnqueueAll([]*domain.Episode{first, second}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, qm.WaitIdle(ctx))

	assert.True(t, qm.HasFailed("1"))
	assert.Equal(t, "downloader panicked: boom", first.Error)
	assert.False(t, qm.HasFailed("2"))
	mu.Lock()
	assert.Equal(t, []string{"1", "2"}, calls)
	mu.Unlock()

	records, err := history.FindByEpisodeID("1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.StatusFailed, records[0].Status)

	assert.NotPanics(t, qm.Close)
}

// panickingNotifier panics when a transfer starts
type panickingNotifier struct{ mockNotifier }

func (n *panickingNotifier) NotifyDownloadStarted(title string) {
	if title == "E1" {
		panic("notifier broke")
	}
}

func TestQueueManager_TransferPanicFreesWorker(t *testing.T) {
	downloader := downloaderFunc(func(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
		return nil
	})

	dir := t.TempDir()
	dm := NewDownloadManager(downloader, nil, &panickingNotifier{}, "test", nil, nil)
	qm := NewQueueManager(dm,
		&domain.DownloadConfig{UseSeasonFolders: true},
		&domain.QueueConfig{GraceDelay: time.Hour},
		nil)
	qm.getwd = func() (string, error) { return dir, nil }

	first, second := queueEpisode("1", "E1"), queueEpisode("2", "E2")
	require.NoError(t, qm.EnqueueAll([]*domain.Episode{first, second}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, qm.WaitIdle(ctx))

	assert.Equal(t, "transfer panicked: notifier broke", first.Error)
	assert.True(t, qm.HasFailed("1"))
	assert.False(t, qm.HasFailed("2"))
	assert.Empty(t, second.Error)

	assert.NotPanics(t, qm.Close)
}
