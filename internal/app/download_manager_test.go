package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/fundl-go/internal/domain"
)

// downloaderFunc adapts a function to domain.Downloader
type downloaderFunc func(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error

func (f downloaderFunc) Download(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
	return f(ctx, episode, onProgress)
}

// mockHistoryRepo implements domain.HistoryRepository for testing
type mockHistoryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.DownloadRecord
	updates int
}

func newMockHistoryRepo() *mockHistoryRepo {
	return &mockHistoryRepo{records: make(map[string]*domain.DownloadRecord)}
}

func (m *mockHistoryRepo) Create(record *domain.DownloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.ID] = &copied
	return nil
}

func (m *mockHistoryRepo) Update(record *domain.DownloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *record
	m.records[record.ID] = &copied
	m.updates++
	return nil
}

func (m *mockHistoryRepo) FindByID(id string) (*domain.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id], nil
}

func (m *mockHistoryRepo) FindByEpisodeID(episodeID string) ([]*domain.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []*domain.DownloadRecord
	for _, r := range m.records {
		if r.EpisodeID == episodeID {
			found = append(found, r)
		}
	}
	return found, nil
}

func (m *mockHistoryRepo) FindAll(filters map[string]interface{}) ([]*domain.DownloadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := make([]*domain.DownloadRecord, 0, len(m.records))
	for _, r := range m.records {
		all = append(all, r)
	}
	return all, nil
}

func (m *mockHistoryRepo) GetStats() (*domain.DownloadStats, error) {
	return &domain.DownloadStats{Total: int64(len(m.records))}, nil
}

func (m *mockHistoryRepo) only(t *testing.T) *domain.DownloadRecord {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.Len(t, m.records, 1)
	for _, r := range m.records {
		return r
	}
	return nil
}

// mockNotifier records notifications
type mockNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *mockNotifier) record(event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *mockNotifier) NotifyDownloadStarted(title string)   { n.record("started:" + title) }
func (n *mockNotifier) NotifyDownloadCompleted(title string) { n.record("completed:" + title) }
func (n *mockNotifier) NotifyDownloadFailed(title, reason string) {
	n.record("failed:" + title + ":" + reason)
}
func (n *mockNotifier) NotifyQueueEmpty() { n.record("empty") }

func (n *mockNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

func managerEpisode() *domain.Episode {
	ep := &domain.Episode{ID: "e1", Title: "Pilot", SeriesTitle: "My Show", SeasonNumber: 1, EpisodeNumber: 1}
	ep.AssignDownloadMetadata(true, "/media")
	return ep
}

func TestDownloadManager_ProcessDownloadSuccess(t *testing.T) {
	repo := newMockHistoryRepo()
	notifier := &mockNotifier{}
	var seen []domain.Progress
	downloader := downloaderFunc(func(ctx context.Context, ep *domain.Episode, onProgress domain.ProgressCallback) error {
		onProgress(domain.Progress{Percent: 50, TotalSize: "100MiB"})
		onProgress(domain.Progress{Percent: 100, TotalSize: "100MiB"})
		return nil
	})
	dm := NewDownloadManager(downloader, repo, notifier, domain.ProviderYTDLP, nil, nil)

	err := dm.ProcessDownload(context.Background(), managerEpisode(), func(p domain.Progress) {
		seen = append(seen, p)
	})

	require.NoError(t, err)
	assert.Len(t, seen, 2)

	record := repo.only(t)
	assert.Equal(t, domain.StatusCompleted, record.Status)
	assert.Equal(t, "e1", record.EpisodeID)
	assert.Equal(t, "S01E01", record.SeasonEpisodeID)
	assert.Equal(t, "/media/My Show/Season 1", record.Directory)
	assert.NotNil(t, record.CompletedAt)
	assert.Equal(t, []string{"started:Pilot", "completed:Pilot"}, notifier.Events())
}

func TestDownloadManager_ProcessDownloadFailure(t *testing.T) {
	repo := newMockHistoryRepo()
	notifier := &mockNotifier{}
	failure := &domain.ProcessError{Binary: "yt-dlp", ExitCode: 1, Stderr: "ERROR: 403"}
	downloader := downloaderFunc(func(ctx context.Context, ep *domain.Episode, onProgress domain.ProgressCallback) error {
		return failure
	})
	dm := NewDownloadManager(downloader, repo, notifier, domain.ProviderYTDLP, nil, nil)

	err := dm.ProcessDownload(context.Background(), managerEpisode(), func(domain.Progress) {})

	require.Error(t, err)
	assert.Same(t, failure, err)

	record := repo.only(t)
	assert.Equal(t, domain.StatusFailed, record.Status)
	assert.Equal(t, domain.SummarizeError(failure), record.ErrorMessage)

	events := notifier.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "started:Pilot", events[0])
	assert.Contains(t, events[1], "failed:Pilot:")
}

func TestDownloadManager_ProcessDownloadCancelled(t *testing.T) {
	repo := newMockHistoryRepo()
	notifier := &mockNotifier{}
	downloader := downloaderFunc(func(ctx context.Context, ep *domain.Episode, onProgress domain.ProgressCallback) error {
		<-ctx.Done()
		return ctx.Err()
	})
	dm := NewDownloadManager(downloader, repo, notifier, domain.ProviderYTDLP, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := dm.ProcessDownload(ctx, managerEpisode(), func(domain.Progress) {})

	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, domain.StatusCancelled, repo.only(t).Status)
	assert.Equal(t, []string{"started:Pilot"}, notifier.Events())
}

func TestDownloadManager_WithoutHistoryOrNotifier(t *testing.T) {
	downloader := downloaderFunc(func(ctx context.Context, ep *domain.Episode, onProgress domain.ProgressCallback) error {
		return nil
	})
	dm := NewDownloadManager(downloader, nil, nil, domain.ProviderYTDLP, nil, nil)

	assert.NoError(t, dm.ProcessDownload(context.Background(), managerEpisode(), func(domain.Progress) {}))
	assert.NotPanics(t, dm.QueueDrained)
}

func TestDownloadManager_QueueDrained(t *testing.T) {
	notifier := &mockNotifier{}
	dm := NewDownloadManager(nil, nil, notifier, domain.ProviderYTDLP, nil, nil)

	dm.QueueDrained()

	assert.Equal(t, []string{"empty"}, notifier.Events())
}
