package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/api/handlers"
	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/internal/infrastructure"
)

// stubProvider serves one show and blocks downloads until cancelled
type stubProvider struct{}

func (stubProvider) Name() string { return "stub" }

func (stubProvider) Search(ctx context.Context, query string) ([]domain.Show, error) {
	return []domain.Show{{ID: "show", Title: "My Show", URL: "https://example.com/show"}}, nil
}

func (stubProvider) ListSeasons(ctx context.Context, show domain.Show) ([]domain.Season, error) {
	return []domain.Season{
		{ID: "s1", Title: "My Show Season 1", SeasonNumber: 1, Series: show},
		{ID: "s2", Title: "My Show Season 2", SeasonNumber: 2, Series: show},
	}, nil
}

func (stubProvider) ListEpisodes(ctx context.Context, season domain.Season) ([]*domain.Episode, error) {
	if season.ID == "missing" {
		return nil, domain.ErrSeasonNotFound
	}
	return []*domain.Episode{
		{ID: "e1", Title: "Pilot", SeriesTitle: season.Series.Title, SeasonNumber: 1, EpisodeNumber: 1, Locator: "https://example.com/e1"},
	}, nil
}

func (stubProvider) Download(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
	<-ctx.Done()
	return ctx.Err()
}

type testServer struct {
	router http.Handler
	queue  *app.QueueManager
	hub    *handlers.StatusHub
	dir    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	log := zap.NewNop()

	history, err := infrastructure.NewSQLiteHistoryRepository(filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { history.Close() })

	provider := stubProvider{}
	dm := app.NewDownloadManager(provider, history, nil, provider.Name(), log, nil)
	queue := app.NewQueueManager(dm,
		&domain.DownloadConfig{UseSeasonFolders: true},
		&domain.QueueConfig{GraceDelay: time.Hour},
		nil)
	t.Cleanup(queue.Close)

	catalog := app.NewCatalogService(provider, &domain.CatalogConfig{FetchConcurrency: 1}, queue, log)
	hub := handlers.NewStatusHub(queue.Status, log)
	queue.AddListener(hub)

	router := SetupRouter(Dependencies{
		Queue:     queue,
		Catalog:   catalog,
		Directory: app.NewDirectoryManager(log),
		History:   history,
		StatusHub: hub,
		Logger:    log,
		LogsDir:   filepath.Join(dir, "logs"),
		Version:   "test",

		AllowedOrigins: []string{"http://localhost:5173"},
	})

	return &testServer{router: router, queue: queue, hub: hub, dir: dir}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var health handlers.HealthResponse
	decode(t, w, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "test", health.Version)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/ready", nil).Code)

	w = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fundl_queue_length")
	assert.Contains(t, w.Body.String(), `fundl_http_requests_total{class="2xx",method="GET",route="/health"}`)

	s.queue.Close()
	assert.Equal(t, http.StatusServiceUnavailable, s.do(t, http.MethodGet, "/ready", nil).Code)
}

// chdir moves into dir for the rest of the test
func chdir(t *testing.T, dir string) {
	t.Helper()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })
}

func TestQueueEndpoints(t *testing.T) {
	s := newTestServer(t)
	chdir(t, s.dir)
	target := filepath.Join(s.dir, "downloads")

	w := s.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"lines":["No active downloads"]}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/queue", object{"episodes": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/queue", object{"episodes": []object{{"id": "e1", "title": "Pilot", "series_title": "My Show"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "locator is required")

	w = s.do(t, http.MethodPost, "/api/v1/queue", object{"episodes": []object{{
		"id":                      "e1",
		"title":                   "Pilot",
		"series_title":            "My Show",
		"season_number":           1,
		"episode_number":          1,
		"locator":                 "https://example.com/e1",
		"preferred_download_path": "downloads",
		"archive_file":            "../../.bashrc",
		"base_directory":          "/",
	}}})
	require.Equal(t, http.StatusAccepted, w.Code)
	var queued handlers.QueueResponse
	decode(t, w, &queued)
	require.Len(t, queued.Episodes, 1)
	assert.Equal(t, "my-show-season-1.txt", queued.Episodes[0].ArchiveFile)
	assert.NotEqual(t, "/", queued.Episodes[0].BaseDirectory)
	assert.Equal(t, []string{"Downloading 1 episode(s)", "Pilot: pending"}, queued.Status)
	assert.DirExists(t, target)

	w = s.do(t, http.MethodGet, "/api/v1/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &queued)
	require.NotNil(t, queued.Active)
	assert.Equal(t, "e1", queued.Active.ID)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodDelete, "/api/v1/queue/e1", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, "/api/v1/queue/missing", nil).Code)

	require.Eventually(t, func() bool {
		return strings.Contains(strings.Join(s.queue.Status(), "\n"), "Pilot: cancelled")
	}, 2*time.Second, 10*time.Millisecond)

	w = s.do(t, http.MethodGet, "/api/v1/history?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []domain.DownloadRecord
	decode(t, w, &records)
	require.Len(t, records, 1)
	assert.Equal(t, "e1", records[0].EpisodeID)
}

func TestCatalogEndpoints(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/catalog/search", nil).Code)

	w := s.do(t, http.MethodGet, "/api/v1/catalog/search?q=show", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"provider":"stub"`)

	w = s.do(t, http.MethodPost, "/api/v1/catalog/seasons", object{"id": "show", "title": "My Show"})
	require.Equal(t, http.StatusOK, w.Code)
	var seasons handlers.SeasonsResponse
	decode(t, w, &seasons)
	assert.Len(t, seasons.Seasons, 2)
	assert.Len(t, seasons.Labels, 2)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/catalog/seasons", object{"title": "no id"}).Code)

	w = s.do(t, http.MethodPost, "/api/v1/catalog/episodes", object{
		"id": "s1", "title": "Season 1", "season_number": 1,
		"series": object{"id": "show", "title": "My Show"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	var episodes handlers.EpisodesResponse
	decode(t, w, &episodes)
	require.Len(t, episodes.Episodes, 1)
	assert.Equal(t, []string{"Pilot"}, episodes.Labels)

	w = s.do(t, http.MethodPost, "/api/v1/catalog/episodes", object{
		"id": "missing", "series": object{"id": "show", "title": "My Show"},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDirectoryHistoryAndLogEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/directory", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"path"`)

	w = s.do(t, http.MethodPut, "/api/v1/directory", object{"path": filepath.Join(s.dir, "missing")})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/history?status=bogus", nil).Code)
	w = s.do(t, http.MethodGet, "/api/v1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/history/stats", nil).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/logs/bogus", nil).Code)
	w = s.do(t, http.MethodGet, "/api/v1/logs/queue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":0`)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/logs/categories", nil).Code)

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/nope", nil).Code)
}

func TestStatusWebSocket(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/status/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg handlers.StatusMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "status", msg.Type)
	assert.Equal(t, []string{"No active downloads"}, msg.Lines)

	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	s.hub.OnDirectoryChange("/media")

	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "directory", msg.Type)
	assert.Equal(t, "/media", msg.Path)
}

type object = map[string]interface{}

func TestEnqueueRejectsUnsafeEpisodes(t *testing.T) {
	s := newTestServer(t)
	chdir(t, s.dir)

	episode := func(locator, path string) object {
		return object{"episodes": []object{{
			"id":                      "e1",
			"title":                   "Pilot",
			"series_title":            "My Show",
			"locator":                 locator,
			"preferred_download_path": path,
		}}}
	}

	tests := []struct {
		name    string
		locator string
		path    string
	}{
		{"option as locator", "--exec=touch /tmp/owned", ""},
		{"file locator", "file:///etc/passwd", ""},
		{"absolute download path", "https://example.com/e1", "/etc"},
		{"parent download path", "https://example.com/e1", "../outside"},
		{"nested parent download path", "https://example.com/e1", "shows/../../outside"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/queue", episode(tt.locator, tt.path))
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}

	assert.Empty(t, s.queue.Episodes())
	assert.NoDirExists(t, filepath.Join(filepath.Dir(s.dir), "outside"))
}

func TestCatalogRejectsNonWebURLs(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/catalog/seasons", object{"id": "show", "title": "My Show", "url": "--exec=id"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/catalog/seasons", object{"id": "show", "title": "My Show", "url": "file:///etc/passwd"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/catalog/episodes", object{
		"id": "s1", "url": "file:///etc/passwd",
		"series": object{"id": "show", "title": "My Show"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCrossOriginRequests(t *testing.T) {
	s := newTestServer(t)

	request := func(method, path, host, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(`{"episodes":[]}`))
		req.Host = host
		req.Header.Set("Content-Type", "text/plain")
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		s.router.ServeHTTP(w, req)
		return w
	}

	w := request(http.MethodPost, "/api/v1/queue", "localhost:8090", "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = request(http.MethodPut, "/api/v1/directory", "localhost:8090", "https://evil.example")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a DNS name rebound to this server is not its own origin
	w = request(http.MethodGet, "/api/v1/status", "evil.example:8090", "http://evil.example:8090")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = request(http.MethodGet, "/api/v1/status", "localhost:8090", "http://localhost:8090")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = request(http.MethodGet, "/api/v1/status", "localhost:8090", "http://localhost:5173")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))

	w = request(http.MethodOptions, "/api/v1/queue", "localhost:8090", "http://localhost:5173")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = request(http.MethodGet, "/api/v1/status", "localhost:8090", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStatusWebSocketRejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/status/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, s.hub.ClientCount())
}
