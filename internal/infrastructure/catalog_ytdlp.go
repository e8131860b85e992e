package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/yourusername/fundl-go/internal/domain"
	"go.uber.org/zap"
)

// commandRunner runs a binary and returns its stdout
type commandRunner func(ctx context.Context, binary string, args ...string) ([]byte, error)

// YTDLPCatalog lists shows, seasons and episodes from yt-dlp JSON dumps
type YTDLPCatalog struct {
	binary string
	config *domain.CatalogConfig
	logger *zap.Logger
	run    commandRunner
}

// NewYTDLPCatalog creates a catalog backed by yt-dlp --flat-playlist dumps
func NewYTDLPCatalog(binary string, config *domain.CatalogConfig, logger *zap.Logger) *YTDLPCatalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YTDLPCatalog{
		binary: binary,
		config: config,
		logger: logger,
		run:    runCommand,
	}
}

// ytdlpEntry is the subset of yt-dlp's info JSON used by the catalog
type ytdlpEntry struct {
	ID            string       `json:"id"`
	Type          string       `json:"_type"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	URL           string       `json:"url"`
	WebpageURL    string       `json:"webpage_url"`
	IEKey         string       `json:"ie_key"`
	Series        string       `json:"series"`
	Season        string       `json:"season"`
	SeasonNumber  int          `json:"season_number"`
	Episode       string       `json:"episode"`
	EpisodeNumber int          `json:"episode_number"`
	Entries       []ytdlpEntry `json:"entries"`
}

func (e ytdlpEntry) link() string {
	if e.WebpageURL != "" {
		return e.WebpageURL
	}
	return e.URL
}

func (e ytdlpEntry) isPlaylist() bool {
	return e.Type == "playlist" || strings.HasSuffix(e.IEKey, "Playlist") || strings.HasSuffix(e.IEKey, "Season")
}

// Search looks up shows. URLs are resolved directly, anything else goes
// through yt-dlp's search extractor.
func (c *YTDLPCatalog) Search(ctx context.Context, query string) ([]domain.Show, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if isURL(query) {
		info, err := c.dump(ctx, query)
		if err != nil {
			return nil, err
		}
		title := info.Series
		if title == "" {
			title = info.Title
		}
		return []domain.Show{{
			ID:           firstNonEmpty(info.ID, query),
			Title:        title,
			SlugTitle:    domain.Slugify(title),
			Description:  info.Description,
			URL:          firstNonEmpty(info.WebpageURL, query),
			EpisodeCount: len(info.Entries),
		}}, nil
	}

	limit := c.config.SearchLimit
	if limit <= 0 {
		limit = 10
	}
	info, err := c.dump(ctx, fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, err
	}

	shows := make([]domain.Show, 0, len(info.Entries))
	for _, entry := range info.Entries {
		shows = append(shows, domain.Show{
			ID:          entry.ID,
			Title:       entry.Title,
			SlugTitle:   domain.Slugify(entry.Title),
			Description: entry.Description,
			URL:         entry.link(),
		})
	}
	return shows, nil
}

// ListSeasons groups a show's entries into seasons. Nested playlists become
// seasons of their own, flat entries are grouped by season number.
func (c *YTDLPCatalog) ListSeasons(ctx context.Context, show domain.Show) ([]domain.Season, error) {
	if show.URL == "" {
		return nil, fmt.Errorf("%w: %s has no url", domain.ErrShowNotFound, show.Title)
	}

	info, err := c.dump(ctx, show.URL)
	if err != nil {
		return nil, err
	}

	var seasons []domain.Season
	numbers := map[int]bool{}
	for i, entry := range info.Entries {
		if entry.isPlaylist() {
			seasons = append(seasons, domain.Season{
				ID:           firstNonEmpty(entry.ID, fmt.Sprintf("%s-%d", show.ID, i+1)),
				Title:        entry.Title,
				SlugTitle:    domain.Slugify(entry.Title),
				SeasonNumber: i + 1,
				URL:          entry.link(),
				Series:       show,
			})
			continue
		}
		number := entry.SeasonNumber
		if number == 0 {
			number = 1
		}
		numbers[number] = true
	}
	if len(seasons) > 0 {
		return seasons, nil
	}

	if len(numbers) == 0 {
		numbers[1] = true
	}
	ordered := make([]int, 0, len(numbers))
	for n := range numbers {
		ordered = append(ordered, n)
	}
	sort.Ints(ordered)

	for _, n := range ordered {
		title := fmt.Sprintf("Season %d", n)
		seasons = append(seasons, domain.Season{
			ID:           fmt.Sprintf("%s-s%d", show.ID, n),
			Title:        title,
			SlugTitle:    domain.Slugify(title),
			SeasonNumber: n,
			URL:          show.URL,
			Series:       show,
		})
	}
	return seasons, nil
}

// ListEpisodes lists the episodes of a season in playlist order
func (c *YTDLPCatalog) ListEpisodes(ctx context.Context, season domain.Season) ([]*domain.Episode, error) {
	if season.URL == "" {
		return nil, fmt.Errorf("%w: %s has no url", domain.ErrSeasonNotFound, season.Title)
	}

	info, err := c.dump(ctx, season.URL)
	if err != nil {
		return nil, err
	}

	var episodes []*domain.Episode
	for i, entry := range info.Entries {
		if entry.isPlaylist() {
			continue
		}
		if entry.SeasonNumber != 0 && season.SeasonNumber > 0 && entry.SeasonNumber != season.SeasonNumber {
			continue
		}
		episodes = append(episodes, newEpisode(season, entry, i+1))
	}

	c.logger.Debug("Listed episodes",
		zap.String("season", season.Title),
		zap.Int("count", len(episodes)))

	return episodes, nil
}

func newEpisode(season domain.Season, entry ytdlpEntry, sequence int) *domain.Episode {
	title := firstNonEmpty(entry.Episode, entry.Title, entry.ID)
	number := entry.EpisodeNumber
	if number == 0 {
		number = sequence
	}
	seasonNumber := season.SeasonNumber
	if seasonNumber == 0 {
		seasonNumber = 1
	}

	return &domain.Episode{
		ID:              entry.ID,
		Title:           title,
		SlugTitle:       domain.Slugify(title),
		SeasonID:        season.ID,
		SeasonTitle:     season.Title,
		SeasonSlugTitle: firstNonEmpty(season.SlugTitle, domain.Slugify(season.Title)),
		SeasonNumber:    seasonNumber,
		SeriesID:        season.Series.ID,
		SeriesTitle:     firstNonEmpty(season.Series.Title, entry.Series),
		SeriesSlugTitle: season.Series.SlugTitle,
		EpisodeNumber:   number,
		SequenceNumber:  sequence,
		Locator:         entry.link(),
	}
}

// dump runs yt-dlp -J --flat-playlist with retries
func (c *YTDLPCatalog) dump(ctx context.Context, target string) (*ytdlpEntry, error) {
	var info ytdlpEntry

	err := retry.Do(
		func() error {
			out, err := c.run(ctx, c.binary, "-J", "--flat-playlist", "--no-warnings", "--", target)
			if err != nil {
				return err
			}
			if err := json.Unmarshal(out, &info); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to parse yt-dlp output: %w", err))
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(max(c.config.RetryAttempts, 1)),
		retry.Delay(c.config.RetryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return retry.IsRecoverable(err) && !errors.Is(err, domain.ErrBinaryNotFound)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("Catalog lookup failed, retrying",
				zap.String("target", target),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrBinaryNotFound, binary)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &domain.ProcessError{Binary: binary, ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return nil, err
	}
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
