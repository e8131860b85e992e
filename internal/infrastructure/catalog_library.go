package infrastructure

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"github.com/yourusername/fundl-go/internal/domain"
	"gopkg.in/yaml.v3"
)

// LibraryCatalog serves the catalog from a YAML file, for example
//
//	shows:
//	  - id: my-show
//	    title: My Show
//	    seasons:
//	      - id: my-show-s1
//	        number: 1
//	        episodes:
//	          - id: my-show-s1e1
//	            title: Pilot
//	            url: https://example.com/watch/1
type LibraryCatalog struct {
	fs       afero.Fs
	path     string
	validate *validator.Validate
}

type libraryFile struct {
	Shows []libraryShow `yaml:"shows" validate:"dive"`
}

type libraryShow struct {
	ID          string          `yaml:"id" validate:"required"`
	Title       string          `yaml:"title" validate:"required"`
	Slug        string          `yaml:"slug"`
	Description string          `yaml:"description"`
	URL         string          `yaml:"url" validate:"omitempty,url"`
	Seasons     []librarySeason `yaml:"seasons" validate:"dive"`
}

type librarySeason struct {
	ID       string           `yaml:"id" validate:"required"`
	Title    string           `yaml:"title"`
	Slug     string           `yaml:"slug"`
	Number   int              `yaml:"number" validate:"gte=0"`
	Episodes []libraryEpisode `yaml:"episodes" validate:"dive"`
}

type libraryEpisode struct {
	ID     string `yaml:"id" validate:"required"`
	Title  string `yaml:"title" validate:"required"`
	Number int    `yaml:"number" validate:"gte=0"`
	URL    string `yaml:"url" validate:"required"`
}

// NewLibraryCatalog creates a catalog reading path from fs. The file is
// re-read on every call so edits show up without a restart.
func NewLibraryCatalog(fs afero.Fs, path string) *LibraryCatalog {
	return &LibraryCatalog{
		fs:       fs,
		path:     path,
		validate: validator.New(),
	}
}

func (c *LibraryCatalog) load() (*libraryFile, error) {
	data, err := afero.ReadFile(c.fs, c.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read library file: %w", err)
	}

	var lib libraryFile
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("failed to parse library file: %w", err)
	}
	if err := c.validate.Struct(&lib); err != nil {
		return nil, fmt.Errorf("invalid library file %s: %w", c.path, err)
	}
	return &lib, nil
}

// Search returns shows whose title or slug contains query, case-insensitively
func (c *LibraryCatalog) Search(ctx context.Context, query string) ([]domain.Show, error) {
	lib, err := c.load()
	if err != nil {
		return nil, err
	}

	query = strings.ToLower(strings.TrimSpace(query))
	var shows []domain.Show
	for _, s := range lib.Shows {
		if query == "" ||
			strings.Contains(strings.ToLower(s.Title), query) ||
			strings.Contains(strings.ToLower(s.Slug), query) {
			shows = append(shows, s.toDomain())
		}
	}
	return shows, nil
}

// ListSeasons returns the seasons of a show
func (c *LibraryCatalog) ListSeasons(ctx context.Context, show domain.Show) ([]domain.Season, error) {
	lib, err := c.load()
	if err != nil {
		return nil, err
	}

	s, ok := lib.findShow(show.ID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrShowNotFound, show.ID)
	}

	parent := s.toDomain()
	seasons := make([]domain.Season, 0, len(s.Seasons))
	for i, season := range s.Seasons {
		seasons = append(seasons, season.toDomain(parent, i+1))
	}
	return seasons, nil
}

// ListEpisodes returns the episodes of a season in file order
func (c *LibraryCatalog) ListEpisodes(ctx context.Context, season domain.Season) ([]*domain.Episode, error) {
	lib, err := c.load()
	if err != nil {
		return nil, err
	}

	for _, s := range lib.Shows {
		for i, ls := range s.Seasons {
			if ls.ID != season.ID {
				continue
			}
			parent := ls.toDomain(s.toDomain(), i+1)
			episodes := make([]*domain.Episode, 0, len(ls.Episodes))
			for j, e := range ls.Episodes {
				episodes = append(episodes, e.toDomain(parent, j+1))
			}
			return episodes, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrSeasonNotFound, season.ID)
}

func (l *libraryFile) findShow(id string) (libraryShow, bool) {
	for _, s := range l.Shows {
		if s.ID == id {
			return s, true
		}
	}
	return libraryShow{}, false
}

func (s libraryShow) toDomain() domain.Show {
	episodes := 0
	for _, season := range s.Seasons {
		episodes += len(season.Episodes)
	}
	return domain.Show{
		ID:           s.ID,
		Title:        s.Title,
		SlugTitle:    firstNonEmpty(s.Slug, domain.Slugify(s.Title)),
		Description:  s.Description,
		URL:          s.URL,
		SeasonCount:  len(s.Seasons),
		EpisodeCount: episodes,
	}
}

func (s librarySeason) toDomain(show domain.Show, position int) domain.Season {
	number := s.Number
	if number == 0 {
		number = position
	}
	title := firstNonEmpty(s.Title, fmt.Sprintf("Season %d", number))
	return domain.Season{
		ID:           s.ID,
		Title:        title,
		SlugTitle:    firstNonEmpty(s.Slug, domain.Slugify(title)),
		SeasonNumber: number,
		EpisodeCount: len(s.Episodes),
		Series:       show,
	}
}

func (e libraryEpisode) toDomain(season domain.Season, position int) *domain.Episode {
	number := e.Number
	if number == 0 {
		number = position
	}
	return &domain.Episode{
		ID:              e.ID,
		Title:           e.Title,
		SlugTitle:       domain.Slugify(e.Title),
		SeasonID:        season.ID,
		SeasonTitle:     season.Title,
		SeasonSlugTitle: season.SlugTitle,
		SeasonNumber:    season.SeasonNumber,
		SeriesID:        season.Series.ID,
		SeriesTitle:     season.Series.Title,
		SeriesSlugTitle: season.Series.SlugTitle,
		EpisodeNumber:   number,
		SequenceNumber:  position,
		Locator:         e.URL,
	}
}
