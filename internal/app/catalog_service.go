package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yourusername/fundl-go/internal/domain"
)

// CatalogService resolves shows, seasons and episodes through the configured
// provider. When a queue is attached, listed episodes carry their queued
// state so labels can mark them.
type CatalogService struct {
	provider domain.Provider
	config   *domain.CatalogConfig
	queue    *QueueManager
	logger   *zap.Logger
}

// NewCatalogService creates a new catalog service. queue may be nil.
func NewCatalogService(provider domain.Provider, config *domain.CatalogConfig, queue *QueueManager, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{
		provider: provider,
		config:   config,
		queue:    queue,
		logger:   logger,
	}
}

// ProviderName returns the name of the underlying provider
func (s *CatalogService) ProviderName() string {
	return s.provider.Name()
}

// Search looks up shows matching query
func (s *CatalogService) Search(ctx context.Context, query string) ([]domain.Show, error) {
	shows, err := s.provider.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	s.logger.Debug("Catalog search", zap.String("query", query), zap.Int("results", len(shows)))
	return shows, nil
}

// FindShow searches for query and picks a result. index is 1-based; zero
// selects an exact title match if there is one, otherwise the first result.
func (s *CatalogService) FindShow(ctx context.Context, query string, index int) (domain.Show, error) {
	shows, err := s.Search(ctx, query)
	if err != nil {
		return domain.Show{}, err
	}
	if len(shows) == 0 {
		return domain.Show{}, fmt.Errorf("%w: %s", domain.ErrShowNotFound, query)
	}

	if index > 0 {
		if index > len(shows) {
			return domain.Show{}, fmt.Errorf("%w: result %d of %d for %q", domain.ErrShowNotFound, index, len(shows), query)
		}
		return shows[index-1], nil
	}

	for _, show := range shows {
		if strings.EqualFold(show.Title, query) {
			return show, nil
		}
	}
	return shows[0], nil
}

// Seasons lists the seasons of a show
func (s *CatalogService) Seasons(ctx context.Context, show domain.Show) ([]domain.Season, error) {
	seasons, err := s.provider.ListSeasons(ctx, show)
	if err != nil {
		return nil, fmt.Errorf("list seasons of %s: %w", show.Title, err)
	}
	return seasons, nil
}

// FindSeason returns the season with the given number, or the single
// season when number is zero
func (s *CatalogService) FindSeason(ctx context.Context, show domain.Show, number int) (domain.Season, error) {
	seasons, err := s.Seasons(ctx, show)
	if err != nil {
		return domain.Season{}, err
	}

	if number == 0 && len(seasons) == 1 {
		return seasons[0], nil
	}
	for _, season := range seasons {
		if season.SeasonNumber == number {
			return season, nil
		}
	}
	return domain.Season{}, fmt.Errorf("%w: %s season %d", domain.ErrSeasonNotFound, show.Title, number)
}

// Episodes lists the episodes of a season
func (s *CatalogService) Episodes(ctx context.Context, season domain.Season) ([]*domain.Episode, error) {
	episodes, err := s.provider.ListEpisodes(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("list episodes of %s: %w", season.Title, err)
	}
	s.markQueued(episodes)
	return episodes, nil
}

// EpisodesForShow lists the episodes of every season of a show, fetching
// seasons concurrently. The result keeps season order.
func (s *CatalogService) EpisodesForShow(ctx context.Context, show domain.Show) ([][]*domain.Episode, error) {
	seasons, err := s.Seasons(ctx, show)
	if err != nil {
		return nil, err
	}

	results := make([][]*domain.Episode, len(seasons))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.FetchConcurrency, 1))
	for i, season := range seasons {
		i, season := i, season
		g.Go(func() error {
			episodes, err := s.Episodes(ctx, season)
			if err != nil {
				return err
			}
			results[i] = episodes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *CatalogService) markQueued(episodes []*domain.Episode) {
	if s.queue == nil {
		return
	}
	for _, ep := range episodes {
		ep.Downloading = s.queue.IsQueued(ep.ID)
	}
}

// SelectEpisodes picks episodes by their 1-based position in the list
func SelectEpisodes(episodes []*domain.Episode, positions []int) ([]*domain.Episode, error) {
	selected := make([]*domain.Episode, 0, len(positions))
	for _, p := range positions {
		if p < 1 || p > len(episodes) {
			return nil, fmt.Errorf("episode %d out of range 1-%d", p, len(episodes))
		}
		selected = append(selected, episodes[p-1])
	}
	return selected, nil
}
