package domain

import (
	"context"
	"fmt"
	"strings"
)

// Show is a series in the catalog
type Show struct {
	ID           string `json:"id" validate:"required"`
	Title        string `json:"title" validate:"required"`
	SlugTitle    string `json:"slug_title,omitempty"`
	Description  string `json:"description,omitempty"`
	URL          string `json:"url,omitempty" validate:"omitempty,url"`
	SeasonCount  int    `json:"season_count,omitempty"`
	EpisodeCount int    `json:"episode_count,omitempty"`
}

// Season is a season of a show
type Season struct {
	ID           string `json:"id" validate:"required"`
	Title        string `json:"title"`
	SlugTitle    string `json:"slug_title,omitempty"`
	SeasonNumber int    `json:"season_number"`
	URL          string `json:"url,omitempty" validate:"omitempty,url"`
	EpisodeCount int    `json:"episode_count,omitempty"`
	Series       Show   `json:"series"`
}

// CatalogProvider lists shows, seasons and episodes
type CatalogProvider interface {
	Search(ctx context.Context, query string) ([]Show, error)
	ListSeasons(ctx context.Context, show Show) ([]Season, error)
	ListEpisodes(ctx context.Context, season Season) ([]*Episode, error)
}

// Provider is a catalog source paired with the downloader for its episodes
type Provider interface {
	CatalogProvider
	Downloader

	// Name returns the configured provider name
	Name() string
}

// SeasonLabels renders display names for a list of seasons. Series titles
// are stripped from season names unless the seasons carry their own names.
func SeasonLabels(seasons []Season) []string {
	keepNames := len(seasons) > 1
	for _, s := range seasons {
		if strings.Contains(s.Title, "Season") {
			keepNames = false
			break
		}
	}

	labels := make([]string, len(seasons))
	for i, s := range seasons {
		if keepNames {
			labels[i] = s.Title
			continue
		}
		title := s.Title
		if s.Series.Title != "" {
			title = strings.ReplaceAll(title, s.Series.Title, "")
		}
		title = strings.TrimSpace(title)
		if title == "" {
			title = fmt.Sprintf("Season %d", s.SeasonNumber)
		}
		labels[i] = title
	}
	return labels
}
