package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/internal/ui"
)

var (
	showIndex      int
	seasonNumber   int
	episodeNumbers []int
	downloadAll    bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the catalog for shows",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		shows, err := a.catalog.Search(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(shows) == 0 {
			fmt.Println("No shows found")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tTITLE\tSEASONS\tURL")
		for i, show := range shows {
			seasons := "-"
			if show.SeasonCount > 0 {
				seasons = fmt.Sprint(show.SeasonCount)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i+1, truncate(show.Title, 50), seasons, show.URL)
		}
		return w.Flush()
	},
}

var seasonsCmd = &cobra.Command{
	Use:   "seasons [query]",
	Short: "List the seasons of a show",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		show, err := a.catalog.FindShow(ctx, strings.Join(args, " "), showIndex)
		if err != nil {
			return err
		}
		seasons, err := a.catalog.Seasons(ctx, show)
		if err != nil {
			return err
		}

		fmt.Println(show.Title)
		for i, label := range domain.SeasonLabels(seasons) {
			fmt.Printf("%3d. %s\n", seasons[i].SeasonNumber, label)
		}
		return nil
	},
}

var episodesCmd = &cobra.Command{
	Use:   "episodes [query]",
	Short: "List the episodes of a season",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		season, episodes, err := seasonEpisodes(cmd.Context(), a, strings.Join(args, " "))
		if err != nil {
			return err
		}

		fmt.Printf("%s - %s\n", season.Series.Title, season.Title)
		for i, ep := range episodes {
			fmt.Printf("%3d. %s\n", i+1, ep.Label())
		}
		return nil
	},
}

var downloadCmd = &cobra.Command{
	Use:   "download [query]",
	Short: "Download episodes and show their progress",
	Long: `Queue episodes of a show for download and print the queue status until
every transfer has finished. Episodes are picked by their position in the
season listing (--episodes 1,3) or all at once (--all). With --all and no
--season every season of the show is queued.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !downloadAll && len(episodeNumbers) == 0 {
			return errors.New("pass --episodes or --all")
		}
		if !downloadAll && seasonNumber == 0 {
			return errors.New("--episodes needs --season")
		}

		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		selected, err := selectDownloads(ctx, a, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(selected) == 0 {
			fmt.Println("Nothing to download")
			return nil
		}

		a.queue.AddListener(ui.NewTerminalStatus(os.Stdout))
		if err := a.queue.EnqueueAll(selected); err != nil {
			if !errors.Is(err, domain.ErrDirectoryCreation) {
				return err
			}
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		if err := a.queue.WaitIdle(ctx); err != nil {
			return fmt.Errorf("interrupted: %w", err)
		}

		if failed := countFailed(selected); failed > 0 {
			return fmt.Errorf("%d of %d episode(s) failed", failed, len(selected))
		}
		fmt.Printf("Downloaded %d episode(s)\n", len(selected))
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile [query]",
	Short: "Rename downloaded files of a season to their canonical names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if seasonNumber == 0 {
			return errors.New("--season is required")
		}

		a, err := setup(cmd, true)
		if err != nil {
			return err
		}
		defer a.Close()

		_, episodes, err := seasonEpisodes(cmd.Context(), a, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if len(episodes) == 0 {
			fmt.Println("Season has no episodes")
			return nil
		}

		cwd := a.directory.CurrentDirectory()
		for _, ep := range episodes {
			ep.AssignDownloadMetadata(a.config.Download.UseSeasonFolders, cwd)
		}

		renamed, err := app.NewFilenameReconciler(afero.NewOsFs(), a.log).Reconcile(episodes)
		if err != nil {
			return err
		}
		fmt.Printf("Renamed %d file(s) in %s\n", renamed, episodes[0].DownloadDirectory())
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{seasonsCmd, episodesCmd, downloadCmd, reconcileCmd} {
		cmd.Flags().IntVarP(&showIndex, "show", "s", 0, "Pick the Nth search result instead of the exact title match")
	}
	for _, cmd := range []*cobra.Command{episodesCmd, downloadCmd, reconcileCmd} {
		cmd.Flags().IntVarP(&seasonNumber, "season", "n", 0, "Season number")
	}
	_ = episodesCmd.MarkFlagRequired("season")
	_ = reconcileCmd.MarkFlagRequired("season")

	downloadCmd.Flags().IntSliceVarP(&episodeNumbers, "episodes", "e", nil, "Episode positions to download, e.g. 1,3")
	downloadCmd.Flags().BoolVar(&downloadAll, "all", false, "Download every episode")
	downloadCmd.MarkFlagsMutuallyExclusive("episodes", "all")
}

// seasonEpisodes resolves the season selected by --show and --season
func seasonEpisodes(ctx context.Context, a *application, query string) (domain.Season, []*domain.Episode, error) {
	show, err := a.catalog.FindShow(ctx, query, showIndex)
	if err != nil {
		return domain.Season{}, nil, err
	}
	season, err := a.catalog.FindSeason(ctx, show, seasonNumber)
	if err != nil {
		return domain.Season{}, nil, err
	}
	episodes, err := a.catalog.Episodes(ctx, season)
	if err != nil {
		return domain.Season{}, nil, err
	}
	return season, episodes, nil
}

// selectDownloads resolves the episodes picked by the download flags
func selectDownloads(ctx context.Context, a *application, query string) ([]*domain.Episode, error) {
	if downloadAll && seasonNumber == 0 {
		show, err := a.catalog.FindShow(ctx, query, showIndex)
		if err != nil {
			return nil, err
		}
		perSeason, err := a.catalog.EpisodesForShow(ctx, show)
		if err != nil {
			return nil, err
		}
		var all []*domain.Episode
		for _, episodes := range perSeason {
			all = append(all, episodes...)
		}
		return all, nil
	}

	_, episodes, err := seasonEpisodes(ctx, a, query)
	if err != nil {
		return nil, err
	}
	if downloadAll {
		return episodes, nil
	}
	return app.SelectEpisodes(episodes, episodeNumbers)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

// countFailed counts episodes whose last transfer failed. The queue records
// the failure on the episode itself, so it survives the removal of the
// entry after the grace delay.
func countFailed(episodes []*domain.Episode) int {
	failed := 0
	for _, ep := range episodes {
		if ep.Error != "" {
			failed++
		}
	}
	return failed
}
