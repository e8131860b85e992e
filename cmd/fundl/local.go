package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/internal/infrastructure"
	"github.com/yourusername/fundl-go/pkg/logger"
)

var cdCmd = &cobra.Command{
	Use:   "cd [path]",
	Short: "Set the directory downloads are placed under",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		cwd, err := app.NewDirectoryManager(nil).ChangeDirectory(args[0])
		if err != nil {
			return err
		}

		config.Download.StartDirectory = cwd
		path := configFilePath()
		if err := app.SaveConfig(config, path); err != nil {
			return err
		}
		fmt.Printf("Downloads go to %s (saved in %s)\n", cwd, path)
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past transfers",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		series, _ := cmd.Flags().GetString("series")
		limit, _ := cmd.Flags().GetInt("limit")

		filters := map[string]interface{}{"limit": limit}
		if status != "" {
			if !domain.ValidateStatus(domain.DownloadStatus(status)) {
				return fmt.Errorf("invalid status: %s", status)
			}
			filters["status"] = status
		}
		if series != "" {
			filters["series_title"] = series
		}

		repo, err := historyRepository(cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		records, err := repo.FindAll(filters)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No transfers recorded")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "EPISODE\tTITLE\tSTATUS\tWHEN\tTOOK\tERROR")
		for _, r := range records {
			took := "-"
			if d := r.Duration(); d > 0 {
				took = d.Round(time.Second).String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.SeasonEpisodeID,
				truncate(r.SeriesTitle+" - "+r.Title, 50),
				r.Status,
				humanize.Time(r.CreatedAt),
				took,
				truncate(r.ErrorMessage, 40))
		}
		return w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show transfer statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := historyRepository(cmd)
		if err != nil {
			return err
		}
		defer repo.Close()

		stats, err := repo.GetStats()
		if err != nil {
			return err
		}

		fmt.Println("Transfer Statistics:")
		fmt.Printf("  Total:      %s\n", humanize.Comma(stats.Total))
		fmt.Printf("  Queued:     %s\n", humanize.Comma(stats.Queued))
		fmt.Printf("  Processing: %s\n", humanize.Comma(stats.Processing))
		fmt.Printf("  Completed:  %s\n", humanize.Comma(stats.Completed))
		fmt.Printf("  Failed:     %s\n", humanize.Comma(stats.Failed))
		fmt.Printf("  Cancelled:  %s\n", humanize.Comma(stats.Cancelled))
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:       "logs [category]",
	Short:     "Show the queue, transfer, error or download logs",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"queue", "transfer", "error", "download"},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !logger.ValidCategory(args[0]) {
			return fmt.Errorf("invalid category %q", args[0])
		}
		category := logger.LogCategory(args[0])

		query, _ := cmd.Flags().GetString("search")
		limit, _ := cmd.Flags().GetInt("limit")
		follow, _ := cmd.Flags().GetBool("follow")
		dateStr, _ := cmd.Flags().GetString("date")

		date := time.Now()
		if dateStr != "" {
			parsed, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				return fmt.Errorf("invalid date %q, use YYYY-MM-DD", dateStr)
			}
			date = parsed
		}

		config, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		reader := logger.NewLogReader(config.Download.LogsDir)

		var entries []logger.LogEntry
		if query != "" {
			entries, err = reader.SearchLogs(category, date, query, limit)
		} else {
			entries, err = reader.ReadLogs(category, date, limit)
		}
		if err != nil {
			return err
		}
		for _, entry := range entries {
			printLogEntry(entry)
		}
		if !follow {
			return nil
		}

		ch := make(chan logger.LogEntry, 100)
		errCh := make(chan error, 1)
		go func() { errCh <- reader.TailLogs(cmd.Context(), category, ch) }()
		for {
			select {
			case entry := <-ch:
				printLogEntry(entry)
			case err := <-errCh:
				return err
			}
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		path := configFilePath()

		if _, err := os.Stat(path); err == nil && !force {
			return fmt.Errorf("%s already exists, use --force to overwrite", path)
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			return err
		}
		fmt.Printf("Configuration written to %s\n", path)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringP("status", "s", "", "Filter by status (completed, failed, cancelled, ...)")
	historyCmd.Flags().String("series", "", "Filter by series title")
	historyCmd.Flags().IntP("limit", "l", 50, "Maximum number of records")

	logsCmd.Flags().StringP("search", "q", "", "Only show entries containing this text")
	logsCmd.Flags().String("date", "", "Day to read (YYYY-MM-DD), default today")
	logsCmd.Flags().IntP("limit", "l", 100, "Maximum number of entries")
	logsCmd.Flags().BoolP("follow", "f", false, "Keep printing new entries")

	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
}

// configFilePath is the file written by config commands
func configFilePath() string {
	if configPath != "" {
		return configPath
	}
	return app.DefaultConfigPath()
}

// historyRepository opens the history database without starting the queue
func historyRepository(cmd *cobra.Command) (*infrastructure.SQLiteHistoryRepository, error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if !config.Queue.RecordHistory {
		return nil, errors.New("history is disabled (queue.record_history)")
	}
	return openHistory(config)
}

func printLogEntry(entry logger.LogEntry) {
	fmt.Printf("%s %-5s %s", entry.Timestamp, entry.Level, entry.Message)
	for key, value := range entry.Fields {
		fmt.Printf(" %s=%v", key, value)
	}
	fmt.Println()
}
