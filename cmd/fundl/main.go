package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yourusername/fundl-go/internal/app"
	"github.com/yourusername/fundl-go/internal/domain"
)

var version = "dev"

var (
	configPath    string
	startDir      string
	seasonFolders bool
	verbose       bool
	rootCmd       = &cobra.Command{
		Use:   "fundl",
		Short: "fundl - download queue for video catalogs",
		Long: `Browse a video catalog by show, season and episode and download
episodes one at a time into per-show folders.`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default searches ./configs, ~/.fundl, /etc/fundl)")
	rootCmd.PersistentFlags().StringVar(&startDir, "dir", "", "Directory downloads are placed under")
	rootCmd.PersistentFlags().BoolVar(&seasonFolders, "season-folders", true, "Put each season in its own folder")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(seasonsCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(cdCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the configuration and applies the persistent flags on top
func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	config, err := app.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("dir") {
		config.Download.StartDirectory = startDir
	}
	if cmd.Flags().Changed("season-folders") {
		config.Download.UseSeasonFolders = seasonFolders
	}

	return config, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
