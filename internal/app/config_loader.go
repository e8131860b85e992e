package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/yourusername/fundl-go/internal/domain"
)

// LoadConfig loads configuration from file and environment. A .env file in
// the working directory is loaded first so FUNDL_* variables can live there.
func LoadConfig(configPath string) (*domain.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	// Start with default config
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.fundl")
		v.AddConfigPath("/etc/fundl")
	}

	v.SetEnvPrefix("FUNDL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers the keys that are commonly overridden from the
// environment. AutomaticEnv alone only sees keys viper already knows about.
func bindEnvKeys(v *viper.Viper) {
	for _, key := range []string{
		"server.host",
		"server.port",
		"download.start_directory",
		"download.use_season_folders",
		"queue.grace_delay",
		"catalog.provider",
		"catalog.library_file",
		"ytdlp.binary",
		"ytdlp.cookie_file",
		"ytdlp.username",
		"ytdlp.password",
		"logging.level",
	} {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Download.StartDirectory = expandPath(config.Download.StartDirectory)
	config.Download.LogsDir = expandPath(config.Download.LogsDir)
	config.Queue.DatabasePath = expandPath(config.Queue.DatabasePath)
	config.Catalog.LibraryFile = expandPath(config.Catalog.LibraryFile)
	config.YTDLP.CookieFile = expandPath(config.YTDLP.CookieFile)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	path = os.ExpandEnv(path)

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}

	return path
}

// validateConfig validates the configuration
func validateConfig(config *domain.Config) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	switch config.Catalog.Provider {
	case domain.ProviderYTDLP, domain.ProviderLibrary:
	default:
		return fmt.Errorf("%w: %q", domain.ErrUnknownProvider, config.Catalog.Provider)
	}

	if config.Queue.GraceDelay < 0 {
		return fmt.Errorf("grace delay cannot be negative")
	}

	if config.Queue.RecordHistory && config.Queue.DatabasePath == "" {
		return fmt.Errorf("history database path not configured")
	}

	if config.Catalog.FetchConcurrency < 1 {
		return fmt.Errorf("fetch concurrency must be at least 1")
	}

	if config.YTDLP.Binary == "" {
		return fmt.Errorf("yt-dlp binary not configured")
	}

	if config.Download.LogsDir == "" {
		return fmt.Errorf("logs directory not configured")
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}

	return nil
}

// DefaultConfigPath is where `fundl config init` writes the configuration
func DefaultConfigPath() string {
	return expandPath("~/.fundl/config.yaml")
}

// SaveConfig saves configuration to file
func SaveConfig(config *domain.Config, path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	settings := map[string]interface{}{
		"server.host":                 config.Server.Host,
		"server.port":                 config.Server.Port,
		"server.allowed_origins":      config.Server.AllowedOrigins,
		"download.start_directory":    config.Download.StartDirectory,
		"download.use_season_folders": config.Download.UseSeasonFolders,
		"download.logs_dir":           config.Download.LogsDir,
		"queue.database_path":         config.Queue.DatabasePath,
		"queue.grace_delay":           config.Queue.GraceDelay.String(),
		"queue.record_history":        config.Queue.RecordHistory,
		"catalog.provider":            config.Catalog.Provider,
		"catalog.library_file":        config.Catalog.LibraryFile,
		"catalog.retry_attempts":      config.Catalog.RetryAttempts,
		"catalog.retry_delay":         config.Catalog.RetryDelay.String(),
		"catalog.fetch_concurrency":   config.Catalog.FetchConcurrency,
		"catalog.search_limit":        config.Catalog.SearchLimit,
		"ytdlp.binary":                config.YTDLP.Binary,
		"ytdlp.cookie_file":           config.YTDLP.CookieFile,
		"ytdlp.username":              config.YTDLP.Username,
		"ytdlp.password":              config.YTDLP.Password,
		"ytdlp.format":                config.YTDLP.Format,
		"ytdlp.subtitle_languages":    config.YTDLP.SubtitleLanguages,
		"ytdlp.embed_subtitles":       config.YTDLP.EmbedSubtitles,
		"ytdlp.extra_params":          config.YTDLP.ExtraParams,
		"notification.enabled":        config.Notification.Enabled,
		"notification.sound":          config.Notification.Sound,
		"notification.method":         config.Notification.Method,
		"logging.level":               config.Logging.Level,
		"logging.format":              config.Logging.Format,
		"logging.output_path":         config.Logging.OutputPath,
		"logging.max_size_mb":         config.Logging.MaxSizeMB,
		"logging.max_backups":         config.Logging.MaxBackups,
	}
	for key, value := range settings {
		v.Set(key, value)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
