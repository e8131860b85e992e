package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	YTDLP        YTDLPConfig        `mapstructure:"ytdlp"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// AllowedOrigins lists extra browser origins allowed to call the API,
	// e.g. "http://localhost:5173"
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	StartDirectory   string `mapstructure:"start_directory"`
	UseSeasonFolders bool   `mapstructure:"use_season_folders"`
	LogsDir          string `mapstructure:"logs_dir"`
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath  string        `mapstructure:"database_path"`
	GraceDelay    time.Duration `mapstructure:"grace_delay"`
	RecordHistory bool          `mapstructure:"record_history"`
}

// CatalogConfig selects and tunes the catalog provider
type CatalogConfig struct {
	Provider         string        `mapstructure:"provider"` // ytdlp, library
	LibraryFile      string        `mapstructure:"library_file"`
	RetryAttempts    uint          `mapstructure:"retry_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	FetchConcurrency int           `mapstructure:"fetch_concurrency"`
	SearchLimit      int           `mapstructure:"search_limit"`
}

// YTDLPConfig contains yt-dlp specific configuration
type YTDLPConfig struct {
	Binary            string `mapstructure:"binary"`
	CookieFile        string `mapstructure:"cookie_file"`
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	Format            string `mapstructure:"format"`
	SubtitleLanguages string `mapstructure:"subtitle_languages"`
	EmbedSubtitles    bool   `mapstructure:"embed_subtitles"`
	ExtraParams       string `mapstructure:"extra_params"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Provider names accepted by CatalogConfig.Provider
const (
	ProviderYTDLP   = "ytdlp"
	ProviderLibrary = "library"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8090,
		},
		Download: DownloadConfig{
			StartDirectory:   "",
			UseSeasonFolders: true,
			LogsDir:          "$HOME/.fundl/logs",
		},
		Queue: QueueConfig{
			DatabasePath:  "$HOME/.fundl/history.db",
			GraceDelay:    4 * time.Second,
			RecordHistory: true,
		},
		Catalog: CatalogConfig{
			Provider:         ProviderYTDLP,
			LibraryFile:      "$HOME/.fundl/library.yaml",
			RetryAttempts:    3,
			RetryDelay:       2 * time.Second,
			FetchConcurrency: 4,
			SearchLimit:      10,
		},
		YTDLP: YTDLPConfig{
			Binary:            "yt-dlp",
			CookieFile:        "",
			Format:            "bestvideo*+bestaudio/best",
			SubtitleLanguages: "en.*",
			EmbedSubtitles:    true,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   true,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
			MaxSizeMB:  50,
			MaxBackups: 3,
		},
	}
}
