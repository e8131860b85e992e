package domain

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/mozillazg/go-unidecode"
)

// Progress is the latest transfer progress reported by a downloader
type Progress struct {
	Percent      float64 `json:"percent"`
	TotalSize    string  `json:"total_size"`
	CurrentSpeed string  `json:"current_speed,omitempty"`
	ETA          string  `json:"eta,omitempty"`
}

// Episode is a single downloadable episode of a season of a show
type Episode struct {
	ID        string `json:"id" validate:"required"`
	Title     string `json:"title" validate:"required"`
	SlugTitle string `json:"slug_title,omitempty"`

	SeasonID        string `json:"season_id,omitempty"`
	SeasonTitle     string `json:"season_title,omitempty"`
	SeasonSlugTitle string `json:"season_slug_title,omitempty"`
	SeasonNumber    int    `json:"season_number"`

	SeriesID        string `json:"series_id,omitempty"`
	SeriesTitle     string `json:"series_title" validate:"required"`
	SeriesSlugTitle string `json:"series_slug_title,omitempty"`

	EpisodeNumber   int    `json:"episode_number"`
	SequenceNumber  int    `json:"sequence_number,omitempty"`
	SeasonEpisodeID string `json:"season_episode_id,omitempty"`

	// Locator is the URL or provider reference the downloader resolves
	Locator string `json:"locator" validate:"required,url"`

	// Filesystem metadata, derived once on first enqueue
	ArchiveFile           string `json:"archive_file,omitempty"`
	PreferredDownloadPath string `json:"preferred_download_path,omitempty"`
	BaseDirectory         string `json:"base_directory,omitempty"`

	// Transfer state, owned by the queue
	Progress    *Progress `json:"progress,omitempty"`
	Error       string    `json:"error,omitempty"`
	Downloading bool      `json:"downloading"`
}

var disallowedPathChars = regexp.MustCompile(`[\\?%*:|"<>]`)

// StripDisallowedChars removes characters that are not allowed in file names
func StripDisallowedChars(s string) string {
	return disallowedPathChars.ReplaceAllString(s, "")
}

var nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify converts a title into a lowercase ASCII slug
func Slugify(title string) string {
	s := strings.ToLower(unidecode.Unidecode(title))
	s = nonSlugChars.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// Identifier returns the canonical SxxEyy identifier of the episode
func (e *Episode) Identifier() string {
	if e.SeasonEpisodeID != "" {
		return e.SeasonEpisodeID
	}
	number := e.EpisodeNumber
	if number == 0 {
		number = e.SequenceNumber
	}
	return fmt.Sprintf("S%02dE%02d", e.SeasonNumber, number)
}

// CanonicalFilename returns "<identifier> <title>.<ext>"
func (e *Episode) CanonicalFilename(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	name := StripDisallowedChars(fmt.Sprintf("%s %s", e.Identifier(), e.Title))
	name = strings.ReplaceAll(name, "/", "-")
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// AssignDownloadMetadata fills in the archive file, the preferred download
// path and the base directory. Values that are already set are kept.
func (e *Episode) AssignDownloadMetadata(useSeasonFolders bool, workingDir string) {
	if e.SeasonEpisodeID == "" {
		e.SeasonEpisodeID = e.Identifier()
	}

	if e.ArchiveFile == "" {
		archive := e.seriesSlug()
		if useSeasonFolders {
			archive = fmt.Sprintf("%s-%s", archive, e.seasonSlug())
		}
		e.ArchiveFile = StripDisallowedChars(archive + ".txt")
	}

	if e.PreferredDownloadPath == "" {
		path := "./" + e.SeriesTitle
		if useSeasonFolders {
			path = fmt.Sprintf("./%s/Season %d", e.SeriesTitle, e.SeasonNumber)
		}
		e.PreferredDownloadPath = StripDisallowedChars(path)
	}

	if e.BaseDirectory == "" {
		if abs, err := filepath.Abs(workingDir); err == nil {
			e.BaseDirectory = abs
		} else {
			e.BaseDirectory = workingDir
		}
	}
}

// DownloadDirectory is the absolute destination directory of the episode
func (e *Episode) DownloadDirectory() string {
	if filepath.IsAbs(e.PreferredDownloadPath) {
		return filepath.Clean(e.PreferredDownloadPath)
	}
	return filepath.Join(e.BaseDirectory, e.PreferredDownloadPath)
}

// ArchivePath is the absolute path of the download archive file. The
// archive always lives directly in the base directory.
func (e *Episode) ArchivePath() string {
	return filepath.Join(e.BaseDirectory, filepath.Base(e.ArchiveFile))
}

// IsContainedPath reports whether path is relative and stays below the
// directory it is joined to
func IsContainedPath(path string) bool {
	if path == "" {
		return true
	}
	if filepath.IsAbs(path) || filepath.VolumeName(path) != "" {
		return false
	}
	clean := filepath.Clean(path)
	return clean != ".." && !strings.HasPrefix(clean, ".."+string(filepath.Separator))
}

// IsWebURL reports whether s is an absolute http or https URL
func IsWebURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Label renders the episode for selection lists, marking queued episodes
func (e *Episode) Label() string {
	if e.Downloading {
		return "*" + e.Title
	}
	return e.Title
}

func (e *Episode) seriesSlug() string {
	if e.SeriesSlugTitle != "" {
		return e.SeriesSlugTitle
	}
	return Slugify(e.SeriesTitle)
}

func (e *Episode) seasonSlug() string {
	if e.SeasonSlugTitle != "" {
		return e.SeasonSlugTitle
	}
	if e.SeasonTitle != "" {
		return Slugify(e.SeasonTitle)
	}
	return fmt.Sprintf("season-%d", e.SeasonNumber)
}

// partialExtensions mark files yt-dlp is still writing
var partialExtensions = map[string]bool{
	".part": true, ".ytdl": true, ".temp": true,
}

// IsPartialDownload checks if a path is an unfinished yt-dlp download
func IsPartialDownload(path string) bool {
	return partialExtensions[strings.ToLower(filepath.Ext(path))]
}
