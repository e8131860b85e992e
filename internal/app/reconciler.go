package app

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/domain"
)

// FilenameReconciler renames files that were downloaded before the
// canonical "<S01E02> <Title>.<ext>" naming was in place
type FilenameReconciler struct {
	fs     afero.Fs
	logger *zap.Logger
}

// NewFilenameReconciler creates a reconciler working on fs
func NewFilenameReconciler(fs afero.Fs, logger *zap.Logger) *FilenameReconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FilenameReconciler{fs: fs, logger: logger}
}

// Reconcile renames the files of episodes that share one download
// directory, taken from the first episode. It returns the number of files
// renamed.
func (r *FilenameReconciler) Reconcile(episodes []*domain.Episode) (int, error) {
	if len(episodes) == 0 {
		return 0, nil
	}
	return r.ReconcileDirectory(episodes[0].DownloadDirectory(), episodes)
}

// ReconcileDirectory renames files in dir that belong to one of episodes,
// matched by the episode identifier or by the bare title
func (r *FilenameReconciler) ReconcileDirectory(dir string, episodes []*domain.Episode) (int, error) {
	entries, err := afero.ReadDir(r.fs, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	matchers := make([]episodeMatcher, 0, len(episodes))
	for _, ep := range episodes {
		matchers = append(matchers, newEpisodeMatcher(ep))
	}

	renamed := 0
	for _, entry := range entries {
		if entry.IsDir() || domain.IsPartialDownload(entry.Name()) {
			continue
		}

		name := entry.Name()
		ext := filepath.Ext(name)
		for _, m := range matchers {
			if !m.matches(name) {
				continue
			}

			target := m.episode.CanonicalFilename(strings.TrimPrefix(ext, "."))
			if target == name {
				break
			}

			dst := filepath.Join(dir, target)
			if exists, _ := afero.Exists(r.fs, dst); exists {
				r.logger.Warn("Skipping rename, destination exists",
					zap.String("file", name),
					zap.String("target", target))
				break
			}

			if err := r.fs.Rename(filepath.Join(dir, name), dst); err != nil {
				return renamed, fmt.Errorf("failed to rename %s: %w", name, err)
			}
			r.logger.Info("Renamed file",
				zap.String("from", name),
				zap.String("to", target))
			renamed++
			break
		}
	}

	return renamed, nil
}

type episodeMatcher struct {
	episode *domain.Episode
	title   string
	token   *regexp.Regexp
}

func newEpisodeMatcher(ep *domain.Episode) episodeMatcher {
	m := episodeMatcher{
		episode: ep,
		title:   strings.ToLower(domain.StripDisallowedChars(strings.ReplaceAll(ep.Title, "/", "-"))),
	}
	if id := ep.Identifier(); id != "" {
		m.token = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(id) + `\b`)
	}
	return m
}

func (m episodeMatcher) matches(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if m.title != "" && strings.ToLower(base) == m.title {
		return true
	}
	return m.token != nil && m.token.MatchString(base)
}
