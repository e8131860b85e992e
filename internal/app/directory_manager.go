package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/fundl-go/internal/domain"
)

// DirectoryManager is the only component that changes the process working
// directory. Episodes enqueued after a change resolve their download path
// against the new directory.
type DirectoryManager struct {
	logger    *zap.Logger
	mu        sync.Mutex
	listeners []domain.StatusListener
}

// NewDirectoryManager creates a new directory manager
func NewDirectoryManager(logger *zap.Logger) *DirectoryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryManager{logger: logger}
}

// AddListener registers a listener for directory changes
func (m *DirectoryManager) AddListener(listener domain.StatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, listener)
}

// CurrentDirectory returns the live working directory of the process
func (m *DirectoryManager) CurrentDirectory() string {
	cwd, err := os.Getwd()
	if err != nil {
		m.logger.Warn("Failed to read working directory", zap.Error(err))
		return ""
	}
	return cwd
}

// ChangeDirectory switches the working directory to path, which may be
// relative to the current one or start with ~. Paths that do not exist or
// are not directories are rejected without changing anything.
func (m *DirectoryManager) ChangeDirectory(path string) (string, error) {
	target := expandPath(path)

	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", domain.ErrDirectoryNotFound, path)
		}
		return "", fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", domain.ErrNotADirectory, path)
	}

	m.mu.Lock()
	if err := os.Chdir(target); err != nil {
		m.mu.Unlock()
		return "", fmt.Errorf("failed to change directory: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = target
	}
	listeners := append([]domain.StatusListener(nil), m.listeners...)
	m.mu.Unlock()

	m.logger.Info("Changed working directory", zap.String("path", cwd))
	for _, l := range listeners {
		l.OnDirectoryChange(cwd)
	}
	return cwd, nil
}
