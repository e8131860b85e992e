package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDirectoryCreation = errors.New("failed to create download directory")
	ErrDirectoryNotFound = errors.New("directory does not exist")
	ErrNotADirectory     = errors.New("path is not a directory")
	ErrEpisodeNotQueued  = errors.New("episode is not queued")
	ErrBinaryNotFound    = errors.New("downloader binary not found")
	ErrUnknownProvider   = errors.New("unknown catalog provider")
	ErrShowNotFound      = errors.New("show not found")
	ErrSeasonNotFound    = errors.New("season not found")
	ErrQueueClosed       = errors.New("queue is closed")
)

// ProcessError is returned when an external downloader process exits with
// a non-zero status
type ProcessError struct {
	Binary   string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s exited with code %d\n\nStderr:\n%s", e.Binary, e.ExitCode, e.Stderr)
}

// SummarizeError turns a transfer error into a single status line. Python
// tracebacks are reduced to their third-from-last line, anything else has
// its newlines flattened.
func SummarizeError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	msg := err.Error()
	if strings.Contains(msg, "Traceback") {
		lines := strings.Split(msg, "\n")
		if len(lines) >= 3 {
			return lines[len(lines)-3]
		}
		return lines[0]
	}
	return strings.ReplaceAll(msg, "\n", "   ")
}
