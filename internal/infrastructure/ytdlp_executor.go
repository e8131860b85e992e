package infrastructure

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/yourusername/fundl-go/internal/domain"
	"github.com/yourusername/fundl-go/pkg/logger"
	"go.uber.org/zap"
)

const stderrTailLimit = 64 * 1024

// YTDLPExecutor implements domain.Downloader by running yt-dlp
type YTDLPExecutor struct {
	config      *domain.YTDLPConfig
	logsDir     string
	eventLogger *logger.MultiLogger // For structured events only
}

// NewYTDLPExecutor creates a new yt-dlp executor. Raw process output is
// appended to the per-day download log in logsDir when it is set.
func NewYTDLPExecutor(config *domain.YTDLPConfig, logsDir string, eventLogger *logger.MultiLogger) *YTDLPExecutor {
	return &YTDLPExecutor{
		config:      config,
		logsDir:     logsDir,
		eventLogger: eventLogger,
	}
}

// BuildArgs returns the yt-dlp arguments for an episode
func (e *YTDLPExecutor) BuildArgs(episode *domain.Episode) []string {
	// exec.Command passes args directly to the process, no shell quoting needed
	args := []string{
		"--newline",
		"-P", episode.DownloadDirectory(),
		"-o", episode.CanonicalFilename("") + ".%(ext)s",
		"--download-archive", episode.ArchivePath(),
	}

	if e.config.Username != "" {
		args = append(args, "-u", e.config.Username, "-p", e.config.Password)
	}
	if e.config.CookieFile != "" && fileExists(e.config.CookieFile) {
		args = append(args, "--cookies", e.config.CookieFile)
	}
	if e.config.Format != "" {
		args = append(args, "-f", e.config.Format)
	}
	if e.config.SubtitleLanguages != "" {
		args = append(args, "--write-subs", "--sub-langs", e.config.SubtitleLanguages)
		if e.config.EmbedSubtitles {
			args = append(args, "--embed-subs")
		}
	}
	if e.config.ExtraParams != "" {
		args = append(args, strings.Fields(e.config.ExtraParams)...)
	}

	// "--" keeps a locator starting with a dash from being read as an option
	return append(args, "--", episode.Locator)
}

// Download runs yt-dlp for one episode, reporting parsed progress lines
func (e *YTDLPExecutor) Download(ctx context.Context, episode *domain.Episode, onProgress domain.ProgressCallback) error {
	if onProgress == nil {
		onProgress = func(domain.Progress) {}
	}

	binary, err := exec.LookPath(e.config.Binary)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrBinaryNotFound, e.config.Binary)
	}

	downloadLog, err := e.openLogFile()
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer downloadLog.Close()

	args := e.BuildArgs(episode)
	e.writeLogHeader(downloadLog, episode, ShellEscapeCommand(e.config.Binary, maskPassword(args)...))

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr := &tailBuffer{limit: stderrTailLimit}
	cmd.Stderr = io.MultiWriter(downloadLog, stderr)

	if err := cmd.Start(); err != nil {
		e.writeLogFooter(downloadLog, false, fmt.Sprintf("failed to start: %v", err))
		return fmt.Errorf("failed to start %s: %w", e.config.Binary, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(downloadLog, line)
		if progress, ok := ParseProgressLine(line); ok {
			onProgress(progress)
		}
	}
	// Drain anything the scanner refused so the process never blocks on a full pipe
	_, _ = io.Copy(downloadLog, stdout)

	err = cmd.Wait()
	if err == nil {
		e.writeLogFooter(downloadLog, true, "Downloaded: "+episode.CanonicalFilename(""))
		return nil
	}

	if ctx.Err() != nil {
		e.writeLogFooter(downloadLog, false, "interrupted")
		return fmt.Errorf("%s interrupted: %w", e.config.Binary, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		e.writeLogFooter(downloadLog, false, fmt.Sprintf("exit code %d", exitErr.ExitCode()))
		e.eventLogger.LogAppError("yt-dlp failed",
			zap.String("episode_id", episode.ID),
			zap.Int("exit_code", exitErr.ExitCode()))
		return &domain.ProcessError{
			Binary:   e.config.Binary,
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
		}
	}

	e.writeLogFooter(downloadLog, false, err.Error())
	return fmt.Errorf("%s failed: %w", e.config.Binary, err)
}

// openLogFile opens the download log file for today. Without a logs
// directory output is discarded.
func (e *YTDLPExecutor) openLogFile() (io.WriteCloser, error) {
	if e.logsDir == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	if err := os.MkdirAll(e.logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	path := logger.CategoryLogPath(e.logsDir, logger.CategoryDownload, time.Now())
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// writeLogHeader writes the download start marker
func (e *YTDLPExecutor) writeLogHeader(w io.Writer, episode *domain.Episode, cmdLine string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(w, "\n=== [%s] Download: %s (%s) ===\n", timestamp, episode.Title, episode.ID)
	fmt.Fprintf(w, "$ %s\n", cmdLine)
}

// writeLogFooter writes the download end marker
func (e *YTDLPExecutor) writeLogFooter(w io.Writer, success bool, message string) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	fmt.Fprintf(w, "[%s] %s: %s\n", timestamp, status, message)
	fmt.Fprint(w, "=== END ===\n\n")
}

// maskPassword hides the value following -p so it never reaches the log
func maskPassword(args []string) []string {
	masked := make([]string, len(args))
	copy(masked, args)
	for i := 0; i < len(masked)-1; i++ {
		if masked[i] == "-p" || masked[i] == "--password" {
			masked[i+1] = "********"
		}
	}
	return masked
}

// tailBuffer keeps the last limit bytes written to it
type tailBuffer struct {
	buf   []byte
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return string(t.buf)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
