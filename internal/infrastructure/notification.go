package infrastructure

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/yourusername/fundl-go/internal/domain"
	"go.uber.org/zap"
)

// commandStarter runs a notification command
type commandStarter func(name string, args ...string) error

// NotificationService implements domain.Notifier with desktop notifications
type NotificationService struct {
	config *domain.NotificationConfig
	logger *zap.Logger
	exec   commandStarter
}

// NewNotificationService creates a new notification service
func NewNotificationService(config *domain.NotificationConfig, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		config: config,
		logger: logger,
		exec: func(name string, args ...string) error {
			return exec.Command(name, args...).Run()
		},
	}
}

// Send sends a notification
func (n *NotificationService) Send(title, message string) error {
	if !n.config.Enabled {
		n.logger.Debug("Notifications disabled, skipping",
			zap.String("title", title),
			zap.String("message", message))
		return nil
	}

	var err error
	switch n.config.Method {
	case "osascript":
		script := fmt.Sprintf(`display notification %s with title %s`, appleScriptString(message), appleScriptString(title))
		if n.config.Sound {
			script += ` sound name "Glass"`
		}
		err = n.exec("osascript", "-e", script)
	case "notify-send":
		err = n.exec("notify-send", "--app-name=fundl", title, message)
	default:
		n.logger.Warn("Unknown notification method", zap.String("method", n.config.Method))
		return nil
	}

	if err != nil {
		n.logger.Error("Failed to send notification",
			zap.String("method", n.config.Method),
			zap.Error(err))
		return err
	}

	n.logger.Debug("Notification sent",
		zap.String("title", title),
		zap.String("message", message))
	return nil
}

// NotifyDownloadStarted sends notification when a transfer starts
func (n *NotificationService) NotifyDownloadStarted(title string) {
	_ = n.Send("Download Started", truncateString(title, 60))
}

// NotifyDownloadCompleted sends notification when a transfer completes
func (n *NotificationService) NotifyDownloadCompleted(title string) {
	_ = n.Send("Download Completed", truncateString(title, 60))
}

// NotifyDownloadFailed sends notification when a transfer fails
func (n *NotificationService) NotifyDownloadFailed(title string, reason string) {
	_ = n.Send("Download Failed", fmt.Sprintf("%s: %s", truncateString(title, 40), truncateString(reason, 80)))
}

// NotifyQueueEmpty sends notification when the queue drains
func (n *NotificationService) NotifyQueueEmpty() {
	_ = n.Send("Queue Empty", "All downloads finished")
}

// appleScriptString quotes s as an AppleScript string literal
func appleScriptString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}

// truncateString truncates a string to at most maxLen runes
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
