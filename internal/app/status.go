package app

import (
	"fmt"
	"strconv"

	"github.com/yourusername/fundl-go/internal/domain"
)

// IdleStatus is the only status line shown while the queue is empty
const IdleStatus = "No active downloads"

// BuildStatus renders the status lines for the queued episodes: a header
// followed by one line per episode in queue order.
func BuildStatus(episodes []*domain.Episode) []string {
	if len(episodes) == 0 {
		return []string{IdleStatus}
	}

	lines := make([]string, 0, len(episodes)+1)
	lines = append(lines, fmt.Sprintf("Downloading %d episode(s)", len(episodes)))
	for _, ep := range episodes {
		lines = append(lines, statusLine(ep))
	}
	return lines
}

func statusLine(ep *domain.Episode) string {
	switch {
	case ep.Progress != nil:
		line := fmt.Sprintf("%s: %s%% of %s", ep.Title, formatPercent(ep.Progress.Percent), ep.Progress.TotalSize)
		if ep.Progress.CurrentSpeed != "" {
			line += "  " + ep.Progress.CurrentSpeed
		}
		return line
	case ep.Error != "":
		return fmt.Sprintf("%s: %s", ep.Title, ep.Error)
	default:
		return fmt.Sprintf("%s: pending", ep.Title)
	}
}

func formatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}
