package infrastructure

import (
	"regexp"
	"strconv"

	"github.com/yourusername/fundl-go/internal/domain"
)

// Matches yt-dlp --newline progress output, for example
//
//	[download]  45.3% of ~ 120.50MiB at    2.10MiB/s ETA 00:51 (frag 12/40)
//	[download] 100% of   50.00MiB in 00:00:20 at 2.49MiB/s
var progressPattern = regexp.MustCompile(
	`^\[download\]\s+([\d.]+)%\s+of\s+~?\s*(\S+)` +
		`(?:\s+in\s+\S+)?` +
		`(?:\s+at\s+(Unknown B/s|Unknown speed|\S+))?` +
		`(?:\s+ETA\s+(Unknown|\S+))?`)

// ParseProgressLine extracts transfer progress from a yt-dlp output line
func ParseProgressLine(line string) (domain.Progress, bool) {
	matches := progressPattern.FindStringSubmatch(line)
	if matches == nil {
		return domain.Progress{}, false
	}

	percent, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return domain.Progress{}, false
	}

	return domain.Progress{
		Percent:      percent,
		TotalSize:    matches[2],
		CurrentSpeed: matches[3],
		ETA:          matches[4],
	}, true
}
