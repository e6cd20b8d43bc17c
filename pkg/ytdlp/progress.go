package ytdlp

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

// Progress holds the tokens extracted from one yt-dlp progress line. Only
// fields whose Has flag is set carry a value; absent or malformed tokens must
// leave previously known display values untouched.
type Progress struct {
	Percent    float64
	HasPercent bool
	Speed      string
	ETA        string
}

// downloadLine matches yt-dlp's bracketed progress format, e.g.
//
//	[download]  42.5% of ~1.21GiB at    5.32MiB/s ETA 03:12
//
// The percentage is required; size, speed and ETA tokens are optional.
var downloadLine = regexp.MustCompile(
	`^\[download\]\s+(\d+(?:\.\d+)?)%(?:\s+of\s+~?\S+)?(?:\s+at\s+(\S+))?(?:\s+ETA\s+(\S+))?`)

// ParseProgressLine extracts percentage, speed and ETA from a yt-dlp
// progress line. ok is false for lines that are not progress lines.
func ParseProgressLine(line string) (p Progress, ok bool) {
	m := downloadLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return Progress{}, false
	}

	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return Progress{}, false
	}
	p.Percent = pct
	p.HasPercent = true

	if m[2] != "" && !strings.EqualFold(m[2], "unknown") {
		p.Speed = m[2]
	}
	if m[3] != "" && !strings.EqualFold(m[3], "unknown") {
		p.ETA = m[3]
	}
	return p, true
}

// ParseTitleLine opportunistically pulls the title field out of the metadata
// JSON line --print-json emits at download start.
func ParseTitleLine(line string) (title string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "{") {
		return "", false
	}

	var meta struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal([]byte(line), &meta); err != nil {
		return "", false
	}
	if meta.Title == "" {
		return "", false
	}
	return meta.Title, true
}
