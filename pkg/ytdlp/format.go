package ytdlp

import (
	"strconv"
	"strings"
)

// ResolutionBest is the default quality label when none is requested.
const ResolutionBest = "Best"

var resolutionHeights = map[string]int{
	"1080p": 1080,
	"720p":  720,
	"480p":  480,
	"360p":  360,
}

// FormatFor maps a human resolution label to a yt-dlp format-selection
// expression. Labels match case-insensitively; unrecognized labels fall back
// to best quality, and every chain ends in an unconstrained "best" so a
// download never fails on format selection alone.
func FormatFor(resolution string) string {
	label := strings.ToLower(strings.TrimSpace(resolution))
	if h, ok := resolutionHeights[label]; ok {
		n := strconv.Itoa(h)
		return "bestvideo[height<=" + n + "]+bestaudio/best[height<=" + n + "]/best"
	}
	return "bestvideo+bestaudio/best"
}
