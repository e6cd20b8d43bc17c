// Package filename builds safe on-disk names from templates and titles.
package filename

import (
	"regexp"
	"strings"
)

const maxNameLen = 120

// invalidChars matches characters not safe for filenames across major OSes.
var invalidChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f\s]`)

// dashRuns collapses runs of dashes/underscores left by replacement.
var dashRuns = regexp.MustCompile(`[-_]{2,}`)

// Sanitize converts an arbitrary title into a filename-safe slug containing
// only alphanumerics, dashes, underscores and dots. Leading/trailing dashes
// and dots are stripped and the result is capped at 120 bytes.
func Sanitize(name string) string {
	s := strings.TrimSpace(name)
	if s == "" {
		return ""
	}

	s = invalidChars.ReplaceAllString(s, "-")
	s = dashRuns.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-.")

	if len(s) > maxNameLen {
		s = strings.TrimRight(s[:maxNameLen], "-.")
	}
	return s
}
