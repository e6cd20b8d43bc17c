// Package format renders progress figures for display.
package format

import "fmt"

// ETA converts remaining seconds to "MM:SS", or "HH:MM:SS" when an hour or
// more remains. Negative input is clamped to zero.
func ETA(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	s := int(seconds)
	h := s / 3600
	m := (s % 3600) / 60
	sec := s % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, sec)
	}
	return fmt.Sprintf("%02d:%02d", m, sec)
}

// Speed renders an encoder speed multiplier, e.g. "1.98x".
func Speed(multiplier float64) string {
	return fmt.Sprintf("%.2fx", multiplier)
}

// FPS renders a frame rate with one decimal, e.g. "48.2".
func FPS(fps float64) string {
	return fmt.Sprintf("%.1f", fps)
}
