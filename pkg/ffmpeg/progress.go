package ffmpeg

import (
	"strconv"
	"strings"
)

// Update carries the tokens recognized in one line of ffmpeg progress
// output. Only fields whose Has flag is set were present and well-formed;
// callers must leave previously known values untouched otherwise.
type Update struct {
	// ElapsedSeconds is derived from out_time_ms, which despite its name
	// carries microseconds.
	ElapsedSeconds float64
	HasElapsed     bool

	// Speed is the encoder speed multiplier from "speed=1.98x".
	Speed    float64
	HasSpeed bool

	// FPS from "fps=48.2".
	FPS    float64
	HasFPS bool
}

// Empty reports whether the line carried no recognized token.
func (u Update) Empty() bool {
	return !u.HasElapsed && !u.HasSpeed && !u.HasFPS
}

// ParseProgressLine scans one line of -progress output (or a composite stats
// line) for out_time_ms, speed and fps tokens. Malformed values are dropped
// rather than reported as zero.
func ParseProgressLine(line string) Update {
	var u Update

	for _, field := range strings.Fields(line) {
		idx := strings.IndexByte(field, '=')
		if idx <= 0 || idx == len(field)-1 {
			continue
		}
		key, value := field[:idx], field[idx+1:]

		switch key {
		case "out_time_ms", "out_time_us":
			// Both keys are microseconds; out_time_ms is a long-standing
			// ffmpeg misnomer.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			u.ElapsedSeconds = float64(us) / 1e6
			u.HasElapsed = true
		case "speed":
			v := strings.TrimSuffix(value, "x")
			speed, err := strconv.ParseFloat(v, 64)
			if err != nil || speed < 0 {
				continue
			}
			u.Speed = speed
			u.HasSpeed = true
		case "fps":
			fps, err := strconv.ParseFloat(value, 64)
			if err != nil || fps < 0 {
				continue
			}
			u.FPS = fps
			u.HasFPS = true
		}
	}
	return u
}
