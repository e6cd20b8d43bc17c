package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ProbeDuration asks ffprobe for the container duration in seconds.
// It requests a single bare value so no JSON parsing is needed:
//
//	ffprobe -v error -show_entries format=duration \
//	        -of default=noprint_wrappers=1:nokey=1 <input>
func (c *Client) ProbeDuration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}

	out, err := c.probe(ctx, args...)
	if err != nil {
		return 0, err
	}

	dur, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: parse duration %q: %w", out, err)
	}
	return dur, nil
}

func (c *Client) probe(ctx context.Context, args ...string) (string, error) {
	name := c.ffprobe()
	if c.probeFn != nil {
		return c.probeFn(ctx, name, args...)
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
