// Package ffmpeg wraps the external ffmpeg/ffprobe executables used for
// transcoding, duration probing and thumbnail extraction.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Client invokes ffmpeg and ffprobe with a fixed encoding profile.
type Client struct {
	// FFmpegPath and FFprobePath default to PATH lookups when empty.
	FFmpegPath  string
	FFprobePath string

	// Encoding profile applied by Transcode.
	VideoCodec   string // e.g. libx264
	AudioCodec   string // e.g. aac
	AudioBitrate string // e.g. 192k
	Preset       string // e.g. fast

	// Thumbnail extraction parameters.
	ThumbnailWidth   int // scaled output width, aspect preserved
	ThumbnailQuality int // -q:v, lower is better

	runFn   func(ctx context.Context, onLine func(string), name string, args ...string) error
	probeFn func(ctx context.Context, name string, args ...string) (string, error)
}

// Error reports a failed ffmpeg invocation. ExitCode uses the shell
// convention of 128+signal for signal deaths (SIGKILL=137, SIGTERM=143).
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	// Keep only the tail of stderr, the interesting part is at the end.
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	tail := strings.Join(lines, "\n")
	if tail != "" {
		return fmt.Sprintf("ffmpeg: %v: %s", e.Err, tail)
	}
	return fmt.Sprintf("ffmpeg: %v", e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ExitCode extracts the subprocess exit code from an error returned by this
// package, or -1 if none is present.
func ExitCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.ExitCode
	}
	return -1
}

func (c *Client) ffmpeg() string {
	if strings.TrimSpace(c.FFmpegPath) == "" {
		return "ffmpeg"
	}
	return c.FFmpegPath
}

func (c *Client) ffprobe() string {
	if strings.TrimSpace(c.FFprobePath) == "" {
		return "ffprobe"
	}
	return c.FFprobePath
}

// Transcode re-encodes input into output using the client's encoding profile
// and a machine-readable progress stream on stdout. Every stdout and stderr
// line is handed to onLine; depending on the ffmpeg build, progress
// information may appear on either stream, so both must be parsed alike.
func (c *Client) Transcode(ctx context.Context, input, output string, onLine func(line string)) error {
	args := []string{
		"-hide_banner",
		"-y",
		"-i", input,
		"-c:v", c.VideoCodec,
	}
	if c.Preset != "" {
		args = append(args, "-preset", c.Preset)
	}
	args = append(args,
		"-c:a", c.AudioCodec,
		"-b:a", c.AudioBitrate,
		"-progress", "pipe:1",
		"-stats_period", "1",
		output,
	)
	return c.run(ctx, onLine, args...)
}

// ExtractFrame writes a single frame at offset as an image scaled to the
// configured thumbnail width, preserving aspect ratio.
func (c *Client) ExtractFrame(ctx context.Context, input, output string, offset time.Duration) error {
	width := c.ThumbnailWidth
	if width <= 0 {
		width = 1280
	}
	quality := c.ThumbnailQuality
	if quality <= 0 {
		quality = 4
	}

	args := []string{
		"-hide_banner",
		"-y",
		"-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", width),
		"-q:v", strconv.Itoa(quality),
		output,
	}
	return c.run(ctx, nil, args...)
}

// run executes ffmpeg in its own process group; on ctx cancellation the whole
// group is killed and run still waits for the process to exit before
// returning, so callers never unwind past a live encoder.
func (c *Client) run(ctx context.Context, onLine func(string), args ...string) error {
	name := c.ffmpeg()
	if c.runFn != nil {
		return c.runFn(ctx, onLine, name, args...)
	}

	slog.Debug("ffmpeg: executing", "cmd", name, "args", args)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var errBuf bytes.Buffer
	cmd.Stdout = &lineSplitter{onLine: onLine}
	cmd.Stderr = &lineSplitter{onLine: onLine, buffer: &errBuf}

	if err := cmd.Start(); err != nil {
		return &Error{Args: args, Err: err}
	}

	if err := cmd.Wait(); err != nil {
		return &Error{
			Args:     args,
			ExitCode: waitExitCode(err),
			Stderr:   errBuf.String(),
			Err:      err,
		}
	}
	return nil
}

func waitExitCode(err error) int {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 0
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ee.ExitCode()
}

// lineSplitter feeds subprocess output to a callback line by line. ffmpeg
// stats rewrite the console line with carriage returns, so \r counts as a
// boundary too.
type lineSplitter struct {
	onLine  func(string)
	buffer  *bytes.Buffer
	pending []byte
}

func (w *lineSplitter) Write(p []byte) (int, error) {
	if w.buffer != nil {
		w.buffer.Write(p)
	}
	w.pending = append(w.pending, p...)

	for {
		idx := bytes.IndexAny(w.pending, "\r\n")
		if idx < 0 {
			break
		}
		line := string(w.pending[:idx])

		consume := 1
		if w.pending[idx] == '\r' && idx+1 < len(w.pending) && w.pending[idx+1] == '\n' {
			consume = 2
		}
		w.pending = w.pending[idx+consume:]

		if w.onLine != nil {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				w.onLine(trimmed)
			}
		}
	}
	return len(p), nil
}
