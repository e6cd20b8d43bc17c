// Package ytdlp wraps the external yt-dlp executable used to fetch remote
// video streams.
package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
)

// lineWriter splits subprocess output into lines and hands each one to a
// callback. yt-dlp rewrites its progress line with carriage returns, so both
// \r and \n are treated as line boundaries.
type lineWriter struct {
	onLine  func(line string)
	buffer  *bytes.Buffer
	pending []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
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

// ExecError reports a failed yt-dlp invocation. ExitCode follows the shell
// convention for signal deaths: 128+signal, so SIGKILL is 137 and SIGTERM 143.
type ExecError struct {
	Cmd      string
	Args     []string
	ExitCode int
	Stderr   string
	Cause    error
}

func (e *ExecError) Error() string {
	cmdline := strings.TrimSpace(e.Cmd + " " + strings.Join(e.Args, " "))
	if e.ExitCode != 0 {
		return fmt.Sprintf("ytdlp: command failed (exit %d): %s", e.ExitCode, cmdline)
	}
	return fmt.Sprintf("ytdlp: command failed: %s", cmdline)
}

func (e *ExecError) Unwrap() error { return e.Cause }

// ExitCode extracts the exit code from an error returned by this package,
// or -1 if none is present.
func ExitCode(err error) int {
	var ee *ExecError
	if errors.As(err, &ee) {
		return ee.ExitCode
	}
	return -1
}

// Client invokes the yt-dlp executable.
type Client struct {
	// Path to the yt-dlp executable. Defaults to "yt-dlp" (PATH lookup).
	Path string

	// ExtraArgs are always appended before per-call args.
	ExtraArgs []string

	execFn func(ctx context.Context, onLine func(string), name string, args ...string) error
}

func New(path string) *Client {
	return &Client{Path: path}
}

func (c *Client) pathOrDefault() string {
	if strings.TrimSpace(c.Path) == "" {
		return "yt-dlp"
	}
	return c.Path
}

// exec runs yt-dlp, streaming every stdout and stderr line to onLine. The
// process runs in its own process group and the whole group is killed on ctx
// cancellation; exec does not return until the process has actually exited,
// so callers never leave an orphaned download behind.
func (c *Client) exec(ctx context.Context, onLine func(string), args ...string) error {
	name := c.pathOrDefault()

	fullArgs := make([]string, 0, len(c.ExtraArgs)+len(args))
	fullArgs = append(fullArgs, c.ExtraArgs...)
	fullArgs = append(fullArgs, args...)

	if c.execFn != nil {
		return c.execFn(ctx, onLine, name, fullArgs...)
	}

	slog.Debug("ytdlp: executing", "cmd", name, "args", fullArgs)
	cmd := exec.CommandContext(ctx, name, fullArgs...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Negative pid signals the whole process group so fragment
		// subprocesses die with the parent.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	var errBuf bytes.Buffer
	cmd.Stdout = &lineWriter{onLine: onLine}
	cmd.Stderr = &lineWriter{onLine: onLine, buffer: &errBuf}

	if err := cmd.Start(); err != nil {
		return &ExecError{Cmd: name, Args: fullArgs, Cause: err}
	}

	if err := cmd.Wait(); err != nil {
		return &ExecError{
			Cmd:      name,
			Args:     fullArgs,
			ExitCode: exitCode(cmd, err),
			Stderr:   strings.TrimSpace(errBuf.String()),
			Cause:    err,
		}
	}
	return nil
}

// exitCode maps a Wait error to the shell exit-code convention, including
// 128+signal for signal deaths, which Go's ExitCode() reports as -1.
func exitCode(cmd *exec.Cmd, err error) int {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return 0
	}
	if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return ee.ExitCode()
}
