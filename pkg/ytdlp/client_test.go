package ytdlp

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatFor(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"1080p", "bestvideo[height<=1080]+bestaudio/best[height<=1080]/best"},
		{"720p", "bestvideo[height<=720]+bestaudio/best[height<=720]/best"},
		{"480p", "bestvideo[height<=480]+bestaudio/best[height<=480]/best"},
		{"360p", "bestvideo[height<=360]+bestaudio/best[height<=360]/best"},
		{"720P", "bestvideo[height<=720]+bestaudio/best[height<=720]/best"},
		{" 720p ", "bestvideo[height<=720]+bestaudio/best[height<=720]/best"},
		{"Best", "bestvideo+bestaudio/best"},
		{"", "bestvideo+bestaudio/best"},
		{"potato", "bestvideo+bestaudio/best"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatFor(tt.label), "FormatFor(%q)", tt.label)
	}

	// unrecognized labels behave exactly like Best
	assert.Equal(t, FormatFor(ResolutionBest), FormatFor("4320p"))
}

func TestDownloadBuildsArgs(t *testing.T) {
	c := New("yt-dlp")

	var gotArgs []string
	c.execFn = func(ctx context.Context, onLine func(string), name string, args ...string) error {
		gotArgs = args
		return nil
	}

	err := c.Download(context.Background(), DownloadRequest{
		URL:            "https://example.com/live",
		Resolution:     "720p",
		OutputTemplate: "/downloads/job-1.%(ext)s",
		MergeFormat:    "mp4",
	}, nil)
	require.NoError(t, err)

	joined := strings.Join(gotArgs, " ")
	assert.Contains(t, joined, "--no-playlist")
	assert.Contains(t, joined, "-f bestvideo[height<=720]+bestaudio/best[height<=720]/best")
	assert.Contains(t, joined, "--merge-output-format mp4")
	assert.Contains(t, joined, "-o /downloads/job-1.%(ext)s")
	assert.Contains(t, joined, "--print-json")
	assert.Contains(t, joined, "--newline")
	assert.Contains(t, joined, "--retries 10")
	assert.Equal(t, "https://example.com/live", gotArgs[len(gotArgs)-1])
}

func TestDownloadRequiresURLAndTemplate(t *testing.T) {
	c := New("")
	err := c.Download(context.Background(), DownloadRequest{OutputTemplate: "x"}, nil)
	assert.Error(t, err)

	err = c.Download(context.Background(), DownloadRequest{URL: "https://example.com"}, nil)
	assert.Error(t, err)
}

func TestIsLiveParsesMetadata(t *testing.T) {
	c := New("yt-dlp")
	c.execFn = func(ctx context.Context, onLine func(string), name string, args ...string) error {
		onLine(`{"id":"abc","title":"stream","is_live":true}`)
		return nil
	}

	live, err := c.IsLive(context.Background(), "https://example.com/chan")
	require.NoError(t, err)
	assert.True(t, live)

	c.execFn = func(ctx context.Context, onLine func(string), name string, args ...string) error {
		onLine(`{"id":"abc","title":"vod","is_live":false}`)
		return nil
	}
	live, err = c.IsLive(context.Background(), "https://example.com/chan")
	require.NoError(t, err)
	assert.False(t, live)
}

func TestExitCodeHelper(t *testing.T) {
	err := error(&ExecError{Cmd: "yt-dlp", ExitCode: 137})
	assert.Equal(t, 137, ExitCode(err))

	wrapped := errors.Join(errors.New("outer"), &ExecError{ExitCode: 143})
	assert.Equal(t, 143, ExitCode(wrapped))

	assert.Equal(t, -1, ExitCode(errors.New("plain")))
	assert.Equal(t, -1, ExitCode(nil))
}

func TestLineWriterSplitsCarriageReturns(t *testing.T) {
	var lines []string
	w := &lineWriter{onLine: func(l string) { lines = append(lines, l) }}

	_, err := w.Write([]byte("[download]  10.0%\r[download]  20.0%\r\n[download]  30"))
	require.NoError(t, err)
	_, err = w.Write([]byte(".0%\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"[download]  10.0%",
		"[download]  20.0%",
		"[download]  30.0%",
	}, lines)
}
