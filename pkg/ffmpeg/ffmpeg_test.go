package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient() *Client {
	return &Client{
		VideoCodec:       "libx264",
		AudioCodec:       "aac",
		AudioBitrate:     "192k",
		Preset:           "fast",
		ThumbnailWidth:   1280,
		ThumbnailQuality: 4,
	}
}

func TestTranscodeBuildsArgs(t *testing.T) {
	c := testClient()

	var gotArgs []string
	c.runFn = func(ctx context.Context, onLine func(string), name string, args ...string) error {
		gotArgs = args
		return nil
	}

	err := c.Transcode(context.Background(), "/in/a.mkv", "/out/a.mp4", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-hide_banner", "-y",
		"-i", "/in/a.mkv",
		"-c:v", "libx264",
		"-preset", "fast",
		"-c:a", "aac",
		"-b:a", "192k",
		"-progress", "pipe:1",
		"-stats_period", "1",
		"/out/a.mp4",
	}, gotArgs)
}

func TestExtractFrameBuildsArgs(t *testing.T) {
	c := testClient()

	var gotArgs []string
	c.runFn = func(ctx context.Context, onLine func(string), name string, args ...string) error {
		gotArgs = args
		return nil
	}

	err := c.ExtractFrame(context.Background(), "/in/a.mp4", "/thumbs/a_01.jpg", 90*time.Second)
	require.NoError(t, err)

	joined := strings.Join(gotArgs, " ")
	assert.Contains(t, joined, "-ss 90.000")
	assert.Contains(t, joined, "-frames:v 1")
	assert.Contains(t, joined, "-vf scale=1280:-2")
	assert.Contains(t, joined, "-q:v 4")
	assert.Equal(t, "/thumbs/a_01.jpg", gotArgs[len(gotArgs)-1])
}

func TestProbeDurationParsesValue(t *testing.T) {
	c := testClient()
	c.probeFn = func(ctx context.Context, name string, args ...string) (string, error) {
		return "3671.254000\n", nil
	}

	dur, err := c.ProbeDuration(context.Background(), "/in/a.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 3671.254, dur, 0.001)
}

func TestProbeDurationRejectsGarbage(t *testing.T) {
	c := testClient()
	c.probeFn = func(ctx context.Context, name string, args ...string) (string, error) {
		return "N/A", nil
	}

	_, err := c.ProbeDuration(context.Background(), "/in/a.mp4")
	assert.Error(t, err)
}

func TestParseProgressLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want Update
	}{
		{
			name: "out_time_ms is microseconds",
			line: "out_time_ms=40000000",
			want: Update{ElapsedSeconds: 40, HasElapsed: true},
		},
		{
			name: "out_time_us alias",
			line: "out_time_us=1500000",
			want: Update{ElapsedSeconds: 1.5, HasElapsed: true},
		},
		{
			name: "speed with multiplier suffix",
			line: "speed=1.98x",
			want: Update{Speed: 1.98, HasSpeed: true},
		},
		{
			name: "fps",
			line: "fps=48.2",
			want: Update{FPS: 48.2, HasFPS: true},
		},
		{
			name: "composite stats line",
			line: "frame=1210 fps=48.2 q=28.0 size=10240KiB out_time_ms=25000000 speed=2.01x",
			want: Update{ElapsedSeconds: 25, HasElapsed: true, Speed: 2.01, HasSpeed: true, FPS: 48.2, HasFPS: true},
		},
		{
			name: "malformed tokens are dropped",
			line: "out_time_ms=N/A speed=?.x fps=",
			want: Update{},
		},
		{
			name: "unrelated line",
			line: "Press [q] to stop, [?] for help",
			want: Update{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseProgressLine(tt.line)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExitCodeHelper(t *testing.T) {
	assert.Equal(t, 137, ExitCode(&Error{ExitCode: 137, Err: errors.New("killed")}))
	assert.Equal(t, -1, ExitCode(errors.New("plain")))
	assert.Equal(t, -1, ExitCode(nil))
}

func TestLineSplitter(t *testing.T) {
	var lines []string
	w := &lineSplitter{onLine: func(l string) { lines = append(lines, l) }}

	_, err := w.Write([]byte("out_time_ms=100\nspeed=1.0x\rfps=30"))
	require.NoError(t, err)
	_, err = w.Write([]byte(".5\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"out_time_ms=100", "speed=1.0x", "fps=30.5"}, lines)
}
