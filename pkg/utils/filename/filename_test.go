package filename

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Live Stream 2024/08: Finale?", "Live-Stream-2024-08-Finale"},
		{"  plain  ", "plain"},
		{"", ""},
		{"---...---", ""},
		{`a<b>c:d"e/f\g|h?i*j`, "a-b-c-d-e-f-g-h-i-j"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "Sanitize(%q)", tt.in)
	}
}

func TestSanitizeTruncates(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := Sanitize(long)
	assert.Len(t, got, 120)
}

func TestExpand(t *testing.T) {
	got := Expand("{id}_thumb_{index}.jpg", Vars{ID: "abc", Index: "03"})
	assert.Equal(t, "abc_thumb_03.jpg", got)

	got = Expand("{fn}.{ext}", Vars{FN: "My-Stream", Ext: "mp4"})
	assert.Equal(t, "My-Stream.mp4", got)

	// unknown placeholders survive
	got = Expand("{id}-{nope}", Vars{ID: "x"})
	assert.Equal(t, "x-{nope}", got)
}
