package embed_test

import (
	"strings"
	"testing"

	"github.com/devraulu/sitescout/pkg/embed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want embed.Platform
		ok   bool
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", embed.YouTube, true},
		{"https://youtu.be/dQw4w9WgXcQ", embed.YouTube, true},
		{"https://vimeo.com/123456", embed.Vimeo, true},
		{"https://www.tiktok.com/@user/video/123", embed.TikTok, true},
		{"https://x.com/user/status/42", embed.Twitter, true},
		{"https://soundcloud.com/artist/track", embed.SoundCloud, true},
		{"https://old.reddit.com/r/x", embed.Reddit, true},
		{"https://bambicloud.com/file/1", embed.BambiCloud, true},
		{"https://notyoutube.com/watch", "", false},
		{"https://example.com", "", false},
		{"not a url", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			got, ok := embed.Detect(tt.url)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEmbedYouTube(t *testing.T) {
	t.Parallel()

	const u = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	platform, ok := embed.Detect(u)
	require.True(t, ok)

	markup, ok := embed.Embed(u, platform, 0, 0)
	require.True(t, ok)
	assert.Equal(t,
		`<iframe width="560" height="315" src="https://www.youtube.com/embed/dQw4w9WgXcQ" frameborder="0" allowfullscreen></iframe>`,
		markup)
}

func TestEmbedOtherPlatforms(t *testing.T) {
	t.Parallel()

	markup, ok := embed.Embed("https://vimeo.com/76979871", embed.Vimeo, 640, 360)
	require.True(t, ok)
	assert.Contains(t, markup, `src="https://player.vimeo.com/video/76979871"`)
	assert.Contains(t, markup, `width="640" height="360"`)

	markup, ok = embed.Embed("https://twitter.com/someone/status/1234", embed.Twitter, 0, 0)
	require.True(t, ok)
	assert.Contains(t, markup, "Tweet.html?id=1234")

	markup, ok = embed.Embed("https://soundcloud.com/artist/track-name", embed.SoundCloud, 0, 0)
	require.True(t, ok)
	assert.Contains(t, markup, "url=https%3A%2F%2Fsoundcloud.com%2Fartist%2Ftrack-name")
}

func TestEmbedUnsupported(t *testing.T) {
	t.Parallel()

	_, ok := embed.Embed("https://www.patreon.com/creator", embed.Patreon, 0, 0)
	assert.False(t, ok, "detection-only platforms have no template")

	_, ok = embed.Embed("https://www.youtube.com/channel/abc", embed.YouTube, 0, 0)
	assert.False(t, ok, "no video id")
}

func TestResponsive(t *testing.T) {
	t.Parallel()

	markup, ok := embed.Embed("https://youtu.be/dQw4w9WgXcQ", embed.YouTube, 0, 0)
	require.True(t, ok)

	wrapped := embed.Responsive(markup)
	assert.True(t, strings.HasPrefix(wrapped, `<div style="position: relative; padding-bottom: 56.25%;`))
	assert.Contains(t, wrapped, `<iframe width="100%" height="100%"`)
	assert.NotContains(t, wrapped, `width="560"`)
	assert.True(t, strings.HasSuffix(wrapped, "</iframe></div></div>"))
}
