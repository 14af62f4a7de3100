package process_test

import (
	"strings"
	"testing"

	"github.com/devraulu/sitescout/pkg/model"
	"github.com/devraulu/sitescout/pkg/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html><head>
<title>Plain Title</title>
<meta property="og:title" content="OG Title">
<meta name="description" content="Meta description">
<meta property="og:image" content="/cover.jpg">
<link rel="stylesheet" href="/style.css">
<script src="/app.js"></script>
</head><body>
<h1>Hello</h1>
<p>Some trance text.</p>
<script>var hidden = "not text";</script>
<a href="/page#one">one</a>
<a href="/page#two">two</a>
<a href="https://other.example.org/x">external</a>
<a href="mailto:me@example.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="tel:123">call</a>
<a href="#top">top</a>
<iframe src="https://www.youtube.com/embed/dQw4w9WgXcQ"></iframe>
<img src="/img/photo.png">
<audio src="/sound/track.mp3"></audio>
<video><source src="/clip.webm"></video>
<img src="/img/photo.png">
</body></html>`

func TestExtract(t *testing.T) {
	t.Parallel()

	res := process.Extract([]byte(samplePage), "https://example.com/dir/index.html")
	require.NotNil(t, res)

	assert.Equal(t, "OG Title", res.Title)
	assert.Equal(t, "Meta description", res.Description)
	assert.Equal(t, "https://example.com/cover.jpg", res.Image)

	assert.ElementsMatch(t, []string{
		"https://example.com/style.css",
		"https://example.com/app.js",
		"https://example.com/page",
		"https://other.example.org/x",
		"https://www.youtube.com/embed/dQw4w9WgXcQ",
	}, res.Links)

	assert.ElementsMatch(t, []model.MediaRef{
		{URL: "https://example.com/img/photo.png", Type: model.MediaImage},
		{URL: "https://example.com/sound/track.mp3", Type: model.MediaAudio},
		{URL: "https://example.com/clip.webm", Type: model.MediaVideo},
	}, res.Media)

	assert.Equal(t, []string{"https://www.youtube.com/embed/dQw4w9WgXcQ"}, res.Iframes)
	assert.Contains(t, res.Text, "Some trance text.")
	assert.NotContains(t, res.Text, "not text")
	assert.NotContains(t, res.Text, "Plain Title")
}

func TestExtractBaseHref(t *testing.T) {
	t.Parallel()

	page := `<html><head><base href="https://cdn.example.com/root/"></head>
<body><a href="child">c</a></body></html>`
	res := process.Extract([]byte(page), "https://example.com/")
	assert.Equal(t, []string{"https://cdn.example.com/root/child"}, res.Links)
}

func TestExtractFallsBackToTitleAndMeta(t *testing.T) {
	t.Parallel()

	page := `<html><head><title> Only Title </title>
<meta name="robots" content="noindex, nofollow"></head><body></body></html>`
	res := process.Extract([]byte(page), "https://example.com/")
	assert.Equal(t, "Only Title", res.Title)
	assert.True(t, res.NoFollow)
	assert.True(t, res.NoIndex)
}

func TestExtractMalformedNeverFails(t *testing.T) {
	t.Parallel()

	res := process.Extract([]byte(`<html><body><a href="/ok">ok<div><p>unclosed`), "https://example.com/")
	require.NotNil(t, res)
	assert.Equal(t, []string{"https://example.com/ok"}, res.Links)

	res = process.Extract([]byte(strings.Repeat("<", 100)), "://bad")
	require.NotNil(t, res)
	assert.Empty(t, res.Links)
}

func TestMediaTypeOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.MediaAudio, process.MediaTypeOf("https://x.com/a.FLAC"))
	assert.Equal(t, model.MediaVideo, process.MediaTypeOf("https://x.com/a.mkv?x=1"))
	assert.Equal(t, model.MediaImage, process.MediaTypeOf("https://x.com/a.webp"))
	assert.Equal(t, model.MediaOther, process.MediaTypeOf("https://x.com/a"))
}

func TestExtractText(t *testing.T) {
	t.Parallel()

	text, err := process.ExtractText(strings.NewReader("<p>a\n\n b</p><style>x{}</style>"))
	require.NoError(t, err)
	assert.Equal(t, "a b", text)
}
