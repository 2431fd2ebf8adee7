package rewriter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foliomedia/src/config"
)

const base = "https://rs.supabase.co/storage/v1/object/public/"

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("supabase:\n  url: https://rs.supabase.co\n  anon_key: k\n"))
	require.NoError(t, err)
	return cfg
}

func TestLazify(t *testing.T) {
	doc := `<html><head><title>x</title></head><body>` +
		`<img src="images/a.jpg" alt="A">` +
		`<img loading="eager" class="hero" src="b.png">` +
		`<img src="c.jpg" />` +
		`</body></html>`

	out, changes, err := Lazify([]byte(doc), false)
	require.NoError(t, err)
	assert.Equal(t, 3, changes)

	want := `<html><head><title>x</title></head><body>` +
		`<img src="images/a.jpg" alt="A" loading="lazy" class="optimized-image">` +
		`<img loading="eager" class="hero optimized-image" src="b.png">` +
		`<img src="c.jpg" loading="lazy" class="optimized-image" />` +
		`</body></html>`
	assert.Equal(t, want, string(out))

	again, changes, err := Lazify(out, false)
	require.NoError(t, err)
	assert.Equal(t, 0, changes)
	assert.Equal(t, string(out), string(again))
}

func TestLazifyInline(t *testing.T) {
	doc := "<html><head><title>x</title></head>\n<body><p>hi</p></body></html>"

	out, _, err := Lazify([]byte(doc), true)
	require.NoError(t, err)

	s := string(out)
	assert.Equal(t, 1, strings.Count(s, `<style id="optimized-image-styles">`))
	assert.Equal(t, 1, strings.Count(s, `<script id="optimized-image-loader">`))
	assert.Less(t, strings.Index(s, "optimized-image-styles"), strings.Index(s, "</head>"))
	assert.Less(t, strings.Index(s, "optimized-image-loader"), strings.Index(s, "</body>"))

	again, changes, err := Lazify(out, true)
	require.NoError(t, err)
	assert.Equal(t, 0, changes)
	assert.Equal(t, s, string(again))
}

func TestLazifyPreservesUntouchedBytes(t *testing.T) {
	doc := "<!DOCTYPE html>\n<!-- hero section -->\n<DIV   class=x data-a='1'>\n" +
		"<script>var s = \"<img src='x.jpg'>\";</script>\n" +
		"  <img src=\"images/a.jpg\">\n" +
		"<p>Tom &amp; Jerry</p></DIV>\n"

	out, changes, err := Lazify([]byte(doc), false)
	require.NoError(t, err)
	assert.Equal(t, 1, changes)

	want := strings.Replace(doc, `<img src="images/a.jpg">`,
		`<img src="images/a.jpg" loading="lazy" class="optimized-image">`, 1)
	assert.Equal(t, want, string(out))
}

func TestRelinkImages(t *testing.T) {
	cfg := testConfig(t)
	r := NewRelinker(cfg, NewRouteResolver(cfg.Routes))

	doc := `<img src="images/fun1.png" alt="Fun">`
	out, changes, err := r.Relink([]byte(doc), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 1, changes)

	want := `<picture><source srcset="` + base + `portfolio-images/images/fun1.webp" type="image/webp">` +
		`<img src="` + base + `portfolio-images/images/fun1.jpg" alt="Fun" loading="lazy" class="optimized-image"></picture>`
	assert.Equal(t, want, string(out))

	again, changes, err := r.Relink(out, "index.html")
	require.NoError(t, err)
	assert.Equal(t, 0, changes)
	assert.Equal(t, want, string(again))
}

func TestRelinkRelativeReference(t *testing.T) {
	cfg := testConfig(t)
	r := NewRelinker(cfg, NewRouteResolver(cfg.Routes))

	doc := `<img src="../project-images/project2/brand.jpg" alt="Brand">`
	out, _, err := r.Relink([]byte(doc), "projects/project2.html")
	require.NoError(t, err)
	assert.Contains(t, string(out), base+"portfolio-images/project-images/project2/brand.webp")
	assert.Contains(t, string(out), base+"portfolio-images/project-images/project2/brand.jpg")
}

func TestRelinkLeavesOtherImagesAlone(t *testing.T) {
	cfg := testConfig(t)
	r := NewRelinker(cfg, NewRouteResolver(cfg.Routes))

	doc := `<img src="https://rs.supabase.co/storage/v1/object/public/portfolio-images/images/a.jpg">` +
		`<img src="images/already.webp">` +
		`<img src="assets/logo.png">` +
		`<img alt="no src">`

	out, changes, err := r.Relink([]byte(doc), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 0, changes)
	assert.Equal(t, doc, string(out))
}

func TestRelinkVideos(t *testing.T) {
	cfg := testConfig(t)
	r := NewRelinker(cfg, NewRouteResolver(cfg.Routes))

	doc := `<video autoplay muted loop playsinline src="videos/header-video.mp4" poster="images/poster.jpg"></video>` +
		`<video controls><source src="videos/video-of-use.MOV" type="video/quicktime"></video>`

	out, changes, err := r.Relink([]byte(doc), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 2, changes)

	want := `<video autoplay muted loop playsinline src="` + base + `portfolio-videos/videos/header-video.mp4" poster="` + base + `portfolio-images/images/poster.jpg"></video>` +
		`<video controls><source src="` + base + `portfolio-videos/videos/video-of-use.MOV" type="video/quicktime"></video>`
	assert.Equal(t, want, string(out))
}

func TestRelinkInsidePicture(t *testing.T) {
	cfg := testConfig(t)
	r := NewRelinker(cfg, NewRouteResolver(cfg.Routes))

	doc := `<picture><source srcset="images/a.webp 1x,  images/a-2x.webp 2x" type="image/webp"><img src="images/a.jpg" alt=""></picture>`

	out, changes, err := r.Relink([]byte(doc), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 2, changes)

	want := `<picture><source srcset="` + base + `portfolio-images/images/a.webp 1x, ` + base + `portfolio-images/images/a-2x.webp 2x" type="image/webp">` +
		`<img src="` + base + `portfolio-images/images/a.jpg" alt=""></picture>`
	assert.Equal(t, want, string(out))
}

func TestUploadedResolver(t *testing.T) {
	cfg := testConfig(t)
	resolver := NewUploadedResolver(NewRouteResolver(cfg.Routes))
	resolver.Add("portfolio-images", "images/fun1.webp")
	resolver.Add("portfolio-images", "images/fun1.jpg")
	assert.Equal(t, 1, resolver.Len())

	bucket, key, ok := resolver.Resolve("images/fun1.png")
	require.True(t, ok)
	assert.Equal(t, "portfolio-images", bucket)
	assert.Equal(t, "images/fun1.png", key)

	_, _, ok = resolver.Resolve("images/fun2.png")
	assert.False(t, ok)

	r := NewRelinker(cfg, resolver)
	out, changes, err := r.Relink([]byte(`<img src="images/fun2.png"><img src="images/fun1.png">`), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 1, changes)
	assert.True(t, strings.HasPrefix(string(out), `<img src="images/fun2.png"><picture>`))
}

func TestUploadedResolverVideosNeedExactKey(t *testing.T) {
	cfg := testConfig(t)
	resolver := NewUploadedResolver(NewRouteResolver(cfg.Routes))
	resolver.Add("portfolio-videos", "videos/reel.mp4")
	resolver.Add("portfolio-images", "images/p.webp")
	resolver.Add("portfolio-images", "images/p.jpg")

	_, _, ok := resolver.ResolveExact("videos/reel.mov")
	assert.False(t, ok)
	_, key, ok := resolver.ResolveExact("videos/reel.mp4")
	require.True(t, ok)
	assert.Equal(t, "videos/reel.mp4", key)

	r := NewRelinker(cfg, resolver)
	doc := `<video src="videos/reel.mov" poster="images/p.png"></video>` +
		`<video><source src="videos/reel.mov" type="video/quicktime"></video>` +
		`<picture><img src="images/p.png"></picture>`
	out, changes, err := r.Relink([]byte(doc), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 0, changes)
	assert.Equal(t, doc, string(out))

	doc = `<video src="videos/reel.mp4" poster="images/p.jpg"></video><img src="images/p.png">`
	out, changes, err = r.Relink([]byte(doc), "index.html")
	require.NoError(t, err)
	assert.Equal(t, 2, changes)
	assert.Contains(t, string(out), `src="`+base+`portfolio-videos/videos/reel.mp4"`)
	assert.Contains(t, string(out), `poster="`+base+`portfolio-images/images/p.jpg"`)
	assert.Contains(t, string(out), `<source srcset="`+base+`portfolio-images/images/p.webp"`)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		dir, ref, expected string
	}{
		{"projects", "../images/a.jpg", "images/a.jpg"},
		{".", "./images/a.jpg?v=1", "images/a.jpg"},
		{"projects", "/videos/x.mp4", "videos/x.mp4"},
		{".", "images/my%20photo.jpg", "images/my photo.jpg"},
		{"", "images/a.jpg#top", "images/a.jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			assert.Equal(t, tt.expected, Normalize(tt.dir, tt.ref))
		})
	}
}

func TestMinifier(t *testing.T) {
	assert.Nil(t, NewMinifier(config.MinifyConfig{}))

	var nilMinifier *Minifier
	out, err := nilMinifier.Minify("a.css", []byte(".a { color: red; }"))
	require.NoError(t, err)
	assert.Equal(t, ".a { color: red; }", string(out))

	m := NewMinifier(config.MinifyConfig{CSS: true})
	out, err = m.Minify("a.css", []byte(".a { color: red; }"))
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red}", string(out))

	// kinds that are not enabled pass through
	out, err = m.Minify("a.js", []byte("var  a = 1;"))
	require.NoError(t, err)
	assert.Equal(t, "var  a = 1;", string(out))
}
