package rewriter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"foliomedia/src/config"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	return string(data)
}

func setupSite(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "index.html", `<body><img src="images/fun1.png" alt="Fun"></body>`)
	writeFile(t, root, "projects/project1.html", `<body><img src="../project-images/project1/a.jpg"></body>`)
	writeFile(t, root, "css/style.css", "body { margin: 0; }\n")
	writeFile(t, root, "js/script.js", "console.log('hi');\n")

	cfg := testConfig(t)
	cfg.Site.Root = root
	return cfg
}

func TestLazifyAll(t *testing.T) {
	cfg := setupSite(t)
	site := NewSite(cfg, zap.NewNop().Sugar(), false)

	sum := site.LazifyAll()
	assert.Equal(t, Summary{Updated: 2, Missing: 4}, sum)
	assert.Contains(t, readFile(t, cfg.Site.Root, "index.html"), `loading="lazy" class="optimized-image"`)

	sum = site.LazifyAll()
	assert.Equal(t, Summary{Unchanged: 2, Missing: 4}, sum)
}

func TestRelinkAll(t *testing.T) {
	cfg := setupSite(t)
	site := NewSite(cfg, zap.NewNop().Sugar(), false)

	sum := site.RelinkAll(NewRouteResolver(cfg.Routes))
	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, 0, sum.Failed)

	project := readFile(t, cfg.Site.Root, "projects/project1.html")
	assert.Contains(t, project, base+"portfolio-images/project-images/project1/a.webp")
	assert.Contains(t, project, "<picture>")
}

func TestDryRunWritesNothing(t *testing.T) {
	cfg := setupSite(t)
	before := readFile(t, cfg.Site.Root, "index.html")
	site := NewSite(cfg, zap.NewNop().Sugar(), true)

	sum := site.LazifyAll()
	assert.Equal(t, 2, sum.Updated)
	assert.Equal(t, before, readFile(t, cfg.Site.Root, "index.html"))

	n, err := site.AppendAssets()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "body { margin: 0; }\n", readFile(t, cfg.Site.Root, "css/style.css"))
}

func TestAppendAssets(t *testing.T) {
	cfg := setupSite(t)
	site := NewSite(cfg, zap.NewNop().Sugar(), false)

	n, err := site.AppendAssets()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	css := readFile(t, cfg.Site.Root, "css/style.css")
	assert.True(t, strings.HasPrefix(css, "body { margin: 0; }\n"))
	assert.Contains(t, css, cssMarker)
	assert.Contains(t, readFile(t, cfg.Site.Root, "js/script.js"), jsMarker)

	n, err = site.AppendAssets()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, strings.Count(readFile(t, cfg.Site.Root, "css/style.css"), cssMarker))
}

func TestAppendAssetsMissingFiles(t *testing.T) {
	cfg := testConfig(t)
	cfg.Site.Root = t.TempDir()
	site := NewSite(cfg, zap.NewNop().Sugar(), false)

	n, err := site.AppendAssets()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLazifyAllReportsUnplacedInlineSnippets(t *testing.T) {
	cfg := setupSite(t)
	cfg.Rewrite.InlineLazy = true
	writeFile(t, cfg.Site.Root, "about.html", "<html><head><title>About</title></head><body><p>hi</p></body></html>")

	core, logs := observer.New(zapcore.DebugLevel)
	site := NewSite(cfg, zap.New(core).Sugar(), false)
	site.LazifyAll()

	// index.html has </body> but no </head>
	assert.Equal(t, 1, logs.FilterMessage("No </head> in index.html, inline lazy-loading snippet not added").Len())
	assert.Equal(t, 0, logs.FilterMessage("No </body> in index.html, inline lazy-loading snippet not added").Len())
	assert.Equal(t, 0, logs.FilterMessageSnippet("in about.html").Len())

	assert.Contains(t, readFile(t, cfg.Site.Root, "index.html"), `<script id="optimized-image-loader">`)
}
