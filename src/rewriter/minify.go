package rewriter

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"

	"foliomedia/src/config"
)

const (
	mediaTypeHtml = "text/html"
	mediaTypeCss  = "text/css"
	mediaTypeJs   = "application/javascript"
)

var jsTypes = regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$")

// Minifier shrinks rewritten files of the kinds enabled in the config
type Minifier struct {
	m     *minify.M
	types map[string]string // extension → media type
}

// NewMinifier returns nil when no kind is enabled
func NewMinifier(cfg config.MinifyConfig) *Minifier {
	types := make(map[string]string)
	m := minify.New()

	if cfg.HTML {
		m.Add(mediaTypeHtml, &html.Minifier{
			KeepDocumentTags: true,
			KeepEndTags:      true,
			KeepQuotes:       true,
		})
		types[".html"] = mediaTypeHtml
		types[".htm"] = mediaTypeHtml
		// inline <style> and <script> content is minified too
		m.AddFunc(mediaTypeCss, css.Minify)
		m.AddFuncRegexp(jsTypes, js.Minify)
	}
	if cfg.CSS {
		m.AddFunc(mediaTypeCss, css.Minify)
		types[".css"] = mediaTypeCss
	}
	if cfg.JS {
		m.AddFuncRegexp(jsTypes, js.Minify)
		types[".js"] = mediaTypeJs
	}

	if len(types) == 0 {
		return nil
	}
	return &Minifier{m: m, types: types}
}

// Minify returns data minified according to the extension of path.
// Files of kinds that are not enabled are returned unchanged.
func (mf *Minifier) Minify(path string, data []byte) ([]byte, error) {
	if mf == nil {
		return data, nil
	}
	mediaType, ok := mf.types[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return data, nil
	}

	out := bytes.NewBuffer(nil)
	if err := mf.m.Minify(mediaType, out, bytes.NewReader(data)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
