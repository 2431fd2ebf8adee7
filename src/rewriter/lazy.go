package rewriter

import (
	"bytes"

	"golang.org/x/net/html"
)

// Lazify adds native lazy loading and the optimized-image class to every <img>.
// With inline set, the fade-in style goes before </head> and the observer
// script before </body>, each at most once per document.
func Lazify(doc []byte, inline bool) ([]byte, int, error) {
	hasStyle := bytes.Contains(doc, []byte(inlineStyleID))
	hasScript := bytes.Contains(doc, []byte(inlineScriptID))

	return walk(doc, func(t *tag) (string, bool) {
		if t.tok.Type == html.EndTagToken {
			switch {
			case t.tok.Data == "head" && inline && !hasStyle:
				hasStyle = true
				return inlineStyle() + t.raw, true
			case t.tok.Data == "body" && inline && !hasScript:
				hasScript = true
				return inlineScript() + t.raw, true
			}
			return "", false
		}

		if t.tok.Data != "img" {
			return "", false
		}
		return lazyImg(t.tok)
	})
}

func lazyImg(tok html.Token) (string, bool) {
	changed := false
	if _, ok := getAttr(&tok, "loading"); !ok {
		setAttr(&tok, "loading", "lazy")
		changed = true
	}
	if addClass(&tok, OptimizedClass) {
		changed = true
	}
	if !changed {
		return "", false
	}
	return render(tok), true
}

// unplacedInline names the end tags that were missing from doc, so the
// matching inline snippet could not be placed.
func unplacedInline(doc []byte) []string {
	var missing []string
	if !bytes.Contains(doc, []byte(inlineStyleID)) {
		missing = append(missing, "head")
	}
	if !bytes.Contains(doc, []byte(inlineScriptID)) {
		missing = append(missing, "body")
	}
	return missing
}
