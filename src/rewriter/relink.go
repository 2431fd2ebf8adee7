package rewriter

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/net/html"

	"foliomedia/src/common"
	"foliomedia/src/config"
)

// Relinker points local image and video references at their uploaded copies
type Relinker struct {
	resolver    Resolver
	publicURL   func(bucket, key string) string
	modernExt   string
	fallbackExt string
}

// NewRelinker creates a relinker that builds public URLs from cfg
func NewRelinker(cfg *config.Config, resolver Resolver) *Relinker {
	return &Relinker{
		resolver:    resolver,
		publicURL:   cfg.PublicURL,
		modernExt:   cfg.Rewrite.ModernExt,
		fallbackExt: cfg.Rewrite.FallbackExt,
	}
}

// Relink rewrites one document. docPath is the document's path relative to the
// site root and is used to resolve relative references such as ../images/a.jpg.
//
// A standalone jpg/jpeg/png <img> becomes a <picture> with a modern <source> and
// a lazy fallback <img>. Images already inside a <picture> only get new URLs.
// <video> and <source> elements get their mp4/mov src replaced.
func (r *Relinker) Relink(doc []byte, docPath string) ([]byte, int, error) {
	dir := path.Dir(filepath.ToSlash(docPath))

	return walk(doc, func(t *tag) (string, bool) {
		if t.tok.Type == html.EndTagToken {
			return "", false
		}
		switch t.tok.Data {
		case "img":
			return r.img(t, dir)
		case "video":
			return r.video(t, dir)
		case "source":
			return r.source(t, dir)
		}
		return "", false
	})
}

// lookup resolves ref to a public URL. Unless swapExt is set the URL keeps the
// reference's extension, so the object must have been stored under that key.
func (r *Relinker) lookup(dir, ref string, swapExt bool) (string, bool) {
	if strings.TrimSpace(ref) == "" || common.IsRemote(ref) {
		return "", false
	}
	ref = Normalize(dir, ref)

	resolve := r.resolver.Resolve
	if exact, ok := r.resolver.(ExactResolver); ok && !swapExt {
		resolve = exact.ResolveExact
	}
	bucket, key, ok := resolve(ref)
	if !ok {
		return "", false
	}
	return r.publicURL(bucket, key), true
}

func (r *Relinker) img(t *tag, dir string) (string, bool) {
	tok := t.tok
	src, _ := getAttr(&tok, "src")

	if t.inPicture {
		changed := false
		if url, ok := r.lookup(dir, src, false); ok {
			setAttr(&tok, "src", url)
			changed = true
		}
		if r.srcset(&tok, dir, "") {
			changed = true
		}
		if !changed {
			return "", false
		}
		return render(tok), true
	}

	if common.KindOf(src) != common.KindImage {
		return "", false
	}
	url, ok := r.lookup(dir, src, true)
	if !ok {
		return "", false
	}

	v := common.ImageVariants(url, r.modernExt, r.fallbackExt)
	setAttr(&tok, "src", v.Fallback)
	setAttr(&tok, "loading", "lazy")
	addClass(&tok, OptimizedClass)
	r.srcset(&tok, dir, r.fallbackExt)
	tok.Type = html.StartTagToken

	return fmt.Sprintf(`<picture><source srcset="%s" type="%s">%s</picture>`,
		html.EscapeString(v.Modern),
		common.MimeForExt(r.modernExt),
		render(tok),
	), true
}

func (r *Relinker) video(t *tag, dir string) (string, bool) {
	tok := t.tok
	changed := false

	if src, ok := getAttr(&tok, "src"); ok && common.KindOf(src) == common.KindVideo {
		if url, ok := r.lookup(dir, src, false); ok {
			setAttr(&tok, "src", url)
			changed = true
		}
	}
	if poster, ok := getAttr(&tok, "poster"); ok && common.KindOf(poster) == common.KindImage {
		if url, ok := r.lookup(dir, poster, false); ok {
			setAttr(&tok, "poster", url)
			changed = true
		}
	}

	if !changed {
		return "", false
	}
	return render(tok), true
}

func (r *Relinker) source(t *tag, dir string) (string, bool) {
	tok := t.tok

	if t.inPicture {
		if !r.srcset(&tok, dir, "") {
			return "", false
		}
		return render(tok), true
	}

	src, ok := getAttr(&tok, "src")
	if !ok || common.KindOf(src) != common.KindVideo {
		return "", false
	}
	url, ok := r.lookup(dir, src, false)
	if !ok {
		return "", false
	}
	setAttr(&tok, "src", url)
	return render(tok), true
}

// srcset rewrites each candidate URL of a srcset attribute. When ext is set
// the rewritten URL gets that extension. It reports whether anything changed.
func (r *Relinker) srcset(tok *html.Token, dir, ext string) bool {
	val, ok := getAttr(tok, "srcset")
	if !ok {
		return false
	}

	changed := false
	candidates := strings.Split(val, ",")
	for i, c := range candidates {
		candidates[i] = strings.TrimSpace(c)
		fields := strings.Fields(c)
		if len(fields) == 0 {
			continue
		}
		url, ok := r.lookup(dir, fields[0], ext != "")
		if !ok {
			continue
		}
		if ext != "" {
			url = common.SwapExt(url, ext)
		}
		fields[0] = url
		candidates[i] = strings.Join(fields, " ")
		changed = true
	}

	if changed {
		setAttr(tok, "srcset", strings.Join(candidates, ", "))
	}
	return changed
}
