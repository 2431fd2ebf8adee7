package rewriter

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"foliomedia/src/config"
)

// TransformFunc rewrites one document and reports how many tags it changed
type TransformFunc func(doc []byte, rel string) ([]byte, int, error)

// Summary counts what happened to the site's HTML files
type Summary struct {
	Updated   int
	Unchanged int
	Missing   int
	Failed    int
}

func (s Summary) String() string {
	return fmt.Sprintf("%d updated, %d unchanged, %d missing, %d failed",
		s.Updated, s.Unchanged, s.Missing, s.Failed)
}

// Site rewrites the HTML files and shared assets of the portfolio site
type Site struct {
	cfg      *config.Config
	log      *zap.SugaredLogger
	minifier *Minifier
	dryRun   bool
}

// NewSite creates a site rewriter. In dry-run mode nothing is written.
func NewSite(cfg *config.Config, log *zap.SugaredLogger, dryRun bool) *Site {
	return &Site{
		cfg:      cfg,
		log:      log,
		minifier: NewMinifier(cfg.Rewrite.Minify),
		dryRun:   dryRun,
	}
}

// LazifyAll adds lazy-loading markup to every configured HTML file
func (s *Site) LazifyAll() Summary {
	inline := s.cfg.Rewrite.InlineLazy
	return s.each(func(doc []byte, rel string) ([]byte, int, error) {
		out, changes, err := Lazify(doc, inline)
		if err == nil && inline {
			for _, end := range unplacedInline(out) {
				s.log.Debugf("No </%s> in %s, inline lazy-loading snippet not added", end, rel)
			}
		}
		return out, changes, err
	})
}

// RelinkAll points every configured HTML file at uploaded assets
func (s *Site) RelinkAll(resolver Resolver) Summary {
	relinker := NewRelinker(s.cfg, resolver)
	return s.each(relinker.Relink)
}

func (s *Site) each(fn TransformFunc) Summary {
	var sum Summary
	for _, rel := range s.cfg.Site.HTMLFiles {
		changed, err := s.RewriteFile(rel, fn)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			s.log.Debugf("Skipping missing file: %s", rel)
			sum.Missing++
		case err != nil:
			s.log.Errorf("❌ Error updating %s: %v", rel, err)
			sum.Failed++
		case changed:
			sum.Updated++
		default:
			sum.Unchanged++
		}
	}
	return sum
}

// RewriteFile applies fn to the file at rel (relative to the site root) and
// writes it back only if something changed.
func (s *Site) RewriteFile(rel string, fn TransformFunc) (bool, error) {
	path := s.cfg.SitePath(rel)

	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read file: %w", err)
	}

	out, changes, err := fn(data, filepath.ToSlash(rel))
	if err != nil {
		return false, fmt.Errorf("failed to rewrite: %w", err)
	}
	if changes == 0 {
		return false, nil
	}

	out, err = s.minifier.Minify(path, out)
	if err != nil {
		return false, fmt.Errorf("failed to minify: %w", err)
	}
	if bytes.Equal(out, data) {
		return false, nil
	}

	if s.dryRun {
		s.log.Infof("📝 Would update: %s (%d tags)", rel, changes)
		return true, nil
	}

	if err := os.WriteFile(path, out, info.Mode().Perm()); err != nil {
		return false, fmt.Errorf("failed to write file: %w", err)
	}

	s.log.Infof("✅ Updated: %s (%d tags)", rel, changes)
	return true, nil
}

// AppendAssets adds the lazy-loading CSS to the stylesheet and the observer
// script to the site script. Files that are missing or already extended are
// left alone. It returns how many files were extended.
func (s *Site) AppendAssets() (int, error) {
	appended := 0

	for _, a := range []struct {
		rel     string
		marker  string
		snippet string
		what    string
	}{
		{s.cfg.Site.Stylesheet, cssMarker, LazyCSS, "CSS"},
		{s.cfg.Site.Script, jsMarker, LazyJS, "JavaScript"},
	} {
		ok, err := s.appendOnce(a.rel, a.marker, a.snippet)
		if err != nil {
			return appended, fmt.Errorf("failed to extend %s: %w", a.rel, err)
		}
		if ok {
			appended++
			s.log.Infof("✅ Added lazy loading %s to %s", a.what, filepath.Base(a.rel))
		}
	}
	return appended, nil
}

func (s *Site) appendOnce(rel, marker, snippet string) (bool, error) {
	if rel == "" {
		return false, nil
	}
	path := s.cfg.SitePath(rel)

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debugf("Skipping missing file: %s", rel)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	if bytes.Contains(data, []byte(marker)) {
		return false, nil
	}

	out := append(data, []byte(snippet)...)
	out, err = s.minifier.Minify(path, out)
	if err != nil {
		return false, err
	}

	if s.dryRun {
		s.log.Infof("📝 Would extend: %s", rel)
		return true, nil
	}
	return true, os.WriteFile(path, out, info.Mode().Perm())
}
