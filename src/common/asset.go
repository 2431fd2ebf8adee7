package common

import (
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Kind classifies an asset by what the HTML rewriter does with it
type Kind int

const (
	KindOther Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "other"
	}
}

var contentTypes = map[string]string{
	".webp": "image/webp",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".avif": "image/avif",
	".svg":  "image/svg+xml",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
}

// ContentType returns the content type sent with an upload, based on extension
func ContentType(p string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(p))]; ok {
		return ct
	}
	return "application/octet-stream"
}

// KindOf reports whether a reference points at a rewritable image or video.
// Only jpg/jpeg/png images get a <picture> wrapper; webp is already the modern format.
func KindOf(ref string) Kind {
	switch strings.ToLower(path.Ext(StripQuery(ref))) {
	case ".jpg", ".jpeg", ".png":
		return KindImage
	case ".mp4", ".mov":
		return KindVideo
	default:
		return KindOther
	}
}

// IsRemote reports whether a reference is already absolute and must be left alone
func IsRemote(ref string) bool {
	r := strings.ToLower(strings.TrimSpace(ref))
	return strings.HasPrefix(r, "http://") ||
		strings.HasPrefix(r, "https://") ||
		strings.HasPrefix(r, "//") ||
		strings.HasPrefix(r, "data:")
}

// StripQuery removes any query string or fragment from a reference
func StripQuery(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		return ref[:i]
	}
	return ref
}

// ObjectKey builds a bucket key from a prefix and a path relative to the route source.
// Keys always use forward slashes and NFC so macOS file names match what HTML references.
func ObjectKey(prefix, rel string) string {
	rel = filepath.ToSlash(rel)
	rel = strings.TrimLeft(rel, "/")
	key := rel
	if p := strings.Trim(prefix, "/"); p != "" {
		key = p + "/" + rel
	}
	return norm.NFC.String(key)
}

// Stem returns a key without its extension
func Stem(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}
