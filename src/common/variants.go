package common

// Responsive image variants
//
// Optimized images are produced outside this tool in two formats per source:
//   - a modern format (WebP) served through <source type="image/webp">
//   - a fallback (JPEG) used by the <img> inside the <picture>
//
// Both live next to each other in the bucket and differ only by extension.

import (
	"path"
	"strings"
)

// Variants holds the URLs of the modern and fallback encodings of one image
type Variants struct {
	Modern   string
	Fallback string
}

// MimeForExt returns the type attribute for a <source> of the given extension
func MimeForExt(ext string) string {
	return ContentType("x" + ext)
}

// ImageVariants swaps the extension of url for modernExt and fallbackExt.
// Any query string or fragment is kept on both results.
func ImageVariants(url, modernExt, fallbackExt string) Variants {
	return Variants{
		Modern:   SwapExt(url, modernExt),
		Fallback: SwapExt(url, fallbackExt),
	}
}

// SwapExt replaces the extension of the path part of url
func SwapExt(url, ext string) string {
	base := StripQuery(url)
	suffix := url[len(base):]

	old := path.Ext(base)
	if old == "" {
		return base + ext + suffix
	}
	return strings.TrimSuffix(base, old) + ext + suffix
}
