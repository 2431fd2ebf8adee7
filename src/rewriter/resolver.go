package rewriter

import (
	"net/url"
	"path"
	"strings"

	"foliomedia/src/common"
	"foliomedia/src/config"
)

// Resolver maps a site-relative asset path to the object that replaces it
type Resolver interface {
	Resolve(ref string) (bucket, key string, ok bool)
}

// RouteResolver resolves references by the local prefix of each route
type RouteResolver struct {
	routes []config.Route
}

// NewRouteResolver builds a resolver over the configured routes
func NewRouteResolver(routes []config.Route) *RouteResolver {
	return &RouteResolver{routes: routes}
}

// Resolve maps images/a.jpg to (portfolio-images, images/a.jpg) for a route
// whose local prefix is "images". Sub-directories are kept in the key.
func (r *RouteResolver) Resolve(ref string) (string, string, bool) {
	for _, route := range r.routes {
		local := route.LocalPrefix
		if local == "" {
			local = route.Prefix
		}
		if local == "" {
			continue
		}

		rest, ok := strings.CutPrefix(ref, local+"/")
		if !ok || rest == "" {
			continue
		}
		return route.Bucket, common.ObjectKey(route.Prefix, rest), true
	}
	return "", "", false
}

// ExactResolver is implemented by resolvers that can tell an object stored
// under the referenced key apart from one that only shares its stem.
type ExactResolver interface {
	ResolveExact(ref string) (bucket, key string, ok bool)
}

// UploadedResolver only resolves references whose object was stored in this run.
// Resolve matches by stem, so images/a.png resolves when images/a.webp was
// uploaded. ResolveExact requires the referenced key itself.
type UploadedResolver struct {
	next  Resolver
	stems map[string]bool
	keys  map[string]bool
}

// NewUploadedResolver wraps next
func NewUploadedResolver(next Resolver) *UploadedResolver {
	return &UploadedResolver{
		next:  next,
		stems: make(map[string]bool),
		keys:  make(map[string]bool),
	}
}

// Add marks bucket/key as stored
func (r *UploadedResolver) Add(bucket, key string) {
	r.stems[bucket+"/"+common.Stem(key)] = true
	r.keys[bucket+"/"+key] = true
}

// Len returns how many distinct stems are known
func (r *UploadedResolver) Len() int {
	return len(r.stems)
}

func (r *UploadedResolver) Resolve(ref string) (string, string, bool) {
	bucket, key, ok := r.next.Resolve(ref)
	if !ok || !r.stems[bucket+"/"+common.Stem(key)] {
		return "", "", false
	}
	return bucket, key, true
}

func (r *UploadedResolver) ResolveExact(ref string) (string, string, bool) {
	bucket, key, ok := r.next.Resolve(ref)
	if !ok || !r.keys[bucket+"/"+key] {
		return "", "", false
	}
	return bucket, key, true
}

// Normalize turns a reference found in a document at dir into a path relative
// to the site root. Root-relative references drop their leading slash.
func Normalize(dir, ref string) string {
	ref = common.StripQuery(strings.TrimSpace(ref))
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}

	if strings.HasPrefix(ref, "/") {
		return strings.TrimPrefix(path.Clean(ref), "/")
	}
	if dir == "" {
		dir = "."
	}
	return path.Clean(path.Join(dir, ref))
}
