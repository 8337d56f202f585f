// Package cdn derives and submits CloudFront cache invalidations for synced keys.
package cdn

import (
	"path"
	"sort"
	"strings"
)

// InvalidationPaths maps changed object keys to the CDN paths that must be
// purged. Only HTML documents are considered: keys ending in .html, or with
// stripHTML, keys without an extension. Callers that know which keys came
// from .html files should use DocumentPaths instead, since a stripped key
// such as release-1.2 still looks like it has an extension.
func InvalidationPaths(keys []string, prefix, previewPrefix string, stripHTML bool) []string {
	var docs []string
	for _, key := range keys {
		if isDocument(key, stripHTML) {
			docs = append(docs, key)
		}
	}
	return DocumentPaths(docs, prefix, previewPrefix, stripHTML)
}

// DocumentPaths returns the CDN paths to purge for keys that hold HTML
// documents.
//
// Each document is invalidated at its path relative to prefix (the origin
// path of the distribution serving it). Keys under previewPrefix are also
// invalidated with only previewPrefix removed, because the viewer-request
// function rewrites preview URIs and the edge may cache either form. An index
// document also invalidates its directory, so index.html at the top of the
// site purges "/".
//
// The result is sorted and free of duplicates.
func DocumentPaths(docs []string, prefix, previewPrefix string, stripHTML bool) []string {
	prefixPath := absPrefix(prefix)
	previewPath := absPrefix(previewPrefix)

	set := make(map[string]struct{})
	add := func(p string) {
		set[p] = struct{}{}
		if dir, ok := indexDir(p, stripHTML); ok {
			set[dir] = struct{}{}
		}
	}

	for _, key := range docs {
		abs := "/" + strings.TrimPrefix(key, "/")

		add(trimPathPrefix(abs, prefixPath))
		if previewPath != "" && strings.HasPrefix(abs, previewPath+"/") {
			add(abs[len(previewPath):])
		}
	}

	paths := make([]string, 0, len(set))
	for p := range set {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func isDocument(key string, stripHTML bool) bool {
	ext := strings.ToLower(path.Ext(key))
	return ext == ".html" || (stripHTML && ext == "")
}

// indexDir returns the directory path served by an index document.
func indexDir(p string, stripHTML bool) (string, bool) {
	base := path.Base(p)
	if base == "index.html" || (stripHTML && base == "index") {
		return strings.TrimSuffix(p, base), true
	}
	return "", false
}

func absPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return "/" + prefix
}

func trimPathPrefix(p, prefix string) string {
	if prefix != "" && strings.HasPrefix(p, prefix+"/") {
		return p[len(prefix):]
	}
	return p
}
