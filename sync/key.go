package sync

import (
	"path"
	"path/filepath"
	"strings"
)

const htmlExt = ".html"

// ObjectKey maps a file under buildRoot to its object key. When stripHTML is
// set, a trailing .html (any case) is dropped so blog.html is stored as blog.
func ObjectKey(buildRoot, file, prefix string, stripHTML bool) string {
	rel, err := filepath.Rel(buildRoot, file)
	if err != nil {
		rel = file
	}
	return keyFor(filepath.ToSlash(rel), prefix, stripHTML)
}

func keyFor(rel, prefix string, stripHTML bool) string {
	key := joinKey(prefix, rel)
	if !stripHTML {
		return key
	}
	ext := path.Ext(key)
	if isHTML(key) && path.Base(key) != ext {
		return strings.TrimSuffix(key, ext)
	}
	return key
}

// isHTML reports whether name has an .html extension in any case.
func isHTML(name string) bool {
	return strings.EqualFold(path.Ext(name), htmlExt)
}

func joinKey(prefix, rel string) string {
	rel = strings.TrimPrefix(rel, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return rel
	}
	return prefix + "/" + rel
}

// dirPrefix turns a key prefix into a listing prefix that cannot match a
// sibling such as preview/b-2 when listing preview/b.
func dirPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}
