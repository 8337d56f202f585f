package cdn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidationPaths(t *testing.T) {
	tests := []struct {
		name      string
		keys      []string
		prefix    string
		preview   string
		stripHTML bool
		want      []string
	}{
		{
			name:    "root index",
			keys:    []string{"site/index.html"},
			prefix:  "site",
			preview: "preview",
			want:    []string{"/", "/index.html"},
		},
		{
			name:    "non html excluded",
			keys:    []string{"site/css/style.css"},
			prefix:  "site",
			preview: "preview",
			want:    []string{},
		},
		{
			name:    "preview document invalidated in both forms",
			keys:    []string{"preview/branch-1/blog.html"},
			prefix:  "preview/branch-1",
			preview: "preview",
			want:    []string{"/blog.html", "/branch-1/blog.html"},
		},
		{
			name:    "preview index purges both directories",
			keys:    []string{"preview/b1/index.html"},
			prefix:  "preview/b1",
			preview: "preview",
			want:    []string{"/", "/b1/", "/b1/index.html", "/index.html"},
		},
		{
			name:      "stripped extension documents",
			keys:      []string{"root/about", "root/index", "root/app.js"},
			prefix:    "root",
			preview:   "preview",
			stripHTML: true,
			want:      []string{"/", "/about", "/index"},
		},
		{
			name:    "extensionless key ignored without stripping",
			keys:    []string{"root/about"},
			prefix:  "root",
			preview: "preview",
			want:    []string{},
		},
		{
			name:    "nested index",
			keys:    []string{"root/docs/index.html"},
			prefix:  "root",
			preview: "preview",
			want:    []string{"/docs/", "/docs/index.html"},
		},
		{
			name:    "case insensitive extension",
			keys:    []string{"root/PAGE.HTML"},
			prefix:  "root",
			preview: "preview",
			want:    []string{"/PAGE.HTML"},
		},
		{
			name:    "duplicates collapse",
			keys:    []string{"root/index.html", "root/index.html"},
			prefix:  "root",
			preview: "preview",
			want:    []string{"/", "/index.html"},
		},
		{
			name:    "prefix must match a whole segment",
			keys:    []string{"rooted/a.html"},
			prefix:  "root",
			preview: "preview",
			want:    []string{"/rooted/a.html"},
		},
		{
			name:    "empty prefix",
			keys:    []string{"a.html"},
			prefix:  "",
			preview: "",
			want:    []string{"/a.html"},
		},
		{
			name:    "no keys",
			keys:    nil,
			prefix:  "root",
			preview: "preview",
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := InvalidationPaths(tt.keys, tt.prefix, tt.preview, tt.stripHTML)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInvalidationPaths_orderIndependent(t *testing.T) {
	a := InvalidationPaths([]string{"root/a.html", "root/index.html", "root/b/c.html"}, "root", "preview", false)
	b := InvalidationPaths([]string{"root/b/c.html", "root/a.html", "root/index.html"}, "root", "preview", false)
	assert.Equal(t, a, b)
}

func TestDocumentPaths_dottedStrippedNames(t *testing.T) {
	docs := []string{"root/release-1.2", "root/about", "root/v2.0/index"}

	got := DocumentPaths(docs, "root", "preview", true)
	assert.Equal(t, []string{"/about", "/release-1.2", "/v2.0/", "/v2.0/index"}, got)

	// from keys alone a stripped dotted name is indistinguishable from an asset
	assert.Equal(t, []string{"/about"}, InvalidationPaths([]string{"root/release-1.2", "root/about"}, "root", "preview", true))
}

func TestDocumentPaths_preview(t *testing.T) {
	got := DocumentPaths([]string{"preview/b1/notes.v1"}, "preview/b1", "preview", true)
	assert.Equal(t, []string{"/b1/notes.v1", "/notes.v1"}, got)
}
