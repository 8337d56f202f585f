package sync

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheControlFor(t *testing.T) {
	assert.Equal(t, CacheControlRevalidate, CacheControlFor(".html"))
	assert.Equal(t, CacheControlRevalidate, CacheControlFor(".HTML"))
	assert.Equal(t, CacheControlImmutable, CacheControlFor(".css"))
	assert.Equal(t, CacheControlImmutable, CacheControlFor(".js"))
	assert.Equal(t, CacheControlImmutable, CacheControlFor(""))
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		ext  string
		want string
	}{
		{".html", "text/html; charset=utf-8"},
		{".CSS", "text/css; charset=utf-8"},
		{".png", "image/png"},
		{".woff2", "font/woff2"},
		{".txt", "text/plain; charset=utf-8"},
	}
	for _, tt := range tests {
		t.Run(tt.ext, func(t *testing.T) {
			got, err := ContentTypeFor(tt.ext)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ContentTypeFor("")
	assert.ErrorIs(t, err, ErrUnknownContentType)
	_, err = ContentTypeFor(".zzqx")
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func TestFingerprintReader(t *testing.T) {
	fp, err := FingerprintReader(strings.NewReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", fp)

	empty, err := FingerprintReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", empty)
}
