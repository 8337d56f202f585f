package sync

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
)

// Cache-Control values for HTML documents and for every other asset.
const (
	CacheControlRevalidate = "public,max-age=0,s-maxage=31536000,must-revalidate"
	CacheControlImmutable  = "public,max-age=31536000,immutable"
)

// ErrUnknownContentType is returned for extensions without a MIME mapping.
var ErrUnknownContentType = errors.New("unknown content type")

// extraTypes covers common static-site extensions missing from Go's builtin
// table, so results do not depend on the host's mime.types.
var extraTypes = map[string]string{
	".txt":         "text/plain; charset=utf-8",
	".md":          "text/markdown; charset=utf-8",
	".csv":         "text/csv; charset=utf-8",
	".ico":         "image/x-icon",
	".woff":        "font/woff",
	".woff2":       "font/woff2",
	".ttf":         "font/ttf",
	".otf":         "font/otf",
	".eot":         "application/vnd.ms-fontobject",
	".map":         "application/json",
	".webmanifest": "application/manifest+json",
	".mp4":         "video/mp4",
	".webm":        "video/webm",
	".mp3":         "audio/mpeg",
	".zip":         "application/zip",
	".gz":          "application/gzip",
	".yaml":        "application/yaml",
	".yml":         "application/yaml",
}

// CacheControlFor returns the Cache-Control policy for a file extension.
func CacheControlFor(ext string) string {
	if strings.EqualFold(ext, htmlExt) {
		return CacheControlRevalidate
	}
	return CacheControlImmutable
}

// ContentTypeFor resolves the MIME type of a file extension.
func ContentTypeFor(ext string) (string, error) {
	ext = strings.ToLower(ext)
	if ct, ok := extraTypes[ext]; ok {
		return ct, nil
	}
	if ext != "" {
		if ct := mime.TypeByExtension(ext); ct != "" {
			return ct, nil
		}
	}
	return "", fmt.Errorf("%w for extension %q", ErrUnknownContentType, ext)
}

// FingerprintReader returns the hex MD5 of r's content. It matches the ETag
// S3 assigns to single-part uploads, without the surrounding quotes.
func FingerprintReader(r io.Reader) (string, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
