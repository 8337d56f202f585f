package sync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalMeta computes the metadata file should carry once uploaded.
func LocalMeta(file string) (ObjectMeta, error) {
	ext := strings.ToLower(filepath.Ext(file))
	contentType, err := ContentTypeFor(ext)
	if err != nil {
		return ObjectMeta{}, err
	}

	f, err := os.Open(file)
	if err != nil {
		return ObjectMeta{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ObjectMeta{}, err
	}
	fp, err := FingerprintReader(f)
	if err != nil {
		return ObjectMeta{}, fmt.Errorf("fingerprint: %w", err)
	}

	return ObjectMeta{
		ContentType:  contentType,
		CacheControl: CacheControlFor(ext),
		Fingerprint:  fp,
		Size:         info.Size(),
	}, nil
}

// Stale reports whether remote must be overwritten with local.
func Stale(remote *ObjectMeta, local ObjectMeta) bool {
	return remote == nil ||
		remote.CacheControl != local.CacheControl ||
		remote.ContentType != local.ContentType ||
		remote.Fingerprint != local.Fingerprint
}

// MaybeUpload uploads file to key unless the stored object already matches
// its fingerprint, content type and cache policy. It reports whether an upload
// happened (or, with dryRun, would have happened).
func MaybeUpload(ctx context.Context, dst Destination, key, file string, dryRun bool) (bool, error) {
	local, err := LocalMeta(file)
	if err != nil {
		return false, err
	}

	remote, err := dst.Stat(ctx, key)
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	if !Stale(remote, local) {
		return false, nil
	}
	if dryRun {
		return true, nil
	}

	f, err := os.Open(file)
	if err != nil {
		return false, err
	}
	defer f.Close()

	if err := dst.Put(ctx, key, f, local); err != nil {
		return false, fmt.Errorf("put %s: %w", key, err)
	}
	return true, nil
}
