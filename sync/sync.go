package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds in-flight file decisions when Options.Concurrency is unset.
const DefaultConcurrency = 8

// Options configures a sync operation.
type Options struct {
	Src         string      // build output directory
	Dst         Destination // destination
	Prefix      string      // key prefix, e.g. root or preview/<branch>
	StripHTML   bool        // drop .html from object keys
	Exclude     []string    // doublestar globs matched against slash relative paths
	Concurrency int         // max files in flight
	DryRun      bool        // if true, log actions without making changes
	Delete      bool        // if true, remove objects under Prefix absent from Src
}

type localFile struct {
	path     string
	rel      string
	key      string
	size     int64
	document bool // local name ends in .html
}

// Result lists the keys a sync wrote, in directory-traversal order.
type Result struct {
	Changed []string
	// Documents is the subset of Changed uploaded from .html files. With
	// StripHTML the key alone cannot tell, e.g. release-1.2.html is stored
	// as release-1.2.
	Documents []string
}

type fileResult struct {
	uploaded bool
	err      error
}

// Sync uploads every regular file under opts.Src whose stored copy is stale
// and reports the changed keys. Symlinks to files are followed; symlinked
// directories are not descended into.
//
// A failing file does not stop the others: all per-file errors are collected
// and returned together alongside the keys that did change. Pruning is
// skipped when any file failed.
func Sync(ctx context.Context, opts Options) (*Result, error) {
	if err := validateSrc(opts.Src); err != nil {
		return nil, err
	}

	files, err := collectFiles(opts)
	if err != nil {
		return nil, err
	}

	res, err := syncFiles(ctx, opts, files)
	if err != nil {
		return res, err
	}

	if opts.Delete {
		if err := deleteExtras(ctx, opts, files); err != nil {
			return res, err
		}
	}
	return res, nil
}

func collectFiles(opts Options) ([]localFile, error) {
	for _, pattern := range opts.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	var files []localFile
	err := filepath.WalkDir(opts.Src, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}

		rel, err := filepath.Rel(opts.Src, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel) // S3 keys use forward slashes

		if excluded(rel, opts.Exclude) {
			slog.Debug("excluded", "path", rel)
			return nil
		}

		// Stat follows symlinks, so a link to a file is synced as that file
		info, err := os.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", rel, err)
		}
		if !info.Mode().IsRegular() {
			slog.Debug("skipping non-regular file", "path", rel, "mode", info.Mode())
			return nil
		}

		files = append(files, localFile{
			path:     path,
			rel:      rel,
			key:      ObjectKey(opts.Src, path, opts.Prefix, opts.StripHTML),
			size:     info.Size(),
			document: isHTML(rel),
		})
		return nil
	})
	return files, err
}

func excluded(rel string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func syncFiles(ctx context.Context, opts Options, files []localFile) (*Result, error) {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	// indexed by discovery order so completion order does not leak into the result
	results := make([]fileResult, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			uploaded, err := MaybeUpload(gctx, opts.Dst, f.key, f.path, opts.DryRun)
			results[i] = fileResult{uploaded: uploaded, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var (
		errs     *multierror.Error
		out      = &Result{}
		skipped  int
		failed   int
		uploaded uint64
	)
	for i, res := range results {
		f := files[i]
		switch {
		case res.err != nil:
			slog.Error("sync failed", "path", f.rel, "error", res.err)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", f.rel, res.err))
			failed++
		case res.uploaded:
			slog.Info("synced", "key", f.key, "size", humanize.Bytes(uint64(f.size)), "dryRun", opts.DryRun)
			out.Changed = append(out.Changed, f.key)
			if f.document {
				out.Documents = append(out.Documents, f.key)
			}
			uploaded += uint64(f.size)
		default:
			slog.Debug("skipped (no change)", "key", f.key)
			skipped++
		}
	}

	slog.Info("sync complete",
		"prefix", opts.Prefix,
		"synced", len(out.Changed),
		"skipped", skipped,
		"failed", failed,
		"bytes", humanize.Bytes(uploaded),
	)

	if err := ctx.Err(); err != nil {
		errs = multierror.Append(errs, err)
	}
	return out, errs.ErrorOrNil()
}

func deleteExtras(ctx context.Context, opts Options, files []localFile) error {
	keys, err := opts.Dst.List(ctx, dirPrefix(opts.Prefix))
	if err != nil {
		return fmt.Errorf("list %s: %w", opts.Prefix, err)
	}

	wanted := make(map[string]struct{}, len(files))
	for _, f := range files {
		wanted[f.key] = struct{}{}
	}

	var stale []string
	for _, key := range keys {
		if _, ok := wanted[key]; !ok {
			slog.Info("delete", "key", key, "dryRun", opts.DryRun)
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 || opts.DryRun {
		return nil
	}
	if err := opts.Dst.Delete(ctx, stale); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Empty deletes every object under prefix and returns how many were removed.
func Empty(ctx context.Context, dst Destination, prefix string) (int, error) {
	listPrefix := dirPrefix(prefix)
	if listPrefix == "" {
		return 0, fmt.Errorf("refusing to empty the whole bucket")
	}

	keys, err := dst.List(ctx, listPrefix)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", listPrefix, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := dst.Delete(ctx, keys); err != nil {
		return 0, fmt.Errorf("delete %s: %w", listPrefix, err)
	}
	return len(keys), nil
}

func validateSrc(src string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source %q is not a directory", src)
	}
	return nil
}
