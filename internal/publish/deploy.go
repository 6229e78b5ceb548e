package publish

import (
	"context"
	"crypto/md5" //nolint:gosec // S3 ETags of single-part uploads are MD5 digests.
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
	"git.home.luguber.info/inful/rstsite/internal/logfields"
	"git.home.luguber.info/inful/rstsite/internal/retry"
)

// Result counts what a deploy did.
type Result struct {
	Uploaded int
	Skipped  int
	Deleted  int
}

// Deployer mirrors an output directory into a Store under a key prefix.
type Deployer struct {
	store   Store
	prefix  string
	prune   bool
	workers int
	retry   retry.Policy
	logger  *slog.Logger
	// exclude lists site-relative files that are never uploaded.
	exclude map[string]bool
}

// Options configures a Deployer.
type Options struct {
	Prefix  string
	Prune   bool
	Workers int
	Exclude []string
	// Retry applies to every upload and delete. The zero Policy never retries.
	Retry  retry.Policy
	Logger *slog.Logger
}

// NewDeployer returns a Deployer writing to store.
func NewDeployer(store Store, opts Options) *Deployer {
	d := &Deployer{
		store:   store,
		prefix:  strings.Trim(opts.Prefix, "/"),
		prune:   opts.Prune,
		workers: max(opts.Workers, 1),
		retry:   opts.Retry,
		logger:  opts.Logger,
		exclude: make(map[string]bool, len(opts.Exclude)),
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	for _, e := range opts.Exclude {
		d.exclude[e] = true
	}
	return d
}

func (d *Deployer) key(rel string) string {
	if d.prefix == "" {
		return rel
	}
	return d.prefix + "/" + rel
}

type localFile struct {
	rel  string
	abs  string
	size int64
	md5  string
}

// Deploy uploads every file below dir whose content differs from the stored object and,
// with pruning enabled, removes objects that no longer exist locally.
func (d *Deployer) Deploy(ctx context.Context, dir string) (*Result, error) {
	files, err := d.scan(dir)
	if err != nil {
		return nil, err
	}
	if err := d.store.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	listPrefix := ""
	if d.prefix != "" {
		listPrefix = d.prefix + "/"
	}
	remote, err := d.store.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}
	etags := make(map[string]string, len(remote))
	for _, o := range remote {
		etags[o.Key] = o.ETag
	}

	res := &Result{}
	var upload []localFile
	local := make(map[string]bool, len(files))
	for _, f := range files {
		k := d.key(f.rel)
		local[k] = true
		if etags[k] == f.md5 {
			res.Skipped++
			continue
		}
		upload = append(upload, f)
	}

	if err := d.parallel(ctx, len(upload), func(i int) error {
		return d.upload(ctx, upload[i])
	}); err != nil {
		return res, err
	}
	res.Uploaded = len(upload)

	if d.prune {
		var stale []string
		for _, o := range remote {
			if !local[o.Key] {
				stale = append(stale, o.Key)
			}
		}
		sort.Strings(stale)
		if err := d.parallel(ctx, len(stale), func(i int) error {
			d.logger.Debug("Removing stale object", slog.String("key", stale[i]))
			return d.withRetry(ctx, stale[i], func() error { return d.store.Remove(ctx, stale[i]) })
		}); err != nil {
			return res, err
		}
		res.Deleted = len(stale)
	}
	d.logger.Info("Deploy finished",
		slog.Int("uploaded", res.Uploaded), slog.Int("skipped", res.Skipped), slog.Int("deleted", res.Deleted))
	return res, nil
}

func (d *Deployer) scan(dir string) ([]localFile, error) {
	var files []localFile
	err := filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if e.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.exclude[rel] {
			return nil
		}
		sum, size, err := digest(p)
		if err != nil {
			return err
		}
		files = append(files, localFile{rel: rel, abs: p, size: size, md5: sum})
		return nil
	})
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "scan output directory").
			WithContext("path", dir).Build()
	}
	return files, nil
}

func digest(p string) (string, int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	h := md5.New() //nolint:gosec // compared against S3 ETags
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

func (d *Deployer) upload(ctx context.Context, f localFile) error {
	d.logger.Debug("Uploading", logfields.Path(f.rel))
	key := d.key(f.rel)
	return d.withRetry(ctx, key, func() error {
		r, err := os.Open(f.abs)
		if err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "open output file").
				WithContext("path", f.rel).Build()
		}
		defer r.Close()
		return d.store.Put(ctx, key, r, f.size, contentType(f.rel))
	})
}

func (d *Deployer) withRetry(ctx context.Context, key string, fn func() error) error {
	return retry.Do(ctx, d.retry, fn, func(attempt int, delay time.Duration, err error) {
		d.logger.Warn("Retrying storage operation",
			slog.String("key", key), slog.Int("attempt", attempt), logfields.DurationMS(float64(delay.Milliseconds())), logfields.Error(err))
	})
}

// contentType falls back to application/octet-stream for unknown extensions.
func contentType(rel string) string {
	if t := mime.TypeByExtension(path.Ext(rel)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// parallel runs fn for [0, n) on the deployer's workers and returns the errors joined.
// No new calls start after ctx is done.
func (d *Deployer) parallel(ctx context.Context, n int, fn func(i int) error) error {
	if n == 0 {
		return nil
	}
	tasks := make(chan int)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for range min(d.workers, n) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				errs[i] = fn(i)
			}
		}()
	}
	var ctxErr error
	for i := range n {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		tasks <- i
	}
	close(tasks)
	wg.Wait()
	return errors.Join(append(errs, ctxErr)...)
}
