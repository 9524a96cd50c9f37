// Package fetch downloads package artifacts from sources and verifies
// their integrity before they reach the installer.
//
// Downloaded bytes flow through the injected cache keyed by
// (source, name, version); a checksum pin recorded on the first download
// outlives the cached bytes, so a later re-fetch that produces different
// content fails instead of silently substituting a different build.
package fetch

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/depforge/depforge/pkg/cache"
	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/metrics"
	"github.com/depforge/depforge/pkg/source"
)

// Defaults for batch fetching.
const (
	DefaultWorkers = 4
	DefaultTimeout = 2 * time.Minute
)

// Artifact is a verified, locally materialized package artifact.
type Artifact struct {
	Name      string
	Version   string
	Source    string
	Path      string // local file holding the artifact bytes
	Checksum  string // sha256 hex of the bytes
	Size      int64
	FromCache bool
}

// Fetcher downloads and verifies artifacts.
type Fetcher struct {
	cache   cache.Cache
	dir     string // scratch directory for materialized artifacts
	logger  *log.Logger
	workers int
	timeout time.Duration

	// verifySignatures requires a matching detached signature from
	// untrusted sources before an artifact is accepted.
	verifySignatures bool
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithWorkers sets the batch fetch pool width.
func WithWorkers(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithTimeout sets the per-package fetch timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithSignatureVerification toggles mandatory signature checks for
// untrusted sources.
func WithSignatureVerification(on bool) Option {
	return func(f *Fetcher) { f.verifySignatures = on }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a Fetcher that materializes artifacts under dir.
// c may be nil to disable the artifact cache.
func New(c cache.Cache, dir string, opts ...Option) *Fetcher {
	if c == nil {
		c = cache.NewNullCache()
	}
	f := &Fetcher{
		cache:   c,
		dir:     dir,
		logger:  log.Default(),
		workers: DefaultWorkers,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves one artifact from src, verifying checksums and (for
// untrusted sources) signatures. Cached bytes short-circuit the download
// when their checksum still holds.
func (f *Fetcher) Fetch(ctx context.Context, src source.Source, meta *source.Metadata) (*Artifact, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	key := cache.ArtifactKey(src.Name(), meta.Name, meta.Version)
	pinKey := cache.ChecksumKey(src.Name(), meta.Name, meta.Version)

	if data, hit, _ := f.cache.Get(ctx, key); hit {
		sum := cache.Hash(data)
		if err := f.checkPins(ctx, meta, pinKey, sum); err == nil {
			metrics.RecordCacheLookup("artifact", "hit")
			f.logger.Debug("artifact cache hit", "package", meta.Name, "version", meta.Version)
			return f.materialize(meta, src.Name(), data, sum, true)
		}
		// Cached bytes no longer match; drop them and download fresh.
		f.logger.Warn("discarding corrupt cached artifact", "package", meta.Name, "version", meta.Version)
		_ = f.cache.Delete(ctx, key)
	}
	metrics.RecordCacheLookup("artifact", "miss")

	data, err := f.download(ctx, src, meta)
	if err != nil {
		metrics.RecordFetch(src.Name(), metrics.ResultFailure)
		return nil, err
	}
	sum := cache.Hash(data)

	if err := f.checkPins(ctx, meta, pinKey, sum); err != nil {
		metrics.RecordFetch(src.Name(), metrics.ResultFailure)
		return nil, err
	}
	if err := f.checkSignature(ctx, src, meta, sum); err != nil {
		metrics.RecordFetch(src.Name(), metrics.ResultFailure)
		return nil, err
	}
	metrics.RecordFetch(src.Name(), metrics.ResultSuccess)

	_ = f.cache.Set(ctx, key, data, 0)
	_ = f.cache.Set(ctx, pinKey, []byte(sum), 0)

	return f.materialize(meta, src.Name(), data, sum, false)
}

func (f *Fetcher) download(ctx context.Context, src source.Source, meta *source.Metadata) ([]byte, error) {
	rc, err := src.FetchArtifact(ctx, meta.Name, meta.Version)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrCodeTimeout, err, "fetch %s@%s timed out", meta.Name, meta.Version)
		}
		return nil, errors.Wrap(errors.ErrCodeFetchFailed, err, "fetch %s@%s from %s", meta.Name, meta.Version, src.Name())
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeFetchFailed, err, "read %s@%s from %s", meta.Name, meta.Version, src.Name())
	}
	return data, nil
}

// checkPins verifies sum against the source-declared checksum and the
// pinned checksum of any previous download.
func (f *Fetcher) checkPins(ctx context.Context, meta *source.Metadata, pinKey, sum string) error {
	if meta.Checksum != "" && !strings.EqualFold(meta.Checksum, sum) {
		return errors.New(errors.ErrCodeChecksumMismatch,
			"checksum mismatch for %s@%s: declared %s, got %s", meta.Name, meta.Version, meta.Checksum, sum)
	}
	if pin, hit, _ := f.cache.Get(ctx, pinKey); hit && !strings.EqualFold(string(pin), sum) {
		return errors.New(errors.ErrCodeChecksumMismatch,
			"artifact %s@%s changed since first download: pinned %s, got %s", meta.Name, meta.Version, pin, sum)
	}
	return nil
}

// checkSignature enforces signature verification for untrusted sources.
// The detached signature is the hex sha256 of the artifact bytes.
func (f *Fetcher) checkSignature(ctx context.Context, src source.Source, meta *source.Metadata, sum string) error {
	if !f.verifySignatures || src.Trusted() {
		return nil
	}
	sig, err := src.Signature(ctx, meta.Name, meta.Version)
	if err != nil {
		return errors.Wrap(errors.ErrCodeSignatureInvalid, err,
			"no signature for %s@%s from untrusted source %s", meta.Name, meta.Version, src.Name())
	}
	if !strings.EqualFold(strings.TrimSpace(sig), sum) {
		return errors.New(errors.ErrCodeSignatureInvalid,
			"signature mismatch for %s@%s from %s", meta.Name, meta.Version, src.Name())
	}
	return nil
}

// materialize writes the artifact bytes to the scratch directory. The
// path is namespaced by package and version: two packages shipping
// identically named artifact files must never share a scratch file
// under concurrent batch fetches. The write goes through a temp file
// and rename so readers only ever see complete, verified bytes.
func (f *Fetcher) materialize(meta *source.Metadata, srcName string, data []byte, sum string, fromCache bool) (*Artifact, error) {
	dir := filepath.Join(f.dir, meta.Name+"-"+meta.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create download dir")
	}

	name := meta.Artifact
	if name == "" {
		name = fmt.Sprintf("%s-%s.pkg", meta.Name, meta.Version)
	}
	path := filepath.Join(dir, filepath.Base(name))

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "stage artifact %s", path)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write artifact %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write artifact %s", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "write artifact %s", path)
	}

	return &Artifact{
		Name:      meta.Name,
		Version:   meta.Version,
		Source:    srcName,
		Path:      path,
		Checksum:  sum,
		Size:      int64(len(data)),
		FromCache: fromCache,
	}, nil
}

// Request names one artifact for batch fetching.
type Request struct {
	Source source.Source
	Meta   *source.Metadata
}

// BatchResult collects per-package outcomes of a batch fetch. A failed
// package never aborts its siblings.
type BatchResult struct {
	Artifacts map[string]*Artifact // by package name
	Errors    map[string]error     // by package name
}

// FetchAll downloads the requested artifacts with a bounded worker pool.
// It returns early only on context cancellation; per-package failures
// (including timeouts) end up in BatchResult.Errors.
func (f *Fetcher) FetchAll(ctx context.Context, reqs []Request) (*BatchResult, error) {
	res := &BatchResult{
		Artifacts: make(map[string]*Artifact, len(reqs)),
		Errors:    make(map[string]error),
	}
	if len(reqs) == 0 {
		return res, nil
	}

	type outcome struct {
		name string
		art  *Artifact
		err  error
	}

	jobs := make(chan Request)
	outcomes := make(chan outcome, len(reqs))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for req := range jobs {
				if ctx.Err() != nil {
					outcomes <- outcome{name: req.Meta.Name, err: ctx.Err()}
					continue
				}
				art, err := f.Fetch(ctx, req.Source, req.Meta)
				outcomes <- outcome{name: req.Meta.Name, art: art, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, req := range reqs {
			select {
			case jobs <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		if o.err != nil {
			res.Errors[o.name] = o.err
			f.logger.Warn("fetch failed", "package", o.name, "error", o.err)
		} else {
			res.Artifacts[o.name] = o.art
		}
	}

	if err := ctx.Err(); err != nil && len(res.Artifacts) == 0 {
		return res, err
	}
	return res, nil
}
