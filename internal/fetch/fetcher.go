package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dustin/go-humanize"
	"github.com/italolelis/geofetch/internal/fetch/progress"
	"github.com/italolelis/geofetch/internal/logctx"
	"github.com/italolelis/geofetch/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	dirPerm = 0755

	defaultBackoffInitial   = 500 * time.Millisecond
	defaultBackoffMax       = 30 * time.Second
	defaultProgressInterval = int64(50 * 1024 * 1024) // 50MB
)

// Config is the immutable configuration for one fetch batch.
type Config struct {
	// OutputFolder is the root directory for all destinations. Created if
	// absent; every write stays underneath it.
	OutputFolder string

	// Overwrite forces a re-download even when a satisfying file already
	// exists at the destination.
	Overwrite bool

	// MaxRetries is the per-asset retry budget for transient failures.
	MaxRetries int

	// MaxParallel bounds how many assets download concurrently. Zero or
	// negative means sequential.
	MaxParallel int

	BackoffInitial   time.Duration
	BackoffMax       time.Duration
	ProgressInterval int64
}

// Fetcher downloads batches of catalog assets to local storage. It holds no
// state across batches; each Fetch call is a pure function of (descriptors,
// config) apart from the file system writes under the output folder.
type Fetcher struct {
	cfg    Config
	client *http.Client
	tel    *telemetry.Telemetry
}

func NewFetcher(cfg Config, client *http.Client, tel *telemetry.Telemetry) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}

	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}

	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = defaultBackoffInitial
	}

	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = defaultBackoffMax
	}

	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = defaultProgressInterval
	}

	return &Fetcher{cfg: cfg, client: client, tel: tel}
}

// Fetch processes every descriptor and returns one result per descriptor in
// input order. Per-asset failures are reported in the results, never as the
// returned error; the error is non-nil only when the batch itself cannot
// start (invalid configuration or unwritable output folder).
func (f *Fetcher) Fetch(ctx context.Context, descriptors []AssetDescriptor) ([]Result, error) {
	if err := f.prepareBatch(); err != nil {
		return nil, err
	}

	results := make([]Result, len(descriptors))
	seen := make(map[string]int, len(descriptors))

	var wg errgroup.Group

	sem := make(chan struct{}, f.cfg.MaxParallel)

	for i := range descriptors {
		d := descriptors[i]

		if first, dup := seen[d.ID]; dup {
			results[i] = Result{
				ID:     d.ID,
				Path:   d.DestinationPath,
				Status: StatusFailed,
				Err:    fmt.Errorf("duplicate descriptor id %q (first seen at index %d)", d.ID, first),
			}

			continue
		}

		seen[d.ID] = i

		sem <- struct{}{}

		wg.Go(func() error {
			defer func() { <-sem }() // release the slot

			results[i] = f.fetchOne(ctx, d)

			return nil
		})
	}

	// Workers never return errors; failures stay inside their result slot.
	_ = wg.Wait()

	return results, nil
}

// prepareBatch validates the configuration and proves the output folder is
// usable before any asset is attempted. This is the only batch-level failure.
func (f *Fetcher) prepareBatch() error {
	if f.cfg.OutputFolder == "" {
		return fmt.Errorf("output folder is required")
	}

	if f.cfg.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", f.cfg.MaxRetries)
	}

	if err := os.MkdirAll(f.cfg.OutputFolder, dirPerm); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	probe, err := os.CreateTemp(f.cfg.OutputFolder, ".geofetch-probe-*")
	if err != nil {
		return fmt.Errorf("output folder is not writable: %w", err)
	}

	probe.Close()
	os.Remove(probe.Name())

	return nil
}

func (f *Fetcher) fetchOne(ctx context.Context, d AssetDescriptor) Result {
	start := time.Now()
	logger := logctx.LoggerFromContext(ctx).With("asset_id", d.ID)

	res := Result{ID: d.ID, Path: d.DestinationPath}

	finish := func() Result {
		res.Duration = time.Since(start)
		f.tel.RecordAsset(string(res.Status), res.Duration, res.Bytes)

		return res
	}

	fail := func(err error) Result {
		logger.Error("asset fetch failed", "err", err)

		res.Status = StatusFailed
		res.Err = err

		return finish()
	}

	if err := d.validate(); err != nil {
		return fail(err)
	}

	target, err := resolveDestination(f.cfg.OutputFolder, d.DestinationPath)
	if err != nil {
		return fail(err)
	}

	if !f.cfg.Overwrite && satisfied(target, d.ExpectedSize) {
		logger.Debug("asset already present, skipping", "target", target)

		res.Status = StatusSkippedExists

		return finish()
	}

	operation := func() (int64, error) {
		if err := ctx.Err(); err != nil {
			return 0, backoff.Permanent(err)
		}

		res.Attempts++

		n, err := f.downloadOnce(ctx, d, target)
		if err != nil {
			var transient *TransientNetworkError
			if errors.As(err, &transient) && !errors.Is(err, context.Canceled) {
				logger.Warn("transient failure downloading asset", "attempt", res.Attempts, "err", err)

				return 0, err
			}

			return 0, backoff.Permanent(err)
		}

		return n, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = f.cfg.BackoffInitial
	expo.MaxInterval = f.cfg.BackoffMax

	err = f.tel.InstrumentAssetFetch(ctx, func(ctx context.Context) error {
		n, retryErr := backoff.Retry(ctx, operation,
			backoff.WithBackOff(expo),
			backoff.WithMaxTries(uint(f.cfg.MaxRetries+1)),
		)
		if retryErr != nil {
			return retryErr
		}

		res.Bytes = n

		return nil
	})
	if err != nil {
		return fail(err)
	}

	logger.Info("downloaded and saved asset", "target", target, "size", humanize.Bytes(uint64(res.Bytes)), "attempts", res.Attempts)

	res.Status = StatusDownloaded

	return finish()
}

// downloadOnce performs a single download attempt: stream the body to a
// temporary file next to the destination, then atomically rename it into
// place. A failed attempt never leaves anything at the final path.
func (f *Fetcher) downloadOnce(ctx context.Context, d AssetDescriptor, target string) (int64, error) {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return 0, &LocalIOError{Op: "mkdir", Path: dir, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.SourceURL, nil)
	if err != nil {
		return 0, &FatalNetworkError{URL: d.SourceURL, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}

		return 0, &TransientNetworkError{URL: d.SourceURL, Err: err}
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout:
		return 0, &TransientNetworkError{URL: d.SourceURL, StatusCode: resp.StatusCode}
	case resp.StatusCode >= http.StatusMultipleChoices:
		return 0, &FatalNetworkError{URL: d.SourceURL, StatusCode: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".partial-*")
	if err != nil {
		return 0, &LocalIOError{Op: "create", Path: dir, Err: err}
	}

	n, err := f.writeBody(ctx, tmp, resp, d)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())

		return 0, err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())

		return 0, &LocalIOError{Op: "close", Path: tmp.Name(), Err: err}
	}

	expected := d.ExpectedSize
	if resp.ContentLength >= 0 {
		expected = resp.ContentLength
	}

	if expected > 0 && n != expected {
		os.Remove(tmp.Name())

		return 0, &TransientNetworkError{
			URL: d.SourceURL,
			Err: fmt.Errorf("truncated transfer: got %d bytes, want %d", n, expected),
		}
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())

		return 0, &LocalIOError{Op: "rename", Path: target, Err: err}
	}

	return n, nil
}

func (f *Fetcher) writeBody(ctx context.Context, out *os.File, resp *http.Response, d AssetDescriptor) (int64, error) {
	logger := logctx.LoggerFromContext(ctx)

	total := resp.ContentLength
	if total < 0 {
		total = d.ExpectedSize
	}

	progressCb := func(read, total int64) {
		if total > 0 {
			logger.Debug("download progress",
				"url", d.SourceURL,
				"downloaded", humanize.Bytes(uint64(read)),
				"total", humanize.Bytes(uint64(total)),
				"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
		} else {
			logger.Debug("download progress", "url", d.SourceURL, "downloaded", humanize.Bytes(uint64(read)))
		}
	}

	pr := progress.NewReader(resp.Body, total, f.cfg.ProgressInterval, progressCb)
	cw := &countingWriter{w: out}

	n, err := io.Copy(cw, pr)
	if err != nil {
		// A write error is a local disk problem; anything else came from the
		// network side of the copy.
		if cw.err != nil {
			return n, &LocalIOError{Op: "write", Path: out.Name(), Err: cw.err}
		}

		return n, &TransientNetworkError{URL: d.SourceURL, Err: err}
	}

	return n, nil
}

// satisfied reports whether an existing file at target already fulfills the
// descriptor. Zero-length files are leftovers from a prior crash and are
// never treated as satisfied.
func satisfied(target string, expectedSize int64) bool {
	info, err := os.Stat(target)
	if err != nil || info.IsDir() {
		return false
	}

	if info.Size() == 0 {
		return false
	}

	if expectedSize > 0 && info.Size() != expectedSize {
		return false
	}

	return true
}

type countingWriter struct {
	w   io.Writer
	err error
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if err != nil {
		cw.err = err
	}

	return n, err
}
