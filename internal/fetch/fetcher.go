// Package fetch issues cancellable byte-range requests against track
// sources and feeds observed throughput back to the bandwidth estimator.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/lcourbon/cadence/internal/bandwidth"
)

// ProgressFunc receives running byte counts during a full-track fetch.
// total is -1 when the server did not report a content length.
type ProgressFunc func(written, total int64)

type rangeKey struct {
	uri        string
	start, end int64
}

// Fetcher performs HTTP byte-range and full-file fetches. Completed range
// fetches are cached in memory for the session, keyed by (uri, start, end);
// the cache is transient and distinct from the persistent offline store.
type Fetcher struct {
	client    *http.Client
	estimator *bandwidth.Estimator

	mu    sync.Mutex
	cache map[rangeKey][]byte
}

// NewFetcher creates a Fetcher. timeout bounds every request; zero means
// 30 seconds.
func NewFetcher(estimator *bandwidth.Estimator, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		estimator: estimator,
		cache:     make(map[rangeKey][]byte),
	}
}

// FetchRange fetches the half-open byte interval [start, end) of the
// resource at uri. Cancel via ctx. On success the observed throughput is
// recorded as a bandwidth sample and the bytes are cached for the session.
func (f *Fetcher) FetchRange(ctx context.Context, uri string, start, end int64) ([]byte, error) {
	key := rangeKey{uri: uri, start: start, end: end}

	f.mu.Lock()
	if cached, ok := f.cache[key]; ok {
		f.mu.Unlock()
		return cached, nil
	}
	f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransferFailed, err)
	}
	// Range header is closed-interval; FetchRange takes half-open offsets.
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end-1))

	began := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransferFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, end-start))
	if err != nil {
		return nil, classify(ctx, err)
	}

	f.recordThroughput(len(body), time.Since(began))

	f.mu.Lock()
	f.cache[key] = body
	f.mu.Unlock()

	return body, nil
}

// FetchFull fetches the whole resource at uri, reporting progress as bytes
// arrive. This is the fallback path when ranges are unsupported and the
// path whole-track downloads use.
func (f *Fetcher) FetchFull(ctx context.Context, uri string, progress ProgressFunc) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrTransferFailed, err)
	}

	began := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrTransferFailed, resp.StatusCode)
	}

	total := resp.ContentLength
	var buf []byte
	if total > 0 {
		buf = make([]byte, 0, total)
	}

	chunk := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			if progress != nil {
				progress(int64(len(buf)), total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, classify(ctx, readErr)
		}
	}

	f.recordThroughput(len(buf), time.Since(began))
	return buf, nil
}

// ContentLength issues a HEAD request and returns the reported size, or -1
// when the server does not report one.
func (f *Fetcher) ContentLength(ctx context.Context, uri string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, uri, http.NoBody)
	if err != nil {
		return -1, fmt.Errorf("%w: create request: %v", ErrTransferFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return -1, classify(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return -1, fmt.Errorf("%w: status %d", ErrTransferFailed, resp.StatusCode)
	}
	return resp.ContentLength, nil
}

// ClearCache drops all cached ranges, e.g. when the active track changes.
func (f *Fetcher) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cache = make(map[rangeKey][]byte)
}

// CachedRanges returns the number of ranges currently cached.
func (f *Fetcher) CachedRanges() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cache)
}

func (f *Fetcher) recordThroughput(bytes int, elapsed time.Duration) {
	if f.estimator == nil || bytes == 0 || elapsed <= 0 {
		return
	}
	kbps := float64(bytes) * 8 / 1000 / elapsed.Seconds()
	f.estimator.RecordSample(kbps)
}

// classify maps a transport error to the sentinel taxonomy. Context
// cancellation is intentional abort, everything else is a failed transfer.
func classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	return fmt.Errorf("%w: %v", ErrTransferFailed, err)
}
