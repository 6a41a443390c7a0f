// Package fetch retrieves single documentation pages. The network call is
// wrapped by fixed decorator layers: rate limiting outermost, then the
// circuit breaker, with retries exhausted inside each breaker invocation so
// the breaker only counts fully-retried failures.
package fetch

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docfetch/internal/ratelimit"
	"github.com/sells-group/docfetch/internal/resilience"
)

// maxBodyBytes caps how much of a page is read.
const maxBodyBytes = 512 * 1024

// ContentFetcher is the single fetch capability every decorator implements.
type ContentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher is the leaf decorator: one GET with a hard timeout.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// HTTPOptions configures the leaf HTTP layer.
type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
}

// NewHTTPFetcher creates the network leaf.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "docfetch/1.0 (+https://github.com/sells-group/docfetch)"
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		userAgent: opts.UserAgent,
	}
}

// Fetch performs the GET. Non-2xx statuses become StatusError so retry
// predicates can separate 4xx from 5xx. Pages that look like they are still
// rendering are reported as transient so a later attempt can pick up the
// finished document.
func (h *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: create request")
	}
	req.Header.Set("User-Agent", h.userAgent)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: get"))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.NewStatusError(resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrap(err, "fetch: read body"))
	}

	if notReady, marker := contentNotReady(body); notReady {
		return nil, resilience.NewTransientError(
			eris.Errorf("fetch: content not ready (%s) at %s", marker, url))
	}

	return body, nil
}

// RetryFetcher retries the next layer with exponential backoff.
type RetryFetcher struct {
	next ContentFetcher
	cfg  resilience.RetryConfig
}

// NewRetryFetcher wraps next with the retry executor.
func NewRetryFetcher(next ContentFetcher, cfg resilience.RetryConfig) *RetryFetcher {
	return &RetryFetcher{next: next, cfg: cfg}
}

func (r *RetryFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return resilience.DoVal(ctx, r.cfg, func(ctx context.Context) ([]byte, error) {
		return r.next.Fetch(ctx, url)
	})
}

// BreakerFetcher routes the next layer through a shared circuit breaker.
type BreakerFetcher struct {
	next ContentFetcher
	cb   *resilience.CircuitBreaker
}

// NewBreakerFetcher wraps next with the given breaker.
func NewBreakerFetcher(next ContentFetcher, cb *resilience.CircuitBreaker) *BreakerFetcher {
	return &BreakerFetcher{next: next, cb: cb}
}

func (b *BreakerFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return resilience.BreakerVal(ctx, b.cb, func(ctx context.Context) ([]byte, error) {
		return b.next.Fetch(ctx, url)
	})
}

// LimitedFetcher paces calls into the next layer with a token bucket.
type LimitedFetcher struct {
	next    ContentFetcher
	limiter *ratelimit.Limiter
}

// NewLimitedFetcher wraps next with the given limiter.
func NewLimitedFetcher(next ContentFetcher, limiter *ratelimit.Limiter) *LimitedFetcher {
	return &LimitedFetcher{next: next, limiter: limiter}
}

func (l *LimitedFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := l.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	return l.next.Fetch(ctx, url)
}

// NewPipeline assembles the fixed decorator stack:
// limiter → breaker → retry → HTTP GET.
func NewPipeline(httpOpts HTTPOptions, retryCfg resilience.RetryConfig, cb *resilience.CircuitBreaker, limiter *ratelimit.Limiter) ContentFetcher {
	var f ContentFetcher = NewHTTPFetcher(httpOpts)
	f = NewRetryFetcher(f, retryCfg)
	f = NewBreakerFetcher(f, cb)
	f = NewLimitedFetcher(f, limiter)
	return f
}
