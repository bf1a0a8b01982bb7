package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
	"github.com/custodia-labs/docdex/internal/logger"
)

// acceptHeader advertises Markdown so servers may content-negotiate it.
const acceptHeader = "text/markdown, text/html;q=0.9, */*;q=0.8"

// browserHeaders is the realistic header set sent with every request.
var browserHeaders = map[string]string{
	"User-Agent":      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Accept":          acceptHeader,
	"Accept-Language": "en-US,en;q=0.9",
	"Cache-Control":   "no-cache",
}

// retryableStatuses are retried with exponential backoff.
var retryableStatuses = map[int]bool{
	http.StatusRequestTimeout:      true, // 408
	http.StatusTooEarly:            true, // 425
	http.StatusTooManyRequests:     true, // 429
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// perHostRate paces requests politely per host.
const perHostRate = rate.Limit(20)

// HTTPConfig tunes the HTTP fetcher.
type HTTPConfig struct {
	// MaxRetries bounds retry attempts after the first try.
	MaxRetries int

	// BaseDelay is the first backoff delay, doubled per attempt.
	BaseDelay time.Duration

	// Timeout bounds a single request when FetchOptions carries none.
	Timeout time.Duration
}

// HTTP fetches documents over HTTP and HTTPS with retry, conditional
// requests and per-host pacing.
type HTTP struct {
	client *http.Client
	cfg    HTTPConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ driven.Fetcher = (*HTTP)(nil)

// NewHTTP creates the HTTP fetcher.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 6
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTP{
		client: &http.Client{
			// Redirects are followed up to the net/http default cap of
			// ten; the landed URL is reported as FinalURL.
			Timeout: 0, // Per-request contexts carry the timeout.
		},
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
	}
}

// CanFetch reports whether the URL is HTTP or HTTPS.
func (f *HTTP) CanFetch(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Fetch retrieves the document, retrying transient failures.
func (f *HTTP) Fetch(ctx context.Context, rawURL string, opts driven.FetchOptions) (*driven.FetchResult, error) {
	return f.do(ctx, http.MethodGet, rawURL, opts)
}

// Probe performs a HEAD request returning only status and caching
// headers.
func (f *HTTP) Probe(ctx context.Context, rawURL string, opts driven.FetchOptions) (*driven.ProbeResult, error) {
	res, err := f.do(ctx, http.MethodHead, rawURL, opts)
	if err != nil {
		return nil, err
	}
	return &driven.ProbeResult{
		Status:       res.Status,
		ContentType:  res.ContentType,
		ETag:         res.ETag,
		LastModified: res.LastModified,
	}, nil
}

// do runs the retry loop around one attempt.
func (f *HTTP) do(ctx context.Context, method, rawURL string, opts driven.FetchOptions) (*driven.FetchResult, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchPermanent, URL: rawURL, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := f.backoff(attempt, lastErr)
			logger.Debug("retrying %s in %s (attempt %d/%d)", rawURL, delay, attempt, f.cfg.MaxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: ctx.Err()}
			}
		}

		result, err := f.attempt(ctx, method, rawURL, opts)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var fe *domain.FetchError
		if errors.As(err, &fe) && !fe.Retryable() {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: ctx.Err()}
		}
	}
	return nil, lastErr
}

// attempt performs a single request.
func (f *HTTP) attempt(ctx context.Context, method, rawURL string, opts driven.FetchOptions) (*driven.FetchResult, error) {
	if err := f.limiter(rawURL).Wait(ctx); err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = f.cfg.Timeout
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, rawURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchPermanent, URL: rawURL, Err: err}
	}

	for k, v := range browserHeaders {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if opts.IfNoneMatch != "" {
		req.Header.Set("If-None-Match", opts.IfNoneMatch)
	}
	if opts.IfModifiedSince != "" {
		req.Header.Set("If-Modified-Since", opts.IfModifiedSince)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if ferr := classifyStatus(rawURL, resp.StatusCode); ferr != nil {
		ferr.Err = retryAfterHint(resp)
		return nil, ferr
	}

	result := &driven.FetchResult{
		Status:       resp.StatusCode,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     resp.Request.URL.String(),
	}
	result.ContentType, result.Charset = parseContentType(resp.Header.Get("Content-Type"))

	if resp.StatusCode == http.StatusNotModified {
		result.NotModified = true
		return result, nil
	}

	if method == http.MethodHead {
		return result, nil
	}

	body, err := readBounded(resp.Body, opts.MaxSize)
	if err != nil {
		if errors.Is(err, errTooLarge) {
			return nil, &domain.FetchError{Kind: domain.FetchTooLarge, URL: rawURL, Status: resp.StatusCode}
		}
		return nil, &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Err: err}
	}
	result.Content = body

	if result.ContentType == "" {
		result.ContentType, _ = parseContentType(http.DetectContentType(body))
	}
	return result, nil
}

// classifyStatus maps an HTTP status onto a fetch error, nil for success.
func classifyStatus(rawURL string, status int) *domain.FetchError {
	switch {
	case status == http.StatusNotModified || (status >= 200 && status < 300):
		return nil
	case retryableStatuses[status]:
		return &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Status: status}
	case status == http.StatusNotFound || status == http.StatusGone:
		return &domain.FetchError{Kind: domain.FetchNotFound, URL: rawURL, Status: status}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.FetchError{Kind: domain.FetchUnauthorized, URL: rawURL, Status: status}
	case status >= 500:
		return &domain.FetchError{Kind: domain.FetchTransient, URL: rawURL, Status: status}
	default:
		return &domain.FetchError{Kind: domain.FetchPermanent, URL: rawURL, Status: status}
	}
}

// retryAfterError carries a server-requested delay through the retry loop.
type retryAfterError struct {
	delay time.Duration
}

func (e *retryAfterError) Error() string {
	return fmt.Sprintf("retry after %s", e.delay)
}

// retryAfterHint parses the Retry-After header, nil when absent.
func retryAfterHint(resp *http.Response) error {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return &retryAfterError{delay: time.Duration(secs) * time.Second}
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return &retryAfterError{delay: d}
		}
	}
	return nil
}

// backoff computes the delay before the given attempt, honouring a
// Retry-After hint when the server sent one.
func (f *HTTP) backoff(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.delay > 0 {
		return ra.delay
	}
	return f.cfg.BaseDelay * (1 << (attempt - 1))
}

// limiter returns the per-host rate limiter.
func (f *HTTP) limiter(rawURL string) *rate.Limiter {
	host := ""
	if u, err := url.Parse(rawURL); err == nil {
		host = u.Hostname()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[host]
	if !ok {
		l = rate.NewLimiter(perHostRate, int(perHostRate))
		f.limiters[host] = l
	}
	return l
}

// errTooLarge marks a body exceeding the configured maximum.
var errTooLarge = errors.New("document exceeds maximum size")

// readBounded reads the body, failing once it exceeds max bytes.
func readBounded(r io.Reader, max int) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	body, err := io.ReadAll(io.LimitReader(r, int64(max)+1))
	if err != nil {
		return nil, err
	}
	if len(body) > max {
		return nil, errTooLarge
	}
	return body, nil
}

// parseContentType splits a Content-Type header into MIME type and
// charset.
func parseContentType(header string) (string, string) {
	if header == "" {
		return "", ""
	}
	mt, params, err := mime.ParseMediaType(header)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(header, ";")[0])), ""
	}
	return mt, params["charset"]
}
