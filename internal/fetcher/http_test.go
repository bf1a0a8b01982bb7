package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/docdex/internal/core/domain"
	"github.com/custodia-labs/docdex/internal/core/ports/driven"
)

func testHTTP() *HTTP {
	return NewHTTP(HTTPConfig{MaxRetries: 2, BaseDelay: time.Millisecond, Timeout: 5 * time.Second})
}

func TestHTTP_FetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Accept"), "text/markdown")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("<html><body>hi</body></html>"))
	}))
	defer srv.Close()

	res, err := testHTTP().Fetch(context.Background(), srv.URL, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "text/html", res.ContentType)
	assert.Equal(t, "utf-8", res.Charset)
	assert.Equal(t, `"v1"`, res.ETag)
	assert.Equal(t, 200, res.Status)
	assert.Contains(t, string(res.Content), "hi")
}

func TestHTTP_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := testHTTP().Fetch(context.Background(), srv.URL, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "ok", string(res.Content))
}

func TestHTTP_PermanentErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	_, err := testHTTP().Fetch(context.Background(), srv.URL, driven.FetchOptions{})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchPermanent, fe.Kind)
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTP_NotFoundKind(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := testHTTP().Fetch(context.Background(), srv.URL+"/gone", driven.FetchOptions{})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchNotFound, fe.Kind)
}

func TestHTTP_ConditionalNotModified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		_, _ = w.Write([]byte("body"))
	}))
	defer srv.Close()

	res, err := testHTTP().Fetch(context.Background(), srv.URL, driven.FetchOptions{IfNoneMatch: `"v1"`})
	require.NoError(t, err)
	assert.True(t, res.NotModified)
	assert.Empty(t, res.Content)
}

func TestHTTP_TooLargeSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 2048))
	}))
	defer srv.Close()

	_, err := testHTTP().Fetch(context.Background(), srv.URL, driven.FetchOptions{MaxSize: 1024})
	var fe *domain.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, domain.FetchTooLarge, fe.Kind)
}

func TestHTTP_RetryAfterHintHonoured(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	res, err := testHTTP().Fetch(context.Background(), srv.URL, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(res.Content))
}

func TestHTTP_ProbeReturnsHeadersOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Content-Type", "text/markdown")
		w.Header().Set("ETag", `"m1"`)
	}))
	defer srv.Close()

	probe, err := testHTTP().Probe(context.Background(), srv.URL, driven.FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 200, probe.Status)
	assert.Equal(t, "text/markdown", probe.ContentType)
	assert.Equal(t, `"m1"`, probe.ETag)
}

func TestHTTP_CancellationAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := testHTTP().Fetch(ctx, srv.URL, driven.FetchOptions{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestHTTP_CanFetch(t *testing.T) {
	f := testHTTP()
	assert.True(t, f.CanFetch("https://example.com/docs"))
	assert.True(t, f.CanFetch("http://example.com"))
	assert.False(t, f.CanFetch("file:///tmp/x"))
	assert.False(t, f.CanFetch("/local/path"))
}
