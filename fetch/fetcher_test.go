package fetch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestFetchSuccess(t *testing.T) {
	content := "test artifact content"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Length", "21")
		w.Header().Set("ETag", `"abc123"`)
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	f := NewFetcher()
	dl, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = dl.Body.Close() }()

	if dl.Size != 21 {
		t.Errorf("Size = %d, want 21", dl.Size)
	}
	if dl.ContentType != "application/zip" {
		t.Errorf("ContentType = %q, want %q", dl.ContentType, "application/zip")
	}
	if dl.ETag != `"abc123"` {
		t.Errorf("ETag = %q, want %q", dl.ETag, `"abc123"`)
	}

	body, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(body) != content {
		t.Errorf("body = %q, want %q", string(body), content)
	}
}

func TestFetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher()
	_, err := f.Fetch(context.Background(), server.URL+"/missing.pkg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Fetch = %v, want ErrNotFound", err)
	}
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.StatusCode != http.StatusNotFound {
		t.Errorf("Fetch = %v, want *HTTPError with status 404", err)
	}
}

func TestFetchRateLimitRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	f := NewFetcher(WithBaseDelay(10 * time.Millisecond))
	dl, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = dl.Body.Close() }()

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFetchServerErrorRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	f := NewFetcher(WithBaseDelay(10 * time.Millisecond))
	dl, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = dl.Body.Close() }()

	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestFetchMaxRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f := NewFetcher(WithMaxRetries(2), WithBaseDelay(10*time.Millisecond))
	_, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if err == nil {
		t.Error("expected error after max retries")
	}
	if !errors.Is(err, ErrUpstreamDown) {
		t.Errorf("expected ErrUpstreamDown, got %v", err)
	}

	// Initial attempt + 2 retries = 3 total
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("success"))
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	f := NewFetcher()
	_, err := f.Fetch(ctx, server.URL+"/test.pkg")
	if err == nil {
		t.Error("expected error on context cancellation")
	}
}

func TestFetchUnknownSize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Chunked encoding, no Content-Length
		w.Header().Set("Transfer-Encoding", "chunked")
		_, _ = w.Write([]byte("chunk1"))
	}))
	defer server.Close()

	f := NewFetcher()
	dl, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = dl.Body.Close() }()

	if dl.Size != -1 {
		t.Errorf("Size = %d, want -1 for unknown", dl.Size)
	}
}

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("Method = %s, want HEAD", r.Method)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Length", "12345")
	}))
	defer server.Close()

	f := NewFetcher()
	size, contentType, err := f.Head(context.Background(), server.URL+"/test.pkg")
	if err != nil {
		t.Fatalf("Head failed: %v", err)
	}

	if size != 12345 {
		t.Errorf("size = %d, want 12345", size)
	}
	if contentType != "application/octet-stream" {
		t.Errorf("contentType = %q, want %q", contentType, "application/octet-stream")
	}
}

func TestHeadNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewFetcher()
	_, _, err := f.Head(context.Background(), server.URL+"/missing.pkg")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Head = %v, want ErrNotFound", err)
	}
}

func TestFetchUserAgent(t *testing.T) {
	var receivedUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedUA = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(WithUserAgent("custom-agent/2.0"))
	dl, _ := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if dl != nil {
		_ = dl.Body.Close()
	}

	if receivedUA != "custom-agent/2.0" {
		t.Errorf("User-Agent = %q, want %q", receivedUA, "custom-agent/2.0")
	}
}

func TestFetchLargeArtifact(t *testing.T) {
	// 1MB archive
	content := strings.Repeat("x", 1024*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(content))
	}))
	defer server.Close()

	f := NewFetcher()
	dl, err := f.Fetch(context.Background(), server.URL+"/large.pkg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	defer func() { _ = dl.Body.Close() }()

	body, err := io.ReadAll(dl.Body)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(body) != len(content) {
		t.Errorf("body length = %d, want %d", len(body), len(content))
	}
}

func TestFetchClientErrorNotRetried(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("forbidden"))
	}))
	defer server.Close()

	f := NewFetcher(WithBaseDelay(time.Millisecond))
	_, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("Fetch = %v, want *HTTPError", err)
	}
	if httpErr.StatusCode != http.StatusForbidden || httpErr.Body != "forbidden" {
		t.Errorf("HTTPError = %+v", httpErr)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestBackoffHonorsRetryAfter(t *testing.T) {
	f := NewFetcher(WithBaseDelay(10 * time.Millisecond))

	if d := f.backoff(1, &HTTPError{StatusCode: 429, RetryAfter: 2 * time.Second}); d != 2*time.Second {
		t.Errorf("backoff with Retry-After = %v, want 2s", d)
	}
	d := f.backoff(2, errors.New("x"))
	if d < 20*time.Millisecond || d > 22*time.Millisecond {
		t.Errorf("backoff(2) = %v, want 20ms plus at most 10%% jitter", d)
	}
}

func TestFetchAuthFunc(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher(WithAuthFunc(func(string) (string, string) { return "Authorization", "Bearer t0ken" }))
	dl, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	_ = dl.Body.Close()
	if got != "Bearer t0ken" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer t0ken")
	}
}

func TestReadAllLimit(t *testing.T) {
	tests := []struct {
		name    string
		size    int64
		body    string
		limit   int64
		wantErr bool
	}{
		{"within limit", 5, "hello", 10, false},
		{"declared too large", 50, "hello", 10, true},
		{"undeclared too large", -1, strings.Repeat("x", 11), 10, true},
		{"no limit", -1, strings.Repeat("x", 100), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &Download{URL: "u", Size: tt.size, Body: io.NopCloser(strings.NewReader(tt.body))}
			data, err := ReadAll(d, tt.limit)
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Errorf("ReadAll err = %v, want ErrTooLarge", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if string(data) != tt.body {
				t.Errorf("ReadAll = %q, want %q", data, tt.body)
			}
		})
	}
}

func TestFetchDNSCaching(t *testing.T) {
	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	f := NewFetcher()

	// Make multiple requests to the same host
	for i := range 3 {
		dl, err := f.Fetch(context.Background(), server.URL+"/test.pkg")
		if err != nil {
			t.Fatalf("Fetch %d failed: %v", i+1, err)
		}
		_ = dl.Body.Close()
	}

	if requestCount != 3 {
		t.Errorf("requestCount = %d, want 3", requestCount)
	}
}
