package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: attempts,
		Initial:     time.Millisecond,
		Cap:         4 * time.Millisecond,
		Retryable:   RetryableStatus,
	}
}

func newTestClient(t *testing.T, attempts int) *Client {
	t.Helper()
	c, err := New("holdings13f-test test@example.com", WithRetryPolicy(fastPolicy(attempts)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNewRequiresUserAgent(t *testing.T) {
	if _, err := New("  "); !errors.Is(err, ErrNoUserAgent) {
		t.Fatalf("got %v, want ErrNoUserAgent", err)
	}
}

func TestGetSendsUserAgent(t *testing.T) {
	var ua atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 3)
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "ok" {
		t.Errorf("body: got %q, want ok", body)
	}
	if got := ua.Load().(string); got != "holdings13f-test test@example.com" {
		t.Errorf("User-Agent: got %q", got)
	}
}

func TestGetRetriesTransientThenSucceeds(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		if n <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if n == 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestClient(t, 5)
	body, err := c.Get(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("body: got %q", body)
	}
	if got := atomic.LoadInt32(&hits); got != 4 {
		t.Errorf("hits: got %d, want 4", got)
	}
	if c.Requests() != 4 {
		t.Errorf("Requests: got %d, want 4", c.Requests())
	}
}

func TestGetSharedAcrossGoroutines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestClient(t, 1)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if _, err := c.Get(context.Background(), srv.URL); err != nil {
					t.Errorf("Get: %v", err)
				}
			}
		}()
	}
	wg.Wait()
	if c.Requests() != 40 {
		t.Errorf("Requests: got %d, want 40", c.Requests())
	}
}

func TestGetNotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestClient(t, 5)
	_, err := c.Get(context.Background(), srv.URL+"/missing")
	if !IsNotFound(err) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("hits: got %d, want 1", got)
	}
}

func TestGetExhaustedRetriesIsFatal(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(t, 3)
	_, err := c.Get(context.Background(), srv.URL)
	var fe *FatalError
	if !errors.As(err, &fe) {
		t.Fatalf("got %T %v, want *FatalError", err, err)
	}
	if fe.Attempts != 3 {
		t.Errorf("Attempts: got %d, want 3", fe.Attempts)
	}
	if fe.StatusCode != http.StatusBadGateway {
		t.Errorf("StatusCode: got %d", fe.StatusCode)
	}
	var te *TransientError
	if !errors.As(err, &te) {
		t.Error("fatal error should wrap the last transient error")
	}
	if got := atomic.LoadInt32(&hits); got != 3 {
		t.Errorf("hits: got %d, want 3", got)
	}
}

func TestGetOtherStatusIsFatalImmediately(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(t, 5)
	_, err := c.Get(context.Background(), srv.URL)
	if !IsFatal(err) {
		t.Fatalf("got %v, want fatal", err)
	}
	if IsNotFound(err) {
		t.Error("403 must not be reported as not found")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("hits: got %d, want 1", got)
	}
}

func TestGetCustomRetryablePredicate(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	p := fastPolicy(3)
	p.Retryable = func(status int) bool { return status == http.StatusForbidden }
	c, err := New("ua@example.com", WithRetryPolicy(p))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatalf("Get: %v", err)
	}
}

func TestGetCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newTestClient(t, 5)
	if _, err := c.Get(ctx, srv.URL); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"name":"x","size":3}`))
	}))
	defer srv.Close()

	var out struct {
		Name string `json:"name"`
		Size int    `json:"size"`
	}
	c := newTestClient(t, 2)
	if err := c.GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Name != "x" || out.Size != 3 {
		t.Errorf("got %+v", out)
	}

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>"))
	}))
	defer bad.Close()
	if err := c.GetJSON(context.Background(), bad.URL, &out); err == nil {
		t.Error("expected decode error")
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	p := RetryPolicy{Initial: 5 * time.Second, Cap: time.Second}.normalized()
	if p.MaxAttempts != 12 {
		t.Errorf("MaxAttempts: got %d, want 12", p.MaxAttempts)
	}
	if p.Cap != 5*time.Second {
		t.Errorf("Cap: got %v, want 5s", p.Cap)
	}
	if p.Retryable == nil || !p.Retryable(http.StatusGatewayTimeout) || p.Retryable(http.StatusNotFound) {
		t.Error("default retryable predicate not applied")
	}
}
