package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestLookupWithRetryRecoversFromRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"status":"OK","nome":"MERCADO EXEMPLO LTDA"}`))
	}))
	defer srv.Close()

	result := newTestClient(srv).LookupWithRetry(context.Background(), "11222333000181", fastRetry())
	if result.Status != LookupOk {
		t.Fatalf("Status = %v, want LookupOk (err=%v)", result.Status, result.Err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}

func TestLookupWithRetryNotFoundIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	result := newTestClient(srv).LookupWithRetry(context.Background(), "11222333000181", fastRetry())
	if result.Status != LookupNotFound {
		t.Fatalf("Status = %v, want LookupNotFound", result.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
}

func TestLookupWithRetryInvalidTaxIdIsTerminal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	result := newTestClient(srv).LookupWithRetry(context.Background(), "11111111111111", fastRetry())
	if !errors.Is(result.Err, ErrInvalidTaxId) {
		t.Fatalf("Err = %v, want ErrInvalidTaxId", result.Err)
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("calls = %d, want 0", got)
	}
}

func TestLookupWithRetryExhaustsAttempts(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	result := newTestClient(srv).LookupWithRetry(context.Background(), "11222333000181", fastRetry())
	if result.Status != LookupRateLimited {
		t.Fatalf("Status = %v, want LookupRateLimited", result.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("calls = %d, want 3", got)
	}
}
