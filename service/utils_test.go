package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestPermanent(t *testing.T) {
	err := fmt.Errorf("Permanent error")
	if Temporary(err) {
		t.Fail()
	}
	err = &url.Error{Err: err}
	if Temporary(err) {
		t.Fail()
	}
}

func TestTemporary(t *testing.T) {
	err := MakeTemporary(fmt.Errorf("Temporary error"))
	if !Temporary(err) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", err)
	if !Temporary(err) {
		t.Fail()
	}
	if !Temporary(context.Canceled) {
		t.Fail()
	}
	if !Temporary(context.DeadlineExceeded) {
		t.Fail()
	}
	err = fmt.Errorf("Warp: %w", &url.Error{Err: err})
	if !Temporary(err) {
		t.Fail()
	}
}

func TestRetriableRetries(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	err := Retriable(ctx, func() error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("not yet")
		}
		return nil
	}, time.Millisecond, 5)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}

	attempts = 0
	err = Retriable(ctx, func() error {
		attempts++
		return fmt.Errorf("still failing")
	}, time.Millisecond, 3)
	if err == nil {
		t.Errorf("expected an error after exhausting the tries")
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetriableCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	attempts := 0
	err := Retriable(ctx, func() error {
		attempts++
		return fmt.Errorf("failing")
	}, time.Minute, 3)
	if err == nil {
		t.Fatalf("expected an error on canceled context")
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if !Temporary(err) {
		t.Errorf("cancellation error must be temporary: %v", err)
	}
}

func TestGetBodyRetry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			fmt.Fprint(w, "payload")
		case "/missing":
			http.Error(w, "not here", http.StatusNotFound)
		default:
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	body, err := GetBodyRetry(srv.URL+"/ok", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "payload" {
		t.Errorf("expected body 'payload', got %q", body)
	}

	if _, err = GetBodyRetry(srv.URL+"/missing", 3); err == nil {
		t.Errorf("expected an error on 404")
	}

	if _, err = GetBodyRetry(srv.URL+"/unavailable", 0); err == nil {
		t.Errorf("expected an error on 503")
	}
}

func TestStringSet(t *testing.T) {
	ss := StringSet{}
	ss.Push("a")
	ss.Push("b")
	ss.Push("a")
	if len(ss) != 2 || !ss.Exists("a") || !ss.Exists("b") {
		t.Errorf("expected {a, b}, got %v", ss.Slice())
	}
	ss.Pop("a")
	if ss.Exists("a") {
		t.Errorf("a not removed")
	}
}
