package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{
		BaseURL:      srv.URL + "/api/",
		Token:        "secret",
		Timeout:      time.Second,
		Retries:      2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client, srv
}

func TestListQueue(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queue" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2026-10-18" {
			t.Errorf("expected date 2026-10-18, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("expected bearer token, got %q", got)
		}
		_ = json.NewEncoder(w).Encode([]QueueEntry{
			{ID: "q1", PatientID: "pt1", PatientName: "Jeanne Martin", Status: "waiting"},
			{ID: "q2", PatientID: "pt2", PatientName: "Paul Durand", DoctorName: "Dr. X", Status: "in_treatment"},
		})
	})

	day := time.Date(2026, 10, 18, 15, 0, 0, 0, time.UTC)
	entries, err := client.ListQueue(context.Background(), day)
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(entries) != 2 || entries[1].DoctorName != "Dr. X" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestListQueueRetriesServerErrors(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	})

	entries, err := client.ListQueue(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ListQueue failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty queue, got %+v", entries)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
}

func TestListQueueStatusError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	})

	_, err := client.ListQueue(context.Background(), time.Now())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Code != http.StatusForbidden || statusErr.Body != "forbidden" {
		t.Fatalf("unexpected status error: %+v", statusErr)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "not a url"}, zerolog.Nop()); err == nil {
		t.Fatal("expected invalid base URL to fail")
	}
}
