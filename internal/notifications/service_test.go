package notifications

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vid2doc/internal/queue"
)

type fakeStore struct {
	job *queue.Job
}

func (f *fakeStore) GetByID(context.Context, string) (*queue.Job, error) {
	return f.job, nil
}

func completedJob() *queue.Job {
	return &queue.Job{
		ID:         "job-1",
		Status:     queue.StatusCompleted,
		Progress:   queue.Progress{Stage: "completed", Percent: 100, Message: "Video processed"},
		ResultJSON: `{"title":"Export a report"}`,
	}
}

func TestNotifyDeliversSnapshot(t *testing.T) {
	var gotSecret string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer server.Close()

	var sleeps []time.Duration
	service := NewService(&fakeStore{job: completedJob()}, nil, WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }))

	err := service.Notify(context.Background(), "job-1", WebhookConfig{URL: server.URL, Secret: "s3cret"})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sleeps) != 0 {
		t.Fatalf("no sleeps expected on first-try success: %v", sleeps)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("secret header = %q", gotSecret)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if payload["jobId"] != "job-1" || payload["status"] != "completed" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if result, ok := payload["result"].(map[string]any); !ok || result["title"] != "Export a report" {
		t.Fatalf("result not embedded as JSON: %v", payload["result"])
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
		}
	}))
	defer server.Close()

	var sleeps []time.Duration
	service := NewService(&fakeStore{job: completedJob()}, nil, WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }))

	if err := service.Notify(context.Background(), "job-1", WebhookConfig{URL: server.URL}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("unexpected backoff: %v", sleeps)
	}
}

func TestNotifyAbandonsAfterRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	var sleeps []time.Duration
	service := NewService(&fakeStore{job: completedJob()}, nil, WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) }))

	err := service.Notify(context.Background(), "job-1", WebhookConfig{URL: server.URL})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if attempts != 4 {
		t.Fatalf("expected 4 attempts (1 initial + 3 retries), got %d", attempts)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sleeps) != len(want) {
		t.Fatalf("unexpected backoff: %v", sleeps)
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Fatalf("backoff %d = %v, want %v", i, sleeps[i], want[i])
		}
	}
}

func TestNotifyWithoutURLIsNoop(t *testing.T) {
	service := NewService(&fakeStore{}, nil)
	if err := service.Notify(context.Background(), "job-1", WebhookConfig{}); err != nil {
		t.Fatalf("Notify without URL should be a no-op, got %v", err)
	}
}
