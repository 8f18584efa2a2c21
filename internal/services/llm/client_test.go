package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	base := []Option{WithSleeper(func(time.Duration) {})}
	return NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	}, append(base, opts...)...)
}

func completionBody(content string) string {
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	}
	encoded, _ := json.Marshal(payload)
	return string(encoded)
}

func TestCompleteJSONSendsPromptsAndAuth(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody(`{"steps":[]}`)))
	})

	content, err := client.CompleteJSON(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if content != `{"steps":[]}` {
		t.Fatalf("unexpected content: %q", content)
	}
	if gotPath != "/chat/completions" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
	format, _ := gotPayload["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json response format, got %v", gotPayload["response_format"])
	}
}

func TestCompleteTextOmitsResponseFormat(t *testing.T) {
	var gotPayload map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(completionBody("merged description")))
	})

	content, err := client.CompleteText(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteText: %v", err)
	}
	if content != "merged description" {
		t.Fatalf("unexpected content: %q", content)
	}
	if _, ok := gotPayload["response_format"]; ok {
		t.Fatal("expected response_format to be omitted for text completion")
	}
}

func TestDescribeImagesBuildsVisionPayload(t *testing.T) {
	var gotPayload struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type     string `json:"type"`
				Text     string `json:"text"`
				ImageURL *struct {
					URL string `json:"url"`
				} `json:"image_url"`
			} `json:"content"`
		} `json:"messages"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotPayload)
		_, _ = w.Write([]byte(completionBody("a settings screen")))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     server.URL,
		Model:       "text-model",
		VisionModel: "vision-model",
	}, WithSleeper(func(time.Duration) {}))

	content, err := client.DescribeImages(context.Background(), "describe this", []string{"https://cdn.example.com/frame.jpg"})
	if err != nil {
		t.Fatalf("DescribeImages: %v", err)
	}
	if content != "a settings screen" {
		t.Fatalf("unexpected content: %q", content)
	}
	if gotPayload.Model != "vision-model" {
		t.Fatalf("expected vision model, got %q", gotPayload.Model)
	}
	parts := gotPayload.Messages[0].Content
	if len(parts) != 2 || parts[0].Type != "text" || parts[1].Type != "image_url" {
		t.Fatalf("unexpected content parts: %+v", parts)
	}
	if parts[1].ImageURL == nil || parts[1].ImageURL.URL != "https://cdn.example.com/frame.jpg" {
		t.Fatalf("unexpected image url: %+v", parts[1].ImageURL)
	}
}

func TestRetryOnServerErrorHonorsRetryAfter(t *testing.T) {
	var calls atomic.Int64
	var delays []time.Duration
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(completionBody(`{"ok":true}`)))
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Model:   "test-model",
	}, WithSleeper(func(d time.Duration) { delays = append(delays, d) }))

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
	if len(delays) != 1 || delays[0] != 2*time.Second {
		t.Fatalf("expected single 2s delay, got %v", delays)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	var calls atomic.Int64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	if _, err := client.CompleteJSON(context.Background(), "system", "user"); err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected single call, got %d", calls.Load())
	}
}

func TestDecodeLLMJSONHandlesCodeFences(t *testing.T) {
	var parsed struct {
		Title string `json:"title"`
	}
	content := "```json\n{\"title\":\"Install the app\"}\n```"
	if err := DecodeLLMJSON(content, &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if parsed.Title != "Install the app" {
		t.Fatalf("unexpected title: %q", parsed.Title)
	}
}

func TestDecodeLLMJSONExtractsEmbeddedObject(t *testing.T) {
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(`Here is the result: {"ok":true}. Done.`, &parsed); err != nil {
		t.Fatalf("DecodeLLMJSON: %v", err)
	}
	if !parsed.OK {
		t.Fatal("expected ok=true")
	}
}

func TestDecodeLLMJSONEmptyPayload(t *testing.T) {
	var parsed any
	if err := DecodeLLMJSON("  ", &parsed); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
