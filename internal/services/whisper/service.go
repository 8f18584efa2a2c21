// Package whisper uploads extracted audio to an OpenAI-compatible
// transcription endpoint and returns timed segments.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const defaultRequestTimeout = 5 * time.Minute

// Config captures the runtime settings required to talk to the transcription API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Segment is a timed slice of the transcript.
type Segment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Result contains the full transcription response.
type Result struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Duration float64   `json:"duration"`
	Segments []Segment `json:"segments"`
}

// Service provides audio transcription via the configured endpoint.
type Service struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the service.
type Option func(*Service)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewService creates a transcription service with the given configuration.
func NewService(cfg Config, opts ...Option) *Service {
	timeout := defaultRequestTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	service := &Service{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimSpace(cfg.BaseURL),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.cfg.BaseURL == "" {
		service.cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	return service
}

// Model returns the configured model name for logging.
func (s *Service) Model() string {
	return s.cfg.Model
}

// TranscribeFile uploads the audio file at path and returns the timed
// transcription. The endpoint is asked for verbose_json so segment timestamps
// survive the round trip.
func (s *Service) TranscribeFile(ctx context.Context, path string) (Result, error) {
	var result Result
	if strings.TrimSpace(path) == "" {
		return result, errors.New("transcribe: audio path required")
	}
	if s.cfg.APIKey == "" {
		return result, errors.New("transcribe: api key required")
	}

	file, err := os.Open(path)
	if err != nil {
		return result, fmt.Errorf("transcribe: open audio: %w", err)
	}
	defer file.Close()

	return s.Transcribe(ctx, file, filepath.Base(path))
}

// Transcribe uploads audio from r under the given filename.
func (s *Service) Transcribe(ctx context.Context, r io.Reader, filename string) (Result, error) {
	var result Result
	if s.cfg.APIKey == "" {
		return result, errors.New("transcribe: api key required")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return result, fmt.Errorf("transcribe: create multipart file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return result, fmt.Errorf("transcribe: copy audio data: %w", err)
	}
	if err := writer.WriteField("model", s.cfg.Model); err != nil {
		return result, fmt.Errorf("transcribe: write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return result, fmt.Errorf("transcribe: write response format: %w", err)
	}
	if err := writer.Close(); err != nil {
		return result, fmt.Errorf("transcribe: close multipart writer: %w", err)
	}

	endpoint, err := url.JoinPath(s.cfg.BaseURL, "audio", "transcriptions")
	if err != nil {
		return result, fmt.Errorf("transcribe: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return result, fmt.Errorf("transcribe: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return result, fmt.Errorf("transcribe: http error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return result, decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, fmt.Errorf("transcribe: decode response: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	for i := range result.Segments {
		result.Segments[i].Text = strings.TrimSpace(result.Segments[i].Text)
	}
	return result, nil
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Errorf("transcribe: api error: status %d type %s message %s", resp.StatusCode, apiErr.Error.Type, apiErr.Error.Message)
	}
	return fmt.Errorf("transcribe: api error: status %d body %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
