package merge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"vid2doc/internal/guide"
	"vid2doc/internal/logging"
	"vid2doc/internal/media"
	"vid2doc/internal/planner"
	"vid2doc/internal/services/s3"
)

// TextClient captures the LLM surface used for the merged description.
type TextClient interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Service downloads step clips, concatenates them, and produces the merged
// step record.
type Service struct {
	processor  *media.Processor
	uploader   s3.Uploader
	llm        TextClient
	httpClient *http.Client
	workRoot   string
	logger     *slog.Logger
}

// Option customizes the service.
type Option func(*Service)

// WithHTTPClient sets the client used to download clips (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// NewService wires a merge service. workRoot holds per-session scratch
// directories and must be writable.
func NewService(processor *media.Processor, uploader s3.Uploader, llm TextClient, workRoot string, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	service := &Service{
		processor:  processor,
		uploader:   uploader,
		llm:        llm,
		httpClient: &http.Client{},
		workRoot:   workRoot,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// MergeSteps merges the given steps, already sorted and validated by the
// caller, into one step. The scratch directory is removed whether the merge
// succeeds or fails. Any clip download failure aborts the whole merge.
func (s *Service) MergeSteps(ctx context.Context, steps []guide.ProcessedStep, projectID, sessionID string) (guide.ProcessedStep, error) {
	if len(steps) == 0 {
		return guide.ProcessedStep{}, errors.New("merge: no steps given")
	}

	sessionDir := filepath.Join(s.workRoot, sessionID)
	if err := os.MkdirAll(sessionDir, 0o755); err != nil {
		return guide.ProcessedStep{}, fmt.Errorf("merge: create session dir: %w", err)
	}
	defer os.RemoveAll(sessionDir)

	clipPaths := make([]string, 0, len(steps))
	stampParts := make([]string, 0, len(steps))
	for _, step := range steps {
		stamp := strconv.FormatFloat(step.Timestamp, 'f', -1, 64)
		stampParts = append(stampParts, stamp)
		clipPath := filepath.Join(sessionDir, "video_"+stamp+".mp4")
		if err := s.downloadClip(ctx, step.VideoPath, clipPath); err != nil {
			return guide.ProcessedStep{}, fmt.Errorf("merge: download clip for step %d: %w", step.SerialNumber, err)
		}
		clipPaths = append(clipPaths, clipPath)
	}

	mergedName := "video_" + strings.Join(stampParts, "_")
	mergedPath := filepath.Join(sessionDir, mergedName+".mp4")

	userPrompt, err := planner.BuildMergeUserPrompt(formatStepDescriptions(steps))
	if err != nil {
		return guide.ProcessedStep{}, fmt.Errorf("merge: %w", err)
	}
	description, err := s.llm.CompleteText(ctx, planner.MergeSummarySystemPrompt, userPrompt)
	if err != nil {
		return guide.ProcessedStep{}, fmt.Errorf("merge: summarize descriptions: %w", err)
	}

	if err := s.processor.Concat(ctx, clipPaths, mergedPath); err != nil {
		return guide.ProcessedStep{}, fmt.Errorf("merge: %w", err)
	}

	url, err := s.uploader.UploadFile(ctx, path.Join(projectID, "merged", mergedName+".mp4"), mergedPath)
	if err != nil {
		return guide.ProcessedStep{}, fmt.Errorf("merge: upload merged clip: %w", err)
	}

	totalDuration := 0.0
	for _, step := range steps {
		totalDuration += step.VideoDuration
	}

	first := steps[0]
	return guide.ProcessedStep{
		SerialNumber:  first.SerialNumber,
		Title:         first.Title,
		Timestamp:     first.Timestamp,
		Description:   strings.TrimSpace(description),
		FramePath:     first.FramePath,
		VideoPath:     url,
		VideoDuration: totalDuration,
	}, nil
}

func (s *Service) downloadClip(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// formatStepDescriptions renders the step descriptions as the XML fragment
// the merge prompt expects.
func formatStepDescriptions(steps []guide.ProcessedStep) string {
	var b strings.Builder
	b.WriteString("<steps>\n")
	for _, step := range steps {
		b.WriteString("  <step>\n")
		fmt.Fprintf(&b, "    <timestamp>%s</timestamp>\n", strconv.FormatFloat(step.Timestamp, 'f', -1, 64))
		fmt.Fprintf(&b, "    <description>%s</description>\n", step.Description)
		b.WriteString("  </step>\n")
	}
	b.WriteString("</steps>")
	return b.String()
}
