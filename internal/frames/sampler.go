package frames

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"vid2doc/internal/logging"
	"vid2doc/internal/services/s3"
)

const (
	defaultSampleInterval      = 1.0
	defaultMaxSampledFrames    = 100
	defaultSimilarityThreshold = 0.1
	defaultSampleWallClock     = 5 * time.Minute
)

// frameDescriptionPrompt asks the vision model for a caption of one still.
const frameDescriptionPrompt = "Describe the on-screen action in this frame in one short sentence. Focus on what the user is doing, not visual styling."

// Describer captures the vision-model surface the sampler needs.
type Describer interface {
	DescribeImages(ctx context.Context, prompt string, imageURLs []string) (string, error)
}

// frameSource is the media surface the sampler walks.
type frameSource interface {
	Duration(ctx context.Context, path string) (float64, error)
	ExtractFrame(ctx context.Context, videoPath string, offsetSeconds float64, width, height int, outputPath string) error
}

// SamplerOptions tunes interval sampling and duplicate rejection. MaxDuration
// caps the wall clock of a whole sampling pass, not just one ffmpeg call.
type SamplerOptions struct {
	IntervalSeconds     float64
	MaxFrames           int
	SimilarityThreshold float64
	Width               int
	Height              int
	MaxDuration         time.Duration
}

func (o SamplerOptions) withDefaults() SamplerOptions {
	if o.IntervalSeconds <= 0 {
		o.IntervalSeconds = defaultSampleInterval
	}
	if o.MaxFrames <= 0 {
		o.MaxFrames = defaultMaxSampledFrames
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = defaultSimilarityThreshold
	}
	if o.Width <= 0 {
		o.Width = defaultFrameWidth
	}
	if o.Height <= 0 {
		o.Height = defaultFrameHeight
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = defaultSampleWallClock
	}
	return o
}

// SampledFrame is one kept still from an interval sampling pass.
type SampledFrame struct {
	Timestamp   float64
	Path        string
	URL         string
	Description string
}

// Sampler extracts stills at a fixed interval and keeps only frames whose
// perceptual hash differs enough from everything already kept.
type Sampler struct {
	processor frameSource
	uploader  s3.Uploader
	describer Describer
	opts      SamplerOptions
	logger    *slog.Logger
}

// NewSampler builds a Sampler. Uploader and describer may be nil when the
// caller only wants local frames.
func NewSampler(processor frameSource, uploader s3.Uploader, describer Describer, opts SamplerOptions, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sampler{
		processor: processor,
		uploader:  uploader,
		describer: describer,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// Sample walks the video at the configured interval and writes distinct frames
// into outputDir. Near duplicates are deleted as soon as they are detected.
// The pass is abandoned once MaxDuration of wall clock has elapsed.
func (s *Sampler) Sample(ctx context.Context, videoPath, outputDir string) ([]SampledFrame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.MaxDuration)
	defer cancel()

	duration, err := s.processor.Duration(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("sample frames: %w", err)
	}

	var kept []SampledFrame
	var keptHashes []FrameHash
	for timestamp := 0.0; timestamp < duration && len(kept) < s.opts.MaxFrames; timestamp += s.opts.IntervalSeconds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		framePath := filepath.Join(outputDir, "frame_"+formatStamp(timestamp)+".jpg")
		if err := s.processor.ExtractFrame(ctx, videoPath, timestamp, s.opts.Width, s.opts.Height, framePath); err != nil {
			s.logger.Warn("sample extraction failed", "timestamp", timestamp, "error", err)
			continue
		}
		hash, err := HashFile(framePath)
		if err != nil {
			s.logger.Warn("frame hash failed", "timestamp", timestamp, "error", err)
			os.Remove(framePath)
			continue
		}
		if !hash.distinctFrom(keptHashes, s.opts.SimilarityThreshold) {
			os.Remove(framePath)
			continue
		}
		kept = append(kept, SampledFrame{Timestamp: timestamp, Path: framePath})
		keptHashes = append(keptHashes, hash)
	}
	return kept, nil
}

// Describe uploads the kept frames and fills in a vision-model caption for
// each. A failed caption leaves the description empty but keeps the frame.
func (s *Sampler) Describe(ctx context.Context, keyPrefix string, samples []SampledFrame) ([]SampledFrame, error) {
	if s.uploader == nil {
		return nil, fmt.Errorf("describe frames: no uploader configured")
	}
	described := make([]SampledFrame, 0, len(samples))
	for _, sample := range samples {
		key := path.Join(keyPrefix, "samples", filepath.Base(sample.Path))
		url, err := s.uploader.UploadFile(ctx, key, sample.Path)
		if err != nil {
			return nil, fmt.Errorf("describe frames: upload %s: %w", sample.Path, err)
		}
		sample.URL = url
		if s.describer != nil {
			description, err := s.describer.DescribeImages(ctx, frameDescriptionPrompt, []string{url})
			if err != nil {
				s.logger.Warn("frame description failed", "timestamp", sample.Timestamp, "error", err)
			} else {
				sample.Description = strings.TrimSpace(description)
			}
		}
		described = append(described, sample)
	}
	return described, nil
}
