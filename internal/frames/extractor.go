package frames

import (
	"context"
	"log/slog"
	"math"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"vid2doc/internal/logging"
	"vid2doc/internal/media"
	"vid2doc/internal/services/s3"
)

const (
	defaultFrameWidth        = 1280
	defaultFrameHeight       = 720
	defaultFrameOffset       = 4
	defaultClipSeconds       = 6
	defaultUploadConcurrency = 4
)

// Options tunes still and clip extraction.
type Options struct {
	Width                int
	Height               int
	FrameOffsetSeconds   float64
	ClipSeconds          float64
	MaxConcurrentUploads int
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = defaultFrameWidth
	}
	if o.Height <= 0 {
		o.Height = defaultFrameHeight
	}
	if o.FrameOffsetSeconds <= 0 {
		o.FrameOffsetSeconds = defaultFrameOffset
	}
	if o.ClipSeconds <= 0 {
		o.ClipSeconds = defaultClipSeconds
	}
	if o.MaxConcurrentUploads <= 0 {
		o.MaxConcurrentUploads = defaultUploadConcurrency
	}
	return o
}

// Clip points at an uploaded video segment.
type Clip struct {
	URL      string
	Duration float64
}

// Extractor produces per-step media and ships it to object storage. A failed
// extraction for one timestamp never aborts the batch.
type Extractor struct {
	processor *media.Processor
	uploader  s3.Uploader
	opts      Options
	logger    *slog.Logger
}

// NewExtractor wires an Extractor around the media processor and uploader.
func NewExtractor(processor *media.Processor, uploader s3.Uploader, opts Options, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{
		processor: processor,
		uploader:  uploader,
		opts:      opts.withDefaults(),
		logger:    logger,
	}
}

// uploadItem is one extracted artifact awaiting upload.
type uploadItem struct {
	timestamp float64
	key       string
	localPath string
	duration  float64
}

// ExtractFrames grabs a still for each timestamp and returns uploaded URLs
// keyed by timestamp. The still is sampled a few seconds after the timestamp
// since narration usually runs slightly ahead of the action on screen.
func (e *Extractor) ExtractFrames(ctx context.Context, videoPath, workDir, keyPrefix string, timestamps []float64) map[float64]string {
	var pending []uploadItem
	for _, timestamp := range sortedTimestamps(timestamps) {
		stamp := formatStamp(timestamp)
		localPath := filepath.Join(workDir, "frame_"+stamp+".jpg")
		err := e.processor.ExtractFrame(ctx, videoPath, timestamp+e.opts.FrameOffsetSeconds, e.opts.Width, e.opts.Height, localPath)
		if err != nil {
			e.logger.Warn("frame extraction failed", "timestamp", timestamp, "error", err)
			continue
		}
		pending = append(pending, uploadItem{
			timestamp: timestamp,
			key:       path.Join(keyPrefix, "frames", "frame_"+stamp+".jpg"),
			localPath: localPath,
		})
	}

	frames := make(map[float64]string, len(pending))
	e.uploadAll(ctx, pending, func(item uploadItem, url string) {
		frames[item.timestamp] = url
	})
	return frames
}

// ExtractClips cuts a short segment starting at each timestamp and returns
// uploaded clips keyed by timestamp.
func (e *Extractor) ExtractClips(ctx context.Context, videoPath, workDir, keyPrefix string, timestamps []float64) map[float64]Clip {
	var pending []uploadItem
	for _, timestamp := range sortedTimestamps(timestamps) {
		start := math.Max(0, timestamp)
		duration := timestamp + e.opts.ClipSeconds - start
		stamp := formatStamp(timestamp)
		localPath := filepath.Join(workDir, "video_"+stamp+".mp4")
		if err := e.processor.ExtractClip(ctx, videoPath, start, duration, localPath); err != nil {
			e.logger.Warn("clip extraction failed", "timestamp", timestamp, "error", err)
			continue
		}
		pending = append(pending, uploadItem{
			timestamp: timestamp,
			key:       path.Join(keyPrefix, "videos", "video_"+stamp+".mp4"),
			localPath: localPath,
			duration:  duration,
		})
	}

	clips := make(map[float64]Clip, len(pending))
	e.uploadAll(ctx, pending, func(item uploadItem, url string) {
		clips[item.timestamp] = Clip{URL: url, Duration: item.duration}
	})
	return clips
}

// uploadAll ships the extracted artifacts with bounded concurrency. keep is
// called under a lock for each successful upload; failures are logged and the
// item dropped.
func (e *Extractor) uploadAll(ctx context.Context, items []uploadItem, keep func(item uploadItem, url string)) {
	sem := make(chan struct{}, e.opts.MaxConcurrentUploads)
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(item uploadItem) {
			defer wg.Done()
			defer func() { <-sem }()
			url, err := e.uploader.UploadFile(ctx, item.key, item.localPath)
			if err != nil {
				e.logger.Warn("artifact upload failed", "timestamp", item.timestamp, "key", item.key, "error", err)
				return
			}
			mu.Lock()
			keep(item, url)
			mu.Unlock()
		}(item)
	}
	wg.Wait()
}

func sortedTimestamps(timestamps []float64) []float64 {
	sorted := make([]float64, len(timestamps))
	copy(sorted, timestamps)
	sort.Float64s(sorted)
	return sorted
}

func formatStamp(timestamp float64) string {
	return strconv.FormatFloat(timestamp, 'f', -1, 64)
}
