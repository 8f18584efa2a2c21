package frames

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"vid2doc/internal/media"
)

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeUploader) Upload(_ context.Context, key string, _ io.Reader, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return "https://cdn.example/" + key, nil
}

func (f *fakeUploader) UploadFile(_ context.Context, key, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return "https://cdn.example/" + key, nil
}

// touchRunner records invocations and creates the output file ffmpeg would.
func touchRunner(calls *[][]string, failWhen func(args []string) bool) media.CommandRunner {
	return func(_ context.Context, _ string, args ...string) error {
		*calls = append(*calls, args)
		if failWhen != nil && failWhen(args) {
			return errors.New("ffmpeg exploded")
		}
		return os.WriteFile(args[len(args)-1], []byte("media"), 0o644)
	}
}

func TestExtractFramesUploadsWithOffset(t *testing.T) {
	var calls [][]string
	processor := media.NewProcessor("ffmpeg", "ffprobe", media.WithCommandRunner(touchRunner(&calls, nil)))
	uploader := &fakeUploader{}
	extractor := NewExtractor(processor, uploader, Options{}, nil)

	urls := extractor.ExtractFrames(context.Background(), "in.mp4", t.TempDir(), "job-1", []float64{30, 10})

	if len(urls) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(urls))
	}
	if urls[10] != "https://cdn.example/job-1/frames/frame_10.jpg" {
		t.Fatalf("unexpected URL: %q", urls[10])
	}

	// Timestamps are processed in ascending order with the forward offset.
	if calls[0][2] != "14" || calls[1][2] != "34" {
		t.Fatalf("unexpected seek offsets: %v %v", calls[0], calls[1])
	}
	if !strings.Contains(strings.Join(calls[0], " "), "scale=1280:720") {
		t.Fatalf("default scale missing: %v", calls[0])
	}
}

func TestExtractFramesSkipsFailures(t *testing.T) {
	var calls [][]string
	fail := func(args []string) bool { return args[2] == "14" }
	processor := media.NewProcessor("ffmpeg", "ffprobe", media.WithCommandRunner(touchRunner(&calls, fail)))
	uploader := &fakeUploader{}
	extractor := NewExtractor(processor, uploader, Options{}, nil)

	urls := extractor.ExtractFrames(context.Background(), "in.mp4", t.TempDir(), "job-1", []float64{10, 40})

	if _, ok := urls[10]; ok {
		t.Fatal("failed timestamp should be absent")
	}
	if _, ok := urls[40]; !ok {
		t.Fatal("surviving timestamp missing")
	}
}

func TestExtractClips(t *testing.T) {
	var calls [][]string
	processor := media.NewProcessor("ffmpeg", "ffprobe", media.WithCommandRunner(touchRunner(&calls, nil)))
	uploader := &fakeUploader{}
	extractor := NewExtractor(processor, uploader, Options{}, nil)

	clips := extractor.ExtractClips(context.Background(), "in.mp4", t.TempDir(), "job-1", []float64{12})

	clip, ok := clips[12]
	if !ok {
		t.Fatal("clip missing")
	}
	if clip.Duration != 6 {
		t.Fatalf("expected 6s clip, got %f", clip.Duration)
	}
	if clip.URL != "https://cdn.example/job-1/videos/video_12.mp4" {
		t.Fatalf("unexpected URL: %q", clip.URL)
	}
	joined := strings.Join(calls[0], " ")
	if !strings.Contains(joined, "-ss 12") || !strings.Contains(joined, "-t 6") {
		t.Fatalf("unexpected clip args: %v", calls[0])
	}
}

// gaugeUploader tracks how many uploads run at once.
type gaugeUploader struct {
	mu     sync.Mutex
	active int
	peak   int
}

func (g *gaugeUploader) Upload(_ context.Context, key string, _ io.Reader, _ string) (string, error) {
	return g.UploadFile(context.Background(), key, "")
}

func (g *gaugeUploader) UploadFile(_ context.Context, key, _ string) (string, error) {
	g.mu.Lock()
	g.active++
	if g.active > g.peak {
		g.peak = g.active
	}
	g.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	g.mu.Lock()
	g.active--
	g.mu.Unlock()
	return "https://cdn.example/" + key, nil
}

func TestExtractFramesBoundsUploadConcurrency(t *testing.T) {
	var calls [][]string
	processor := media.NewProcessor("ffmpeg", "ffprobe", media.WithCommandRunner(touchRunner(&calls, nil)))
	uploader := &gaugeUploader{}
	extractor := NewExtractor(processor, uploader, Options{MaxConcurrentUploads: 2}, nil)

	timestamps := []float64{5, 10, 15, 20, 25, 30}
	urls := extractor.ExtractFrames(context.Background(), "in.mp4", t.TempDir(), "job-1", timestamps)

	if len(urls) != len(timestamps) {
		t.Fatalf("expected %d frames, got %d", len(timestamps), len(urls))
	}
	if uploader.peak > 2 {
		t.Fatalf("upload concurrency reached %d, cap is 2", uploader.peak)
	}
}

// stallSource reports a fixed duration and blocks every extraction until the
// context is cancelled.
type stallSource struct{ duration float64 }

func (s *stallSource) Duration(context.Context, string) (float64, error) {
	return s.duration, nil
}

func (s *stallSource) ExtractFrame(ctx context.Context, _ string, _ float64, _, _ int, _ string) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestSamplerStopsAtWallClock(t *testing.T) {
	sampler := NewSampler(&stallSource{duration: 600}, nil, nil, SamplerOptions{
		IntervalSeconds: 1,
		MaxDuration:     10 * time.Millisecond,
	}, nil)

	_, err := sampler.Sample(context.Background(), filepath.Join(t.TempDir(), "in.mp4"), t.TempDir())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

type fakeDescriber struct {
	prompts []string
	urls    [][]string
}

func (f *fakeDescriber) DescribeImages(_ context.Context, prompt string, imageURLs []string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	f.urls = append(f.urls, imageURLs)
	return "  User clicks the export button.  ", nil
}

func TestSamplerDescribe(t *testing.T) {
	uploader := &fakeUploader{}
	describer := &fakeDescriber{}
	sampler := NewSampler(nil, uploader, describer, SamplerOptions{}, nil)

	described, err := sampler.Describe(context.Background(), "job-9", []SampledFrame{
		{Timestamp: 3, Path: "/tmp/work/frame_3.jpg"},
	})
	if err != nil {
		t.Fatalf("Describe: %v", err)
	}
	if described[0].URL != "https://cdn.example/job-9/samples/frame_3.jpg" {
		t.Fatalf("unexpected URL: %q", described[0].URL)
	}
	if described[0].Description != "User clicks the export button." {
		t.Fatalf("unexpected description: %q", described[0].Description)
	}
	if len(describer.urls) != 1 || describer.urls[0][0] != described[0].URL {
		t.Fatalf("describer not called with uploaded URL: %v", describer.urls)
	}
}
