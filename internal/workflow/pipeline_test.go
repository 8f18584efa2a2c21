package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vid2doc/internal/frames"
	"vid2doc/internal/guide"
	"vid2doc/internal/planner"
	"vid2doc/internal/queue"
	"vid2doc/internal/services"
	"vid2doc/internal/services/whisper"
	"vid2doc/internal/sources"
)

type fakeMedia struct {
	dir            string
	hasAudio       bool
	audioSize      int64
	compressedSize int64
	compressCalled bool
	duration       float64
}

func (f *fakeMedia) HasAudioStream(context.Context, string) (bool, error) {
	return f.hasAudio, nil
}

func (f *fakeMedia) SeparateAudio(_ context.Context, _ string) (string, error) {
	path := filepath.Join(f.dir, "source-audio.mp3")
	return path, os.WriteFile(path, make([]byte, f.audioSize), 0o644)
}

func (f *fakeMedia) SeparateVideo(_ context.Context, _ string) (string, error) {
	path := filepath.Join(f.dir, "source-video.mp4")
	return path, os.WriteFile(path, []byte("silent"), 0o644)
}

func (f *fakeMedia) CompressAudio(_ context.Context, _, outputPath string) (string, error) {
	f.compressCalled = true
	return outputPath, os.WriteFile(outputPath, make([]byte, f.compressedSize), 0o644)
}

func (f *fakeMedia) Duration(context.Context, string) (float64, error) {
	return f.duration, nil
}

type fakeWhisper struct {
	result whisper.Result
}

func (f *fakeWhisper) TranscribeFile(context.Context, string) (whisper.Result, error) {
	return f.result, nil
}

type fakePlanner struct {
	guide planner.Guide
	xml   string
	prefs planner.Preferences
}

func (f *fakePlanner) ExtractSteps(_ context.Context, xmlTranscript string, _ float64, prefs planner.Preferences) (planner.Guide, error) {
	f.xml = xmlTranscript
	f.prefs = prefs
	return f.guide, nil
}

type fakeExtractor struct {
	frames map[float64]string
	clips  map[float64]frames.Clip
}

func (f *fakeExtractor) ExtractFrames(_ context.Context, _, _, _ string, _ []float64) map[float64]string {
	return f.frames
}

func (f *fakeExtractor) ExtractClips(_ context.Context, _, _, _ string, _ []float64) map[float64]frames.Clip {
	return f.clips
}

type fakeDownloader struct {
	called bool
	path   string
	err    error
}

func (f *fakeDownloader) Download(_ context.Context, rawURL, _ string) (sources.Info, error) {
	f.called = true
	if f.err != nil {
		return sources.Info{}, f.err
	}
	return sources.Info{URL: rawURL, DownloadPath: f.path}, nil
}

type progressRecorder struct {
	updates []queue.Progress
}

func (p *progressRecorder) UpdateProgress(_ context.Context, _ string, progress queue.Progress) error {
	p.updates = append(p.updates, progress)
	return nil
}

func testTranscription() whisper.Result {
	return whisper.Result{
		Text:     "Open the app. Click save.",
		Duration: 90,
		Segments: []whisper.Segment{
			{ID: 0, Start: 2, End: 6, Text: "Open the app"},
			{ID: 1, Start: 38, End: 43, Text: "Click save"},
		},
	}
}

func testPlan() planner.Guide {
	return planner.Guide{
		Title:    "Save a file",
		Overview: "How to save.",
		Steps: []planner.Step{
			{Timestamp: 12, Title: "Open", Description: "Open the app"},
			{Timestamp: 40, Title: "Save", Description: "Click save"},
		},
	}
}

func writeSource(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func newTestPipeline(t *testing.T, media *fakeMedia, extractor *fakeExtractor, dl *fakeDownloader, store *progressRecorder) *Pipeline {
	t.Helper()
	return NewPipeline(PipelineDeps{
		Store:      store,
		Media:      media,
		Whisper:    &fakeWhisper{result: testTranscription()},
		Planner:    &fakePlanner{guide: testPlan()},
		Extractor:  extractor,
		Downloader: dl,
		WorkRoot:   t.TempDir(),
	})
}

func TestPipelineRunProducesDocument(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: true, audioSize: 64, duration: 90}
	// The clip for the second step failed to extract; the job still completes.
	extractor := &fakeExtractor{
		frames: map[float64]string{12: "https://cdn.example/f12.jpg", 40: "https://cdn.example/f40.jpg"},
		clips:  map[float64]frames.Clip{12: {URL: "https://cdn.example/v12.mp4", Duration: 6}},
	}
	store := &progressRecorder{}
	pipeline := newTestPipeline(t, media, extractor, &fakeDownloader{}, store)

	job := &queue.Job{ID: "job-1", Kind: queue.KindVideo, SourcePath: writeSource(t)}
	resultJSON, err := pipeline.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var document guide.ProcessedVideo
	if err := json.Unmarshal([]byte(resultJSON), &document); err != nil {
		t.Fatalf("result not JSON: %v", err)
	}
	if document.Title != "Save a file" || document.ProjectID != "job-1" || document.VideoDuration != 90 {
		t.Fatalf("unexpected document: %+v", document)
	}
	if len(document.Steps) != 2 || document.Steps[0].SerialNumber != 1 || document.Steps[1].SerialNumber != 2 {
		t.Fatalf("unexpected steps: %+v", document.Steps)
	}
	if document.Steps[1].VideoPath != "" || document.Steps[1].VideoDuration != 0 {
		t.Fatalf("failed clip should leave empty references: %+v", document.Steps[1])
	}
	if document.Steps[0].VideoPath != "https://cdn.example/v12.mp4" {
		t.Fatalf("unexpected first step: %+v", document.Steps[0])
	}
	if len(document.SplittedSteps) != 4 {
		t.Fatalf("expected 4 split entries, got %d", len(document.SplittedSteps))
	}
	if len(document.Transcript) != 2 || document.Transcript[0].Text != "Open the app" {
		t.Fatalf("unexpected transcript: %+v", document.Transcript)
	}

	var percents []float64
	for _, update := range store.updates {
		percents = append(percents, update.Percent)
	}
	want := []float64{10, 30, 60, 80, 100}
	if len(percents) != len(want) {
		t.Fatalf("unexpected checkpoints: %v", percents)
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Fatalf("checkpoint %d = %v, want %v", i, percents[i], want[i])
		}
	}
}

func TestPipelineRemovesWorkDir(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: true, audioSize: 64, duration: 90}
	extractor := &fakeExtractor{frames: map[float64]string{}, clips: map[float64]frames.Clip{}}
	store := &progressRecorder{}
	pipeline := newTestPipeline(t, media, extractor, &fakeDownloader{}, store)

	sourcePath := writeSource(t)
	job := &queue.Job{ID: "job-2", SourcePath: sourcePath}
	if _, err := pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(pipeline.workRoot, "job-2")); !os.IsNotExist(err) {
		t.Fatalf("work dir should be removed, stat err = %v", err)
	}
	if _, err := os.Stat(sourcePath); !os.IsNotExist(err) {
		t.Fatalf("uploaded source should be consumed, stat err = %v", err)
	}
}

func TestPipelineFailsWithoutAudio(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: false}
	pipeline := newTestPipeline(t, media, &fakeExtractor{}, &fakeDownloader{}, &progressRecorder{})

	_, err := pipeline.Run(context.Background(), &queue.Job{ID: "job-3", SourcePath: writeSource(t)})
	if !errors.Is(err, services.ErrNoAudioStream) {
		t.Fatalf("expected no-audio sentinel, got %v", err)
	}
	if err.Error() != "No audio stream found" {
		t.Fatalf("sentinel message changed: %q", err.Error())
	}
}

func TestPipelineCompressesOversizedAudio(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: true, audioSize: 200, compressedSize: 50, duration: 90}
	extractor := &fakeExtractor{frames: map[float64]string{}, clips: map[float64]frames.Clip{}}
	pipeline := NewPipeline(PipelineDeps{
		Store:         &progressRecorder{},
		Media:         media,
		Whisper:       &fakeWhisper{result: testTranscription()},
		Planner:       &fakePlanner{guide: testPlan()},
		Extractor:     extractor,
		Downloader:    &fakeDownloader{},
		WorkRoot:      t.TempDir(),
		MaxAudioBytes: 100,
	})

	if _, err := pipeline.Run(context.Background(), &queue.Job{ID: "job-4", SourcePath: writeSource(t)}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !media.compressCalled {
		t.Fatal("oversized audio should be compressed once")
	}
}

func TestPipelineFailsWhenCompressedAudioStillTooLarge(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: true, audioSize: 200, compressedSize: 150}
	pipeline := NewPipeline(PipelineDeps{
		Store:         &progressRecorder{},
		Media:         media,
		Whisper:       &fakeWhisper{},
		Planner:       &fakePlanner{},
		Extractor:     &fakeExtractor{},
		Downloader:    &fakeDownloader{},
		WorkRoot:      t.TempDir(),
		MaxAudioBytes: 100,
	})

	_, err := pipeline.Run(context.Background(), &queue.Job{ID: "job-5", SourcePath: writeSource(t)})
	if err == nil || err.Error() != "Compressed audio file size exceeds limit (25MB)" {
		t.Fatalf("expected size limit error, got %v", err)
	}
}

func TestPipelineFillsBlankPreferencesFromDefaults(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: true, audioSize: 64, duration: 90}
	extractor := &fakeExtractor{frames: map[float64]string{}, clips: map[float64]frames.Clip{}}
	stepPlanner := &fakePlanner{guide: testPlan()}
	pipeline := NewPipeline(PipelineDeps{
		Store:      &progressRecorder{},
		Media:      media,
		Whisper:    &fakeWhisper{result: testTranscription()},
		Planner:    stepPlanner,
		Extractor:  extractor,
		Downloader: &fakeDownloader{},
		WorkRoot:   t.TempDir(),
		Defaults:   planner.Preferences{NumberOfSteps: "10", Language: "en", Tonality: "neutral"},
	})

	job := &queue.Job{
		ID:          "job-7",
		SourcePath:  writeSource(t),
		OptionsJSON: `{"preferredLanguage":"french"}`,
	}
	if _, err := pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The submitted language wins; the blank knobs fall back to the defaults.
	want := planner.Preferences{NumberOfSteps: "10", Language: "french", Tonality: "neutral"}
	if stepPlanner.prefs != want {
		t.Fatalf("planner preferences = %+v, want %+v", stepPlanner.prefs, want)
	}
}

func TestPipelineDownloadsURLJobs(t *testing.T) {
	media := &fakeMedia{dir: t.TempDir(), hasAudio: true, audioSize: 64, duration: 90}
	extractor := &fakeExtractor{frames: map[float64]string{}, clips: map[float64]frames.Clip{}}
	dl := &fakeDownloader{path: filepath.Join(media.dir, "downloaded.mp4")}
	store := &progressRecorder{}
	pipeline := newTestPipeline(t, media, extractor, dl, store)

	job := &queue.Job{ID: "job-6", SourceURL: "https://youtu.be/abc", SourceKind: "youtube"}
	if _, err := pipeline.Run(context.Background(), job); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !dl.called {
		t.Fatal("URL job should trigger a download")
	}
	if store.updates[1].Stage != "downloading_video" || store.updates[1].Percent != 20 {
		t.Fatalf("missing download checkpoint: %+v", store.updates)
	}
}
