package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"vid2doc/internal/fileutil"
	"vid2doc/internal/frames"
	"vid2doc/internal/guide"
	"vid2doc/internal/logging"
	"vid2doc/internal/planner"
	"vid2doc/internal/queue"
	"vid2doc/internal/services"
	"vid2doc/internal/services/whisper"
	"vid2doc/internal/sources"
	"vid2doc/internal/transcript"
)

const defaultMaxAudioBytes = 25 * 1024 * 1024

// mediaProcessor is the transcoding surface the pipeline depends on.
type mediaProcessor interface {
	HasAudioStream(ctx context.Context, path string) (bool, error)
	SeparateAudio(ctx context.Context, videoPath string) (string, error)
	SeparateVideo(ctx context.Context, videoPath string) (string, error)
	CompressAudio(ctx context.Context, audioPath, outputPath string) (string, error)
	Duration(ctx context.Context, path string) (float64, error)
}

type transcriber interface {
	TranscribeFile(ctx context.Context, path string) (whisper.Result, error)
}

type stepPlanner interface {
	ExtractSteps(ctx context.Context, xmlTranscript string, videoDuration float64, prefs planner.Preferences) (planner.Guide, error)
}

type mediaExtractor interface {
	ExtractFrames(ctx context.Context, videoPath, workDir, keyPrefix string, timestamps []float64) map[float64]string
	ExtractClips(ctx context.Context, videoPath, workDir, keyPrefix string, timestamps []float64) map[float64]frames.Clip
}

type downloader interface {
	Download(ctx context.Context, rawURL, outputDir string) (sources.Info, error)
}

type progressStore interface {
	UpdateProgress(ctx context.Context, id string, progress queue.Progress) error
}

// Pipeline turns one video job into a ProcessedVideo document.
type Pipeline struct {
	store         progressStore
	media         mediaProcessor
	whisper       transcriber
	planner       stepPlanner
	extractor     mediaExtractor
	downloader    downloader
	workRoot      string
	maxAudioBytes int64
	defaults      planner.Preferences
	logger        *slog.Logger
}

// PipelineDeps bundles the pipeline collaborators. Defaults fills guide
// preferences a job submission left blank.
type PipelineDeps struct {
	Store         progressStore
	Media         mediaProcessor
	Whisper       transcriber
	Planner       stepPlanner
	Extractor     mediaExtractor
	Downloader    downloader
	WorkRoot      string
	MaxAudioBytes int64
	Defaults      planner.Preferences
	Logger        *slog.Logger
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.MaxAudioBytes <= 0 {
		deps.MaxAudioBytes = defaultMaxAudioBytes
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNop()
	}
	return &Pipeline{
		store:         deps.Store,
		media:         deps.Media,
		whisper:       deps.Whisper,
		planner:       deps.Planner,
		extractor:     deps.Extractor,
		downloader:    deps.Downloader,
		workRoot:      deps.WorkRoot,
		maxAudioBytes: deps.MaxAudioBytes,
		defaults:      deps.Defaults,
		logger:        deps.Logger,
	}
}

// Run executes the full video pipeline for one claimed job and returns the
// result document as JSON. The per-job working directory is removed on both
// the success and failure paths.
func (p *Pipeline) Run(ctx context.Context, job *queue.Job) (string, error) {
	ctx = services.WithJobID(ctx, job.ID)
	logger := p.logger.With(logging.FieldJobID, job.ID)

	workDir := filepath.Join(p.workRoot, job.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	p.progress(ctx, job.ID, "initializing", 10, "Initializing...")

	videoPath, err := p.resolveInput(ctx, job, workDir)
	if err != nil {
		return "", err
	}

	audioPath, silentVideoPath, err := p.separate(ctx, videoPath)
	if err != nil {
		return "", err
	}

	p.progress(ctx, job.ID, "transcribing", 30, "Generating transcript")

	transcription, err := p.whisper.TranscribeFile(ctx, audioPath)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}
	os.Remove(audioPath)

	segments := make([]transcript.Segment, 0, len(transcription.Segments))
	resultTranscript := make([]guide.TranscriptSegment, 0, len(transcription.Segments))
	for _, segment := range transcription.Segments {
		segments = append(segments, transcript.Segment{Timestamp: segment.Start, Text: segment.Text})
		resultTranscript = append(resultTranscript, guide.TranscriptSegment{Timestamp: segment.Start, Text: segment.Text})
	}
	if len(segments) == 0 {
		return "", errors.New("transcription produced no segments")
	}

	videoDuration, err := p.media.Duration(ctx, silentVideoPath)
	if err != nil {
		return "", err
	}

	xmlTranscript := transcript.ToXML(segments, videoDuration)
	options := ParseOptions(job.OptionsJSON)
	plan, err := p.planner.ExtractSteps(ctx, xmlTranscript, videoDuration, p.preferences(options))
	if err != nil {
		return "", err
	}

	timestamps := make([]float64, 0, len(plan.Steps))
	for _, step := range plan.Steps {
		timestamps = append(timestamps, step.Timestamp)
	}

	p.progress(ctx, job.ID, "extracting_frames", 60, "Extracting step frames")
	frameURLs := p.extractor.ExtractFrames(ctx, silentVideoPath, workDir, job.ID, timestamps)

	p.progress(ctx, job.ID, "extracting_clips", 80, "Extracting step clips")
	clips := p.extractor.ExtractClips(ctx, silentVideoPath, workDir, job.ID, timestamps)

	steps := make([]guide.ProcessedStep, 0, len(plan.Steps))
	for i, step := range plan.Steps {
		clip := clips[step.Timestamp]
		steps = append(steps, guide.ProcessedStep{
			SerialNumber:  i + 1,
			Title:         step.Title,
			Timestamp:     step.Timestamp,
			Description:   step.Description,
			FramePath:     frameURLs[step.Timestamp],
			VideoPath:     clip.URL,
			VideoDuration: clip.Duration,
		})
	}

	document := guide.ProcessedVideo{
		ProjectID:     job.ID,
		Title:         plan.Title,
		Overview:      plan.Overview,
		Steps:         steps,
		Transcript:    resultTranscript,
		VideoDuration: videoDuration,
		SplittedSteps: guide.SplitSteps(steps),
	}
	resultJSON, err := json.Marshal(document)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}

	p.progress(ctx, job.ID, "completed", 100, "Video processed")
	logger.Info("pipeline finished", "steps", len(steps), "duration_seconds", videoDuration)
	return string(resultJSON), nil
}

// preferences applies the configured defaults to any preference the job's
// options left blank.
func (p *Pipeline) preferences(options Options) planner.Preferences {
	prefs := options.Preferences()
	if prefs.NumberOfSteps == "" {
		prefs.NumberOfSteps = p.defaults.NumberOfSteps
	}
	if prefs.Language == "" {
		prefs.Language = p.defaults.Language
	}
	if prefs.Tonality == "" {
		prefs.Tonality = p.defaults.Tonality
	}
	return prefs
}

// resolveInput returns the local video path inside the work dir, downloading
// the source first for URL jobs. Uploaded files are moved into the work dir
// so removing it reclaims them too.
func (p *Pipeline) resolveInput(ctx context.Context, job *queue.Job, workDir string) (string, error) {
	if job.SourcePath != "" {
		localPath := filepath.Join(workDir, "source"+filepath.Ext(job.SourcePath))
		if err := fileutil.MoveFile(job.SourcePath, localPath); err != nil {
			return "", fmt.Errorf("stage source file: %w", err)
		}
		return localPath, nil
	}
	if job.SourceURL == "" {
		return "", fmt.Errorf("%w: job has neither a source path nor a source URL", services.ErrValidation)
	}
	p.progress(ctx, job.ID, "downloading_video", 20, "Downloading video...")
	info, err := p.downloader.Download(ctx, job.SourceURL, workDir)
	if err != nil {
		return "", err
	}
	return info.DownloadPath, nil
}

// separate splits the source into an audio track sized for transcription and
// a silent video used for probing and extraction.
func (p *Pipeline) separate(ctx context.Context, videoPath string) (audioPath, silentVideoPath string, err error) {
	hasAudio, err := p.media.HasAudioStream(ctx, videoPath)
	if err != nil {
		return "", "", err
	}
	if !hasAudio {
		return "", "", services.ErrNoAudioStream
	}

	audioPath, err = p.media.SeparateAudio(ctx, videoPath)
	if err != nil {
		return "", "", err
	}
	silentVideoPath, err = p.media.SeparateVideo(ctx, videoPath)
	if err != nil {
		return "", "", err
	}

	size, err := fileSize(audioPath)
	if err != nil {
		return "", "", err
	}
	if size > p.maxAudioBytes {
		compressedPath := audioPath + "_compressed.mp3"
		audioPath, err = p.media.CompressAudio(ctx, audioPath, compressedPath)
		if err != nil {
			return "", "", err
		}
		size, err = fileSize(audioPath)
		if err != nil {
			return "", "", err
		}
		if size > p.maxAudioBytes {
			return "", "", errors.New("Compressed audio file size exceeds limit (25MB)")
		}
	}
	return audioPath, silentVideoPath, nil
}

func (p *Pipeline) progress(ctx context.Context, jobID, stage string, percent float64, message string) {
	ctx = services.WithStage(ctx, stage)
	err := p.store.UpdateProgress(ctx, jobID, queue.Progress{Stage: stage, Percent: percent, Message: message})
	if err != nil {
		logging.WithContext(ctx, p.logger).Warn("progress update failed", logging.Error(err))
	}
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return info.Size(), nil
}
