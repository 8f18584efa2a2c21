package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const defaultToolTimeout = 5 * time.Minute

// CommandRunner executes an external tool. Tests inject fakes here.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Processor drives ffmpeg and ffprobe for the pipeline stages.
type Processor struct {
	ffmpegBinary  string
	ffprobeBinary string
	toolTimeout   time.Duration
	commandRunner CommandRunner
}

// Option customizes the processor.
type Option func(*Processor)

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) Option {
	return func(p *Processor) {
		if runner != nil {
			p.commandRunner = runner
		}
	}
}

// WithToolTimeout overrides the per-command kill timeout.
func WithToolTimeout(timeout time.Duration) Option {
	return func(p *Processor) {
		if timeout > 0 {
			p.toolTimeout = timeout
		}
	}
}

// NewProcessor constructs a Processor around the given binaries.
func NewProcessor(ffmpegBinary, ffprobeBinary string, opts ...Option) *Processor {
	processor := &Processor{
		ffmpegBinary:  strings.TrimSpace(ffmpegBinary),
		ffprobeBinary: strings.TrimSpace(ffprobeBinary),
		toolTimeout:   defaultToolTimeout,
	}
	if processor.ffmpegBinary == "" {
		processor.ffmpegBinary = "ffmpeg"
	}
	if processor.ffprobeBinary == "" {
		processor.ffprobeBinary = "ffprobe"
	}
	for _, opt := range opts {
		opt(processor)
	}
	return processor
}

func (p *Processor) run(ctx context.Context, name string, args ...string) error {
	runCtx, cancel := context.WithTimeout(ctx, p.toolTimeout)
	defer cancel()
	if p.commandRunner != nil {
		return p.commandRunner(runCtx, name, args...)
	}
	cmd := exec.CommandContext(runCtx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%s: killed after %s: %s", name, p.toolTimeout, strings.TrimSpace(string(output)))
		}
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// SeparateAudio extracts the audio track as 128k MP3 next to the source file.
func (p *Processor) SeparateAudio(ctx context.Context, videoPath string) (string, error) {
	audioPath := siblingPath(videoPath, "-audio.mp3")
	args := []string{
		"-y", "-i", videoPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", "128k",
		audioPath,
	}
	if err := p.run(ctx, p.ffmpegBinary, args...); err != nil {
		return "", fmt.Errorf("separate audio: %w", err)
	}
	return audioPath, nil
}

// SeparateVideo writes a silent copy of the video stream next to the source file.
func (p *Processor) SeparateVideo(ctx context.Context, videoPath string) (string, error) {
	silentPath := siblingPath(videoPath, "-video.mp4")
	args := []string{
		"-y", "-i", videoPath,
		"-c:v", "copy",
		"-an",
		silentPath,
	}
	if err := p.run(ctx, p.ffmpegBinary, args...); err != nil {
		return "", fmt.Errorf("separate video: %w", err)
	}
	return silentPath, nil
}

// CompressAudio re-encodes the audio with a constrained bitrate and a hard
// 20M file size ceiling so oversized tracks fit the transcription limit.
func (p *Processor) CompressAudio(ctx context.Context, audioPath, outputPath string) (string, error) {
	probe, err := Inspect(ctx, p.ffprobeBinary, audioPath)
	if err != nil {
		return "", fmt.Errorf("compress audio: %w", err)
	}
	if !probe.HasAudioStream() {
		return "", errors.New("No audio stream found")
	}
	args := []string{
		"-y", "-i", audioPath,
		"-codec:a", "libmp3lame",
		"-maxrate", "112k",
		"-minrate", "64k",
		"-map_metadata", "0",
		"-id3v2_version", "3",
		"-fs", "20M",
		outputPath,
	}
	if err := p.run(ctx, p.ffmpegBinary, args...); err != nil {
		return "", fmt.Errorf("compress audio: %w", err)
	}
	return outputPath, nil
}

// Duration returns the container duration in seconds.
func (p *Processor) Duration(ctx context.Context, path string) (float64, error) {
	probe, err := Inspect(ctx, p.ffprobeBinary, path)
	if err != nil {
		return 0, fmt.Errorf("duration: %w", err)
	}
	return probe.DurationSeconds(), nil
}

// HasAudioStream reports whether the file carries an audio stream.
func (p *Processor) HasAudioStream(ctx context.Context, path string) (bool, error) {
	probe, err := Inspect(ctx, p.ffprobeBinary, path)
	if err != nil {
		return false, fmt.Errorf("probe audio: %w", err)
	}
	return probe.HasAudioStream(), nil
}

// ExtractFrame grabs a single scaled JPEG still at the given offset.
func (p *Processor) ExtractFrame(ctx context.Context, videoPath string, offsetSeconds float64, width, height int, outputPath string) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(offsetSeconds),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		outputPath,
	}
	if err := p.run(ctx, p.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("extract frame at %ss: %w", formatSeconds(offsetSeconds), err)
	}
	return nil
}

// ExtractClip cuts a segment starting at startSeconds for durationSeconds.
func (p *Processor) ExtractClip(ctx context.Context, videoPath string, startSeconds, durationSeconds float64, outputPath string) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(startSeconds),
		"-i", videoPath,
		"-t", formatSeconds(durationSeconds),
		outputPath,
	}
	if err := p.run(ctx, p.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("extract clip at %ss: %w", formatSeconds(startSeconds), err)
	}
	return nil
}

// Concat joins the listed videos into one file using the concat demuxer with
// stream copy. The file list is written next to the output and removed after.
func (p *Processor) Concat(ctx context.Context, videoPaths []string, outputPath string) error {
	if len(videoPaths) == 0 {
		return errors.New("concat: no input videos")
	}
	listPath := outputPath + ".txt"
	var list strings.Builder
	for _, videoPath := range videoPaths {
		fmt.Fprintf(&list, "file '%s'\n", escapeConcatPath(videoPath))
	}
	if err := os.WriteFile(listPath, []byte(list.String()), 0o644); err != nil {
		return fmt.Errorf("concat: write file list: %w", err)
	}
	defer os.Remove(listPath)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
	if err := p.run(ctx, p.ffmpegBinary, args...); err != nil {
		return fmt.Errorf("concat: %w", err)
	}
	return nil
}

// siblingPath strips the extension from path and appends suffix.
func siblingPath(path, suffix string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', -1, 64)
}

func escapeConcatPath(path string) string {
	// The concat demuxer list format escapes single quotes as '\''.
	return strings.ReplaceAll(path, "'", `'\''`)
}
