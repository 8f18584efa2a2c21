package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"vid2doc/internal/media"
	"vid2doc/internal/services"
	"vid2doc/internal/textutil"
)

// Info describes a downloaded video file.
type Info struct {
	URL          string
	FileName     string
	Format       string
	DownloadPath string
}

// Downloader fetches remote videos into a local directory. External tool and
// HTTP access are injectable for tests.
type Downloader struct {
	ytDlpBinary string
	httpClient  *http.Client
	runner      media.CommandRunner
	loomAPIBase string
}

// Option customizes the downloader.
type Option func(*Downloader)

// WithHTTPClient sets the client used for direct downloads and the Loom API.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		if client != nil {
			d.httpClient = client
		}
	}
}

// WithCommandRunner sets a custom yt-dlp runner (for testing).
func WithCommandRunner(runner media.CommandRunner) Option {
	return func(d *Downloader) {
		if runner != nil {
			d.runner = runner
		}
	}
}

// WithLoomAPIBase overrides the Loom API endpoint (for testing).
func WithLoomAPIBase(base string) Option {
	return func(d *Downloader) {
		if strings.TrimSpace(base) != "" {
			d.loomAPIBase = strings.TrimRight(base, "/")
		}
	}
}

// NewDownloader builds a Downloader around the given yt-dlp binary.
func NewDownloader(ytDlpBinary string, opts ...Option) *Downloader {
	downloader := &Downloader{
		ytDlpBinary: strings.TrimSpace(ytDlpBinary),
		httpClient:  &http.Client{},
		loomAPIBase: "https://www.loom.com",
	}
	if downloader.ytDlpBinary == "" {
		downloader.ytDlpBinary = "yt-dlp"
	}
	for _, opt := range opts {
		opt(downloader)
	}
	return downloader
}

// Download classifies the URL and fetches it with the matching strategy.
func (d *Downloader) Download(ctx context.Context, rawURL, outputDir string) (Info, error) {
	switch Classify(rawURL) {
	case KindYouTube:
		return d.downloadYouTube(ctx, rawURL, outputDir)
	case KindLoom:
		return d.downloadLoom(ctx, rawURL, outputDir)
	case KindCloudFront:
		return d.downloadDirect(ctx, rawURL, outputDir, "cloudfront")
	case KindS3:
		return d.downloadDirect(ctx, rawURL, outputDir, "s3")
	default:
		return Info{}, fmt.Errorf("%w: unsupported video URL %q", services.ErrValidation, rawURL)
	}
}

func (d *Downloader) downloadYouTube(ctx context.Context, rawURL, outputDir string) (Info, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Info{}, fmt.Errorf("download youtube: %w", err)
	}
	fileName := "youtube-" + textutil.SanitizeToken(youtubeVideoID(rawURL)) + ".mp4"
	outputPath := filepath.Join(outputDir, fileName)

	args := []string{
		"-f", "bestvideo[ext=mp4]+bestaudio[ext=m4a]/best[ext=mp4]/best",
		"--merge-output-format", "mp4",
		"--no-warnings",
		"--retries", "3",
		"--output", outputPath,
		rawURL,
	}
	if err := d.run(ctx, d.ytDlpBinary, args...); err != nil {
		return Info{}, fmt.Errorf("download youtube: %w", err)
	}
	if _, err := os.Stat(outputPath); err != nil {
		return Info{}, fmt.Errorf("download youtube: video file was not created: %w", err)
	}
	return Info{URL: rawURL, FileName: fileName, Format: "mp4", DownloadPath: outputPath}, nil
}

func (d *Downloader) downloadLoom(ctx context.Context, rawURL, outputDir string) (Info, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Info{}, fmt.Errorf("download loom: %w", err)
	}
	id := lastURLSegment(rawURL)
	if id == "" {
		return Info{}, fmt.Errorf("%w: invalid Loom URL %q", services.ErrValidation, rawURL)
	}

	endpoint := d.loomAPIBase + "/api/campaigns/sessions/" + id + "/transcoded-url"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return Info{}, fmt.Errorf("download loom: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("download loom: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("download loom: transcoded-url returned status %d", resp.StatusCode)
	}
	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Info{}, fmt.Errorf("download loom: decode transcoded-url response: %w", err)
	}
	if payload.URL == "" {
		return Info{}, fmt.Errorf("download loom: no video URL for session %s", id)
	}

	fileName := "loom-" + textutil.SanitizeToken(id) + ".mp4"
	outputPath := filepath.Join(outputDir, fileName)
	if err := d.fetchToFile(ctx, payload.URL, outputPath); err != nil {
		return Info{}, fmt.Errorf("download loom: %w", err)
	}
	return Info{URL: rawURL, FileName: fileName, Format: "mp4", DownloadPath: outputPath}, nil
}

func (d *Downloader) downloadDirect(ctx context.Context, rawURL, outputDir, prefix string) (Info, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return Info{}, fmt.Errorf("download %s: %w", prefix, err)
	}
	id := strings.TrimSuffix(lastURLSegment(rawURL), ".mp4")
	if id == "" {
		id = fmt.Sprintf("%d", time.Now().UnixMilli())
	} else {
		id = textutil.SanitizeToken(id)
	}
	fileName := prefix + "-" + id + ".mp4"
	outputPath := filepath.Join(outputDir, fileName)
	if err := d.fetchToFile(ctx, rawURL, outputPath); err != nil {
		return Info{}, fmt.Errorf("download %s: %w", prefix, err)
	}
	return Info{URL: rawURL, FileName: fileName, Format: "mp4", DownloadPath: outputPath}, nil
}

func (d *Downloader) fetchToFile(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, rawURL)
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

func (d *Downloader) run(ctx context.Context, name string, args ...string) error {
	if d.runner != nil {
		return d.runner(ctx, name, args...)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}

// lastURLSegment returns the final path segment without query parameters.
func lastURLSegment(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	segment := path.Base(strings.TrimRight(parsed.Path, "/"))
	if segment == "." || segment == "/" {
		return ""
	}
	return segment
}

// youtubeVideoID pulls the video id from watch or short-link URLs, falling
// back to the last path segment.
func youtubeVideoID(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err == nil {
		if v := parsed.Query().Get("v"); v != "" {
			return v
		}
	}
	if segment := lastURLSegment(rawURL); segment != "" {
		return segment
	}
	return fmt.Sprintf("%d", time.Now().UnixMilli())
}
