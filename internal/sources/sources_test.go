package sources

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vid2doc/internal/services"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"https://www.youtube.com/watch?v=abc123":          KindYouTube,
		"https://youtu.be/abc123":                         KindYouTube,
		"youtube.com/watch?v=abc":                         KindYouTube,
		"https://www.loom.com/share/deadbeef":             KindLoom,
		"https://d1234abcd.cloudfront.net/videos/demo.mp4": KindCloudFront,
		"https://mybucket.s3.amazonaws.com/demo.mp4":      KindS3,
		"https://vimeo.com/12345":                         KindInvalid,
		"not a url":                                       KindInvalid,
		"":                                                KindInvalid,
	}
	for rawURL, want := range cases {
		if got := Classify(rawURL); got != want {
			t.Fatalf("Classify(%q) = %q, want %q", rawURL, got, want)
		}
	}
}

func TestDownloadInvalidURL(t *testing.T) {
	downloader := NewDownloader("yt-dlp")
	_, err := downloader.Download(context.Background(), "https://vimeo.com/12345", t.TempDir())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDownloadYouTube(t *testing.T) {
	var gotName string
	var gotArgs []string
	runner := func(_ context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return os.WriteFile(args[len(args)-2], []byte("video"), 0o644)
	}
	downloader := NewDownloader("yt-dlp", WithCommandRunner(runner))
	outputDir := t.TempDir()

	info, err := downloader.Download(context.Background(), "https://www.youtube.com/watch?v=abc123", outputDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if gotName != "yt-dlp" {
		t.Fatalf("unexpected binary: %q", gotName)
	}
	if gotArgs[len(gotArgs)-1] != "https://www.youtube.com/watch?v=abc123" {
		t.Fatalf("URL should be the last argument: %v", gotArgs)
	}
	if info.FileName != "youtube-abc123.mp4" || info.Format != "mp4" {
		t.Fatalf("unexpected info: %+v", info)
	}
	if filepath.Dir(info.DownloadPath) != outputDir {
		t.Fatalf("download outside output dir: %s", info.DownloadPath)
	}
}

func TestDownloadYouTubeMissingOutput(t *testing.T) {
	runner := func(context.Context, string, ...string) error { return nil }
	downloader := NewDownloader("yt-dlp", WithCommandRunner(runner))
	if _, err := downloader.Download(context.Background(), "https://youtu.be/abc", t.TempDir()); err == nil {
		t.Fatal("expected error when yt-dlp produced no file")
	}
}

func TestDownloadLoom(t *testing.T) {
	var clipServer *httptest.Server
	clipServer = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("loom-bytes"))
	}))
	defer clipServer.Close()

	apiServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || !strings.Contains(r.URL.Path, "/api/campaigns/sessions/deadbeef/transcoded-url") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"url":"` + clipServer.URL + `/video.mp4"}`))
	}))
	defer apiServer.Close()

	downloader := NewDownloader("yt-dlp", WithLoomAPIBase(apiServer.URL))
	outputDir := t.TempDir()

	info, err := downloader.Download(context.Background(), "https://www.loom.com/share/deadbeef?sid=1", outputDir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if info.FileName != "loom-deadbeef.mp4" {
		t.Fatalf("unexpected file name: %q", info.FileName)
	}
	data, err := os.ReadFile(info.DownloadPath)
	if err != nil || string(data) != "loom-bytes" {
		t.Fatalf("unexpected file contents: %q, %v", data, err)
	}
}

func TestDownloadDirect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("cf-bytes"))
	}))
	defer server.Close()

	downloader := NewDownloader("yt-dlp")
	outputDir := t.TempDir()

	// The classifier keys off the host, so rewrite a cloudfront-shaped URL to
	// the test server by calling the direct path explicitly.
	info, err := downloader.downloadDirect(context.Background(), server.URL+"/assets/demo.mp4", outputDir, "cloudfront")
	if err != nil {
		t.Fatalf("downloadDirect: %v", err)
	}
	if info.FileName != "cloudfront-demo.mp4" {
		t.Fatalf("unexpected file name: %q", info.FileName)
	}
	data, err := os.ReadFile(info.DownloadPath)
	if err != nil || string(data) != "cf-bytes" {
		t.Fatalf("unexpected file contents: %q, %v", data, err)
	}
}

func TestDownloadDirectFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer server.Close()

	downloader := NewDownloader("yt-dlp")
	if _, err := downloader.downloadDirect(context.Background(), server.URL+"/demo.mp4", t.TempDir(), "s3"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
