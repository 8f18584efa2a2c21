package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	WorkDir  string `toml:"work_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// LLM contains connection settings for the OpenAI-compatible chat endpoint
// used for step extraction and description merging.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	VisionModel    string `toml:"vision_model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Whisper contains connection settings for the transcription endpoint.
type Whisper struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Storage contains configuration for the S3-compatible artifact store. When
// AccessKeyID and SecretAccessKey are set they override the default AWS
// credential chain, which lets the store point at non-AWS endpoints such as
// MinIO or Cloudflare R2.
type Storage struct {
	Bucket          string `toml:"bucket"`
	Region          string `toml:"region"`
	Endpoint        string `toml:"endpoint"`
	AccessKeyID     string `toml:"access_key_id"`
	SecretAccessKey string `toml:"secret_access_key"`
	CDNBaseURL      string `toml:"cdn_base_url"`
	KeyPrefix       string `toml:"key_prefix"`
}

// Processing contains media pipeline limits and tunables.
type Processing struct {
	MaxUploadMiB         int     `toml:"max_upload_mib"`
	MaxAudioMiB          int     `toml:"max_audio_mib"`
	FrameWidth           int     `toml:"frame_width"`
	FrameHeight          int     `toml:"frame_height"`
	FrameOffsetSeconds   int     `toml:"frame_offset_seconds"`
	ClipSeconds          int     `toml:"clip_seconds"`
	SampleInterval       int     `toml:"sample_interval_seconds"`
	SampleTimeoutSeconds int     `toml:"sample_timeout_seconds"`
	SimilarityThreshold  float64 `toml:"similarity_threshold"`
	ToolTimeoutSeconds   int     `toml:"tool_timeout_seconds"`
	PreferredSteps       int     `toml:"preferred_steps"`
	PreferredLanguage    string  `toml:"preferred_language"`
	PreferredTonality    string  `toml:"preferred_tonality"`
	MaxConcurrentUploads int     `toml:"max_concurrent_uploads"`
}

// Webhook contains configuration for completion callbacks.
type Webhook struct {
	URL            string `toml:"url"`
	Secret         string `toml:"secret"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Workflow contains configuration for daemon timing and intervals.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	MaxParallelJobs    int `toml:"max_parallel_jobs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vid2doc.
//
// Configuration sections by subsystem:
//   - Paths: directories, API bind address, and API token
//   - LLM: chat completion endpoint for step extraction and merging
//   - Whisper: audio transcription endpoint
//   - Storage: S3-compatible bucket for frames, clips, and merged videos
//   - Processing: media pipeline limits and frame extraction tunables
//   - Webhook: completion callback target
//   - Workflow: daemon polling intervals and concurrency
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	LLM        LLM        `toml:"llm"`
	Whisper    Whisper    `toml:"whisper"`
	Storage    Storage    `toml:"storage"`
	Processing Processing `toml:"processing"`
	Webhook    Webhook    `toml:"webhook"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vid2doc/config.toml")
}

// LoadDotenv seeds the process environment from a .env file in the working
// directory when one exists. Existing variables are never overwritten.
func LoadDotenv() {
	_ = godotenv.Load()
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/vid2doc/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("vid2doc.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// CreateSample writes the embedded sample configuration to path.
func CreateSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite job store location under the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "jobs.db")
}

// FFmpegBinary returns the ffmpeg executable name used for media processing.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// YtDlpBinary returns the yt-dlp executable name used for remote downloads.
func (c *Config) YtDlpBinary() string {
	return "yt-dlp"
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
