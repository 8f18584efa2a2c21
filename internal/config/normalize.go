package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeWhisper()
	c.normalizeStorage()
	c.normalizeProcessing()
	c.normalizeWebhook()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("VID2DOC_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.VisionModel = strings.TrimSpace(c.LLM.VisionModel)
	if c.LLM.VisionModel == "" {
		c.LLM.VisionModel = c.LLM.Model
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
}

func (c *Config) normalizeWhisper() {
	c.Whisper.APIKey = strings.TrimSpace(c.Whisper.APIKey)
	if c.Whisper.APIKey == "" {
		if value, ok := os.LookupEnv("GROQ_API_KEY"); ok {
			c.Whisper.APIKey = strings.TrimSpace(value)
		} else {
			c.Whisper.APIKey = c.LLM.APIKey
		}
	}
	c.Whisper.BaseURL = strings.TrimSpace(c.Whisper.BaseURL)
	if c.Whisper.BaseURL == "" {
		c.Whisper.BaseURL = defaultWhisperBaseURL
	}
	c.Whisper.Model = strings.TrimSpace(c.Whisper.Model)
	if c.Whisper.Model == "" {
		c.Whisper.Model = defaultWhisperModel
	}
	if c.Whisper.TimeoutSeconds <= 0 {
		c.Whisper.TimeoutSeconds = defaultWhisperTimeout
	}
}

func (c *Config) normalizeStorage() {
	c.Storage.Bucket = strings.TrimSpace(c.Storage.Bucket)
	if c.Storage.Bucket == "" {
		if value, ok := os.LookupEnv("VID2DOC_S3_BUCKET"); ok {
			c.Storage.Bucket = strings.TrimSpace(value)
		}
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	c.Storage.Endpoint = strings.TrimSpace(c.Storage.Endpoint)
	c.Storage.AccessKeyID = strings.TrimSpace(c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = strings.TrimSpace(c.Storage.SecretAccessKey)
	c.Storage.CDNBaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.CDNBaseURL), "/")
	c.Storage.KeyPrefix = strings.Trim(strings.TrimSpace(c.Storage.KeyPrefix), "/")
}

func (c *Config) normalizeProcessing() {
	if c.Processing.MaxUploadMiB <= 0 {
		c.Processing.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.Processing.MaxAudioMiB <= 0 {
		c.Processing.MaxAudioMiB = defaultMaxAudioMiB
	}
	if c.Processing.FrameWidth <= 0 {
		c.Processing.FrameWidth = defaultFrameWidth
	}
	if c.Processing.FrameHeight <= 0 {
		c.Processing.FrameHeight = defaultFrameHeight
	}
	if c.Processing.FrameOffsetSeconds < 0 {
		c.Processing.FrameOffsetSeconds = defaultFrameOffsetSeconds
	}
	if c.Processing.ClipSeconds <= 0 {
		c.Processing.ClipSeconds = defaultClipSeconds
	}
	if c.Processing.SampleInterval <= 0 {
		c.Processing.SampleInterval = defaultSampleInterval
	}
	if c.Processing.SampleTimeoutSeconds <= 0 {
		c.Processing.SampleTimeoutSeconds = defaultSampleTimeout
	}
	if c.Processing.SimilarityThreshold <= 0 {
		c.Processing.SimilarityThreshold = defaultSimilarityThreshold
	}
	if c.Processing.ToolTimeoutSeconds <= 0 {
		c.Processing.ToolTimeoutSeconds = defaultToolTimeoutSeconds
	}
	if c.Processing.PreferredSteps <= 0 {
		c.Processing.PreferredSteps = defaultPreferredSteps
	}
	c.Processing.PreferredLanguage = strings.TrimSpace(c.Processing.PreferredLanguage)
	if c.Processing.PreferredLanguage == "" {
		c.Processing.PreferredLanguage = defaultPreferredLanguage
	}
	c.Processing.PreferredTonality = strings.TrimSpace(c.Processing.PreferredTonality)
	if c.Processing.PreferredTonality == "" {
		c.Processing.PreferredTonality = defaultPreferredTonality
	}
	if c.Processing.MaxConcurrentUploads <= 0 {
		c.Processing.MaxConcurrentUploads = defaultMaxUploads
	}
}

func (c *Config) normalizeWebhook() {
	c.Webhook.URL = strings.TrimSpace(c.Webhook.URL)
	c.Webhook.Secret = strings.TrimSpace(c.Webhook.Secret)
	if c.Webhook.Secret == "" {
		if value, ok := os.LookupEnv("WEBHOOK_SECRET"); ok {
			c.Webhook.Secret = strings.TrimSpace(value)
		}
	}
	if c.Webhook.RequestTimeout <= 0 {
		c.Webhook.RequestTimeout = defaultWebhookTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json", "auto":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
