package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateWhisper(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateProcessing(); err != nil {
		return err
	}
	if err := c.validateWebhook(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vid2doc/config.toml"
		}
		return fmt.Errorf("llm.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'vid2doc config init')", defaultPath)
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		return errors.New("llm.model must be set")
	}
	return nil
}

func (c *Config) validateWhisper() error {
	if c.Whisper.APIKey == "" {
		return errors.New("whisper.api_key is required (or set GROQ_API_KEY)")
	}
	if strings.TrimSpace(c.Whisper.Model) == "" {
		return errors.New("whisper.model must be set")
	}
	return nil
}

func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.Storage.Bucket) == "" {
		return errors.New("storage.bucket must be set (or set VID2DOC_S3_BUCKET)")
	}
	if c.Storage.CDNBaseURL != "" {
		parsed, err := url.Parse(c.Storage.CDNBaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("storage.cdn_base_url is not a valid URL: %q", c.Storage.CDNBaseURL)
		}
	}
	return nil
}

func (c *Config) validateProcessing() error {
	if c.Processing.MaxAudioMiB > c.Processing.MaxUploadMiB {
		return errors.New("processing.max_audio_mib must not exceed processing.max_upload_mib")
	}
	if c.Processing.SimilarityThreshold <= 0 || c.Processing.SimilarityThreshold > 1 {
		return errors.New("processing.similarity_threshold must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateWebhook() error {
	if c.Webhook.URL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Webhook.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("webhook.url is not a valid URL: %q", c.Webhook.URL)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.queue_poll_interval":    c.Workflow.QueuePollInterval,
		"workflow.error_retry_interval":   c.Workflow.ErrorRetryInterval,
		"workflow.max_parallel_jobs":      c.Workflow.MaxParallelJobs,
		"webhook.request_timeout":         c.Webhook.RequestTimeout,
		"processing.tool_timeout_seconds": c.Processing.ToolTimeoutSeconds,
	}); err != nil {
		return err
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
