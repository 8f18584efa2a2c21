package config

const (
	defaultDataDir             = "~/.local/share/vid2doc"
	defaultWorkDir             = "~/.local/share/vid2doc/work"
	defaultLogDir              = "~/.local/share/vid2doc/logs"
	defaultAPIBind             = "127.0.0.1:8103"
	defaultLLMBaseURL          = "https://api.openai.com/v1"
	defaultLLMModel            = "gpt-4o"
	defaultLLMTimeoutSeconds   = 120
	defaultWhisperBaseURL      = "https://api.groq.com/openai/v1"
	defaultWhisperModel        = "whisper-large-v3"
	defaultWhisperTimeout      = 300
	defaultStorageRegion       = "us-east-1"
	defaultMaxUploadMiB        = 50
	defaultMaxAudioMiB         = 25
	defaultFrameWidth          = 1280
	defaultFrameHeight         = 720
	defaultFrameOffsetSeconds  = 4
	defaultClipSeconds         = 6
	defaultSampleInterval      = 5
	defaultSampleTimeout       = 300
	defaultSimilarityThreshold = 0.1
	defaultToolTimeoutSeconds  = 300
	defaultPreferredSteps      = 10
	defaultPreferredLanguage   = "en"
	defaultPreferredTonality   = "neutral"
	defaultMaxUploads          = 4
	defaultWebhookTimeout      = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			WorkDir: defaultWorkDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Whisper: Whisper{
			BaseURL:        defaultWhisperBaseURL,
			Model:          defaultWhisperModel,
			TimeoutSeconds: defaultWhisperTimeout,
		},
		Storage: Storage{
			Region: defaultStorageRegion,
		},
		Processing: Processing{
			MaxUploadMiB:         defaultMaxUploadMiB,
			MaxAudioMiB:          defaultMaxAudioMiB,
			FrameWidth:           defaultFrameWidth,
			FrameHeight:          defaultFrameHeight,
			FrameOffsetSeconds:   defaultFrameOffsetSeconds,
			ClipSeconds:          defaultClipSeconds,
			SampleInterval:       defaultSampleInterval,
			SampleTimeoutSeconds: defaultSampleTimeout,
			SimilarityThreshold:  defaultSimilarityThreshold,
			ToolTimeoutSeconds:   defaultToolTimeoutSeconds,
			PreferredSteps:       defaultPreferredSteps,
			PreferredLanguage:    defaultPreferredLanguage,
			PreferredTonality:    defaultPreferredTonality,
			MaxConcurrentUploads: defaultMaxUploads,
		},
		Webhook: Webhook{
			RequestTimeout: defaultWebhookTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:  5,
			ErrorRetryInterval: 10,
			MaxParallelJobs:    1,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
