package config

const (
	defaultDataDir            = "~/.local/share/sprout"
	defaultAudioDir           = "~/.local/share/sprout/audio"
	defaultLogDir             = "~/.local/share/sprout/logs"
	defaultAPIBind            = "127.0.0.1:7511"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultSTTBaseURL         = "https://api.openai.com/v1/audio/transcriptions"
	defaultSTTTextModel       = "whisper-1"
	defaultSTTSpeakerModel    = "whisper-1-diarized"
	defaultSTTTimeoutSeconds  = 300
	defaultLLMBaseURL         = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel           = "google/gemini-3-flash-preview"
	defaultLLMReferer         = "https://github.com/sprout-app/sprout"
	defaultLLMTitle           = "Sprout Session Analysis"
	defaultLLMTimeoutSeconds  = 60
	defaultMaxAttempts        = 3
	defaultMaxConcurrent      = 4
	defaultPollInterval       = 5
	defaultErrorRetryInterval = 10
	defaultNotifyTimeout      = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			LogDir:   defaultLogDir,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Transcription: Transcription{
			BaseURL:        defaultSTTBaseURL,
			TextModel:      defaultSTTTextModel,
			SpeakerModel:   defaultSTTSpeakerModel,
			TimeoutSeconds: defaultSTTTimeoutSeconds,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Pipeline: Pipeline{
			MaxAttempts:        defaultMaxAttempts,
			RetryDelaySeconds:  []int{0, 5, 15},
			MaxConcurrent:      defaultMaxConcurrent,
			PollInterval:       defaultPollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Completion:     true,
			Failures:       true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
