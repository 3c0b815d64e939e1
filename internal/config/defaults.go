package config

const (
	defaultConfigPath            = "~/.config/chunkscribe/config.toml"
	defaultStateDir              = "~/.local/share/chunkscribe"
	defaultLogDir                = "~/.local/share/chunkscribe/logs"
	defaultBaseURL               = "https://api.openai.com/v1"
	defaultModel                 = "whisper-1"
	defaultRequestTimeoutSeconds = 300
	defaultMaxRetries            = 4
	defaultRetryMaxDelaySeconds  = 30
	// The service documents a 25 MiB ceiling; stay just under it.
	defaultByteLimit          = 24 * 1024 * 1024
	defaultSplitThreshold     = 0.8
	defaultSafetyRatio        = 0.9
	defaultAudioBitrate       = "32k"
	defaultSilenceNoiseDB     = -30.0
	defaultSilenceMinSeconds  = 0.5
	defaultSearchWindowSecond = 3.0
	defaultMinSegmentSeconds  = 1.0
	defaultMaxConcurrency     = 3
	defaultEventBuffer        = 64
	defaultAPIBind            = "127.0.0.1:7610"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 14
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkDir:  defaultWorkDir(),
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Transcription: Transcription{
			BaseURL:               defaultBaseURL,
			Model:                 defaultModel,
			RequestTimeoutSeconds: defaultRequestTimeoutSeconds,
			MaxRetries:            defaultMaxRetries,
			RetryMaxDelaySeconds:  defaultRetryMaxDelaySeconds,
		},
		Segmenter: Segmenter{
			ByteLimit:          defaultByteLimit,
			SplitThreshold:     defaultSplitThreshold,
			SafetyRatio:        defaultSafetyRatio,
			Optimize:           true,
			AudioBitrate:       defaultAudioBitrate,
			SilenceDetection:   true,
			SilenceNoiseDB:     defaultSilenceNoiseDB,
			SilenceMinSeconds:  defaultSilenceMinSeconds,
			SearchWindowSecond: defaultSearchWindowSecond,
			MinSegmentSeconds:  defaultMinSegmentSeconds,
		},
		Pipeline: Pipeline{
			MaxConcurrency: defaultMaxConcurrency,
			EventBuffer:    defaultEventBuffer,
			History:        true,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
