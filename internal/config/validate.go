package config

import (
	"errors"
	"fmt"

	"chunkscribe/internal/language"
)

// minByteLimit keeps segment math away from degenerate one-frame payloads.
const minByteLimit = 64 * 1024

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSegmenter(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	return nil
}

// ValidateCredentials reports a missing API key. It is separate from Validate so
// commands that never reach the remote service can run without one.
func (c *Config) ValidateCredentials() error {
	if c.Transcription.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("transcription.api_key is required. Set OPENAI_API_KEY env var or edit %s (create with 'chunkscribe config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateSegmenter() error {
	s := c.Segmenter
	if s.ByteLimit < minByteLimit {
		return fmt.Errorf("segmenter.byte_limit must be at least %d bytes", minByteLimit)
	}
	if s.SplitThreshold <= 0 || s.SplitThreshold > 1 {
		return errors.New("segmenter.split_threshold must be between 0 and 1")
	}
	if s.SafetyRatio <= 0 || s.SafetyRatio > 1 {
		return errors.New("segmenter.safety_ratio must be between 0 and 1")
	}
	if s.SilenceNoiseDB >= 0 {
		return errors.New("segmenter.silence_noise_db must be negative")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.Model == "" {
		return errors.New("transcription.model must be set")
	}
	if c.Transcription.MaxRetries > 20 {
		return errors.New("transcription.max_retries must be <= 20")
	}
	if _, err := language.Normalize(c.Transcription.Language); err != nil {
		return fmt.Errorf("transcription.language: %w", err)
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if err := ensurePositiveMap(map[string]int{
		"pipeline.max_concurrency":              c.Pipeline.MaxConcurrency,
		"pipeline.event_buffer":                 c.Pipeline.EventBuffer,
		"transcription.request_timeout_seconds": c.Transcription.RequestTimeoutSeconds,
	}); err != nil {
		return err
	}
	if c.Pipeline.MaxConcurrency > 32 {
		return errors.New("pipeline.max_concurrency must be <= 32")
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
