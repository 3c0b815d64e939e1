package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"chunkscribe/internal/logging"
	"chunkscribe/internal/segment"
	"chunkscribe/internal/services"
)

const (
	defaultBaseURL        = "https://api.openai.com/v1"
	defaultModel          = "whisper-1"
	defaultRequestTimeout = 5 * time.Minute
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 30 * time.Second
	defaultMaxRetries     = 4
	maxErrorBodyBytes     = 4096
)

// Config captures the runtime settings required to talk to the service.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	RequestTimeout time.Duration
}

// Client talks to an OpenAI-compatible /audio/transcriptions endpoint. It
// holds no per-call state and is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries     int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	sleeper        func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithMaxRetries sets how many times a transient failure is retried.
func WithMaxRetries(retries int) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.maxRetries = retries
		}
	}
}

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.retryBaseDelay = baseDelay
		c.retryMaxDelay = maxDelay
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "transcription")
	}
}

// NewClient constructs a Client using the supplied configuration.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	client := &Client{
		cfg:            cfg,
		httpClient:     &http.Client{},
		logger:         logging.NewNop(),
		maxRetries:     defaultMaxRetries,
		retryBaseDelay: defaultRetryBaseDelay,
		retryMaxDelay:  defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads audio and returns its text and, when requested, cues.
func (c *Client) Transcribe(ctx context.Context, audio segment.Audio, opts Options) (Result, error) {
	if c.cfg.APIKey == "" {
		return Result{}, services.Wrap(services.ErrConfiguration, "transcribing", "transcribe", "api key required", nil)
	}
	data, err := os.ReadFile(audio.Path)
	if err != nil {
		return Result{}, fmt.Errorf("transcribe: read segment %d: %w", audio.Segment.Index, err)
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = c.cfg.Model
	}
	responseFormat := "json"
	if opts.WantCues {
		responseFormat = "verbose_json"
	}
	fields := map[string]string{
		"model":           model,
		"response_format": responseFormat,
	}
	if hint := strings.TrimSpace(opts.LanguageHint); hint != "" {
		fields["language"] = hint
	}
	if prompt := strings.TrimSpace(opts.Prompt); prompt != "" {
		fields["prompt"] = prompt
	}
	if opts.WantCues {
		fields["timestamp_granularities[]"] = "segment"
	}

	requestID, ok := services.RequestIDFromContext(ctx)
	if !ok {
		requestID = uuid.NewString()
	}
	logger := logging.WithContext(ctx, c.logger)

	var parsed transcriptionResponse
	_, err = c.withRetry(ctx, "transcribe", func(attemptCtx context.Context) ([]byte, error) {
		req, err := newMultipartRequest(attemptCtx, c.endpoint("audio/transcriptions"), filepath.Base(audio.Path), data, fields)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("X-Request-ID", requestID)
		body, err := c.do(req)
		if err != nil {
			return nil, err
		}
		parsed = transcriptionResponse{}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, &malformedResponseError{err: err}
		}
		return body, nil
	}, logger)
	if err != nil {
		return Result{}, err
	}
	result := Result{SegmentIndex: audio.Segment.Index, Text: parsed.Text}
	if opts.WantCues {
		result.Cues = cuesFromResponse(parsed, audio.Segment.Duration())
	}
	logger.Debug("segment transcribed",
		logging.Int(logging.FieldSegmentIndex, audio.Segment.Index),
		logging.Int("text_chars", len(result.Text)),
		logging.Int("cues", len(result.Cues)),
		logging.String(logging.FieldCorrelationID, requestID),
	)
	return result, nil
}

// cuesFromResponse turns verbose_json segments into cues. A response with
// text but no segments becomes one cue spanning the whole segment.
func cuesFromResponse(parsed transcriptionResponse, segmentDuration float64) []Cue {
	cues := make([]Cue, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := max(seg.Start, 0)
		end := max(seg.End, start)
		cues = append(cues, Cue{Start: start, End: end, Text: text})
	}
	if len(cues) == 0 {
		if text := strings.TrimSpace(parsed.Text); text != "" {
			cues = append(cues, Cue{Start: 0, End: max(segmentDuration, 0), Text: text})
		}
	}
	return cues
}

// HealthCheck lists models to verify the endpoint and API key.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.cfg.APIKey == "" {
		return services.Wrap(services.ErrConfiguration, "status", "health", "api key required", nil)
	}
	_, err := c.withRetry(ctx, "health", func(attemptCtx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.endpoint("models"), nil)
		if err != nil {
			return nil, fmt.Errorf("health: new request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return c.do(req)
	}, c.logger)
	return err
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.cfg.Model
}

func (c *Client) endpoint(path string) string {
	joined, err := url.JoinPath(c.cfg.BaseURL, path)
	if err != nil {
		return c.cfg.BaseURL + "/" + path
	}
	return joined
}

func newMultipartRequest(ctx context.Context, endpoint, fileName string, data []byte, fields map[string]string) (*http.Request, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("transcribe: create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("transcribe: write form file: %w", err)
	}
	for _, key := range []string{"model", "response_format", "language", "prompt", "timestamp_granularities[]"} {
		value, ok := fields[key]
		if !ok {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return nil, fmt.Errorf("transcribe: write field %s: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("transcribe: close form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("transcribe: new request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req, nil
}

type httpStatusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// transportError marks failures before a response arrived.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }

func (e *transportError) Unwrap() error { return e.err }

// malformedResponseError marks a success status whose body did not decode.
type malformedResponseError struct {
	err error
}

func (e *malformedResponseError) Error() string { return "decode response: " + e.err.Error() }

func (e *malformedResponseError) Unwrap() error { return e.err }

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &transportError{err: err}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &transportError{err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		retryAfter, _ := parseRetryAfter(resp.Header.Get("Retry-After"))
		if len(body) > maxErrorBodyBytes {
			body = body[:maxErrorBodyBytes]
		}
		return nil, &httpStatusError{
			StatusCode: resp.StatusCode,
			Body:       apiErrorMessage(body),
			RetryAfter: retryAfter,
		}
	}
	return body, nil
}

// apiErrorMessage extracts error.message from an OpenAI-style error body,
// falling back to the raw text.
func apiErrorMessage(body []byte) string {
	var payload struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && strings.TrimSpace(payload.Error.Message) != "" {
		return strings.TrimSpace(payload.Error.Message)
	}
	return strings.TrimSpace(string(body))
}
