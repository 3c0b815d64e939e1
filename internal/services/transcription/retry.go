package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chunkscribe/internal/logging"
	"chunkscribe/internal/services"
)

const stageTranscribing = "transcribing"

// withRetry runs send until it succeeds, fails permanently, or the retry
// budget is spent. Each attempt gets its own deadline derived from ctx.
func (c *Client) withRetry(ctx context.Context, op string, send func(context.Context) ([]byte, error), logger *slog.Logger) ([]byte, error) {
	attempts := c.retryAttempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCancelled, stageTranscribing, op, "", err)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		body, err := send(attemptCtx)
		cancel()
		if err == nil {
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, services.Wrap(services.ErrCancelled, stageTranscribing, op, "", ctxErr)
		}
		classified, retry := classify(op, err)
		if !retry {
			return nil, classified
		}
		lastErr = err
		if attempt == attempts {
			break
		}
		delay := c.retryDelay(err, attempt)
		logger.Warn("transcription request failed; retrying",
			logging.String(logging.FieldEventType, "request_retry"),
			logging.String(logging.FieldErrorHint, "transient service failure"),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("delay", delay),
			logging.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, services.Wrap(services.ErrCancelled, stageTranscribing, op, "", err)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown retry failure")
	}
	return nil, services.Wrap(services.ErrTransientService, stageTranscribing, op,
		fmt.Sprintf("failed after %d attempts", attempts), lastErr)
}

// classify maps a single attempt failure onto an error marker and reports
// whether another attempt may succeed.
func classify(op string, err error) (error, bool) {
	var transport *transportError
	if errors.As(err, &transport) {
		return services.Wrap(services.ErrTransientService, stageTranscribing, op, "transport failure", err), true
	}
	var malformed *malformedResponseError
	if errors.As(err, &malformed) {
		return services.Wrap(services.ErrTransientService, stageTranscribing, op, "malformed response", err), true
	}
	var statusErr *httpStatusError
	if !errors.As(err, &statusErr) {
		return err, false
	}
	code := statusErr.StatusCode
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransientService, stageTranscribing, op, "", err), true
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return services.Wrap(services.ErrAuthentication, stageTranscribing, op, "credentials rejected", err), false
	case code == http.StatusRequestEntityTooLarge:
		return services.Wrap(services.ErrPayloadTooLarge, stageTranscribing, op, "upload rejected as too large", err), false
	case code == http.StatusNotFound:
		return services.Wrap(services.ErrConfiguration, stageTranscribing, op, "endpoint or model not found", err), false
	case code == http.StatusBadRequest, code == http.StatusUnsupportedMediaType, code == http.StatusUnprocessableEntity:
		if mentionsAudio(statusErr.Body) {
			return services.Wrap(services.ErrUnintelligibleAudio, stageTranscribing, op, "audio rejected", err), false
		}
		return services.Wrap(services.ErrValidation, stageTranscribing, op, "request rejected", err), false
	default:
		return services.Wrap(services.ErrValidation, stageTranscribing, op, "", err), false
	}
}

func mentionsAudio(body string) bool {
	body = strings.ToLower(body)
	for _, hint := range []string{"audio", "file", "decod", "format", "duration"} {
		if strings.Contains(body, hint) {
			return true
		}
	}
	return false
}

func (c *Client) retryAttempts() int {
	if c == nil || c.maxRetries <= 0 {
		return 1
	}
	return c.maxRetries + 1
}

func (c *Client) retryDelay(err error, attempt int) time.Duration {
	var statusErr *httpStatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return c.capDelay(statusErr.RetryAfter)
	}
	return c.backoffDelay(attempt)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := defaultRetryBaseDelay
	maxDelay := defaultRetryMaxDelay
	if c.retryBaseDelay >= 0 {
		base = c.retryBaseDelay
	}
	if c.retryMaxDelay > 0 {
		maxDelay = c.retryMaxDelay
	}
	if base <= 0 {
		return 0
	}
	if attempt <= 0 {
		attempt = 1
	}
	// attempt 1 -> base, attempt 2 -> base*2, attempt 3 -> base*4, ...
	delay := base
	for i := 1; i < attempt; i++ {
		if delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	return c.capDelay(delay)
}

func (c *Client) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	maxDelay := defaultRetryMaxDelay
	if c.retryMaxDelay > 0 {
		maxDelay = c.retryMaxDelay
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

func (c *Client) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func parseRetryAfter(value string) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0, false
		}
		return time.Duration(seconds) * time.Second, true
	}
	if when, err := http.ParseTime(value); err == nil {
		delay := time.Until(when)
		if delay < 0 {
			return 0, false
		}
		return delay, true
	}
	return 0, false
}
