package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnreadableMedia     = errors.New("unreadable media")
	ErrEncodingFailed      = errors.New("encoding failed")
	ErrSegmentTooLarge     = errors.New("segment too large after bisection")
	ErrTransientService    = errors.New("transient service error")
	ErrAuthentication      = errors.New("authentication error")
	ErrUnintelligibleAudio = errors.New("unintelligible audio")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrCancelled           = errors.New("cancelled")
	ErrConfiguration       = errors.New("configuration error")
	ErrValidation          = errors.New("validation error")
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransientService
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// SegmentError pins a failure to one planned segment.
type SegmentError struct {
	Index int
	Start float64
	End   float64
	Err   error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("segment %d [%.3fs-%.3fs]: %v", e.Index, e.Start, e.End, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// Retryable reports whether err is a transient remote failure worth another attempt.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransientService)
}

// IsCancellation reports whether err represents a user-initiated stop rather
// than a failure.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled)
}

// ErrorClass maps an error to the short class name shown to users.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return ""
	case IsCancellation(err):
		return "cancelled"
	case errors.Is(err, ErrUnreadableMedia):
		return "unreadable_media"
	case errors.Is(err, ErrEncodingFailed):
		return "encoding_failed"
	case errors.Is(err, ErrSegmentTooLarge):
		return "segment_too_large"
	case errors.Is(err, ErrAuthentication):
		return "authentication"
	case errors.Is(err, ErrUnintelligibleAudio):
		return "unintelligible_audio"
	case errors.Is(err, ErrPayloadTooLarge):
		return "payload_too_large"
	case errors.Is(err, ErrTransientService):
		return "transient_service"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrValidation):
		return "validation"
	default:
		return "internal"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
