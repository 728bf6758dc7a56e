package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxErrorBodyPreview = 512

// MapHTTPError classifies a non-2xx provider response.
func MapHTTPError(statusCode int, body []byte, header http.Header) error {
	preview := strings.TrimSpace(string(body))
	if preview == "" {
		preview = http.StatusText(statusCode)
	}
	if len(preview) > maxErrorBodyPreview {
		preview = preview[:maxErrorBodyPreview] + "..."
	}
	base := fmt.Errorf("status %d: %s", statusCode, preview)

	switch {
	case statusCode == http.StatusUnauthorized:
		return &PermanentError{Err: base, StatusCode: statusCode, Message: "Authentication failed. Please check your API key configuration."}
	case statusCode == http.StatusForbidden:
		return &PermanentError{Err: base, StatusCode: statusCode, Message: "Permission denied by the model provider."}
	case statusCode == http.StatusTooManyRequests:
		retryAfter := 0
		if header != nil {
			retryAfter = ParseRetryAfter(header.Get("Retry-After"))
		}
		return &TransientError{Err: base, StatusCode: statusCode, RetryAfter: retryAfter, Message: "API rate limit reached. Please retry later."}
	case IsTransientHTTPStatus(statusCode):
		return &TransientError{Err: base, StatusCode: statusCode, Message: fmt.Sprintf("Model provider unavailable (%d). Retrying may help.", statusCode)}
	case statusCode >= 400 && statusCode < 500:
		return &PermanentError{Err: base, StatusCode: statusCode, Message: fmt.Sprintf("Model provider rejected the request (%d): %s", statusCode, preview)}
	default:
		return &PermanentError{Err: base, StatusCode: statusCode}
	}
}

// WrapRequestError classifies a transport failure. Caller cancellation
// passes through untouched.
func WrapRequestError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientError{Err: err, Message: "Request timed out. Try a smaller request or increase the timeout."}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TransientError{Err: err, Message: "Network timeout while contacting the model provider."}
	}
	return &TransientError{Err: err, Message: fmt.Sprintf("Request to model provider failed: %v", err)}
}

// ParseRetryAfter returns the Retry-After header as whole seconds, accepting
// both delta-seconds and HTTP-date forms.
func ParseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return seconds
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return int(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}
