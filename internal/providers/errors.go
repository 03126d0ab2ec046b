package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/desertthunder/tunemeld/internal/shared"
)

// Kind is the terminal outcome of one adapter call.
type Kind int

const (
	KindOK Kind = iota
	KindNotFound
	KindRateLimited
	KindAuthFailed
	KindTimeout
	KindNotEntitled
	KindPluginError
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindAuthFailed:
		return "auth_failed"
	case KindTimeout:
		return "timeout"
	case KindNotEntitled:
		return "not_entitled"
	case KindPluginError:
		return "plugin_error"
	case KindCancelled:
		return "cancelled"
	default:
		return ""
	}
}

// Classify maps an adapter error to its outcome kind. Unknown errors are plugin errors.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindOK
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, shared.ErrNotFound):
		return KindNotFound
	case errors.Is(err, shared.ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, shared.ErrAuthFailed), errors.Is(err, shared.ErrMissingCredentials):
		return KindAuthFailed
	case errors.Is(err, shared.ErrNotEntitled):
		return KindNotEntitled
	case errors.Is(err, shared.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		return KindPluginError
	}
}

// Retryable reports whether the error is worth another attempt: rate limits, timeouts and transient network failures.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, shared.ErrRateLimited) ||
		errors.Is(err, shared.ErrTimeout) ||
		errors.Is(err, shared.ErrTransient) ||
		errors.Is(err, context.DeadlineExceeded)
}

// RateLimitError is returned when a service throttles a request, carrying any server-provided wait.
type RateLimitError struct {
	Service    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: rate limited, retry after %v", e.Service, e.RetryAfter)
	}
	return fmt.Sprintf("%s: rate limited", e.Service)
}

func (e *RateLimitError) Unwrap() error { return shared.ErrRateLimited }

// RetryAfter extracts a server-provided wait from err, if any.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}

// CheckResponse maps an HTTP status code to the outcome sentinels.
func CheckResponse(service string, resp *http.Response) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s returned %d", shared.ErrAuthFailed, service, code)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %s returned %d", shared.ErrNotFound, service, code)
	case code == http.StatusTooManyRequests:
		return &RateLimitError{Service: service, RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s returned %d", shared.ErrTimeout, service, code)
	case code >= 500:
		return fmt.Errorf("%w: %s returned %d", shared.ErrTransient, service, code)
	default:
		return fmt.Errorf("%s API error: status %d", service, code)
	}
}

// RequestError classifies a failed [http.Client.Do] call.
func RequestError(service string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s: %v", shared.ErrTimeout, service, err)
	}
	return fmt.Errorf("%w: %s request failed: %v", shared.ErrTransient, service, err)
}

// parseRetryAfter accepts the delay-seconds form of Retry-After.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
