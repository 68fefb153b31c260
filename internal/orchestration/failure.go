package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Failure codes surfaced to callers unchanged.
const (
	CodeTimeout     = "ORCHESTRATION_TIMEOUT"
	CodeHTTPError   = "ORCHESTRATION_HTTP_ERROR"
	CodeBadResponse = "ORCHESTRATION_BAD_RESPONSE"
	CodeError       = "ORCHESTRATION_ERROR"
)

// Failure is a classified gateway error. Details carry only an HTTP status
// or a transport category.
type Failure struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// AsFailure reports whether err carries a *Failure.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// TransportCategory groups network errors that happen before any response.
type TransportCategory string

const (
	TransportConnectionReset   TransportCategory = "connection_reset"
	TransportConnectionRefused TransportCategory = "connection_refused"
	TransportTimeout           TransportCategory = "timeout"
	TransportHangUp            TransportCategory = "hang_up"
	TransportOther             TransportCategory = "other"
)

// RetryableTransport lists the categories that earn a second attempt.
var RetryableTransport = map[TransportCategory]bool{
	TransportConnectionReset: true,
	TransportTimeout:         true,
	TransportHangUp:          true,
}

// classifyTransport maps a transport error to its category. It must only be
// called for errors raised before a response was received.
func classifyTransport(err error) TransportCategory {
	switch {
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return TransportConnectionReset
	case errors.Is(err, syscall.ECONNREFUSED):
		return TransportConnectionRefused
	case errors.Is(err, syscall.ETIMEDOUT):
		return TransportTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return TransportHangUp
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return TransportTimeout
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "socket hang up"):
		return TransportHangUp
	case strings.Contains(msg, "connection reset"):
		return TransportConnectionReset
	case strings.Contains(msg, "timeout"):
		return TransportTimeout
	}
	return TransportOther
}

// timeoutFailure reports an expired deadline. A caller that went away is a
// plain error rather than a timeout.
func timeoutFailure(err error) *Failure {
	if errors.Is(err, context.Canceled) {
		return &Failure{Code: CodeError, Message: "Orchestration request canceled"}
	}
	return &Failure{Code: CodeTimeout, Message: "Orchestration request timed out"}
}

func transportFailure(category TransportCategory) *Failure {
	return &Failure{
		Code:    CodeError,
		Message: "Orchestration request failed",
		Details: map[string]any{"category": string(category)},
	}
}

func httpFailure(status int, message string) *Failure {
	return &Failure{
		Code:    CodeHTTPError,
		Message: message,
		Details: map[string]any{"status": status},
	}
}

func badResponse(message string) *Failure {
	return &Failure{Code: CodeBadResponse, Message: message}
}
