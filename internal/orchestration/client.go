// Package orchestration is the client for the external VARK orchestration service.
package orchestration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/vark-gateway/internal/config"
	"github.com/ashureev/vark-gateway/internal/domain"
)

// ErrNotConfigured is returned when no base URL was provided.
var ErrNotConfigured = errors.New("orchestration API URL is not configured")

const (
	startPath   = "/api/assessment/vark/start"
	respondPath = "/api/assessment/vark/respond"

	maxAttempts       = 2
	defaultRetryDelay = 200 * time.Millisecond
	defaultTimeout    = 20 * time.Second

	// maxBodyBytes bounds how much of an upstream body is read.
	maxBodyBytes = 1 << 20
)

// Gateway is the contract the session controller depends on.
type Gateway interface {
	StartSession(ctx context.Context, studentID string, gradeBand domain.GradeBand) (*Response, error)
	SubmitAnswer(ctx context.Context, sessionID, answer, studentID string) (*Response, error)
}

// Client talks to the orchestration service over HTTP.
type Client struct {
	baseURL    string
	timeout    time.Duration
	retryDelay time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client from the immutable orchestration config.
func NewClient(cfg config.OrchestrationConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		baseURL:    base,
		timeout:    timeout,
		retryDelay: defaultRetryDelay,
		httpClient: &http.Client{},
		logger:     slog.Default(),
		metrics:    NewMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type startRequest struct {
	StudentID string           `json:"studentId"`
	GradeBand domain.GradeBand `json:"gradeBand,omitempty"`
}

type respondRequest struct {
	SessionID string `json:"sessionId"`
	Answer    string `json:"answer"`
	StudentID string `json:"studentId,omitempty"`
}

// StartSession opens a new assessment session for a student.
func (c *Client) StartSession(ctx context.Context, studentID string, gradeBand domain.GradeBand) (*Response, error) {
	return c.postJSON(ctx, call{
		step:      "start",
		path:      startPath,
		payload:   startRequest{StudentID: studentID, GradeBand: gradeBand},
		studentID: studentID,
	})
}

// SubmitAnswer sends one answer for an existing session.
func (c *Client) SubmitAnswer(ctx context.Context, sessionID, answer, studentID string) (*Response, error) {
	return c.postJSON(ctx, call{
		step:      "respond",
		path:      respondPath,
		payload:   respondRequest{SessionID: sessionID, Answer: answer, StudentID: studentID},
		studentID: studentID,
		sessionID: sessionID,
	})
}

type call struct {
	step      string
	path      string
	payload   any
	studentID string
	sessionID string
}

// attemptResult is the outcome of one HTTP attempt. Exactly one of resp and
// failure is set; retry asks the loop for a second attempt.
type attemptResult struct {
	resp    *Response
	failure *Failure
	retry   bool
}

func (c *Client) postJSON(ctx context.Context, cl call) (*Response, error) {
	if c == nil || c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(cl.payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", cl.step, err)
	}

	var last *Failure
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		c.logger.Info("orchestration request",
			"step", cl.step,
			"student_id", cl.studentID,
			"session_id", cl.sessionID,
			"attempt", attempt,
		)

		res := c.attempt(ctx, cl, body, attempt)
		if res.failure == nil {
			return res.resp, nil
		}
		last = res.failure
		if !res.retry || attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, timeoutFailure(ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}

	c.logger.Warn("orchestration request failed",
		"step", cl.step,
		"student_id", cl.studentID,
		"session_id", cl.sessionID,
		"code", last.Code,
		"message", last.Message,
	)
	return nil, last
}

func (c *Client) attempt(ctx context.Context, cl call, body []byte, attempt int) attemptResult {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		c.metrics.Duration.WithLabelValues(cl.step).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+cl.path, bytes.NewReader(body))
	if err != nil {
		c.count(cl.step, "error")
		return attemptResult{failure: &Failure{Code: CodeError, Message: err.Error()}}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Our own deadline or the caller's cancellation ends the call.
		if attemptCtx.Err() != nil {
			c.count(cl.step, "timeout")
			return attemptResult{failure: timeoutFailure(attemptCtx.Err())}
		}
		category := classifyTransport(err)
		c.count(cl.step, string(category))
		c.logger.Debug("orchestration transport error", "step", cl.step, "category", category, "error", err)
		return attemptResult{
			failure: transportFailure(category),
			retry:   RetryableTransport[category],
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if attemptCtx.Err() != nil {
			c.count(cl.step, "timeout")
			return attemptResult{failure: timeoutFailure(attemptCtx.Err())}
		}
		category := classifyTransport(err)
		c.count(cl.step, string(category))
		c.logger.Debug("orchestration transport error", "step", cl.step, "category", category, "error", err)
		return attemptResult{
			failure: transportFailure(category),
			retry:   RetryableTransport[category],
		}
	}

	switch {
	case resp.StatusCode >= 500:
		c.count(cl.step, "http_5xx")
		return attemptResult{
			failure: httpFailure(resp.StatusCode, fmt.Sprintf("Orchestration request failed (%d)", resp.StatusCode)),
			retry:   attempt == 1,
		}
	case resp.StatusCode >= 300:
		c.count(cl.step, "http_4xx")
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = fmt.Sprintf("Orchestration request failed (%d)", resp.StatusCode)
		}
		return attemptResult{failure: httpFailure(resp.StatusCode, msg)}
	}

	out, err := decodeResponse(data)
	if err != nil {
		c.count(cl.step, "bad_response")
		return attemptResult{failure: badResponse("Invalid JSON in orchestration response")}
	}
	if f := enforceShape(out); f != nil {
		c.count(cl.step, "bad_response")
		return attemptResult{failure: f}
	}
	c.count(cl.step, "ok")
	return attemptResult{resp: out}
}

func (c *Client) count(step, outcome string) {
	c.metrics.Attempts.WithLabelValues(step, outcome).Inc()
}
