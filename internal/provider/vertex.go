package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/ashureev/vark-gateway/internal/config"
	"github.com/ashureev/vark-gateway/internal/domain"
)

const (
	vertexMaxAttempts = 2
	vertexRetryDelay  = 200 * time.Millisecond
)

// contentGenerator is the slice of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Vertex asks a Gemini model on Vertex AI for a strict-JSON insight.
type Vertex struct {
	models      contentGenerator
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	retryDelay  time.Duration
	logger      *slog.Logger
	metrics     *Metrics
	now         func() time.Time
}

// NewVertex creates a provider backed by the Vertex AI generative API.
func NewVertex(ctx context.Context, cfg config.VertexConfig, logger *slog.Logger) (*Vertex, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.Project,
		Location: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newVertex(client.Models, cfg, logger), nil
}

func newVertex(models contentGenerator, cfg config.VertexConfig, logger *slog.Logger) *Vertex {
	if logger == nil {
		logger = slog.Default()
	}
	return &Vertex{
		models:      models,
		model:       cfg.Model,
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxTokens),
		timeout:     cfg.Timeout,
		retryDelay:  vertexRetryDelay,
		logger:      logger,
		metrics:     NewMetrics(),
		now:         time.Now,
	}
}

// Generate sends the transcript and normalizes the model's answer.
func (v *Vertex) Generate(ctx context.Context, transcript []domain.Message) (*domain.Insight, error) {
	contents := []*genai.Content{{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: buildPrompt(transcript)}},
	}}
	temp := v.temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  v.maxTokens,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}

	var lastErr *Error
	for attempt := 1; attempt <= vertexMaxAttempts; attempt++ {
		text, err := v.attempt(ctx, contents, genCfg)
		if err == nil {
			return v.parse(text)
		}
		lastErr = err

		v.logger.Warn("assessment provider attempt failed",
			"model", v.model,
			"attempt", attempt,
			"code", err.Code,
			"error", err.Err,
		)
		if attempt == vertexMaxAttempts || !retryable(ctx, err) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, &Error{Code: CodeTimeout, Err: ctx.Err()}
		case <-time.After(v.retryDelay):
		}
	}
	return nil, lastErr
}

func (v *Vertex) attempt(ctx context.Context, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (string, *Error) {
	attemptCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	resp, err := v.models.GenerateContent(attemptCtx, v.model, contents, genCfg)
	v.metrics.Duration.WithLabelValues(v.model).Observe(time.Since(start).Seconds())

	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("attempt exceeded %s: %w", v.timeout, attemptCtx.Err())
		}
		classified := classify(err)
		v.metrics.Requests.WithLabelValues(v.model, strings.ToLower(classified.Code)).Inc()
		return "", classified
	}
	v.metrics.Requests.WithLabelValues(v.model, "ok").Inc()

	if resp == nil {
		return "", &Error{Code: CodeBadResponse, Err: errors.New("empty response")}
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &Error{Code: CodeBadResponse, Err: errors.New("empty response text")}
	}
	return text, nil
}

func (v *Vertex) parse(text string) (*domain.Insight, error) {
	obj, ok := extractJSON(text)
	if !ok {
		return nil, &Error{Code: CodeBadResponse, Err: errors.New("no JSON object in response")}
	}
	if err := validateInsight(obj); err != nil {
		return nil, &Error{Code: CodeBadResponse, Err: err}
	}
	return NormalizeText(string(obj), v.model, v.now().UTC()), nil
}

func classify(err error) *Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusGatewayTimeout:
			return &Error{Code: CodeTimeout, Err: err}
		default:
			return &Error{Code: CodeUnavailable, Err: err}
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || isTimeoutMessage(err) {
		return &Error{Code: CodeTimeout, Err: err}
	}
	return &Error{Code: CodeUnavailable, Err: err}
}

// retryable allows one more attempt for throttling, overload and timeouts,
// unless the caller has already given up.
func retryable(ctx context.Context, e *Error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code == http.StatusServiceUnavailable
	}
	return e.Code == CodeTimeout
}

func isTimeoutMessage(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") || strings.Contains(msg, "deadline")
}

func buildPrompt(transcript []domain.Message) string {
	var b strings.Builder
	b.WriteString("You are an assistant that must return STRICT JSON only.\n")
	b.WriteString("Analyze the conversation and output JSON with exactly these keys:\n")
	b.WriteString("learningStyle, confidence, explanation, nextSteps.\n")
	b.WriteString(`learningStyle must be one of ["Visual","Auditory","Read/Write","Kinesthetic","Multimodal"].` + "\n")
	b.WriteString("confidence is a number from 0 to 1.\n")
	b.WriteString("explanation is a short parent-friendly string.\n")
	b.WriteString("nextSteps is an array of 3-6 short suggestions.\n")
	b.WriteString("Conversation transcript:\n")
	for _, m := range transcript {
		b.WriteString(strings.ToUpper(string(m.Role)))
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteString("\n")
	}
	return b.String()
}
