// Package provider infers a learning style from an assessment transcript.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/vark-gateway/internal/config"
	"github.com/ashureev/vark-gateway/internal/domain"
)

// Provider turns a transcript into a learning-style insight.
type Provider interface {
	Generate(ctx context.Context, transcript []domain.Message) (*domain.Insight, error)
}

// Error codes reported by network-backed providers.
const (
	CodeUnavailable = "PROVIDER_UNAVAILABLE"
	CodeTimeout     = "PROVIDER_TIMEOUT"
	CodeBadResponse = "PROVIDER_BAD_RESPONSE"
)

// Error is a classified provider failure.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

// ModelUnavailable labels the safe result used when a provider fails.
const ModelUnavailable = "unavailable"

const (
	minNextSteps = 3
	maxNextSteps = 6

	defaultConfidence  = 0.5
	defaultExplanation = "We could not confidently determine a single learning style, so a blended approach is recommended."
)

var defaultNextSteps = []string{
	"Mix visuals, discussion, and hands-on activities.",
	"Ask the student which format feels easiest today.",
	"Adjust study methods based on what keeps them engaged.",
}

// SafeInsight is the blended result returned when nothing usable came back.
func SafeInsight(model string, now time.Time) *domain.Insight {
	return &domain.Insight{
		LearningStyle: domain.StyleMultimodal,
		Confidence:    defaultConfidence,
		Explanation:   defaultExplanation,
		NextSteps:     append([]string(nil), defaultNextSteps...),
		Model:         model,
		CreatedAt:     now,
	}
}

// rawInsight is the loosely typed shape a model is asked to emit.
type rawInsight struct {
	LearningStyle string          `json:"learningStyle"`
	Confidence    *float64        `json:"confidence"`
	Explanation   *string         `json:"explanation"`
	NextSteps     json.RawMessage `json:"nextSteps"`
}

// Normalize coerces an insight into the allowed shape field by field:
// unknown styles, out-of-range confidence, and step lists outside 3 to 6
// entries are replaced by the safe defaults.
func Normalize(in *domain.Insight, now time.Time) *domain.Insight {
	if in == nil {
		return SafeInsight(ModelUnavailable, now)
	}
	out := SafeInsight(in.Model, now)
	if in.LearningStyle.Valid() {
		out.LearningStyle = in.LearningStyle
	}
	if in.Confidence >= 0 && in.Confidence <= 1 {
		out.Confidence = in.Confidence
	}
	if strings.TrimSpace(in.Explanation) != "" {
		out.Explanation = in.Explanation
	}
	if steps := nonEmpty(in.NextSteps); len(steps) >= minNextSteps && len(steps) <= maxNextSteps {
		out.NextSteps = steps
	}
	return out
}

// NormalizeText parses model output into an insight. JSON wrapped in prose
// is recovered by taking the first '{' through the last '}'. Output that
// cannot be parsed yields the safe result.
func NormalizeText(text, model string, now time.Time) *domain.Insight {
	obj, ok := extractJSON(text)
	if !ok {
		return SafeInsight(model, now)
	}
	var raw rawInsight
	if err := json.Unmarshal(obj, &raw); err != nil {
		return SafeInsight(model, now)
	}

	in := &domain.Insight{
		LearningStyle: domain.LearningStyle(raw.LearningStyle),
		Confidence:    -1,
		Model:         model,
	}
	if raw.Confidence != nil {
		in.Confidence = *raw.Confidence
	}
	if raw.Explanation != nil {
		in.Explanation = *raw.Explanation
	}
	in.NextSteps = stringItems(raw.NextSteps)
	return Normalize(in, now)
}

func extractJSON(text string) ([]byte, bool) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return []byte(text), true
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, false
	}
	obj := []byte(text[start : end+1])
	if !json.Valid(obj) {
		return nil, false
	}
	return obj, true
}

// stringItems keeps only the string members of a JSON array.
func stringItems(raw json.RawMessage) []string {
	var items []any
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// NewFromConfig returns the Vertex provider when a project and region are
// configured, and the deterministic fallback otherwise.
func NewFromConfig(ctx context.Context, cfg config.VertexConfig, logger *slog.Logger) (Provider, error) {
	if !cfg.Enabled() {
		logger.Info("assessment provider", "kind", "fallback")
		return NewFallback(""), nil
	}
	p, err := NewVertex(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create vertex provider: %w", err)
	}
	logger.Info("assessment provider", "kind", "vertex", "model", cfg.Model, "location", cfg.Location)
	return p, nil
}
