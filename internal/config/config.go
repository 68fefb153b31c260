// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultOrchestrationTimeout = 20 * time.Second
	defaultVertexModel          = "gemini-1.5-flash"
	defaultVertexMaxTokens      = 512
	defaultVertexTimeout        = 20 * time.Second
)

// ErrMissingOrchestrationURL is returned when no orchestration base URL is set.
var ErrMissingOrchestrationURL = errors.New("orchestration base URL is not configured")

// Config holds all application configuration. It is built once by Load and
// passed by value to the components that need it.
type Config struct {
	Port           string
	GRPCPort       int
	DBPath         string
	AllowedOrigins []string
	Auth           AuthConfig
	Orchestration  OrchestrationConfig
	Vertex         VertexConfig
	RateLimit      RateLimitConfig
}

// AuthConfig controls bearer-token verification.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
	Audience  string
}

// OrchestrationConfig locates the external orchestration service.
type OrchestrationConfig struct {
	BaseURL string
	Timeout time.Duration
}

// VertexConfig configures the network-backed assessment provider.
// A zero Project or Location disables it.
type VertexConfig struct {
	Project     string
	Location    string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// Enabled reports whether enough is configured to reach Vertex AI.
func (v VertexConfig) Enabled() bool {
	return v.Project != "" && v.Location != ""
}

// RateLimitConfig bounds requests per caller.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// environment mirrors the process environment. Alternate names for the same
// setting are resolved in Load.
type environment struct {
	Port           string        `env:"PORT" envDefault:"8080"`
	GRPCPort       int           `env:"GRPC_PORT" envDefault:"0"`
	DBPath         string        `env:"DB_PATH" envDefault:"./data/vark.db"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
	JWTSecret      string        `env:"AUTH_JWT_SECRET"`
	JWTIssuer      string        `env:"AUTH_JWT_ISSUER"`
	JWTAudience    string        `env:"AUTH_JWT_AUDIENCE"`
	OrchURL        string        `env:"BEEAI_ORCHESTRATION_URL"`
	OrchBaseURL    string        `env:"BEEAI_ORCHESTRATION_BASE_URL"`
	OrchAPIURL     string        `env:"ORCHESTRATION_API_URL"`
	OrchTimeoutMS  int           `env:"ORCHESTRATION_TIMEOUT_MS"`
	GCPProject     string        `env:"GOOGLE_CLOUD_PROJECT"`
	VertexRegion   string        `env:"VERTEX_REGION"`
	VertexLocation string        `env:"VERTEX_LOCATION"`
	VertexModel    string        `env:"VERTEX_MODEL"`
	VertexTemp     float64       `env:"VERTEX_TEMPERATURE" envDefault:"0.2"`
	VertexMaxTok   int           `env:"VERTEX_MAX_TOKENS"`
	VertexTimeout  int           `env:"VERTEX_TIMEOUT_MS"`
	RateRequests   int           `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	RateWindow     time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var e environment
	if err := env.Parse(&e); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{
		Port:           e.Port,
		GRPCPort:       e.GRPCPort,
		DBPath:         e.DBPath,
		AllowedOrigins: trimAll(e.AllowedOrigins),
		Auth: AuthConfig{
			JWTSecret: e.JWTSecret,
			Issuer:    e.JWTIssuer,
			Audience:  e.JWTAudience,
		},
		Orchestration: OrchestrationConfig{
			BaseURL: strings.TrimRight(firstNonEmpty(e.OrchURL, e.OrchBaseURL, e.OrchAPIURL), "/"),
			Timeout: millisOr(e.OrchTimeoutMS, defaultOrchestrationTimeout),
		},
		Vertex: VertexConfig{
			Project:     e.GCPProject,
			Location:    firstNonEmpty(e.VertexRegion, e.VertexLocation),
			Model:       firstNonEmpty(e.VertexModel, defaultVertexModel),
			Temperature: e.VertexTemp,
			MaxTokens:   defaultVertexMaxTokens,
			Timeout:     millisOr(e.VertexTimeout, defaultVertexTimeout),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: e.RateRequests,
			WindowDuration:    e.RateWindow,
		},
	}
	if e.VertexMaxTok > 0 {
		cfg.Vertex.MaxTokens = e.VertexMaxTok
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.GRPCPort < 0 {
		return fmt.Errorf("GRPC_PORT must be >= 0")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET cannot be empty")
	}
	if c.Orchestration.BaseURL == "" {
		return ErrMissingOrchestrationURL
	}
	if c.Vertex.Temperature < 0 || c.Vertex.Temperature > 2 {
		return fmt.Errorf("VERTEX_TEMPERATURE must be between 0 and 2")
	}
	if c.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// millisOr converts a millisecond setting, falling back when unset or non-positive.
func millisOr(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
