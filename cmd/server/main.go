// VARK assessment gateway server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/vark-gateway/internal/api"
	"github.com/ashureev/vark-gateway/internal/assessment"
	"github.com/ashureev/vark-gateway/internal/config"
	"github.com/ashureev/vark-gateway/internal/health"
	"github.com/ashureev/vark-gateway/internal/identity"
	"github.com/ashureev/vark-gateway/internal/middleware"
	"github.com/ashureev/vark-gateway/internal/orchestration"
	"github.com/ashureev/vark-gateway/internal/provider"
	"github.com/ashureev/vark-gateway/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "grpc_port", cfg.GRPCPort, "vertex", cfg.Vertex.Enabled())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prov, err := provider.NewFromConfig(ctx, cfg.Vertex, logger)
	if err != nil {
		slog.Error("Failed to initialize assessment provider", "error", err)
		os.Exit(1)
	}

	gateway, err := orchestration.NewClient(cfg.Orchestration, orchestration.WithLogger(logger))
	if err != nil {
		slog.Error("Failed to initialize orchestration client", "error", err)
		os.Exit(1)
	}
	slog.Info("Orchestration client ready", "base_url", cfg.Orchestration.BaseURL, "timeout", cfg.Orchestration.Timeout)

	ctrl := assessment.NewController(gateway, repo, prov, logger)
	assessmentHandler := assessment.NewHandler(ctrl, logger)
	wsHandler := assessment.NewWebSocketHandler(ctrl, originPatterns(cfg.AllowedOrigins), logger)
	baseHandler := api.NewHandler(repo, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.WindowDuration)
	defer limiter.Stop()

	verifier := identity.NewVerifier(cfg.Auth)

	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	r.Get("/api/health", baseHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(verifier))
		r.Use(limiter.Middleware)

		r.Post("/api/assessment/chat", assessmentHandler.Chat)
		r.Post("/api/learning-style/assess", assessmentHandler.Assess)
		r.Get("/ws/assessment", wsHandler.ServeHTTP)

		r.Get("/api/students/{studentID}", baseHandler.GetStudent)
		r.Put("/api/students/{studentID}", baseHandler.PutStudent)
		r.Get("/api/students/{studentID}/assessments", baseHandler.ListAssessments)
	})

	// WriteTimeout stays unset so WebSocket sessions are not cut off.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	var healthServer *health.Server
	if cfg.GRPCPort > 0 {
		lis, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.GRPCPort))
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "port", cfg.GRPCPort, "error", err)
			os.Exit(1)
		}
		healthServer = health.NewServer(repo, logger)
		go func() {
			slog.Info("gRPC health listening", "addr", lis.Addr().String())
			if err := healthServer.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	if healthServer != nil {
		healthServer.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// originPatterns converts configured CORS origins into the host patterns the
// WebSocket accept check expects.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			out = append(out, u.Host)
			continue
		}
		out = append(out, o)
	}
	return out
}
