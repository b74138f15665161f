package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/opencampus/tutordex/internal/config"
	"github.com/opencampus/tutordex/internal/domain"
	logpkg "github.com/opencampus/tutordex/internal/logger"
	"github.com/opencampus/tutordex/internal/metrics"
	"github.com/opencampus/tutordex/internal/repository/chunkstore"
	storeRedis "github.com/opencampus/tutordex/internal/repository/chunkstore/redis"
	storeSqlite "github.com/opencampus/tutordex/internal/repository/chunkstore/sqlite"
	"github.com/opencampus/tutordex/internal/repository/querycache"
	chiTransport "github.com/opencampus/tutordex/internal/transport/chi"
	openaiTransport "github.com/opencampus/tutordex/internal/transport/openai"
	answeruc "github.com/opencampus/tutordex/internal/usecase/answer"
	healthuc "github.com/opencampus/tutordex/internal/usecase/health"
	"github.com/opencampus/tutordex/internal/usecase/retrieval"
	"github.com/opencampus/tutordex/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting tutordex API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
	)

	// Create chunk store based on driver
	var store chunkstore.Store
	switch cfg.Database.Driver {
	case "sqlite":
		store, err = storeSqlite.NewStore(cfg.Database.Path)
	case "redis":
		store, err = storeRedis.NewStore(storeRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	if err != nil {
		logger.Fatal("Failed to create chunk store", zap.Error(err))
	}
	defer store.Close()

	// Wait for the store to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Chunk store not ready", zap.Error(err))
	}
	logger.Info("Connected to chunk store")

	// Register retrieval metrics explicitly (no init())
	metrics.RegisterRetrievalMetrics()

	// Build embedder chain — composition root
	base := openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
		APIKey:     cfg.Model.APIKey,
		BaseURL:    cfg.Model.BaseURL,
		Model:      cfg.Model.EmbeddingModel,
		Dimensions: cfg.Model.Dimensions,
		Logger:     logger,
	})
	embedder := querycache.New(base, cfg.Retrieval.CacheCapacity, metrics.QueryCacheTotal, logger)
	logger.Info("Embedder created",
		zap.String("model", cfg.Model.EmbeddingModel),
		zap.Int("dimensions", cfg.Model.Dimensions),
		zap.Int("cache_capacity", cfg.Retrieval.CacheCapacity),
	)

	generator := openaiTransport.NewGenerator(&openaiTransport.GeneratorConfig{
		APIKey:      cfg.Model.APIKey,
		BaseURL:     cfg.Model.BaseURL,
		ChatModel:   cfg.Model.ChatModel,
		VisionModel: cfg.Model.VisionModel,
		MaxTokens:   cfg.Model.MaxAnswerTokens,
		Temperature: cfg.Model.Temperature,
		Logger:      logger,
	})

	// Create use case services
	engine := retrieval.NewEngine(store, logger)
	answerSvc := answeruc.New(embedder, engine, generator, answeruc.Config{
		Policy: retrieval.Policy{
			Threshold:  cfg.Retrieval.SimilarityThreshold,
			MaxResults: cfg.Retrieval.MaxResults,
			ScanLimit:  cfg.Retrieval.ScanLimit,
		},
		MaxContextChunks: cfg.Retrieval.MaxContextChunks,
		MaxCharsPerChunk: cfg.Retrieval.MaxCharsPerChunk,
	}, logger)

	// Health service
	healthSvc := healthuc.New(store, newModelHealthChecker(embedder))

	// Create chi server
	server := chiTransport.NewServer(answerSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// modelHealthChecker wraps domain.Embedder to implement health.ModelChecker.
type modelHealthChecker struct {
	embedder domain.Embedder
}

func newModelHealthChecker(embedder domain.Embedder) *modelHealthChecker {
	return &modelHealthChecker{embedder: embedder}
}

func (h *modelHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("model health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
