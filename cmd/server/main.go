package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"figmant/internal/auth"
	"figmant/internal/config"
	"figmant/internal/domain/repositories"
	analysisRepo "figmant/internal/domain/repositories/analysis"
	analysisSvc "figmant/internal/domain/services/analysis"
	"figmant/internal/handler"
	"figmant/internal/middleware"
	"figmant/internal/repository/memory"
	"figmant/internal/repository/postgres"
	"figmant/internal/repository/redis"
	"figmant/internal/service/analysis/dispatch"
	"figmant/internal/service/analysis/ingest"
	"figmant/internal/service/analysis/session"
	"figmant/internal/service/analysis/templates"
	"figmant/internal/service/analysis/workspace"
	authSvc "figmant/internal/service/auth"
	"figmant/internal/service/capture"
	"figmant/internal/service/llm"
	"figmant/internal/service/llm/providers/edge"
	"figmant/internal/service/media"
	"figmant/internal/service/storage"
	"figmant/internal/supabase"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	logger, logFile, err := config.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
		"analysis_provider", cfg.AnalysisProvider,
		"capture_backend", cfg.CaptureBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jwtVerifier, err := auth.NewJWTVerifier(cfg.SupabaseJWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Repositories
	var (
		sessionRepo  analysisRepo.SessionRepository
		messageRepo  analysisRepo.MessageRepository
		templateRepo analysisRepo.TemplateRepository
		txManager    repositories.TransactionManager
		pool         *pgxpool.Pool
	)
	switch cfg.RepositoryBackend {
	case "memory":
		logger.Warn("using in-memory repositories, data is lost on restart")
		sessionRepo = memory.NewSessionStore()
		messageRepo = memory.NewMessageStore()
		templateRepo = memory.NewTemplateStore()
		txManager = repositories.NoopTransactionManager{}
	default:
		pool, err = postgres.CreateConnectionPool(ctx, cfg.SupabaseDBURL)
		if err != nil {
			log.Fatalf("Failed to create connection pool: %v", err)
		}
		defer pool.Close()
		logger.Info("database connected")

		repoConfig := &postgres.RepositoryConfig{
			Pool:   pool,
			Tables: postgres.NewTableNames(cfg.TablePrefix),
			Logger: logger,
		}
		sessionRepo = postgres.NewSessionRepository(repoConfig)
		messageRepo = postgres.NewMessageRepository(repoConfig)
		templateRepo = postgres.NewTemplateRepository(repoConfig)
		txManager = postgres.NewTransactionManager(pool, logger)
	}

	// Supabase edge functions back the edge analyzer and capturer
	var functions *supabase.FunctionsClient
	if cfg.SupabaseURL != "" && cfg.SupabaseKey != "" {
		functions = supabase.NewFunctionsClient(cfg.SupabaseURL, cfg.SupabaseKey, 0)
	}

	// File storage
	var fileStorage analysisSvc.FileStorage
	switch cfg.StorageBackend {
	case "memory":
		fileStorage = storage.NewMemory("memory://" + cfg.StorageBucket)
	default:
		fileStorage = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseKey, cfg.StorageBucket)
	}

	// Screenshot capture
	var capturer analysisSvc.ScreenshotCapturer
	switch cfg.CaptureBackend {
	case "rod":
		rodCapturer := capture.NewRod(cfg.ChromeBin, fileStorage, cfg.CaptureTimeout, logger)
		defer rodCapturer.Close()
		capturer = rodCapturer
	case "none":
		capturer = capture.Disabled{}
	default:
		if functions == nil {
			log.Fatalf("CAPTURE_BACKEND=edge requires SUPABASE_URL and SUPABASE_KEY")
		}
		capturer = capture.NewEdge(functions, cfg.CaptureFunction)
	}

	// Analysis provider
	var invoker edge.Invoker
	if functions != nil {
		invoker = functions
	}
	analyzer, err := llm.NewAnalyzer(cfg, invoker)
	if err != nil {
		log.Fatalf("Failed to set up analysis provider: %v", err)
	}

	// Dispatch rate limiting
	var limiter analysisSvc.RateLimiter = redis.Unlimited{}
	if cfg.RedisURL != "" {
		rdb, err := redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		limiter = redis.NewRateLimiter(rdb, "figmant_"+cfg.Environment, cfg.DispatchRateLimit, cfg.DispatchRateWindow)
		logger.Info("dispatch rate limiting enabled",
			"limit", cfg.DispatchRateLimit,
			"window", cfg.DispatchRateWindow,
		)
	}

	// Template catalog
	builtins, err := templates.LoadBuiltins()
	if err != nil {
		log.Fatalf("Failed to load built-in templates: %v", err)
	}
	ownerPolicy := authSvc.NewOwnerPolicy(cfg.OwnerEmails)

	// Services
	ws := workspace.New(sessionRepo, messageRepo, logger)
	if cfg.SessionIdleTTL > 0 {
		go ws.RunSweeper(ctx, cfg.SessionIdleTTL/4, cfg.SessionIdleTTL)
	}
	sessionService := session.NewService(sessionRepo, messageRepo, txManager, ws, logger)
	templateService := templates.NewService(templateRepo, builtins, ownerPolicy, logger)
	pipeline := ingest.NewPipeline(
		fileStorage,
		media.NewProcessor(config.MaxImageBytes, config.MaxImageDimension),
		capturer,
		config.MaxUploadBytes,
		logger,
	)
	dispatcher := dispatch.NewDispatcher(analyzer, messageRepo, sessionRepo, limiter, cfg.AnalysisTimeout, logger)

	// Routes
	mux := http.NewServeMux()
	router := &handler.Router{
		Sessions:  handler.NewSessionHandler(sessionService, ws, logger),
		Workspace: handler.NewWorkspaceHandler(ws, pipeline, dispatcher, templateService, logger),
		Templates: handler.NewTemplateHandler(templateService, logger),
	}
	router.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Order: CORS → Recovery → Metrics → Auth → Routes
	var h http.Handler = mux
	h = middleware.AuthMiddleware(jwtVerifier, ownerPolicy)(h)
	h = middleware.Metrics(mux)(h)
	h = middleware.Recovery(logger)(h)

	// CORS must run before auth to answer pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  2 * time.Minute, // uploads up to the size limit
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "error", err)
	}

	// stops ingestion and analyses still running for any session
	ws.CloseAll()
	logger.Info("server stopped")
}
