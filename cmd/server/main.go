package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"loom/internal/auth"
	"loom/internal/config"
	"loom/internal/handler"
	"loom/internal/handler/sse"
	"loom/internal/jobs"
	"loom/internal/middleware"
	"loom/internal/realtime"
	"loom/internal/repository/postgres"
	"loom/internal/service"
	"loom/internal/service/embedding"
	"loom/internal/service/generation"
	"loom/internal/service/llm"
	"loom/internal/service/pipeline"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" || cfg.Debug {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to setup log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// JWT verifier against the identity provider's JWKS endpoint
	verifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer verifier.Close()

	// pgx connection pool
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Repositories
	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	membershipRepo := postgres.NewMembershipRepository(repoConfig)
	clientRepo := postgres.NewClientRepository(repoConfig)
	projectRepo := postgres.NewProjectRepository(repoConfig)
	projectTypeRepo := postgres.NewProjectTypeRepository(repoConfig)
	templateRepo := postgres.NewAiTemplateRepository(repoConfig)
	docRepo := postgres.NewDocumentRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Provider drivers
	embedder, err := embedding.SetupDriver(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to setup embedding driver: %v", err)
	}
	llmDriver, err := llm.SetupDriver(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to setup LLM driver: %v", err)
	}
	logger.Info("providers initialized",
		"embedding", embedder.Name(),
		"llm", llmDriver.Name(),
	)

	// Realtime: in-process hub, optionally bridged across instances via
	// redis pub/sub when REDIS_ADDR is set.
	hub := realtime.NewHub(logger)
	var notifier realtime.Notifier = hub
	if cfg.RedisAddr != "" {
		bus, err := realtime.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, hub, logger)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx); err != nil {
			log.Fatalf("Failed to start redis forwarder: %v", err)
		}
		notifier = bus
		logger.Info("redis event bus connected", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}

	// Pipeline: dispatcher decides transitions, workers run provider calls.
	queue := jobs.NewMemoryQueue(cfg.JobQueueSize)
	dispatcher := pipeline.NewDispatcher(docRepo, queue, notifier, logger)
	creator := pipeline.NewCreator(docRepo, dispatcher)
	generator := generation.NewService(embedder, llmDriver, docRepo, creator, logger)

	registry := jobs.NewRegistry()
	registry.Register(jobs.KindEmbedDocument,
		pipeline.NewEmbedHandler(docRepo, embedder, dispatcher, logger))
	registry.Register(jobs.KindGenerateDeliverables,
		pipeline.NewGenerateHandler(docRepo, projectRepo, projectTypeRepo, templateRepo, generator, dispatcher, logger))

	worker := jobs.NewWorker(queue, registry, cfg.WorkerConcurrency, cfg.LLMTimeout, logger)
	worker.Start(ctx)
	logger.Info("worker pool started", "concurrency", cfg.WorkerConcurrency)

	// Services
	projectService := service.NewProjectService(projectRepo, projectTypeRepo, clientRepo, membershipRepo, logger)
	docService := service.NewDocumentService(docRepo, projectRepo, projectTypeRepo, membershipRepo, txManager, dispatcher, embedder, logger)
	catalogService := service.NewProjectTypeService(projectTypeRepo, templateRepo, membershipRepo, logger)

	// Handlers
	projectHandler := handler.NewProjectHandler(projectService, logger)
	docHandler := handler.NewDocumentHandler(docService, logger)
	catalogHandler := handler.NewProjectTypeHandler(catalogService, logger)
	eventsHandler := handler.NewEventsHandler(projectService, hub, sse.DefaultConfig(), logger)

	logger.Info("services initialized")

	// HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", docHandler.HealthCheck)

	// Project routes
	mux.HandleFunc("GET /api/projects", projectHandler.ListProjects)
	mux.HandleFunc("POST /api/projects", projectHandler.CreateProject)
	mux.HandleFunc("GET /api/projects/{id}", projectHandler.GetProject)
	mux.HandleFunc("PATCH /api/projects/{id}", projectHandler.UpdateProject)
	mux.HandleFunc("DELETE /api/projects/{id}", projectHandler.DeleteProject)

	// Document routes
	mux.HandleFunc("POST /api/projects/{id}/documents", docHandler.CreateDocument)
	mux.HandleFunc("GET /api/projects/{id}/documents", docHandler.ListDocuments)
	mux.HandleFunc("GET /api/projects/{id}/documents/search", docHandler.SearchDocuments) // Must come before {docID} route
	mux.HandleFunc("GET /api/projects/{id}/documents/{docID}", docHandler.GetDocument)
	mux.HandleFunc("PATCH /api/projects/{id}/documents/{docID}", docHandler.UpdateDocument)
	mux.HandleFunc("DELETE /api/projects/{id}/documents/{docID}", docHandler.DeleteDocument)

	// Pipeline event stream
	mux.HandleFunc("GET /api/projects/{id}/events", eventsHandler.StreamEvents)

	// Catalog routes
	mux.HandleFunc("POST /api/project-types", catalogHandler.CreateProjectType)
	mux.HandleFunc("GET /api/project-types/{id}", catalogHandler.GetProjectType)
	mux.HandleFunc("PUT /api/project-types/{id}", catalogHandler.UpdateProjectType)
	mux.HandleFunc("POST /api/ai-templates", catalogHandler.CreateTemplate)
	mux.HandleFunc("DELETE /api/ai-templates/{id}", catalogHandler.DeleteTemplate)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS -> Recovery -> Auth -> Tenant -> Routes
	root = middleware.TenantMiddleware(membershipRepo)(root)
	root = middleware.AuthMiddleware(verifier)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID", "X-Organization-ID"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
