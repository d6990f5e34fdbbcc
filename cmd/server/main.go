package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foreko/ingest/internal/api"
	"github.com/foreko/ingest/internal/auth"
	"github.com/foreko/ingest/internal/config"
	"github.com/foreko/ingest/internal/dashboard"
	"github.com/foreko/ingest/internal/db"
	"github.com/foreko/ingest/internal/ingestion"
	"github.com/foreko/ingest/internal/llm"
	"github.com/foreko/ingest/internal/mapping"
	"github.com/foreko/ingest/internal/middleware"
	"github.com/foreko/ingest/internal/objectstore"
	"github.com/foreko/ingest/internal/pipeline"
	"github.com/foreko/ingest/internal/repository"
	"github.com/foreko/ingest/internal/standardize"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := db.RunMigrations(cfg.Database, cfg.Pipeline.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	conn, err := db.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer conn.Close()

	// Repositories share the pool; transactional paths rebind via WithDB.
	companyRepo := repository.NewCompanyRepository(conn.Pool)
	fileRepo := repository.NewFileRepository(conn.Pool)
	rowRepo := repository.NewRawRowRepository(conn.Pool)
	mappingRepo := repository.NewMappingRepository(conn.Pool)
	fieldRepo := repository.NewStandardFieldRepository(conn.Pool)
	learningRepo := repository.NewLearningRepository(conn.Pool)
	recordRepo := repository.NewRecordRepository(conn.Pool)
	errorRepo := repository.NewProcessingErrorRepository(conn.Pool)
	syncRepo := repository.NewDashboardRepository(conn.Pool)

	var archiver ingestion.Archiver
	if cfg.ObjectStore.Enabled {
		store, err := objectstore.NewStore(ctx, objectstore.Config{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			Bucket:    cfg.ObjectStore.Bucket,
			UseSSL:    cfg.ObjectStore.UseSSL,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to object store", zap.Error(err))
		}
		archiver = store
	}

	var provider llm.Provider
	if cfg.LLM.Enabled {
		provider = llm.NewAnthropicProvider(llm.Config{
			BaseURL:      cfg.LLM.BaseURL,
			APIKey:       cfg.LLM.APIKey,
			DefaultModel: cfg.LLM.Model,
			Timeout:      time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
		})
		logger.Info("Column mapping model enabled", zap.String("model", cfg.LLM.Model))
	}

	suggester := mapping.NewSuggester(fieldRepo, learningRepo, provider, mapping.Confidences{
		Exact:                 cfg.Pipeline.ExactConfidence,
		Learned:               cfg.Pipeline.LearnedConfidence,
		Substring:             cfg.Pipeline.SubstringConfidence,
		Fallback:              cfg.Pipeline.FallbackConfidence,
		LearnedMinSuccessRate: cfg.Pipeline.LearnedMinSuccessRate,
	}, logger)
	confirmer := mapping.NewConfirmer(conn, fileRepo, mappingRepo, learningRepo,
		fieldRepo, standardize.IsValidTransform, logger)
	engine := standardize.NewEngine(dashboard.RoutesFor, standardize.Options{
		RowConcurrency:      cfg.Pipeline.RowConcurrency,
		WarningErrorCeiling: cfg.Pipeline.WarningErrorCeiling,
	})
	fanout := dashboard.NewFanout(syncRepo, logger)

	pipelineService := pipeline.NewService(
		fileRepo, rowRepo, mappingRepo, fieldRepo, recordRepo, errorRepo,
		suggester, confirmer, engine, fanout, logger)
	uploadService := ingestion.NewService(fileRepo, rowRepo, archiver, ingestion.Options{
		MaxUploadBytes:   cfg.Pipeline.MaxUploadBytes,
		AllowedFileTypes: cfg.Pipeline.AllowedFileTypes,
	}, logger)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
	})

	handler := api.NewHandler(pipelineService, uploadService, companyRepo, fileRepo, recordRepo, syncRepo, logger)
	handler = auth.Middleware(handler)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Recover(logger)(handler)
	handler = corsHandler.Handler(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting ingestion server", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Let in-flight processing workers finish before the pool closes.
	pipelineService.Wait()
	logger.Info("Server exited")
}
