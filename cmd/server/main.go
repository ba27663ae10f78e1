package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/kelvinjia/ai-procurement/internal/application/engine"
	"github.com/kelvinjia/ai-procurement/internal/config"
	"github.com/kelvinjia/ai-procurement/internal/extraction"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/external/openai"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/identity"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/persistence/repository"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/persistence/sqlite"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/storage"
	"github.com/kelvinjia/ai-procurement/internal/infrastructure/worker"
	httpapi "github.com/kelvinjia/ai-procurement/internal/interfaces/http"
	"github.com/kelvinjia/ai-procurement/internal/pogen"
	"github.com/kelvinjia/ai-procurement/internal/validation"
	"github.com/kelvinjia/ai-procurement/pkg/database"
	"github.com/kelvinjia/ai-procurement/pkg/utils"
)

func main() {
	// Local .env overrides are optional.
	_ = gotenv.Load()

	cfg, err := config.Load(configPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting AI Procurement Approval System",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	// Database
	db, err := database.Open(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()

	if err := database.NewMigrator(db, logger).Run(); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories and transaction manager
	txManager := sqlite.NewDB(db, logger)
	requestRepo := repository.NewRequestRepository(db, logger)
	stepRepo := repository.NewStepRepository(db, logger)
	attachmentRepo := repository.NewAttachmentRepository(db, logger)
	metadataRepo := repository.NewMetadataRepository(db, logger)
	orderRepo := repository.NewPurchaseOrderRepository(db, logger)
	validationRepo := repository.NewValidationResultRepository(db, logger)
	auditRepo := repository.NewAuditRepository(db, logger)

	// Document storage
	docs, err := storage.NewLocalDocumentStore(cfg.Storage.BaseDir, logger)
	if err != nil {
		logger.Fatal("Failed to initialize document store", zap.Error(err))
	}

	// Document intelligence pipelines
	aiClient := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Timeout)
	extractor := extraction.New(docs, aiClient, cfg.OpenAI.Model, cfg.Workflow.ConfidenceFloor, logger)
	validator := validation.New(extractor, cfg.Workflow.AmountTolerance, cfg.Workflow.ConfidenceFloor, logger)

	// Background extraction
	extractionWorker := worker.NewExtractionWorker(worker.ExtractionWorkerConfig{
		QueueSize:      cfg.Extraction.QueueSize,
		Concurrency:    cfg.Extraction.Concurrency,
		ProcessTimeout: cfg.Extraction.ProcessTimeout,
	}, extractor, logger)

	// Approval engine
	roles := identity.NewStaticRoleProvider(cfg.Approvers, logger)
	generator := pogen.New(cfg.Workflow.CompanyName, logger)
	eng := engine.New(
		requestRepo, stepRepo, attachmentRepo, metadataRepo,
		orderRepo, validationRepo, auditRepo, txManager,
		docs, roles, generator, validator, extractionWorker,
		engine.Config{ExternalTimeout: cfg.Workflow.ExternalTimeout},
		logger,
	)
	extractionWorker.SetRecorder(eng)

	// Workers
	workers := worker.NewManager(logger)
	workers.Register(extractionWorker)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	// HTTP server
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, eng, sugaredLogger{logger.Sugar()})

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server error", zap.Error(err))
	}

	if err := workers.StopAll(); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}

	logger.Info("Server exited successfully")
}

// sugaredLogger adapts *zap.SugaredLogger to the httpapi.Logger interface,
// which expects structured key-value logging (zap's Infow/Errorw).
type sugaredLogger struct {
	s *zap.SugaredLogger
}

func (l sugaredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Infow(msg, keysAndValues...)
}

func (l sugaredLogger) Error(msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, keysAndValues...)
}

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "configs/config.yaml"
}
