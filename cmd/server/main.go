package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lexsign/internal/api"
	"github.com/lexsign/internal/config"
	"github.com/lexsign/internal/db"
	"github.com/lexsign/internal/db/models"
	"github.com/lexsign/internal/esign"
	"github.com/lexsign/internal/notify"
	"github.com/lexsign/internal/services"
	"github.com/lexsign/pkg/logger"
	"github.com/lexsign/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

func main() {
	var cfg *config.Configuration
	if path := os.Getenv("LEXSIGN_CONFIG"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg = config.InitializeDefaultConfig()
	}

	zapLogger, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()
	zap.ReplaceGlobals(zapLogger)

	config.LogConfig(zapLogger)

	database, err := db.Initialize(cfg)
	if err != nil {
		zapLogger.Fatal("Failed to initialize database", zap.Error(err))
	}

	metricsCollector := metrics.NewMetricsCollector()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := seedDatabase(ctx, database, zapLogger); err != nil {
		zapLogger.Fatal("Failed to seed database", zap.Error(err))
	}

	provider := buildProvider(cfg, zapLogger)
	notifier := notify.NewEmailNotifier(notify.Config{
		Enabled:  cfg.Notification.Enabled,
		Host:     cfg.Notification.Host,
		Port:     cfg.Notification.Port,
		Username: cfg.Notification.Username,
		Password: cfg.Notification.Password,
		From:     cfg.Notification.From,
		AppName:  cfg.Notification.AppName,
		AppURL:   cfg.Notification.AppURL,
	}, zapLogger)

	auditLog := services.NewAuditLog(database, zapLogger)
	authService := services.NewAuthService(database, zapLogger)
	defer authService.Close()
	documentService := services.NewDocumentService(database, zapLogger, metricsCollector)
	certificateService := services.NewCertificateService(database, services.CertificateConfig{
		OutputDir:     cfg.Certificate.OutputDir,
		VerifyBaseURL: cfg.Certificate.VerifyBaseURL,
	}, zapLogger)
	signatureEngine := services.NewSignatureEngine(database, provider, certificateService,
		auditLog, notifier, services.EngineConfig{SignedDir: cfg.Certificate.SignedDir},
		zapLogger, metricsCollector)
	orchestrator := services.NewWorkflowOrchestrator(database, signatureEngine, auditLog,
		notifier, services.WorkflowConfig{
			ReminderCooldown: cfg.Workflow.ReminderCooldown,
			SigningBaseURL:   cfg.Server.BaseURL,
		}, zapLogger)

	router := api.NewRouter(zapLogger, metricsCollector, authService, documentService,
		signatureEngine, orchestrator, certificateService, auditLog, database)
	router.SetupRoutes()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	go func() {
		if err := router.Run(":" + port); err != nil {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()
	zapLogger.Info("Server started",
		zap.String("port", port),
		zap.String("esign_mode", cfg.ESign.Mode))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zapLogger.Info("Shutting down server...")

	sqlDB, err := db.DB.DB()
	if err == nil {
		sqlDB.Close()
	}
	zapLogger.Info("Server gracefully stopped")
}

// buildProvider selects the e-sign strategy once at startup; the rest of
// the process never checks the mode again.
func buildProvider(cfg *config.Configuration, zapLogger *zap.Logger) esign.Client {
	if cfg.ESign.Mode == "live" {
		live := esign.LiveConfig{
			BaseURL:      cfg.ESign.BaseURL,
			ClientID:     cfg.ESign.ClientID,
			ClientSecret: cfg.ESign.ClientSecret,
			CallbackURL:  cfg.ESign.CallbackURL,
			Timeout:      cfg.ESign.Timeout,
			SignTimeout:  cfg.ESign.SignTimeout,
		}
		if !live.Configured() {
			zapLogger.Fatal("Live esign mode requires base_url, client_id and client_secret")
		}
		zapLogger.Info("Using live esign provider", zap.String("base_url", live.BaseURL))
		return esign.NewLiveClient(live, zapLogger)
	}
	zapLogger.Warn("Using simulated esign provider; signatures are not legally valid")
	return esign.NewSimulatedClient(zapLogger, esign.WithOTPTTL(cfg.ESign.OTPTTL))
}

func seedDatabase(ctx context.Context, database *gorm.DB, logger *zap.Logger) error {
	var count int64
	database.Model(&models.User{}).Count(&count)
	if count > 0 {
		logger.Info("Database already seeded, skipping")
		return nil
	}
	logger.Info("Seeding database with initial data")

	hash, err := bcrypt.GenerateFromPassword([]byte("changeme123"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	users := []models.User{
		{Username: "admin", Email: "admin@lexsign.local", PasswordHash: string(hash), FullName: "Administrator", Active: true},
		{Username: "demo", Email: "demo@lexsign.local", PasswordHash: string(hash), FullName: "Demo User", Active: true},
	}
	if err := database.WithContext(ctx).Create(&users).Error; err != nil {
		return err
	}
	logger.Info("Created initial users", zap.Int("count", len(users)))

	logger.Info("Database seeding completed successfully")
	return nil
}
