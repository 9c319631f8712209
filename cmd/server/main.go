package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/visionary-ai/storyboard-server/internal/api"
	"github.com/visionary-ai/storyboard-server/internal/config"
	"github.com/visionary-ai/storyboard-server/internal/database"
	"github.com/visionary-ai/storyboard-server/internal/genai"
	"github.com/visionary-ai/storyboard-server/internal/notify"
	"github.com/visionary-ai/storyboard-server/internal/repository"
	"github.com/visionary-ai/storyboard-server/internal/service"
	"github.com/visionary-ai/storyboard-server/internal/storage"
	"github.com/visionary-ai/storyboard-server/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New()

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	accountRepo := repository.NewAccountRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	tierRepo := repository.NewTierRepository(db)
	pendingRepo := repository.NewPendingOrderRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	generationRepo := repository.NewGenerationRepository(db)

	uploader, err := storage.NewUploader(storage.Config{
		Endpoint:      cfg.S3Endpoint,
		Region:        cfg.S3Region,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		Bucket:        cfg.S3Bucket,
		PublicBaseURL: cfg.S3PublicBaseURL,
		UsePathStyle:  cfg.S3UsePathStyle,
		Prefix:        cfg.S3Prefix,
	})
	if err != nil {
		log.Fatalf("storage uploader: %v", err)
	}

	ops, err := notify.New(cfg.OpsTelegramToken, cfg.OpsTelegramChatID, logr)
	if err != nil {
		log.Fatalf("ops notifier: %v", err)
	}

	genaiClient := genai.NewClient(cfg, logr)

	accountService := service.NewAccountService(cfg, accountRepo, sessionRepo)
	ledgerService := service.NewLedgerService(cfg, accountRepo)
	tierService := service.NewTierService(tierRepo)
	paymentService := service.NewPaymentService(cfg, tierService, pendingRepo, paymentRepo, ops)
	generationService := service.NewGenerationService(cfg, logr, ledgerService, genaiClient, genaiClient, uploader, generationRepo)
	adSessions := service.NewAdSessionManager(cfg.MinAdWatch)

	if err := tierService.EnsureDefaultTiers(ctx); err != nil {
		log.Fatalf("ensure default tiers: %v", err)
	}

	server := api.NewServer(cfg, logr, accountService, ledgerService, adSessions, paymentService, generationService, tierService, accountRepo)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logr.Error("api server stopped", "err", err)
	}
}
