package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pplp-service/config"
	"pplp-service/handlers"
	"pplp-service/models"
	"pplp-service/services"
	"pplp-service/utils"
	"pplp-service/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("❌ invalid configuration: ", err)
	}
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		log.Fatal("❌ invalid scoring policy: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outbox services.MintOutbox
	if cfg.Outbox.Enabled() {
		r2, err := utils.NewR2Outbox(ctx, cfg.Outbox)
		if err != nil {
			log.Fatal("failed to initialize signer outbox:", err)
		}
		outbox = r2
	} else {
		log.Println("⚠️  R2_OUTBOX_BUCKET not set, signer must poll pending_sig mint requests")
	}

	caps := services.NewCapService(db, policy)
	scoring := services.NewScoringService(db, policy, caps)
	actions := services.NewActionService(db, policy, scoring)
	fraud := services.NewFraudService(db, policy)
	devices := services.NewDeviceService(db)
	mint := services.NewMintService(db, policy, fraud, outbox, cfg.EIP712, cfg.WalletChain)
	batch := services.NewBatchService(db, policy, scoring, mint)
	authClient := services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.AuthServiceToken)

	sched, err := batch.StartBatchScheduler(ctx, cfg.BatchInterval)
	if err != nil {
		log.Fatal("failed to start batch scheduler:", err)
	}

	if cfg.SyncServiceURL != "" {
		walletSync := workers.NewWalletSyncClient(db, cfg.SyncServiceURL, cfg.ServiceToken)
		go workers.PollWallets(ctx, walletSync, cfg.WalletPollInterval)
		log.Printf("✅ Wallet polling running (every %s)", cfg.WalletPollInterval)
	}

	app := fiber.New(fiber.Config{
		AppName:   "pplp-service",
		BodyLimit: 1 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${locals:requestid} ${status} ${method} ${path} ${latency}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Client-Info, apikey, X-Request-ID",
		MaxAge:       86400,
	}))

	handlers.SetupPPLPRoutes(app, handlers.PPLPServices{
		DB:             db,
		Actions:        actions,
		Scoring:        scoring,
		Batch:          batch,
		Fraud:          fraud,
		Devices:        devices,
		Mint:           mint,
		Verifier:       authClient,
		ServiceToken:   cfg.ServiceToken,
		RequestTimeout: cfg.RequestTimeout,
	})

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ PPLP service running on http://localhost:%s (policy %s)", cfg.Port, policy.Version)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := sched.Shutdown(); err != nil {
		log.Printf("scheduler shutdown: %v", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
