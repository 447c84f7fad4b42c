package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/verdantclimate/verdant-backend/api/routes"
	"github.com/verdantclimate/verdant-backend/internal/catalog"
	"github.com/verdantclimate/verdant-backend/internal/chat"
	checkoutsvc "github.com/verdantclimate/verdant-backend/internal/checkout"
	"github.com/verdantclimate/verdant-backend/internal/email"
	"github.com/verdantclimate/verdant-backend/internal/inventory"
	"github.com/verdantclimate/verdant-backend/internal/leaderboard"
	"github.com/verdantclimate/verdant-backend/internal/orders"
	"github.com/verdantclimate/verdant-backend/internal/pricing"
	internalwebhooks "github.com/verdantclimate/verdant-backend/internal/webhooks"
	"github.com/verdantclimate/verdant-backend/pkg/config"
	"github.com/verdantclimate/verdant-backend/pkg/db"
	"github.com/verdantclimate/verdant-backend/pkg/logger"
	"github.com/verdantclimate/verdant-backend/pkg/metrics"
	"github.com/verdantclimate/verdant-backend/pkg/migrate"
	"github.com/verdantclimate/verdant-backend/pkg/redis"
	"github.com/verdantclimate/verdant-backend/pkg/stripe"
)

const webhookDedupTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.App.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	cat, err := catalog.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load product catalog", err)
		os.Exit(1)
	}

	inventoryRepo, err := inventory.NewRepository(dbClient.DB(), cat)
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory repository", err)
		os.Exit(1)
	}
	if err := inventoryRepo.EnsureInitialized(context.Background()); err != nil {
		logg.Error(context.Background(), "failed to seed inventory", err)
		os.Exit(1)
	}

	stripeClient, err := stripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe client", err)
		os.Exit(1)
	}

	engine, err := pricing.NewEngine(cfg.Pricing, cfg.Checkout, cat)
	if err != nil {
		logg.Error(context.Background(), "failed to create pricing engine", err)
		os.Exit(1)
	}

	snapshotRepo, err := checkoutsvc.NewSnapshotRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create snapshot repository", err)
		os.Exit(1)
	}

	storeMetrics := metrics.NewStoreMetrics()

	checkoutService, err := checkoutsvc.NewService(engine, inventoryRepo, stripeClient, snapshotRepo, cfg.Checkout, logg, storeMetrics)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	emailSender, err := email.NewSender(cfg.Sendgrid, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create email sender", err)
		os.Exit(1)
	}

	leaderboardService, err := leaderboard.NewService(stripeClient, redisClient, cfg.Leaderboard, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create leaderboard service", err)
		os.Exit(1)
	}

	auditLog, err := orders.NewAuditLog(cfg.Audit.OrderLogPath)
	if err != nil {
		logg.Error(context.Background(), "failed to open order audit log", err)
		os.Exit(1)
	}
	if auditLog != nil {
		defer func() {
			if err := auditLog.Close(); err != nil {
				logg.Error(context.Background(), "error closing audit log", err)
			}
		}()
	}

	ordersRepo, err := orders.NewRepository(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create orders repository", err)
		os.Exit(1)
	}

	ordersService, err := orders.NewService(
		dbClient,
		ordersRepo,
		snapshotRepo,
		inventoryRepo,
		stripeClient,
		engine,
		emailSender,
		leaderboardService,
		auditLog,
		logg,
		storeMetrics,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	webhookService, err := internalwebhooks.NewService(internalwebhooks.ServiceParams{
		Orders:  ordersService,
		Logger:  logg,
		Metrics: storeMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := internalwebhooks.NewIdempotencyGuard(redisClient, webhookDedupTTL, "stripe-webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	var chatService chat.Service
	if cfg.OpenAI.APIKey != "" {
		chatService, err = chat.NewService(cfg.OpenAI, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to create chat service", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "openai api key missing, support chat disabled")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:        cfg,
			Logger:        logg,
			Metrics:       storeMetrics,
			DB:            dbClient,
			Cache:         redisClient,
			Catalog:       cat,
			Inventory:     inventoryRepo,
			Checkout:      checkoutService,
			Orders:        ordersService,
			Leaderboard:   leaderboardService,
			Chat:          chatService,
			StripeGateway: stripeClient,
			WebhookSvc:    webhookService,
			WebhookGuard:  webhookGuard,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
