package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/controllers"
	"github.com/ManuelReschke/CreditFox/internal/pkg/billing"
	"github.com/ManuelReschke/CreditFox/internal/pkg/cache"
	"github.com/ManuelReschke/CreditFox/internal/pkg/config"
	"github.com/ManuelReschke/CreditFox/internal/pkg/database"
	"github.com/ManuelReschke/CreditFox/internal/pkg/env"
	"github.com/ManuelReschke/CreditFox/internal/pkg/mail"
	"github.com/ManuelReschke/CreditFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/CreditFox/internal/pkg/notify"
	"github.com/ManuelReschke/CreditFox/internal/pkg/router"
)

func main() {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Config] %v", err)
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatalf("[Database] %v", err)
	}

	var rdb *redis.Client
	if cfg.CacheEnabled() {
		rdb = cache.New(cacheOptions(cfg))
	} else {
		log.Warn("[Cache] CACHE_HOST not set, running without locks and counters")
	}

	app := NewApplication(cfg, db, rdb)

	go func() {
		if err := app.Listen(cfg.ListenAddr()); err != nil {
			log.Fatalf("[Server] %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("[Server] shutting down")
	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		log.Errorf("[Server] shutdown: %v", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func NewApplication(cfg *config.Config, db *gorm.DB, rdb *redis.Client) *fiber.App {
	repo := billing.NewRepository(db)
	processor := billing.NewProcessorClient(cfg.ProcessorSecretKey, cfg.ProcessorAPIBaseURL, cfg.ProcessorTimeout)
	reconciler := billing.NewReconciler(repo, processor, newNotifier(cfg), billing.ReconcilerConfig{
		WebhookSecret:      cfg.ProcessorWebhookSecret,
		SignatureTolerance: cfg.WebhookTolerance,
		WriteTimeout:       cfg.DBWriteTimeout,
		LockTTL:            cfg.ReconcileLockTTL,
	})
	checkout := billing.NewCheckoutService(repo, processor, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)

	required := map[string]controllers.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	optional := map[string]controllers.HealthCheck{}

	deps := router.Deps{
		Health:           controllers.NewHealthController(required, optional),
		InternalAPIToken: cfg.InternalAPIToken,
		MetricsUser:      cfg.MetricsUser,
		MetricsPassword:  cfg.MetricsPassword,
	}

	var outcomes controllers.OutcomeSnapshotter
	if rdb != nil {
		outcomeCounter := counter.NewOutcomeCounter(rdb)
		reconciler.WithLocker(cache.NewLocker(rdb)).WithOutcomeRecorder(outcomeCounter)
		outcomes = outcomeCounter
		optional["cache"] = func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}
		deps.LimiterStorage = cache.LimiterStorage(cacheOptions(cfg))
	}
	deps.Billing = controllers.NewBillingController(reconciler, checkout, outcomes, cfg.DBWriteTimeout+cfg.ProcessorTimeout)

	app := fiber.New(fiber.Config{
		AppName:   "CreditFox",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	if basePath := findBasePath(); basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     "v1",
		}))
	} else {
		log.Warn("[Server] openapi document not found, /docs/api disabled")
	}

	// ROUTER
	router.InstallRouter(app, deps)

	return app
}

func newNotifier(cfg *config.Config) billing.Notifier {
	if cfg.NotifyURL == "" && cfg.MailEnabled() {
		log.Infof("[Notify] NOTIFY_URL not set, sending notifications via SMTP %s", cfg.SMTPHost)
		return mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPSender)
	}
	return notify.NewSender(cfg.NotifyURL, cfg.NotifyTimeout)
}

func cacheOptions(cfg *config.Config) cache.Options {
	return cache.Options{
		Host:     cfg.CacheHost,
		Port:     cfg.CachePort,
		Password: cfg.CachePassword,
		DB:       cfg.CacheDB,
	}
}

func findBasePath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			return path
		}
	}
	return ""
}
