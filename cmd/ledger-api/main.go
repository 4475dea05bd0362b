package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/academy-ledger-api/api/swagger"
	"github.com/noah-isme/academy-ledger-api/internal/handler"
	"github.com/noah-isme/academy-ledger-api/internal/middleware"
	"github.com/noah-isme/academy-ledger-api/internal/repository"
	"github.com/noah-isme/academy-ledger-api/internal/repository/memstore"
	"github.com/noah-isme/academy-ledger-api/internal/scheduler"
	"github.com/noah-isme/academy-ledger-api/internal/service"
	"github.com/noah-isme/academy-ledger-api/pkg/cache"
	"github.com/noah-isme/academy-ledger-api/pkg/config"
	"github.com/noah-isme/academy-ledger-api/pkg/database"
	"github.com/noah-isme/academy-ledger-api/pkg/export"
	"github.com/noah-isme/academy-ledger-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/academy-ledger-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/academy-ledger-api/pkg/middleware/requestid"
	"github.com/noah-isme/academy-ledger-api/pkg/signing"
)

// @title Academy Ledger API
// @version 1.0.0
// @description Enrollment, subscription, attendance, fee and make-up class ledger for the art academy.
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

type ledgerServices struct {
	tx            service.Transactor
	enrollments   *service.EnrollmentService
	subscriptions *service.SubscriptionService
	fees          *service.FeeLedgerService
	compensations *service.CompensationService
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handler.ReadinessCheck{}

	var services ledgerServices
	switch cfg.Store.Driver {
	case config.StoreDriverMemory:
		logr.Warn("using in-memory store; data is lost on restart")
		services = memoryServices(memstore.New(cfg.Store.Timeout), logr)
	default:
		db, err := database.NewPostgres(cfg.Database, cfg.Store.Timeout)
		if err != nil {
			logr.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer db.Close() //nolint:errcheck

		if cfg.Database.AutoMigrate {
			if err := database.Migrate(db); err != nil {
				logr.Fatal("failed to apply migrations", zap.Error(err))
			}
		}
		checks["postgres"] = db.PingContext
		services = postgresServices(db, cfg.Store.Timeout, logr)
	}

	metrics := service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if cfg.FeeCache.Enabled {
		client, err := cache.NewRedis(cfg.Redis, cfg.Store.Timeout)
		if err != nil {
			logr.Warn("fee cache disabled: redis unreachable", zap.Error(err))
		} else {
			defer client.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(client)
			checks["redis"] = redisCheck(client)
		}
	}
	feeCache := service.NewCacheService(cacheRepo, metrics, cfg.FeeCache.TTL, logr, cacheRepo != nil)

	ledger := service.NewLedgerFacade(service.FacadeDeps{
		Tx:            services.tx,
		Enrollments:   services.enrollments,
		Subscriptions: services.subscriptions,
		Fees:          services.fees,
		Compensations: services.compensations,
		Cache:         feeCache,
		Metrics:       metrics,
		Logger:        logr,
		Retry: service.RetryPolicy{
			Attempts:   cfg.Ledger.RetryAttempts,
			Backoff:    cfg.Ledger.RetryBackoff,
			MaxBackoff: cfg.Ledger.RetryMaxBackoff,
		},
		Defaults: service.ProvisionDefaults{
			PeriodDays: cfg.Ledger.DefaultPeriodDays,
			ClassLimit: cfg.Ledger.DefaultClassLimit,
		},
	})

	tokens := service.NewTokenService(cfg.JWT.Secret)
	receipts := export.NewReceiptRenderer(cfg.Receipts.AcademyName)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	handler.Routes{
		Enrollments:   handler.NewEnrollmentHandler(ledger),
		Subscriptions: handler.NewSubscriptionHandler(ledger),
		Fees:          handler.NewFeeHandler(ledger, receipts, signing.NewLinkSigner(cfg.Receipts.LinkSecret, cfg.Receipts.LinkTTL)),
		Compensations: handler.NewCompensationHandler(ledger),
		Webhooks:      handler.NewPaymentWebhookHandler(ledger, cfg.Webhook.Secret, logr),
		Ops:           handler.NewMetricsHandler(metrics, checks),
		Auth:          middleware.JWT(tokens),
		WebhookLimit:  middleware.NewRateLimiter(cfg.Webhook.RatePerSecond, cfg.Webhook.Burst, logr).Handler(),
		AuditLogger:   logr,
	}.Register(r, cfg.APIPrefix)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Expiry.Enabled {
		sweeper, err := scheduler.NewExpirySweeper(cfg.Expiry.Schedule, ledger, cfg.Store.Timeout*4, logr)
		if err != nil {
			logr.Fatal("failed to schedule expiry sweep", zap.Error(err))
		}
		sweeper.Start(ctx)
		defer sweeper.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func postgresServices(db *sqlx.DB, timeout time.Duration, logr *zap.Logger) ledgerServices {
	tx := repository.NewTransactor(db, timeout)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)

	subscriptions := service.NewSubscriptionService(subscriptionRepo, attendanceRepo, tx, logr)
	return ledgerServices{
		tx:            tx,
		enrollments:   service.NewEnrollmentService(enrollmentRepo, subscriptions, tx, logr),
		subscriptions: subscriptions,
		fees:          service.NewFeeLedgerService(repository.NewFeeLedgerRepository(db), tx, logr),
		compensations: service.NewCompensationService(
			repository.NewCompensationRepository(db),
			attendanceRepo,
			subscriptionRepo,
			enrollmentRepo,
			repository.NewSessionCapacityRepository(db),
			subscriptions,
			tx,
			logr,
		),
	}
}

func memoryServices(store *memstore.Store, logr *zap.Logger) ledgerServices {
	subscriptions := service.NewSubscriptionService(store.Subscriptions(), store.Attendance(), store, logr)
	return ledgerServices{
		tx:            store,
		enrollments:   service.NewEnrollmentService(store.Enrollments(), subscriptions, store, logr),
		subscriptions: subscriptions,
		fees:          service.NewFeeLedgerService(store.FeeLedgers(), store, logr),
		compensations: service.NewCompensationService(
			store.Compensations(),
			store.Attendance(),
			store.Subscriptions(),
			store.Enrollments(),
			store.Sessions(),
			subscriptions,
			store,
			logr,
		),
	}
}

func redisCheck(client *redis.Client) handler.ReadinessCheck {
	return func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
}
