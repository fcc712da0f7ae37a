package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/primex-iptv/primex-backend/api/routes"
	"github.com/primex-iptv/primex-backend/internal/accounts"
	"github.com/primex-iptv/primex-backend/internal/activation"
	"github.com/primex-iptv/primex-backend/internal/audit"
	"github.com/primex-iptv/primex-backend/internal/auth"
	"github.com/primex-iptv/primex-backend/internal/catalog"
	"github.com/primex-iptv/primex-backend/internal/codes"
	"github.com/primex-iptv/primex-backend/internal/entitlements"
	"github.com/primex-iptv/primex-backend/internal/redemption"
	"github.com/primex-iptv/primex-backend/pkg/auth/session"
	"github.com/primex-iptv/primex-backend/pkg/config"
	"github.com/primex-iptv/primex-backend/pkg/db"
	"github.com/primex-iptv/primex-backend/pkg/logger"
	"github.com/primex-iptv/primex-backend/pkg/metrics"
	"github.com/primex-iptv/primex-backend/pkg/migrate"
	"github.com/primex-iptv/primex-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
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

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	promRegistry := prometheus.NewRegistry()
	provMetrics := metrics.NewProvisioningMetrics(promRegistry)

	gormDB := dbClient.DB()

	sessionManager, err := session.NewManager(session.NewGormStore(gormDB), cfg.JWT.OperatorTTL())
	if err != nil {
		logg.Error(context.Background(), "failed to create session manager", err)
		os.Exit(1)
	}

	catalogRepo := catalog.NewRepository(gormDB)
	auditRepo := audit.NewRepository(gormDB)
	activationRepo := activation.NewRepository(gormDB)

	resolver, err := entitlements.NewResolver(entitlements.ResolverParams{
		Logger: logg,
		Repo:   entitlements.NewRepository(gormDB),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create entitlement resolver", err)
		os.Exit(1)
	}

	redemptionService, err := redemption.NewService(redemption.ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Codes:        redemption.NewRepository(gormDB),
		Plans:        catalogRepo,
		Resolver:     resolver,
		Audit:        auditRepo,
		JWT:          cfg.JWT,
		Password:     cfg.Password,
		Provisioning: cfg.Provisioning,
		Metrics:      provMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create redemption service", err)
		os.Exit(1)
	}

	activationService, err := activation.NewService(activation.ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Devices:      activationRepo,
		Plans:        catalogRepo,
		Resolver:     resolver,
		Audit:        auditRepo,
		Password:     cfg.Password,
		Provisioning: cfg.Provisioning,
		Metrics:      provMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create activation service", err)
		os.Exit(1)
	}

	codesService, err := codes.NewService(codes.ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Inventory:    codes.NewRepository(gormDB),
		Plans:        catalogRepo,
		Audit:        auditRepo,
		Provisioning: cfg.Provisioning,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create codes service", err)
		os.Exit(1)
	}

	authService, err := auth.NewService(auth.ServiceParams{
		Logger:      logg,
		AdminRepo:   auth.NewAdminRepository(gormDB),
		AccountRepo: accounts.NewRepository(gormDB),
		Sessions:    sessionManager,
		Audit:       auditRepo,
		JWTConfig:   cfg.JWT,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create auth service", err)
		os.Exit(1)
	}

	handler := routes.NewRouter(routes.RouterParams{
		Config:       cfg,
		Logger:       logg,
		DB:           gormDB,
		Redis:        redisClient,
		Sessions:     sessionManager,
		SessionMgr:   sessionManager,
		AuthService:  authService,
		Redemption:   redemptionService,
		Activation:   activationService,
		Codes:        codesService,
		Devices:      activationRepo,
		Catalog:      catalogRepo,
		Audit:        auditRepo,
		PromGatherer: promRegistry,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
			os.Exit(1)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}
