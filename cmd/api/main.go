package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/involy/involy/internal/api/handlers"
	"github.com/involy/involy/internal/api/router"
	"github.com/involy/involy/internal/config"
	"github.com/involy/involy/internal/entitlement"
	"github.com/involy/involy/internal/localstore"
	"github.com/involy/involy/internal/pkg/logger"
	"github.com/involy/involy/internal/pkg/validator"
	"github.com/involy/involy/internal/ratelimit"
	"github.com/involy/involy/internal/repository/postgres"
	"github.com/involy/involy/internal/verify"
	"github.com/involy/involy/internal/worker"
	"github.com/involy/involy/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	db, err := postgres.New(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := postgres.RunMigrations(db, migrations.Files); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	store, err := localstore.Open(cfg.Local.Path)
	if err != nil {
		log.Fatalf("failed to open local store: %v", err)
	}
	defer store.Close()

	userRepo := postgres.NewUserRepository(db)
	subRepo := postgres.NewSubscriptionRepository(db)

	introspector := verify.NewHTTPIntrospector(cfg.Identity.IntrospectEndpoint, cfg.Identity.IntrospectTimeout)
	verifier := verify.New(introspector, cfg.Identity.ClientID, log)

	limiter := ratelimit.New(store, cfg.RateLimit.FailOpen, log)
	engine := entitlement.NewEngine(subRepo, log)
	val := validator.New()

	// Attempt entries only ever matter within their window; keep the
	// retention comfortably above the longest configured one.
	maxAge := cfg.RateLimit.SignInWindow
	if cfg.RateLimit.CreateWindow > maxAge {
		maxAge = cfg.RateLimit.CreateWindow
	}
	if cfg.RateLimit.PaymentWindow > maxAge {
		maxAge = cfg.RateLimit.PaymentWindow
	}
	compactor := worker.NewCompactor(limiter, 2*maxAge, log)
	if err := compactor.Start(cfg.Local.CompactSchedule); err != nil {
		log.Fatalf("failed to start compactor: %v", err)
	}
	defer compactor.Stop()

	h := &router.Handlers{
		Health:      handlers.NewHealthHandler(db, log),
		Auth:        handlers.NewAuthHandler(verifier, userRepo, limiter, cfg, log, val),
		Entitlement: handlers.NewEntitlementHandler(engine, log),
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.New(cfg, log, h),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
}
