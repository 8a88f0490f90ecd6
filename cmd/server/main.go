package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"sanctuary/internal/auth"
	"sanctuary/internal/config"
	"sanctuary/internal/db"
	"sanctuary/internal/handlers"
	"sanctuary/internal/logger"
	"sanctuary/internal/metrics"
	mw "sanctuary/internal/middleware"
	"sanctuary/internal/payments"
	"sanctuary/internal/services"
	"sanctuary/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Development())
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("server exited", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL, cfg.DBMaxOpenConns)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
		return err
	}
	if cfg.SeedCatalog {
		added, err := db.SeedProducts(ctx, conn, db.SampleProducts)
		if err != nil {
			return fmt.Errorf("seed catalog: %w", err)
		}
		log.Info("catalog seeded", zap.Int64("added", added))
	}

	enc, err := services.NewEncryptionService(cfg.JournalCryptKey)
	if err != nil {
		return fmt.Errorf("journal encryption: %w", err)
	}
	if enc == nil {
		log.Warn("JOURNAL_ENCRYPTION_KEY not set; journal entries are stored in plaintext")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	users := store.NewUserStore(conn, nil)
	journal := store.NewJournalStore(conn, enc, nil)
	tokens := auth.NewTokenAuthority(cfg.JWTSecret, cfg.TokenIssuer, cfg.TokenTTL)

	opts := []payments.Option{payments.WithRecorder(collector)}
	if cfg.PaymentsConfigured() {
		opts = append(opts, payments.WithProvider(payments.NewStripeProvider(cfg.StripeSecretKey, cfg.ProviderTimeout)))
	} else {
		log.Warn("STRIPE_SECRET_KEY not set; checkout endpoints will answer 503")
	}
	if cfg.WebhooksConfigured() {
		opts = append(opts, payments.WithVerifier(payments.NewStripeVerifier(cfg.StripeWebhookSecret)))
	} else {
		log.Warn("STRIPE_WEBHOOK_SECRET not set; webhook endpoint will answer 503")
	}
	checkout := payments.NewOrchestrator(payments.Options{
		SuccessURL: cfg.CheckoutSuccessURL,
		CancelURL:  cfg.CheckoutCancelURL,
		Currency:   cfg.CheckoutCurrency,
		Timeout:    cfg.ProviderTimeout,
	}, store.NewProductStore(conn), store.NewFulfillmentStore(conn, nil), users, log.Named("payments"), opts...)

	limiter := mw.NewRateLimiter(cfg.AuthRatePerMinute, log)
	defer limiter.Stop()

	router := handlers.NewRouter(handlers.Deps{
		Logger:         log,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		TrustProxy:     cfg.TrustProxyHeaders,
		Auth:           handlers.NewAuthHandler(users, auth.NewHasher(0), tokens, collector, log),
		Users:          handlers.NewUserHandler(),
		Journal:        handlers.NewJournalHandler(journal, services.NewEntrySanitizer(), log),
		Payments:       handlers.NewPaymentsHandler(checkout, log),
		Health:         handlers.NewHealthHandler(conn, nil),
		Authn:          mw.NewAuthMiddleware(auth.NewResolver(tokens, users)),
		AuthLimiter:    limiter,
		Metrics:        metrics.Handler(reg),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
