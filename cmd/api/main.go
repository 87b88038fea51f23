package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrienlc/payhub-backend/internal/config"
	"github.com/adrienlc/payhub-backend/internal/handler"
	"github.com/adrienlc/payhub-backend/internal/logging"
	"github.com/adrienlc/payhub-backend/internal/middleware"
	"github.com/adrienlc/payhub-backend/internal/provider"
	"github.com/adrienlc/payhub-backend/internal/provider/paypal"
	"github.com/adrienlc/payhub-backend/internal/provider/stripe"
	"github.com/adrienlc/payhub-backend/internal/repository"
	"github.com/adrienlc/payhub-backend/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("payhub-api", cfg.LogLevel, cfg.AppEnv)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	})
	cancel()
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	mux := buildRouter(cfg, db)

	chain := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           chain,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func buildRouter(cfg *config.Config, db *sql.DB) *http.ServeMux {
	users := repository.NewUserRepository(db)
	payments := repository.NewPaymentRepository(db)
	methods := repository.NewPaymentMethodRepository(db)
	transactions := repository.NewTransactionRepository(db)
	webhooks := repository.NewWebhookRepository(db)

	registry := provider.NewRegistry(
		stripe.NewGateway(
			stripe.NewClient(cfg.StripeAPIURL, cfg.StripeSecretKey),
			payments, transactions, methods, cfg.StripeWebhookSecret,
		),
		paypal.NewGateway(
			paypal.NewClient(cfg.PayPalAPIURL, cfg.PayPalClientID, cfg.PayPalClientSecret),
			payments, transactions, methods, cfg.PayPalWebhookSecret,
		),
	)

	paymentSvc := service.NewPaymentService(registry, payments, methods, transactions, users, db)
	methodSvc := service.NewPaymentMethodService(registry, methods, users, db)
	webhookSvc := service.NewWebhookService(registry, webhooks, payments)

	jwtExpiry := time.Duration(cfg.JWTExpiryH) * time.Hour
	healthHandler := handler.NewHealthHandler(db)
	authHandler := handler.NewAuthHandler(users, cfg.JWTSecret, jwtExpiry)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	methodHandler := handler.NewPaymentMethodHandler(methodSvc)
	webhookHandler := handler.NewWebhookHandler(webhookSvc)

	authRequired := middleware.Auth(cfg.JWTSecret)
	protect := func(h http.HandlerFunc) http.Handler {
		return authRequired(h)
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)

	mux.HandleFunc("POST /api/v1/webhooks/{provider}", webhookHandler.Receive)

	mux.Handle("POST /api/v1/payments", protect(paymentHandler.Process))
	mux.Handle("GET /api/v1/payments", protect(paymentHandler.List))
	mux.Handle("GET /api/v1/payments/stats", protect(paymentHandler.Stats))
	mux.Handle("GET /api/v1/payments/{id}", protect(paymentHandler.Get))
	mux.Handle("POST /api/v1/payments/{id}/confirm", protect(paymentHandler.Confirm))
	mux.Handle("POST /api/v1/payments/{id}/refund", protect(paymentHandler.Refund))
	mux.Handle("POST /api/v1/payments/{id}/sync", protect(paymentHandler.Sync))

	mux.Handle("POST /api/v1/payment-methods", protect(methodHandler.Register))
	mux.Handle("GET /api/v1/payment-methods", protect(methodHandler.List))
	mux.Handle("POST /api/v1/payment-methods/{id}/default", protect(methodHandler.SetDefault))
	mux.Handle("DELETE /api/v1/payment-methods/{id}", protect(methodHandler.Delete))

	return mux
}
