// Arcano consultations API
//
// Main entry point for the consultation and payment service.
// It wires up all dependencies and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arcano/arcano-consultas/config"
	"github.com/arcano/arcano-consultas/internal/api"
	"github.com/arcano/arcano-consultas/internal/consultation"
	"github.com/arcano/arcano-consultas/internal/logger"
	"github.com/arcano/arcano-consultas/internal/metrics"
	"github.com/arcano/arcano-consultas/internal/payment"
	"github.com/arcano/arcano-consultas/internal/platform/llm"
	"github.com/arcano/arcano-consultas/internal/platform/mercadopago"
	"github.com/arcano/arcano-consultas/internal/platform/migrate"
	"github.com/arcano/arcano-consultas/internal/platform/redis"
	"github.com/arcano/arcano-consultas/internal/store"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
)

const shutdownTimeout = 20 * time.Second

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

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": ":" + cfg.App.Port,
	})

	// Infrastructure Layer
	dbClient, err := store.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, dbClient.Close())
	}()

	sqlDB, err := dbClient.SQL()
	if err != nil {
		return err
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, sqlDB); err != nil {
		return err
	}

	opts := payment.Options{
		Logger:       logg,
		AutoFinalize: cfg.Payment.AutoFinalize,
	}

	if cfg.Redis.Enabled() {
		redisClient, redisErr := redis.New(ctx, cfg.Redis, logg)
		if redisErr != nil {
			return redisErr
		}
		defer func() {
			err = multierr.Append(err, redisClient.Close())
		}()
		guard, guardErr := redis.NewIdempotencyGuard(redisClient, cfg.Redis.IdempotencyTTL, "webhook")
		if guardErr != nil {
			return guardErr
		}
		opts.Guard = guard
	} else {
		logg.Warn(ctx, "redis not configured, webhook deliveries are not de-duplicated")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	opts.Metrics = m

	gateway, err := mercadopago.NewAdapter(mercadopago.Options{
		AccessToken:         cfg.MercadoPago.AccessToken,
		CurrencyID:          cfg.MercadoPago.CurrencyID,
		StatementDescriptor: cfg.MercadoPago.StatementDescriptor,
		PublicURL:           cfg.App.PublicURL,
		APIURL:              cfg.App.APIURL,
		Timeout:             cfg.Payment.GatewayTimeout,
	})
	if err != nil {
		return err
	}
	if cfg.MercadoPago.AccessToken == "" {
		logg.Warn(ctx, "ARCANO_MP_ACCESS_TOKEN not set, paid checkouts will fail")
	}
	opts.Verifier = mercadopago.NewSignatureVerifier(cfg.MercadoPago.WebhookSecret)

	var generator *llm.Client
	if cfg.LLM.APIKey != "" {
		generator = llm.NewClient(llm.Options{
			BaseURL:    cfg.LLM.BaseURL,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			Timeout:    cfg.LLM.Timeout,
			MaxRetries: cfg.LLM.MaxRetries,
		})
	} else {
		logg.Warn(ctx, "ARCANO_LLM_API_KEY not set, content generation is disabled")
	}

	// Service Layer
	paymentRepo := store.NewPaymentRepo(dbClient.DB())
	deps := consultation.Deps{
		DB:       dbClient.DB(),
		Logger:   logg,
		Metrics:  m,
		Payments: paymentRepo,
	}
	if generator != nil {
		deps.Generator = generator
	}
	registry := consultation.NewRegistry(deps)

	opts.Finalizer = registry
	payments := payment.NewService(paymentRepo, gateway, registry, opts)

	// API Layer
	handler := api.NewHandler(registry, payments, logg)
	router := api.SetupRouter(handler, api.RouterOptions{
		GinMode:     cfg.App.GinMode,
		CORSOrigins: cfg.App.CORSOrigins,
		JWTSecret:   cfg.Auth.JWTSecret,
		PollRate:    cfg.Payment.PollRatePerSec,
		PollBurst:   cfg.Payment.PollBurst,
		Gatherer:    reg,
		Logger:      logg,
	})

	server := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	logg.Info(ctx, "shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	// in-flight auto-finalize runs must land before the store closes
	payments.Wait()
	return err
}
