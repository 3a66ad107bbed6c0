package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mstgnz/walletpay/infra/config"
	"github.com/mstgnz/walletpay/infra/conn"
	"github.com/mstgnz/walletpay/infra/idempotency"
	"github.com/mstgnz/walletpay/infra/logger"
	"github.com/mstgnz/walletpay/infra/middle"
	"github.com/mstgnz/walletpay/infra/opensearch"
	"github.com/mstgnz/walletpay/infra/postgres"
	"github.com/mstgnz/walletpay/payment"
	"github.com/mstgnz/walletpay/provider"
	"github.com/mstgnz/walletpay/router"
	"golang.org/x/sync/errgroup"

	// Import for side-effect registration
	_ "github.com/mstgnz/walletpay/provider/example"
	_ "github.com/mstgnz/walletpay/provider/generic"
	_ "github.com/mstgnz/walletpay/provider/mercadopago"
	_ "github.com/mstgnz/walletpay/provider/stripe"
)

const idempotencyCleanupInterval = 5 * time.Minute

func main() {
	// Load Env, the file is optional outside development
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Fatal("Failed to load .env", err)
	}

	if err := run(); err != nil {
		logger.Fatal("Service stopped", err)
	}
}

func run() error {
	cfg := config.GetAppConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// OpenSearch carries attempts and, as the log sink, system logs
	var osLogger *opensearch.Logger
	if cfg.EnableOpenSearch {
		osClient, err := opensearch.NewClient(cfg)
		if err != nil {
			logger.Error("Failed to initialize OpenSearch client, continuing without it", err)
		} else {
			osLogger = opensearch.NewLogger(osClient)
			if err := osClient.EnsureIndices(ctx); err != nil {
				logger.Error("Failed to ensure OpenSearch indices", err)
			}
		}
	}
	if osLogger != nil {
		logger.InitGlobalLogger(osLogger)
	} else {
		logger.InitGlobalLogger(nil)
	}

	settings, err := config.LoadMerchantSettings(cfg.MerchantConfigFile)
	if err != nil {
		return err
	}

	txConfig, err := payment.NewTransactionConfig(settings.MerchantID, settings.MerchantName, payment.Options{
		GatewayName:  settings.Gateway,
		Environment:  settings.Environment,
		CurrencyCode: settings.CurrencyCode,
		CountryCode:  settings.CountryCode,
		TotalPrice:   settings.TotalPrice,
		CardNetworks: settings.CardNetworks,
		AuthMethods:  settings.AuthMethods,
	})
	if err != nil {
		return fmt.Errorf("invalid merchant settings: %w", err)
	}
	if _, err := txConfig.Describe(); err != nil {
		return fmt.Errorf("invalid merchant settings: %w", err)
	}

	gatewayName := txConfig.GatewayName()
	gatewayConfig := config.LoadGatewayConfigFromEnv(provider.GetProviderNames()...)
	gateway, err := provider.NewGateway(gatewayName, txConfig.Environment(), gatewayConfig.GetConfig(gatewayName))
	if err != nil {
		return err
	}
	logger.Info("Payment gateway ready", logger.LogContext{
		Gateway: gatewayName,
		Fields: map[string]any{
			"environment": txConfig.Environment(),
			"available":   provider.GetProviderNames(),
		},
	})

	// Attempt recorders
	var recorders payment.MultiRecorder
	deps := router.Dependencies{
		App:         cfg,
		Transaction: txConfig,
		OpenSearch:  osLogger != nil,
	}
	if osLogger != nil {
		recorders = append(recorders, osLogger)
		deps.Attempts = osLogger
	}

	var db conn.DB
	if cfg.EnablePostgres {
		if err := db.ConnectDatabase(ctx, conn.SettingsFromEnv()); err != nil {
			return err
		}
		defer db.CloseDatabase()

		pgLogger, err := postgres.NewLogger(&db, cfg.PostgresTable)
		if err != nil {
			return err
		}
		if err := pgLogger.EnsureSchema(ctx); err != nil {
			return err
		}
		recorders = append(recorders, pgLogger)
		deps.Attempts = pgLogger
		deps.Stats = pgLogger
		deps.DB = db.DB
	}

	store, err := idempotency.New(cfg)
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	pc := payment.ProcessorConfig{Timeout: cfg.GatewayTimeout}
	if store != nil {
		pc.Deduplicator = store
		deps.Store = store
	}
	if len(recorders) > 0 {
		pc.Recorder = recorders
	}

	processor, err := payment.NewProcessor(txConfig, gateway, pc)
	if err != nil {
		return err
	}
	deps.Processor = processor

	rateLimiter := middle.NewRateLimiter(cfg.RateLimit, time.Minute)
	defer rateLimiter.Stop()
	deps.RateLimiter = rateLimiter

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router.New(deps),
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("API is running on " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		idempotency.RunCleanup(gctx, store, idempotencyCleanupInterval)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
