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

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	domain "github.com/lathermill/api/internal/domain"
	"github.com/lathermill/api/internal/handlers"
	"github.com/lathermill/api/internal/notifications"
	"github.com/lathermill/api/internal/payments"
	"github.com/lathermill/api/internal/platform/auth"
	"github.com/lathermill/api/internal/platform/config"
	pfirestore "github.com/lathermill/api/internal/platform/firestore"
	"github.com/lathermill/api/internal/platform/idempotency"
	"github.com/lathermill/api/internal/platform/jobs"
	"github.com/lathermill/api/internal/platform/observability"
	"github.com/lathermill/api/internal/platform/secrets"
	firestoreRepo "github.com/lathermill/api/internal/repositories/firestore"
	"github.com/lathermill/api/internal/services"
	"github.com/lathermill/api/internal/shipping"
)

const adminSecretName = "admin-api"

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger),
		secrets.WithDefaultProject(os.Getenv("GOOGLE_CLOUD_PROJECT")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	registry, err := firestoreRepo.NewRegistry(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	var publisher services.EventPublisher
	if cfg.PubSub.OrderEventsTopic != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()

		topic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		defer topic.Stop()

		publisher, err = jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise event publisher", zap.Error(err))
		}
	} else {
		logger.Info("order events topic not configured, event publishing disabled")
	}

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: observability.EventLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise payment provider", zap.Error(err))
	}

	webhookParser, err := payments.NewWebhookParser(cfg.Stripe.WebhookSecret)
	if err != nil {
		logger.Fatal("failed to initialise webhook parser", zap.Error(err))
	}

	shippingClient, err := shipping.NewClient(cfg.Shipping.BaseURL, cfg.Shipping.APIToken,
		shipping.WithLogger(logger.Named("shipping")),
	)
	if err != nil {
		logger.Fatal("failed to initialise shipping client", zap.Error(err))
	}

	mailer, err := notifications.NewMailer(cfg.Mailer.BaseURL, cfg.Mailer.APIKey, cfg.Mailer.FromAddress,
		notifications.WithLogger(logger.Named("mailer")),
	)
	if err != nil {
		logger.Fatal("failed to initialise mailer", zap.Error(err))
	}

	taxPolicy := services.FlatTaxPolicy(cfg.Checkout.TaxBasisPoints)

	checkoutService, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:     registry.Orders(),
		Customers:  registry.Customers(),
		Payments:   stripeProvider,
		Shipping:   shippingClient,
		Events:     publisher,
		Tax:        taxPolicy,
		Logger:     observability.EventLogger(logger.Named("checkout")),
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:              registry.Orders(),
		Customers:           registry.Customers(),
		Payments:            stripeProvider,
		Shipping:            shippingClient,
		Mail:                mailer,
		Events:              publisher,
		Tax:                 taxPolicy,
		Logger:              observability.EventLogger(logger.Named("orders")),
		OwnerEmail:          cfg.Mailer.OwnerAddress,
		PackingSlipURL:      cfg.Checkout.PackingSlipURL,
		InvoiceDaysUntilDue: cfg.Stripe.DaysUntilDue,
		UnpaidTTL:           cfg.Sweep.UnpaidTTL,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	idempotencyStore := idempotency.NewFirestoreStore(firestoreClient)
	idempotencyMiddleware := idempotency.Middleware(idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	hmacValidator := auth.NewHMACValidator(
		auth.StaticSecretProvider(cfg.Admin.HMACSecret),
		auth.NewInMemoryNonceStore(),
		auth.WithHMACLogger(logger.Named("auth")),
		auth.WithHMACClockSkew(cfg.Admin.ClockSkew),
	)

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthVersion(os.Getenv("BUILD_VERSION"), cfg.Environment),
		handlers.WithReadinessChecker(registry.Health().CheckReadiness),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.InjectLoggerMiddleware(logger),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealth(healthHandlers),
		handlers.WithShippingRoutes(handlers.NewRateHandlers(
			shippingClient,
			originAddress(cfg.Shipping.Origin),
			cfg.Shipping.RateCeilingCents,
		).Routes),
		handlers.WithCheckoutRoutes(
			handlers.NewCheckoutHandlers(checkoutService, cfg.Idempotency.Header).Routes,
			idempotencyMiddleware,
		),
		handlers.WithWebhookRoutes(handlers.NewWebhookHandlers(webhookParser, orderService, logger.Named("webhooks")).Routes),
		handlers.WithAdminRoutes(
			handlers.NewAdminOrderHandlers(orderService).Routes,
			hmacValidator.RequireHMAC(adminSecretName),
		),
	)

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runUnpaidSweeper(runCtx, logger, orderService, cfg.Sweep.Interval)
	go runIdempotencyCleanup(runCtx, logger, idempotencyStore, cfg.Idempotency)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", server.Addr), zap.String("environment", cfg.Environment))
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	case <-runCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

// runUnpaidSweeper deletes abandoned checkouts on a fixed interval.
func runUnpaidSweeper(ctx context.Context, logger *zap.Logger, orders services.OrderService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, interval)
			count, err := orders.SweepUnpaid(sweepCtx)
			cancel()
			if err != nil {
				logger.Warn("unpaid order sweep failed", zap.Error(err))
				continue
			}
			if count > 0 {
				logger.Info("unpaid orders swept", zap.Int("count", count))
			}
		}
	}
}

// runIdempotencyCleanup prunes expired idempotency records.
func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store idempotency.Store, cfg config.IdempotencyConfig) {
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(ctx, interval)
			removed, err := store.CleanupExpired(cleanupCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Warn("idempotency cleanup failed", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Debug("idempotency records pruned", zap.Int("count", removed))
			}
		}
	}
}

func originAddress(origin config.OriginAddress) domain.Address {
	return domain.Address{
		Name:    origin.Name,
		Street1: origin.Street1,
		City:    origin.City,
		State:   origin.State,
		Zip:     origin.Zip,
		Country: origin.Country,
		Phone:   origin.Phone,
		Email:   origin.Email,
	}
}
