package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/trademate/api/internal/di"
	"github.com/trademate/api/internal/handlers"
	"github.com/trademate/api/internal/payments"
	"github.com/trademate/api/internal/platform/auth"
	"github.com/trademate/api/internal/platform/catalog"
	"github.com/trademate/api/internal/platform/config"
	pfirestore "github.com/trademate/api/internal/platform/firestore"
	"github.com/trademate/api/internal/platform/jobs"
	"github.com/trademate/api/internal/platform/metrics"
	"github.com/trademate/api/internal/platform/notifications"
	"github.com/trademate/api/internal/platform/observability"
	"github.com/trademate/api/internal/platform/secrets"
	platformstorage "github.com/trademate/api/internal/platform/storage"
	"github.com/trademate/api/internal/repositories"
	"github.com/trademate/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets("Stock.APIKey", "PSP.StripeAPIKey"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	providerOpts := []pfirestore.ProviderOption{pfirestore.WithDialTimeout(5 * time.Second)}
	if credentialsFile := strings.TrimSpace(cfg.Firebase.CredentialsFile); credentialsFile != "" {
		providerOpts = append(providerOpts, pfirestore.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, providerOpts...)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		if err := firestoreProvider.Close(); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	repos, err := di.NewFirestoreRepositories(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.NewJobMetrics(registry)

	adapters := di.Adapters{Metrics: jobMetrics}

	stockClient, err := catalog.NewClient(cfg.Stock)
	if err != nil {
		logger.Fatal("failed to initialise stock client", zap.Error(err))
	}
	adapters.Stock = stockClient

	paymentsLogger := logger.Named("payments")
	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey: cfg.PSP.StripeAPIKey,
		Logger: func(ctx context.Context, event string, fields map[string]any) {
			zFields := make([]zap.Field, 0, len(fields)+1)
			zFields = append(zFields, zap.String("event", event))
			for k, v := range fields {
				zFields = append(zFields, zap.Any(k, v))
			}
			paymentsLogger.Debug("stripe log", zFields...)
		},
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}
	adapters.Gateway = gateway

	if topicID := strings.TrimSpace(cfg.PubSub.OrderEventsTopic); topicID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		topic := pubsubClient.Topic(topicID)
		defer topic.Stop()
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		adapters.Events = publisher
	} else {
		logger.Warn("pubsub: order events topic not configured; order events are not published")
	}

	mailer, err := notifications.NewSendGridMailer(cfg.Mail.SendGridAPIKey, cfg.Mail.FromEmail)
	switch {
	case errors.Is(err, notifications.ErrMailerDisabled):
		logger.Warn("mail: sendgrid api key not configured; invoice emails are disabled")
	case err != nil:
		logger.Fatal("failed to initialise sendgrid mailer", zap.Error(err))
	default:
		adapters.Mailer = mailer
	}

	if keyFile := strings.TrimSpace(cfg.Storage.ServiceAccountFile); keyFile != "" && cfg.Storage.InvoicesBucket != "" {
		signer, err := platformstorage.NewServiceAccountSignerFromFile(keyFile)
		if err != nil {
			logger.Fatal("failed to load storage signer key", zap.Error(err))
		}
		signedURLClient, err := platformstorage.NewClient(signer, cfg.Storage.InvoicesBucket, cfg.Storage.SignedURLTTL)
		if err != nil {
			logger.Fatal("failed to initialise signed url client", zap.Error(err))
		}
		adapters.URLSigner = signedURLClient
	} else {
		logger.Warn("storage: invoice bucket or signer key not configured; allocations carry no invoice links")
	}

	firebaseApp, err := auth.NewFirebaseApp(ctx, cfg.Firebase)
	if err != nil {
		logger.Fatal("failed to initialise firebase app", zap.Error(err))
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, firebaseApp)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	messagingClient, err := firebaseApp.Messaging(ctx)
	if err != nil {
		logger.Warn("push: firebase messaging unavailable; order status pushes are disabled", zap.Error(err))
	} else {
		pusher, err := notifications.NewFCMPusher(messagingClient)
		if err != nil {
			logger.Fatal("failed to initialise fcm pusher", zap.Error(err))
		}
		adapters.Push = pusher
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(healthChecks(firestoreProvider, fetcher), time.Now)
	if err != nil {
		logger.Warn("health: dependency checks init failed", zap.Error(err))
	} else {
		adapters.Health = healthRepo
	}

	container, err := di.NewContainer(cfg, repos, adapters,
		di.WithLogger(logger),
		di.WithBuildInfo(buildInfo),
	)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	svc := container.Services

	healthOpts := []handlers.HealthOption{handlers.WithHealthBuildInfo(buildInfo)}
	if svc.System != nil {
		healthOpts = append(healthOpts, handlers.WithHealthSystemService(svc.System))
	}
	healthHandlers := handlers.NewHealthHandlers(healthOpts...)

	cartHandlers := handlers.NewCartHandlers(authenticator, svc.Carts, svc.Eligibility)
	meHandlers := handlers.NewMeHandlers(authenticator, svc.DeliveryLocations)
	transactionHandlers := handlers.NewTransactionHandlers(authenticator, svc.Transactions)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders)
	paymentHandlers := handlers.NewPaymentHandlers(authenticator, svc.Payments)
	creditHandlers := handlers.NewCreditHandlers(authenticator, svc.Credit)
	reportHandlers := handlers.NewReportHandlers(authenticator, svc.Reports)
	internalHandlers := handlers.NewInternalHandlers(svc.Carts)
	legacyHandlers := handlers.NewLegacyHandlers(handlers.LegacyHandlersDeps{
		Authenticator: authenticator,
		Carts:         svc.Carts,
		Orders:        svc.Orders,
		Payments:      svc.Payments,
	})

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithMetricsHandler(metrics.Handler(registry)))
	opts = append(opts, handlers.WithCartRoutes(cartHandlers.Routes))
	opts = append(opts, handlers.WithMeRoutes(meHandlers.Routes))
	opts = append(opts, handlers.WithTransactionRoutes(transactionHandlers.Routes))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithPaymentRoutes(paymentHandlers.Routes))
	opts = append(opts, handlers.WithCreditRoutes(creditHandlers.Routes))
	opts = append(opts, handlers.WithReportRoutes(reportHandlers.Routes))
	opts = append(opts, handlers.WithInternalRoutes(internalHandlers.Routes))
	opts = append(opts, handlers.WithInternalMiddlewares(buildOIDCMiddleware(logger.Named("auth"), cfg)))
	opts = append(opts, handlers.WithLegacyRoutes(legacyHandlers.Routes))

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("trademate api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func lookupEnv(key string) string {
	value, _, err := config.Lookup(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := lookupEnv("API_BUILD_VERSION")
	if version == "" {
		version = "dev"
	}
	commit := lookupEnv("API_BUILD_COMMIT_SHA")
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func healthChecks(provider *pfirestore.Provider, fetcher *secrets.Fetcher) []repositories.DependencyCheck {
	checks := []repositories.DependencyCheck{{
		Name:    "firestore",
		Timeout: 1500 * time.Millisecond,
		Check:   provider.Ping,
	}}
	if fetcher != nil {
		const secretHealthReference = "secret://system-healthz"
		checks = append(checks, repositories.DependencyCheck{
			Name:    "secretManager",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				_, err := fetcher.Resolve(ctx, secretHealthReference)
				if err == nil || errors.Is(err, secrets.ErrSecretNotFound) {
					return nil
				}
				return err
			},
		})
	}
	return checks
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, nil)
	validator := auth.NewOIDCValidator(cache, logger)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}

	return validator.RequireOIDC(audience, issuers)
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	project := lookupEnv("API_SECRET_DEFAULT_PROJECT_ID")
	if project == "" {
		project = lookupEnv("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookupEnv("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
		secrets.WithMeter(otel.Meter("github.com/trademate/api/secrets")),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookupEnv("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}

	return secrets.NewFetcher(ctx, opts...)
}
