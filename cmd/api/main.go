package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/shopmesh/api/internal/handlers"
	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/platform/config"
	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
	"github.com/shopmesh/api/internal/platform/idempotency"
	"github.com/shopmesh/api/internal/platform/jobs"
	"github.com/shopmesh/api/internal/platform/metrics"
	"github.com/shopmesh/api/internal/platform/observability"
	"github.com/shopmesh/api/internal/platform/remote"
	"github.com/shopmesh/api/internal/platform/requestctx"
	"github.com/shopmesh/api/internal/platform/secrets"
	"github.com/shopmesh/api/internal/repositories"
	firestoreRepo "github.com/shopmesh/api/internal/repositories/firestore"
	"github.com/shopmesh/api/internal/services"
)

const (
	serviceName          = "shopmesh-api"
	firestoreDialTimeout = 10 * time.Second
	remoteMaxAttempts    = 2
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["SHOPMESH_LOG_LEVEL"], envValues["SHOPMESH_ENVIRONMENT"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	var gcpOpts []option.ClientOption
	if path := strings.TrimSpace(envValues["SHOPMESH_FIREBASE_CREDENTIALS_FILE"]); path != "" {
		gcpOpts = append(gcpOpts, option.WithCredentialsFile(path))
	}

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithClientOptions(gcpOpts...),
		secrets.WithProject(firstNonEmpty(envValues["SHOPMESH_SECRET_PROJECT_ID"], envValues["SHOPMESH_FIREBASE_PROJECT_ID"])),
		secrets.WithFallbackFile(envValues["SHOPMESH_SECRET_FALLBACK_FILE"]),
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithMeter(otel.GetMeterProvider().Meter(serviceName+"/secrets")),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore,
		pfirestore.WithDialTimeout(firestoreDialTimeout),
		pfirestore.WithClientOptions(gcpOpts...),
	)
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

	recorder := metrics.NewRecorder()
	eventLogger := observability.EventLogger(logger.Named("services"))
	locks := services.NewUserLocker()
	clock := func() time.Time { return time.Now().UTC() }

	var tokenIssuer *auth.ServiceTokenIssuer
	if strings.TrimSpace(cfg.ServiceAuth.SigningSecret) != "" {
		tokenIssuer, err = auth.NewServiceTokenIssuer(cfg.ServiceAuth, serviceName)
		if err != nil {
			logger.Fatal("failed to initialise service token issuer", zap.Error(err))
		}
	}

	healthChecks := []repositories.DependencyCheck{{
		Name:     "firestore",
		Timeout:  1500 * time.Millisecond,
		Critical: true,
		Check:    firestoreProvider.Ping,
	}}

	products := services.NewCatalogFetcher(registry.Catalog())
	if cfg.Aggregation.CatalogMode == config.SourceModeRemote {
		client, err := newRemoteClient(cfg.Aggregation.CatalogBaseURL, tokenIssuer, cfg.Aggregation.FetchTimeout, logger.Named("catalog-client"))
		if err != nil {
			logger.Fatal("failed to initialise catalog client", zap.Error(err))
		}
		products = remote.CatalogFetcher(client)
		healthChecks = append(healthChecks, repositories.DependencyCheck{Name: "catalog", Check: client.Ping})
	}

	addresses := services.NewAddressFetcher(registry.Addresses())
	if cfg.Aggregation.AddressMode == config.SourceModeRemote {
		client, err := newRemoteClient(cfg.Aggregation.AddressBaseURL, tokenIssuer, cfg.Aggregation.FetchTimeout, logger.Named("address-client"))
		if err != nil {
			logger.Fatal("failed to initialise address client", zap.Error(err))
		}
		addresses = remote.AddressFetcher(client)
		healthChecks = append(healthChecks, repositories.DependencyCheck{Name: "addresses", Check: client.Ping})
	}

	events, closeEvents, err := newOrderEventPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise order event publisher", zap.Error(err))
	}
	defer closeEvents()

	basketService, err := services.NewBasketService(services.BasketServiceDeps{
		Repository:   registry.Baskets(),
		Products:     products,
		Locks:        locks,
		FetchTimeout: cfg.Aggregation.FetchTimeout,
		Observer:     recorder,
		Clock:        clock,
		Logger:       eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise basket service", zap.Error(err))
	}

	addressService, err := services.NewAddressService(services.AddressServiceDeps{
		Repository: registry.Addresses(),
		Clock:      clock,
		Logger:     eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise address service", zap.Error(err))
	}

	catalogService, err := services.NewCatalogService(services.CatalogServiceDeps{
		Catalog: registry.Catalog(),
	})
	if err != nil {
		logger.Fatal("failed to initialise catalog service", zap.Error(err))
	}

	orderService, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:           registry.Orders(),
		Baskets:          registry.Baskets(),
		Products:         products,
		Addresses:        addresses,
		Locks:            locks,
		Events:           events,
		Placements:       recorder,
		Observer:         recorder,
		FetchTimeout:     cfg.Aggregation.FetchTimeout,
		PlacementTimeout: cfg.Aggregation.PlacementTimeout,
		HistoryLimit:     cfg.Aggregation.HistoryLimit,
		Clock:            clock,
		Logger:           eventLogger,
	})
	if err != nil {
		logger.Fatal("failed to initialise order service", zap.Error(err))
	}

	idempotencyStore, err := idempotency.NewFirestoreStore(firestoreClient, idempotency.WithCollection(cfg.Idempotency.Collection))
	if err != nil {
		logger.Fatal("failed to initialise idempotency store", zap.Error(err))
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupTicker := time.NewTicker(cfg.Idempotency.CleanupInterval)
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		cleanupLogger := logger.Named("idempotency")
		for {
			select {
			case <-cleanupTicker.C:
				removed, err := idempotencyStore.CleanupExpired(cleanupCtx, time.Now().UTC(), cfg.Idempotency.CleanupBatchSize)
				if err != nil {
					cleanupLogger.Warn("idempotency cleanup failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					cleanupLogger.Debug("idempotency cleanup removed records", zap.Int("count", removed))
				}
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	firebaseOpts := []auth.FirebaseOption{auth.WithFirebaseTimeout(cfg.Firebase.VerifyTimeout)}
	if cfg.Environment == "prod" {
		firebaseOpts = append(firebaseOpts, auth.WithRevocationCheck())
	}
	var authenticator *auth.Authenticator
	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, firebaseOpts...)
	if err != nil {
		logger.Warn("firebase authentication disabled", zap.Error(err))
	} else {
		authenticator = auth.NewAuthenticator(verifier)
	}

	healthRepo, err := repositories.NewDependencyHealthRepository(healthChecks)
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(envValues, cfg, startedAt)),
		handlers.WithReadinessReporter(healthRepo),
	)

	opts := []handlers.Option{
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLogger(logger.Named("http"), "/healthz", "/readyz", cfg.Metrics.Path),
			observability.Recoverer(logger.Named("http")),
			recorder.Middleware,
		),
		handlers.WithCatalogRoutes(handlers.NewCatalogHandlers(catalogService).Routes),
	}
	if cfg.Metrics.Enabled {
		opts = append(opts, handlers.WithMetrics(cfg.Metrics.Path, recorder.Handler()))
	}

	if authenticator != nil {
		basketHandlers := handlers.NewBasketHandlers(authenticator, basketService,
			handlers.WithBasketWriteMiddlewares(handlers.RateLimitPerRequester(cfg.RateLimits.BasketWritesPerMinute)),
		)
		addressHandlers := handlers.NewAddressHandlers(authenticator, addressService)
		orderHandlers := handlers.NewOrderHandlers(authenticator, orderService,
			handlers.WithIdempotencyHeader(cfg.Idempotency.Header),
			handlers.WithPlaceOrderMiddlewares(
				handlers.RateLimitPerRequester(cfg.RateLimits.PlacementsPerMinute),
				idempotencyMiddleware,
			),
		)
		opts = append(opts,
			handlers.WithBasketRoutes(basketHandlers.Routes),
			handlers.WithAddressRoutes(addressHandlers.Routes),
			handlers.WithOrderRoutes(orderHandlers.Routes),
		)
	}

	if strings.TrimSpace(cfg.ServiceAuth.SigningSecret) != "" {
		serviceVerifier, err := auth.NewServiceTokenVerifier(cfg.ServiceAuth)
		if err != nil {
			logger.Fatal("failed to initialise service token verifier", zap.Error(err))
		}
		internalHandlers := handlers.NewInternalHandlers(catalogService, addressService)
		opts = append(opts,
			handlers.WithInternalRoutes(internalHandlers.Routes),
			handlers.WithInternalMiddlewares(serviceVerifier.RequireServiceToken),
		)
	} else {
		logger.Warn("internal bulk endpoints disabled; no service token secret configured")
	}

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
		serverLogger.Info("shopmesh api listening",
			zap.String("catalogMode", string(cfg.Aggregation.CatalogMode)),
			zap.String("addressMode", string(cfg.Aggregation.AddressMode)),
			zap.String("eventsDriver", string(cfg.Events.Driver)),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupTicker.Stop()
	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newRemoteClient(baseURL string, tokens *auth.ServiceTokenIssuer, timeout time.Duration, logger *zap.Logger) (*remote.Client, error) {
	if tokens == nil {
		return nil, auth.ErrServiceSecretMissing
	}
	return remote.NewClient(baseURL,
		remote.WithTokenSource(tokens),
		remote.WithLogger(logger),
		remote.WithHTTPClient(&http.Client{Timeout: timeout}),
		remote.WithMaxAttempts(remoteMaxAttempts),
	)
}

// newOrderEventPublisher returns a nil publisher when events are disabled. The returned
// close func is always safe to call.
func newOrderEventPublisher(ctx context.Context, cfg config.Config) (services.OrderEventPublisher, func(), error) {
	switch cfg.Events.Driver {
	case config.EventsDriverPubSub:
		var opts []option.ClientOption
		if path := strings.TrimSpace(cfg.Firebase.CredentialsFile); path != "" {
			opts = append(opts, option.WithCredentialsFile(path))
		}
		client, err := pubsub.NewClient(ctx, cfg.Firestore.ProjectID, opts...)
		if err != nil {
			return nil, func() {}, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Events.Topic)
		topic.EnableMessageOrdering = true
		publisher, err := jobs.NewPubSubOrderPublisher(topic)
		if err != nil {
			_ = client.Close()
			return nil, func() {}, err
		}
		return publisher, func() {
			publisher.Stop()
			_ = client.Close()
		}, nil
	case config.EventsDriverKafka:
		writer, err := jobs.NewKafkaWriter(cfg.Events.KafkaBrokers, cfg.Events.Topic)
		if err != nil {
			return nil, func() {}, err
		}
		publisher, err := jobs.NewKafkaOrderPublisher(writer)
		if err != nil {
			_ = writer.Close()
			return nil, func() {}, err
		}
		return publisher, func() { _ = publisher.Close() }, nil
	default:
		return nil, func() {}, nil
	}
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["SHOPMESH_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["SHOPMESH_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: cfg.Environment,
		StartedAt:   started,
	}
}

// requiredSecretNames lists config fields that must resolve to a value. Remote lookups
// cannot authenticate without the service token secret.
func requiredSecretNames(env map[string]string) []string {
	var names []string
	for _, key := range []string{"SHOPMESH_CATALOG_MODE", "SHOPMESH_ADDRESS_MODE"} {
		if strings.EqualFold(strings.TrimSpace(env[key]), string(config.SourceModeRemote)) {
			names = append(names, "ServiceAuth.SigningSecret")
			break
		}
	}
	return names
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
