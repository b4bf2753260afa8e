package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/madhavuttam22/madhav-clothing-sub000/internal/catalog"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/checkout"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/events"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/identity"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/notify"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/page"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/config"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/observability"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/platform/secrets"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/session"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/storeapi"
	"github.com/madhavuttam22/madhav-clothing-sub000/internal/web"
)

func main() {
	ctx := context.Background()

	baseLogger, err := observability.NewLogger(os.Getenv("LOG_LEVEL"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	resolver := secrets.NewResolver(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(secretsProject()),
	)
	defer func() {
		if err := resolver.Close(); err != nil {
			logger.Warn("secret resolver close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		var invalid *config.ValidationError
		if errors.As(err, &invalid) {
			logger.Fatal("invalid configuration", zap.Strings("fields", invalid.Fields()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	client, err := storeapi.New(storeapi.Options{
		BaseURL: cfg.Backend.BaseURL,
		Timeout: cfg.Backend.Timeout,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to initialise commerce client", zap.Error(err))
	}

	normalizerOpts := []catalog.NormalizerOption{catalog.WithPlaceholder(cfg.Storefront.PlaceholderImage)}
	if cfg.Cloudinary.URL != "" {
		images, err := catalog.NewCloudinaryResolver(cfg.Cloudinary.URL, cfg.Cloudinary.Transformation)
		if err != nil {
			logger.Fatal("failed to initialise image resolver", zap.Error(err))
		}
		normalizerOpts = append(normalizerOpts, catalog.WithImageResolver(images))
	}
	normalizer := catalog.NewNormalizer(normalizerOpts...)

	runCtx, runCancel := context.WithCancel(context.Background())
	var background sync.WaitGroup

	var bus events.Bus = events.NewLocalBus()
	if cfg.Redis.URL != "" {
		redisClient, err := events.NewRedisClient(cfg.Redis.URL)
		if err != nil {
			logger.Fatal("failed to initialise redis client", zap.Error(err))
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		redisBus := events.NewRedisBus(redisClient, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			if err := redisBus.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event relay stopped", zap.Error(err))
			}
		}()
		bus = redisBus
	}

	ids := identity.NewSessionProvider()
	var auth web.Authenticator
	if cfg.Firebase.ProjectID != "" {
		verifier, err := identity.NewFirebaseVerifier(ctx, cfg.Firebase)
		if err != nil {
			logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
		}
		authenticator, err := identity.NewAuthenticator(identity.AuthenticatorDeps{Verifier: verifier, Bus: bus, Logger: logger})
		if err != nil {
			logger.Fatal("failed to initialise authenticator", zap.Error(err))
		}
		auth = authenticator
	} else {
		logger.Warn("firebase project not configured; sign-in disabled")
	}

	signingKey := cfg.Session.SigningKey
	if signingKey == "" {
		signingKey = ephemeralKey()
		logger.Warn("session signing key not configured; sessions will not survive a restart")
	}
	sessions := session.NewManager(signingKey, cfg.Session.Secure, cfg.Session.TTL, logger)

	var widget checkout.Widget = checkout.LocalWidget{}
	if cfg.Stripe.SecretKey != "" {
		stripeWidget, err := checkout.NewStripeWidget(cfg.Stripe.SecretKey, cfg.Stripe.PublishableKey)
		if err != nil {
			logger.Fatal("failed to initialise payment widget", zap.Error(err))
		}
		widget = stripeWidget
	} else if cfg.IsProduction() {
		logger.Fatal("stripe secret key is required in production")
	} else {
		logger.Warn("stripe not configured; using local payment widget")
	}
	checkoutService, err := checkout.NewService(checkout.Deps{
		Backend:   client,
		Widget:    widget,
		Identity:  ids,
		Bus:       bus,
		Currency:  cfg.Storefront.Currency,
		LoginPath: cfg.Storefront.LoginPath,
		Logger:    logger.Named("checkout"),
	})
	if err != nil {
		logger.Fatal("failed to initialise checkout", zap.Error(err))
	}

	registry := page.NewRegistry(
		page.WithIdleTTL(cfg.Storefront.PageIdleTTL),
		page.WithRegistryLogger(logger.Named("pages")),
	)
	if interval := cfg.Storefront.PageJanitorInterval; interval > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			registry.RunJanitor(runCtx, interval)
		}()
	}

	loader, err := page.NewLoader(page.LoaderDeps{
		Catalog:    client,
		Cart:       client,
		Identity:   ids,
		Bus:        bus,
		Registry:   registry,
		Normalizer: normalizer,
		Notify:     []notify.Option{notify.WithTTL(cfg.Storefront.NotificationTTL)},
		PageSize:   cfg.Storefront.PageSize,
		LoginPath:  cfg.Storefront.LoginPath,
		Logger:     logger.Named("pages"),
	})
	if err != nil {
		logger.Fatal("failed to initialise page loader", zap.Error(err))
	}

	deps := web.Deps{
		Loader:       loader,
		Registry:     registry,
		Catalog:      client,
		Carts:        client,
		Identity:     ids,
		Auth:         auth,
		Checkout:     checkoutService,
		Bus:          bus,
		Sessions:     sessions,
		LoginPath:    cfg.Storefront.LoginPath,
		TraceProject: cfg.Firebase.ProjectID,
		Logger:       logger,
	}
	router, err := web.NewRouter(deps)
	if err != nil {
		logger.Fatal("failed to initialise router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	// Open event streams end when the bus closes; Shutdown alone would wait them out.
	server.RegisterOnShutdown(func() {
		runCancel()
		if closer, ok := bus.(interface{ Close() }); ok {
			closer.Close()
		}
	})

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("env", cfg.Environment))
	go func() {
		serverLogger.Info("storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	runCancel()
	background.Wait()
	registry.CloseAll()
}

// secretsProject is read before configuration loads because the resolver is needed
// to load it.
func secretsProject() string {
	for _, key := range []string{"STOREFRONT_SECRETS_PROJECT_ID", "STOREFRONT_FIREBASE_PROJECT_ID"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return ""
}

func ephemeralKey() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
