package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/storefront-checkout/domain"
	"github.com/fjod/storefront-checkout/internal/cartstore"
	"github.com/fjod/storefront-checkout/internal/checkout"
	"github.com/fjod/storefront-checkout/internal/config"
	"github.com/fjod/storefront-checkout/internal/consumer"
	"github.com/fjod/storefront-checkout/internal/flagstore"
	h "github.com/fjod/storefront-checkout/internal/http"
	"github.com/fjod/storefront-checkout/internal/ledger"
	"github.com/fjod/storefront-checkout/internal/publisher"
	"github.com/fjod/storefront-checkout/internal/repository"
	"github.com/fjod/storefront-checkout/internal/stripepay"
	"github.com/fjod/storefront-checkout/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the checkout HTTP server",
	Long: `Start the checkout HTTP server.

Redis, Postgres and Kafka are optional. Without REDIS_ADDR checkout flags stay
in process memory, without DB_HOST no attempt ledger is kept and without
KAFKA_BROKERS no events are published or consumed.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	flags, closeFlags, err := newFlagStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeFlags()

	deps := checkout.Deps{
		Store: cartstore.NewClient(cfg.CartStoreURL, cfg.CartStoreTimeout,
			cartstore.WithPublishableKey(cfg.PublishableKey),
			cartstore.WithLogger(log)),
		Flags: flags,
		Provider: stripepay.New(cfg.StripeSecretKey,
			stripepay.WithAPIURL(cfg.StripeAPIURL),
			stripepay.WithMaxNetworkRetries(cfg.StripeMaxRetries),
			stripepay.WithLogger(log)),
		ExpressMethods: domain.ParseMethods(cfg.ExpressMethods),
		QuietPeriod:    cfg.QuietPeriod,
		TaxWindow:      cfg.TaxWindow,
		Logger:         log,
	}

	var repo *repository.Repository
	if cfg.LedgerEnabled() {
		creds := credentials(cfg)
		repo, err = repository.NewRepository(creds, log)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer repo.Close()

		if err := repo.RunMigrations(creds); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		deps.Ledger = ledger.New(repo, log)
		log.Info("attempt ledger enabled", zap.String("db_host", cfg.DBHost))
	}

	registry := checkout.NewRegistry(deps, checkout.WithIdleTimeout(cfg.PageIdleTimeout))
	defer registry.Close()

	g, ctx := errgroup.WithContext(ctx)

	if cfg.KafkaEnabled() {
		if repo != nil {
			poller := publisher.NewOutboxPoller(repo, log, cfg.KafkaBrokers...).WithAbandonAfter(cfg.AbandonAfter)
			defer poller.Close()
			g.Go(func() error {
				poller.Run(ctx)
				return nil
			})
		}

		group := cfg.ConsumerGroup
		if group == "" {
			group = "checkout-" + uuid.NewString()
		}
		cons := consumer.NewConsumer(registry, log, group, cfg.KafkaBrokers...)
		defer cons.Close()
		g.Go(func() error {
			cons.Run(ctx)
			return nil
		})
		log.Info("kafka enabled", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("group", group))
	}

	handler := h.NewCheckoutHandler(registry, cfg.RequestTimeout, log)
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: h.NewRouter(handler, h.RouterConfig{
			RequestTimeout:     cfg.RequestTimeout,
			MaxRequestBodySize: cfg.MaxRequestBodySize,
			CookieSecure:       cfg.CookieSecure,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		log.Info("checkout server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server exited")
	return nil
}

// newFlagStore connects to Redis when configured and falls back to process memory.
func newFlagStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (flagstore.Store, func(), error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, checkout flags will not survive a restart")
		mem := flagstore.NewMemoryStore()
		return mem, mem.Close, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return flagstore.NewRedisStore(client), func() { _ = client.Close() }, nil
}
