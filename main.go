package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"asset-pool-ledger/config"
	"asset-pool-ledger/internal/api"
	"asset-pool-ledger/internal/audit"
	"asset-pool-ledger/internal/cache"
	"asset-pool-ledger/internal/database"
	"asset-pool-ledger/internal/dispatch"
	"asset-pool-ledger/internal/events"
	"asset-pool-ledger/internal/ledger"
	"asset-pool-ledger/internal/logging"
	"asset-pool-ledger/internal/notification"
	"asset-pool-ledger/internal/payout"
	"asset-pool-ledger/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger, closer := logging.New(cfg.LoggingConfig)
	defer closer.Close()
	logger.Info().Msg("Structured logging initialized")

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Ledger service stopped with error")
		closer.Close()
		os.Exit(1)
	}
	logger.Info().Msg("Shutdown complete")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	// Initialize event bus
	eventBus := events.NewEventBus()
	eventBus.SubscribeAll(func(event events.Event) {
		logger.Debug().Str("event", string(event.Type)).Interface("data", event.Data).Msg("Ledger event")
	})
	logger.Info().Msg("Event bus initialized")

	// Operator alerts
	if cfg.NotificationConfig.Enabled {
		notifyManager := notification.NewManager(logger)
		notifyManager.AddNotifier(notification.NewTelegramNotifier(notification.TelegramConfig{
			BotToken: cfg.NotificationConfig.Telegram.BotToken,
			ChatID:   cfg.NotificationConfig.Telegram.ChatID,
			Enabled:  true,
		}))
		notifyManager.AddNotifier(notification.NewDiscordNotifier(notification.DiscordConfig{
			WebhookURL: cfg.NotificationConfig.Discord.WebhookURL,
			Enabled:    true,
		}))
		notifyManager.Subscribe(eventBus)
		logger.Info().Msg("Notifications enabled")
	}

	// Storage: PostgreSQL when configured, otherwise in memory
	var store ledger.Store
	health := map[string]api.HealthCheck{}
	if cfg.DatabaseConfig.Enabled {
		db, err := database.NewDB(database.Config{
			Host:     cfg.DatabaseConfig.Host,
			Port:     cfg.DatabaseConfig.Port,
			User:     cfg.DatabaseConfig.User,
			Password: cfg.DatabaseConfig.Password,
			Database: cfg.DatabaseConfig.Database,
			SSLMode:  cfg.DatabaseConfig.SSLMode,
			MaxConns: int32(cfg.DatabaseConfig.MaxConns),
		}, logger)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer db.Close()

		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		store = database.NewStore(db, database.StoreConfig{
			MaxRetries:   cfg.DatabaseConfig.MaxRetries,
			RetryBackoff: cfg.DatabaseConfig.RetryBackoff,
		}, logger)
		health["database"] = db.HealthCheck
		logger.Info().Str("database", cfg.DatabaseConfig.Database).Msg("PostgreSQL store initialized")
	} else {
		store = ledger.NewMemoryStore()
		logger.Warn().Msg("Database disabled, using in-memory store")
	}

	// Ledger rules
	ledgerCfg, err := ledgerConfig(cfg.LedgerConfig)
	if err != nil {
		return err
	}
	opts := []ledger.Option{ledger.WithPublisher(eventBus)}

	// Redis: cross-process pool locks and cached read models
	var queries cache.PoolQueries
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer cacheService.Close()
		opts = append(opts, ledger.WithLocker(cache.NewRedisLocker(cacheService.GetClient(), cfg.RedisConfig.LockTTL, logger)))
		health["redis"] = cacheService.Ping
	}

	l := ledger.New(store, ledgerCfg, logger, opts...)
	queries = l
	if cacheService != nil {
		qc := cache.NewQueryCache(cacheService, l, cfg.RedisConfig.StatsTTL, logger)
		qc.Subscribe(eventBus)
		queries = qc
	}

	// Transfer service credentials
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return fmt.Errorf("create vault client: %w", err)
	}
	if vaultClient.IsEnabled() {
		health["vault"] = vaultClient.Health
	} else if cfg.DispatchConfig.APIKey != "" {
		if err := vaultClient.StoreCredentials(ctx, vault.Credentials{
			Provider: dispatch.Provider,
			APIKey:   cfg.DispatchConfig.APIKey,
			BaseURL:  cfg.DispatchConfig.BaseURL,
		}); err != nil {
			return fmt.Errorf("seed dispatch credentials: %w", err)
		}
	}

	// Withdrawal dispatcher
	var dispatcher payout.Dispatcher
	if cfg.DispatchConfig.MockMode {
		dispatcher = dispatch.NewMockDispatcher()
		logger.Warn().Msg("Dispatch running in mock mode, withdrawals settle locally")
	} else {
		dispatcher = dispatch.NewHTTPDispatcher(dispatch.ClientConfig{
			BaseURL:  cfg.DispatchConfig.BaseURL,
			Timeout:  cfg.DispatchConfig.Timeout,
			RetryMax: 3,
		}, vaultClient, logger)
	}
	dispatcher = dispatch.NewBreaker(dispatcher, dispatch.BreakerConfig{
		FailureThreshold: cfg.DispatchConfig.FailureThreshold,
		Cooldown:         cfg.DispatchConfig.Cooldown,
	}, logger)

	payoutCfg, err := payoutConfig(cfg.PayoutConfig)
	if err != nil {
		return err
	}
	payouts := payout.NewService(store, dispatcher, eventBus, payoutCfg, logger)

	// Invariant audit
	if cfg.AuditConfig.Enabled {
		scheduler := audit.NewScheduler(store, eventBus, logger)
		if err := scheduler.Start(cfg.AuditConfig.Schedule); err != nil {
			return fmt.Errorf("start audit scheduler: %w", err)
		}
		defer scheduler.Stop()
	}

	// HTTP API
	serverOpts := []api.Option{api.WithQueries(queries)}
	for name, check := range health {
		serverOpts = append(serverOpts, api.WithHealthCheck(name, check))
	}
	server := api.NewServer(api.ServerConfig{
		Host:           cfg.ServerConfig.Host,
		Port:           cfg.ServerConfig.Port,
		AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
		ReadTimeout:    time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
		ProductionMode: cfg.LoggingConfig.JSONFormat,
	}, l, payouts, logger, serverOpts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}
	return nil
}

func ledgerConfig(c config.LedgerConfig) (ledger.Config, error) {
	minimum, err := c.Minimum()
	if err != nil {
		return ledger.Config{}, fmt.Errorf("ledger.minimum_contribution: %w", err)
	}
	fee, err := c.Fee()
	if err != nil {
		return ledger.Config{}, fmt.Errorf("ledger.entry_fee: %w", err)
	}
	platform, err := c.PlatformFee()
	if err != nil {
		return ledger.Config{}, fmt.Errorf("ledger.default_platform_fee: %w", err)
	}
	return ledger.Config{
		Currency:            c.Currency,
		MinimumContribution: minimum,
		EntryFee:            fee,
		DefaultPlatformFee:  platform,
	}, nil
}

func payoutConfig(c config.PayoutConfig) (payout.Config, error) {
	minimum, err := c.Minimum()
	if err != nil {
		return payout.Config{}, fmt.Errorf("payout.minimum_withdrawal: %w", err)
	}
	return payout.Config{
		MinimumWithdrawal: minimum,
		Networks:          c.Networks,
		DispatchTimeout:   c.DispatchTimeout,
	}, nil
}

func splitOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
