package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/redis/go-redis/v9"
	"smarttrain/config"
	"smarttrain/internal/auth"
	"smarttrain/internal/handlers"
	"smarttrain/internal/services"
	"smarttrain/internal/services/bank"
	"smarttrain/internal/services/bank/gateway"
	"smarttrain/internal/store"
	"smarttrain/monitoring"
	"smarttrain/security"
	"smarttrain/utils"
)

// server holds everything the routes and commands need.
type server struct {
	cfg    *config.Config
	redis  *redis.Client
	dbPing handlers.Pinger

	authn    *auth.Authenticator
	accounts *services.AccountService
	tickets  *services.TicketService
	escrow   *services.EscrowService
	payments *services.PaymentService
	sweeper  *services.ReleaseScheduler
	limiter  *security.RateLimiter
	notifier services.Notifier
}

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, closeDB, err := newServer(ctx, app, cfg, redisClient)
	if err != nil {
		return err
	}
	defer closeDB()

	app.RootCmd.AddCommand(releaseSweepCommand(srv.sweeper))

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		if err := srv.sweeper.Start(ctx); err != nil {
			return fmt.Errorf("start release scheduler: %w", err)
		}
		if cfg.EnableMetrics {
			go monitoring.NewMonitor(redisClient, services.HoldKeyPattern).Run(ctx)
		}

		srv.registerRoutes(se)
		slog.Info("Server routes registered", "require_payment", cfg.RequirePayment)

		return se.Next()
	})

	app.OnTerminate().BindFunc(func(e *core.TerminateEvent) error {
		srv.sweeper.Stop()
		if n, ok := srv.notifier.(*services.PubNubNotifier); ok {
			n.Close()
		}
		cancel()
		return e.Next()
	})

	if len(os.Args) < 2 {
		app.RootCmd.SetArgs([]string{"serve", "--http", "0.0.0.0:" + cfg.Port})
	}

	// Start server
	return app.Start()
}

func newServer(ctx context.Context, app *pocketbase.PocketBase, cfg *config.Config, redisClient *redis.Client) (*server, func(), error) {
	logger := slog.Default()
	closeDB := func() {}

	// An empty DATABASE_URL keeps the marketplace tables in the pocketbase
	// database, created by the registered migration.
	var (
		conn   store.Conn
		dbPing handlers.Pinger
	)
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := store.CreateSchema(db); err != nil {
			db.Close()
			return nil, nil, err
		}
		conn = store.NewDBXConn(db)
		dbPing = db.DB().PingContext
		closeDB = func() { db.Close() }
	} else {
		conn = store.NewAppConn(app)
		dbPing = func(ctx context.Context) error {
			var one int
			return app.DB().NewQuery("SELECT 1").WithContext(ctx).Row(&one)
		}
	}
	st := store.New(conn)

	authn, err := newAuthenticator(cfg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	provider, err := newPaymentProvider(ctx, cfg)
	if err != nil {
		closeDB()
		return nil, nil, err
	}

	notifier := newNotifier(cfg)

	escrow := services.NewEscrowService(st, cfg.PlatformFee, notifier, services.SystemClock, logger)

	var locker services.SweepLocker
	if cfg.SweepLockEnabled {
		host, _ := os.Hostname()
		locker = services.NewRedisSweepLock(redisClient, fmt.Sprintf("%s-%d", host, os.Getpid()))
	}

	return &server{
		cfg:      cfg,
		redis:    redisClient,
		dbPing:   dbPing,
		authn:    authn,
		accounts: services.NewAccountService(st, authn, logger),
		tickets:  services.NewTicketService(st, services.SystemClock, logger),
		escrow:   escrow,
		payments: services.NewPaymentService(
			redisClient,
			st,
			provider,
			escrow,
			services.NewHoldService(redisClient),
			notifier,
			services.PaymentConfig{
				Currency:        cfg.Currency,
				SessionTimeout:  cfg.PaymentTimeout,
				ProviderTimeout: cfg.PaymentProviderTimeout,
				WebhookSecret:   cfg.Payment.WebhookSecret,
			},
			logger,
		),
		sweeper: services.NewReleaseScheduler(escrow, cfg.ReleaseSweepInterval, services.SystemClock, locker, logger),
		limiter:  security.NewRateLimiter(redisClient),
		notifier: notifier,
	}, closeDB, nil
}

func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	secret := cfg.JWTSecret
	if secret == "" {
		if cfg.Environment != "development" {
			return nil, errors.New("JWT_SECRET is required")
		}
		generated, err := utils.GenerateToken(32)
		if err != nil {
			return nil, err
		}
		slog.Warn("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
		secret = generated
	}
	return auth.New(secret, cfg.TokenTTL)
}

func newPaymentProvider(ctx context.Context, cfg *config.Config) (bank.Provider, error) {
	if cfg.RequirePayment && cfg.Payment.WebhookSecret == "" {
		if cfg.Environment != "development" {
			return nil, errors.New("PAYMENT_WEBHOOK_SECRET is required when REQUIRE_PAYMENT is enabled")
		}
		slog.Warn("PAYMENT_WEBHOOK_SECRET not set, every payment webhook will be rejected")
	}

	var provider bank.Provider = &bank.Sandbox{SwitchBackURL: cfg.Payment.SwitchBackURL}
	if cfg.Payment.BaseURL != "" {
		gw, err := gateway.New(ctx, &gateway.Config{
			BaseURL:        cfg.Payment.BaseURL,
			AccessTokenURL: cfg.Payment.AccessTokenURL,
			ClientID:       cfg.Payment.ClientID,
			ClientSecret:   cfg.Payment.ClientSecret,
			MerchantID:     cfg.Payment.MerchantID,
			KeyID:          cfg.Payment.KeyID,
			HMACKey:        cfg.Payment.HMACKey,
			SwitchBackURL:  cfg.Payment.SwitchBackURL,
		})
		if err != nil {
			return nil, fmt.Errorf("payment gateway: %w", err)
		}
		provider = gw
	} else if cfg.RequirePayment {
		slog.Warn("PAYMENT_BASE_URL not set, using the sandbox payment provider")
	}

	return bank.WithBreaker(provider, utils.NewCircuitBreaker("payment-gateway")), nil
}

func newNotifier(cfg *config.Config) services.Notifier {
	if cfg.PubNubPublishKey == "" || cfg.PubNubSubscribeKey == "" {
		slog.Info("PubNub keys not set, user notifications disabled")
		return services.NopNotifier{}
	}
	return services.NewPubNubNotifier(cfg.PubNubPublishKey, cfg.PubNubSubscribeKey, cfg.PubNubSecretKey, cfg.PubNubUserID)
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("Shutdown signal received, cleaning up...")
	cancel()
}
