package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"poolmarket/internal/auth"
	"poolmarket/internal/blockchain"
	"poolmarket/internal/config"
	"poolmarket/internal/database"
	"poolmarket/internal/handlers"
	"poolmarket/internal/jobs"
	"poolmarket/internal/logger"
	"poolmarket/internal/notify"
	"poolmarket/internal/realtime"
	"poolmarket/internal/repository"
	"poolmarket/internal/services"
	"poolmarket/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	auth.InitJWT(cfg.App.JWTSecret, cfg.App.SessionTTL)

	// Store
	db, err := database.Connect(cfg.Database.Driver, cfg.GetDSN(), zlog)
	if err != nil {
		return err
	}
	if err := database.AutoMigrate(db, zlog); err != nil {
		return err
	}
	if err := database.InstallNotifyTrigger(db); err != nil {
		zlog.Warn("pool change notifications disabled", zap.Error(err))
	}
	repo := repository.NewRepository(db)

	// Sessions
	sessions, closeSessions, err := newSessionStore(ctx, cfg, zlog)
	if err != nil {
		return err
	}
	defer closeSessions()

	// Contracts
	registry, diag, closeChain, err := newContractBackend(ctx, cfg, repo, zlog)
	if err != nil {
		return err
	}
	defer closeChain()

	// Services
	marketService := services.NewMarketService(repo, registry, cfg.Chain.ChainID, zlog)
	adminService := services.NewAdminService(repo, registry, marketService, diag, zlog)
	claimService := services.NewClaimService(repo, registry, marketService, zlog)
	authService := services.NewAuthService(repo, sessions, zlog)
	reconcileService := services.NewReconcileService(repo, registry, marketService, zlog)

	// Live updates
	hub := realtime.NewHub(marketService, zlog)
	go hub.Run(ctx)
	marketService.SetPublisher(hub)

	refetch := jobs.NewDelayedRefetch(ctx, cfg.Reconcile.Delay, reconcileService.ReconcileMarket, zlog)
	defer refetch.Stop()
	marketService.SetRefetcher(refetch)

	runner := jobs.NewRunner(zlog, ctx)
	reconcileJob := jobs.NewReconcileJob(reconcileService, time.Minute, zlog)
	if err := reconcileJob.Register(runner, cfg.Reconcile.Cron); err != nil {
		return fmt.Errorf("invalid RECONCILE_CRON %q: %w", cfg.Reconcile.Cron, err)
	}
	runner.Start()
	defer runner.Stop()
	go reconcileJob.Run(ctx)

	if cfg.Database.Driver == database.DriverPostgres {
		listener, err := notify.NewListener(cfg.GetDSN(), marketService, zlog)
		if err != nil {
			zlog.Warn("pool change listener disabled", zap.Error(err))
		} else {
			defer listener.Close()
			go listener.Run(ctx)
		}
	}

	// Set up Gin router
	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	allowedOrigins := []string{
		"http://localhost:3000",
		"http://localhost:5173",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:5173",
	}
	if cfg.Server.FrontendURL != "" {
		allowedOrigins = append(allowedOrigins, cfg.Server.FrontendURL)
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.SetupRoutes(router, handlers.Routes{
		Auth:       handlers.NewAuthHandler(authService, zlog),
		Markets:    handlers.NewMarketHandler(marketService, hub, zlog),
		Positions:  handlers.NewPositionHandler(marketService, claimService, zlog),
		Admin:      handlers.NewAdminHandler(adminService, zlog),
		Blockchain: handlers.NewBlockchainHandler(adminService, cfg.Chain.Mode, cfg.Chain.ChainID, zlog),
		Sessions:   sessions,
		Logger:     zlog,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("contract_mode", cfg.Chain.Mode),
			zap.Int64("chain_id", cfg.Chain.ChainID),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	zlog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	zlog.Info("server exited")
	return nil
}

func newSessionStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (session.Store, func(), error) {
	if cfg.Redis.Addr == "" {
		zlog.Warn("REDIS_ADDR not set, sessions are kept in memory")
		return session.NewMemoryStore(cfg.App.SessionTTL, cfg.App.NonceTTL), func() {}, nil
	}

	store, err := session.NewRedisStore(ctx, &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, cfg.App.SessionTTL, cfg.App.NonceTTL)
	if err != nil {
		return nil, nil, err
	}
	zlog.Info("redis session store connected", zap.String("addr", cfg.Redis.Addr))
	return store, func() { _ = store.Close() }, nil
}

func newContractBackend(ctx context.Context, cfg *config.Config, repo *repository.Repository, zlog *zap.Logger) (*blockchain.Registry, blockchain.Diagnoser, func(), error) {
	if cfg.Chain.Mode == config.ChainModeSimulated {
		zlog.Warn("using simulated contracts", zap.String("owner", cfg.Chain.OwnerAddress))
		// Contract state is rebuilt from the store on first use.
		registry := blockchain.NewRegistry(blockchain.RestoringSimulatedFactory(
			cfg.Chain.OwnerAddress, time.Now, services.SimulatedRounds(repo, cfg.Chain.CallTimeout)))
		diag := blockchain.SimulatedDiagnoser{ChainID: cfg.Chain.ChainID, Owner: cfg.Chain.OwnerAddress}
		return registry, diag, func() {}, nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Chain.CallTimeout)
	defer cancel()
	client, err := blockchain.DialEVM(dialCtx, cfg.Chain.RPCURL, cfg.Chain.ChainID, cfg.Chain.OperatorKey, zlog)
	if err != nil {
		return nil, nil, nil, err
	}
	client.SetTimeouts(cfg.Chain.CallTimeout, cfg.Chain.TxWaitTimeout)
	if cfg.Chain.OperatorKey == "" {
		zlog.Warn("OPERATOR_PRIVATE_KEY not set, admin actions will fail")
	}
	return blockchain.NewRegistry(client.Contract), client, client.Close, nil
}
