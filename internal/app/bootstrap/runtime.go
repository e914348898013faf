package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"gorm.io/gorm"

	cacheadapter "github.com/viralforge/porter-dispatch/internal/adapters/cache"
	eventadapter "github.com/viralforge/porter-dispatch/internal/adapters/events"
	grpcadapter "github.com/viralforge/porter-dispatch/internal/adapters/grpc"
	httpadapter "github.com/viralforge/porter-dispatch/internal/adapters/http"
	"github.com/viralforge/porter-dispatch/internal/adapters/memory"
	"github.com/viralforge/porter-dispatch/internal/adapters/notify"
	"github.com/viralforge/porter-dispatch/internal/adapters/postgres"
	"github.com/viralforge/porter-dispatch/internal/adapters/security"
	"github.com/viralforge/porter-dispatch/internal/application"
	"github.com/viralforge/porter-dispatch/internal/metrics"
	oteladapter "github.com/viralforge/porter-dispatch/internal/platform/otel"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

type Runtime struct {
	cfg        Config
	logger     *slog.Logger
	httpServer *http.Server
	grpcServer *grpc.Server
	dispatcher *notify.Dispatcher
	// otpSweeper is set only when challenges live in process memory.
	otpSweeper *memory.OTPStore
	relay      *eventadapter.OutboxRelay
	cleanupFn  func(context.Context)
}

func NewRuntime(ctx context.Context, configPath string) (*Runtime, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("bootstrapping porter dispatch service",
		"http_port", cfg.HTTPPort,
		"grpc_port", cfg.GRPCPort,
		"otp_store", cfg.OTPStore,
		"gateway_mode", cfg.GatewayMode,
	)

	metrics.Register()
	shutdownTracing, err := oteladapter.Setup(ctx, oteladapter.Options{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Endpoint:       cfg.OTELEndpoint,
		SampleRatio:    cfg.OTELSampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	db, err := postgres.Connect(ctx, cfg.DatabaseURL, cfg.MaxDBConns)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("gorm sql db: %w", err)
	}

	closers := []func(context.Context){
		func(ctx context.Context) { _ = shutdownTracing(ctx) },
		func(context.Context) { _ = sqlDB.Close() },
	}
	cleanup := func(ctx context.Context) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i](ctx)
		}
	}
	fail := func(err error) (*Runtime, error) {
		cleanup(ctx)
		return nil, err
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		return fail(fmt.Errorf("run migrations: %w", err))
	}

	redisClient, err := cacheadapter.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return fail(fmt.Errorf("connect redis: %w", err))
	}
	closers = append(closers, func(context.Context) { _ = redisClient.Close() })

	repos := postgres.NewRepositories(db)

	tokenSigner, err := newTokenSigner(cfg, logger)
	if err != nil {
		return fail(err)
	}

	gateway, err := newGateway(cfg, logger)
	if err != nil {
		return fail(err)
	}

	sender, err := newSender(cfg, logger)
	if err != nil {
		return fail(err)
	}
	dispatcher := notify.NewDispatcher(logger, sender, notify.DispatcherOptions{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
	})

	var (
		challenges ports.OTPChallengeStore
		sweeper    *memory.OTPStore
	)
	switch cfg.OTPStore {
	case OTPStoreMemory:
		sweeper = memory.NewOTPStore()
		challenges = sweeper
	default:
		challenges = cacheadapter.NewRedisOTPStore(redisClient)
	}

	svc := application.NewService(application.Dependencies{
		Config: application.Config{
			ServiceName:          cfg.ServiceName,
			OTPLength:            cfg.OTPLength,
			OTPTTL:               cfg.OTPTTL,
			TokenTTL:             cfg.TokenTTL,
			FailedLoginThreshold: cfg.FailedThreshold,
			LockoutDuration:      cfg.LockoutDuration,
			Currency:             cfg.Currency,
			ScheduleLead:         cfg.ScheduleLead,
			ListLimit:            cfg.ListLimit,
		},
		Principals:  repos.Principals,
		Deliveries:  repos.Deliveries,
		Payments:    repos.Payments,
		Outbox:      repos.Outbox,
		Lockouts:    cacheadapter.NewRedisLockoutStore(redisClient),
		Challenges:  challenges,
		Gateway:     gateway,
		Broadcaster: cacheadapter.NewRedisBroadcaster(redisClient, cfg.BroadcastChannelPrefix),
		Notifier:    dispatcher,
		Hasher:      security.NewBcryptHasher(cfg.BcryptCost),
		TokenSigner: tokenSigner,
	})

	if err := svc.SeedAdmin(ctx, cfg.SeedAdminUsername, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
		return fail(fmt.Errorf("seed admin: %w", err))
	}

	handler := httpadapter.NewHandler(svc,
		httpadapter.WithReadinessCheck("postgres", pingDB(db)),
		httpadapter.WithReadinessCheck("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}),
		httpadapter.WithJWKS(tokenSigner.JWKS),
	)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           httpadapter.NewRouter(handler, cfg.ExposeMetrics),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	healthSrv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	grpcadapter.Register(grpcServer, grpcadapter.NewServer(svc))

	publisher, closePublisher, err := newPublisher(cfg, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, func(context.Context) { closePublisher() })

	relay := eventadapter.NewOutboxRelay(logger, repos.Outbox, publisher, eventadapter.RelayOptions{
		Interval:   cfg.OutboxPollInterval,
		BatchSize:  cfg.OutboxBatchSize,
		ClaimTTL:   cfg.OutboxClaimTTL,
		MaxRetries: cfg.OutboxMaxRetries,
	})

	return &Runtime{
		cfg:        cfg,
		logger:     logger,
		httpServer: httpServer,
		grpcServer: grpcServer,
		dispatcher: dispatcher,
		otpSweeper: sweeper,
		relay:      relay,
		cleanupFn:  cleanup,
	}, nil
}

func (r *Runtime) RunAPI(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", r.cfg.GRPCPort))
	if err != nil {
		r.cleanupFn(context.Background())
		return fmt.Errorf("listen gRPC: %w", err)
	}

	bgCtx, cancelBackground := context.WithCancel(ctx)
	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		_ = r.dispatcher.Run(bgCtx)
	}()
	if r.otpSweeper != nil {
		background.Add(1)
		go func() {
			defer background.Done()
			_ = r.otpSweeper.Run(bgCtx, r.cfg.OTPSweepInterval)
		}()
	}

	errCh := make(chan error, 2)
	go func() {
		r.logger.Info("http server started", "addr", r.httpServer.Addr)
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		r.logger.Info("grpc server started", "addr", lis.Addr().String())
		if err := r.grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		r.logger.Error("server failure", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = r.httpServer.Shutdown(shutdownCtx)
	r.grpcServer.GracefulStop()
	cancelBackground()
	background.Wait()
	r.cleanupFn(shutdownCtx)
	return runErr
}

func (r *Runtime) RunWorker(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	r.logger.Info("outbox worker started")
	err := r.relay.Run(ctx)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.cleanupFn(shutdownCtx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func pingDB(db *gorm.DB) httpadapter.ReadinessCheck {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
