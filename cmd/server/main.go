package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dmehra2102/Ordinal/internal/app"
	"github.com/dmehra2102/Ordinal/internal/bootstrap"
	"github.com/dmehra2102/Ordinal/internal/domain"
	"github.com/dmehra2102/Ordinal/internal/infrastructure/config"
	"github.com/dmehra2102/Ordinal/internal/interceptors"
	"github.com/dmehra2102/Ordinal/pkg/auth"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const healthCheckInterval = 10 * time.Second

func main() {
	// Load Configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	obsCfg := cfg.GetObservabilityConfig()
	logger, err := bootstrap.NewLogger(obsCfg)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting ordinal service",
		zap.String("version", bootstrap.ServiceVersion),
		zap.String("environment", cfg.Environment),
		zap.String("store", cfg.StoreDriver),
		zap.String("lock_backend", cfg.LockBackend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := bootstrap.InitTracer(ctx, obsCfg)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer shutdownTracer(context.Background())

	stack, err := bootstrap.NewStack(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize ordering stack", zap.Error(err))
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn("Failed to close ordering stack", zap.Error(err))
		}
	}()

	serverCfg := cfg.GetServerConfig()
	grpcServer := initGRPCServer(cfg, serverCfg, logger)

	// Service Registry
	service := app.NewItemOrderingService(stack.Coordinator, logger.Named("service"), auth.NewAuthorizer())
	app.RegisterItemOrderingServer(grpcServer, service)

	// Register health service
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	go watchHealth(ctx, healthServer, stack.Repository, cfg.DatabaseTimeout, logger)

	if serverCfg.EnableReflection {
		reflection.Register(grpcServer)
	}

	var metricsServer *http.Server
	if obsCfg.EnableMetrics {
		metricsServer = startMetricsServer(serverCfg.MetricsPort, logger)
	}

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", serverCfg.Port))
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	go func() {
		logger.Info("Server starting", zap.Int("port", serverCfg.Port))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("Server stopped serving", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics server shutdown failed", zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("Server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}
}

func initGRPCServer(cfg *config.Config, serverCfg config.ServerConfig, logger *zap.Logger) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     15 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Minute,
			Time:                  5 * time.Minute,
			Timeout:               1 * time.Minute,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             1 * time.Minute,
			PermitWithoutStream: true,
		}),

		grpc.MaxRecvMsgSize(4 * 1024 * 1024),
		grpc.MaxSendMsgSize(4 * 1024 * 1024),

		grpc.StatsHandler(otelgrpc.NewServerHandler()),

		grpc.ChainUnaryInterceptor(
			interceptors.RecoveryInterceptor(logger),
			interceptors.LoggingInterceptor(logger.Named("grpc")),
			interceptors.MetricsInterceptor(),
			interceptors.TimeoutInterceptor(serverCfg.RequestTimeout),
			interceptors.AuthInterceptor(cfg.JWTSecret),
		),
	}

	if serverCfg.TLSEnabled {
		creds, err := credentials.NewServerTLSFromFile(serverCfg.TLSCertFile, serverCfg.TLSKeyFile)
		if err != nil {
			logger.Fatal("Failed to load TLS credentials", zap.Error(err))
		}
		opts = append(opts, grpc.Creds(creds))
	}

	return grpc.NewServer(opts...)
}

// watchHealth reports SERVING while the item store answers pings.
func watchHealth(ctx context.Context, hs *health.Server, repo domain.Repository, timeout time.Duration, logger *zap.Logger) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err := repo.Ping(pingCtx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("Item store ping failed", zap.Error(err))
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(app.ServiceName, st)
	}

	check()
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			check()
		}
	}
}

func startMetricsServer(port int, logger *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server starting", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()

	return srv
}
