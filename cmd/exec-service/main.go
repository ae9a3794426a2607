package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"codeexec/internal/common/cache"
	commonmw "codeexec/internal/common/http/middleware"
	"codeexec/internal/common/mq"
	"codeexec/internal/execution/adapter"
	"codeexec/internal/execution/controller"
	"codeexec/internal/execution/materializer"
	"codeexec/internal/execution/observer"
	"codeexec/internal/execution/sandbox/engine"
	"codeexec/internal/execution/sandbox/runner"
	"codeexec/internal/execution/service"
	"codeexec/internal/gateway/middleware"
	gatewaysvc "codeexec/internal/gateway/service"
	"codeexec/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/exec_service.yaml"
	executeRouteKey   = "execute"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "exec service stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	scratch, err := materializer.New(appCfg.Execution.ScratchDir)
	if err != nil {
		return fmt.Errorf("init materializer failed: %w", err)
	}
	if removed := scratch.Sweep(ctx, appCfg.Execution.SweepAge); removed > 0 {
		logger.Info(ctx, "removed stale scratch directories", zap.Int("count", removed))
	}

	registry, err := adapter.DefaultRegistry(appCfg.Languages)
	if err != nil {
		return fmt.Errorf("build language registry failed: %w", err)
	}
	probeToolchains(ctx, registry)

	eng, err := engine.NewEngine(toEngineConfig(appCfg.Sandbox), toProfileSet(appCfg.Sandbox))
	if err != nil {
		return fmt.Errorf("init process engine failed: %w", err)
	}
	procRunner := runner.NewRunner(eng, runner.Config{
		Profile:      sandboxProfile,
		MountWorkDir: appCfg.Sandbox.MountWorkDir,
		Limits:       toResourceLimit(appCfg.Sandbox),
		BaseEnv:      appCfg.Sandbox.Env,
	})

	observers := observer.Multi{}
	var metrics *observer.MetricsRecorder
	if appCfg.Metrics.Enabled {
		metrics = observer.NewMetricsRecorder()
		observers = append(observers, metrics)
	}
	if appCfg.Kafka.Enabled {
		mqCfg, err := toMQConfig(appCfg.Kafka)
		if err != nil {
			return err
		}
		producer, err := mq.NewKafkaProducer(mqCfg)
		if err != nil {
			return fmt.Errorf("init kafka producer failed: %w", err)
		}
		defer func() { _ = producer.Close() }()
		publisher := observer.NewEventPublisher(producer, appCfg.Kafka.Topic, appCfg.Kafka.PublishTimeout)
		// Runs before the producer closes so pending events are flushed.
		defer publisher.Close()
		observers = append(observers, publisher)
	}

	execService, err := service.NewExecutionService(service.Config{
		Languages:         registry,
		Materializer:      scratch,
		Runner:            procRunner,
		Observer:          observers,
		Timeout:           appCfg.Execution.Timeout,
		BuildTimeout:      appCfg.Execution.BuildTimeout,
		MaxOutputBytes:    appCfg.Execution.MaxOutputBytes,
		MaxCodeBytes:      appCfg.Execution.MaxCodeBytes,
		MaxTestInputBytes: appCfg.Execution.MaxTestInputBytes,
	})
	if err != nil {
		return fmt.Errorf("init execution service failed: %w", err)
	}

	var rateService *gatewaysvc.RateLimitService
	if appCfg.Rate.Enabled {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			return fmt.Errorf("init redis failed: %w", err)
		}
		defer func() { _ = redisCache.Close() }()
		rateService = gatewaysvc.NewRateLimitService(redisCache, appCfg.Rate.Window, appCfg.Redis.ReadTimeout, appCfg.Rate.FailOpen)
	}

	httpServer := buildHTTPServer(appCfg, execService, rateService, metrics)

	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "exec service http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("scratch_dir", scratch.Root()),
			zap.Bool("sandbox_helper", appCfg.Sandbox.EnableHelper),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
	case <-shutdownCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	drainCtx, cancel := context.WithTimeout(ctx, appCfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(drainCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg *AppConfig, execService *service.ExecutionService, rateService *gatewaysvc.RateLimitService, metrics *observer.MetricsRecorder) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(middleware.CORSMiddleware(middleware.CORSConfig{
		Enabled:          cfg.CORS.Enabled,
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   cfg.CORS.AllowedMethods,
		AllowedHeaders:   cfg.CORS.AllowedHeaders,
		ExposedHeaders:   cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           cfg.CORS.MaxAge,
	}))
	var quiet []string
	if cfg.Metrics.Enabled {
		quiet = append(quiet, cfg.Metrics.Path)
	}
	router.Use(commonmw.RequestLogger(quiet...))

	var executeMiddlewares []gin.HandlerFunc
	if rateService != nil {
		executeMiddlewares = append(executeMiddlewares, middleware.RateLimitMiddleware(rateService, executeRouteKey, middleware.RateLimitPolicy{
			Window:   cfg.Rate.Window,
			IPMax:    cfg.Rate.IPMax,
			RouteMax: cfg.Rate.RouteMax,
		}))
	}
	if cfg.Execution.MaxConcurrent > 0 {
		var inFlight prometheus.Gauge
		if metrics != nil {
			inFlight = prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "codeexec",
				Name:      "executions_in_flight",
				Help:      "Executions currently holding an admission slot",
			})
			metrics.Registerer().MustRegister(inFlight)
		}
		limiter := mq.NewTokenLimiter(cfg.Execution.MaxConcurrent)
		executeMiddlewares = append(executeMiddlewares, middleware.AdmissionMiddleware(limiter, cfg.Execution.AdmissionWait, inFlight))
	}

	ctrl := controller.NewExecutionController(execService, execService, cfg.Server.MaxBodyBytes)
	ctrl.Register(router, executeMiddlewares...)

	if metrics != nil {
		router.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler()))
	}

	var handler http.Handler = router
	if cfg.Server.Gzip {
		handler = gzhttp.GzipHandler(router)
	}

	return &http.Server{
		Addr:           cfg.Server.Addr,
		Handler:        handler,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
}

// probeToolchains warns about executables missing from PATH. Requests for those
// languages still go through and come back as spawn failures.
func probeToolchains(ctx context.Context, registry *adapter.Registry) {
	for _, lang := range registry.List() {
		for _, tool := range lang.Toolchain() {
			if _, err := exec.LookPath(tool); err != nil {
				logger.Warn(ctx, "toolchain executable not found",
					zap.String("language", lang.ID()),
					zap.String("tool", tool),
				)
			}
		}
	}
}
