package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/api/handlers"
	"github.com/BaSui01/tokenflow/config"
	"github.com/BaSui01/tokenflow/internal/metrics"
	"github.com/BaSui01/tokenflow/internal/server"
	"github.com/BaSui01/tokenflow/internal/telemetry"
	"github.com/BaSui01/tokenflow/pipeline"
	"github.com/BaSui01/tokenflow/source"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 TokenFlow 的 HTTP 服务
type Server struct {
	cfg       *config.Config
	selection source.Selection
	host      string
	logger    *zap.Logger
	otel      *telemetry.Providers

	// 测试可替换
	namespace string
	source    source.Source

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// Handlers
	healthHandler *handlers.HealthHandler
	streamHandler *handlers.StreamHandler

	pipe             *pipeline.Pipeline
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, sel source.Selection, host string, logger *zap.Logger, otel *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		selection: sel,
		host:      host,
		logger:    logger,
		otel:      otel,
		namespace: "tokenflow",
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 启动所有服务
func (s *Server) Start() error {
	handler, err := s.buildHandler()
	if err != nil {
		return err
	}

	if err := s.startHTTPServer(handler); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if s.cfg.Server.MetricsPort > 0 {
		if err := s.startMetricsServer(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	s.logger.Info("All servers started",
		zap.String("addr", s.httpManager.ListenAddr()),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("source", s.pipe.Label()),
	)
	return nil
}

// buildHandler 初始化管道与 handlers，返回带完整中间件链的根 handler
func (s *Server) buildHandler() (http.Handler, error) {
	s.metricsCollector = metrics.NewCollector(s.namespace, s.logger)

	instruments, err := telemetry.NewInstruments()
	if err != nil {
		s.logger.Warn("OTel instruments unavailable, session spans disabled", zap.Error(err))
		instruments = nil
	}

	if err := s.initPipeline(instruments); err != nil {
		return nil, fmt.Errorf("failed to init pipeline: %w", err)
	}
	s.initHandlers()

	return s.routes(), nil
}

func (s *Server) initPipeline(instruments *telemetry.Instruments) error {
	if s.source == nil {
		pipe, err := newPipeline(s.cfg, s.selection, s.logger, s.metricsCollector, instruments)
		if err != nil {
			return err
		}
		s.pipe = pipe
		return nil
	}

	src := s.source
	if s.selection.Graph {
		g, err := source.NewGraphSource(src, s.logger)
		if err != nil {
			return err
		}
		src = g
	}
	s.pipe = pipeline.New(src, pipelineConfig(s.cfg.Stream),
		pipeline.WithLogger(s.logger),
		pipeline.WithCollector(s.metricsCollector),
		pipeline.WithInstruments(instruments),
		pipeline.WithLabel(s.selection.Label()),
	)
	return nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	s.healthHandler.SetVersion(Version)
	s.healthHandler.RegisterCheck(handlers.NewCheck("upstream", func(ctx context.Context) error {
		if s.source == nil && s.cfg.Upstream.APIKey == "" {
			return errors.New("upstream API key not configured")
		}
		return nil
	}))
	s.healthHandler.RegisterCheck(handlers.NewCheck("pipeline", func(ctx context.Context) error {
		if s.pipe == nil {
			return errors.New("pipeline not initialized")
		}
		return nil
	}))

	s.streamHandler = handlers.NewStreamHandler(s.pipe, promptBuilder(s.cfg.Upstream, s.cfg.Stream), s.logger,
		handlers.WithOriginPatterns(s.cfg.Server.CORSAllowedOrigins),
	)
	s.logger.Info("Handlers initialized", zap.String("source", s.pipe.Label()))
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// 流式端点
	limit := StreamLimiter(int64(s.cfg.Server.StreamLimit()), s.metricsCollector, s.logger)
	mux.Handle("GET /stream", limit(http.HandlerFunc(s.streamHandler.HandleStream)))
	mux.Handle("GET /ws/stream", limit(http.HandlerFunc(s.streamHandler.HandleWebSocket)))

	// ========================================
	// 构建中间件链
	// ========================================
	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	var rateLimit, apiKeyAuth, jwtAuth Middleware
	if s.cfg.Server.RateLimitRPS > 0 {
		rateLimit = RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst,
			s.metricsCollector, s.logger)
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		apiKeyAuth = APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.cfg.Server.AllowQueryAPIKey,
			s.metricsCollector, s.logger)
	}
	if s.cfg.Server.JWT.Enabled() {
		jwtAuth = JWTAuth(s.cfg.Server.JWT, skipAuthPaths, s.metricsCollector, s.logger)
	}

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		rateLimit,
		apiKeyAuth,
		jwtAuth,
	)
}

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer(handler http.Handler) error {
	serverConfig := server.Config{
		Addr:            net.JoinHostPort(s.host, strconv.Itoa(s.cfg.Server.HTTPPort)),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     s.cfg.Server.IdleTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		DrainTimeout:    s.cfg.Server.DrainTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		CertFile:        s.cfg.Server.TLSCertFile,
		KeyFile:         s.cfg.Server.TLSKeyFile,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.ListenAddr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// startMetricsServer 启动 Metrics 服务器
func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            net.JoinHostPort(s.host, strconv.Itoa(s.cfg.Server.MetricsPort)),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.ReadTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 阻塞直到收到 SIGINT/SIGTERM 或 HTTP 服务异常退出，然后优雅关闭
func (s *Server) WaitForShutdown() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErrs <-chan error
	if s.httpManager != nil {
		serveErrs = s.httpManager.Errors()
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
	case err := <-serveErrs:
		s.logger.Error("HTTP server exited unexpectedly", zap.Error(err))
	}
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务。进行中的流会被取消并各自写出终止行。
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	// 先让就绪探针失败，负载均衡器停止分配新流
	if s.healthHandler != nil {
		s.healthHandler.StartDraining()
	}

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.otel != nil {
		if err := s.otel.Shutdown(ctx); err != nil {
			s.logger.Error("OTel shutdown error", zap.Error(err))
		}
	}

	s.logger.Info("Graceful shutdown completed")
}
