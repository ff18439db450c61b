package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// Config 服务器配置
type Config struct {
	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时（0 表示不限制，流式响应需要）
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// DrainTimeout 关闭时先等待进行中的请求自然结束的时间，到期后取消它们
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`

	// 取消后排空连接的超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// 证书与私钥都配置时以 HTTPS 提供服务
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 30 * time.Second,
	}
}

func (c Config) tls() bool { return c.CertFile != "" && c.KeyFile != "" }

// Manager 管理一个 http.Server 的生命周期。
// 所有请求的 context 派生自 Manager 的基础 context：Shutdown 取消它之后，
// 仍在进行的流式会话会以取消结束并写出终止行，连接随后排空。
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger
	errCh  chan error

	baseCtx    context.Context
	cancelBase context.CancelFunc
	inflight   atomic.Int64

	mu       sync.RWMutex
	listener net.Listener
	closed   bool
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, config Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	baseCtx, cancelBase := context.WithCancel(context.Background())

	m := &Manager{
		config:     config,
		logger:     logger.With(zap.String("component", "http_server")),
		errCh:      make(chan error, 1),
		baseCtx:    baseCtx,
		cancelBase: cancelBase,
	}
	m.server = &http.Server{
		Addr:           config.Addr,
		Handler:        m.track(handler),
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
		TLSConfig:      tlsutil.DefaultTLSConfig(),
		BaseContext:    func(net.Listener) context.Context { return baseCtx },
		ErrorLog:       zap.NewStdLog(m.logger),
	}
	return m
}

// track 统计进行中的请求数，供关闭时的排空等待使用
func (m *Manager) track(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inflight.Add(1)
		defer m.inflight.Add(-1)
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// 🎯 生命周期
// =============================================================================

// Start 开始监听并在后台提供服务。配置了证书时使用 HTTPS。
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.New("server is closed")
	}
	if m.listener != nil {
		return errors.New("server already started")
	}

	listener, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = listener

	scheme := "http"
	if m.config.tls() {
		scheme = "https"
	}
	m.logger.Info("starting server",
		zap.String("scheme", scheme),
		zap.String("addr", listener.Addr().String()),
	)

	go m.serve(listener)
	return nil
}

func (m *Manager) serve(listener net.Listener) {
	var err error
	if m.config.tls() {
		err = m.server.ServeTLS(listener, m.config.CertFile, m.config.KeyFile)
	} else {
		err = m.server.Serve(listener)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 停止接收新连接，等待进行中的请求最多 DrainTimeout，
// 然后取消剩余请求并在 ShutdownTimeout 内排空连接。重复调用是 no-op。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.logger.Info("shutting down server", zap.Int64("inflight", m.inflight.Load()))

	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- m.server.Shutdown(shutdownCtx) }()

	m.drain(ctx)
	// 流式响应不会自己结束，必须取消
	m.cancelBase()

	err := <-done

	m.mu.Lock()
	m.listener = nil
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("server stopped")
	return nil
}

// drain 轮询等待进行中的请求结束
func (m *Manager) drain(ctx context.Context) {
	if m.config.DrainTimeout <= 0 || m.inflight.Load() == 0 {
		return
	}
	deadline := time.NewTimer(m.config.DrainTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for m.inflight.Load() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			m.logger.Warn("drain timeout, canceling in-flight requests",
				zap.Int64("inflight", m.inflight.Load()),
				zap.Duration("drain_timeout", m.config.DrainTimeout),
			)
			return
		case <-tick.C:
		}
	}
}

// Errors 返回服务异常退出的错误，最多缓存一个
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// =============================================================================
// 🔧 辅助方法
// =============================================================================

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// ListenAddr 返回实际绑定的地址（配置端口为 0 时有用），未启动时返回空串
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// InFlight 返回进行中的请求数
func (m *Manager) InFlight() int64 {
	return m.inflight.Load()
}

// IsRunning 报告 Manager 是否尚未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}
