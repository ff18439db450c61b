package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/internal/metrics"
	"github.com/BaSui01/tokenflow/internal/telemetry"
	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/supervisor"
	"github.com/BaSui01/tokenflow/types"
)

// =============================================================================
// 🌊 管道配置
// =============================================================================

// Config 管道配置
type Config struct {
	// ChunkDelay 每个内容 Token 交付前的节奏延迟
	ChunkDelay time.Duration `json:"chunk_delay"`
	// PullTimeout 单次等待下一个原始值的上限（0 表示不限制）
	PullTimeout time.Duration `json:"pull_timeout"`
	// SessionTimeout 整体会话上限（0 表示不限制）
	SessionTimeout time.Duration `json:"session_timeout"`
	// GracePeriod 取消后等待后台任务确认的时间
	GracePeriod time.Duration `json:"grace_period"`
	// MaxTasks 每个会话的后台任务上限
	MaxTasks int `json:"max_tasks"`
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		ChunkDelay:     10 * time.Millisecond,
		PullTimeout:    30 * time.Second,
		SessionTimeout: 2 * time.Minute,
		GracePeriod:    2 * time.Second,
		MaxTasks:       2,
	}
}

// Pipeline 把一个 Source 归一化为 Token 流。Pipeline 本身无状态，
// 每次 Open 产生一个独立的 Session。
type Pipeline struct {
	src         source.Source
	label       string
	cfg         Config
	logger      *zap.Logger
	collector   *metrics.Collector
	instruments *telemetry.Instruments
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithCollector records Prometheus metrics for every session.
func WithCollector(c *metrics.Collector) Option {
	return func(p *Pipeline) { p.collector = c }
}

// WithInstruments records OTel spans and metrics for every session.
func WithInstruments(in *telemetry.Instruments) Option {
	return func(p *Pipeline) { p.instruments = in }
}

// WithLabel overrides the source label used in logs and metrics.
func WithLabel(label string) Option {
	return func(p *Pipeline) { p.label = label }
}

// New creates a pipeline over src.
func New(src source.Source, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:    src,
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.label == "" && src != nil {
		p.label = src.Name()
	}
	p.logger = p.logger.With(zap.String("component", "pipeline"), zap.String("source", p.label))
	return p
}

// Label returns the source label.
func (p *Pipeline) Label() string { return p.label }

// Open starts one stream session. It never fails: errors while opening the
// source surface as the session's single Error token. The caller must Close
// the session.
func (p *Pipeline) Open(ctx context.Context, req source.Request) *Session {
	id, ok := types.SessionID(ctx)
	if !ok {
		id = uuid.NewString()
		ctx = types.WithSessionID(ctx, id)
	}

	s := &Session{
		id:      id,
		p:       p,
		req:     req,
		started: time.Now(),
		logger:  p.logger.With(zap.String("session_id", id)),
	}

	s.spanCtx, s.span = p.instruments.StartSession(ctx, id, p.label, req.Topic)
	s.sup = supervisor.New(s.spanCtx, supervisor.Config{
		GracePeriod: p.cfg.GracePeriod,
		Timeout:     p.cfg.SessionTimeout,
		MaxTasks:    p.cfg.MaxTasks,
		OnAbandon:   p.collector.RecordAbandonedTasks,
	}, s.logger)

	p.collector.RecordSessionStart(p.label)
	s.logger.Debug("stream session opened", zap.String("topic", req.Topic))

	s.ch, s.openErr = s.openSource()
	return s
}

func (s *Session) openSource() (ch <-chan source.Chunk, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	if s.p.src == nil {
		return nil, types.NewError(types.ErrInternalError, "no source configured")
	}
	return s.p.src.Stream(s.sup.Context(), s.req, s.sup)
}

// Run opens a session, hands every token to emit, and closes the session.
// It stops early when emit fails, which cancels the producer.
func (p *Pipeline) Run(ctx context.Context, req source.Request, emit func(types.Token) error) error {
	s := p.Open(ctx, req)
	defer s.Close()

	for {
		tok, ok := s.Next()
		if !ok {
			return nil
		}
		if err := emit(tok); err != nil {
			return err
		}
	}
}
