package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrClosed       = errors.New("supervisor is closed")
	ErrTooManyTasks = errors.New("supervisor task limit reached")
)

// Task represents a background production task owned by one stream session.
type Task func(ctx context.Context) error

// Config configures a Supervisor.
type Config struct {
	// GracePeriod 取消后等待任务确认的最长时间，超过即强制放弃并记录
	GracePeriod time.Duration `json:"grace_period"`
	// Timeout 整体会话超时（0 表示不限制）
	Timeout time.Duration `json:"timeout"`
	// MaxTasks 同时存在的后台任务上限
	MaxTasks int `json:"max_tasks"`
	// OnAbandon 任务被强制放弃时回调（用于指标）
	OnAbandon func(names []string) `json:"-"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		GracePeriod: 2 * time.Second,
		MaxTasks:    2,
	}
}

// Report describes how a Shutdown ended.
type Report struct {
	// Abandoned lists tasks still running when the grace period elapsed.
	Abandoned []string
	// Err is the first error returned by a task that did finish.
	Err error
}

// Supervisor owns the background tasks of one stream session. Cancel signals
// every task through the shared context; Shutdown additionally waits for them.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config
	logger *zap.Logger

	group errgroup.Group

	mu      sync.Mutex
	running map[string]time.Time
	closed  bool

	shutdownOnce sync.Once
	report       Report
	waitDone     chan struct{}
	waitErr      error

	started   atomic.Int64
	completed atomic.Int64
	panicked  atomic.Int64
}

// New creates a Supervisor whose context derives from parent.
func New(parent context.Context, cfg Config, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTasks <= 0 {
		cfg.MaxTasks = DefaultConfig().MaxTasks
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.Timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, cfg.Timeout)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}

	s := &Supervisor{
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		logger:   logger.With(zap.String("component", "supervisor")),
		running:  make(map[string]time.Time),
		waitDone: make(chan struct{}),
	}
	s.group.SetLimit(cfg.MaxTasks)
	return s
}

// Context returns the context observed by every owned task.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Go starts a named task. Names must be unique within the supervisor.
func (s *Supervisor) Go(name string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, dup := s.running[name]; dup {
		return fmt.Errorf("task %q already running", name)
	}

	s.running[name] = time.Now()
	if !s.group.TryGo(func() error { return s.run(name, task) }) {
		delete(s.running, name)
		return ErrTooManyTasks
	}
	s.started.Add(1)
	return nil
}

func (s *Supervisor) run(name string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.panicked.Add(1)
			s.logger.Error("task panicked",
				zap.String("task", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			err = fmt.Errorf("task %s panicked: %v", name, r)
		}
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
		s.completed.Add(1)
	}()
	return task(s.ctx)
}

// Cancel requests cancellation of every owned task. Cancelling finished tasks is a no-op.
func (s *Supervisor) Cancel() {
	s.cancel()
}

// Done is closed when the supervisor context ends (cancel or timeout).
func (s *Supervisor) Done() <-chan struct{} {
	return s.ctx.Done()
}

// TimedOut reports whether the overall timeout has elapsed.
func (s *Supervisor) TimedOut() bool {
	return errors.Is(s.ctx.Err(), context.DeadlineExceeded)
}

// Running returns the names of tasks that have not returned yet.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Shutdown cancels all tasks and waits for them up to the grace period.
// Tasks still running afterwards are abandoned and logged. Safe to call repeatedly.
func (s *Supervisor) Shutdown() Report {
	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.cancel()

		go func() {
			s.waitErr = s.group.Wait()
			close(s.waitDone)
		}()

		var expired <-chan time.Time
		if s.cfg.GracePeriod > 0 {
			timer := time.NewTimer(s.cfg.GracePeriod)
			defer timer.Stop()
			expired = timer.C
		} else {
			// 无宽限期：只给已完成的任务一次确认机会
			closedCh := make(chan time.Time)
			close(closedCh)
			expired = closedCh
		}

		select {
		case <-s.waitDone:
			s.report = Report{Err: s.waitErr}
			return
		case <-expired:
		}

		select {
		case <-s.waitDone:
			s.report = Report{Err: s.waitErr}
			return
		default:
		}

		abandoned := s.Running()
		s.report = Report{Abandoned: abandoned}
		if len(abandoned) > 0 {
			s.logger.Warn("abandoning tasks after grace period",
				zap.Strings("tasks", abandoned),
				zap.Duration("grace_period", s.cfg.GracePeriod),
			)
			if s.cfg.OnAbandon != nil {
				s.cfg.OnAbandon(abandoned)
			}
		}
	})
	return s.report
}

// Stats returns task counters.
func (s *Supervisor) Stats() Stats {
	return Stats{
		Started:   s.started.Load(),
		Completed: s.completed.Load(),
		Panicked:  s.panicked.Load(),
		Running:   len(s.Running()),
	}
}

// Stats contains supervisor statistics.
type Stats struct {
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Panicked  int64 `json:"panicked"`
	Running   int   `json:"running"`
}
