package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/internal/channel"
	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/supervisor"
	"github.com/BaSui01/tokenflow/types"
)

// ErrTasksAbandoned is returned by Close when background tasks ignored
// cancellation past the grace period.
var ErrTasksAbandoned = errors.New("stream tasks abandoned")

// State 会话状态
type State int

const (
	StateStreaming State = iota
	StateCompleted
	StateErrored
	StateTimedOut
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Session 是一次流式会话。Next 只能由一个消费方调用；Close 可以并发调用。
type Session struct {
	id      string
	p       *Pipeline
	req     source.Request
	started time.Time
	logger  *zap.Logger

	sup     *supervisor.Supervisor
	spanCtx context.Context
	span    trace.Span
	ch      <-chan source.Chunk
	openErr error

	// 仅由消费方访问
	contentReceived bool

	mu       sync.Mutex
	state    State
	finished bool
	tokens   int

	closeOnce sync.Once
	closeErr  error
}

// ID returns the session correlation ID.
func (s *Session) ID() string { return s.id }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TokenCount returns the number of Content tokens emitted so far.
func (s *Session) TokenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// Next returns the next token. After the terminal token (Error or
// EndOfStream) it returns ok=false.
func (s *Session) Next() (tok types.Token, ok bool) {
	if s.isFinished() {
		return types.Token{}, false
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("pipeline panic", zap.Any("panic", r), zap.Stack("stack"))
			tok, ok = s.finish(types.ErrorTokenFrom(panicError(r)), StateErrored), true
		}
	}()

	if s.openErr != nil {
		return s.fail(s.openErr), true
	}

	for {
		chunk, open, err := channel.Pull(s.sup.Context(), s.ch, s.p.cfg.PullTimeout)
		switch {
		case errors.Is(err, channel.ErrPullTimeout):
			return s.finish(types.ErrorTokenFrom(types.NewTimeoutError(s.p.cfg.PullTimeout)), StateTimedOut), true
		case err != nil:
			return s.interrupted(), true
		case !open:
			return s.exhausted(), true
		case chunk.Err != nil:
			return s.fail(chunk.Err), true
		case strings.TrimSpace(chunk.Text) == "":
			continue
		}

		if !s.contentReceived {
			s.contentReceived = true
			s.p.collector.RecordFirstToken(s.p.label, time.Since(s.started))
		}
		if !s.pace() {
			return s.interrupted(), true
		}

		s.mu.Lock()
		s.tokens++
		s.mu.Unlock()
		s.p.collector.RecordToken(s.p.label)
		s.p.instruments.AddToken(s.spanCtx, s.p.label)
		return types.Content(chunk.Text), true
	}
}

// pace waits ChunkDelay. It reports false when the session ended meanwhile.
func (s *Session) pace() bool {
	if s.p.cfg.ChunkDelay <= 0 {
		return true
	}
	timer := time.NewTimer(s.p.cfg.ChunkDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.sup.Done():
		return false
	}
}

// exhausted handles the producer closing its channel.
func (s *Session) exhausted() types.Token {
	if s.sup.Context().Err() != nil {
		return s.interrupted()
	}
	if !s.contentReceived {
		return s.finish(types.ErrorTokenFrom(types.NewEmptyStreamError()), StateErrored)
	}
	return s.finish(types.EndOfStream(), StateCompleted)
}

// interrupted handles the session context ending: overall timeout or cancel.
func (s *Session) interrupted() types.Token {
	if s.sup.TimedOut() {
		return s.finish(types.ErrorTokenFrom(types.NewSessionTimeoutError(s.p.cfg.SessionTimeout)), StateTimedOut)
	}
	return s.finish(types.ErrorTokenFrom(types.NewCanceledError()), StateErrored)
}

func (s *Session) fail(err error) types.Token {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return s.interrupted()
	}
	return s.finish(types.ErrorTokenFrom(err), StateErrored)
}

func (s *Session) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// finish records the terminal token exactly once and signals the producers.
func (s *Session) finish(tok types.Token, state State) types.Token {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return tok
	}
	s.finished = true
	s.state = state
	tokens := s.tokens
	s.mu.Unlock()

	s.sup.Cancel()

	outcome := "completed"
	errMsg := ""
	if tok.Kind() == types.KindError {
		outcome = string(tok.Code())
		if outcome == "" {
			outcome = string(types.ErrUpstreamError)
		}
		errMsg = tok.Text()
	}
	elapsed := time.Since(s.started)
	s.p.collector.RecordSessionEnd(s.p.label, outcome, elapsed)
	s.p.instruments.EndSession(s.spanCtx, s.span, s.p.label, outcome, errMsg, tokens, elapsed)

	if errMsg != "" {
		s.logger.Info("stream session failed",
			zap.String("outcome", outcome),
			zap.String("error", errMsg),
			zap.Int("tokens", tokens),
			zap.Duration("elapsed", elapsed),
		)
	} else {
		s.logger.Debug("stream session completed",
			zap.Int("tokens", tokens),
			zap.Duration("elapsed", elapsed),
		)
	}
	return tok
}

// Close cancels the session and waits for its background tasks up to the
// grace period. It is idempotent and safe to call concurrently with Next.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if !s.isFinished() {
			s.finish(types.ErrorTokenFrom(types.NewCanceledError()), StateErrored)
		}
		report := s.sup.Shutdown()
		stats := s.sup.Stats()
		s.p.collector.RecordTaskPanics(s.p.label, stats.Panicked)
		s.logger.Debug("stream session closed",
			zap.Int64("tasks_started", stats.Started),
			zap.Int64("tasks_completed", stats.Completed),
			zap.Int64("tasks_panicked", stats.Panicked),
			zap.Int("tasks_abandoned", len(report.Abandoned)),
		)
		if len(report.Abandoned) > 0 {
			s.closeErr = fmt.Errorf("%w: %s", ErrTasksAbandoned, strings.Join(report.Abandoned, ", "))
		}
	})
	return s.closeErr
}

func panicError(r any) error {
	return types.NewError(types.ErrInternalError, fmt.Sprintf("panic: %v", r))
}
