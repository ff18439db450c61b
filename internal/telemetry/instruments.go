package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the tracer and meter name of the stream pipeline.
const InstrumentationName = "github.com/BaSui01/tokenflow/pipeline"

// Instruments 流式会话的 span 与 OTel 指标
type Instruments struct {
	tracer   trace.Tracer
	tokens   metric.Int64Counter
	sessions metric.Int64Counter
	duration metric.Float64Histogram
}

// NewInstruments resolves instruments from the current global providers.
// Call it after Init so that an enabled SDK is picked up.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(InstrumentationName)

	tokens, err := meter.Int64Counter("tokenflow.stream.tokens",
		metric.WithDescription("Content tokens emitted by stream sessions"))
	if err != nil {
		return nil, fmt.Errorf("create token counter: %w", err)
	}
	sessions, err := meter.Int64Counter("tokenflow.stream.sessions",
		metric.WithDescription("Finished stream sessions"))
	if err != nil {
		return nil, fmt.Errorf("create session counter: %w", err)
	}
	duration, err := meter.Float64Histogram("tokenflow.stream.duration",
		metric.WithDescription("Stream session duration"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &Instruments{
		tracer:   otel.Tracer(InstrumentationName),
		tokens:   tokens,
		sessions: sessions,
		duration: duration,
	}, nil
}

// StartSession opens the span covering one stream session.
func (in *Instruments) StartSession(ctx context.Context, sessionID, source, topic string) (context.Context, trace.Span) {
	if in == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return in.tracer.Start(ctx, "stream.session",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("stream.session_id", sessionID),
			attribute.String("stream.source", source),
			attribute.String("stream.topic", topic),
		),
	)
}

// AddToken counts one content token.
func (in *Instruments) AddToken(ctx context.Context, source string) {
	if in == nil {
		return
	}
	in.tokens.Add(ctx, 1, metric.WithAttributes(attribute.String("stream.source", source)))
}

// EndSession records the outcome and ends span. An empty errMsg means the
// stream completed normally.
func (in *Instruments) EndSession(ctx context.Context, span trace.Span, source, outcome, errMsg string, tokens int, elapsed time.Duration) {
	if in == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("stream.source", source),
		attribute.String("stream.outcome", outcome),
	)
	in.sessions.Add(ctx, 1, attrs)
	in.duration.Record(ctx, elapsed.Seconds(), attrs)

	span.SetAttributes(
		attribute.String("stream.outcome", outcome),
		attribute.Int("stream.tokens", tokens),
	)
	if errMsg != "" {
		span.SetStatus(codes.Error, errMsg)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
