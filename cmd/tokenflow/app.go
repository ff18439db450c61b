package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/tokenflow/config"
	"github.com/BaSui01/tokenflow/internal/metrics"
	"github.com/BaSui01/tokenflow/internal/telemetry"
	"github.com/BaSui01/tokenflow/internal/tlsutil"
	"github.com/BaSui01/tokenflow/pipeline"
	"github.com/BaSui01/tokenflow/source"
)

// =============================================================================
// 🔌 管道装配
// =============================================================================

// buildSources 构造 direct 与 bridged 两种生产者。
// 两者共享同一个上游 HTTP 客户端，连接池是进程内唯一共享的资源。
func buildSources(cfg config.UpstreamConfig, stream config.StreamConfig, logger *zap.Logger) (direct, bridged source.Source) {
	httpClient := tlsutil.UpstreamClient(cfg.Timeout)

	direct = source.NewDirectSource(source.DirectConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	}, httpClient, logger)

	push := source.NewSSEClient(source.SSEClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
	}, httpClient, logger)
	bridged = source.NewCallbackSource(push, stream.BufferSize)

	return direct, bridged
}

// newPipeline 按进程级选择解析一次生产者并构造管道
func newPipeline(cfg *config.Config, sel source.Selection, logger *zap.Logger,
	collector *metrics.Collector, instruments *telemetry.Instruments) (*pipeline.Pipeline, error) {
	direct, bridged := buildSources(cfg.Upstream, cfg.Stream, logger)
	src, err := sel.Resolve(direct, bridged, logger)
	if err != nil {
		return nil, fmt.Errorf("resolve %s source: %w", sel.Label(), err)
	}
	return pipeline.New(src, pipelineConfig(cfg.Stream),
		pipeline.WithLogger(logger),
		pipeline.WithCollector(collector),
		pipeline.WithInstruments(instruments),
		pipeline.WithLabel(sel.Label()),
	), nil
}

func pipelineConfig(cfg config.StreamConfig) pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.ChunkDelay = cfg.ChunkDelay
	pc.PullTimeout = cfg.PullTimeout
	pc.SessionTimeout = cfg.SessionTimeout
	pc.GracePeriod = cfg.GracePeriod
	return pc
}

func promptBuilder(up config.UpstreamConfig, stream config.StreamConfig) source.PromptBuilder {
	return source.PromptBuilder{
		Template:       up.PromptTemplate,
		MaxTopicLength: stream.MaxTopicLength,
	}
}
