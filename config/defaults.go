package config

import "time"

const (
	// DefaultModel is the upstream chat model used when none is configured.
	DefaultModel = "gpt-4o-mini-2024-07-18"

	// DefaultPromptTemplate 默认提示词，%s 为话题
	DefaultPromptTemplate = "Tell me a joke about %s"

	// DefaultMaxConcurrentStreams 未配置时的并发流上限
	DefaultMaxConcurrentStreams = 256
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8000,
			MetricsPort:     9091,
			ReadTimeout:     30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimitBurst:  20,

			MaxConcurrentStreams: DefaultMaxConcurrentStreams,
		},
		Upstream: UpstreamConfig{
			BaseURL:        "https://api.openai.com/v1",
			Model:          DefaultModel,
			Timeout:        30 * time.Second,
			PromptTemplate: DefaultPromptTemplate,
		},
		Stream: StreamConfig{
			ChunkDelay:     10 * time.Millisecond,
			PullTimeout:    30 * time.Second,
			SessionTimeout: 2 * time.Minute,
			GracePeriod:    2 * time.Second,
			BufferSize:     64,
			MaxTopicLength: 200,
		},
		Log: LogConfig{
			Level:        "info",
			Format:       "json",
			OutputPaths:  []string{"stdout"},
			EnableCaller: true,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "localhost:4317",
			ServiceName:  "tokenflow",
			SampleRate:   0.1,
		},
	}
}
