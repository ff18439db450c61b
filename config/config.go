package config

import "time"

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 tokenflow 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Upstream  UpstreamConfig  `yaml:"upstream" env:"UPSTREAM"`
	Stream    StreamConfig    `yaml:"stream" env:"STREAM"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	HTTPPort    int `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"` // 0 表示不启动

	ReadTimeout  time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"` // 流式响应需要 0
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`

	// DrainTimeout 关闭时等待进行中的流自然结束的时间，0 表示立即取消
	DrainTimeout    time.Duration `yaml:"drain_timeout" env:"DRAIN_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// 两者都配置时以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`

	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`

	// API Key 列表，为空表示不鉴权
	APIKeys          []string `yaml:"api_keys" env:"API_KEYS"`
	AllowQueryAPIKey bool     `yaml:"allow_query_api_key" env:"ALLOW_QUERY_API_KEY"`

	// 每个 IP 每秒请求数，0 表示不限流
	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// 同时进行的流式会话上限，0 使用 DefaultMaxConcurrentStreams
	MaxConcurrentStreams int `yaml:"max_concurrent_streams" env:"MAX_CONCURRENT_STREAMS"`

	JWT JWTConfig `yaml:"jwt" env:"JWT"`
}

// StreamLimit 返回生效的并发流上限
func (s ServerConfig) StreamLimit() int {
	if s.MaxConcurrentStreams > 0 {
		return s.MaxConcurrentStreams
	}
	return DefaultMaxConcurrentStreams
}

// JWTConfig JWT 鉴权配置
type JWTConfig struct {
	Secret   string `yaml:"secret" env:"SECRET"` // HMAC 密钥，为空表示不启用
	Issuer   string `yaml:"issuer" env:"ISSUER"`
	Audience string `yaml:"audience" env:"AUDIENCE"`
}

// Enabled reports whether JWT auth is configured.
func (j JWTConfig) Enabled() bool { return j.Secret != "" }

// UpstreamConfig 上游模型服务配置（OpenAI 兼容）
type UpstreamConfig struct {
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	APIKey  string `yaml:"api_key" env:"API_KEY"`
	Model   string `yaml:"model" env:"MODEL"`
	// 建连与响应头超时，不限制流式读取
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// %s 处替换为话题
	PromptTemplate string `yaml:"prompt_template" env:"PROMPT_TEMPLATE"`
}

// StreamConfig 流式管道配置
type StreamConfig struct {
	ChunkDelay     time.Duration `yaml:"chunk_delay" env:"CHUNK_DELAY"`
	PullTimeout    time.Duration `yaml:"pull_timeout" env:"PULL_TIMEOUT"`
	SessionTimeout time.Duration `yaml:"session_timeout" env:"SESSION_TIMEOUT"`
	GracePeriod    time.Duration `yaml:"grace_period" env:"GRACE_PERIOD"`
	BufferSize     int           `yaml:"buffer_size" env:"BUFFER_SIZE"`
	MaxTopicLength int           `yaml:"max_topic_length" env:"MAX_TOPIC_LENGTH"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level            string   `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format           string   `yaml:"format" env:"FORMAT"` // json, console
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}
