package config

import (
	"errors"
	"strings"
)

// Validate 检查配置的取值范围，返回包含全部问题的聚合错误
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, msg string) {
		if !ok {
			errs = append(errs, errors.New(msg))
		}
	}

	s := c.Server
	check(s.HTTPPort > 0 && s.HTTPPort <= 65535, "invalid HTTP port")
	check(s.MetricsPort >= 0 && s.MetricsPort <= 65535, "invalid metrics port")
	check(s.RateLimitRPS >= 0 && s.RateLimitBurst >= 0, "rate limit must not be negative")
	check(s.MaxConcurrentStreams >= 0, "max_concurrent_streams must not be negative")
	check(s.DrainTimeout >= 0, "drain_timeout must not be negative")
	check((s.TLSCertFile == "") == (s.TLSKeyFile == ""), "tls_cert_file and tls_key_file must be set together")

	check(c.Upstream.Model != "", "upstream model is required")
	check(c.Upstream.PromptTemplate == "" || strings.Contains(c.Upstream.PromptTemplate, "%s"),
		"prompt_template must contain %s")

	st := c.Stream
	check(st.PullTimeout > 0, "pull_timeout must be positive")
	check(st.SessionTimeout >= 0 && st.GracePeriod >= 0 && st.ChunkDelay >= 0,
		"stream durations must not be negative")
	check(st.BufferSize >= 0, "buffer_size must not be negative")
	check(st.MaxTopicLength > 0, "max_topic_length must be positive")

	check(c.Telemetry.SampleRate >= 0 && c.Telemetry.SampleRate <= 1, "sample_rate must be between 0 and 1")

	return errors.Join(errs...)
}
