package tlsutil

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"
)

// aeadSuites are the TLS 1.2 suites we allow. TLS 1.3 suites are fixed by Go.
var aeadSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// DefaultTLSConfig returns a hardened TLS configuration.
// MinVersion TLS 1.2, AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	suites := make([]uint16, len(aeadSuites))
	copy(suites, aeadSuites)
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		CipherSuites: suites,
	}
}

// TransportOptions 描述一个加固 Transport 的连接参数
type TransportOptions struct {
	// HeaderTimeout 等待响应头的上限，0 表示不限制
	HeaderTimeout time.Duration
	// MaxConnsPerHost 每个上游主机的连接上限，0 表示不限制
	MaxConnsPerHost int
	// Streaming 关闭透明 gzip：压缩层会攒够一个块才交付，逐 token 的响应会被延迟
	Streaming bool
}

// NewTransport builds an http.Transport with the hardened TLS config.
func NewTransport(o TransportOptions) *http.Transport {
	tr := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: DefaultTLSConfig(),
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: o.HeaderTimeout,
		MaxConnsPerHost:       o.MaxConnsPerHost,
		DisableCompression:    o.Streaming,
	}
	if o.Streaming {
		// 所有会话打到同一个上游主机
		tr.MaxIdleConnsPerHost = 32
	}
	return tr
}

// SecureHTTPClient returns a hardened client with a whole-request timeout,
// for short request/response calls such as the health probe.
func SecureHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(TransportOptions{}),
	}
}

// UpstreamClient returns the process-wide client for streaming generation
// calls. There is no whole-request timeout; the session context bounds the
// body. headerTimeout only limits the wait for response headers.
func UpstreamClient(headerTimeout time.Duration) *http.Client {
	if headerTimeout < 0 {
		headerTimeout = 0
	}
	return &http.Client{
		Transport: NewTransport(TransportOptions{
			HeaderTimeout: headerTimeout,
			Streaming:     true,
		}),
	}
}
