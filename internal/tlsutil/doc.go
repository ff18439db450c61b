// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package tlsutil 提供集中式 TLS 配置，
// 为上游 HTTP 客户端与 HTTP 服务端提供安全加固的 TLS 设置（TLS 1.2+，仅 AEAD 密码套件）。
//
// UpstreamClient 面向流式响应：只限制响应头等待时间，不设置整体超时。
package tlsutil
