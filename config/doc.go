// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

// Package config 提供 tokenflow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序叠加，环境变量以
// TOKENFLOW_ 为前缀并按结构体层级拼接，例如 TOKENFLOW_STREAM_PULL_TIMEOUT。
// 未配置上游密钥时回退到 OPENAI_API_KEY。
package config
