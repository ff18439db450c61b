// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 metrics 用 Prometheus 记录 HTTP 入口与流式会话的运行状况。

Collector 的所有记录方法都接受 nil 接收者，未启用指标时调用方无需判空。
指标经 promauto 注册到默认 registry，同一命名空间只能创建一个 Collector。

HTTP 维度按 method、归一化后的 path 与状态码分组（状态码归为 2xx/3xx/4xx/5xx）。
会话维度包括活跃会话数、按 source 与 outcome 分组的结束计数、会话耗时、
首 Token 延迟和内容 Token 数。此外还记录鉴权、限流与并发上限造成的拒绝，
以及宽限期后被放弃的后台任务。
*/
package metrics
