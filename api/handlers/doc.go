// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 tokenflow HTTP 接口的请求处理器实现。

# 概述

handlers 包把归一化后的 Token 流写到 HTTP 客户端，并提供健康检查
与统一的 JSON 错误响应。所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - StreamHandler    - GET /stream 分块文本输出与 GET /ws/stream WebSocket 输出
  - HealthHandler    - 服务健康检查（/health, /healthz, /ready, /version）
  - Response         - 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   - 包装 http.ResponseWriter 以捕获状态码，透传 Flush/Hijack

# 终止规则

分块响应在第一个 Token 之前即以 200 开始，之后错误只能出现在响应体中：
响应体总是以 "End of stream" 或 "Error: <message>" 之一结束。
topic 非法时流不会打开，直接返回 400 JSON。
*/
package handlers
