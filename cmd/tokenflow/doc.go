// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 tokenflow 的程序入口。

# 概述

cmd/tokenflow 把同一条流式管道挂到两种外壳上：终端直接输出（direct 模式）
与 HTTP 服务（api 模式）。生产者组合（direct / bridged，是否经过图编排）
在进程启动时由参数一次性决定。

# 核心类型

  - Server      - HTTP 与 Metrics 双端口服务，关闭时取消进行中的流
  - Middleware  - HTTP 中间件函数签名 func(http.Handler) http.Handler
  - cliSink     - 终端输出：内容写 stdout，错误行写 stderr

# 主要能力

  - 子命令：run、serve、version、health、help；无子命令时按 --mode 分派
  - 参数非法退出码为 2，提示词校验失败为 1，流内错误仍为 0
  - 中间件链：Recovery、RequestID、SecurityHeaders、RequestLogger、
    Metrics、OTel Tracing、CORS、RateLimiter、APIKeyAuth、JWTAuth
  - StreamLimiter 限制并发流数量，满额时返回 503
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
