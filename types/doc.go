// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 tokenflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 source、pipeline、
api 等上层模块提供统一的类型契约。

# 核心类型

  - Token             - 归一化输出单元：Content / Error / EndOfStream
  - Error / ErrorCode - 结构化错误体系，含 HTTP 状态码、Retryable、Provider 标记

# 错误分类

  - UPSTREAM_ERROR    - 上游连接、鉴权、模型或响应格式失败
  - TIMEOUT           - 单次拉取或整体会话超时
  - EMPTY_STREAM      - 流结束但没有内容（"no content received"）
  - INVALID_REQUEST   - 调用参数非法，流尚未打开
  - CANCELED          - 消费方断开

# 主要能力

  - Describe：把错误渲染为 Error Token 的用户可见文本
  - Context 传播：WithSessionID / WithRunID / WithLLMModel
  - 错误工具链：AsError / IsErrorCode / IsRetryable / GetErrorCode
*/
package types
