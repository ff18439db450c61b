// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package supervisor 管理单个流会话的后台生产任务。

# 概述

每个 Stream Session 最多拥有两个后台任务（上游调用与哨兵守望）。
Supervisor 通过共享 context 传播取消信号，并在 Shutdown 时等待
任务确认；超过宽限期仍未返回的任务会被强制放弃并记录日志，
绝不会静默泄漏。

# 核心类型

  - Supervisor - 任务所有者：Go / Cancel / Shutdown / Running
  - Config     - 宽限期、整体超时、任务上限、放弃回调
  - Report     - Shutdown 结果：被放弃的任务名与首个任务错误

# 主要能力

  - 整体会话超时：Config.Timeout 派生带截止时间的 context
  - panic 恢复：任务 panic 被转换为错误并记录堆栈
  - 幂等关闭：重复调用 Shutdown 返回同一 Report
*/
package supervisor
