// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package source 提供 Token 生产者。

所有生产者实现同一个 Source 接口，产出 Chunk 序列：

  - DirectSource：通过 openai-go 直接消费上游流式补全
  - CallbackSource：包装回调式 PushClient，经 Bridge 转为拉取序列
  - GraphSource：把任意 Source 放进 Start -> node -> End 的单节点图

Bridge 用一个有界 conduit 连接生产任务和消费方，并由 sentinel 任务
保证恰好一次的结束信号；调用失败以错误标记投递，不会丢失。
*/
package source
