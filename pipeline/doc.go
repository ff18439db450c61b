// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package pipeline 把任意 Token 生产者归一化为统一的 Token 流。

# 归一化规则

每个原始值按以下顺序处理：

 1. 错误标记：产出 Error 并结束（同一个值里错误优先于文本）
 2. 非空白文本：标记已收到内容，等待 ChunkDelay 后产出 Content
 3. 纯空白文本：跳过
 4. 序列耗尽：从未收到内容则产出 Error("no content received")，否则 EndOfStream
 5. 处理过程中 panic：产出 Error

每个会话恰好产出一个终止 Token，之后 Next 返回 ok=false。

# 生命周期

Open 为会话创建一个 supervisor，生产者的所有后台任务都归它所有。
单次拉取超过 PullTimeout 产出 TimeoutError；整体超过 SessionTimeout
同样以超时结束。Close 取消会话，并在 GracePeriod 内等待任务退出，
超时未退出的任务被记录后放弃。
*/
package pipeline
