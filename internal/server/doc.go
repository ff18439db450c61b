// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
包 server 管理 HTTP/HTTPS 服务的生命周期：非阻塞启动、排空与取消。

# 核心类型

  - Manager：持有 http.Server 与监听器，统计进行中的请求，
    提供 Start / Shutdown / Errors。
  - Config：监听地址、读写与空闲超时、DrainTimeout、ShutdownTimeout，
    以及可选的证书路径。WriteTimeout 默认为 0，长时间的流式响应不会被截断。

# 关闭顺序

Shutdown 先停止接收新连接，在 DrainTimeout 内等待进行中的请求自然结束；
随后取消所有请求共享的基础 context，流式会话以取消收尾并释放上游连接，
最后在 ShutdownTimeout 内排空连接。
*/
package server
