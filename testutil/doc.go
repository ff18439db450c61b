// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package testutil 收拢流式管道各层测试共用的辅助函数。

  - TestContext 返回 30 秒后自动取消的上下文
  - AssertEventuallyTrue / WaitFor / WaitForChannel 处理异步断言
  - CollectChunks / SendChunksToChannel 面向生产者通道，
    DrainSession / ContentOf 面向管道会话输出

子包 mocks 提供可编排的 MockSource（片段、错误、panic、挂起）
与 MockPushClient（回调式客户端），二者都统计仍在运行的生产任务，
测试可以据此确认取消后没有泄漏。子包 fixtures 提供常用片段序列。

	src := mocks.NewMockSource().WithChunks(fixtures.JokeChunks()...)
	tokens := testutil.DrainSession(t, pipe.Open(ctx, req), 5*time.Second)
*/
package testutil
