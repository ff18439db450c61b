package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/tokenflow/pipeline"
	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/testutil/fixtures"
	"github.com/BaSui01/tokenflow/testutil/mocks"
)

func cliPipeline(t *testing.T, src source.Source, graph bool) *pipeline.Pipeline {
	t.Helper()
	if graph {
		g, err := source.NewGraphSource(src, nil)
		require.NoError(t, err)
		src = g
	}
	return pipeline.New(src, pipeline.Config{
		PullTimeout:    2 * time.Second,
		SessionTimeout: 10 * time.Second,
		GracePeriod:    time.Second,
		MaxTasks:       2,
	})
}

func runCLITest(t *testing.T, src source.Source, topic string, graph bool) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code = runCLI(context.Background(), cliPipeline(t, src, graph), source.PromptBuilder{MaxTopicLength: 32},
		topic, graph, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestRunCLI_CompletedStream(t *testing.T) {
	src := mocks.NewMockSource().WithChunks(fixtures.JokeChunks()...)

	code, stdout, stderr := runCLITest(t, src, "dogs", false)

	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Streaming directly:\nWhy do dogs bark?\nEnd of stream\n", stdout)
	assert.Empty(t, stderr)
}

func TestRunCLI_GraphHeader(t *testing.T) {
	src := mocks.NewMockSource().WithChunks(fixtures.JokeChunks()...)

	code, stdout, _ := runCLITest(t, src, "dogs", true)

	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Streaming via graph:\nWhy do dogs bark?\nEnd of stream\n", stdout)
}

func TestRunCLI_ErrorAfterContent(t *testing.T) {
	src := mocks.NewMockSource().
		WithChunks(fixtures.KnockChunks()...).
		WithError(fixtures.ResetError())

	code, stdout, stderr := runCLITest(t, src, "doors", false)

	// 流内错误属于正常输出
	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Streaming directly:\nKnock knock\n", stdout)
	assert.Equal(t, "Error: Connection error: reset\n", stderr)
}

func TestRunCLI_EmptyStream(t *testing.T) {
	src := mocks.NewMockSource().WithChunks(fixtures.WhitespaceChunks()...)

	code, stdout, stderr := runCLITest(t, src, "dogs", false)

	assert.Equal(t, exitOK, code)
	assert.Equal(t, "Streaming directly:\n", stdout)
	assert.Equal(t, "Error: no content received\n", stderr)
}

func TestRunCLI_InvalidTopic(t *testing.T) {
	src := mocks.NewMockSource().WithChunks("never")

	code, stdout, stderr := runCLITest(t, src, "bad\x07topic", false)

	assert.Equal(t, exitFailure, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Error: ")
	assert.Contains(t, stderr, "control characters")
	assert.Zero(t, src.CallCount())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestRunCLI_BrokenStdout(t *testing.T) {
	src := mocks.NewMockSource().WithChunks(fixtures.JokeChunks()...)
	var errOut bytes.Buffer

	code := runCLI(context.Background(), cliPipeline(t, src, false), source.PromptBuilder{},
		"dogs", false, failingWriter{}, &errOut)

	assert.Equal(t, exitFailure, code)
}
