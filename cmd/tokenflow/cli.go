package main

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/BaSui01/tokenflow/pipeline"
	"github.com/BaSui01/tokenflow/source"
	"github.com/BaSui01/tokenflow/types"
)

// =============================================================================
// 🖨️ 终端输出
// =============================================================================

const (
	headerDirect = "Streaming directly:"
	headerGraph  = "Streaming via graph:"
)

// cliSink 把 Token 写到终端：内容原样写入 stdout，不加分隔符；
// EndOfStream 在 stdout 写结束标记行，Error 在 stderr 写一行错误。
// 颜色只在目标是终端时启用。
type cliSink struct {
	out    io.Writer
	errOut io.Writer

	headerColor *color.Color
	endColor    *color.Color
	errorColor  *color.Color

	wrote bool
}

func newCLISink(out, errOut io.Writer) *cliSink {
	s := &cliSink{
		out:         out,
		errOut:      errOut,
		headerColor: color.New(color.FgCyan, color.Bold),
		endColor:    color.New(color.Faint),
		errorColor:  color.New(color.FgRed, color.Bold),
	}
	paint(s.headerColor, out)
	paint(s.endColor, out)
	paint(s.errorColor, errOut)
	return s
}

func (s *cliSink) header(graph bool) error {
	h := headerDirect
	if graph {
		h = headerGraph
	}
	_, err := s.headerColor.Fprintln(s.out, h)
	return err
}

func (s *cliSink) emit(tok types.Token) error {
	switch tok.Kind() {
	case types.KindContent:
		s.wrote = true
		_, err := io.WriteString(s.out, tok.Text())
		return err
	case types.KindEndOfStream:
		s.breakLine()
		_, err := s.endColor.Fprintln(s.out, types.TerminalLine(tok))
		return err
	case types.KindError:
		s.breakLine()
		_, err := s.errorColor.Fprintln(s.errOut, types.TerminalLine(tok))
		return err
	}
	return nil
}

// fail 在流打开之前报告错误
func (s *cliSink) fail(err error) {
	_, _ = s.errorColor.Fprintln(s.errOut, "Error: "+types.Describe(err))
}

// breakLine 结束已写出的内容行
func (s *cliSink) breakLine() {
	if s.wrote {
		fmt.Fprintln(s.out)
		s.wrote = false
	}
}

// runCLI 把一次生成写到终端并返回退出码。
// 流内的错误是用户可见输出，退出码仍为 0；只有参数非法才返回非零。
func runCLI(ctx context.Context, pipe *pipeline.Pipeline, prompts source.PromptBuilder,
	topic string, graph bool, stdout, stderr io.Writer) int {
	sink := newCLISink(stdout, stderr)

	req, err := prompts.Build(topic)
	if err != nil {
		sink.fail(err)
		return exitFailure
	}

	if err := sink.header(graph); err != nil {
		return exitFailure
	}
	if err := pipe.Run(ctx, req, sink.emit); err != nil {
		// stdout 已不可写，会话已被取消
		fmt.Fprintf(stderr, "write failed: %v\n", err)
		return exitFailure
	}
	return exitOK
}

func paint(c *color.Color, w io.Writer) {
	if isTerminal(w) {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
