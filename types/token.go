package types

import "fmt"

// TokenKind 标识 Token 的三种变体
type TokenKind uint8

const (
	// KindContent 一段内容文本
	KindContent TokenKind = iota + 1
	// KindError 终止：错误
	KindError
	// KindEndOfStream 终止：正常结束
	KindEndOfStream
)

// String implements fmt.Stringer.
func (k TokenKind) String() string {
	switch k {
	case KindContent:
		return "content"
	case KindError:
		return "error"
	case KindEndOfStream:
		return "end_of_stream"
	default:
		return "unknown"
	}
}

// Token 是归一化后的最小输出单元，创建后不可变。
// 每个流以恰好一个终止 Token（Error 或 EndOfStream）结束。
type Token struct {
	kind TokenKind
	text string
	code ErrorCode
}

// Content 创建内容 Token
func Content(text string) Token {
	return Token{kind: KindContent, text: text}
}

// ErrorToken 创建错误 Token，message 为用户可见的错误描述
func ErrorToken(message string) Token {
	return Token{kind: KindError, text: message}
}

// ErrorTokenFrom 从错误创建 Token，保留错误码
func ErrorTokenFrom(err error) Token {
	return Token{kind: KindError, text: Describe(err), code: GetErrorCode(err)}
}

// EndOfStream 创建结束 Token
func EndOfStream() Token {
	return Token{kind: KindEndOfStream}
}

// Kind returns the variant.
func (t Token) Kind() TokenKind { return t.kind }

// Text returns the content text or the error message.
func (t Token) Text() string { return t.text }

// Code returns the error code of an Error token, if known.
func (t Token) Code() ErrorCode { return t.code }

// IsTerminal reports whether t ends the stream.
func (t Token) IsTerminal() bool {
	return t.kind == KindError || t.kind == KindEndOfStream
}

// IsZero reports whether t is the zero value.
func (t Token) IsZero() bool { return t.kind == 0 }

// String implements fmt.Stringer.
func (t Token) String() string {
	switch t.kind {
	case KindContent:
		return fmt.Sprintf("Content(%q)", t.text)
	case KindError:
		return fmt.Sprintf("Error(%q)", t.text)
	case KindEndOfStream:
		return "EndOfStream"
	default:
		return "Token(?)"
	}
}

// EndOfStreamMarker 是正常结束时写给消费方的标记行
const EndOfStreamMarker = "End of stream"

// TerminalLine renders a terminal token as the single line a sink writes
// last: "End of stream" or "Error: <message>". Content tokens render empty.
func TerminalLine(t Token) string {
	switch t.kind {
	case KindEndOfStream:
		return EndOfStreamMarker
	case KindError:
		return "Error: " + t.text
	default:
		return ""
	}
}
