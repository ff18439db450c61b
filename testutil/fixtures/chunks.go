// Package fixtures 提供测试用的片段序列样例。
package fixtures

import (
	"errors"

	"github.com/BaSui01/tokenflow/types"
)

// JokeChunks 正常结束的四段笑话
func JokeChunks() []string {
	return []string{"Why", " do", " dogs", " bark?"}
}

// JokeText 是 JokeChunks 拼接后的文本
const JokeText = "Why do dogs bark?"

// KnockChunks 在连接重置前收到的片段
func KnockChunks() []string {
	return []string{"Knock", " knock"}
}

// ResetError 模拟中途连接重置
func ResetError() error {
	return types.NewConnectionError(errors.New("reset"))
}

// WhitespaceChunks 只含空白的片段
func WhitespaceChunks() []string {
	return []string{" ", "\t"}
}
