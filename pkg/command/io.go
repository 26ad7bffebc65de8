package command

import (
	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

// StreamWriter 实现 io.Writer 接口，将输出重定向到 StreamChunk 通道。
// Cobra 命令可以像操作 stdout 一样直接打印，结果会被流式传输给用户。
type StreamWriter struct {
	Ch chan<- botcore.StreamChunk
}

// NewStreamWriter 创建一个新的 StreamWriter。
func NewStreamWriter(ch chan<- botcore.StreamChunk) *StreamWriter {
	return &StreamWriter{Ch: ch}
}

// Write 将字节切片转换为非 Final 的 StreamChunk 发送。
func (w *StreamWriter) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	w.Ch <- botcore.StreamChunk{
		Content: string(p),
		IsFinal: false,
	}
	return len(p), nil
}
