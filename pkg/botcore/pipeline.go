package botcore

import (
	"context"
	"strings"
)

// StreamChunk 描述流式输出片段。
// 非 Final 片段只用于展示；Final 片段携带本轮的结构化结果或错误。
type StreamChunk struct {
	Content string
	Payload interface{} // Final 片段上的结构化结果，如一轮测验或评估汇总
	Err     error       // Final 片段上的错误，Content 为面向用户的提示
	IsFinal bool
}

// PipelineInvoker 抽象命令/业务执行器。
// 返回的通道在最后一个片段之后关闭。
type PipelineInvoker interface {
	Trigger(ctx context.Context, update Update, streamID string) <-chan StreamChunk
}

// PipelineFunc 便于直接以函数充当 PipelineInvoker。
type PipelineFunc func(ctx context.Context, update Update, streamID string) <-chan StreamChunk

// Trigger 实现 PipelineInvoker 接口。
func (f PipelineFunc) Trigger(ctx context.Context, update Update, streamID string) <-chan StreamChunk {
	if f == nil {
		return nil
	}
	return f(ctx, update, streamID)
}

// Drain 读完整个流，返回拼接后的文本与 Final 片段。
// 通道为 nil 时立即返回空结果。
func Drain(ch <-chan StreamChunk) (string, StreamChunk) {
	var sb strings.Builder
	var final StreamChunk
	if ch == nil {
		return "", final
	}
	for chunk := range ch {
		sb.WriteString(chunk.Content)
		if chunk.IsFinal {
			final = chunk
		}
	}
	return sb.String(), final
}
