package command

import (
	"context"

	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

// keyExecutionContext 是 context.Context 中存储 ExecutionContext 的键。
type keyExecutionContext struct{}

// ContextValues 存储会话级的设置，例如当前模式。
type ContextValues map[string]string

// ConversationStore 定义设置存取接口，便于替换实现。
type ConversationStore interface {
	Load(key string) (ContextValues, error)
	Save(key string, values ContextValues) error
}

// ExecutionContext 为命令 handler 提供必要的环境信息。
type ExecutionContext struct {
	Update   botcore.Update
	StreamID string
	Values   ContextValues
	Store    ConversationStore

	// sendSignal 允许命令立即向 Pipeline 发送 Final 片段
	sendSignal func(chunk botcore.StreamChunk)
}

// SetResponsePayload 立即发送结构化结果并结束本轮输出。
func (ctx *ExecutionContext) SetResponsePayload(content string, payload interface{}) {
	if ctx.sendSignal != nil {
		ctx.sendSignal(botcore.StreamChunk{
			Content: content,
			Payload: payload,
			IsFinal: true,
		})
	}
}

// SetError 以错误结束本轮输出，message 是给用户看的提示。
func (ctx *ExecutionContext) SetError(err error, message string) {
	if ctx.sendSignal != nil {
		ctx.sendSignal(botcore.StreamChunk{
			Content: message,
			Err:     err,
			IsFinal: true,
		})
	}
}

// ConversationKey 返回当前会话在存储中的 key。
func (ctx *ExecutionContext) ConversationKey() string {
	if ctx == nil {
		return ""
	}
	return ctx.Update.SessionID
}

// SaveValues 合并写入设置，并同步到 Values。
func (ctx *ExecutionContext) SaveValues(values ContextValues) error {
	if ctx.Store != nil {
		if err := ctx.Store.Save(ctx.ConversationKey(), values); err != nil {
			return err
		}
	}
	if ctx.Values == nil {
		ctx.Values = ContextValues{}
	}
	for k, v := range values {
		ctx.Values[k] = v
	}
	return nil
}

// WithExecutionContext 将 ExecutionContext 注入到标准 context.Context 中。
func WithExecutionContext(ctx context.Context, execCtx *ExecutionContext) context.Context {
	return context.WithValue(ctx, keyExecutionContext{}, execCtx)
}

// FromContext 从标准 context.Context 中提取 ExecutionContext。
func FromContext(ctx context.Context) *ExecutionContext {
	execCtx, _ := ctx.Value(keyExecutionContext{}).(*ExecutionContext)
	return execCtx
}
