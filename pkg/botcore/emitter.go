package botcore

// Emitter 将流水线产生的片段转换为前端可用的输出（终端文本、JSON 事件等）。
type Emitter interface {
	Encode(update Update, streamID string, chunk StreamChunk) (interface{}, error)
}

// EmitterFunc 允许直接用函数实现。
type EmitterFunc func(update Update, streamID string, chunk StreamChunk) (interface{}, error)

// Encode 实现 Emitter 接口。
func (f EmitterFunc) Encode(update Update, streamID string, chunk StreamChunk) (interface{}, error) {
	if f == nil {
		return nil, nil
	}
	return f(update, streamID, chunk)
}
