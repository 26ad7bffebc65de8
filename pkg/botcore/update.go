package botcore

// Update 描述一条来自任意前端（HTTP、REPL）的标准化用户输入。
type Update struct {
	ID        string            // 请求内唯一 ID
	SessionID string            // 会话 ID，决定使用哪份聊天记录
	Text      string            // 用户输入文本
	Raw       interface{}       // 前端原始结构引用
	Metadata  map[string]string // 扩展键值，如来源前端
}

// CloneMetadata 返回一份 Metadata 拷贝，防止 Handler 意外修改底层数据。
func (u Update) CloneMetadata() map[string]string {
	if len(u.Metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(u.Metadata))
	for k, v := range u.Metadata {
		out[k] = v
	}
	return out
}
