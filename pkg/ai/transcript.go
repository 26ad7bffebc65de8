package ai

import (
	"context"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/memory"
)

// Transcript 是单个会话的有序消息列表，底层使用 langchaingo 的 ChatMessageHistory。
// 读者拿到的是快照，写入以整组消息为单位。
type Transcript struct {
	mu      sync.RWMutex
	history *memory.ChatMessageHistory
}

// NewTranscript creates an empty transcript.
func NewTranscript() *Transcript {
	return &Transcript{history: memory.NewChatMessageHistory()}
}

// Messages 返回当前消息的副本。
func (t *Transcript) Messages(ctx context.Context) ([]llms.ChatMessage, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	msgs, err := t.history.Messages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]llms.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Append 在同一把锁内追加 msgs，其他读者要么看到全部要么一条都看不到。
func (t *Transcript) Append(ctx context.Context, msgs ...llms.ChatMessage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range msgs {
		if err := t.history.AddMessage(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// AppendTurn appends a user message followed by the assistant reply.
func (t *Transcript) AppendTurn(ctx context.Context, user, assistant string) error {
	return t.Append(ctx, llms.HumanChatMessage{Content: user}, llms.AIChatMessage{Content: assistant})
}

// Len returns the number of messages.
func (t *Transcript) Len(ctx context.Context) int {
	msgs, err := t.Messages(ctx)
	if err != nil {
		return 0
	}
	return len(msgs)
}

// Clear removes all messages.
func (t *Transcript) Clear(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Clear(ctx)
}
