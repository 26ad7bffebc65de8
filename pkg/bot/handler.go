package bot

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
	"github.com/IMBotPlatform/IMBotRAG/pkg/quiz"
	"github.com/IMBotPlatform/IMBotRAG/pkg/rag"
)

// Reply 是一轮普通输入的结构化结果，放在 Final 片段的 Payload 中。
type Reply struct {
	SessionID string     `json:"session_id"`
	Mode      Mode       `json:"mode"`
	Text      string     `json:"text"`
	Quiz      *quiz.Turn `json:"quiz,omitempty"`
}

// handleMessage 按会话模式处理非命令输入。
// 对话模式下模型片段以非 Final 片段流出；若没有流式片段，Final 片段携带全文。
func (a *App) handleMessage(ctx context.Context, update botcore.Update, streamID string) <-chan botcore.StreamChunk {
	out := make(chan botcore.StreamChunk, 16)
	go func() {
		defer close(out)

		send := func(chunk botcore.StreamChunk) {
			select {
			case out <- chunk:
			case <-ctx.Done():
			}
		}

		text := strings.TrimSpace(update.Text)
		if text == "" {
			send(botcore.StreamChunk{Content: UserMessage(ErrEmptyInput), Err: ErrEmptyInput, IsFinal: true})
			return
		}

		sessionID := update.SessionID
		mode := a.Mode(sessionID)
		reply := &Reply{SessionID: sessionID, Mode: mode}

		streamed := false
		sink := rag.TokenSinkFunc(func(fragment string) {
			if fragment == "" {
				return
			}
			streamed = true
			send(botcore.StreamChunk{Content: fragment})
		})

		var err error
		switch mode {
		case ModeQuiz:
			var turn *quiz.Turn
			turn, err = a.quiz.Handle(ctx, text, quiz.WithEvaluation(a.ShowEvaluation(sessionID)))
			if err == nil {
				reply.Quiz = turn
				reply.Text = turn.Reply()
			}
		case ModeRAG:
			doc := a.Document()
			if doc == nil {
				err = ErrNoDocument
				break
			}
			reply.Text, err = a.service.Chat(ctx, sessionID, text,
				ai.WithRetriever(doc),
				ai.WithSink(sink),
				ai.WithEvaluator(a.evaluator),
			)
		default:
			reply.Text, err = a.service.Chat(ctx, sessionID, text, ai.WithSink(sink))
		}

		if err != nil {
			log := a.logger.Warn
			if !IsRecoverable(err) {
				log = a.logger.Info
			}
			log("turn failed",
				zap.String("session", sessionID),
				zap.String("mode", string(mode)),
				zap.String("stream", streamID),
				zap.Error(err),
			)
			send(botcore.StreamChunk{Content: UserMessage(err), Err: err, IsFinal: true})
			return
		}

		content := reply.Text
		if streamed {
			content = ""
		}
		send(botcore.StreamChunk{Content: content, Payload: reply, IsFinal: true})
	}()
	return out
}
