package api

import (
	"fmt"

	"github.com/IMBotPlatform/IMBotRAG/pkg/bot"
	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

// maxMessageBytes 是单条消息文本的上限。
const maxMessageBytes = 32 << 10

var errMessageTooLong = fmt.Errorf("message text exceeds %d bytes", maxMessageBytes)

// requestAdapter 把 JSON 请求体映射为 Update，SessionID 由调用方另行解析。
var requestAdapter = botcore.AdapterFunc(func(raw interface{}) (botcore.Update, error) {
	req, ok := raw.(messageRequest)
	if !ok {
		return botcore.Update{}, fmt.Errorf("unexpected request type %T", raw)
	}
	if len(req.Text) > maxMessageBytes {
		return botcore.Update{}, errMessageTooLong
	}
	return botcore.Update{
		Text:     req.Text,
		Raw:      req,
		Metadata: map[string]string{"source": "http"},
	}, nil
})

// streamEvent 是 NDJSON 流中的一行。
type streamEvent struct {
	Type    string      `json:"type"` // token, final, error
	Stream  string      `json:"stream"`
	Content string      `json:"content,omitempty"`
	Reply   *bot.Reply  `json:"reply,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

var eventEmitter = botcore.EmitterFunc(func(_ botcore.Update, streamID string, chunk botcore.StreamChunk) (interface{}, error) {
	switch {
	case !chunk.IsFinal:
		return streamEvent{Type: "token", Stream: streamID, Content: chunk.Content}, nil
	case chunk.Err != nil:
		return streamEvent{Type: "error", Stream: streamID, Content: chunk.Content}, nil
	default:
		ev := streamEvent{Type: "final", Stream: streamID, Content: chunk.Content}
		if reply, ok := chunk.Payload.(*bot.Reply); ok {
			ev.Reply = reply
		} else {
			ev.Payload = chunk.Payload
		}
		return ev, nil
	}
})
