package bot

import (
	"fmt"
	"strings"
)

// Mode 是会话级的前端模式。
type Mode string

const (
	ModeChat Mode = "chat"
	ModeRAG  Mode = "rag"
	ModeQuiz Mode = "quiz"
)

// ParseMode 解析模式名，大小写不敏感。
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeChat, ModeRAG, ModeQuiz:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// 会话设置在 command.MemoryStore 中的键
const (
	settingMode     = "mode"
	settingShowEval = "show_eval"
)
