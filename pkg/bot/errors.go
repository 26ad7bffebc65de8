package bot

import (
	"errors"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
	"github.com/IMBotPlatform/IMBotRAG/pkg/command"
	"github.com/IMBotPlatform/IMBotRAG/pkg/eval"
	"github.com/IMBotPlatform/IMBotRAG/pkg/quiz"
	"github.com/IMBotPlatform/IMBotRAG/pkg/rag"
)

var (
	// ErrNoDocument 表示需要先上传文档。
	ErrNoDocument = quiz.ErrNoDocument
	// ErrEmptyInput 表示输入为空。
	ErrEmptyInput = errors.New("empty input")
	// ErrUnknownMode 表示模式名非法。
	ErrUnknownMode = errors.New("unknown mode")
)

// UserMessage 把错误映射为面向用户的可恢复提示。
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoDocument):
		return "Please upload a PDF file first."
	case errors.Is(err, ErrEmptyInput):
		return "Please enter a message."
	case errors.Is(err, ErrUnknownMode):
		return "Unknown mode. Use one of: chat, rag, quiz."
	case errors.Is(err, eval.ErrNoSamples):
		return "No data to evaluate yet."
	case errors.Is(err, eval.ErrNoScorer):
		return "Evaluation is not configured."
	case errors.Is(err, eval.ErrEvaluation):
		return "The evaluation could not be completed. Please try again."
	case errors.Is(err, rag.ErrStorage):
		return "The file could not be saved. Please upload it again."
	case errors.Is(err, rag.ErrIngest):
		return "The file could not be read. Please upload a different PDF."
	case errors.Is(err, rag.ErrRetrieval):
		return "The document could not be searched. Please try again."
	case errors.Is(err, rag.ErrGeneration):
		return "The answer could not be generated. Please try again."
	case errors.Is(err, ai.ErrModelNotFound):
		return "The configured model is not available."
	case errors.Is(err, ai.ErrSessionID):
		return "Please provide a session id."
	case errors.Is(err, command.ErrCommandNotFound):
		return "Unknown command. Try /help."
	default:
		return "Something went wrong. Please try again."
	}
}
