package command

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
)

const commandLogSnippet = 256

// Manager 实现 PipelineInvoker，负责串联解析、构建 Cobra 命令树并执行。
type Manager struct {
	factory CommandFactory
	parser  Parser
	store   ConversationStore
	logger  *zap.Logger
}

// ManagerOption 自定义 Manager 行为。
type ManagerOption func(*Manager)

// WithLogger 注入日志记录器。
func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithParser 替换默认解析器。
func WithParser(p Parser) ManagerOption {
	return func(m *Manager) { m.parser = p }
}

// NewManager 绑定命令工厂与存储，返回实现 PipelineInvoker 的管理器。
func NewManager(factory CommandFactory, store ConversationStore, opts ...ManagerOption) *Manager {
	mgr := &Manager{
		factory: factory,
		parser:  NewParser(),
		store:   store,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(mgr)
	}
	return mgr
}

// Trigger 满足 botcore.PipelineInvoker，为每个请求构建独立的命令树并执行。
func (m *Manager) Trigger(ctx context.Context, update botcore.Update, streamID string) <-chan botcore.StreamChunk {
	out := make(chan botcore.StreamChunk, 1)
	go func() {
		defer close(out)

		if m == nil || m.factory == nil {
			out <- botcore.StreamChunk{Content: "Error: command manager not initialized", Err: ErrNotInitialized, IsFinal: true}
			return
		}

		// 1. 初步解析
		parsed := m.parser.Parse(update.Text)
		if !parsed.IsCommand {
			out <- botcore.StreamChunk{
				Content: "Please enter a command (e.g. /help)",
				Err:     ErrCommandRequired,
				IsFinal: true,
			}
			return
		}

		// 2. 创建 Cobra 命令树
		rootCmd := m.factory()

		// 3. 配置 IO 重定向
		writer := NewStreamWriter(out)
		rootCmd.SetOut(writer)
		rootCmd.SetErr(writer)
		rootCmd.SilenceErrors = true
		rootCmd.SilenceUsage = true
		rootCmd.CompletionOptions.DisableDefaultCmd = true

		// 4. 准备上下文
		// sync.Once 确保 Final 信号只发送一次（显式信号或兜底结束包）
		var signalOnce sync.Once
		sendSignal := func(chunk botcore.StreamChunk) {
			signalOnce.Do(func() {
				out <- chunk
			})
		}

		execCtx := &ExecutionContext{
			Update:     update,
			StreamID:   streamID,
			Store:      m.store,
			sendSignal: sendSignal,
		}

		convKey := execCtx.ConversationKey()
		if m.store != nil {
			if values, err := m.store.Load(convKey); err != nil {
				m.logger.Warn("load conversation values failed", zap.String("key", convKey), zap.Error(err))
			} else {
				execCtx.Values = values
			}
		}

		cmdCtx := WithExecutionContext(ctx, execCtx)

		// 5. 设置参数并执行
		args := parsed.Tokens
		// 第一个 token 与 root command 同名时移除，避免 "unknown command X for X"
		if len(args) > 0 && strings.EqualFold(args[0], rootCmd.Name()) {
			args = args[1:]
		}
		rootCmd.SetArgs(args)
		m.logger.Debug("executing command",
			zap.Strings("args", args),
			zap.String("session", update.SessionID),
			zap.String("raw", truncateForLog(parsed.Raw, commandLogSnippet)),
		)

		if err := rootCmd.ExecuteContext(cmdCtx); err != nil {
			m.logger.Info("command execution error", zap.Strings("args", args), zap.Error(err))
			if strings.HasPrefix(err.Error(), "unknown command") {
				err = fmt.Errorf("%w: %s", ErrCommandNotFound, parsed.Tokens[0])
			}
			sendSignal(botcore.StreamChunk{Content: fmt.Sprintf("❌ %v\n", err), Err: err, IsFinal: true})
			return
		}

		// 命令没有发送显式信号时补一个结束包
		sendSignal(botcore.StreamChunk{IsFinal: true})
	}()
	return out
}

// truncateForLog 限制日志中输出的文本长度。
func truncateForLog(src string, limit int) string {
	if limit <= 0 || len(src) <= limit {
		return src
	}
	return fmt.Sprintf("%s...(truncated)", src[:limit])
}
