package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
	"github.com/IMBotPlatform/IMBotRAG/pkg/command"
	"github.com/IMBotPlatform/IMBotRAG/pkg/eval"
	"github.com/IMBotPlatform/IMBotRAG/pkg/quiz"
	"github.com/IMBotPlatform/IMBotRAG/pkg/rag"
)

// Option configures an App.
type Option func(*App)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *App) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithSettings replaces the per-session settings store.
func WithSettings(s *command.MemoryStore) Option {
	return func(a *App) {
		if s != nil {
			a.settings = s
		}
	}
}

// App 把会话存储、文档摄入、测验和评估组装成一个 PipelineInvoker。
//
//	Update --"/..."--> command.Manager (cobra)
//	       \--text---> mode handler --chat--> ai.Service.Chat
//	                                 --rag---> ai.Service.Chat + retriever
//	                                 --quiz--> quiz.Controller.Handle
//
// 测验状态与已上传文档是进程级的，所有会话共享同一份。
type App struct {
	cfg       *ai.Config
	service   *ai.Service
	ingestor  *rag.Ingestor
	quiz      *quiz.Controller
	evaluator *eval.Evaluator
	settings  *command.MemoryStore
	pipeline  *botcore.Chain
	logger    *zap.Logger

	mu       sync.RWMutex
	document *rag.Handle
}

var _ botcore.PipelineInvoker = (*App)(nil)

// New assembles an App from already constructed components.
func New(cfg *ai.Config, service *ai.Service, ingestor *rag.Ingestor, quizCtl *quiz.Controller, opts ...Option) *App {
	a := &App{
		cfg:       cfg,
		service:   service,
		ingestor:  ingestor,
		quiz:      quizCtl,
		evaluator: quizCtl.Evaluator(),
		settings:  command.NewMemoryStore(),
		logger:    zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}

	manager := command.NewManager(a.commandFactory, a.settings, command.WithLogger(a.logger))
	a.pipeline = botcore.NewChain(botcore.PipelineFunc(a.handleMessage))
	a.pipeline.AddRoute("command", command.NewParser().Matcher(), manager)
	return a
}

// Build 根据配置创建全部组件。
func Build(ctx context.Context, cfg *ai.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service := ai.NewService(cfg, ai.NewMemoryStore(), ai.WithLogger(logger.Named("ai")))

	embedder, err := service.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	cache, err := rag.NewFileCache(cfg.RAG.CacheDir)
	if err != nil {
		return nil, err
	}
	ingestor := rag.NewIngestor(cache, rag.NewCachedEmbedder(embedder),
		rag.WithChunking(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap),
		rag.WithTopK(cfg.RAG.TopK),
		rag.WithIngestLogger(logger.Named("rag")),
	)

	chain, err := service.Chain(ctx, "")
	if err != nil {
		return nil, err
	}

	var scorer eval.Scorer
	if key := ai.ResolveAPIKey(cfg.Evaluation.APIKey); key != "" {
		scorer = eval.NewJudge(key,
			eval.WithBaseURL(cfg.Evaluation.BaseURL),
			eval.WithJudgeModel(cfg.Evaluation.ModelName),
			eval.WithJudgeLogger(logger.Named("judge")),
		)
	} else {
		logger.Warn("evaluation api key is empty, scoring disabled")
	}
	evaluator := eval.NewEvaluator(scorer, eval.WithLogger(logger.Named("eval")))

	quizCtl := quiz.NewController(chain, evaluator, quiz.WithLogger(logger.Named("quiz")))
	return New(cfg, service, ingestor, quizCtl, WithLogger(logger)), nil
}

// Trigger 实现 botcore.PipelineInvoker。空会话 ID 使用默认会话。
func (a *App) Trigger(ctx context.Context, update botcore.Update, streamID string) <-chan botcore.StreamChunk {
	if strings.TrimSpace(update.SessionID) == "" {
		update.SessionID = a.defaultSession()
	}
	if update.ID == "" {
		update.ID = uuid.NewString()
	}
	return a.pipeline.Trigger(ctx, update, streamID)
}

// Send 执行一轮并等待结果，适合非流式前端。
func (a *App) Send(ctx context.Context, sessionID, text string) (*Reply, error) {
	all, final := botcore.Drain(a.Trigger(ctx, botcore.Update{SessionID: sessionID, Text: text}, uuid.NewString()))
	if final.Err != nil {
		return nil, final.Err
	}
	reply, ok := final.Payload.(*Reply)
	if !ok {
		// 命令的输出分散在各个片段中
		reply = &Reply{SessionID: sessionID, Text: strings.TrimSpace(all)}
	}
	return reply, nil
}

func (a *App) defaultSession() string {
	if a.cfg != nil && a.cfg.Chat.DefaultSession != "" {
		return a.cfg.Chat.DefaultSession
	}
	return ai.DefaultSessionID
}

// Upload 摄入文档并让 RAG 对话与测验改用它。
func (a *App) Upload(ctx context.Context, name string, data []byte) (*rag.Handle, error) {
	h, err := a.ingestor.Ingest(ctx, name, data)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.document = h
	a.mu.Unlock()
	a.quiz.Attach(h)
	return h, nil
}

// Document returns the current document, or nil.
func (a *App) Document() *rag.Handle {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.document
}

// Reset 清空所有会话记录、测验状态与评估样本。文档与会话设置保留。
func (a *App) Reset(ctx context.Context) error {
	if err := a.service.Store().ResetAll(ctx); err != nil {
		return err
	}
	if err := a.quiz.Reset(ctx); err != nil {
		return err
	}
	a.logger.Info("state reset")
	return nil
}

// Summary 是一次批量评估的结果。
type Summary struct {
	Samples int         `json:"samples"`
	Mean    eval.Result `json:"mean"`
}

func (s Summary) String() string {
	return fmt.Sprintf("Mean over %d samples\n- answer relevancy: %.3f\n- faithfulness: %.3f",
		s.Samples, s.Mean.AnswerRelevancy, s.Mean.Faithfulness)
}

// Evaluate 评估全部样本并返回均值。
func (a *App) Evaluate(ctx context.Context) (Summary, error) {
	results, err := a.evaluator.EvaluateAll(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Samples: len(results), Mean: eval.Mean(results)}, nil
}

// EvaluateLast 只评估最近一条样本。
func (a *App) EvaluateLast(ctx context.Context) (eval.Result, error) {
	return a.evaluator.EvaluateLast(ctx)
}

// Sessions 列出已有聊天记录的会话 ID。
func (a *App) Sessions(ctx context.Context) ([]string, error) {
	return a.service.Store().Sessions(ctx)
}

// Mode returns the session's mode, falling back to chat.default_mode.
func (a *App) Mode(sessionID string) Mode {
	if v, ok := a.settings.Get(sessionID, settingMode); ok {
		if m, err := ParseMode(v); err == nil {
			return m
		}
	}
	if a.cfg != nil {
		if m, err := ParseMode(a.cfg.Chat.DefaultMode); err == nil {
			return m
		}
	}
	return ModeChat
}

// SetMode 切换会话模式。
func (a *App) SetMode(sessionID string, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	return a.settings.Save(sessionID, command.ContextValues{settingMode: string(mode)})
}

// ShowEvaluation reports whether quiz turns are scored immediately.
// 没有配置评分器时始终为 false，测验照常推进。
func (a *App) ShowEvaluation(sessionID string) bool {
	if !a.evaluator.CanScore() {
		return false
	}
	if v, ok := a.settings.Get(sessionID, settingShowEval); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return a.cfg != nil && a.cfg.Evaluation.Enabled
}

// SetShowEvaluation sets the show-evaluation toggle.
// 没有评分器时不能打开。
func (a *App) SetShowEvaluation(sessionID string, on bool) error {
	if on && !a.evaluator.CanScore() {
		return eval.ErrNoScorer
	}
	return a.settings.Save(sessionID, command.ContextValues{settingShowEval: strconv.FormatBool(on)})
}

// History 返回会话在当前模式下的记录；测验模式返回测验记录。
func (a *App) History(ctx context.Context, sessionID string) ([]llms.ChatMessage, error) {
	if a.Mode(sessionID) == ModeQuiz {
		return a.quiz.Transcript().Messages(ctx)
	}
	t, err := a.service.Store().GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return t.Messages(ctx)
}

// QuizState returns the quiz state.
func (a *App) QuizState() quiz.State { return a.quiz.State() }

// Samples returns the number of accumulated evaluation samples.
func (a *App) Samples() int { return a.evaluator.Len() }

// IsRecoverable 报告 err 是否属于可向用户展示并等待下一步操作的错误。
func IsRecoverable(err error) bool {
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// QuizStatus 是测验状态的只读视图。
type QuizStatus struct {
	State           string `json:"state"`
	PendingQuestion string `json:"pending_question,omitempty"`
	Samples         int    `json:"samples"`
	Document        string `json:"document,omitempty"`
}

// QuizStatus returns a snapshot of the quiz.
func (a *App) QuizStatus() QuizStatus {
	state := a.quiz.State()
	status := QuizStatus{State: "idle", Samples: a.Samples()}
	if q, ok := state.PendingQuestion(); ok {
		status.State = "awaiting_answer"
		status.PendingQuestion = q
	}
	if doc := a.Document(); doc != nil {
		status.Document = doc.Name
	}
	return status
}
