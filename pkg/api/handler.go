// Package api exposes the bot over a JSON HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"

	"github.com/IMBotPlatform/IMBotRAG/pkg/ai"
	"github.com/IMBotPlatform/IMBotRAG/pkg/bot"
	"github.com/IMBotPlatform/IMBotRAG/pkg/botcore"
	"github.com/IMBotPlatform/IMBotRAG/pkg/command"
	"github.com/IMBotPlatform/IMBotRAG/pkg/eval"
	"github.com/IMBotPlatform/IMBotRAG/pkg/rag"
)

const (
	cookieName       = "imbotrag"
	cookieSessionKey = "session_id"
	defaultMaxUpload = 32 << 20
)

// Backend 是 Handler 依赖的业务接口，由 *bot.App 实现。
type Backend interface {
	botcore.PipelineInvoker
	Upload(ctx context.Context, name string, data []byte) (*rag.Handle, error)
	Reset(ctx context.Context) error
	Evaluate(ctx context.Context) (bot.Summary, error)
	History(ctx context.Context, sessionID string) ([]llms.ChatMessage, error)
	Mode(sessionID string) bot.Mode
	SetMode(sessionID string, mode bot.Mode) error
	ShowEvaluation(sessionID string) bool
	SetShowEvaluation(sessionID string, on bool) error
	Document() *rag.Handle
	QuizStatus() bot.QuizStatus
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithMaxUpload limits the accepted upload size in bytes.
func WithMaxUpload(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUpload = n
		}
	}
}

// Handler provides the HTTP endpoints.
type Handler struct {
	app       Backend
	sessions  sessions.Store
	logger    *zap.Logger
	maxUpload int64
}

// NewHandler creates a Handler. store keeps the browser's session id in a cookie.
func NewHandler(app Backend, store sessions.Store, opts ...Option) *Handler {
	h := &Handler{
		app:       app,
		sessions:  store,
		logger:    zap.NewNop(),
		maxUpload: defaultMaxUpload,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// statusFor 把领域错误映射为 HTTP 状态码。
func statusFor(err error) int {
	switch {
	case errors.Is(err, bot.ErrEmptyInput),
		errors.Is(err, bot.ErrUnknownMode),
		errors.Is(err, ai.ErrSessionID),
		errors.Is(err, command.ErrCommandNotFound),
		errors.Is(err, command.ErrCommandRequired):
		return http.StatusBadRequest
	case errors.Is(err, bot.ErrNoDocument),
		errors.Is(err, eval.ErrNoSamples),
		errors.Is(err, eval.ErrNoScorer):
		return http.StatusConflict
	case errors.Is(err, rag.ErrIngest):
		return http.StatusUnprocessableEntity
	case errors.Is(err, rag.ErrStorage):
		return http.StatusServiceUnavailable
	case errors.Is(err, rag.ErrRetrieval),
		errors.Is(err, rag.ErrGeneration),
		errors.Is(err, eval.ErrEvaluation):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	Error(w, status, bot.UserMessage(err))
}

// sessionID 依次取显式参数、cookie、默认会话，并把结果写回 cookie。
func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request, explicit string) string {
	id := strings.TrimSpace(explicit)
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}

	if h.sessions == nil {
		if id == "" {
			id = ai.DefaultSessionID
		}
		return id
	}

	// 解码失败时 Get 仍返回一个新会话
	sess, _ := h.sessions.Get(r, cookieName)
	if id == "" {
		if v, ok := sess.Values[cookieSessionKey].(string); ok && v != "" {
			id = v
		}
	}
	if id == "" {
		id = ai.DefaultSessionID
	}
	if current, _ := sess.Values[cookieSessionKey].(string); current != id {
		sess.Values[cookieSessionKey] = id
		if err := sess.Save(r, w); err != nil {
			h.logger.Warn("save session cookie failed", zap.Error(err))
		}
	}
	return id
}

type documentResponse struct {
	Name   string `json:"name"`
	Digest string `json:"digest"`
	Chunks int    `json:"chunks"`
}

// UploadDocument handles POST /api/documents (multipart field "file").
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	doc, err := h.app.Upload(r.Context(), header.Filename, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, documentResponse{Name: doc.Name, Digest: doc.Digest, Chunks: doc.Chunks})
}

type messageRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// PostMessage handles POST /api/messages. With ?stream=1 the reply is NDJSON events.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	update, err := requestAdapter.Normalize(req)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	update.SessionID = h.sessionID(w, r, req.SessionID)
	streamID := uuid.NewString()
	ch := h.app.Trigger(r.Context(), update, streamID)

	if r.URL.Query().Get("stream") == "1" {
		h.stream(w, update, streamID, ch)
		return
	}

	text, final := botcore.Drain(ch)
	if final.Err != nil {
		h.fail(w, r, final.Err)
		return
	}
	if reply, ok := final.Payload.(*bot.Reply); ok {
		JSON(w, http.StatusOK, reply)
		return
	}
	// 命令输出没有结构化 Reply
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": update.SessionID,
		"text":       text,
		"payload":    final.Payload,
	})
}

func (h *Handler) stream(w http.ResponseWriter, update botcore.Update, streamID string, ch <-chan botcore.StreamChunk) {
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for chunk := range ch {
		event, err := eventEmitter.Encode(update, streamID, chunk)
		if err != nil {
			h.logger.Warn("encode stream event failed", zap.Error(err))
			continue
		}
		if err := enc.Encode(event); err != nil {
			// 客户端已断开，继续读完通道让生产者退出
			continue
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func roleOf(t llms.ChatMessageType) string {
	switch t {
	case llms.ChatMessageTypeHuman:
		return "user"
	case llms.ChatMessageTypeAI:
		return "assistant"
	default:
		return string(t)
	}
}

// GetMessages handles GET /api/messages.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := h.sessionID(w, r, "")
	msgs, err := h.app.History(r.Context(), sessionID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]historyMessage, len(msgs))
	for i, m := range msgs {
		out[i] = historyMessage{Role: roleOf(m.GetType()), Content: m.GetContent()}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"mode":       h.app.Mode(sessionID),
		"messages":   out,
	})
}

type sessionResponse struct {
	SessionID      string   `json:"session_id"`
	Mode           bot.Mode `json:"mode"`
	ShowEvaluation bool     `json:"show_evaluation"`
	Document       string   `json:"document,omitempty"`
}

type sessionUpdate struct {
	SessionID      string  `json:"session_id"`
	Mode           *string `json:"mode"`
	ShowEvaluation *bool   `json:"show_evaluation"`
}

func (h *Handler) sessionState(sessionID string) sessionResponse {
	resp := sessionResponse{
		SessionID:      sessionID,
		Mode:           h.app.Mode(sessionID),
		ShowEvaluation: h.app.ShowEvaluation(sessionID),
	}
	if doc := h.app.Document(); doc != nil {
		resp.Document = doc.Name
	}
	return resp
}

// GetSession handles GET /api/session.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sessionState(h.sessionID(w, r, "")))
}

// UpdateSession handles PUT /api/session.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sessionID := h.sessionID(w, r, req.SessionID)

	if req.Mode != nil {
		mode, err := bot.ParseMode(*req.Mode)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if err := h.app.SetMode(sessionID, mode); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	if req.ShowEvaluation != nil {
		if err := h.app.SetShowEvaluation(sessionID, *req.ShowEvaluation); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	JSON(w, http.StatusOK, h.sessionState(sessionID))
}

// Reset handles POST /api/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.app.Reset(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Evaluate handles POST /api/evaluations.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.app.Evaluate(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, summary)
}

// GetQuiz handles GET /api/quiz.
func (h *Handler) GetQuiz(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.app.QuizStatus())
}
