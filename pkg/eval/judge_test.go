package eval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
)

func judgeServer(t *testing.T, arguments string, captured *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]any{
					"role": "assistant",
					"tool_calls": []map[string]any{{
						"id":   "call_1",
						"type": "function",
						"function": map[string]any{
							"name":      scoreToolName,
							"arguments": arguments,
						},
					}},
				},
			}},
		})
	}))
}

func TestJudge_Score(t *testing.T) {
	var req openai.ChatCompletionRequest
	server := judgeServer(t, `{"faithfulness":0.75,"answer_relevancy":1.2,"reason":"ok"}`, &req)
	defer server.Close()

	judge := NewJudge("test-key", WithBaseURL(server.URL+"/v1"), WithJudgeModel("judge-model"))
	r, err := judge.Score(context.Background(), Sample{
		Question: "What colour is the sky?",
		Answer:   "Blue.",
		Context:  []schema.Document{{PageContent: "The sky is blue."}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.75, r.Faithfulness, 1e-9)
	assert.InDelta(t, 1.0, r.AnswerRelevancy, 1e-9)

	assert.Equal(t, "judge-model", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Contains(t, req.Messages[1].Content, "[1] The sky is blue.")
	require.Len(t, req.Tools, 1)
	assert.Equal(t, scoreToolName, req.Tools[0].Function.Name)
}

func TestJudge_BadArguments(t *testing.T) {
	server := judgeServer(t, `not json`, nil)
	defer server.Close()

	e := NewEvaluator(NewJudge("k", WithBaseURL(server.URL+"/v1")))
	e.AddSample("q", "a", nil)
	_, err := e.EvaluateLast(context.Background())
	assert.ErrorIs(t, err, ErrEvaluation)
}

func TestJudge_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewJudge("k", WithBaseURL(server.URL+"/v1")).Score(context.Background(), Sample{Question: "q"})
	assert.Error(t, err)
}
