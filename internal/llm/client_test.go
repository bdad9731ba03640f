package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAnthropicTestServer 构造模拟Anthropic API的测试服务器
func newAnthropicTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Client) {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewAnthropicClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithModel(ModelClaudeSonnet4),
	)
	require.NoError(t, err)
	return server, client
}

func TestAnthropicClientGenerate(t *testing.T) {
	var gotReq AnthropicRequest
	_, client := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"), "API密钥应通过请求头传递")
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := AnthropicResponse{
			Type: "message",
			Content: []AnthropicContentBlock{
				{Type: "text", Text: "generated test cases"},
			},
			StopReason: "end_turn",
			Usage:      AnthropicUsage{InputTokens: 100, OutputTokens: 50},
		}
		json.NewEncoder(w).Encode(resp)
	})

	resp, err := client.Generate(context.Background(), "generate cases",
		WithGenerateSystem("You are a QA engineer."))
	require.NoError(t, err)

	assert.Equal(t, "generated test cases", resp.Text)
	assert.Equal(t, 150, resp.TokenCount)
	assert.Equal(t, ModelClaudeSonnet4, resp.ModelName)

	assert.Equal(t, "You are a QA engineer.", gotReq.System, "system提示词应单独传递")
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, RoleUser, gotReq.Messages[0].Role)
}

func TestAnthropicClientErrorMapping(t *testing.T) {
	tests := []struct {
		name         string
		statusCode   int
		expectedCode int
	}{
		{"unauthorized", http.StatusUnauthorized, ErrCodeInvalidAPIKey},
		{"rate limited", http.StatusTooManyRequests, ErrCodeRateLimited},
		{"overloaded", 529, ErrCodeModelOverload},
		{"server error", http.StatusInternalServerError, ErrCodeServerError},
		{"bad request", http.StatusBadRequest, ErrCodeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, client := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"type":  "error",
					"error": map[string]string{"type": tt.name, "message": "boom"},
				})
			})

			_, err := client.Generate(context.Background(), "prompt")
			require.Error(t, err)
			assert.Equal(t, tt.expectedCode, ErrorCode(err), "状态码 %d 的错误映射不正确", tt.statusCode)
		})
	}
}

func TestAnthropicClientEmptyPrompt(t *testing.T) {
	client, err := NewAnthropicClient(WithAPIKey("test-key"))
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, ErrCodeEmptyPrompt, ErrorCode(err))
}

func TestAnthropicClientMissingAPIKey(t *testing.T) {
	_, err := NewAnthropicClient()
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidAPIKey, ErrorCode(err))
}

func TestOpenAIClientChat(t *testing.T) {
	var gotReq OpenAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		resp := OpenAIResponse{
			Choices: []OpenAIChoice{
				{FinishReason: "stop", Message: Message{Role: RoleAssistant, Content: "the answer"}},
			},
			Usage: OpenAIUsage{TotalTokens: 42},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewOpenAIClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithModel(ModelGPT4oMini),
	)
	require.NoError(t, err)

	resp, err := client.Chat(context.Background(),
		[]Message{{Role: RoleUser, Content: "hello"}},
		WithChatSystem("system prompt"))
	require.NoError(t, err)

	assert.Equal(t, "the answer", resp.Text)
	assert.Equal(t, 42, resp.TokenCount)

	// system应作为首条消息注入
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, RoleSystem, gotReq.Messages[0].Role)
	assert.Equal(t, ModelGPT4oMini, gotReq.Model)
}

func TestNewClientRegistry(t *testing.T) {
	t.Run("registered anthropic client", func(t *testing.T) {
		client, err := NewClient("anthropic", WithAPIKey("test-key"))
		require.NoError(t, err)
		assert.Equal(t, ModelClaudeSonnet4, client.Name())
	})

	t.Run("registered openai client", func(t *testing.T) {
		client, err := NewClient("openai", WithAPIKey("test-key"))
		require.NoError(t, err)
		assert.Equal(t, ModelGPT4o, client.Name())
	})

	t.Run("unknown client type", func(t *testing.T) {
		_, err := NewClient("unknown-provider")
		require.Error(t, err)
		assert.Equal(t, ErrCodeInvalidRequest, ErrorCode(err))
	})
}
