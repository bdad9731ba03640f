package llm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient 按预设脚本依次返回结果的模拟客户端
type scriptedClient struct {
	responses []scriptedResponse
	calls     int
}

type scriptedResponse struct {
	resp *Response
	err  error
}

func (c *scriptedClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	return c.next()
}

func (c *scriptedClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	return c.next()
}

func (c *scriptedClient) Name() string { return "scripted" }

func (c *scriptedClient) next() (*Response, error) {
	if c.calls >= len(c.responses) {
		return nil, NewLLMError(ErrCodeServerError, "script exhausted")
	}
	r := c.responses[c.calls]
	c.calls++
	return r.resp, r.err
}

func fastRetryConfig(maxAttempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
		JitterFactor:   0.1,
	}
}

func TestCallerSuccessFirstAttempt(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{resp: &Response{Text: "ok"}},
	}}
	caller := NewCaller(client, fastRetryConfig(3), nil)

	result := caller.Generate(context.Background(), "prompt")
	require.True(t, result.Success)
	assert.Equal(t, "ok", result.Response.Text)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.Err)
}

func TestCallerRetryThenSuccess(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)},
		{err: NewLLMError(ErrCodeServerError, ErrMsgServerError)},
		{resp: &Response{Text: "recovered"}},
	}}
	caller := NewCaller(client, fastRetryConfig(3), nil)

	result := caller.Generate(context.Background(), "prompt")
	require.True(t, result.Success, "瞬时错误后应重试成功")
	assert.Equal(t, "recovered", result.Response.Text)
	assert.Equal(t, 3, result.Attempts)
}

func TestCallerExhaustsRetries(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: NewLLMError(ErrCodeServerError, ErrMsgServerError)},
		{err: NewLLMError(ErrCodeServerError, ErrMsgServerError)},
		{err: NewLLMError(ErrCodeServerError, ErrMsgServerError)},
	}}
	caller := NewCaller(client, fastRetryConfig(3), nil)

	result := caller.Generate(context.Background(), "prompt")
	require.False(t, result.Success)
	assert.Equal(t, ErrCodeServerError, result.ErrorCode)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, 3, client.calls, "应恰好尝试MaxAttempts次")
}

func TestCallerNonRetryableError(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)},
	}}
	caller := NewCaller(client, fastRetryConfig(3), nil)

	result := caller.Generate(context.Background(), "prompt")
	require.False(t, result.Success)
	assert.Equal(t, ErrCodeInvalidAPIKey, result.ErrorCode)
	assert.Equal(t, 1, result.Attempts, "不可重试错误应立即返回")
	assert.Equal(t, 1, client.calls)
}

func TestCallerContextCancelled(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{err: NewLLMError(ErrCodeServerError, ErrMsgServerError)},
		{resp: &Response{Text: "never reached"}},
	}}
	// 退避时间拉长，保证取消发生在等待期间
	caller := NewCaller(client, RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Minute,
		MaxBackoff:     time.Minute,
		Multiplier:     2.0,
		JitterFactor:   0.1,
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := caller.Generate(ctx, "prompt")
	require.False(t, result.Success)
	assert.Equal(t, ErrCodeTimeout, result.ErrorCode)
	assert.Equal(t, 1, client.calls, "取消后不应再发起调用")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		code      int
		retryable bool
	}{
		{ErrCodeNetworkError, true},
		{ErrCodeRateLimited, true},
		{ErrCodeServerError, true},
		{ErrCodeTimeout, true},
		{ErrCodeModelOverload, true},
		{ErrCodeInvalidAPIKey, false},
		{ErrCodeInvalidRequest, false},
		{ErrCodeEmptyPrompt, false},
		{ErrCodeContextTooLong, false},
		{ErrCodeContentFilter, false},
	}

	for _, tt := range tests {
		err := NewLLMError(tt.code, "test")
		assert.Equal(t, tt.retryable, IsRetryable(err), "错误码 %d 的重试判定不正确", tt.code)
	}
}

func TestCalculateBackoff(t *testing.T) {
	caller := NewCaller(&scriptedClient{}, RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     4 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.1,
	}, nil)

	// 指数增长且不超过上限（允许抖动偏差）
	b1 := caller.calculateBackoff(1)
	b3 := caller.calculateBackoff(3)
	b5 := caller.calculateBackoff(5)

	assert.InDelta(t, float64(time.Second), float64(b1), float64(time.Second)*0.1)
	assert.InDelta(t, float64(4*time.Second), float64(b3), float64(4*time.Second)*0.1)
	assert.LessOrEqual(t, float64(b5), float64(4*time.Second)*1.1, "退避应被上限截断")
}
