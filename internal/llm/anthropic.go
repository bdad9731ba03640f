package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// Anthropic Messages API端点
	defaultAnthropicEndpoint = "https://api.anthropic.com/v1/messages"
	// API版本号，随请求头一起发送
	anthropicVersion = "2023-06-01"
)

// AnthropicClient Claude大模型客户端实现
// 单次调用语义，不在客户端内部重试
type AnthropicClient struct {
	apiKey      string       // API密钥
	baseURL     string       // API端点
	model       string       // 模型名称
	httpClient  *http.Client // HTTP客户端
	maxTokens   int          // 最大生成Token数
	temperature float32      // 温度参数
	topP        float32      // topP参数
}

// NewAnthropicClient 创建新的Claude大模型客户端
func NewAnthropicClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	// 验证API密钥
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicEndpoint
	}

	client := &AnthropicClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       cfg.Model,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}

	return client, nil
}

// Name 返回模型名称
func (c *AnthropicClient) Name() string {
	return c.model
}

// Generate 根据提示词生成回答
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

	// 将单个提示转换为消息格式进行调用
	messages := []Message{
		{
			Role:    RoleUser,
			Content: prompt,
		},
	}

	var chatOpts []ChatOption
	if opts.System != "" {
		chatOpts = append(chatOpts, WithChatSystem(opts.System))
	}
	if opts.MaxTokens != nil {
		chatOpts = append(chatOpts, WithChatMaxTokens(*opts.MaxTokens))
	}
	if opts.Temperature != nil {
		chatOpts = append(chatOpts, WithChatTemperature(*opts.Temperature))
	}
	if opts.TopP != nil {
		chatOpts = append(chatOpts, WithChatTopP(*opts.TopP))
	}

	return c.Chat(ctx, messages, chatOpts...)
}

// Chat 进行多轮对话
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	// Anthropic API要求system单独传递，不放在messages中
	system := opts.System
	var apiMessages []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			system = m.Content
			continue
		}
		apiMessages = append(apiMessages, m)
	}

	req := &AnthropicRequest{
		Model:    c.model,
		System:   system,
		Messages: apiMessages,
	}

	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	} else {
		req.MaxTokens = c.maxTokens
	}

	if opts.Temperature != nil {
		req.Temperature = opts.Temperature
	} else if c.temperature > 0 {
		temp := c.temperature
		req.Temperature = &temp
	}

	if opts.TopP != nil {
		req.TopP = opts.TopP
	} else if c.topP > 0 {
		topP := c.topP
		req.TopP = &topP
	}

	resp, err := c.sendRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	return c.processResponse(resp)
}

// sendRequest 发送API请求并解析响应
func (c *AnthropicClient) sendRequest(ctx context.Context, req *AnthropicRequest) (*AnthropicResponse, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL,
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}

	// 设置请求头，密钥只进入请求头，不进入日志
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewLLMError(ErrCodeServerError, fmt.Sprintf("failed to read response: %v", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyAnthropicError(resp.StatusCode, body)
	}

	var anthropicResp AnthropicResponse
	if err := json.Unmarshal(body, &anthropicResp); err != nil {
		return nil, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("failed to parse response: %v", err))
	}

	if anthropicResp.Error != nil {
		return nil, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", anthropicResp.Error.Message, anthropicResp.Error.Type))
	}

	return &anthropicResp, nil
}

// processResponse 处理Claude的响应
func (c *AnthropicClient) processResponse(resp *AnthropicResponse) (*Response, error) {
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	if text.Len() == 0 {
		return nil, NewLLMError(ErrCodeServerError, "empty response from API")
	}

	return &Response{
		Text:       text.String(),
		TokenCount: resp.Usage.InputTokens + resp.Usage.OutputTokens,
		ModelName:  c.model,
		StopReason: resp.StopReason,
		FinishTime: time.Now(),
	}, nil
}

// classifyAnthropicError 将HTTP状态码映射为错误码
func classifyAnthropicError(statusCode int, body []byte) LLMError {
	var errResp struct {
		Error *AnthropicErrorDetail `json:"error"`
	}
	message := fmt.Sprintf("API error (status %d)", statusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = fmt.Sprintf("API error: %s (%s)", errResp.Error.Message, errResp.Error.Type)
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewLLMError(ErrCodeInvalidAPIKey, message)
	case statusCode == http.StatusTooManyRequests:
		return NewLLMError(ErrCodeRateLimited, message)
	case statusCode == http.StatusRequestEntityTooLarge:
		return NewLLMError(ErrCodeContextTooLong, message)
	case statusCode == 529:
		// Anthropic特有的过载状态码
		return NewLLMError(ErrCodeModelOverload, message)
	case statusCode >= 500:
		return NewLLMError(ErrCodeServerError, message)
	default:
		return NewLLMError(ErrCodeInvalidRequest, message)
	}
}

// classifyTransportError 将传输层错误映射为错误码
func classifyTransportError(err error) LLMError {
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	}
	if errors.Is(err, context.Canceled) {
		return NewLLMError(ErrCodeTimeout, err.Error())
	}
	return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
}

// 在包初始化时注册Claude客户端
func init() {
	RegisterClient("anthropic", NewAnthropicClient)
}
