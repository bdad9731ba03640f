package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// OpenAI Chat Completions API端点
	defaultOpenAIEndpoint = "https://api.openai.com/v1/chat/completions"
)

// OpenAIClient OpenAI大模型客户端实现
// 单次调用语义，不在客户端内部重试
type OpenAIClient struct {
	apiKey      string       // API密钥
	baseURL     string       // API端点
	model       string       // 模型名称
	httpClient  *http.Client // HTTP客户端
	maxTokens   int          // 最大生成Token数
	temperature float32      // 温度参数
	topP        float32      // topP参数
}

// NewOpenAIClient 创建新的OpenAI大模型客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIEndpoint
	}

	model := cfg.Model
	if model == "" || model == ModelClaudeSonnet4 {
		// 默认配置面向Claude，切换到OpenAI时换用对应默认模型
		model = ModelGPT4o
	}

	client := &OpenAIClient{
		apiKey:      cfg.APIKey,
		baseURL:     baseURL,
		model:       model,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
	}

	return client, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	opts := &GenerateOptions{}
	for _, opt := range options {
		opt(opts)
	}

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
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}

	// OpenAI的system作为首条消息传递
	apiMessages := messages
	if opts.System != "" {
		apiMessages = append([]Message{{Role: RoleSystem, Content: opts.System}}, messages...)
	}

	req := &OpenAIRequest{
		Model:    c.model,
		Messages: apiMessages,
	}

	if opts.MaxTokens != nil {
		req.MaxTokens = opts.MaxTokens
	} else if c.maxTokens > 0 {
		maxTokens := c.maxTokens
		req.MaxTokens = &maxTokens
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
func (c *OpenAIClient) sendRequest(ctx context.Context, req *OpenAIRequest) (*OpenAIResponse, error) {
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

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

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
		return nil, classifyOpenAIError(resp.StatusCode, body)
	}

	var openaiResp OpenAIResponse
	if err := json.Unmarshal(body, &openaiResp); err != nil {
		return nil, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("failed to parse response: %v", err))
	}

	if openaiResp.Error != nil {
		return nil, NewLLMError(ErrCodeServerError,
			fmt.Sprintf("API error: %s (%s)", openaiResp.Error.Message, openaiResp.Error.Type))
	}

	return &openaiResp, nil
}

// processResponse 处理OpenAI的响应
func (c *OpenAIClient) processResponse(resp *OpenAIResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "empty response from API")
	}

	choice := resp.Choices[0]
	return &Response{
		Text:       choice.Message.Content,
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  c.model,
		StopReason: choice.FinishReason,
		FinishTime: time.Now(),
	}, nil
}

// classifyOpenAIError 将HTTP状态码映射为错误码
func classifyOpenAIError(statusCode int, body []byte) LLMError {
	var errResp struct {
		Error *OpenAIErrorDetail `json:"error"`
	}
	message := fmt.Sprintf("API error (status %d)", statusCode)
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil {
		message = fmt.Sprintf("API error: %s (%s)", errResp.Error.Message, errResp.Error.Type)
		if errResp.Error.Code == "context_length_exceeded" {
			return NewLLMError(ErrCodeContextTooLong, message)
		}
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return NewLLMError(ErrCodeInvalidAPIKey, message)
	case statusCode == http.StatusTooManyRequests:
		return NewLLMError(ErrCodeRateLimited, message)
	case statusCode >= 500:
		return NewLLMError(ErrCodeServerError, message)
	default:
		return NewLLMError(ErrCodeInvalidRequest, message)
	}
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
