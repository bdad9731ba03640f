package llm

import "time"

// MessageRole 消息角色类型
type MessageRole string

const (
	// RoleSystem 系统角色
	RoleSystem MessageRole = "system"
	// RoleUser 用户角色
	RoleUser MessageRole = "user"
	// RoleAssistant 助手角色
	RoleAssistant MessageRole = "assistant"
)

// Message 对话消息结构
type Message struct {
	Role    MessageRole `json:"role"`    // 角色
	Content string      `json:"content"` // 内容
}

// AnthropicRequest Anthropic Messages API请求结构
type AnthropicRequest struct {
	Model       string    `json:"model"`                 // 模型名称
	System      string    `json:"system,omitempty"`      // 系统提示词
	Messages    []Message `json:"messages"`              // 消息列表
	MaxTokens   int       `json:"max_tokens"`            // 最大生成Token数（必填）
	Temperature *float32  `json:"temperature,omitempty"` // 采样温度
	TopP        *float32  `json:"top_p,omitempty"`       // 核采样概率阈值
}

// AnthropicResponse Anthropic Messages API响应结构
type AnthropicResponse struct {
	ID         string                   `json:"id"`          // 响应ID
	Type       string                   `json:"type"`        // message或error
	Role       string                   `json:"role"`        // 角色
	Content    []AnthropicContentBlock  `json:"content"`     // 内容块列表
	StopReason string                   `json:"stop_reason"` // 结束原因
	Usage      AnthropicUsage           `json:"usage"`       // 资源使用情况
	Error      *AnthropicErrorDetail    `json:"error"`       // 错误信息(如果有)
}

// AnthropicContentBlock 响应内容块
type AnthropicContentBlock struct {
	Type string `json:"type"` // 内容类型，text
	Text string `json:"text"` // 文本内容
}

// AnthropicUsage 资源使用情况
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`  // 输入token数
	OutputTokens int `json:"output_tokens"` // 输出token数
}

// AnthropicErrorDetail 错误详情
type AnthropicErrorDetail struct {
	Type    string `json:"type"`    // 错误类型
	Message string `json:"message"` // 错误消息
}

// OpenAIRequest OpenAI Chat Completions请求结构
type OpenAIRequest struct {
	Model       string    `json:"model"`                 // 模型名称
	Messages    []Message `json:"messages"`              // 消息列表
	MaxTokens   *int      `json:"max_tokens,omitempty"`  // 最大生成Token数
	Temperature *float32  `json:"temperature,omitempty"` // 采样温度
	TopP        *float32  `json:"top_p,omitempty"`       // 核采样概率阈值
}

// OpenAIResponse OpenAI Chat Completions响应结构
type OpenAIResponse struct {
	ID      string             `json:"id"`      // 响应ID
	Choices []OpenAIChoice     `json:"choices"` // 选择列表
	Usage   OpenAIUsage        `json:"usage"`   // 资源使用情况
	Error   *OpenAIErrorDetail `json:"error"`   // 错误信息(如果有)
}

// OpenAIChoice 输出选择
type OpenAIChoice struct {
	FinishReason string  `json:"finish_reason"` // 结束原因
	Message      Message `json:"message"`       // 消息内容
}

// OpenAIUsage 资源使用情况
type OpenAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`     // 输入token数
	CompletionTokens int `json:"completion_tokens"` // 输出token数
	TotalTokens      int `json:"total_tokens"`      // 总token数
}

// OpenAIErrorDetail 错误详情
type OpenAIErrorDetail struct {
	Type    string `json:"type"`    // 错误类型
	Code    string `json:"code"`    // 错误码
	Message string `json:"message"` // 错误消息
}

// Response 统一的响应结构
type Response struct {
	Text       string    // 生成的文本
	TokenCount int       // 使用的token数
	ModelName  string    // 使用的模型名称
	StopReason string    // 结束原因
	FinishTime time.Time // 完成时间
}

// Model 常用模型名称
const (
	ModelClaudeSonnet4 = "claude-sonnet-4-20250514" // Claude Sonnet 4模型
	ModelClaudeHaiku3  = "claude-3-5-haiku-latest"  // Claude Haiku模型（较快，成本低）
	ModelGPT4o         = "gpt-4o"                   // GPT-4o模型
	ModelGPT4oMini     = "gpt-4o-mini"              // GPT-4o-mini模型（较快，成本低）
)
