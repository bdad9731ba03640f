package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig 重试策略配置
type RetryConfig struct {
	MaxAttempts    int           // 最大尝试次数（含首次调用）
	InitialBackoff time.Duration // 首次重试前的等待时间
	MaxBackoff     time.Duration // 退避时间上限
	Multiplier     float64       // 退避倍增系数（默认2.0）
	JitterFactor   float64       // 随机抖动系数0-1（默认0.1）
}

// DefaultRetryConfig 返回默认重试配置
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFactor:   0.1,
	}
}

// CallResult 单个模型调用的编排结果
// 调用结果显式建模为数据，由上层根据Success分支处理，
// 不依赖错误向上抛出的隐式控制流
type CallResult struct {
	Success   bool      // 调用是否成功
	Response  *Response // 成功时的响应
	ErrorCode int       // 失败时的错误码
	Err       error     // 失败时的最后一次错误
	Attempts  int       // 实际尝试次数
}

// Caller 带重试编排的模型调用器
// 客户端本身只做单次调用，重试、退避与结果归一化集中在这里
type Caller struct {
	client Client
	config RetryConfig
	logger *logrus.Logger
}

// NewCaller 创建新的模型调用器
func NewCaller(client Client, config RetryConfig, logger *logrus.Logger) *Caller {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Multiplier == 0 {
		config.Multiplier = 2.0
	}
	if config.JitterFactor == 0 {
		config.JitterFactor = 0.1
	}
	return &Caller{
		client: client,
		config: config,
		logger: logger,
	}
}

// Client 返回底层客户端
func (c *Caller) Client() Client {
	return c.client
}

// Generate 带重试地执行生成调用
func (c *Caller) Generate(ctx context.Context, prompt string, options ...GenerateOption) CallResult {
	return c.do(ctx, func() (*Response, error) {
		return c.client.Generate(ctx, prompt, options...)
	})
}

// Chat 带重试地执行对话调用
func (c *Caller) Chat(ctx context.Context, messages []Message, options ...ChatOption) CallResult {
	return c.do(ctx, func() (*Response, error) {
		return c.client.Chat(ctx, messages, options...)
	})
}

// do 执行调用并按策略重试
func (c *Caller) do(ctx context.Context, operation func() (*Response, error)) CallResult {
	var lastErr error

	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		resp, err := operation()
		if err == nil {
			return CallResult{
				Success:  true,
				Response: resp,
				Attempts: attempt,
			}
		}

		lastErr = err

		// 非瞬时错误重试无意义，立即返回
		if !IsRetryable(err) {
			return CallResult{
				ErrorCode: ErrorCode(err),
				Err:       err,
				Attempts:  attempt,
			}
		}

		if attempt == c.config.MaxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		if c.logger != nil {
			c.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"backoff": backoff.String(),
				"error":   err.Error(),
			}).Warn("model call failed, retrying after backoff")
		}

		select {
		case <-ctx.Done():
			return CallResult{
				ErrorCode: ErrCodeTimeout,
				Err:       NewLLMError(ErrCodeTimeout, ctx.Err().Error()),
				Attempts:  attempt,
			}
		case <-time.After(backoff):
			// 等待后继续下一次尝试
		}
	}

	return CallResult{
		ErrorCode: ErrorCode(lastErr),
		Err:       lastErr,
		Attempts:  c.config.MaxAttempts,
	}
}

// calculateBackoff 计算带抖动的指数退避时长
func (c *Caller) calculateBackoff(attempt int) time.Duration {
	// 指数退避：initial * multiplier^(attempt-1)
	backoff := float64(c.config.InitialBackoff) * math.Pow(c.config.Multiplier, float64(attempt-1))

	if backoff > float64(c.config.MaxBackoff) {
		backoff = float64(c.config.MaxBackoff)
	}

	// 抖动：backoff * (1 + random(-jitter, +jitter))
	jitter := (rand.Float64()*2 - 1) * c.config.JitterFactor
	backoff *= (1 + jitter)

	return time.Duration(backoff)
}
