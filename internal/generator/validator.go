package generator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/go-playground/validator/v10"
)

// SchemaError 模型输出不符合约定模式的错误
type SchemaError struct {
	Message string // 错误详情
}

// Error 实现error接口
func (e *SchemaError) Error() string {
	return "schema validation failed: " + e.Message
}

// IsSchemaError 判断错误是否为模式校验错误
func IsSchemaError(err error) (*SchemaError, bool) {
	se, ok := err.(*SchemaError)
	return se, ok
}

// casePayload 模型输出中单条测试用例的解码结构
// ID在合并阶段统一分配，不由模型提供
type casePayload struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	Preconditions  string   `json:"preconditions"`
	Steps          []string `json:"steps" validate:"required,min=1,dive,required"`
	ExpectedResult string   `json:"expected_result" validate:"required"`
}

// ResponseValidator 模型输出校验器
// 从原始文本中提取JSON并校验模式一致性
type ResponseValidator struct {
	validate *validator.Validate
}

// NewResponseValidator 创建新的输出校验器
func NewResponseValidator() *ResponseValidator {
	return &ResponseValidator{
		validate: validator.New(),
	}
}

// Parse 解析模型输出为测试用例列表
// 输出不符合模式时返回SchemaError，由调用方决定是否补发提示
func (v *ResponseValidator) Parse(raw string) ([]models.TestCase, error) {
	jsonText, err := extractJSONArray(raw)
	if err != nil {
		return nil, err
	}

	var payloads []casePayload
	if err := json.Unmarshal([]byte(jsonText), &payloads); err != nil {
		return nil, &SchemaError{Message: fmt.Sprintf("invalid JSON: %v", err)}
	}

	if len(payloads) == 0 {
		return nil, &SchemaError{Message: "response contains no test cases"}
	}

	cases := make([]models.TestCase, 0, len(payloads))
	for i, p := range payloads {
		if err := v.validate.Struct(p); err != nil {
			return nil, &SchemaError{Message: fmt.Sprintf("test case %d: %v", i, err)}
		}
		cases = append(cases, models.TestCase{
			Title:          strings.TrimSpace(p.Title),
			Description:    strings.TrimSpace(p.Description),
			Preconditions:  strings.TrimSpace(p.Preconditions),
			Steps:          p.Steps,
			ExpectedResult: strings.TrimSpace(p.ExpectedResult),
		})
	}

	return cases, nil
}

// extractJSONArray 从模型输出中提取JSON数组文本
// 容忍代码围栏和数组前后的少量说明文字
func extractJSONArray(raw string) (string, error) {
	text := strings.TrimSpace(raw)

	// 剥离markdown代码围栏
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
		text = strings.TrimSpace(text)
	}

	// 定位最外层的JSON数组
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return "", &SchemaError{Message: "no JSON array found in response"}
	}

	return text[start : end+1], nil
}
