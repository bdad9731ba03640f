package generator

import (
	"fmt"
	"strings"

	"github.com/fyerfyer/testcase-gen-system/internal/document"
	"github.com/fyerfyer/testcase-gen-system/internal/llm"
)

// SystemPrompt 模型的角色设定
// 措辞固定，保证多次运行之间提示词完全一致
const SystemPrompt = "You are an experienced QA engineer specializing in requirements analysis and test design."

// schemaInstruction 输出模式说明
// 字段名与类型的描述逐字固定，任何改动都会破坏运行之间的可复现性
const schemaInstruction = `Generate test cases for the requirements in the document excerpt below.

Respond with a JSON array only, no surrounding prose. Each element must be an object with exactly these fields:
- "title": string, a short unique name for the test case
- "description": string, what the test case verifies
- "preconditions": string, the state required before execution (empty string if none)
- "steps": array of strings, the ordered actions to perform
- "expected_result": string, the observable outcome that defines a pass

Requirements:
1. Create test cases that are suitable for both manual and automated testing
2. Cover all functional requirements mentioned in the excerpt
3. Include both positive and negative test scenarios
4. Include data validation and error handling scenarios
5. Ensure every test case is traceable back to a requirement in the excerpt`

// repromptInstruction 补发提示，用于纠正不符合模式的输出
const repromptInstruction = `Your previous response could not be parsed as the required JSON array. ` +
	`Respond again with ONLY a valid JSON array matching the required schema: ` +
	`objects with fields "title", "description", "preconditions", "steps" (array of strings) and "expected_result". ` +
	`Do not include markdown fences, table formatting or any text outside the JSON array.`

// PromptBuilder 提示词构造器
// 将分块与固定的模式说明拼装为模型请求
type PromptBuilder struct{}

// NewPromptBuilder 创建新的提示词构造器
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildGeneration 构造单个分块的生成提示词
// 分块文本逐字嵌入，不做任何改写，避免丢失规格细节
func (b *PromptBuilder) BuildGeneration(chunk document.Chunk, sourceName string) string {
	var sb strings.Builder
	sb.WriteString(schemaInstruction)
	sb.WriteString("\n\n")

	if chunk.Section != "" {
		fmt.Fprintf(&sb, "The excerpt belongs to the section %q.\n\n", chunk.Section)
	}

	fmt.Fprintf(&sb, "=== DOCUMENT: %s (part %d) ===\n", sourceName, chunk.Index+1)
	sb.WriteString(chunk.Text)
	fmt.Fprintf(&sb, "\n=== END OF %s ===\n", sourceName)

	return sb.String()
}

// BuildReprompt 构造模式纠正的对话消息
// 把原提示、失败的输出和纠正说明组织成一次补发对话
func (b *PromptBuilder) BuildReprompt(originalPrompt, badOutput string) []llm.Message {
	return []llm.Message{
		{Role: llm.RoleUser, Content: originalPrompt},
		{Role: llm.RoleAssistant, Content: badOutput},
		{Role: llm.RoleUser, Content: repromptInstruction},
	}
}
