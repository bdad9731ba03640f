package taskqueue

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fyerfyer/testcase-gen-system/internal/document"
	"github.com/fyerfyer/testcase-gen-system/internal/generator"
	"github.com/fyerfyer/testcase-gen-system/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient 固定返回合法用例JSON的模拟客户端
type stubClient struct {
	response string
	err      error
}

func (c *stubClient) Generate(ctx context.Context, prompt string, options ...llm.GenerateOption) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.response}, nil
}

func (c *stubClient) Chat(ctx context.Context, messages []llm.Message, options ...llm.ChatOption) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.Response{Text: c.response}, nil
}

func (c *stubClient) Name() string { return "stub-model" }

// recordingQueue 记录状态更新调用的假队列
type recordingQueue struct {
	Queue
	results []interface{}
}

func (q *recordingQueue) UpdateTaskStatus(ctx context.Context, taskID string, status TaskStatus, result interface{}, errorMsg string) error {
	if result != nil {
		q.results = append(q.results, result)
	}
	return nil
}

func newHandlerPipeline(client llm.Client) *generator.Pipeline {
	caller := llm.NewCaller(client, llm.RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1.0,
	}, nil)
	return generator.NewPipeline(caller, document.NewTokenSplitter())
}

func TestGenerationHandlerProcessTask(t *testing.T) {
	client := &stubClient{
		response: `[{"title": "case", "steps": ["step"], "expected_result": "result"}]`,
	}
	queue := &recordingQueue{}
	handler := NewGenerationHandler(newHandlerPipeline(client), queue, nil)

	dir := t.TempDir()
	specPath := filepath.Join(dir, "spec.txt")
	require.NoError(t, os.WriteFile(specPath, []byte("The system shall lock accounts after five failed attempts."), 0644))

	payload, err := MarshalPayload(GenerationPayload{
		RunID:      "run-1",
		DocumentID: "spec",
		FilePath:   specPath,
		FileName:   "spec.txt",
		OutputPath: filepath.Join(dir, "cases.json"),
	})
	require.NoError(t, err)

	task := &Task{ID: "task-1", Type: TaskGenerateTestCases, RunID: "run-1", Payload: payload}
	require.NoError(t, handler.ProcessTask(context.Background(), task))

	// 生成结果应被回写到队列
	require.Len(t, queue.results, 1)
	result, ok := queue.results[0].(GenerationResult)
	require.True(t, ok)
	assert.Equal(t, "run-1", result.RunID)
	assert.Equal(t, "written", result.Status)
	assert.Equal(t, 1, result.TestCaseCount)
	assert.Empty(t, result.Error)

	_, err = os.Stat(filepath.Join(dir, "cases.json"))
	assert.NoError(t, err)
}

func TestGenerationHandlerFailure(t *testing.T) {
	client := &stubClient{err: llm.NewLLMError(llm.ErrCodeInvalidAPIKey, llm.ErrMsgInvalidAPIKey)}
	queue := &recordingQueue{}
	handler := NewGenerationHandler(newHandlerPipeline(client), queue, nil)

	dir := t.TempDir()
	specPath := filepath.Join(dir, "spec.txt")
	require.NoError(t, os.WriteFile(specPath, []byte("Some requirement text."), 0644))

	payload, err := MarshalPayload(GenerationPayload{
		RunID:      "run-2",
		FilePath:   specPath,
		FileName:   "spec.txt",
		OutputPath: filepath.Join(dir, "cases.json"),
	})
	require.NoError(t, err)

	task := &Task{ID: "task-2", Type: TaskGenerateTestCases, RunID: "run-2", Payload: payload}
	err = handler.ProcessTask(context.Background(), task)
	require.Error(t, err, "流水线失败应让队列任务失败以触发重试")

	require.Len(t, queue.results, 1)
	result := queue.results[0].(GenerationResult)
	assert.Equal(t, "failed", result.Status)
	assert.NotEmpty(t, result.Error)
}

func TestGenerationHandlerInvalidPayload(t *testing.T) {
	handler := NewGenerationHandler(newHandlerPipeline(&stubClient{}), &recordingQueue{}, nil)

	task := &Task{ID: "task-3", Type: TaskGenerateTestCases, Payload: json.RawMessage(`{"run_id": 42`)}
	err := handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	// 缺少文件路径同样拒绝
	payload, _ := MarshalPayload(GenerationPayload{RunID: "run-4"})
	task = &Task{ID: "task-4", Type: TaskGenerateTestCases, Payload: payload}
	err = handler.ProcessTask(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestGenerationHandlerTaskTypes(t *testing.T) {
	handler := NewGenerationHandler(nil, nil, nil)
	assert.Equal(t, []TaskType{TaskGenerateTestCases}, handler.GetTaskTypes())
}

func TestTaskInfoProgress(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		progress float64
	}{
		{StatusPending, 0.0},
		{StatusProcessing, 50.0},
		{StatusCompleted, 100.0},
		{StatusFailed, 100.0},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			info := NewTaskInfo(&Task{ID: "t", Status: tt.status})
			assert.Equal(t, tt.progress, info.Progress)
		})
	}
}

func TestMarshalPayloadRoundTrip(t *testing.T) {
	payload := GenerationPayload{
		RunID:      "run-1",
		DocumentID: "spec",
		FilePath:   "/data/spec.pdf",
		FileName:   "spec.pdf",
		OutputPath: "spec_test_cases.json",
		Format:     "json",
		Overwrite:  true,
	}

	data, err := MarshalPayload(payload)
	require.NoError(t, err)

	var decoded GenerationPayload
	require.NoError(t, UnmarshalPayload(data, &decoded))
	assert.Equal(t, payload, decoded)

	// nil载荷序列化为空对象
	data, err = MarshalPayload(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestNewQueueUnknownImplementation(t *testing.T) {
	_, err := NewQueue("kafka", DefaultConfig())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown queue implementation")
}
