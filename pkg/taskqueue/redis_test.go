package taskqueue

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisQueue 连接本地Redis，不可用时跳过测试
func setupRedisQueue(t *testing.T) Queue {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis queue tests")
	}

	cfg := DefaultConfig()
	cfg.RedisAddr = addr
	cfg.RedisDB = 15 // 使用独立的数据库避免污染

	queue, err := NewRedisQueue(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = queue.Close() })
	return queue
}

func TestRedisQueueEnqueueAndGet(t *testing.T) {
	queue := setupRedisQueue(t)
	ctx := context.Background()

	payload := GenerationPayload{
		RunID:    "run-redis-1",
		FilePath: "/data/spec.pdf",
		FileName: "spec.pdf",
	}

	taskID, err := queue.Enqueue(ctx, TaskGenerateTestCases, "run-redis-1", payload)
	require.NoError(t, err)
	require.NotEmpty(t, taskID)
	defer queue.DeleteTask(ctx, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, TaskGenerateTestCases, task.Type)
	assert.Equal(t, "run-redis-1", task.RunID)
	assert.Equal(t, StatusPending, task.Status)

	var decoded GenerationPayload
	require.NoError(t, UnmarshalPayload(task.Payload, &decoded))
	assert.Equal(t, payload, decoded)
}

func TestRedisQueueUpdateStatus(t *testing.T) {
	queue := setupRedisQueue(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, TaskGenerateTestCases, "run-redis-2", GenerationPayload{RunID: "run-redis-2"})
	require.NoError(t, err)
	defer queue.DeleteTask(ctx, taskID)

	result := GenerationResult{RunID: "run-redis-2", Status: "written", TestCaseCount: 5}
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, result, ""))

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt, "终态应记录完成时间")

	var decoded GenerationResult
	require.NoError(t, UnmarshalPayload(task.Result, &decoded))
	assert.Equal(t, 5, decoded.TestCaseCount)
}

func TestRedisQueueTasksByRun(t *testing.T) {
	queue := setupRedisQueue(t)
	ctx := context.Background()

	first, err := queue.Enqueue(ctx, TaskGenerateTestCases, "run-redis-3", GenerationPayload{RunID: "run-redis-3"})
	require.NoError(t, err)
	defer queue.DeleteTask(ctx, first)

	second, err := queue.Enqueue(ctx, TaskGenerateTestCases, "run-redis-3", GenerationPayload{RunID: "run-redis-3", Overwrite: true})
	require.NoError(t, err)
	defer queue.DeleteTask(ctx, second)

	tasks, err := queue.GetTasksByRun(ctx, "run-redis-3")
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestRedisQueueTaskNotFound(t *testing.T) {
	queue := setupRedisQueue(t)

	_, err := queue.GetTask(context.Background(), "no-such-task")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}
