package repository

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB 创建测试用的临时SQLite数据库
func setupTestDB(t *testing.T) *gorm.DB {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err, "打开测试数据库失败")

	require.NoError(t, db.AutoMigrate(&models.GenerationRun{}, &models.TestCaseRecord{}))
	return db
}

func newTestRun(id string) *models.GenerationRun {
	return &models.GenerationRun{
		ID:         id,
		DocumentID: "doc-1",
		FileName:   "spec.pdf",
		Status:     models.RunStatusPending,
		ModelName:  "claude-sonnet-4-20250514",
	}
}

func TestRunRepositoryCRUD(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))

	run := newTestRun("run-1")
	require.NoError(t, repo.Create(run))

	t.Run("get by id", func(t *testing.T) {
		got, err := repo.GetByID("run-1")
		require.NoError(t, err)
		assert.Equal(t, "spec.pdf", got.FileName)
		assert.Equal(t, models.RunStatusPending, got.Status)
		assert.False(t, got.StartedAt.IsZero(), "创建时应自动设置开始时间")
	})

	t.Run("not found", func(t *testing.T) {
		_, err := repo.GetByID("missing")
		assert.ErrorIs(t, err, models.ErrRunNotFound)
	})

	t.Run("update", func(t *testing.T) {
		run.ChunkCount = 4
		require.NoError(t, repo.Update(run))

		got, err := repo.GetByID("run-1")
		require.NoError(t, err)
		assert.Equal(t, 4, got.ChunkCount)
	})

	t.Run("empty id rejected", func(t *testing.T) {
		assert.Error(t, repo.Create(&models.GenerationRun{}))
	})
}

func TestRunRepositoryUpdateStatus(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))
	require.NoError(t, repo.Create(newTestRun("run-1")))

	require.NoError(t, repo.UpdateStatus("run-1", models.RunStatusGenerating, ""))
	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusGenerating, got.Status)
	assert.Nil(t, got.CompletedAt, "非终态不应设置完成时间")

	// 终态应记录完成时间和错误信息
	require.NoError(t, repo.UpdateStatus("run-1", models.RunStatusFailed, "all chunks failed"))
	got, err = repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, "all chunks failed", got.Error)
	assert.NotNil(t, got.CompletedAt)
}

func TestRunRepositoryUpdateProgress(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))
	require.NoError(t, repo.Create(newTestRun("run-1")))

	require.NoError(t, repo.UpdateProgress("run-1", 60))
	got, err := repo.GetByID("run-1")
	require.NoError(t, err)
	assert.Equal(t, 60, got.Progress)

	// 越界进度应被收紧
	require.NoError(t, repo.UpdateProgress("run-1", 150))
	got, _ = repo.GetByID("run-1")
	assert.Equal(t, 100, got.Progress)
}

func TestRunRepositoryTestCases(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))
	require.NoError(t, repo.Create(newTestRun("run-1")))

	steps, _ := json.Marshal([]string{"open login page", "enter credentials"})
	cases := []*models.TestCaseRecord{
		{CaseID: "doc-1-TC001", Title: "valid login", Steps: steps, ExpectedResult: "user logged in", ChunkIndex: 0},
		{CaseID: "doc-1-TC002", Title: "invalid login", Steps: steps, ExpectedResult: "error shown", ChunkIndex: 1},
	}
	require.NoError(t, repo.SaveTestCases("run-1", cases))

	got, err := repo.GetTestCases("run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-1", got[0].RunID, "批量保存应回填任务ID")
	assert.Equal(t, "doc-1-TC001", got[0].CaseID)

	count, err := repo.CountTestCases("run-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRunRepositorySameCaseIDAcrossRuns(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))
	require.NoError(t, repo.Create(newTestRun("run-a")))
	require.NoError(t, repo.Create(newTestRun("run-b")))

	// 同一文档重复生成时用例ID按序号重新派生，唯一性只在任务内约束
	steps, _ := json.Marshal([]string{"open login page"})
	makeCases := func() []*models.TestCaseRecord {
		return []*models.TestCaseRecord{
			{CaseID: "doc-1-TC001", Title: "valid login", Steps: steps, ExpectedResult: "user logged in"},
		}
	}
	require.NoError(t, repo.SaveTestCases("run-a", makeCases()))
	require.NoError(t, repo.SaveTestCases("run-b", makeCases()), "第二次任务的用例持久化不应因用例ID重复失败")

	got, err := repo.GetTestCases("run-b")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "doc-1-TC001", got[0].CaseID)

	// 任务内仍不允许重复的用例ID
	assert.Error(t, repo.SaveTestCases("run-a", makeCases()))
}

func TestRunRepositoryListAndDelete(t *testing.T) {
	repo := NewRunRepositoryWithDB(setupTestDB(t))

	run1 := newTestRun("run-1")
	run2 := newTestRun("run-2")
	run2.Status = models.RunStatusWritten
	require.NoError(t, repo.Create(run1))
	require.NoError(t, repo.Create(run2))

	t.Run("list all", func(t *testing.T) {
		runs, total, err := repo.List(0, 10, nil)
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		assert.Len(t, runs, 2)
	})

	t.Run("filter by status", func(t *testing.T) {
		runs, total, err := repo.List(0, 10, map[string]interface{}{
			"status": models.RunStatusWritten,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, runs, 1)
		assert.Equal(t, "run-2", runs[0].ID)
	})

	t.Run("delete cascades test cases", func(t *testing.T) {
		steps, _ := json.Marshal([]string{"step"})
		require.NoError(t, repo.SaveTestCases("run-1", []*models.TestCaseRecord{
			{CaseID: "doc-1-TC001", Title: "t", Steps: steps, ExpectedResult: "r"},
		}))

		require.NoError(t, repo.Delete("run-1"))

		_, err := repo.GetByID("run-1")
		assert.ErrorIs(t, err, models.ErrRunNotFound)

		count, err := repo.CountTestCases("run-1")
		require.NoError(t, err)
		assert.Zero(t, count, "删除任务应级联删除测试用例")
	})
}
