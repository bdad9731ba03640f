package generator

import (
	"github.com/fyerfyer/testcase-gen-system/internal/models"
)

// Merger 测试用例合并器
// 按分块顺序拼接各分块的结果，去除重叠导致的重复用例，
// 最后统一分配连续的用例ID
type Merger struct{}

// NewMerger 创建新的合并器
func NewMerger() *Merger {
	return &Merger{}
}

// Merge 合并各分块的生成结果
// resultsByChunk以分块索引为下标，失败的分块对应nil切片；
// 相同输入的合并结果是确定的：先出现的用例保留，重复的丢弃
func (m *Merger) Merge(documentID string, resultsByChunk [][]models.TestCase) []models.TestCase {
	var merged []models.TestCase
	seen := make(map[string]struct{})

	for _, chunkCases := range resultsByChunk {
		for _, tc := range chunkCases {
			key := tc.DedupKey()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, tc)
		}
	}

	// 去重后统一分配ID，保证整个任务内ID连续且唯一
	for i := range merged {
		merged[i].AssignID(documentID, i+1)
	}

	return merged
}
