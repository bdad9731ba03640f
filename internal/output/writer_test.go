package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fyerfyer/testcase-gen-system/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCases() []models.TestCase {
	return []models.TestCase{
		{
			ID:             "doc-1-TC001",
			Title:          "valid login",
			Description:    "verify login with correct credentials",
			Preconditions:  "user account exists",
			Steps:          []string{"open login page", "enter valid credentials", "submit"},
			ExpectedResult: "user is redirected to dashboard",
			ChunkIndex:     0,
			SourceLabel:    "spec.pdf",
		},
		{
			ID:             "doc-1-TC002",
			Title:          "invalid password",
			Steps:          []string{"open login page", "enter wrong password"},
			ExpectedResult: "error message is shown",
			ChunkIndex:     1,
		},
	}
}

func TestJSONWriterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")

	writer, err := NewWriter(path, false)
	require.NoError(t, err)
	assert.Equal(t, "json", writer.Format())

	require.NoError(t, writer.Write(path, sampleCases()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []models.TestCase
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got, 2)
	assert.Equal(t, "doc-1-TC001", got[0].ID)
	assert.Equal(t, []string{"open login page", "enter valid credentials", "submit"}, got[0].Steps)
	assert.Equal(t, 1, got[1].ChunkIndex, "可追溯性字段应写入产物")
}

func TestCSVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.csv")

	writer, err := NewWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, writer.Write(path, sampleCases()))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "表头加两条记录")

	assert.Equal(t, csvHeader, records[0])
	assert.Equal(t, "doc-1-TC001", records[1][0])
	assert.Equal(t, "user is redirected to dashboard", records[1][5])

	// 步骤单元格是JSON数组，可解析回原始的有序步骤
	var steps []string
	require.NoError(t, json.Unmarshal([]byte(records[1][4]), &steps))
	assert.Equal(t, []string{"open login page", "enter valid credentials", "submit"}, steps)
}

func TestCSVWriterStepsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.csv")

	// 步骤自身可以包含换行和形如编号的前缀，不应与步骤边界混淆
	tricky := []string{
		"run the importer\n2. looking output is part of this step",
		"verify the log",
	}
	cases := []models.TestCase{
		{
			ID:             "doc-1-TC001",
			Title:          "importer output",
			Steps:          tricky,
			ExpectedResult: "log contains two entries",
		},
	}

	writer, err := NewWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, writer.Write(path, cases))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	var got []string
	require.NoError(t, json.Unmarshal([]byte(records[1][4]), &got))
	assert.Equal(t, tricky, got, "含换行和编号前缀的步骤应逐项还原")
}

func TestWriterConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cases.json")

	writer, err := NewWriter(path, false)
	require.NoError(t, err)
	require.NoError(t, writer.Write(path, sampleCases()))

	t.Run("refuses silent overwrite", func(t *testing.T) {
		err := writer.Write(path, sampleCases())
		require.Error(t, err)

		ce, ok := IsConflictError(err)
		require.True(t, ok, "已存在的产物应返回ConflictError")
		assert.Equal(t, path, ce.Path)
	})

	t.Run("explicit overwrite allowed", func(t *testing.T) {
		overwriter, err := NewWriter(path, true)
		require.NoError(t, err)
		assert.NoError(t, overwriter.Write(path, sampleCases()[:1]))

		data, _ := os.ReadFile(path)
		var got []models.TestCase
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Len(t, got, 1, "显式覆盖后产物应被替换")
	})
}

func TestNewWriterUnsupportedFormat(t *testing.T) {
	_, err := NewWriter("cases.xlsx", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestDefaultArtifactName(t *testing.T) {
	assert.Equal(t, "spec_test_cases.json", DefaultArtifactName("spec.pdf", "json"))
	assert.Equal(t, "requirements_test_cases.csv", DefaultArtifactName("/tmp/docs/requirements.docx", "csv"))
}

func TestFailureReport(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "spec_test_cases.json")
	path := FailureReportPath(artifact)
	assert.Equal(t, filepath.Join(filepath.Dir(artifact), "spec_test_cases.failures.json"), path)

	report := &FailureReport{
		RunID:    "run-1",
		Document: "spec.pdf",
		Failures: []models.ChunkFailure{
			{ChunkIndex: 3, Reason: models.ReasonModelError, Message: "rate limited", Attempts: 3},
		},
	}
	require.NoError(t, WriteFailureReport(path, report, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got FailureReport
	require.NoError(t, json.Unmarshal(data, &got))
	require.Len(t, got.Failures, 1)
	assert.Equal(t, 3, got.Failures[0].ChunkIndex)
	assert.Equal(t, models.ReasonModelError, got.Failures[0].Reason)
}
