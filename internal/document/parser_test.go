package document

import (
	"archive/zip"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content, ext string) string {
	tmpFile, err := os.CreateTemp(t.TempDir(), "testgen-*"+ext)
	require.NoError(t, err, "创建临时文件失败")

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err, "写入临时文件失败")
	tmpFile.Close()
	return tmpFile.Name()
}

func createTempPDF(t *testing.T, text string) string {
	tmpFile, err := os.CreateTemp(t.TempDir(), "testgen-*.pdf")
	require.NoError(t, err, "创建临时PDF文件失败")
	defer tmpFile.Close()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "", 12)
	pdf.MultiCell(0, 10, text, "", "", false)
	require.NoError(t, pdf.Output(tmpFile), "生成PDF失败")
	return tmpFile.Name()
}

// createTempPDFPages 生成多页PDF，每页写入对应的一段文本
func createTempPDFPages(t *testing.T, pages []string) string {
	tmpFile, err := os.CreateTemp(t.TempDir(), "testgen-*.pdf")
	require.NoError(t, err, "创建临时PDF文件失败")
	defer tmpFile.Close()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	for _, text := range pages {
		pdf.AddPage()
		pdf.MultiCell(0, 10, text, "", "", false)
	}
	require.NoError(t, pdf.Output(tmpFile), "生成PDF失败")
	return tmpFile.Name()
}

// createEncryptedPDF 生成一个带用户口令的加密PDF
func createEncryptedPDF(t *testing.T, text string) string {
	plain := createTempPDF(t, text)
	encrypted := filepath.Join(t.TempDir(), "encrypted.pdf")

	conf := model.NewAESConfiguration("user", "owner", 256)
	require.NoError(t, api.EncryptFile(plain, encrypted, conf), "加密PDF失败")
	return encrypted
}

// createTempDOCX 手工构造一个最小的DOCX包用于测试
func createTempDOCX(t *testing.T, paragraphs []string) string {
	path := filepath.Join(t.TempDir(), "testgen.docx")
	file, err := os.Create(path)
	require.NoError(t, err, "创建临时DOCX文件失败")
	defer file.Close()

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>`)
		body.WriteString(p)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	zw := zip.NewWriter(file)
	entry, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = entry.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close(), "写入DOCX压缩包失败")
	return path
}

// styledPara 带段落样式的DOCX测试段落，style为空表示正文
type styledPara struct {
	style string
	text  string
}

// createStyledDOCX 构造带pStyle段落样式的DOCX包
func createStyledDOCX(t *testing.T, paragraphs []styledPara) string {
	path := filepath.Join(t.TempDir(), "testgen-styled.docx")
	file, err := os.Create(path)
	require.NoError(t, err, "创建临时DOCX文件失败")
	defer file.Close()

	var body strings.Builder
	body.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	body.WriteString(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`)
	for _, p := range paragraphs {
		body.WriteString(`<w:p>`)
		if p.style != "" {
			body.WriteString(`<w:pPr><w:pStyle w:val="` + p.style + `"/></w:pPr>`)
		}
		body.WriteString(`<w:r><w:t>`)
		body.WriteString(p.text)
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	body.WriteString(`</w:body></w:document>`)

	zw := zip.NewWriter(file)
	entry, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = entry.Write([]byte(body.String()))
	require.NoError(t, err)
	require.NoError(t, zw.Close(), "写入DOCX压缩包失败")
	return path
}

func TestPlainTextParser(t *testing.T) {
	content := "The system shall accept uploads.\r\n\r\n\r\nSecond requirement here."
	file := createTempFile(t, content, ".txt")

	parser := NewPlainTextParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)

	assert.Contains(t, text, "accept uploads")
	assert.NotContains(t, text, "\r", "换行符应被规范化")
	assert.NotContains(t, text, "\n\n\n", "连续空行应被压缩")
}

func TestMarkdownParser(t *testing.T) {
	content := "# Login Requirements\n\nUsers must **authenticate** before access.\n\n- Password rule\n- Lockout rule"
	file := createTempFile(t, content, ".md")

	parser := NewMarkdownParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)

	assert.Contains(t, text, "Login Requirements")
	assert.Contains(t, text, "authenticate")
	assert.Contains(t, text, "Password rule")
	assert.NotContains(t, text, "<", "解析结果不应包含HTML标签")
	assert.NotContains(t, text, "**", "解析结果不应包含Markdown标记")
}

func TestPDFParser(t *testing.T) {
	content := "Requirement one about session timeout.\nRequirement two about audit logging."
	file := createTempPDF(t, content)

	parser := NewPDFParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)
	assert.Contains(t, text, "session timeout")
}

func TestPDFParserPageOrder(t *testing.T) {
	// 超过10页时文件名按字典序会把第10页排到第2页之前
	pages := make([]string, 12)
	for i := range pages {
		pages[i] = fmt.Sprintf("ORDERTOKEN%04d content of this page.", i+1)
	}
	file := createTempPDFPages(t, pages)

	parser := NewPDFParser()
	text, err := parser.Parse(file)
	require.NoError(t, err)

	prev := -1
	for i := range pages {
		marker := fmt.Sprintf("ORDERTOKEN%04d", i+1)
		pos := strings.Index(text, marker)
		require.GreaterOrEqual(t, pos, 0, "第%d页的文本缺失", i+1)
		assert.Greater(t, pos, prev, "第%d页的文本顺序错误", i+1)
		prev = pos
	}
}

func TestPDFParserEncryptedFile(t *testing.T) {
	file := createEncryptedPDF(t, "Confidential requirement text.")

	parser := NewPDFParser()
	_, err := parser.Parse(file)
	require.Error(t, err)

	pe, ok := IsParseError(err)
	require.True(t, ok, "应返回ParseError类型")
	assert.Equal(t, ReasonEncrypted, pe.Reason)
}

func TestPDFParserCorruptFile(t *testing.T) {
	file := createTempFile(t, "this is not a pdf at all", ".pdf")

	parser := NewPDFParser()
	_, err := parser.Parse(file)
	require.Error(t, err)

	pe, ok := IsParseError(err)
	require.True(t, ok, "应返回ParseError类型")
	assert.Equal(t, ReasonCorrupt, pe.Reason)
}

func TestDOCXParser(t *testing.T) {
	t.Run("basic extraction", func(t *testing.T) {
		file := createTempDOCX(t, []string{
			"Password Policy",
			"Passwords must contain at least 8 characters.",
			"Accounts lock after 5 failed attempts.",
		})

		parser := NewDOCXParser()
		text, err := parser.Parse(file)
		require.NoError(t, err)

		assert.Contains(t, text, "Password Policy")
		assert.Contains(t, text, "8 characters")
		assert.Contains(t, text, "\n\n", "段落之间应有空行分隔")
	})

	t.Run("heading style drops trailing punctuation", func(t *testing.T) {
		file := createStyledDOCX(t, []styledPara{
			{style: "Heading1", text: "Authentication Requirements."},
			{style: "", text: "Sessions expire after 30 minutes."},
		})

		parser := NewDOCXParser()
		text, err := parser.Parse(file)
		require.NoError(t, err)

		assert.Contains(t, text, "Authentication Requirements\n\n", "标题段落应去掉句末标点")
		assert.NotContains(t, text, "Authentication Requirements.")
		assert.Contains(t, text, "Sessions expire after 30 minutes.", "正文段落应保留标点")
	})

	t.Run("corrupt archive", func(t *testing.T) {
		file := createTempFile(t, "not a zip archive", ".docx")

		parser := NewDOCXParser()
		_, err := parser.Parse(file)
		require.Error(t, err)

		pe, ok := IsParseError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonCorrupt, pe.Reason)
	})

	t.Run("empty document", func(t *testing.T) {
		file := createTempDOCX(t, nil)

		parser := NewDOCXParser()
		_, err := parser.Parse(file)
		require.Error(t, err)

		pe, ok := IsParseError(err)
		require.True(t, ok)
		assert.Equal(t, ReasonEmpty, pe.Reason)
	})
}

func TestParseReader(t *testing.T) {
	parser := NewPlainTextParser()
	text, err := parser.ParseReader(strings.NewReader("streamed requirement text"), "upload.txt")
	require.NoError(t, err)
	assert.Contains(t, text, "streamed requirement")
}

func TestParserFactory(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		expected string
	}{
		{"txt", createTempFile(t, "plain requirement text", ".txt"), "plain requirement"},
		{"markdown", createTempFile(t, "# Spec Heading", ".md"), "Spec Heading"},
		{"pdf", createTempPDF(t, "PDF requirement content"), "PDF requirement"},
		{"docx", createTempDOCX(t, []string{"DOCX requirement content"}), "DOCX requirement"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser, err := ParserFactory(tt.file)
			require.NoError(t, err)

			text, err := parser.Parse(tt.file)
			require.NoError(t, err)
			assert.Contains(t, text, tt.expected)
		})
	}
}

func TestParserFactoryUnsupported(t *testing.T) {
	_, err := ParserFactory("spreadsheet.xlsx")
	require.Error(t, err)

	pe, ok := IsParseError(err)
	require.True(t, ok, "不支持的格式应返回ParseError")
	assert.Equal(t, ReasonUnsupported, pe.Reason)
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		file     string
		expected ContentType
	}{
		{"doc.pdf", PDF},
		{"doc.PDF", PDF},
		{"doc.docx", DOCX},
		{"doc.md", Markdown},
		{"doc.markdown", Markdown},
		{"doc.txt", PlainText},
		{"doc.exe", Unknown},
		{"noext", Unknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, DetectContentType(tt.file), "文件 %s 的类型检测错误", tt.file)
	}
}
