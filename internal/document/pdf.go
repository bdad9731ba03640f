package document

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDFParser PDF文档解析器
type PDFParser struct{}

// NewPDFParser 创建一个新的PDF解析器
func NewPDFParser() Parser {
	return &PDFParser{}
}

// Parse 解析PDF文件并提取其文本内容
// 加密或损坏的文件返回带原因代码的ParseError，而不是底层库错误
func (p *PDFParser) Parse(filePath string) (string, error) {
	source := filepath.Base(filePath)

	// 创建临时目录用于存放提取的文本
	tmpDir, err := os.MkdirTemp("", "testgen_pdf_extract_")
	if err != nil {
		return "", NewParseError(ReasonCorrupt, source, "failed to create temp dir: "+err.Error())
	}
	defer os.RemoveAll(tmpDir)

	// 使用默认配置提取文本到临时目录
	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(filePath, tmpDir, nil, conf); err != nil {
		return "", classifyPDFError(source, err)
	}

	// 读取所有提取出来的txt文件
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, source, "failed to read extracted text dir: "+err.Error())
	}

	// 按页码数值排序，字典序会把第10页排在第2页之前
	sort.Slice(entries, func(i, j int) bool {
		pi, pj := pageNumber(entries[i].Name()), pageNumber(entries[j].Name())
		if pi != pj {
			return pi < pj
		}
		return entries[i].Name() < entries[j].Name()
	})

	var allText strings.Builder
	for _, f := range entries {
		if !strings.HasSuffix(f.Name(), ".txt") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(tmpDir, f.Name()))
		if err != nil {
			continue
		}
		if allText.Len() > 0 {
			allText.WriteString("\n\n")
		}
		allText.WriteString(string(data))
	}

	result := strings.TrimSpace(allText.String())
	if result == "" {
		return "", NewParseError(ReasonEmpty, source, "no text content found in PDF")
	}
	return result, nil
}

// ParseReader 从Reader解析PDF内容
// pdfcpu需要可寻址的文件输入，先落盘到临时文件再解析
func (p *PDFParser) ParseReader(r io.Reader, filename string) (string, error) {
	tmpFile, err := os.CreateTemp("", "testgen_pdf_*.pdf")
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filename), "failed to create temp file: "+err.Error())
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return "", NewParseError(ReasonCorrupt, filepath.Base(filename), "failed to buffer PDF content: "+err.Error())
	}
	tmpFile.Close()

	return p.Parse(tmpFile.Name())
}

// pagePattern 匹配提取文件名末尾的页码
var pagePattern = regexp.MustCompile(`(\d+)\.txt$`)

// pageNumber 从提取出的文本文件名中解析页码，无页码时返回0
func pageNumber(name string) int {
	m := pagePattern.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// classifyPDFError 将pdfcpu错误归类为解析错误原因
func classifyPDFError(source string, err error) *ParseError {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
		return NewParseError(ReasonEncrypted, source, "PDF is encrypted")
	}
	return NewParseError(ReasonCorrupt, source, "failed to extract text from PDF: "+err.Error())
}
