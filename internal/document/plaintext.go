package document

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// PlainTextParser 纯文本文档解析器
type PlainTextParser struct{}

// NewPlainTextParser 创建一个新的纯文本解析器
func NewPlainTextParser() Parser {
	return &PlainTextParser{}
}

// Parse 读取纯文本文件内容
func (p *PlainTextParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filePath), "failed to open text file: "+err.Error())
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader读取纯文本内容
// 统一换行符并压缩空行，保证各解析器输出格式一致
func (p *PlainTextParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filename), "failed to read text content: "+err.Error())
	}

	text := collapseBlankLines(string(content))
	if strings.TrimSpace(text) == "" {
		return "", NewParseError(ReasonEmpty, filepath.Base(filename), "no text content found in file")
	}
	return text, nil
}
