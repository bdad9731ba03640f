package document

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// DOCXParser Word文档解析器
// DOCX本质是包含XML的ZIP包，直接解包word/document.xml提取文本
type DOCXParser struct{}

// NewDOCXParser 创建一个新的DOCX解析器
func NewDOCXParser() Parser {
	return &DOCXParser{}
}

// Parse 解析DOCX文件并提取文本内容
func (p *DOCXParser) Parse(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filePath), "failed to read docx file: "+err.Error())
	}
	return p.extract(data, filepath.Base(filePath))
}

// ParseReader 从Reader解析DOCX内容
func (p *DOCXParser) ParseReader(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filename), "failed to read docx content: "+err.Error())
	}
	return p.extract(data, filepath.Base(filename))
}

// extract 解包DOCX并提取段落文本
// 标题样式的段落单独成段，供分块器识别章节边界
func (p *DOCXParser) extract(data []byte, source string) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", NewParseError(ReasonCorrupt, source, "not a valid docx archive: "+err.Error())
	}

	var docXML []byte
	for _, file := range reader.File {
		if file.Name != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return "", NewParseError(ReasonCorrupt, source, "failed to open document.xml: "+err.Error())
		}
		docXML, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return "", NewParseError(ReasonCorrupt, source, "failed to read document.xml: "+err.Error())
		}
		break
	}

	if docXML == nil {
		return "", NewParseError(ReasonCorrupt, source, "docx archive has no word/document.xml")
	}

	text, err := parseDocumentXML(docXML)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, source, "failed to parse document.xml: "+err.Error())
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", NewParseError(ReasonEmpty, source, "no text content found in docx")
	}
	return text, nil
}

// documentXML word/document.xml的结构
type documentXML struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
	} `xml:"body"`
}

type docxParagraph struct {
	Props struct {
		Style struct {
			Val string `xml:"val,attr"`
		} `xml:"pStyle"`
	} `xml:"pPr"`
	Runs []docxRun `xml:"r"`
}

type docxRun struct {
	Text []docxText `xml:"t"`
}

type docxText struct {
	Content string `xml:",chardata"`
}

// parseDocumentXML 从document.xml中提取段落文本
// 段落之间以空行分隔，与其他解析器输出格式保持一致
func parseDocumentXML(content []byte) (string, error) {
	var doc documentXML
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", err
	}

	var result strings.Builder
	for _, para := range doc.Body.Paragraphs {
		var line strings.Builder
		for _, run := range para.Runs {
			for _, text := range run.Text {
				line.WriteString(text.Content)
			}
		}

		paraText := strings.TrimSpace(line.String())
		if paraText == "" {
			continue
		}

		// 标题样式的段落去掉句末标点，分块器据此识别章节标题
		if isHeadingStyle(para.Props.Style.Val) {
			paraText = strings.TrimRight(paraText, ".:;,")
		}

		if result.Len() > 0 {
			result.WriteString("\n\n")
		}
		result.WriteString(paraText)
	}

	return result.String(), nil
}

// isHeadingStyle 判断段落样式是否为Word标题样式
func isHeadingStyle(style string) bool {
	return strings.HasPrefix(style, "Heading") || strings.HasPrefix(style, "heading")
}
