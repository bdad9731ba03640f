package document

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filePath), "failed to open markdown file: "+err.Error())
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Markdown内容
// 先用gomarkdown规范化渲染，再剥离标记得到纯文本，标题保留为独立段落
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", NewParseError(ReasonCorrupt, filepath.Base(filename), "failed to read markdown content: "+err.Error())
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(content)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	htmlContent := markdown.Render(doc, renderer)

	text := stripHTML(string(htmlContent))
	if strings.TrimSpace(text) == "" {
		return "", NewParseError(ReasonEmpty, filepath.Base(filename), "no text content found in markdown")
	}
	return text, nil
}

// stripHTML 从渲染后的HTML中提取纯文本
// 块级元素转换为段落边界，其余标签直接移除
func stripHTML(htmlText string) string {
	blockBreaks := []string{
		"</p>", "</h1>", "</h2>", "</h3>", "</h4>", "</h5>", "</h6>",
		"</ul>", "</ol>", "</table>", "</blockquote>", "</pre>",
	}
	for _, tag := range blockBreaks {
		htmlText = strings.ReplaceAll(htmlText, tag, "\n\n")
	}
	htmlText = strings.ReplaceAll(htmlText, "<br>", "\n")
	htmlText = strings.ReplaceAll(htmlText, "<br/>", "\n")
	htmlText = strings.ReplaceAll(htmlText, "<li>", "- ")
	htmlText = strings.ReplaceAll(htmlText, "</li>", "\n")

	// 移除剩余的所有标签
	var result strings.Builder
	inTag := false
	for _, ch := range htmlText {
		switch {
		case ch == '<':
			inTag = true
		case ch == '>':
			inTag = false
		case !inTag:
			result.WriteRune(ch)
		}
	}

	return collapseBlankLines(result.String())
}

// collapseBlankLines 将多个连续空行压缩为一个段落分隔
func collapseBlankLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	var out []string
	blank := true // 吞掉开头的空行
	for _, line := range lines {
		trimmed := strings.TrimRight(line, " \t")
		if strings.TrimSpace(trimmed) == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, trimmed)
		blank = false
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
