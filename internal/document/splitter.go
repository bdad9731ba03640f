package document

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Chunk 文本分块
// Start/End是相对于规范化文本的偏移量，所有分块的[Start, End)区间
// 首尾相接，拼接后可完整还原规范化文本；Overlap为Text中来自上一个
// 分块的前缀字符数，核心内容为Text[Overlap:]
type Chunk struct {
	Index     int    // 分块序号，从0开始
	Text      string // 分块文本（含重叠前缀）
	Start     int    // 核心内容在规范化文本中的起始偏移
	End       int    // 核心内容在规范化文本中的结束偏移
	Tokens    int    // 分块token数（含重叠前缀）
	Overlap   int    // 重叠前缀的字符长度
	Section   string // 所属章节标签（可选）
	Truncated bool   // 是否因单句超出预算被强制切断
}

// TokenSplitter 基于token预算的文本分块器
// 贪心累积段落直到预算耗尽，超长段落在句子边界切分
type TokenSplitter struct {
	maxTokens     int
	overlapTokens int
	logger        *logrus.Logger
}

// SplitterOption 分块器配置选项
type SplitterOption func(*TokenSplitter)

// WithMaxTokens 设置单个分块的最大token数
func WithMaxTokens(max int) SplitterOption {
	return func(s *TokenSplitter) {
		if max > 0 {
			s.maxTokens = max
		}
	}
}

// WithOverlapTokens 设置相邻分块之间的重叠token数
func WithOverlapTokens(overlap int) SplitterOption {
	return func(s *TokenSplitter) {
		if overlap >= 0 {
			s.overlapTokens = overlap
		}
	}
}

// WithSplitterLogger 设置分块器的日志器
func WithSplitterLogger(logger *logrus.Logger) SplitterOption {
	return func(s *TokenSplitter) {
		s.logger = logger
	}
}

// NewTokenSplitter 创建新的分块器
// 重叠上限为预算的10%，防止相邻分块之间的内容无限重复
func NewTokenSplitter(opts ...SplitterOption) *TokenSplitter {
	s := &TokenSplitter{
		maxTokens:     500,
		overlapTokens: 50,
	}

	for _, opt := range opts {
		opt(s)
	}

	if limit := s.maxTokens / 10; s.overlapTokens > limit {
		s.overlapTokens = limit
	}
	return s
}

// Normalize 规范化文本换行符
// 分块偏移量以规范化后的文本为准
func Normalize(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

// CountTokens 估算文本的token数
// 采用空白分词的近似估算，不依赖具体模型的tokenizer
func CountTokens(text string) int {
	return len(strings.Fields(text))
}

// span 规范化文本中的一个半开区间
type span struct {
	start int
	end   int
}

// Split 将文本分割成分块序列
// 空文本返回零个分块，由调用方决定如何处理无内容的文档
func (s *TokenSplitter) Split(text string) ([]Chunk, error) {
	normalized := Normalize(text)
	if strings.TrimSpace(normalized) == "" {
		return nil, nil
	}

	units := splitUnits(normalized)

	// 将超出预算的段落进一步切分为句子粒度的单元
	var fitted []span
	for _, u := range units {
		if CountTokens(normalized[u.start:u.end]) <= s.maxTokens {
			fitted = append(fitted, u)
			continue
		}
		fitted = append(fitted, splitSentences(normalized, u)...)
	}

	chunks := s.pack(normalized, fitted)
	return chunks, nil
}

// pack 贪心地把单元打包为分块，并附加重叠前缀和章节标签
func (s *TokenSplitter) pack(text string, units []span) []Chunk {
	var chunks []Chunk
	var section string

	cur := span{start: -1}
	curTokens := 0
	truncated := false

	flush := func() {
		if cur.start < 0 {
			return
		}
		chunk := s.buildChunk(text, cur, len(chunks), section, truncated)
		chunks = append(chunks, chunk)
		cur = span{start: -1}
		curTokens = 0
		truncated = false
	}

	// 非首块的有效容量要为重叠前缀预留空间
	capacityFor := func() int {
		if len(chunks) == 0 {
			return s.maxTokens
		}
		return s.maxTokens - s.overlapTokens
	}
	// 硬切片段后续会追加重叠前缀，预算统一预留重叠空间
	hardBudget := s.maxTokens - s.overlapTokens

	for _, u := range units {
		unitText := text[u.start:u.end]
		unitTokens := CountTokens(unitText)

		if label, ok := sectionLabel(unitText); ok {
			section = label
		}

		// 句子切分后仍超出预算的单元，按词边界硬切
		if unitTokens > capacityFor() && cur.start < 0 {
			for _, piece := range hardSplit(text, u, hardBudget) {
				cur = piece
				curTokens = CountTokens(text[piece.start:piece.end])
				truncated = true
				if s.logger != nil {
					s.logger.WithFields(logrus.Fields{
						"tokens": unitTokens,
						"budget": s.maxTokens,
					}).Warn("oversized sentence split mid-sentence to honor chunk budget")
				}
				flush()
			}
			continue
		}

		if cur.start >= 0 && curTokens+unitTokens > capacityFor() {
			flush()
			// flush后重新检查，超长单元走硬切分支
			if unitTokens > capacityFor() {
				for _, piece := range hardSplit(text, u, hardBudget) {
					cur = piece
					curTokens = CountTokens(text[piece.start:piece.end])
					truncated = true
					flush()
				}
				continue
			}
		}

		if cur.start < 0 {
			cur = u
		} else {
			cur.end = u.end
		}
		curTokens += unitTokens
	}
	flush()

	return chunks
}

// buildChunk 根据区间构造分块，非首块带上一个分块的重叠前缀
func (s *TokenSplitter) buildChunk(text string, core span, index int, section string, truncated bool) Chunk {
	coreText := text[core.start:core.end]

	overlap := ""
	if index > 0 && s.overlapTokens > 0 {
		prevEnd := core.start
		overlap = tailTokens(text[:prevEnd], s.overlapTokens)
		if overlap != "" {
			overlap += "\n"
		}
	}

	full := overlap + coreText
	return Chunk{
		Index:     index,
		Text:      full,
		Start:     core.start,
		End:       core.end,
		Tokens:    CountTokens(full),
		Overlap:   len(overlap),
		Section:   section,
		Truncated: truncated,
	}
}

// splitUnits 将文本按段落边界切分为首尾相接的区间
// 每个区间携带其后的空行分隔符，保证区间并集覆盖整个文本
func splitUnits(text string) []span {
	var units []span
	pos := 0
	for pos < len(text) {
		idx := strings.Index(text[pos:], "\n\n")
		if idx < 0 {
			units = append(units, span{start: pos, end: len(text)})
			break
		}
		end := pos + idx
		// 把连续的空行并入当前单元
		for end < len(text) && text[end] == '\n' {
			end++
		}
		units = append(units, span{start: pos, end: end})
		pos = end
	}
	return units
}

// splitSentences 在句子边界处切分超长段落，结果区间首尾相接
func splitSentences(text string, u span) []span {
	var parts []span
	start := u.start
	for i := u.start; i < u.end; i++ {
		if !isSentenceEnd(text, i, u.end) {
			continue
		}
		end := i + 1
		// 把句末之后的空白并入当前句子
		for end < u.end && (text[end] == ' ' || text[end] == '\n' || text[end] == '\t') {
			end++
		}
		parts = append(parts, span{start: start, end: end})
		start = end
		i = end - 1
	}
	if start < u.end {
		parts = append(parts, span{start: start, end: u.end})
	}
	return parts
}

// isSentenceEnd 判断位置i是否为句子结束符
func isSentenceEnd(text string, i, limit int) bool {
	switch text[i] {
	case '.', '!', '?', ';':
		return i+1 >= limit || text[i+1] == ' ' || text[i+1] == '\n' || text[i+1] == '\t'
	}
	return false
}

// hardSplit 按词边界把区间硬切成不超过预算的片段
func hardSplit(text string, u span, budget int) []span {
	if budget < 1 {
		budget = 1
	}

	var parts []span
	start := u.start
	count := 0
	i := u.start
	for i < u.end {
		// 跳过空白
		for i < u.end && isSpace(text[i]) {
			i++
		}
		if i >= u.end {
			break
		}
		// 吞下一个词
		for i < u.end && !isSpace(text[i]) {
			i++
		}
		count++
		if count >= budget {
			// 把词后的空白并入当前片段
			for i < u.end && isSpace(text[i]) {
				i++
			}
			parts = append(parts, span{start: start, end: i})
			start = i
			count = 0
		}
	}
	if start < u.end {
		parts = append(parts, span{start: start, end: u.end})
	}
	return parts
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t'
}

// tailTokens 取文本末尾n个token，保留原始间隔
func tailTokens(text string, n int) string {
	if n <= 0 {
		return ""
	}

	trimmed := strings.TrimRight(text, " \n\t")
	end := len(trimmed)
	count := 0
	i := end
	for i > 0 && count < n {
		// 回退跳过空白
		for i > 0 && isSpace(trimmed[i-1]) {
			i--
		}
		// 回退跳过一个词
		for i > 0 && !isSpace(trimmed[i-1]) {
			i--
		}
		count++
	}
	return trimmed[i:end]
}

// sectionLabel 判断单元是否是章节标题
// 启发式规则：单行、不超过12个词、不以句末标点结尾
func sectionLabel(unitText string) (string, bool) {
	trimmed := strings.TrimSpace(unitText)
	if trimmed == "" || strings.Contains(trimmed, "\n") {
		return "", false
	}
	if len(strings.Fields(trimmed)) > 12 {
		return "", false
	}
	last := trimmed[len(trimmed)-1]
	if last == '.' || last == ',' || last == ';' || last == '!' || last == '?' {
		return "", false
	}
	return trimmed, true
}
