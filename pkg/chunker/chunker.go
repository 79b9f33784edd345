// Package chunker 把长文本切分成带重叠的、顺序稳定的文本块。
// 切分是纯函数：不做 I/O，相同输入总是得到相同输出。
package chunker

import (
	"unicode/utf8"

	"lite-rag-go/pkg/errs"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	// 使用内嵌的 BPE 词表，token 模式不依赖网络
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// Unit 表示切分时计量长度的单位。
type Unit string

const (
	// UnitRune 按 Unicode 码点计数。
	UnitRune Unit = "rune"
	// UnitToken 按 BPE token 计数。
	UnitToken Unit = "token"
)

// 每个块的元数据里都会写入它在源文本中的位置（以 Unit 计）。
const (
	MetaStartOffset = "start_offset"
	MetaEndOffset   = "end_offset"
)

// Chunk 是一个可检索的文本单元。
type Chunk struct {
	ProjectID string         `json:"project_id"`
	FileID    string         `json:"file_id"`
	Order     int            `json:"order"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata"`
}

// Document 是待切分的一份源文本。
type Document struct {
	ProjectID string
	FileID    string
	Text      string
	Metadata  map[string]any
}

// Splitter 按配置的单位切分文本。零值按码点切分。
type Splitter struct {
	unit Unit
	enc  *tiktoken.Tiktoken
}

// New 创建一个 Splitter。unit 为 token 时 encoding 指定 tiktoken 编码名（如 cl100k_base）。
func New(unit Unit, encoding string) (*Splitter, error) {
	switch unit {
	case "", UnitRune:
		return &Splitter{unit: UnitRune}, nil
	case UnitToken:
		enc, err := tiktoken.GetEncoding(encoding)
		if err != nil {
			return nil, errs.InvalidParameter("chunker.New", "无法加载 tiktoken 编码 %q: %v", encoding, err)
		}
		return &Splitter{unit: UnitToken, enc: enc}, nil
	default:
		return nil, errs.InvalidParameter("chunker.New", "未知的切分单位 %q", unit)
	}
}

// Unit 返回切分单位。
func (s *Splitter) Unit() Unit {
	if s == nil || s.unit == "" {
		return UnitRune
	}
	return s.unit
}

// Split 按码点切分文本，等价于零值 Splitter 的 Split。
func Split(text string, chunkSize, chunkOverlap int, metadata map[string]any) ([]Chunk, error) {
	return (&Splitter{}).Split(text, chunkSize, chunkOverlap, metadata)
}

// Split 将 text 切成长度为 chunkSize、相邻块重叠 chunkOverlap 个单位的块。
// 除第一个块外，每个块的起点比上一个块晚 chunkSize-chunkOverlap 个单位；最后一块截断到文本末尾。
func (s *Splitter) Split(text string, chunkSize, chunkOverlap int, metadata map[string]any) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, errs.InvalidParameter("chunker.Split", "chunk_size 必须为正数, 当前为 %d", chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, errs.InvalidParameter("chunker.Split", "chunk_overlap 不能为负数, 当前为 %d", chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, errs.InvalidParameter("chunker.Split", "chunk_overlap (%d) 必须小于 chunk_size (%d)", chunkOverlap, chunkSize)
	}

	if s.Unit() == UnitToken {
		return s.splitTokens(text, chunkSize, chunkOverlap, metadata), nil
	}

	runes := []rune(text)
	return window(len(runes), chunkSize, chunkOverlap, metadata, func(start, end int) string {
		return string(runes[start:end])
	}, nil), nil
}

// splitTokens 按 token 切分。字节级 BPE 会把一个多字节字符拆成多个 token，
// 块边界落在字符中间时，起点向前、终点向后对齐到最近的完整字符。
func (s *Splitter) splitTokens(text string, chunkSize, chunkOverlap int, metadata map[string]any) []Chunk {
	tokens := s.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}

	// offsets[k] 是前 k 个 token 解码后的字节数
	offsets := make([]int, len(tokens)+1)
	var buf []byte
	for i, tok := range tokens {
		buf = append(buf, s.enc.Decode([]int{tok})...)
		offsets[i+1] = len(buf)
	}
	boundary := func(k int) bool {
		return k == 0 || k == len(tokens) || utf8.RuneStart(buf[offsets[k]])
	}

	align := func(pos int, forward bool) int {
		for !boundary(pos) {
			if forward {
				pos++
			} else {
				pos--
			}
		}
		return pos
	}
	return window(len(tokens), chunkSize, chunkOverlap, metadata, func(start, end int) string {
		return string(buf[offsets[start]:offsets[end]])
	}, align)
}

// SplitDocument 切分一份文档，并把项目与文件标识写入每个块。
func (s *Splitter) SplitDocument(doc Document, chunkSize, chunkOverlap int) ([]Chunk, error) {
	chunks, err := s.Split(doc.Text, chunkSize, chunkOverlap, doc.Metadata)
	if err != nil {
		return nil, err
	}
	for i := range chunks {
		chunks[i].ProjectID = doc.ProjectID
		chunks[i].FileID = doc.FileID
	}
	return chunks, nil
}

// window 生成定长滑动窗口。align 不为 nil 时用于把窗口边界对齐到合法位置：
// 起点向前对齐、终点向后对齐，因此对齐后的窗口只会变大。
func window(length, chunkSize, chunkOverlap int, metadata map[string]any, slice func(start, end int) string, align func(pos int, forward bool) int) []Chunk {
	if length == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	var chunks []Chunk
	prevStart, prevEnd := -1, -1
	for i := 0; i < length; i += step {
		start, end := i, i+chunkSize
		if end > length {
			end = length
		}
		if align != nil {
			start, end = align(start, false), align(end, true)
		}
		if start == prevStart && end == prevEnd {
			continue
		}
		prevStart, prevEnd = start, end
		chunks = append(chunks, Chunk{
			Order:    len(chunks),
			Content:  slice(start, end),
			Metadata: mergeMetadata(metadata, start, end),
		})
		if end == length {
			break
		}
	}
	return chunks
}

// mergeMetadata 为每个块复制一份元数据，避免块之间共享同一个 map。
func mergeMetadata(base map[string]any, start, end int) map[string]any {
	m := make(map[string]any, len(base)+2)
	for k, v := range base {
		m[k] = v
	}
	m[MetaStartOffset] = start
	m[MetaEndOffset] = end
	return m
}
