package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"lite-rag-go/internal/config"
)

func init() {
	Register("hashing", func(cfg config.EmbeddingConfig) (Client, error) { return NewHashing(cfg.Dimensions) })
}

// Hashing 是本地的特征哈希词袋嵌入：不依赖外部服务，结果确定且经过 L2 归一化。
// 适合离线开发与测试，语义能力有限。
type Hashing struct {
	dim int
}

// NewHashing 创建指定维度的哈希嵌入器。
func NewHashing(dim int) (*Hashing, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("hashing embedding: dimension must be positive, got %d", dim)
	}
	return &Hashing{dim: dim}, nil
}

func (h *Hashing) Name() string   { return "hashing" }
func (h *Hashing) Dimension() int { return h.dim }

func (h *Hashing) Embed(ctx context.Context, texts []string, _ InputType) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *Hashing) vector(text string) []float32 {
	v := make([]float64, h.dim)
	for _, tok := range tokenize(text) {
		hs := fnv.New64a()
		_, _ = hs.Write([]byte(tok))
		sum := hs.Sum64()
		bucket := int(sum % uint64(h.dim))
		// 最高位决定符号，降低哈希碰撞带来的偏差
		if sum>>63 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	out := make([]float32, h.dim)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
