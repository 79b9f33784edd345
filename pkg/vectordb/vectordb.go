// Package vectordb 定义了与具体向量库无关的存储抽象，以及在其之上的嵌入 + 检索网关。
// 每个项目对应一个独立的集合，集合名由 CollectionName 从项目 ID 确定性地导出。
package vectordb

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"lite-rag-go/internal/config"
)

// Metric 是集合的距离度量。
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricDot       Metric = "dot"
	MetricEuclidean Metric = "euclidean"
	MetricManhattan Metric = "manhattan"
)

// ParseMetric 校验并返回度量名。
func ParseMetric(s string) (Metric, error) {
	switch m := Metric(s); m {
	case MetricCosine, MetricDot, MetricEuclidean, MetricManhattan:
		return m, nil
	case "":
		return MetricCosine, nil
	default:
		return "", fmt.Errorf("unknown distance metric: %q", s)
	}
}

// Payload 是向量记录指回原始文本块的信息。
type Payload struct {
	ProjectID string         `json:"project_id"`
	FileID    string         `json:"file_id"`
	Order     int            `json:"chunk_order"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Record 是写入向量库的一条记录，向量与载荷总是一起写入。
type Record struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Hit 是后端返回的一条近邻结果。
// Distance 统一为“越小越相似”的规范距离：
//   - cosine:    1 - cos(a, b)
//   - dot:       -dot(a, b)
//   - euclidean: L2 距离
//   - manhattan: L1 距离
type Hit struct {
	ID       string
	Distance float64
	Payload  Payload
}

// CollectionInfo 描述一个已存在的集合。
type CollectionInfo struct {
	Dimension int
	Metric    Metric
	Count     int64
}

// Backend 是一个具体向量库的适配。所有方法都可能阻塞在外部 I/O 上。
type Backend interface {
	Name() string
	// Describe 返回集合信息；集合不存在时 exists 为 false 且 err 为 nil。
	Describe(ctx context.Context, collection string) (info CollectionInfo, exists bool, err error)
	// Create 创建集合。度量不受支持时返回 InvalidParameter。
	Create(ctx context.Context, collection string, dim int, metric Metric) error
	// Upsert 按 ID 写入或覆盖记录，返回后记录即可被检索到。
	Upsert(ctx context.Context, collection string, records []Record) error
	// Search 返回按规范距离升序排列的至多 topK 条结果。
	Search(ctx context.Context, collection string, vector []float32, topK int, metric Metric) ([]Hit, error)
	// Drop 删除集合，集合不存在时不报错。
	Drop(ctx context.Context, collection string) error
	Close() error
}

// Factory 根据配置创建一个后端实例。
type Factory func(ctx context.Context, cfg config.VectorDBConfig) (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register 注册一个向量库后端工厂。
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Providers 列出所有已注册的后端名称。
func Providers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewBackend 按名称创建后端，启动时调用一次。
func NewBackend(ctx context.Context, cfg config.VectorDBConfig) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Provider]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown vectordb provider: %s", cfg.Provider)
	}
	return factory(ctx, cfg)
}

// Similarity 把规范距离换算为“越大越相似”的分数：
//   - cosine:              1 - d（即余弦相似度）
//   - dot:                 -d（即内积）
//   - euclidean/manhattan: 1 / (1 + d)
func Similarity(metric Metric, distance float64) float64 {
	switch metric {
	case MetricCosine:
		return 1 - distance
	case MetricDot:
		return -distance
	default:
		return 1 / (1 + distance)
	}
}

// Distance 计算两个向量间的规范距离。
func Distance(metric Metric, a, b []float32) float64 {
	switch metric {
	case MetricCosine:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	case MetricDot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return -dot
	case MetricManhattan:
		var sum float64
		for i := range a {
			sum += math.Abs(float64(a[i]) - float64(b[i]))
		}
		return sum
	default:
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	}
}
