package vectordb

import (
	"context"
	"sort"
	"sync"

	"lite-rag-go/internal/config"
)

func init() {
	Register("memory", func(context.Context, config.VectorDBConfig) (Backend, error) { return NewMemory(), nil })
}

type memCollection struct {
	dim     int
	metric  Metric
	records map[string]Record
}

// Memory 是进程内的向量库，精确计算全部距离。用于开发与测试。
type Memory struct {
	mu          sync.RWMutex
	collections map[string]*memCollection
}

// NewMemory 创建一个空的内存向量库。
func NewMemory() *Memory {
	return &Memory{collections: make(map[string]*memCollection)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Describe(_ context.Context, collection string) (CollectionInfo, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return CollectionInfo{}, false, nil
	}
	return CollectionInfo{Dimension: c.dim, Metric: c.metric, Count: int64(len(c.records))}, true, nil
}

func (m *Memory) Create(_ context.Context, collection string, dim int, metric Metric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = &memCollection{dim: dim, metric: metric, records: make(map[string]Record)}
	}
	return nil
}

func (m *Memory) Upsert(_ context.Context, collection string, records []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return errCollectionMissing(collection)
	}
	for _, r := range records {
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		c.records[r.ID] = r
	}
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vector []float32, topK int, metric Metric) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, errCollectionMissing(collection)
	}
	hits := make([]Hit, 0, len(c.records))
	for _, r := range c.records {
		hits = append(hits, Hit{ID: r.ID, Distance: Distance(metric, vector, r.Vector), Payload: r.Payload})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (m *Memory) Drop(_ context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.collections, collection)
	return nil
}

func (m *Memory) Close() error { return nil }
