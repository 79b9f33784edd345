package vectordb

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/chunker"
	"lite-rag-go/pkg/embedding"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/resilience"

	"github.com/panjf2000/ants/v2"
)

// Match 是一条检索结果，Score 越大越相似，与底层度量无关。
type Match struct {
	ProjectID string         `json:"project_id"`
	FileID    string         `json:"file_id"`
	Order     int            `json:"chunk_order"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score"`
}

// IndexInfo 描述项目的向量集合。
type IndexInfo struct {
	Collection  string `json:"collection"`
	Dimension   int    `json:"dimension"`
	Metric      Metric `json:"metric"`
	VectorCount int64  `json:"vector_count"`
}

// IndexResult 是一次索引的结果。
type IndexResult struct {
	Collection string `json:"collection"`
	Indexed    int    `json:"indexed"`
}

// Gateway 负责把文本块嵌入并写入项目集合，以及按相似度检索。
//
// 同一项目上的 Index 持有写锁、Query 持有读锁，因此 reset 的“删除再重建再写入”
// 对查询来说是原子的：查询要么看到旧的完整集合，要么看到新的完整集合。
// 嵌入计算在加锁之前完成，不会长时间阻塞查询。
type Gateway struct {
	backend   Backend
	embedder  embedding.Client
	dim       int
	metric    Metric
	batchSize int
	timeout   time.Duration
	retry     resilience.RetryConfig
	pool      *ants.Pool

	locksMu sync.Mutex
	locks   map[string]*collectionLock
}

// NewGateway 创建网关。维度与度量在此时从配置中固定下来。
func NewGateway(backend Backend, embedder embedding.Client, embCfg config.EmbeddingConfig, vecCfg config.VectorDBConfig) (*Gateway, error) {
	metric, err := ParseMetric(vecCfg.DistanceMetric)
	if err != nil {
		return nil, err
	}
	if embCfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", embCfg.Dimensions)
	}
	if embedder.Dimension() != embCfg.Dimensions {
		return nil, fmt.Errorf("embedding provider %s produces %d-dimensional vectors, configured %d",
			embedder.Name(), embedder.Dimension(), embCfg.Dimensions)
	}
	batchSize := embCfg.BatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	workers := embCfg.Workers
	if workers <= 0 {
		workers = 4
	}
	pool, err := ants.NewPool(workers, ants.WithPreAlloc(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding worker pool: %w", err)
	}
	retry := resilience.DefaultRetryConfig()
	retry.MaxRetries = vecCfg.MaxRetries

	log.Infof("[VectorGateway] 后端: %s, 度量: %s, 维度: %d, 嵌入并发: %d", backend.Name(), metric, embCfg.Dimensions, workers)
	return &Gateway{
		backend:   backend,
		embedder:  embedder,
		dim:       embCfg.Dimensions,
		metric:    metric,
		batchSize: batchSize,
		timeout:   vecCfg.Timeout,
		retry:     retry,
		pool:      pool,
		locks:     make(map[string]*collectionLock),
	}, nil
}

// Close 释放工作池与后端连接。
func (g *Gateway) Close() error {
	g.pool.Release()
	return g.backend.Close()
}

// collectionLock 串行化同一集合上的重置、写入与查询。refs 为当前持有者数量，归零时从 locks 中移除。
type collectionLock struct {
	sync.RWMutex
	refs int
}

// lockFor 返回集合的锁并增加引用计数，用完后必须调用 release。
func (g *Gateway) lockFor(collection string) *collectionLock {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	l, ok := g.locks[collection]
	if !ok {
		l = &collectionLock{}
		g.locks[collection] = l
	}
	l.refs++
	return l
}

func (g *Gateway) release(collection string, l *collectionLock) {
	g.locksMu.Lock()
	defer g.locksMu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(g.locks, collection)
	}
}

// call 以超时和暂时性错误重试执行一次后端调用。已分类的错误原样返回，其余映射为 ProviderError。
func (g *Gateway) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	err := resilience.Do(ctx, g.retry, g.timeout, fn)
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != "" {
		return err
	}
	return errs.Wrap(errs.KindProviderError, op, err)
}

func (g *Gateway) describe(ctx context.Context, collection string) (CollectionInfo, bool, error) {
	var (
		info   CollectionInfo
		exists bool
	)
	err := g.call(ctx, "vectordb.Describe", func(ctx context.Context) error {
		var err error
		info, exists, err = g.backend.Describe(ctx, collection)
		return err
	})
	return info, exists, err
}

// ensureCollection 在集合不存在时按配置的维度与度量创建它；已存在且维度不同则返回 DimensionMismatch。
// 调用方必须持有该集合的写锁。
func (g *Gateway) ensureCollection(ctx context.Context, collection string) error {
	info, exists, err := g.describe(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		if info.Dimension != g.dim {
			return errs.New(errs.KindDimensionMismatch, "vectordb.EnsureCollection",
				"collection %s has dimension %d, configured %d", collection, info.Dimension, g.dim)
		}
		return nil
	}
	log.Infof("[VectorGateway] 创建集合 %s (dim=%d, metric=%s)", collection, g.dim, g.metric)
	return g.call(ctx, "vectordb.Create", func(ctx context.Context) error {
		return g.backend.Create(ctx, collection, g.dim, g.metric)
	})
}

// EnsureCollection 幂等地确保项目集合存在。
func (g *Gateway) EnsureCollection(ctx context.Context, projectID string) error {
	collection := CollectionName(projectID)
	l := g.lockFor(collection)
	defer g.release(collection, l)
	l.Lock()
	defer l.Unlock()
	return g.ensureCollection(ctx, collection)
}

// Index 嵌入 chunks 并写入项目集合。reset 为 true 时先删除并重建集合，保证不留下旧向量。
// 记录 ID 由 (project_id, file_id, order) 导出，重复索引同一块会覆盖。
func (g *Gateway) Index(ctx context.Context, projectID string, chunks []chunker.Chunk, reset bool) (IndexResult, error) {
	collection := CollectionName(projectID)
	if projectID == "" {
		return IndexResult{}, errs.InvalidParameter("vectordb.Index", "project_id 不能为空")
	}
	for i, c := range chunks {
		if c.ProjectID != "" && c.ProjectID != projectID {
			return IndexResult{}, errs.InvalidParameter("vectordb.Index", "chunk %d belongs to project %q, not %q", i, c.ProjectID, projectID)
		}
		if c.FileID == "" {
			return IndexResult{}, errs.InvalidParameter("vectordb.Index", "chunk %d has no file_id", i)
		}
	}

	vectors, err := g.embedAll(ctx, chunks)
	if err != nil {
		return IndexResult{}, err
	}
	records := make([]Record, len(chunks))
	for i, c := range chunks {
		records[i] = Record{
			ID:     RecordID(projectID, c.FileID, c.Order),
			Vector: vectors[i],
			Payload: Payload{
				ProjectID: projectID,
				FileID:    c.FileID,
				Order:     c.Order,
				Content:   c.Content,
				Metadata:  c.Metadata,
			},
		}
	}

	l := g.lockFor(collection)
	defer g.release(collection, l)
	l.Lock()
	defer l.Unlock()

	if reset {
		log.Infof("[VectorGateway] 重置集合 %s", collection)
		if err := g.call(ctx, "vectordb.Drop", func(ctx context.Context) error {
			return g.backend.Drop(ctx, collection)
		}); err != nil {
			return IndexResult{}, err
		}
	}
	if err := g.ensureCollection(ctx, collection); err != nil {
		return IndexResult{}, err
	}
	if len(records) > 0 {
		if err := g.call(ctx, "vectordb.Upsert", func(ctx context.Context) error {
			return g.backend.Upsert(ctx, collection, records)
		}); err != nil {
			return IndexResult{}, err
		}
	}
	log.Infof("[VectorGateway] 集合 %s 写入 %d 条向量 (reset=%t)", collection, len(records), reset)
	return IndexResult{Collection: collection, Indexed: len(records)}, nil
}

// embedAll 把块内容按批次交给工作池并行嵌入，结果按原顺序归位。
func (g *Gateway) embedAll(ctx context.Context, chunks []chunker.Chunk) ([][]float32, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, len(chunks))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < len(chunks); start += g.batchSize {
		end := start + g.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Content
		}
		offset := start

		wg.Add(1)
		if err := g.pool.Submit(func() {
			defer wg.Done()
			out, err := g.embedder.Embed(ctx, texts, embedding.InputDocument)
			if err != nil {
				fail(err)
				return
			}
			copy(vectors[offset:], out)
		}); err != nil {
			wg.Done()
			fail(errs.Wrap(errs.KindProviderError, "vectordb.embed", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		if errs.KindOf(firstErr) == "" {
			return nil, errs.Wrap(errs.KindProviderError, "vectordb.embed", firstErr)
		}
		return nil, firstErr
	}
	return vectors, nil
}

// Query 确认集合存在且非空后嵌入查询文本，检索 topK 个近邻，换算为统一的相似度并过滤掉低于 threshold 的结果。
// 结果按相似度降序；相似度相同时按块序号升序，再按文件 ID 升序。
func (g *Gateway) Query(ctx context.Context, projectID, text string, topK int, threshold float64) ([]Match, error) {
	if topK < 1 {
		return nil, errs.InvalidParameter("vectordb.Query", "top_k 必须 >= 1, 当前为 %d", topK)
	}
	if threshold < 0 || threshold > 1 {
		return nil, errs.InvalidParameter("vectordb.Query", "threshold 必须在 [0, 1] 内, 当前为 %v", threshold)
	}
	collection := CollectionName(projectID)

	l := g.lockFor(collection)
	defer g.release(collection, l)
	l.RLock()
	defer l.RUnlock()

	info, exists, err := g.describe(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, errs.New(errs.KindIndexNotFound, "vectordb.Query", "project %q has not been indexed", projectID)
	}
	if info.Count == 0 {
		return nil, errs.New(errs.KindIndexEmpty, "vectordb.Query", "collection %s contains no vectors", collection)
	}
	if info.Dimension != g.dim {
		return nil, errs.New(errs.KindDimensionMismatch, "vectordb.Query",
			"collection %s has dimension %d, configured %d", collection, info.Dimension, g.dim)
	}
	metric := info.Metric
	if metric == "" {
		metric = g.metric
	}

	// 先确认集合状态再嵌入
	vectors, err := g.embedder.Embed(ctx, []string{text}, embedding.InputQuery)
	if err != nil {
		if errs.KindOf(err) == "" {
			err = errs.Wrap(errs.KindProviderError, "vectordb.Query", err)
		}
		return nil, err
	}

	var hits []Hit
	if err := g.call(ctx, "vectordb.Search", func(ctx context.Context) error {
		var err error
		hits, err = g.backend.Search(ctx, collection, vectors[0], topK, metric)
		return err
	}); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		score := Similarity(metric, h.Distance)
		if score < threshold {
			continue
		}
		matches = append(matches, Match{
			ProjectID: h.Payload.ProjectID,
			FileID:    h.Payload.FileID,
			Order:     h.Payload.Order,
			Content:   h.Payload.Content,
			Metadata:  h.Payload.Metadata,
			Score:     score,
		})
	}
	SortMatches(matches)
	log.Debugf("[VectorGateway] 集合 %s 召回 %d 条, 过滤后 %d 条 (threshold=%.2f)", collection, len(hits), len(matches), threshold)
	return matches, nil
}

// SortMatches 按相似度降序排序，相同相似度按块序号升序、文件 ID 升序。
func SortMatches(matches []Match) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.FileID < b.FileID
	})
}

// Info 返回项目集合的信息，集合不存在时返回 IndexNotFound。
func (g *Gateway) Info(ctx context.Context, projectID string) (IndexInfo, error) {
	collection := CollectionName(projectID)
	l := g.lockFor(collection)
	defer g.release(collection, l)
	l.RLock()
	defer l.RUnlock()

	info, exists, err := g.describe(ctx, collection)
	if err != nil {
		return IndexInfo{}, err
	}
	if !exists {
		return IndexInfo{}, errs.New(errs.KindIndexNotFound, "vectordb.Info", "project %q has not been indexed", projectID)
	}
	return IndexInfo{Collection: collection, Dimension: info.Dimension, Metric: info.Metric, VectorCount: info.Count}, nil
}

// Delete 删除项目集合，集合不存在时不报错。
func (g *Gateway) Delete(ctx context.Context, projectID string) error {
	collection := CollectionName(projectID)
	l := g.lockFor(collection)
	defer g.release(collection, l)
	l.Lock()
	defer l.Unlock()

	log.Infof("[VectorGateway] 删除集合 %s", collection)
	return g.call(ctx, "vectordb.Drop", func(ctx context.Context) error {
		return g.backend.Drop(ctx, collection)
	})
}

func errCollectionMissing(collection string) error {
	return errs.New(errs.KindIndexNotFound, "vectordb", "collection %s does not exist", collection)
}
