// Package es 把 Elasticsearch 的 dense_vector 字段适配为向量库后端。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/resilience"
	"lite-rag-go/pkg/vectordb"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const vectorField = "embedding"

func init() {
	vectordb.Register("elasticsearch", func(_ context.Context, cfg config.VectorDBConfig) (vectordb.Backend, error) {
		return New(cfg.Elasticsearch)
	})
}

// Store 以一个索引对应一个集合的方式使用 Elasticsearch。
type Store struct {
	client *elasticsearch.Client
}

// New 创建 Elasticsearch 客户端。Addresses 支持逗号分隔的多个地址。
func New(cfg config.ElasticsearchConfig) (*Store, error) {
	var addrs []string
	for _, a := range strings.Split(cfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	})
	if err != nil {
		return nil, err
	}
	return NewWithClient(client), nil
}

// NewWithClient 使用已有的客户端。
func NewWithClient(client *elasticsearch.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Name() string { return "elasticsearch" }

// similarityFor 返回度量在 dense_vector 映射中的 similarity 名称。
// dot 使用 max_inner_product，它不要求向量为单位长度。
func similarityFor(metric vectordb.Metric) (string, error) {
	switch metric {
	case vectordb.MetricCosine:
		return "cosine", nil
	case vectordb.MetricDot:
		return "max_inner_product", nil
	case vectordb.MetricEuclidean:
		return "l2_norm", nil
	default:
		return "", errs.InvalidParameter("es.Create", "elasticsearch does not support the %s metric", metric)
	}
}

func metricFor(similarity string) vectordb.Metric {
	switch similarity {
	case "dot_product", "max_inner_product":
		return vectordb.MetricDot
	case "l2_norm":
		return vectordb.MetricEuclidean
	default:
		return vectordb.MetricCosine
	}
}

// distanceFromScore 把 _score 还原为规范距离。
//   - cosine:            _score = (1 + cos) / 2
//   - max_inner_product: _score = dot + 1 (dot >= 0)，否则 1 / (1 - dot)
//   - l2_norm:           _score = 1 / (1 + l2^2)
func distanceFromScore(metric vectordb.Metric, score float64) float64 {
	switch metric {
	case vectordb.MetricDot:
		if score >= 1 {
			return -(score - 1)
		}
		return -(1 - 1/score)
	case vectordb.MetricEuclidean:
		if score <= 0 {
			return math.Inf(1)
		}
		return math.Sqrt(math.Max(0, 1/score-1))
	default:
		return 1 - (2*score - 1)
	}
}

// statusError 读取失败响应的正文，以便 resilience 判断是否重试。
func statusError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	return &resilience.StatusError{StatusCode: res.StatusCode, Body: string(body)}
}

func (s *Store) Describe(ctx context.Context, collection string) (vectordb.CollectionInfo, bool, error) {
	res, err := s.client.Indices.Exists([]string{collection}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return vectordb.CollectionInfo{}, false, err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return vectordb.CollectionInfo{}, false, nil
	}
	if res.IsError() {
		return vectordb.CollectionInfo{}, false, &resilience.StatusError{StatusCode: res.StatusCode}
	}

	res, err = s.client.Indices.GetMapping(
		s.client.Indices.GetMapping.WithIndex(collection),
		s.client.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return vectordb.CollectionInfo{}, false, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return vectordb.CollectionInfo{}, false, statusError(res)
	}
	var mappings map[string]struct {
		Mappings struct {
			Properties map[string]struct {
				Dims       int    `json:"dims"`
				Similarity string `json:"similarity"`
			} `json:"properties"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappings); err != nil {
		return vectordb.CollectionInfo{}, false, fmt.Errorf("failed to decode mapping of %s: %w", collection, err)
	}
	field := mappings[collection].Mappings.Properties[vectorField]
	info := vectordb.CollectionInfo{Dimension: field.Dims, Metric: metricFor(field.Similarity)}

	countRes, err := s.client.Count(s.client.Count.WithIndex(collection), s.client.Count.WithContext(ctx))
	if err != nil {
		return vectordb.CollectionInfo{}, false, err
	}
	defer countRes.Body.Close()
	if countRes.IsError() {
		return vectordb.CollectionInfo{}, false, statusError(countRes)
	}
	var count struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(countRes.Body).Decode(&count); err != nil {
		return vectordb.CollectionInfo{}, false, fmt.Errorf("failed to decode count of %s: %w", collection, err)
	}
	info.Count = count.Count
	return info, true, nil
}

func (s *Store) Create(ctx context.Context, collection string, dim int, metric vectordb.Metric) error {
	similarity, err := similarityFor(metric)
	if err != nil {
		return err
	}
	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				vectorField: map[string]any{
					"type":       "dense_vector",
					"dims":       dim,
					"index":      true,
					"similarity": similarity,
				},
				"project_id":  map[string]any{"type": "keyword"},
				"file_id":     map[string]any{"type": "keyword"},
				"chunk_order": map[string]any{"type": "integer"},
				"content":     map[string]any{"type": "text"},
				"metadata":    map[string]any{"type": "object", "enabled": false},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	res, err := s.client.Indices.Create(
		collection,
		s.client.Indices.Create.WithBody(bytes.NewReader(body)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("[ES] 创建索引 '%s' 失败: %v", collection, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return statusError(res)
	}
	log.Infof("[ES] 索引 '%s' 创建成功", collection)
	return nil
}

type document struct {
	vectordb.Payload
	Embedding []float32 `json:"embedding"`
}

func (s *Store) Upsert(ctx context.Context, collection string, records []vectordb.Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		action := map[string]any{"index": map[string]any{"_index": collection, "_id": r.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(document{Payload: r.Payload, Embedding: r.Vector}); err != nil {
			return err
		}
	}

	res, err := s.client.Bulk(&buf,
		s.client.Bulk.WithRefresh("true"),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return statusError(res)
	}
	var out struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int             `json:"status"`
			Error  json.RawMessage `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if out.Errors {
		for _, item := range out.Items {
			for _, op := range item {
				if op.Status >= 300 {
					return &resilience.StatusError{StatusCode: op.Status, Body: string(op.Error)}
				}
			}
		}
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, metric vectordb.Metric) ([]vectordb.Hit, error) {
	candidates := topK * 10
	if candidates < 100 {
		candidates = 100
	}
	if candidates > 10000 {
		candidates = 10000
	}
	query := map[string]any{
		"knn": map[string]any{
			"field":          vectorField,
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": candidates,
		},
		"size":    topK,
		"_source": []string{"project_id", "file_id", "chunk_order", "content", "metadata"},
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}
	res, err := s.client.Search(
		s.client.Search.WithIndex(collection),
		s.client.Search.WithBody(bytes.NewReader(body)),
		s.client.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, errs.New(errs.KindIndexNotFound, "es.Search", "index %s does not exist", collection)
	}
	if res.IsError() {
		return nil, statusError(res)
	}

	var out struct {
		Hits struct {
			Hits []struct {
				ID     string           `json:"_id"`
				Score  float64          `json:"_score"`
				Source vectordb.Payload `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := make([]vectordb.Hit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hits = append(hits, vectordb.Hit{ID: h.ID, Distance: distanceFromScore(metric, h.Score), Payload: h.Source})
	}
	return hits, nil
}

func (s *Store) Drop(ctx context.Context, collection string) error {
	res, err := s.client.Indices.Delete([]string{collection}, s.client.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return statusError(res)
	}
	return nil
}

func (s *Store) Close() error { return nil }
