// Package qdrant 通过 REST 接口把 Qdrant 适配为向量库后端。
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/resilience"
	"lite-rag-go/pkg/vectordb"
)

func init() {
	vectordb.Register("qdrant", func(_ context.Context, cfg config.VectorDBConfig) (vectordb.Backend, error) {
		return New(cfg.Qdrant, nil), nil
	})
}

// Store 是一个最小化的 Qdrant REST 客户端。
type Store struct {
	url    string
	apiKey string
	client *http.Client
}

// New 创建客户端，httpClient 为 nil 时使用默认客户端。超时由调用方的 ctx 控制。
func New(cfg config.QdrantConfig, httpClient *http.Client) *Store {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Store{
		url:    strings.TrimRight(cfg.URL, "/"),
		apiKey: cfg.APIKey,
		client: httpClient,
	}
}

func (s *Store) Name() string { return "qdrant" }

var distanceNames = map[vectordb.Metric]string{
	vectordb.MetricCosine:    "Cosine",
	vectordb.MetricDot:       "Dot",
	vectordb.MetricEuclidean: "Euclid",
	vectordb.MetricManhattan: "Manhattan",
}

func metricFor(distance string) vectordb.Metric {
	for m, name := range distanceNames {
		if name == distance {
			return m
		}
	}
	return ""
}

// distanceFromScore 把 Qdrant 的分数还原为规范距离。Cosine 与 Dot 返回相似度，Euclid 与 Manhattan 直接返回距离。
func distanceFromScore(metric vectordb.Metric, score float64) float64 {
	switch metric {
	case vectordb.MetricCosine:
		return 1 - score
	case vectordb.MetricDot:
		return -score
	default:
		return score
	}
}

func (s *Store) collectionURL(collection, suffix string) string {
	return s.url + "/collections/" + url.PathEscape(collection) + suffix
}

// do 发送一次 JSON 请求。返回的状态码供调用方区分 404。
func (s *Store) do(ctx context.Context, method, target string, body, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return resp.StatusCode, nil
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return resp.StatusCode, &resilience.StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("qdrant %s %s: failed to decode response: %w", method, target, err)
		}
	}
	return resp.StatusCode, nil
}

func (s *Store) Describe(ctx context.Context, collection string) (vectordb.CollectionInfo, bool, error) {
	var coll struct {
		Result struct {
			Config struct {
				Params struct {
					Vectors struct {
						Size     int    `json:"size"`
						Distance string `json:"distance"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(collection, ""), nil, &coll)
	if err != nil {
		return vectordb.CollectionInfo{}, false, err
	}
	if status == http.StatusNotFound {
		return vectordb.CollectionInfo{}, false, nil
	}

	var count struct {
		Result struct {
			Count int64 `json:"count"`
		} `json:"result"`
	}
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "/points/count"), map[string]any{"exact": true}, &count); err != nil {
		return vectordb.CollectionInfo{}, false, err
	}
	vectors := coll.Result.Config.Params.Vectors
	return vectordb.CollectionInfo{
		Dimension: vectors.Size,
		Metric:    metricFor(vectors.Distance),
		Count:     count.Result.Count,
	}, true, nil
}

func (s *Store) Create(ctx context.Context, collection string, dim int, metric vectordb.Metric) error {
	distance, ok := distanceNames[metric]
	if !ok {
		return errs.InvalidParameter("qdrant.Create", "unsupported metric %s", metric)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": distance,
		},
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL(collection, ""), body, nil)
	return err
}

func (s *Store) Upsert(ctx context.Context, collection string, records []vectordb.Record) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":      r.ID,
			"vector":  r.Vector,
			"payload": r.Payload,
		}
	}
	status, err := s.do(ctx, http.MethodPut, s.collectionURL(collection, "/points?wait=true"), map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status == http.StatusNotFound {
		return errs.New(errs.KindIndexNotFound, "qdrant.Upsert", "collection %s does not exist", collection)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, metric vectordb.Metric) ([]vectordb.Hit, error) {
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any              `json:"id"`
			Score   float64          `json:"score"`
			Payload vectordb.Payload `json:"payload"`
		} `json:"result"`
	}
	status, err := s.do(ctx, http.MethodPost, s.collectionURL(collection, "/points/search"), req, &resp)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, errs.New(errs.KindIndexNotFound, "qdrant.Search", "collection %s does not exist", collection)
	}
	hits := make([]vectordb.Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hits = append(hits, vectordb.Hit{
			ID:       fmt.Sprint(r.ID),
			Distance: distanceFromScore(metric, r.Score),
			Payload:  r.Payload,
		})
	}
	return hits, nil
}

func (s *Store) Drop(ctx context.Context, collection string) error {
	_, err := s.do(ctx, http.MethodDelete, s.collectionURL(collection, ""), nil, nil)
	return err
}

func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
