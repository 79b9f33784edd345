package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/chunker"
	"lite-rag-go/pkg/embedding"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/vectordb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePoint struct {
	ID      string           `json:"id"`
	Vector  []float32        `json:"vector"`
	Payload vectordb.Payload `json:"payload"`
}

type fakeCollection struct {
	size     int
	distance string
	points   map[string]fakePoint
}

// fakeQdrant 在内存中实现 Qdrant REST 接口的一个子集。
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	apiKeys     []string
}

func (f *fakeQdrant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiKeys = append(f.apiKeys, r.Header.Get("api-key"))

	rest := strings.TrimPrefix(r.URL.Path, "/collections/")
	name, sub, _ := strings.Cut(rest, "/")
	coll := f.collections[name]

	writeJSON := func(v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case sub == "" && r.Method == http.MethodPut:
		var body struct {
			Vectors struct {
				Size     int    `json:"size"`
				Distance string `json:"distance"`
			} `json:"vectors"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if coll == nil {
			f.collections[name] = &fakeCollection{size: body.Vectors.Size, distance: body.Vectors.Distance, points: map[string]fakePoint{}}
		}
		writeJSON(map[string]any{"result": true})
	case coll == nil:
		w.WriteHeader(http.StatusNotFound)
		writeJSON(map[string]any{"status": map[string]any{"error": "Not found"}})
	case sub == "" && r.Method == http.MethodGet:
		writeJSON(map[string]any{"result": map[string]any{"config": map[string]any{"params": map[string]any{
			"vectors": map[string]any{"size": coll.size, "distance": coll.distance},
		}}}})
	case sub == "" && r.Method == http.MethodDelete:
		delete(f.collections, name)
		writeJSON(map[string]any{"result": true})
	case sub == "points/count":
		writeJSON(map[string]any{"result": map[string]any{"count": len(coll.points)}})
	case sub == "points" && r.Method == http.MethodPut:
		var body struct {
			Points []fakePoint `json:"points"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		for _, p := range body.Points {
			coll.points[p.ID] = p
		}
		writeJSON(map[string]any{"result": map[string]any{"status": "completed"}})
	case sub == "points/search":
		var body struct {
			Vector []float32 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		metric := metricFor(coll.distance)
		type scored struct {
			fakePoint
			Score float64 `json:"score"`
		}
		out := make([]scored, 0, len(coll.points))
		for _, p := range coll.points {
			d := vectordb.Distance(metric, body.Vector, p.Vector)
			score := d
			switch metric {
			case vectordb.MetricCosine:
				score = 1 - d
			case vectordb.MetricDot:
				score = -d
			}
			out = append(out, scored{fakePoint: p, Score: score})
		}
		higherBetter := metric == vectordb.MetricCosine || metric == vectordb.MetricDot
		sort.Slice(out, func(i, j int) bool {
			if higherBetter {
				return out[i].Score > out[j].Score
			}
			return out[i].Score < out[j].Score
		})
		if len(out) > body.Limit {
			out = out[:body.Limit]
		}
		writeJSON(map[string]any{"result": out})
	default:
		w.WriteHeader(http.StatusBadRequest)
	}
}

func newFake(t *testing.T) (*Store, *fakeQdrant) {
	t.Helper()
	fake := &fakeQdrant{collections: map[string]*fakeCollection{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return New(config.QdrantConfig{URL: srv.URL + "/", APIKey: "secret"}, srv.Client()), fake
}

func TestDescribeMissingCollection(t *testing.T) {
	s, _ := newFake(t)
	_, exists, err := s.Describe(context.Background(), "rag_nope")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGatewayOverQdrant(t *testing.T) {
	for _, metric := range []string{"cosine", "dot", "euclidean", "manhattan"} {
		t.Run(metric, func(t *testing.T) {
			s, fake := newFake(t)
			emb, err := embedding.NewHashing(64)
			require.NoError(t, err)
			g, err := vectordb.NewGateway(s, emb,
				config.EmbeddingConfig{Dimensions: 64, BatchSize: 2, Workers: 2},
				config.VectorDBConfig{DistanceMetric: metric})
			require.NoError(t, err)
			defer g.Close()
			ctx := context.Background()

			chunks := []chunker.Chunk{
				{FileID: "f", Order: 0, Content: "The sky is blue."},
				{FileID: "f", Order: 1, Content: "Grass is green.", Metadata: map[string]any{"page": float64(2)}},
				{FileID: "f", Order: 2, Content: "Rivers flow to the sea."},
			}
			_, err = g.Index(ctx, "p1", chunks, false)
			require.NoError(t, err)

			info, err := g.Info(ctx, "p1")
			require.NoError(t, err)
			assert.Equal(t, int64(3), info.VectorCount)
			assert.Equal(t, vectordb.Metric(metric), info.Metric)

			matches, err := g.Query(ctx, "p1", "Grass is green.", 1, 0)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, 1, matches[0].Order)
			assert.Equal(t, float64(2), matches[0].Metadata["page"])

			fake.mu.Lock()
			for _, k := range fake.apiKeys {
				assert.Equal(t, "secret", k)
			}
			fake.mu.Unlock()
		})
	}
}

func TestQueryAfterDeleteIsIndexNotFound(t *testing.T) {
	s, _ := newFake(t)
	emb, err := embedding.NewHashing(16)
	require.NoError(t, err)
	g, err := vectordb.NewGateway(s, emb, config.EmbeddingConfig{Dimensions: 16}, config.VectorDBConfig{DistanceMetric: "cosine"})
	require.NoError(t, err)
	defer g.Close()
	ctx := context.Background()

	_, err = g.Index(ctx, "p1", []chunker.Chunk{{FileID: "f", Content: "hello"}}, false)
	require.NoError(t, err)
	require.NoError(t, g.Delete(ctx, "p1"))

	_, err = g.Query(ctx, "p1", "hello", 3, 0)
	assert.True(t, errors.Is(err, errs.ErrIndexNotFound))
}

func TestServerErrorIsRetriedThenSurfaced(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	s := New(config.QdrantConfig{URL: srv.URL}, srv.Client())
	emb, err := embedding.NewHashing(8)
	require.NoError(t, err)
	g, err := vectordb.NewGateway(s, emb, config.EmbeddingConfig{Dimensions: 8}, config.VectorDBConfig{DistanceMetric: "cosine", MaxRetries: 1})
	require.NoError(t, err)
	defer g.Close()

	_, err = g.Info(context.Background(), "p1")
	assert.True(t, errors.Is(err, errs.ErrProviderError))
	assert.Equal(t, int32(2), calls.Load())
}
