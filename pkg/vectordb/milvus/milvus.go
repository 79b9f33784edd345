// Package milvus 把 Milvus 集合适配为向量库后端。
package milvus

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/vectordb"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

const (
	fieldID        = "id"
	fieldEmbedding = "embedding"
	fieldProject   = "project_id"
	fieldFile      = "file_id"
	fieldOrder     = "chunk_order"
	fieldContent   = "content"
	fieldMetadata  = "metadata"

	maxTextLen    = 65535
	metricDescKey = "metric="
)

var outputFields = []string{fieldProject, fieldFile, fieldOrder, fieldContent, fieldMetadata}

func init() {
	vectordb.Register("milvus", func(ctx context.Context, cfg config.VectorDBConfig) (vectordb.Backend, error) {
		return New(ctx, cfg.Milvus)
	})
}

// Store 是基于 milvusclient v2 的向量库后端。
type Store struct {
	client *milvusclient.Client
}

// New 连接 Milvus。
func New(ctx context.Context, cfg config.MilvusConfig) (*Store, error) {
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	log.Infof("[Milvus] 已连接 %s", cfg.Address)
	return &Store{client: c}, nil
}

func (s *Store) Name() string { return "milvus" }

func metricType(metric vectordb.Metric) (entity.MetricType, error) {
	switch metric {
	case vectordb.MetricCosine:
		return entity.COSINE, nil
	case vectordb.MetricDot:
		return entity.IP, nil
	case vectordb.MetricEuclidean:
		return entity.L2, nil
	default:
		return "", errs.InvalidParameter("milvus.Create", "milvus does not support the %s metric for float vectors", metric)
	}
}

// distanceFromScore 把 Milvus 的分数还原为规范距离。COSINE 与 IP 返回相似度，L2 返回平方距离。
func distanceFromScore(metric vectordb.Metric, score float32) float64 {
	s := float64(score)
	switch metric {
	case vectordb.MetricDot:
		return -s
	case vectordb.MetricEuclidean:
		return math.Sqrt(math.Max(0, s))
	default:
		return 1 - s
	}
}

func (s *Store) Describe(ctx context.Context, collection string) (vectordb.CollectionInfo, bool, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return vectordb.CollectionInfo{}, false, fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return vectordb.CollectionInfo{}, false, nil
	}

	coll, err := s.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(collection))
	if err != nil {
		return vectordb.CollectionInfo{}, false, fmt.Errorf("failed to describe collection: %w", err)
	}
	var info vectordb.CollectionInfo
	if coll.Schema != nil {
		for _, f := range coll.Schema.Fields {
			if f.Name == fieldEmbedding {
				info.Dimension, _ = strconv.Atoi(f.TypeParams["dim"])
			}
		}
		if m, ok := strings.CutPrefix(coll.Schema.Description, metricDescKey); ok {
			info.Metric = vectordb.Metric(m)
		}
	}

	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collection))
	if err != nil {
		return vectordb.CollectionInfo{}, false, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		info.Count, _ = strconv.ParseInt(val, 10, 64)
	}
	return info, true, nil
}

func (s *Store) Create(ctx context.Context, collection string, dim int, metric vectordb.Metric) error {
	mt, err := metricType(metric)
	if err != nil {
		return err
	}
	schema := entity.NewSchema().
		WithName(collection).
		WithDescription(metricDescKey + string(metric)).
		WithAutoID(false).
		WithField(entity.NewField().
			WithName(fieldID).
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64).
			WithIsPrimaryKey(true)).
		WithField(entity.NewField().
			WithName(fieldEmbedding).
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim))).
		WithField(entity.NewField().WithName(fieldProject).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(fieldFile).WithDataType(entity.FieldTypeVarChar).WithMaxLength(1024)).
		WithField(entity.NewField().WithName(fieldOrder).WithDataType(entity.FieldTypeInt64)).
		WithField(entity.NewField().WithName(fieldContent).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLen)).
		WithField(entity.NewField().WithName(fieldMetadata).WithDataType(entity.FieldTypeVarChar).WithMaxLength(maxTextLen))

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idxTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(collection, fieldEmbedding, index.NewAutoIndex(mt)))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := idxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}
	log.Infof("[Milvus] 集合 %s 创建并加载完成 (metric=%s)", collection, mt)
	return nil
}

func (s *Store) Upsert(ctx context.Context, collection string, records []vectordb.Record) error {
	if len(records) == 0 {
		return nil
	}
	n := len(records)
	ids := make([]string, n)
	vectors := make([][]float32, n)
	projects := make([]string, n)
	files := make([]string, n)
	orders := make([]int64, n)
	contents := make([]string, n)
	metas := make([]string, n)
	for i, r := range records {
		ids[i] = r.ID
		vectors[i] = r.Vector
		projects[i] = r.Payload.ProjectID
		files[i] = r.Payload.FileID
		orders[i] = int64(r.Payload.Order)
		contents[i] = r.Payload.Content
		meta, err := json.Marshal(r.Payload.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode metadata of %s: %w", r.ID, err)
		}
		metas[i] = string(meta)
	}

	opt := milvusclient.NewColumnBasedInsertOption(collection,
		column.NewColumnVarChar(fieldID, ids),
		column.NewColumnFloatVector(fieldEmbedding, len(vectors[0]), vectors),
		column.NewColumnVarChar(fieldProject, projects),
		column.NewColumnVarChar(fieldFile, files),
		column.NewColumnInt64(fieldOrder, orders),
		column.NewColumnVarChar(fieldContent, contents),
		column.NewColumnVarChar(fieldMetadata, metas),
	)
	if _, err := s.client.Upsert(ctx, opt); err != nil {
		return fmt.Errorf("failed to upsert: %w", err)
	}

	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(collection))
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, metric vectordb.Metric) ([]vectordb.Hit, error) {
	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		collection,
		topK,
		[]entity.Vector{entity.FloatVector(vector)},
	).WithANNSField(fieldEmbedding).
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	hits := make([]vectordb.Hit, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hit := vectordb.Hit{Distance: distanceFromScore(metric, rs.Scores[i])}
		if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
			hit.ID = idCol.Data()[i]
		}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				v := col.Data()[i]
				switch col.Name() {
				case fieldProject:
					hit.Payload.ProjectID = v
				case fieldFile:
					hit.Payload.FileID = v
				case fieldContent:
					hit.Payload.Content = v
				case fieldMetadata:
					if v != "" && v != "null" {
						if err := json.Unmarshal([]byte(v), &hit.Payload.Metadata); err != nil {
							log.Warnf("[Milvus] 记录 %s 的 metadata 无法解析: %v", hit.ID, err)
						}
					}
				}
			case *column.ColumnInt64:
				if col.Name() == fieldOrder {
					hit.Payload.Order = int(col.Data()[i])
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *Store) Drop(ctx context.Context, collection string) error {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(collection))
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}
	if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collection)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close(context.Background())
}
