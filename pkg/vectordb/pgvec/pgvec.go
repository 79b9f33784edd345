// Package pgvec 把 Postgres + pgvector 适配为向量库后端。
// 所有集合共用两张表：rag_collections 记录维度与度量，rag_vectors 存放向量与 JSONB 载荷。
package pgvec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lite-rag-go/internal/config"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/vectordb"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS rag_collections (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS rag_vectors (
	collection TEXT NOT NULL REFERENCES rag_collections(name) ON DELETE CASCADE,
	id         TEXT NOT NULL,
	embedding  vector NOT NULL,
	payload    JSONB NOT NULL,
	PRIMARY KEY (collection, id)
);`

// operators 把度量映射为 pgvector 的距离运算符，各运算符的结果正好是规范距离。
var operators = map[vectordb.Metric]string{
	vectordb.MetricCosine:    "<=>",
	vectordb.MetricDot:       "<#>",
	vectordb.MetricEuclidean: "<->",
	vectordb.MetricManhattan: "<+>",
}

func init() {
	vectordb.Register("pgvector", func(ctx context.Context, cfg config.VectorDBConfig) (vectordb.Backend, error) {
		return New(ctx, cfg.PGVector.DSN)
	})
}

// Store 是基于 pgxpool 的向量库后端。
type Store struct {
	pool *pgxpool.Pool
}

// New 连接数据库并确保扩展与表存在。
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialise pgvector schema: %w", err)
	}
	log.Info("[PGVector] 连接成功, 表结构已就绪")
	return &Store{pool: pool}, nil
}

func (s *Store) Name() string { return "pgvector" }

func (s *Store) Describe(ctx context.Context, collection string) (vectordb.CollectionInfo, bool, error) {
	var (
		info   vectordb.CollectionInfo
		metric string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT c.dimension, c.metric, (SELECT count(*) FROM rag_vectors v WHERE v.collection = c.name)
		FROM rag_collections c WHERE c.name = $1`, collection).Scan(&info.Dimension, &metric, &info.Count)
	if errors.Is(err, pgx.ErrNoRows) {
		return vectordb.CollectionInfo{}, false, nil
	}
	if err != nil {
		return vectordb.CollectionInfo{}, false, err
	}
	info.Metric = vectordb.Metric(metric)
	return info, true, nil
}

func (s *Store) Create(ctx context.Context, collection string, dim int, metric vectordb.Metric) error {
	if _, ok := operators[metric]; !ok {
		return errs.InvalidParameter("pgvector.Create", "unsupported metric %s", metric)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO rag_collections (name, dimension, metric) VALUES ($1, $2, $3) ON CONFLICT (name) DO NOTHING`,
		collection, dim, string(metric))
	return err
}

func (s *Store) Upsert(ctx context.Context, collection string, records []vectordb.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rag_collections WHERE name = $1)`, collection).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return errs.New(errs.KindIndexNotFound, "pgvector.Upsert", "collection %s does not exist", collection)
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode payload of %s: %w", r.ID, err)
		}
		batch.Queue(`
			INSERT INTO rag_vectors (collection, id, embedding, payload) VALUES ($1, $2, $3, $4)
			ON CONFLICT (collection, id) DO UPDATE SET embedding = EXCLUDED.embedding, payload = EXCLUDED.payload`,
			collection, r.ID, pgvector.NewVector(r.Vector), payload)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int, metric vectordb.Metric) ([]vectordb.Hit, error) {
	op, ok := operators[metric]
	if !ok {
		return nil, errs.InvalidParameter("pgvector.Search", "unsupported metric %s", metric)
	}
	query := fmt.Sprintf(`
		SELECT id, embedding %s $2 AS distance, payload
		FROM rag_vectors WHERE collection = $1
		ORDER BY distance ASC, id ASC LIMIT $3`, op)
	rows, err := s.pool.Query(ctx, query, collection, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []vectordb.Hit
	for rows.Next() {
		var (
			hit     vectordb.Hit
			payload []byte
		)
		if err := rows.Scan(&hit.ID, &hit.Distance, &payload); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payload, &hit.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode payload of %s: %w", hit.ID, err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func (s *Store) Drop(ctx context.Context, collection string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rag_collections WHERE name = $1`, collection)
	return err
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
