package service

import (
	"context"
	"fmt"

	"lite-rag-go/internal/model"
	"lite-rag-go/internal/repository"
	"lite-rag-go/pkg/chunker"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/vectordb"
)

// VectorIndex 是服务层依赖的向量网关接口，由 *vectordb.Gateway 实现。
type VectorIndex interface {
	Retriever
	Index(ctx context.Context, projectID string, chunks []chunker.Chunk, reset bool) (vectordb.IndexResult, error)
	Info(ctx context.Context, projectID string) (vectordb.IndexInfo, error)
	Delete(ctx context.Context, projectID string) error
}

// VectorService 接口定义了向量索引与相似检索相关的业务操作。
type VectorService interface {
	// Index 把项目已保存的全部块写入向量库。reset 为 true 时先重建集合。
	Index(ctx context.Context, projectID string, reset bool) (*vectordb.IndexResult, error)
	RetrieveSimilar(ctx context.Context, projectID, text string, topK int, threshold float64) (*model.QueryResult, error)
	Info(ctx context.Context, projectID string) (*vectordb.IndexInfo, error)
}

type vectorService struct {
	chunkRepo repository.ChunkRepository
	vectors   VectorIndex
}

// NewVectorService 创建一个新的 VectorService 实例。
func NewVectorService(chunkRepo repository.ChunkRepository, vectors VectorIndex) VectorService {
	return &vectorService{chunkRepo: chunkRepo, vectors: vectors}
}

func (s *vectorService) Index(ctx context.Context, projectID string, reset bool) (*vectordb.IndexResult, error) {
	records, err := s.chunkRepo.FindByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("读取项目分块失败: %w", err)
	}
	chunks := make([]chunker.Chunk, len(records))
	for i, r := range records {
		chunks[i] = r.ToChunker()
	}

	res, err := s.vectors.Index(ctx, projectID, chunks, reset)
	if err != nil {
		return nil, err
	}
	log.Infof("[VectorService] 项目 %s 索引完成, 写入 %d 个向量, reset: %v", projectID, res.Indexed, reset)
	return &res, nil
}

func (s *vectorService) RetrieveSimilar(ctx context.Context, projectID, text string, topK int, threshold float64) (*model.QueryResult, error) {
	matches, err := s.vectors.Query(ctx, projectID, text, topK, threshold)
	if err != nil {
		return nil, err
	}
	return &model.QueryResult{Matches: matches, Count: len(matches)}, nil
}

func (s *vectorService) Info(ctx context.Context, projectID string) (*vectordb.IndexInfo, error) {
	info, err := s.vectors.Info(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &info, nil
}
