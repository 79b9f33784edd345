package service

import (
	"context"
	"errors"
	"fmt"

	"lite-rag-go/internal/config"
	"lite-rag-go/internal/model"
	"lite-rag-go/internal/pipeline"
	"lite-rag-go/internal/repository"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/tasks"

	"gorm.io/gorm"
)

// TaskQueue 把文档处理任务投递给异步消费者，由 *kafka.Producer 实现。
type TaskQueue interface {
	Enqueue(ctx context.Context, task tasks.DocumentProcessingTask) error
}

// DocumentProcessor 同步执行一次文档处理，由 *pipeline.Processor 实现。
type DocumentProcessor interface {
	Run(ctx context.Context, task tasks.DocumentProcessingTask) (pipeline.Result, error)
}

// DocumentService 接口定义了文档切块相关的业务操作。
type DocumentService interface {
	Process(ctx context.Context, projectID string, req model.DocumentProcessingRequest) (*model.DocumentProcessingResult, error)
}

type documentService struct {
	assetRepo repository.AssetRepository
	processor DocumentProcessor
	queue     TaskQueue
	defaults  config.ChunkingConfig
}

// NewDocumentService 创建一个新的 DocumentService 实例。queue 为 nil 时所有请求都同步处理。
func NewDocumentService(assetRepo repository.AssetRepository, processor DocumentProcessor, queue TaskQueue, defaults config.ChunkingConfig) DocumentService {
	return &documentService{
		assetRepo: assetRepo,
		processor: processor,
		queue:     queue,
		defaults:  defaults,
	}
}

// Process 切分指定资产（FileID 为空时为项目下全部资产）。
// 参数在投递前校验，异步任务不会因为参数错误在消费端反复失败。
func (s *documentService) Process(ctx context.Context, projectID string, req model.DocumentProcessingRequest) (*model.DocumentProcessingResult, error) {
	const op = "service.ProcessDocuments"

	size, overlap := req.ChunkSize, req.ChunkOverlap
	if size == 0 {
		size, overlap = s.defaults.ChunkSize, s.defaults.ChunkOverlap
	}
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, errs.InvalidParameter(op, "需要 chunk_size > 0 且 0 <= chunk_overlap < chunk_size, 当前为 %d/%d", size, overlap)
	}

	names, err := s.assetNames(ctx, projectID, req.FileID)
	if err != nil {
		return nil, err
	}

	async := req.Async
	if async && s.queue == nil {
		log.Warnf("[DocumentService] 未配置任务队列, 项目 %s 的处理请求改为同步执行", projectID)
		async = false
	}

	result := &model.DocumentProcessingResult{}
	for _, name := range names {
		task := tasks.DocumentProcessingTask{
			ProjectID:       projectID,
			FileID:          name,
			ChunkSize:       size,
			ChunkOverlap:    overlap,
			ReplaceExisting: req.ReplaceExisting,
			Index:           req.Index,
		}
		if async {
			if err := s.queue.Enqueue(ctx, task); err != nil {
				return nil, fmt.Errorf("投递处理任务失败: %w", err)
			}
			result.Enqueued = append(result.Enqueued, name)
			continue
		}

		res, err := s.processor.Run(ctx, task)
		if err != nil {
			return nil, err
		}
		result.Indexed += res.Indexed
		if res.Skipped {
			result.Skipped++
			continue
		}
		result.Processed++
		result.Chunks += res.Chunks
	}
	return result, nil
}

func (s *documentService) assetNames(ctx context.Context, projectID, fileID string) ([]string, error) {
	const op = "service.ProcessDocuments"
	if fileID != "" {
		asset, err := s.assetRepo.FindByName(ctx, projectID, fileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.New(errs.KindAssetNotFound, op, "资产 %q 不存在", fileID)
		}
		if err != nil {
			return nil, err
		}
		return []string{asset.Name}, nil
	}

	assets, err := s.assetRepo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return nil, errs.New(errs.KindAssetNotFound, op, "项目 %s 没有任何资产", projectID)
	}
	names := make([]string, len(assets))
	for i, a := range assets {
		names[i] = a.Name
	}
	return names, nil
}
