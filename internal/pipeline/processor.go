// Package pipeline 定义了文档处理的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"lite-rag-go/internal/config"
	"lite-rag-go/internal/model"
	"lite-rag-go/internal/repository"
	"lite-rag-go/pkg/chunker"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/storage"
	"lite-rag-go/pkg/tasks"
	"lite-rag-go/pkg/vectordb"

	"gorm.io/gorm"
)

// Indexer 是处理完成后写入向量库的目标，通常是 *vectordb.Gateway。
type Indexer interface {
	Index(ctx context.Context, projectID string, chunks []chunker.Chunk, reset bool) (vectordb.IndexResult, error)
}

// Result 是一次文档处理的结果。
type Result struct {
	FileID  string `json:"file_id"`
	Chunks  int    `json:"chunks"`
	Skipped bool   `json:"skipped"`
	Indexed int    `json:"indexed"`
}

// Processor 封装了文档处理的所有依赖和逻辑。
type Processor struct {
	splitter  *chunker.Splitter
	defaults  config.ChunkingConfig
	store     storage.Store
	assetRepo repository.AssetRepository
	chunkRepo repository.ChunkRepository
	indexer   Indexer
}

// NewProcessor 创建一个新的 Processor 实例。indexer 为 nil 时忽略任务中的 Index 标志。
func NewProcessor(
	splitter *chunker.Splitter,
	defaults config.ChunkingConfig,
	store storage.Store,
	assetRepo repository.AssetRepository,
	chunkRepo repository.ChunkRepository,
	indexer Indexer,
) *Processor {
	return &Processor{
		splitter:  splitter,
		defaults:  defaults,
		store:     store,
		assetRepo: assetRepo,
		chunkRepo: chunkRepo,
		indexer:   indexer,
	}
}

// Process 实现 kafka.TaskProcessor。
func (p *Processor) Process(ctx context.Context, task tasks.DocumentProcessingTask) error {
	_, err := p.Run(ctx, task)
	return err
}

// Run 是文档处理的主函数：读取资产文本、切块、替换块记录，按需写入向量库。
// ReplaceExisting 为 false 且资产已有块时跳过切块，保证重复投递的任务不会产生重复的块；
// 此时若要求索引，则索引已有的块。
func (p *Processor) Run(ctx context.Context, task tasks.DocumentProcessingTask) (Result, error) {
	res := Result{FileID: task.FileID}
	chunkSize, chunkOverlap := task.ChunkSize, task.ChunkOverlap
	if chunkSize == 0 {
		chunkSize, chunkOverlap = p.defaults.ChunkSize, p.defaults.ChunkOverlap
	}
	log.Infof("[Processor] 开始处理文档, project=%s, file=%s, chunkSize=%d, chunkOverlap=%d",
		task.ProjectID, task.FileID, chunkSize, chunkOverlap)

	// 1. 查找资产记录
	asset, err := p.assetRepo.FindByName(ctx, task.ProjectID, task.FileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return res, errs.New(errs.KindAssetNotFound, "pipeline.Run", "asset %q not found in project %s", task.FileID, task.ProjectID)
	}
	if err != nil {
		return res, fmt.Errorf("查询资产记录失败: %w", err)
	}

	if !task.ReplaceExisting {
		n, err := p.chunkRepo.CountByAsset(ctx, task.ProjectID, asset.ID)
		if err != nil {
			return res, fmt.Errorf("统计已有分块失败: %w", err)
		}
		if n > 0 {
			log.Infof("[Processor] 资产 %s 已有 %d 个分块且未要求替换, 跳过切块", asset.Name, n)
			res.Skipped = true
			res.Chunks = int(n)
			if task.Index {
				return p.indexExisting(ctx, task.ProjectID, asset.ID, res)
			}
			return res, nil
		}
	}

	// 2. 从对象存储读取文本
	data, err := p.store.Get(ctx, asset.ObjectName)
	if err != nil {
		log.Errorf("[Processor] 读取资产文本失败, Object: %s, Error: %v", asset.ObjectName, err)
		return res, fmt.Errorf("读取资产文本失败: %w", err)
	}
	if !utf8.Valid(data) {
		return res, errs.InvalidParameter("pipeline.Run", "asset %q is not valid UTF-8 text", asset.Name)
	}
	log.Infof("[Processor] 步骤2: 文本读取成功, 内容长度: %d 字符", utf8.RuneCount(data))

	// 3. 文本切块
	chunks, err := p.splitter.SplitDocument(chunker.Document{
		ProjectID: task.ProjectID,
		FileID:    asset.Name,
		Text:      string(data),
		Metadata:  map[string]any{"asset_id": asset.ID},
	}, chunkSize, chunkOverlap)
	if err != nil {
		return res, err
	}
	log.Infof("[Processor] 步骤3: 文本分块完成, 共生成 %d 个分块", len(chunks))

	// 4. 替换该资产的分块记录
	if err := p.chunkRepo.ReplaceForAsset(ctx, task.ProjectID, asset.ID, model.ChunksFromChunker(task.ProjectID, asset.ID, chunks)); err != nil {
		log.Errorf("[Processor] 保存分块失败, Error: %v", err)
		return res, fmt.Errorf("批量保存文本分块失败: %w", err)
	}
	res.Chunks = len(chunks)

	// 5. 按需写入向量库
	if task.Index && p.indexer != nil && len(chunks) > 0 {
		ir, err := p.indexer.Index(ctx, task.ProjectID, chunks, false)
		if err != nil {
			log.Errorf("[Processor] 写入向量库失败, Error: %v", err)
			return res, err
		}
		res.Indexed = ir.Indexed
	}

	log.Infof("[Processor] 文档处理成功完成, project=%s, file=%s, chunks=%d", task.ProjectID, asset.Name, res.Chunks)
	return res, nil
}

// indexExisting 把资产已有的块写入向量库。
func (p *Processor) indexExisting(ctx context.Context, projectID, assetID string, res Result) (Result, error) {
	if p.indexer == nil {
		return res, nil
	}
	stored, err := p.chunkRepo.FindByAsset(ctx, projectID, assetID)
	if err != nil {
		return res, fmt.Errorf("读取已有分块失败: %w", err)
	}
	chunks := make([]chunker.Chunk, len(stored))
	for i, c := range stored {
		chunks[i] = c.ToChunker()
	}
	ir, err := p.indexer.Index(ctx, projectID, chunks, false)
	if err != nil {
		log.Errorf("[Processor] 写入向量库失败, Error: %v", err)
		return res, err
	}
	res.Indexed = ir.Indexed
	return res, nil
}
