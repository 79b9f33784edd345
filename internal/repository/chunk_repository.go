package repository

import (
	"context"

	"lite-rag-go/internal/model"

	"gorm.io/gorm"
)

// ChunkRepository 定义了对 chunks 表的数据操作接口。
type ChunkRepository interface {
	// ReplaceForAsset 在一个事务中删除资产已有的块并写入新块。
	ReplaceForAsset(ctx context.Context, projectID, assetID string, chunks []*model.Chunk) error
	// FindByProject 按 (file_id, chunk_order) 顺序返回项目的全部块。
	FindByProject(ctx context.Context, projectID string) ([]*model.Chunk, error)
	// FindByAsset 按 chunk_order 顺序返回单个资产的块。
	FindByAsset(ctx context.Context, projectID, assetID string) ([]*model.Chunk, error)
	CountByAsset(ctx context.Context, projectID, assetID string) (int64, error)
	DeleteByAsset(ctx context.Context, projectID, assetID string) error
	DeleteByProject(ctx context.Context, projectID string) error
}

type chunkRepository struct {
	db *gorm.DB
}

// NewChunkRepository 创建一个新的 ChunkRepository 实例。
func NewChunkRepository(db *gorm.DB) ChunkRepository {
	return &chunkRepository{db: db}
}

func (r *chunkRepository) ReplaceForAsset(ctx context.Context, projectID, assetID string, chunks []*model.Chunk) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ? AND asset_id = ?", projectID, assetID).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(chunks, 100).Error // 每100条记录一批
	})
}

func (r *chunkRepository) FindByProject(ctx context.Context, projectID string) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("file_id asc").Order("chunk_order asc").
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) FindByAsset(ctx context.Context, projectID, assetID string) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := r.db.WithContext(ctx).
		Where("project_id = ? AND asset_id = ?", projectID, assetID).
		Order("chunk_order asc").
		Find(&chunks).Error
	return chunks, err
}

func (r *chunkRepository) CountByAsset(ctx context.Context, projectID, assetID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Chunk{}).
		Where("project_id = ? AND asset_id = ?", projectID, assetID).
		Count(&n).Error
	return n, err
}

func (r *chunkRepository) DeleteByAsset(ctx context.Context, projectID, assetID string) error {
	return r.db.WithContext(ctx).Where("project_id = ? AND asset_id = ?", projectID, assetID).Delete(&model.Chunk{}).Error
}

func (r *chunkRepository) DeleteByProject(ctx context.Context, projectID string) error {
	return r.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.Chunk{}).Error
}
