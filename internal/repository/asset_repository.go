package repository

import (
	"context"

	"lite-rag-go/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AssetRepository 定义了对 assets 表的数据操作接口。
type AssetRepository interface {
	// Upsert 按 (project_id, name) 创建或覆盖资产记录，重复上传同名文件会更新大小与对象名。
	Upsert(ctx context.Context, asset *model.Asset) error
	FindByName(ctx context.Context, projectID, name string) (*model.Asset, error)
	FindByID(ctx context.Context, projectID, id string) (*model.Asset, error)
	ListByProject(ctx context.Context, projectID string) ([]model.Asset, error)
	// Delete 删除单个资产记录，不存在时返回 gorm.ErrRecordNotFound。
	Delete(ctx context.Context, projectID, id string) error
	// DeleteByProject 删除项目下的全部资产记录，返回删除的条数。
	DeleteByProject(ctx context.Context, projectID string) (int64, error)
}

type assetRepository struct {
	db *gorm.DB
}

// NewAssetRepository 创建一个新的 AssetRepository 实例。
func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) Upsert(ctx context.Context, asset *model.Asset) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "project_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"size", "type", "object_name", "updated_at"}),
	}).Create(asset).Error
	if err != nil {
		return err
	}
	// 冲突更新时主键沿用已有记录
	stored, err := r.FindByName(ctx, asset.ProjectID, asset.Name)
	if err != nil {
		return err
	}
	asset.ID = stored.ID
	asset.CreatedAt = stored.CreatedAt
	return nil
}

// FindByName 查找资产，不存在时返回 gorm.ErrRecordNotFound。
func (r *assetRepository) FindByName(ctx context.Context, projectID, name string) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).Where("project_id = ? AND name = ?", projectID, name).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepository) ListByProject(ctx context.Context, projectID string) ([]model.Asset, error) {
	var assets []model.Asset
	err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("name asc").Find(&assets).Error
	return assets, err
}

// FindByID 查找资产，不存在时返回 gorm.ErrRecordNotFound。
func (r *assetRepository) FindByID(ctx context.Context, projectID, id string) (*model.Asset, error) {
	var asset model.Asset
	err := r.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, id).First(&asset).Error
	if err != nil {
		return nil, err
	}
	return &asset, nil
}

func (r *assetRepository) Delete(ctx context.Context, projectID, id string) error {
	res := r.db.WithContext(ctx).Where("project_id = ? AND id = ?", projectID, id).Delete(&model.Asset{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *assetRepository) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("project_id = ?", projectID).Delete(&model.Asset{})
	return res.RowsAffected, res.Error
}
