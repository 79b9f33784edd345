package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"lite-rag-go/internal/model"
	"lite-rag-go/internal/repository"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssetService 接口定义了资产上传相关的业务操作。
type AssetService interface {
	// Upload 保存一段纯文本资产。同名资产会被覆盖，ID 保持不变。
	Upload(ctx context.Context, projectID, name string, content []byte) (*model.Asset, error)
	List(ctx context.Context, projectID string) ([]model.Asset, error)
	// Delete 删除一个资产（按 ID 或名称）及其块和存储对象。
	// 已写入向量库的向量要等下一次 do_reset 索引才会清除。
	Delete(ctx context.Context, projectID, ref string) error
	// DeleteAll 删除项目下的全部资产，项目没有资产时返回 AssetNotFound。
	DeleteAll(ctx context.Context, projectID string) (int64, error)
}

type assetService struct {
	assetRepo repository.AssetRepository
	chunkRepo repository.ChunkRepository
	store     storage.Store
	maxSize   int64
}

// NewAssetService 创建一个新的 AssetService 实例。maxSize<=0 表示不限制大小。
func NewAssetService(assetRepo repository.AssetRepository, chunkRepo repository.ChunkRepository, store storage.Store, maxSize int64) AssetService {
	return &assetService{assetRepo: assetRepo, chunkRepo: chunkRepo, store: store, maxSize: maxSize}
}

func (s *assetService) Upload(ctx context.Context, projectID, name string, content []byte) (*model.Asset, error) {
	const op = "service.UploadAsset"
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || len(name) > 255 {
		return nil, errs.InvalidParameter(op, "非法的资产名称: %q", name)
	}
	if len(content) == 0 {
		return nil, errs.InvalidParameter(op, "资产 %q 内容为空", name)
	}
	if s.maxSize > 0 && int64(len(content)) > s.maxSize {
		return nil, errs.InvalidParameter(op, "资产 %q 大小 %d 超过上限 %d", name, len(content), s.maxSize)
	}
	if !utf8.Valid(content) {
		return nil, errs.InvalidParameter(op, "资产 %q 不是合法的 UTF-8 文本", name)
	}

	asset := &model.Asset{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Name:       name,
		Type:       model.AssetTypeText,
		Size:       int64(len(content)),
		ObjectName: storage.ObjectName(projectID, name),
	}
	if err := s.store.Put(ctx, asset.ObjectName, content); err != nil {
		log.Errorf("[AssetService] 上传资产到对象存储失败, Object: %s, Error: %v", asset.ObjectName, err)
		return nil, fmt.Errorf("保存资产失败: %w", err)
	}
	if err := s.assetRepo.Upsert(ctx, asset); err != nil {
		return nil, fmt.Errorf("保存资产记录失败: %w", err)
	}
	log.Infof("[AssetService] 资产已保存, project: %s, name: %s, size: %d", projectID, name, asset.Size)
	return asset, nil
}

func (s *assetService) List(ctx context.Context, projectID string) ([]model.Asset, error) {
	return s.assetRepo.ListByProject(ctx, projectID)
}

func (s *assetService) Delete(ctx context.Context, projectID, ref string) error {
	const op = "service.DeleteAsset"
	asset, err := s.resolve(ctx, projectID, ref)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.New(errs.KindAssetNotFound, op, "资产 %s 不存在", ref)
		}
		return fmt.Errorf("查询资产失败: %w", err)
	}

	if err := s.chunkRepo.DeleteByAsset(ctx, projectID, asset.ID); err != nil {
		return fmt.Errorf("删除资产分块失败: %w", err)
	}
	if err := s.assetRepo.Delete(ctx, projectID, asset.ID); err != nil {
		return fmt.Errorf("删除资产记录失败: %w", err)
	}
	if err := s.store.Remove(ctx, asset.ObjectName); err != nil {
		log.Errorf("[AssetService] 删除存储对象失败, Object: %s, Error: %v", asset.ObjectName, err)
		return fmt.Errorf("删除存储对象失败: %w", err)
	}
	log.Infof("[AssetService] 资产已删除, project: %s, name: %s", projectID, asset.Name)
	return nil
}

// resolve 先按 ID 查找，找不到再按名称查找。
func (s *assetService) resolve(ctx context.Context, projectID, ref string) (*model.Asset, error) {
	asset, err := s.assetRepo.FindByID(ctx, projectID, ref)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.assetRepo.FindByName(ctx, projectID, ref)
	}
	return asset, err
}

func (s *assetService) DeleteAll(ctx context.Context, projectID string) (int64, error) {
	const op = "service.DeleteAllAssets"
	assets, err := s.assetRepo.ListByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("查询资产失败: %w", err)
	}
	if len(assets) == 0 {
		return 0, errs.New(errs.KindAssetNotFound, op, "项目 %s 没有资产", projectID)
	}

	if err := s.chunkRepo.DeleteByProject(ctx, projectID); err != nil {
		return 0, fmt.Errorf("删除项目分块失败: %w", err)
	}
	n, err := s.assetRepo.DeleteByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("删除资产记录失败: %w", err)
	}
	if err := s.store.RemovePrefix(ctx, storage.ProjectPrefix(projectID)); err != nil {
		return 0, fmt.Errorf("删除存储对象失败: %w", err)
	}
	log.Infof("[AssetService] 项目 %s 的 %d 个资产已删除", projectID, n)
	return n, nil
}
