// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lite-rag-go/internal/model"
	"lite-rag-go/internal/repository"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"
	"lite-rag-go/pkg/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// maxProjectIDLength 与 projects.id 列宽一致。
const maxProjectIDLength = 36

// ProjectService 接口定义了项目管理相关的业务操作。
type ProjectService interface {
	Create(ctx context.Context, req model.CreateProjectRequest) (*model.Project, error)
	Get(ctx context.Context, id string) (*model.Project, error)
	// GetOrCreate 按给定 ID 查找项目，不存在时以该 ID 创建。
	GetOrCreate(ctx context.Context, id string) (*model.Project, error)
	List(ctx context.Context, page, size int) ([]model.Project, int64, error)
	// Delete 删除项目的记录、向量集合和对象存储中的全部资产。
	Delete(ctx context.Context, id string) error
}

type projectService struct {
	projectRepo repository.ProjectRepository
	vectors     VectorIndex
	store       storage.Store
}

// NewProjectService 创建一个新的 ProjectService 实例。
func NewProjectService(projectRepo repository.ProjectRepository, vectors VectorIndex, store storage.Store) ProjectService {
	return &projectService{
		projectRepo: projectRepo,
		vectors:     vectors,
		store:       store,
	}
}

func (s *projectService) Create(ctx context.Context, req model.CreateProjectRequest) (*model.Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = model.DefaultProjectName
	}
	project := &model.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: req.Description,
	}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("创建项目失败: %w", err)
	}
	log.Infof("[ProjectService] 项目已创建, id: %s, name: %s", project.ID, project.Name)
	return project, nil
}

func (s *projectService) Get(ctx context.Context, id string) (*model.Project, error) {
	project, err := s.projectRepo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.New(errs.KindProjectNotFound, "service.GetProject", "项目 %s 不存在", id)
	}
	if err != nil {
		return nil, err
	}
	return project, nil
}

func (s *projectService) GetOrCreate(ctx context.Context, id string) (*model.Project, error) {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > maxProjectIDLength {
		return nil, errs.InvalidParameter("service.GetOrCreateProject", "project_id 长度必须在 1 到 %d 之间", maxProjectIDLength)
	}
	project, err := s.projectRepo.FindByID(ctx, id)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	project = &model.Project{ID: id, Name: model.DefaultProjectName}
	if err := s.projectRepo.Create(ctx, project); err != nil {
		return nil, fmt.Errorf("创建项目失败: %w", err)
	}
	log.Infof("[ProjectService] 项目 %s 不存在, 已自动创建", id)
	return project, nil
}

func (s *projectService) List(ctx context.Context, page, size int) ([]model.Project, int64, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return s.projectRepo.List(ctx, (page-1)*size, size)
}

func (s *projectService) Delete(ctx context.Context, id string) error {
	err := s.projectRepo.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.New(errs.KindProjectNotFound, "service.DeleteProject", "项目 %s 不存在", id)
	}
	if err != nil {
		return fmt.Errorf("删除项目记录失败: %w", err)
	}

	if err := s.vectors.Delete(ctx, id); err != nil {
		log.Errorf("[ProjectService] 删除项目 %s 的向量集合失败: %v", id, err)
		return err
	}
	if err := s.store.RemovePrefix(ctx, storage.ProjectPrefix(id)); err != nil {
		log.Errorf("[ProjectService] 删除项目 %s 的资产对象失败: %v", id, err)
		return fmt.Errorf("删除资产对象失败: %w", err)
	}
	log.Infof("[ProjectService] 项目 %s 已删除", id)
	return nil
}
