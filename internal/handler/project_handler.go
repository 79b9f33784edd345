package handler

import (
	"net/http"
	"strconv"

	"lite-rag-go/internal/middleware"
	"lite-rag-go/internal/model"
	"lite-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// ProjectHandler 负责处理项目的创建、查询与删除请求。
type ProjectHandler struct {
	projectService service.ProjectService
}

// NewProjectHandler 创建一个新的 ProjectHandler 实例。
func NewProjectHandler(projectService service.ProjectService) *ProjectHandler {
	return &ProjectHandler{projectService: projectService}
}

// Create 处理创建项目的请求。请求体可以为空。
func (h *ProjectHandler) Create(c *gin.Context) {
	var req model.CreateProjectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "无效的请求体")
			return
		}
	}

	project, err := h.projectService.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, "CreateProject", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "项目创建成功",
		"data":    project,
	})
}

// List 处理分页查询项目的请求。
func (h *ProjectHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	projects, total, err := h.projectService.List(c.Request.Context(), page, size)
	if err != nil {
		respondError(c, "ListProjects", err)
		return
	}
	respondOK(c, "获取项目列表成功", gin.H{
		"content":       projects,
		"totalElements": total,
		"number":        page,
		"size":          size,
	})
}

// Get 返回由 ProjectLoader 加载的项目。
func (h *ProjectHandler) Get(c *gin.Context) {
	respondOK(c, "获取项目成功", middleware.ProjectFrom(c))
}

// Delete 处理删除项目的请求，同时删除其资产、分块和向量集合。
func (h *ProjectHandler) Delete(c *gin.Context) {
	project := middleware.ProjectFrom(c)
	if err := h.projectService.Delete(c.Request.Context(), project.ID); err != nil {
		respondError(c, "DeleteProject", err)
		return
	}
	respondOK(c, "项目删除成功", nil)
}
