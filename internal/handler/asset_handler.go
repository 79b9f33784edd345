package handler

import (
	"io"

	"lite-rag-go/internal/middleware"
	"lite-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// AssetHandler 负责处理纯文本资产的上传请求。
type AssetHandler struct {
	assetService service.AssetService
	maxSize      int64
}

// NewAssetHandler 创建一个新的 AssetHandler 实例。maxSize<=0 表示不限制。
func NewAssetHandler(assetService service.AssetService, maxSize int64) *AssetHandler {
	return &AssetHandler{assetService: assetService, maxSize: maxSize}
}

// Upload 处理 multipart 上传。表单字段 file 为文件内容，可选字段 name 覆盖文件名。
func (h *AssetHandler) Upload(c *gin.Context) {
	project := middleware.ProjectFrom(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "缺少上传文件字段 file")
		return
	}
	name := c.PostForm("name")
	if name == "" {
		name = fileHeader.Filename
	}

	file, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "无法读取上传文件")
		return
	}
	defer file.Close()

	var reader io.Reader = file
	if h.maxSize > 0 {
		// 多读一个字节，超限交给服务层判定
		reader = io.LimitReader(file, h.maxSize+1)
	}
	content, err := io.ReadAll(reader)
	if err != nil {
		badRequest(c, "无法读取上传文件")
		return
	}

	asset, err := h.assetService.Upload(c.Request.Context(), project.ID, name, content)
	if err != nil {
		respondError(c, "UploadAsset", err)
		return
	}
	respondOK(c, "资产上传成功", asset)
}

// List 列出项目下的全部资产。
func (h *AssetHandler) List(c *gin.Context) {
	project := middleware.ProjectFrom(c)
	assets, err := h.assetService.List(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, "ListAssets", err)
		return
	}
	respondOK(c, "获取资产列表成功", assets)
}

// Delete 删除单个资产。:asset_id 可以是资产 ID 或资产名称。
func (h *AssetHandler) Delete(c *gin.Context) {
	project := middleware.ProjectFrom(c)
	if err := h.assetService.Delete(c.Request.Context(), project.ID, c.Param("asset_id")); err != nil {
		respondError(c, "DeleteAsset", err)
		return
	}
	respondOK(c, "资产删除成功", nil)
}

// DeleteAll 删除项目下的全部资产。
func (h *AssetHandler) DeleteAll(c *gin.Context) {
	project := middleware.ProjectFrom(c)
	n, err := h.assetService.DeleteAll(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, "DeleteAllAssets", err)
		return
	}
	respondOK(c, "资产删除成功", gin.H{"deleted": n})
}
