package handler

import (
	"lite-rag-go/internal/middleware"
	"lite-rag-go/internal/model"
	"lite-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// VectorHandler 负责处理向量索引与相似检索请求。
type VectorHandler struct {
	vectorService service.VectorService
	defaultTopK   int
}

// NewVectorHandler 创建一个新的 VectorHandler 实例。
func NewVectorHandler(vectorService service.VectorService, defaultTopK int) *VectorHandler {
	return &VectorHandler{vectorService: vectorService, defaultTopK: defaultTopK}
}

// Index 把项目的全部分块写入向量库。
func (h *VectorHandler) Index(c *gin.Context) {
	project := middleware.ProjectFrom(c)

	var req model.IndexRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "无效的请求体")
			return
		}
	}

	res, err := h.vectorService.Index(c.Request.Context(), project.ID, req.Reset)
	if err != nil {
		respondError(c, "IndexProject", err)
		return
	}
	respondOK(c, "索引完成", res)
}

// Info 返回项目向量集合的信息。
func (h *VectorHandler) Info(c *gin.Context) {
	project := middleware.ProjectFrom(c)
	info, err := h.vectorService.Info(c.Request.Context(), project.ID)
	if err != nil {
		respondError(c, "IndexInfo", err)
		return
	}
	respondOK(c, "获取索引信息成功", info)
}

// Query 处理相似检索请求。
func (h *VectorHandler) Query(c *gin.Context) {
	project := middleware.ProjectFrom(c)

	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "无效的请求体: text 不能为空")
		return
	}
	topK := h.defaultTopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	threshold := 0.0
	if req.Threshold != nil {
		threshold = *req.Threshold
	}

	res, err := h.vectorService.RetrieveSimilar(c.Request.Context(), project.ID, req.Text, topK, threshold)
	if err != nil {
		respondError(c, "QueryProject", err)
		return
	}
	respondOK(c, "检索成功", res)
}
