package handler

import (
	"lite-rag-go/internal/middleware"
	"lite-rag-go/internal/model"
	"lite-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// RAGHandler 负责处理检索增强问答请求。
type RAGHandler struct {
	ragService  service.RAGService
	defaultTopK int
}

// NewRAGHandler 创建一个新的 RAGHandler 实例。
func NewRAGHandler(ragService service.RAGService, defaultTopK int) *RAGHandler {
	return &RAGHandler{ragService: ragService, defaultTopK: defaultTopK}
}

// Generate 处理 RAG 问答请求。省略 top_k 时使用配置的默认值。
func (h *RAGHandler) Generate(c *gin.Context) {
	project := middleware.ProjectFrom(c)

	var body model.GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "无效的请求体: query 不能为空")
		return
	}
	req := model.RagRequest{
		ProjectID:       project.ID,
		Query:           body.Query,
		TopK:            h.defaultTopK,
		Threshold:       body.Threshold,
		Temperature:     body.Temperature,
		MaxOutputTokens: body.MaxOutputTokens,
		Locale:          body.Locale,
	}
	if body.TopK != nil {
		req.TopK = *body.TopK
	}

	res, err := h.ragService.GenerateAnswer(c.Request.Context(), req)
	if err != nil {
		respondError(c, "GenerateAnswer", err)
		return
	}
	respondOK(c, "生成成功", res)
}
