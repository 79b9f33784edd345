package handler

import (
	"net/http"

	"lite-rag-go/internal/middleware"
	"lite-rag-go/internal/model"
	"lite-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理文档切块请求。
type DocumentHandler struct {
	docService service.DocumentService
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService) *DocumentHandler {
	return &DocumentHandler{docService: docService}
}

// Process 切分一个或全部资产。异步请求返回 202。
func (h *DocumentHandler) Process(c *gin.Context) {
	project := middleware.ProjectFrom(c)

	var req model.DocumentProcessingRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "无效的请求体")
			return
		}
	}

	res, err := h.docService.Process(c.Request.Context(), project.ID, req)
	if err != nil {
		respondError(c, "ProcessDocuments", err)
		return
	}
	if len(res.Enqueued) > 0 {
		c.JSON(http.StatusAccepted, gin.H{
			"code":    http.StatusAccepted,
			"message": "处理任务已提交",
			"data":    res,
		})
		return
	}
	respondOK(c, "文档处理完成", res)
}
