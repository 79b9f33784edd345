// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"

	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// statusFor 把错误种类映射为 HTTP 状态码。未分类的错误按 500 处理。
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindInvalidParameter:
		return http.StatusBadRequest
	case errs.KindIndexNotFound, errs.KindIndexEmpty, errs.KindNoRelevantContext,
		errs.KindProjectNotFound, errs.KindAssetNotFound:
		return http.StatusNotFound
	case errs.KindProviderError, errs.KindGenerationFailed, errs.KindRagGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError 按错误种类返回统一的错误响应：{"error": 诊断信息, "kind": 种类}。
func respondError(c *gin.Context, op string, err error) {
	kind := errs.KindOf(err)
	status := statusFor(kind)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: failed, kind: %s, err: %v", op, kind, err)
	} else {
		log.Warnf("%s: rejected, kind: %s, err: %v", op, kind, err)
	}

	body := gin.H{"error": errs.Message(err)}
	if kind != "" {
		body["kind"] = kind
	}
	c.JSON(status, body)
}

func respondOK(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": message,
		"data":    data,
	})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "kind": errs.KindInvalidParameter})
}
