package middleware

import (
	"net/http"

	"lite-rag-go/internal/model"
	"lite-rag-go/internal/service"
	"lite-rag-go/pkg/errs"
	"lite-rag-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ProjectKey 是项目对象在 Gin 上下文中的键。
const ProjectKey = "project"

// ProjectLoader 创建一个 Gin 中间件，按路径参数 project_id 加载项目并存入上下文。
// 项目不存在时中止请求并返回 404。
func ProjectLoader(projectService service.ProjectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		projectID := c.Param("project_id")
		if projectID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "缺少 project_id", "kind": errs.KindInvalidParameter})
			return
		}

		project, err := projectService.Get(c.Request.Context(), projectID)
		if err != nil {
			if errs.KindOf(err) == errs.KindProjectNotFound {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": errs.Message(err), "kind": errs.KindProjectNotFound})
				return
			}
			log.Errorf("ProjectLoader: 加载项目 %s 失败: %v", projectID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "加载项目失败"})
			return
		}

		c.Set(ProjectKey, project)
		c.Next()
	}
}

// ProjectFrom 取出 ProjectLoader 存入的项目。
func ProjectFrom(c *gin.Context) *model.Project {
	v, ok := c.Get(ProjectKey)
	if !ok {
		return nil
	}
	p, _ := v.(*model.Project)
	return p
}
