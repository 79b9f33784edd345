package handler

import "github.com/gin-gonic/gin"

// Root 返回应用名称与版本。
func Root(name, version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		respondOK(c, "ok", gin.H{"app_name": name, "app_version": version})
	}
}

// Health 是存活探针，不检查下游依赖。
func Health(c *gin.Context) {
	respondOK(c, "ok", gin.H{"status": "ok"})
}
