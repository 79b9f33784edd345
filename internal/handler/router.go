package handler

import (
	"lite-rag-go/internal/middleware"
	"lite-rag-go/internal/service"

	"github.com/gin-gonic/gin"
)

// Services 汇总路由需要的全部服务。
type Services struct {
	Projects  service.ProjectService
	Assets    service.AssetService
	Documents service.DocumentService
	Vectors   service.VectorService
	RAG       service.RAGService
}

// RouterOptions 是路由层使用的默认值。
type RouterOptions struct {
	DefaultTopK  int
	MaxAssetSize int64
	AppName      string
	AppVersion   string
}

// RegisterRoutes 在 /api/v1 下注册全部路由。/p/:project_id 下的路由先经过 ProjectLoader。
func RegisterRoutes(r gin.IRouter, s Services, opts RouterOptions) {
	projectHandler := NewProjectHandler(s.Projects)
	assetHandler := NewAssetHandler(s.Assets, opts.MaxAssetSize)
	documentHandler := NewDocumentHandler(s.Documents)
	vectorHandler := NewVectorHandler(s.Vectors, opts.DefaultTopK)
	ragHandler := NewRAGHandler(s.RAG, opts.DefaultTopK)

	apiV1 := r.Group("/api/v1")
	{
		apiV1.GET("/", Root(opts.AppName, opts.AppVersion))
		apiV1.GET("/health", Health)

		projects := apiV1.Group("/projects")
		{
			projects.POST("", projectHandler.Create)
			projects.GET("", projectHandler.List)

			loaded := projects.Group("/:project_id")
			loaded.Use(middleware.ProjectLoader(s.Projects))
			{
				loaded.GET("", projectHandler.Get)
				loaded.DELETE("", projectHandler.Delete)
			}
		}

		p := apiV1.Group("/p/:project_id")
		p.Use(middleware.ProjectLoader(s.Projects))
		{
			p.POST("/assets", assetHandler.Upload)
			p.GET("/assets", assetHandler.List)
			p.DELETE("/assets", assetHandler.DeleteAll)
			p.DELETE("/assets/:asset_id", assetHandler.Delete)
			p.POST("/documents/process", documentHandler.Process)
			p.POST("/vectors/index", vectorHandler.Index)
			p.GET("/vectors/info", vectorHandler.Info)
			p.POST("/vectors/query", vectorHandler.Query)
			p.POST("/rag/generate", ragHandler.Generate)
		}
	}
}
