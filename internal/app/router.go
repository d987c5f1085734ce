package app

import (
	"course_video_backend/docs"
	"course_video_backend/internal/config"
	"course_video_backend/internal/middleware"
	"course_video_backend/internal/model"

	"course_video_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		// 观看追踪：开会话、上报事件、查自己的进度与标记
		trackingGroup := authGroup.Group("/tracking")
		{
			trackingGroup.POST("/sessions", c.tracking.StartSession)
			trackingGroup.POST("/events", c.tracking.IngestBatch)
			trackingGroup.GET("/progress/:lessonId", c.tracking.GetProgress)
			trackingGroup.GET("/watched", c.tracking.ListWatched)
		}
	}

	// 3. 管理端路由：admin 与 org_admin，范围裁剪在服务层统一裁决
	adminGroup := router.Group("/api/admin")
	adminGroup.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin, model.OrgAdmin))
	{
		adminGroup.GET("/tracking/progress", c.admin.ListStudentProgress)
	}
}
