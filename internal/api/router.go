package api

import (
	"better-share/internal/interfaces"
	"better-share/internal/middleware"
	"better-share/internal/service"
	"better-share/internal/storage"

	"github.com/gin-gonic/gin"
)

// RouterDeps 是构建路由需要的组件，LocalStore和Hub可以为nil
type RouterDeps struct {
	Shares         *service.ShareService
	Hub            interfaces.WatcherHub
	LocalStore     *storage.LocalStore
	RateLimiter    *middleware.RateLimiter
	MaxUploadBytes int64
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestID(), middleware.GinZapLogger())

	shareHandler := NewShareHandler(deps.Shares)

	apiGroup := r.Group("/api")
	apiGroup.GET("/health", Health)

	create := []gin.HandlerFunc{shareHandler.CreatePresign}
	if deps.RateLimiter != nil {
		create = append([]gin.HandlerFunc{middleware.RateLimit(deps.RateLimiter)}, create...)
	}
	apiGroup.POST("/share/presign", create...)

	apiGroup.GET("/share/:id", middleware.Gzip(), shareHandler.GetShare)

	// 需要分享密钥的路由
	protected := apiGroup.Group("/share/:id", middleware.RequireShareSecret())
	{
		protected.POST("/presign", shareHandler.SyncPresign)
		protected.DELETE("", shareHandler.DeleteShare)
	}

	if deps.Hub != nil {
		liveHandler := NewLiveHandler(deps.Hub, deps.Shares)
		apiGroup.GET("/share/:id/live", liveHandler.HandleConnection)
	}

	if deps.LocalStore != nil {
		storageHandler := NewStorageHandler(deps.LocalStore, deps.Shares, deps.MaxUploadBytes)
		apiGroup.PUT("/storage/*key", storageHandler.Upload)
	}

	return r
}
