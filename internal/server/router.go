package server

import (
	"net/http"
	"time"

	"watchparty/internal/config"
	"watchparty/internal/metrics"
	"watchparty/internal/mw"
	"watchparty/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter 统一初始化 Gin 中间件、REST API、WebSocket 端点以及静态资源。
func SetupRouter(cfg config.Config, hub *ws.Hub, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，避免被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": hub.Online(config.DefaultRoom)})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/upload", h.Upload)
	r.GET("/videos", h.ListVideos)
	r.POST("/videos/current", h.SetCurrentVideo)
	r.POST("/ai-chat", h.AIChat)

	r.GET("/ws", ws.Serve(hub, cfg))

	if cfg.StorageBackend != "gcs" && cfg.UploadPath != "" {
		r.Static("/uploads", cfg.UploadPath)
	}
	if cfg.PublicDir != "" {
		files := http.FileServer(http.Dir(cfg.PublicDir))
		r.NoRoute(func(c *gin.Context) {
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			files.ServeHTTP(c.Writer, c.Request)
		})
	}
	return r
}
