package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"petcare/internal/infra/config"
	"petcare/internal/infra/obs"
)

type ViewHTTP interface {
	Snapshot(c *gin.Context)
	Conversations(c *gin.Context)
	Refresh(c *gin.Context)
	Select(c *gin.Context)
	Deselect(c *gin.Context)
	SetRole(c *gin.Context)
	SetViewport(c *gin.Context)
	VisibleItems(c *gin.Context)
	Scroll(c *gin.Context)
	EndReached(c *gin.Context)
	LoadOlder(c *gin.Context)
	Send(c *gin.Context)
	Navigate(c *gin.Context)
}

type Handlers struct {
	View           ViewHTTP
	AuthMiddleware gin.HandlerFunc
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			obs.RequestIDHeader,
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)

	api := router.Group("/api/v1")
	if h.AuthMiddleware != nil {
		api.Use(h.AuthMiddleware)
	}
	if h.View != nil {
		api.GET("/view", h.View.Snapshot)
		api.POST("/view/refresh", h.View.Refresh)
		api.POST("/view/navigation", h.View.Navigate)
		api.GET("/conversations", h.View.Conversations)
		api.POST("/conversations/:id/select", h.View.Select)
		api.DELETE("/selection", h.View.Deselect)
		api.PUT("/role", h.View.SetRole)

		viewport := api.Group("/viewport")
		viewport.PUT("", h.View.SetViewport)
		viewport.POST("/visible", h.View.VisibleItems)
		viewport.POST("/scroll", h.View.Scroll)
		viewport.POST("/end", h.View.EndReached)

		api.POST("/history/older", h.View.LoadOlder)
		api.POST("/messages", h.View.Send)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
