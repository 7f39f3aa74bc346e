package routes

import (
	"time"

	"workspace-service/internal/api/handlers"
	"workspace-service/internal/api/middleware"
	"workspace-service/internal/services"
	"workspace-service/internal/websocket"
	"workspace-service/internal/workspace"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Router struct {
	engine           *gin.Engine
	wsHandler        *handlers.WebSocketHandler
	notifyHandler    *handlers.NotifyHandler
	statusHandler    *handlers.StatusHandler
	workspaceHandler *workspace.Handler
	rateLimitMW      *middleware.RateLimitMiddleware
	identityMW       *middleware.IdentityMiddleware
}

func NewRouter(
	hub *websocket.Hub,
	redisService *services.RedisService,
	db *gorm.DB,
	sink handlers.EventSink,
	jwtSecret string,
) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	// Add middlewares
	engine.Use(gin.Recovery())
	engine.Use(middleware.CORS())
	engine.Use(middleware.LogApi())

	// The registry is optional; without a database the service runs as a pure
	// relay and the CRUD surface stays unregistered.
	var workspaceHandler *workspace.Handler
	if db != nil {
		repo := workspace.NewRepository(db)
		workspaceHandler = workspace.NewHandler(workspace.NewService(repo, sink))
	}

	return &Router{
		engine:           engine,
		wsHandler:        handlers.NewWebSocketHandler(hub),
		notifyHandler:    handlers.NewNotifyHandler(sink),
		statusHandler:    handlers.NewStatusHandler(hub, redisService),
		workspaceHandler: workspaceHandler,
		rateLimitMW:      middleware.NewRateLimitMiddleware(redisService),
		identityMW:       middleware.NewIdentityMiddleware(jwtSecret),
	}
}

func (r *Router) SetupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// WebSocket endpoint with identity checking and rate limiting
	r.engine.GET("/ws",
		r.identityMW.WebSocketIdentity(),
		r.rateLimitMW.WebSocketRateLimit(10, time.Minute), // 10 connections per minute
		r.wsHandler.HandleWebSocket,
	)

	api := r.engine.Group("/api/v1")

	// Event injection for collaborating backend services
	notify := api.Group("/")
	notify.Use(r.rateLimitMW.RateLimitIP(200, time.Minute)) // 200 requests per minute per IP
	{
		notify.POST("/notify", r.notifyHandler.HandleNotify)
	}

	// Status and presence queries
	status := api.Group("/")
	status.Use(r.rateLimitMW.RateLimitIP(100, time.Minute)) // 100 requests per minute per IP
	{
		status.GET("/users/online", r.statusHandler.GetOnlineUsers)
		status.GET("/users/:id/status", r.statusHandler.GetUserStatus)
		status.GET("/presence/:resourceId", r.statusHandler.GetResourcePresence)
	}

	if r.workspaceHandler != nil {
		registry := api.Group("/")
		registry.Use(r.rateLimitMW.RateLimitIP(100, time.Minute)) // 100 requests per minute per IP
		r.workspaceHandler.RegisterRoutes(registry)
	}
}

func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
