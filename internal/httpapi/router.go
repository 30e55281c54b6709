package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/driftcode/orchestra/internal/common/config"
	"github.com/driftcode/orchestra/internal/common/httpmw"
	"github.com/driftcode/orchestra/internal/common/logger"
	"github.com/driftcode/orchestra/internal/streaming"
)

// NewRouter builds the gin engine: global middleware (RequestID,
// Recovery, RequestLogger, OtelTracing, CORS), GET /health mounted
// unauthenticated, and every other route behind Auth + RateLimit +
// ErrorHandler per the configured API key and per-principal budget.
func NewRouter(cfg config.APIConfig, handler *Handler, streamHandler *streaming.Handler, log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(
		httpmw.RequestID(),
		httpmw.Recovery(log),
		httpmw.RequestLogger(log),
		httpmw.OtelTracing("orchestra-api"),
		httpmw.CORS(),
	)

	router.GET("/health", handler.Health)

	protected := router.Group("/")
	protected.Use(
		httpmw.Auth(cfg.Key, cfg.RequireAuth, log),
		httpmw.RateLimit(rateLimitOrDefault(cfg.RateLimit)),
		httpmw.ErrorHandler(log),
	)

	protected.POST("/tasks", handler.CreateTask)
	protected.GET("/tasks", handler.ListTasks)
	protected.GET("/tasks/:id", handler.GetTaskStatus)
	protected.GET("/tasks/:id/result", handler.GetTaskResult)
	protected.DELETE("/tasks/:id", handler.CancelTask)

	protected.GET("/agents", handler.ListAgents)
	protected.GET("/system/status", handler.SystemStatus)

	protected.POST("/updates", handler.CreateUpdate)
	protected.GET("/updates", handler.ListUpdates)
	protected.GET("/updates/:codename", handler.GetUpdate)
	protected.POST("/updates/:codename/approve", handler.ApproveUpdate)
	protected.POST("/updates/:codename/reject", handler.RejectUpdate)

	if streamHandler != nil {
		streaming.RegisterRoutes(protected, streamHandler)
	}

	return router
}

func rateLimitOrDefault(requestsPerMinute int) int {
	if requestsPerMinute <= 0 {
		return 60
	}
	return requestsPerMinute
}
