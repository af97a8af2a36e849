package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/roomchat/roomchat/internal/devserver"
)

// NewRouter builds the dev server's routes: /health, /ws and the history API.
func NewRouter(svc *devserver.Service, repo HistoryReader) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Enable CORS for development
	r.Use(corsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"clients": svc.ClientCount(),
		})
	})

	NewWebSocketHandler(svc.Handler()).RegisterRoutes(r)

	api := r.Group("/api")
	{
		NewHistoryHandler(repo).RegisterRoutes(api)
	}

	return r
}

// corsMiddleware returns a CORS middleware for development.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
