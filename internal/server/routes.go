package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cesilk/comfy-nodes/internal/app"
)

func (s *Server) SetupRoutes(app *app.App) {
	// Health check endpoint
	s.ginEngine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s.ginEngine.GET("/object_info", handlerWrapper(app, GetObjectInfo))
	s.ginEngine.GET("/object_info/:class", handlerWrapper(app, GetNodeInfo))

	s.ginEngine.POST("/prompt", handlerWrapper(app, QueuePrompt))
	s.ginEngine.GET("/history", handlerWrapper(app, ListHistory))
	s.ginEngine.GET("/history/:prompt_id", handlerWrapper(app, GetHistory))

	s.ginEngine.GET("/view", handlerWrapper(app, ViewFile))
}

func handlerWrapper(app *app.App, f func(c *gin.Context)) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.Set("app", app)
		f(ctx)
	}
}
