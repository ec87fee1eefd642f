package handler

import (
	"github.com/backmoon7/webhookengine/internal/pipeline"
	"github.com/backmoon7/webhookengine/internal/reconcile"
	"github.com/backmoon7/webhookengine/internal/refund"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the three external endpoints of spec.md §6.
func SetupRouter(p *pipeline.Pipeline, r *reconcile.Reconciler, rf *refund.Service, signingSecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(CORSMiddleware())

	h := NewHandler(p, r, rf, signingSecret)

	router.POST("/webhooks/stripe", h.IngestWebhook)
	router.POST("/reconcile", h.Reconcile)
	router.POST("/refunds", h.CreateRefund)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return router
}
