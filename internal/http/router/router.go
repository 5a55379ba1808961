package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"basegraph.app/scribe/internal/http/handler"
	"basegraph.app/scribe/internal/queue"
	"basegraph.app/scribe/internal/service"
)

type RouterConfig struct {
	Reports service.ReportService
	// Transcripts is nil when Redis is not configured.
	Transcripts queue.Reader
	StreamBlock time.Duration
}

func SetupRoutes(router *gin.Engine, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		reportHandler := handler.NewReportHandler(cfg.Reports, cfg.Transcripts, cfg.StreamBlock)
		ReportRouter(v1.Group("/reports"), reportHandler)
	}
}
