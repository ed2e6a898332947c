package api

import "github.com/gin-gonic/gin"

func registerRoutes(engine *gin.Engine, h *handlers) {
	engine.GET("/healthz", h.handleHealth)
	engine.GET("/readyz", h.handleReady)

	v1 := engine.Group("/api/v1")
	{
		v1.POST("/validate", h.handleValidate)
		v1.POST("/snapshots", h.handleIngestSnapshot)
		v1.GET("/snapshots/:dataset", h.handleListSnapshots)
		v1.GET("/schemas", h.handleListSchemas)
		v1.GET("/schemas/:dataset", h.handleGetSchema)
		v1.PUT("/schemas/:dataset/comparators/:kind", h.handleDeclareComparator)
	}
}
