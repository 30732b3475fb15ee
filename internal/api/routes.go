package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func SetupRoutes(router *gin.Engine, searcher Searcher, store PropertyStore, q BatchEnqueuer, maxBatch int, logger *logrus.Logger) {
	handler := NewHandler(searcher, store, q, maxBatch, logger)

	api := router.Group("/api")
	{
		api.POST("/comparables/search", handler.SearchComparables)
		api.POST("/properties/batch", handler.BatchUpsert)
		api.GET("/properties/:reference", handler.GetProperty)
		api.GET("/stats", handler.GetStats)
	}
}
