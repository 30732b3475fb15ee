package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"casaval/server/internal/matching"
	"casaval/server/internal/models"
	"casaval/server/internal/queue"
)

// Searcher runs comparable searches. Implemented by *matching.Engine.
type Searcher interface {
	Search(ctx context.Context, criteria *models.SearchCriteria) (*matching.SearchResult, error)
}

// PropertyStore is the read surface the handlers need.
type PropertyStore interface {
	GetByReference(ctx context.Context, reference string) (*models.PropertyRecord, error)
	Stats(ctx context.Context) (models.StoreStats, error)
}

// BatchEnqueuer accepts property batches for asynchronous ingestion.
type BatchEnqueuer interface {
	Push(properties []*models.PropertyRecord) error
}

type Handler struct {
	searcher Searcher
	store    PropertyStore
	queue    BatchEnqueuer
	maxBatch int
	logger   *logrus.Logger
}

func NewHandler(searcher Searcher, store PropertyStore, q BatchEnqueuer, maxBatch int, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		searcher: searcher,
		store:    store,
		queue:    q,
		maxBatch: maxBatch,
		logger:   logger,
	}
}

// SearchComparables runs a relaxation search for the posted criteria. An
// exhausted search is still a 200 with whatever was found.
func (h *Handler) SearchComparables(c *gin.Context) {
	var criteria models.SearchCriteria
	if err := c.ShouldBindJSON(&criteria); err != nil {
		h.logger.WithError(err).Error("Failed to parse search request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := h.searcher.Search(c.Request.Context(), &criteria)
	if err != nil {
		if errors.Is(err, matching.ErrInvalidCriteria) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.WithError(err).Error("Comparable search failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search comparables"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// BatchUpsert enqueues a batch of property records for ingestion.
func (h *Handler) BatchUpsert(c *gin.Context) {
	var properties []*models.PropertyRecord
	if err := c.ShouldBindJSON(&properties); err != nil {
		h.logger.WithError(err).Error("Failed to parse batch request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if len(properties) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Batch is empty"})
		return
	}
	if h.maxBatch > 0 && len(properties) > h.maxBatch {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Batch exceeds maximum size of %d", h.maxBatch)})
		return
	}

	if err := h.queue.Push(properties); err != nil {
		if errors.Is(err, queue.ErrQueueFull) || errors.Is(err, queue.ErrQueueClosed) {
			h.logger.WithError(err).WithField("batch_size", len(properties)).Warn("Batch rejected")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion queue is not accepting batches, retry later"})
			return
		}
		h.logger.WithError(err).Error("Failed to enqueue batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue batch"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status": "accepted",
		"count":  len(properties),
	})
}

// GetProperty returns a single property by its listing reference.
func (h *Handler) GetProperty(c *gin.Context) {
	reference := c.Param("reference")

	property, err := h.store.GetByReference(c.Request.Context(), reference)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get property")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get property"})
		return
	}
	if property == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Property not found"})
		return
	}

	c.JSON(http.StatusOK, property)
}

// GetStats returns store totals and the current index snapshot state.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get store stats")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get store stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
