package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"casaval/server/internal/matching"
	"casaval/server/internal/models"
	"casaval/server/internal/queue"
)

type MockSearcher struct {
	mock.Mock
}

func (m *MockSearcher) Search(ctx context.Context, criteria *models.SearchCriteria) (*matching.SearchResult, error) {
	args := m.Called(ctx, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*matching.SearchResult), args.Error(1)
}

type MockPropertyStore struct {
	mock.Mock
}

func (m *MockPropertyStore) GetByReference(ctx context.Context, reference string) (*models.PropertyRecord, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PropertyRecord), args.Error(1)
}

func (m *MockPropertyStore) Stats(ctx context.Context) (models.StoreStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.StoreStats), args.Error(1)
}

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Push(properties []*models.PropertyRecord) error {
	args := m.Called(properties)
	return args.Error(0)
}

func newTestRouter(searcher Searcher, store PropertyStore, q BatchEnqueuer, maxBatch int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	router := gin.New()
	SetupRoutes(router, searcher, store, q, maxBatch, logger)
	return router
}

func performJSON(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func performRaw(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSearchComparables_Success(t *testing.T) {
	searcher := &MockSearcher{}
	router := newTestRouter(searcher, &MockPropertyStore{}, &MockEnqueuer{}, 100)

	searcher.On("Search", mock.Anything, mock.MatchedBy(func(c *models.SearchCriteria) bool {
		return c.City == "Marbella" && c.Bedrooms == 2 && c.ForSale
	})).Return(&matching.SearchResult{
		SearchID: "s-1",
		Outcome:  matching.OutcomeSuccess,
		Mode:     "hierarchical",
	}, nil).Once()

	w := performJSON(router, http.MethodPost, "/api/comparables/search", models.SearchCriteria{
		City:      "Marbella",
		Bedrooms:  2,
		Price:     350000,
		BuildArea: 90,
		ForSale:   true,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result matching.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, matching.OutcomeSuccess, result.Outcome)
	assert.Equal(t, "hierarchical", result.Mode)
	searcher.AssertExpectations(t)
}

func TestSearchComparables_ExhaustedIsStillOK(t *testing.T) {
	searcher := &MockSearcher{}
	router := newTestRouter(searcher, &MockPropertyStore{}, &MockEnqueuer{}, 100)

	searcher.On("Search", mock.Anything, mock.Anything).Return(&matching.SearchResult{
		SearchID:    "s-2",
		Outcome:     matching.OutcomeExhausted,
		Mode:        "attribute",
		Degraded:    true,
		Comparables: []matching.Comparable{},
	}, nil).Once()

	w := performJSON(router, http.MethodPost, "/api/comparables/search", models.SearchCriteria{
		City: "Marbella", ForSale: true,
	})

	require.Equal(t, http.StatusOK, w.Code)

	var result matching.SearchResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, matching.OutcomeExhausted, result.Outcome)
	assert.Empty(t, result.Comparables)
}

func TestSearchComparables_InvalidBody(t *testing.T) {
	searcher := &MockSearcher{}
	router := newTestRouter(searcher, &MockPropertyStore{}, &MockEnqueuer{}, 100)

	w := performRaw(router, http.MethodPost, "/api/comparables/search", "{not json")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid request body")
	searcher.AssertNotCalled(t, "Search")
}

func TestSearchComparables_InvalidCriteria(t *testing.T) {
	searcher := &MockSearcher{}
	router := newTestRouter(searcher, &MockPropertyStore{}, &MockEnqueuer{}, 100)

	searcher.On("Search", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: bedrooms must not be negative", matching.ErrInvalidCriteria)).Once()

	w := performJSON(router, http.MethodPost, "/api/comparables/search", models.SearchCriteria{Bedrooms: -1})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bedrooms must not be negative")
}

func TestSearchComparables_EngineFailure(t *testing.T) {
	searcher := &MockSearcher{}
	router := newTestRouter(searcher, &MockPropertyStore{}, &MockEnqueuer{}, 100)

	searcher.On("Search", mock.Anything, mock.Anything).
		Return(nil, errors.New("database is locked")).Once()

	w := performJSON(router, http.MethodPost, "/api/comparables/search", models.SearchCriteria{
		City: "Marbella", ForSale: true,
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to search comparables")
}

func TestBatchUpsert_Accepted(t *testing.T) {
	enqueuer := &MockEnqueuer{}
	router := newTestRouter(&MockSearcher{}, &MockPropertyStore{}, enqueuer, 100)

	enqueuer.On("Push", mock.MatchedBy(func(batch []*models.PropertyRecord) bool {
		return len(batch) == 2 && batch[0].Reference == "R1"
	})).Return(nil).Once()

	w := performJSON(router, http.MethodPost, "/api/properties/batch", []*models.PropertyRecord{
		{ID: 1, Reference: "R1"},
		{ID: 2, Reference: "R2"},
	})

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.Equal(t, float64(2), resp["count"])
	enqueuer.AssertExpectations(t)
}

func TestBatchUpsert_EmptyBatch(t *testing.T) {
	enqueuer := &MockEnqueuer{}
	router := newTestRouter(&MockSearcher{}, &MockPropertyStore{}, enqueuer, 100)

	w := performJSON(router, http.MethodPost, "/api/properties/batch", []*models.PropertyRecord{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Batch is empty")
	enqueuer.AssertNotCalled(t, "Push")
}

func TestBatchUpsert_OversizeBatch(t *testing.T) {
	enqueuer := &MockEnqueuer{}
	router := newTestRouter(&MockSearcher{}, &MockPropertyStore{}, enqueuer, 2)

	w := performJSON(router, http.MethodPost, "/api/properties/batch", []*models.PropertyRecord{
		{ID: 1}, {ID: 2}, {ID: 3},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Batch exceeds maximum size of 2")
	enqueuer.AssertNotCalled(t, "Push")
}

func TestBatchUpsert_InvalidBody(t *testing.T) {
	enqueuer := &MockEnqueuer{}
	router := newTestRouter(&MockSearcher{}, &MockPropertyStore{}, enqueuer, 100)

	w := performRaw(router, http.MethodPost, "/api/properties/batch", "{oops")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	enqueuer.AssertNotCalled(t, "Push")
}

func TestBatchUpsert_QueueUnavailable(t *testing.T) {
	tests := []struct {
		name    string
		pushErr error
	}{
		{name: "queue full", pushErr: queue.ErrQueueFull},
		{name: "queue closed", pushErr: queue.ErrQueueClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enqueuer := &MockEnqueuer{}
			router := newTestRouter(&MockSearcher{}, &MockPropertyStore{}, enqueuer, 100)
			enqueuer.On("Push", mock.Anything).Return(tt.pushErr).Once()

			w := performJSON(router, http.MethodPost, "/api/properties/batch", []*models.PropertyRecord{{ID: 1}})

			assert.Equal(t, http.StatusServiceUnavailable, w.Code)
			assert.Contains(t, w.Body.String(), "retry later")
		})
	}
}

func TestBatchUpsert_EnqueueFailure(t *testing.T) {
	enqueuer := &MockEnqueuer{}
	router := newTestRouter(&MockSearcher{}, &MockPropertyStore{}, enqueuer, 100)
	enqueuer.On("Push", mock.Anything).Return(errors.New("broken pipe")).Once()

	w := performJSON(router, http.MethodPost, "/api/properties/batch", []*models.PropertyRecord{{ID: 1}})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to enqueue batch")
}

func TestGetProperty_Found(t *testing.T) {
	store := &MockPropertyStore{}
	router := newTestRouter(&MockSearcher{}, store, &MockEnqueuer{}, 100)

	store.On("GetByReference", mock.Anything, "R100").Return(&models.PropertyRecord{
		ID:        7,
		Reference: "R100",
		City:      "Marbella",
		Price:     365000,
	}, nil).Once()

	w := performJSON(router, http.MethodGet, "/api/properties/R100", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var got models.PropertyRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.ID)
	assert.Equal(t, "R100", got.Reference)
}

func TestGetProperty_NotFound(t *testing.T) {
	store := &MockPropertyStore{}
	router := newTestRouter(&MockSearcher{}, store, &MockEnqueuer{}, 100)

	store.On("GetByReference", mock.Anything, "R404").Return(nil, nil).Once()

	w := performJSON(router, http.MethodGet, "/api/properties/R404", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Property not found")
}

func TestGetProperty_StoreFailure(t *testing.T) {
	store := &MockPropertyStore{}
	router := newTestRouter(&MockSearcher{}, store, &MockEnqueuer{}, 100)

	store.On("GetByReference", mock.Anything, "R100").
		Return(nil, errors.New("database is locked")).Once()

	w := performJSON(router, http.MethodGet, "/api/properties/R100", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetStats(t *testing.T) {
	store := &MockPropertyStore{}
	router := newTestRouter(&MockSearcher{}, store, &MockEnqueuer{}, 100)

	store.On("Stats", mock.Anything).Return(models.StoreStats{
		TotalProperties:  42,
		ActiveProperties: 40,
		WithCoordinates:  35,
		ForSale:          30,
	}, nil).Once()

	w := performJSON(router, http.MethodGet, "/api/stats", nil)

	require.Equal(t, http.StatusOK, w.Code)

	var stats models.StoreStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 42, stats.TotalProperties)
	assert.Equal(t, 35, stats.WithCoordinates)
}

func TestGetStats_StoreFailure(t *testing.T) {
	store := &MockPropertyStore{}
	router := newTestRouter(&MockSearcher{}, store, &MockEnqueuer{}, 100)

	store.On("Stats", mock.Anything).
		Return(models.StoreStats{}, errors.New("database is locked")).Once()

	w := performJSON(router, http.MethodGet, "/api/stats", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
