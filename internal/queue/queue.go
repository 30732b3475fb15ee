package queue

import (
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"casaval/server/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// UpsertQueue buffers property batches between the intake API and the batch
// processor. Push never blocks; a full buffer pushes back on the producer
// instead of stalling a request handler.
type UpsertQueue struct {
	items    chan []*models.PropertyRecord
	done     chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
	logger   *logrus.Logger
	handlers []func([]*models.PropertyRecord) error
}

// NewUpsertQueue creates a queue holding up to bufferSize batches.
func NewUpsertQueue(bufferSize int, logger *logrus.Logger) *UpsertQueue {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &UpsertQueue{
		items:  make(chan []*models.PropertyRecord, bufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Push adds a batch to the queue without blocking.
func (q *UpsertQueue) Push(properties []*models.PropertyRecord) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return ErrQueueClosed
	}
	q.mu.RUnlock()

	select {
	case q.items <- properties:
		q.logger.WithField("batch_size", len(properties)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe adds a handler that will be called for each batch.
func (q *UpsertQueue) Subscribe(handler func([]*models.PropertyRecord) error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start launches the dispatch loop.
func (q *UpsertQueue) Start() {
	q.wg.Add(1)
	go q.process()
}

func (q *UpsertQueue) process() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			q.drain()
			return
		case batch := <-q.items:
			q.dispatch(batch)
		}
	}
}

// drain flushes batches that were accepted before Close flipped the flag.
func (q *UpsertQueue) drain() {
	for {
		select {
		case batch := <-q.items:
			q.dispatch(batch)
		default:
			return
		}
	}
}

// dispatch hands one batch to every subscribed handler.
func (q *UpsertQueue) dispatch(batch []*models.PropertyRecord) {
	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(batch); err != nil {
			q.logger.WithError(err).Error("Handler failed to process batch")
		}
	}
}

// Close rejects further pushes, then waits until the dispatch loop has
// handed off every batch accepted so far.
func (q *UpsertQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the number of batches waiting for dispatch.
func (q *UpsertQueue) Len() int {
	return len(q.items)
}

// IsClosed reports whether the queue has been closed.
func (q *UpsertQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
