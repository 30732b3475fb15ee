package spatial

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// PointSource supplies the records the index is built from.
type PointSource interface {
	ActiveCoordinatePoints(ctx context.Context) ([]RecordPoint, error)
}

// Refresher keeps the spatial index in step with the store. Ingestion
// triggers a debounced rebuild, and a ticker catches anything that slips
// through. Rebuild failures leave the previous snapshot serving.
type Refresher struct {
	index    *Index
	source   PointSource
	logger   *logrus.Logger
	interval time.Duration
	debounce time.Duration
	trigger  chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRefresher creates a refresher for the given index and source.
func NewRefresher(index *Index, source PointSource, interval, debounce time.Duration, logger *logrus.Logger) *Refresher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Refresher{
		index:    index,
		source:   source,
		logger:   logger,
		interval: interval,
		debounce: debounce,
		trigger:  make(chan struct{}, 1),
		stopChan: make(chan struct{}),
	}
}

// Trigger requests a rebuild. Non-blocking; bursts coalesce into one rebuild.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// RebuildNow rebuilds the index synchronously. Used at startup so the first
// search never sees an empty index on a populated store.
func (r *Refresher) RebuildNow(ctx context.Context) error {
	points, err := r.source.ActiveCoordinatePoints(ctx)
	if err != nil {
		return fmt.Errorf("failed to load index points: %w", err)
	}
	if err := r.index.Rebuild(points); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"points": len(points),
	}).Info("Spatial index rebuilt")
	return nil
}

// Start begins the refresh loop.
func (r *Refresher) Start() {
	r.wg.Add(1)
	go r.run()
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-r.trigger:
			timer := time.NewTimer(r.debounce)
			select {
			case <-r.stopChan:
				timer.Stop()
				return
			case <-timer.C:
			}
			r.rebuild()
		case <-ticker.C:
			r.rebuild()
		}
	}
}

func (r *Refresher) rebuild() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := r.RebuildNow(ctx); err != nil {
		r.logger.WithError(err).Error("Index rebuild failed, previous snapshot stays active")
	}
}

// Stop gracefully stops the refresh loop.
func (r *Refresher) Stop() {
	close(r.stopChan)
	r.wg.Wait()
}
