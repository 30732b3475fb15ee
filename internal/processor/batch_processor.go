package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"casaval/server/config"
	"casaval/server/internal/models"
	"casaval/server/internal/queue"
)

// Upserter is the store surface the processor writes through.
type Upserter interface {
	UpsertBatch(ctx context.Context, properties []*models.PropertyRecord) error
}

// IndexTrigger requests a spatial index refresh after successful writes.
type IndexTrigger interface {
	Trigger()
}

// BatchProcessor drains the upsert queue through a bounded worker pool, with
// transaction retries per batch and an index refresh after every success.
type BatchProcessor struct {
	store     Upserter
	refresher IndexTrigger
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.UpsertQueue
	pool      *ants.Pool
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance.
func NewBatchProcessor(store Upserter, q *queue.UpsertQueue, refresher IndexTrigger, cfg *config.Config, logger *logrus.Logger) (*BatchProcessor, error) {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	size := cfg.BatchProcessing.ProcessorCount
	if size < 1 {
		size = 1
	}
	pool, err := ants.NewPool(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		store:     store,
		refresher: refresher,
		logger:    logger,
		config:    cfg,
		queue:     q,
		pool:      pool,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Start subscribes the processor to the queue. Each batch is handed to the
// worker pool, so the queue loop never blocks on a slow upsert.
func (p *BatchProcessor) Start() {
	p.queue.Subscribe(func(batch []*models.PropertyRecord) error {
		p.waitGroup.Add(1)
		err := p.pool.Submit(func() {
			defer p.waitGroup.Done()
			if err := p.processBatch(batch); err != nil {
				p.logger.WithError(err).WithField("batch_size", len(batch)).Error("Batch dropped after retries")
			}
		})
		if err != nil {
			p.waitGroup.Done()
			return fmt.Errorf("failed to schedule batch: %w", err)
		}
		return nil
	})
}

// Stop waits for in-flight batches, bounded by ctx. Once the deadline
// passes the internal context is cancelled so retry waits abort instead of
// holding up shutdown.
func (p *BatchProcessor) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		p.waitGroup.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		p.cancel()
		<-done
	}

	p.cancel()
	p.pool.Release()
}

// processBatch handles a single batch with retry logic.
func (p *BatchProcessor) processBatch(batch []*models.PropertyRecord) error {
	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			select {
			case <-p.ctx.Done():
				return p.ctx.Err()
			case <-time.After(p.config.BatchProcessing.RetryDelay):
			}
		}

		err = p.store.UpsertBatch(p.ctx, batch)
		if err == nil {
			p.logger.Infof("Successfully processed batch of %d properties", len(batch))
			if p.refresher != nil {
				p.refresher.Trigger()
			}
			return nil
		}
		p.logger.Errorf("Batch processing failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d retries: %w", p.config.BatchProcessing.MaxRetries, err)
}
