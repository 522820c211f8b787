package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ItemProcessor processes one asset and always returns a result object.
type ItemProcessor func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult

// ProgressFunc fires after every chunk completes, success or partial failure.
type ProgressFunc func(batchIndex, totalBatches int, results []*ProcessingResult)

// BatchOutcome is the aggregate result of ProcessInBatches.
type BatchOutcome struct {
	Results  []*ProcessingResult
	Failures []ProcessingFailure
	Stopped  bool
}

// BatchProcessor partitions work into fixed-size batches processed strictly
// sequentially, with bounded concurrency inside each batch. Sequential batch
// boundaries bound peak load on the rate-limited remote API while still
// overlapping network latency, and give natural checkpoints for cooperative
// cancellation and progress reporting.
type BatchProcessor struct {
	batchSize      int
	maxConcurrency int64
	store          ports.CacheStore
	registry       *CollectionBatchRegistry
	logger         *zap.Logger
	onProgress     ProgressFunc
}

// NewBatchProcessor creates a batch processor. batchSize and maxConcurrency
// are clamped to at least 1.
func NewBatchProcessor(
	batchSize int,
	maxConcurrency int,
	store ports.CacheStore,
	registry *CollectionBatchRegistry,
	logger *zap.Logger,
) *BatchProcessor {
	if batchSize < 1 {
		batchSize = 1
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &BatchProcessor{
		batchSize:      batchSize,
		maxConcurrency: int64(maxConcurrency),
		store:          store,
		registry:       registry,
		logger:         logger,
	}
}

// SetProgressFunc installs a per-chunk progress callback.
func (p *BatchProcessor) SetProgressFunc(fn ProgressFunc) {
	p.onProgress = fn
}

// ProcessInBatches walks items in contiguous chunks. Batch N+1 never starts
// before batch N finishes; within a batch, items run concurrently up to the
// concurrency cap. shouldStop is polled before each chunk; when it reports
// true, processing stops with only the batches completed so far. Deferred
// collection writes are flushed exactly once after the run, stopped or not.
func (p *BatchProcessor) ProcessInBatches(
	ctx context.Context,
	items []assets.AssetSummary,
	process ItemProcessor,
	shouldStop func() bool,
) *BatchOutcome {
	outcome := &BatchOutcome{}
	totalBatches := (len(items) + p.batchSize - 1) / p.batchSize

	for batchIndex := 0; batchIndex*p.batchSize < len(items); batchIndex++ {
		if shouldStop != nil && shouldStop() {
			p.logger.Info("Stop requested, halting batch processing",
				zap.Int("completedBatches", batchIndex),
				zap.Int("totalBatches", totalBatches),
			)
			outcome.Stopped = true
			break
		}

		start := batchIndex * p.batchSize
		end := start + p.batchSize
		if end > len(items) {
			end = len(items)
		}

		batchResults := p.processBatch(ctx, items[start:end], batchIndex, process)
		outcome.Results = append(outcome.Results, batchResults...)
		for _, r := range batchResults {
			if r.Status == ProcessingError {
				outcome.Failures = append(outcome.Failures, ProcessingFailure{
					AssetID:    r.AssetID,
					AssetName:  r.AssetName,
					Message:    r.ErrorMessage,
					Timestamp:  time.Now(),
					BatchIndex: batchIndex,
				})
			}
		}

		if p.onProgress != nil {
			p.onProgress(batchIndex, totalBatches, batchResults)
		}
	}

	if p.registry != nil {
		if err := p.registry.Flush(ctx, p.store, p.logger); err != nil {
			p.logger.Error("Deferred collection flush failed", zap.Error(err))
		}
	}

	return outcome
}

// processBatch runs all items of one chunk concurrently, bounded by the
// concurrency cap. Item completion order inside a chunk is unordered; the
// returned slice preserves input order.
func (p *BatchProcessor) processBatch(
	ctx context.Context,
	batch []assets.AssetSummary,
	batchIndex int,
	process ItemProcessor,
) []*ProcessingResult {
	results := make([]*ProcessingResult, len(batch))
	sem := semaphore.NewWeighted(p.maxConcurrency)
	var wg sync.WaitGroup

	for i, item := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: record the remaining items as failed
			// rather than dropping them silently.
			results[i] = cancelledResult(batch[i], batchIndex, err)
			continue
		}

		wg.Add(1)
		go func(slot int, item assets.AssetSummary) {
			defer wg.Done()
			defer sem.Release(1)
			results[slot] = p.processItem(ctx, item, batchIndex, process)
		}(i, item)
	}

	wg.Wait()
	return results
}

// processItem invokes the per-item processor, confining panics to an error
// result so one bad asset never aborts its batch.
func (p *BatchProcessor) processItem(
	ctx context.Context,
	item assets.AssetSummary,
	batchIndex int,
	process ItemProcessor,
) (result *ProcessingResult) {
	defer func() {
		if rec := recover(); rec != nil {
			p.logger.Error("Panic while processing asset",
				zap.String("assetId", item.ID),
				zap.Any("panic", rec),
			)
			result = &ProcessingResult{
				AssetID:      item.ID,
				AssetName:    item.Name,
				Status:       ProcessingError,
				ErrorMessage: fmt.Sprintf("panic: %v", rec),
				BatchIndex:   batchIndex,
			}
		}
	}()

	result = process(ctx, item, batchIndex)
	if result == nil {
		result = &ProcessingResult{
			AssetID:      item.ID,
			AssetName:    item.Name,
			Status:       ProcessingError,
			ErrorMessage: "processor returned no result",
			BatchIndex:   batchIndex,
		}
	}
	result.BatchIndex = batchIndex
	return result
}

func cancelledResult(item assets.AssetSummary, batchIndex int, err error) *ProcessingResult {
	return &ProcessingResult{
		AssetID:      item.ID,
		AssetName:    item.Name,
		Status:       ProcessingError,
		ErrorMessage: fmt.Sprintf("cancelled before processing: %v", err),
		BatchIndex:   batchIndex,
	}
}
