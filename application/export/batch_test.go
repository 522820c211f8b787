package export

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qsportal-backend/domain/assets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func successResult(item assets.AssetSummary) *ProcessingResult {
	return &ProcessingResult{
		AssetID:   item.ID,
		AssetName: item.Name,
		Status:    ProcessingSuccess,
	}
}

func TestBatchProcessor_ProcessesAllItemsInOrder(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(3, 2, store, nil, zap.NewNop())

	items := summaries(8)
	outcome := processor.ProcessInBatches(ctx, items,
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			return successResult(item)
		},
		nil,
	)

	require.Len(t, outcome.Results, 8)
	assert.False(t, outcome.Stopped)
	assert.Empty(t, outcome.Failures)
	// Input order is preserved across batch boundaries.
	for i, r := range outcome.Results {
		assert.Equal(t, items[i].ID, r.AssetID)
	}
	// 8 items, batch size 3: batches are indexed 0,0,0,1,1,1,2,2.
	assert.Equal(t, 0, outcome.Results[0].BatchIndex)
	assert.Equal(t, 1, outcome.Results[3].BatchIndex)
	assert.Equal(t, 2, outcome.Results[7].BatchIndex)
}

func TestBatchProcessor_PartitionsIntoExpectedBatches(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(10, 2, store, nil, zap.NewNop())

	var mu sync.Mutex
	batchSizes := make(map[int]int)
	outcome := processor.ProcessInBatches(ctx, summaries(25),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			mu.Lock()
			batchSizes[batchIndex]++
			mu.Unlock()
			return successResult(item)
		},
		nil,
	)

	// 25 items at batch size 10 partition into 10, 10, 5.
	require.Len(t, outcome.Results, 25)
	assert.Equal(t, map[int]int{0: 10, 1: 10, 2: 5}, batchSizes)
}

func TestBatchProcessor_BatchesRunStrictlySequentially(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(2, 4, store, nil, zap.NewNop())

	var mu sync.Mutex
	seenBatches := make([]int, 0, 6)

	processor.ProcessInBatches(ctx, summaries(6),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			mu.Lock()
			seenBatches = append(seenBatches, batchIndex)
			mu.Unlock()
			return successResult(item)
		},
		nil,
	)

	// Batch indexes never decrease: batch N+1 starts only after batch N.
	for i := 1; i < len(seenBatches); i++ {
		assert.GreaterOrEqual(t, seenBatches[i], seenBatches[i-1])
	}
}

func TestBatchProcessor_ConcurrencyIsBounded(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(10, 3, store, nil, zap.NewNop())

	var inFlight, peak int64
	outcome := processor.ProcessInBatches(ctx, summaries(10),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			n := atomic.AddInt64(&inFlight, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&inFlight, -1)
			return successResult(item)
		},
		nil,
	)

	require.Len(t, outcome.Results, 10)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestBatchProcessor_StopBetweenBatches(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(2, 1, store, nil, zap.NewNop())

	var processed int64
	outcome := processor.ProcessInBatches(ctx, summaries(10),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			atomic.AddInt64(&processed, 1)
			return successResult(item)
		},
		func() bool { return atomic.LoadInt64(&processed) >= 2 },
	)

	assert.True(t, outcome.Stopped)
	// The first batch runs to completion; the stop takes effect at the next
	// batch boundary, never mid-batch.
	assert.Len(t, outcome.Results, 2)
}

func TestBatchProcessor_PanicConfinedToOneItem(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(5, 2, store, nil, zap.NewNop())

	outcome := processor.ProcessInBatches(ctx, summaries(5),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			if item.ID == "asset-002" {
				panic("bad asset payload")
			}
			return successResult(item)
		},
		nil,
	)

	require.Len(t, outcome.Results, 5)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "asset-002", outcome.Failures[0].AssetID)
	assert.Contains(t, outcome.Failures[0].Message, "panic")

	succeeded := 0
	for _, r := range outcome.Results {
		if r.Status == ProcessingSuccess {
			succeeded++
		}
	}
	assert.Equal(t, 4, succeeded)
}

func TestBatchProcessor_NilResultBecomesFailure(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(5, 2, store, nil, zap.NewNop())

	outcome := processor.ProcessInBatches(ctx, summaries(1),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			return nil
		},
		nil,
	)

	require.Len(t, outcome.Results, 1)
	assert.Equal(t, ProcessingError, outcome.Results[0].Status)
	require.Len(t, outcome.Failures, 1)
}

func TestBatchProcessor_ProgressFiresPerBatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	processor := NewBatchProcessor(3, 2, store, nil, zap.NewNop())

	var mu sync.Mutex
	var calls [][2]int
	processor.SetProgressFunc(func(batchIndex, totalBatches int, results []*ProcessingResult) {
		mu.Lock()
		calls = append(calls, [2]int{batchIndex, totalBatches})
		mu.Unlock()
	})

	processor.ProcessInBatches(ctx, summaries(7),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			return successResult(item)
		},
		nil,
	)

	require.Len(t, calls, 3)
	assert.Equal(t, [2]int{0, 3}, calls[0])
	assert.Equal(t, [2]int{2, 3}, calls[2])
}

func TestBatchProcessor_FlushesRegistryAfterStop(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	registry := NewCollectionBatchRegistry()
	registry.Append("test-bucket", "assets/organization/folders.json", "f-1", &assets.ExportDocument{})
	processor := NewBatchProcessor(2, 1, store, registry, zap.NewNop())

	outcome := processor.ProcessInBatches(ctx, summaries(4),
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			return successResult(item)
		},
		func() bool { return true },
	)

	// Even a run stopped before its first batch flushes deferred writes so
	// already-appended collection documents are not lost.
	assert.True(t, outcome.Stopped)
	assert.Empty(t, outcome.Results)
	assert.Equal(t, 1, store.saveCollCalls)
	assert.Equal(t, 0, registry.PendingCount())
}
