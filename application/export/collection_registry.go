package export

import (
	"context"
	"sync"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"

	"go.uber.org/zap"
)

type collectionKey struct {
	Bucket string
	Path   string
}

// CollectionBatchRegistry accumulates export documents for collection-stored
// asset types so many folder/group/user updates within one export run
// collapse into a single write per collection document. Owned by one export
// run; the batch processor is the single flusher per key.
type CollectionBatchRegistry struct {
	mu      sync.Mutex
	pending map[collectionKey]map[string]*assets.ExportDocument
}

// NewCollectionBatchRegistry creates an empty registry.
func NewCollectionBatchRegistry() *CollectionBatchRegistry {
	return &CollectionBatchRegistry{
		pending: make(map[collectionKey]map[string]*assets.ExportDocument),
	}
}

// Append defers one asset's export document for a later flush.
func (r *CollectionBatchRegistry) Append(bucket, path, assetID string, doc *assets.ExportDocument) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := collectionKey{Bucket: bucket, Path: path}
	batch, ok := r.pending[key]
	if !ok {
		batch = make(map[string]*assets.ExportDocument)
		r.pending[key] = batch
	}
	batch[assetID] = doc
}

// PendingCount returns the number of deferred documents across all keys.
func (r *CollectionBatchRegistry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for _, batch := range r.pending {
		total += len(batch)
	}
	return total
}

// Flush writes every accumulated collection document once, merging the
// deferred entries over whatever the store already holds so assets untouched
// by this run are preserved. Drains the registry so a second call is a
// no-op unless new documents were appended.
func (r *CollectionBatchRegistry) Flush(ctx context.Context, store ports.CacheStore, logger *zap.Logger) error {
	r.mu.Lock()
	drained := r.pending
	r.pending = make(map[collectionKey]map[string]*assets.ExportDocument)
	r.mu.Unlock()

	var firstErr error
	for key, batch := range drained {
		if len(batch) == 0 {
			continue
		}

		existing, err := store.GetCollection(ctx, key.Path)
		if err != nil {
			logger.Warn("Failed to load existing collection, writing deferred entries only",
				zap.String("key", key.Path),
				zap.Error(err),
			)
			existing = nil
		}
		if existing == nil {
			existing = make(map[string]*assets.ExportDocument, len(batch))
		}
		for assetID, doc := range batch {
			existing[assetID] = doc
		}

		if err := store.SaveCollection(ctx, key.Path, existing); err != nil {
			logger.Error("Failed to flush collection batch",
				zap.String("key", key.Path),
				zap.Int("entries", len(batch)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = apperrors.Wrapf(err, "flush collection %s", key.Path)
			}
			continue
		}

		logger.Info("Flushed collection batch",
			zap.String("key", key.Path),
			zap.Int("entries", len(batch)),
		)
	}

	return firstErr
}
