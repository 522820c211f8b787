package export

import (
	"context"
	"errors"
	"testing"

	"qsportal-backend/domain/assets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const foldersKey = "assets/organization/folders.json"

func TestCollectionBatchRegistry_FlushMergesOverExisting(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.collections[foldersKey] = map[string]*assets.ExportDocument{
		"f-untouched": {},
		"f-updated":   {APIResponses: assets.APIResponseSet{Describe: &assets.APIResponse{Data: "old"}}},
	}

	registry := NewCollectionBatchRegistry()
	registry.Append("test-bucket", foldersKey, "f-updated",
		&assets.ExportDocument{APIResponses: assets.APIResponseSet{Describe: &assets.APIResponse{Data: "new"}}})
	registry.Append("test-bucket", foldersKey, "f-added", &assets.ExportDocument{})

	err := registry.Flush(ctx, store, zap.NewNop())
	require.NoError(t, err)

	merged := store.collections[foldersKey]
	require.Len(t, merged, 3)
	assert.Contains(t, merged, "f-untouched", "entries untouched by the run are preserved")
	assert.Equal(t, "new", merged["f-updated"].APIResponses.Describe.Data)
	assert.Equal(t, 1, store.saveCollCalls, "one write per collection regardless of entry count")
}

func TestCollectionBatchRegistry_SecondFlushIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	registry := NewCollectionBatchRegistry()
	registry.Append("test-bucket", foldersKey, "f-1", &assets.ExportDocument{})

	require.NoError(t, registry.Flush(ctx, store, zap.NewNop()))
	require.NoError(t, registry.Flush(ctx, store, zap.NewNop()))

	assert.Equal(t, 1, store.saveCollCalls)
	assert.Equal(t, 0, registry.PendingCount())
}

func TestCollectionBatchRegistry_FlushGroupsByKey(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	registry := NewCollectionBatchRegistry()
	registry.Append("test-bucket", "assets/organization/users.json", "u-1", &assets.ExportDocument{})
	registry.Append("test-bucket", "assets/organization/groups.json", "g-1", &assets.ExportDocument{})
	registry.Append("test-bucket", "assets/organization/groups.json", "g-2", &assets.ExportDocument{})

	assert.Equal(t, 3, registry.PendingCount())
	require.NoError(t, registry.Flush(ctx, store, zap.NewNop()))

	assert.Equal(t, 2, store.saveCollCalls)
	assert.Len(t, store.collections["assets/organization/groups.json"], 2)
	assert.Len(t, store.collections["assets/organization/users.json"], 1)
}

func TestCollectionBatchRegistry_SaveFailureReported(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.collectionErr = errors.New("s3 write failed")
	registry := NewCollectionBatchRegistry()
	registry.Append("test-bucket", foldersKey, "f-1", &assets.ExportDocument{})

	err := registry.Flush(ctx, store, zap.NewNop())
	assert.Error(t, err)
}
