package s3

import (
	"testing"

	"qsportal-backend/domain/assets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "cache/dashboard.json", typeCacheKey(assets.AssetTypeDashboard))
	assert.Equal(t, "cache/analysis.json", typeCacheKey(assets.AssetTypeAnalysis))

	assert.Equal(t, "assets/dashboards/dash-1.json", documentKey(assets.AssetTypeDashboard, "dash-1"))
	assert.Equal(t, "assets/analyses/an-1.json", documentKey(assets.AssetTypeAnalysis, "an-1"))
	assert.Equal(t, "archived/dashboards/dash-1.json", archivedKey(assets.AssetTypeDashboard, "dash-1"))

	store := &CacheStore{}
	assert.Equal(t, "assets/organization/folders.json", store.CollectionKey(assets.AssetTypeFolder))
	assert.Equal(t, "assets/organization/users.json", store.CollectionKey(assets.AssetTypeUser))
	assert.Equal(t, "assets/organization/groups.json", store.CollectionKey(assets.AssetTypeGroup))

	// Collection-stored types archive into one shared document per type, on
	// the same path shape as the active one.
	assert.Equal(t, "archived/organization/folders.json", archivedCollectionKey(assets.AssetTypeFolder))
	assert.Equal(t, "archived/organization/users.json", archivedCollectionKey(assets.AssetTypeUser))
	assert.Equal(t, "archived/organization/groups.json", archivedCollectionKey(assets.AssetTypeGroup))
}

func TestDocumentKey_SanitizesUnsafeIDs(t *testing.T) {
	// QuickSight user IDs carry a namespace/username path.
	key := documentKey(assets.AssetTypeDataset, `default/alice:reader`)
	assert.Equal(t, "assets/datasets/default_alice_reader.json", key)
	assert.NotContains(t, key[len("assets/datasets/"):], "/")
}

func TestMoveCollectionMembers(t *testing.T) {
	active := map[string]*assets.ExportDocument{
		"alice": {},
		"bob":   {},
	}
	archived := map[string]*assets.ExportDocument{}

	moved := moveCollectionMembers(active, archived, []string{"alice", "never-exported"})

	assert.True(t, moved)
	assert.NotContains(t, active, "alice")
	assert.Contains(t, active, "bob")
	assert.Contains(t, archived, "alice")
	assert.NotContains(t, archived, "never-exported")
}

func TestMoveCollectionMembers_NothingToMove(t *testing.T) {
	active := map[string]*assets.ExportDocument{"bob": {}}
	archived := map[string]*assets.ExportDocument{}

	moved := moveCollectionMembers(active, archived, []string{"gone-before-export"})

	assert.False(t, moved)
	assert.Len(t, active, 1)
	assert.Empty(t, archived)
}

func TestNormalizeEntries_UpgradesLegacyShape(t *testing.T) {
	legacy := []assets.CacheEntry{{AssetID: "dash-1"}}

	out := normalizeEntries(assets.AssetTypeDashboard, legacy)

	require.Len(t, out, 1)
	assert.Equal(t, assets.AssetTypeDashboard, out[0].AssetType)
	assert.Equal(t, assets.StatusActive, out[0].Status)
	assert.Equal(t, assets.EnrichmentEnriched, out[0].EnrichmentStatus)
	assert.Equal(t, assets.StorageIndividual, out[0].StorageType)
}

func TestNormalizeEntries_LeavesCurrentShapeAlone(t *testing.T) {
	current := []assets.CacheEntry{{
		AssetID:          "f-1",
		AssetType:        assets.AssetTypeFolder,
		Status:           assets.StatusArchived,
		EnrichmentStatus: assets.EnrichmentPartial,
		StorageType:      assets.StorageCollection,
	}}

	out := normalizeEntries(assets.AssetTypeFolder, current)

	require.Len(t, out, 1)
	assert.Equal(t, assets.StatusArchived, out[0].Status)
	assert.Equal(t, assets.EnrichmentPartial, out[0].EnrichmentStatus)
	assert.Equal(t, assets.StorageCollection, out[0].StorageType)
}

func TestNormalizeEntries_CollectionStorageFromCapabilities(t *testing.T) {
	out := normalizeEntries(assets.AssetTypeGroup, []assets.CacheEntry{{AssetID: "g-1"}})
	require.Len(t, out, 1)
	assert.Equal(t, assets.StorageCollection, out[0].StorageType)
}
