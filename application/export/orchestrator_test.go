package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"qsportal-backend/domain/assets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestOrchestrator(gateway *fakeGateway, store *fakeStore, jobs *fakeJobs, events *fakeEvents) *Orchestrator {
	logger := zap.NewNop()
	comparison := NewComparisonEngine(store, logger)
	rebuilder := NewCacheRebuilder(store, logger)
	return NewOrchestrator(gateway, store, jobs, events, comparison, rebuilder, 5, 2, logger)
}

func TestOrchestrator_FullRunCompletes(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.listings[assets.AssetTypeDashboard] = []assets.AssetSummary{
		summaryFor("dash-1", nil),
		summaryFor("dash-2", nil),
	}
	store := newFakeStore()
	jobs := newFakeJobs()
	events := &fakeEvents{}
	orch := newTestOrchestrator(gateway, store, jobs, events)

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard},
	})

	require.NoError(t, err)
	ts := summary.TypeResults[assets.AssetTypeDashboard]
	require.NotNil(t, ts)
	assert.Equal(t, 2, ts.TotalListed)
	assert.Equal(t, 2, ts.Successful)
	assert.Equal(t, 0, ts.Failed)

	// The type cache was rebuilt with both refreshed entries.
	assert.Len(t, store.typeCaches[assets.AssetTypeDashboard], 2)
	// Derived indexes rebuilt once at the end.
	assert.Equal(t, 1, store.fieldSaveCalls)
	require.NotNil(t, store.metadata)

	assert.Equal(t, JobStatusCompleted, jobs.lastStatus())
	assert.Equal(t, []string{EventExportStarted, EventExportCompleted}, events.events)
}

func TestOrchestrator_UnchangedAssetsAreSkipped(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gateway := newFakeGateway()
	gateway.listings[assets.AssetTypeDashboard] = []assets.AssetSummary{
		summaryFor("dash-same", timePtr(base)),
	}
	store := newFakeStore()
	store.typeCaches[assets.AssetTypeDashboard] = []assets.CacheEntry{{
		AssetID:         "dash-same",
		AssetType:       assets.AssetTypeDashboard,
		Status:          assets.StatusActive,
		LastUpdatedTime: timePtr(base),
		ExportFilePath:  "assets/dashboards/dash-same.json",
	}}
	jobs := newFakeJobs()
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard},
	})

	require.NoError(t, err)
	ts := summary.TypeResults[assets.AssetTypeDashboard]
	assert.Equal(t, 1, ts.Cached)
	assert.Equal(t, 0, ts.TotalProcessed)
	assert.Equal(t, 0, gateway.describeCalls)
}

func TestOrchestrator_DeletedAssetsAreArchived(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	store := newFakeStore()
	store.typeCaches[assets.AssetTypeDashboard] = []assets.CacheEntry{{
		AssetID:        "dash-gone",
		AssetType:      assets.AssetTypeDashboard,
		Status:         assets.StatusActive,
		ExportFilePath: "assets/dashboards/dash-gone.json",
	}}
	jobs := newFakeJobs()
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard},
	})

	require.NoError(t, err)
	ts := summary.TypeResults[assets.AssetTypeDashboard]
	assert.Equal(t, 1, ts.Archived)
	require.Len(t, store.archivedItems, 1)
	assert.Equal(t, "dash-gone", store.archivedItems[0].AssetID)

	// The cache entry flipped to archived with an archive-path file reference.
	entries := store.typeCaches[assets.AssetTypeDashboard]
	require.Len(t, entries, 1)
	assert.Equal(t, assets.StatusArchived, entries[0].Status)
	assert.Contains(t, entries[0].ExportFilePath, ArchivePathPrefix)
}

func TestOrchestrator_ListingFailureIsConfinedToOneType(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.listErr[assets.AssetTypeDashboard] = errors.New("quicksight unavailable")
	gateway.listings[assets.AssetTypeDataset] = []assets.AssetSummary{summaryFor("ds-1", nil)}
	store := newFakeStore()
	jobs := newFakeJobs()
	events := &fakeEvents{}
	orch := newTestOrchestrator(gateway, store, jobs, events)

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard, assets.AssetTypeDataset},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, summary.TypeResults[assets.AssetTypeDashboard].Failed)
	assert.Equal(t, 1, summary.TypeResults[assets.AssetTypeDataset].Successful,
		"later types still run after a whole-type failure")

	assert.Equal(t, JobStatusFailed, jobs.lastStatus())
	assert.Equal(t, []string{EventExportStarted, EventExportFailed}, events.events)
}

func TestOrchestrator_FailuresReportedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.listErr[assets.AssetTypeDashboard] = errors.New("quicksight unavailable")
	gateway.listings[assets.AssetTypeDataset] = []assets.AssetSummary{summaryFor("ds-1", nil)}
	gateway.listings[assets.AssetTypeAnalysis] = []assets.AssetSummary{summaryFor("an-1", nil)}
	store := newFakeStore()
	jobs := newFakeJobs()
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})

	_, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard, assets.AssetTypeAnalysis, assets.AssetTypeDataset},
	})
	require.NoError(t, err)

	// The job store appends failure records, so a failure must appear in
	// exactly one progress patch no matter how many types follow it.
	totalFailureRecords := 0
	for _, patch := range jobs.patches {
		totalFailureRecords += len(patch.Failures)
	}
	assert.Equal(t, 1, totalFailureRecords)
}

func TestOrchestrator_StopBetweenTypes(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	gateway.listings[assets.AssetTypeDashboard] = []assets.AssetSummary{summaryFor("dash-1", nil)}
	gateway.listings[assets.AssetTypeDataset] = []assets.AssetSummary{summaryFor("ds-1", nil)}
	store := newFakeStore()
	jobs := newFakeJobs()
	stopAfterFirst := 0
	jobs.stopFn = func() bool {
		stopAfterFirst++
		return stopAfterFirst > 1
	}
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard, assets.AssetTypeDataset},
	})

	require.NoError(t, err)
	assert.True(t, summary.Stopped || anyTypeStopped(summary))
	assert.NotContains(t, summary.TypeResults, assets.AssetTypeDataset,
		"the second type never starts once the stop flag is seen")
	assert.Equal(t, JobStatusStopped, jobs.lastStatus())
}

func TestOrchestrator_MetadataOnlyBypassesComparison(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	gateway := newFakeGateway()
	gateway.listings[assets.AssetTypeDashboard] = []assets.AssetSummary{
		summaryFor("dash-same", timePtr(base)),
	}
	store := newFakeStore()
	store.typeCaches[assets.AssetTypeDashboard] = []assets.CacheEntry{{
		AssetID:         "dash-same",
		AssetType:       assets.AssetTypeDashboard,
		Status:          assets.StatusActive,
		LastUpdatedTime: timePtr(base),
		ExportFilePath:  "assets/dashboards/dash-same.json",
	}}
	jobs := newFakeJobs()
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard},
		Refresh:    RefreshOptions{Permissions: true, Tags: true},
	})

	require.NoError(t, err)
	ts := summary.TypeResults[assets.AssetTypeDashboard]
	// Timestamp-unchanged assets are still processed: the point of a
	// metadata-only run is to resync everyone's permissions and tags.
	assert.Equal(t, 1, ts.TotalProcessed)
	assert.Equal(t, 0, ts.Cached)
	assert.Equal(t, 1, gateway.permissionCalls)
}

func TestOrchestrator_EmptyTypeListMeansAllTypes(t *testing.T) {
	ctx := context.Background()
	gateway := newFakeGateway()
	store := newFakeStore()
	jobs := newFakeJobs()
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})

	summary, err := orch.ExportAssets(ctx, "job-1", ExportOptions{})

	require.NoError(t, err)
	assert.Len(t, summary.TypeResults, len(assets.AllAssetTypes))
}
