package export

import (
	"context"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"

	"go.uber.org/zap"
)

// ArchivePathPrefix marks export documents that live under the archived path.
const ArchivePathPrefix = "archived/"

// ComparisonResult classifies every asset seen by a comparison run. The
// three sets are pairwise disjoint and their union covers every asset ID
// present in either the fresh listing or the cached-active set.
type ComparisonResult struct {
	NeedsUpdate     map[string]struct{}
	Unchanged       map[string]struct{}
	DeletedAssetIDs map[string]struct{}
}

func newComparisonResult() ComparisonResult {
	return ComparisonResult{
		NeedsUpdate:     make(map[string]struct{}),
		Unchanged:       make(map[string]struct{}),
		DeletedAssetIDs: make(map[string]struct{}),
	}
}

// ComparisonEngine diffs a freshly listed asset inventory against the
// persisted cache. Pure classification - archiving is performed by the
// caller using the returned deleted set.
type ComparisonEngine struct {
	store  ports.CacheStore
	logger *zap.Logger
}

// NewComparisonEngine creates a comparison engine backed by the given store.
func NewComparisonEngine(store ports.CacheStore, logger *zap.Logger) *ComparisonEngine {
	return &ComparisonEngine{store: store, logger: logger}
}

// CompareAndDetectChanges classifies each listed asset as needs-update or
// unchanged, and each cached-active asset missing from the listing as
// deleted. softDeleted carries assets the remote still lists but reports as
// deleted; only analyses exhibit this. forceRefresh marks every listed asset
// as needs-update regardless of timestamps.
func (e *ComparisonEngine) CompareAndDetectChanges(
	ctx context.Context,
	assetType assets.AssetType,
	listed []assets.AssetSummary,
	softDeleted []assets.AssetSummary,
	forceRefresh bool,
) ComparisonResult {
	result := newComparisonResult()

	listedIDs := make(map[string]struct{}, len(listed))
	for _, s := range listed {
		listedIDs[s.ID] = struct{}{}
	}

	cached := e.loadCachedEntries(ctx, assetType)

	e.detectDeletions(assetType, cached, listedIDs, softDeleted, &result)
	e.classifyUpdates(assetType, listed, cached, forceRefresh, &result)

	return result
}

// loadCachedEntries reads and deduplicates the per-type cache. Cache read
// failures are fail-open: logged and treated as an empty cache so the
// export, at worst, re-pulls everything instead of aborting.
func (e *ComparisonEngine) loadCachedEntries(ctx context.Context, assetType assets.AssetType) map[string]assets.CacheEntry {
	entries, err := e.store.GetTypeCache(ctx, assetType)
	if err != nil {
		e.logger.Warn("Failed to read type cache, treating as empty",
			zap.String("assetType", string(assetType)),
			zap.Error(err),
		)
		return nil
	}

	deduped := assets.DeduplicateEntries(entries)
	byID := make(map[string]assets.CacheEntry, len(deduped))
	for _, entry := range deduped {
		byID[entry.AssetID] = entry
	}
	return byID
}

func (e *ComparisonEngine) detectDeletions(
	assetType assets.AssetType,
	cached map[string]assets.CacheEntry,
	listedIDs map[string]struct{},
	softDeleted []assets.AssetSummary,
	result *ComparisonResult,
) {
	for id, entry := range cached {
		if entry.IsArchived() {
			// Self-healing: an archived entry whose file still sits on the
			// active path is inconsistent and must be re-archived.
			if !entry.HasConsistentArchivePath(ArchivePathPrefix) {
				result.DeletedAssetIDs[id] = struct{}{}
				e.logger.Warn("Archived entry has active-path file, re-flagging as deleted",
					zap.String("assetType", string(assetType)),
					zap.String("assetId", id),
					zap.String("exportFilePath", entry.ExportFilePath),
				)
			}
			continue
		}
		if _, stillListed := listedIDs[id]; !stillListed {
			result.DeletedAssetIDs[id] = struct{}{}
		}
	}

	// Soft deletes: the remote still lists the asset but flags it DELETED.
	// Observed for analyses only.
	if assetType == assets.AssetTypeAnalysis {
		for _, s := range softDeleted {
			entry, known := cached[s.ID]
			if known && entry.IsArchived() {
				continue
			}
			result.DeletedAssetIDs[s.ID] = struct{}{}
		}
	}

	if len(result.DeletedAssetIDs) > 0 {
		e.logger.Info("Detected deleted assets",
			zap.String("assetType", string(assetType)),
			zap.Int("count", len(result.DeletedAssetIDs)),
		)
	}
}

func (e *ComparisonEngine) classifyUpdates(
	assetType assets.AssetType,
	listed []assets.AssetSummary,
	cached map[string]assets.CacheEntry,
	forceRefresh bool,
	result *ComparisonResult,
) {
	for _, s := range listed {
		if _, deleted := result.DeletedAssetIDs[s.ID]; deleted {
			continue
		}

		if forceRefresh {
			result.NeedsUpdate[s.ID] = struct{}{}
			continue
		}

		// Folder/group/user membership and permission changes never bump a
		// remote timestamp, so these kinds are always stale.
		if assetType.IsOrganizational() {
			result.NeedsUpdate[s.ID] = struct{}{}
			continue
		}

		entry, known := cached[s.ID]
		if !known {
			result.NeedsUpdate[s.ID] = struct{}{}
			continue
		}

		result.classifyByTimestamp(s.ID, s.LastUpdatedTime, entry.LastUpdatedTime)
	}
}

// classifyByTimestamp applies the timestamp rules: both sides missing a
// timestamp is unchanged, exactly one side missing is needs-update, and
// otherwise a strictly newer remote timestamp means needs-update. An equal
// timestamp is unchanged.
func (r *ComparisonResult) classifyByTimestamp(id string, remote, cached *time.Time) {
	switch {
	case remote == nil && cached == nil:
		r.Unchanged[id] = struct{}{}
	case remote == nil || cached == nil:
		r.NeedsUpdate[id] = struct{}{}
	case remote.After(*cached):
		r.NeedsUpdate[id] = struct{}{}
	default:
		r.Unchanged[id] = struct{}{}
	}
}
