package export

import (
	"context"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"

	"go.uber.org/zap"
)

// CacheRebuilder reconciles per-type cache indexes with the outcome of an
// export run and rebuilds the derived field/catalog and lineage indexes.
type CacheRebuilder struct {
	store  ports.CacheStore
	logger *zap.Logger
	now    func() time.Time
}

// NewCacheRebuilder creates a cache rebuilder.
func NewCacheRebuilder(store ports.CacheStore, logger *zap.Logger) *CacheRebuilder {
	return &CacheRebuilder{store: store, logger: logger, now: time.Now}
}

// RebuildTypeCache merges refreshed entries and archived IDs into the
// persisted per-type index so subsequent exports see fresh state without a
// full rebuild. Entries untouched by this run are preserved as-is.
func (r *CacheRebuilder) RebuildTypeCache(
	ctx context.Context,
	assetType assets.AssetType,
	refreshed []*assets.CacheEntry,
	archivedIDs map[string]struct{},
) error {
	existing, err := r.store.GetTypeCache(ctx, assetType)
	if err != nil {
		r.logger.Warn("Failed to load type cache for rebuild, starting empty",
			zap.String("assetType", string(assetType)),
			zap.Error(err),
		)
		existing = nil
	}

	merged := assets.DeduplicateEntries(existing)
	byID := make(map[string]int, len(merged))
	for i, e := range merged {
		byID[e.AssetID] = i
	}

	for _, entry := range refreshed {
		if entry == nil {
			continue
		}
		if i, ok := byID[entry.AssetID]; ok {
			merged[i] = *entry
		} else {
			byID[entry.AssetID] = len(merged)
			merged = append(merged, *entry)
		}
	}

	collection := assets.CapabilitiesFor(assetType).Storage == assets.StorageCollection
	for id := range archivedIDs {
		i, ok := byID[id]
		if !ok {
			continue
		}
		merged[i].Status = assets.StatusArchived
		// Collection members share one archived document; everything else
		// gets its own archived object.
		if collection {
			merged[i].ExportFilePath = ArchivePathPrefix + "organization/" + assetType.Plural() + ".json"
		} else {
			merged[i].ExportFilePath = ArchivePathPrefix + assetType.Plural() + "/" + assets.SanitizeAssetID(id) + ".json"
		}
	}

	if err := r.store.SaveTypeCache(ctx, assetType, merged); err != nil {
		return apperrors.Wrapf(err, "save %s cache", assetType)
	}

	r.logger.Info("Rebuilt type cache",
		zap.String("assetType", string(assetType)),
		zap.Int("entries", len(merged)),
		zap.Int("refreshed", len(refreshed)),
		zap.Int("archived", len(archivedIDs)),
	)
	return nil
}

// RebuildDerivedIndexes builds the field/catalog index and the asset lineage
// graph from the now-current cache and persists cache metadata. Runs once
// after all asset types complete.
func (r *CacheRebuilder) RebuildDerivedIndexes(ctx context.Context) error {
	master, err := r.store.GetMasterCache(ctx, nil)
	if err != nil {
		return apperrors.Wrap(err, "load master cache for derived indexes")
	}

	fieldIndex := buildFieldIndex(master)
	if err := r.store.SaveFieldCache(ctx, fieldIndex); err != nil {
		return apperrors.Wrap(err, "save field cache")
	}

	meta := &assets.CacheMetadata{
		LastUpdated:     r.now(),
		AssetCounts:     master.AssetCounts,
		AssetTimestamps: make(map[assets.AssetType]time.Time, len(master.Entries)),
	}
	for t, entries := range master.Entries {
		var latest time.Time
		for _, e := range entries {
			if e.ExportedAt.After(latest) {
				latest = e.ExportedAt
			}
		}
		meta.AssetTimestamps[t] = latest
	}
	if err := r.store.SaveCacheMetadata(ctx, meta); err != nil {
		return apperrors.Wrap(err, "save cache metadata")
	}

	r.logger.Info("Rebuilt derived indexes",
		zap.Int("datasets", len(master.Entries[assets.AssetTypeDataset])),
	)
	return nil
}

// buildFieldIndex derives the dataset field catalog and dataset-to-consumer
// lineage from cache entry metadata. Dashboards and analyses record the
// dataset IDs they reference in their metadata at enrichment time.
func buildFieldIndex(master *assets.MasterCache) map[string]any {
	datasets := make(map[string]any)
	lineage := make(map[string][]string)

	for _, consumerType := range []assets.AssetType{assets.AssetTypeDashboard, assets.AssetTypeAnalysis} {
		for _, e := range master.Entries[consumerType] {
			if e.IsArchived() {
				continue
			}
			ids, ok := e.Metadata["datasetIds"].([]any)
			if !ok {
				continue
			}
			for _, raw := range ids {
				id, ok := raw.(string)
				if !ok {
					continue
				}
				lineage[id] = append(lineage[id], string(consumerType)+":"+e.AssetID)
			}
		}
	}

	for _, e := range master.Entries[assets.AssetTypeDataset] {
		if e.IsArchived() {
			continue
		}
		record := map[string]any{
			"name": e.AssetName,
			"arn":  e.ARN,
		}
		if fields, ok := e.Metadata["fields"]; ok {
			record["fields"] = fields
		}
		if count, ok := e.Metadata["fieldCount"]; ok {
			record["fieldCount"] = count
		}
		if mode, ok := e.Metadata["importMode"]; ok {
			record["importMode"] = mode
		}
		record["usedBy"] = lineage[e.AssetID]
		datasets[e.AssetID] = record
	}

	return map[string]any{
		"datasets":  datasets,
		"updatedAt": master.LastUpdated,
	}
}
