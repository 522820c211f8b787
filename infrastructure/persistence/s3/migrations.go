package s3

import (
	"qsportal-backend/domain/assets"
)

// currentCacheVersion is stamped into cache/metadata.json. Bump it when the
// persisted entry shape changes in a way normalizeEntries must handle.
const currentCacheVersion = "2"

// normalizeEntries upgrades cache entries written by earlier portal versions
// to the current shape. Old documents predate the enrichment-status and
// storage-type fields; they are treated as fully enriched individual entries,
// which matches how those versions actually wrote them.
func normalizeEntries(assetType assets.AssetType, entries []assets.CacheEntry) []assets.CacheEntry {
	caps := assets.CapabilitiesFor(assetType)
	for i := range entries {
		e := &entries[i]
		if e.AssetType == "" {
			e.AssetType = assetType
		}
		if e.Status == "" {
			e.Status = assets.StatusActive
		}
		if e.EnrichmentStatus == "" {
			e.EnrichmentStatus = assets.EnrichmentEnriched
		}
		if e.StorageType == "" {
			e.StorageType = caps.Storage
		}
	}
	return entries
}
