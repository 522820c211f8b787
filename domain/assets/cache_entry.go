package assets

import (
	"sort"
	"strings"
	"time"
)

// EntryStatus is the lifecycle state of a cache entry.
type EntryStatus string

const (
	StatusActive   EntryStatus = "active"
	StatusArchived EntryStatus = "archived"
)

// EnrichmentStatus tracks how complete a cache entry's data is.
type EnrichmentStatus string

const (
	// EnrichmentSkeleton means only list-call data has been captured.
	EnrichmentSkeleton EnrichmentStatus = "skeleton"
	// EnrichmentPartial means some but not all enrichment components succeeded.
	EnrichmentPartial EnrichmentStatus = "partial"
	// EnrichmentEnriched means a full fetch completed.
	EnrichmentEnriched EnrichmentStatus = "enriched"
	// EnrichmentMetadataUpdate means only permissions/tags were refreshed and
	// describe/definition data was carried over from a prior enriched state.
	EnrichmentMetadataUpdate EnrichmentStatus = "metadata-update"
)

// Enrichment component names used in EnrichmentTimestamps.
const (
	ComponentDefinition  = "definition"
	ComponentPermissions = "permissions"
	ComponentTags        = "tags"
	ComponentLineage     = "lineage"
	ComponentViews       = "views"
)

// Tag is a key/value tag attached to a remote asset.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Permission grants a principal a set of actions on an asset.
type Permission struct {
	Principal     string   `json:"principal"`
	PrincipalType string   `json:"principalType,omitempty"`
	Actions       []string `json:"actions"`
}

// CacheEntry is one row per tracked remote asset in a per-type cache index.
// Exactly one active entry exists per (AssetType, AssetID); duplicates are
// resolved by DeduplicateEntries.
type CacheEntry struct {
	AssetID              string               `json:"assetId"`
	AssetType            AssetType            `json:"assetType"`
	AssetName            string               `json:"assetName"`
	ARN                  string               `json:"arn,omitempty"`
	Status               EntryStatus          `json:"status"`
	EnrichmentStatus     EnrichmentStatus     `json:"enrichmentStatus"`
	CreatedTime          *time.Time           `json:"createdTime,omitempty"`
	LastUpdatedTime      *time.Time           `json:"lastUpdatedTime,omitempty"`
	ExportedAt           time.Time            `json:"exportedAt"`
	EnrichedAt           *time.Time           `json:"enrichedAt,omitempty"`
	EnrichmentTimestamps map[string]time.Time `json:"enrichmentTimestamps,omitempty"`
	Tags                 []Tag                `json:"tags,omitempty"`
	Permissions          []Permission         `json:"permissions,omitempty"`
	Metadata             map[string]any       `json:"metadata,omitempty"`
	ExportFilePath       string               `json:"exportFilePath,omitempty"`
	StorageType          StorageType          `json:"storageType"`
}

// IsArchived reports whether the entry has been archived.
func (e *CacheEntry) IsArchived() bool {
	return e.Status == StatusArchived
}

// HasConsistentArchivePath reports whether an archived entry's file path
// actually points under the archive prefix. An archived entry whose path
// still lives under the active prefix is in an inconsistent state.
func (e *CacheEntry) HasConsistentArchivePath(archivePrefix string) bool {
	return strings.Contains(e.ExportFilePath, archivePrefix)
}

// TouchComponent records the refresh time of one enrichment component.
func (e *CacheEntry) TouchComponent(component string, at time.Time) {
	if e.EnrichmentTimestamps == nil {
		e.EnrichmentTimestamps = make(map[string]time.Time)
	}
	e.EnrichmentTimestamps[component] = at
}

// DeduplicateEntries collapses duplicate entries for the same asset ID,
// keeping the entry with the latest LastUpdatedTime. Archived status breaks
// ties so a stale active duplicate never shadows the archived record.
func DeduplicateEntries(entries []CacheEntry) []CacheEntry {
	byID := make(map[string]CacheEntry, len(entries))
	order := make([]string, 0, len(entries))
	for _, e := range entries {
		existing, ok := byID[e.AssetID]
		if !ok {
			byID[e.AssetID] = e
			order = append(order, e.AssetID)
			continue
		}
		if preferEntry(e, existing) {
			byID[e.AssetID] = e
		}
	}
	out := make([]CacheEntry, 0, len(byID))
	for _, id := range order {
		out = append(out, byID[id])
	}
	return out
}

// preferEntry reports whether candidate should replace current.
func preferEntry(candidate, current CacheEntry) bool {
	ct, cur := candidate.LastUpdatedTime, current.LastUpdatedTime
	switch {
	case ct == nil && cur == nil:
		return candidate.IsArchived() && !current.IsArchived()
	case ct == nil:
		return false
	case cur == nil:
		return true
	case ct.After(*cur):
		return true
	case ct.Before(*cur):
		return false
	default:
		return candidate.IsArchived() && !current.IsArchived()
	}
}

// MasterCache is a derived read view rolled up from the per-type caches.
// The per-type caches remain canonical; this view is rebuildable at any time
// from persisted asset documents.
type MasterCache struct {
	AssetCounts map[AssetType]int          `json:"assetCounts"`
	Entries     map[AssetType][]CacheEntry `json:"entries"`
	LastUpdated time.Time                  `json:"lastUpdated"`
}

// NewMasterCache builds a master cache from per-type entry lists.
func NewMasterCache(perType map[AssetType][]CacheEntry, at time.Time) *MasterCache {
	mc := &MasterCache{
		AssetCounts: make(map[AssetType]int, len(perType)),
		Entries:     make(map[AssetType][]CacheEntry, len(perType)),
		LastUpdated: at,
	}
	for t, entries := range perType {
		sorted := make([]CacheEntry, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].AssetID < sorted[j].AssetID })
		mc.Entries[t] = sorted
		mc.AssetCounts[t] = len(sorted)
	}
	return mc
}

// CacheMetadata is the persisted cache/metadata.json document.
type CacheMetadata struct {
	Version         string                  `json:"version"`
	LastUpdated     time.Time               `json:"lastUpdated"`
	AssetCounts     map[AssetType]int       `json:"assetCounts"`
	AssetTimestamps map[AssetType]time.Time `json:"assetTimestamps"`
}
