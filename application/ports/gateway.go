package ports

import (
	"context"

	"qsportal-backend/domain/assets"
)

// ListResult is the outcome of listing every asset of one type.
type ListResult struct {
	Items        []assets.AssetSummary
	APICallCount int
}

// ArchiveItem identifies one asset to move from the active to the archived path.
type ArchiveItem struct {
	AssetType assets.AssetType
	AssetID   string
}

// ArchiveResult reports the outcome of archiving one asset.
type ArchiveResult struct {
	AssetID string
	Err     error
}

// AssetGateway exposes the remote control-plane API per asset type.
// Implementations paginate list calls internally, rate-limit every call, and
// retry transient failures with exponential backoff.
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type AssetGateway interface {
	// ListAll lists every asset of the given type, following continuation
	// tokens internally.
	ListAll(ctx context.Context, assetType assets.AssetType) (*ListResult, error)

	// Describe fetches the describe payload for one asset.
	Describe(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error)

	// DescribeDefinition fetches the definition payload for one asset.
	DescribeDefinition(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error)

	// DescribePermissions fetches the resource permissions for one asset.
	DescribePermissions(ctx context.Context, assetType assets.AssetType, assetID string) ([]assets.Permission, error)

	// DescribeTags fetches the tags attached to one asset.
	DescribeTags(ctx context.Context, arn string) ([]assets.Tag, error)

	// DescribeSpecial fetches per-kind extras: dataset refresh schedules,
	// folder members, group membership. The returned map is keyed by
	// operation name.
	DescribeSpecial(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error)
}

// CacheStore is the S3-backed persistence contract for cache indexes and
// export documents.
type CacheStore interface {
	// GetTypeCache loads the per-type cache index, or nil when none exists.
	GetTypeCache(ctx context.Context, assetType assets.AssetType) ([]assets.CacheEntry, error)

	// SaveTypeCache persists the per-type cache index.
	SaveTypeCache(ctx context.Context, assetType assets.AssetType, entries []assets.CacheEntry) error

	// GetMasterCache builds the rolled-up view across the given types
	// (all types when the filter is empty).
	GetMasterCache(ctx context.Context, filter []assets.AssetType) (*assets.MasterCache, error)

	// GetExportDocument loads a persisted export document, or nil when the
	// asset has never been exported.
	GetExportDocument(ctx context.Context, assetType assets.AssetType, assetID string) (*assets.ExportDocument, error)

	// SaveExportDocument persists an individually-stored export document and
	// returns the key it was written under.
	SaveExportDocument(ctx context.Context, assetType assets.AssetType, assetID string, doc *assets.ExportDocument) (string, error)

	// SaveCollection persists a whole collection document under the given key.
	SaveCollection(ctx context.Context, key string, docs map[string]*assets.ExportDocument) error

	// GetCollection loads a collection document, or nil when none exists.
	GetCollection(ctx context.Context, key string) (map[string]*assets.ExportDocument, error)

	// ArchiveAssets moves each asset's export document from the active to
	// the archived path. Partial failures are reported per item.
	ArchiveAssets(ctx context.Context, items []ArchiveItem) []ArchiveResult

	// SaveFieldCache persists the derived field/catalog index.
	SaveFieldCache(ctx context.Context, index map[string]any) error

	// SaveCacheMetadata persists the cache metadata document.
	SaveCacheMetadata(ctx context.Context, meta *assets.CacheMetadata) error

	// Bucket returns the bucket backing this store.
	Bucket() string

	// CollectionKey returns the active-path key of a collection-stored type.
	CollectionKey(assetType assets.AssetType) string
}

// JobStateService is the progress and logging sink for export jobs.
type JobStateService interface {
	LogInfo(ctx context.Context, jobID, message string, details map[string]any)
	LogWarn(ctx context.Context, jobID, message string, details map[string]any)
	LogError(ctx context.Context, jobID, message string, details map[string]any)

	// UpdateJobStatus applies a partial update to the job record.
	UpdateJobStatus(ctx context.Context, jobID string, patch JobStatusPatch) error

	// IsStopRequested reports whether cooperative cancellation has been
	// requested for the job.
	IsStopRequested(ctx context.Context, jobID string) bool
}

// JobStatusPatch is a partial update to a job record. Nil fields are left
// unchanged.
type JobStatusPatch struct {
	Status         *string
	Message        *string
	TotalAssets    *int
	ProcessedCount *int
	FailedCount    *int
	Failures       []JobFailure
}

// JobFailure is one bounded failure record attached to a job.
type JobFailure struct {
	AssetID   string `json:"assetId"`
	AssetType string `json:"assetType,omitempty"`
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"`
}

// EventPublisher publishes export lifecycle events for downstream automation.
type EventPublisher interface {
	PublishJobEvent(ctx context.Context, eventType, jobID string, detail map[string]any) error
}
