package export

import "qsportal-backend/domain/assets"

// RefreshOptions selects which enrichment components an export run fetches.
type RefreshOptions struct {
	Definitions bool `json:"definitions"`
	Permissions bool `json:"permissions"`
	Tags        bool `json:"tags"`
}

// FullRefresh fetches every component.
func FullRefresh() RefreshOptions {
	return RefreshOptions{Definitions: true, Permissions: true, Tags: true}
}

// MetadataOnly reports whether this is a permissions/tags-only refresh.
// Metadata-only runs reuse previously persisted describe data and bypass the
// comparison engine entirely: permissions and tags have no reliable remote
// last-modified signal, so the intent is to resync everyone regardless of
// content change.
func (o RefreshOptions) MetadataOnly() bool {
	return !o.Definitions && (o.Permissions || o.Tags)
}

// ProcessingContext is the ephemeral per-run configuration threaded through
// the batch pipeline. Constructed once per export invocation and never
// mutated concurrently.
type ProcessingContext struct {
	JobID        string
	ForceRefresh bool
	Refresh      RefreshOptions

	// BulkPermissions and BulkTags, when supplied by the caller, avoid a
	// per-asset permission/tag call. Keyed by asset ID.
	BulkPermissions map[string][]assets.Permission
	BulkTags        map[string][]assets.Tag
}
