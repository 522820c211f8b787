package export

import (
	"context"
	"fmt"
	"strings"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"

	"go.uber.org/zap"
)

// Gateway error codes that mark an asset as uninspectable. QuickSight
// refuses to describe datasets built from uploaded files; the gateway
// surfaces that refusal as a structured code rather than message text.
const (
	ErrCodeUploadedFile       = "InvalidParameterValueException"
	ErrCodeUnsupportedEdition = "UnsupportedUserEditionException"
)

// describeHook fetches the describe payload for one asset.
type describeHook func(ctx context.Context, g ports.AssetGateway, s assets.AssetSummary) (map[string]any, error)

// specialHook fetches per-kind extras, keyed by operation name.
type specialHook func(ctx context.Context, g ports.AssetGateway, s assets.AssetSummary) (map[string]any, error)

// processorHooks is the per-kind dispatch table: a small vtable of closures
// selected once at construction, so capability flags gate which fetches run
// without any inheritance.
type processorHooks struct {
	describe   describeHook
	definition describeHook
	special    specialHook
}

func gatewayDescribe(ctx context.Context, g ports.AssetGateway, t assets.AssetType, s assets.AssetSummary) (map[string]any, error) {
	return g.Describe(ctx, t, s.ID)
}

// hooksFor builds the dispatch table for an asset type. Kinds without a
// describe API get no describe hook; the processor synthesizes their
// snapshot from the list payload instead.
func hooksFor(t assets.AssetType) processorHooks {
	h := processorHooks{}
	caps := assets.CapabilitiesFor(t)
	if caps.HasDescribe {
		h.describe = func(ctx context.Context, g ports.AssetGateway, s assets.AssetSummary) (map[string]any, error) {
			return gatewayDescribe(ctx, g, t, s)
		}
	}
	if caps.HasDefinition {
		h.definition = func(ctx context.Context, g ports.AssetGateway, s assets.AssetSummary) (map[string]any, error) {
			return g.DescribeDefinition(ctx, t, s.ID)
		}
	}
	if caps.HasSpecialOperations {
		h.special = func(ctx context.Context, g ports.AssetGateway, s assets.AssetSummary) (map[string]any, error) {
			return g.DescribeSpecial(ctx, t, s.ID)
		}
	}
	return h
}

// AssetProcessor fetches, enriches, and persists one asset type's export
// documents. One instance per asset type per export run.
type AssetProcessor struct {
	assetType assets.AssetType
	caps      assets.Capabilities
	hooks     processorHooks
	gateway   ports.AssetGateway
	store     ports.CacheStore
	registry  *CollectionBatchRegistry
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssetProcessor creates a processor for one asset type.
func NewAssetProcessor(
	assetType assets.AssetType,
	gateway ports.AssetGateway,
	store ports.CacheStore,
	registry *CollectionBatchRegistry,
	logger *zap.Logger,
) *AssetProcessor {
	return &AssetProcessor{
		assetType: assetType,
		caps:      assets.CapabilitiesFor(assetType),
		hooks:     hooksFor(assetType),
		gateway:   gateway,
		store:     store,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessAsset walks one asset through describe/definition/permissions/tags/
// special-ops fetches per the kind's capabilities, builds an export document,
// and persists it. It never returns an error out of band: callers always
// receive a result object, with failures carried in the status.
func (p *AssetProcessor) ProcessAsset(ctx context.Context, summary assets.AssetSummary, procCtx *ProcessingContext) *ProcessingResult {
	result := &ProcessingResult{
		AssetID:   summary.ID,
		AssetName: summary.Name,
		AssetType: p.assetType,
		Status:    ProcessingSuccess,
	}

	// Fail fast when the ID cannot be resolved from the summary; nothing
	// downstream can work without it.
	if summary.ID == "" {
		result.Status = ProcessingError
		result.ErrorMessage = fmt.Sprintf("could not resolve asset ID for %s summary", p.assetType)
		return result
	}

	cacheCheckStart := p.now()
	metadataOnly := procCtx.Refresh.MetadataOnly() && !procCtx.ForceRefresh

	// A metadata-only refresh reuses the previously persisted describe and
	// definition data, avoiding a describe round-trip when only
	// permissions/tags are being synced.
	var prior *assets.ExportDocument
	if metadataOnly {
		var err error
		prior, err = p.loadPriorDocument(ctx, summary.ID)
		if err != nil {
			p.logger.Warn("Failed to load prior export document",
				zap.String("assetType", string(p.assetType)),
				zap.String("assetId", summary.ID),
				zap.Error(err),
			)
		}
	}
	result.Timings.CacheCheckMs = p.now().Sub(cacheCheckStart).Milliseconds()

	fetchStart := p.now()
	doc, partial := p.fetchComponents(ctx, summary, procCtx, prior, metadataOnly, result)
	result.Timings.FetchMs = p.now().Sub(fetchStart).Milliseconds()
	if result.Status == ProcessingError {
		return result
	}

	saveStart := p.now()
	filePath, err := p.persist(ctx, summary, doc)
	result.Timings.SaveMs = p.now().Sub(saveStart).Milliseconds()
	if err != nil {
		result.Status = ProcessingError
		result.ErrorMessage = fmt.Sprintf("save failed: %v", err)
		return result
	}

	result.Entry = p.buildCacheEntry(summary, doc, filePath, metadataOnly, partial)
	return result
}

// fetchComponents performs the capability-gated fetch sequence. Each step is
// independently fallback-tolerant; partial reports whether any soft failure
// degraded a component.
func (p *AssetProcessor) fetchComponents(
	ctx context.Context,
	summary assets.AssetSummary,
	procCtx *ProcessingContext,
	prior *assets.ExportDocument,
	metadataOnly bool,
	result *ProcessingResult,
) (doc *assets.ExportDocument, partial bool) {
	now := p.now()
	doc = &assets.ExportDocument{
		APIResponses: assets.APIResponseSet{
			List: &assets.APIResponse{Timestamp: now, Data: vendorListPayload(summary)},
		},
		EnrichmentTimestamps: make(map[string]time.Time),
	}

	// Describe: reuse prior data on a metadata-only refresh; synthesize from
	// the list payload for kinds without a describe API.
	switch {
	case metadataOnly && prior.HasDescribeData():
		doc.Merge(prior)
	case p.hooks.describe == nil:
		doc.APIResponses.Describe = &assets.APIResponse{Timestamp: p.now(), Data: vendorListPayload(summary)}
	default:
		data, err := p.hooks.describe(ctx, p.gateway, summary)
		result.APICallCount++
		if err != nil {
			if isUninspectable(err) {
				// Uploaded-file datasets cannot be described; substitute a
				// synthetic minimal record instead of failing the asset.
				p.logger.Warn("Asset is uninspectable, using fallback describe record",
					zap.String("assetType", string(p.assetType)),
					zap.String("assetId", summary.ID),
					zap.Error(err),
				)
				data = fallbackDescribe(summary)
				partial = true
			} else {
				result.Status = ProcessingError
				result.ErrorMessage = fmt.Sprintf("describe failed: %v", err)
				return doc, partial
			}
		}
		doc.APIResponses.Describe = &assets.APIResponse{Timestamp: p.now(), Data: data}
	}

	// Definition: only when the kind has one and the run asked for it.
	if p.caps.HasDefinition && procCtx.Refresh.Definitions && p.hooks.definition != nil {
		data, err := p.hooks.definition(ctx, p.gateway, summary)
		result.APICallCount++
		if err != nil {
			p.logger.Warn("Definition fetch failed, continuing without it",
				zap.String("assetType", string(p.assetType)),
				zap.String("assetId", summary.ID),
				zap.Error(err),
			)
			partial = true
		} else {
			doc.APIResponses.Definition = &assets.APIResponse{Timestamp: p.now(), Data: data}
			doc.EnrichmentTimestamps[assets.ComponentDefinition] = p.now()
		}
	}

	// Permissions: bulk-supplied values win to avoid a redundant call.
	if p.caps.HasPermissions && procCtx.Refresh.Permissions {
		perms, fromBulk := procCtx.BulkPermissions[summary.ID]
		if !fromBulk {
			var err error
			perms, err = p.gateway.DescribePermissions(ctx, p.assetType, summary.ID)
			result.APICallCount++
			if err != nil {
				p.logger.Warn("Permission fetch failed, degrading to empty",
					zap.String("assetType", string(p.assetType)),
					zap.String("assetId", summary.ID),
					zap.Error(err),
				)
				perms = nil
				partial = true
			}
		}
		doc.APIResponses.Permissions = &assets.APIResponse{Timestamp: p.now(), Data: perms}
		doc.EnrichmentTimestamps[assets.ComponentPermissions] = p.now()
	}

	// Tags: symmetric to permissions.
	if p.caps.HasTags && procCtx.Refresh.Tags {
		tags, fromBulk := procCtx.BulkTags[summary.ID]
		if !fromBulk {
			var err error
			tags, err = p.gateway.DescribeTags(ctx, summary.ARN)
			result.APICallCount++
			if err != nil {
				p.logger.Warn("Tag fetch failed, degrading to empty",
					zap.String("assetType", string(p.assetType)),
					zap.String("assetId", summary.ID),
					zap.Error(err),
				)
				tags = nil
				partial = true
			}
		}
		doc.APIResponses.Tags = &assets.APIResponse{Timestamp: p.now(), Data: tags}
		doc.EnrichmentTimestamps[assets.ComponentTags] = p.now()
	}

	// Special per-kind data: dataset refresh schedules, folder members,
	// group membership.
	if p.caps.HasSpecialOperations && !metadataOnly && p.hooks.special != nil {
		data, err := p.hooks.special(ctx, p.gateway, summary)
		result.APICallCount++
		if err != nil {
			p.logger.Warn("Special operation fetch failed, continuing without it",
				zap.String("assetType", string(p.assetType)),
				zap.String("assetId", summary.ID),
				zap.Error(err),
			)
			partial = true
		} else if len(data) > 0 {
			doc.APIResponses.SpecialOps = make(map[string]*assets.APIResponse, len(data))
			for op, payload := range data {
				doc.APIResponses.SpecialOps[op] = &assets.APIResponse{Timestamp: p.now(), Data: payload}
			}
		}
	}

	return doc, partial
}

// loadPriorDocument fetches the previously persisted export document for an
// asset, resolving it from the shared collection document for
// collection-stored kinds.
func (p *AssetProcessor) loadPriorDocument(ctx context.Context, assetID string) (*assets.ExportDocument, error) {
	if p.caps.Storage == assets.StorageIndividual {
		return p.store.GetExportDocument(ctx, p.assetType, assetID)
	}
	collection, err := p.store.GetCollection(ctx, p.store.CollectionKey(p.assetType))
	if err != nil {
		return nil, err
	}
	return collection[assetID], nil
}

// persist writes the export document. Individually-stored assets are written
// immediately; collection-stored assets are deferred to the registry so the
// whole batch collapses into one write at flush time.
func (p *AssetProcessor) persist(ctx context.Context, summary assets.AssetSummary, doc *assets.ExportDocument) (string, error) {
	if p.caps.Storage == assets.StorageIndividual {
		return p.store.SaveExportDocument(ctx, p.assetType, summary.ID, doc)
	}
	key := p.store.CollectionKey(p.assetType)
	p.registry.Append(p.store.Bucket(), key, summary.ID, doc)
	return key, nil
}

// buildCacheEntry derives the refreshed cache entry from the export document.
func (p *AssetProcessor) buildCacheEntry(
	summary assets.AssetSummary,
	doc *assets.ExportDocument,
	filePath string,
	metadataOnly bool,
	partial bool,
) *assets.CacheEntry {
	now := p.now()
	entry := &assets.CacheEntry{
		AssetID:              summary.ID,
		AssetType:            p.assetType,
		AssetName:            summary.Name,
		ARN:                  summary.ARN,
		Status:               assets.StatusActive,
		CreatedTime:          summary.CreatedTime,
		LastUpdatedTime:      summary.LastUpdatedTime,
		ExportedAt:           now,
		EnrichmentTimestamps: doc.EnrichmentTimestamps,
		ExportFilePath:       filePath,
		StorageType:          p.caps.Storage,
		Metadata:             entryMetadata(p.assetType, doc),
	}

	switch {
	case metadataOnly:
		entry.EnrichmentStatus = assets.EnrichmentMetadataUpdate
	case partial:
		entry.EnrichmentStatus = assets.EnrichmentPartial
	default:
		entry.EnrichmentStatus = assets.EnrichmentEnriched
		entry.EnrichedAt = &now
	}

	if perms, ok := doc.APIResponses.Permissions.Payload().([]assets.Permission); ok {
		entry.Permissions = perms
	}
	if tags, ok := doc.APIResponses.Tags.Payload().([]assets.Tag); ok {
		entry.Tags = tags
	}

	return entry
}

// entryMetadata derives the searchable metadata the field catalog and
// lineage graph are built from: dataset columns and import mode, and the
// dataset IDs a dashboard or analysis references.
func entryMetadata(t assets.AssetType, doc *assets.ExportDocument) map[string]any {
	describe, _ := doc.APIResponses.Describe.Payload().(map[string]any)
	if describe == nil {
		return nil
	}

	meta := map[string]any{}
	switch t {
	case assets.AssetTypeDataset:
		if cols, ok := describe["OutputColumns"].([]any); ok {
			fields := make([]any, 0, len(cols))
			for _, c := range cols {
				col, ok := c.(map[string]any)
				if !ok {
					continue
				}
				if name, ok := col["Name"].(string); ok {
					fields = append(fields, name)
				}
			}
			meta["fields"] = fields
			meta["fieldCount"] = len(fields)
		}
		if mode, ok := describe["ImportMode"].(string); ok {
			meta["importMode"] = mode
		}
	case assets.AssetTypeDashboard:
		if version, ok := describe["Version"].(map[string]any); ok {
			if ids := datasetIDsFromARNs(version["DataSetArns"]); len(ids) > 0 {
				meta["datasetIds"] = ids
			}
		}
	case assets.AssetTypeAnalysis:
		if ids := datasetIDsFromARNs(describe["DataSetArns"]); len(ids) > 0 {
			meta["datasetIds"] = ids
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// datasetIDsFromARNs extracts dataset IDs from QuickSight dataset ARNs,
// which end in "dataset/<id>".
func datasetIDsFromARNs(v any) []any {
	arns, ok := v.([]any)
	if !ok {
		return nil
	}
	ids := make([]any, 0, len(arns))
	for _, a := range arns {
		arn, ok := a.(string)
		if !ok {
			continue
		}
		if i := strings.LastIndex(arn, "/"); i >= 0 && i+1 < len(arn) {
			ids = append(ids, arn[i+1:])
		}
	}
	return ids
}

// vendorListPayload returns the list-call payload in the vendor's original
// field naming for round-trip fidelity. The normalized summary is used only
// when the raw payload was not captured.
func vendorListPayload(s assets.AssetSummary) map[string]any {
	if s.Raw != nil {
		return s.Raw
	}
	payload := map[string]any{
		"Id":   s.ID,
		"Name": s.Name,
		"Arn":  s.ARN,
	}
	if s.CreatedTime != nil {
		payload["CreatedTime"] = s.CreatedTime
	}
	if s.LastUpdatedTime != nil {
		payload["LastUpdatedTime"] = s.LastUpdatedTime
	}
	if s.RemoteStatus != "" {
		payload["Status"] = s.RemoteStatus
	}
	return payload
}

// fallbackDescribe synthesizes a minimal describe record for assets the
// remote API refuses to inspect.
func fallbackDescribe(s assets.AssetSummary) map[string]any {
	return map[string]any{
		"Id":            s.ID,
		"Name":          s.Name,
		"Arn":           s.ARN,
		"uninspectable": true,
		"reason":        "remote API cannot describe this asset (uploaded file)",
	}
}

// isUninspectable checks the structured gateway error code. Substring
// matching against the vendor's error text is deliberately avoided.
func isUninspectable(err error) bool {
	appErr := apperrors.GetAppError(err)
	if appErr == nil {
		return false
	}
	return appErr.Code == ErrCodeUploadedFile || appErr.Code == ErrCodeUnsupportedEdition
}
