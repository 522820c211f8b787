package export

import (
	"context"
	"fmt"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	"qsportal-backend/pkg/observability"

	"go.uber.org/zap"
)

// Job status values written to the job record.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusStopped   = "stopped"
)

// Export lifecycle event types published for downstream automation.
const (
	EventExportStarted   = "export.started"
	EventExportCompleted = "export.completed"
	EventExportFailed    = "export.failed"
)

// ExportOptions configures one export run.
type ExportOptions struct {
	AssetTypes   []assets.AssetType
	ForceRefresh bool
	Refresh      RefreshOptions
}

// Orchestrator drives the per-type export state machine: LISTING, COMPARING,
// ARCHIVING, ENRICHING, SUMMARIZING. Asset types run strictly sequentially -
// each type's enrichment already saturates the shared rate limiter, so
// parallelizing types would only contend for the same token bucket.
type Orchestrator struct {
	gateway    ports.AssetGateway
	store      ports.CacheStore
	jobs       ports.JobStateService
	events     ports.EventPublisher
	comparison *ComparisonEngine
	rebuilder  *CacheRebuilder
	metrics    *observability.MetricsEmitter
	logger     *zap.Logger

	batchSize      int
	maxConcurrency int
	now            func() time.Time
}

// NewOrchestrator creates an export orchestrator.
func NewOrchestrator(
	gateway ports.AssetGateway,
	store ports.CacheStore,
	jobs ports.JobStateService,
	events ports.EventPublisher,
	comparison *ComparisonEngine,
	rebuilder *CacheRebuilder,
	batchSize int,
	maxConcurrency int,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		gateway:        gateway,
		store:          store,
		jobs:           jobs,
		events:         events,
		comparison:     comparison,
		rebuilder:      rebuilder,
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		now:            time.Now,
	}
}

// SetMetrics attaches a metrics emitter. Without one, exports run unmetered.
func (o *Orchestrator) SetMetrics(m *observability.MetricsEmitter) {
	o.metrics = m
}

// ExportAssets runs the per-type state machine sequentially across the
// requested asset types, checks the cooperative stop flag between types, and
// finishes with one global derived-index rebuild.
func (o *Orchestrator) ExportAssets(ctx context.Context, jobID string, opts ExportOptions) (*ExportSummary, error) {
	types := opts.AssetTypes
	if len(types) == 0 {
		types = assets.AllAssetTypes
	}

	summary := &ExportSummary{
		JobID:       jobID,
		StartedAt:   o.now(),
		TypeResults: make(map[assets.AssetType]*AssetTypeSummary, len(types)),
	}

	o.setJobStatus(ctx, jobID, JobStatusRunning, fmt.Sprintf("exporting %d asset types", len(types)))
	o.publishEvent(ctx, EventExportStarted, jobID, map[string]any{
		"assetTypes":   typeNames(types),
		"forceRefresh": opts.ForceRefresh,
	})

	procCtx := &ProcessingContext{
		JobID:        jobID,
		ForceRefresh: opts.ForceRefresh,
		Refresh:      opts.Refresh,
	}
	if !procCtx.Refresh.Definitions && !procCtx.Refresh.Permissions && !procCtx.Refresh.Tags {
		procCtx.Refresh = FullRefresh()
	}

	for _, assetType := range types {
		if o.jobs.IsStopRequested(ctx, jobID) {
			summary.Stopped = true
			o.jobs.LogInfo(ctx, jobID, "stop requested between asset types", map[string]any{
				"nextType": string(assetType),
			})
			break
		}
		typeSummary := o.exportAssetType(ctx, jobID, assetType, procCtx)
		summary.TypeResults[assetType] = typeSummary
		o.reportProgress(ctx, jobID, summary, typeSummary)
	}

	// Global post-pass: rebuild the field/catalog index and lineage graph
	// from the now-current cache.
	if err := o.rebuilder.RebuildDerivedIndexes(ctx); err != nil {
		o.logger.Error("Derived index rebuild failed", zap.Error(err))
		o.jobs.LogError(ctx, jobID, "derived index rebuild failed", map[string]any{
			"error": err.Error(),
		})
	}

	summary.FinishedAt = o.now()
	o.finishJob(ctx, jobID, summary)
	return summary, nil
}

// exportAssetType runs one asset type through the full state machine. A
// whole-type failure is confined to a zero-success one-error summary so
// later types still run.
func (o *Orchestrator) exportAssetType(
	ctx context.Context,
	jobID string,
	assetType assets.AssetType,
	procCtx *ProcessingContext,
) (summary *AssetTypeSummary) {
	summary = &AssetTypeSummary{AssetType: assetType}

	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("Asset type export panicked",
				zap.String("assetType", string(assetType)),
				zap.Any("panic", rec),
			)
			summary.RecordFailure(ProcessingFailure{
				AssetID:   "*",
				Message:   fmt.Sprintf("export panicked: %v", rec),
				Timestamp: o.now(),
			})
		}
	}()

	o.jobs.LogInfo(ctx, jobID, "exporting asset type", map[string]any{
		"assetType": string(assetType),
	})

	// LISTING
	listingStart := o.now()
	listResult, err := o.gateway.ListAll(ctx, assetType)
	summary.ListingMs = o.now().Sub(listingStart).Milliseconds()
	if err != nil {
		summary.RecordFailure(ProcessingFailure{
			AssetID:   "*",
			Message:   fmt.Sprintf("listing failed: %v", err),
			Timestamp: o.now(),
		})
		o.jobs.LogError(ctx, jobID, "listing failed", map[string]any{
			"assetType": string(assetType),
			"error":     err.Error(),
		})
		return summary
	}
	summary.APICallCount += listResult.APICallCount

	active, softDeleted := splitSoftDeleted(listResult.Items)
	summary.TotalListed = len(active)

	// COMPARING - bypassed for metadata-only refreshes: the intent there is
	// to resync everyone's permissions/tags regardless of content change.
	comparisonStart := o.now()
	var toProcess []assets.AssetSummary
	var deletedIDs map[string]struct{}
	if procCtx.Refresh.MetadataOnly() && !procCtx.ForceRefresh {
		toProcess = active
		deletedIDs = map[string]struct{}{}
	} else {
		diff := o.comparison.CompareAndDetectChanges(ctx, assetType, active, softDeleted, procCtx.ForceRefresh)
		deletedIDs = diff.DeletedAssetIDs
		summary.Cached = len(diff.Unchanged)
		toProcess = filterByIDs(active, diff.NeedsUpdate)
	}
	summary.ComparisonMs = o.now().Sub(comparisonStart).Milliseconds()

	// ARCHIVING - partial failures are logged per asset, never fatal.
	if len(deletedIDs) > 0 {
		o.archiveDeleted(ctx, jobID, assetType, deletedIDs, summary)
	}

	// ENRICHING
	processingStart := o.now()
	registry := NewCollectionBatchRegistry()
	processor := NewAssetProcessor(assetType, o.gateway, o.store, registry, o.logger)
	batcher := NewBatchProcessor(o.batchSize, o.maxConcurrency, o.store, registry, o.logger)
	batcher.SetProgressFunc(func(batchIndex, totalBatches int, results []*ProcessingResult) {
		o.jobs.LogInfo(ctx, jobID, "batch completed", map[string]any{
			"assetType":    string(assetType),
			"batch":        batchIndex + 1,
			"totalBatches": totalBatches,
			"items":        len(results),
		})
	})

	outcome := batcher.ProcessInBatches(ctx, toProcess,
		func(ctx context.Context, item assets.AssetSummary, batchIndex int) *ProcessingResult {
			return processor.ProcessAsset(ctx, item, procCtx)
		},
		func() bool { return o.jobs.IsStopRequested(ctx, jobID) },
	)
	summary.Absorb(outcome)
	summary.ProcessingMs = o.now().Sub(processingStart).Milliseconds()

	// SUMMARIZING - refresh this type's cache index when anything changed so
	// subsequent exports see fresh state without a full rebuild.
	if summary.TotalProcessed > 0 || summary.Archived > 0 {
		refreshed := make([]*assets.CacheEntry, 0, len(outcome.Results))
		for _, r := range outcome.Results {
			if r.Entry != nil {
				refreshed = append(refreshed, r.Entry)
			}
		}
		if err := o.rebuilder.RebuildTypeCache(ctx, assetType, refreshed, deletedIDs); err != nil {
			o.logger.Error("Type cache rebuild failed",
				zap.String("assetType", string(assetType)),
				zap.Error(err),
			)
		}
	}

	if o.metrics != nil {
		o.metrics.RecordExportSummary(ctx, string(assetType),
			summary.TotalProcessed, summary.Cached, summary.Failed, summary.Archived, summary.APICallCount)
	}

	o.jobs.LogInfo(ctx, jobID, "asset type export complete", map[string]any{
		"assetType": string(assetType),
		"listed":    summary.TotalListed,
		"processed": summary.TotalProcessed,
		"cached":    summary.Cached,
		"failed":    summary.Failed,
		"archived":  summary.Archived,
		"stopped":   summary.Stopped,
	})
	return summary
}

func (o *Orchestrator) archiveDeleted(
	ctx context.Context,
	jobID string,
	assetType assets.AssetType,
	deletedIDs map[string]struct{},
	summary *AssetTypeSummary,
) {
	items := make([]ports.ArchiveItem, 0, len(deletedIDs))
	for id := range deletedIDs {
		items = append(items, ports.ArchiveItem{AssetType: assetType, AssetID: id})
	}

	for _, res := range o.store.ArchiveAssets(ctx, items) {
		if res.Err != nil {
			o.jobs.LogWarn(ctx, jobID, "archive failed for asset", map[string]any{
				"assetType": string(assetType),
				"assetId":   res.AssetID,
				"error":     res.Err.Error(),
			})
			continue
		}
		summary.Archived++
	}
}

// reportProgress pushes the run totals plus the just-finished type's
// failures. The job store appends failure records, so each failure is sent
// exactly once, by the report that follows its type.
func (o *Orchestrator) reportProgress(ctx context.Context, jobID string, summary *ExportSummary, typeSummary *AssetTypeSummary) {
	processed := summary.TotalProcessed()
	failed := summary.TotalFailed()
	patch := ports.JobStatusPatch{
		ProcessedCount: &processed,
		FailedCount:    &failed,
	}
	for _, f := range typeSummary.Failures {
		patch.Failures = append(patch.Failures, ports.JobFailure{
			AssetID:   f.AssetID,
			AssetType: string(typeSummary.AssetType),
			Error:     f.Message,
			Timestamp: f.Timestamp.Format(time.RFC3339),
		})
	}
	if err := o.jobs.UpdateJobStatus(ctx, jobID, patch); err != nil {
		o.logger.Warn("Failed to update job progress", zap.Error(err))
	}
}

func (o *Orchestrator) finishJob(ctx context.Context, jobID string, summary *ExportSummary) {
	status := JobStatusCompleted
	eventType := EventExportCompleted
	switch {
	case summary.Stopped || anyTypeStopped(summary):
		status = JobStatusStopped
	case summary.TotalFailed() > 0:
		status = JobStatusFailed
		eventType = EventExportFailed
	}

	message := fmt.Sprintf("processed %d assets, %d failures", summary.TotalProcessed(), summary.TotalFailed())
	o.setJobStatus(ctx, jobID, status, message)
	if o.metrics != nil {
		o.metrics.RecordJobDuration(ctx, status, summary.FinishedAt.Sub(summary.StartedAt))
	}
	o.publishEvent(ctx, eventType, jobID, map[string]any{
		"status":     status,
		"processed":  summary.TotalProcessed(),
		"failed":     summary.TotalFailed(),
		"durationMs": summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	})

	o.logger.Info("Export run finished",
		zap.String("jobId", jobID),
		zap.String("status", status),
		zap.Int("processed", summary.TotalProcessed()),
		zap.Int("failed", summary.TotalFailed()),
	)
}

func (o *Orchestrator) setJobStatus(ctx context.Context, jobID, status, message string) {
	patch := ports.JobStatusPatch{Status: &status, Message: &message}
	if err := o.jobs.UpdateJobStatus(ctx, jobID, patch); err != nil {
		o.logger.Warn("Failed to update job status",
			zap.String("jobId", jobID),
			zap.String("status", status),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) publishEvent(ctx context.Context, eventType, jobID string, detail map[string]any) {
	if o.events == nil {
		return
	}
	if err := o.events.PublishJobEvent(ctx, eventType, jobID, detail); err != nil {
		o.logger.Warn("Failed to publish export event",
			zap.String("eventType", eventType),
			zap.Error(err),
		)
	}
}

func anyTypeStopped(summary *ExportSummary) bool {
	for _, ts := range summary.TypeResults {
		if ts.Stopped {
			return true
		}
	}
	return false
}

func splitSoftDeleted(items []assets.AssetSummary) (active, softDeleted []assets.AssetSummary) {
	for _, s := range items {
		if s.IsSoftDeleted() {
			softDeleted = append(softDeleted, s)
			continue
		}
		active = append(active, s)
	}
	return active, softDeleted
}

func filterByIDs(items []assets.AssetSummary, ids map[string]struct{}) []assets.AssetSummary {
	out := make([]assets.AssetSummary, 0, len(ids))
	for _, s := range items {
		if _, ok := ids[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}

func typeNames(types []assets.AssetType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
