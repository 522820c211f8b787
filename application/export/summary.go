package export

import (
	"time"

	"qsportal-backend/domain/assets"
)

// ProcessingStatus is the outcome of processing one asset.
type ProcessingStatus string

const (
	ProcessingSuccess ProcessingStatus = "success"
	ProcessingCached  ProcessingStatus = "cached"
	ProcessingError   ProcessingStatus = "error"
)

// PhaseTimings records per-phase durations for one asset, in milliseconds.
type PhaseTimings struct {
	CacheCheckMs int64 `json:"cacheCheckMs"`
	FetchMs      int64 `json:"fetchMs"`
	SaveMs       int64 `json:"saveMs"`
}

// ProcessingResult is the per-asset outcome returned by an asset processor.
// ProcessAsset always returns a result object; failures are carried in
// Status and ErrorMessage, never thrown past the batch boundary.
type ProcessingResult struct {
	AssetID      string
	AssetName    string
	AssetType    assets.AssetType
	Status       ProcessingStatus
	ErrorMessage string
	BatchIndex   int
	Timings      PhaseTimings
	APICallCount int

	// Entry is the refreshed cache entry for successfully processed assets.
	Entry *assets.CacheEntry
}

// ProcessingFailure records one failed item inside a batch.
type ProcessingFailure struct {
	AssetID    string    `json:"assetId"`
	AssetName  string    `json:"assetName,omitempty"`
	Message    string    `json:"error"`
	Timestamp  time.Time `json:"timestamp"`
	BatchIndex int       `json:"batchIndex"`
}

// maxRecordedFailures bounds the failure list kept per asset type so a
// pathological run cannot grow the job record without limit.
const maxRecordedFailures = 100

// AssetTypeSummary aggregates one asset type's export statistics. Created
// once per type per orchestrator run, immutable after Finish.
type AssetTypeSummary struct {
	AssetType      assets.AssetType    `json:"assetType"`
	TotalListed    int                 `json:"totalListed"`
	TotalProcessed int                 `json:"totalProcessed"`
	Successful     int                 `json:"successful"`
	Cached         int                 `json:"cached"`
	Failed         int                 `json:"failed"`
	Archived       int                 `json:"archived"`
	APICallCount   int                 `json:"apiCallCount"`
	ListingMs      int64               `json:"listingMs"`
	ComparisonMs   int64               `json:"comparisonMs"`
	ProcessingMs   int64               `json:"processingMs"`
	Stopped        bool                `json:"stopped"`
	Failures       []ProcessingFailure `json:"failures,omitempty"`
}

// RecordFailure appends a failure, respecting the bounded list size.
func (s *AssetTypeSummary) RecordFailure(f ProcessingFailure) {
	s.Failed++
	if len(s.Failures) < maxRecordedFailures {
		s.Failures = append(s.Failures, f)
	}
}

// Absorb folds a batch outcome into the summary.
func (s *AssetTypeSummary) Absorb(outcome *BatchOutcome) {
	for _, r := range outcome.Results {
		s.TotalProcessed++
		s.APICallCount += r.APICallCount
		switch r.Status {
		case ProcessingSuccess:
			s.Successful++
		case ProcessingCached:
			s.Cached++
		}
	}
	for _, f := range outcome.Failures {
		s.RecordFailure(f)
	}
	if outcome.Stopped {
		s.Stopped = true
	}
}

// ExportSummary is the whole-run aggregate across asset types.
type ExportSummary struct {
	JobID       string                                 `json:"jobId"`
	StartedAt   time.Time                              `json:"startedAt"`
	FinishedAt  time.Time                              `json:"finishedAt"`
	Stopped     bool                                   `json:"stopped"`
	TypeResults map[assets.AssetType]*AssetTypeSummary `json:"typeResults"`
}

// TotalFailed sums failures across all asset types.
func (s *ExportSummary) TotalFailed() int {
	total := 0
	for _, ts := range s.TypeResults {
		total += ts.Failed
	}
	return total
}

// TotalProcessed sums processed assets across all asset types.
func (s *ExportSummary) TotalProcessed() int {
	total := 0
	for _, ts := range s.TypeResults {
		total += ts.TotalProcessed
	}
	return total
}
