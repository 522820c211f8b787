package assets

import (
	"strings"
	"time"
)

// APIResponse is a timestamped snapshot of one remote API call's payload.
type APIResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
}

// Payload returns the snapshot data, nil-safe.
func (r *APIResponse) Payload() any {
	if r == nil {
		return nil
	}
	return r.Data
}

// ExportDocument bundles every fetched component for one asset. Individually
// stored assets persist one document per asset; collection-stored types share
// a single document keyed by asset ID.
type ExportDocument struct {
	APIResponses         APIResponseSet       `json:"apiResponses"`
	EnrichmentTimestamps map[string]time.Time `json:"enrichmentTimestamps,omitempty"`
}

// APIResponseSet groups the per-component snapshots of an export document.
type APIResponseSet struct {
	List        *APIResponse            `json:"list,omitempty"`
	Describe    *APIResponse            `json:"describe,omitempty"`
	Definition  *APIResponse            `json:"definition,omitempty"`
	Permissions *APIResponse            `json:"permissions,omitempty"`
	Tags        *APIResponse            `json:"tags,omitempty"`
	SpecialOps  map[string]*APIResponse `json:"specialOps,omitempty"`
}

// HasDescribeData reports whether the document carries describe data that a
// metadata-only refresh can reuse instead of re-fetching.
func (d *ExportDocument) HasDescribeData() bool {
	return d != nil && d.APIResponses.Describe != nil
}

// Merge folds refreshed components into a prior document, preserving any
// component the refresh did not touch.
func (d *ExportDocument) Merge(prior *ExportDocument) {
	if prior == nil {
		return
	}
	if d.APIResponses.Describe == nil {
		d.APIResponses.Describe = prior.APIResponses.Describe
	}
	if d.APIResponses.Definition == nil {
		d.APIResponses.Definition = prior.APIResponses.Definition
	}
	if d.APIResponses.Permissions == nil {
		d.APIResponses.Permissions = prior.APIResponses.Permissions
	}
	if d.APIResponses.Tags == nil {
		d.APIResponses.Tags = prior.APIResponses.Tags
	}
	if len(d.APIResponses.SpecialOps) == 0 {
		d.APIResponses.SpecialOps = prior.APIResponses.SpecialOps
	}
	for component, at := range prior.EnrichmentTimestamps {
		if _, ok := d.EnrichmentTimestamps[component]; !ok {
			if d.EnrichmentTimestamps == nil {
				d.EnrichmentTimestamps = make(map[string]time.Time)
			}
			d.EnrichmentTimestamps[component] = at
		}
	}
}

var idSanitizer = strings.NewReplacer(
	`\`, "_",
	`/`, "_",
	`:`, "_",
	`*`, "_",
	`?`, "_",
	`"`, "_",
	`<`, "_",
	`>`, "_",
	`|`, "_",
)

// SanitizeAssetID replaces characters that are unsafe in store keys.
func SanitizeAssetID(id string) string {
	return idSanitizer.Replace(id)
}
