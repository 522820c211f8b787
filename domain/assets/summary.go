package assets

import "time"

// AssetSummary is the list-call view of one remote asset, normalized across
// asset kinds. Raw carries the vendor's original field naming so export
// documents can round-trip the untouched list payload.
type AssetSummary struct {
	ID              string
	Name            string
	ARN             string
	CreatedTime     *time.Time
	LastUpdatedTime *time.Time
	// RemoteStatus is the vendor-reported status field, when present.
	// Analyses report "DELETED" here while still appearing in list results.
	RemoteStatus string
	Raw          map[string]any
}

// IsSoftDeleted reports whether the remote still lists the asset but has
// flagged it as deleted.
func (s AssetSummary) IsSoftDeleted() bool {
	return s.RemoteStatus == "DELETED"
}
