package assets

import "fmt"

// AssetType identifies a kind of QuickSight asset tracked by the portal.
type AssetType string

const (
	AssetTypeDashboard  AssetType = "dashboard"
	AssetTypeAnalysis   AssetType = "analysis"
	AssetTypeDataset    AssetType = "dataset"
	AssetTypeDatasource AssetType = "datasource"
	AssetTypeFolder     AssetType = "folder"
	AssetTypeUser       AssetType = "user"
	AssetTypeGroup      AssetType = "group"
)

// AllAssetTypes lists every tracked asset type in export order.
var AllAssetTypes = []AssetType{
	AssetTypeDashboard,
	AssetTypeAnalysis,
	AssetTypeDataset,
	AssetTypeDatasource,
	AssetTypeFolder,
	AssetTypeUser,
	AssetTypeGroup,
}

// StorageType describes how export documents for an asset type are persisted.
type StorageType string

const (
	// StorageIndividual stores one JSON document per asset.
	StorageIndividual StorageType = "individual"
	// StorageCollection stores the whole population of a type in one shared
	// JSON document, keyed by asset ID.
	StorageCollection StorageType = "collection"
)

// Capabilities declares which enrichment operations the remote API supports
// for an asset type. A false flag skips the corresponding fetch entirely.
type Capabilities struct {
	HasDescribe          bool
	HasDefinition        bool
	HasPermissions       bool
	HasTags              bool
	HasSpecialOperations bool
	Storage              StorageType
}

// Users and groups have no describe API; their list entry is the whole
// record, so HasDescribe stays false and exports synthesize the snapshot
// from the list payload.
var capabilityTable = map[AssetType]Capabilities{
	AssetTypeDashboard:  {HasDescribe: true, HasDefinition: true, HasPermissions: true, HasTags: true, Storage: StorageIndividual},
	AssetTypeAnalysis:   {HasDescribe: true, HasDefinition: true, HasPermissions: true, HasTags: true, Storage: StorageIndividual},
	AssetTypeDataset:    {HasDescribe: true, HasDefinition: true, HasPermissions: true, HasTags: true, HasSpecialOperations: true, Storage: StorageIndividual},
	AssetTypeDatasource: {HasDescribe: true, HasPermissions: true, HasTags: true, Storage: StorageIndividual},
	AssetTypeFolder:     {HasDescribe: true, HasPermissions: true, HasTags: true, HasSpecialOperations: true, Storage: StorageCollection},
	AssetTypeUser:       {HasSpecialOperations: true, Storage: StorageCollection},
	AssetTypeGroup:      {HasSpecialOperations: true, Storage: StorageCollection},
}

// CapabilitiesFor returns the capability record for an asset type.
func CapabilitiesFor(t AssetType) Capabilities {
	return capabilityTable[t]
}

// IsValid reports whether t is one of the tracked asset types.
func (t AssetType) IsValid() bool {
	_, ok := capabilityTable[t]
	return ok
}

// IsOrganizational reports whether the type lacks a reliable last-modified
// signal from the remote API. Membership and permission changes on these
// kinds never bump a timestamp, so staleness cannot be detected and every
// listed asset must be re-pulled.
func (t AssetType) IsOrganizational() bool {
	return t == AssetTypeFolder || t == AssetTypeGroup || t == AssetTypeUser
}

// Plural returns the plural form used in persisted store keys.
func (t AssetType) Plural() string {
	switch t {
	case AssetTypeDashboard:
		return "dashboards"
	case AssetTypeAnalysis:
		return "analyses"
	case AssetTypeDataset:
		return "datasets"
	case AssetTypeDatasource:
		return "datasources"
	case AssetTypeFolder:
		return "folders"
	case AssetTypeUser:
		return "users"
	case AssetTypeGroup:
		return "groups"
	default:
		return string(t) + "s"
	}
}

// ParseAssetType converts a string into an AssetType.
func ParseAssetType(s string) (AssetType, error) {
	t := AssetType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown asset type: %q", s)
	}
	return t, nil
}
