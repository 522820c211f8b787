package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssetType(t *testing.T) {
	for _, at := range AllAssetTypes {
		parsed, err := ParseAssetType(string(at))
		require.NoError(t, err)
		assert.Equal(t, at, parsed)
	}

	_, err := ParseAssetType("spreadsheet")
	assert.Error(t, err)
	_, err = ParseAssetType("")
	assert.Error(t, err)
}

func TestIsOrganizational(t *testing.T) {
	organizational := map[AssetType]bool{
		AssetTypeFolder: true,
		AssetTypeUser:   true,
		AssetTypeGroup:  true,
	}
	for _, at := range AllAssetTypes {
		assert.Equal(t, organizational[at], at.IsOrganizational(), "type %s", at)
	}
}

func TestCapabilitiesFor(t *testing.T) {
	// Dashboards and analyses carry definitions; datasources do not.
	assert.True(t, CapabilitiesFor(AssetTypeDashboard).HasDefinition)
	assert.True(t, CapabilitiesFor(AssetTypeAnalysis).HasDefinition)
	assert.False(t, CapabilitiesFor(AssetTypeDatasource).HasDefinition)

	// Users and groups have no permission or tag surface, and no describe
	// API at all: their list entry is the whole record.
	assert.False(t, CapabilitiesFor(AssetTypeUser).HasPermissions)
	assert.False(t, CapabilitiesFor(AssetTypeGroup).HasTags)
	assert.False(t, CapabilitiesFor(AssetTypeUser).HasDescribe)
	assert.False(t, CapabilitiesFor(AssetTypeGroup).HasDescribe)
	for _, at := range []AssetType{AssetTypeDashboard, AssetTypeAnalysis, AssetTypeDataset, AssetTypeDatasource, AssetTypeFolder} {
		assert.True(t, CapabilitiesFor(at).HasDescribe, "type %s", at)
	}

	// Organizational kinds share one collection document per type.
	for _, at := range AllAssetTypes {
		caps := CapabilitiesFor(at)
		if at.IsOrganizational() {
			assert.Equal(t, StorageCollection, caps.Storage, "type %s", at)
		} else {
			assert.Equal(t, StorageIndividual, caps.Storage, "type %s", at)
		}
	}
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "analyses", AssetTypeAnalysis.Plural())
	assert.Equal(t, "dashboards", AssetTypeDashboard.Plural())
	assert.Equal(t, "datasources", AssetTypeDatasource.Plural())
}
