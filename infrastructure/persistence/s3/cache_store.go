package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Key layout inside the export bucket.
const (
	cachePrefix      = "cache/"
	assetsPrefix     = "assets/"
	archivedPrefix   = "archived/"
	metadataKey      = "cache/metadata.json"
	fieldCacheKey    = "cache/field-cache.json"
	organizationPath = "assets/organization/"
)

// CacheStore is the S3-backed implementation of the cache and export
// document persistence contract.
type CacheStore struct {
	client *awss3.Client
	bucket string
	logger *zap.Logger
}

// NewCacheStore creates an S3 cache store for the given bucket.
func NewCacheStore(client *awss3.Client, bucket string, logger *zap.Logger) *CacheStore {
	return &CacheStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}
}

var _ ports.CacheStore = (*CacheStore)(nil)

// Bucket returns the bucket backing this store.
func (s *CacheStore) Bucket() string {
	return s.bucket
}

// typeCacheKey returns the per-type cache index key, e.g. cache/dashboard.json.
func typeCacheKey(assetType assets.AssetType) string {
	return cachePrefix + string(assetType) + ".json"
}

// documentKey returns the active-path key of an individually stored export
// document.
func documentKey(assetType assets.AssetType, assetID string) string {
	return assetsPrefix + assetType.Plural() + "/" + assets.SanitizeAssetID(assetID) + ".json"
}

// archivedKey returns the archive-path key of an individually stored export
// document.
func archivedKey(assetType assets.AssetType, assetID string) string {
	return archivedPrefix + assetType.Plural() + "/" + assets.SanitizeAssetID(assetID) + ".json"
}

// archivedCollectionKey returns the archive-path key of a collection-stored
// type's shared document.
func archivedCollectionKey(assetType assets.AssetType) string {
	return archivedPrefix + "organization/" + assetType.Plural() + ".json"
}

// CollectionKey returns the active-path key of a collection-stored type.
func (s *CacheStore) CollectionKey(assetType assets.AssetType) string {
	return organizationPath + assetType.Plural() + ".json"
}

// getJSON loads and decodes one object. A missing object returns (false, nil)
// so callers can distinguish absence from failure.
func (s *CacheStore) getJSON(ctx context.Context, key string, out any) (bool, error) {
	resp, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, apperrors.NewStorageError("get "+key, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, apperrors.NewStorageError("read "+key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, apperrors.NewStorageError("decode "+key, err)
	}
	return true, nil
}

// putJSON encodes and writes one object.
func (s *CacheStore) putJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return apperrors.NewStorageError("encode "+key, err)
	}
	_, err = s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return apperrors.NewStorageError("put "+key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

// GetTypeCache loads the per-type cache index, or nil when none exists.
func (s *CacheStore) GetTypeCache(ctx context.Context, assetType assets.AssetType) ([]assets.CacheEntry, error) {
	var entries []assets.CacheEntry
	found, err := s.getJSON(ctx, typeCacheKey(assetType), &entries)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return normalizeEntries(assetType, entries), nil
}

// SaveTypeCache persists the per-type cache index.
func (s *CacheStore) SaveTypeCache(ctx context.Context, assetType assets.AssetType, entries []assets.CacheEntry) error {
	return s.putJSON(ctx, typeCacheKey(assetType), entries)
}

// GetMasterCache builds the rolled-up view across the given types. Missing
// per-type caches contribute nothing; a read failure on any present cache is
// surfaced so callers never serve a silently truncated view.
func (s *CacheStore) GetMasterCache(ctx context.Context, filter []assets.AssetType) (*assets.MasterCache, error) {
	types := filter
	if len(types) == 0 {
		types = assets.AllAssetTypes
	}

	perType := make(map[assets.AssetType][]assets.CacheEntry, len(types))
	var latest *assets.CacheEntry
	for _, t := range types {
		entries, err := s.GetTypeCache(ctx, t)
		if err != nil {
			return nil, apperrors.Wrapf(err, "load %s cache", t)
		}
		perType[t] = assets.DeduplicateEntries(entries)
		for i := range perType[t] {
			e := &perType[t][i]
			if latest == nil || e.ExportedAt.After(latest.ExportedAt) {
				latest = e
			}
		}
	}

	at := time.Now().UTC()
	if latest != nil {
		at = latest.ExportedAt
	}
	return assets.NewMasterCache(perType, at), nil
}

// GetExportDocument loads a persisted export document, or nil when the asset
// has never been exported.
func (s *CacheStore) GetExportDocument(ctx context.Context, assetType assets.AssetType, assetID string) (*assets.ExportDocument, error) {
	var doc assets.ExportDocument
	found, err := s.getJSON(ctx, documentKey(assetType, assetID), &doc)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &doc, nil
}

// SaveExportDocument persists an individually stored export document and
// returns the key it was written under.
func (s *CacheStore) SaveExportDocument(ctx context.Context, assetType assets.AssetType, assetID string, doc *assets.ExportDocument) (string, error) {
	key := documentKey(assetType, assetID)
	if err := s.putJSON(ctx, key, doc); err != nil {
		return "", err
	}
	return key, nil
}

// SaveCollection persists a whole collection document under the given key.
func (s *CacheStore) SaveCollection(ctx context.Context, key string, docs map[string]*assets.ExportDocument) error {
	return s.putJSON(ctx, key, docs)
}

// GetCollection loads a collection document, or nil when none exists.
func (s *CacheStore) GetCollection(ctx context.Context, key string) (map[string]*assets.ExportDocument, error) {
	var docs map[string]*assets.ExportDocument
	found, err := s.getJSON(ctx, key, &docs)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return docs, nil
}

// ArchiveAssets moves each asset's export document from the active to the
// archived path. Individually stored kinds are copied-then-deleted object by
// object; collection-stored kinds have their members moved from the active
// collection document into the archived one. Partial failures are reported
// per item so one stuck object never blocks the rest of the pass.
func (s *CacheStore) ArchiveAssets(ctx context.Context, items []ports.ArchiveItem) []ports.ArchiveResult {
	collectionIDs := make(map[assets.AssetType][]string)
	for _, item := range items {
		if assets.CapabilitiesFor(item.AssetType).Storage == assets.StorageCollection {
			collectionIDs[item.AssetType] = append(collectionIDs[item.AssetType], item.AssetID)
		}
	}
	collectionErrs := make(map[assets.AssetType]error, len(collectionIDs))
	for t, ids := range collectionIDs {
		collectionErrs[t] = s.archiveCollectionMembers(ctx, t, ids)
	}

	results := make([]ports.ArchiveResult, 0, len(items))
	for _, item := range items {
		var err error
		if assets.CapabilitiesFor(item.AssetType).Storage == assets.StorageCollection {
			err = collectionErrs[item.AssetType]
		} else {
			err = s.archiveOne(ctx, item.AssetType, item.AssetID)
		}
		if err != nil {
			s.logger.Warn("Failed to archive asset",
				zap.String("assetType", string(item.AssetType)),
				zap.String("assetId", item.AssetID),
				zap.Error(err),
			)
		}
		results = append(results, ports.ArchiveResult{AssetID: item.AssetID, Err: err})
	}
	return results
}

// archiveCollectionMembers moves the given members of a collection-stored
// type from the active collection document into the archived one. The
// archived document is written before the active one so a failure between
// the two writes duplicates a record rather than losing it.
func (s *CacheStore) archiveCollectionMembers(ctx context.Context, assetType assets.AssetType, ids []string) error {
	activeKey := s.CollectionKey(assetType)
	active, err := s.GetCollection(ctx, activeKey)
	if err != nil {
		return err
	}

	archiveKey := archivedCollectionKey(assetType)
	archived, err := s.GetCollection(ctx, archiveKey)
	if err != nil {
		return err
	}
	if archived == nil {
		archived = make(map[string]*assets.ExportDocument, len(ids))
	}

	if !moveCollectionMembers(active, archived, ids) {
		return nil
	}

	if err := s.SaveCollection(ctx, archiveKey, archived); err != nil {
		return err
	}
	return s.SaveCollection(ctx, activeKey, active)
}

// moveCollectionMembers moves the docs for ids from active into archived and
// reports whether anything moved. IDs with no exported doc are skipped; their
// cache entry alone is flipped to archived.
func moveCollectionMembers(active, archived map[string]*assets.ExportDocument, ids []string) bool {
	moved := false
	for _, id := range ids {
		doc, ok := active[id]
		if !ok {
			continue
		}
		archived[id] = doc
		delete(active, id)
		moved = true
	}
	return moved
}

func (s *CacheStore) archiveOne(ctx context.Context, assetType assets.AssetType, assetID string) error {
	src := documentKey(assetType, assetID)
	dst := archivedKey(assetType, assetID)

	_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + src),
		Key:        aws.String(dst),
	})
	if err != nil {
		if isNotFound(err) {
			// Nothing persisted for this asset; the cache entry alone will be
			// flipped to archived.
			return nil
		}
		return apperrors.NewStorageError("copy "+src, err)
	}

	_, err = s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(src),
	})
	if err != nil {
		return apperrors.NewStorageError("delete "+src, err)
	}
	return nil
}

// SaveFieldCache persists the derived field/catalog index.
func (s *CacheStore) SaveFieldCache(ctx context.Context, index map[string]any) error {
	return s.putJSON(ctx, fieldCacheKey, index)
}

// SaveCacheMetadata persists the cache metadata document.
func (s *CacheStore) SaveCacheMetadata(ctx context.Context, meta *assets.CacheMetadata) error {
	if meta.Version == "" {
		meta.Version = currentCacheVersion
	}
	return s.putJSON(ctx, metadataKey, meta)
}
