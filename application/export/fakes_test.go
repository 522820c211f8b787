package export

import (
	"context"
	"fmt"
	"sync"
	"time"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
)

// fakeGateway is an in-memory ports.AssetGateway with overridable behavior
// per operation. Call counts are safe for concurrent use.
type fakeGateway struct {
	mu sync.Mutex

	listings map[assets.AssetType][]assets.AssetSummary
	listErr  map[assets.AssetType]error

	describeData   map[string]any
	describeErr    error
	definitionErr  error
	permissionsErr error
	tagsErr        error
	specialErr     error

	permissions map[string][]assets.Permission
	tags        map[string][]assets.Tag

	describeCalls   int
	definitionCalls int
	permissionCalls int
	tagCalls        int
	specialCalls    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		listings:    make(map[assets.AssetType][]assets.AssetSummary),
		listErr:     make(map[assets.AssetType]error),
		permissions: make(map[string][]assets.Permission),
		tags:        make(map[string][]assets.Tag),
	}
}

func (g *fakeGateway) ListAll(ctx context.Context, assetType assets.AssetType) (*ports.ListResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.listErr[assetType]; err != nil {
		return nil, err
	}
	return &ports.ListResult{Items: g.listings[assetType], APICallCount: 1}, nil
}

func (g *fakeGateway) Describe(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.describeCalls++
	if g.describeErr != nil {
		return nil, g.describeErr
	}
	if g.describeData != nil {
		return g.describeData, nil
	}
	return map[string]any{"Id": assetID, "source": "describe"}, nil
}

func (g *fakeGateway) DescribeDefinition(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.definitionCalls++
	if g.definitionErr != nil {
		return nil, g.definitionErr
	}
	return map[string]any{"Id": assetID, "source": "definition"}, nil
}

func (g *fakeGateway) DescribePermissions(ctx context.Context, assetType assets.AssetType, assetID string) ([]assets.Permission, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.permissionCalls++
	if g.permissionsErr != nil {
		return nil, g.permissionsErr
	}
	return g.permissions[assetID], nil
}

func (g *fakeGateway) DescribeTags(ctx context.Context, arn string) ([]assets.Tag, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tagCalls++
	if g.tagsErr != nil {
		return nil, g.tagsErr
	}
	return g.tags[arn], nil
}

func (g *fakeGateway) DescribeSpecial(ctx context.Context, assetType assets.AssetType, assetID string) (map[string]any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.specialCalls++
	if g.specialErr != nil {
		return nil, g.specialErr
	}
	return map[string]any{"members": []string{"m1"}}, nil
}

// fakeStore is an in-memory ports.CacheStore.
type fakeStore struct {
	mu sync.Mutex

	typeCaches  map[assets.AssetType][]assets.CacheEntry
	documents   map[string]*assets.ExportDocument
	collections map[string]map[string]*assets.ExportDocument
	fieldCache  map[string]any
	metadata    *assets.CacheMetadata

	typeCacheErr  error
	saveErr       error
	collectionErr error
	archiveErr    error

	archivedItems  []ports.ArchiveItem
	saveTypeCalls  int
	saveCollCalls  int
	getCollCalls   int
	fieldSaveCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		typeCaches:  make(map[assets.AssetType][]assets.CacheEntry),
		documents:   make(map[string]*assets.ExportDocument),
		collections: make(map[string]map[string]*assets.ExportDocument),
	}
}

func (s *fakeStore) GetTypeCache(ctx context.Context, assetType assets.AssetType) ([]assets.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typeCacheErr != nil {
		return nil, s.typeCacheErr
	}
	return s.typeCaches[assetType], nil
}

func (s *fakeStore) SaveTypeCache(ctx context.Context, assetType assets.AssetType, entries []assets.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveTypeCalls++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.typeCaches[assetType] = entries
	return nil
}

func (s *fakeStore) GetMasterCache(ctx context.Context, filter []assets.AssetType) (*assets.MasterCache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	perType := make(map[assets.AssetType][]assets.CacheEntry)
	for t, entries := range s.typeCaches {
		perType[t] = entries
	}
	return assets.NewMasterCache(perType, time.Now()), nil
}

func (s *fakeStore) GetExportDocument(ctx context.Context, assetType assets.AssetType, assetID string) (*assets.ExportDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documents[string(assetType)+"/"+assetID], nil
}

func (s *fakeStore) SaveExportDocument(ctx context.Context, assetType assets.AssetType, assetID string, doc *assets.ExportDocument) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return "", s.saveErr
	}
	key := string(assetType) + "/" + assetID
	s.documents[key] = doc
	return "assets/" + assetType.Plural() + "/" + assetID + ".json", nil
}

func (s *fakeStore) SaveCollection(ctx context.Context, key string, docs map[string]*assets.ExportDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveCollCalls++
	if s.collectionErr != nil {
		return s.collectionErr
	}
	s.collections[key] = docs
	return nil
}

func (s *fakeStore) GetCollection(ctx context.Context, key string) (map[string]*assets.ExportDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getCollCalls++
	return s.collections[key], nil
}

func (s *fakeStore) ArchiveAssets(ctx context.Context, items []ports.ArchiveItem) []ports.ArchiveResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.archivedItems = append(s.archivedItems, items...)
	results := make([]ports.ArchiveResult, len(items))
	for i, item := range items {
		results[i] = ports.ArchiveResult{AssetID: item.AssetID, Err: s.archiveErr}
	}
	return results
}

func (s *fakeStore) SaveFieldCache(ctx context.Context, index map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fieldSaveCalls++
	s.fieldCache = index
	return nil
}

func (s *fakeStore) SaveCacheMetadata(ctx context.Context, meta *assets.CacheMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata = meta
	return nil
}

func (s *fakeStore) Bucket() string { return "test-bucket" }

func (s *fakeStore) CollectionKey(assetType assets.AssetType) string {
	return "assets/organization/" + assetType.Plural() + ".json"
}

// fakeJobs records job updates and logs.
type fakeJobs struct {
	mu sync.Mutex

	patches   []ports.JobStatusPatch
	logs      []string
	stopFn    func() bool
	updateErr error
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{}
}

func (j *fakeJobs) LogInfo(ctx context.Context, jobID, message string, details map[string]any) {
	j.record("info: " + message)
}

func (j *fakeJobs) LogWarn(ctx context.Context, jobID, message string, details map[string]any) {
	j.record("warn: " + message)
}

func (j *fakeJobs) LogError(ctx context.Context, jobID, message string, details map[string]any) {
	j.record("error: " + message)
}

func (j *fakeJobs) record(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, line)
}

func (j *fakeJobs) UpdateJobStatus(ctx context.Context, jobID string, patch ports.JobStatusPatch) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.updateErr != nil {
		return j.updateErr
	}
	j.patches = append(j.patches, patch)
	return nil
}

func (j *fakeJobs) IsStopRequested(ctx context.Context, jobID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.stopFn == nil {
		return false
	}
	return j.stopFn()
}

// lastStatus returns the most recent non-nil Status written via a patch.
func (j *fakeJobs) lastStatus() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.patches) - 1; i >= 0; i-- {
		if j.patches[i].Status != nil {
			return *j.patches[i].Status
		}
	}
	return ""
}

// fakeEvents records published lifecycle events.
type fakeEvents struct {
	mu     sync.Mutex
	events []string
}

func (e *fakeEvents) PublishJobEvent(ctx context.Context, eventType, jobID string, detail map[string]any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, eventType)
	return nil
}

// fakeLock and fakeLease back the export service tests.
type fakeLock struct {
	mu         sync.Mutex
	acquireErr error
	lease      *fakeLease
	acquired   int
}

func (l *fakeLock) Acquire(ctx context.Context, accountID, jobID string, duration time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.acquireErr != nil {
		return nil, l.acquireErr
	}
	l.acquired++
	if l.lease == nil {
		l.lease = &fakeLease{}
	}
	return l.lease, nil
}

type fakeLease struct {
	mu       sync.Mutex
	released int
}

func (l *fakeLease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released++
	return nil
}

func (l *fakeLease) releaseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

type fakeAdmin struct {
	mu        sync.Mutex
	createErr error
	created   []string
	stopped   []string
}

func (a *fakeAdmin) CreateJob(ctx context.Context, jobID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.createErr != nil {
		return a.createErr
	}
	a.created = append(a.created, jobID)
	return nil
}

func (a *fakeAdmin) RequestStop(ctx context.Context, jobID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = append(a.stopped, jobID)
	return nil
}

func summaryFor(id string, updated *time.Time) assets.AssetSummary {
	return assets.AssetSummary{
		ID:              id,
		Name:            "name-" + id,
		ARN:             "arn:aws:quicksight:us-east-1:123456789012:asset/" + id,
		LastUpdatedTime: updated,
	}
}

func timePtr(t time.Time) *time.Time { return &t }

func summaries(n int) []assets.AssetSummary {
	out := make([]assets.AssetSummary, n)
	for i := range out {
		out[i] = summaryFor(fmt.Sprintf("asset-%03d", i), nil)
	}
	return out
}
