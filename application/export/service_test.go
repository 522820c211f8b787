package export

import (
	"context"
	"errors"
	"testing"
	"time"

	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(lock *fakeLock, admin *fakeAdmin) (*Service, *fakeJobs) {
	gateway := newFakeGateway()
	store := newFakeStore()
	jobs := newFakeJobs()
	orch := newTestOrchestrator(gateway, store, jobs, &fakeEvents{})
	svc := NewService(orch, admin, lock, nil, "123456789012", zap.NewNop())
	return svc, jobs
}

func TestService_StartExport_ReturnsJobImmediately(t *testing.T) {
	ctx := context.Background()
	lock := &fakeLock{}
	admin := &fakeAdmin{}
	svc, _ := newTestService(lock, admin)

	jobID, err := svc.StartExport(ctx, ExportOptions{
		AssetTypes: []assets.AssetType{assets.AssetTypeDashboard},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, jobID)
	assert.Equal(t, []string{jobID}, admin.created)

	// The background run releases the lock when it finishes.
	require.Eventually(t, func() bool {
		return lock.lease != nil && lock.lease.releaseCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_StartExport_RejectsUnknownType(t *testing.T) {
	ctx := context.Background()
	lock := &fakeLock{}
	svc, _ := newTestService(lock, &fakeAdmin{})

	_, err := svc.StartExport(ctx, ExportOptions{
		AssetTypes: []assets.AssetType{"spreadsheet"},
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
	assert.Equal(t, 0, lock.acquired, "validation failures must not take the lock")
}

func TestService_StartExport_LockConflict(t *testing.T) {
	ctx := context.Background()
	conflict := errors.New("an export is already running for this account")
	lock := &fakeLock{acquireErr: conflict}
	admin := &fakeAdmin{}
	svc, _ := newTestService(lock, admin)

	_, err := svc.StartExport(ctx, ExportOptions{})

	assert.ErrorIs(t, err, conflict)
	assert.Empty(t, admin.created)
}

func TestService_StartExport_ReleasesLockWhenJobCreationFails(t *testing.T) {
	ctx := context.Background()
	lock := &fakeLock{lease: &fakeLease{}}
	admin := &fakeAdmin{createErr: errors.New("dynamodb unavailable")}
	svc, _ := newTestService(lock, admin)

	_, err := svc.StartExport(ctx, ExportOptions{})

	require.Error(t, err)
	assert.Equal(t, 1, lock.lease.releaseCount())
}

func TestService_StopExport_FlagsTheJob(t *testing.T) {
	ctx := context.Background()
	admin := &fakeAdmin{}
	svc, _ := newTestService(&fakeLock{}, admin)

	require.NoError(t, svc.StopExport(ctx, "job-42"))
	assert.Equal(t, []string{"job-42"}, admin.stopped)
}

func TestParseAssetTypes(t *testing.T) {
	types, err := ParseAssetTypes([]string{"dashboard", "dataset"})
	require.NoError(t, err)
	assert.Equal(t, []assets.AssetType{assets.AssetTypeDashboard, assets.AssetTypeDataset}, types)

	_, err = ParseAssetTypes([]string{"dashboard", "widget"})
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeValidation))
}
