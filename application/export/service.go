package export

import (
	"context"
	"time"

	"qsportal-backend/domain/assets"
	apperrors "qsportal-backend/pkg/errors"
	"qsportal-backend/pkg/observability"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// lockDuration bounds how long a crashed job can block the next export.
const lockDuration = 2 * time.Hour

// JobAdmin is the job lifecycle surface the service needs beyond the
// orchestrator's own progress reporting.
type JobAdmin interface {
	CreateJob(ctx context.Context, jobID string) error
	RequestStop(ctx context.Context, jobID string) error
}

// JobLock serializes export runs per account.
type JobLock interface {
	Acquire(ctx context.Context, accountID, jobID string, duration time.Duration) (Lease, error)
}

// Lease is a held export lock.
type Lease interface {
	Release(ctx context.Context) error
}

// Service starts, stops, and reports on export jobs. Export runs execute in a
// background goroutine; callers poll job state for progress.
type Service struct {
	orchestrator *Orchestrator
	admin        JobAdmin
	lock         JobLock
	tracer       *observability.Tracer
	accountID    string
	logger       *zap.Logger
}

// NewService creates an export service.
func NewService(
	orchestrator *Orchestrator,
	admin JobAdmin,
	lock JobLock,
	tracer *observability.Tracer,
	accountID string,
	logger *zap.Logger,
) *Service {
	return &Service{
		orchestrator: orchestrator,
		admin:        admin,
		lock:         lock,
		tracer:       tracer,
		accountID:    accountID,
		logger:       logger,
	}
}

// StartExport validates the requested types, takes the per-account export
// lock, creates the job record, and launches the run in the background. The
// returned jobID is immediately pollable.
func (s *Service) StartExport(ctx context.Context, opts ExportOptions) (string, error) {
	for _, t := range opts.AssetTypes {
		if !t.IsValid() {
			return "", apperrors.NewValidationError("unknown asset type: " + string(t))
		}
	}

	jobID := uuid.New().String()

	lease, err := s.lock.Acquire(ctx, s.accountID, jobID, lockDuration)
	if err != nil {
		return "", err
	}

	if err := s.admin.CreateJob(ctx, jobID); err != nil {
		if relErr := lease.Release(ctx); relErr != nil {
			s.logger.Warn("Failed to release export lock after job creation failure",
				zap.String("jobId", jobID),
				zap.Error(relErr),
			)
		}
		return "", err
	}

	go s.run(jobID, opts, lease)
	return jobID, nil
}

// run executes the export on a detached context so the job outlives the HTTP
// request that started it.
func (s *Service) run(jobID string, opts ExportOptions, lease Lease) {
	ctx := context.Background()
	defer func() {
		if err := lease.Release(ctx); err != nil {
			s.logger.Warn("Failed to release export lock",
				zap.String("jobId", jobID),
				zap.Error(err),
			)
		}
	}()

	runExport := func(ctx context.Context) error {
		_, err := s.orchestrator.ExportAssets(ctx, jobID, opts)
		return err
	}

	var err error
	if s.tracer != nil {
		err = s.tracer.TraceRoot(ctx, "export", runExport)
	} else {
		err = runExport(ctx)
	}
	if err != nil {
		s.logger.Error("Export run failed",
			zap.String("jobId", jobID),
			zap.Error(err),
		)
	}
}

// StopExport flags the job for cooperative cancellation. Workers observe the
// flag between batches; in-flight items finish first.
func (s *Service) StopExport(ctx context.Context, jobID string) error {
	return s.admin.RequestStop(ctx, jobID)
}

// ParseAssetTypes converts request strings into validated asset types.
func ParseAssetTypes(names []string) ([]assets.AssetType, error) {
	types := make([]assets.AssetType, 0, len(names))
	for _, name := range names {
		t, err := assets.ParseAssetType(name)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		types = append(types, t)
	}
	return types, nil
}
