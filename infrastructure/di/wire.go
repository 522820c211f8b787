//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"qsportal-backend/infrastructure/config"

	"github.com/google/wire"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideAWSConfig,
	ProvideDynamoDBClient,
	ProvideS3Client,
	ProvideQuickSightClient,
	ProvideEventBridgeClient,
	ProvideCloudWatchClient,
	ProvideRateLimits,
	ProvideAssetGateway,
	ProvideCacheStore,
	ProvideJobStore,
	ProvideJobStateService,
	ProvideExportLock,
	ProvideEventPublisher,
	ProvideMetrics,
	ProvideTracer,
	ProvideComparisonEngine,
	ProvideCacheRebuilder,
	ProvideOrchestrator,
	ProvideExportService,
	ProvideJWTValidator,
	ProvideExportHandler,
	ProvideCacheHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	wire.Build(SuperSet)
	return nil, nil // Wire will replace this
}
