package di

import (
	"context"
	"time"

	"qsportal-backend/application/export"
	"qsportal-backend/application/ports"
	"qsportal-backend/infrastructure/config"
	"qsportal-backend/infrastructure/messaging/eventbridge"
	dynamostore "qsportal-backend/infrastructure/persistence/dynamodb"
	s3store "qsportal-backend/infrastructure/persistence/s3"
	qsgateway "qsportal-backend/infrastructure/quicksight"
	"qsportal-backend/interfaces/http/rest/handlers"
	"qsportal-backend/pkg/auth"
	"qsportal-backend/pkg/observability"
	"qsportal-backend/pkg/ratelimit"
	"qsportal-backend/pkg/retry"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	awsquicksight "github.com/aws/aws-sdk-go-v2/service/quicksight"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var logger *zap.Logger
	var err error

	if cfg.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		return nil, err
	}

	return logger, nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideS3Client creates an S3 client
func ProvideS3Client(awsCfg aws.Config) *awss3.Client {
	return awss3.NewFromConfig(awsCfg)
}

// ProvideQuickSightClient creates a QuickSight client
func ProvideQuickSightClient(awsCfg aws.Config) *awsquicksight.Client {
	return awsquicksight.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideRateLimits creates the general and permissions token buckets from
// the configured requests-per-second rates. Burst capacity is twice the
// steady-state rate so short spikes absorb without waiting.
func ProvideRateLimits(cfg *config.Config) *ratelimit.Pair {
	return ratelimit.NewPair(
		burstFor(cfg.RateLimitGeneral), cfg.RateLimitGeneral,
		burstFor(cfg.RateLimitPermissions), cfg.RateLimitPermissions,
	)
}

func burstFor(rate float64) int {
	burst := int(rate * 2)
	if burst < 1 {
		burst = 1
	}
	return burst
}

// ProvideAssetGateway creates the QuickSight asset gateway
func ProvideAssetGateway(
	client *awsquicksight.Client,
	cfg *config.Config,
	limits *ratelimit.Pair,
	logger *zap.Logger,
) ports.AssetGateway {
	return qsgateway.NewGateway(client, cfg.AWSAccountID, cfg.Namespace, limits, retry.DefaultPolicy(), logger)
}

// ProvideCacheStore creates the S3 cache store wrapped with read memoization
func ProvideCacheStore(client *awss3.Client, cfg *config.Config, logger *zap.Logger) ports.CacheStore {
	return s3store.NewCachingStore(s3store.NewCacheStore(client, cfg.ExportBucket, logger))
}

// ProvideJobStore creates the DynamoDB job store
func ProvideJobStore(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamostore.JobStore {
	return dynamostore.NewJobStore(client, cfg.JobsTable, logger)
}

// ProvideJobStateService exposes the job store through its port
func ProvideJobStateService(store *dynamostore.JobStore) ports.JobStateService {
	return store
}

// ProvideExportLock creates the per-account export lock
func ProvideExportLock(client *awsdynamodb.Client, cfg *config.Config, logger *zap.Logger) *dynamostore.ExportLock {
	return dynamostore.NewExportLock(client, cfg.JobsTable, logger)
}

// ProvideEventPublisher creates the export event publisher
func ProvideEventPublisher(client *awseventbridge.Client, cfg *config.Config, logger *zap.Logger) ports.EventPublisher {
	return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
}

// ProvideMetrics creates the CloudWatch metrics emitter
func ProvideMetrics(client *awscloudwatch.Client, cfg *config.Config, logger *zap.Logger) *observability.MetricsEmitter {
	return observability.NewMetricsEmitter(client, cfg.EnableMetrics, logger)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer() *observability.Tracer {
	return observability.NewTracer("qsportal")
}

// ProvideComparisonEngine creates the cache comparison engine
func ProvideComparisonEngine(store ports.CacheStore, logger *zap.Logger) *export.ComparisonEngine {
	return export.NewComparisonEngine(store, logger)
}

// ProvideCacheRebuilder creates the cache index rebuilder
func ProvideCacheRebuilder(store ports.CacheStore, logger *zap.Logger) *export.CacheRebuilder {
	return export.NewCacheRebuilder(store, logger)
}

// ProvideOrchestrator creates the export orchestrator
func ProvideOrchestrator(
	gateway ports.AssetGateway,
	store ports.CacheStore,
	jobs ports.JobStateService,
	events ports.EventPublisher,
	comparison *export.ComparisonEngine,
	rebuilder *export.CacheRebuilder,
	metrics *observability.MetricsEmitter,
	cfg *config.Config,
	logger *zap.Logger,
) *export.Orchestrator {
	orchestrator := export.NewOrchestrator(
		gateway,
		store,
		jobs,
		events,
		comparison,
		rebuilder,
		cfg.BatchSize,
		cfg.MaxConcurrency,
		logger,
	)
	orchestrator.SetMetrics(metrics)
	return orchestrator
}

// ProvideExportService creates the export job lifecycle service
func ProvideExportService(
	orchestrator *export.Orchestrator,
	jobs *dynamostore.JobStore,
	lock *dynamostore.ExportLock,
	tracer *observability.Tracer,
	cfg *config.Config,
	logger *zap.Logger,
) *export.Service {
	return export.NewService(orchestrator, jobs, &lockAdapter{lock}, tracer, cfg.AWSAccountID, logger)
}

// lockAdapter bridges the concrete lock's lease type to the service's
// interface return.
type lockAdapter struct {
	lock *dynamostore.ExportLock
}

func (a *lockAdapter) Acquire(ctx context.Context, accountID, jobID string, duration time.Duration) (export.Lease, error) {
	lease, err := a.lock.Acquire(ctx, accountID, jobID, duration)
	if err != nil {
		return nil, err
	}
	return lease, nil
}

// ProvideJWTValidator creates the JWT validator for the HTTP surface
func ProvideJWTValidator(cfg *config.Config) (*auth.JWTValidator, error) {
	secret := cfg.JWTSecret
	if secret == "" && cfg.IsDevelopment() {
		secret = "development-secret-change-in-production"
	}
	return auth.NewJWTValidator(auth.JWTConfig{
		SecretKey: secret,
		Issuer:    cfg.JWTIssuer,
		Audience:  []string{"qsportal-api"},
	})
}

// ProvideExportHandler creates the export HTTP handler
func ProvideExportHandler(service *export.Service, jobs *dynamostore.JobStore, logger *zap.Logger) *handlers.ExportHandler {
	return handlers.NewExportHandler(service, jobs, logger)
}

// ProvideCacheHandler creates the cache HTTP handler
func ProvideCacheHandler(store ports.CacheStore, logger *zap.Logger) *handlers.CacheHandler {
	return handlers.NewCacheHandler(store, logger)
}
