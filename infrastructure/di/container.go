package di

import (
	"qsportal-backend/application/export"
	"qsportal-backend/application/ports"
	"qsportal-backend/infrastructure/config"
	dynamostore "qsportal-backend/infrastructure/persistence/dynamodb"
	"qsportal-backend/interfaces/http/rest/handlers"
	"qsportal-backend/pkg/auth"
	"qsportal-backend/pkg/observability"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config        *config.Config
	Logger        *zap.Logger
	Gateway       ports.AssetGateway
	CacheStore    ports.CacheStore
	JobStore      *dynamostore.JobStore
	Jobs          ports.JobStateService
	ExportLock    *dynamostore.ExportLock
	Events        ports.EventPublisher
	Metrics       *observability.MetricsEmitter
	Tracer        *observability.Tracer
	Orchestrator  *export.Orchestrator
	ExportService *export.Service
	JWTValidator  *auth.JWTValidator
	ExportHandler *handlers.ExportHandler
	CacheHandler  *handlers.CacheHandler
}
