package handlers

import (
	"errors"
	"net/http"

	"qsportal-backend/application/export"
	dynamostore "qsportal-backend/infrastructure/persistence/dynamodb"
	"qsportal-backend/pkg/common"
	apperrors "qsportal-backend/pkg/errors"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ExportHandler exposes the export job lifecycle over HTTP.
type ExportHandler struct {
	service  *export.Service
	jobs     *dynamostore.JobStore
	validate *validator.Validate
	logger   *zap.Logger
}

// NewExportHandler creates an export handler.
func NewExportHandler(service *export.Service, jobs *dynamostore.JobStore, logger *zap.Logger) *ExportHandler {
	return &ExportHandler{
		service:  service,
		jobs:     jobs,
		validate: validator.New(),
		logger:   logger,
	}
}

// StartExportRequest is the POST /export request body.
type StartExportRequest struct {
	AssetTypes   []string `json:"assetTypes" validate:"omitempty,dive,oneof=dashboard analysis dataset datasource folder user group"`
	ForceRefresh bool     `json:"forceRefresh"`
	Refresh      struct {
		Definitions bool `json:"definitions"`
		Permissions bool `json:"permissions"`
		Tags        bool `json:"tags"`
	} `json:"refresh"`
}

// StartExport launches a new export job and returns its ID for polling.
func (h *ExportHandler) StartExport(w http.ResponseWriter, r *http.Request) {
	var req StartExportRequest
	if err := common.ParseJSONBody(r, &req, 1<<20); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.BadRequest, "Invalid request body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	types, err := export.ParseAssetTypes(req.AssetTypes)
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	opts := export.ExportOptions{
		AssetTypes:   types,
		ForceRefresh: req.ForceRefresh,
		Refresh: export.RefreshOptions{
			Definitions: req.Refresh.Definitions,
			Permissions: req.Refresh.Permissions,
			Tags:        req.Refresh.Tags,
		},
	}

	jobID, err := h.service.StartExport(r.Context(), opts)
	if err != nil {
		if errors.Is(err, dynamostore.ErrExportInProgress) {
			common.RespondError(w, http.StatusConflict, common.StandardErrorCodes.Conflict, err.Error())
			return
		}
		if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Type == apperrors.ErrorTypeValidation {
			common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, appErr.Message)
			return
		}
		h.logger.Error("Failed to start export", zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to start export")
		return
	}

	common.RespondJSON(w, http.StatusAccepted, map[string]any{
		"jobId":  jobID,
		"status": export.JobStatusRunning,
	})
}

// GetJobStatus returns the current state of one export job.
func (h *ExportHandler) GetJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	record, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to load job", zap.String("jobId", jobID), zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to load job")
		return
	}
	if record == nil {
		common.RespondError(w, http.StatusNotFound, common.StandardErrorCodes.NotFound, "Job not found")
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]any{
		"jobId":          record.JobID,
		"status":         record.Status,
		"message":        record.Message,
		"totalAssets":    record.TotalAssets,
		"processedCount": record.ProcessedCount,
		"failedCount":    record.FailedCount,
		"failures":       record.Failures,
		"stopRequested":  record.StopRequested,
		"createdAt":      record.CreatedAt,
		"updatedAt":      record.UpdatedAt,
	})
}

// StopJob flags a running job for cooperative cancellation.
func (h *ExportHandler) StopJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	record, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to load job", zap.String("jobId", jobID), zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to load job")
		return
	}
	if record == nil {
		common.RespondError(w, http.StatusNotFound, common.StandardErrorCodes.NotFound, "Job not found")
		return
	}
	if record.Status != export.JobStatusRunning {
		common.RespondError(w, http.StatusConflict, common.StandardErrorCodes.Conflict, "Job is not running")
		return
	}

	if err := h.service.StopExport(r.Context(), jobID); err != nil {
		h.logger.Error("Failed to request stop", zap.String("jobId", jobID), zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to request stop")
		return
	}

	common.RespondJSON(w, http.StatusAccepted, map[string]any{
		"jobId":         jobID,
		"stopRequested": true,
	})
}

// GetJobLogs returns the persisted log lines for one job.
func (h *ExportHandler) GetJobLogs(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	logs, err := h.jobs.GetJobLogs(r.Context(), jobID, 200)
	if err != nil {
		h.logger.Error("Failed to load job logs", zap.String("jobId", jobID), zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to load job logs")
		return
	}

	common.RespondJSON(w, http.StatusOK, map[string]any{
		"jobId": jobID,
		"logs":  logs,
	})
}
