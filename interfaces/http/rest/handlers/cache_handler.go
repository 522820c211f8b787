package handlers

import (
	"net/http"

	"qsportal-backend/application/ports"
	"qsportal-backend/domain/assets"
	"qsportal-backend/pkg/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CacheHandler serves the portal's read views over the cache indexes.
type CacheHandler struct {
	store  ports.CacheStore
	logger *zap.Logger
}

// NewCacheHandler creates a cache handler.
func NewCacheHandler(store ports.CacheStore, logger *zap.Logger) *CacheHandler {
	return &CacheHandler{
		store:  store,
		logger: logger,
	}
}

// GetMasterCache returns the rolled-up view across asset types. An optional
// repeated "type" query parameter narrows the view.
func (h *CacheHandler) GetMasterCache(w http.ResponseWriter, r *http.Request) {
	var filter []assets.AssetType
	for _, name := range r.URL.Query()["type"] {
		t, err := assets.ParseAssetType(name)
		if err != nil {
			common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
			return
		}
		filter = append(filter, t)
	}

	master, err := h.store.GetMasterCache(r.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to build master cache", zap.Error(err))
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to build master cache")
		return
	}

	common.RespondJSON(w, http.StatusOK, master)
}

// GetTypeCache returns the cache index for one asset type.
func (h *CacheHandler) GetTypeCache(w http.ResponseWriter, r *http.Request) {
	t, err := assets.ParseAssetType(chi.URLParam(r, "assetType"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}

	entries, err := h.store.GetTypeCache(r.Context(), t)
	if err != nil {
		h.logger.Error("Failed to load type cache",
			zap.String("assetType", string(t)),
			zap.Error(err),
		)
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to load cache")
		return
	}
	entries = assets.DeduplicateEntries(entries)

	params := common.ExtractPaginationParams(r)
	total := len(entries)
	start := params.CalculateOffset()
	if start > total {
		start = total
	}
	end := start + params.PageSize
	if end > total {
		end = total
	}

	common.RespondJSON(w, http.StatusOK, common.NewPaginatedResult(entries[start:end], params.Page, params.PageSize, total))
}

// GetAssetDocument returns the persisted export document for one asset.
func (h *CacheHandler) GetAssetDocument(w http.ResponseWriter, r *http.Request) {
	t, err := assets.ParseAssetType(chi.URLParam(r, "assetType"))
	if err != nil {
		common.RespondError(w, http.StatusBadRequest, common.StandardErrorCodes.ValidationError, err.Error())
		return
	}
	assetID := chi.URLParam(r, "assetID")

	if assets.CapabilitiesFor(t).Storage == assets.StorageCollection {
		docs, err := h.store.GetCollection(r.Context(), h.store.CollectionKey(t))
		if err != nil {
			h.logger.Error("Failed to load collection", zap.String("assetType", string(t)), zap.Error(err))
			common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to load asset")
			return
		}
		doc, ok := docs[assetID]
		if !ok {
			common.RespondError(w, http.StatusNotFound, common.StandardErrorCodes.NotFound, "Asset not found")
			return
		}
		common.RespondJSON(w, http.StatusOK, doc)
		return
	}

	doc, err := h.store.GetExportDocument(r.Context(), t, assetID)
	if err != nil {
		h.logger.Error("Failed to load export document",
			zap.String("assetType", string(t)),
			zap.String("assetId", assetID),
			zap.Error(err),
		)
		common.RespondError(w, http.StatusInternalServerError, common.StandardErrorCodes.InternalError, "Failed to load asset")
		return
	}
	if doc == nil {
		common.RespondError(w, http.StatusNotFound, common.StandardErrorCodes.NotFound, "Asset not found")
		return
	}

	common.RespondJSON(w, http.StatusOK, doc)
}
