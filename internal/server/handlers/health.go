package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// StorageStatus is the diagnostics surface the health handler reads.
type StorageStatus interface {
	IsOffline() bool
	MirrorPrimed() bool
	QueueLen() int
}

// HealthHandler reports process and storage-subsystem health.
type HealthHandler struct {
	status StorageStatus
	logger *slog.Logger
}

// NewHealthHandler creates a handler over the storage diagnostics
// surface.
func NewHealthHandler(status StorageStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		status: status,
		logger: logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status             string `json:"status"`
	StorageOffline     bool   `json:"storageOffline"`
	MirrorPrimed       bool   `json:"mirrorPrimed"`
	OfflineQueueLength int    `json:"offlineQueueLength"`
}

// Health handles GET /api/v1/health. The process stays healthy while
// offline; degraded storage is reflected in the body, not the code.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:             "ok",
		StorageOffline:     h.status.IsOffline(),
		MirrorPrimed:       h.status.MirrorPrimed(),
		OfflineQueueLength: h.status.QueueLen(),
	}
	if resp.StorageOffline {
		resp.Status = "degraded"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode health response", slog.Any("error", err))
	}
}
