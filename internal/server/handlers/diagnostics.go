package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/mcpwatch/mcpwatch/internal/models"
)

// StorageDiagnostics is the full operator surface of the offline
// mirroring subsystem.
type StorageDiagnostics interface {
	StorageStatus
	OfflineOps() []models.OfflineOp
	Conflicts() []models.OfflineConflict
	DeadLetters() ([]models.DeadLetter, error)
	TriggerResync(ctx context.Context) error
}

// DiagnosticsHandler exposes the offline queue, conflict audit trail and
// dead letters, and the manual resync trigger.
type DiagnosticsHandler struct {
	diag   StorageDiagnostics
	logger *slog.Logger
}

// NewDiagnosticsHandler creates a handler over the diagnostics surface.
func NewDiagnosticsHandler(diag StorageDiagnostics, logger *slog.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		diag:   diag,
		logger: logger,
	}
}

// DiagnosticsResponse represents the diagnostics snapshot
type DiagnosticsResponse struct {
	Offline            bool                     `json:"offline"`
	MirrorPrimed       bool                     `json:"mirrorPrimed"`
	OfflineQueueLength int                      `json:"offlineQueueLength"`
	OfflineOps         []models.OfflineOp       `json:"offlineOps"`
	OfflineConflicts   []models.OfflineConflict `json:"offlineConflicts"`
	DeadLetters        []models.DeadLetter      `json:"deadLetters"`
}

// Diagnostics handles GET /api/v1/diagnostics
func (h *DiagnosticsHandler) Diagnostics(w http.ResponseWriter, r *http.Request) {
	deadLetters, err := h.diag.DeadLetters()
	if err != nil {
		h.logger.Error("failed to read dead letters", slog.Any("error", err))
		http.Error(w, "failed to read dead letters", http.StatusInternalServerError)
		return
	}

	resp := DiagnosticsResponse{
		Offline:            h.diag.IsOffline(),
		MirrorPrimed:       h.diag.MirrorPrimed(),
		OfflineQueueLength: h.diag.QueueLen(),
		OfflineOps:         h.diag.OfflineOps(),
		OfflineConflicts:   h.diag.Conflicts(),
		DeadLetters:        deadLetters,
	}
	if resp.OfflineOps == nil {
		resp.OfflineOps = []models.OfflineOp{}
	}
	if resp.OfflineConflicts == nil {
		resp.OfflineConflicts = []models.OfflineConflict{}
	}
	if resp.DeadLetters == nil {
		resp.DeadLetters = []models.DeadLetter{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode diagnostics response", slog.Any("error", err))
	}
}

// Resync handles POST /api/v1/resync, forcing an immediate replay
// attempt.
func (h *DiagnosticsHandler) Resync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.diag.TriggerResync(r.Context()); err != nil {
		h.logger.Warn("manual resync failed", slog.Any("error", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "offline", "error": err.Error()})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
