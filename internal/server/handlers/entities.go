package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage"
)

// maxBodySize limits entity payloads to 1 MiB.
const maxBodySize = 1 << 20

// EntityStore is the offline-resilient CRUD surface the entity handler
// serves from.
type EntityStore interface {
	Get(ctx context.Context, t models.EntityType, id string) (models.Entity, error)
	List(ctx context.Context, t models.EntityType) ([]models.Entity, error)
	Create(ctx context.Context, e models.Entity) error
	Update(ctx context.Context, e models.Entity) error
	Delete(ctx context.Context, t models.EntityType, id string) error
}

// EntityHandler serves generic CRUD over the mirrored entity
// collections.
type EntityHandler struct {
	store  EntityStore
	logger *slog.Logger
}

// NewEntityHandler creates a handler over the given store.
func NewEntityHandler(store EntityStore, logger *slog.Logger) *EntityHandler {
	return &EntityHandler{
		store:  store,
		logger: logger,
	}
}

// Register mounts the CRUD routes under /api/v1/entities.
func (h *EntityHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/entities/{type}", h.List)
	mux.HandleFunc("POST /api/v1/entities/{type}", h.Create)
	mux.HandleFunc("GET /api/v1/entities/{type}/{id}", h.Get)
	mux.HandleFunc("PUT /api/v1/entities/{type}/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/entities/{type}/{id}", h.Delete)
}

// List handles GET /api/v1/entities/{type}
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	entities, err := h.store.List(r.Context(), t)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entities == nil {
		entities = []models.Entity{}
	}

	h.writeJSON(w, http.StatusOK, entities)
}

// Get handles GET /api/v1/entities/{type}/{id}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	entity, err := h.store.Get(r.Context(), t, r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entity)
}

// Create handles POST /api/v1/entities/{type}
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	entity, ok := h.decodeBody(w, r, t)
	if !ok {
		return
	}

	if err := h.store.Create(r.Context(), entity); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, entity)
}

// Update handles PUT /api/v1/entities/{type}/{id}
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	entity, ok := h.decodeBody(w, r, t)
	if !ok {
		return
	}
	if entity.EntityID() != r.PathValue("id") {
		http.Error(w, "payload id does not match path id", http.StatusBadRequest)
		return
	}

	if err := h.store.Update(r.Context(), entity); err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, entity)
}

// Delete handles DELETE /api/v1/entities/{type}/{id}
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	if err := h.store.Delete(r.Context(), t, r.PathValue("id")); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandler) entityType(w http.ResponseWriter, r *http.Request) (models.EntityType, bool) {
	t := models.EntityType(r.PathValue("type"))
	if !models.IsMirrored(t) {
		http.Error(w, "unknown entity type", http.StatusNotFound)
		return "", false
	}
	return t, true
}

func (h *EntityHandler) decodeBody(w http.ResponseWriter, r *http.Request, t models.EntityType) (models.Entity, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return nil, false
	}

	entity, err := models.DecodeEntity(t, body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	return entity, true
}

func (h *EntityHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrAlreadyExists):
		http.Error(w, "already exists", http.StatusConflict)
	default:
		h.logger.Error("storage operation failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

func (h *EntityHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
