package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpwatch/mcpwatch/internal/models"
	"github.com/mcpwatch/mcpwatch/internal/storage/mirror"
)

func setupEntityMux(t *testing.T) (*http.ServeMux, *mirror.Store) {
	t.Helper()

	store := mirror.New()
	handler := NewEntityHandler(store, setupTestLogger())
	mux := http.NewServeMux()
	handler.Register(mux)

	return mux, store
}

func TestEntityHandler_CreateAndGet(t *testing.T) {
	mux, _ := setupEntityMux(t)

	body := `{"id":"p1","name":"edge","active":true,"updatedAt":"2026-08-20T10:00:00Z"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/profile", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Result().StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/entities/profile/p1", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := w.Result()
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var profile models.Profile
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&profile))
	assert.Equal(t, "edge", profile.Name)
	assert.True(t, profile.Active)
}

func TestEntityHandler_List(t *testing.T) {
	mux, store := setupEntityMux(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.Server{ID: "srv-1", Name: "fs", Endpoint: "stdio"}))
	require.NoError(t, store.Create(ctx, &models.Server{ID: "srv-2", Name: "git", Endpoint: "stdio"}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities/server", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	resp := w.Result()
	defer func() {
		require.NoError(t, resp.Body.Close())
	}()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var servers []models.Server
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&servers))
	require.Len(t, servers, 2)
	assert.Equal(t, "srv-1", servers[0].ID)
}

func TestEntityHandler_ListEmptyIsArray(t *testing.T) {
	mux, _ := setupEntityMux(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/entities/plugin", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Result().StatusCode)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestEntityHandler_UpdateAndDelete(t *testing.T) {
	mux, store := setupEntityMux(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, &models.Plugin{ID: "plug-1", Name: "before"}))

	body := `{"id":"plug-1","name":"after","enabled":true}`
	req := httptest.NewRequest(http.MethodPut, "/api/v1/entities/plugin/plug-1", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Result().StatusCode)

	got, err := store.Get(ctx, models.EntityPlugin, "plug-1")
	require.NoError(t, err)
	assert.Equal(t, "after", got.(*models.Plugin).Name)

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/entities/plugin/plug-1", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Result().StatusCode)
}

func TestEntityHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
	}{
		{
			name:       "unknown entity type",
			method:     http.MethodGet,
			path:       "/api/v1/entities/sessions",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "get missing record",
			method:     http.MethodGet,
			path:       "/api/v1/entities/profile/nope",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "create with unknown field",
			method:     http.MethodPost,
			path:       "/api/v1/entities/profile",
			body:       `{"id":"p1","bogus":true}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "create without id",
			method:     http.MethodPost,
			path:       "/api/v1/entities/profile",
			body:       `{"name":"edge"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "update with mismatched id",
			method:     http.MethodPut,
			path:       "/api/v1/entities/profile/p1",
			body:       `{"id":"p2","name":"edge"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "update missing record",
			method:     http.MethodPut,
			path:       "/api/v1/entities/profile/ghost",
			body:       `{"id":"ghost","name":"edge"}`,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mux, _ := setupEntityMux(t)

			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Result().StatusCode)
		})
	}
}

func TestEntityHandler_CreateDuplicateConflicts(t *testing.T) {
	mux, store := setupEntityMux(t)
	require.NoError(t, store.Create(context.Background(), &models.Profile{ID: "p1", Name: "edge"}))

	body := `{"id":"p1","name":"dup"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/entities/profile", strings.NewReader(body))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Result().StatusCode)
}
