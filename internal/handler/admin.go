package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/store"
	"github.com/dukerupert/savory/internal/websocket"
)

type AdminHandler struct {
	engine  *search.Engine
	hub     *websocket.Hub
	recipes *store.RecipeStore
	logger  *slog.Logger
}

func NewAdminHandler(engine *search.Engine, hub *websocket.Hub, rs *store.RecipeStore, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{engine: engine, hub: hub, recipes: rs, logger: logger}
}

// ClearCache drops every cached search and facet result.
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.InvalidateAll(r.Context()); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, nil)
}

// Stats reports the catalogue size and how many users and connections are live.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	recipes, err := h.recipes.Count(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"recipes":           recipes,
		"connected_users":   h.hub.UserCount(),
		"connected_clients": h.hub.ClientCount(),
	})
}
