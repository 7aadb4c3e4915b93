package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/ingredient"
	"github.com/dukerupert/savory/internal/model"
	"github.com/dukerupert/savory/internal/store"
)

const (
	minIngredientQuery = 2
	ingredientLimit    = 10
)

type IngredientHandler struct {
	ingredients *store.IngredientStore
	logger      *slog.Logger
}

func NewIngredientHandler(is *store.IngredientStore, logger *slog.Logger) *IngredientHandler {
	return &IngredientHandler{ingredients: is, logger: logger}
}

// Search matches ingredient names containing q. Queries shorter than two
// characters return nothing.
func (h *IngredientHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(ingredient.DecodeName(r.URL.Query().Get("q")))
	if utf8.RuneCountInString(q) < minIngredientQuery {
		writeOK(w, http.StatusOK, envelope{"results": []model.Ingredient{}})
		return
	}
	results, err := h.ingredients.Search(r.Context(), q, ingredientLimit)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"results": results})
}

type createIngredientRequest struct {
	Name string `json:"name"`
}

// Create adds a new ingredient. A name that already exists is answered with
// 409 and the existing ingredient, which the client can use instead.
func (h *IngredientHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createIngredientRequest
	if err := requireBody(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	created, err := h.ingredients.Create(r.Context(), req.Name)
	if apperr.Is(err, apperr.KindIntegrityConflict) {
		existing, lookupErr := h.ingredients.GetByName(r.Context(), req.Name)
		if lookupErr != nil || existing == nil {
			writeError(w, r, h.logger, err)
			return
		}
		body := failure(apperr.E(apperr.KindIntegrityConflict, "ingredient already exists", err))
		body["ingredient"] = existing
		writeJSON(w, http.StatusConflict, body)
		return
	}
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.logger.Info("ingredient created", "ingredient_id", created.ID, "name", created.Name, "user_id", auth.UserID(r.Context()))
	writeOK(w, http.StatusCreated, envelope{"ingredient": created})
}
