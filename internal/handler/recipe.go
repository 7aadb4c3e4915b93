package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/auth"
	"github.com/dukerupert/savory/internal/matching"
	"github.com/dukerupert/savory/internal/model"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/store"
)

type RecipeHandler struct {
	recipes *store.RecipeStore
	pantry  *store.PantryStore
	engine  *search.Engine
	logger  *slog.Logger
}

func NewRecipeHandler(rs *store.RecipeStore, ps *store.PantryStore, engine *search.Engine, logger *slog.Logger) *RecipeHandler {
	return &RecipeHandler{recipes: rs, pantry: ps, engine: engine, logger: logger}
}

// MissingIngredient is one recipe ingredient absent from the user's pantry.
type MissingIngredient struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func queryInt(r *http.Request, name string) int {
	n, _ := strconv.Atoi(r.URL.Query().Get(name))
	return n
}

// List runs a recipe search. Malformed page numbers fall back to defaults.
func (h *RecipeHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := search.Params{
		Query:     q.Get("q"),
		Category:  q.Get("category"),
		Sort:      q.Get("sort"),
		Direction: q.Get("direction"),
		Filter:    q.Get("filter"),
		Page:      queryInt(r, "page"),
		PageSize:  queryInt(r, "page_size"),
		UserID:    auth.UserID(r.Context()),
	}
	raw, err := h.engine.Search(r.Context(), p)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"data": json.RawMessage(raw)})
}

func (h *RecipeHandler) Categories(w http.ResponseWriter, r *http.Request) {
	raw, err := h.engine.Categories(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{"categories": json.RawMessage(raw)})
}

func (h *RecipeHandler) detail(r *http.Request) (*model.RecipeDetail, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return nil, err
	}
	d, err := h.recipes.Detail(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.NotFound("recipe not found")
	}
	return d, nil
}

// missing evaluates the recipe against the user's pantry and names the
// ingredients they lack, in recipe order.
func (h *RecipeHandler) missing(r *http.Request, userID int64, d *model.RecipeDetail) (matching.Result, []MissingIngredient, error) {
	pantry, err := h.pantry.PantrySet(r.Context(), userID)
	if err != nil {
		return matching.Result{}, nil, err
	}
	ids := make([]int64, 0, len(d.Ingredients))
	names := make(map[int64]string, len(d.Ingredients))
	for _, ri := range d.Ingredients {
		ids = append(ids, ri.IngredientID)
		names[ri.IngredientID] = ri.IngredientName
	}
	res := matching.Evaluate([]matching.RecipeIngredients{{RecipeID: d.ID, IngredientIDs: ids}}, pantry)[0]
	out := make([]MissingIngredient, 0, len(res.Missing))
	for _, id := range res.Missing {
		out = append(out, MissingIngredient{ID: id, Name: names[id]})
	}
	return res, out, nil
}

// Detail returns a recipe with its steps, ingredients, tags and images. For
// a signed-in user the ingredients missing from their pantry are included.
func (h *RecipeHandler) Detail(w http.ResponseWriter, r *http.Request) {
	d, err := h.detail(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	body := envelope{"recipe": d}
	if uid := auth.UserID(r.Context()); uid > 0 {
		res, missing, err := h.missing(r, uid, d)
		if err != nil {
			writeError(w, r, h.logger, err)
			return
		}
		body["missing"] = missing
		body["missing_count"] = res.MissingCount
		body["coverage"] = res.Coverage
	}
	writeOK(w, http.StatusOK, body)
}

func (h *RecipeHandler) Missing(w http.ResponseWriter, r *http.Request) {
	d, err := h.detail(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	res, missing, err := h.missing(r, auth.UserID(r.Context()), d)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeOK(w, http.StatusOK, envelope{
		"recipe_id":       res.RecipeID,
		"missing":         missing,
		"missing_count":   res.MissingCount,
		"fully_available": res.FullyAvailable,
		"coverage":        res.Coverage,
	})
}
