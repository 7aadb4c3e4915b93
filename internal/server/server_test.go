package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/savory/internal/database"
	"github.com/dukerupert/savory/internal/middleware"
	"github.com/dukerupert/savory/internal/model"
	"github.com/dukerupert/savory/internal/search"
	"github.com/dukerupert/savory/internal/store"
)

type fixture struct {
	t          *testing.T
	router     http.Handler
	token      string
	adminToken string
	chicken    *model.Recipe
	soup       *model.Recipe
	ing        map[string]int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	users := store.NewUserStore(db)
	sessions := store.NewSessionStore(db)
	recipes := store.NewRecipeStore(db)
	ingredients := store.NewIngredientStore(db)

	cook, err := users.Create(ctx, "cook@example.com", "cook", "secret123", false)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	admin, err := users.Create(ctx, "admin@example.com", "admin", "secret123", true)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	cookSess, err := sessions.Create(ctx, cook.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	adminSess, err := sessions.Create(ctx, admin.ID, time.Hour)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	f := &fixture{t: t, token: cookSess.Token, adminToken: adminSess.Token, ing: map[string]int64{}}
	f.chicken = seedRecipe(t, recipes, 1, "Garlic Chicken", "Poultry", "chicken", "garlic", "olive oil")
	f.soup = seedRecipe(t, recipes, 2, "Tomato Soup", "Soups", "tomato", "garlic")
	for _, name := range []string{"chicken", "garlic", "olive oil", "tomato"} {
		i, err := ingredients.GetByName(ctx, name)
		if err != nil || i == nil {
			t.Fatalf("get ingredient %q: %v", name, err)
		}
		f.ing[name] = i.ID
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(db, Options{
		Cache:      search.NewMemoryCache(),
		CacheTTL:   time.Minute,
		Retry:      store.RetryPolicy{Retries: 3},
		SessionTTL: time.Hour,
	}, logger)
	f.router = srv.Router()
	return f
}

func seedRecipe(t *testing.T, rs *store.RecipeStore, recipeID int64, name, category string, ingredients ...string) *model.Recipe {
	t.Helper()
	prep := 15 * time.Minute
	r := &model.Recipe{
		RecipeID:         recipeID,
		Name:             name,
		Category:         category,
		PrepTime:         &prep,
		DatePublished:    time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC),
		AggregatedRating: decimal.RequireFromString("4.0"),
		ReviewCount:      int(recipeID),
		Servings:         2,
	}
	ctx := context.Background()
	if err := rs.Insert(ctx, r); err != nil {
		t.Fatalf("insert recipe: %v", err)
	}
	lines := make([]model.IngredientLine, len(ingredients))
	for i, n := range ingredients {
		lines[i] = model.IngredientLine{Name: n, Raw: "1 " + n}
	}
	if err := rs.ReplaceIngredients(ctx, r.ID, lines); err != nil {
		t.Fatalf("replace ingredients: %v", err)
	}
	return r
}

func (f *fixture) do(method, path, token string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			f.t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", rec.Code, want, rec.Body.String())
	}
}

type searchResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Results []model.RecipeSummary `json:"results"`
		Total   int                   `json:"total"`
	} `json:"data"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/health", "", nil)
	expectStatus(t, rec, http.StatusOK)
	if id := rec.Header().Get(middleware.RequestIDHeader); id == "" {
		t.Error("expected a request id header")
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t)

	rec := f.do("POST", "/api/login", "", map[string]string{"email": "cook@example.com", "password": "secret123"})
	expectStatus(t, rec, http.StatusOK)
	body := decode[struct {
		Token string     `json:"token"`
		User  model.User `json:"user"`
	}](t, rec)
	if body.Token == "" || body.User.Email != "cook@example.com" {
		t.Fatalf("login body = %+v", body)
	}
	var found bool
	for _, c := range rec.Result().Cookies() {
		if c.Name == middleware.SessionCookieName && c.Value == body.Token && c.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Error("expected session cookie")
	}

	me := f.do("GET", "/api/me", body.Token, nil)
	expectStatus(t, me, http.StatusOK)

	rec = f.do("POST", "/api/login", "", map[string]string{"email": "cook@example.com", "password": "wrong"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = f.do("POST", "/api/login", "", map[string]string{"email": "cook@example.com"})
	expectStatus(t, rec, http.StatusBadRequest)

	out := f.do("POST", "/api/logout", body.Token, nil)
	expectStatus(t, out, http.StatusOK)
	expectStatus(t, f.do("GET", "/api/me", body.Token, nil), http.StatusUnauthorized)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/pantry", "/api/shopping", "/api/collections", "/api/recipes/1/missing"} {
		rec := f.do("GET", path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s status = %d, want 401", path, rec.Code)
		}
	}
}

func TestIngredientSearch(t *testing.T) {
	f := newFixture(t)

	short := decode[struct {
		Results []model.Ingredient `json:"results"`
	}](t, f.do("GET", "/api/ingredients/search?q=g", "", nil))
	if len(short.Results) != 0 {
		t.Errorf("one-letter query returned %d results", len(short.Results))
	}

	for _, q := range []string{"gar", "%2567ar"} {
		rec := f.do("GET", "/api/ingredients/search?q="+q, "", nil)
		expectStatus(t, rec, http.StatusOK)
		got := decode[struct {
			Results []model.Ingredient `json:"results"`
		}](t, rec)
		if len(got.Results) != 1 || got.Results[0].Name != "garlic" {
			t.Errorf("q=%s results = %+v", q, got.Results)
		}
	}
}

func TestRecipeSearchAndAvailability(t *testing.T) {
	f := newFixture(t)

	anon := decode[searchResponse](t, f.do("GET", "/api/recipes", "", nil))
	if !anon.Success || anon.Data.Total != 2 {
		t.Fatalf("anonymous search = %+v", anon)
	}
	for _, r := range anon.Data.Results {
		if r.MissingCount != nil {
			t.Errorf("anonymous result %q has a missing count", r.Name)
		}
	}

	avail := decode[searchResponse](t, f.do("GET", "/api/recipes?filter=available", f.token, nil))
	if avail.Data.Total != 0 {
		t.Fatalf("available with empty pantry total = %d", avail.Data.Total)
	}

	expectStatus(t, f.do("POST", "/api/pantry/"+itoa(f.ing["tomato"]), f.token, nil), http.StatusCreated)
	expectStatus(t, f.do("POST", "/api/pantry/"+itoa(f.ing["garlic"]), f.token, nil), http.StatusCreated)

	avail = decode[searchResponse](t, f.do("GET", "/api/recipes?filter=available", f.token, nil))
	if avail.Data.Total != 1 || avail.Data.Results[0].Name != "Tomato Soup" {
		t.Fatalf("available after stocking = %+v", avail.Data)
	}

	byCategory := decode[searchResponse](t, f.do("GET", "/api/recipes?category=poultry&q=garlic", "", nil))
	if byCategory.Data.Total != 1 || byCategory.Data.Results[0].Name != "Garlic Chicken" {
		t.Errorf("category search = %+v", byCategory.Data)
	}
}

func TestRecipeCategories(t *testing.T) {
	f := newFixture(t)
	rec := f.do("GET", "/api/recipes/categories", "", nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[struct {
		Categories []model.CategoryCount `json:"categories"`
	}](t, rec)
	if len(got.Categories) != 2 || got.Categories[0].Name != "Poultry" || got.Categories[1].Name != "Soups" {
		t.Errorf("categories = %+v", got.Categories)
	}
}

func TestRecipeDetail(t *testing.T) {
	f := newFixture(t)
	path := "/api/recipes/" + itoa(f.chicken.ID)

	anon := decode[map[string]json.RawMessage](t, f.do("GET", path, "", nil))
	if _, ok := anon["missing"]; ok {
		t.Error("anonymous detail should not list missing ingredients")
	}

	expectStatus(t, f.do("POST", "/api/pantry/"+itoa(f.ing["garlic"]), f.token, nil), http.StatusCreated)

	rec := f.do("GET", path, f.token, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[struct {
		Recipe  model.RecipeDetail `json:"recipe"`
		Missing []struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"missing"`
		MissingCount int `json:"missing_count"`
	}](t, rec)
	if got.Recipe.Name != "Garlic Chicken" || len(got.Recipe.Ingredients) != 3 {
		t.Fatalf("detail = %+v", got.Recipe)
	}
	if got.MissingCount != 2 || got.Missing[0].Name != "chicken" || got.Missing[1].Name != "olive oil" {
		t.Errorf("missing = %+v", got.Missing)
	}

	expectStatus(t, f.do("GET", "/api/recipes/99999", "", nil), http.StatusNotFound)
	expectStatus(t, f.do("GET", "/api/recipes/abc", "", nil), http.StatusBadRequest)
}

func TestRecipeMissing(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do("POST", "/api/pantry/"+itoa(f.ing["tomato"]), f.token, nil), http.StatusCreated)
	expectStatus(t, f.do("POST", "/api/pantry/"+itoa(f.ing["garlic"]), f.token, nil), http.StatusCreated)

	rec := f.do("GET", "/api/recipes/"+itoa(f.soup.ID)+"/missing", f.token, nil)
	expectStatus(t, rec, http.StatusOK)
	got := decode[struct {
		MissingCount   int     `json:"missing_count"`
		FullyAvailable bool    `json:"fully_available"`
		Coverage       float64 `json:"coverage"`
	}](t, rec)
	if got.MissingCount != 0 || !got.FullyAvailable || got.Coverage != 100 {
		t.Errorf("soup missing = %+v", got)
	}
}

func TestPantryRoutes(t *testing.T) {
	f := newFixture(t)
	garlic := itoa(f.ing["garlic"])

	expectStatus(t, f.do("POST", "/api/pantry/"+garlic, f.token, nil), http.StatusCreated)
	expectStatus(t, f.do("POST", "/api/pantry/"+garlic, f.token, nil), http.StatusOK)
	expectStatus(t, f.do("POST", "/api/pantry/99999", f.token, nil), http.StatusNotFound)

	list := decode[struct {
		Items []model.PantryItem `json:"items"`
	}](t, f.do("GET", "/api/pantry", f.token, nil))
	if len(list.Items) != 1 || list.Items[0].IngredientName != "garlic" {
		t.Fatalf("pantry = %+v", list.Items)
	}

	type related struct {
		Related []int64 `json:"related_ingredients"`
	}
	put := f.do("PUT", "/api/pantry/"+garlic+"/related", f.token,
		related{Related: []int64{f.ing["olive oil"], f.ing["garlic"]}})
	expectStatus(t, put, http.StatusOK)
	if saved := decode[related](t, put); len(saved.Related) != 1 || saved.Related[0] != f.ing["olive oil"] {
		t.Errorf("saved related = %v", saved.Related)
	}

	got := decode[related](t, f.do("GET", "/api/pantry/"+garlic+"/related", f.token, nil))
	want := []int64{f.ing["olive oil"], f.ing["garlic"]}
	if len(got.Related) != 2 || got.Related[0] != want[0] || got.Related[1] != want[1] {
		t.Errorf("related = %v, want %v", got.Related, want)
	}

	// A PUT without a list is rejected rather than clearing the relations.
	expectStatus(t, f.do("PUT", "/api/pantry/"+garlic+"/related", f.token, nil), http.StatusBadRequest)
	expectStatus(t, f.do("PUT", "/api/pantry/"+garlic+"/related", f.token, map[string]any{}), http.StatusBadRequest)
	kept := decode[related](t, f.do("GET", "/api/pantry/"+garlic+"/related", f.token, nil))
	if len(kept.Related) != 2 {
		t.Errorf("related after rejected PUT = %v", kept.Related)
	}
	cleared := f.do("PUT", "/api/pantry/"+garlic+"/related", f.token, related{Related: []int64{}})
	expectStatus(t, cleared, http.StatusOK)
	if got := decode[related](t, cleared); len(got.Related) != 0 {
		t.Errorf("related after clearing = %v", got.Related)
	}

	expectStatus(t, f.do("DELETE", "/api/pantry/"+garlic, f.token, nil), http.StatusOK)
	expectStatus(t, f.do("DELETE", "/api/pantry/"+garlic, f.token, nil), http.StatusNotFound)
	expectStatus(t, f.do("GET", "/api/pantry/"+garlic+"/related", f.token, nil), http.StatusNotFound)
}

func TestShoppingRoutes(t *testing.T) {
	f := newFixture(t)
	chicken := itoa(f.ing["chicken"])
	tomato := itoa(f.ing["tomato"])

	expectStatus(t, f.do("POST", "/api/shopping/"+chicken, f.token, nil), http.StatusCreated)
	expectStatus(t, f.do("POST", "/api/shopping/"+tomato, f.token, nil), http.StatusCreated)

	toggled := decode[struct {
		Checked bool `json:"is_checked"`
	}](t, f.do("POST", "/api/shopping/"+chicken+"/toggle", f.token, nil))
	if !toggled.Checked {
		t.Fatal("expected chicken to be checked")
	}

	list := decode[struct {
		Items  []model.ShoppingItem `json:"items"`
		Aisles []struct {
			Aisle string               `json:"aisle"`
			Items []model.ShoppingItem `json:"items"`
		} `json:"aisles"`
	}](t, f.do("GET", "/api/shopping", f.token, nil))
	if len(list.Items) != 2 || len(list.Aisles) != 2 {
		t.Fatalf("shopping list = %+v", list)
	}

	done := decode[struct {
		Moved int `json:"moved"`
	}](t, f.do("POST", "/api/shopping/complete", f.token, nil))
	if done.Moved != 1 {
		t.Errorf("moved = %d, want 1", done.Moved)
	}

	pantry := decode[struct {
		Items []model.PantryItem `json:"items"`
	}](t, f.do("GET", "/api/pantry", f.token, nil))
	if len(pantry.Items) != 1 || pantry.Items[0].IngredientName != "chicken" {
		t.Errorf("pantry after trip = %+v", pantry.Items)
	}

	expectStatus(t, f.do("DELETE", "/api/shopping/"+chicken, f.token, nil), http.StatusNotFound)
	expectStatus(t, f.do("DELETE", "/api/shopping/"+tomato, f.token, nil), http.StatusOK)
	expectStatus(t, f.do("POST", "/api/shopping/"+tomato+"/toggle", f.token, nil), http.StatusNotFound)
}

func TestCollectionRoutes(t *testing.T) {
	f := newFixture(t)
	soup := itoa(f.soup.ID)

	expectStatus(t, f.do("POST", "/api/collections/"+soup, f.token, map[string]string{"category": "Weeknight"}), http.StatusOK)
	expectStatus(t, f.do("POST", "/api/collections/99999", f.token, nil), http.StatusNotFound)

	list := decode[struct {
		Collections []model.CollectionEntry `json:"collections"`
	}](t, f.do("GET", "/api/collections", f.token, nil))
	if len(list.Collections) != 1 || list.Collections[0].Category != "Weeknight" || list.Collections[0].RecipeName != "Tomato Soup" {
		t.Fatalf("collections = %+v", list.Collections)
	}

	expectStatus(t, f.do("DELETE", "/api/collections/"+soup, f.token, nil), http.StatusOK)
	expectStatus(t, f.do("DELETE", "/api/collections/"+soup, f.token, nil), http.StatusNotFound)
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do("POST", "/api/admin/cache/clear", f.token, nil), http.StatusForbidden)
	expectStatus(t, f.do("POST", "/api/admin/cache/clear", f.adminToken, nil), http.StatusOK)
	stats := f.do("GET", "/api/admin/stats", f.adminToken, nil)
	expectStatus(t, stats, http.StatusOK)
	if got := decode[struct {
		Recipes int `json:"recipes"`
	}](t, stats); got.Recipes != 2 {
		t.Errorf("stats recipes = %d, want 2", got.Recipes)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestCreateIngredient(t *testing.T) {
	f := newFixture(t)
	expectStatus(t, f.do("POST", "/api/ingredients", "", map[string]string{"name": "Saffron"}), http.StatusUnauthorized)

	rec := f.do("POST", "/api/ingredients", f.token, map[string]string{"name": "  Saffron "})
	expectStatus(t, rec, http.StatusCreated)
	created := decode[struct {
		Ingredient model.Ingredient `json:"ingredient"`
	}](t, rec)
	if created.Ingredient.ID == 0 || created.Ingredient.Name != "saffron" {
		t.Errorf("created = %+v", created.Ingredient)
	}

	dup := f.do("POST", "/api/ingredients", f.token, map[string]string{"name": "GARLIC"})
	expectStatus(t, dup, http.StatusConflict)
	body := decode[struct {
		Success    bool             `json:"success"`
		Code       string           `json:"code"`
		Error      string           `json:"error"`
		Ingredient model.Ingredient `json:"ingredient"`
	}](t, dup)
	if body.Success || body.Code != "integrity_conflict" || body.Error != "ingredient already exists" {
		t.Errorf("conflict body = %+v", body)
	}
	if body.Ingredient.ID != f.ing["garlic"] {
		t.Errorf("conflict ingredient = %+v, want id %d", body.Ingredient, f.ing["garlic"])
	}

	blank := f.do("POST", "/api/ingredients", f.token, map[string]string{"name": "  "})
	expectStatus(t, blank, http.StatusBadRequest)
	if code := decode[struct {
		Code string `json:"code"`
	}](t, blank).Code; code != "validation" {
		t.Errorf("blank name code = %q", code)
	}
	expectStatus(t, f.do("POST", "/api/ingredients", f.token, nil), http.StatusBadRequest)
}

func TestLoginRateLimit(t *testing.T) {
	f := newFixture(t)
	wrong := map[string]string{"email": "cook@example.com", "password": "wrong"}
	for i := 0; i < 10; i++ {
		expectStatus(t, f.do("POST", "/api/login", "", wrong), http.StatusUnauthorized)
	}
	rec := f.do("POST", "/api/login", "", wrong)
	expectStatus(t, rec, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Another account from the same address is still allowed.
	other := f.do("POST", "/api/login", "", map[string]string{"email": "admin@example.com", "password": "secret123"})
	expectStatus(t, other, http.StatusOK)
}
