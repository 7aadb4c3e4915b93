package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/savory/internal/database"
	"github.com/dukerupert/savory/internal/model"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var noDelay = RetryPolicy{Retries: 3}

func minutes(n int) *time.Duration {
	d := time.Duration(n) * time.Minute
	return &d
}

func testRecipe(recipeID int64, name string) *model.Recipe {
	return &model.Recipe{
		RecipeID:         recipeID,
		Name:             name,
		PrepTime:         minutes(10),
		CookTime:         minutes(20),
		DatePublished:    time.Date(2020, 5, 1, 12, 0, 0, 0, time.UTC),
		AggregatedRating: decimal.RequireFromString("4.5"),
		ReviewCount:      3,
		Servings:         4,
	}
}

// mustRecipe inserts a recipe with the given ingredient names linked in order.
func mustRecipe(t *testing.T, rs *RecipeStore, r *model.Recipe, ingredients ...string) *model.Recipe {
	t.Helper()
	ctx := context.Background()
	if err := rs.Insert(ctx, r); err != nil {
		t.Fatalf("insert recipe %q: %v", r.Name, err)
	}
	if len(ingredients) > 0 {
		lines := make([]model.IngredientLine, len(ingredients))
		for i, name := range ingredients {
			lines[i] = model.IngredientLine{Name: name, Raw: "1 cup " + name}
		}
		if err := rs.ReplaceIngredients(ctx, r.ID, lines); err != nil {
			t.Fatalf("link ingredients: %v", err)
		}
	}
	return r
}

func mustUser(t *testing.T, us *UserStore, email string, superuser bool) *model.User {
	t.Helper()
	u, err := us.Create(context.Background(), email, email, "secret-password", superuser)
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func mustIngredient(t *testing.T, is *IngredientStore, name string) *model.Ingredient {
	t.Helper()
	i, err := is.GetOrCreate(context.Background(), name)
	if err != nil {
		t.Fatalf("get or create %q: %v", name, err)
	}
	return i
}
