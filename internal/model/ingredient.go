package model

import "time"

type Ingredient struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// IngredientUsage is an ingredient annotated with the number of recipe links
// that reference it.
type IngredientUsage struct {
	Ingredient
	RecipeCount int `json:"recipe_count"`
}
