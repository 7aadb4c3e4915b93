package model

import "time"

type PantryItem struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	IngredientID   int64     `json:"ingredient_id"`
	IngredientName string    `json:"ingredient_name"`
	AddedAt        time.Time `json:"added_at"`
	RelatedIDs     []int64   `json:"related_ingredients"`
}

type ShoppingItem struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	IngredientID   int64     `json:"ingredient_id"`
	IngredientName string    `json:"ingredient_name"`
	Checked        bool      `json:"is_checked"`
	Aisle          string    `json:"aisle"`
	AddedAt        time.Time `json:"added_at"`
}

type CollectionEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	RecipeID   int64     `json:"recipe_id"`
	RecipeName string    `json:"recipe_name"`
	Category   string    `json:"category"`
	AddedAt    time.Time `json:"added_at"`
}
