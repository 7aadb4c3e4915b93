package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// MaxImagesPerRecipe caps the ordered image list kept for a recipe.
const MaxImagesPerRecipe = 10

type Recipe struct {
	ID               int64           `json:"id"`
	RecipeID         int64           `json:"recipe_id"`
	Name             string          `json:"name"`
	CookTime         *time.Duration  `json:"cook_time"`
	PrepTime         *time.Duration  `json:"prep_time"`
	TotalTime        *time.Duration  `json:"total_time"`
	DatePublished    time.Time       `json:"date_published"`
	Description      string          `json:"description"`
	Category         string          `json:"recipe_category"`
	AggregatedRating decimal.Decimal `json:"aggregated_rating"`
	ReviewCount      int             `json:"review_count"`
	Nutrition        Nutrition       `json:"nutrition"`
	ServingSize      string          `json:"serving_size"`
	Servings         int             `json:"servings"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Nutrition holds the per-serving facts, each clamped to one decimal place.
type Nutrition struct {
	Calories            decimal.Decimal `json:"calories"`
	FatContent          decimal.Decimal `json:"fat_content"`
	SaturatedFatContent decimal.Decimal `json:"saturated_fat_content"`
	CholesterolContent  decimal.Decimal `json:"cholesterol_content"`
	SodiumContent       decimal.Decimal `json:"sodium_content"`
	CarbohydrateContent decimal.Decimal `json:"carbohydrate_content"`
	FiberContent        decimal.Decimal `json:"fiber_content"`
	SugarContent        decimal.Decimal `json:"sugar_content"`
	ProteinContent      decimal.Decimal `json:"protein_content"`
}

// HasTiming reports whether the recipe satisfies the prep-or-cook requirement.
func (r *Recipe) HasTiming() bool {
	return r.PrepTime != nil || r.CookTime != nil
}

type RecipeStep struct {
	ID          int64  `json:"id"`
	RecipeID    int64  `json:"recipe_id"`
	StepNumber  int    `json:"step_number"`
	Description string `json:"description"`
	SortOrder   int    `json:"order"`
}

type RecipeImage struct {
	ID        int64     `json:"id"`
	RecipeID  int64     `json:"recipe_id"`
	URL       string    `json:"url"`
	SortOrder int       `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

type RecipeIngredient struct {
	ID             int64    `json:"id"`
	RecipeID       int64    `json:"recipe_id"`
	IngredientID   int64    `json:"ingredient_id"`
	IngredientName string   `json:"ingredient_name"`
	RawString      string   `json:"raw_string"`
	Amount         *float64 `json:"amount"`
	Unit           *string  `json:"unit"`
	Notes          *string  `json:"notes"`
}

type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RecipeDetail is a recipe with its owned rows loaded.
type RecipeDetail struct {
	Recipe
	Steps       []RecipeStep       `json:"steps"`
	Ingredients []RecipeIngredient `json:"ingredients"`
	Tags        []Tag              `json:"tags"`
	Images      []RecipeImage      `json:"images"`
}

// RecipeSummary is one search result row. MissingCount is set only when the
// search ran for a signed-in user.
type RecipeSummary struct {
	ID               int64           `json:"id"`
	RecipeID         int64           `json:"recipe_id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Category         string          `json:"recipe_category"`
	CookTime         *time.Duration  `json:"cook_time"`
	PrepTime         *time.Duration  `json:"prep_time"`
	TotalTime        *time.Duration  `json:"total_time"`
	AggregatedRating decimal.Decimal `json:"aggregated_rating"`
	ReviewCount      int             `json:"review_count"`
	Image            string          `json:"image,omitempty"`
	MissingCount     *int            `json:"missing_count,omitempty"`
}

// IngredientLine pairs a canonical ingredient name with the raw line it came
// from.
type IngredientLine struct {
	Name string
	Raw  string
}

// CategoryCount is one entry of the category facet.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
