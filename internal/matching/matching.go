// Package matching compares recipe ingredient lists against a user's pantry.
package matching

// Set is a set of ingredient ids.
type Set map[int64]struct{}

func NewSet(ids ...int64) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s Set) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s Set) Len() int { return len(s) }

// PantrySet unions the ingredients a user owns directly with the ones they
// marked as related substitutes. Related links are not followed further.
func PantrySet(direct, related []int64) Set {
	s := make(Set, len(direct)+len(related))
	for _, id := range direct {
		s[id] = struct{}{}
	}
	for _, id := range related {
		s[id] = struct{}{}
	}
	return s
}

// Missing returns the recipe ingredients absent from pantry, each id once,
// in the order the recipe lists them.
func Missing(recipeIngredientIDs []int64, pantry Set) []int64 {
	missing := []int64{}
	seen := make(map[int64]struct{}, len(recipeIngredientIDs))
	for _, id := range recipeIngredientIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if !pantry.Contains(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func IsFullyAvailable(recipeIngredientIDs []int64, pantry Set) bool {
	for _, id := range recipeIngredientIDs {
		if !pantry.Contains(id) {
			return false
		}
	}
	return true
}

// Coverage is the percentage of distinct recipe ingredients found in pantry.
// A recipe with no ingredients is fully covered.
func Coverage(recipeIngredientIDs []int64, pantry Set) float64 {
	distinct := NewSet(recipeIngredientIDs...)
	if len(distinct) == 0 {
		return 100
	}
	have := 0
	for id := range distinct {
		if pantry.Contains(id) {
			have++
		}
	}
	return float64(have) * 100 / float64(len(distinct))
}

// RecipeIngredients is the ingredient id list of one recipe.
type RecipeIngredients struct {
	RecipeID      int64
	IngredientIDs []int64
}

type Result struct {
	RecipeID       int64   `json:"recipe_id"`
	Missing        []int64 `json:"missing"`
	MissingCount   int     `json:"missing_count"`
	FullyAvailable bool    `json:"fully_available"`
	Coverage       float64 `json:"coverage"`
}

// Evaluate scores every recipe against pantry. It does not modify its inputs.
func Evaluate(recipes []RecipeIngredients, pantry Set) []Result {
	out := make([]Result, 0, len(recipes))
	for _, r := range recipes {
		missing := Missing(r.IngredientIDs, pantry)
		out = append(out, Result{
			RecipeID:       r.RecipeID,
			Missing:        missing,
			MissingCount:   len(missing),
			FullyAvailable: len(missing) == 0,
			Coverage:       Coverage(r.IngredientIDs, pantry),
		})
	}
	return out
}
