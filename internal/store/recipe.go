package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/ingredient"
	"github.com/dukerupert/savory/internal/model"
)

type RecipeStore struct {
	db *sql.DB
}

func NewRecipeStore(db *sql.DB) *RecipeStore {
	return &RecipeStore{db: db}
}

const recipeCols = `id, recipe_id, name, cook_time, prep_time, total_time, date_published, description,
	recipe_category, aggregated_rating, review_count, calories, fat_content, saturated_fat_content,
	cholesterol_content, sodium_content, carbohydrate_content, fiber_content, sugar_content,
	protein_content, serving_size, servings, created_at, updated_at`

func scanRecipe(scanner interface{ Scan(...any) error }) (*model.Recipe, error) {
	var r model.Recipe
	var cook, prep, total sql.NullInt64
	n := &r.Nutrition
	err := scanner.Scan(
		&r.ID, &r.RecipeID, &r.Name, &cook, &prep, &total, &r.DatePublished, &r.Description,
		&r.Category, &r.AggregatedRating, &r.ReviewCount, &n.Calories, &n.FatContent, &n.SaturatedFatContent,
		&n.CholesterolContent, &n.SodiumContent, &n.CarbohydrateContent, &n.FiberContent, &n.SugarContent,
		&n.ProteinContent, &r.ServingSize, &r.Servings, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.CookTime = durationFrom(cook)
	r.PrepTime = durationFrom(prep)
	r.TotalTime = durationFrom(total)
	return &r, nil
}

func durationFrom(secs sql.NullInt64) *time.Duration {
	if !secs.Valid {
		return nil
	}
	d := time.Duration(secs.Int64) * time.Second
	return &d
}

func durationArg(d *time.Duration) any {
	if d == nil {
		return nil
	}
	return int64(*d / time.Second)
}

func decimalArg(d decimal.Decimal) float64 {
	return d.Round(1).InexactFloat64()
}

func validateRecipe(r *model.Recipe) error {
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validation("recipe name is required")
	}
	if !r.HasTiming() {
		return apperr.Validation("recipe requires a prep time or a cook time")
	}
	if r.AggregatedRating.IsNegative() || r.AggregatedRating.GreaterThan(decimal.NewFromInt(5)) {
		return apperr.Validation("aggregated rating must be between 0 and 5")
	}
	return nil
}

func insertRecipe(ctx context.Context, q queryer, r *model.Recipe) error {
	if err := validateRecipe(r); err != nil {
		return err
	}
	n := r.Nutrition
	result, err := q.ExecContext(ctx,
		`INSERT INTO recipes (recipe_id, name, cook_time, prep_time, total_time, date_published, description,
			recipe_category, aggregated_rating, review_count, calories, fat_content, saturated_fat_content,
			cholesterol_content, sodium_content, carbohydrate_content, fiber_content, sugar_content,
			protein_content, serving_size, servings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RecipeID, r.Name, durationArg(r.CookTime), durationArg(r.PrepTime), durationArg(r.TotalTime),
		r.DatePublished.UTC(), r.Description, r.Category, decimalArg(r.AggregatedRating), r.ReviewCount,
		decimalArg(n.Calories), decimalArg(n.FatContent), decimalArg(n.SaturatedFatContent),
		decimalArg(n.CholesterolContent), decimalArg(n.SodiumContent), decimalArg(n.CarbohydrateContent),
		decimalArg(n.FiberContent), decimalArg(n.SugarContent), decimalArg(n.ProteinContent),
		r.ServingSize, r.Servings,
	)
	if err != nil {
		return classify(fmt.Errorf("insert recipe %d: %w", r.RecipeID, err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return nil
}

// Insert stores a single recipe and sets its ID.
func (s *RecipeStore) Insert(ctx context.Context, r *model.Recipe) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return insertRecipe(ctx, tx, r)
	})
}

// InsertBatch stores every recipe in one transaction. Either all rows are
// created and their IDs set, or none are.
func (s *RecipeStore) InsertBatch(ctx context.Context, recipes []*model.Recipe) error {
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range recipes {
			if err := insertRecipe(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, r := range recipes {
			r.ID = 0
		}
		return err
	}
	return nil
}

// ExistingRecipeIDs returns the external recipe ids already stored.
func (s *RecipeStore) ExistingRecipeIDs(ctx context.Context) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT recipe_id FROM recipes`)
	if err != nil {
		return nil, fmt.Errorf("list recipe ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]struct{})
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan recipe id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *RecipeStore) GetByID(ctx context.Context, id int64) (*model.Recipe, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recipeCols+` FROM recipes WHERE id = ?`, id)
	r, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe: %w", err)
	}
	return r, nil
}

func (s *RecipeStore) GetByExternalID(ctx context.Context, recipeID int64) (*model.Recipe, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recipeCols+` FROM recipes WHERE recipe_id = ?`, recipeID)
	r, err := scanRecipe(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recipe by recipe_id: %w", err)
	}
	return r, nil
}

func (s *RecipeStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recipes: %w", err)
	}
	return n, nil
}

// ReplaceSteps swaps the recipe's steps for the given descriptions, numbered
// from 1 in order.
func (s *RecipeStore) ReplaceSteps(ctx context.Context, recipeID int64, steps []string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_steps WHERE recipe_id = ?`, recipeID); err != nil {
			return fmt.Errorf("delete steps: %w", err)
		}
		n := 0
		for _, desc := range steps {
			desc = strings.TrimSpace(desc)
			if desc == "" {
				continue
			}
			n++
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recipe_steps (recipe_id, step_number, description, sort_order) VALUES (?, ?, ?, ?)`,
				recipeID, n, desc, n-1,
			); err != nil {
				return classify(fmt.Errorf("insert step %d: %w", n, err))
			}
		}
		return nil
	})
}

// ReplaceIngredients swaps the recipe's ingredient links. Ingredient rows are
// created on demand inside the same transaction.
func (s *RecipeStore) ReplaceIngredients(ctx context.Context, recipeID int64, lines []model.IngredientLine) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_ingredients WHERE recipe_id = ?`, recipeID); err != nil {
			return fmt.Errorf("delete recipe ingredients: %w", err)
		}
		for _, line := range lines {
			ingID, err := getOrCreateNamed(ctx, tx, "ingredients", line.Name)
			if err != nil {
				return err
			}
			parsed := ingredient.ParseLine(line.Raw)
			var notes *string
			if parsed.Name != "" {
				notes = &parsed.Name
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recipe_ingredients (recipe_id, ingredient_id, raw_string, amount, unit, notes) VALUES (?, ?, ?, ?, ?, ?)`,
				recipeID, ingID, line.Raw, parsed.Amount, parsed.Unit, notes,
			); err != nil {
				return classify(fmt.Errorf("insert recipe ingredient %q: %w", line.Name, err))
			}
		}
		return nil
	})
}

// ReplaceTags swaps the recipe's tags. Duplicate names collapse to one link.
func (s *RecipeStore) ReplaceTags(ctx context.Context, recipeID int64, tags []string) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_tags WHERE recipe_id = ?`, recipeID); err != nil {
			return fmt.Errorf("delete recipe tags: %w", err)
		}
		for _, name := range tags {
			if ingredient.Canonical(name) == "" {
				continue
			}
			tagID, err := getOrCreateNamed(ctx, tx, "tags", name)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recipe_tags (recipe_id, tag_id) VALUES (?, ?) ON CONFLICT(recipe_id, tag_id) DO NOTHING`,
				recipeID, tagID,
			); err != nil {
				return classify(fmt.Errorf("insert recipe tag %q: %w", name, err))
			}
		}
		return nil
	})
}

// ReplaceImages swaps the recipe's images, keeping at most
// model.MaxImagesPerRecipe in the given order.
func (s *RecipeStore) ReplaceImages(ctx context.Context, recipeID int64, urls []string) error {
	if len(urls) > model.MaxImagesPerRecipe {
		urls = urls[:model.MaxImagesPerRecipe]
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM recipe_images WHERE recipe_id = ?`, recipeID); err != nil {
			return fmt.Errorf("delete recipe images: %w", err)
		}
		for i, url := range urls {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO recipe_images (recipe_id, url, sort_order) VALUES (?, ?, ?)`,
				recipeID, url, i,
			); err != nil {
				return classify(fmt.Errorf("insert recipe image: %w", err))
			}
		}
		return nil
	})
}

// Detail loads a recipe with its steps, ingredients, tags and images.
// It returns nil when the recipe does not exist.
func (s *RecipeStore) Detail(ctx context.Context, id int64) (*model.RecipeDetail, error) {
	r, err := s.GetByID(ctx, id)
	if err != nil || r == nil {
		return nil, err
	}
	d := &model.RecipeDetail{
		Recipe:      *r,
		Steps:       []model.RecipeStep{},
		Ingredients: []model.RecipeIngredient{},
		Tags:        []model.Tag{},
		Images:      []model.RecipeImage{},
	}

	steps, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_id, step_number, description, sort_order FROM recipe_steps WHERE recipe_id = ? ORDER BY sort_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	for steps.Next() {
		var st model.RecipeStep
		if err := steps.Scan(&st.ID, &st.RecipeID, &st.StepNumber, &st.Description, &st.SortOrder); err != nil {
			steps.Close()
			return nil, fmt.Errorf("scan step: %w", err)
		}
		d.Steps = append(d.Steps, st)
	}
	steps.Close()

	ings, err := s.db.QueryContext(ctx,
		`SELECT ri.id, ri.recipe_id, ri.ingredient_id, i.name, ri.raw_string, ri.amount, ri.unit, ri.notes
		FROM recipe_ingredients ri JOIN ingredients i ON i.id = ri.ingredient_id
		WHERE ri.recipe_id = ? ORDER BY ri.id`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipe ingredients: %w", err)
	}
	for ings.Next() {
		var ri model.RecipeIngredient
		var amount sql.NullFloat64
		var unit, notes sql.NullString
		if err := ings.Scan(&ri.ID, &ri.RecipeID, &ri.IngredientID, &ri.IngredientName, &ri.RawString, &amount, &unit, &notes); err != nil {
			ings.Close()
			return nil, fmt.Errorf("scan recipe ingredient: %w", err)
		}
		if amount.Valid {
			ri.Amount = &amount.Float64
		}
		if unit.Valid {
			ri.Unit = &unit.String
		}
		if notes.Valid {
			ri.Notes = &notes.String
		}
		d.Ingredients = append(d.Ingredients, ri)
	}
	ings.Close()

	tags, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.created_at FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id
		WHERE rt.recipe_id = ? ORDER BY rt.id`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipe tags: %w", err)
	}
	for tags.Next() {
		var t model.Tag
		if err := tags.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			tags.Close()
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		d.Tags = append(d.Tags, t)
	}
	tags.Close()

	imgs, err := s.db.QueryContext(ctx,
		`SELECT id, recipe_id, url, sort_order, created_at FROM recipe_images WHERE recipe_id = ? ORDER BY sort_order, id`, id)
	if err != nil {
		return nil, fmt.Errorf("list recipe images: %w", err)
	}
	defer imgs.Close()
	for imgs.Next() {
		var img model.RecipeImage
		if err := imgs.Scan(&img.ID, &img.RecipeID, &img.URL, &img.SortOrder, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		d.Images = append(d.Images, img)
	}
	return d, imgs.Err()
}

// Incomplete identifies a recipe lacking ingredients, steps or images.
type Incomplete struct {
	ID            int64  `json:"id"`
	RecipeID      int64  `json:"recipe_id"`
	Name          string `json:"name"`
	NoIngredients bool   `json:"no_ingredients"`
	NoSteps       bool   `json:"no_steps"`
	NoImages      bool   `json:"no_images"`
}

// CleanIncomplete finds recipes missing ingredients, steps or images and,
// unless dryRun is set, deletes them in one transaction.
func (s *RecipeStore) CleanIncomplete(ctx context.Context, dryRun bool) ([]Incomplete, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipe_id, name, no_ingredients, no_steps, no_images FROM (
			SELECT r.id, r.recipe_id, r.name,
				NOT EXISTS (SELECT 1 FROM recipe_ingredients WHERE recipe_id = r.id) AS no_ingredients,
				NOT EXISTS (SELECT 1 FROM recipe_steps WHERE recipe_id = r.id) AS no_steps,
				NOT EXISTS (SELECT 1 FROM recipe_images WHERE recipe_id = r.id) AS no_images
			FROM recipes r
		) WHERE no_ingredients OR no_steps OR no_images
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("find incomplete recipes: %w", err)
	}
	var found []Incomplete
	for rows.Next() {
		var in Incomplete
		if err := rows.Scan(&in.ID, &in.RecipeID, &in.Name, &in.NoIngredients, &in.NoSteps, &in.NoImages); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan incomplete recipe: %w", err)
		}
		found = append(found, in)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if dryRun || len(found) == 0 {
		return found, nil
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, in := range found {
			if _, err := tx.ExecContext(ctx, `DELETE FROM recipes WHERE id = ?`, in.ID); err != nil {
				return fmt.Errorf("delete recipe %d: %w", in.RecipeID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// FlushReport counts the rows removed by Flush.
type FlushReport struct {
	Recipes     int64 `json:"recipes"`
	Ingredients int64 `json:"ingredients"`
	Tags        int64 `json:"tags"`
}

// Flush deletes all recipe, ingredient and tag data in one transaction while
// leaving user accounts in place. It refuses to run when no superuser exists
// and aborts if the superuser is gone by the end of the transaction.
func (s *RecipeStore) Flush(ctx context.Context) (FlushReport, error) {
	var report FlushReport
	var superusers int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_superuser = 1`).Scan(&superusers); err != nil {
		return report, fmt.Errorf("count superusers: %w", err)
	}
	if superusers == 0 {
		return report, apperr.Validation("no superuser exists; refusing to flush")
	}

	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, table := range []string{"recipe_images", "recipe_steps", "recipe_ingredients", "recipe_tags"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		var err error
		if report.Ingredients, err = execCount(ctx, tx, `DELETE FROM ingredients`); err != nil {
			return fmt.Errorf("delete ingredients: %w", err)
		}
		if report.Tags, err = execCount(ctx, tx, `DELETE FROM tags`); err != nil {
			return fmt.Errorf("delete tags: %w", err)
		}
		if report.Recipes, err = execCount(ctx, tx, `DELETE FROM recipes`); err != nil {
			return fmt.Errorf("delete recipes: %w", err)
		}

		var remaining int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_superuser = 1`).Scan(&remaining); err != nil {
			return fmt.Errorf("verify superuser: %w", err)
		}
		if remaining == 0 {
			return apperr.E(apperr.KindFatal, "superuser was deleted during flush", nil)
		}
		return nil
	})
	if err != nil {
		return FlushReport{}, err
	}
	return report, nil
}

func execCount(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
