package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/ingredient"
	"github.com/dukerupert/savory/internal/model"
)

type IngredientStore struct {
	db *sql.DB
}

func NewIngredientStore(db *sql.DB) *IngredientStore {
	return &IngredientStore{db: db}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanIngredient(scanner interface{ Scan(...any) error }) (*model.Ingredient, error) {
	var i model.Ingredient
	if err := scanner.Scan(&i.ID, &i.Name, &i.CreatedAt); err != nil {
		return nil, err
	}
	return &i, nil
}

const ingredientCols = `id, name, created_at`

func (s *IngredientStore) GetByID(ctx context.Context, id int64) (*model.Ingredient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ingredientCols+` FROM ingredients WHERE id = ?`, id)
	i, err := scanIngredient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingredient: %w", err)
	}
	return i, nil
}

func (s *IngredientStore) GetByName(ctx context.Context, name string) (*model.Ingredient, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ingredientCols+` FROM ingredients WHERE name = ?`, ingredient.Canonical(name))
	i, err := scanIngredient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ingredient by name: %w", err)
	}
	return i, nil
}

// GetOrCreate resolves name to its canonical ingredient row, creating it when
// missing. A concurrent creation of the same name is treated as success.
func (s *IngredientStore) GetOrCreate(ctx context.Context, name string) (*model.Ingredient, error) {
	id, err := getOrCreateNamed(ctx, s.db, "ingredients", name)
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Create inserts a new ingredient. Unlike GetOrCreate, an existing name is
// reported as an integrity conflict.
func (s *IngredientStore) Create(ctx context.Context, name string) (*model.Ingredient, error) {
	canon := ingredient.Canonical(name)
	if canon == "" {
		return nil, apperr.Validation("name is required")
	}
	result, err := s.db.ExecContext(ctx, `INSERT INTO ingredients (name) VALUES (?)`, canon)
	if err != nil {
		return nil, classify(fmt.Errorf("insert ingredient: %w", err))
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

// getOrCreateNamed is shared by ingredients and tags: both are unique,
// case-normalized name tables.
func getOrCreateNamed(ctx context.Context, q queryer, table, name string) (int64, error) {
	canon := ingredient.Canonical(name)
	if canon == "" {
		return 0, apperr.Validation("name is required")
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO `+table+` (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, canon,
	); err != nil {
		return 0, classify(fmt.Errorf("insert %s %q: %w", table, canon, err))
	}
	var id int64
	if err := q.QueryRowContext(ctx, `SELECT id FROM `+table+` WHERE name = ?`, canon).Scan(&id); err != nil {
		return 0, fmt.Errorf("select %s %q: %w", table, canon, err)
	}
	return id, nil
}

// Search returns ingredients whose name contains q, shortest names first.
func (s *IngredientStore) Search(ctx context.Context, q string, limit int) ([]model.Ingredient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+ingredientCols+` FROM ingredients WHERE name LIKE ? ESCAPE '\' ORDER BY length(name) ASC, name ASC LIMIT ?`,
		likePattern(q), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search ingredients: %w", err)
	}
	defer rows.Close()

	out := []model.Ingredient{}
	for rows.Next() {
		i, err := scanIngredient(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		out = append(out, *i)
	}
	return out, rows.Err()
}

// ListWithUsage returns ingredients referenced by at least minRecipes recipe
// links, most used first.
func (s *IngredientStore) ListWithUsage(ctx context.Context, minRecipes int) ([]model.IngredientUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.created_at, COUNT(ri.id) AS recipe_count
		FROM ingredients i
		LEFT JOIN recipe_ingredients ri ON ri.ingredient_id = i.id
		GROUP BY i.id
		HAVING COUNT(ri.id) >= ?
		ORDER BY recipe_count DESC, i.id ASC`, minRecipes)
	if err != nil {
		return nil, fmt.Errorf("list ingredient usage: %w", err)
	}
	defer rows.Close()

	var out []model.IngredientUsage
	for rows.Next() {
		var u model.IngredientUsage
		if err := rows.Scan(&u.ID, &u.Name, &u.CreatedAt, &u.RecipeCount); err != nil {
			return nil, fmt.Errorf("scan ingredient usage: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountRecipeLinks returns how many recipe_ingredients rows reference id.
func (s *IngredientStore) CountRecipeLinks(ctx context.Context, id int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recipe_ingredients WHERE ingredient_id = ?`, id).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count recipe links: %w", err)
	}
	return n, nil
}

// MergeIngredients folds every member into primary in one transaction:
// recipe links are repointed, pantry, related and shopping references move
// where they do not collide, and the members are deleted. It returns the
// number of recipe links rewritten.
func (s *IngredientStore) MergeIngredients(ctx context.Context, primaryID int64, memberIDs []int64) (int64, error) {
	var rewritten int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM ingredients WHERE id = ?`, primaryID).Scan(&exists); err != nil {
			return fmt.Errorf("check primary: %w", err)
		}
		if exists == 0 {
			return apperr.NotFound(fmt.Sprintf("ingredient %d not found", primaryID))
		}

		for _, id := range memberIDs {
			if id == primaryID {
				continue
			}
			n, err := moveIngredientRefs(ctx, tx, id, primaryID)
			if err != nil {
				return err
			}
			rewritten += n
			if _, err := tx.ExecContext(ctx, `DELETE FROM ingredients WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete ingredient %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return rewritten, nil
}

func moveIngredientRefs(ctx context.Context, tx *sql.Tx, fromID, toID int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `UPDATE recipe_ingredients SET ingredient_id = ? WHERE ingredient_id = ?`, toID, fromID)
	if err != nil {
		return 0, fmt.Errorf("repoint recipe links %d: %w", fromID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	// Rows that would collide stay on the member and go with its cascade delete.
	for _, stmt := range []string{
		`UPDATE OR IGNORE user_pantry SET ingredient_id = ? WHERE ingredient_id = ?`,
		`UPDATE OR IGNORE pantry_related SET ingredient_id = ? WHERE ingredient_id = ?`,
		`UPDATE OR IGNORE shopping_list SET ingredient_id = ? WHERE ingredient_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, toID, fromID); err != nil {
			return 0, fmt.Errorf("repoint references %d: %w", fromID, err)
		}
	}
	return n, nil
}

// EncodingFix describes one ingredient whose name contained %-escapes.
type EncodingFix struct {
	ID         int64  `json:"id"`
	From       string `json:"from"`
	To         string `json:"to"`
	MergedInto int64  `json:"merged_into,omitempty"`
	LinksMoved int64  `json:"links_moved"`
}

// FixEncoding decodes %-escaped ingredient names. When the decoded name
// already exists, the encoded ingredient is merged into it; otherwise it is
// renamed. With dryRun the changes are computed and rolled back.
func (s *IngredientStore) FixEncoding(ctx context.Context, dryRun bool) ([]EncodingFix, error) {
	var fixes []EncodingFix
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, name FROM ingredients WHERE name LIKE '%\%%' ESCAPE '\' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list encoded ingredients: %w", err)
	}
	type pending struct {
		id   int64
		name string
	}
	var candidates []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		candidates = append(candidates, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range candidates {
		decoded := ingredient.Canonical(ingredient.DecodeName(c.name))
		if decoded == c.name || decoded == "" {
			continue
		}
		fix := EncodingFix{ID: c.id, From: c.name, To: decoded}

		var existingID int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM ingredients WHERE name = ? AND id != ?`, decoded, c.id).Scan(&existingID)
		switch {
		case err == sql.ErrNoRows:
			if _, err := tx.ExecContext(ctx, `UPDATE ingredients SET name = ? WHERE id = ?`, decoded, c.id); err != nil {
				return nil, fmt.Errorf("rename ingredient %d: %w", c.id, err)
			}
		case err != nil:
			return nil, fmt.Errorf("lookup decoded name: %w", err)
		default:
			n, err := moveIngredientRefs(ctx, tx, c.id, existingID)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM ingredients WHERE id = ?`, c.id); err != nil {
				return nil, fmt.Errorf("delete ingredient %d: %w", c.id, err)
			}
			fix.MergedInto = existingID
			fix.LinksMoved = n
		}
		fixes = append(fixes, fix)
	}

	if dryRun {
		return fixes, nil
	}
	if err := tx.Commit(); err != nil {
		return nil, classify(fmt.Errorf("commit tx: %w", err))
	}
	return fixes, nil
}

// Rename describes a display-name change.
type Rename struct {
	ID   int64  `json:"id"`
	From string `json:"from"`
	To   string `json:"to"`
}

// Capitalize title-cases every ingredient name. Lookups stay
// case-insensitive, so capitalized names still resolve to the same rows.
func (s *IngredientStore) Capitalize(ctx context.Context, dryRun bool) ([]Rename, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM ingredients ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list ingredients: %w", err)
	}
	var renames []Rename
	for rows.Next() {
		var r Rename
		if err := rows.Scan(&r.ID, &r.From); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan ingredient: %w", err)
		}
		r.To = ingredient.TitleCase(r.From)
		if r.To != r.From {
			renames = append(renames, r)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if dryRun || len(renames) == 0 {
		return renames, nil
	}

	err = withTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, r := range renames {
			if _, err := tx.ExecContext(ctx, `UPDATE ingredients SET name = ? WHERE id = ?`, r.To, r.ID); err != nil {
				return fmt.Errorf("rename ingredient %d: %w", r.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return renames, nil
}

// likePattern builds a %substring% LIKE pattern with wildcards escaped.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}
