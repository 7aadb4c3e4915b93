package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/matching"
	"github.com/dukerupert/savory/internal/model"
)

type PantryStore struct {
	db    *sql.DB
	retry RetryPolicy
}

func NewPantryStore(db *sql.DB, retry RetryPolicy) *PantryStore {
	return &PantryStore{db: db, retry: retry}
}

const pantryCols = `p.id, p.user_id, p.ingredient_id, i.name, p.added_at`

func scanPantryItem(scanner interface{ Scan(...any) error }) (*model.PantryItem, error) {
	var item model.PantryItem
	if err := scanner.Scan(&item.ID, &item.UserID, &item.IngredientID, &item.IngredientName, &item.AddedAt); err != nil {
		return nil, err
	}
	return &item, nil
}

// List returns the user's pantry ordered by ingredient name, each item with
// its related ingredient ids.
func (s *PantryStore) List(ctx context.Context, userID int64) ([]model.PantryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pantryCols+` FROM user_pantry p JOIN ingredients i ON i.id = p.ingredient_id
		WHERE p.user_id = ? ORDER BY i.name COLLATE NOCASE, p.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pantry: %w", err)
	}
	items := []model.PantryItem{}
	index := map[int64]int{}
	for rows.Next() {
		item, err := scanPantryItem(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pantry item: %w", err)
		}
		item.RelatedIDs = []int64{}
		index[item.ID] = len(items)
		items = append(items, *item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	related, err := s.db.QueryContext(ctx,
		`SELECT pr.pantry_id, pr.ingredient_id FROM pantry_related pr
		JOIN user_pantry p ON p.id = pr.pantry_id
		WHERE p.user_id = ? ORDER BY pr.pantry_id, pr.ingredient_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list pantry related: %w", err)
	}
	defer related.Close()
	for related.Next() {
		var pantryID, ingID int64
		if err := related.Scan(&pantryID, &ingID); err != nil {
			return nil, fmt.Errorf("scan pantry related: %w", err)
		}
		if i, ok := index[pantryID]; ok {
			items[i].RelatedIDs = append(items[i].RelatedIDs, ingID)
		}
	}
	return items, related.Err()
}

// Get returns the user's pantry item for an ingredient, or nil.
func (s *PantryStore) Get(ctx context.Context, userID, ingredientID int64) (*model.PantryItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pantryCols+` FROM user_pantry p JOIN ingredients i ON i.id = p.ingredient_id
		WHERE p.user_id = ? AND p.ingredient_id = ?`, userID, ingredientID)
	item, err := scanPantryItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pantry item: %w", err)
	}
	return item, nil
}

// Add puts an ingredient in the user's pantry. Adding an ingredient that is
// already present is a no-op; created reports whether a row was inserted.
func (s *PantryStore) Add(ctx context.Context, userID, ingredientID int64) (item *model.PantryItem, created bool, err error) {
	n, err := execCount(ctx, s.db,
		`INSERT INTO user_pantry (user_id, ingredient_id) VALUES (?, ?) ON CONFLICT(user_id, ingredient_id) DO NOTHING`,
		userID, ingredientID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, apperr.NotFound("ingredient not found")
		}
		return nil, false, classify(fmt.Errorf("insert pantry item: %w", err))
	}
	item, err = s.Get(ctx, userID, ingredientID)
	if err != nil {
		return nil, false, err
	}
	return item, n > 0, nil
}

// Remove deletes the ingredient from the user's pantry along with its
// related links. It reports whether anything was removed.
func (s *PantryStore) Remove(ctx context.Context, userID, ingredientID int64) (bool, error) {
	n, err := execCount(ctx, s.db, `DELETE FROM user_pantry WHERE user_id = ? AND ingredient_id = ?`, userID, ingredientID)
	if err != nil {
		return false, classify(fmt.Errorf("delete pantry item: %w", err))
	}
	return n > 0, nil
}

// RelatedIDs returns the ingredient ids linked to the pantry item followed by
// the item's own ingredient id.
func (s *PantryStore) RelatedIDs(ctx context.Context, userID, ingredientID int64) ([]int64, error) {
	item, err := s.Get(ctx, userID, ingredientID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("ingredient is not in the pantry")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ingredient_id FROM pantry_related WHERE pantry_id = ? ORDER BY ingredient_id`, item.ID)
	if err != nil {
		return nil, fmt.Errorf("list related: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan related: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return append(ids, ingredientID), nil
}

// SaveRelated replaces the related ingredients of a pantry item. The item's
// own ingredient id is dropped from ids. The write is retried while the
// database is busy.
func (s *PantryStore) SaveRelated(ctx context.Context, userID, ingredientID int64, ids []int64) ([]int64, error) {
	item, err := s.Get(ctx, userID, ingredientID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, apperr.NotFound("ingredient is not in the pantry")
	}

	seen := map[int64]bool{ingredientID: true}
	keep := []int64{}
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		keep = append(keep, id)
	}

	err = s.retry.Do(ctx, func(ctx context.Context) error {
		return withTx(ctx, s.db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM pantry_related WHERE pantry_id = ?`, item.ID); err != nil {
				return classify(fmt.Errorf("clear related: %w", err))
			}
			for _, id := range keep {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO pantry_related (pantry_id, ingredient_id) VALUES (?, ?)`, item.ID, id,
				); err != nil {
					if isForeignKeyViolation(err) {
						return apperr.Validation(fmt.Sprintf("ingredient %d does not exist", id))
					}
					return classify(fmt.Errorf("insert related %d: %w", id, err))
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return keep, nil
}

// IngredientIDs returns the ingredient ids the user owns directly.
func (s *PantryStore) IngredientIDs(ctx context.Context, userID int64) ([]int64, error) {
	return queryIDs(ctx, s.db, `SELECT ingredient_id FROM user_pantry WHERE user_id = ? ORDER BY id`, userID)
}

// PantrySet returns the ingredients the user owns plus every ingredient
// related to one of them.
func (s *PantryStore) PantrySet(ctx context.Context, userID int64) (matching.Set, error) {
	direct, err := s.IngredientIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	related, err := queryIDs(ctx, s.db,
		`SELECT pr.ingredient_id FROM pantry_related pr JOIN user_pantry p ON p.id = pr.pantry_id WHERE p.user_id = ?`,
		userID)
	if err != nil {
		return nil, err
	}
	return matching.PantrySet(direct, related), nil
}

func queryIDs(ctx context.Context, q queryer, query string, args ...any) ([]int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
