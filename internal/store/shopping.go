package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/grocery"
	"github.com/dukerupert/savory/internal/model"
)

type ShoppingStore struct {
	db *sql.DB
}

func NewShoppingStore(db *sql.DB) *ShoppingStore {
	return &ShoppingStore{db: db}
}

const shoppingCols = `s.id, s.user_id, s.ingredient_id, i.name, s.is_checked, s.added_at`

func scanShoppingItem(scanner interface{ Scan(...any) error }) (*model.ShoppingItem, error) {
	var item model.ShoppingItem
	var checked int
	if err := scanner.Scan(&item.ID, &item.UserID, &item.IngredientID, &item.IngredientName, &checked, &item.AddedAt); err != nil {
		return nil, err
	}
	item.Checked = checked != 0
	item.Aisle = grocery.Categorize(item.IngredientName)
	return &item, nil
}

// List returns the user's shopping list grouped by aisle, then ordered by
// ingredient name within each aisle.
func (s *ShoppingStore) List(ctx context.Context, userID int64) ([]model.ShoppingItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+shoppingCols+` FROM shopping_list s JOIN ingredients i ON i.id = s.ingredient_id
		WHERE s.user_id = ? ORDER BY i.name COLLATE NOCASE, s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shopping: %w", err)
	}
	defer rows.Close()

	items := []model.ShoppingItem{}
	for rows.Next() {
		item, err := scanShoppingItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan shopping item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(a, b int) bool {
		return grocery.AisleOrder(items[a].Aisle) < grocery.AisleOrder(items[b].Aisle)
	})
	return items, nil
}

func (s *ShoppingStore) Get(ctx context.Context, userID, ingredientID int64) (*model.ShoppingItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+shoppingCols+` FROM shopping_list s JOIN ingredients i ON i.id = s.ingredient_id
		WHERE s.user_id = ? AND s.ingredient_id = ?`, userID, ingredientID)
	item, err := scanShoppingItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get shopping item: %w", err)
	}
	return item, nil
}

// Add puts an ingredient on the user's list. An ingredient already on the
// list is left as it is.
func (s *ShoppingStore) Add(ctx context.Context, userID, ingredientID int64) (*model.ShoppingItem, bool, error) {
	n, err := execCount(ctx, s.db,
		`INSERT INTO shopping_list (user_id, ingredient_id) VALUES (?, ?) ON CONFLICT(user_id, ingredient_id) DO NOTHING`,
		userID, ingredientID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, false, apperr.NotFound("ingredient not found")
		}
		return nil, false, classify(fmt.Errorf("insert shopping item: %w", err))
	}
	item, err := s.Get(ctx, userID, ingredientID)
	if err != nil {
		return nil, false, err
	}
	return item, n > 0, nil
}

func (s *ShoppingStore) Remove(ctx context.Context, userID, ingredientID int64) (bool, error) {
	n, err := execCount(ctx, s.db, `DELETE FROM shopping_list WHERE user_id = ? AND ingredient_id = ?`, userID, ingredientID)
	if err != nil {
		return false, classify(fmt.Errorf("delete shopping item: %w", err))
	}
	return n > 0, nil
}

// Toggle flips the checked state of a list item and returns the new state.
func (s *ShoppingStore) Toggle(ctx context.Context, userID, ingredientID int64) (bool, error) {
	var checked int
	err := s.db.QueryRowContext(ctx,
		`UPDATE shopping_list SET is_checked = 1 - is_checked WHERE user_id = ? AND ingredient_id = ? RETURNING is_checked`,
		userID, ingredientID,
	).Scan(&checked)
	if err == sql.ErrNoRows {
		return false, apperr.NotFound("ingredient is not on the shopping list")
	}
	if err != nil {
		return false, classify(fmt.Errorf("toggle shopping item: %w", err))
	}
	return checked != 0, nil
}

// CompleteTrip moves every checked item into the user's pantry and removes
// it from the list, in one transaction. It returns how many items moved.
func (s *ShoppingStore) CompleteTrip(ctx context.Context, userID int64) (int, error) {
	var moved int64
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_pantry (user_id, ingredient_id)
			SELECT user_id, ingredient_id FROM shopping_list WHERE user_id = ? AND is_checked = 1
			ON CONFLICT(user_id, ingredient_id) DO NOTHING`, userID,
		); err != nil {
			return classify(fmt.Errorf("move checked items: %w", err))
		}
		var err error
		moved, err = execCount(ctx, tx, `DELETE FROM shopping_list WHERE user_id = ? AND is_checked = 1`, userID)
		if err != nil {
			return classify(fmt.Errorf("clear checked items: %w", err))
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(moved), nil
}
