package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/model"
)

type CollectionStore struct {
	db *sql.DB
}

func NewCollectionStore(db *sql.DB) *CollectionStore {
	return &CollectionStore{db: db}
}

func (s *CollectionStore) List(ctx context.Context, userID int64) ([]model.CollectionEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.user_id, c.recipe_id, r.name, c.category, c.added_at
		FROM user_recipe_collections c JOIN recipes r ON r.id = c.recipe_id
		WHERE c.user_id = ? ORDER BY c.category COLLATE NOCASE, c.added_at DESC, c.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list collection: %w", err)
	}
	defer rows.Close()

	entries := []model.CollectionEntry{}
	for rows.Next() {
		var e model.CollectionEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.RecipeID, &e.RecipeName, &e.Category, &e.AddedAt); err != nil {
			return nil, fmt.Errorf("scan collection entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Save adds a recipe to the user's collection, or updates its category when
// it is already saved.
func (s *CollectionStore) Save(ctx context.Context, userID, recipeID int64, category string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_recipe_collections (user_id, recipe_id, category) VALUES (?, ?, ?)
		ON CONFLICT(user_id, recipe_id) DO UPDATE SET category = excluded.category`,
		userID, recipeID, strings.TrimSpace(category))
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperr.NotFound("recipe not found")
		}
		return classify(fmt.Errorf("save collection entry: %w", err))
	}
	return nil
}

func (s *CollectionStore) Remove(ctx context.Context, userID, recipeID int64) (bool, error) {
	n, err := execCount(ctx, s.db, `DELETE FROM user_recipe_collections WHERE user_id = ? AND recipe_id = ?`, userID, recipeID)
	if err != nil {
		return false, classify(fmt.Errorf("delete collection entry: %w", err))
	}
	return n > 0, nil
}
