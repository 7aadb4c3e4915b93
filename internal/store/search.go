package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/savory/internal/model"
)

// Sort keys accepted by RecipeQuery.
const (
	SortRelevance = "relevance"
	SortTime      = "time"
	SortRating    = "rating"
	SortName      = "name"
	SortMissing   = "missing"
)

var sortColumns = map[string]string{
	SortRelevance: "review_count",
	SortTime:      "sort_time",
	SortRating:    "aggregated_rating",
	SortName:      "name COLLATE NOCASE",
	SortMissing:   "missing_count",
}

// RecipeQuery is a normalized recipe search. Every word must match at least
// one of name, description, category, ingredient name or tag name. UserID 0
// means anonymous: missing counts are not computed and AvailableOnly and
// SortMissing are ignored.
type RecipeQuery struct {
	Words         []string
	Category      string
	UserID        int64
	AvailableOnly bool
	Sort          string
	Desc          bool
	Limit         int
	Offset        int
}

const pantryCTE = `WITH pantry(ingredient_id) AS (
	SELECT ingredient_id FROM user_pantry WHERE user_id = ?
	UNION
	SELECT pr.ingredient_id FROM pantry_related pr
	JOIN user_pantry up ON up.id = pr.pantry_id
	WHERE up.user_id = ?
)
`

const wordClause = `(r.name LIKE ? ESCAPE '\' OR r.description LIKE ? ESCAPE '\' OR r.recipe_category LIKE ? ESCAPE '\'
	OR EXISTS (SELECT 1 FROM recipe_ingredients ri JOIN ingredients i ON i.id = ri.ingredient_id
		WHERE ri.recipe_id = r.id AND i.name LIKE ? ESCAPE '\')
	OR EXISTS (SELECT 1 FROM recipe_tags rt JOIN tags t ON t.id = rt.tag_id
		WHERE rt.recipe_id = r.id AND t.name LIKE ? ESCAPE '\'))`

// build returns the optional WITH prefix and the filtered row source, with
// arguments in placeholder order.
func (q RecipeQuery) build() (prefix, body string, args []any) {
	var b strings.Builder

	signedIn := q.UserID > 0
	if signedIn {
		prefix = pantryCTE
		args = append(args, q.UserID, q.UserID)
	}

	b.WriteString(`(SELECT r.id, r.recipe_id, r.name, r.description, r.recipe_category,
	r.cook_time, r.prep_time, r.total_time, r.aggregated_rating, r.review_count,
	COALESCE(r.total_time, COALESCE(r.prep_time, 0) + COALESCE(r.cook_time, 0)) AS sort_time,
	COALESCE((SELECT url FROM recipe_images WHERE recipe_id = r.id ORDER BY sort_order, id LIMIT 1), '') AS image,
	`)
	if signedIn {
		b.WriteString(`(SELECT COUNT(DISTINCT ri.ingredient_id) FROM recipe_ingredients ri
		WHERE ri.recipe_id = r.id AND ri.ingredient_id NOT IN (SELECT ingredient_id FROM pantry)) AS missing_count`)
	} else {
		b.WriteString(`NULL AS missing_count`)
	}
	b.WriteString("\nFROM recipes r")

	var where []string
	for _, w := range q.Words {
		p := likePattern(w)
		where = append(where, wordClause)
		args = append(args, p, p, p, p, p)
	}
	if q.Category != "" {
		where = append(where, `r.recipe_category = ? COLLATE NOCASE`)
		args = append(args, q.Category)
	}
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, "\n\tAND "))
	}
	b.WriteString(") AS s")
	if signedIn && q.AvailableOnly {
		b.WriteString(" WHERE missing_count = 0")
	}
	return prefix, b.String(), args
}

func (q RecipeQuery) orderBy() string {
	key := q.Sort
	if key == SortMissing && q.UserID <= 0 {
		key = SortRelevance
	}
	col, ok := sortColumns[key]
	if !ok {
		col = sortColumns[SortRelevance]
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir + ", id ASC"
}

// SearchRecipes returns one page of matching recipes and the total number of
// matches.
func (s *RecipeStore) SearchRecipes(ctx context.Context, q RecipeQuery) ([]model.RecipeSummary, int, error) {
	prefix, body, args := q.build()

	var total int
	if err := s.db.QueryRowContext(ctx, prefix+`SELECT COUNT(*) FROM `+body, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recipe search: %w", err)
	}

	query := prefix + `SELECT * FROM ` + body + q.orderBy() + " LIMIT ? OFFSET ?"
	rows, err := s.db.QueryContext(ctx, query, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("recipe search: %w", err)
	}
	defer rows.Close()

	results := []model.RecipeSummary{}
	for rows.Next() {
		var r model.RecipeSummary
		var cook, prep, totalTime, sortTime sql.NullInt64
		var missing sql.NullInt64
		if err := rows.Scan(&r.ID, &r.RecipeID, &r.Name, &r.Description, &r.Category,
			&cook, &prep, &totalTime, &r.AggregatedRating, &r.ReviewCount,
			&sortTime, &r.Image, &missing,
		); err != nil {
			return nil, 0, fmt.Errorf("scan recipe summary: %w", err)
		}
		r.CookTime = durationFrom(cook)
		r.PrepTime = durationFrom(prep)
		r.TotalTime = durationFrom(totalTime)
		if missing.Valid {
			n := int(missing.Int64)
			r.MissingCount = &n
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// Categories returns each distinct non-empty recipe category with the number
// of recipes in it, ordered by name.
func (s *RecipeStore) Categories(ctx context.Context) ([]model.CategoryCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT recipe_category, COUNT(*) FROM recipes WHERE recipe_category <> ''
		GROUP BY recipe_category COLLATE NOCASE ORDER BY recipe_category COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []model.CategoryCount{}
	for rows.Next() {
		var c model.CategoryCount
		if err := rows.Scan(&c.Name, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
