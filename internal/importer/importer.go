// Package importer loads recipe datasets into the store in fault-tolerant
// batches.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dukerupert/savory/internal/apperr"
	"github.com/dukerupert/savory/internal/ingredient"
	"github.com/dukerupert/savory/internal/model"
)

// DefaultBatchSize is used when Import is given a non-positive batch size.
const DefaultBatchSize = 1000

// Store is the persistence the importer writes through.
type Store interface {
	ExistingRecipeIDs(ctx context.Context) (map[int64]struct{}, error)
	InsertBatch(ctx context.Context, recipes []*model.Recipe) error
	Insert(ctx context.Context, r *model.Recipe) error
	ReplaceSteps(ctx context.Context, recipeID int64, steps []string) error
	ReplaceIngredients(ctx context.Context, recipeID int64, lines []model.IngredientLine) error
	ReplaceTags(ctx context.Context, recipeID int64, tags []string) error
	ReplaceImages(ctx context.Context, recipeID int64, urls []string) error
}

// StepReport counts one kind of child-row replacement.
type StepReport struct {
	Applied int `json:"applied"`
	Failed  int `json:"failed"`
}

type Report struct {
	RowsRead         int        `json:"rows_read"`
	Created          int        `json:"created"`
	SkippedDuplicate int        `json:"skipped_duplicate"`
	SkippedInvalid   int        `json:"skipped_invalid"`
	InsertFailed     int        `json:"insert_failed"`
	Steps            StepReport `json:"steps"`
	Ingredients      StepReport `json:"ingredients"`
	Tags             StepReport `json:"tags"`
	Images           StepReport `json:"images"`
}

type Importer struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Importer {
	return &Importer{store: store, logger: logger.With("component", "importer")}
}

// pending is a validated row waiting to be inserted.
type pending struct {
	recipe      *model.Recipe
	steps       []string
	ingredients []model.IngredientLine
	tags        []string
	images      []string
}

// Import reads src to the end in batches of batchSize. Rows whose recipe id
// is already stored are skipped, so importing the same data twice creates
// nothing the second time. Row-level problems are logged and counted; the
// returned error is reserved for source read failures and cancellation.
func (im *Importer) Import(ctx context.Context, src Source, batchSize int) (Report, error) {
	var report Report
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	existing, err := im.store.ExistingRecipeIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("load existing recipe ids: %w", err)
	}
	im.logger.Info("import started", "existing_recipes", len(existing), "batch_size", batchSize)

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		batch, readErr := readBatch(src, batchSize)
		report.RowsRead += len(batch)
		if len(batch) > 0 {
			im.processBatch(ctx, batch, existing, &report)
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return report, readErr
		}
	}

	im.logger.Info("import finished",
		"rows", report.RowsRead,
		"created", report.Created,
		"skipped_duplicate", report.SkippedDuplicate,
		"skipped_invalid", report.SkippedInvalid,
		"insert_failed", report.InsertFailed,
	)
	return report, nil
}

func readBatch(src Source, n int) ([]Row, error) {
	batch := make([]Row, 0, n)
	for len(batch) < n {
		row, err := src.Next()
		if err != nil {
			return batch, err
		}
		batch = append(batch, row)
	}
	return batch, nil
}

// processBatch inserts a batch's new rows. An id counts as stored only once
// its insert succeeds, so a repeat of a row that failed is tried again. A
// repeat inside the batch waits until the first copy has been inserted.
func (im *Importer) processBatch(ctx context.Context, batch []Row, existing map[int64]struct{}, report *Report) {
	var todo, repeats []*pending
	queued := make(map[int64]struct{}, len(batch))
	for _, row := range batch {
		name := cleanText(row.Get("Name"))
		id, ok := ParseRecipeID(row.Get("RecipeId"))
		if !ok {
			report.SkippedInvalid++
			im.logger.Warn("skipping row with invalid recipe id", "recipe_id", row.Get("RecipeId"), "name", name)
			continue
		}
		if _, dup := existing[id]; dup {
			report.SkippedDuplicate++
			im.logger.Warn("skipping existing recipe", "recipe_id", id, "name", name)
			continue
		}
		p, err := parseRow(id, row)
		if err != nil {
			report.SkippedInvalid++
			im.logger.Warn("skipping invalid recipe", "recipe_id", id, "name", name, "error", err)
			continue
		}
		if _, ok := queued[id]; ok {
			repeats = append(repeats, p)
			continue
		}
		queued[id] = struct{}{}
		todo = append(todo, p)
	}

	var created []*pending
	if len(todo) > 0 {
		recipes := make([]*model.Recipe, len(todo))
		for i, p := range todo {
			recipes[i] = p.recipe
		}
		if err := im.store.InsertBatch(ctx, recipes); err != nil {
			im.logger.Error("batch insert failed, inserting one at a time", "size", len(recipes), "error", err)
			for _, p := range todo {
				if im.insertOne(ctx, p, report) {
					created = append(created, p)
				}
			}
		} else {
			created = todo
			im.logger.Info("created recipes", "count", len(created))
		}
	}
	for _, p := range created {
		existing[p.recipe.RecipeID] = struct{}{}
	}

	for _, p := range repeats {
		id := p.recipe.RecipeID
		if _, dup := existing[id]; dup {
			report.SkippedDuplicate++
			im.logger.Warn("skipping repeated recipe", "recipe_id", id, "name", p.recipe.Name)
			continue
		}
		if im.insertOne(ctx, p, report) {
			existing[id] = struct{}{}
			created = append(created, p)
		}
	}
	report.Created += len(created)

	for _, p := range created {
		im.applyChildren(ctx, p, report)
	}
}

func (im *Importer) insertOne(ctx context.Context, p *pending, report *Report) bool {
	if err := im.store.Insert(ctx, p.recipe); err != nil {
		report.InsertFailed++
		im.logger.Warn("insert recipe failed", "recipe_id", p.recipe.RecipeID, "name", p.recipe.Name, "error", err)
		return false
	}
	return true
}

// applyChildren replaces steps, ingredients, tags and images separately so a
// failure in one leaves the others in place.
func (im *Importer) applyChildren(ctx context.Context, p *pending, report *Report) {
	r := p.recipe
	run := func(what string, counter *StepReport, fn func() error) {
		if err := fn(); err != nil {
			counter.Failed++
			im.logger.Warn("import "+what+" failed", "recipe_id", r.RecipeID, "name", r.Name, "error", err)
			return
		}
		counter.Applied++
	}
	run("steps", &report.Steps, func() error { return im.store.ReplaceSteps(ctx, r.ID, p.steps) })
	run("ingredients", &report.Ingredients, func() error { return im.store.ReplaceIngredients(ctx, r.ID, p.ingredients) })
	run("tags", &report.Tags, func() error { return im.store.ReplaceTags(ctx, r.ID, p.tags) })
	run("images", &report.Images, func() error { return im.store.ReplaceImages(ctx, r.ID, p.images) })
}

var (
	zero = decimal.Zero
	five = decimal.NewFromInt(5)
)

func parseRow(id int64, row Row) (*pending, error) {
	r := &model.Recipe{
		RecipeID:    id,
		Name:        cleanText(row.Get("Name")),
		CookTime:    ParseDuration(row.Get("CookTime")),
		PrepTime:    ParseDuration(row.Get("PrepTime")),
		TotalTime:   ParseDuration(row.Get("TotalTime")),
		Description: cleanText(row.Get("Description")),
		Category:    cleanText(row.Get("RecipeCategory")),
		ServingSize: cleanText(row.Get("serving_size")),
		ReviewCount: SafeInt(row.Get("ReviewCount"), 0),
		Servings:    SafeInt(row.Get("servings"), 1),
		Nutrition: model.Nutrition{
			Calories:            SafeDecimal(row.Get("Calories"), zero),
			FatContent:          SafeDecimal(row.Get("FatContent"), zero),
			SaturatedFatContent: SafeDecimal(row.Get("SaturatedFatContent"), zero),
			CholesterolContent:  SafeDecimal(row.Get("CholesterolContent"), zero),
			SodiumContent:       SafeDecimal(row.Get("SodiumContent"), zero),
			CarbohydrateContent: SafeDecimal(row.Get("CarbohydrateContent"), zero),
			FiberContent:        SafeDecimal(row.Get("FiberContent"), zero),
			SugarContent:        SafeDecimal(row.Get("SugarContent"), zero),
			ProteinContent:      SafeDecimal(row.Get("ProteinContent"), zero),
		},
		AggregatedRating: SafeDecimal(row.Get("AggregatedRating"), zero),
	}

	if r.Name == "" {
		return nil, apperr.Validation("missing name")
	}
	if !r.HasTiming() {
		return nil, apperr.Validation("missing both prep time and cook time")
	}
	published, ok := ParseDate(row.Get("DatePublished"))
	if !ok {
		return nil, apperr.Validation(fmt.Sprintf("invalid publication date %q", row.Get("DatePublished")))
	}
	r.DatePublished = published
	if r.AggregatedRating.LessThan(zero) || r.AggregatedRating.GreaterThan(five) {
		return nil, apperr.Validation(fmt.Sprintf("rating %s out of range", r.AggregatedRating))
	}

	return &pending{
		recipe:      r,
		steps:       ParseList(row.Get("steps")),
		ingredients: zipIngredients(ParseList(row.Get("ingredients")), ParseList(row.Get("ingredients_raw_str"))),
		tags:        ParseList(row.Get("tags")),
		images:      ParseImages(row.Get("Images"), model.MaxImagesPerRecipe),
	}, nil
}

// zipIngredients pairs names with raw lines; extra entries on either side
// are dropped.
func zipIngredients(names, raws []string) []model.IngredientLine {
	n := min(len(names), len(raws))
	lines := make([]model.IngredientLine, 0, n)
	for i := 0; i < n; i++ {
		name := ingredient.Canonical(names[i])
		if name == "" {
			continue
		}
		lines = append(lines, model.IngredientLine{Name: name, Raw: strings.TrimSpace(raws[i])})
	}
	return lines
}
