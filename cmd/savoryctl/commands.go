package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/dukerupert/savory/internal/dedupe"
	"github.com/dukerupert/savory/internal/importer"
	"github.com/dukerupert/savory/internal/store"
)

func runImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	batch := fs.Int("batch-size", a.cfg.Import.BatchSize, "rows per insert transaction")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: savoryctl import [--batch-size n] <file.csv|file.xlsx>")
	}

	src, err := importer.OpenSource(fs.Arg(0))
	if err != nil {
		return err
	}
	defer src.Close()

	im := importer.New(store.NewRecipeStore(a.db), a.logger)
	report, err := im.Import(ctx, src, *batch)
	printImportReport(a.stdout, report)
	if report.Created > 0 {
		a.invalidateSearches(ctx)
	}
	return err
}

func printImportReport(w io.Writer, r importer.Report) {
	fmt.Fprintf(w, "rows read:          %d\n", r.RowsRead)
	fmt.Fprintf(w, "created:            %d\n", r.Created)
	fmt.Fprintf(w, "skipped duplicate:  %d\n", r.SkippedDuplicate)
	fmt.Fprintf(w, "skipped invalid:    %d\n", r.SkippedInvalid)
	fmt.Fprintf(w, "insert failed:      %d\n", r.InsertFailed)
	for _, s := range []struct {
		name string
		rep  importer.StepReport
	}{{"steps", r.Steps}, {"ingredients", r.Ingredients}, {"tags", r.Tags}, {"images", r.Images}} {
		fmt.Fprintf(w, "%-19s %d applied, %d failed\n", s.name+":", s.rep.Applied, s.rep.Failed)
	}
}

func runMerge(ctx context.Context, a *app, args []string) error {
	defaults := dedupe.DefaultOptions()
	fs := flag.NewFlagSet("merge-ingredients", flag.ContinueOnError)
	threshold := fs.Float64("threshold", defaults.Threshold, "minimum similarity score (0-100)")
	minRecipes := fs.Int("min-recipes", defaults.MinRecipes, "ignore ingredients used by fewer recipes")
	maxMatches := fs.Int("max-matches", defaults.MaxMatches, "most names merged into one ingredient (0 = no cap)")
	dryRun := fs.Bool("dry-run", false, "print the plan without merging")
	yes := fs.Bool("yes", false, "merge without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ingredients := store.NewIngredientStore(a.db)
	usage, err := ingredients.ListWithUsage(ctx, *minRecipes)
	if err != nil {
		return err
	}
	candidates := make([]dedupe.Candidate, len(usage))
	for i, u := range usage {
		candidates[i] = dedupe.Candidate{ID: u.ID, Name: u.Name, RecipeCount: u.RecipeCount}
	}
	plan := dedupe.ComputePlan(candidates, dedupe.Options{
		Threshold:  *threshold,
		MinRecipes: *minRecipes,
		MaxMatches: *maxMatches,
	})

	fmt.Fprintf(a.stdout, "considered %d ingredients, %d merge groups\n", plan.Considered, len(plan.Groups))
	for _, g := range plan.Groups {
		names := make([]string, len(g.Members))
		for i, m := range g.Members {
			names[i] = fmt.Sprintf("%s (%d)", m.Name, m.RecipeCount)
		}
		fmt.Fprintf(a.stdout, "  %s (%d) <- %s\n", g.Primary.Name, g.Primary.RecipeCount, strings.Join(names, ", "))
	}
	if *dryRun || len(plan.Groups) == 0 {
		return nil
	}
	if !*yes && !confirm(a.stdin, a.stdout, fmt.Sprintf("Merge %d groups?", len(plan.Groups))) {
		fmt.Fprintln(a.stdout, "aborted")
		return nil
	}

	if err := a.beforeDestructive(ctx, "merge"); err != nil {
		return err
	}
	report, err := dedupe.Apply(ctx, ingredients, plan, a.logger)
	fmt.Fprintf(a.stdout, "applied %d groups (%d failed), merged %d ingredients, rewrote %d recipe links\n",
		report.GroupsApplied, report.GroupsFailed, report.IngredientsMerged, report.LinksRewritten)
	if report.GroupsApplied > 0 {
		a.invalidateSearches(ctx)
	}
	return err
}

// confirm asks a yes/no question and reports whether the answer was yes.
func confirm(r io.Reader, w io.Writer, question string) bool {
	fmt.Fprintf(w, "%s [y/N] ", question)
	sc := bufio.NewScanner(r)
	if !sc.Scan() {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(sc.Text())) {
	case "y", "yes":
		return true
	}
	return false
}

func dryRunFlag(name string, args []string) (bool, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "show what would change without writing")
	if err := fs.Parse(args); err != nil {
		return false, err
	}
	return *dryRun, nil
}

func runFixEncoding(ctx context.Context, a *app, args []string) error {
	dryRun, err := dryRunFlag("fix-encoding", args)
	if err != nil {
		return err
	}
	fixes, err := store.NewIngredientStore(a.db).FixEncoding(ctx, dryRun)
	if err != nil {
		return err
	}
	for _, f := range fixes {
		if f.MergedInto != 0 {
			fmt.Fprintf(a.stdout, "  %q -> %q (merged into %d, %d links moved)\n", f.From, f.To, f.MergedInto, f.LinksMoved)
			continue
		}
		fmt.Fprintf(a.stdout, "  %q -> %q\n", f.From, f.To)
	}
	fmt.Fprintf(a.stdout, "%d ingredient names %s\n", len(fixes), verb(dryRun, "would be fixed", "fixed"))
	if !dryRun && len(fixes) > 0 {
		a.invalidateSearches(ctx)
	}
	return nil
}

func runCapitalize(ctx context.Context, a *app, args []string) error {
	dryRun, err := dryRunFlag("capitalize", args)
	if err != nil {
		return err
	}
	renames, err := store.NewIngredientStore(a.db).Capitalize(ctx, dryRun)
	if err != nil {
		return err
	}
	for _, r := range renames {
		fmt.Fprintf(a.stdout, "  %q -> %q\n", r.From, r.To)
	}
	fmt.Fprintf(a.stdout, "%d ingredient names %s\n", len(renames), verb(dryRun, "would be renamed", "renamed"))
	if !dryRun && len(renames) > 0 {
		a.invalidateSearches(ctx)
	}
	return nil
}

func runCleanIncomplete(ctx context.Context, a *app, args []string) error {
	dryRun, err := dryRunFlag("clean-incomplete", args)
	if err != nil {
		return err
	}
	if !dryRun {
		if err := a.beforeDestructive(ctx, "clean-incomplete"); err != nil {
			return err
		}
	}
	found, err := store.NewRecipeStore(a.db).CleanIncomplete(ctx, dryRun)
	if err != nil {
		return err
	}
	for _, r := range found {
		var lacks []string
		if r.NoIngredients {
			lacks = append(lacks, "ingredients")
		}
		if r.NoSteps {
			lacks = append(lacks, "steps")
		}
		if r.NoImages {
			lacks = append(lacks, "images")
		}
		fmt.Fprintf(a.stdout, "  %d %q: no %s\n", r.RecipeID, r.Name, strings.Join(lacks, ", "))
	}
	fmt.Fprintf(a.stdout, "%d incomplete recipes %s\n", len(found), verb(dryRun, "found", "deleted"))
	if !dryRun && len(found) > 0 {
		a.invalidateSearches(ctx)
	}
	return nil
}

func runFlush(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("flush", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "flush without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*yes && !confirm(a.stdin, a.stdout, "Delete ALL recipes, ingredients and tags?") {
		fmt.Fprintln(a.stdout, "aborted")
		return nil
	}
	if err := a.beforeDestructive(ctx, "flush"); err != nil {
		return err
	}
	report, err := store.NewRecipeStore(a.db).Flush(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "deleted %d recipes, %d ingredients, %d tags\n", report.Recipes, report.Ingredients, report.Tags)
	a.invalidateSearches(ctx)
	return nil
}

func runCreateUser(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	email := fs.String("email", "", "login email (required)")
	username := fs.String("username", "", "display name")
	password := fs.String("password", "", "password (required)")
	superuser := fs.Bool("superuser", false, "grant superuser rights")
	if err := fs.Parse(args); err != nil {
		return err
	}
	users := store.NewUserStore(a.db)
	u, err := users.Create(ctx, *email, *username, *password, *superuser)
	if err != nil {
		return err
	}
	// Accounts created by an operator skip email verification.
	if err := users.MarkEmailVerified(ctx, u.ID); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "created user %d (%s, superuser=%t)\n", u.ID, u.Email, u.IsSuperuser)
	return nil
}

func runSnapshot(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	reason := fs.String("reason", "manual", "label added to the file name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !a.snapshot.Enabled() {
		return errors.New("no snapshot directory: set SAVORY_SNAPSHOT_DIR or --snapshot-dir")
	}
	res, err := a.snapshot.Take(ctx, *reason)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "snapshot written to %s (%d bytes, sealed=%t)\n", res.Path, res.Size, res.Sealed)
	if res.ObjectKey != "" {
		fmt.Fprintf(a.stdout, "uploaded as %s\n", res.ObjectKey)
	}
	for _, p := range res.Pruned {
		fmt.Fprintf(a.stdout, "pruned %s\n", p)
	}
	return nil
}

func verb(dryRun bool, would, did string) string {
	if dryRun {
		return would
	}
	return did
}
