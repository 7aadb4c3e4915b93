package dedupe

import (
	"context"
	"log/slog"
)

// Merger folds members into primary atomically and returns the number of
// recipe links rewritten.
type Merger interface {
	MergeIngredients(ctx context.Context, primaryID int64, memberIDs []int64) (int64, error)
}

type Report struct {
	GroupsApplied     int   `json:"groups_applied"`
	GroupsFailed      int   `json:"groups_failed"`
	IngredientsMerged int   `json:"ingredients_merged"`
	LinksRewritten    int64 `json:"links_rewritten"`
}

// Apply merges every group of plan. A group that fails is logged and skipped;
// the others still apply. The error is non-nil only when ctx ends early.
func Apply(ctx context.Context, m Merger, plan Plan, logger *slog.Logger) (Report, error) {
	var report Report
	for _, g := range plan.Groups {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n, err := m.MergeIngredients(ctx, g.Primary.ID, g.MemberIDs())
		if err != nil {
			report.GroupsFailed++
			logger.Error("merge group failed", "primary", g.Primary.Name, "members", len(g.Members), "error", err)
			continue
		}
		report.GroupsApplied++
		report.IngredientsMerged += len(g.Members)
		report.LinksRewritten += n
		for _, member := range g.Members {
			logger.Info("merged ingredient", "from", member.Name, "into", g.Primary.Name)
		}
	}
	return report, nil
}
