// Package dedupe finds near-duplicate ingredient names and merges them into
// the most used spelling.
package dedupe

import (
	"sort"
)

type Candidate struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	RecipeCount int    `json:"recipe_count"`
}

type Options struct {
	// Threshold is the minimum Score (0-100) for two names to group.
	Threshold float64
	// MinRecipes drops candidates used by fewer recipes.
	MinRecipes int
	// MaxMatches caps how many names join one base ingredient's group,
	// best scores first. Zero means no cap.
	MaxMatches int
}

func DefaultOptions() Options {
	return Options{Threshold: 85, MinRecipes: 1, MaxMatches: 5}
}

// Group is a set of ingredients to fold into Primary.
type Group struct {
	Primary Candidate   `json:"primary"`
	Members []Candidate `json:"members"`
}

// TotalRecipes sums the recipe counts of every ingredient in the group.
func (g Group) TotalRecipes() int {
	n := g.Primary.RecipeCount
	for _, m := range g.Members {
		n += m.RecipeCount
	}
	return n
}

func (g Group) MemberIDs() []int64 {
	ids := make([]int64, len(g.Members))
	for i, m := range g.Members {
		ids[i] = m.ID
	}
	return ids
}

type Plan struct {
	Considered int     `json:"considered"`
	Groups     []Group `json:"groups"`
}

// ComputePlan partitions candidates into merge groups without touching
// storage. Candidates are visited from most to least used; each unvisited
// one collects every other unvisited candidate scoring at least
// opts.Threshold against it, and all of them are marked visited.
func ComputePlan(candidates []Candidate, opts Options) Plan {
	var pool []Candidate
	for _, c := range candidates {
		if c.RecipeCount >= opts.MinRecipes {
			pool = append(pool, c)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].RecipeCount != pool[j].RecipeCount {
			return pool[i].RecipeCount > pool[j].RecipeCount
		}
		return pool[i].ID < pool[j].ID
	})

	plan := Plan{Considered: len(pool)}
	processed := make(map[int64]bool, len(pool))

	type match struct {
		c     Candidate
		score float64
	}
	for _, base := range pool {
		if processed[base.ID] {
			continue
		}
		var matches []match
		for _, other := range pool {
			if other.ID == base.ID || processed[other.ID] {
				continue
			}
			if s := Score(base.Name, other.Name); s >= opts.Threshold {
				matches = append(matches, match{other, s})
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
		if opts.MaxMatches > 0 && len(matches) > opts.MaxMatches {
			matches = matches[:opts.MaxMatches]
		}

		all := []Candidate{base}
		processed[base.ID] = true
		for _, m := range matches {
			all = append(all, m.c)
			processed[m.c.ID] = true
		}
		plan.Groups = append(plan.Groups, splitPrimary(all))
	}
	return plan
}

// splitPrimary picks the most used ingredient, the earliest on ties.
func splitPrimary(all []Candidate) Group {
	p := 0
	for i, c := range all {
		if c.RecipeCount > all[p].RecipeCount {
			p = i
		}
	}
	g := Group{Primary: all[p]}
	for i, c := range all {
		if i != p {
			g.Members = append(g.Members, c)
		}
	}
	return g
}
