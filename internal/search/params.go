package search

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/dukerupert/savory/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	DirAsc  = "asc"
	DirDesc = "desc"

	// FilterAvailable keeps only recipes with nothing missing from the
	// user's pantry.
	FilterAvailable = "available"

	keyPrefix = "search:"
)

// Params is a recipe search request as it arrives from a caller. UserID 0
// means anonymous.
type Params struct {
	Query     string
	Category  string
	Sort      string
	Direction string
	Filter    string
	Page      int
	PageSize  int
	UserID    int64
}

// Normalize fills defaults and drops options that do not apply, so that two
// requests with the same meaning produce the same cache key.
func (p Params) Normalize() Params {
	p.Query = strings.Join(strings.Fields(p.Query), " ")
	p.Category = strings.TrimSpace(p.Category)

	p.Sort = strings.ToLower(strings.TrimSpace(p.Sort))
	switch p.Sort {
	case store.SortRelevance, store.SortTime, store.SortRating, store.SortName:
	case store.SortMissing:
		if p.UserID <= 0 {
			p.Sort = store.SortRelevance
		}
	default:
		p.Sort = store.SortRelevance
	}

	p.Direction = strings.ToLower(strings.TrimSpace(p.Direction))
	if p.Direction != DirAsc && p.Direction != DirDesc {
		p.Direction = defaultDirection(p.Sort)
	}

	if p.UserID <= 0 {
		p.UserID = 0
		p.Filter = ""
	} else if strings.ToLower(strings.TrimSpace(p.Filter)) == FilterAvailable {
		p.Filter = FilterAvailable
	} else {
		p.Filter = ""
	}

	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize <= 0:
		p.PageSize = DefaultPageSize
	case p.PageSize > MaxPageSize:
		p.PageSize = MaxPageSize
	}
	return p
}

func defaultDirection(sort string) string {
	if sort == store.SortRelevance || sort == store.SortRating {
		return DirDesc
	}
	return DirAsc
}

// Key is the cache key of normalized params.
func (p Params) Key() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		p.Query, strings.ToLower(p.Category), p.Sort, p.Direction, p.Filter,
		fmt.Sprint(p.Page), fmt.Sprint(p.PageSize),
	}, "\x00")))
	return UserPrefix(p.UserID) + hex.EncodeToString(sum[:])
}

// UserPrefix is the key prefix shared by every cached search of one user.
func UserPrefix(userID int64) string {
	return fmt.Sprintf("%su%d:", keyPrefix, userID)
}

func (p Params) query() store.RecipeQuery {
	return store.RecipeQuery{
		Words:         strings.Fields(p.Query),
		Category:      p.Category,
		UserID:        p.UserID,
		AvailableOnly: p.Filter == FilterAvailable,
		Sort:          p.Sort,
		Desc:          p.Direction == DirDesc,
		Limit:         p.PageSize,
		Offset:        (p.Page - 1) * p.PageSize,
	}
}
