package importer

import (
	"encoding/json"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	isoDuration   = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?$`)
	clockDuration = regexp.MustCompile(`^(\d+):(\d{1,2}):(\d{1,2})$`)
	nonNumeric    = regexp.MustCompile(`[^\d.\-]`)
	doubleQuoted  = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
	anyQuoted     = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)'`)
)

// MaxDecimal bounds every decimal stored for a recipe.
var MaxDecimal = decimal.RequireFromString("999999.9")

// ParseDuration reads an ISO-8601 time token such as "PT1H30M" or a clock
// token such as "00:45:00". Anything else yields nil.
func ParseDuration(v string) *time.Duration {
	v = strings.TrimSpace(v)
	if m := isoDuration.FindStringSubmatch(v); m != nil {
		if m[1] == "" && m[2] == "" && m[3] == "" {
			return nil
		}
		d := time.Duration(atoi(m[1]))*time.Hour +
			time.Duration(atoi(m[2]))*time.Minute +
			time.Duration(atoi(m[3]))*time.Second
		return &d
	}
	if m := clockDuration.FindStringSubmatch(v); m != nil {
		d := time.Duration(atoi(m[1]))*time.Hour +
			time.Duration(atoi(m[2]))*time.Minute +
			time.Duration(atoi(m[3]))*time.Second
		return &d
	}
	return nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func isMissing(v string) bool {
	switch strings.ToLower(v) {
	case "", "nan", "na", "none", "null", "<na>":
		return true
	}
	return false
}

// SafeDecimal parses v, clamps it to ±999999.9 and rounds it half away from
// zero to one place. Missing, infinite or unparseable values give def.
func SafeDecimal(v string, def decimal.Decimal) decimal.Decimal {
	v = strings.TrimSpace(v)
	if isMissing(v) || strings.Contains(strings.ToLower(v), "inf") {
		return def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		cleaned := nonNumeric.ReplaceAllString(v, "")
		if cleaned == "" {
			return def
		}
		if d, err = decimal.NewFromString(cleaned); err != nil {
			return def
		}
	}
	if d.GreaterThan(MaxDecimal) {
		d = MaxDecimal
	}
	if d.LessThan(MaxDecimal.Neg()) {
		d = MaxDecimal.Neg()
	}
	return d.Round(1)
}

// SafeInt parses v as a number and rounds it to the nearest integer, ties to
// even. Missing or unparseable values give def.
func SafeInt(v string, def int) int {
	v = strings.TrimSpace(v)
	if isMissing(v) {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return int(math.RoundToEven(f))
}

// ParseRecipeID accepts integral values, including spreadsheet floats such
// as "38.0".
func ParseRecipeID(v string) (int64, bool) {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		if n <= 0 {
			return 0, false
		}
		return n, true
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) || f <= 0 || f >= 1<<63 {
		return 0, false
	}
	return int64(f), true
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"01-02-06",
	"1/2/2006",
	"1/2/2006 15:04",
}

// ParseDate reads a publication date. Times without a zone are taken as UTC.
func ParseDate(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// ParseList decodes a serialized list of strings: a JSON array, an R vector
// such as c("a", "b"), or a bracketed list of single or double quoted items.
// Anything else gives an empty list.
func ParseList(v string) []string {
	v = strings.TrimSpace(v)
	if isMissing(v) || v == "character(0)" {
		return []string{}
	}

	var raw []any
	if err := json.Unmarshal([]byte(v), &raw); err == nil {
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}

	if strings.HasPrefix(v, "c(") && strings.HasSuffix(v, ")") {
		return quotedItems(doubleQuoted, v[2:len(v)-1])
	}
	if strings.HasPrefix(v, "[") && strings.HasSuffix(v, "]") {
		return quotedItems(anyQuoted, v[1:len(v)-1])
	}
	if strings.HasPrefix(v, `"`) {
		return quotedItems(doubleQuoted, v)
	}
	return []string{}
}

func quotedItems(re *regexp.Regexp, body string) []string {
	out := []string{}
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		item := m[1]
		if item == "" && len(m) > 2 {
			item = m[2]
		}
		out = append(out, unescape(item))
	}
	return out
}

func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	r := strings.NewReplacer(`\"`, `"`, `\'`, `'`, `\\`, `\`, `\n`, "\n", `\t`, "\t")
	return r.Replace(s)
}

// ParseImages returns up to limit http(s) URLs from a serialized list. A
// bare URL is accepted as a one-item list.
func ParseImages(v string, limit int) []string {
	v = strings.TrimSpace(v)
	items := ParseList(v)
	if len(items) == 0 && strings.HasPrefix(v, "http") {
		items = []string{v}
	}
	out := []string{}
	for _, item := range items {
		if len(out) == limit {
			break
		}
		item = strings.TrimSpace(item)
		u, err := url.Parse(item)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}

// cleanText drops spreadsheet placeholders for missing text.
func cleanText(v string) string {
	v = strings.TrimSpace(v)
	if isMissing(v) {
		return ""
	}
	return v
}
