// Package ingredient canonicalizes raw ingredient text: quantity lines from
// recipe sources, percent-encoded names, and display capitalization.
package ingredient

import (
	"regexp"
	"strconv"
	"strings"
)

// Parsed is the best-effort split of a quantity line. Amount and Unit are nil
// when they could not be recovered; Name then holds the whole line.
type Parsed struct {
	Amount *float64 `json:"amount"`
	Unit   *string  `json:"unit"`
	Name   string   `json:"name"`
}

var (
	linePattern  = regexp.MustCompile(`^(\d*\.?\d*)\s*(-?\d*\.?\d*)?\s*(\w+)?\s*(.+)?$`)
	mixedPattern = regexp.MustCompile(`^(\d+)\s+(\d+)/(\d+)\b`)
	fracPattern  = regexp.MustCompile(`^(\d+)/(\d+)\b`)
)

// ParseLine splits a line such as "2 cups flour" into amount, unit and name.
// A leading fraction ("1/2", "1 1/2") is folded into a decimal amount first.
// Ranges like "1-2 cups" keep the lower bound. Without a leading number the
// whole line is the name.
func ParseLine(raw string) Parsed {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Parsed{}
	}
	line = foldFraction(line)

	m := linePattern.FindStringSubmatch(line)
	if m == nil {
		return Parsed{Name: line}
	}

	amountStr := m[1]
	if amountStr == "" {
		amountStr = strings.TrimPrefix(m[2], "-")
	}
	unit := m[3]
	name := strings.TrimSpace(m[4])

	amount, err := strconv.ParseFloat(amountStr, 64)
	if amountStr == "" || err != nil {
		return Parsed{Name: strings.TrimSpace(raw)}
	}

	p := Parsed{Amount: &amount}
	switch {
	case unit != "" && name != "":
		p.Unit = &unit
		p.Name = name
	case unit != "":
		// "3 eggs": the only word is the ingredient itself.
		p.Name = unit
	case name != "":
		p.Name = name
	default:
		p.Name = strings.TrimSpace(raw)
	}
	return p
}

func foldFraction(line string) string {
	if m := mixedPattern.FindStringSubmatchIndex(line); m != nil {
		whole, _ := strconv.Atoi(line[m[2]:m[3]])
		num, _ := strconv.Atoi(line[m[4]:m[5]])
		den, _ := strconv.Atoi(line[m[6]:m[7]])
		if den != 0 {
			return formatAmount(float64(whole)+float64(num)/float64(den)) + line[m[1]:]
		}
		return line
	}
	if m := fracPattern.FindStringSubmatchIndex(line); m != nil {
		num, _ := strconv.Atoi(line[m[2]:m[3]])
		den, _ := strconv.Atoi(line[m[4]:m[5]])
		if den != 0 {
			return formatAmount(float64(num)/float64(den)) + line[m[1]:]
		}
	}
	return line
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
