package chart

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

func humanize(col string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(col))
}

// DefaultTitle derives a title such as "Revenue by Region" from the bindings.
func DefaultTitle(t Type, x string, y []string) string {
	parts := make([]string, len(y))
	for i, c := range y {
		parts[i] = humanize(c)
	}
	if len(y) == 1 && y[0] == x {
		return "Count by " + humanize(x)
	}
	switch t {
	case Scatter, Bubble:
		if len(parts) > 0 {
			return parts[0] + " vs " + humanize(x)
		}
	case Box, Violin:
		return "Distribution of " + strings.Join(parts, ", ") + " by " + humanize(x)
	case Heatmap:
		if len(parts) == 2 {
			return parts[1] + " by " + parts[0] + " and " + humanize(x)
		}
	}
	return strings.Join(parts, ", ") + " by " + humanize(x)
}
