package recommend

import (
	"sort"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
)

type keywordGroup struct {
	goal   []string
	column []string
	kind   analysis.Kind
	weight int
}

var keywordGroups = []keywordGroup{
	{goal: []string{"trend", "time", "monthly", "daily", "year", "season"}, column: []string{"date", "time", "month", "year"}, kind: analysis.KindDatetime, weight: 3},
	{goal: []string{"region", "location", "country", "city", "state"}, column: []string{"region", "country", "city", "state", "location"}, weight: 3},
	{goal: []string{"customer", "user", "segment", "cohort"}, column: []string{"customer", "user", "client", "segment"}, weight: 3},
	{goal: []string{"sale", "revenue", "price", "amount", "profit", "cost"}, column: []string{"sales", "revenue", "price", "amount", "profit", "cost"}, weight: 3},
	{goal: []string{"category", "type", "group", "status"}, column: []string{"category", "type", "group", "status"}, kind: analysis.KindCategorical, weight: 2},
	{goal: []string{"campaign", "channel", "spend", "conversion"}, column: []string{"campaign", "channel", "spend", "conversion", "ad"}, weight: 3},
}

func containsAny(s string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Relevance scores how well a column fits the goal. Higher is better.
func Relevance(c analysis.ColumnProfile, goal string) int {
	name := strings.ToLower(c.Name)
	g := strings.ToLower(goal)
	score := 0
	for _, kg := range keywordGroups {
		if !containsAny(g, kg.goal) {
			continue
		}
		if (kg.kind != "" && c.Kind == kg.kind) || containsAny(name, kg.column) {
			score += kg.weight
		}
	}
	if name != "" && strings.Contains(g, name) {
		score += 4
	}
	switch c.Kind {
	case analysis.KindNumeric, analysis.KindDatetime:
		score++
	}
	if c.NullPercentage > 70 {
		score -= 2
	}
	return score
}

// rank orders columns by descending relevance; ties keep source order.
func rank(cols []analysis.ColumnProfile, goal string) []analysis.ColumnProfile {
	out := append([]analysis.ColumnProfile(nil), cols...)
	sort.SliceStable(out, func(i, j int) bool { return Relevance(out[i], goal) > Relevance(out[j], goal) })
	return out
}

// byCardinality orders columns by descending unique count; ties keep source order.
func byCardinality(cols []analysis.ColumnProfile) []analysis.ColumnProfile {
	out := append([]analysis.ColumnProfile(nil), cols...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UniqueCount > out[j].UniqueCount })
	return out
}
