package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

var nullTokens = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true, "null": true, "none": true, "#n/a": true,
}

// IsNullToken reports whether a raw text cell denotes a missing value.
func IsNullToken(s string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(s))]
}

// buildTable converts raw text cells into typed cells. A column becomes int64
// or float64 only when every non-null cell parses; otherwise it stays object.
func buildTable(names []string, raw [][]string) *table.Table {
	cols := make([]table.Column, len(names))
	rows := make([][]any, len(raw))
	for r := range rows {
		rows[r] = make([]any, len(names))
	}
	for i, name := range names {
		typ := inferStorage(raw, i)
		cols[i] = table.Column{Name: name, Type: typ}
		for r, rec := range raw {
			rows[r][i] = convertCell(rec[i], typ)
		}
	}
	return table.New("", cols, rows)
}

func inferStorage(raw [][]string, i int) table.StorageType {
	isInt, isFloat, seen := true, true, 0
	for _, rec := range raw {
		v := strings.TrimSpace(rec[i])
		if IsNullToken(v) {
			continue
		}
		seen++
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if !isInt && !isFloat {
			return table.TypeObject
		}
	}
	switch {
	case seen == 0:
		return table.TypeObject
	case isInt:
		return table.TypeInt
	default:
		return table.TypeFloat
	}
}

func convertCell(s string, typ table.StorageType) any {
	v := strings.TrimSpace(s)
	if IsNullToken(v) {
		return nil
	}
	switch typ {
	case table.TypeInt:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	case table.TypeFloat:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return v
}

// uniqueNames trims header names and disambiguates blanks and duplicates.
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	seen := map[string]int{}
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s_%d", name, n)
		} else {
			seen[name] = 1
		}
		out[i] = name
	}
	return out
}
