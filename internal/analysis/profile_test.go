package analysis

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/KaramelBytes/vizloom-cli/internal/table"
)

func salesTable() *table.Table {
	cols := []table.Column{
		{Name: "date", Type: table.TypeObject},
		{Name: "revenue", Type: table.TypeFloat},
		{Name: "region", Type: table.TypeObject},
	}
	regions := []string{"North", "South", "East", "West"}
	var rows [][]any
	for i := 0; i < 10; i++ {
		var rev any = float64(100 + i*10)
		if i == 3 || i == 7 {
			rev = nil
		}
		rows = append(rows, []any{fmt.Sprintf("2024-01-%02d", i+1), rev, regions[i%4]})
	}
	return table.New("sales.csv", cols, rows)
}

func TestProfileScenario(t *testing.T) {
	s, err := Profile(salesTable(), DefaultOptions())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if s.RowCount != 10 || s.ColumnCount != 3 || len(s.Columns) != 3 {
		t.Fatalf("counts = %d rows, %d cols", s.RowCount, s.ColumnCount)
	}
	want := []Kind{KindDatetime, KindNumeric, KindCategorical}
	for i, c := range s.Columns {
		if c.Kind != want[i] {
			t.Fatalf("%s kind = %s, want %s", c.Name, c.Kind, want[i])
		}
	}
	rev := s.Columns[1]
	if rev.NullCount != 2 || rev.NullPercentage != 20 {
		t.Fatalf("revenue nulls = %d (%.2f%%)", rev.NullCount, rev.NullPercentage)
	}
	if rev.UniqueCount != 8 {
		t.Fatalf("revenue unique = %d, want 8 (nulls excluded)", rev.UniqueCount)
	}
	if rev.Stats == nil || rev.Stats.Min != 100 || rev.Stats.Max != 190 {
		t.Fatalf("revenue stats = %+v", rev.Stats)
	}
	region := s.Columns[2]
	if region.UniqueCount != 4 || len(region.TopValues) != 4 {
		t.Fatalf("region unique = %d top = %v", region.UniqueCount, region.TopValues)
	}
	if len(region.SampleValues) != 5 || region.SampleValues[0] != "North" {
		t.Fatalf("region samples = %v", region.SampleValues)
	}
	if s.MemoryUsageMB < 0 {
		t.Fatalf("memory = %v", s.MemoryUsageMB)
	}
}

func TestProfileExactlyOneKind(t *testing.T) {
	s, err := Profile(salesTable(), DefaultOptions())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	for _, c := range s.Columns {
		n := 0
		for _, b := range []bool{c.IsNumeric, c.IsDatetime, c.IsCategorical, c.IsText} {
			if b {
				n++
			}
		}
		if n != 1 {
			t.Fatalf("%s has %d kind flags set", c.Name, n)
		}
	}
}

func TestProfileYearsClassifyNumeric(t *testing.T) {
	var intRows, strRows [][]any
	for i := 0; i < 12; i++ {
		intRows = append(intRows, []any{int64(2010 + i%3)})
		strRows = append(strRows, []any{fmt.Sprint(2010 + i%3)})
	}
	for name, tb := range map[string]*table.Table{
		"int":    table.New("", []table.Column{{Name: "year", Type: table.TypeInt}}, intRows),
		"string": table.New("", []table.Column{{Name: "year", Type: table.TypeObject}}, strRows),
	} {
		s, err := Profile(tb, DefaultOptions())
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if s.Columns[0].Kind != KindNumeric {
			t.Fatalf("%s years kind = %s, want numeric", name, s.Columns[0].Kind)
		}
	}
}

func TestProfileDeclaredDatetimeWins(t *testing.T) {
	rows := [][]any{{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}, {time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}}
	s, err := Profile(table.New("", []table.Column{{Name: "ts", Type: table.TypeDatetime}}, rows), DefaultOptions())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if s.Columns[0].Kind != KindDatetime {
		t.Fatalf("kind = %s", s.Columns[0].Kind)
	}
	if s.Columns[0].SampleValues[0] != "2024-01-01" {
		t.Fatalf("sample = %v", s.Columns[0].SampleValues[0])
	}
}

func TestProfileTextAndThresholds(t *testing.T) {
	var rows [][]any
	for i := 0; i < 20; i++ {
		rows = append(rows, []any{fmt.Sprintf("comment number %d", i), []string{"a", "b", "c", "d"}[i%4]})
	}
	tb := table.New("", []table.Column{{Name: "note", Type: table.TypeObject}, {Name: "grade", Type: table.TypeObject}}, rows)
	s, err := Profile(tb, DefaultOptions())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if s.Columns[0].Kind != KindText || s.Columns[1].Kind != KindCategorical {
		t.Fatalf("kinds = %s/%s", s.Columns[0].Kind, s.Columns[1].Kind)
	}
	opt := DefaultOptions()
	opt.CategoricalMaxUnique = 3
	s, err = Profile(tb, opt)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if s.Columns[1].Kind != KindText {
		t.Fatalf("grade with max unique 3 = %s, want text", s.Columns[1].Kind)
	}
}

func TestProfileEmptyTable(t *testing.T) {
	var empty *EmptyTableError
	_, err := Profile(table.New("", []table.Column{{Name: "a", Type: table.TypeObject}}, nil), DefaultOptions())
	if !errors.As(err, &empty) || empty.Rows != 0 {
		t.Fatalf("expected EmptyTableError for zero rows, got %v", err)
	}
	_, err = Profile(table.New("", nil, [][]any{{}}), DefaultOptions())
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyTableError for zero columns, got %v", err)
	}
}

func TestProfileDoesNotMutate(t *testing.T) {
	tb := salesTable()
	before := tb.Clone()
	if _, err := Profile(tb, DefaultOptions()); err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if !tb.Equal(before) {
		t.Fatalf("profile mutated its input")
	}
}

func TestMemoryMonotonic(t *testing.T) {
	small := salesTable()
	big := salesTable()
	for i := 0; i < 30000; i++ {
		big.Rows = append(big.Rows, []any{"2024-02-01", 1.0, "North"})
	}
	a, _ := Profile(small, DefaultOptions())
	b, _ := Profile(big, DefaultOptions())
	if b.MemoryUsageMB <= a.MemoryUsageMB {
		t.Fatalf("memory not monotonic: %v <= %v", b.MemoryUsageMB, a.MemoryUsageMB)
	}
}

func TestSchemaMarkdown(t *testing.T) {
	s, err := Profile(salesTable(), DefaultOptions())
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	md := s.Markdown()
	for _, want := range []string{"[DATASET SUMMARY]", "File: sales.csv", "- date: datetime [object]", "- revenue: numeric [float64] (nulls 2, 20.00%", "top: North(3)"} {
		if !strings.Contains(md, want) {
			t.Fatalf("markdown missing %q:\n%s", want, md)
		}
	}
}

func TestSchemaMarkdownTruncatesByRune(t *testing.T) {
	short := strings.Repeat("é", 30)
	long := strings.Repeat("ü", 50)
	s := &DataSchema{
		Name:        "notes.csv",
		RowCount:    2,
		ColumnCount: 1,
		Columns: []ColumnProfile{
			{Name: "note", Kind: KindText, DeclaredType: "object", UniqueCount: 2, SampleValues: []any{short, long}},
		},
	}
	md := s.Markdown()
	if !utf8.ValidString(md) {
		t.Fatalf("markdown is not valid UTF-8:\n%s", md)
	}
	if !strings.Contains(md, short) {
		t.Fatalf("30-rune sample should be kept whole:\n%s", md)
	}
	if want := strings.Repeat("ü", 37) + "..."; !strings.Contains(md, want) {
		t.Fatalf("markdown missing truncated sample %q:\n%s", want, md)
	}
}

func TestParseNumberLocales(t *testing.T) {
	cases := map[string]float64{
		"1,5":       1.5,
		"1.000,25":  1000.25,
		"1,000.25":  1000.25,
		"12%":       12,
		"1 234":     1234,
		"-3.5e2":    -350,
	}
	for in, want := range cases {
		got, ok := ParseNumber(in)
		if !ok || got != want {
			t.Fatalf("ParseNumber(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseNumber("abc"); ok {
		t.Fatalf("expected abc to fail")
	}
}
