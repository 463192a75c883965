package insight

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/KaramelBytes/vizloom-cli/internal/ai"
	"github.com/KaramelBytes/vizloom-cli/internal/analysis"
	"github.com/KaramelBytes/vizloom-cli/internal/chart"
	"github.com/KaramelBytes/vizloom-cli/internal/utils"
)

const (
	opProcessing    = "processing"
	opVisualization = "visualization"
	opInsights      = "insights"
)

// minSchemaTokens keeps some schema in the prompt even for tiny context windows.
const minSchemaTokens = 256

const processingSystem = `You are a data preprocessing expert. Based on the user's analysis goal and the dataset schema, recommend processing steps.
Respond ONLY with a JSON object in this format:
{
  "columns_to_drop": ["col"],
  "columns_to_keep": ["col"],
  "cleaning_steps": [
    {"column_name": "col", "action": "fill_nulls", "reason": "why", "parameters": {"strategy": "median"}}
  ],
  "feature_engineering": [
    {"new_column_name": "new_col", "operation": "extract_year", "source_columns": ["date_col"], "description": "what"}
  ],
  "filtering_criteria": ["col >= 0 and col2 is not null"],
  "explanation": "why these steps",
  "insight": "one paragraph of prose about the data"
}
Actions: fill_nulls (strategy: mean, median, mode, forward_fill, constant with "value"), remove_outliers (method: iqr, zscore; threshold), convert_type (target_type: numeric, datetime, string), drop_column, drop_nulls.
Operations: ratio, difference, sum, average, concatenate, extract_year, extract_month, extract_day, bin_numeric (parameters: bins, labels).
Filters use: column OP literal with OP one of > >= < <= == !=, "column is null", "column is not null", joined with "and". Quote column names with spaces in backticks.
Only reference columns that exist in the schema.`

const insightsSystem = `You are a data analysis expert. Analyze the dataset schema and respond ONLY with a JSON object in this format:
{
  "summary": "what this data appears to be",
  "key_observations": ["observation"],
  "potential_use_cases": ["use case"],
  "data_quality_issues": ["issue"],
  "recommended_columns": ["col"],
  "insight": "one paragraph of prose"
}
Only reference columns that exist in the schema.`

func visualizationSystem() string {
	var types []string
	for _, t := range chart.AllTypes {
		types = append(types, string(t))
	}
	return fmt.Sprintf(`You are a data visualization expert. Based on the analysis goal and the processed dataset schema, suggest 3 to 5 charts.
Respond ONLY with a JSON object in this format:
{
  "charts": [
    {"chart_type": "line", "title": "Title", "description": "what it shows", "x_axis": "col", "y_axis": ["col"], "reasoning": "why"}
  ],
  "summary": "overall visualization strategy",
  "insight": "one paragraph of prose"
}
chart_type is one of: %s.
Pie and donut charts take exactly one y column. Scatter takes one numeric y, bubble takes a numeric y and a numeric size column.
Only reference columns that exist in the schema.`, strings.Join(types, ", "))
}

// messages builds the chat for one call, truncating the schema summary so the
// prompt plus the reserved completion fit the model's context window.
func (a *Augmented) messages(system string, schema *analysis.DataSchema, goal string) []ai.Message {
	budget := ai.ContextBudget(a.cfg.Model) - a.cfg.MaxTokens - utils.CountTokens(system) - utils.CountTokens(goal) - 64
	if budget < minSchemaTokens {
		budget = minSchemaTokens
	}
	summary := utils.TruncateToTokenLimit(schema.Markdown(), budget)
	if ce := a.logger.Check(zap.DebugLevel, "prompt built"); ce != nil {
		ce.Write(zap.Any("tokens", utils.TokenBreakdown(map[string]string{
			"system": system, "goal": goal, "schema": summary,
		})), zap.Int("schema_budget", budget))
	}

	var b strings.Builder
	if goal != "" {
		b.WriteString("User's analysis goal: ")
		b.WriteString(goal)
		b.WriteString("\n\n")
	}
	b.WriteString(summary)
	b.WriteString("\nRespond with the JSON object only.")
	return []ai.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: b.String()},
	}
}
