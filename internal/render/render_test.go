package render

import (
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/chatdb/chatdb/internal/query"
)

func averageSpec() query.Spec {
	return query.Spec{
		Operation: query.OpGroupAggregate,
		Source:    "t",
		Target:    []string{"category"},
		Aggregate: &query.Aggregate{Func: query.AggAvg, Field: "price", GroupBy: "category"},
	}
}

func havingSpec() query.Spec {
	spec := averageSpec()
	spec.Operation = query.OpGroupHaving
	spec.Having = &query.Predicate{Column: "average_price", Operator: query.OpGT, Value: query.Literal{Value: int64(20)}}
	return spec
}

func TestSQLRenderAverageByCategory(t *testing.T) {
	rendered, err := NewSQL(MySQL).Render(averageSpec())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	want := "SELECT category, AVG(price) AS average_price FROM t GROUP BY category"
	if rendered.SQL != want {
		t.Fatalf("SQL = %q, want %q", rendered.SQL, want)
	}
	if rendered.Kind != query.KindSQL || rendered.Text != want {
		t.Fatalf("rendered = %#v", rendered)
	}
}

func TestSQLRenderStatements(t *testing.T) {
	price := query.Predicate{Column: "price", Operator: query.OpGT, Value: query.Literal{Value: int64(20)}}
	tests := []struct {
		name    string
		dialect Dialect
		spec    query.Spec
		want    string
	}{
		{
			name:    "find all",
			dialect: MySQL,
			spec:    query.Spec{Operation: query.OpFindAll, Source: "t"},
			want:    "SELECT * FROM t",
		},
		{
			name:    "compare",
			dialect: MySQL,
			spec:    query.Spec{Operation: query.OpFindCompare, Source: "t", Predicate: &price, Projection: []string{"price", "category"}},
			want:    "SELECT price, category FROM t WHERE price > 20",
		},
		{
			name:    "equals quotes strings",
			dialect: MySQL,
			spec: query.Spec{Operation: query.OpFindEquals, Source: "t", Projection: []string{"category"},
				Predicate: &query.Predicate{Column: "category", Operator: query.OpEQ, Value: query.Literal{Value: `O'Brien\`}}},
			want: `SELECT category FROM t WHERE category = 'O''Brien\\'`,
		},
		{
			name:    "having by alias",
			dialect: MySQL,
			spec:    havingSpec(),
			want:    "SELECT category, AVG(price) AS average_price FROM t GROUP BY category HAVING average_price > 20",
		},
		{
			name:    "postgres having by expression",
			dialect: Postgres,
			spec:    havingSpec(),
			want:    "SELECT category, AVG(price) AS average_price FROM t GROUP BY category HAVING AVG(price) > 20",
		},
		{
			name:    "count",
			dialect: DuckDB,
			spec: query.Spec{Operation: query.OpGroupAggregate, Source: "t",
				Aggregate: &query.Aggregate{Func: query.AggCount, GroupBy: "category"}},
			want: "SELECT category, COUNT(*) AS count FROM t GROUP BY category",
		},
		{
			name:    "sort ascending",
			dialect: MySQL,
			spec: query.Spec{Operation: query.OpSort, Source: "t", Projection: []string{"price", "category"},
				Order: &query.Order{Field: "price", Direction: query.Ascending}},
			want: "SELECT price, category FROM t ORDER BY price ASC",
		},
		{
			name:    "distinct",
			dialect: MySQL,
			spec:    query.Spec{Operation: query.OpDistinct, Source: "t", Target: []string{"category"}, Projection: []string{"category"}},
			want:    "SELECT DISTINCT category FROM t",
		},
		{
			name:    "reserved and mixed case identifiers",
			dialect: Postgres,
			spec:    query.Spec{Operation: query.OpFindAll, Source: "order", Projection: []string{"UnitPrice", "status"}},
			want:    `SELECT "UnitPrice", "status" FROM "order"`,
		},
		{
			name:    "mysql keeps mixed case unquoted",
			dialect: MySQL,
			spec:    query.Spec{Operation: query.OpFindAll, Source: "order", Projection: []string{"UnitPrice", "unit price"}},
			want:    "SELECT UnitPrice, `unit price` FROM `order`",
		},
	}
	for _, tc := range tests {
		rendered, err := NewSQL(tc.dialect).Render(tc.spec)
		if err != nil {
			t.Fatalf("%s: Render() error = %v", tc.name, err)
		}
		if rendered.SQL != tc.want {
			t.Fatalf("%s: SQL = %q, want %q", tc.name, rendered.SQL, tc.want)
		}
	}
}

func TestSQLRenderJoinUnsupported(t *testing.T) {
	spec := query.Spec{Operation: query.OpJoin, Source: "orders",
		Lookup: &query.Lookup{From: "customers", LocalField: "customer", ForeignField: "_id", As: "buyer"}}
	_, err := NewSQL(MySQL).Render(spec)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("Render(join) error = %v, want ErrUnsupported", err)
	}
}

func TestSQLRenderRejectsMissingSource(t *testing.T) {
	if _, err := NewSQL(MySQL).Render(query.Spec{Operation: query.OpFindAll}); err == nil {
		t.Fatal("expected error for empty source")
	}
}

func TestSQLRenderQuotesParserKeywords(t *testing.T) {
	for _, column := range []string{"binary", "database", "describe", "div", "explain", "match", "mod", "replace", "show"} {
		for _, dialect := range []Dialect{MySQL, Postgres, DuckDB} {
			spec := query.Spec{Operation: query.OpSort, Source: "t", Projection: []string{column},
				Order: &query.Order{Field: column, Direction: query.Ascending}}
			rendered, err := NewSQL(dialect).Render(spec)
			if err != nil {
				t.Fatalf("%s column %q: Render() error = %v", dialect.Name, column, err)
			}
			q := string(dialect.Quote)
			want := "SELECT " + q + column + q + " FROM t ORDER BY " + q + column + q + " ASC"
			if rendered.SQL != want {
				t.Fatalf("%s SQL = %q, want %q", dialect.Name, rendered.SQL, want)
			}
		}
	}
}

func TestValidateSQL(t *testing.T) {
	if err := ValidateSQL("SELECT category FROM t WHERE price > 3"); err != nil {
		t.Fatalf("ValidateSQL(select) error = %v", err)
	}
	if err := ValidateSQL("DELETE FROM t"); err == nil {
		t.Fatal("expected non-select statement to be rejected")
	}
	if err := ValidateSQL("SELECT FROM WHERE"); err == nil {
		t.Fatal("expected malformed statement to be rejected")
	}
}

func TestDialectFor(t *testing.T) {
	for name, want := range map[string]string{"MySQL": "mysql", "pgx": "postgres", "postgresql": "postgres", "lake": "duckdb"} {
		got, err := DialectFor(name)
		if err != nil || got.Name != want {
			t.Fatalf("DialectFor(%q) = %q, %v", name, got.Name, err)
		}
	}
	if _, err := DialectFor("oracle"); err == nil {
		t.Fatal("expected unknown dialect error")
	}
}

func TestPipelineRenderAverageByCategory(t *testing.T) {
	rendered, err := NewPipeline().Render(averageSpec())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if rendered.Kind != query.KindPipeline || len(rendered.Stages) != 1 {
		t.Fatalf("rendered = %#v", rendered)
	}
	assertPipelineText(t, rendered.Text, "t", `"$group"`, `"_id":"$category"`, `"average_price":{"$avg":"$price"}`)
	group := rendered.Stages[0].Body
	if group[0].Key != "_id" || group[1].Key != "average_price" {
		t.Fatalf("group = %#v", group)
	}
}

func TestPipelineStageOrder(t *testing.T) {
	rendered, err := NewPipeline().Render(havingSpec())
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	kinds := stageKinds(rendered.Stages)
	if strings.Join(kinds, ",") != "group,match" {
		t.Fatalf("stages = %v", kinds)
	}
	if rendered.Stages[1].Body[0].Key != "average_price" {
		t.Fatalf("having match = %#v", rendered.Stages[1].Body)
	}

	spec := query.Spec{
		Operation:  query.OpFindCompare,
		Source:     "t",
		Predicate:  &query.Predicate{Column: "price", Operator: query.OpLTE, Value: query.Literal{Value: int64(5)}},
		Projection: []string{"price", "_id", "category"},
	}
	rendered, err = NewPipeline().Render(spec)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if strings.Join(stageKinds(rendered.Stages), ",") != "match,project" {
		t.Fatalf("stages = %v", stageKinds(rendered.Stages))
	}
	assertPipelineText(t, rendered.Text, "t", `"$match"`, `"$lte"`, `"$project"`)
	project := rendered.Stages[1].Body
	if len(project) != 3 || project[0].Key != "price" || project[1].Key != "category" || project[2].Key != "_id" {
		t.Fatalf("project = %#v", project)
	}
}

func TestPipelineSortAndDistinct(t *testing.T) {
	sorted, err := NewPipeline().Render(query.Spec{
		Operation:  query.OpSort,
		Source:     "t",
		Projection: []string{"price"},
		Order:      &query.Order{Field: "price", Direction: query.Descending},
	})
	if err != nil {
		t.Fatalf("Render(sort) error = %v", err)
	}
	if sorted.Stages[0].Kind != query.StageSort || sorted.Stages[0].Body[0].Value != int32(-1) {
		t.Fatalf("sort stage = %#v", sorted.Stages[0])
	}

	distinct, err := NewPipeline().Render(query.Spec{Operation: query.OpDistinct, Source: "t", Target: []string{"category"}})
	if err != nil {
		t.Fatalf("Render(distinct) error = %v", err)
	}
	assertPipelineText(t, distinct.Text, "t", `"$group"`, `"_id":"$category"`)
	if len(distinct.Stages) != 1 || len(distinct.Stages[0].Body) != 1 {
		t.Fatalf("stages = %#v", distinct.Stages)
	}
}

func TestPipelineLookup(t *testing.T) {
	rendered, err := NewPipeline().Render(query.Spec{
		Operation: query.OpJoin,
		Source:    "orders",
		Lookup:    &query.Lookup{From: "customers", LocalField: "customer", ForeignField: "_id", As: "buyer"},
	})
	if err != nil {
		t.Fatalf("Render(join) error = %v", err)
	}
	if rendered.Stages[0].Kind != query.StageLookup {
		t.Fatalf("stages = %v", stageKinds(rendered.Stages))
	}
	body := rendered.Stages[0].Body
	if body[0].Value != "customers" || body[3].Value != "buyer" {
		t.Fatalf("lookup = %#v", body)
	}
}

func TestValidatePipelineRejectsOutOfOrder(t *testing.T) {
	stages := []query.Stage{
		{Kind: query.StageSort, Body: bson.D{{Key: "price", Value: int32(1)}}},
		{Kind: query.StageGroup, Body: bson.D{{Key: "_id", Value: "$category"}}},
	}
	if err := ValidatePipeline(stages); err == nil {
		t.Fatal("expected out of order stages to be rejected")
	}
	if err := ValidatePipeline([]query.Stage{{Kind: "unwind", Body: bson.D{{Key: "path", Value: "$x"}}}}); err == nil {
		t.Fatal("expected unknown stage kind to be rejected")
	}
	if err := ValidatePipeline([]query.Stage{{Kind: query.StageMatch}}); err == nil {
		t.Fatal("expected empty stage body to be rejected")
	}
}

func stageKinds(stages []query.Stage) []string {
	out := make([]string, 0, len(stages))
	for _, stage := range stages {
		out = append(out, string(stage.Kind))
	}
	return out
}

func assertPipelineText(t *testing.T, text, source string, fragments ...string) {
	t.Helper()
	compact := strings.ReplaceAll(text, " ", "")
	if !strings.HasPrefix(compact, "db."+source+".aggregate([") || !strings.HasSuffix(compact, "])") {
		t.Fatalf("Text = %s", text)
	}
	for _, fragment := range fragments {
		if !strings.Contains(compact, fragment) {
			t.Fatalf("Text = %s, missing %s", text, fragment)
		}
	}
}
