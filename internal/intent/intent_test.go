package intent

import (
	"reflect"
	"testing"
)

func TestDocumentRegistryOrder(t *testing.T) {
	want := []Tag{
		TagExampleQueries,
		TagExampleWithKeyword,
		TagFindAll,
		TagFindEquals,
		TagFindAllWhere,
		TagFindWhere,
		TagFindColumn,
		TagAggregateSum,
		TagAggregateCount,
		TagAggregateAvg,
		TagGroupBy,
		TagSort,
		TagHaving,
		TagJoin,
		TagDistinct,
	}
	if got := DocumentRegistry().Tags(); !reflect.DeepEqual(got, want) {
		t.Fatalf("DocumentRegistry().Tags() = %v, want %v", got, want)
	}
}

func TestRelationalRegistryOrder(t *testing.T) {
	want := []Tag{
		TagExampleQueries,
		TagExampleWithKeyword,
		TagFindAll,
		TagHaving,
		TagAggregateSum,
		TagAggregateAvg,
		TagAggregateCount,
		TagFindAllWhere,
		TagFindAllWhere,
		TagFindEquals,
		TagSort,
		TagSort,
		TagDistinct,
	}
	if got := RelationalRegistry().Tags(); !reflect.DeepEqual(got, want) {
		t.Fatalf("RelationalRegistry().Tags() = %v, want %v", got, want)
	}
}

func TestParseDocumentUtterances(t *testing.T) {
	parser := NewParser(DocumentRegistry())
	tests := []struct {
		utterance string
		tag       Tag
		params    map[string]string
	}{
		{utterance: "example nosql queries", tag: TagExampleQueries, params: map[string]string{}},
		{utterance: "example queries with Group", tag: TagExampleWithKeyword, params: map[string]string{"keywords": "group"}},
		{utterance: "  find all data ", tag: TagFindAll, params: map[string]string{}},
		{utterance: "find category equals Books", tag: TagFindEquals, params: map[string]string{"field": "category", "value": "Books"}},
		{utterance: "find all where price >= 20", tag: TagFindAllWhere, params: map[string]string{"field": "price", "operator": "gte", "value": "20"}},
		{utterance: "find title where price != 5", tag: TagFindWhere, params: map[string]string{"str_field": "title", "num_field": "price", "operator": "ne", "value": "5"}},
		{utterance: "find unitPrice", tag: TagFindColumn, params: map[string]string{"field": "unitPrice"}},
		{utterance: "total price by category", tag: TagAggregateSum, params: map[string]string{"field": "price", "group": "category"}},
		{utterance: "count by category", tag: TagAggregateCount, params: map[string]string{"group": "category"}},
		{utterance: "average price by category", tag: TagAggregateAvg, params: map[string]string{"field": "price", "group": "category"}},
		{utterance: "group products by category", tag: TagGroupBy, params: map[string]string{"entity": "products", "group": "category"}},
		{utterance: "sort products by price ascending", tag: TagSort, params: map[string]string{"entity": "products", "field": "price", "order": "ascending"}},
		{utterance: "having average price > 20 grouped by category", tag: TagHaving, params: map[string]string{"aggregate_type": "average", "field": "price", "operator": "gt", "value": "20", "group": "category"}},
		{utterance: "join orders with customers on customer as buyer", tag: TagJoin, params: map[string]string{"from_collection": "orders", "to_collection": "customers", "local_field": "customer", "as_field": "buyer"}},
		{utterance: "join orders with customers on customer = code as buyer", tag: TagJoin, params: map[string]string{"from_collection": "orders", "to_collection": "customers", "local_field": "customer", "foreign_field": "code", "as_field": "buyer"}},
		{utterance: "distinct values of category", tag: TagDistinct, params: map[string]string{"field": "category"}},
	}
	for _, tc := range tests {
		got := parser.Parse(tc.utterance)
		if got.Tag != tc.tag {
			t.Fatalf("Parse(%q).Tag = %q, want %q", tc.utterance, got.Tag, tc.tag)
		}
		if !reflect.DeepEqual(got.Params, tc.params) {
			t.Fatalf("Parse(%q).Params = %#v, want %#v", tc.utterance, got.Params, tc.params)
		}
	}
}

func TestParseRelationalUtterances(t *testing.T) {
	parser := NewParser(RelationalRegistry())
	tests := []struct {
		utterance string
		tag       Tag
		params    map[string]string
	}{
		{utterance: "Example of SQL query", tag: TagExampleQueries, params: map[string]string{}},
		{utterance: "example of group by", tag: TagExampleWithKeyword, params: map[string]string{"keywords": "group by"}},
		{utterance: "show all rows", tag: TagFindAll, params: map[string]string{}},
		{utterance: "having total price greater than 100 group by category", tag: TagHaving, params: map[string]string{"aggregate_type": "total", "field": "price", "operator": "gt", "value": "100", "group": "category"}},
		{utterance: "average price by category", tag: TagAggregateAvg, params: map[string]string{"field": "price", "group": "category"}},
		{utterance: "total price group by category", tag: TagAggregateSum, params: map[string]string{"field": "price", "group": "category"}},
		{utterance: "count rows by category", tag: TagAggregateCount, params: map[string]string{"group": "category"}},
		{utterance: "count by category", tag: TagAggregateCount, params: map[string]string{"group": "category"}},
		{utterance: "filter price greater than 25", tag: TagFindAllWhere, params: map[string]string{"field": "price", "operator": "gt", "value": "25"}},
		{utterance: "where price is less than 7.5", tag: TagFindAllWhere, params: map[string]string{"field": "price", "operator": "lt", "value": "7.5"}},
		{utterance: "where price <= 9", tag: TagFindAllWhere, params: map[string]string{"field": "price", "operator": "lte", "value": "9"}},
		{utterance: "filter category equals Books", tag: TagFindEquals, params: map[string]string{"field": "category", "value": "books"}},
		{utterance: "sort price asc", tag: TagSort, params: map[string]string{"field": "price", "order": "ascending"}},
		{utterance: "distinct category", tag: TagDistinct, params: map[string]string{"field": "category"}},
	}
	for _, tc := range tests {
		got := parser.Parse(tc.utterance)
		if got.Tag != tc.tag {
			t.Fatalf("Parse(%q).Tag = %q, want %q", tc.utterance, got.Tag, tc.tag)
		}
		if !reflect.DeepEqual(got.Params, tc.params) {
			t.Fatalf("Parse(%q).Params = %#v, want %#v", tc.utterance, got.Params, tc.params)
		}
	}
}

func TestRelationalSortDefaultsToDescending(t *testing.T) {
	parser := NewParser(RelationalRegistry())
	for _, utterance := range []string{"sort price", "order by price", "sort by price"} {
		got := parser.Parse(utterance)
		if got.Tag != TagSort || got.Param(ParamField) != "price" || got.Param(ParamOrder) != "descending" {
			t.Fatalf("Parse(%q) = %#v", utterance, got)
		}
	}
}

func TestDocumentSortRequiresExplicitDirection(t *testing.T) {
	parser := NewParser(DocumentRegistry())
	if got := parser.Parse("sort products by price"); got.Tag == TagSort {
		t.Fatalf("Parse() = %#v, want no sort intent without direction", got)
	}
	got := parser.Parse("sort products by price descending")
	if got.Param(ParamOrder) != "descending" {
		t.Fatalf("order = %q", got.Param(ParamOrder))
	}
}

func TestParseUnknown(t *testing.T) {
	for _, registry := range []*Registry{DocumentRegistry(), RelationalRegistry()} {
		parser := NewParser(registry)
		for _, utterance := range []string{"banana", "", "   "} {
			got := parser.Parse(utterance)
			if got.Tag != TagUnknown {
				t.Fatalf("Parse(%q).Tag = %q, want unknown", utterance, got.Tag)
			}
			if len(got.Params) != 0 {
				t.Fatalf("Parse(%q).Params = %#v", utterance, got.Params)
			}
		}
	}
}

func TestParseIsDeterministic(t *testing.T) {
	parser := NewParser(RelationalRegistry())
	first := parser.Parse("filter price greater than 25")
	for i := 0; i < 10; i++ {
		if got := parser.Parse("filter price greater than 25"); !reflect.DeepEqual(got, first) {
			t.Fatalf("Parse() run %d = %#v, want %#v", i, got, first)
		}
	}
}

func TestFirstMatchWins(t *testing.T) {
	registry := NewRegistry(
		MustCompile(TagFindColumn, `find (?P<field>\w+)`),
		MustCompile(TagFindAll, `find all data`),
	)
	if got := NewParser(registry).Parse("find all data"); got.Tag != TagFindColumn {
		t.Fatalf("Parse().Tag = %q, want %q", got.Tag, TagFindColumn)
	}
}

func TestCompileRejectsReservedTag(t *testing.T) {
	if _, err := Compile(TagUnknown, `x`); err == nil {
		t.Fatal("expected error for reserved tag")
	}
	if _, err := Compile(TagFindAll, `(`); err == nil {
		t.Fatal("expected error for invalid expression")
	}
}

func TestOperatorCode(t *testing.T) {
	want := map[string]string{">": "gt", ">=": "gte", "<": "lt", "<=": "lte", "=": "eq", "!=": "ne"}
	for token, code := range want {
		got, ok := OperatorCode(token)
		if !ok || got != code {
			t.Fatalf("OperatorCode(%q) = %q, %v", token, got, ok)
		}
	}
	if _, ok := OperatorCode("~"); ok {
		t.Fatal("expected unknown token to be rejected")
	}
}
