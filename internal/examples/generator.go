package examples

import (
	"fmt"
	"math"
	"strings"

	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/schema"
)

type Construct string

const (
	ConstructFilter    Construct = "filter"
	ConstructAggregate Construct = "aggregate"
	ConstructHaving    Construct = "having"
	ConstructSort      Construct = "sort"
	ConstructGroup     Construct = "group"
	ConstructDistinct  Construct = "distinct"
)

type Example struct {
	Description string         `json:"description"`
	Construct   Construct      `json:"construct"`
	Spec        query.Spec     `json:"spec"`
	Rendered    query.Rendered `json:"rendered"`
	Result      *query.Result  `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Generator derives runnable examples from a schema snapshot. Noun names the
// unit of data in descriptions, e.g. rows or documents.
type Generator struct {
	Renderer query.Renderer
	Noun     string
}

func NewGenerator(renderer query.Renderer, noun string) Generator {
	if strings.TrimSpace(noun) == "" {
		noun = "rows"
	}
	return Generator{Renderer: renderer, Noun: noun}
}

func (g Generator) Generate(snap schema.Snapshot) ([]Example, error) {
	if g.Renderer == nil {
		return nil, fmt.Errorf("example renderer is required")
	}
	drafts := make([]draft, 0, 8)
	categorical, hasCategorical := snap.First(schema.CategoryCategorical)

	if numeric, ok := snap.First(schema.CategoryNumeric); ok {
		if threshold, ok := midpoint(numeric.Samples); ok {
			drafts = append(drafts, g.numericDrafts(snap, numeric, threshold, categorical, hasCategorical)...)
		}
	}
	if hasCategorical && len(categorical.Samples) > 0 {
		drafts = append(drafts, g.categoricalDrafts(snap, categorical)...)
	}

	// A draft the renderer rejects is dropped. The list only fails when no
	// draft renders at all.
	out := make([]Example, 0, len(drafts))
	var firstErr error
	for _, d := range drafts {
		rendered, err := g.Renderer.Render(d.spec)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("render %s example: %w", d.construct, err)
			}
			continue
		}
		out = append(out, Example{
			Description: d.description,
			Construct:   d.construct,
			Spec:        d.spec,
			Rendered:    rendered,
		})
	}
	if len(out) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

type draft struct {
	description string
	construct   Construct
	spec        query.Spec
}

func (g Generator) numericDrafts(snap schema.Snapshot, field schema.Column, threshold query.Literal, group schema.Column, hasGroup bool) []draft {
	source := snap.SourceName
	out := []draft{{
		description: fmt.Sprintf("Find %s where %s > %s", g.Noun, field.Name, threshold),
		construct:   ConstructFilter,
		spec: query.Spec{
			Operation:  query.OpFindCompare,
			Source:     source,
			Target:     []string{field.Name},
			Predicate:  &query.Predicate{Column: field.Name, Operator: query.OpGT, Value: threshold},
			Projection: promote(snap.Names(), field.Name),
		},
	}}
	if hasGroup {
		agg := query.Aggregate{Func: query.AggAvg, Field: field.Name, GroupBy: group.Name}
		having := agg
		out = append(out,
			draft{
				description: fmt.Sprintf("Average %s grouped by %s", field.Name, group.Name),
				construct:   ConstructAggregate,
				spec: query.Spec{
					Operation: query.OpGroupAggregate,
					Source:    source,
					Target:    []string{group.Name},
					Aggregate: &agg,
				},
			},
			draft{
				description: fmt.Sprintf("Average %s grouped by %s and filtered by %s > %s", field.Name, group.Name, agg.ResultName(), threshold),
				construct:   ConstructHaving,
				spec: query.Spec{
					Operation: query.OpGroupHaving,
					Source:    source,
					Target:    []string{group.Name},
					Aggregate: &having,
					Having:    &query.Predicate{Column: agg.ResultName(), Operator: query.OpGT, Value: threshold},
				},
			},
		)
	}
	return append(out, draft{
		description: fmt.Sprintf("Sort %s by %s in ascending order", g.Noun, field.Name),
		construct:   ConstructSort,
		spec:        sortSpec(snap, field.Name, query.Ascending),
	})
}

func (g Generator) categoricalDrafts(snap schema.Snapshot, field schema.Column) []draft {
	source := snap.SourceName
	value := fmt.Sprint(field.Samples[0])
	return []draft{
		{
			description: fmt.Sprintf("Find %s where %s equals '%s'", g.Noun, field.Name, value),
			construct:   ConstructFilter,
			spec: query.Spec{
				Operation:  query.OpFindEquals,
				Source:     source,
				Target:     []string{field.Name},
				Predicate:  &query.Predicate{Column: field.Name, Operator: query.OpEQ, Value: query.Literal{Value: value}},
				Projection: promote(snap.Names(), field.Name),
			},
		},
		{
			description: fmt.Sprintf("Group %s by %s", g.Noun, field.Name),
			construct:   ConstructGroup,
			spec: query.Spec{
				Operation: query.OpGroupAggregate,
				Source:    source,
				Target:    []string{field.Name},
				Aggregate: &query.Aggregate{Func: query.AggCount, GroupBy: field.Name},
			},
		},
		{
			description: fmt.Sprintf("Sort %s by %s in descending order", g.Noun, field.Name),
			construct:   ConstructSort,
			spec:        sortSpec(snap, field.Name, query.Descending),
		},
		{
			description: fmt.Sprintf("Retrieve all distinct values for the field '%s'", field.Name),
			construct:   ConstructDistinct,
			spec: query.Spec{
				Operation:  query.OpDistinct,
				Source:     source,
				Target:     []string{field.Name},
				Projection: []string{field.Name},
			},
		},
	}
}

func sortSpec(snap schema.Snapshot, field string, direction query.Direction) query.Spec {
	return query.Spec{
		Operation:  query.OpSort,
		Source:     snap.SourceName,
		Target:     []string{field},
		Projection: promote(snap.Names(), field),
		Order:      &query.Order{Field: field, Direction: direction},
	}
}

// midpoint returns floor((min+max)/2) over the numeric samples, never below
// the minimum. It reports false when no sample is numeric.
func midpoint(samples []any) (query.Literal, bool) {
	minValue, maxValue := math.Inf(1), math.Inf(-1)
	found := false
	for _, sample := range samples {
		value, ok := toFloat(sample)
		if !ok {
			continue
		}
		found = true
		minValue = math.Min(minValue, value)
		maxValue = math.Max(maxValue, value)
	}
	if !found {
		return query.Literal{}, false
	}
	threshold := math.Floor((minValue + maxValue) / 2)
	if threshold < minValue {
		threshold = minValue
	}
	return query.NumberLiteral(threshold), true
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int8:
		return float64(typed), true
	case int16:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case uint:
		return float64(typed), true
	case uint8:
		return float64(typed), true
	case uint16:
		return float64(typed), true
	case uint32:
		return float64(typed), true
	case uint64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return 0, false
		}
		return typed, true
	default:
		return 0, false
	}
}

func promote(columns []string, name string) []string {
	out := make([]string, 0, len(columns))
	out = append(out, name)
	for _, column := range columns {
		if column != name {
			out = append(out, column)
		}
	}
	return out
}

// FilterByKeyword keeps examples whose construct, description or rendered
// text contains keyword, ignoring case. Order is preserved.
func FilterByKeyword(examples []Example, keyword string) []Example {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	out := make([]Example, 0, len(examples))
	for _, example := range examples {
		if needle == "" ||
			strings.Contains(string(example.Construct), needle) ||
			strings.Contains(strings.ToLower(example.Description), needle) ||
			strings.Contains(strings.ToLower(example.Rendered.Text), needle) {
			out = append(out, example)
		}
	}
	return out
}
