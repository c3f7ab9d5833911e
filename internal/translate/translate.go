package translate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chatdb/chatdb/internal/intent"
	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/schema"
)

var (
	ErrSchemaMismatch     = errors.New("schema mismatch")
	ErrUnrecognizedIntent = errors.New("unrecognized intent")
)

const DefaultForeignField = "_id"

// Translator turns a parsed intent into a query spec against one schema
// snapshot. It has no side effects.
type Translator struct {
	ForeignField string
}

func New() Translator {
	return Translator{ForeignField: DefaultForeignField}
}

func (t Translator) Translate(in intent.Intent, snap schema.Snapshot) (query.Spec, error) {
	b := builder{snap: snap, params: in.Params}
	switch in.Tag {
	case intent.TagFindAll:
		return query.Spec{Operation: query.OpFindAll, Source: snap.SourceName}, nil
	case intent.TagFindColumn:
		return b.findColumn()
	case intent.TagFindEquals:
		return b.filter(intent.ParamField, string(query.OpEQ), nil)
	case intent.TagFindAllWhere:
		return b.filter(intent.ParamField, b.params[intent.ParamOperator], nil)
	case intent.TagFindWhere:
		return b.filter(intent.ParamNumField, b.params[intent.ParamOperator], []string{intent.ParamStrField})
	case intent.TagAggregateSum:
		return b.aggregate(query.AggSum)
	case intent.TagAggregateAvg:
		return b.aggregate(query.AggAvg)
	case intent.TagAggregateCount, intent.TagGroupBy:
		return b.aggregate(query.AggCount)
	case intent.TagHaving:
		return b.having()
	case intent.TagSort:
		return b.sort()
	case intent.TagDistinct:
		return b.distinct()
	case intent.TagJoin:
		foreign := t.ForeignField
		if foreign == "" {
			foreign = DefaultForeignField
		}
		return b.join(foreign)
	case intent.TagUnknown, "":
		return query.Spec{}, ErrUnrecognizedIntent
	default:
		return query.Spec{}, fmt.Errorf("%w: %q has no query form", ErrUnrecognizedIntent, in.Tag)
	}
}

type builder struct {
	snap   schema.Snapshot
	params map[string]string
}

func mismatch(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSchemaMismatch, fmt.Sprintf(format, args...))
}

func (b builder) column(param string) (schema.Column, error) {
	name := strings.TrimSpace(b.params[param])
	if name == "" {
		return schema.Column{}, mismatch("missing %s", param)
	}
	col, ok := b.snap.Lookup(name)
	if !ok {
		return schema.Column{}, mismatch("column %q not found in %q", name, b.snap.SourceName)
	}
	return col, nil
}

func (b builder) numericColumn(param string) (schema.Column, error) {
	col, err := b.column(param)
	if err != nil {
		return schema.Column{}, err
	}
	if col.Category != schema.CategoryNumeric {
		return schema.Column{}, mismatch("column %q is %s, aggregation requires numeric", col.Name, col.Category)
	}
	return col, nil
}

func (b builder) findColumn() (query.Spec, error) {
	col, err := b.column(intent.ParamField)
	if err != nil {
		return query.Spec{}, err
	}
	return query.Spec{
		Operation:  query.OpFindAll,
		Source:     b.snap.SourceName,
		Target:     []string{col.Name},
		Projection: []string{col.Name},
	}, nil
}

// filter builds an equality or comparison filter. Without companions the
// projection is the whole schema with the filtered column moved first.
func (b builder) filter(columnParam, operator string, companions []string) (query.Spec, error) {
	col, err := b.column(columnParam)
	if err != nil {
		return query.Spec{}, err
	}
	op := query.Operator(operator)
	if !op.Valid() {
		return query.Spec{}, mismatch("unsupported operator %q", operator)
	}
	literal, err := literalFor(col, b.params[intent.ParamValue])
	if err != nil {
		return query.Spec{}, err
	}

	projection := promote(b.snap.Names(), col.Name)
	if len(companions) > 0 {
		projection = []string{col.Name}
		for _, param := range companions {
			companion, err := b.column(param)
			if err != nil {
				return query.Spec{}, err
			}
			if companion.Name != col.Name {
				projection = append(projection, companion.Name)
			}
		}
	}

	operation := query.OpFindCompare
	if op == query.OpEQ && len(companions) == 0 {
		operation = query.OpFindEquals
	}
	return query.Spec{
		Operation:  operation,
		Source:     b.snap.SourceName,
		Target:     []string{col.Name},
		Predicate:  &query.Predicate{Column: col.Name, Operator: op, Value: literal},
		Projection: projection,
	}, nil
}

func (b builder) aggregate(fn query.AggregateFunc) (query.Spec, error) {
	agg, err := b.aggregateParts(fn)
	if err != nil {
		return query.Spec{}, err
	}
	return query.Spec{
		Operation: query.OpGroupAggregate,
		Source:    b.snap.SourceName,
		Target:    []string{agg.GroupBy},
		Aggregate: &agg,
	}, nil
}

func (b builder) aggregateParts(fn query.AggregateFunc) (query.Aggregate, error) {
	group, err := b.column(intent.ParamGroup)
	if err != nil {
		return query.Aggregate{}, err
	}
	agg := query.Aggregate{Func: fn, GroupBy: group.Name}
	if fn == query.AggCount {
		return agg, nil
	}
	field, err := b.numericColumn(intent.ParamField)
	if err != nil {
		return query.Aggregate{}, err
	}
	agg.Field = field.Name
	return agg, nil
}

func (b builder) having() (query.Spec, error) {
	var fn query.AggregateFunc
	switch b.params[intent.ParamAggregateType] {
	case "total", "sum":
		fn = query.AggSum
	case "average", "avg":
		fn = query.AggAvg
	default:
		return query.Spec{}, mismatch("unsupported aggregate %q", b.params[intent.ParamAggregateType])
	}
	agg, err := b.aggregateParts(fn)
	if err != nil {
		return query.Spec{}, err
	}
	op := query.Operator(b.params[intent.ParamOperator])
	if !op.Valid() {
		return query.Spec{}, mismatch("unsupported operator %q", b.params[intent.ParamOperator])
	}
	literal := query.ParseLiteral(b.params[intent.ParamValue])
	if !literal.Numeric() {
		return query.Spec{}, mismatch("having threshold %q is not numeric", b.params[intent.ParamValue])
	}
	return query.Spec{
		Operation: query.OpGroupHaving,
		Source:    b.snap.SourceName,
		Target:    []string{agg.GroupBy},
		Aggregate: &agg,
		Having:    &query.Predicate{Column: agg.ResultName(), Operator: op, Value: literal},
	}, nil
}

func (b builder) sort() (query.Spec, error) {
	col, err := b.column(intent.ParamField)
	if err != nil {
		return query.Spec{}, err
	}
	direction := query.Direction(b.params[intent.ParamOrder])
	switch direction {
	case "":
		direction = query.Descending
	case query.Ascending, query.Descending:
	default:
		return query.Spec{}, mismatch("unsupported sort direction %q", direction)
	}
	return query.Spec{
		Operation:  query.OpSort,
		Source:     b.snap.SourceName,
		Target:     []string{col.Name},
		Projection: promote(b.snap.Names(), col.Name),
		Order:      &query.Order{Field: col.Name, Direction: direction},
	}, nil
}

func (b builder) distinct() (query.Spec, error) {
	col, err := b.column(intent.ParamField)
	if err != nil {
		return query.Spec{}, err
	}
	return query.Spec{
		Operation:  query.OpDistinct,
		Source:     b.snap.SourceName,
		Target:     []string{col.Name},
		Projection: []string{col.Name},
	}, nil
}

func (b builder) join(defaultForeign string) (query.Spec, error) {
	local, err := b.column(intent.ParamLocalField)
	if err != nil {
		return query.Spec{}, err
	}
	from := strings.TrimSpace(b.params[intent.ParamTo])
	as := strings.TrimSpace(b.params[intent.ParamAs])
	if from == "" || as == "" {
		return query.Spec{}, mismatch("join requires a source and an output field")
	}
	foreign := strings.TrimSpace(b.params[intent.ParamForeignField])
	if foreign == "" {
		foreign = defaultForeign
	}
	return query.Spec{
		Operation: query.OpJoin,
		Source:    b.snap.SourceName,
		Target:    []string{local.Name},
		Lookup: &query.Lookup{
			From:         from,
			LocalField:   local.Name,
			ForeignField: foreign,
			As:           as,
		},
	}, nil
}

// literalFor coerces a raw value for comparison with col. Categorical and
// temporal columns always compare against strings. Numeric columns require a
// numeric literal.
func literalFor(col schema.Column, raw string) (query.Literal, error) {
	if strings.TrimSpace(raw) == "" {
		return query.Literal{}, mismatch("missing value for %q", col.Name)
	}
	switch col.Category {
	case schema.CategoryCategorical, schema.CategoryTemporal:
		return query.StringLiteral(raw), nil
	case schema.CategoryNumeric:
		literal := query.ParseLiteral(raw)
		if !literal.Numeric() {
			return query.Literal{}, mismatch("value %q is not numeric for column %q", raw, col.Name)
		}
		return literal, nil
	default:
		return query.ParseLiteral(raw), nil
	}
}

// promote moves name to the front of columns and keeps the remaining order.
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
