package query

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type Operation string

const (
	OpFindAll        Operation = "find_all"
	OpFindEquals     Operation = "find_equals"
	OpFindCompare    Operation = "find_compare"
	OpGroupAggregate Operation = "group_aggregate"
	OpGroupHaving    Operation = "group_having"
	OpSort           Operation = "sort"
	OpDistinct       Operation = "distinct"
	OpJoin           Operation = "join"
)

type Operator string

const (
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpEQ  Operator = "eq"
	OpNE  Operator = "ne"
)

func (o Operator) Valid() bool {
	switch o {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ, OpNE:
		return true
	default:
		return false
	}
}

type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

type AggregateFunc string

const (
	AggSum   AggregateFunc = "sum"
	AggAvg   AggregateFunc = "avg"
	AggCount AggregateFunc = "count"
)

// Literal is a predicate operand. Value is an int64 or float64 for numeric
// literals and a string otherwise.
type Literal struct {
	Value any `json:"value"`
}

func (l Literal) Numeric() bool {
	switch l.Value.(type) {
	case int64, float64:
		return true
	default:
		return false
	}
}

func (l Literal) String() string {
	switch typed := l.Value.(type) {
	case int64:
		return strconv.FormatInt(typed, 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

var numericLiteralPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ParseLiteral coerces a captured value. Digits with at most one decimal point
// become numbers, anything else is a string with surrounding quotes removed.
func ParseLiteral(raw string) Literal {
	raw = strings.TrimSpace(raw)
	if numericLiteralPattern.MatchString(raw) {
		if !strings.Contains(raw, ".") {
			if value, err := strconv.ParseInt(raw, 10, 64); err == nil {
				return Literal{Value: value}
			}
		}
		if value, err := strconv.ParseFloat(raw, 64); err == nil {
			return Literal{Value: value}
		}
	}
	return StringLiteral(raw)
}

func StringLiteral(raw string) Literal {
	raw = strings.TrimSpace(raw)
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '\'' || first == '"') && first == last {
			raw = raw[1 : len(raw)-1]
		}
	}
	return Literal{Value: raw}
}

// NumberLiteral keeps integral values as int64 so they render without a
// fractional part.
func NumberLiteral(value float64) Literal {
	if value == float64(int64(value)) {
		return Literal{Value: int64(value)}
	}
	return Literal{Value: value}
}

type Predicate struct {
	Column   string   `json:"column"`
	Operator Operator `json:"operator"`
	Value    Literal  `json:"value"`
}

type Aggregate struct {
	Func    AggregateFunc `json:"function"`
	Field   string        `json:"field,omitempty"`
	GroupBy string        `json:"group_by"`
}

// ResultName is the output column or field holding the aggregate value.
func (a Aggregate) ResultName() string {
	switch a.Func {
	case AggSum:
		return "total_" + a.Field
	case AggAvg:
		return "average_" + a.Field
	default:
		return "count"
	}
}

type Order struct {
	Field     string    `json:"field"`
	Direction Direction `json:"direction"`
}

type Lookup struct {
	From         string `json:"from"`
	LocalField   string `json:"local_field"`
	ForeignField string `json:"foreign_field"`
	As           string `json:"as"`
}

// Spec is a backend-neutral query request. Every column it references belongs
// to the schema snapshot it was built from.
type Spec struct {
	Operation  Operation  `json:"operation"`
	Source     string     `json:"source"`
	Target     []string   `json:"target,omitempty"`
	Predicate  *Predicate `json:"predicate,omitempty"`
	Aggregate  *Aggregate `json:"aggregate,omitempty"`
	Having     *Predicate `json:"having,omitempty"`
	Projection []string   `json:"projection,omitempty"`
	Order      *Order     `json:"order,omitempty"`
	Lookup     *Lookup    `json:"lookup,omitempty"`
}

// Columns lists every source column the spec references. Aggregate result
// names and lookup fields in the foreign source are not included.
func (s Spec) Columns() []string {
	seen := map[string]struct{}{}
	out := make([]string, 0)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	for _, name := range s.Target {
		add(name)
	}
	if s.Predicate != nil {
		add(s.Predicate.Column)
	}
	if s.Aggregate != nil {
		add(s.Aggregate.Field)
		add(s.Aggregate.GroupBy)
	}
	for _, name := range s.Projection {
		add(name)
	}
	if s.Order != nil {
		add(s.Order.Field)
	}
	if s.Lookup != nil {
		add(s.Lookup.LocalField)
	}
	return out
}
