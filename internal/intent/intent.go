package intent

import (
	"fmt"
	"regexp"
	"strings"
)

type Tag string

const (
	TagUnknown            Tag = "unknown"
	TagExampleQueries     Tag = "example_queries"
	TagExampleWithKeyword Tag = "example_with_keyword"
	TagFindAll            Tag = "find_all"
	TagFindEquals         Tag = "find_equals"
	TagFindAllWhere       Tag = "find_all_where"
	TagFindWhere          Tag = "find_where"
	TagFindColumn         Tag = "find_column"
	TagAggregateSum       Tag = "aggregate_sum"
	TagAggregateCount     Tag = "aggregate_count"
	TagAggregateAvg       Tag = "aggregate_avg"
	TagGroupBy            Tag = "group_by"
	TagSort               Tag = "sort"
	TagHaving             Tag = "having"
	TagJoin               Tag = "join"
	TagDistinct           Tag = "distinct"
)

const (
	ParamKeywords      = "keywords"
	ParamField         = "field"
	ParamValue         = "value"
	ParamOperator      = "operator"
	ParamGroup         = "group"
	ParamEntity        = "entity"
	ParamOrder         = "order"
	ParamStrField      = "str_field"
	ParamNumField      = "num_field"
	ParamAggregateType = "aggregate_type"
	ParamFrom          = "from_collection"
	ParamTo            = "to_collection"
	ParamLocalField    = "local_field"
	ParamForeignField  = "foreign_field"
	ParamAs            = "as_field"
)

type Intent struct {
	Tag    Tag               `json:"tag"`
	Params map[string]string `json:"params"`
}

func Unknown() Intent {
	return Intent{Tag: TagUnknown, Params: map[string]string{}}
}

func (i Intent) Param(name string) string {
	return i.Params[name]
}

// IsExampleRequest reports whether the intent asks for generated examples
// rather than a translated query.
func (i Intent) IsExampleRequest() bool {
	return i.Tag == TagExampleQueries || i.Tag == TagExampleWithKeyword
}

var operatorCodes = map[string]string{
	">":       "gt",
	">=":      "gte",
	"<":       "lt",
	"<=":      "lte",
	"=":       "eq",
	"!=":      "ne",
	"greater": "gt",
	"less":    "lt",
}

// OperatorCode rewrites a comparison token into its backend-neutral code.
func OperatorCode(token string) (string, bool) {
	code, ok := operatorCodes[strings.ToLower(strings.TrimSpace(token))]
	return code, ok
}

var orderCodes = map[string]string{
	"asc":        "ascending",
	"ascending":  "ascending",
	"desc":       "descending",
	"descending": "descending",
}

type Pattern struct {
	Tag      Tag
	Expr     *regexp.Regexp
	Params   []string
	Defaults map[string]string
	// Fold matches against the lower-cased utterance. Patterns without it
	// match keywords case-insensitively and keep captured text as typed.
	Fold bool
}

type PatternOption func(*Pattern)

func WithDefault(param, value string) PatternOption {
	return func(p *Pattern) {
		if p.Defaults == nil {
			p.Defaults = map[string]string{}
		}
		p.Defaults[param] = value
	}
}

func PreserveCase() PatternOption {
	return func(p *Pattern) {
		p.Fold = false
	}
}

func Compile(tag Tag, expr string, opts ...PatternOption) (Pattern, error) {
	if tag == "" || tag == TagUnknown {
		return Pattern{}, fmt.Errorf("invalid pattern tag %q", tag)
	}
	pattern := Pattern{Tag: tag, Fold: true}
	for _, opt := range opts {
		opt(&pattern)
	}
	source := expr
	if !pattern.Fold {
		source = "(?i)" + expr
	}
	compiled, err := regexp.Compile(source)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile pattern %q: %w", tag, err)
	}
	pattern.Expr = compiled
	for _, name := range compiled.SubexpNames() {
		if name != "" {
			pattern.Params = append(pattern.Params, name)
		}
	}
	return pattern, nil
}

func MustCompile(tag Tag, expr string, opts ...PatternOption) Pattern {
	pattern, err := Compile(tag, expr, opts...)
	if err != nil {
		panic(err)
	}
	return pattern
}

// Registry is an ordered pattern list. Earlier patterns take priority.
type Registry struct {
	patterns []Pattern
}

func NewRegistry(patterns ...Pattern) *Registry {
	return &Registry{patterns: append([]Pattern(nil), patterns...)}
}

func (r *Registry) Tags() []Tag {
	tags := make([]Tag, 0, len(r.patterns))
	for _, pattern := range r.patterns {
		tags = append(tags, pattern.Tag)
	}
	return tags
}

func (r *Registry) Patterns() []Pattern {
	return append([]Pattern(nil), r.patterns...)
}

type Parser struct {
	registry *Registry
}

func NewParser(registry *Registry) *Parser {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Parser{registry: registry}
}

// Parse returns the intent of the first matching pattern, or Unknown when
// nothing matches.
func (p *Parser) Parse(utterance string) Intent {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return Unknown()
	}
	folded := strings.ToLower(trimmed)
	for _, pattern := range p.registry.patterns {
		text := trimmed
		if pattern.Fold {
			text = folded
		}
		match := pattern.Expr.FindStringSubmatchIndex(text)
		if match == nil {
			continue
		}
		params := make(map[string]string, len(pattern.Params))
		for i, name := range pattern.Expr.SubexpNames() {
			if name == "" || match[2*i] < 0 {
				continue
			}
			params[name] = normalizeParam(name, strings.TrimSpace(text[match[2*i]:match[2*i+1]]))
		}
		for name, value := range pattern.Defaults {
			if _, ok := params[name]; !ok {
				params[name] = value
			}
		}
		return Intent{Tag: pattern.Tag, Params: params}
	}
	return Unknown()
}

func normalizeParam(name, value string) string {
	switch name {
	case ParamOperator:
		if code, ok := OperatorCode(value); ok {
			return code
		}
	case ParamOrder:
		if code, ok := orderCodes[strings.ToLower(value)]; ok {
			return code
		}
	case ParamAggregateType:
		return strings.ToLower(value)
	}
	return value
}
