package render

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/blastrain/vitess-sqlparser/sqlparser"

	"github.com/chatdb/chatdb/internal/query"
)

var ErrUnsupported = errors.New("operation not supported by backend")

type Dialect struct {
	Name             string
	Quote            byte
	HavingByAlias    bool
	BackslashEscapes bool
	// FoldsUnquoted marks dialects that lower-case unquoted identifiers, so
	// mixed-case names must be quoted.
	FoldsUnquoted bool
}

var (
	MySQL    = Dialect{Name: "mysql", Quote: '`', HavingByAlias: true, BackslashEscapes: true}
	Postgres = Dialect{Name: "postgres", Quote: '"', FoldsUnquoted: true}
	DuckDB   = Dialect{Name: "duckdb", Quote: '"', HavingByAlias: true}
)

// QuoteIdent quotes name only when the dialect requires it.
func (d Dialect) QuoteIdent(name string) string {
	return quoteIdent(name, d)
}

func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mysql":
		return MySQL, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "duckdb", "lake":
		return DuckDB, nil
	default:
		return Dialect{}, fmt.Errorf("unknown sql dialect %q", name)
	}
}

var sqlOperators = map[query.Operator]string{
	query.OpGT:  ">",
	query.OpGTE: ">=",
	query.OpLT:  "<",
	query.OpLTE: "<=",
	query.OpEQ:  "=",
	query.OpNE:  "!=",
}

var (
	simpleIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	// reservedWords covers postgres and duckdb words the mysql keyword table
	// misses.
	reservedWords = map[string]struct{}{
		"select": {}, "from": {}, "where": {}, "group": {}, "order": {}, "by": {}, "having": {},
		"limit": {}, "table": {}, "and": {}, "or": {}, "not": {}, "in": {}, "is": {}, "null": {},
		"as": {}, "on": {}, "join": {}, "distinct": {}, "desc": {}, "asc": {}, "key": {}, "index": {},
		"case": {}, "when": {}, "then": {}, "else": {}, "end": {}, "union": {}, "all": {}, "insert": {},
		"update": {}, "delete": {}, "create": {}, "drop": {}, "alter": {}, "values": {}, "set": {},
		"default": {}, "primary": {}, "like": {}, "between": {}, "exists": {}, "interval": {},
		"date": {}, "time": {}, "timestamp": {}, "year": {}, "user": {}, "status": {}, "left": {},
		"right": {}, "inner": {}, "outer": {}, "to": {}, "for": {}, "into": {}, "check": {},
	}
)

// SQL renders specs as a single SELECT statement in one dialect.
type SQL struct {
	Dialect Dialect
}

func NewSQL(dialect Dialect) *SQL {
	return &SQL{Dialect: dialect}
}

func (r *SQL) Render(spec query.Spec) (query.Rendered, error) {
	text, err := buildSelect(spec, r.Dialect)
	if err != nil {
		return query.Rendered{}, err
	}
	check := text
	if r.Dialect.Quote != MySQL.Quote {
		// The parser speaks the mysql dialect, so validate the equivalent
		// backtick-quoted statement.
		if check, err = buildSelect(spec, MySQL); err != nil {
			return query.Rendered{}, err
		}
	}
	if err := ValidateSQL(check); err != nil {
		return query.Rendered{}, err
	}
	return query.Rendered{Kind: query.KindSQL, Source: spec.Source, SQL: text, Text: text}, nil
}

// ValidateSQL reports whether text parses as exactly one SELECT statement.
func ValidateSQL(text string) error {
	stmt, err := sqlparser.Parse(text)
	if err != nil {
		return fmt.Errorf("parse rendered sql: %w", err)
	}
	if _, ok := stmt.(*sqlparser.Select); !ok {
		return fmt.Errorf("rendered sql is %T, want a single SELECT", stmt)
	}
	return nil
}

func buildSelect(spec query.Spec, d Dialect) (string, error) {
	if strings.TrimSpace(spec.Source) == "" {
		return "", fmt.Errorf("spec source is required")
	}
	switch spec.Operation {
	case query.OpJoin:
		return "", fmt.Errorf("%w: %s on %s", ErrUnsupported, spec.Operation, d.Name)
	case query.OpFindAll, query.OpFindEquals, query.OpFindCompare, query.OpGroupAggregate,
		query.OpGroupHaving, query.OpSort, query.OpDistinct:
	default:
		return "", fmt.Errorf("%w: operation %q", ErrUnsupported, spec.Operation)
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	switch {
	case spec.Aggregate != nil:
		expr, err := aggregateExpr(*spec.Aggregate, d)
		if err != nil {
			return "", err
		}
		b.WriteString(quoteIdent(spec.Aggregate.GroupBy, d))
		b.WriteString(", ")
		b.WriteString(expr)
		b.WriteString(" AS ")
		b.WriteString(quoteIdent(spec.Aggregate.ResultName(), d))
	case spec.Operation == query.OpDistinct:
		if len(spec.Target) != 1 {
			return "", fmt.Errorf("distinct requires exactly one target column")
		}
		b.WriteString("DISTINCT ")
		b.WriteString(quoteIdent(spec.Target[0], d))
	case len(spec.Projection) > 0:
		b.WriteString(identList(spec.Projection, d))
	default:
		b.WriteString("*")
	}
	b.WriteString(" FROM ")
	b.WriteString(quoteIdent(spec.Source, d))

	if spec.Predicate != nil {
		cond, err := condition(quoteIdent(spec.Predicate.Column, d), *spec.Predicate, d)
		if err != nil {
			return "", err
		}
		b.WriteString(" WHERE ")
		b.WriteString(cond)
	}
	if spec.Aggregate != nil {
		b.WriteString(" GROUP BY ")
		b.WriteString(quoteIdent(spec.Aggregate.GroupBy, d))
		if spec.Having != nil {
			subject := quoteIdent(spec.Having.Column, d)
			if !d.HavingByAlias {
				expr, err := aggregateExpr(*spec.Aggregate, d)
				if err != nil {
					return "", err
				}
				subject = expr
			}
			cond, err := condition(subject, *spec.Having, d)
			if err != nil {
				return "", err
			}
			b.WriteString(" HAVING ")
			b.WriteString(cond)
		}
	} else if spec.Having != nil {
		return "", fmt.Errorf("having requires an aggregate")
	}
	if spec.Order != nil {
		b.WriteString(" ORDER BY ")
		b.WriteString(quoteIdent(spec.Order.Field, d))
		if spec.Order.Direction == query.Ascending {
			b.WriteString(" ASC")
		} else {
			b.WriteString(" DESC")
		}
	}
	return b.String(), nil
}

func aggregateExpr(agg query.Aggregate, d Dialect) (string, error) {
	switch agg.Func {
	case query.AggSum:
		return "SUM(" + quoteIdent(agg.Field, d) + ")", nil
	case query.AggAvg:
		return "AVG(" + quoteIdent(agg.Field, d) + ")", nil
	case query.AggCount:
		return "COUNT(*)", nil
	default:
		return "", fmt.Errorf("unsupported aggregate function %q", agg.Func)
	}
}

func condition(subject string, p query.Predicate, d Dialect) (string, error) {
	op, ok := sqlOperators[p.Operator]
	if !ok {
		return "", fmt.Errorf("unsupported operator %q", p.Operator)
	}
	return subject + " " + op + " " + sqlLiteral(p.Value, d), nil
}

func sqlLiteral(l query.Literal, d Dialect) string {
	if l.Numeric() {
		return l.String()
	}
	value := l.String()
	if d.BackslashEscapes {
		value = strings.ReplaceAll(value, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

func identList(names []string, d Dialect) string {
	quoted := make([]string, 0, len(names))
	for _, name := range names {
		quoted = append(quoted, quoteIdent(name, d))
	}
	return strings.Join(quoted, ", ")
}

func quoteIdent(name string, d Dialect) string {
	needsQuote := !simpleIdent.MatchString(name) || isKeyword(name)
	if !needsQuote {
		_, needsQuote = reservedWords[strings.ToLower(name)]
	}
	if !needsQuote && d.FoldsUnquoted {
		needsQuote = strings.ToLower(name) != name
	}
	if !needsQuote {
		return name
	}
	q := string(d.Quote)
	return q + strings.ReplaceAll(name, q, q+q) + q
}

// isKeyword reports whether the parser would escape name, which it does for
// every entry in its keyword table.
func isKeyword(name string) bool {
	return sqlparser.String(sqlparser.NewColIdent(name)) != name
}
