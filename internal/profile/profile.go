package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/chatdb/chatdb/internal/docvalue"
	"github.com/chatdb/chatdb/internal/schema"
)

var (
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrSourceNotFound    = errors.New("source not found")
)

type ColumnInfo struct {
	Name         string
	DeclaredType string
	KeyRole      string
}

// RelationalSource describes and samples tables. Implementations return
// ErrSourceNotFound for unknown tables.
type RelationalSource interface {
	DescribeTable(ctx context.Context, table string) ([]ColumnInfo, error)
	SampleRows(ctx context.Context, table string, limit int) ([]string, [][]any, error)
}

type DocumentSource interface {
	SampleDocuments(ctx context.Context, collection string, limit int) ([]bson.D, error)
}

type Profiler interface {
	Profile(ctx context.Context, source string) (schema.Snapshot, error)
}

// storeError keeps not-found errors distinguishable and marks everything else
// as an unreachable backend.
func storeError(op, source string, err error) error {
	if errors.Is(err, ErrSourceNotFound) || errors.Is(err, ErrSourceUnavailable) {
		return fmt.Errorf("%s %q: %w", op, source, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %s %q: %v", ErrSourceUnavailable, op, source, err)
}

type Relational struct {
	Source      RelationalSource
	SampleLimit int
}

func NewRelational(source RelationalSource) *Relational {
	return &Relational{Source: source, SampleLimit: schema.MaxSamples}
}

func (p *Relational) Profile(ctx context.Context, table string) (schema.Snapshot, error) {
	if strings.TrimSpace(table) == "" {
		return schema.Snapshot{}, fmt.Errorf("%w: table name is required", ErrSourceNotFound)
	}
	infos, err := p.Source.DescribeTable(ctx, table)
	if err != nil {
		return schema.Snapshot{}, storeError("describe", table, err)
	}
	names, rows, err := p.Source.SampleRows(ctx, table, sampleLimit(p.SampleLimit))
	if err != nil {
		return schema.Snapshot{}, storeError("sample", table, err)
	}
	positions := make(map[string]int, len(names))
	for i, name := range names {
		positions[name] = i
	}

	columns := make([]schema.Column, 0, len(infos))
	for _, info := range infos {
		category := schema.ClassifyDeclared(info.Name, info.DeclaredType, info.KeyRole)
		column := schema.Column{
			Name:     info.Name,
			Category: category,
			IsKey:    category == schema.CategoryKey,
		}
		if idx, ok := positions[info.Name]; ok {
			for _, row := range rows {
				if idx >= len(row) {
					continue
				}
				if value := sampleValue(row[idx], category); value != nil {
					column.Samples = append(column.Samples, value)
				}
			}
		}
		columns = append(columns, column)
	}
	return schema.NewSnapshot(table, columns), nil
}

// sampleValue converts driver values into the scalar forms classification and
// example generation expect. Numeric columns decoded as text are parsed.
func sampleValue(value any, category schema.Category) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		value = string(typed)
	}
	if text, ok := value.(string); ok && category == schema.CategoryNumeric {
		text = strings.TrimSpace(text)
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
	}
	return value
}

type Document struct {
	Source      DocumentSource
	SampleLimit int
}

func NewDocument(source DocumentSource) *Document {
	return &Document{Source: source, SampleLimit: schema.MaxSamples}
}

// Profile samples documents and classifies each top-level field by the type
// of the first non-null value seen. Fields missing from some documents are
// kept.
func (p *Document) Profile(ctx context.Context, collection string) (schema.Snapshot, error) {
	if strings.TrimSpace(collection) == "" {
		return schema.Snapshot{}, fmt.Errorf("%w: collection name is required", ErrSourceNotFound)
	}
	docs, err := p.Source.SampleDocuments(ctx, collection, sampleLimit(p.SampleLimit))
	if err != nil {
		return schema.Snapshot{}, storeError("sample", collection, err)
	}

	order := make([]string, 0)
	fields := make(map[string]*schema.Column)
	for _, doc := range docs {
		normalized, ok := docvalue.Normalize(doc).(bson.D)
		if !ok {
			continue
		}
		for _, elem := range normalized {
			column, seen := fields[elem.Key]
			if !seen {
				column = &schema.Column{Name: elem.Key}
				fields[elem.Key] = column
				order = append(order, elem.Key)
			}
			if elem.Value == nil {
				continue
			}
			if column.Category == "" {
				column.Category = schema.ClassifyValue(elem.Key, elem.Value)
				column.IsKey = column.Category == schema.CategoryKey
			}
			if len(column.Samples) < schema.MaxSamples {
				column.Samples = append(column.Samples, elem.Value)
			}
		}
	}

	columns := make([]schema.Column, 0, len(order))
	for _, name := range order {
		column := *fields[name]
		if column.Category == "" {
			column.Category = schema.ClassifyValue(name, nil)
			column.IsKey = column.Category == schema.CategoryKey
		}
		columns = append(columns, column)
	}
	return schema.NewSnapshot(collection, columns), nil
}

func sampleLimit(limit int) int {
	if limit <= 0 || limit > schema.MaxSamples {
		return schema.MaxSamples
	}
	return limit
}
