package schema

import "strings"

type Category string

const (
	CategoryNumeric     Category = "numeric"
	CategoryCategorical Category = "categorical"
	CategoryTemporal    Category = "temporal"
	CategoryKey         Category = "key"
	CategoryOther       Category = "other"
)

// MaxSamples bounds the sample values kept per column and the rows or
// documents read while profiling.
const MaxSamples = 5

type Column struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	Samples  []any    `json:"sample_values"`
	IsKey    bool     `json:"is_key"`
}

// Snapshot is the profiled shape of one table or collection. It is built once
// per request and never mutated afterwards.
type Snapshot struct {
	SourceName string   `json:"source_name"`
	Columns    []Column `json:"columns"`
}

func NewSnapshot(sourceName string, columns []Column) Snapshot {
	copied := make([]Column, 0, len(columns))
	for _, column := range columns {
		samples := column.Samples
		if len(samples) > MaxSamples {
			samples = samples[:MaxSamples]
		}
		column.Samples = append([]any(nil), samples...)
		copied = append(copied, column)
	}
	return Snapshot{SourceName: sourceName, Columns: copied}
}

func (s Snapshot) Empty() bool {
	return len(s.Columns) == 0
}

// Lookup resolves a column by exact name, then by a case-insensitive match
// when exactly one column qualifies.
func (s Snapshot) Lookup(name string) (Column, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Column{}, false
	}
	for _, column := range s.Columns {
		if column.Name == name {
			return column, true
		}
	}
	var found Column
	matches := 0
	for _, column := range s.Columns {
		if strings.EqualFold(column.Name, name) {
			found = column
			matches++
		}
	}
	if matches != 1 {
		return Column{}, false
	}
	return found, true
}

func (s Snapshot) Has(name string) bool {
	for _, column := range s.Columns {
		if column.Name == name {
			return true
		}
	}
	return false
}

func (s Snapshot) First(category Category) (Column, bool) {
	for _, column := range s.Columns {
		if column.Category == category {
			return column, true
		}
	}
	return Column{}, false
}

func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Columns))
	for _, column := range s.Columns {
		names = append(names, column.Name)
	}
	return names
}
