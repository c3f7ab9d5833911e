package schema

import (
	"strings"
	"time"
)

var (
	numericTypes = map[string]struct{}{
		"int": {}, "integer": {}, "decimal": {}, "numeric": {}, "float": {}, "double": {},
		"real": {}, "double precision": {}, "float4": {}, "float8": {}, "int2": {}, "int4": {},
		"int8": {}, "serial": {}, "bigserial": {}, "smallserial": {}, "money": {}, "number": {},
		"tinyint": {}, "smallint": {}, "mediumint": {}, "bigint": {}, "hugeint": {}, "uhugeint": {},
		"utinyint": {}, "usmallint": {}, "uinteger": {}, "ubigint": {},
	}
	categoricalTypes = map[string]struct{}{
		"varchar": {}, "char": {}, "character": {}, "character varying": {}, "text": {}, "enum": {},
		"string": {}, "nvarchar": {}, "nchar": {}, "bpchar": {}, "citext": {}, "set": {},
	}
	temporalTypes = map[string]struct{}{
		"date": {}, "time": {}, "datetime": {}, "timestamp": {}, "timestamptz": {}, "year": {},
		"interval": {}, "timetz": {},
	}
)

// ClassifyDeclared maps a relational column to a category from its declared
// SQL type and key role. Key roles and identifier-like names win over the
// declared type, so such columns never become aggregation operands.
func ClassifyDeclared(name, declaredType, keyRole string) Category {
	if IsKeyRole(keyRole) || strings.Contains(strings.ToLower(name), "id") {
		return CategoryKey
	}
	base := baseType(declaredType)
	switch {
	case base == "":
		return CategoryOther
	case isNumericType(base):
		return CategoryNumeric
	case isCategoricalType(base):
		return CategoryCategorical
	case isTemporalType(base):
		return CategoryTemporal
	default:
		return CategoryOther
	}
}

func IsKeyRole(keyRole string) bool {
	switch strings.ToUpper(strings.TrimSpace(keyRole)) {
	case "PRI", "MUL":
		return true
	default:
		return false
	}
}

// ClassifyValue maps a document field to a category from the runtime type of
// a decoded value. Fields named id or _id are always keys.
func ClassifyValue(name string, value any) Category {
	if name == "id" || name == "_id" {
		return CategoryKey
	}
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return CategoryNumeric
	case string:
		return CategoryCategorical
	case time.Time:
		return CategoryTemporal
	default:
		return CategoryOther
	}
}

func baseType(declared string) string {
	base := strings.ToLower(strings.TrimSpace(declared))
	if idx := strings.Index(base, "("); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(base), "[]"))
	for _, suffix := range []string{" unsigned", " zerofill", " signed"} {
		base = strings.TrimSuffix(base, suffix)
	}
	return strings.TrimSpace(base)
}

func isNumericType(base string) bool {
	if _, ok := numericTypes[base]; ok {
		return true
	}
	fields := strings.Fields(base)
	if len(fields) == 0 {
		return false
	}
	_, ok := numericTypes[fields[0]]
	return ok
}

func isCategoricalType(base string) bool {
	if _, ok := categoricalTypes[base]; ok {
		return true
	}
	first := strings.Fields(base)[0]
	if _, ok := categoricalTypes[first]; ok {
		return true
	}
	return strings.HasSuffix(first, "text") || strings.HasPrefix(first, "varchar")
}

func isTemporalType(base string) bool {
	if _, ok := temporalTypes[base]; ok {
		return true
	}
	first := strings.Fields(base)[0]
	if _, ok := temporalTypes[first]; ok {
		return true
	}
	return strings.HasPrefix(first, "timestamp")
}
