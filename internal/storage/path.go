package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

const parquetSuffix = ".parquet"

// TablePrefix is the key prefix holding every data file of a lake table,
// e.g. "orders/".
func TablePrefix(tableName string) (string, error) {
	if err := validatePathComponent(tableName, "table name"); err != nil {
		return "", err
	}
	return tableName + "/", nil
}

// TableFromKey returns the table owning a data file key. Keys outside the
// <table>/.../*.parquet layout are rejected.
func TableFromKey(key string) (string, bool) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if !strings.HasSuffix(key, parquetSuffix) {
		return "", false
	}
	table, rest, ok := strings.Cut(key, "/")
	if !ok || rest == "" {
		return "", false
	}
	if validatePathComponent(table, "table name") != nil {
		return "", false
	}
	return table, true
}

func IsDataFile(key string) bool {
	return strings.HasSuffix(key, parquetSuffix)
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
