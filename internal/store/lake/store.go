package lake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/parquet-go/parquet-go"

	"github.com/chatdb/chatdb/internal/profile"
	"github.com/chatdb/chatdb/internal/storage"
)

// Store exposes parquet tables kept in an object store. Every object under
// <table>/ ending in .parquet is a data file of that table and all files of a
// table share one schema.
type Store struct {
	Objects storage.ObjectStore
}

func New(objects storage.ObjectStore) *Store {
	return &Store{Objects: objects}
}

func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.Objects.List(ctx, ""); err != nil {
		return fmt.Errorf("%w: list lake objects: %v", profile.ErrSourceUnavailable, err)
	}
	return nil
}

func (s *Store) ListSources(ctx context.Context) ([]string, error) {
	infos, err := s.Objects.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("%w: list lake objects: %v", profile.ErrSourceUnavailable, err)
	}
	seen := map[string]struct{}{}
	tables := make([]string, 0)
	for _, info := range infos {
		table, ok := storage.TableFromKey(info.Key)
		if !ok {
			continue
		}
		if _, dup := seen[table]; dup {
			continue
		}
		seen[table] = struct{}{}
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables, nil
}

func (s *Store) DescribeTable(ctx context.Context, table string) ([]profile.ColumnInfo, error) {
	files, err := s.tableFiles(ctx, table)
	if err != nil {
		return nil, err
	}
	file, err := s.open(ctx, files[0])
	if err != nil {
		return nil, err
	}
	fields := file.Schema().Fields()
	infos := make([]profile.ColumnInfo, 0, len(fields))
	for _, field := range fields {
		infos = append(infos, profile.ColumnInfo{Name: field.Name(), DeclaredType: declaredType(field)})
	}
	return infos, nil
}

// SampleRows reads up to limit rows, walking the table files in key order.
func (s *Store) SampleRows(ctx context.Context, table string, limit int) ([]string, [][]any, error) {
	files, err := s.tableFiles(ctx, table)
	if err != nil {
		return nil, nil, err
	}
	var columns []string
	rows := make([][]any, 0, limit)
	for _, info := range files {
		if len(rows) >= limit {
			break
		}
		file, err := s.open(ctx, info)
		if err != nil {
			return nil, nil, err
		}
		if columns == nil {
			for _, field := range file.Schema().Fields() {
				columns = append(columns, field.Name())
			}
		}
		read, err := readRows(file, columns, limit-len(rows))
		if err != nil {
			return nil, nil, fmt.Errorf("read %q: %w", info.Key, err)
		}
		rows = append(rows, read...)
	}
	return columns, rows, nil
}

func readRows(file *parquet.File, columns []string, limit int) ([][]any, error) {
	reader := parquet.NewReader(file)
	defer func() { _ = reader.Close() }()

	rows := make([][]any, 0, limit)
	for len(rows) < limit {
		record := make(map[string]any)
		if err := reader.Read(&record); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		row := make([]any, len(columns))
		for i, name := range columns {
			row[i] = record[name]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Store) tableFiles(ctx context.Context, table string) ([]storage.ObjectInfo, error) {
	if s.Objects == nil {
		return nil, fmt.Errorf("object store is required")
	}
	prefix, err := storage.TablePrefix(table)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", profile.ErrSourceNotFound, err)
	}
	infos, err := s.Objects.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: list %q: %v", profile.ErrSourceUnavailable, prefix, err)
	}
	files := make([]storage.ObjectInfo, 0, len(infos))
	for _, info := range infos {
		if owner, ok := storage.TableFromKey(info.Key); ok && owner == table {
			files = append(files, info)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: table %q has no data files", profile.ErrSourceNotFound, table)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// open reads the parquet footer through ReadAt when the object supports it
// and buffers the object otherwise. Listings that omit sizes are completed
// with a Stat.
func (s *Store) open(ctx context.Context, info storage.ObjectInfo) (*parquet.File, error) {
	if info.Size <= 0 {
		stat, err := s.Objects.Stat(ctx, info.Key)
		if err != nil {
			return nil, fmt.Errorf("stat object %q: %w", info.Key, err)
		}
		info.Size = stat.Size
	}
	reader, err := s.Objects.Get(ctx, info.Key)
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", info.Key, err)
	}
	defer func() { _ = reader.Close() }()

	var (
		at   io.ReaderAt
		size = info.Size
	)
	if ra, ok := reader.(io.ReaderAt); ok && size > 0 {
		at = ra
	} else {
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("read object %q: %w", info.Key, err)
		}
		at, size = bytes.NewReader(data), int64(len(data))
	}
	file, err := parquet.OpenFile(at, size)
	if err != nil {
		return nil, fmt.Errorf("open parquet %q: %w", info.Key, err)
	}
	return file, nil
}

// declaredType names a parquet column with the SQL type DuckDB would report
// for it, so lake tables classify like relational ones.
func declaredType(field parquet.Field) string {
	if !field.Leaf() {
		return "struct"
	}
	typ := field.Type()
	if lt := typ.LogicalType(); lt != nil {
		switch {
		case lt.UTF8 != nil, lt.Enum != nil:
			return "varchar"
		case lt.Decimal != nil:
			return "decimal"
		case lt.Date != nil:
			return "date"
		case lt.Time != nil:
			return "time"
		case lt.Timestamp != nil:
			return "timestamp"
		case lt.Integer != nil:
			return "bigint"
		case lt.UUID != nil:
			return "uuid"
		case lt.Json != nil:
			return "json"
		}
	}
	switch typ.Kind() {
	case parquet.Boolean:
		return "boolean"
	case parquet.Int32:
		return "integer"
	case parquet.Int64:
		return "bigint"
	case parquet.Int96:
		return "timestamp"
	case parquet.Float:
		return "float"
	case parquet.Double:
		return "double"
	default:
		return "blob"
	}
}
