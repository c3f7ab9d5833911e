package lake

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/store/sqlstore"
)

// Execute downloads the source table's files, exposes them to an in-memory
// DuckDB as a view named after the table and runs the rendered SQL.
func (s *Store) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if request.Query.Kind != query.KindSQL {
		return query.Result{}, fmt.Errorf("lake cannot execute %s queries", request.Query.Kind)
	}
	sqlText := sqlstore.StripTrailingSemicolons(request.Query.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	files, err := s.tableFiles(ctx, request.Query.Source)
	if err != nil {
		return query.Result{}, err
	}

	start := time.Now()
	workDir, err := os.MkdirTemp("", "chatdb-lake-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make([]string, 0, len(files))
	for index, file := range files {
		reader, err := s.Objects.Get(ctx, file.Key)
		if err != nil {
			return query.Result{}, fmt.Errorf("get object %q: %w", file.Key, err)
		}

		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(request.Query.Source), index))
		if err := writeFile(localPath, reader); err != nil {
			_ = reader.Close()
			return query.Result{}, fmt.Errorf("write local parquet file %q: %w", localPath, err)
		}
		if err := reader.Close(); err != nil {
			return query.Result{}, fmt.Errorf("close object %q: %w", file.Key, err)
		}
		localPaths = append(localPaths, localPath)
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	viewSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s)`, quoteIdent(request.Query.Source), quoteStringArray(localPaths))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		return query.Result{}, fmt.Errorf("create view for table %q: %w", request.Query.Source, err)
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}
	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := sqlstore.ScanRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{Columns: columns, Rows: resultRows, Duration: time.Since(start)}, nil
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
