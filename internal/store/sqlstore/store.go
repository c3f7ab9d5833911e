package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/chatdb/chatdb/internal/profile"
	"github.com/chatdb/chatdb/internal/query"
	"github.com/chatdb/chatdb/internal/render"
)

type DBConfig struct {
	Dialect         string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration
}

type Store struct {
	db      *sql.DB
	dialect render.Dialect
}

func driverName(d render.Dialect) string {
	switch d.Name {
	case render.MySQL.Name:
		return "mysql"
	case render.Postgres.Name:
		return "pgx"
	default:
		return "duckdb"
	}
}

func Open(ctx context.Context, cfg DBConfig) (*Store, error) {
	dialect, err := render.DialectFor(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if cfg.DSN == "" && dialect.Name != render.DuckDB.Name {
		return nil, fmt.Errorf("sql dsn is required")
	}

	db, err := sql.Open(driverName(dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", dialect.Name, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", dialect.Name, err)
	}

	return New(db, dialect), nil
}

func New(db *sql.DB, dialect render.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

func (s *Store) Dialect() render.Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping %s: %v", profile.ErrSourceUnavailable, s.dialect.Name, err)
	}
	return nil
}

func (s *Store) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, listTablesSQL(s.dialect))
	if err != nil {
		return nil, fmt.Errorf("%w: list tables: %v", profile.ErrSourceUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	return names, nil
}

func (s *Store) DescribeTable(ctx context.Context, table string) ([]profile.ColumnInfo, error) {
	rows, err := s.db.QueryContext(ctx, describeSQL(s.dialect), table)
	if err != nil {
		return nil, fmt.Errorf("describe table: %w", err)
	}
	defer func() { _ = rows.Close() }()

	infos := make([]profile.ColumnInfo, 0)
	for rows.Next() {
		var info profile.ColumnInfo
		var keyRole sql.NullString
		if err := rows.Scan(&info.Name, &info.DeclaredType, &keyRole); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		info.KeyRole = keyRole.String
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate columns: %w", err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: table %q", profile.ErrSourceNotFound, table)
	}
	return infos, nil
}

func (s *Store) SampleRows(ctx context.Context, table string, limit int) ([]string, [][]any, error) {
	sqlText := fmt.Sprintf("SELECT * FROM %s LIMIT %d", s.dialect.QuoteIdent(table), limit)
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, nil, fmt.Errorf("sample rows: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return ScanRows(rows)
}

func (s *Store) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if request.Query.Kind != query.KindSQL {
		return query.Result{}, fmt.Errorf("sql store cannot execute %s queries", request.Query.Kind)
	}
	sqlText := StripTrailingSemicolons(request.Query.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, resultRows, err := ScanRows(rows)
	if err != nil {
		return query.Result{}, err
	}
	return query.Result{Columns: columns, Rows: resultRows, Duration: time.Since(start)}, nil
}

// ScanRows reads every remaining row into generic values. Byte slices are
// returned as strings.
func ScanRows(rows *sql.Rows) ([]string, [][]any, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return columns, resultRows, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
