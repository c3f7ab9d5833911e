package sqlstore

import "github.com/chatdb/chatdb/internal/render"

const (
	mysqlListTables = `
SELECT TABLE_NAME
FROM information_schema.TABLES
WHERE TABLE_SCHEMA = DATABASE()
ORDER BY TABLE_NAME`

	mysqlDescribe = `
SELECT COLUMN_NAME, COLUMN_TYPE, COLUMN_KEY
FROM information_schema.COLUMNS
WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`

	postgresListTables = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`

	// PRI sorts after MUL, so MAX prefers the primary key role.
	postgresDescribe = `
SELECT c.column_name, c.data_type,
       MAX(CASE tc.constraint_type WHEN 'PRIMARY KEY' THEN 'PRI' WHEN 'FOREIGN KEY' THEN 'MUL' END)
FROM information_schema.columns c
LEFT JOIN information_schema.key_column_usage k
  ON k.table_schema = c.table_schema AND k.table_name = c.table_name AND k.column_name = c.column_name
LEFT JOIN information_schema.table_constraints tc
  ON tc.constraint_schema = k.constraint_schema AND tc.constraint_name = k.constraint_name
WHERE c.table_schema = current_schema() AND c.table_name = $1
GROUP BY c.column_name, c.data_type, c.ordinal_position
ORDER BY c.ordinal_position`

	duckdbListTables = `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = current_schema()
ORDER BY table_name`

	duckdbDescribe = `
SELECT column_name, data_type, NULL
FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = ?
ORDER BY ordinal_position`
)

func listTablesSQL(d render.Dialect) string {
	switch d.Name {
	case render.MySQL.Name:
		return mysqlListTables
	case render.Postgres.Name:
		return postgresListTables
	default:
		return duckdbListTables
	}
}

func describeSQL(d render.Dialect) string {
	switch d.Name {
	case render.MySQL.Name:
		return mysqlDescribe
	case render.Postgres.Name:
		return postgresDescribe
	default:
		return duckdbDescribe
	}
}
