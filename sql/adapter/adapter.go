package adapter

import (
	"context"
	"database/sql"

	"constellation"
)

// AdapterName identifies a registered adapter.
type AdapterName string

// Adapter represents a SQL database adapter (PostgreSQL, MySQL/MariaDB,
// SQLite). Everything that differs between dialects goes through it; the
// repositories only ever write portable SQL with '?' placeholders.
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() AdapterName

	// DriverName returns the database/sql driver name.
	DriverName() string

	// Connect establishes a connection to the database.
	Connect(ctx context.Context, config *constellation.Config) (*sql.DB, error)

	// ConnectionString builds the connection string from config.
	ConnectionString(config *constellation.Config) string

	// Dialect
	QuoteIdentifier(identifier string) string
	Rebind(query string) string
	LikeOperator() string

	// Document capability
	VersionQuery() string
	ParseServerInfo(raw string) ServerInfo
	SupportsJSON(info ServerInfo) bool
	DocumentColumnType(native bool) string
	DocumentSearch(column string, native bool) string

	// Statements
	CreateTable(spec TableSpec) []string
	DropTable(table string) string
	InsertIgnore(table string, columns []string, source string) string
	Upsert(table, key string, columns []string) string

	// Error classification
	IsUniqueConstraintViolation(err error) bool
	IsForeignKeyViolation(err error) bool
	IsConnectionError(err error) bool

	// Close releases any resources held by the adapter.
	Close() error
}

// ColumnType is the portable type of a column in a TableSpec.
type ColumnType int

const (
	ColumnID ColumnType = iota
	ColumnString
	ColumnText
	ColumnTimestamp
	ColumnDocument
)

// ColumnSpec describes one column.
type ColumnSpec struct {
	Name     string
	Type     ColumnType
	Size     int
	Nullable bool
	Unique   bool
	Default  string
}

// IndexSpec describes a secondary index.
type IndexSpec struct {
	Name    string
	Columns []string
}

// TableSpec is the portable description of a table, rendered into DDL by
// the adapter.
type TableSpec struct {
	Name       string
	Columns    []ColumnSpec
	PrimaryKey []string
	Indexes    []IndexSpec

	// NativeDocument selects the JSON column type for ColumnDocument columns.
	NativeDocument bool
}

var (
	_ Adapter = (*MySQLAdapter)(nil)
	_ Adapter = (*PostgreSQLAdapter)(nil)
	_ Adapter = (*SQLiteAdapter)(nil)
)
