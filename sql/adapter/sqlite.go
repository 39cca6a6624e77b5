package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-sqlite3"

	"constellation"
)

// SQLiteAdapter implements the Adapter interface for SQLite.
type SQLiteAdapter struct {
	*BaseSQLAdapter
}

// NewSQLiteAdapter creates a new SQLite adapter.
func NewSQLiteAdapter() *SQLiteAdapter {
	return &SQLiteAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("sqlite3", "sqlite"),
	}
}

// Connect establishes a connection to SQLite. A single connection is used
// unless configured otherwise, and foreign keys are switched on.
func (a *SQLiteAdapter) Connect(ctx context.Context, config *constellation.Config) (*sql.DB, error) {
	cfg := *config
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 1
	}
	if a.inMemory(config) {
		// The database lives and dies with its only connection.
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}

	db, err := a.BaseSQLAdapter.Connect(ctx, &cfg, a.ConnectionString(config))
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return db, nil
}

func (a *SQLiteAdapter) inMemory(config *constellation.Config) bool {
	return strings.HasPrefix(a.path(config), ":memory:")
}

func (a *SQLiteAdapter) path(config *constellation.Config) string {
	dbPath := config.FilePath
	if dbPath == "" {
		dbPath = config.Database
	}
	if dbPath == "" {
		return ":memory:"
	}
	if !filepath.IsAbs(dbPath) && !strings.HasPrefix(dbPath, ":") && !strings.HasPrefix(dbPath, "file:") {
		dbPath = filepath.Clean(dbPath)
	}
	return dbPath
}

// ConnectionString constructs a SQLite connection string. The file path
// falls back to the database name, then to an in-memory database.
func (a *SQLiteAdapter) ConnectionString(config *constellation.Config) string {
	dbPath := a.path(config)

	keys := make([]string, 0, len(config.Options))
	for key := range config.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var params []string
	for _, key := range keys {
		params = append(params, fmt.Sprintf("%s=%s", key, config.Options[key]))
	}

	if len(params) > 0 {
		return fmt.Sprintf("%s?%s", dbPath, strings.Join(params, "&"))
	}
	return dbPath
}

// VersionQuery returns the library version probe.
func (a *SQLiteAdapter) VersionQuery() string {
	return "SELECT sqlite_version()"
}

func (a *SQLiteAdapter) ParseServerInfo(raw string) ServerInfo {
	return ServerInfo{Family: FamilySQLite, Version: ParseVersion(raw), Raw: raw}
}

// SupportsJSON reports built-in JSON functions (3.38 and later).
func (a *SQLiteAdapter) SupportsJSON(info ServerInfo) bool {
	return supportsJSON(info)
}

func (a *SQLiteAdapter) DocumentColumnType(native bool) string {
	if native {
		return "JSON"
	}
	return "TEXT"
}

// DocumentSearch walks every text atom of the document with json_tree.
func (a *SQLiteAdapter) DocumentSearch(column string, native bool) string {
	if native {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM json_tree(%s) AS j WHERE j.type = 'text' AND j.atom LIKE ? ESCAPE '%s')",
			column, LikeEscape)
	}
	return fmt.Sprintf("%s LIKE ? ESCAPE '%s'", column, LikeEscape)
}

func (a *SQLiteAdapter) CreateTable(spec TableSpec) []string {
	return createTableStandard(a.QuoteIdentifier, a.columnType, spec)
}

func (a *SQLiteAdapter) columnType(col ColumnSpec, nativeDocument bool) string {
	switch col.Type {
	case ColumnID:
		return "CHAR(36)"
	case ColumnString:
		return fmt.Sprintf("VARCHAR(%d)", sizeOr(col.Size, 255))
	case ColumnText:
		return "TEXT"
	case ColumnTimestamp:
		return "DATETIME"
	case ColumnDocument:
		return a.DocumentColumnType(nativeDocument)
	}
	return "TEXT"
}

// InsertIgnore skips rows that would violate a key.
func (a *SQLiteAdapter) InsertIgnore(table string, columns []string, source string) string {
	return fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) %s", table, strings.Join(columns, ", "), source)
}

// IsUniqueConstraintViolation checks the extended result code before
// falling back to message matching.
func (a *SQLiteAdapter) IsUniqueConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
				sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey)
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *SQLiteAdapter) IsForeignKeyViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

// IsConnectionError checks if an error is a connection-related error.
func (a *SQLiteAdapter) IsConnectionError(err error) bool {
	return matchesAny(err,
		"database is locked",
		"database schema has changed",
		"no such file",
		"unable to open database",
	)
}
