package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-sql-driver/mysql"

	"constellation"
)

// MySQL server error numbers.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrRowIsReferenced = 1451
	mysqlErrNoReferencedRow = 1452
)

// MySQLAdapter implements the Adapter interface for MySQL and MariaDB.
type MySQLAdapter struct {
	*BaseSQLAdapter
}

// NewMySQLAdapter creates a new MySQL adapter.
func NewMySQLAdapter() *MySQLAdapter {
	return &MySQLAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("mysql", "mysql"),
	}
}

// Connect establishes a connection to MySQL.
func (a *MySQLAdapter) Connect(ctx context.Context, config *constellation.Config) (*sql.DB, error) {
	connStr := a.ConnectionString(config)
	return a.BaseSQLAdapter.Connect(ctx, config, connStr)
}

// ConnectionString constructs a MySQL DSN through the driver's Config so
// credentials are escaped properly.
func (a *MySQLAdapter) ConnectionString(config *constellation.Config) string {
	cfg := mysql.NewConfig()
	cfg.User = config.Username
	cfg.Passwd = config.Password
	cfg.DBName = config.Database
	cfg.ParseTime = true

	if config.Host != "" || config.Port > 0 {
		host := config.Host
		if host == "" {
			host = "localhost"
		}
		port := config.Port
		if port == 0 {
			port = 3306
		}
		cfg.Net = "tcp"
		cfg.Addr = fmt.Sprintf("%s:%d", host, port)
	}
	if config.ConnectTimeout > 0 {
		cfg.Timeout = config.ConnectTimeout
	}

	cfg.Params = map[string]string{}
	hasCharset := false
	for key, value := range config.Options {
		if strings.EqualFold(key, "charset") {
			hasCharset = true
		}
		cfg.Params[key] = value
	}
	if !hasCharset {
		cfg.Params["charset"] = "utf8mb4"
	}

	return cfg.FormatDSN()
}

// QuoteIdentifier quotes a MySQL identifier.
func (a *MySQLAdapter) QuoteIdentifier(identifier string) string {
	return fmt.Sprintf("`%s`", strings.ReplaceAll(identifier, "`", "``"))
}

// VersionQuery returns the server version probe.
func (a *MySQLAdapter) VersionQuery() string {
	return "SELECT VERSION()"
}

// ParseServerInfo recognizes MariaDB by name, case-insensitively. MariaDB
// servers may prefix their version with "5.5.5-" for replication
// compatibility; the prefix is dropped.
func (a *MySQLAdapter) ParseServerInfo(raw string) ServerInfo {
	info := ServerInfo{Family: FamilyMySQL, Raw: raw}
	version := raw
	if strings.Contains(strings.ToLower(raw), "mariadb") {
		info.Family = FamilyMariaDB
		version = strings.TrimPrefix(version, "5.5.5-")
	}
	info.Version = ParseVersion(version)
	return info
}

func (a *MySQLAdapter) SupportsJSON(info ServerInfo) bool {
	return supportsJSON(info)
}

func (a *MySQLAdapter) DocumentColumnType(native bool) string {
	if native {
		return "JSON"
	}
	return "LONGTEXT"
}

// DocumentSearch matches any string value of a JSON column with JSON_SEARCH,
// or the raw text otherwise.
func (a *MySQLAdapter) DocumentSearch(column string, native bool) string {
	if native {
		return fmt.Sprintf("JSON_SEARCH(%s, 'one', ?, '%s') IS NOT NULL", column, LikeEscape)
	}
	return fmt.Sprintf("%s LIKE ? ESCAPE '%s'", column, LikeEscape)
}

// CreateTable renders MySQL DDL with inline keys.
func (a *MySQLAdapter) CreateTable(spec TableSpec) []string {
	var defs []string
	var uniques []string
	for _, col := range spec.Columns {
		defs = append(defs, columnDefinition(a.QuoteIdentifier, a.columnType, col, spec.NativeDocument, false))
		if col.Unique {
			uniques = append(uniques, col.Name)
		}
	}
	if len(spec.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(a.QuoteIdentifier, spec.PrimaryKey)))
	}
	sort.Strings(uniques)
	for _, u := range uniques {
		defs = append(defs, fmt.Sprintf("UNIQUE KEY %s (%s)", a.QuoteIdentifier(u), a.QuoteIdentifier(u)))
	}
	for _, idx := range spec.Indexes {
		defs = append(defs, fmt.Sprintf("KEY %s (%s)", a.QuoteIdentifier(idx.Name), quoteAll(a.QuoteIdentifier, idx.Columns)))
	}

	return []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
		a.QuoteIdentifier(spec.Name), strings.Join(defs, ",\n\t"))}
}

func (a *MySQLAdapter) columnType(col ColumnSpec, nativeDocument bool) string {
	switch col.Type {
	case ColumnID:
		return "CHAR(36)"
	case ColumnString:
		return fmt.Sprintf("VARCHAR(%d)", sizeOr(col.Size, 255))
	case ColumnText:
		return "TEXT"
	case ColumnTimestamp:
		return "DATETIME(6)"
	case ColumnDocument:
		return a.DocumentColumnType(nativeDocument)
	}
	return "TEXT"
}

// InsertIgnore skips rows that would violate a key.
func (a *MySQLAdapter) InsertIgnore(table string, columns []string, source string) string {
	return fmt.Sprintf("INSERT IGNORE INTO %s (%s) %s", table, strings.Join(columns, ", "), source)
}

// Upsert uses ON DUPLICATE KEY UPDATE.
func (a *MySQLAdapter) Upsert(table, key string, columns []string) string {
	var sets []string
	for _, c := range columns {
		if c == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		table, strings.Join(columns, ", "), Placeholders(len(columns)), strings.Join(sets, ", "))
}

// IsUniqueConstraintViolation checks the server error number before falling
// back to message matching.
func (a *MySQLAdapter) IsUniqueConstraintViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDuplicateEntry
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *MySQLAdapter) IsForeignKeyViolation(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrRowIsReferenced || myErr.Number == mysqlErrNoReferencedRow
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}

func sizeOr(size, fallback int) int {
	if size > 0 {
		return size
	}
	return fallback
}

// DropTable returns the statement removing table.
func (a *MySQLAdapter) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + a.QuoteIdentifier(table)
}
