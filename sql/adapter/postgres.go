package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"constellation"
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgreSQLAdapter implements the Adapter interface for PostgreSQL.
type PostgreSQLAdapter struct {
	*BaseSQLAdapter
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter.
func NewPostgreSQLAdapter() *PostgreSQLAdapter {
	return &PostgreSQLAdapter{
		BaseSQLAdapter: NewBaseSQLAdapter("postgres", "postgresql"),
	}
}

// Connect establishes a connection to PostgreSQL.
func (a *PostgreSQLAdapter) Connect(ctx context.Context, config *constellation.Config) (*sql.DB, error) {
	connStr := a.ConnectionString(config)
	return a.BaseSQLAdapter.Connect(ctx, config, connStr)
}

// ConnectionString constructs a PostgreSQL key/value connection string.
// Options are appended in key order.
func (a *PostgreSQLAdapter) ConnectionString(config *constellation.Config) string {
	var parts []string

	if config.Host != "" {
		parts = append(parts, "host="+pgValue(config.Host))
	}
	if config.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", config.Port))
	}
	if config.Database != "" {
		parts = append(parts, "dbname="+pgValue(config.Database))
	}
	if config.Username != "" {
		parts = append(parts, "user="+pgValue(config.Username))
	}
	if config.Password != "" {
		parts = append(parts, "password="+pgValue(config.Password))
	}

	sslMode := config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	parts = append(parts, "sslmode="+sslMode)

	if config.ConnectTimeout > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(int(config.ConnectTimeout.Seconds())))
	}

	keys := make([]string, 0, len(config.Options))
	for key := range config.Options {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+"="+pgValue(config.Options[key]))
	}

	return strings.Join(parts, " ")
}

// pgValue quotes a connection string value when it contains spaces or
// quotes.
func pgValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Rebind rewrites '?' placeholders into $1, $2, ... outside of quoted
// literals.
func (a *PostgreSQLAdapter) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// LikeOperator is case-insensitive, matching MySQL and SQLite defaults.
func (a *PostgreSQLAdapter) LikeOperator() string {
	return "ILIKE"
}

// VersionQuery returns the server version probe.
func (a *PostgreSQLAdapter) VersionQuery() string {
	return "SHOW server_version"
}

func (a *PostgreSQLAdapter) ParseServerInfo(raw string) ServerInfo {
	return ServerInfo{Family: FamilyPostgreSQL, Version: ParseVersion(raw), Raw: raw}
}

func (a *PostgreSQLAdapter) SupportsJSON(info ServerInfo) bool {
	return supportsJSON(info)
}

func (a *PostgreSQLAdapter) DocumentColumnType(native bool) string {
	if native {
		return "JSONB"
	}
	return "TEXT"
}

// DocumentSearch walks every string value of a JSONB column with a
// jsonpath query.
func (a *PostgreSQLAdapter) DocumentSearch(column string, native bool) string {
	if native {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_path_query(%s, 'strict $.**') AS v "+
			"WHERE jsonb_typeof(v) = 'string' AND v #>> '{}' ILIKE ? ESCAPE '%s')", column, LikeEscape)
	}
	return fmt.Sprintf("%s ILIKE ? ESCAPE '%s'", column, LikeEscape)
}

func (a *PostgreSQLAdapter) CreateTable(spec TableSpec) []string {
	return createTableStandard(a.QuoteIdentifier, a.columnType, spec)
}

func (a *PostgreSQLAdapter) columnType(col ColumnSpec, nativeDocument bool) string {
	switch col.Type {
	case ColumnID:
		return "CHAR(36)"
	case ColumnString:
		return fmt.Sprintf("VARCHAR(%d)", sizeOr(col.Size, 255))
	case ColumnText:
		return "TEXT"
	case ColumnTimestamp:
		return "TIMESTAMP"
	case ColumnDocument:
		return a.DocumentColumnType(nativeDocument)
	}
	return "TEXT"
}

// InsertIgnore skips rows that would violate a key.
func (a *PostgreSQLAdapter) InsertIgnore(table string, columns []string, source string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) %s ON CONFLICT DO NOTHING", table, strings.Join(columns, ", "), source)
}

// IsUniqueConstraintViolation checks the SQLSTATE before falling back to
// message matching.
func (a *PostgreSQLAdapter) IsUniqueConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation
	}
	return a.BaseSQLAdapter.IsUniqueConstraintViolation(err)
}

func (a *PostgreSQLAdapter) IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgForeignKeyViolation
	}
	return a.BaseSQLAdapter.IsForeignKeyViolation(err)
}
