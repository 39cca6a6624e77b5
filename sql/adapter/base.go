package adapter

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"constellation"
)

// BaseSQLAdapter provides common functionality for all SQL adapters.
type BaseSQLAdapter struct {
	db         *sql.DB
	driverName string
	name       AdapterName
}

// NewBaseSQLAdapter creates a new base SQL adapter.
func NewBaseSQLAdapter(driverName string, name AdapterName) *BaseSQLAdapter {
	return &BaseSQLAdapter{
		driverName: driverName,
		name:       name,
	}
}

// Name returns the adapter name.
func (a *BaseSQLAdapter) Name() AdapterName {
	return a.name
}

// DriverName returns the database/sql driver name.
func (a *BaseSQLAdapter) DriverName() string {
	return a.driverName
}

// Connect opens the pool, applies pool settings and verifies the connection.
func (a *BaseSQLAdapter) Connect(ctx context.Context, config *constellation.Config, connectionString string) (*sql.DB, error) {
	db, err := sql.Open(a.driverName, connectionString)
	if err != nil {
		return nil, constellation.WrapConnectionError(err, "connect", a.driverName, config.Host)
	}

	a.configureConnectionPool(db, config)

	pingCtx := ctx
	if config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, config.ConnectTimeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, constellation.WrapConnectionError(err, "ping", a.driverName, config.Host)
	}

	a.db = db
	return db, nil
}

func (a *BaseSQLAdapter) configureConnectionPool(db *sql.DB, config *constellation.Config) {
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}
}

// Close closes the database connection.
func (a *BaseSQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// DB returns the underlying database connection.
func (a *BaseSQLAdapter) DB() *sql.DB {
	return a.db
}

// QuoteIdentifier quotes an identifier with ANSI double quotes.
func (a *BaseSQLAdapter) QuoteIdentifier(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

// Rebind returns query unchanged; '?' is the native placeholder.
func (a *BaseSQLAdapter) Rebind(query string) string {
	return query
}

func (a *BaseSQLAdapter) LikeOperator() string {
	return "LIKE"
}

// DropTable returns the statement removing table.
func (a *BaseSQLAdapter) DropTable(table string) string {
	return "DROP TABLE IF EXISTS " + a.QuoteIdentifier(table)
}

// Upsert returns an insert that overwrites the non-key columns when key
// already exists.
func (a *BaseSQLAdapter) Upsert(table, key string, columns []string) string {
	var sets []string
	for _, c := range columns {
		if c == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		table, strings.Join(columns, ", "), Placeholders(len(columns)), key, strings.Join(sets, ", "))
}

// Common error checking methods - similar patterns across adapters
func (a *BaseSQLAdapter) IsConnectionError(err error) bool {
	return matchesAny(err,
		"connection refused",
		"connection reset",
		"connection closed",
		"network is unreachable",
		"timeout",
		"driver: bad connection",
	)
}

func (a *BaseSQLAdapter) IsUniqueConstraintViolation(err error) bool {
	return matchesAny(err,
		"unique constraint",
		"duplicate key",
		"duplicate entry",
	)
}

func (a *BaseSQLAdapter) IsForeignKeyViolation(err error) bool {
	return matchesAny(err,
		"foreign key constraint",
		"violates foreign key",
	)
}

func matchesAny(err error, patterns ...string) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, pattern := range patterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// columnTypeFunc maps a portable column to its dialect type.
type columnTypeFunc func(col ColumnSpec, nativeDocument bool) string

// createTableStandard renders a CREATE TABLE plus separate CREATE INDEX
// statements, as PostgreSQL and SQLite expect.
func createTableStandard(quote func(string) string, columnType columnTypeFunc, spec TableSpec) []string {
	var defs []string
	for _, col := range spec.Columns {
		defs = append(defs, columnDefinition(quote, columnType, col, spec.NativeDocument, true))
	}
	if len(spec.PrimaryKey) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteAll(quote, spec.PrimaryKey)))
	}

	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		quote(spec.Name), strings.Join(defs, ",\n\t"))}
	for _, idx := range spec.Indexes {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)",
			quote(spec.Name+"_"+idx.Name), quote(spec.Name), quoteAll(quote, idx.Columns)))
	}
	return stmts
}

func columnDefinition(quote func(string) string, columnType columnTypeFunc, col ColumnSpec, nativeDocument, inlineUnique bool) string {
	def := quote(col.Name) + " " + columnType(col, nativeDocument)
	if col.Nullable {
		def += " NULL"
	} else {
		def += " NOT NULL"
	}
	if col.Default != "" {
		def += " DEFAULT '" + strings.ReplaceAll(col.Default, "'", "''") + "'"
	}
	if col.Unique && inlineUnique {
		def += " UNIQUE"
	}
	return def
}

func quoteAll(quote func(string) string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

// Placeholders returns n comma separated '?' placeholders.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// LikeEscape is the escape character used by every LIKE predicate.
const LikeEscape = "!"

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// ContainsPattern returns a LIKE pattern matching term anywhere, with the
// wildcard characters of term escaped.
func ContainsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}
