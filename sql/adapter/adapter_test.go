package adapter

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		raw  string
		want Version
	}{
		{"8.0.36", Version{8, 0, 36}},
		{"5.7.44-log", Version{5, 7, 44}},
		{"16.2 (Debian 16.2-1.pgdg120+2)", Version{16, 2, 0}},
		{"3.45.1", Version{3, 45, 1}},
		{"garbage", Version{}},
		{"", Version{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseVersion(tt.raw), tt.raw)
	}
}

func TestVersionAtLeast(t *testing.T) {
	assert.True(t, Version{5, 7, 0}.AtLeast(Version{5, 7, 0}))
	assert.True(t, Version{8, 0, 0}.AtLeast(Version{5, 7, 0}))
	assert.False(t, Version{5, 6, 51}.AtLeast(Version{5, 7, 0}))
	assert.False(t, Version{10, 1, 48}.AtLeast(Version{10, 2, 0}))
	assert.Equal(t, "10.2.0", Version{10, 2, 0}.String())
}

func TestMySQLServerInfo(t *testing.T) {
	a := NewMySQLAdapter()

	tests := []struct {
		raw    string
		family Family
		native bool
	}{
		{"8.0.36", FamilyMySQL, true},
		{"5.7.0", FamilyMySQL, true},
		{"5.6.51-log", FamilyMySQL, false},
		{"10.6.12-MariaDB-0ubuntu0.22.04.1", FamilyMariaDB, true},
		{"5.5.5-10.11.6-MariaDB", FamilyMariaDB, true},
		{"10.1.48-mariadb", FamilyMariaDB, false},
		{"not a version", FamilyMySQL, false},
	}
	for _, tt := range tests {
		info := a.ParseServerInfo(tt.raw)
		assert.Equal(t, tt.family, info.Family, tt.raw)
		assert.Equal(t, tt.native, a.SupportsJSON(info), tt.raw)
	}

	assert.Equal(t, Version{10, 11, 6}, a.ParseServerInfo("5.5.5-10.11.6-MariaDB").Version)
}

func TestPostgresAndSQLiteServerInfo(t *testing.T) {
	pg := NewPostgreSQLAdapter()
	assert.True(t, pg.SupportsJSON(pg.ParseServerInfo("16.2")))
	assert.False(t, pg.SupportsJSON(pg.ParseServerInfo("11.22")))

	lite := NewSQLiteAdapter()
	assert.True(t, lite.SupportsJSON(lite.ParseServerInfo("3.45.1")))
	assert.False(t, lite.SupportsJSON(lite.ParseServerInfo("3.37.2")))

	min, ok := MinimumJSONVersion(FamilyMariaDB)
	require.True(t, ok)
	assert.Equal(t, Version{10, 2, 0}, min)
}

func TestDocumentColumnTypes(t *testing.T) {
	assert.Equal(t, "JSON", NewMySQLAdapter().DocumentColumnType(true))
	assert.Equal(t, "LONGTEXT", NewMySQLAdapter().DocumentColumnType(false))
	assert.Equal(t, "JSONB", NewPostgreSQLAdapter().DocumentColumnType(true))
	assert.Equal(t, "TEXT", NewPostgreSQLAdapter().DocumentColumnType(false))
	assert.Equal(t, "JSON", NewSQLiteAdapter().DocumentColumnType(true))
	assert.Equal(t, "TEXT", NewSQLiteAdapter().DocumentColumnType(false))
}

func TestDocumentSearch(t *testing.T) {
	assert.Equal(t, "JSON_SEARCH(c.data, 'one', ?, '!') IS NOT NULL", NewMySQLAdapter().DocumentSearch("c.data", true))
	assert.Equal(t, "c.data LIKE ? ESCAPE '!'", NewMySQLAdapter().DocumentSearch("c.data", false))
	assert.Equal(t, "data ILIKE ? ESCAPE '!'", NewPostgreSQLAdapter().DocumentSearch("data", false))
	assert.Contains(t, NewPostgreSQLAdapter().DocumentSearch("data", true), "jsonb_path_query(data, 'strict $.**')")
	assert.Contains(t, NewSQLiteAdapter().DocumentSearch("data", true), "json_tree(data)")
}

func TestRebind(t *testing.T) {
	pg := NewPostgreSQLAdapter()
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b IN ($2, $3)", pg.Rebind("SELECT * FROM t WHERE a = ? AND b IN (?, ?)"))
	assert.Equal(t, "SELECT '?' FROM t WHERE a = $1", pg.Rebind("SELECT '?' FROM t WHERE a = ?"))

	lite := NewSQLiteAdapter()
	assert.Equal(t, "a = ?", lite.Rebind("a = ?"))
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%acme%", ContainsPattern("acme"))
	assert.Equal(t, "%50!% off!_now!!%", ContainsPattern("50% off_now!"))
	assert.Equal(t, "?, ?, ?", Placeholders(3))
	assert.Equal(t, "", Placeholders(0))
}

func testTable(native bool) TableSpec {
	return TableSpec{
		Name: "constellation_clients",
		Columns: []ColumnSpec{
			{Name: "id", Type: ColumnID},
			{Name: "name", Type: ColumnString, Size: 255},
			{Name: "slug", Type: ColumnString, Size: 255, Unique: true},
			{Name: "status", Type: ColumnString, Size: 50, Default: "active"},
			{Name: "created_at", Type: ColumnTimestamp},
			{Name: "data", Type: ColumnDocument, Nullable: true},
		},
		PrimaryKey:     []string{"id"},
		Indexes:        []IndexSpec{{Name: "status", Columns: []string{"status"}}},
		NativeDocument: native,
	}
}

func TestMySQLCreateTable(t *testing.T) {
	stmts := NewMySQLAdapter().CreateTable(testTable(true))
	require.Len(t, stmts, 1)
	ddl := stmts[0]
	assert.True(t, strings.HasPrefix(ddl, "CREATE TABLE IF NOT EXISTS `constellation_clients`"))
	assert.Contains(t, ddl, "`id` CHAR(36) NOT NULL")
	assert.Contains(t, ddl, "`status` VARCHAR(50) NOT NULL DEFAULT 'active'")
	assert.Contains(t, ddl, "`data` JSON NULL")
	assert.Contains(t, ddl, "UNIQUE KEY `slug` (`slug`)")
	assert.Contains(t, ddl, "KEY `status` (`status`)")
	assert.Contains(t, ddl, "ENGINE=InnoDB")

	text := NewMySQLAdapter().CreateTable(testTable(false))[0]
	assert.Contains(t, text, "`data` LONGTEXT NULL")
}

func TestStandardCreateTable(t *testing.T) {
	stmts := NewPostgreSQLAdapter().CreateTable(testTable(true))
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[0], `"slug" VARCHAR(255) NOT NULL UNIQUE`)
	assert.Contains(t, stmts[0], `"data" JSONB NULL`)
	assert.Contains(t, stmts[0], `"created_at" TIMESTAMP NOT NULL`)
	assert.Contains(t, stmts[0], `PRIMARY KEY ("id")`)
	assert.Equal(t, `CREATE INDEX IF NOT EXISTS "constellation_clients_status" ON "constellation_clients" ("status")`, stmts[1])

	lite := NewSQLiteAdapter().CreateTable(testTable(false))
	assert.Contains(t, lite[0], `"data" TEXT NULL`)
	assert.Contains(t, lite[0], `"created_at" DATETIME NOT NULL`)
}

func TestInsertIgnoreAndUpsert(t *testing.T) {
	cols := []string{"client_id", "tag_id"}
	assert.Equal(t, "INSERT IGNORE INTO ct (client_id, tag_id) VALUES (?, ?)",
		NewMySQLAdapter().InsertIgnore("ct", cols, "VALUES (?, ?)"))
	assert.Equal(t, "INSERT INTO ct (client_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		NewPostgreSQLAdapter().InsertIgnore("ct", cols, "VALUES (?, ?)"))
	assert.Equal(t, "INSERT OR IGNORE INTO ct (client_id, tag_id) SELECT client_id, ? FROM ct WHERE tag_id = ?",
		NewSQLiteAdapter().InsertIgnore("ct", cols, "SELECT client_id, ? FROM ct WHERE tag_id = ?"))

	settings := []string{"name", "value"}
	assert.Equal(t, "INSERT INTO s (name, value) VALUES (?, ?) ON DUPLICATE KEY UPDATE value = VALUES(value)",
		NewMySQLAdapter().Upsert("s", "name", settings))
	assert.Equal(t, "INSERT INTO s (name, value) VALUES (?, ?) ON CONFLICT (name) DO UPDATE SET value = excluded.value",
		NewSQLiteAdapter().Upsert("s", "name", settings))
}

func TestDropTable(t *testing.T) {
	assert.Equal(t, "DROP TABLE IF EXISTS `t`", NewMySQLAdapter().DropTable("t"))
	assert.Equal(t, `DROP TABLE IF EXISTS "t"`, NewSQLiteAdapter().DropTable("t"))
}

func TestConnectionStrings(t *testing.T) {
	cfg := constellation.NewConfig(
		constellation.MySQLOptions("crm", "app", "p@ss")...,
	)
	cfg.Host = "db.internal"
	cfg.ConnectTimeout = 0
	dsn := NewMySQLAdapter().ConnectionString(&cfg)
	assert.True(t, strings.HasPrefix(dsn, "app:p@ss@tcp(db.internal:3306)/crm?"), dsn)
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	pgCfg := constellation.NewConfig(constellation.PostgreSQLOptions("crm", "app", "two words")...)
	pgCfg.ConnectTimeout = 5 * time.Second
	assert.Equal(t, "host=localhost port=5432 dbname=crm user=app password='two words' sslmode=disable connect_timeout=5",
		NewPostgreSQLAdapter().ConnectionString(&pgCfg))

	liteCfg := constellation.NewConfig(
		constellation.SQLiteOptions("./data/../crm.db", constellation.WithOption("_busy_timeout", "5000"))...,
	)
	assert.Equal(t, "crm.db?_busy_timeout=5000", NewSQLiteAdapter().ConnectionString(&liteCfg))

	memCfg := constellation.NewConfig(constellation.WithDriver("sqlite"))
	assert.Equal(t, ":memory:", NewSQLiteAdapter().ConnectionString(&memCfg))
}

func TestUniqueConstraintClassification(t *testing.T) {
	my := NewMySQLAdapter()
	assert.True(t, my.IsUniqueConstraintViolation(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})))
	assert.False(t, my.IsUniqueConstraintViolation(&mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"}))
	assert.True(t, my.IsForeignKeyViolation(&mysql.MySQLError{Number: 1452}))

	pg := NewPostgreSQLAdapter()
	assert.True(t, pg.IsUniqueConstraintViolation(&pq.Error{Code: "23505"}))
	assert.False(t, pg.IsUniqueConstraintViolation(&pq.Error{Code: "42P01"}))
	assert.True(t, pg.IsForeignKeyViolation(&pq.Error{Code: "23503"}))

	lite := NewSQLiteAdapter()
	assert.True(t, lite.IsUniqueConstraintViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.True(t, lite.IsUniqueConstraintViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}))
	assert.False(t, lite.IsUniqueConstraintViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintNotNull}))

	// message fallback for wrapped or foreign drivers
	assert.True(t, lite.IsUniqueConstraintViolation(errors.New("UNIQUE constraint failed: t.slug")))
	assert.False(t, lite.IsUniqueConstraintViolation(nil))
	assert.True(t, lite.IsConnectionError(errors.New("database is locked")))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	a, err := r.Get("postgres")
	require.NoError(t, err)
	assert.Equal(t, AdapterName("postgresql"), a.Name())
	assert.Equal(t, "postgres", a.DriverName())

	a, err = r.Get("mariadb")
	require.NoError(t, err)
	assert.Equal(t, "mysql", a.DriverName())

	_, err = r.Get("oracle")
	assert.Error(t, err)

	r.Register("lite", func() Adapter { return NewSQLiteAdapter() })
	assert.True(t, r.Exists("lite"))
	assert.Contains(t, r.List(), AdapterName("lite"))
	assert.False(t, NewRegistry().Exists("lite"))
}
