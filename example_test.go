package constellation_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"constellation"
)

func TestErrorTypes(t *testing.T) {
	verr := constellation.NewValidationError("name_required", "Client name is required.")
	verr.Add("invalid_email", "Please provide a valid email address.")
	assert.Equal(t, "validation error: name_required: Client name is required.; invalid_email: Please provide a valid email address.", verr.Error())
	assert.Equal(t, []string{"name_required", "invalid_email"}, verr.Codes())
	assert.True(t, verr.Has("invalid_email"))

	wrapped := fmt.Errorf("create client: %w", verr)
	got, ok := constellation.AsValidationError(wrapped)
	require.True(t, ok)
	assert.Same(t, verr, got)
	assert.Nil(t, (&constellation.ValidationError{}).Err())

	notFound := constellation.NewNotFoundError("client", "slug", "acme")
	assert.Equal(t, `client not found with slug "acme"`, notFound.Error())
	assert.True(t, constellation.IsNotFound(fmt.Errorf("lookup: %w", notFound)))
	assert.False(t, constellation.IsValidationError(notFound))

	configErr := constellation.NewConfigErrorForField("driver", "driver is required")
	assert.Equal(t, "config error for field driver: driver is required", configErr.Error())
	assert.True(t, errors.Is(configErr, constellation.ErrInvalidConfig))
}

func TestPersistenceErrors(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: clients.slug")
	err := constellation.WrapPersistenceError(cause, "client", "insert", true)

	assert.True(t, constellation.IsPersistenceError(err))
	assert.True(t, constellation.IsConstraintViolation(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "UNIQUE constraint failed")
	assert.Nil(t, constellation.WrapPersistenceError(nil, "client", "insert", false))

	capErr := constellation.WrapCapabilityError(errors.New("permission denied"), "version probe")
	assert.True(t, constellation.IsUnknownCapability(capErr))
}

func TestUnifiedOptions(t *testing.T) {
	config := constellation.NewConfig(constellation.PostgreSQLOptions("testdb", "user", "pass")...)
	assert.Equal(t, "postgres", config.Driver)
	assert.Equal(t, "testdb", config.Database)
	assert.Equal(t, "disable", config.SSLMode)

	config = constellation.NewConfig(constellation.MySQLOptions("testdb", "user", "pass")...)
	assert.Equal(t, "mysql", config.Driver)
	assert.Equal(t, 3306, config.Port)

	config = constellation.NewConfig(constellation.SQLiteOptions("/tmp/test.db")...)
	assert.Equal(t, "sqlite", config.Driver)
	assert.Equal(t, "/tmp/test.db", config.FilePath)
	assert.Equal(t, 1, config.MaxOpenConns)

	config = constellation.DefaultConfig()
	config.Apply(
		constellation.WithHost("custom-host"),
		constellation.WithPort(9999),
		constellation.WithTablePrefix("crm_"),
		constellation.WithOption("charset", "utf8mb4"),
	)
	assert.Equal(t, "custom-host", config.Host)
	assert.Equal(t, 9999, config.Port)
	assert.Equal(t, "crm_", config.TablePrefix)
	assert.Equal(t, "utf8mb4", config.Options["charset"])
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name  string
		opts  []constellation.Option
		field string
	}{
		{"missing driver", nil, "driver"},
		{"unknown driver", []constellation.Option{constellation.WithDriver("oracle"), constellation.WithDatabase("x")}, "driver"},
		{"sqlite without file", []constellation.Option{constellation.WithDriver("sqlite")}, "file_path"},
		{"mariadb without database", []constellation.Option{constellation.WithDriver("mariadb")}, "database"},
		{"port out of range", constellation.PostgreSQLOptions("db", "u", "p", constellation.WithPort(70000)), "port"},
		{"valid sqlite", constellation.SQLiteOptions(":memory:"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := constellation.NewConfig(tt.opts...)
			err := config.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *constellation.ConfigError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "constellation.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
driver: mysql
host: db.internal
database: crm
username: crm
query_timeout: 5s
table_prefix: ""
log:
  level: debug
`), 0o600))

	config, err := constellation.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", config.Driver)
	assert.Equal(t, "db.internal", config.Host)
	assert.Equal(t, 5*time.Second, config.QueryTimeout)
	assert.Equal(t, constellation.DefaultTablePrefix, config.TablePrefix)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, "json", config.Log.Format)
	assert.Equal(t, 25, config.MaxOpenConns)
	assert.NoError(t, config.Validate())

	_, err = constellation.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCriteriaAndOrder(t *testing.T) {
	criteria := constellation.Criteria{"status": "active", "name": "Acme"}
	assert.Equal(t, []string{"name", "status"}, criteria.Fields())

	assert.Equal(t, "DESC", constellation.ParseOrder("created_at", "Desc").Direction())
	assert.Equal(t, "ASC", constellation.ParseOrder("name", "").Direction())
}

// Example_config shows the ways a store configuration is assembled.
func Example_config() {
	pg := constellation.NewConfig(
		constellation.PostgreSQLOptions("crm", "user", "password",
			constellation.WithHost("localhost"),
			constellation.WithPooling(25, 10, time.Hour),
			constellation.WithTimeouts(30*time.Second, 30*time.Second),
		)...,
	)

	sqlite := constellation.DefaultConfig()
	sqlite.Apply(constellation.SQLiteOptions("/tmp/crm.db", constellation.WithTablePrefix("crm_"))...)

	for _, cfg := range []constellation.Config{pg, sqlite} {
		if err := cfg.Validate(); err != nil {
			panic(err)
		}
		fmt.Println(cfg.Driver, cfg.TablePrefix)
	}
	// Output:
	// postgres constellation_
	// sqlite crm_
}
