package constellation

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTablePrefix is prepended to every table the store creates.
const DefaultTablePrefix = "constellation_"

// Config contains the connection and runtime settings of a record store.
type Config struct {
	// Basic connection info
	Driver   string `yaml:"driver"` // mysql, postgres, sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	FilePath string `yaml:"file_path"` // sqlite only
	SSLMode  string `yaml:"ssl_mode"`

	// Table naming
	TablePrefix string `yaml:"table_prefix"`

	// Connection pooling
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`

	// Timeouts
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QueryTimeout   time.Duration `yaml:"query_timeout"`

	// Driver-specific options appended to the connection string
	Options map[string]string `yaml:"options"`

	Log LogConfig `yaml:"log"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            0, // Driver-specific default
		TablePrefix:     DefaultTablePrefix,
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 1 * time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
		ConnectTimeout:  30 * time.Second,
		QueryTimeout:    30 * time.Second,
		Options:         make(map[string]string),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks that the configuration can be used to open a store.
func (c *Config) Validate() error {
	switch c.Driver {
	case "":
		return NewConfigErrorForField("driver", "driver is required")
	case "sqlite", "sqlite3":
		if c.FilePath == "" && c.Database == "" {
			return NewConfigErrorForField("file_path", "sqlite requires a file path")
		}
	case "mysql", "mariadb", "postgres", "postgresql":
		if c.Database == "" {
			return NewConfigErrorForField("database", "database name is required")
		}
	default:
		return NewConfigErrorForField("driver", fmt.Sprintf("unsupported driver %q", c.Driver))
	}
	if c.Port < 0 || c.Port > 65535 {
		return NewConfigErrorForField("port", "port out of range")
	}
	return nil
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.TablePrefix == "" {
		cfg.TablePrefix = DefaultTablePrefix
	}
	if cfg.Options == nil {
		cfg.Options = make(map[string]string)
	}

	return &cfg, nil
}
