package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"constellation"
)

// Settings is a durable name/value table for store-wide decisions.
type Settings struct {
	env   *Env
	exec  *QueryExecutor
	table string
}

// NewSettings creates the settings table accessor.
func NewSettings(env *Env) *Settings {
	return &Settings{env: env, exec: env.Exec, table: env.Tables.Settings}
}

// Get returns the value stored under name and whether it exists.
func (s *Settings) Get(ctx context.Context, name string) (string, bool, error) {
	var value string
	qb := NewQueryBuilder(s.table).Select("value").WhereEq("name", name).Limit(1)
	err := s.exec.QueryRow(ctx, qb).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, constellation.WrapPersistenceError(err, "setting", "get", false)
	}
	return value, true, nil
}

// Set stores value under name, replacing any previous value.
func (s *Settings) Set(ctx context.Context, name, value string) error {
	query := s.env.Adapter.Upsert(s.table, "name", []string{"name", "value"})
	if _, err := s.exec.ExecRaw(ctx, query, name, value); err != nil {
		return constellation.WrapPersistenceError(err, "setting", "set", false)
	}
	return nil
}

// Delete removes name. Removing a missing setting is not an error.
func (s *Settings) Delete(ctx context.Context, name string) error {
	if _, err := s.exec.Exec(ctx, NewDeleteBuilder(s.table).WhereEq("name", name)); err != nil {
		return constellation.WrapPersistenceError(err, "setting", "delete", false)
	}
	return nil
}
