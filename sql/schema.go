package sqlstore

import (
	"context"

	"go.uber.org/zap"

	"constellation"
	"constellation/record"
	"constellation/sql/adapter"
)

// Schema creates and drops the store's tables.
type Schema struct {
	env      *Env
	detector *Detector
	logger   *zap.Logger
}

// NewSchema creates the schema manager. detector decides the document column type.
func NewSchema(env *Env, detector *Detector) *Schema {
	return &Schema{env: env, detector: detector, logger: env.logger()}
}

// Specs returns the table layouts, with the document column typed natively
// when native is set.
func (s *Schema) Specs(native bool) []adapter.TableSpec {
	t := s.env.Tables
	return []adapter.TableSpec{
		{
			Name: t.Clients,
			Columns: []adapter.ColumnSpec{
				{Name: "id", Type: adapter.ColumnID},
				{Name: "name", Type: adapter.ColumnString, Size: 255},
				{Name: "slug", Type: adapter.ColumnString, Size: 255, Unique: true},
				{Name: "status", Type: adapter.ColumnString, Size: 50, Default: record.StatusActive},
				{Name: "created_at", Type: adapter.ColumnTimestamp},
				{Name: "updated_at", Type: adapter.ColumnTimestamp},
				{Name: "data", Type: adapter.ColumnDocument, Nullable: true},
			},
			PrimaryKey: []string{"id"},
			Indexes: []adapter.IndexSpec{
				{Name: "name", Columns: []string{"name"}},
				{Name: "status", Columns: []string{"status"}},
			},
			NativeDocument: native,
		},
		{
			Name: t.Tags,
			Columns: []adapter.ColumnSpec{
				{Name: "id", Type: adapter.ColumnID},
				{Name: "name", Type: adapter.ColumnString, Size: 100},
				{Name: "slug", Type: adapter.ColumnString, Size: 100, Unique: true},
				{Name: "color", Type: adapter.ColumnString, Size: 7, Nullable: true},
				{Name: "description", Type: adapter.ColumnText, Nullable: true},
				{Name: "created_at", Type: adapter.ColumnTimestamp},
			},
			PrimaryKey: []string{"id"},
			Indexes:    []adapter.IndexSpec{{Name: "name", Columns: []string{"name"}}},
		},
		{
			Name: t.ClientTags,
			Columns: []adapter.ColumnSpec{
				{Name: "client_id", Type: adapter.ColumnID},
				{Name: "tag_id", Type: adapter.ColumnID},
			},
			PrimaryKey: []string{"client_id", "tag_id"},
			Indexes:    []adapter.IndexSpec{{Name: "tag_id", Columns: []string{"tag_id"}}},
		},
		{
			Name: t.Settings,
			Columns: []adapter.ColumnSpec{
				{Name: "name", Type: adapter.ColumnString, Size: 191},
				{Name: "value", Type: adapter.ColumnText},
			},
			PrimaryKey: []string{"name"},
		},
	}
}

// Create creates any missing table and persists the capability decision
// the document column was created with. Running it again changes nothing.
func (s *Schema) Create(ctx context.Context) error {
	native := s.detector.Native(ctx)
	for _, spec := range s.Specs(native) {
		for _, stmt := range s.env.Adapter.CreateTable(spec) {
			if _, err := s.env.Exec.ExecRaw(ctx, stmt); err != nil {
				return constellation.WrapPersistenceError(err, spec.Name, "create_table", false)
			}
		}
	}
	if err := s.detector.Persist(ctx); err != nil {
		return err
	}
	s.logger.Info("schema ready", zap.Bool("native_json", native), zap.Strings("tables", s.env.Tables.All()))
	return nil
}

// Drop removes every table of the store.
func (s *Schema) Drop(ctx context.Context) error {
	tables := s.env.Tables.All()
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := s.env.Exec.ExecRaw(ctx, s.env.Adapter.DropTable(tables[i])); err != nil {
			return constellation.WrapPersistenceError(err, tables[i], "drop_table", false)
		}
	}
	s.logger.Info("schema dropped", zap.Strings("tables", tables))
	return nil
}
