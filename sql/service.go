package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"go.uber.org/zap"

	"constellation"
	"constellation/document"
	"constellation/sql/adapter"
)

// Service owns the database connection and wires the repositories, the
// capability detector and the schema over it.
type Service struct {
	adapter adapter.Adapter
	config  *constellation.Config
	logger  *zap.Logger
	clock   func() time.Time

	native *bool

	db       *sql.DB
	ownsDB   bool
	env      *Env
	settings *Settings
	detector *Detector
	schema   *Schema
	clients  *ClientRepository
	tags     *TagRepository
}

// Ensure Service implements the service interface.
var _ constellation.Service = (*Service)(nil)

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger handed to every component.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the clock stamping created_at and updated_at.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithNativeDocuments fixes the document column decision instead of
// detecting it.
func WithNativeDocuments(native bool) ServiceOption {
	return func(s *Service) {
		s.native = &native
	}
}

// NewService creates an unconnected service for adpt.
func NewService(adpt adapter.Adapter, config *constellation.Config, opts ...ServiceOption) *Service {
	if config == nil {
		cfg := constellation.DefaultConfig()
		config = &cfg
	}
	s := &Service{
		adapter: adpt,
		config:  config,
		logger:  zap.NewNop(),
		clock:   DefaultClock,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens the connection through the adapter and wires the store.
func (s *Service) Connect(ctx context.Context) error {
	db, err := s.adapter.Connect(ctx, s.config)
	if err != nil {
		return err
	}
	s.ownsDB = true
	s.Attach(ctx, db)
	s.logger.Info("store connected",
		zap.String("adapter", string(s.adapter.Name())),
		zap.String("codec", s.env.Codec.Name()))
	return nil
}

// Attach wires the store over an already open connection. The caller keeps
// ownership of db.
func (s *Service) Attach(ctx context.Context, db *sql.DB) {
	s.db = db
	exec := NewQueryExecutor(db, s.adapter, s.logger)
	s.env = &Env{
		Exec:    exec,
		Adapter: s.adapter,
		Tables:  NewTables(s.config.TablePrefix),
		Clock:   s.clock,
		Logger:  s.logger,
	}
	s.settings = NewSettings(s.env)
	s.detector = NewDetector(exec, s.adapter, s.settings, s.logger)
	if s.native != nil {
		s.detector.Force(*s.native)
	}
	s.env.Codec = document.CodecFor(s.detector.Native(ctx))

	s.tags = NewTagRepository(s.env)
	s.clients = NewClientRepository(s.env, s.tags.Edges())
	s.schema = NewSchema(s.env, s.detector)
}

// Migrate creates any missing table.
func (s *Service) Migrate(ctx context.Context) error {
	return s.schema.Create(ctx)
}

// DropTables removes every table of the store.
func (s *Service) DropTables(ctx context.Context) error {
	if err := s.schema.Drop(ctx); err != nil {
		return err
	}
	s.detector.Forget()
	return nil
}

// DB returns the underlying database connection.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Adapter returns the underlying adapter.
func (s *Service) Adapter() adapter.Adapter {
	return s.adapter
}

// Clients returns the client repository.
func (s *Service) Clients() *ClientRepository { return s.clients }

// Tags returns the tag repository.
func (s *Service) Tags() *TagRepository { return s.tags }

// Edges returns the client-tag edge store.
func (s *Service) Edges() *EdgeStore { return s.tags.Edges() }

// Detector returns the JSON capability detector.
func (s *Service) Detector() *Detector { return s.detector }

// Settings returns the settings table.
func (s *Service) Settings() *Settings { return s.settings }

// Codec returns the document codec chosen when the store was wired.
func (s *Service) Codec() document.Codec { return s.env.Codec }

// Close closes the database connection if the service opened it.
func (s *Service) Close() error {
	if s.db == nil || !s.ownsDB {
		return nil
	}
	return s.adapter.Close()
}

// Stats returns database connection statistics.
func (s *Service) Stats() sql.DBStats {
	if s.db != nil {
		return s.db.Stats()
	}
	return sql.DBStats{}
}

// WithTimeout derives a context bounded by the configured query timeout.
func (s *Service) WithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.QueryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.QueryTimeout)
}

// Open creates and connects a service over adpt.
func Open(ctx context.Context, adpt adapter.Adapter, config *constellation.Config, opts ...ServiceOption) (*Service, error) {
	service := NewService(adpt, config, opts...)
	if err := service.Connect(ctx); err != nil {
		return nil, err
	}
	return service, nil
}

// OpenConfig validates config, looks its driver up in registry and opens
// the service.
func OpenConfig(ctx context.Context, registry *adapter.Registry, config *constellation.Config, opts ...ServiceOption) (*Service, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	adpt, err := registry.Get(adapter.AdapterName(config.Driver))
	if err != nil {
		return nil, constellation.NewConfigErrorForField("driver", err.Error())
	}
	return Open(ctx, adpt, config, opts...)
}
