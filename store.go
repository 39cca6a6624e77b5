// Package constellation provides a record store for clients and tags over a
// hybrid relational schema: fixed indexed columns plus an open document
// column, with a many-to-many client-tag association.
//
// Core abstractions live at the root level; the SQL implementation is in the
// sql sub-package and the record types in record.
package constellation

import (
	"context"
	"database/sql"
)

// Service defines the lifecycle of a connected store.
type Service interface {
	// Connect establishes the connection to the storage backend
	Connect(ctx context.Context) error

	// Migrate creates any missing table
	Migrate(ctx context.Context) error

	// Close closes the connection and releases resources
	Close() error

	// Stats returns connection pool statistics
	Stats() sql.DBStats

	// WithTimeout derives a context bounded by the configured query timeout
	WithTimeout(ctx context.Context) (context.Context, context.CancelFunc)
}
