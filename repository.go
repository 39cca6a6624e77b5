package constellation

import (
	"context"
)

// Repository is the capability set every record store implementation offers
// for one record type. Implementations are chosen when the store is
// constructed; nothing swaps them at runtime.
type Repository[T any] interface {
	EntityName() string

	Find(ctx context.Context, criteria Criteria, orderBy []Order, limit, offset int) ([]T, error)
	FindByID(ctx context.Context, id string) (T, error)
	FindBySlug(ctx context.Context, slug string) (T, error)
	Save(ctx context.Context, record T) (T, error)
	Delete(ctx context.Context, id string) (bool, error)
	Search(ctx context.Context, query string, fields []string, limit, offset int) ([]T, error)
	Count(ctx context.Context, criteria Criteria) (int64, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// EdgeRepository manages the client-tag association. T is the tag record
// type returned by batched loads.
type EdgeRepository[T any] interface {
	AddEdge(ctx context.Context, clientID, tagID string) error
	RemoveEdge(ctx context.Context, clientID, tagID string) error
	ReplaceEdges(ctx context.Context, clientID string, tagIDs []string) error
	EdgeTagIDs(ctx context.Context, clientID string) ([]string, error)
	LoadEdgesForClients(ctx context.Context, clientIDs []string) (map[string][]T, error)
	EdgesForTag(ctx context.Context, tagID string) ([]string, error)
}
