package sqlstore

import (
	"context"
	"fmt"

	"constellation"
	"constellation/record"
	"constellation/sql/adapter"
)

// ClientMapping lays a client out over its table.
func ClientMapping(table string) Mapping[*record.Client] {
	return Mapping[*record.Client]{
		Entity:         "client",
		Table:          table,
		Columns:        []string{"name", "slug", "status"},
		HasUpdatedAt:   true,
		DocumentColumn: "data",
		SearchFields:   []string{"name", "slug"},
		SlugSize:       255,
		New:            func() *record.Client { return &record.Client{} },
		Values: func(c *record.Client) []any {
			return []any{c.Name, c.Slug, c.Status}
		},
		Targets: func(c *record.Client) ([]any, func()) {
			return []any{&c.Name, &c.Slug, &c.Status}, nil
		},
	}
}

// ClientRepository stores clients. Searches also match tag names, and
// deletes remove the client's edges first.
type ClientRepository struct {
	*Repository[*record.Client]
	edges *EdgeStore
	tags  string
}

// NewClientRepository creates the client repository over the edge store
// owned by the tag repository.
func NewClientRepository(env *Env, edges *EdgeStore) *ClientRepository {
	return &ClientRepository{
		Repository: NewRepository(env, ClientMapping(env.Tables.Clients)),
		edges:      edges,
		tags:       env.Tables.Tags,
	}
}

// Edges returns the edge store.
func (r *ClientRepository) Edges() *EdgeStore { return r.edges }

// Delete removes the client's edges, then the client.
func (r *ClientRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.edges.RemoveClientEdges(ctx, id); err != nil {
		return false, err
	}
	return r.Repository.Delete(ctx, id)
}

// Search matches query against the given fields, the document and the names
// of the client's tags.
func (r *ClientRepository) Search(ctx context.Context, query string, fields []string, limit, offset int) ([]*record.Client, error) {
	return r.SearchWith(ctx, query, fields, r.tagNameMatch, limit, offset)
}

func (r *ClientRepository) tagNameMatch(pattern string) []Condition {
	expr := fmt.Sprintf(
		"EXISTS (SELECT 1 FROM %s ct JOIN %s t ON t.id = ct.tag_id WHERE ct.client_id = %s.id AND t.name %s ? ESCAPE '%s')",
		r.edges.table, r.tags, r.TableName(), r.env.Adapter.LikeOperator(), adapter.LikeEscape)
	return []Condition{Cond(expr, pattern)}
}

// FindWithTags is Find with each client's Tags loaded in one extra query.
func (r *ClientRepository) FindWithTags(ctx context.Context, criteria constellation.Criteria, orderBy []constellation.Order, limit, offset int) ([]*record.Client, error) {
	clients, err := r.Find(ctx, criteria, orderBy, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.AttachTags(ctx, clients)
}

// AttachTags loads the tags of clients and stores them on each client.
func (r *ClientRepository) AttachTags(ctx context.Context, clients []*record.Client) ([]*record.Client, error) {
	if len(clients) == 0 {
		return clients, nil
	}
	ids := make([]string, len(clients))
	for i, c := range clients {
		ids[i] = c.ID
	}
	tags, err := r.edges.LoadEdgesForClients(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, c := range clients {
		c.Tags = tags[c.ID]
	}
	return clients, nil
}

// FindByTag returns the clients carrying a tag.
func (r *ClientRepository) FindByTag(ctx context.Context, tagID string, orderBy []constellation.Order, limit, offset int) ([]*record.Client, error) {
	qb := r.Select().WhereRaw(fmt.Sprintf("id IN (SELECT client_id FROM %s WHERE tag_id = ?)", r.edges.table), tagID)
	if len(orderBy) == 0 {
		orderBy = []constellation.Order{constellation.Asc("name")}
	}
	if err := r.applyOrder(qb, orderBy); err != nil {
		return nil, err
	}
	qb.Paginate(limit, offset)
	return r.All(ctx, qb, "find_by_tag")
}

// FindByStatus returns the clients in one status.
func (r *ClientRepository) FindByStatus(ctx context.Context, status string, orderBy []constellation.Order, limit, offset int) ([]*record.Client, error) {
	return r.Find(ctx, constellation.Criteria{"status": status}, orderBy, limit, offset)
}

// FindActive returns the active clients.
func (r *ClientRepository) FindActive(ctx context.Context, orderBy []constellation.Order, limit, offset int) ([]*record.Client, error) {
	return r.FindByStatus(ctx, record.StatusActive, orderBy, limit, offset)
}

// CountsByStatus returns the number of clients per stored status. Statuses
// without clients are absent.
func (r *ClientRepository) CountsByStatus(ctx context.Context) (map[string]int64, error) {
	qb := NewQueryBuilder(r.TableName()).Select("status", "COUNT(*)").GroupBy("status")
	rows, err := r.exec.Query(ctx, qb)
	if err != nil {
		return nil, r.wrap(err, "counts_by_status")
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, r.wrap(err, "counts_by_status")
		}
		out[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap(err, "counts_by_status")
	}
	return out, nil
}
