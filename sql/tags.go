package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"constellation"
	"constellation/record"
)

// TagMapping lays a tag out over its table. Tags persist neither a document
// nor updated_at.
func TagMapping(table string) Mapping[*record.Tag] {
	return Mapping[*record.Tag]{
		Entity:       "tag",
		Table:        table,
		Columns:      []string{"name", "slug", "color", "description"},
		SearchFields: []string{"name", "slug", "description"},
		SlugSize:     100,
		New:          func() *record.Tag { return &record.Tag{} },
		Values: func(t *record.Tag) []any {
			return []any{t.Name, t.Slug, nullString(t.Color), nullString(t.Description)}
		},
		Targets: func(t *record.Tag) ([]any, func()) {
			var color, description sql.NullString
			return []any{&t.Name, &t.Slug, &color, &description}, func() {
				t.Color = color.String
				t.Description = description.String
			}
		},
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// TagRepository stores tags and keeps their edges consistent.
type TagRepository struct {
	*Repository[*record.Tag]
	edges *EdgeStore
}

// NewTagRepository creates the tag repository and the edge store it shares
// with the client repository.
func NewTagRepository(env *Env) *TagRepository {
	repo := NewRepository(env, TagMapping(env.Tables.Tags))
	return &TagRepository{Repository: repo, edges: NewEdgeStore(env, repo)}
}

// Edges returns the edge store.
func (r *TagRepository) Edges() *EdgeStore { return r.edges }

// Save stores the tag, assigning the default color to new tags without one.
func (r *TagRepository) Save(ctx context.Context, tag *record.Tag) (*record.Tag, error) {
	if tag.IsNew() && tag.Color == "" {
		tag.Color = record.DefaultColor
	}
	return r.Repository.Save(ctx, tag)
}

// Delete removes the tag's edges, then the tag.
func (r *TagRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := r.edges.RemoveTagEdges(ctx, id); err != nil {
		return false, err
	}
	return r.Repository.Delete(ctx, id)
}

// FindOrCreate returns the tag whose slug matches name, creating it with the
// default color when none exists. Names that normalize to an empty slug are
// rejected with a validation error.
func (r *TagRepository) FindOrCreate(ctx context.Context, name string) (*record.Tag, error) {
	slug := record.Slugify(name)
	if slug == "" {
		return nil, constellation.NewValidationError("invalid_tag", fmt.Sprintf("Tag %q needs at least one letter or digit.", name))
	}
	tag, err := r.FindBySlug(ctx, slug)
	if err == nil {
		return tag, nil
	}
	if !constellation.IsNotFound(err) {
		return nil, err
	}
	return r.Save(ctx, record.NewTag(name))
}

// FindWithCounts returns every tag with ClientCount filled in.
func (r *TagRepository) FindWithCounts(ctx context.Context, orderBy []constellation.Order) ([]*record.Tag, error) {
	cols := r.Mapping().selectColumns("t")
	qb := NewQueryBuilder(r.TableName()+" t").
		Select(append([]string{"COUNT(ct.client_id) AS client_count"}, cols...)...).
		Join(fmt.Sprintf("LEFT JOIN %s ct ON ct.tag_id = t.id", r.edges.table)).
		GroupBy(cols...)
	if len(orderBy) == 0 {
		orderBy = []constellation.Order{constellation.Asc("name")}
	}
	for _, o := range orderBy {
		if !r.Mapping().Indexed(o.Field) {
			return nil, constellation.InvalidFieldError(r.EntityName(), o.Field)
		}
		qb.OrderBy("t."+o.Field, o.Direction())
	}

	rows, err := r.exec.Query(ctx, qb)
	if err != nil {
		return nil, r.wrap(err, "find_with_counts")
	}
	defer rows.Close()

	out := []*record.Tag{}
	for rows.Next() {
		var count int64
		tag, err := r.scan(rows, &count)
		if err != nil {
			return nil, r.wrap(err, "find_with_counts")
		}
		tag.ClientCount = count
		out = append(out, tag)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap(err, "find_with_counts")
	}
	return out, nil
}

// FindByClient returns the tags of one client ordered by name.
func (r *TagRepository) FindByClient(ctx context.Context, clientID string) ([]*record.Tag, error) {
	tags, err := r.edges.LoadEdgesForClients(ctx, []string{clientID})
	if err != nil {
		return nil, err
	}
	return tags[clientID], nil
}

// Merge moves every client of src onto dst and deletes src.
func (r *TagRepository) Merge(ctx context.Context, src, dst string) (bool, error) {
	return r.edges.MergeTags(ctx, src, dst)
}
