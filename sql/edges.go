package sqlstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"constellation"
	"constellation/record"
)

const edgeEntity = "client_tag"

// EdgeStore persists the client-tag association. Rows are keyed by the
// (client_id, tag_id) pair, so a pair exists at most once.
type EdgeStore struct {
	env    *Env
	exec   *QueryExecutor
	table  string
	tags   *Repository[*record.Tag]
	logger *zap.Logger
}

var _ constellation.EdgeRepository[*record.Tag] = (*EdgeStore)(nil)

// NewEdgeStore creates the edge store. tags is used to read joined tag rows
// and to delete the source tag of a merge.
func NewEdgeStore(env *Env, tags *Repository[*record.Tag]) *EdgeStore {
	return &EdgeStore{
		env:    env,
		exec:   env.Exec,
		table:  env.Tables.ClientTags,
		tags:   tags,
		logger: env.logger().With(zap.String("entity", edgeEntity)),
	}
}

func (s *EdgeStore) wrap(err error, operation string) error {
	if err == nil {
		return nil
	}
	return constellation.WrapPersistenceError(err, edgeEntity, operation,
		s.env.Adapter.IsUniqueConstraintViolation(err))
}

// AddEdge links a client to a tag. Adding an existing pair fails with a
// constraint PersistenceError.
func (s *EdgeStore) AddEdge(ctx context.Context, clientID, tagID string) error {
	ib := NewInsertBuilder(s.table).Set("client_id", clientID).Set("tag_id", tagID)
	if _, err := s.exec.Exec(ctx, ib); err != nil {
		return s.wrap(err, "add_edge")
	}
	return nil
}

// RemoveEdge unlinks a client from a tag. Removing a missing pair is not an
// error.
func (s *EdgeStore) RemoveEdge(ctx context.Context, clientID, tagID string) error {
	db := NewDeleteBuilder(s.table).WhereEq("client_id", clientID).WhereEq("tag_id", tagID)
	if _, err := s.exec.Exec(ctx, db); err != nil {
		return s.wrap(err, "remove_edge")
	}
	return nil
}

// ReplaceEdges makes tagIDs the exact tag set of the client. Ids repeated in
// tagIDs are linked once. The steps are not atomic; re-running the call
// converges to the same state.
func (s *EdgeStore) ReplaceEdges(ctx context.Context, clientID string, tagIDs []string) error {
	if err := s.RemoveClientEdges(ctx, clientID); err != nil {
		return err
	}
	for _, tagID := range tagIDs {
		err := s.AddEdge(ctx, clientID, tagID)
		if constellation.IsConstraintViolation(err) {
			s.logger.Debug("duplicate tag id ignored", zap.String("client_id", clientID), zap.String("tag_id", tagID))
			continue
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// EdgeTagIDs returns the ids of the tags linked to a client.
func (s *EdgeStore) EdgeTagIDs(ctx context.Context, clientID string) ([]string, error) {
	qb := NewQueryBuilder(s.table).Select("tag_id").WhereEq("client_id", clientID).OrderByAsc("tag_id")
	ids, err := s.exec.Strings(ctx, qb)
	if err != nil {
		return nil, s.wrap(err, "edge_tag_ids")
	}
	return ids, nil
}

// EdgesForTag returns the ids of the clients linked to a tag.
func (s *EdgeStore) EdgesForTag(ctx context.Context, tagID string) ([]string, error) {
	qb := NewQueryBuilder(s.table).Select("client_id").WhereEq("tag_id", tagID).OrderByAsc("client_id")
	ids, err := s.exec.Strings(ctx, qb)
	if err != nil {
		return nil, s.wrap(err, "edges_for_tag")
	}
	return ids, nil
}

// LoadEdgesForClients loads the tags of many clients with one query. Every
// requested client id is present in the result, with its tags ordered by
// name.
func (s *EdgeStore) LoadEdgesForClients(ctx context.Context, clientIDs []string) (map[string][]*record.Tag, error) {
	out := make(map[string][]*record.Tag, len(clientIDs))
	if len(clientIDs) == 0 {
		return out, nil
	}
	ids := make([]any, len(clientIDs))
	for i, id := range clientIDs {
		ids[i] = id
		out[id] = []*record.Tag{}
	}

	qb := NewQueryBuilder(s.tags.TableName()+" t").
		Select(append([]string{"ct.client_id"}, s.tags.Mapping().selectColumns("t")...)...).
		Join(fmt.Sprintf("JOIN %s ct ON ct.tag_id = t.id", s.table)).
		WhereIn("ct.client_id", ids).
		OrderByAsc("t.name")

	rows, err := s.exec.Query(ctx, qb)
	if err != nil {
		return nil, s.wrap(err, "load_edges")
	}
	defer rows.Close()

	for rows.Next() {
		var clientID string
		tag, err := s.tags.scan(rows, &clientID)
		if err != nil {
			return nil, s.wrap(err, "load_edges")
		}
		out[clientID] = append(out[clientID], tag)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err, "load_edges")
	}
	return out, nil
}

// RemoveClientEdges deletes every edge of a client.
func (s *EdgeStore) RemoveClientEdges(ctx context.Context, clientID string) error {
	if _, err := s.exec.Exec(ctx, NewDeleteBuilder(s.table).WhereEq("client_id", clientID)); err != nil {
		return s.wrap(err, "remove_client_edges")
	}
	return nil
}

// RemoveTagEdges deletes every edge of a tag.
func (s *EdgeStore) RemoveTagEdges(ctx context.Context, tagID string) error {
	if _, err := s.exec.Exec(ctx, NewDeleteBuilder(s.table).WhereEq("tag_id", tagID)); err != nil {
		return s.wrap(err, "remove_tag_edges")
	}
	return nil
}

// CountByTag returns how many clients carry a tag.
func (s *EdgeStore) CountByTag(ctx context.Context, tagID string) (int64, error) {
	count, err := s.exec.Count(ctx, NewQueryBuilder(s.table).WhereEq("tag_id", tagID))
	if err != nil {
		return 0, s.wrap(err, "count_by_tag")
	}
	return count, nil
}

// RepointTag links every client of src to dst as well. Clients already
// carrying dst are skipped, and nothing is linked when dst does not exist.
func (s *EdgeStore) RepointTag(ctx context.Context, src, dst string) error {
	source := fmt.Sprintf("SELECT ct.client_id, t.id FROM %s ct JOIN %s t ON t.id = ? WHERE ct.tag_id = ?",
		s.table, s.tags.TableName())
	query := s.env.Adapter.InsertIgnore(s.table, []string{"client_id", "tag_id"}, source)
	if _, err := s.exec.ExecRaw(ctx, query, dst, src); err != nil {
		return s.wrap(err, "repoint")
	}
	return nil
}

// MergeTags moves every client of src onto dst and deletes src. It returns
// false without touching anything when src and dst are the same tag, and a
// not-found error without touching anything when dst does not exist.
// Otherwise it reports whether the source tag row was removed.
func (s *EdgeStore) MergeTags(ctx context.Context, src, dst string) (bool, error) {
	if src == dst {
		return false, nil
	}
	exists, err := s.tags.Exists(ctx, dst)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, constellation.NewNotFoundError("tag", "id", dst)
	}
	if err := s.RepointTag(ctx, src, dst); err != nil {
		return false, err
	}
	if err := s.RemoveTagEdges(ctx, src); err != nil {
		return false, err
	}
	removed, err := s.tags.Delete(ctx, src)
	if err != nil {
		return false, err
	}
	s.logger.Info("tags merged", zap.String("source", src), zap.String("target", dst), zap.Bool("removed", removed))
	return removed, nil
}
