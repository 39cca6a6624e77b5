package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"constellation"
	"constellation/document"
	"constellation/record"
	"constellation/sql/adapter"
)

// Mapping describes how one record type is laid out in its table. Every
// table has an id and a created_at column; updated_at and the document
// column are optional.
type Mapping[T record.Entity] struct {
	Entity string
	Table  string

	// Columns are the indexed columns besides id and the timestamps, in the
	// order Values and Targets produce them.
	Columns        []string
	HasUpdatedAt   bool
	DocumentColumn string

	// SearchFields are searched when a caller passes no fields.
	SearchFields []string
	// SlugSize is the width of the slug column in characters; zero means
	// unbounded.
	SlugSize int

	New     func() T
	Values  func(rec T) []any
	Targets func(rec T) (dest []any, apply func())
}

// selectColumns lists the columns read for a record, optionally qualified
// with a table alias.
func (m Mapping[T]) selectColumns(alias string) []string {
	cols := []string{"id"}
	cols = append(cols, m.Columns...)
	cols = append(cols, "created_at")
	if m.HasUpdatedAt {
		cols = append(cols, "updated_at")
	}
	if m.DocumentColumn != "" {
		cols = append(cols, m.DocumentColumn)
	}
	if alias == "" {
		return cols
	}
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return cols
}

// Indexed reports whether field can be filtered or sorted on.
func (m Mapping[T]) Indexed(field string) bool {
	switch field {
	case "id", "created_at":
		return true
	case "updated_at":
		return m.HasUpdatedAt
	}
	for _, c := range m.Columns {
		if c == field {
			return true
		}
	}
	return false
}

// Env carries what every repository of one store shares.
type Env struct {
	Exec    *QueryExecutor
	Adapter adapter.Adapter
	Codec   document.Codec
	Tables  Tables
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Tables holds the physical table names.
type Tables struct {
	Clients    string
	Tags       string
	ClientTags string
	Settings   string
}

// NewTables derives the table names from a prefix.
func NewTables(prefix string) Tables {
	return Tables{
		Clients:    prefix + "clients",
		Tags:       prefix + "tags",
		ClientTags: prefix + "client_tag",
		Settings:   prefix + "settings",
	}
}

// All lists the tables in creation order.
func (t Tables) All() []string {
	return []string{t.Clients, t.Tags, t.ClientTags, t.Settings}
}

// DefaultClock returns the current UTC time at microsecond precision, the
// finest every supported backend stores.
func DefaultClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (e *Env) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return DefaultClock()
}

func (e *Env) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

type scanner interface {
	Scan(dest ...any) error
}

// Repository implements the record store operations for one record type
// over a hybrid table: indexed columns plus one document column.
type Repository[T record.Entity] struct {
	mapping Mapping[T]
	env     *Env
	exec    *QueryExecutor
	logger  *zap.Logger
}

var (
	_ constellation.Repository[*record.Client] = (*Repository[*record.Client])(nil)
	_ constellation.Repository[*record.Tag]    = (*Repository[*record.Tag])(nil)
)

// NewRepository creates a repository for the mapped record type.
func NewRepository[T record.Entity](env *Env, mapping Mapping[T]) *Repository[T] {
	return &Repository[T]{
		mapping: mapping,
		env:     env,
		exec:    env.Exec,
		logger:  env.logger().With(zap.String("entity", mapping.Entity)),
	}
}

// EntityName returns the name of the record type.
func (r *Repository[T]) EntityName() string { return r.mapping.Entity }

// TableName returns the physical table name.
func (r *Repository[T]) TableName() string { return r.mapping.Table }

// Mapping returns the table layout.
func (r *Repository[T]) Mapping() Mapping[T] { return r.mapping }

// Select starts a query returning full records.
func (r *Repository[T]) Select() *QueryBuilder {
	return NewQueryBuilder(r.mapping.Table).Select(r.mapping.selectColumns("")...)
}

func (r *Repository[T]) wrap(err error, operation string) error {
	if err == nil {
		return nil
	}
	return constellation.WrapPersistenceError(err, r.mapping.Entity, operation,
		r.env.Adapter.IsUniqueConstraintViolation(err))
}

// Find returns the records matching criteria.
func (r *Repository[T]) Find(ctx context.Context, criteria constellation.Criteria, orderBy []constellation.Order, limit, offset int) ([]T, error) {
	qb := r.Select()
	if err := r.applyCriteria(qb, criteria); err != nil {
		return nil, err
	}
	if err := r.applyOrder(qb, orderBy); err != nil {
		return nil, err
	}
	qb.Paginate(limit, offset)
	return r.All(ctx, qb, "find")
}

// FindByID returns the record with id or a NotFoundError.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, error) {
	return r.findOne(ctx, "id", id)
}

// FindBySlug returns the record with slug or a NotFoundError.
func (r *Repository[T]) FindBySlug(ctx context.Context, slug string) (T, error) {
	return r.findOne(ctx, "slug", slug)
}

func (r *Repository[T]) findOne(ctx context.Context, column, value string) (T, error) {
	var zero T
	qb := r.Select().WhereEq(column, value).Limit(1)
	rec, err := r.scan(r.exec.QueryRow(ctx, qb))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, constellation.NewNotFoundError(r.mapping.Entity, column, value)
	}
	if err != nil {
		return zero, r.wrap(err, "find_by_"+column)
	}
	return rec, nil
}

// All runs a query built from Select and scans every row.
func (r *Repository[T]) All(ctx context.Context, qb *QueryBuilder, operation string) ([]T, error) {
	rows, err := r.exec.Query(ctx, qb)
	if err != nil {
		return nil, r.wrap(err, operation)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, r.wrap(err, operation)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap(err, operation)
	}
	return out, nil
}

// Save inserts a new record or updates an existing one.
//
// On insert the record gets a fresh id, both timestamps set to now and a
// unique slug. On update only updated_at changes among the server-assigned
// fields; id and created_at are never written.
func (r *Repository[T]) Save(ctx context.Context, rec T) (T, error) {
	if rec.IsNew() {
		return r.insert(ctx, rec)
	}
	return r.update(ctx, rec)
}

func (r *Repository[T]) insert(ctx context.Context, rec T) (T, error) {
	var zero T
	now := r.env.now()

	rec.GenerateSlug()
	slug, err := r.UniqueSlug(ctx, r.baseSlug(rec), "")
	if err != nil {
		return zero, err
	}
	rec.SetSlug(slug)

	id := record.NewID()
	ib := NewInsertBuilder(r.mapping.Table).Set("id", id)
	for i, v := range r.mapping.Values(rec) {
		ib.Set(r.mapping.Columns[i], v)
	}
	ib.Set("created_at", now)
	if r.mapping.HasUpdatedAt {
		ib.Set("updated_at", now)
	}
	if r.mapping.DocumentColumn != "" {
		payload, err := r.env.Codec.Encode(rec.Data())
		if err != nil {
			return zero, r.wrap(err, "encode")
		}
		ib.Set(r.mapping.DocumentColumn, payload)
	}

	if _, err := r.exec.Exec(ctx, ib); err != nil {
		return zero, r.wrap(err, "insert")
	}

	rec.SetID(id)
	rec.SetCreatedAt(now)
	rec.SetUpdatedAt(now)
	r.logger.Debug("record inserted", zap.String("id", id), zap.String("slug", slug))
	return rec, nil
}

func (r *Repository[T]) update(ctx context.Context, rec T) (T, error) {
	var zero T
	now := r.env.now()

	rec.GenerateSlug()
	slug, err := r.UniqueSlug(ctx, r.baseSlug(rec), rec.GetID())
	if err != nil {
		return zero, err
	}
	rec.SetSlug(slug)

	ub := NewUpdateBuilder(r.mapping.Table)
	for i, v := range r.mapping.Values(rec) {
		ub.Set(r.mapping.Columns[i], v)
	}
	if r.mapping.HasUpdatedAt {
		ub.Set("updated_at", now)
	}
	if r.mapping.DocumentColumn != "" {
		payload, err := r.env.Codec.Encode(rec.Data())
		if err != nil {
			return zero, r.wrap(err, "encode")
		}
		ub.Set(r.mapping.DocumentColumn, payload)
	}
	ub.WhereEq("id", rec.GetID())

	res, err := r.exec.Exec(ctx, ub)
	if err != nil {
		return zero, r.wrap(err, "update")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// MySQL reports zero for rows matched but unchanged.
		exists, err := r.Exists(ctx, rec.GetID())
		if err != nil {
			return zero, err
		}
		if !exists {
			return zero, constellation.NewNotFoundError(r.mapping.Entity, "id", rec.GetID())
		}
	}

	rec.SetUpdatedAt(now)
	return rec, nil
}

// baseSlug is the slug to make unique. Names without a single usable
// character fall back to the entity name.
func (r *Repository[T]) baseSlug(rec T) string {
	if slug := rec.GetSlug(); slug != "" {
		return slug
	}
	return record.Slugify(r.mapping.Entity)
}

// UniqueSlug returns slug, or slug with the first free numeric suffix
// (-1, -2, ...), skipping the record identified by excludeID. The base is
// shortened so that base and suffix fit the slug column.
func (r *Repository[T]) UniqueSlug(ctx context.Context, slug, excludeID string) (string, error) {
	candidate := fitSlug(slug, "", r.mapping.SlugSize)
	for counter := 1; ; counter++ {
		qb := NewQueryBuilder(r.mapping.Table).WhereEq("slug", candidate)
		if excludeID != "" {
			qb.WhereNotEq("id", excludeID)
		}
		count, err := r.exec.Count(ctx, qb)
		if err != nil {
			return "", r.wrap(err, "unique_slug")
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = fitSlug(slug, fmt.Sprintf("-%d", counter), r.mapping.SlugSize)
	}
}

// fitSlug joins base and suffix, cutting base so the result holds at most
// size runes.
func fitSlug(base, suffix string, size int) string {
	limit := size - utf8.RuneCountInString(suffix)
	if size <= 0 || utf8.RuneCountInString(base) <= limit {
		return base + suffix
	}
	if limit < 1 {
		limit = 1
	}
	base = strings.TrimRight(string([]rune(base)[:limit]), "-")
	return base + suffix
}

// SlugTaken reports whether another record than excludeID uses slug.
func (r *Repository[T]) SlugTaken(ctx context.Context, slug, excludeID string) (bool, error) {
	qb := NewQueryBuilder(r.mapping.Table).WhereEq("slug", slug)
	if excludeID != "" {
		qb.WhereNotEq("id", excludeID)
	}
	exists, err := r.exec.Exists(ctx, qb)
	if err != nil {
		return false, r.wrap(err, "slug_taken")
	}
	return exists, nil
}

// Delete removes the row and reports whether one was removed.
func (r *Repository[T]) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.exec.Exec(ctx, NewDeleteBuilder(r.mapping.Table).WhereEq("id", id))
	if err != nil {
		return false, r.wrap(err, "delete")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.wrap(err, "delete")
	}
	return n > 0, nil
}

// Search matches query as a substring of the given fields and of the
// document, ordered by name.
func (r *Repository[T]) Search(ctx context.Context, query string, fields []string, limit, offset int) ([]T, error) {
	return r.SearchWith(ctx, query, fields, nil, limit, offset)
}

// SearchWith is Search with extra alternatives built from the escaped LIKE
// pattern.
func (r *Repository[T]) SearchWith(ctx context.Context, query string, fields []string, extra func(pattern string) []Condition, limit, offset int) ([]T, error) {
	if len(fields) == 0 {
		fields = r.mapping.SearchFields
	}
	pattern := adapter.ContainsPattern(query)
	like := r.env.Adapter.LikeOperator()

	var alternatives []Condition
	for _, f := range fields {
		if !r.mapping.Indexed(f) {
			return nil, constellation.InvalidFieldError(r.mapping.Entity, f)
		}
		alternatives = append(alternatives,
			Cond(fmt.Sprintf("%s %s ? ESCAPE '%s'", f, like, adapter.LikeEscape), pattern))
	}
	if r.mapping.DocumentColumn != "" {
		col := r.mapping.Table + "." + r.mapping.DocumentColumn
		alternatives = append(alternatives, Cond(r.env.Adapter.DocumentSearch(col, r.env.Codec.Native()), pattern))
	}
	if extra != nil {
		alternatives = append(alternatives, extra(pattern)...)
	}

	qb := r.Select()
	if len(alternatives) > 0 {
		qb.WhereCond(Or(alternatives...))
	}
	qb.OrderByAsc("name").Paginate(limit, offset)
	return r.All(ctx, qb, "search")
}

// Count returns the number of records matching criteria.
func (r *Repository[T]) Count(ctx context.Context, criteria constellation.Criteria) (int64, error) {
	qb := NewQueryBuilder(r.mapping.Table)
	if err := r.applyCriteria(qb, criteria); err != nil {
		return 0, err
	}
	count, err := r.exec.Count(ctx, qb)
	if err != nil {
		return 0, r.wrap(err, "count")
	}
	return count, nil
}

// Exists reports whether a record with id exists.
func (r *Repository[T]) Exists(ctx context.Context, id string) (bool, error) {
	exists, err := r.exec.Exists(ctx, NewQueryBuilder(r.mapping.Table).WhereEq("id", id))
	if err != nil {
		return false, r.wrap(err, "exists")
	}
	return exists, nil
}

// applyCriteria lowers criteria into predicates: a list becomes IN, nil
// becomes IS NULL, anything else equality.
func (r *Repository[T]) applyCriteria(qb *QueryBuilder, criteria constellation.Criteria) error {
	for _, field := range criteria.Fields() {
		if !r.mapping.Indexed(field) {
			return constellation.InvalidFieldError(r.mapping.Entity, field)
		}
		value := criteria[field]
		if value == nil {
			qb.WhereNull(field)
			continue
		}
		if list, ok := asList(value); ok {
			qb.WhereIn(field, list)
			continue
		}
		qb.WhereEq(field, value)
	}
	return nil
}

func (r *Repository[T]) applyOrder(qb *QueryBuilder, orderBy []constellation.Order) error {
	for _, o := range orderBy {
		if !r.mapping.Indexed(o.Field) {
			return constellation.InvalidFieldError(r.mapping.Entity, o.Field)
		}
		qb.OrderBy(o.Field, o.Direction())
	}
	return nil
}

func asList(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// scan reads one row laid out by selectColumns, preceded by any lead
// columns a join selected.
func (r *Repository[T]) scan(row scanner, lead ...any) (T, error) {
	var zero T
	rec := r.mapping.New()

	var (
		id      string
		created time.Time
		updated time.Time
		payload []byte
	)
	targets, apply := r.mapping.Targets(rec)
	dest := append(append([]any{}, lead...), &id)
	dest = append(dest, targets...)
	dest = append(dest, &created)
	if r.mapping.HasUpdatedAt {
		dest = append(dest, &updated)
	}
	if r.mapping.DocumentColumn != "" {
		dest = append(dest, &payload)
	}

	if err := row.Scan(dest...); err != nil {
		return zero, err
	}
	if apply != nil {
		apply()
	}

	rec.SetID(id)
	rec.SetCreatedAt(created)
	if r.mapping.HasUpdatedAt {
		rec.SetUpdatedAt(updated)
	} else {
		rec.SetUpdatedAt(created)
	}
	if r.mapping.DocumentColumn != "" {
		doc, err := r.env.Codec.Decode(payload)
		if err != nil {
			return zero, fmt.Errorf("decoding %s document of %s: %w", r.mapping.Entity, id, err)
		}
		rec.SetData(doc)
	}
	return rec, nil
}
