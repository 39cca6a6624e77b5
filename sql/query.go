package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"constellation/sql/adapter"
)

// Condition is one SQL predicate with '?' placeholders and its arguments.
type Condition struct {
	Expr string
	Args []any
}

// Cond builds a condition from a raw expression.
func Cond(expr string, args ...any) Condition {
	return Condition{Expr: expr, Args: args}
}

// Or joins conditions into a single parenthesized disjunction.
func Or(conds ...Condition) Condition {
	parts := make([]string, 0, len(conds))
	var args []any
	for _, c := range conds {
		parts = append(parts, c.Expr)
		args = append(args, c.Args...)
	}
	return Condition{Expr: "(" + strings.Join(parts, " OR ") + ")", Args: args}
}

type OrderBy struct {
	Column    string
	Direction string
}

// QueryBuilder builds SELECT statements. Predicates are AND-joined; use Or
// to group alternatives.
type QueryBuilder struct {
	table   string
	columns []string
	joins   []string
	where   []Condition
	groupBy []string
	orderBy []OrderBy
	limit   *int
	offset  *int
}

func NewQueryBuilder(table string) *QueryBuilder {
	return &QueryBuilder{table: table, columns: []string{"*"}}
}

func (qb *QueryBuilder) Select(columns ...string) *QueryBuilder {
	if len(columns) > 0 {
		qb.columns = columns
	}
	return qb
}

// Join appends a raw JOIN clause.
func (qb *QueryBuilder) Join(clause string) *QueryBuilder {
	qb.joins = append(qb.joins, clause)
	return qb
}

func (qb *QueryBuilder) Where(column, operator string, value any) *QueryBuilder {
	qb.where = append(qb.where, Cond(fmt.Sprintf("%s %s ?", column, operator), value))
	return qb
}

func (qb *QueryBuilder) WhereEq(column string, value any) *QueryBuilder {
	return qb.Where(column, "=", value)
}

func (qb *QueryBuilder) WhereNotEq(column string, value any) *QueryBuilder {
	return qb.Where(column, "!=", value)
}

// WhereIn adds a membership test. An empty list matches nothing.
func (qb *QueryBuilder) WhereIn(column string, values []any) *QueryBuilder {
	if len(values) == 0 {
		qb.where = append(qb.where, Cond("1 = 0"))
		return qb
	}
	qb.where = append(qb.where, Cond(fmt.Sprintf("%s IN (%s)", column, adapter.Placeholders(len(values))), values...))
	return qb
}

func (qb *QueryBuilder) WhereNull(column string) *QueryBuilder {
	qb.where = append(qb.where, Cond(column+" IS NULL"))
	return qb
}

func (qb *QueryBuilder) WhereNotNull(column string) *QueryBuilder {
	qb.where = append(qb.where, Cond(column+" IS NOT NULL"))
	return qb
}

// WhereCond appends prepared conditions.
func (qb *QueryBuilder) WhereCond(conds ...Condition) *QueryBuilder {
	qb.where = append(qb.where, conds...)
	return qb
}

// WhereRaw appends a raw predicate.
func (qb *QueryBuilder) WhereRaw(expr string, args ...any) *QueryBuilder {
	return qb.WhereCond(Cond(expr, args...))
}

func (qb *QueryBuilder) GroupBy(columns ...string) *QueryBuilder {
	qb.groupBy = append(qb.groupBy, columns...)
	return qb
}

func (qb *QueryBuilder) OrderBy(column, direction string) *QueryBuilder {
	qb.orderBy = append(qb.orderBy, OrderBy{Column: column, Direction: strings.ToUpper(direction)})
	return qb
}
func (qb *QueryBuilder) OrderByAsc(column string) *QueryBuilder  { return qb.OrderBy(column, "ASC") }
func (qb *QueryBuilder) OrderByDesc(column string) *QueryBuilder { return qb.OrderBy(column, "DESC") }
func (qb *QueryBuilder) Limit(limit int) *QueryBuilder           { qb.limit = &limit; return qb }
func (qb *QueryBuilder) Offset(offset int) *QueryBuilder         { qb.offset = &offset; return qb }

// Paginate applies limit and offset the way every listing does: nothing
// unless limit is positive, and the offset only when it is positive too.
func (qb *QueryBuilder) Paginate(limit, offset int) *QueryBuilder {
	if limit <= 0 {
		return qb
	}
	qb.Limit(limit)
	if offset > 0 {
		qb.Offset(offset)
	}
	return qb
}

func buildWhereClause(where []Condition) (string, []any) {
	parts := make([]string, 0, len(where))
	var args []any
	for _, c := range where {
		parts = append(parts, c.Expr)
		args = append(args, c.Args...)
	}
	return strings.Join(parts, " AND "), args
}

func (qb *QueryBuilder) buildOrderByClause() string {
	var parts []string
	for _, ob := range qb.orderBy {
		parts = append(parts, fmt.Sprintf("%s %s", ob.Column, ob.Direction))
	}
	return strings.Join(parts, ", ")
}

// Build renders the statement with '?' placeholders.
func (qb *QueryBuilder) Build() (string, []any) {
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(qb.columns, ", "), qb.table)
	for _, j := range qb.joins {
		query += " " + j
	}
	var args []any
	if len(qb.where) > 0 {
		clause, whereArgs := buildWhereClause(qb.where)
		query += " WHERE " + clause
		args = append(args, whereArgs...)
	}
	if len(qb.groupBy) > 0 {
		query += " GROUP BY " + strings.Join(qb.groupBy, ", ")
	}
	if len(qb.orderBy) > 0 {
		query += " ORDER BY " + qb.buildOrderByClause()
	}
	if qb.limit != nil {
		query += " LIMIT ?"
		args = append(args, *qb.limit)
	}
	if qb.offset != nil {
		query += " OFFSET ?"
		args = append(args, *qb.offset)
	}
	return query, args
}

// countBuilder shares the table, joins and predicates of qb.
func (qb *QueryBuilder) countBuilder(expr string) *QueryBuilder {
	cq := NewQueryBuilder(qb.table).Select(expr)
	cq.joins = append(cq.joins, qb.joins...)
	cq.where = append(cq.where, qb.where...)
	return cq
}

// Statement is anything that renders to SQL with '?' placeholders.
type Statement interface {
	Build() (string, []any)
}

// DBTX is the subset of *sql.DB the executor needs. *sql.Tx satisfies it
// too, for callers that manage their own transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// QueryExecutor runs builders against a database, rewriting placeholders
// for the adapter's dialect.
type QueryExecutor struct {
	db      DBTX
	adapter adapter.Adapter
	logger  *zap.Logger
}

func NewQueryExecutor(db DBTX, adpt adapter.Adapter, logger *zap.Logger) *QueryExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryExecutor{db: db, adapter: adpt, logger: logger}
}

func (qe *QueryExecutor) prepare(query string, args []any) string {
	query = qe.adapter.Rebind(query)
	qe.logger.Debug("sql", zap.String("query", query), zap.Int("args", len(args)))
	return query
}

func (qe *QueryExecutor) Query(ctx context.Context, st Statement) (*sql.Rows, error) {
	q, a := st.Build()
	return qe.QueryRaw(ctx, q, a...)
}

func (qe *QueryExecutor) QueryRow(ctx context.Context, st Statement) *sql.Row {
	q, a := st.Build()
	return qe.QueryRowRaw(ctx, q, a...)
}

func (qe *QueryExecutor) Exec(ctx context.Context, st Statement) (sql.Result, error) {
	q, a := st.Build()
	return qe.ExecRaw(ctx, q, a...)
}

func (qe *QueryExecutor) QueryRaw(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return qe.db.QueryContext(ctx, qe.prepare(query, args), args...)
}

func (qe *QueryExecutor) QueryRowRaw(ctx context.Context, query string, args ...any) *sql.Row {
	return qe.db.QueryRowContext(ctx, qe.prepare(query, args), args...)
}

func (qe *QueryExecutor) ExecRaw(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return qe.db.ExecContext(ctx, qe.prepare(query, args), args...)
}

// Count runs COUNT(*) over the predicates of qb.
func (qe *QueryExecutor) Count(ctx context.Context, qb *QueryBuilder) (int64, error) {
	var count int64
	err := qe.QueryRow(ctx, qb.countBuilder("COUNT(*)")).Scan(&count)
	return count, err
}

// Exists reports whether qb matches at least one row.
func (qe *QueryExecutor) Exists(ctx context.Context, qb *QueryBuilder) (bool, error) {
	exq := qb.countBuilder("1").Limit(1)
	var one int
	err := qe.QueryRow(ctx, exq).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// Strings runs a single-column query and collects the values.
func (qe *QueryExecutor) Strings(ctx context.Context, st Statement) ([]string, error) {
	rows, err := qe.Query(ctx, st)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
