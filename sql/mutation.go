package sqlstore

import (
	"fmt"
	"strings"

	"constellation/sql/adapter"
)

// InsertBuilder builds a single-row INSERT. Columns keep the order they were
// set in.
type InsertBuilder struct {
	table   string
	columns []string
	values  []any
}

func NewInsertBuilder(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

func (ib *InsertBuilder) Set(column string, value any) *InsertBuilder {
	ib.columns = append(ib.columns, column)
	ib.values = append(ib.values, value)
	return ib
}

func (ib *InsertBuilder) Build() (string, []any) {
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ib.table, strings.Join(ib.columns, ", "), adapter.Placeholders(len(ib.columns)))
	return q, ib.values
}

// UpdateBuilder builds an UPDATE. Assignments keep the order they were set
// in.
type UpdateBuilder struct {
	table   string
	columns []string
	values  []any
	where   []Condition
}

func NewUpdateBuilder(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

func (ub *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	ub.columns = append(ub.columns, column)
	ub.values = append(ub.values, value)
	return ub
}

func (ub *UpdateBuilder) Where(column, operator string, value any) *UpdateBuilder {
	ub.where = append(ub.where, Cond(fmt.Sprintf("%s %s ?", column, operator), value))
	return ub
}

func (ub *UpdateBuilder) WhereEq(column string, value any) *UpdateBuilder {
	return ub.Where(column, "=", value)
}

func (ub *UpdateBuilder) Build() (string, []any) {
	sets := make([]string, 0, len(ub.columns))
	for _, col := range ub.columns {
		sets = append(sets, col+" = ?")
	}
	args := append([]any{}, ub.values...)
	q := fmt.Sprintf("UPDATE %s SET %s", ub.table, strings.Join(sets, ", "))
	if len(ub.where) > 0 {
		clause, whereArgs := buildWhereClause(ub.where)
		q += " WHERE " + clause
		args = append(args, whereArgs...)
	}
	return q, args
}

// DeleteBuilder builds a DELETE.
type DeleteBuilder struct {
	table string
	where []Condition
}

func NewDeleteBuilder(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

func (db *DeleteBuilder) Where(column, operator string, value any) *DeleteBuilder {
	db.where = append(db.where, Cond(fmt.Sprintf("%s %s ?", column, operator), value))
	return db
}

func (db *DeleteBuilder) WhereEq(column string, value any) *DeleteBuilder {
	return db.Where(column, "=", value)
}

func (db *DeleteBuilder) Build() (string, []any) {
	q := fmt.Sprintf("DELETE FROM %s", db.table)
	var args []any
	if len(db.where) > 0 {
		clause, whereArgs := buildWhereClause(db.where)
		q += " WHERE " + clause
		args = whereArgs
	}
	return q, args
}
