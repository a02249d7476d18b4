/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package common

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

const (
	SelectStatement = `SELECT`
	InsertStatement = `INSERT INTO`
	UpdateStatement = `UPDATE`
	DeleteStatement = `DELETE FROM`
)

type Select struct {
	columns []string
	from    string
	where   string
	orderBy string
	limit   string
	suffix  string
}

func NewSelect(columns ...string) *Select {
	return &Select{columns: columns}
}

func (s *Select) From(table string) *Select {
	s.from = table
	return s
}

func (s *Select) Where(where string) *Select {
	s.where = where
	return s
}

func (s *Select) OrderBy(orderBy string) *Select {
	s.orderBy = orderBy
	return s
}

func (s *Select) Limit(limit string) *Select {
	s.limit = limit
	return s
}

// Suffix appends a trailing clause such as FOR UPDATE
func (s *Select) Suffix(suffix string) *Select {
	s.suffix = suffix
	return s
}

func (s *Select) Compile() (string, error) {
	if len(s.from) == 0 {
		return "", errors.New("select: missing table")
	}
	sb := new(strings.Builder)
	sb.WriteString(SelectStatement)
	sb.WriteString(" ")
	if len(s.columns) > 0 {
		sb.WriteString(strings.Join(s.columns, ", "))
	} else {
		sb.WriteString("*")
	}
	sb.WriteString(" FROM ")
	sb.WriteString(s.from)
	if len(s.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(s.where)
	}
	if len(s.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(s.orderBy)
	}
	if len(s.limit) > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(s.limit)
	}
	if len(s.suffix) > 0 {
		sb.WriteString(" ")
		sb.WriteString(s.suffix)
	}
	return sb.String(), nil
}

type Insert struct {
	table       string
	rows        []string
	conflict    []string
	updates     []string
	updateWhere string
}

func NewInsertInto(table string) *Insert {
	return &Insert{table: table}
}

// Rows sets the comma separated list of columns
func (i *Insert) Rows(rows string) *Insert {
	i.rows = splitColumns(rows)
	return i
}

// OnConflict turns the insert into an upsert: on a conflict on the given key,
// the passed comma separated columns are overwritten with the inserted values.
func (i *Insert) OnConflict(key string, updates string) *Insert {
	i.conflict = splitColumns(key)
	i.updates = splitColumns(updates)
	return i
}

// UpdateWhere restricts which conflicting rows an upsert overwrites
func (i *Insert) UpdateWhere(where string) *Insert {
	i.updateWhere = where
	return i
}

func (i *Insert) Compile() (string, error) {
	if len(i.table) == 0 {
		return "", errors.New("insert: missing table")
	}
	if len(i.rows) == 0 {
		return "", errors.New("insert: missing rows")
	}
	sb := new(strings.Builder)
	sb.WriteString(InsertStatement)
	sb.WriteString(" ")
	sb.WriteString(i.table)
	sb.WriteString(" (")
	sb.WriteString(strings.Join(i.rows, ", "))
	sb.WriteString(") VALUES (")
	sb.WriteString(Placeholders(1, len(i.rows)))
	sb.WriteString(")")
	if len(i.conflict) > 0 {
		sb.WriteString(" ON CONFLICT (")
		sb.WriteString(strings.Join(i.conflict, ", "))
		sb.WriteString(")")
		if len(i.updates) == 0 {
			sb.WriteString(" DO NOTHING")
			return sb.String(), nil
		}
		sb.WriteString(" DO UPDATE SET ")
		for j, u := range i.updates {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s = excluded.%s", u, u))
		}
		if len(i.updateWhere) > 0 {
			sb.WriteString(" WHERE ")
			sb.WriteString(i.updateWhere)
		}
	}
	return sb.String(), nil
}

type Update struct {
	table string
	rows  []string
	where string
}

func NewUpdate(table string) *Update {
	return &Update{table: table}
}

// Set sets the comma separated list of columns to update, bound to $1..$n
func (u *Update) Set(rows string) *Update {
	u.rows = splitColumns(rows)
	return u
}

// Where is either a comma separated list of columns, compared for equality with the next
// placeholders, or a complete condition carrying its own placeholders
func (u *Update) Where(where string) *Update {
	u.where = where
	return u
}

func (u *Update) Compile() (string, error) {
	if len(u.table) == 0 {
		return "", errors.New("update: missing table")
	}
	if len(u.rows) == 0 {
		return "", errors.New("update: missing rows")
	}
	counter := 1
	sb := new(strings.Builder)
	sb.WriteString(UpdateStatement)
	sb.WriteString(" ")
	sb.WriteString(u.table)
	sb.WriteString(" SET ")
	for i, row := range u.rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%s = $%d", row, counter))
		counter++
	}
	if len(u.where) == 0 {
		return sb.String(), nil
	}
	sb.WriteString(" WHERE ")
	if strings.Contains(u.where, "$") {
		sb.WriteString(u.where)
		return sb.String(), nil
	}
	for i, col := range splitColumns(u.where) {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		sb.WriteString(fmt.Sprintf("%s = $%d", col, counter))
		counter++
	}
	return sb.String(), nil
}

type Delete struct {
	table string
	where string
}

func NewDeleteFrom(table string) *Delete {
	return &Delete{table: table}
}

func (d *Delete) Where(where string) *Delete {
	d.where = where
	return d
}

func (d *Delete) Compile() (string, error) {
	if len(d.table) == 0 {
		return "", errors.New("delete: missing table")
	}
	if len(d.where) == 0 {
		return DeleteStatement + " " + d.table, nil
	}
	return DeleteStatement + " " + d.table + " WHERE " + d.where, nil
}

// Placeholders returns n comma separated placeholders starting from $start
func Placeholders(start, n int) string {
	sb := new(strings.Builder)
	for i := 0; i < n; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("$%d", start+i))
	}
	return sb.String()
}

// Conditions accumulates AND-ed conditions and their arguments
type Conditions struct {
	clauses []string
	args    []any
}

// Eq adds column = value
func (c *Conditions) Eq(column string, value any) *Conditions {
	c.args = append(c.args, value)
	c.clauses = append(c.clauses, fmt.Sprintf("%s = $%d", column, len(c.args)))
	return c
}

// Lt adds column < value
func (c *Conditions) Lt(column string, value any) *Conditions {
	c.args = append(c.args, value)
	c.clauses = append(c.clauses, fmt.Sprintf("%s < $%d", column, len(c.args)))
	return c
}

// In adds column IN (values...). It is a no-op when values is empty.
func (c *Conditions) In(column string, values ...any) *Conditions {
	if len(values) == 0 {
		return c
	}
	start := len(c.args) + 1
	c.args = append(c.args, values...)
	c.clauses = append(c.clauses, fmt.Sprintf("%s IN (%s)", column, Placeholders(start, len(values))))
	return c
}

// AnyEq adds (column1 = value OR column2 = value ...) binding value once
func (c *Conditions) AnyEq(value any, columns ...string) *Conditions {
	c.args = append(c.args, value)
	ors := make([]string, len(columns))
	for i, col := range columns {
		ors[i] = fmt.Sprintf("%s = $%d", col, len(c.args))
	}
	c.clauses = append(c.clauses, "("+strings.Join(ors, " OR ")+")")
	return c
}

// Next returns the placeholder following the bound arguments and binds value to it
func (c *Conditions) Next(value any) string {
	c.args = append(c.args, value)
	return fmt.Sprintf("$%d", len(c.args))
}

func (c *Conditions) String() string {
	return strings.Join(c.clauses, " AND ")
}

func (c *Conditions) Args() []any {
	return c.args
}

func splitColumns(s string) []string {
	var cols []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); len(c) != 0 {
			cols = append(cols, c)
		}
	}
	return cols
}
