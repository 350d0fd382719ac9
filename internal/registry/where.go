package registry

import (
	"fmt"
	"strings"
)

// WhereBuilder accumulates AND-ed conditions with numbered placeholders.
type WhereBuilder struct {
	conditions []string
	args       []any
	argIndex   int
}

func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{argIndex: 1}
}

// NextArgIndex returns the number the next placeholder will get.
func (wb *WhereBuilder) NextArgIndex() int {
	return wb.argIndex
}

func (wb *WhereBuilder) arg(v any) string {
	wb.args = append(wb.args, v)
	p := fmt.Sprintf("$%d", wb.argIndex)
	wb.argIndex++
	return p
}

// Add appends "col = $n". Empty strings are skipped.
func (wb *WhereBuilder) Add(col string, val any) {
	if s, ok := val.(string); ok && s == "" {
		return
	}
	wb.conditions = append(wb.conditions, col+" = "+wb.arg(val))
}

// AddExpr appends expr with its single %s replaced by the placeholder of val.
func (wb *WhereBuilder) AddExpr(expr string, val any) {
	wb.conditions = append(wb.conditions, fmt.Sprintf(expr, wb.arg(val)))
}

// AddSearch matches query case-insensitively as a substring of any of cols.
// All columns share one placeholder.
func (wb *WhereBuilder) AddSearch(query string, cols ...string) {
	query = strings.TrimSpace(query)
	if query == "" || len(cols) == 0 {
		return
	}
	p := wb.arg("%" + escapeLike(query) + "%")

	parts := make([]string, len(cols))
	for i, col := range cols {
		parts[i] = col + " ILIKE " + p
	}
	wb.conditions = append(wb.conditions, "("+strings.Join(parts, " OR ")+")")
}

// Build returns the WHERE clause, with a leading space, and its arguments.
func (wb *WhereBuilder) Build() (string, []any) {
	if len(wb.conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(wb.conditions, " AND "), wb.args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
