package database

import (
	"strconv"
	"strings"
)

// Cond is a parameterized SQL predicate. Column names are fixed identifiers
// chosen by the stores; values are always passed as bind arguments.
type Cond interface {
	render(args *[]any) string
}

type cmp struct {
	col string
	op  string
	val any
}

func (c cmp) render(args *[]any) string {
	*args = append(*args, c.val)
	return c.col + " " + c.op + " $" + strconv.Itoa(len(*args))
}

// Eq matches col = val.
func Eq(col string, val any) Cond { return cmp{col: col, op: "=", val: val} }

// Gt matches col > val.
func Gt(col string, val any) Cond { return cmp{col: col, op: ">", val: val} }

type in struct {
	col  string
	vals any
}

func (c in) render(args *[]any) string {
	*args = append(*args, c.vals)
	return c.col + " = ANY($" + strconv.Itoa(len(*args)) + ")"
}

// In matches col against every element of vals, which must be a slice.
func In(col string, vals any) Cond { return in{col: col, vals: vals} }

type group struct {
	sep   string
	conds []Cond
}

func (g group) render(args *[]any) string {
	parts := make([]string, 0, len(g.conds))
	for _, c := range g.conds {
		parts = append(parts, c.render(args))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, g.sep) + ")"
}

func And(conds ...Cond) Cond { return group{sep: " AND ", conds: conds} }

func Or(conds ...Cond) Cond { return group{sep: " OR ", conds: conds} }

// Where renders c as a WHERE clause whose placeholders start after offset
// existing arguments.
func Where(offset int, c Cond) (string, []any) {
	args := make([]any, offset, offset+4)
	clause := c.render(&args)
	return "WHERE " + clause, args[offset:]
}
