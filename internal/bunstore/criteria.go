package bunstore

import (
	"fmt"
	"slices"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/concoro-it/concoro/concorsi"
)

var columns = map[concorsi.Field]string{
	concorsi.FieldID:          "c.id",
	concorsi.FieldTitle:       "c.title",
	concorsi.FieldEnte:        "c.ente",
	concorsi.FieldRegion:      "c.region",
	concorsi.FieldSector:      "c.sector",
	concorsi.FieldRegime:      "c.regime",
	concorsi.FieldStatus:      "c.status",
	concorsi.FieldDeadline:    "c.deadline",
	concorsi.FieldPublishedAt: "c.published_at",
	concorsi.FieldPositions:   "c.positions",
}

// matchColumns replaces the display column in equality filters on folded fields.
var matchColumns = map[concorsi.Field]string{
	concorsi.FieldEnte:   "c.ente_key",
	concorsi.FieldSector: "c.sector_key",
}

func column(f concorsi.Field) (string, error) {
	col, ok := columns[f]
	if !ok {
		return "", fmt.Errorf("bunstore: unsupported field %q", f)
	}
	return col, nil
}

// orderExpr is the expression a field sorts by. Missing deadlines sort as the
// far future, like in the in-memory store.
func orderExpr(f concorsi.Field) (string, []any, error) {
	col, err := column(f)
	if err != nil {
		return "", nil, err
	}
	if f == concorsi.FieldDeadline {
		return "COALESCE(" + col + ", ?)", []any{concorsi.FarFuture()}, nil
	}
	return col, nil, nil
}

// Where returns the criteria applying every plan clause.
func Where(plan concorsi.Plan) (repository.SelectCriteria, error) {
	type cond struct {
		query string
		args  []any
	}
	conds := make([]cond, 0, len(plan.Clauses))

	for _, cl := range plan.Clauses {
		if cl.Op == concorsi.OpArrayContains {
			if cl.Field != concorsi.FieldKeywords {
				return nil, fmt.Errorf("bunstore: array-contains on %q", cl.Field)
			}
			conds = append(conds, cond{
				query: "EXISTS (SELECT 1 FROM json_each(c.keywords) WHERE json_each.value = ?)",
				args:  []any{cl.Value},
			})
			continue
		}

		col, err := column(cl.Field)
		if err != nil {
			return nil, err
		}
		if key, ok := matchColumns[cl.Field]; ok {
			col = key
		}
		switch cl.Op {
		case concorsi.OpEqual:
			conds = append(conds, cond{col + " = ?", []any{cl.Value}})
		case concorsi.OpIn:
			conds = append(conds, cond{col + " IN (?)", []any{bun.In(cl.Value)}})
		case concorsi.OpGreaterEqual:
			conds = append(conds, cond{col + " >= ?", []any{cl.Value}})
		case concorsi.OpLess:
			conds = append(conds, cond{col + " < ?", []any{cl.Value}})
		default:
			return nil, fmt.Errorf("bunstore: unsupported operator %q", cl.Op)
		}
	}

	return func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, c := range conds {
			q = q.Where(c.query, c.args...)
		}
		return q
	}, nil
}

// OrderBy returns the criteria applying the plan ordering.
func OrderBy(plan concorsi.Plan) (repository.SelectCriteria, error) {
	type term struct {
		expr string
		args []any
	}
	terms := make([]term, 0, len(plan.Orders))
	for _, o := range plan.Orders {
		expr, args, err := orderExpr(o.Field)
		if err != nil {
			return nil, err
		}
		terms = append(terms, term{expr + " " + strings.ToUpper(string(o.Dir)), args})
	}

	return func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, t := range terms {
			q = q.OrderExpr(t.expr, t.args...)
		}
		return q
	}, nil
}

// Page returns the criteria applying limit and offset.
func Page(plan concorsi.Plan) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		if plan.Limit > 0 {
			q = q.Limit(plan.Limit)
		}
		if plan.Offset > 0 {
			q = q.Offset(plan.Offset)
		}
		return q
	}
}

// After returns the keyset criteria selecting the rows ordered strictly after
// cursor: (a > x) OR (a = x AND b > y) OR ... with the comparison flipped for
// descending terms.
func After(plan concorsi.Plan, cursor concorsi.Concorso) (repository.SelectCriteria, error) {
	var (
		parts  []string
		args   []any
		eqs    []string
		eqArgs []any
	)

	for _, o := range plan.Orders {
		expr, exprArgs, err := orderExpr(o.Field)
		if err != nil {
			return nil, err
		}
		value := cursorValue(cursor, o.Field)

		cmp := ">"
		if o.Dir == concorsi.Desc {
			cmp = "<"
		}

		part := append(slices.Clone(eqs), expr+" "+cmp+" ?")
		parts = append(parts, "("+strings.Join(part, " AND ")+")")
		args = append(args, eqArgs...)
		args = append(args, exprArgs...)
		args = append(args, value)

		eqs = append(eqs, expr+" = ?")
		eqArgs = append(eqArgs, exprArgs...)
		eqArgs = append(eqArgs, value)
	}

	query := "(" + strings.Join(parts, " OR ") + ")"
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where(query, args...)
	}, nil
}

func cursorValue(c concorsi.Concorso, f concorsi.Field) any {
	switch f {
	case concorsi.FieldPositions:
		return c.Positions
	case concorsi.FieldDeadline, concorsi.FieldPublishedAt:
		t, _ := concorsi.FieldTime(c, f)
		return t.UTC()
	}
	return concorsi.FieldString(c, f)
}
