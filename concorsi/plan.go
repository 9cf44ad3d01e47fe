package concorsi

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Field names a queryable attribute of a Concorso.
type Field string

const (
	FieldID          Field = "id"
	FieldTitle       Field = "title"
	FieldEnte        Field = "ente"
	FieldRegion      Field = "region"
	FieldSector      Field = "sector"
	FieldRegime      Field = "regime"
	FieldStatus      Field = "status"
	FieldDeadline    Field = "deadline"
	FieldPublishedAt Field = "published_at"
	FieldPositions   Field = "positions"
	FieldKeywords    Field = "keywords"
)

// Op is a clause operator.
type Op string

const (
	OpEqual         Op = "=="
	OpIn            Op = "in"
	OpGreaterEqual  Op = ">="
	OpLess          Op = "<"
	OpArrayContains Op = "array-contains"
)

// IsRange reports whether op constrains a range rather than a single value.
func (op Op) IsRange() bool {
	return op == OpGreaterEqual || op == OpLess
}

// Clause is one filter constraint. Value is a string for equality and
// array-contains, a []string for OpIn and a time.Time for range operators.
type Clause struct {
	Field Field
	Op    Op
	Value any
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Order is one ordering term.
type Order struct {
	Field Field
	Dir   Direction
}

// Plan is a store-agnostic query: conjunctive clauses, ordering terms and
// pagination. Stores execute it as is.
type Plan struct {
	Clauses []Clause
	Orders  []Order
	// Limit is PageSize+1 so that one extra record reveals a further page.
	Limit    int
	PageSize int
	Offset   int
	// StartAfter is the id of the last record of the previous page.
	StartAfter string
}

// farFuture stands in for a missing deadline when ordering.
var farFuture = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// FarFuture returns the deadline used for records without one.
func FarFuture() time.Time { return farFuture }

var primaryFields = map[PrimaryKind]Field{
	PrimaryRegion:   FieldRegion,
	PrimarySector:   FieldSector,
	PrimaryEnte:     FieldEnte,
	PrimaryRegime:   FieldRegime,
	PrimaryDeadline: FieldDeadline,
}

var sortOrders = map[SortKey]Order{
	SortPublishedDesc: {FieldPublishedAt, Desc},
	SortPublishedAsc:  {FieldPublishedAt, Asc},
	SortDeadlineAsc:   {FieldDeadline, Asc},
	SortDeadlineDesc:  {FieldDeadline, Desc},
	SortPositionsDesc: {FieldPositions, Desc},
	SortTitleAsc:      {FieldTitle, Asc},
}

// BuildPlan normalizes and validates r and turns it into a Plan. Deadline
// windows are resolved against now. It performs no I/O.
//
// The primary filter comes first, then secondary equality and "in" filters,
// the status filter unless StatusAll, and one array-contains clause per
// keyword token. At most one range field is allowed; ordering on that field
// precedes the requested sort when they differ, and id breaks ties.
func BuildPlan(r FilterRequest, now time.Time) (Plan, error) {
	r = r.Normalize()
	if err := r.Validate(); err != nil {
		return Plan{}, err
	}

	var clauses []Clause
	var rangeField Field

	addRange := func(field Field, from, to time.Time) error {
		if rangeField != "" && rangeField != field {
			return &FilterError{
				Field:   string(field),
				Message: "cannot be combined with a range on " + string(rangeField),
				Err:     ErrInvalidFilterCombination,
			}
		}
		rangeField = field
		clauses = append(clauses, Clause{Field: field, Op: OpGreaterEqual, Value: from})
		if !to.IsZero() {
			clauses = append(clauses, Clause{Field: field, Op: OpLess, Value: to})
		}
		return nil
	}

	switch r.Primary.Kind {
	case PrimaryNone:
	case PrimaryDeadline:
		from, to, _ := DeadlineBucket(r.Primary.Value).Range(now)
		if err := addRange(FieldDeadline, from, to); err != nil {
			return Plan{}, err
		}
	default:
		field := primaryFields[r.Primary.Kind]
		clauses = append(clauses, Clause{Field: field, Op: OpEqual, Value: MatchForm(field, r.Primary.Value)})
	}

	switch len(r.Regions) {
	case 0:
	case 1:
		clauses = append(clauses, Clause{Field: FieldRegion, Op: OpEqual, Value: r.Regions[0]})
	default:
		clauses = append(clauses, Clause{Field: FieldRegion, Op: OpIn, Value: slices.Clone(r.Regions)})
	}
	for _, eq := range []struct {
		field Field
		value string
	}{
		{FieldEnte, r.Ente},
		{FieldSector, r.Sector},
		{FieldRegime, r.Regime},
	} {
		if eq.value != "" {
			clauses = append(clauses, Clause{Field: eq.field, Op: OpEqual, Value: MatchForm(eq.field, eq.value)})
		}
	}

	if r.Status != StatusAll {
		clauses = append(clauses, Clause{Field: FieldStatus, Op: OpEqual, Value: string(r.Status)})
	}

	if from, to, ok := r.Deadline.Range(now); ok {
		if err := addRange(FieldDeadline, from, to); err != nil {
			return Plan{}, err
		}
	}
	if r.PublishedAfter != nil {
		if err := addRange(FieldPublishedAt, *r.PublishedAfter, time.Time{}); err != nil {
			return Plan{}, err
		}
	}

	if r.Keyword != "" {
		for _, token := range strings.Fields(r.Keyword) {
			clauses = append(clauses, Clause{Field: FieldKeywords, Op: OpArrayContains, Value: token})
		}
	}

	sortOrder := sortOrders[r.Sort]
	var orders []Order
	if rangeField != "" && rangeField != sortOrder.Field {
		orders = append(orders, Order{Field: rangeField, Dir: Asc})
	}
	orders = append(orders, sortOrder, Order{Field: FieldID, Dir: Asc})

	plan := Plan{
		Clauses:    clauses,
		Orders:     orders,
		PageSize:   r.PageSize,
		Limit:      r.PageSize + 1,
		StartAfter: r.Cursor,
	}
	if r.Page > 1 {
		plan.Offset = (r.Page - 1) * r.PageSize
	}
	return plan, nil
}

// RangeField returns the field constrained by a range clause, if any.
func (p Plan) RangeField() (Field, bool) {
	for _, c := range p.Clauses {
		if c.Op.IsRange() {
			return c.Field, true
		}
	}
	return "", false
}

// Matches reports whether c satisfies every clause of p.
func (p Plan) Matches(c Concorso) bool {
	for _, clause := range p.Clauses {
		if !clause.Matches(c) {
			return false
		}
	}
	return true
}

// FoldedFields are matched case and accent insensitively: clause values and
// stored values are both compared through FoldLabel.
var FoldedFields = map[Field]bool{
	FieldEnte:   true,
	FieldSector: true,
}

// MatchForm returns the form of v that equality clauses on field compare.
func MatchForm(field Field, v string) string {
	if FoldedFields[field] {
		return FoldLabel(v)
	}
	return v
}

// Matches reports whether c satisfies the clause.
func (cl Clause) Matches(c Concorso) bool {
	switch cl.Op {
	case OpEqual:
		s, _ := cl.Value.(string)
		return MatchForm(cl.Field, FieldString(c, cl.Field)) == s
	case OpIn:
		values, _ := cl.Value.([]string)
		return slices.Contains(values, FieldString(c, cl.Field))
	case OpArrayContains:
		s, _ := cl.Value.(string)
		return cl.Field == FieldKeywords && slices.Contains(c.Keywords, s)
	case OpGreaterEqual, OpLess:
		bound, _ := cl.Value.(time.Time)
		t, ok := FieldTime(c, cl.Field)
		if !ok {
			return false
		}
		if cl.Op == OpGreaterEqual {
			return !t.Before(bound)
		}
		return t.Before(bound)
	}
	return false
}

// Compare orders a and b by the plan's ordering terms. It returns a negative
// number when a sorts first.
func (p Plan) Compare(a, b Concorso) int {
	for _, o := range p.Orders {
		c := compareField(a, b, o.Field)
		if c == 0 {
			continue
		}
		if o.Dir == Desc {
			return -c
		}
		return c
	}
	return 0
}

func compareField(a, b Concorso, f Field) int {
	switch f {
	case FieldPositions:
		return cmp.Compare(a.Positions, b.Positions)
	case FieldDeadline, FieldPublishedAt:
		ta, _ := FieldTime(a, f)
		tb, _ := FieldTime(b, f)
		return ta.Compare(tb)
	}
	return strings.Compare(FieldString(a, f), FieldString(b, f))
}

// FieldString returns the string value of f on c.
func FieldString(c Concorso, f Field) string {
	switch f {
	case FieldID:
		return c.ID
	case FieldTitle:
		return c.Title
	case FieldEnte:
		return c.Ente
	case FieldRegion:
		return c.Region
	case FieldSector:
		return c.Sector
	case FieldRegime:
		return c.Regime
	case FieldStatus:
		return string(c.Status)
	}
	return ""
}

// FieldTime returns the time value of f on c. A missing deadline reports
// FarFuture and false.
func FieldTime(c Concorso, f Field) (time.Time, bool) {
	switch f {
	case FieldPublishedAt:
		return c.PublishedAt, true
	case FieldDeadline:
		if c.Deadline == nil {
			return farFuture, false
		}
		return *c.Deadline, true
	}
	return time.Time{}, false
}
