// Package search builds conjunctive filters from search criteria objects. Each
// criteria type lists its searchable columns with a comparison mode; blank
// values are skipped, so an absent field never constrains the result.
package search

import (
	"cmp"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/shopspring/decimal"
)

// Mode is the comparison applied to a searchable field.
type Mode int

const (
	Equal Mode = iota + 1
	Like
	GreaterThan
	LessThan
)

func (m Mode) String() string {
	switch m {
	case Equal:
		return "EQUAL"
	case Like:
		return "LIKE"
	case GreaterThan:
		return "GREATER_THAN"
	case LessThan:
		return "LESS_THAN"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Field pairs a column with its comparison mode and the requested value.
type Field struct {
	Column string
	Mode   Mode
	Value  any
}

// Criteria is implemented by search request types.
type Criteria interface {
	SearchFields() []Field
}

// Term is one constraint of a Predicate. Value is already dereferenced.
type Term struct {
	Column string
	Mode   Mode
	Value  any
}

// Predicate is the AND of its terms. The zero Predicate matches everything.
type Predicate struct {
	terms []Term
}

// Build emits one term per field with a non-nil, non-blank value.
func Build(c Criteria) Predicate {
	var p Predicate
	if c == nil {
		return p
	}
	for _, f := range c.SearchFields() {
		v, ok := normalize(f.Value)
		if !ok {
			continue
		}
		p.terms = append(p.terms, Term{Column: f.Column, Mode: f.Mode, Value: v})
	}
	return p
}

// Terms returns a copy of the predicate's terms.
func (p Predicate) Terms() []Term {
	out := make([]Term, len(p.terms))
	copy(out, p.terms)
	return out
}

// Empty reports whether the predicate has no constraint.
func (p Predicate) Empty() bool { return len(p.terms) == 0 }

// Expression renders the predicate for a goqu select. LIKE lowercases both
// sides and wraps the value in % markers.
func (p Predicate) Expression() exp.ExpressionList {
	exprs := make([]exp.Expression, 0, len(p.terms))
	for _, t := range p.terms {
		col := goqu.C(t.Column)
		switch t.Mode {
		case Like:
			pattern := "%" + strings.ToLower(fmt.Sprint(t.Value)) + "%"
			exprs = append(exprs, goqu.Func("LOWER", col).Like(pattern))
		case Equal:
			exprs = append(exprs, col.Eq(t.Value))
		case GreaterThan:
			exprs = append(exprs, col.Gt(t.Value))
		case LessThan:
			exprs = append(exprs, col.Lt(t.Value))
		}
	}
	return goqu.And(exprs...)
}

// Match evaluates the predicate in memory. lookup returns the record's value
// for a column, using the same Go types the criteria carry.
func (p Predicate) Match(lookup func(column string) any) bool {
	for _, t := range p.terms {
		if !t.match(lookup(t.Column)) {
			return false
		}
	}
	return true
}

func (t Term) match(v any) bool {
	if t.Mode == Like {
		s, ok := v.(string)
		return ok && strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(t.Value)))
	}
	c, ok := compare(v, t.Value)
	if !ok {
		return false
	}
	switch t.Mode {
	case Equal:
		return c == 0
	case GreaterThan:
		return c > 0
	case LessThan:
		return c < 0
	}
	return false
}

// compare orders a against b. ok is false when the types differ or are not ordered.
func compare(a, b any) (int, bool) {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		return cmp.Compare(x, y), ok
	case int64:
		y, ok := b.(int64)
		return cmp.Compare(x, y), ok
	case int:
		y, ok := b.(int)
		return cmp.Compare(x, y), ok
	case float64:
		y, ok := b.(float64)
		return cmp.Compare(x, y), ok
	case decimal.Decimal:
		y, ok := b.(decimal.Decimal)
		if !ok {
			return 0, false
		}
		return x.Cmp(y), true
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return x.Compare(y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		if x == y {
			return 0, true
		}
		if !x {
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func normalize(v any) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case string:
		if strings.TrimSpace(x) == "" {
			return nil, false
		}
		return x, true
	case *string:
		if x == nil {
			return nil, false
		}
		return normalize(*x)
	case *int64:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *float64:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *bool:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *decimal.Decimal:
		if x == nil {
			return nil, false
		}
		return *x, true
	case *time.Time:
		if x == nil {
			return nil, false
		}
		return *x, true
	default:
		return v, true
	}
}
