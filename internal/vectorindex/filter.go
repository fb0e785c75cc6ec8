package vectorindex

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"enterprise-kb/internal/model"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,63}$`)

type Op int

const (
	OpEq Op = iota
	OpIn
)

// Expr is a boolean predicate over chunk payload fields. Values are
// validated on construction and never spliced into a query string.
type Expr interface {
	String() string
	match(c *Chunk) bool
}

type Cond struct {
	Field  string
	Op     Op
	Values []string
}

type And struct{ Exprs []Expr }

type Or struct{ Exprs []Expr }

func validateValue(field, value string) error {
	if field == FieldPermissionLevel {
		if !model.PermissionLevel(value).Valid() {
			return fmt.Errorf("%w: permission level %q", ErrInvalidFilterValue, value)
		}
		return nil
	}
	if !identifierPattern.MatchString(value) {
		return fmt.Errorf("%w: %s %q", ErrInvalidFilterValue, field, value)
	}
	return nil
}

func validateField(field string) error {
	for _, f := range keywordFields {
		if f == field {
			return nil
		}
	}
	return fmt.Errorf("%w: field %q is not filterable", ErrInvalidFilterValue, field)
}

func Eq(field, value string) (Expr, error) {
	if err := validateField(field); err != nil {
		return nil, err
	}
	if err := validateValue(field, value); err != nil {
		return nil, err
	}
	return Cond{Field: field, Op: OpEq, Values: []string{value}}, nil
}

func In(field string, values ...string) (Expr, error) {
	if err := validateField(field); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty %s set", ErrInvalidFilterValue, field)
	}
	for _, v := range values {
		if err := validateValue(field, v); err != nil {
			return nil, err
		}
	}
	return Cond{Field: field, Op: OpIn, Values: append([]string(nil), values...)}, nil
}

// AllOf returns the conjunction, collapsing the zero and one element cases.
func AllOf(exprs ...Expr) Expr {
	exprs = compact(exprs)
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return And{Exprs: exprs}
}

func AnyOf(exprs ...Expr) Expr {
	exprs = compact(exprs)
	switch len(exprs) {
	case 0:
		return nil
	case 1:
		return exprs[0]
	}
	return Or{Exprs: exprs}
}

func compact(exprs []Expr) []Expr {
	out := exprs[:0:0]
	for _, e := range exprs {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c Cond) String() string {
	quoted := make([]string, len(c.Values))
	for i, v := range c.Values {
		quoted[i] = strconv.Quote(v)
	}
	if c.Op == OpIn {
		return fmt.Sprintf("%s in [%s]", c.Field, strings.Join(quoted, ", "))
	}
	return fmt.Sprintf("%s == %s", c.Field, quoted[0])
}

func (a And) String() string { return joinExprs(a.Exprs, " and ") }
func (o Or) String() string  { return joinExprs(o.Exprs, " or ") }

func joinExprs(exprs []Expr, sep string) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = e.String()
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (c Cond) match(ch *Chunk) bool {
	got := fieldValue(ch, c.Field)
	for _, v := range c.Values {
		if got == v {
			return true
		}
	}
	return false
}

func (a And) match(ch *Chunk) bool {
	for _, e := range a.Exprs {
		if !e.match(ch) {
			return false
		}
	}
	return true
}

func (o Or) match(ch *Chunk) bool {
	for _, e := range o.Exprs {
		if e.match(ch) {
			return true
		}
	}
	return false
}

// Matches evaluates expr against a chunk; a nil expr matches everything.
func Matches(expr Expr, ch *Chunk) bool {
	if expr == nil {
		return true
	}
	return expr.match(ch)
}

func fieldValue(ch *Chunk, field string) string {
	switch field {
	case FieldDocumentID:
		return ch.DocumentID
	case FieldOwnerID:
		return ch.OwnerID
	case FieldDepartmentID:
		return ch.DepartmentID
	case FieldPermissionLevel:
		return ch.PermissionLevel
	}
	return ""
}

// SearchFilter is the structured form of a retrieval restriction.
//
// With PublicOrDepartment set, permission is "public, or department-level
// and owned by DepartmentID". Otherwise DepartmentID and PermissionLevel
// are independent equality filters.
type SearchFilter struct {
	DocumentIDs        []string
	OwnerID            string
	PublicOrDepartment bool
	DepartmentID       string
	PermissionLevel    string
}

func (f SearchFilter) Build() (Expr, error) {
	var parts []Expr

	if len(f.DocumentIDs) > 0 {
		e, err := In(FieldDocumentID, f.DocumentIDs...)
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}
	if f.OwnerID != "" {
		e, err := Eq(FieldOwnerID, f.OwnerID)
		if err != nil {
			return nil, err
		}
		parts = append(parts, e)
	}

	if f.PublicOrDepartment {
		public, _ := Eq(FieldPermissionLevel, string(model.PermissionPublic))
		perm := []Expr{public}
		if f.DepartmentID != "" {
			level, _ := Eq(FieldPermissionLevel, string(model.PermissionDepartment))
			dept, err := Eq(FieldDepartmentID, f.DepartmentID)
			if err != nil {
				return nil, err
			}
			perm = append(perm, AllOf(level, dept))
		}
		parts = append(parts, AnyOf(perm...))
	} else {
		if f.DepartmentID != "" {
			e, err := Eq(FieldDepartmentID, f.DepartmentID)
			if err != nil {
				return nil, err
			}
			parts = append(parts, e)
		}
		if f.PermissionLevel != "" {
			e, err := Eq(FieldPermissionLevel, f.PermissionLevel)
			if err != nil {
				return nil, err
			}
			parts = append(parts, e)
		}
	}

	return AllOf(parts...), nil
}
