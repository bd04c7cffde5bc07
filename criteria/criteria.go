// Package criteria compiles structured filter expressions into parameterized
// SQL conditions.
//
// A Criteria maps a field name to either a plain value (equality) or an
// operator-tagged value:
//
//	criteria.Criteria{
//		"name": "bob",
//		"age":  criteria.Gt(35),
//		"tag":  map[string]any{"op": "in", "value": []any{"a", "b"}},
//	}
//
// Fields are combined with AND. There is no top-level OR.
package criteria

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// ErrInvalid is returned for malformed criteria or unknown operators.
var ErrInvalid = errors.New("invalid criteria")

// Criteria is a filter expression keyed by field name.
type Criteria map[string]any

// Cond is an operator-tagged criteria value.
type Cond struct {
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Comparison constructors.
func Eq(v any) Cond      { return Cond{Op: "=", Value: v} }
func Ne(v any) Cond      { return Cond{Op: "!=", Value: v} }
func Lt(v any) Cond      { return Cond{Op: "<", Value: v} }
func Le(v any) Cond      { return Cond{Op: "<=", Value: v} }
func Gt(v any) Cond      { return Cond{Op: ">", Value: v} }
func Ge(v any) Cond      { return Cond{Op: ">=", Value: v} }
func Like(p string) Cond { return Cond{Op: "like", Value: p} }

// In matches any of vs.
func In(vs ...any) Cond { return Cond{Op: "in", Value: vs} }

// NotIn matches none of vs.
func NotIn(vs ...any) Cond { return Cond{Op: "not in", Value: vs} }

// Between matches lo <= field <= hi.
func Between(lo, hi any) Cond { return Cond{Op: "between", Value: []any{lo, hi}} }

// Condition is a compiled WHERE fragment. SQL does not include the WHERE
// keyword. Args are in placeholder order.
type Condition struct {
	SQL  string
	Args []any
}

// Empty reports whether the condition matches everything, in which case the
// caller should omit the WHERE clause.
func (c Condition) Empty() bool { return c.SQL == "" }

type opKind int

const (
	opBinary opKind = iota
	opList
	opRange
)

type operator struct {
	sql  string
	kind opKind
}

var operators = map[string]operator{
	"=":        {"=", opBinary},
	"==":       {"=", opBinary},
	"eq":       {"=", opBinary},
	"!=":       {"!=", opBinary},
	"<>":       {"!=", opBinary},
	"ne":       {"!=", opBinary},
	"<":        {"<", opBinary},
	"lt":       {"<", opBinary},
	"<=":       {"<=", opBinary},
	"le":       {"<=", opBinary},
	"lte":      {"<=", opBinary},
	">":        {">", opBinary},
	"gt":       {">", opBinary},
	">=":       {">=", opBinary},
	"ge":       {">=", opBinary},
	"gte":      {">=", opBinary},
	"like":     {"LIKE", opBinary},
	"not like": {"NOT LIKE", opBinary},
	"glob":     {"GLOB", opBinary},
	"is":       {"IS", opBinary},
	"is not":   {"IS NOT", opBinary},
	"in":       {"IN", opList},
	"not in":   {"NOT IN", opList},
	"between":  {"BETWEEN", opRange},
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent reports whether name is usable as an unquoted column name.
func ValidIdent(name string) bool { return identRe.MatchString(name) }

// Quote returns name as a double-quoted SQL identifier.
func Quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Fields returns the field names referenced by c, sorted.
func (c Criteria) Fields() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Compile turns c into a parameterized condition. A nil or empty criteria
// yields an empty condition. Values are only ever bound, never inspected.
func Compile(c Criteria) (Condition, error) {
	if len(c) == 0 {
		return Condition{}, nil
	}

	var (
		parts []string
		args  []any
	)
	for _, field := range c.Fields() {
		if !ValidIdent(field) {
			return Condition{}, fmt.Errorf("%w: bad field name %q", ErrInvalid, field)
		}
		part, vals, err := compileField(field, c[field])
		if err != nil {
			return Condition{}, err
		}
		parts = append(parts, part)
		args = append(args, vals...)
	}
	return Condition{SQL: strings.Join(parts, " AND "), Args: args}, nil
}

func compileField(field string, raw any) (string, []any, error) {
	cond, tagged, err := asCond(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: field %q: %v", ErrInvalid, field, err)
	}
	col := Quote(field)

	if !tagged {
		v, ok := Canonical(raw)
		if !ok {
			return "", nil, fmt.Errorf("%w: field %q: value of type %T is not a scalar", ErrInvalid, field, raw)
		}
		if v == nil {
			return col + " IS ?", []any{nil}, nil
		}
		return col + " = ?", []any{v}, nil
	}

	op, ok := operators[normalizeOp(cond.Op)]
	if !ok {
		return "", nil, fmt.Errorf("%w: field %q: unknown operator %q", ErrInvalid, field, cond.Op)
	}

	switch op.kind {
	case opList:
		vals, ok := asList(cond.Value)
		if !ok {
			return "", nil, fmt.Errorf("%w: field %q: %s needs a list value", ErrInvalid, field, op.sql)
		}
		var args []any
		for _, v := range vals {
			cv, ok := Canonical(v)
			if !ok {
				return "", nil, fmt.Errorf("%w: field %q: list element of type %T is not a scalar", ErrInvalid, field, v)
			}
			args = append(args, cv)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(vals)), ", ")
		return fmt.Sprintf("%s %s (%s)", col, op.sql, marks), args, nil
	case opRange:
		vals, ok := asList(cond.Value)
		if !ok || len(vals) != 2 {
			return "", nil, fmt.Errorf("%w: field %q: BETWEEN needs exactly two scalar values", ErrInvalid, field)
		}
		lo, lok := Canonical(vals[0])
		hi, hok := Canonical(vals[1])
		if !lok || !hok {
			return "", nil, fmt.Errorf("%w: field %q: BETWEEN needs exactly two scalar values", ErrInvalid, field)
		}
		return col + " BETWEEN ? AND ?", []any{lo, hi}, nil
	default:
		v, ok := Canonical(cond.Value)
		if !ok {
			return "", nil, fmt.Errorf("%w: field %q: value of type %T is not a scalar", ErrInvalid, field, cond.Value)
		}
		if v == nil && op.sql == "=" {
			return col + " IS ?", []any{nil}, nil
		}
		if v == nil && op.sql == "!=" {
			return col + " IS NOT ?", []any{nil}, nil
		}
		return fmt.Sprintf("%s %s ?", col, op.sql), []any{v}, nil
	}
}

func normalizeOp(op string) string {
	return strings.Join(strings.Fields(strings.ToLower(op)), " ")
}

// asCond recognises the operator-tagged forms. A map is only accepted when
// it has exactly the keys "op" and "value".
func asCond(v any) (Cond, bool, error) {
	switch t := v.(type) {
	case Cond:
		return t, true, nil
	case *Cond:
		if t == nil {
			return Cond{}, false, errors.New("nil condition")
		}
		return *t, true, nil
	case map[string]any:
		op, hasOp := t["op"]
		val, hasVal := t["value"]
		if !hasOp || !hasVal || len(t) != 2 {
			return Cond{}, false, errors.New(`operator value must have exactly "op" and "value"`)
		}
		s, ok := op.(string)
		if !ok {
			return Cond{}, false, fmt.Errorf("operator must be a string, got %T", op)
		}
		return Cond{Op: s, Value: val}, true, nil
	}
	return Cond{}, false, nil
}

func asList(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if l, ok := v.([]any); ok {
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	// []byte is a scalar blob, not a list.
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// IsScalar reports whether v is a value the store binds directly.
func IsScalar(v any) bool {
	_, ok := Canonical(v)
	return ok
}

// Canonical converts a scalar to the type SQLite hands back for it: integers
// and booleans become int64, floats become float64. Strings, []byte and nil
// are returned as is. ok is false for anything else, including unsigned
// values above math.MaxInt64.
func Canonical(v any) (out any, ok bool) {
	switch t := v.(type) {
	case nil, string, []byte, int64, float64:
		return t, true
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint:
		if uint64(t) > math.MaxInt64 {
			return nil, false
		}
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return nil, false
		}
		return int64(t), true
	case float32:
		return float64(t), true
	case bool:
		if t {
			return int64(1), true
		}
		return int64(0), true
	}
	return nil, false
}
