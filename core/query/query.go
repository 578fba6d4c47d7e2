// Package query turns URL query parameters into typed filters, orderings and pagination
// that repositories can run either as SQL or in memory.
package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
)

// reserved params
const (
	PageParam     = "page"
	LimitParam    = "limit"
	SortParam     = "sort"
	OrderingParam = "ordering"
	SearchParam   = "search"
)

var (
	errInvalidValue    = "invalid value"
	errInvalidOperator = "operator not supported on this field"
)

// Kind is the type of a filterable field.
type Kind int

const (
	String Kind = iota
	Int
	Float
	Bool
	Time
	// List is a text array; eq matches elements by case-insensitive prefix.
	List
	// UUID values are validated and stored in canonical form.
	UUID
)

// textual kinds are the only ones `like` and search can run on.
func (k Kind) textual() bool { return k == String || k == List }

// Op is a filter operator.
type Op string

const (
	Eq   Op = "eq"
	Ne   Op = "ne"
	Gt   Op = "gt"
	Gte  Op = "gte"
	Lt   Op = "lt"
	Lte  Op = "lte"
	In   Op = "in"
	Nin  Op = "nin"
	Like Op = "like"
)

var ops = map[Op]bool{Eq: true, Ne: true, Gt: true, Gte: true, Lt: true, Lte: true, In: true, Nin: true, Like: true}

type (
	// Field describes a public field name of a resource.
	// Column may be a SQL expression, e.g. "(read_at IS NOT NULL)".
	Field struct {
		Column string
		Kind   Kind
		Search bool
	}

	// Schema lists what a resource can be filtered, searched and sorted on.
	Schema struct {
		Fields          map[string]Field
		DefaultOrdering []core.DBOrdering
	}

	Condition struct {
		Field string
		Op    Op
		Value interface{} // []interface{} for In and Nin
	}

	Limits struct {
		Default int
		Max     int
	}

	Query struct {
		Conditions []Condition
		Search     string
		Orderings  []core.DBOrdering
		Page       int
		Limit      int // 0: no limit
		schema     *Schema
	}
)

// New returns an unpaginated Query with the schema's default ordering.
func New(schema *Schema) Query {
	return Query{Page: 1, Orderings: schema.DefaultOrdering, schema: schema}
}

// Parse builds a Query from URL query parameters.
// Unknown fields, operators and sort keys are ignored; values that do not parse are a core.ValidationError.
func Parse(values url.Values, schema *Schema, limits Limits) (Query, error) {
	if limits.Default <= 0 {
		limits.Default = 10
	}
	if limits.Max < limits.Default {
		limits.Max = limits.Default
	}

	q := Query{Page: 1, Limit: limits.Default, schema: schema}

	if n, err := strconv.Atoi(values.Get(PageParam)); err == nil && n > 0 {
		q.Page = n
	}
	if n, err := strconv.Atoi(values.Get(LimitParam)); err == nil && n > 0 {
		q.Limit = n
		if n > limits.Max {
			q.Limit = limits.Max
		}
	}

	q.Search = core.CleanString(values.Get(SearchParam))

	ordering := values.Get(SortParam)
	if ordering == "" {
		ordering = values.Get(OrderingParam)
	}
	q.Orderings = parseOrdering(ordering, schema)
	if len(q.Orderings) == 0 {
		q.Orderings = schema.DefaultOrdering
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var fldErrs []core.FieldError
	for _, key := range keys {
		switch key {
		case PageParam, LimitParam, SortParam, OrderingParam, SearchParam:
			continue
		}
		name, op, ok := parseKey(key)
		if !ok {
			continue
		}
		fld, ok := schema.Fields[name]
		if !ok {
			continue
		}
		if op == Eq && fld.Kind == String && isNameField(name) {
			op = Like
		}
		if op == Like && !fld.Kind.textual() {
			fldErrs = append(fldErrs, core.FieldError{Field: name, Error: errInvalidOperator})
			continue
		}

		for _, raw := range values[key] {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			val, err := parseOpValue(fld.Kind, op, raw)
			if err != nil {
				fldErrs = append(fldErrs, core.FieldError{Field: name, Error: errInvalidValue})
				break
			}
			q.Conditions = append(q.Conditions, Condition{Field: name, Op: op, Value: val})
		}
	}
	if fldErrs != nil {
		return Query{}, core.NewValidationError(errors.New("invalid query parameters"), fldErrs...)
	}
	return q, nil
}

// Where adds a programmatic condition. Values are given in their Go type.
func (q Query) Where(field string, op Op, value interface{}) Query {
	conds := make([]Condition, len(q.Conditions), len(q.Conditions)+1)
	copy(conds, q.Conditions)
	q.Conditions = append(conds, Condition{Field: field, Op: op, Value: value})
	return q
}

// Strings converts ss into the value of an In or Nin condition.
func Strings(ss []string) []interface{} {
	vals := make([]interface{}, 0, len(ss))
	for _, s := range ss {
		vals = append(vals, s)
	}
	return vals
}

// Unpaginated drops the limit, e.g. for exports and aggregates.
func (q Query) Unpaginated() Query {
	q.Page = 1
	q.Limit = 0
	return q
}

func (q Query) Offset() int {
	if q.Limit <= 0 || q.Page <= 1 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

func (q Query) Schema() *Schema { return q.schema }

// HasCondition reports whether a condition on field exists.
func (q Query) HasCondition(field string) bool {
	for _, c := range q.Conditions {
		if c.Field == field {
			return true
		}
	}
	return false
}

func parseKey(key string) (string, Op, bool) {
	i := strings.IndexByte(key, '[')
	if i < 0 {
		return key, Eq, true
	}
	if !strings.HasSuffix(key, "]") || i == 0 {
		return "", "", false
	}
	op := Op(strings.ToLower(key[i+1 : len(key)-1]))
	if !ops[op] {
		return "", "", false
	}
	return key[:i], op, true
}

func isNameField(name string) bool {
	return strings.Contains(name, "name") || strings.Contains(name, "title")
}

func parseOrdering(val string, schema *Schema) []core.DBOrdering {
	var orderings []core.DBOrdering
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		field = strings.TrimLeft(field, "-+")
		if _, ok := schema.Fields[field]; !ok {
			continue
		}
		orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
	return orderings
}

func parseOpValue(kind Kind, op Op, raw string) (interface{}, error) {
	if op != In && op != Nin {
		return parseValue(kind, raw)
	}
	var vals []interface{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		val, err := parseValue(kind, part)
		if err != nil {
			return nil, err
		}
		vals = append(vals, val)
	}
	return vals, nil
}

func parseValue(kind Kind, raw string) (interface{}, error) {
	switch kind {
	case Int:
		return strconv.ParseInt(raw, 10, 64)
	case Float:
		return strconv.ParseFloat(raw, 64)
	case Bool:
		return strconv.ParseBool(raw)
	case Time:
		return parseTime(raw)
	case UUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errors.Wrap(err, "parsing uuid")
		}
		return id.String(), nil
	default:
		return raw, nil
	}
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing time")
	}
	return t.UTC(), nil
}
