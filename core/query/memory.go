package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Valuer exposes the field values of an item to in-memory queries.
type Valuer interface {
	QueryValue(field string) interface{}
}

// Apply filters, sorts and paginates items the way SQL would.
// It returns the requested page and the total number of matches.
func Apply[T Valuer](items []T, q Query) ([]T, int) {
	matched := make([]T, 0, len(items))
	for _, item := range items {
		if Match(item, q) {
			matched = append(matched, item)
		}
	}

	if len(q.Orderings) > 0 && q.schema != nil {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, ord := range q.Orderings {
				fld, ok := q.schema.Fields[ord.Field]
				if !ok {
					continue
				}
				c := compare(fld.Kind, matched[i].QueryValue(ord.Field), matched[j].QueryValue(ord.Field))
				if c == 0 {
					continue
				}
				if ord.Ascending {
					return c < 0
				}
				return c > 0
			}
			return false
		})
	}

	count := len(matched)
	if q.Limit <= 0 {
		return matched, count
	}
	start := q.Offset()
	if start >= count {
		return []T{}, count
	}
	end := start + q.Limit
	if end > count {
		end = count
	}
	return matched[start:end], count
}

// Match reports whether item satisfies every condition and the search term of q.
func Match(item Valuer, q Query) bool {
	if q.schema == nil {
		return true
	}
	for _, c := range q.Conditions {
		fld, ok := q.schema.Fields[c.Field]
		if !ok {
			continue
		}
		if !matchCondition(fld.Kind, item.QueryValue(c.Field), c) {
			return false
		}
	}
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		var searchable, found bool
		for _, name := range sortedFieldNames(q.schema) {
			if !q.schema.Fields[name].Search {
				continue
			}
			searchable = true
			if strings.Contains(strings.ToLower(toString(item.QueryValue(name))), term) {
				found = true
				break
			}
		}
		if searchable && !found {
			return false
		}
	}
	return true
}

func matchCondition(kind Kind, val interface{}, c Condition) bool {
	if kind == List {
		return matchList(toStrings(val), c)
	}

	switch c.Op {
	case Like:
		if isNull(val) || !kind.textual() {
			return false
		}
		return strings.Contains(strings.ToLower(toString(val)), strings.ToLower(toString(c.Value)))
	case In, Nin:
		in := false
		if !isNull(val) {
			for _, v := range toSlice(c.Value) {
				if equal(kind, val, v) {
					in = true
					break
				}
			}
		}
		if c.Op == Nin {
			return !isNull(val) && !in
		}
		return in
	}

	if isNull(val) || isNull(c.Value) {
		return false
	}
	switch c.Op {
	case Eq:
		return equal(kind, val, c.Value)
	case Ne:
		return !equal(kind, val, c.Value)
	}
	cmp := compare(kind, val, c.Value)
	switch c.Op {
	case Gt:
		return cmp > 0
	case Gte:
		return cmp >= 0
	case Lt:
		return cmp < 0
	case Lte:
		return cmp <= 0
	}
	return false
}

func matchList(elems []string, c Condition) bool {
	anyPrefix := func(prefix string) bool {
		prefix = strings.ToLower(prefix)
		for _, e := range elems {
			if strings.HasPrefix(strings.ToLower(e), prefix) {
				return true
			}
		}
		return false
	}

	switch c.Op {
	case Eq:
		return anyPrefix(toString(c.Value))
	case Ne:
		return !anyPrefix(toString(c.Value))
	case Like:
		term := strings.ToLower(toString(c.Value))
		for _, e := range elems {
			if strings.Contains(strings.ToLower(e), term) {
				return true
			}
		}
		return false
	case In, Nin:
		in := false
		for _, v := range toSlice(c.Value) {
			if anyPrefix(toString(v)) {
				in = true
				break
			}
		}
		if c.Op == Nin {
			return !in
		}
		return in
	}
	return false
}

// equal is exact for strings, like SQL `=`.
// A value that is not a UUID never equals a UUID field.
func equal(kind Kind, a, b interface{}) bool {
	switch kind {
	case String:
		return toString(a) == toString(b)
	case UUID:
		ua, errA := uuid.Parse(toString(a))
		ub, errB := uuid.Parse(toString(b))
		return errA == nil && errB == nil && ua == ub
	}
	return compare(kind, a, b) == 0
}

// compare returns -1, 0 or 1. Null values sort first.
func compare(kind Kind, a, b interface{}) int {
	aNull, bNull := isNull(a), isNull(b)
	switch {
	case aNull && bNull:
		return 0
	case aNull:
		return -1
	case bNull:
		return 1
	}

	switch kind {
	case Int:
		return cmpFloat(float64(toInt(a)), float64(toInt(b)))
	case Float:
		return cmpFloat(toFloat(a), toFloat(b))
	case Bool:
		ab, bb := toBool(a), toBool(b)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case Time:
		at, bt := toTime(a), toTime(b)
		switch {
		case at.Equal(bt):
			return 0
		case at.Before(bt):
			return -1
		default:
			return 1
		}
	default:
		return strings.Compare(strings.ToLower(toString(a)), strings.ToLower(toString(b)))
	}
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func isNull(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return true
	case *time.Time:
		return val == nil
	case *int:
		return val == nil
	case *string:
		return val == nil
	case *bool:
		return val == nil
	case time.Time:
		return val.IsZero()
	}
	return false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case *string:
		if val != nil {
			return *val
		}
		return ""
	case nil:
		return ""
	case fmt.Stringer:
		return val.String()
	}
	return fmt.Sprint(v)
}

func toStrings(v interface{}) []string {
	switch val := v.(type) {
	case []string:
		return val
	case string:
		return []string{val}
	}
	return nil
}

func toSlice(v interface{}) []interface{} {
	switch val := v.(type) {
	case []interface{}:
		return val
	case []string:
		vals := make([]interface{}, 0, len(val))
		for _, s := range val {
			vals = append(vals, s)
		}
		return vals
	case nil:
		return nil
	}
	return []interface{}{v}
}

func toInt(v interface{}) int64 {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case int64:
		return val
	case *int:
		if val != nil {
			return int64(*val)
		}
	case float64:
		return int64(val)
	}
	return 0
}

func toFloat(v interface{}) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case float32:
		return float64(val)
	}
	return float64(toInt(v))
}

func toBool(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case *bool:
		return val != nil && *val
	}
	return false
}

func toTime(v interface{}) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case *time.Time:
		if val != nil {
			return *val
		}
	}
	return time.Time{}
}

func sortedFieldNames(schema *Schema) []string {
	names := make([]string, 0, len(schema.Fields))
	for name := range schema.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
