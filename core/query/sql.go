package query

import (
	"strings"
)

// SQL renders q as a WHERE clause (without the keyword), its args and an ORDER BY list.
// Columns come from the Schema q was built with (see Parse and New), so no schema argument is needed.
// Placeholders are `?`; rebind them for the target driver.
// Only schema columns are written, user input always goes to args.
func SQL(q Query) (string, []interface{}, string) {
	var (
		clauses []string
		args    []interface{}
	)
	schema := q.schema
	if schema == nil {
		return "", nil, ""
	}

	for _, c := range q.Conditions {
		fld, ok := schema.Fields[c.Field]
		if !ok {
			continue
		}
		clause, cArgs := conditionSQL(fld, c)
		if clause == "" {
			continue
		}
		clauses = append(clauses, clause)
		args = append(args, cArgs...)
	}

	if q.Search != "" {
		var ors []string
		for _, name := range sortedFieldNames(schema) {
			fld := schema.Fields[name]
			if !fld.Search {
				continue
			}
			ors = append(ors, "("+fld.Column+") ILIKE ?")
			args = append(args, "%"+escapeLike(q.Search)+"%")
		}
		if len(ors) > 0 {
			clauses = append(clauses, "("+strings.Join(ors, " OR ")+")")
		}
	}

	orders := make([]string, 0, len(q.Orderings))
	for _, ord := range q.Orderings {
		fld, ok := schema.Fields[ord.Field]
		if !ok {
			continue
		}
		direction := " DESC"
		if ord.Ascending {
			direction = " ASC"
		}
		orders = append(orders, "("+fld.Column+")"+direction)
	}

	return strings.Join(clauses, " AND "), args, strings.Join(orders, ", ")
}

var sqlOps = map[Op]string{Eq: "=", Ne: "<>", Gt: ">", Gte: ">=", Lt: "<", Lte: "<="}

func conditionSQL(fld Field, c Condition) (string, []interface{}) {
	col := "(" + fld.Column + ")"

	if fld.Kind == List {
		return listConditionSQL(fld, c)
	}

	switch c.Op {
	case Like:
		if !fld.Kind.textual() {
			// ILIKE is undefined on numbers, times and uuids
			return "FALSE", nil
		}
		return col + " ILIKE ?", []interface{}{"%" + escapeLike(toString(c.Value)) + "%"}
	case In, Nin:
		vals := toSlice(c.Value)
		if len(vals) == 0 {
			if c.Op == In {
				return "FALSE", nil
			}
			return "", nil
		}
		kw := " IN ("
		if c.Op == Nin {
			kw = " NOT IN ("
		}
		return col + kw + placeholders(len(vals)) + ")", vals
	default:
		return col + " " + sqlOps[c.Op] + " ?", []interface{}{c.Value}
	}
}

// listConditionSQL matches text[] columns element-wise.
func listConditionSQL(fld Field, c Condition) (string, []interface{}) {
	exists := "EXISTS (SELECT 1 FROM UNNEST(" + fld.Column + ") elem WHERE elem ILIKE ?)"

	switch c.Op {
	case Eq, Ne:
		clause := exists
		if c.Op == Ne {
			clause = "NOT " + exists
		}
		return clause, []interface{}{escapeLike(toString(c.Value)) + "%"}
	case Like:
		return exists, []interface{}{"%" + escapeLike(toString(c.Value)) + "%"}
	case In, Nin:
		vals := toSlice(c.Value)
		if len(vals) == 0 {
			if c.Op == In {
				return "FALSE", nil
			}
			return "", nil
		}
		ors := make([]string, 0, len(vals))
		args := make([]interface{}, 0, len(vals))
		for _, v := range vals {
			ors = append(ors, exists)
			args = append(args, escapeLike(toString(v))+"%")
		}
		clause := "(" + strings.Join(ors, " OR ") + ")"
		if c.Op == Nin {
			clause = "NOT " + clause
		}
		return clause, args
	}
	return "", nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
