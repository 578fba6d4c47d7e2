// Package sqlxrepos implements the repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"
	"strconv"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core/query"
)

const uniqueViolation = "23505"

// trapNoRowsErr maps the "no rows" error to the domain's not-found error.
func trapNoRowsErr(err, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	pqErr, ok := errors.Cause(err).(*pq.Error)
	return ok && pqErr.Code == uniqueViolation
}

// validID filters out strings postgres would refuse to cast to UUID.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func validIDs(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			valid = append(valid, id)
		}
	}
	return valid
}

// checkAffected returns notFound when res touched no row.
func checkAffected(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "getting affected rows")
	}
	if n == 0 {
		return notFound
	}
	return nil
}

// selectPage loads the page of q from table into dest and returns the total count.
func selectPage(ctx context.Context, db *sqlx.DB, dest interface{}, table, columns string, q query.Query) (int, error) {
	where, args, orderBy := query.SQL(q)
	from := " FROM " + table
	if where != "" {
		from += " WHERE " + where
	}

	var count int
	if err := db.GetContext(ctx, &count, db.Rebind("SELECT COUNT(*)"+from), args...); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}

	stmt := "SELECT " + columns + from
	if orderBy != "" {
		stmt += " ORDER BY " + orderBy
	}
	if q.Limit > 0 {
		stmt += " LIMIT " + strconv.Itoa(q.Limit) + " OFFSET " + strconv.Itoa(q.Offset())
	}
	if err := db.SelectContext(ctx, dest, db.Rebind(stmt), args...); err != nil {
		return 0, errors.Wrap(err, "selecting rows")
	}
	return count, nil
}
