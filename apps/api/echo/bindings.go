package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/query"
)

// parseQuery reads filters, search, ordering and pagination from the query string.
func parseQuery(ctx echo.Context, schema *query.Schema, conf *core.Config) (query.Query, error) {
	return query.Parse(ctx.QueryParams(), schema, query.Limits{
		Default: conf.Pagination.DefaultLimit,
		Max:     conf.Pagination.MaxLimit,
	})
}

// with appends middlewares to a route's chain.
func with(chain []echo.MiddlewareFunc, m ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(chain)+len(m))
	out = append(out, chain...)
	return append(out, m...)
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)
