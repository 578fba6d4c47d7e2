package query

// Page is the JSON envelope of every list endpoint.
type Page[T any] struct {
	Results    []T  `json:"results"`
	Count      int  `json:"count"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPage wraps one page of results; count is the total number of matching items.
func NewPage[T any](results []T, count int, q Query) Page[T] {
	if results == nil {
		results = []T{}
	}
	page := q.Page
	if page < 1 {
		page = 1
	}

	p := Page[T]{Results: results, Count: count, Page: page, Limit: q.Limit}
	switch {
	case q.Limit > 0:
		p.TotalPages = (count + q.Limit - 1) / q.Limit
	case count > 0:
		p.TotalPages = 1
	}
	p.HasNext = page < p.TotalPages
	p.HasPrev = page > 1
	return p
}

// Map converts the results of a page, keeping the pagination fields.
func Map[T, U any](p Page[T], fn func(T) U) Page[U] {
	results := make([]U, 0, len(p.Results))
	for _, r := range p.Results {
		results = append(results, fn(r))
	}
	return Page[U]{
		Results:    results,
		Count:      p.Count,
		Page:       p.Page,
		Limit:      p.Limit,
		TotalPages: p.TotalPages,
		HasNext:    p.HasNext,
		HasPrev:    p.HasPrev,
	}
}
