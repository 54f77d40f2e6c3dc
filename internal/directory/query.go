package directory

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query builds an OData v4 query string for GetRows. Zero values are
// omitted so the wire request only carries what the caller actually set.
type Query struct {
	Filter  string
	Select  []string
	OrderBy string
	Top     int
	Expand  string
}

// Encode renders the query as a URL-encoded OData query string (without the
// leading '?').
func (q Query) Encode() string {
	v := url.Values{}
	if q.Filter != "" {
		v.Set("$filter", q.Filter)
	}
	if len(q.Select) > 0 {
		v.Set("$select", strings.Join(q.Select, ","))
	}
	if q.OrderBy != "" {
		v.Set("$orderby", q.OrderBy)
	}
	if q.Top > 0 {
		v.Set("$top", strconv.Itoa(q.Top))
	}
	if q.Expand != "" {
		v.Set("$expand", q.Expand)
	}
	return v.Encode()
}

// EqFilter builds a simple `column eq 'value'` OData filter clause, quoting
// and escaping the value per OData string-literal rules (single quotes are
// doubled).
func EqFilter(column, value string) string {
	return fmt.Sprintf("%s eq '%s'", column, strings.ReplaceAll(value, "'", "''"))
}

// AndFilters joins clauses with OData `and`, skipping empty ones.
func AndFilters(clauses ...string) string {
	var nonEmpty []string
	for _, c := range clauses {
		if c != "" {
			nonEmpty = append(nonEmpty, "("+c+")")
		}
	}
	return strings.Join(nonEmpty, " and ")
}
