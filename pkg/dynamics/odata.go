package dynamics

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Expr is a filter expression that can be rendered as OData.
type Expr interface {
	render() (string, error)
}

type comparison struct {
	field   string
	op      string
	literal string
}

func (c comparison) render() (string, error) {
	if !identifierRe.MatchString(c.field) {
		return "", fmt.Errorf("invalid field name %q", c.field)
	}
	return c.field + " " + c.op + " " + c.literal, nil
}

// Eq compares a string column with a value. Quotes in value are escaped.
func Eq(field, value string) Expr {
	return comparison{field: field, op: "eq", literal: quote(value)}
}

// EqGUID compares a lookup or primary key column with a GUID.
func EqGUID(field string, id uuid.UUID) Expr {
	return comparison{field: field, op: "eq", literal: id.String()}
}

// EqInt compares a whole number or choice column.
func EqInt(field string, v int) Expr {
	return comparison{field: field, op: "eq", literal: strconv.Itoa(v)}
}

type conjunction []Expr

func (c conjunction) render() (string, error) {
	parts := make([]string, 0, len(c))
	for _, e := range c {
		s, err := e.render()
		if err != nil {
			return "", err
		}
		if len(c) > 1 {
			if _, nested := e.(conjunction); nested {
				s = "(" + s + ")"
			}
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " and "), nil
}

// And joins expressions with "and".
func And(exprs ...Expr) Expr {
	return conjunction(exprs)
}

// Query describes a GET against one entity set.
type Query struct {
	EntitySet string
	Filter    Expr
	Select    []string
	OrderBy   []string
	Top       int
}

// Encode renders the query as a path relative to the Web API root, with every
// option value percent-encoded.
func (q Query) Encode() (string, error) {
	if !identifierRe.MatchString(q.EntitySet) {
		return "", fmt.Errorf("invalid entity set %q", q.EntitySet)
	}

	var opts []string
	if q.Filter != nil {
		f, err := q.Filter.render()
		if err != nil {
			return "", err
		}
		opts = append(opts, "$filter="+escape(f))
	}
	if len(q.Select) > 0 {
		for _, s := range q.Select {
			if !identifierRe.MatchString(s) {
				return "", fmt.Errorf("invalid select field %q", s)
			}
		}
		opts = append(opts, "$select="+strings.Join(q.Select, ","))
	}
	if len(q.OrderBy) > 0 {
		for _, o := range q.OrderBy {
			if err := validateOrderBy(o); err != nil {
				return "", err
			}
		}
		opts = append(opts, "$orderby="+escape(strings.Join(q.OrderBy, ",")))
	}
	if q.Top > 0 {
		opts = append(opts, "$top="+strconv.Itoa(q.Top))
	}

	if len(opts) == 0 {
		return q.EntitySet, nil
	}
	return q.EntitySet + "?" + strings.Join(opts, "&"), nil
}

func validateOrderBy(o string) error {
	fields := strings.Fields(o)
	if len(fields) == 0 || len(fields) > 2 || !identifierRe.MatchString(fields[0]) {
		return fmt.Errorf("invalid orderby %q", o)
	}
	if len(fields) == 2 && fields[1] != "asc" && fields[1] != "desc" {
		return fmt.Errorf("invalid orderby direction %q", o)
	}
	return nil
}

func quote(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "''") + "'"
}

// escape percent-encodes like encodeURIComponent; spaces become %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
