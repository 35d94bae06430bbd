package db

import (
	"strconv"
	"strings"
)

// Dialect adapts queries written with ? placeholders to the driver.
type Dialect struct {
	Driver string
}

// Rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL and returns
// the query unchanged otherwise. Queries must not contain literal '?'.
func (d Dialect) Rebind(query string) string {
	if d.Driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
