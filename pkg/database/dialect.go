package database

import (
	"fmt"
	"strings"
)

// Dialect covers the SQL differences between the supported drivers.
type Dialect struct {
	Driver string
}

// DialectFor returns the dialect for a database/sql driver name.
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlserver", "mysql", "pgx", "sqlite":
		return Dialect{Driver: driver}, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported SQL driver %q (want sqlserver, mysql, pgx or sqlite)", driver)
	}
}

// Placeholder returns the bind marker for the n-th (1-based) argument.
func (d Dialect) Placeholder(n int) string {
	switch d.Driver {
	case "sqlserver":
		return fmt.Sprintf("@p%d", n)
	case "pgx":
		return fmt.Sprintf("$%d", n)
	default:
		return "?"
	}
}

// Quote quotes an identifier. Dotted names are quoted per part.
func (d Dialect) Quote(ident string) string {
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		parts[i] = d.QuoteIdent(p)
	}
	return strings.Join(parts, ".")
}

// QuoteIdent quotes name as a single identifier, dots included.
func (d Dialect) QuoteIdent(name string) string {
	switch d.Driver {
	case "sqlserver":
		return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
	case "mysql":
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	default:
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
}

// Paginate appends an ordered limit/offset clause to query. SQL Server
// requires an ORDER BY for OFFSET/FETCH; orderBy "" falls back to a constant.
func (d Dialect) Paginate(query, orderBy string, offset, limit int) string {
	if d.Driver == "sqlserver" {
		if orderBy == "" {
			orderBy = "(SELECT NULL)"
		}
		return fmt.Sprintf("%s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY", query, orderBy, offset, limit)
	}
	if orderBy != "" {
		query += " ORDER BY " + orderBy
	}
	return fmt.Sprintf("%s LIMIT %d OFFSET %d", query, limit, offset)
}
