package search

import (
	"fmt"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// Validation is the result of parsing a compiled statement with the
// PostgreSQL parser.
type Validation struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Fingerprint string   `json:"fingerprint,omitempty"`
}

// ValidateSQL checks that sql is a single, syntactically valid SELECT.
// The fingerprint identifies the statement shape regardless of parameter
// values, so it groups searches that differ only in their input.
func ValidateSQL(sql string) *Validation {
	result := &Validation{Valid: true}

	parseResult, err := pg_query.Parse(sql)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, fmt.Sprintf("Failed to parse SQL: %s", err.Error()))
		return result
	}

	switch len(parseResult.Stmts) {
	case 0:
		result.Valid = false
		result.Errors = append(result.Errors, "Empty SQL statement")
		return result
	case 1:
	default:
		result.Valid = false
		result.Errors = append(result.Errors, "Multiple SQL statements not allowed")
		return result
	}

	if _, ok := parseResult.Stmts[0].Stmt.Node.(*pg_query.Node_SelectStmt); !ok {
		result.Valid = false
		result.Errors = append(result.Errors, "Statement is not a SELECT")
		return result
	}

	if fp, err := pg_query.Fingerprint(sql); err == nil {
		result.Fingerprint = fp
	}
	return result
}

// Validate parses both statements of c and records the outcome on it.
func (c *Compiled) Validate() *Validation {
	v := ValidateSQL(c.SQL)
	if count := ValidateSQL(c.CountSQL); !count.Valid {
		v.Valid = false
		for _, e := range count.Errors {
			v.Errors = append(v.Errors, "count: "+e)
		}
	}
	c.Validation = v
	return v
}
