// Package vocabulary resolves property terms such as "dcterms:title" to
// property ids and back.
package vocabulary

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/fluxbase-eu/advancedsearch/internal/database"
)

// Property is one metadata field definition.
type Property struct {
	ID        int    `json:"id"`
	Prefix    string `json:"prefix"`
	LocalName string `json:"local_name"`
	Label     string `json:"label"`
}

// Term returns the vocabulary-prefixed name, e.g. "dcterms:title".
func (p Property) Term() string {
	return p.Prefix + ":" + p.LocalName
}

// Loader reads the full property list.
type Loader interface {
	LoadProperties(ctx context.Context) ([]Property, error)
}

// DBLoader loads properties from the property and vocabulary tables.
type DBLoader struct {
	db database.Executor
}

// NewDBLoader creates a loader reading from db.
func NewDBLoader(db database.Executor) *DBLoader {
	return &DBLoader{db: db}
}

// propertiesSQL builds the property listing statement.
func propertiesSQL() (string, []interface{}, error) {
	return goqu.Dialect("postgres").
		From(goqu.T("property").As("p")).
		Join(goqu.T("vocabulary").As("v"), goqu.On(goqu.I("v.id").Eq(goqu.I("p.vocabulary_id")))).
		Select(goqu.I("p.id"), goqu.I("v.prefix"), goqu.I("p.local_name"), goqu.I("p.label")).
		Order(goqu.I("p.id").Asc()).
		ToSQL()
}

// LoadProperties implements Loader.
func (l *DBLoader) LoadProperties(ctx context.Context) ([]Property, error) {
	sql, args, err := propertiesSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build property query: %w", err)
	}

	rows, err := l.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load properties: %w", err)
	}
	defer rows.Close()

	var props []Property
	for rows.Next() {
		var p Property
		if err := rows.Scan(&p.ID, &p.Prefix, &p.LocalName, &p.Label); err != nil {
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		props = append(props, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read properties: %w", err)
	}
	return props, nil
}

// normalizeTerm lowercases the vocabulary prefix only; local names are
// case-sensitive ("dcterms:isPartOf").
func normalizeTerm(term string) string {
	term = strings.TrimSpace(term)
	prefix, local, ok := strings.Cut(term, ":")
	if !ok {
		return term
	}
	return strings.ToLower(prefix) + ":" + local
}
