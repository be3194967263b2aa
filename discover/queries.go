package discover

import (
	"context"
	"fmt"

	"github.com/davecgh/go-spew/spew"
	"github.com/jackc/pgx/v5"
)

// Executor is the subset of pgx used by discovery queries.
type Executor interface {
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// Error carries the failed query and its arguments for diagnostics.
type Error struct {
	Err     error
	Message string

	Query string
	Args  []any
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e Error) Unwrap() error { return e.Err }

func (e Error) Pretty() string {
	return fmt.Sprintf("%s: %v:\nquery:\n%s\n\n===\nargs: %s", e.Message, e.Err, e.Query, spew.Sdump(e.Args...))
}

// QueryAll runs a query and scans every row into T.
func QueryAll[T any](
	ctx context.Context,
	exec Executor,
	scan func(s pgx.Rows, q *T) error,
	query string,
	args ...any,
) ([]T, error) {
	rows, err := exec.Query(ctx, query, args...)
	if err != nil {
		return nil, Error{
			Err:     err,
			Message: "query",
			Query:   query,
			Args:    args,
		}
	}
	defer rows.Close()

	var results []T

	var rowNum int
	for rows.Next() {
		rowNum++
		var value T
		if err := scan(rows, &value); err != nil {
			return nil, Error{
				Err:     err,
				Message: fmt.Sprintf("scan %d", rowNum),
				Query:   query,
				Args:    args,
			}
		}
		results = append(results, value)
	}
	return results, rows.Err()
}

// Database is one row of the database listing.
type Database struct {
	Name string
}

// Table is one ordinary (relkind 'r') table.
type Table struct {
	Schema string
	Name   string
}

// ForeignRef is a table holding a foreign key into another table.
type ForeignRef struct {
	Schema     string
	Name       string
	Constraint string
}

// PGQueries runs the discovery SQL against pg_catalog.
type PGQueries struct{}

const databasesQuery = `
SELECT datname
FROM pg_database
WHERE NOT datistemplate
  AND datallowconn
ORDER BY datname
`

func (PGQueries) Databases(ctx context.Context, exec Executor) ([]Database, error) {
	return QueryAll(ctx, exec,
		func(rows pgx.Rows, db *Database) error {
			return rows.Scan(&db.Name)
		},
		databasesQuery,
	)
}

const tablesQuery = `
SELECT n.nspname,
       c.relname
FROM pg_class c
JOIN pg_namespace n ON n.oid = c.relnamespace
WHERE c.relkind = 'r'
  AND n.nspname NOT IN ('pg_catalog', 'information_schema')
  AND n.nspname NOT LIKE 'pg\_%'
ORDER BY n.nspname, c.relname
`

func (PGQueries) Tables(ctx context.Context, exec Executor) ([]Table, error) {
	return QueryAll(ctx, exec,
		func(rows pgx.Rows, t *Table) error {
			return rows.Scan(&t.Schema, &t.Name)
		},
		tablesQuery,
	)
}

const referencingQuery = `
SELECT DISTINCT n.nspname,
       c.relname,
       con.conname
FROM pg_constraint con
JOIN pg_class c ON c.oid = con.conrelid
JOIN pg_namespace n ON n.oid = c.relnamespace
JOIN pg_class ref ON ref.oid = con.confrelid
JOIN pg_namespace refn ON refn.oid = ref.relnamespace
WHERE con.contype = 'f'
  AND refn.nspname = $1
  AND ref.relname = $2
ORDER BY 1, 2, 3
`

func (PGQueries) Referencing(ctx context.Context, exec Executor, schema, table string) ([]ForeignRef, error) {
	return QueryAll(ctx, exec,
		func(rows pgx.Rows, r *ForeignRef) error {
			return rows.Scan(&r.Schema, &r.Name, &r.Constraint)
		},
		referencingQuery,
		schema, table,
	)
}
