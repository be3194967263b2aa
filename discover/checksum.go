package discover

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pgshift/pgshift/scope"
)

// EmptyDigest is the checksum reported for a table with no rows. md5 over an
// empty aggregate is NULL, which would compare equal to nothing.
const EmptyDigest = "empty"

// Digest identifies a table's full contents.
type Digest struct {
	Checksum string
	Rows     int64
}

func (d Digest) Empty() bool { return d.Checksum == EmptyDigest }

const columnsQuery = `
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1
  AND table_name = $2
ORDER BY ordinal_position
`

// Columns lists a table's column names in ordinal order.
func Columns(ctx context.Context, exec Executor, table scope.QualifiedTable) ([]string, error) {
	type column struct{ Name string }
	cols, err := QueryAll(ctx, exec,
		func(rows pgx.Rows, c *column) error {
			return rows.Scan(&c.Name)
		},
		columnsQuery,
		table.Schema, table.Table,
	)
	if err != nil {
		return nil, fmt.Errorf("list columns of %q: %w", table, err)
	}
	names := make([]string, 0, len(cols))
	for _, c := range cols {
		names = append(names, c.Name)
	}
	return names, nil
}

// TableDigest checksums one table's rows and counts them in a single
// statement, so both numbers describe the same snapshot.
func TableDigest(ctx context.Context, exec Executor, table scope.QualifiedTable) (Digest, error) {
	columns, err := Columns(ctx, exec, table)
	if err != nil {
		return Digest{}, err
	}
	if len(columns) == 0 {
		return Digest{}, fmt.Errorf("table %q has no columns", table)
	}

	type result struct {
		Checksum *string
		Rows     int64
	}
	results, err := QueryAll(ctx, exec,
		func(rows pgx.Rows, r *result) error {
			return rows.Scan(&r.Checksum, &r.Rows)
		},
		digestQuery(table, columns),
	)
	if err != nil {
		return Digest{}, fmt.Errorf("digest %q: %w", table, err)
	}
	if len(results) != 1 {
		return Digest{}, fmt.Errorf("digest %q: want one row, got %d", table, len(results))
	}

	d := Digest{Checksum: EmptyDigest, Rows: results[0].Rows}
	if results[0].Checksum != nil {
		d.Checksum = *results[0].Checksum
	}
	return d, nil
}

// digestQuery builds the per-table checksum statement. Every column is cast
// to text with NULL folded to the empty string, joined with a separator so
// adjacent values cannot merge, and the rows are numbered under the full
// column order before the md5 of their concatenation is taken. Without the
// numbering string_agg has no stable input order.
func digestQuery(table scope.QualifiedTable, columns []string) string {
	pieces := make([]string, 0, len(columns))
	quoted := make([]string, 0, len(columns))
	for _, col := range columns {
		q := quoteColumn(col)
		pieces = append(pieces, fmt.Sprintf("COALESCE(%s::text, '')", q))
		quoted = append(quoted, q)
	}
	return fmt.Sprintf(
		"SELECT md5(string_agg(row_data, '' ORDER BY row_num)), count(*) FROM (SELECT %s AS row_data, row_number() OVER (ORDER BY %s) AS row_num FROM %s) t",
		strings.Join(pieces, " || '|' || "),
		strings.Join(quoted, ", "),
		table.QualifiedName(),
	)
}

func quoteColumn(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
