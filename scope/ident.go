package scope

import "strings"

// DefaultSchema is assumed when an identifier carries no schema part.
const DefaultSchema = "public"

// TableKey identifies a table by its (schema, table) pair. Bare table names
// are never used as map or set keys: same-named tables in different schemas
// must not collide.
type TableKey struct {
	Schema string
	Table  string
}

func (k TableKey) String() string { return k.Schema + "." + k.Table }

// Less orders keys lexicographically by (schema, table).
func (k TableKey) Less(other TableKey) bool {
	if k.Schema != other.Schema {
		return k.Schema < other.Schema
	}
	return k.Table < other.Table
}

// QualifiedTable is a parsed table identifier with optional database context.
type QualifiedTable struct {
	Database string
	Schema   string
	Table    string
}

// ParseQualifiedTable parses "table" or "schema.table". An identifier without
// a separator lands in the public schema.
func ParseQualifiedTable(input string) (QualifiedTable, error) {
	if strings.TrimSpace(input) == "" {
		return QualifiedTable{}, configErrorf("invalid identifier: empty")
	}
	schema, table, found := strings.Cut(input, ".")
	if !found {
		return QualifiedTable{Schema: DefaultSchema, Table: input}, nil
	}
	if schema == "" || table == "" {
		return QualifiedTable{}, configErrorf("invalid identifier: %q", input)
	}
	return QualifiedTable{Schema: schema, Table: table}, nil
}

// QualifiedName renders the dialect-quoted name, e.g. "public"."users".
func (q QualifiedTable) QualifiedName() string {
	return quoteIdent(q.Schema) + "." + quoteIdent(q.Table)
}

// WithDatabase attaches database context without touching schema or table.
func (q QualifiedTable) WithDatabase(db string) QualifiedTable {
	q.Database = db
	return q
}

func (q QualifiedTable) Key() TableKey { return TableKey{Schema: q.Schema, Table: q.Table} }

func (q QualifiedTable) String() string {
	if q.Database == "" {
		return q.Schema + "." + q.Table
	}
	return q.Database + "." + q.Schema + "." + q.Table
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
