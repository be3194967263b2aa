package scope

import (
	"context"

	mapset "github.com/deckarep/golang-set/v2"
)

// Discovery lists what exists on the source endpoint.
type Discovery interface {
	Databases(ctx context.Context) ([]string, error)
	Tables(ctx context.Context, db string) ([]QualifiedTable, error)
}

// Filter decides which databases and tables participate in a run.
// Include and exclude lists are mutually exclusive per axis; the zero
// configuration replicates everything.
type Filter struct {
	includeDatabases mapset.Set[string]
	excludeDatabases mapset.Set[string]
	includeTables    mapset.Set[string] // "db.table"
	excludeTables    mapset.Set[string]

	include []string // kept for error reporting
	exclude []string
}

// NewFilter builds a replication filter from CLI-style name lists.
// Table entries use the "db.table" form.
func NewFilter(includeDBs, excludeDBs, includeTables, excludeTables []string) (*Filter, error) {
	if len(includeDBs) > 0 && len(excludeDBs) > 0 {
		return nil, configErrorf("include-databases and exclude-databases are mutually exclusive")
	}
	if len(includeTables) > 0 && len(excludeTables) > 0 {
		return nil, configErrorf("include-tables and exclude-tables are mutually exclusive")
	}
	return &Filter{
		includeDatabases: mapset.NewThreadUnsafeSet(includeDBs...),
		excludeDatabases: mapset.NewThreadUnsafeSet(excludeDBs...),
		includeTables:    mapset.NewThreadUnsafeSet(includeTables...),
		excludeTables:    mapset.NewThreadUnsafeSet(excludeTables...),
		include:          includeDBs,
		exclude:          excludeDBs,
	}, nil
}

// EmptyFilter replicates everything.
func EmptyFilter() *Filter {
	f, _ := NewFilter(nil, nil, nil, nil)
	return f
}

func (f *Filter) IsEmpty() bool {
	return f.includeDatabases.Cardinality() == 0 &&
		f.excludeDatabases.Cardinality() == 0 &&
		f.includeTables.Cardinality() == 0 &&
		f.excludeTables.Cardinality() == 0
}

// ShouldReplicateDatabase applies whitelist-then-blacklist semantics to a
// database name.
func (f *Filter) ShouldReplicateDatabase(name string) bool {
	return passes(f.includeDatabases, f.excludeDatabases, name)
}

// ShouldReplicateTable applies the same semantics to the string "db.table".
func (f *Filter) ShouldReplicateTable(db, table string) bool {
	return passes(f.includeTables, f.excludeTables, db+"."+table)
}

func passes(include, exclude mapset.Set[string], name string) bool {
	if include.Cardinality() > 0 && !include.Contains(name) {
		return false
	}
	return !exclude.Contains(name)
}

// DatabasesToReplicate discovers databases and filters them, preserving the
// discovery order. An empty result is fatal: filters that eliminate every
// database almost always signal misconfiguration.
func (f *Filter) DatabasesToReplicate(ctx context.Context, d Discovery) ([]string, error) {
	discovered, err := d.Databases(ctx)
	if err != nil {
		return nil, err
	}
	matched := make([]string, 0, len(discovered))
	for _, name := range discovered {
		if f.ShouldReplicateDatabase(name) {
			matched = append(matched, name)
		}
	}
	if len(matched) == 0 {
		return nil, &NoMatchError{Discovered: discovered, Include: f.include, Exclude: f.exclude}
	}
	return matched, nil
}

// TablesToReplicate discovers tables of one database and filters them.
// Unlike databases, an empty table list is a valid outcome.
func (f *Filter) TablesToReplicate(ctx context.Context, d Discovery, db string) ([]QualifiedTable, error) {
	discovered, err := d.Tables(ctx, db)
	if err != nil {
		return nil, err
	}
	matched := make([]QualifiedTable, 0, len(discovered))
	for _, table := range discovered {
		if f.ShouldReplicateTable(db, table.Table) {
			matched = append(matched, table.WithDatabase(db))
		}
	}
	return matched, nil
}
