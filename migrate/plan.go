package migrate

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pgshift/pgshift/scope"
)

// tablePlan partitions one database's in-scope tables by their resolved rule.
type tablePlan struct {
	full       []scope.QualifiedTable
	schemaOnly []scope.QualifiedTable
	filtered   []filteredTable

	rowBearing mapset.Set[scope.TableKey]
}

// filteredTable is a table whose rows travel through a predicate-restricted
// copy instead of the bulk data dump.
type filteredTable struct {
	table     scope.QualifiedTable
	predicate string
}

// buildPlan resolves every table's rule. Time windows resolve against now
// exactly once, so the cutoff does not move while the run is in progress.
func buildPlan(rules *scope.Rules, db string, tables []scope.QualifiedTable, now time.Time) tablePlan {
	p := tablePlan{rowBearing: mapset.NewThreadUnsafeSet[scope.TableKey]()}
	for _, table := range tables {
		rule := rules.For(db, table.Key())
		switch rule.Kind {
		case scope.RuleSchemaOnly:
			p.schemaOnly = append(p.schemaOnly, table)
		case scope.RuleTableFilter:
			p.filtered = append(p.filtered, filteredTable{table: table, predicate: rule.Predicate})
			p.rowBearing.Add(table.Key())
		case scope.RuleTimeFilter:
			p.filtered = append(p.filtered, filteredTable{table: table, predicate: rule.Time.Predicate(now)})
			p.rowBearing.Add(table.Key())
		default:
			p.full = append(p.full, table)
			p.rowBearing.Add(table.Key())
		}
	}
	return p
}

// inScope reports whether a table's rows participate in the run, fully or
// filter-included. Schema-only tables do not count: their rows are declared
// out of scope, so a cascading truncate into them is still data loss.
func (p tablePlan) inScope(key scope.TableKey) bool {
	return p.rowBearing.Contains(key)
}

// dataExclusions lists qualified names whose rows must not travel in the bulk
// data dump: schema-only tables ship no rows, filtered tables ship through
// the predicate copy.
func (p tablePlan) dataExclusions() []string {
	names := make([]string, 0, len(p.schemaOnly)+len(p.filtered))
	for _, t := range p.schemaOnly {
		names = append(names, t.QualifiedName())
	}
	for _, f := range p.filtered {
		names = append(names, f.table.QualifiedName())
	}
	return names
}
