// Package cascade guards destructive filtered copies. Before a
// predicate-restricted copy truncates destination rows, every table that
// transitively references the target via foreign key must itself be in
// replication scope; otherwise the truncate would cascade into data the run
// never declared.
package cascade

import (
	"context"
	"fmt"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pgshift/pgshift/scope"
)

// Referencing lists the tables referencing the given table via foreign key,
// schema-qualified.
type Referencing interface {
	Referencing(ctx context.Context, db string, table scope.TableKey) ([]scope.TableKey, error)
}

// SafetyError names the out-of-scope dependent table and the FK path leading
// to it from the filtered table.
type SafetyError struct {
	Database string
	Table    scope.TableKey
	// Path runs from the filtered table to the offending dependent.
	Path []scope.TableKey
}

func (e *SafetyError) Error() string {
	steps := make([]string, 0, len(e.Path))
	for _, k := range e.Path {
		steps = append(steps, k.String())
	}
	return fmt.Sprintf(
		"unsafe filtered copy in database %q: dependent table %q is outside replication scope (FK path: %s)",
		e.Database, e.Table, strings.Join(steps, " <- "))
}

// Check walks the FK graph depth-first from target, tracking visited
// (schema, table) keys so cyclic references terminate. It fails fast on the
// first dependent table that is neither fully nor filter-included in scope.
// Runs once per filtered table, before any destructive DDL or DML.
func Check(
	ctx context.Context,
	refs Referencing,
	db string,
	target scope.TableKey,
	inScope func(scope.TableKey) bool,
) error {
	visited := mapset.NewThreadUnsafeSet(target)
	return walk(ctx, refs, db, target, []scope.TableKey{target}, visited, inScope)
}

func walk(
	ctx context.Context,
	refs Referencing,
	db string,
	current scope.TableKey,
	path []scope.TableKey,
	visited mapset.Set[scope.TableKey],
	inScope func(scope.TableKey) bool,
) error {
	dependents, err := refs.Referencing(ctx, db, current)
	if err != nil {
		return fmt.Errorf("list tables referencing %q: %w", current, err)
	}
	for _, dep := range dependents {
		if visited.Contains(dep) {
			continue
		}
		visited.Add(dep)

		depPath := make([]scope.TableKey, 0, len(path)+1)
		depPath = append(append(depPath, path...), dep)

		if !inScope(dep) {
			return &SafetyError{Database: db, Table: dep, Path: depPath}
		}
		if err := walk(ctx, refs, db, dep, depPath, visited, inScope); err != nil {
			return err
		}
	}
	return nil
}
