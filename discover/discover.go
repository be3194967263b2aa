// Package discover introspects the source endpoint: which databases exist,
// which tables each one holds, and which tables reference a given table via
// foreign key. It is the discovery collaborator behind scope filtering and
// the FK cascade safety check.
package discover

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pgshift/pgshift/scope"
)

// CloseFunc releases one dialed connection.
type CloseFunc func(ctx context.Context) error

// DialFunc opens a short-lived connection to one database on the source
// endpoint. The empty database name means the endpoint's maintenance
// database. Callers close discovery connections before handing control to
// long-running transfers, so idle timeouts never bite mid-run.
type DialFunc func(ctx context.Context, db string) (Executor, CloseFunc, error)

//go:generate mockery --name Queries --inpackage --testonly --with-expecter --quiet
type Queries interface {
	Databases(ctx context.Context, exec Executor) ([]Database, error)
	Tables(ctx context.Context, exec Executor) ([]Table, error)
	Referencing(ctx context.Context, exec Executor, schema, table string) ([]ForeignRef, error)
}

// Discoverer implements scope.Discovery and cascade.Referencing over a dialed
// pg_catalog session per database.
type Discoverer struct {
	log  *zap.Logger
	q    Queries
	dial DialFunc
}

func NewDiscoverer(dial DialFunc, log *zap.Logger) *Discoverer {
	return &Discoverer{
		log:  log.Named("discover"),
		q:    PGQueries{},
		dial: dial,
	}
}

// Databases lists connectable non-template databases in name order.
func (d *Discoverer) Databases(ctx context.Context) ([]string, error) {
	var names []string
	err := d.withConn(ctx, "", func(exec Executor) error {
		dbs, err := d.q.Databases(ctx, exec)
		if err != nil {
			return err
		}
		names = make([]string, 0, len(dbs))
		for _, db := range dbs {
			names = append(names, db.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list databases: %w", err)
	}
	d.log.Debug("discovered databases", zap.Strings("databases", names))
	return names, nil
}

// Tables lists the ordinary tables of one database.
func (d *Discoverer) Tables(ctx context.Context, db string) ([]scope.QualifiedTable, error) {
	var tables []scope.QualifiedTable
	err := d.withConn(ctx, db, func(exec Executor) error {
		found, err := d.q.Tables(ctx, exec)
		if err != nil {
			return err
		}
		tables = make([]scope.QualifiedTable, 0, len(found))
		for _, t := range found {
			tables = append(tables, scope.QualifiedTable{
				Database: db,
				Schema:   t.Schema,
				Table:    t.Name,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tables of %q: %w", db, err)
	}
	d.log.Debug("discovered tables", zap.String("database", db), zap.Int("n", len(tables)))
	return tables, nil
}

// Referencing lists the tables holding a foreign key into table,
// schema-qualified.
func (d *Discoverer) Referencing(ctx context.Context, db string, table scope.TableKey) ([]scope.TableKey, error) {
	var keys []scope.TableKey
	err := d.withConn(ctx, db, func(exec Executor) error {
		refs, err := d.q.Referencing(ctx, exec, table.Schema, table.Table)
		if err != nil {
			return err
		}
		seen := make(map[scope.TableKey]struct{}, len(refs))
		keys = make([]scope.TableKey, 0, len(refs))
		for _, ref := range refs {
			key := scope.TableKey{Schema: ref.Schema, Table: ref.Name}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list referencing tables of %q: %w", table, err)
	}
	return keys, nil
}

func (d *Discoverer) withConn(ctx context.Context, db string, f func(exec Executor) error) error {
	exec, closeConn, err := d.dial(ctx, db)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeConn(ctx); cerr != nil {
			d.log.Warn("close discovery connection", zap.String("database", db), zap.Error(cerr))
		}
	}()
	return f(exec)
}
