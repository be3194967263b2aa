package cascade

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/scope"
)

type fakeRefs struct {
	graph map[scope.TableKey][]scope.TableKey
	err   error
}

func (f *fakeRefs) Referencing(_ context.Context, _ string, table scope.TableKey) ([]scope.TableKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.graph[table], nil
}

func key(schema, table string) scope.TableKey {
	return scope.TableKey{Schema: schema, Table: table}
}

func scopeOf(keys ...scope.TableKey) func(scope.TableKey) bool {
	set := make(map[scope.TableKey]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return func(k scope.TableKey) bool {
		_, ok := set[k]
		return ok
	}
}

func TestCheck(t *testing.T) {
	orders := key("public", "orders")
	items := key("public", "order_items")
	refunds := key("billing", "refunds")

	tests := []struct {
		name     string
		graph    map[scope.TableKey][]scope.TableKey
		inScope  func(scope.TableKey) bool
		wantFail *scope.TableKey
		wantPath []scope.TableKey
	}{
		{
			name:    "no dependents",
			graph:   map[scope.TableKey][]scope.TableKey{},
			inScope: scopeOf(),
		},
		{
			name: "direct dependent out of scope",
			graph: map[scope.TableKey][]scope.TableKey{
				orders: {items},
			},
			inScope:  scopeOf(),
			wantFail: &items,
			wantPath: []scope.TableKey{orders, items},
		},
		{
			name: "direct dependent in scope",
			graph: map[scope.TableKey][]scope.TableKey{
				orders: {items},
			},
			inScope: scopeOf(items),
		},
		{
			name: "transitive dependent out of scope",
			graph: map[scope.TableKey][]scope.TableKey{
				orders: {items},
				items:  {refunds},
			},
			inScope:  scopeOf(items),
			wantFail: &refunds,
			wantPath: []scope.TableKey{orders, items, refunds},
		},
		{
			name: "cycle terminates",
			graph: map[scope.TableKey][]scope.TableKey{
				orders: {items},
				items:  {orders},
			},
			inScope: scopeOf(items, orders),
		},
		{
			name: "self reference terminates",
			graph: map[scope.TableKey][]scope.TableKey{
				orders: {orders},
			},
			inScope: scopeOf(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refs := &fakeRefs{graph: tt.graph}
			err := Check(context.Background(), refs, "app", orders, tt.inScope)

			if tt.wantFail == nil {
				require.NoError(t, err)
				return
			}
			var safety *SafetyError
			require.ErrorAs(t, err, &safety)
			assert.Equal(t, *tt.wantFail, safety.Table)
			assert.Equal(t, tt.wantPath, safety.Path)
			assert.Equal(t, "app", safety.Database)
			// the message names both the table and the path
			assert.Contains(t, safety.Error(), tt.wantFail.String())
		})
	}
}

func TestCheckPropagatesProviderError(t *testing.T) {
	boom := errors.New("introspection failed")
	refs := &fakeRefs{err: boom}

	err := Check(context.Background(), refs, "app", key("public", "orders"), scopeOf())
	require.ErrorIs(t, err, boom)
}

func TestCheckSchemaQualified(t *testing.T) {
	// same bare name in two schemas must be distinct nodes
	target := key("public", "events")
	dep := key("analytics", "events")
	refs := &fakeRefs{graph: map[scope.TableKey][]scope.TableKey{
		target: {dep},
	}}

	err := Check(context.Background(), refs, "app", target, scopeOf(target))
	var safety *SafetyError
	require.ErrorAs(t, err, &safety)
	assert.Equal(t, dep, safety.Table)
}
