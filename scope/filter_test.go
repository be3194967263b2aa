package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilterConflictingAxes(t *testing.T) {
	tests := []struct {
		name    string
		incDB   []string
		excDB   []string
		incTbl  []string
		excTbl  []string
		wantErr bool
	}{
		{name: "empty"},
		{name: "include databases only", incDB: []string{"a"}},
		{name: "exclude databases only", excDB: []string{"a"}},
		{name: "both database axes", incDB: []string{"a"}, excDB: []string{"b"}, wantErr: true},
		{name: "both table axes", incTbl: []string{"a.t"}, excTbl: []string{"b.t"}, wantErr: true},
		{name: "mixed axes allowed", incDB: []string{"a"}, excTbl: []string{"a.t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFilter(tt.incDB, tt.excDB, tt.incTbl, tt.excTbl)
			if tt.wantErr {
				var cerr *ConfigError
				require.ErrorAs(t, err, &cerr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestShouldReplicate(t *testing.T) {
	t.Run("empty config passes everything", func(t *testing.T) {
		f := EmptyFilter()
		assert.True(t, f.IsEmpty())
		assert.True(t, f.ShouldReplicateDatabase("anything"))
		assert.True(t, f.ShouldReplicateTable("db", "table"))
	})

	t.Run("include whitelist", func(t *testing.T) {
		f, err := NewFilter([]string{"app", "analytics"}, nil, nil, nil)
		require.NoError(t, err)
		assert.True(t, f.ShouldReplicateDatabase("app"))
		assert.True(t, f.ShouldReplicateDatabase("analytics"))
		assert.False(t, f.ShouldReplicateDatabase("scratch"))
	})

	t.Run("exclude blacklist", func(t *testing.T) {
		f, err := NewFilter(nil, []string{"scratch"}, nil, nil)
		require.NoError(t, err)
		assert.True(t, f.ShouldReplicateDatabase("app"))
		assert.False(t, f.ShouldReplicateDatabase("scratch"))
	})

	t.Run("table axis keys on db.table", func(t *testing.T) {
		f, err := NewFilter(nil, nil, []string{"app.users"}, nil)
		require.NoError(t, err)
		assert.True(t, f.ShouldReplicateTable("app", "users"))
		assert.False(t, f.ShouldReplicateTable("other", "users"))
		assert.False(t, f.ShouldReplicateTable("app", "orders"))
	})
}

type fakeDiscovery struct {
	databases []string
	tables    map[string][]QualifiedTable
	err       error
}

func (f *fakeDiscovery) Databases(context.Context) ([]string, error) {
	return f.databases, f.err
}

func (f *fakeDiscovery) Tables(_ context.Context, db string) ([]QualifiedTable, error) {
	return f.tables[db], f.err
}

func TestDatabasesToReplicate(t *testing.T) {
	ctx := context.Background()
	d := &fakeDiscovery{databases: []string{"app", "analytics", "scratch"}}

	t.Run("keeps discovery order", func(t *testing.T) {
		f, err := NewFilter(nil, []string{"scratch"}, nil, nil)
		require.NoError(t, err)
		got, err := f.DatabasesToReplicate(ctx, d)
		require.NoError(t, err)
		assert.Equal(t, []string{"app", "analytics"}, got)
	})

	t.Run("no databases is fatal", func(t *testing.T) {
		f, err := NewFilter([]string{"nosuch"}, nil, nil, nil)
		require.NoError(t, err)
		_, err = f.DatabasesToReplicate(ctx, d)
		var nomatch *NoMatchError
		require.ErrorAs(t, err, &nomatch)
		assert.Equal(t, []string{"app", "analytics", "scratch"}, nomatch.Discovered)
	})
}

func TestTablesToReplicate(t *testing.T) {
	ctx := context.Background()
	d := &fakeDiscovery{
		tables: map[string][]QualifiedTable{
			"app": {
				{Schema: "public", Table: "users"},
				{Schema: "public", Table: "sessions"},
			},
		},
	}

	t.Run("no tables is a valid outcome", func(t *testing.T) {
		f, err := NewFilter(nil, nil, []string{"app.nosuch"}, nil)
		require.NoError(t, err)
		got, err := f.TablesToReplicate(ctx, d, "app")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("attaches database context", func(t *testing.T) {
		f, err := NewFilter(nil, nil, nil, []string{"app.sessions"})
		require.NoError(t, err)
		got, err := f.TablesToReplicate(ctx, d, "app")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "app", got[0].Database)
		assert.Equal(t, "users", got[0].Table)
	})
}
