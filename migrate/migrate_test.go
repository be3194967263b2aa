package migrate

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/pgshift/pgshift/scope"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	rules, err := scope.MergeRules(nil, nil)
	require.NoError(t, err)
	return NewRunner(cfg, rules, scope.EmptyFilter(), afero.NewMemMapFs(), zaptest.NewLogger(t))
}

func phaseNames(phases []phase) []string {
	names := make([]string, 0, len(phases))
	for _, ph := range phases {
		names = append(names, ph.name)
	}
	return names
}

func indexOf(t *testing.T, names []string, want string) int {
	t.Helper()
	for i, name := range names {
		if name == want {
			return i
		}
	}
	t.Fatalf("phase %q not found in %v", want, names)
	return -1
}

// A filtered copy truncates its destination with CASCADE. Running it after
// the bulk restore would delete freshly restored rows of in-scope FK
// dependents, so every filtered copy must sit between the schema restore and
// the data restore.
func TestDatabasePhasesOrderFilteredCopiesBeforeDataRestore(t *testing.T) {
	r := newTestRunner(t, Config{
		SourceURL: "postgres://u@src/postgres",
		TargetURL: "postgres://u@dst/postgres",
	})

	plan := tablePlan{
		full: []scope.QualifiedTable{{Database: "appdb", Schema: "public", Table: "users"}},
		filtered: []filteredTable{
			{table: scope.QualifiedTable{Database: "appdb", Schema: "public", Table: "orders"}, predicate: "status = 'open'"},
			{table: scope.QualifiedTable{Database: "appdb", Schema: "audit", Table: "events"}, predicate: `"created_at" >= '2024-03-01'`},
		},
	}

	names := phaseNames(r.databasePhases("appdb", "/tmp/dumps", "src-url", "tgt-url", plan, false))

	restoreSchema := indexOf(t, names, "restore schema")
	dumpData := indexOf(t, names, "dump data")
	restoreData := indexOf(t, names, "restore data")
	assert.Less(t, dumpData, restoreData)

	for _, copyPhase := range []string{
		"filtered copy appdb.public.orders",
		"filtered copy appdb.audit.events",
	} {
		i := indexOf(t, names, copyPhase)
		assert.Greater(t, i, restoreSchema, "%s must come after the schema restore", copyPhase)
		assert.Less(t, i, dumpData, "%s must come before the bulk data restore", copyPhase)
	}
}

func TestDatabasePhasesSyncGated(t *testing.T) {
	plan := tablePlan{}

	r := newTestRunner(t, Config{SourceURL: "postgres://u@src/postgres", TargetURL: "postgres://u@dst/postgres"})
	names := phaseNames(r.databasePhases("appdb", "/tmp/dumps", "src-url", "tgt-url", plan, false))
	assert.NotContains(t, names, "replication sync")
	assert.Equal(t, "restore data", names[len(names)-1])

	r = newTestRunner(t, Config{
		SourceURL:  "postgres://u@src/postgres",
		TargetURL:  "postgres://u@dst/postgres",
		EnableSync: true,
	})
	names = phaseNames(r.databasePhases("appdb", "/tmp/dumps", "src-url", "tgt-url", plan, true))
	assert.Equal(t, "replication sync", names[len(names)-1])
}

func TestDatabasePhasesStartWithTargetPreparation(t *testing.T) {
	r := newTestRunner(t, Config{
		SourceURL:   "postgres://u@src/postgres",
		TargetURL:   "postgres://u@dst/postgres",
		SyncTimeout: time.Minute,
	})
	names := phaseNames(r.databasePhases("appdb", "/tmp/dumps", "src-url", "tgt-url", tablePlan{}, false))
	require.NotEmpty(t, names)
	assert.Equal(t, "prepare target database", names[0])
}
