package migrate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgshift/pgshift/scope"
)

func planRules(t *testing.T) *scope.Rules {
	t.Helper()
	src := scope.NewSource()
	src.AddSchemaOnly("appdb", scope.TableKey{Schema: "public", Table: "sessions"})
	require.NoError(t, src.AddTableFilter("appdb",
		scope.TableKey{Schema: "public", Table: "orders"}, "status = 'open'"))
	require.NoError(t, src.AddTimeFilter("appdb",
		scope.TableKey{Schema: "audit", Table: "events"}, "created_at", "30d"))

	rules, err := scope.MergeRules(src, nil)
	require.NoError(t, err)
	return rules
}

func TestBuildPlan(t *testing.T) {
	rules := planRules(t)
	now := time.Date(2024, 3, 31, 12, 0, 0, 0, time.UTC)

	tables := []scope.QualifiedTable{
		{Database: "appdb", Schema: "public", Table: "users"},
		{Database: "appdb", Schema: "public", Table: "orders"},
		{Database: "appdb", Schema: "public", Table: "sessions"},
		{Database: "appdb", Schema: "audit", Table: "events"},
	}
	plan := buildPlan(rules, "appdb", tables, now)

	require.Len(t, plan.full, 1)
	assert.Equal(t, "users", plan.full[0].Table)

	require.Len(t, plan.schemaOnly, 1)
	assert.Equal(t, "sessions", plan.schemaOnly[0].Table)

	require.Len(t, plan.filtered, 2)
	assert.Equal(t, "orders", plan.filtered[0].table.Table)
	assert.Equal(t, "status = 'open'", plan.filtered[0].predicate)
	assert.Equal(t, "events", plan.filtered[1].table.Table)
	// the 30 day window resolves against now exactly once
	assert.Equal(t, `"created_at" >= '2024-03-01 12:00:00+00'`, plan.filtered[1].predicate)
}

func TestPlanInScope(t *testing.T) {
	rules := planRules(t)
	tables := []scope.QualifiedTable{
		{Database: "appdb", Schema: "public", Table: "users"},
		{Database: "appdb", Schema: "public", Table: "orders"},
		{Database: "appdb", Schema: "public", Table: "sessions"},
	}
	plan := buildPlan(rules, "appdb", tables, time.Now())

	assert.True(t, plan.inScope(scope.TableKey{Schema: "public", Table: "users"}))
	assert.True(t, plan.inScope(scope.TableKey{Schema: "public", Table: "orders"}))
	// schema-only ships no rows, so its dependents are not protected
	assert.False(t, plan.inScope(scope.TableKey{Schema: "public", Table: "sessions"}))
	// tables the run never saw are out of scope
	assert.False(t, plan.inScope(scope.TableKey{Schema: "public", Table: "unknown"}))
}

func TestPlanDataExclusions(t *testing.T) {
	rules := planRules(t)
	tables := []scope.QualifiedTable{
		{Database: "appdb", Schema: "public", Table: "users"},
		{Database: "appdb", Schema: "public", Table: "orders"},
		{Database: "appdb", Schema: "public", Table: "sessions"},
		{Database: "appdb", Schema: "audit", Table: "events"},
	}
	plan := buildPlan(rules, "appdb", tables, time.Now())

	assert.ElementsMatch(t, []string{
		`"public"."sessions"`,
		`"public"."orders"`,
		`"audit"."events"`,
	}, plan.dataExclusions())
}
