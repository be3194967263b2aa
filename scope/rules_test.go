package scope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(schema, table string) TableKey { return TableKey{Schema: schema, Table: table} }

func TestParseWindow(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "90m", want: 90 * time.Minute},
		{input: "24h", want: 24 * time.Hour},
		{input: "30d", want: 30 * 24 * time.Hour},
		{input: "4w", want: 4 * 7 * 24 * time.Hour},
		{input: "", wantErr: true},
		{input: "d", wantErr: true},
		{input: "-5d", wantErr: true},
		{input: "0h", wantErr: true},
		{input: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseWindow(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeFilterPredicate(t *testing.T) {
	f := TimeFilter{Column: "created_at", Window: 24 * time.Hour, Raw: "24h"}
	now := time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, `"created_at" >= '2024-03-01 12:00:00+00'`, f.Predicate(now))
}

func TestMergeRulesPrecedence(t *testing.T) {
	config := NewSource()
	config.AddSchemaOnly("app", key("public", "big_table"))
	require.NoError(t, config.AddTableFilter("app", key("public", "orders"), "total > 0"))

	cli := NewSource()
	// command line recategorizes big_table from schema-only to filtered
	require.NoError(t, cli.AddTableFilter("app", key("public", "big_table"), "id > 100"))

	rules, err := MergeRules(config, cli)
	require.NoError(t, err)

	got := rules.For("app", key("public", "big_table"))
	assert.Equal(t, RuleTableFilter, got.Kind)
	assert.Equal(t, "id > 100", got.Predicate)

	// config entries without collisions survive
	got = rules.For("app", key("public", "orders"))
	assert.Equal(t, RuleTableFilter, got.Kind)
	assert.Equal(t, "total > 0", got.Predicate)

	assert.Empty(t, rules.SchemaOnlyKeys("app"))
}

func TestMergeRulesConflicts(t *testing.T) {
	t.Run("one source two categories", func(t *testing.T) {
		src := NewSource()
		src.AddSchemaOnly("app", key("public", "events"))
		require.NoError(t, src.AddTimeFilter("app", key("public", "events"), "created_at", "30d"))

		_, err := MergeRules(src, nil)
		var cerr *ConfigError
		require.ErrorAs(t, err, &cerr)
		assert.Contains(t, cerr.Error(), "public.events")
	})

	t.Run("same table different schemas is fine", func(t *testing.T) {
		src := NewSource()
		src.AddSchemaOnly("app", key("public", "events"))
		require.NoError(t, src.AddTimeFilter("app", key("analytics", "events"), "created_at", "30d"))

		_, err := MergeRules(src, nil)
		require.NoError(t, err)
	})

	t.Run("same table different databases is fine", func(t *testing.T) {
		src := NewSource()
		src.AddSchemaOnly("app", key("public", "events"))
		src.AddSchemaOnly("other", key("public", "events"))

		rules, err := MergeRules(src, nil)
		require.NoError(t, err)
		assert.Equal(t, RuleSchemaOnly, rules.For("app", key("public", "events")).Kind)
		assert.Equal(t, RuleSchemaOnly, rules.For("other", key("public", "events")).Kind)
	})
}

func TestRulesAnyDatabaseFallback(t *testing.T) {
	config := NewSource()
	config.AddSchemaOnly(AnyDatabase, key("public", "audit_log"))
	require.NoError(t, config.AddTableFilter("app", key("public", "audit_log"), "id > 0"))

	rules, err := MergeRules(config, nil)
	require.NoError(t, err)

	// the database-specific entry shadows the catch-all completely
	assert.Equal(t, RuleTableFilter, rules.For("app", key("public", "audit_log")).Kind)
	// other databases fall back to the catch-all bucket
	assert.Equal(t, RuleSchemaOnly, rules.For("other", key("public", "audit_log")).Kind)
	// unknown tables have no rule
	assert.Equal(t, RuleNone, rules.For("app", key("public", "users")).Kind)
}

func TestRulesIterationOrder(t *testing.T) {
	src := NewSource()
	src.AddSchemaOnly("app", key("zeta", "t"))
	src.AddSchemaOnly("app", key("alpha", "t"))
	src.AddSchemaOnly("app", key("alpha", "a"))

	rules, err := MergeRules(src, nil)
	require.NoError(t, err)

	assert.Equal(t,
		[]TableKey{key("alpha", "a"), key("alpha", "t"), key("zeta", "t")},
		rules.SchemaOnlyKeys("app"))
}
