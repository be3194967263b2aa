package scope

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// AnyDatabase is the bucket for rules declared without a database prefix.
// A lookup falls back to it only when the exact database has no rule at all
// for the same table.
const AnyDatabase = ""

// RuleKind classifies what a run does with a table's rows.
type RuleKind int

const (
	// RuleNone - unrestricted, all rows are copied.
	RuleNone RuleKind = iota
	// RuleSchemaOnly - structure is copied, rows are not.
	RuleSchemaOnly
	// RuleTableFilter - rows matching a SQL predicate are copied.
	RuleTableFilter
	// RuleTimeFilter - rows inside a rolling time window are copied.
	RuleTimeFilter
)

func (k RuleKind) String() string {
	switch k {
	case RuleSchemaOnly:
		return "schema-only"
	case RuleTableFilter:
		return "table-filter"
	case RuleTimeFilter:
		return "time-filter"
	default:
		return "none"
	}
}

// TimeFilter restricts a table to rows newer than a rolling window.
type TimeFilter struct {
	Column string
	Window time.Duration
	// Raw is the window as written ("30d"). The fingerprint hashes Raw rather
	// than the resolved instant, so a resumed run keeps its identity.
	Raw string
}

// Predicate resolves the rolling window against now. Resolution happens once
// per invocation; the cutoff never moves while a run is in progress.
func (f TimeFilter) Predicate(now time.Time) string {
	cutoff := now.UTC().Add(-f.Window)
	return fmt.Sprintf("%s >= '%s'", quoteIdent(f.Column), cutoff.Format("2006-01-02 15:04:05.999999-07"))
}

// ParseWindow parses a rolling window like "90m", "24h", "30d" or "4w".
// Day and week suffixes are expanded to hours, the rest is handled by
// time.ParseDuration.
func ParseWindow(s string) (time.Duration, error) {
	if s == "" {
		return 0, configErrorf("empty time window")
	}
	switch unit := s[len(s)-1]; unit {
	case 'd', 'w':
		n, err := strconv.Atoi(s[:len(s)-1])
		if err != nil || n <= 0 {
			return 0, configErrorf("invalid time window %q", s)
		}
		if unit == 'w' {
			n *= 7
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, configErrorf("invalid time window %q", s)
	}
	return d, nil
}

// Source is one origin of scope rules, either the config file or the command
// line. Entries are keyed by database name; AnyDatabase collects entries
// declared without one.
type Source struct {
	schemaOnly  map[string]mapset.Set[TableKey]
	tableFilter map[string]map[TableKey]string
	timeFilter  map[string]map[TableKey]TimeFilter
}

func NewSource() *Source {
	return &Source{
		schemaOnly:  make(map[string]mapset.Set[TableKey]),
		tableFilter: make(map[string]map[TableKey]string),
		timeFilter:  make(map[string]map[TableKey]TimeFilter),
	}
}

func (s *Source) AddSchemaOnly(db string, key TableKey) {
	set, ok := s.schemaOnly[db]
	if !ok {
		set = mapset.NewThreadUnsafeSet[TableKey]()
		s.schemaOnly[db] = set
	}
	set.Add(key)
}

func (s *Source) AddTableFilter(db string, key TableKey, predicate string) error {
	if strings.TrimSpace(predicate) == "" {
		return configErrorf("empty predicate for table %q", key)
	}
	m, ok := s.tableFilter[db]
	if !ok {
		m = make(map[TableKey]string)
		s.tableFilter[db] = m
	}
	m[key] = predicate
	return nil
}

func (s *Source) AddTimeFilter(db string, key TableKey, column, window string) error {
	if strings.TrimSpace(column) == "" {
		return configErrorf("empty time filter column for table %q", key)
	}
	d, err := ParseWindow(window)
	if err != nil {
		return err
	}
	m, ok := s.timeFilter[db]
	if !ok {
		m = make(map[TableKey]TimeFilter)
		s.timeFilter[db] = m
	}
	m[key] = TimeFilter{Column: column, Window: d, Raw: window}
	return nil
}

// validate rejects a table declared in more than one category for the same
// database. Silently preferring one rule would quietly change what data the
// run copies.
func (s *Source) validate(origin string) error {
	for _, db := range s.databases() {
		counts := make(map[TableKey][]RuleKind)
		if set, ok := s.schemaOnly[db]; ok {
			for key := range set.Iter() {
				counts[key] = append(counts[key], RuleSchemaOnly)
			}
		}
		for key := range s.tableFilter[db] {
			counts[key] = append(counts[key], RuleTableFilter)
		}
		for key := range s.timeFilter[db] {
			counts[key] = append(counts[key], RuleTimeFilter)
		}
		for key, kinds := range counts {
			if len(kinds) > 1 {
				return configErrorf(
					"table %q declared in multiple rule categories (%s) for %s in %s",
					key, joinKinds(kinds), describeDB(db), origin)
			}
		}
	}
	return nil
}

func (s *Source) databases() []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for db := range s.schemaOnly {
		set.Add(db)
	}
	for db := range s.tableFilter {
		set.Add(db)
	}
	for db := range s.timeFilter {
		set.Add(db)
	}
	dbs := set.ToSlice()
	slices.Sort(dbs)
	return dbs
}

// dropKey removes key from every category of the db bucket.
func (s *Source) dropKey(db string, key TableKey) {
	if set, ok := s.schemaOnly[db]; ok {
		set.Remove(key)
	}
	delete(s.tableFilter[db], key)
	delete(s.timeFilter[db], key)
}

func (s *Source) clone() *Source {
	c := NewSource()
	for db, set := range s.schemaOnly {
		c.schemaOnly[db] = set.Clone()
	}
	for db, m := range s.tableFilter {
		c.tableFilter[db] = maps.Clone(m)
	}
	for db, m := range s.timeFilter {
		c.timeFilter[db] = maps.Clone(m)
	}
	return c
}

func joinKinds(kinds []RuleKind) string {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	slices.Sort(names)
	return strings.Join(names, ", ")
}

func describeDB(db string) string {
	if db == AnyDatabase {
		return "any database"
	}
	return fmt.Sprintf("database %q", db)
}

// Rules is the merged, immutable scope rule store for one run.
type Rules struct {
	src *Source
}

// MergeRules combines the config-file and command-line sources. Both sources
// are validated first; on key collision the command line wins, replacing the
// config entry in whatever category it was declared.
func MergeRules(config, cli *Source) (*Rules, error) {
	if config == nil {
		config = NewSource()
	}
	if cli == nil {
		cli = NewSource()
	}
	if err := config.validate("config file"); err != nil {
		return nil, err
	}
	if err := cli.validate("command line"); err != nil {
		return nil, err
	}

	merged := config.clone()
	for db, set := range cli.schemaOnly {
		for key := range set.Iter() {
			merged.dropKey(db, key)
			merged.AddSchemaOnly(db, key)
		}
	}
	for db, m := range cli.tableFilter {
		for key, predicate := range m {
			merged.dropKey(db, key)
			if err := merged.AddTableFilter(db, key, predicate); err != nil {
				return nil, err
			}
		}
	}
	for db, m := range cli.timeFilter {
		for key, f := range m {
			merged.dropKey(db, key)
			mm, ok := merged.timeFilter[db]
			if !ok {
				mm = make(map[TableKey]TimeFilter)
				merged.timeFilter[db] = mm
			}
			mm[key] = f
		}
	}
	return &Rules{src: merged}, nil
}

// Rule is the resolved decision for a single table.
type Rule struct {
	Kind      RuleKind
	Predicate string     // RuleTableFilter
	Time      TimeFilter // RuleTimeFilter
}

// For resolves the rule for a table in a database. A database-specific entry
// shadows an AnyDatabase entry for the same table entirely.
func (r *Rules) For(db string, key TableKey) Rule {
	if rule, ok := r.src.lookup(db, key); ok {
		return rule
	}
	if db != AnyDatabase {
		if rule, ok := r.src.lookup(AnyDatabase, key); ok {
			return rule
		}
	}
	return Rule{Kind: RuleNone}
}

func (s *Source) lookup(db string, key TableKey) (Rule, bool) {
	if set, ok := s.schemaOnly[db]; ok && set.Contains(key) {
		return Rule{Kind: RuleSchemaOnly}, true
	}
	if predicate, ok := s.tableFilter[db][key]; ok {
		return Rule{Kind: RuleTableFilter, Predicate: predicate}, true
	}
	if f, ok := s.timeFilter[db][key]; ok {
		return Rule{Kind: RuleTimeFilter, Time: f}, true
	}
	return Rule{}, false
}

// Databases lists every database bucket in lexicographic order. AnyDatabase
// sorts first.
func (r *Rules) Databases() []string { return r.src.databases() }

// SchemaOnlyKeys lists the schema-only tables of a database in (schema, table)
// order.
func (r *Rules) SchemaOnlyKeys(db string) []TableKey {
	set, ok := r.src.schemaOnly[db]
	if !ok {
		return nil
	}
	return sortKeys(set.ToSlice())
}

// TableFilterEntry is one predicate-filtered table.
type TableFilterEntry struct {
	Key       TableKey
	Predicate string
}

// TableFilters lists the predicate-filtered tables of a database in
// (schema, table) order.
func (r *Rules) TableFilters(db string) []TableFilterEntry {
	m := r.src.tableFilter[db]
	entries := make([]TableFilterEntry, 0, len(m))
	for _, key := range sortKeys(maps.Keys(m)) {
		entries = append(entries, TableFilterEntry{Key: key, Predicate: m[key]})
	}
	return entries
}

// TimeFilterEntry is one time-filtered table.
type TimeFilterEntry struct {
	Key    TableKey
	Filter TimeFilter
}

// TimeFilters lists the time-filtered tables of a database in (schema, table)
// order.
func (r *Rules) TimeFilters(db string) []TimeFilterEntry {
	m := r.src.timeFilter[db]
	entries := make([]TimeFilterEntry, 0, len(m))
	for _, key := range sortKeys(maps.Keys(m)) {
		entries = append(entries, TimeFilterEntry{Key: key, Filter: m[key]})
	}
	return entries
}

func sortKeys(keys []TableKey) []TableKey {
	slices.SortFunc(keys, func(a, b TableKey) bool { return a.Less(b) })
	return keys
}
