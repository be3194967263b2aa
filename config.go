package main

import (
	"os"

	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	"github.com/pgshift/pgshift/scope"
)

// FileConfig is the YAML layout of pgshift.yml. Every field is optional:
// anything it sets can also come from (and is overridden by) the command
// line.
type FileConfig struct {
	Source string `yaml:"source"`
	Target string `yaml:"target"`

	IncludeDatabases []string `yaml:"include_databases"`
	ExcludeDatabases []string `yaml:"exclude_databases"`
	IncludeTables    []string `yaml:"include_tables"`
	ExcludeTables    []string `yaml:"exclude_tables"`

	// Rules declared outside any database section apply to every database.
	RuleSection `yaml:",inline"`

	// Databases holds per-database rule sections.
	Databases map[string]RuleSection `yaml:"databases"`
}

// RuleSection declares scope rules for one database (or for all of them).
type RuleSection struct {
	SchemaOnly   []string              `yaml:"schema_only"`
	TableFilters map[string]string     `yaml:"table_filters"`
	TimeFilters  map[string]TimeFilter `yaml:"time_filters"`
}

type TimeFilter struct {
	Column string `yaml:"column"`
	Window string `yaml:"window"`
}

type AppConfig struct {
	SourceURL string
	TargetURL string

	IncludeDatabases []string
	ExcludeDatabases []string
	IncludeTables    []string
	ExcludeTables    []string

	Rules *scope.Source
}

func (fc FileConfig) Build() (*AppConfig, error) {
	rules := scope.NewSource()
	if err := fc.RuleSection.apply(rules, scope.AnyDatabase); err != nil {
		return nil, err
	}
	for db, section := range fc.Databases {
		if err := section.apply(rules, db); err != nil {
			return nil, err
		}
	}

	return &AppConfig{
		SourceURL:        fc.Source,
		TargetURL:        fc.Target,
		IncludeDatabases: fc.IncludeDatabases,
		ExcludeDatabases: fc.ExcludeDatabases,
		IncludeTables:    fc.IncludeTables,
		ExcludeTables:    fc.ExcludeTables,
		Rules:            rules,
	}, nil
}

func (rs RuleSection) apply(rules *scope.Source, db string) error {
	for _, name := range rs.SchemaOnly {
		table, err := scope.ParseQualifiedTable(name)
		if err != nil {
			return xerrors.Errorf("schema_only entry %q: %w", name, err)
		}
		rules.AddSchemaOnly(db, table.Key())
	}
	for name, predicate := range rs.TableFilters {
		table, err := scope.ParseQualifiedTable(name)
		if err != nil {
			return xerrors.Errorf("table_filters entry %q: %w", name, err)
		}
		if err := rules.AddTableFilter(db, table.Key(), predicate); err != nil {
			return err
		}
	}
	for name, tf := range rs.TimeFilters {
		table, err := scope.ParseQualifiedTable(name)
		if err != nil {
			return xerrors.Errorf("time_filters entry %q: %w", name, err)
		}
		if err := rules.AddTimeFilter(db, table.Key(), tf.Column, tf.Window); err != nil {
			return err
		}
	}
	return nil
}

// ReadConfig loads the YAML config. A missing file is not an error: pure
// command-line invocations run without one.
func ReadConfig(confPath string) (*AppConfig, error) {
	var fc FileConfig
	file, err := os.ReadFile(confPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fc.Build()
		}
		return nil, xerrors.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(file, &fc); err != nil {
		return nil, xerrors.Errorf("parse config: %w", err)
	}

	c, err := fc.Build()
	if err != nil {
		return nil, xerrors.Errorf("process config data: %w", err)
	}
	return c, nil
}
