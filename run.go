package main

import (
	"errors"
	"strings"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/pgshift/pgshift/checkpoint"
	"github.com/pgshift/pgshift/discover"
	"github.com/pgshift/pgshift/migrate"
	"github.com/pgshift/pgshift/scope"
)

// scopeFlags is the endpoint and scope selection shared by every command that
// resolves a table plan (run, verify).
type scopeFlags struct {
	flags
	source *cli.StringFlag
	target *cli.StringFlag

	includeDatabases *cli.StringSliceFlag
	excludeDatabases *cli.StringSliceFlag
	includeTables    *cli.StringSliceFlag
	excludeTables    *cli.StringSliceFlag

	schemaOnly  *cli.StringSliceFlag
	tableFilter *cli.StringSliceFlag
	timeFilter  *cli.StringSliceFlag
}

func newScopeFlags(f flags) scopeFlags {
	return scopeFlags{
		flags: f,
		source: &cli.StringFlag{
			Name:  "source",
			Usage: "source connection url (postgres://...)",
		},
		target: &cli.StringFlag{
			Name:  "target",
			Usage: "target connection url (postgres://...)",
		},
		includeDatabases: &cli.StringSliceFlag{
			Name:  "include-databases",
			Usage: "replicate only these databases",
		},
		excludeDatabases: &cli.StringSliceFlag{
			Name:  "exclude-databases",
			Usage: "replicate everything except these databases",
		},
		includeTables: &cli.StringSliceFlag{
			Name:  "include-tables",
			Usage: "replicate only these tables (db.table)",
		},
		excludeTables: &cli.StringSliceFlag{
			Name:  "exclude-tables",
			Usage: "replicate everything except these tables (db.table)",
		},
		schemaOnly: &cli.StringSliceFlag{
			Name:  "schema-only",
			Usage: "copy structure but no rows ([db.]schema.table)",
		},
		tableFilter: &cli.StringSliceFlag{
			Name:  "table-filter",
			Usage: "copy only rows matching a predicate ([db.]schema.table:predicate)",
		},
		timeFilter: &cli.StringSliceFlag{
			Name:  "time-filter",
			Usage: "copy only rows inside a rolling window ([db.]schema.table:column:window)",
		},
	}
}

func (sf *scopeFlags) Set() []cli.Flag {
	return append(sf.flags.Set(),
		sf.source,
		sf.target,
		sf.includeDatabases,
		sf.excludeDatabases,
		sf.includeTables,
		sf.excludeTables,
		sf.schemaOnly,
		sf.tableFilter,
		sf.timeFilter,
	)
}

// urls resolves the endpoints, flags winning over config.
func (sf *scopeFlags) urls(ctx *cli.Context, cnf *AppConfig) (string, string, error) {
	sourceURL := firstNonEmpty(sf.source.Get(ctx), cnf.SourceURL)
	targetURL := firstNonEmpty(sf.target.Get(ctx), cnf.TargetURL)
	if sourceURL == "" || targetURL == "" {
		return "", "", xerrors.New("both source and target urls are required (flags or config)")
	}
	return sourceURL, targetURL, nil
}

// buildScope merges the config file's scope settings with the flags.
func (sf *scopeFlags) buildScope(ctx *cli.Context, cnf *AppConfig) (*scope.Filter, *scope.Rules, error) {
	filter, err := scope.NewFilter(
		mergeLists(cnf.IncludeDatabases, sf.includeDatabases.Get(ctx)),
		mergeLists(cnf.ExcludeDatabases, sf.excludeDatabases.Get(ctx)),
		mergeLists(cnf.IncludeTables, sf.includeTables.Get(ctx)),
		mergeLists(cnf.ExcludeTables, sf.excludeTables.Get(ctx)),
	)
	if err != nil {
		return nil, nil, err
	}

	cliRules, err := parseCLIRules(
		sf.schemaOnly.Get(ctx),
		sf.tableFilter.Get(ctx),
		sf.timeFilter.Get(ctx),
	)
	if err != nil {
		return nil, nil, err
	}
	rules, err := scope.MergeRules(cnf.Rules, cliRules)
	if err != nil {
		return nil, nil, err
	}
	return filter, rules, nil
}

type runFlags struct {
	scopeFlags
	fresh        *cli.BoolFlag
	dropExisting *cli.BoolFlag
	enableSync   *cli.BoolFlag
	syncTimeout  *cli.DurationFlag
}

func (rf *runFlags) Set() []cli.Flag {
	return append(rf.scopeFlags.Set(),
		rf.fresh,
		rf.dropExisting,
		rf.enableSync,
		rf.syncTimeout,
	)
}

type runCommand struct {
	rf runFlags
	BaseCommand
}

func NewRunCommand(f flags) *runCommand {
	return &runCommand{
		rf: runFlags{
			scopeFlags: newScopeFlags(f),
			fresh: &cli.BoolFlag{
				Name:  "fresh",
				Usage: "ignore any stored checkpoint and start over",
			},
			dropExisting: &cli.BoolFlag{
				Name:  "drop-existing",
				Usage: "drop target databases before recreating them",
			},
			enableSync: &cli.BoolFlag{
				Name:  "enable-sync",
				Usage: "set up logical replication after the copy",
			},
			syncTimeout: &cli.DurationFlag{
				Name:  "sync-timeout",
				Value: migrate.DefaultSyncTimeout,
				Usage: "how long to wait for the initial replication sync",
			},
		},
	}
}

func (r *runCommand) Command() *cli.Command {
	return &cli.Command{
		Name:        "run",
		Description: "migrate databases from source to target",
		Flags:       r.rf.Set(),
		Before:      r.init,
		Action:      r.run,
	}
}

func (r *runCommand) init(ctx *cli.Context) error {
	base, err := NewBase(ctx, r.rf.flags)
	if err != nil {
		return cli.Exit(err, 2)
	}
	r.BaseCommand = base
	return nil
}

func (r *runCommand) run(ctx *cli.Context) error {
	sourceURL, targetURL, err := r.rf.urls(ctx, r.cnf)
	if err != nil {
		return err
	}

	if err := migrate.CheckRequiredTools(); err != nil {
		return err
	}

	filter, rules, err := r.rf.buildScope(ctx, r.cnf)
	if err != nil {
		return err
	}

	cfg := migrate.Config{
		SourceURL:     sourceURL,
		TargetURL:     targetURL,
		DropExisting:  r.rf.dropExisting.Get(ctx),
		EnableSync:    r.rf.enableSync.Get(ctx),
		Fresh:         r.rf.fresh.Get(ctx),
		Debug:         r.rf.debug.Get(ctx),
		CheckpointDir: checkpoint.DefaultDir,
		SyncTimeout:   r.rf.syncTimeout.Get(ctx),
	}

	runner := migrate.NewRunner(cfg, rules, filter, afero.NewOsFs(), r.log)
	if err := runner.Run(ctx.Context); err != nil {
		var dErr discover.Error
		if errors.As(err, &dErr) {
			r.log.Error(dErr.Pretty())
		}
		return xerrors.Errorf("migration failed: %w", err)
	}
	return nil
}

// parseCLIRules turns the repeated rule flags into a rule source. A reference
// with three dotted parts is db.schema.table; two parts is schema.table in
// any database; a bare name is public.table in any database.
func parseCLIRules(schemaOnly, tableFilters, timeFilters []string) (*scope.Source, error) {
	src := scope.NewSource()

	for _, ref := range schemaOnly {
		db, key, err := parseTableRef(ref)
		if err != nil {
			return nil, err
		}
		src.AddSchemaOnly(db, key)
	}

	for _, raw := range tableFilters {
		ref, predicate, found := strings.Cut(raw, ":")
		if !found {
			return nil, xerrors.Errorf("table filter %q: want table:predicate", raw)
		}
		db, key, err := parseTableRef(ref)
		if err != nil {
			return nil, err
		}
		if err := src.AddTableFilter(db, key, predicate); err != nil {
			return nil, err
		}
	}

	for _, raw := range timeFilters {
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, xerrors.Errorf("time filter %q: want table:column:window", raw)
		}
		db, key, err := parseTableRef(parts[0])
		if err != nil {
			return nil, err
		}
		if err := src.AddTimeFilter(db, key, parts[1], parts[2]); err != nil {
			return nil, err
		}
	}
	return src, nil
}

func parseTableRef(ref string) (string, scope.TableKey, error) {
	parts := strings.Split(ref, ".")
	switch len(parts) {
	case 1:
		return scope.AnyDatabase, scope.TableKey{Schema: scope.DefaultSchema, Table: parts[0]}, nil
	case 2:
		return scope.AnyDatabase, scope.TableKey{Schema: parts[0], Table: parts[1]}, nil
	case 3:
		return parts[0], scope.TableKey{Schema: parts[1], Table: parts[2]}, nil
	default:
		return "", scope.TableKey{}, xerrors.Errorf("invalid table reference %q", ref)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func mergeLists(config, cli []string) []string {
	if len(cli) > 0 {
		return cli
	}
	return config
}
