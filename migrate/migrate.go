// Package migrate orchestrates a full source-to-target PostgreSQL migration:
// discovery, scope resolution, schema and data transfer, filtered row copies
// and optional logical replication, all under a resumable checkpoint.
package migrate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/pgshift/pgshift/cascade"
	"github.com/pgshift/pgshift/checkpoint"
	"github.com/pgshift/pgshift/db"
	"github.com/pgshift/pgshift/discover"
	"github.com/pgshift/pgshift/replication"
	"github.com/pgshift/pgshift/retry"
	"github.com/pgshift/pgshift/scope"
)

// DefaultSyncTimeout bounds how long a run waits for a subscription's initial
// sync before giving up.
const DefaultSyncTimeout = 10 * time.Minute

// Config is everything a run needs besides the scope rules and filter.
type Config struct {
	SourceURL string
	TargetURL string

	// DropExisting recreates target databases from scratch.
	DropExisting bool
	// EnableSync sets up logical replication after the copy.
	EnableSync bool
	// Fresh discards any stored checkpoint.
	Fresh bool
	// Debug traces every statement the runner issues.
	Debug bool

	CheckpointDir string
	SyncTimeout   time.Duration
}

// Runner executes one migration end to end.
type Runner struct {
	cfg    Config
	log    *zap.Logger
	rules  *scope.Rules
	filter *scope.Filter

	store *checkpoint.Store
	disc  *discover.Discoverer
	tools *Tools
	conn  *db.Connector
	sync  *replication.Setup

	// now is fixed at construction so every rolling time window of the run
	// resolves against the same instant.
	now time.Time
}

func NewRunner(cfg Config, rules *scope.Rules, filter *scope.Filter, fs afero.Fs, log *zap.Logger) *Runner {
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}
	exec := retry.NewExecutor(log)
	r := &Runner{
		cfg:    cfg,
		log:    log.Named("migrate"),
		rules:  rules,
		filter: filter,
		store:  checkpoint.NewStore(fs, cfg.CheckpointDir, log),
		tools:  NewTools(log, exec),
		conn:   db.NewConnector(log, exec, cfg.Debug),
		sync:   replication.NewSetup(log),
		now:    time.Now(),
	}
	r.disc = discover.NewDiscoverer(r.sourceDialFunc(), log)
	return r
}

// Run performs the migration. Databases completed by a previous invocation
// with the same identity are skipped.
func (r *Runner) Run(ctx context.Context) error {
	if err := SameEndpoint(r.cfg.SourceURL, r.cfg.TargetURL); err != nil {
		return err
	}
	src, err := ParseEndpoint(r.cfg.SourceURL)
	if err != nil {
		return fmt.Errorf("source: %w", err)
	}
	tgt, err := ParseEndpoint(r.cfg.TargetURL)
	if err != nil {
		return fmt.Errorf("target: %w", err)
	}

	id := checkpoint.Identity{
		SourceHash:   src.Hash(),
		TargetHash:   tgt.Hash(),
		Fingerprint:  scope.Fingerprint(r.rules, r.filter),
		DropExisting: r.cfg.DropExisting,
		EnableSync:   r.cfg.EnableSync,
	}

	databases, err := r.filter.DatabasesToReplicate(ctx, r.disc)
	if err != nil {
		return err
	}
	r.log.Info("databases in scope", zap.Strings("databases", databases))

	run, err := r.store.Begin(id, databases, r.cfg.Fresh)
	if err != nil {
		return err
	}
	remaining := run.Remaining()
	if run.Resumed() {
		r.log.Info("skipping completed databases",
			zap.Strings("completed", run.Completed()),
			zap.Strings("remaining", remaining),
		)
	}

	dumpDir := filepath.Join(os.TempDir(), "pgshift-"+uuid.NewString())
	if err := os.MkdirAll(dumpDir, 0o700); err != nil {
		return fmt.Errorf("create dump dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dumpDir); err != nil {
			r.log.Warn("remove dump dir", zap.String("dir", dumpDir), zap.Error(err))
		}
	}()

	if err := r.migrateGlobals(ctx, dumpDir); err != nil {
		return err
	}

	multi := len(run.Total()) > 1
	for _, db := range remaining {
		if err := r.migrateDatabase(ctx, db, dumpDir, multi); err != nil {
			return fmt.Errorf("database %q: %w", db, err)
		}
		if err := run.Complete(db); err != nil {
			return err
		}
	}

	if err := run.Finish(); err != nil {
		return err
	}
	r.log.Info("migration complete", zap.Int("databases", len(run.Total())))
	return nil
}

// migrateGlobals carries roles and tablespaces over. Runs on every
// invocation: replaying over existing roles is harmless.
func (r *Runner) migrateGlobals(ctx context.Context, dumpDir string) error {
	path := filepath.Join(dumpDir, "globals.sql")
	if err := r.tools.DumpGlobals(ctx, r.cfg.SourceURL, path); err != nil {
		return fmt.Errorf("dump globals: %w", err)
	}
	if err := r.tools.RestoreGlobals(ctx, r.cfg.TargetURL, path); err != nil {
		return fmt.Errorf("restore globals: %w", err)
	}
	return nil
}

func (r *Runner) migrateDatabase(ctx context.Context, db, dumpDir string, multi bool) error {
	log := r.log.With(zap.String("database", db))
	log.Info("migrating database")

	tables, err := r.filter.TablesToReplicate(ctx, r.disc, db)
	if err != nil {
		return err
	}
	plan := buildPlan(r.rules, db, tables, r.now)
	log.Info("table plan resolved",
		zap.Int("full", len(plan.full)),
		zap.Int("schema_only", len(plan.schemaOnly)),
		zap.Int("filtered", len(plan.filtered)),
	)

	// Every filtered table is truncated on the target before its rows arrive,
	// and TRUNCATE CASCADE reaches FK dependents. Prove no out-of-scope table
	// can be hit before touching anything.
	for _, ft := range plan.filtered {
		if err := cascade.Check(ctx, r.disc, db, ft.table.Key(), plan.inScope); err != nil {
			return err
		}
	}

	srcURL, err := ReplaceDatabase(r.cfg.SourceURL, db)
	if err != nil {
		return err
	}
	tgtURL, err := ReplaceDatabase(r.cfg.TargetURL, db)
	if err != nil {
		return err
	}

	for _, ph := range r.databasePhases(db, dumpDir, srcURL, tgtURL, plan, multi) {
		log.Debug("phase", zap.String("phase", ph.name))
		if err := ph.run(ctx); err != nil {
			return fmt.Errorf("%s: %w", ph.name, err)
		}
	}
	return nil
}

type phase struct {
	name string
	run  func(ctx context.Context) error
}

// databasePhases lays out one database's workflow. Filtered copies run before
// the bulk data restore: each copy truncates its destination with CASCADE, so
// running them afterwards would delete freshly restored rows of in-scope
// dependents, and restoring dependents while the filtered table is still
// empty would trip its foreign keys.
func (r *Runner) databasePhases(db, dumpDir, srcURL, tgtURL string, plan tablePlan, multi bool) []phase {
	schemaPath := filepath.Join(dumpDir, db+".schema.sql")
	dataPath := filepath.Join(dumpDir, db+".data.sql")

	phases := []phase{
		{"prepare target database", func(ctx context.Context) error {
			return r.prepareTarget(ctx, db)
		}},
		{"dump schema", func(ctx context.Context) error {
			return r.tools.DumpSchema(ctx, srcURL, schemaPath)
		}},
		{"restore schema", func(ctx context.Context) error {
			return r.tools.Restore(ctx, tgtURL, schemaPath)
		}},
	}
	for _, ft := range plan.filtered {
		ft := ft
		phases = append(phases, phase{"filtered copy " + ft.table.String(), func(ctx context.Context) error {
			return r.filteredCopy(ctx, db, ft)
		}})
	}
	phases = append(phases,
		phase{"dump data", func(ctx context.Context) error {
			return r.tools.DumpData(ctx, srcURL, dataPath, plan.dataExclusions())
		}},
		phase{"restore data", func(ctx context.Context) error {
			return r.tools.Restore(ctx, tgtURL, dataPath)
		}},
	)
	if r.cfg.EnableSync {
		phases = append(phases, phase{"replication sync", func(ctx context.Context) error {
			return r.setupSync(ctx, db, srcURL, plan, multi)
		}})
	}
	return phases
}

// prepareTarget connects to the target's maintenance database and makes sure
// the destination database exists.
func (r *Runner) prepareTarget(ctx context.Context, db string) (err error) {
	admin, err := r.dialTarget(ctx, "")
	if err != nil {
		return fmt.Errorf("connect to target: %w", err)
	}
	defer func() {
		if cerr := admin.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return r.ensureTargetDatabase(ctx, admin, db)
}

// setupSync wires logical replication for one database. The publication
// enumerates tables whenever the run's scope is narrower than the whole
// database; FOR ALL TABLES would leak excluded rows.
func (r *Runner) setupSync(ctx context.Context, db, srcURL string, plan tablePlan, multi bool) (err error) {
	var pubTables []scope.QualifiedTable
	if len(plan.schemaOnly) > 0 || len(plan.filtered) > 0 || !r.filter.IsEmpty() {
		pubTables = append(pubTables, plan.full...)
		for _, ft := range plan.filtered {
			pubTables = append(pubTables, ft.table)
		}
	}

	src, err := r.dialSource(ctx, db)
	if err != nil {
		return fmt.Errorf("connect to source %q: %w", db, err)
	}
	defer func() {
		if cerr := src.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	pub := replication.ObjectName(replication.DefaultPublication, db, multi)
	if err := r.sync.CreatePublication(ctx, src, pub, pubTables); err != nil {
		return err
	}

	tgt, err := r.dialTarget(ctx, db)
	if err != nil {
		return fmt.Errorf("connect to target %q: %w", db, err)
	}
	defer func() {
		if cerr := tgt.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sub := replication.ObjectName(replication.DefaultSubscription, db, multi)
	if err := r.sync.CreateSubscription(ctx, tgt, sub, srcURL, pub); err != nil {
		return err
	}
	return r.sync.WaitForSync(ctx, tgt, sub, r.cfg.SyncTimeout)
}

// dialSource opens a connection to one source database, retrying transient
// network failures. An empty name targets the URL's own database.
func (r *Runner) dialSource(ctx context.Context, db string) (*pgx.Conn, error) {
	return r.dial(ctx, r.cfg.SourceURL, db)
}

func (r *Runner) dialTarget(ctx context.Context, db string) (*pgx.Conn, error) {
	return r.dial(ctx, r.cfg.TargetURL, db)
}

func (r *Runner) dial(ctx context.Context, url, name string) (*pgx.Conn, error) {
	if name != "" {
		var err error
		url, err = ReplaceDatabase(url, name)
		if err != nil {
			return nil, err
		}
	}
	return r.conn.Connect(ctx, url)
}

// sourceDialFunc adapts dialing for the discovery layer. Discovery sessions
// are short-lived: each one closes before the long transfers begin.
func (r *Runner) sourceDialFunc() discover.DialFunc {
	return func(ctx context.Context, db string) (discover.Executor, discover.CloseFunc, error) {
		conn, err := r.dialSource(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	}
}
