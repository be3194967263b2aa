package migrate

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/pgshift/pgshift/retry"
)

// RequiredTools are the PostgreSQL client programs the runner shells out to.
var RequiredTools = []string{"pg_dump", "pg_dumpall", "psql"}

// CheckRequiredTools verifies the client tools are installed before any
// multi-hour run starts.
func CheckRequiredTools() error {
	var missing []string
	for _, tool := range RequiredTools {
		if _, err := exec.LookPath(tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required PostgreSQL client tools: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ProcessError carries the full captured output of a failed client tool, so
// the caller never needs a re-run to see what went wrong. The output text is
// also what the retry policy classifies.
type ProcessError struct {
	Tool   string
	Err    error
	Output string
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, strings.TrimSpace(e.Output))
}

func (e *ProcessError) Unwrap() error { return e.Err }

// Commander runs one external command and returns its combined output.
// Swapped out in tests.
type Commander func(ctx context.Context, name string, args ...string) ([]byte, error)

func execCommander(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Tools wraps the PostgreSQL client programs with transient-failure retry.
type Tools struct {
	log  *zap.Logger
	exec *retry.Executor
	run  Commander
}

func NewTools(log *zap.Logger, exec *retry.Executor) *Tools {
	return &Tools{
		log:  log.Named("tools"),
		exec: exec,
		run:  execCommander,
	}
}

// DumpGlobals exports roles and tablespaces with pg_dumpall.
func (t *Tools) DumpGlobals(ctx context.Context, sourceURL, outPath string) error {
	return t.runTool(ctx, "pg_dumpall",
		"--globals-only",
		"--no-role-passwords",
		"--dbname="+sourceURL,
		"--file="+outPath,
	)
}

// DumpSchema exports DDL only for one database.
func (t *Tools) DumpSchema(ctx context.Context, dbURL, outPath string) error {
	return t.runTool(ctx, "pg_dump",
		"--schema-only",
		"--no-owner",
		"--no-privileges",
		"--dbname="+dbURL,
		"--file="+outPath,
	)
}

// DumpData exports rows for one database, skipping the data of every table in
// exclude (schema-only and filtered tables travel separately or not at all).
// Triggers are disabled in the emitted script: filtered tables are populated
// out of band, so dependent rows must load without foreign key enforcement.
func (t *Tools) DumpData(ctx context.Context, dbURL, outPath string, exclude []string) error {
	args := []string{
		"--data-only",
		"--no-owner",
		"--disable-triggers",
	}
	for _, table := range exclude {
		args = append(args, "--exclude-table-data="+table)
	}
	args = append(args, "--dbname="+dbURL, "--file="+outPath)
	return t.runTool(ctx, "pg_dump", args...)
}

// RestoreGlobals replays a pg_dumpall globals file. Unlike Restore this does
// not stop on errors: re-running over roles that already exist is normal and
// psql reports each conflict without aborting the rest.
func (t *Tools) RestoreGlobals(ctx context.Context, dbURL, file string) error {
	return t.runTool(ctx, "psql",
		"--dbname="+dbURL,
		"--file="+file,
		"--quiet",
	)
}

// Restore replays a dump file with psql, stopping on the first error.
func (t *Tools) Restore(ctx context.Context, dbURL, file string) error {
	return t.runTool(ctx, "psql",
		"--dbname="+dbURL,
		"--file="+file,
		"--variable=ON_ERROR_STOP=1",
		"--quiet",
	)
}

func (t *Tools) runTool(ctx context.Context, name string, args ...string) error {
	t.log.Debug("running client tool", zap.String("tool", name))
	return t.exec.Do(retry.ProcessPolicy(), func() error {
		out, err := t.run(ctx, name, args...)
		if err != nil {
			return &ProcessError{Tool: name, Err: err, Output: string(out)}
		}
		return nil
	})
}
