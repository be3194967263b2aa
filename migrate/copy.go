package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// ensureTargetDatabase creates the database on the target. With drop-existing
// the old database goes first; otherwise an existing database is reused.
func (r *Runner) ensureTargetDatabase(ctx context.Context, admin *pgx.Conn, db string) error {
	if r.cfg.DropExisting {
		if _, err := admin.Exec(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", quoteIdent(db))); err != nil {
			return fmt.Errorf("drop database %q: %w", db, err)
		}
	}

	if _, err := admin.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", quoteIdent(db))); err != nil {
		var pgErr *pgconn.PgError
		// 42P04 duplicate_database
		if errors.As(err, &pgErr) && pgErr.Code == "42P04" {
			r.log.Info("target database already exists", zap.String("database", db))
			return nil
		}
		return fmt.Errorf("create database %q: %w", db, err)
	}
	r.log.Info("target database created", zap.String("database", db))
	return nil
}

// filteredCopy moves the predicate-selected rows of one table. The
// destination rows are cleared first, which is exactly why the cascade
// safety check must have passed before this function is ever called. It runs
// before the bulk data restore, so tables this one references are still
// empty; the replica session role lets the rows land without tripping
// foreign keys the restore satisfies later.
func (r *Runner) filteredCopy(ctx context.Context, db string, ft filteredTable) (err error) {
	src, err := r.dialSource(ctx, db)
	if err != nil {
		return fmt.Errorf("connect to source %q: %w", db, err)
	}
	defer func() { err = errors.Join(err, src.Close(ctx)) }()

	tgt, err := r.dialTarget(ctx, db)
	if err != nil {
		return fmt.Errorf("connect to target %q: %w", db, err)
	}
	defer func() { err = errors.Join(err, tgt.Close(ctx)) }()

	name := ft.table.QualifiedName()
	r.log.Info("filtered copy",
		zap.String("database", db),
		zap.String("table", ft.table.String()),
		zap.String("predicate", ft.predicate),
	)

	if _, err := tgt.Exec(ctx, "SET session_replication_role = replica"); err != nil {
		return fmt.Errorf("set replica role: %w", err)
	}
	if _, err := tgt.Exec(ctx, "TRUNCATE TABLE "+name+" CASCADE"); err != nil {
		return fmt.Errorf("truncate %s: %w", name, err)
	}

	copyOut := fmt.Sprintf("COPY (SELECT * FROM %s WHERE %s) TO STDOUT", name, ft.predicate)
	copyIn := fmt.Sprintf("COPY %s FROM STDIN", name)

	pr, pw := io.Pipe()
	go func() {
		_, copyErr := src.PgConn().CopyTo(ctx, pw, copyOut)
		pw.CloseWithError(copyErr)
	}()

	tag, err := tgt.PgConn().CopyFrom(ctx, pr, copyIn)
	if err != nil {
		return fmt.Errorf("copy rows into %s: %w", name, err)
	}
	r.log.Info("rows copied",
		zap.String("table", ft.table.String()),
		zap.Int64("rows", tag.RowsAffected()),
	)
	return nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
