package main

import (
	"errors"

	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/pgshift/pgshift/checkpoint"
	"github.com/pgshift/pgshift/discover"
	"github.com/pgshift/pgshift/migrate"
)

type verifyCommand struct {
	sf scopeFlags
	BaseCommand
}

func NewVerifyCommand(f flags) *verifyCommand {
	return &verifyCommand{sf: newScopeFlags(f)}
}

func (v *verifyCommand) Command() *cli.Command {
	return &cli.Command{
		Name:        "verify",
		Description: "compare table checksums and row counts between source and target",
		Flags:       v.sf.Set(),
		Before:      v.init,
		Action:      v.run,
	}
}

func (v *verifyCommand) init(ctx *cli.Context) error {
	base, err := NewBase(ctx, v.sf.flags)
	if err != nil {
		return cli.Exit(err, 2)
	}
	v.BaseCommand = base
	return nil
}

func (v *verifyCommand) run(ctx *cli.Context) error {
	sourceURL, targetURL, err := v.sf.urls(ctx, v.cnf)
	if err != nil {
		return err
	}
	filter, rules, err := v.sf.buildScope(ctx, v.cnf)
	if err != nil {
		return err
	}

	cfg := migrate.Config{
		SourceURL:     sourceURL,
		TargetURL:     targetURL,
		Debug:         v.sf.debug.Get(ctx),
		CheckpointDir: checkpoint.DefaultDir,
	}
	runner := migrate.NewRunner(cfg, rules, filter, afero.NewOsFs(), v.log)

	report, err := runner.Verify(ctx.Context)
	if err != nil {
		var dErr discover.Error
		if errors.As(err, &dErr) {
			v.log.Error(dErr.Pretty())
		}
		return xerrors.Errorf("verification failed: %w", err)
	}

	if n := len(report.Mismatches()); n > 0 {
		return xerrors.Errorf("%d of %d tables do not match", n, len(report.Checked))
	}
	v.log.Info("all tables match",
		zap.Int("checked", len(report.Checked)),
		zap.Int("skipped", len(report.Skipped)),
	)
	return nil
}
