package main

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/pgshift/pgshift/migrate"
)

type validateFlags struct {
	flags
	source *cli.StringFlag
	target *cli.StringFlag
}

func (vf *validateFlags) Set() []cli.Flag {
	return append(vf.flags.Set(),
		vf.source,
		vf.target,
	)
}

type validateCommand struct {
	vf validateFlags
	BaseCommand
}

func NewValidateCommand(f flags) *validateCommand {
	return &validateCommand{
		vf: validateFlags{
			flags: f,
			source: &cli.StringFlag{
				Name:  "source",
				Usage: "source connection url (postgres://...)",
			},
			target: &cli.StringFlag{
				Name:  "target",
				Usage: "target connection url (postgres://...)",
			},
		},
	}
}

func (v *validateCommand) Command() *cli.Command {
	return &cli.Command{
		Name:        "validate",
		Description: "check urls and client tools without migrating anything",
		Flags:       v.vf.Set(),
		Before:      v.init,
		Action:      v.run,
	}
}

func (v *validateCommand) init(ctx *cli.Context) error {
	base, err := NewBase(ctx, v.vf.flags)
	if err != nil {
		return cli.Exit(err, 2)
	}
	v.BaseCommand = base
	return nil
}

func (v *validateCommand) run(ctx *cli.Context) error {
	sourceURL := firstNonEmpty(v.vf.source.Get(ctx), v.cnf.SourceURL)
	targetURL := firstNonEmpty(v.vf.target.Get(ctx), v.cnf.TargetURL)
	if sourceURL == "" || targetURL == "" {
		return xerrors.New("both source and target urls are required (flags or config)")
	}

	if err := migrate.ValidateURL(sourceURL); err != nil {
		return xerrors.Errorf("source: %w", err)
	}
	if err := migrate.ValidateURL(targetURL); err != nil {
		return xerrors.Errorf("target: %w", err)
	}
	if err := migrate.SameEndpoint(sourceURL, targetURL); err != nil {
		return err
	}
	if err := migrate.CheckRequiredTools(); err != nil {
		return err
	}

	v.log.Info("configuration is valid")
	return nil
}
