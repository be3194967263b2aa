package main

import (
	"os"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v2"

	"github.com/pgshift/pgshift/checkpoint"
	"github.com/pgshift/pgshift/scope"
)

var statusTemplate = template.Must(
	template.New("status").Funcs(sprig.TxtFuncMap()).Parse(`{{- if .Checkpoint }}checkpoint found
  source:    {{ .Checkpoint.SourceEndpointHash | trunc 12 }}
  target:    {{ .Checkpoint.TargetEndpointHash | trunc 12 }}
  scope:     {{ .Checkpoint.FilterFingerprint | trunc 12 }}
  flags:     drop-existing={{ .Checkpoint.DropExisting }} enable-sync={{ .Checkpoint.EnableSync }}
  progress:  {{ len .Checkpoint.CompletedDatabases }}/{{ len .Checkpoint.TotalDatabases }} databases
{{- if .Checkpoint.CompletedDatabases }}
  completed: {{ .Checkpoint.CompletedDatabases | join ", " }}
{{- end }}
{{- if .Remaining }}
  remaining: {{ .Remaining | join ", " }}
{{- end }}
{{- else }}no checkpoint found
{{- end }}
{{- if .Rules }}
configured rules
{{- range .Rules }}
  {{ .Database }}:
{{- range .SchemaOnly }}
    schema-only  {{ . }}
{{- end }}
{{- range .TableFilters }}
    table-filter {{ .Key }} where {{ .Predicate }}
{{- end }}
{{- range .TimeFilters }}
    time-filter  {{ .Key }} on {{ .Filter.Column }} last {{ .Filter.Raw }}
{{- end }}
{{- end }}
{{- end }}
`))

type ruleSummary struct {
	Database     string
	SchemaOnly   []scope.TableKey
	TableFilters []scope.TableFilterEntry
	TimeFilters  []scope.TimeFilterEntry
}

type statusCommand struct {
	f flags
	BaseCommand
}

func NewStatusCommand(f flags) *statusCommand {
	return &statusCommand{f: f}
}

func (s *statusCommand) Command() *cli.Command {
	return &cli.Command{
		Name:        "status",
		Description: "show stored checkpoint progress and configured rules",
		Flags:       s.f.Set(),
		Before:      s.init,
		Action:      s.run,
	}
}

func (s *statusCommand) init(ctx *cli.Context) error {
	base, err := NewBase(ctx, s.f)
	if err != nil {
		return cli.Exit(err, 2)
	}
	s.BaseCommand = base
	return nil
}

func (s *statusCommand) run(ctx *cli.Context) error {
	store := checkpoint.NewStore(afero.NewOsFs(), checkpoint.DefaultDir, s.log)
	cp, _ := store.Load()

	var remaining []string
	if cp != nil {
		done := make(map[string]struct{}, len(cp.CompletedDatabases))
		for _, db := range cp.CompletedDatabases {
			done[db] = struct{}{}
		}
		for _, db := range cp.TotalDatabases {
			if _, ok := done[db]; !ok {
				remaining = append(remaining, db)
			}
		}
	}

	rules, err := scope.MergeRules(s.cnf.Rules, nil)
	if err != nil {
		return err
	}
	var summaries []ruleSummary
	for _, db := range rules.Databases() {
		name := db
		if db == scope.AnyDatabase {
			name = "(any database)"
		}
		summaries = append(summaries, ruleSummary{
			Database:     name,
			SchemaOnly:   rules.SchemaOnlyKeys(db),
			TableFilters: rules.TableFilters(db),
			TimeFilters:  rules.TimeFilters(db),
		})
	}

	return statusTemplate.Execute(os.Stdout, struct {
		Checkpoint *checkpoint.Checkpoint
		Remaining  []string
		Rules      []ruleSummary
	}{Checkpoint: cp, Remaining: remaining, Rules: summaries})
}
