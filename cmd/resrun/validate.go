package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/artpar/resrun/adapters/sqlite"
	"github.com/artpar/resrun/config"
	"github.com/spf13/cobra"
)

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)

func newValidateCmd(g *globalOptions) *cobra.Command {
	var checkCache bool

	cmd := &cobra.Command{
		Use:   "validate [definition...]",
		Short: "Validate configuration and definitions",
		Long: `Validate the resrun configuration and every definition it names.

Checks:
  - Config syntax and values are valid
  - Every definition under definitions.paths builds
  - Every definition given as an argument builds
  - The definition cache is usable (optional)

Examples:
  resrun validate
  resrun validate app.yaml lib/*.yaml
  resrun validate --check-cache`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, g, args, checkCache)
		},
	}

	cmd.Flags().BoolVar(&checkCache, "check-cache", false, "check that the definition cache is usable")
	return cmd
}

func runValidate(cmd *cobra.Command, g *globalOptions, refs []string, checkCache bool) error {
	out := cmd.OutOrStdout()

	if _, err := os.Stat(g.configPath); err == nil {
		fmt.Fprintf(out, "Validating %s...\n\n", g.configPath)
	} else {
		fmt.Fprintf(out, "Validating environment configuration...\n\n")
	}

	cfg, err := g.loadConfig()
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return err
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)
	fmt.Fprintf(out, "  %s Runtime: %s\n", checkMark, runtimeLabel(cfg))
	fmt.Fprintf(out, "  %s Cache: %s\n", checkMark, cfg.Cache.Driver)

	app, err := g.newApp(cmd, cfg)
	if err != nil {
		fmt.Fprintf(out, "  %s Runtime initialized\n", crossMark)
		return err
	}
	defer app.Shutdown()

	ctx := cmd.Context()
	loaded, err := app.LoadDefinitions(ctx)
	if err != nil {
		fmt.Fprintf(out, "  %s Configured definitions\n", crossMark)
		fmt.Fprintf(out, "      Error: %v\n", err)
		return fmt.Errorf("invalid definitions: %w", err)
	}
	fmt.Fprintf(out, "  %s Configured definitions: %d\n", checkMark, len(loaded))

	failed := 0
	for _, ref := range refs {
		res, err := app.Open(ctx, ref)
		if err != nil {
			failed++
			fmt.Fprintf(out, "  %s %s\n", crossMark, ref)
			fmt.Fprintf(out, "      Error: %v\n", err)
			continue
		}
		label := ref
		if name := res.Meta().Name; name != "" {
			label += " (" + name + ")"
		}
		fmt.Fprintf(out, "  %s %s\n", checkMark, label)
	}

	if checkCache {
		checkDefinitionCache(ctx, out, app.DB)
	}

	fmt.Fprintln(out)
	if failed > 0 {
		return fmt.Errorf("%d definition(s) invalid", failed)
	}
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func runtimeLabel(cfg *config.Config) string {
	v := cfg.Runtime.Version
	if v == "" {
		v = version
	}
	return cfg.Runtime.Name + "@" + v
}

func checkDefinitionCache(ctx context.Context, out io.Writer, db *sqlite.DB) {
	if db == nil {
		fmt.Fprintf(out, "  %s Definition cache: not a database\n", checkMark)
		return
	}
	if err := db.HealthCheck(ctx); err != nil {
		fmt.Fprintf(out, "  %s Definition cache usable\n", crossMark)
		fmt.Fprintf(out, "      Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "  %s Definition cache usable\n", checkMark)
}
