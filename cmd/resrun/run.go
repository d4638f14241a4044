package main

import (
	"github.com/artpar/resrun/core/formatter"
	"github.com/artpar/resrun/core/resource"
	"github.com/spf13/cobra"
)

func newRunCmd(g *globalOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "run <definition> [expression...]",
		Short: "Invoke a definition with command-line arguments",
		Long: `Load a definition and run an expression against it.

The words after the definition form the expression: leading words walk
properties until a method is reached, the rest become its arguments and
--options. Without an expression the definition itself is invoked when it
is callable, or its value is printed.

Examples:
  resrun run app.yaml
  resrun run app.yaml deploy production --dry-run
  resrun run app.yaml 'build --target=web, deploy'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := formatter.Lookup(output)
			if err != nil {
				return err
			}
			app, res, err := g.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer app.Shutdown()

			ctx := cmd.Context()
			var result any
			switch {
			case len(args) == 2:
				result, err = app.Runtime.Execute(ctx, res, args[1], nil)
			case len(args) > 2:
				result, err = app.Runtime.Execute(ctx, res, args[1:], nil)
			default:
				result, err = res.Dispatch(ctx, resource.Input{})
			}
			if err != nil {
				return err
			}
			return f.FormatValue(cmd.OutOrStdout(), result, formatter.FormatOptions{})
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().StringVarP(&output, "output", "o", "table", "result format: table, json or yaml")
	return cmd
}
