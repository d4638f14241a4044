package main

import (
	"fmt"

	"github.com/artpar/resrun/core/expression"
	"github.com/artpar/resrun/core/resource"
	"github.com/spf13/cobra"
)

func newEmitCmd(g *globalOptions) *cobra.Command {
	var (
		broadcast bool
		all       bool
	)

	cmd := &cobra.Command{
		Use:   "emit <definition> <event> [arguments...]",
		Short: "Emit an event on a definition",
		Long: `Invoke every method of a definition that listens to an event.

Arguments after the event name are passed to each listener, parsed like
a run expression.

Examples:
  resrun emit app.yaml before:deploy
  resrun emit app.yaml changed config.yaml --force
  resrun emit --broadcast app.yaml reset
  resrun emit --all app.yaml shutdown   # every registered definition`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, res, err := g.open(cmd, args[0])
			if err != nil {
				return err
			}
			defer app.Shutdown()

			event := args[1]
			in, err := eventInput(res, args[2:])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if all {
				return app.Runtime.Publish(ctx, res.Name(), event, in)
			}

			var n int
			if broadcast {
				n, err = res.Broadcast(ctx, event, in)
			} else {
				n, err = res.Emit(ctx, event, in)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %d listener(s) ran\n", event, n)
			return nil
		},
	}

	cmd.Flags().SetInterspersed(false)
	cmd.Flags().BoolVar(&broadcast, "broadcast", false, "also emit on nested resources")
	cmd.Flags().BoolVar(&all, "all", false, "publish to every registered definition")
	return cmd
}

// eventInput parses words into listener input, resolving placeholders
// against the definition's environment.
func eventInput(res *resource.Resource, words []string) (resource.Input, error) {
	if len(words) == 0 {
		return resource.Input{}, nil
	}
	exprs, err := expression.Parse(words, res.Dir())
	if err != nil {
		return resource.Input{}, err
	}
	if len(exprs) != 1 {
		return resource.Input{}, fmt.Errorf("event arguments must form a single expression, got %d", len(exprs))
	}

	env := res.Env()
	args, opts, err := exprs[0].Resolve(expression.Variables{
		Arguments: []any{},
		Config:    env.Config,
		Env:       env.Environ,
	})
	if err != nil {
		return resource.Input{}, err
	}
	return resource.Input{Arguments: args, Options: opts}, nil
}
